//go:build !no_scripting

package main

import (
	"log/slog"

	"zigbee-gadgets/internal/coordinator"
	"zigbee-gadgets/internal/scripting"
	"zigbee-gadgets/internal/web"
)

type scriptStopper struct {
	engine *scripting.Engine
}

func (s *scriptStopper) Stop() {
	if s.engine != nil {
		s.engine.Stop()
	}
}

func initScripting(coord *coordinator.Coordinator, cfg *Config, logger *slog.Logger) (*scriptStopper, []web.ServerOption) {
	mgr, err := scripting.NewManager(cfg.ScriptsDir, logger)
	if err != nil {
		logger.Error("create script manager", "err", err)
		return &scriptStopper{}, nil
	}

	engine := scripting.NewEngine(coord, mgr, logger)
	engine.Start()

	return &scriptStopper{engine: engine}, []web.ServerOption{web.WithScripting(engine, mgr)}
}
