//go:build no_scripting

package main

import (
	"log/slog"

	"zigbee-gadgets/internal/coordinator"
	"zigbee-gadgets/internal/web"
)

type scriptStopper struct{}

func (s *scriptStopper) Stop() {}

func initScripting(_ *coordinator.Coordinator, _ *Config, _ *slog.Logger) (*scriptStopper, []web.ServerOption) {
	return &scriptStopper{}, nil
}
