//go:build no_telemetry

package main

import (
	"log/slog"

	"zigbee-gadgets/internal/coordinator"
)

type telemetryStopper struct{}

func (t *telemetryStopper) Stop() {}

func initTelemetry(_ *coordinator.Coordinator, _ *Config, _ *slog.Logger) *telemetryStopper {
	return &telemetryStopper{}
}
