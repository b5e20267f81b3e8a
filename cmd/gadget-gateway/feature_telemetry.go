//go:build !no_telemetry

package main

import (
	"log/slog"

	"zigbee-gadgets/internal/coordinator"
	"zigbee-gadgets/internal/telemetry"
)

type telemetryStopper struct {
	writer *telemetry.Writer
}

func (t *telemetryStopper) Stop() {
	if t.writer != nil {
		t.writer.Stop()
	}
}

func initTelemetry(coord *coordinator.Coordinator, cfg *Config, logger *slog.Logger) *telemetryStopper {
	if !cfg.InfluxDB.Enabled {
		return &telemetryStopper{}
	}
	w, err := telemetry.Connect(telemetry.Config{
		URL:           cfg.InfluxDB.URL,
		Token:         cfg.InfluxDB.Token,
		Org:           cfg.InfluxDB.Org,
		Bucket:        cfg.InfluxDB.Bucket,
		BatchSize:     cfg.InfluxDB.BatchSize,
		FlushInterval: cfg.InfluxDB.FlushInterval,
	}, logger)
	if err != nil {
		logger.Error("influxdb telemetry", "err", err)
		return &telemetryStopper{}
	}
	w.Start(coord.Events())
	return &telemetryStopper{writer: w}
}
