// Package telemetry records numeric gadget changes in InfluxDB.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"zigbee-gadgets/internal/coordinator"
	"zigbee-gadgets/internal/gadget"
)

// ErrConnectionFailed is returned when the server cannot be reached at startup.
var ErrConnectionFailed = errors.New("telemetry: influxdb connection failed")

const (
	measurement        = "gadget"
	connectTimeout     = 10 * time.Second
	defaultBatchSize   = 100
	defaultFlushPeriod = 10 * time.Second
)

// Config holds InfluxDB connection settings.
type Config struct {
	URL           string
	Token         string
	Org           string
	Bucket        string
	BatchSize     int
	FlushInterval time.Duration
}

// pointWriter is the subset of the non-blocking write API the writer uses.
type pointWriter interface {
	WritePoint(p *write.Point)
	Flush()
}

// Writer turns attrsChange indications into "gadget" points.
type Writer struct {
	client influxdb2.Client
	api    pointWriter
	logger *slog.Logger
	unsub  func()
	now    func() time.Time
}

func newWriter(api pointWriter, logger *slog.Logger) *Writer {
	return &Writer{
		api:    api,
		logger: logger.With("component", "telemetry"),
		now:    time.Now,
	}
}

// Connect creates the client, verifies the server with a ping and sets up
// batched asynchronous writes.
func Connect(cfg Config, logger *slog.Logger) (*Writer, error) {
	batch := cfg.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	flush := cfg.FlushInterval
	if flush <= 0 {
		flush = defaultFlushPeriod
	}

	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token,
		influxdb2.DefaultOptions().
			SetBatchSize(uint(batch)).
			SetFlushInterval(uint(flush.Milliseconds())))

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	healthy, err := client.Ping(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: ping: %w", ErrConnectionFailed, err)
	}
	if !healthy {
		client.Close()
		return nil, fmt.Errorf("%w: server not healthy", ErrConnectionFailed)
	}

	api := client.WriteAPI(cfg.Org, cfg.Bucket)
	w := newWriter(api, logger)
	w.client = client

	go func() {
		for err := range api.Errors() {
			w.logger.Warn("influxdb write failed", "err", err)
		}
	}()
	return w, nil
}

// Start subscribes to gadget value changes.
func (w *Writer) Start(events *coordinator.EventBus) {
	w.unsub = events.On(coordinator.IndAttrsChange, w.handleEvent)
	w.logger.Info("telemetry started")
}

// Stop unsubscribes, flushes pending points and closes the client.
func (w *Writer) Stop() {
	if w.unsub != nil {
		w.unsub()
	}
	w.api.Flush()
	if w.client != nil {
		w.client.Close()
	}
}

func (w *Writer) handleEvent(event coordinator.Event) {
	d, ok := event.Data.(coordinator.AttrsChangeData)
	if !ok {
		return
	}
	p, ok := gadgetPoint(d.PermAddr, d.Gad, w.now())
	if !ok {
		w.logger.Debug("skipping non-numeric gadget", "permAddr", d.PermAddr, "auxId", d.Gad.AuxID)
		return
	}
	w.api.WritePoint(p)
}

// gadgetPoint builds the point for one gadget value. Booleans are stored
// as 0 or 1.
func gadgetPoint(addr string, g gadget.Record, ts time.Time) (*write.Point, bool) {
	v, ok := gadget.ToFloat64(g.Value)
	if !ok {
		return nil, false
	}
	return write.NewPoint(measurement,
		map[string]string{
			"perm_addr": addr,
			"aux_id":    g.AuxID,
			"type":      string(g.Type),
		},
		map[string]any{"value": v},
		ts,
	), true
}
