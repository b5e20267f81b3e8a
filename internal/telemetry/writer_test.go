package telemetry

import (
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"zigbee-gadgets/internal/coordinator"
	"zigbee-gadgets/internal/gadget"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeWriteAPI struct {
	mu      sync.Mutex
	points  []*write.Point
	flushed int
}

func (f *fakeWriteAPI) WritePoint(p *write.Point) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points = append(f.points, p)
}

func (f *fakeWriteAPI) Flush() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushed++
}

func pointTags(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func pointValue(p *write.Point) any {
	for _, f := range p.FieldList() {
		if f.Key == "value" {
			return f.Value
		}
	}
	return nil
}

func TestGadgetPoint(t *testing.T) {
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		rec    gadget.Record
		want   float64
		wantOK bool
	}{
		{"temperature", gadget.Record{AuxID: "1/Temperature/msTemperatureMeasurement/measuredValue", Type: gadget.Temperature, Value: 23.5}, 23.5, true},
		{"switch on", gadget.Record{AuxID: "1/Switch/genOnOff/onOff", Type: gadget.Switch, Value: true}, 1, true},
		{"switch off", gadget.Record{AuxID: "1/Switch/genOnOff/onOff", Type: gadget.Switch, Value: false}, 0, true},
		{"string", gadget.Record{AuxID: "1/Switch/genOnOff/onOff", Type: gadget.Switch, Value: "on"}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := gadgetPoint("0x00124b00072d9a1d", tt.rec, ts)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if p.Name() != "gadget" {
				t.Errorf("measurement = %q", p.Name())
			}
			tags := pointTags(p)
			if tags["perm_addr"] != "0x00124b00072d9a1d" || tags["aux_id"] != tt.rec.AuxID || tags["type"] != string(tt.rec.Type) {
				t.Errorf("tags = %v", tags)
			}
			if v := pointValue(p); v != tt.want {
				t.Errorf("value = %v, want %v", v, tt.want)
			}
			if !p.Time().Equal(ts) {
				t.Errorf("time = %v", p.Time())
			}
		})
	}
}

func TestWriterFollowsAttrsChange(t *testing.T) {
	api := &fakeWriteAPI{}
	w := newWriter(api, newTestLogger())
	bus := coordinator.NewEventBus(newTestLogger())
	w.Start(bus)

	bus.Emit(coordinator.Event{Type: coordinator.IndAttrsChange, Data: coordinator.AttrsChangeData{
		PermAddr: "0x000d6f000bb5508e",
		Gad:      gadget.Record{AuxID: "1/Humidity/msRelativeHumidity/measuredValue", Type: gadget.Humidity, Value: 82.0},
	}})
	bus.Emit(coordinator.Event{Type: coordinator.IndDevStatus, Data: coordinator.DevStatusData{PermAddr: "x", Status: "offline"}})

	w.Stop()

	if len(api.points) != 1 {
		t.Fatalf("points = %d, want 1", len(api.points))
	}
	if v := pointValue(api.points[0]); v != 82.0 {
		t.Errorf("value = %v, want 82", v)
	}
	if api.flushed != 1 {
		t.Errorf("flushes = %d, want 1", api.flushed)
	}

	// Unsubscribed after Stop.
	bus.Emit(coordinator.Event{Type: coordinator.IndAttrsChange, Data: coordinator.AttrsChangeData{
		PermAddr: "0x000d6f000bb5508e",
		Gad:      gadget.Record{AuxID: "1/Humidity/msRelativeHumidity/measuredValue", Type: gadget.Humidity, Value: 83.0},
	}})
	if len(api.points) != 1 {
		t.Errorf("points after stop = %d, want 1", len(api.points))
	}
}
