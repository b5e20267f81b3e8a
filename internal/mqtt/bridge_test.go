//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"reflect"
	"sync"
	"testing"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"zigbee-gadgets/internal/coordinator"
	"zigbee-gadgets/internal/gadget"
)

const (
	plugAddr = "0x00124b00072d9a1d"
	tempAddr = "0x000d6f000bb5508e"

	plugAux = "12/Plug/genOnOff/onOff"
	tempAux = "1/Temperature/msTemperatureMeasurement/measuredValue"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type pubRecord struct {
	topic    string
	payload  string
	retained bool
}

// fakeClient records publishes and subscriptions. Methods the bridge
// does not call panic through the nil embedded interface.
type fakeClient struct {
	pahomqtt.Client

	mu   sync.Mutex
	pubs []pubRecord
	subs []string
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload any) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	var s string
	switch p := payload.(type) {
	case string:
		s = p
	case []byte:
		s = string(p)
	}
	c.pubs = append(c.pubs, pubRecord{topic: topic, payload: s, retained: retained})
	return doneToken{}
}

func (c *fakeClient) Subscribe(topic string, qos byte, cb pahomqtt.MessageHandler) pahomqtt.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, topic)
	return doneToken{}
}

func (c *fakeClient) Disconnect(uint) {}

func (c *fakeClient) published() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string)
	for _, p := range c.pubs {
		out[p.topic] = p.payload
	}
	return out
}

type writeCall struct {
	addr, auxID string
	value       any
}

type fakeGateway struct {
	events  *coordinator.EventBus
	devices map[string]coordinator.DeviceRecord

	mu       sync.Mutex
	writes   []writeCall
	writeErr error
}

func (g *fakeGateway) Events() *coordinator.EventBus { return g.events }

func (g *fakeGateway) GetDevices() map[string]coordinator.DeviceRecord { return g.devices }

func (g *fakeGateway) Write(ctx context.Context, addr, auxID string, value any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.writes = append(g.writes, writeCall{addr, auxID, value})
	return g.writeErr
}

func testDevices() map[string]coordinator.DeviceRecord {
	return map[string]coordinator.DeviceRecord{
		plugAddr: {PermAddr: plugAddr, Status: "online", Gads: map[string]gadget.Record{
			plugAux: {AuxID: plugAux, Type: gadget.Plug, Value: false},
		}},
		tempAddr: {PermAddr: tempAddr, Status: "offline", Gads: map[string]gadget.Record{
			tempAux: {AuxID: tempAux, Type: gadget.Temperature, Value: 23.5},
		}},
	}
}

func newTestBridge(t *testing.T, discovery string) (*Bridge, *fakeClient, *fakeGateway) {
	t.Helper()
	gw := &fakeGateway{events: coordinator.NewEventBus(newTestLogger()), devices: testDevices()}
	b := newBridge(gw, Config{TopicPrefix: "gadgets", DiscoveryPrefix: discovery}, newTestLogger())
	client := &fakeClient{}
	b.client = client
	t.Cleanup(b.Stop)
	return b, client, gw
}

func TestOnConnectPublishesEverything(t *testing.T) {
	b, client, _ := newTestBridge(t, "")
	b.onConnect()

	got := client.published()
	want := map[string]string{
		"gadgets/bridge/state":                "online",
		"gadgets/" + plugAddr + "/status":     "online",
		"gadgets/" + plugAddr + "/" + plugAux: "false",
		"gadgets/" + tempAddr + "/status":     "offline",
		"gadgets/" + tempAddr + "/" + tempAux: "23.5",
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("published = %v, want %v", got, want)
	}
	if !reflect.DeepEqual(client.subs, []string{"gadgets/+/set"}) {
		t.Errorf("subscriptions = %v", client.subs)
	}
	for _, p := range client.pubs {
		if !p.retained {
			t.Errorf("%s not retained", p.topic)
		}
	}
}

func TestIndicationsArePublished(t *testing.T) {
	b, client, gw := newTestBridge(t, "")
	b.Start()

	gw.events.Emit(coordinator.Event{Type: coordinator.IndAttrsChange, Data: coordinator.AttrsChangeData{
		PermAddr: tempAddr,
		Gad:      gadget.Record{AuxID: tempAux, Type: gadget.Temperature, Value: 24.25},
	}})
	gw.events.Emit(coordinator.Event{Type: coordinator.IndDevStatus, Data: coordinator.DevStatusData{
		PermAddr: plugAddr, Status: "offline",
	}})
	gw.events.Emit(coordinator.Event{Type: coordinator.IndPermitJoining, Data: coordinator.PermitJoiningData{TimeLeft: 5}})

	got := client.published()
	if got["gadgets/"+tempAddr+"/"+tempAux] != "24.25" {
		t.Errorf("temperature = %q", got["gadgets/"+tempAddr+"/"+tempAux])
	}
	if got["gadgets/"+plugAddr+"/status"] != "offline" {
		t.Errorf("plug status = %q", got["gadgets/"+plugAddr+"/status"])
	}
	if len(got) != 2 {
		t.Errorf("published = %v, want 2 topics", got)
	}
}

func TestHandleSet(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
		want    []writeCall
	}{
		{"write", "gadgets/" + plugAddr + "/set", `{"auxId":"` + plugAux + `","value":true}`,
			[]writeCall{{plugAddr, plugAux, true}}},
		{"numeric value", "gadgets/" + plugAddr + "/set", `{"auxId":"` + plugAux + `","value":0}`,
			[]writeCall{{plugAddr, plugAux, 0.0}}},
		{"bad json", "gadgets/" + plugAddr + "/set", `{`, nil},
		{"foreign prefix", "other/" + plugAddr + "/set", `{"auxId":"x","value":true}`, nil},
		{"nested topic", "gadgets/a/b/set", `{"auxId":"x","value":true}`, nil},
		{"empty address", "gadgets//set", `{"auxId":"x","value":true}`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _, gw := newTestBridge(t, "")
			b.handleSet(tt.topic, []byte(tt.payload))
			if !reflect.DeepEqual(gw.writes, tt.want) {
				t.Errorf("writes = %v, want %v", gw.writes, tt.want)
			}
		})
	}
}

func TestHandleSetWriteFailure(t *testing.T) {
	b, client, gw := newTestBridge(t, "")
	gw.writeErr = errors.New("boom")

	b.handleSet("gadgets/"+plugAddr+"/set", []byte(`{"auxId":"`+plugAux+`","value":true}`))

	if len(gw.writes) != 1 {
		t.Fatalf("writes = %d, want 1", len(gw.writes))
	}
	if len(client.published()) != 0 {
		t.Error("failed write must not publish a value")
	}
}

func TestDiscoveryPlugAndSensor(t *testing.T) {
	msgs := buildDiscovery(testDevices()[plugAddr], "gadgets", "homeassistant")
	if len(msgs) != 1 {
		t.Fatalf("plug discovery = %d messages, want 1", len(msgs))
	}
	if want := "homeassistant/switch/gadgets_" + plugAddr + "/12_plug/config"; msgs[0].Topic != want {
		t.Errorf("topic = %q, want %q", msgs[0].Topic, want)
	}

	var p haDiscovery
	if err := json.Unmarshal(msgs[0].Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.CommandTopic != "gadgets/"+plugAddr+"/set" {
		t.Errorf("command_topic = %q", p.CommandTopic)
	}
	var on setRequest
	if err := json.Unmarshal([]byte(p.PayloadOn), &on); err != nil {
		t.Fatal(err)
	}
	if on.AuxID != plugAux || on.Value != true {
		t.Errorf("payload_on = %+v", on)
	}
	if p.StateTopic != "gadgets/"+plugAddr+"/"+plugAux || p.StateOn != "true" {
		t.Errorf("state = %q %q", p.StateTopic, p.StateOn)
	}
	if p.AvailabilityTopic != "gadgets/"+plugAddr+"/status" {
		t.Errorf("availability_topic = %q", p.AvailabilityTopic)
	}

	msgs = buildDiscovery(testDevices()[tempAddr], "gadgets", "homeassistant")
	if len(msgs) != 1 {
		t.Fatalf("sensor discovery = %d messages, want 1", len(msgs))
	}
	p = haDiscovery{}
	if err := json.Unmarshal(msgs[0].Payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.DeviceClass != "temperature" || p.UnitOfMeasurement != "°C" || p.CommandTopic != "" {
		t.Errorf("sensor payload = %+v", p)
	}
}

func TestDiscoveryPublishedWhenEnabled(t *testing.T) {
	b, client, _ := newTestBridge(t, "homeassistant")
	b.publishDevice(testDevices()[plugAddr])

	if _, ok := client.published()["homeassistant/switch/gadgets_"+plugAddr+"/12_plug/config"]; !ok {
		t.Errorf("discovery not published: %v", client.published())
	}
}

func TestObjectID(t *testing.T) {
	tests := []struct {
		rec  gadget.Record
		want string
	}{
		{gadget.Record{AuxID: tempAux, Type: gadget.Temperature}, "1_temperature"},
		{gadget.Record{AuxID: plugAux, Type: gadget.Plug}, "12_plug"},
		{gadget.Record{AuxID: "weird", Type: gadget.Pir}, "weird"},
	}
	for _, tt := range tests {
		if got := objectID(tt.rec); got != tt.want {
			t.Errorf("objectID(%q) = %q, want %q", tt.rec.AuxID, got, tt.want)
		}
	}
}
