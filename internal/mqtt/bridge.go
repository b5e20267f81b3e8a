//go:build !no_mqtt

package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"zigbee-gadgets/internal/coordinator"
	"zigbee-gadgets/internal/gadget"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker          string
	Username        string
	Password        string
	TopicPrefix     string
	DiscoveryPrefix string // empty disables Home Assistant discovery
	WriteTimeout    time.Duration
}

// Gateway is the part of the coordinator the bridge uses.
type Gateway interface {
	Events() *coordinator.EventBus
	GetDevices() map[string]coordinator.DeviceRecord
	Write(ctx context.Context, permAddr, auxID string, value any) error
}

// setRequest is the payload of <prefix>/<permAddr>/set.
type setRequest struct {
	AuxID string `json:"auxId"`
	Value any    `json:"value"`
}

// Bridge mirrors gadget indications to MQTT and routes set requests to
// the coordinator.
type Bridge struct {
	client    pahomqtt.Client
	gw        Gateway
	prefix    string
	discovery string
	timeout   time.Duration
	logger    *slog.Logger
	unsub     func()
	ctx       context.Context
	cancel    context.CancelFunc
}

func newBridge(gw Gateway, cfg Config, logger *slog.Logger) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bridge{
		gw:        gw,
		prefix:    cfg.TopicPrefix,
		discovery: cfg.DiscoveryPrefix,
		timeout:   cfg.WriteTimeout,
		logger:    logger.With("component", "mqtt"),
		ctx:       ctx,
		cancel:    cancel,
	}
	if b.timeout <= 0 {
		b.timeout = 10 * time.Second
	}
	return b
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(gw Gateway, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := newBridge(gw, cfg, logger)

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("zigbee-gadgets").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(b.bridgeStateTopic(), "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	// The connect handler may fire before Connect returns.
	b.client = pahomqtt.NewClient(opts)
	token := b.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		b.cancel()
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		b.cancel()
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}
	return b, nil
}

// Start subscribes to coordinator indications.
func (b *Bridge) Start() {
	b.unsub = b.gw.Events().OnAll(b.handleEvent)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix)
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	b.cancel()
	if b.unsub != nil {
		b.unsub()
	}
	b.publish(b.bridgeStateTopic(), "offline", true)
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

// onConnect runs on every (re)connect: the broker may have lost retained
// state and subscriptions.
func (b *Bridge) onConnect() {
	b.publish(b.bridgeStateTopic(), "online", true)
	b.publishAll()
	b.client.Subscribe(b.setTopic("+"), 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		b.handleSet(msg.Topic(), msg.Payload())
	})
}

func (b *Bridge) handleEvent(event coordinator.Event) {
	switch event.Type {
	case coordinator.IndReady:
		b.publishAll()
	case coordinator.IndDevIncoming:
		if d, ok := event.Data.(coordinator.DevIncomingData); ok {
			b.publishDevice(d.Dev)
		}
	case coordinator.IndDevStatus:
		if d, ok := event.Data.(coordinator.DevStatusData); ok {
			b.publish(b.statusTopic(d.PermAddr), d.Status, true)
		}
	case coordinator.IndAttrsChange:
		if d, ok := event.Data.(coordinator.AttrsChangeData); ok {
			b.publishValue(d.PermAddr, d.Gad)
		}
	}
}

func (b *Bridge) publishAll() {
	devices := b.gw.GetDevices()
	addrs := make([]string, 0, len(devices))
	for addr := range devices {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)
	for _, addr := range addrs {
		b.publishDevice(devices[addr])
	}
}

// publishDevice publishes discovery, status and every gadget value of dev.
func (b *Bridge) publishDevice(dev coordinator.DeviceRecord) {
	if b.discovery != "" {
		for _, msg := range buildDiscovery(dev, b.prefix, b.discovery) {
			b.publish(msg.Topic, msg.Payload, true)
		}
	}
	b.publish(b.statusTopic(dev.PermAddr), dev.Status, true)
	for _, auxID := range sortedAuxIDs(dev) {
		b.publishValue(dev.PermAddr, dev.Gads[auxID])
	}
}

func (b *Bridge) publishValue(addr string, g gadget.Record) {
	b.publish(b.valueTopic(addr, g.AuxID), mustJSON(g.Value), true)
}

// handleSet routes <prefix>/<permAddr>/set to a coordinator write.
func (b *Bridge) handleSet(topic string, payload []byte) {
	addr, ok := b.setTopicAddr(topic)
	if !ok {
		b.logger.Warn("set on unexpected topic", "topic", topic)
		return
	}

	var req setRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		b.logger.Warn("invalid set payload", "permAddr", addr, "err", err)
		return
	}

	ctx, cancel := context.WithTimeout(b.ctx, b.timeout)
	defer cancel()
	if err := b.gw.Write(ctx, addr, req.AuxID, req.Value); err != nil {
		b.logger.Warn("set failed", "permAddr", addr, "auxId", req.AuxID, "err", err)
		return
	}
	b.logger.Debug("set", "permAddr", addr, "auxId", req.AuxID, "value", req.Value)
}

func (b *Bridge) publish(topic string, payload any, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func (b *Bridge) bridgeStateTopic() string { return b.prefix + "/bridge/state" }

func (b *Bridge) statusTopic(addr string) string { return b.prefix + "/" + addr + "/status" }

func (b *Bridge) valueTopic(addr, auxID string) string {
	return b.prefix + "/" + addr + "/" + auxID
}

func (b *Bridge) setTopic(addr string) string { return b.prefix + "/" + addr + "/set" }

func (b *Bridge) setTopicAddr(topic string) (string, bool) {
	rest, ok := strings.CutPrefix(topic, b.prefix+"/")
	if !ok {
		return "", false
	}
	addr, ok := strings.CutSuffix(rest, "/set")
	if !ok || addr == "" || strings.Contains(addr, "/") {
		return "", false
	}
	return addr, true
}

func sortedAuxIDs(dev coordinator.DeviceRecord) []string {
	ids := make([]string, 0, len(dev.Gads))
	for id := range dev.Gads {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func mustJSON(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("null")
	}
	return data
}
