// Package coordinator turns network events into gadget state, indications
// and rule evaluations, and serves the request operations of the UI
// transports.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"zigbee-gadgets/internal/automation"
	"zigbee-gadgets/internal/gadget"
	"zigbee-gadgets/internal/ncp"
	"zigbee-gadgets/internal/store"
)

const (
	defaultCommandTimeout = 10 * time.Second
	defaultRequestTimeout = 10 * time.Second
)

// Config holds coordinator configuration.
type Config struct {
	Automation automation.Config
	// CommandTimeout bounds a single on/off command.
	CommandTimeout time.Duration
	// RequestTimeout bounds device listing and report configuration.
	RequestTimeout time.Duration
}

// Coordinator owns the gadget view of the network.
type Coordinator struct {
	net     ncp.Network
	store   store.Store
	events  *EventBus
	state   *gadget.StateStore
	devices *DeviceRegistry
	rules   *automation.Engine
	logger  *slog.Logger

	cmdTimeout time.Duration
	reqTimeout time.Duration

	ctx     context.Context
	cancel  context.CancelFunc
	loop    sync.WaitGroup
	reports sync.WaitGroup
}

// New creates a coordinator on top of a network stack.
func New(net ncp.Network, st store.Store, events *EventBus, cfg Config, logger *slog.Logger) (*Coordinator, error) {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		net:        net,
		store:      st,
		events:     events,
		state:      gadget.NewStateStore(),
		devices:    NewDeviceRegistry(),
		logger:     logger.With("component", "coordinator"),
		cmdTimeout: cfg.CommandTimeout,
		reqTimeout: cfg.RequestTimeout,
		ctx:        ctx,
		cancel:     cancel,
	}
	if c.cmdTimeout <= 0 {
		c.cmdTimeout = defaultCommandTimeout
	}
	if c.reqTimeout <= 0 {
		c.reqTimeout = defaultRequestTimeout
	}

	rules, err := automation.New(cfg.Automation, ruleCommander{c}, c.state, logger)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("automation: %w", err)
	}
	c.rules = rules
	return c, nil
}

// Start begins consuming network events and brings the network up.
func (c *Coordinator) Start(ctx context.Context) error {
	c.loop.Add(1)
	go c.run()

	c.logger.Info("starting network...")
	if err := c.net.Start(ctx); err != nil {
		c.fault(fmt.Sprintf("network start: %v", err))
		return fmt.Errorf("start network: %w", err)
	}
	return nil
}

func (c *Coordinator) run() {
	defer c.loop.Done()
	for ev := range c.net.Events() {
		c.HandleEvent(ev)
	}
	c.logger.Debug("event stream closed")
}

// Stop closes the network and waits for the event loop, pending report
// configuration and rule commands to finish.
func (c *Coordinator) Stop() {
	c.cancel()
	if err := c.net.Close(); err != nil {
		c.logger.Warn("close network", "err", err)
	}
	c.loop.Wait()
	c.reports.Wait()
	c.rules.Stop()
}

// Events returns the indication bus.
func (c *Coordinator) Events() *EventBus {
	return c.events
}

// State returns the gadget state store.
func (c *Coordinator) State() *gadget.StateStore {
	return c.state
}

// Rules returns the automation engine.
func (c *Coordinator) Rules() *automation.Engine {
	return c.rules
}

// GetDevices returns every known device record keyed by address.
func (c *Coordinator) GetDevices() map[string]DeviceRecord {
	return c.devices.All()
}

// Device returns the record of one device.
func (c *Coordinator) Device(addr string) (DeviceRecord, bool) {
	return c.devices.Get(addr)
}

// Value returns the last known value of a gadget.
func (c *Coordinator) Value(addr, auxID string) (any, bool) {
	return c.state.Get(gadget.Key{Address: addr, AuxID: auxID})
}

// Catalog returns the persisted device catalog.
func (c *Coordinator) Catalog() ([]*store.Device, error) {
	return c.store.ListDevices()
}

// RecentCommands returns up to n journal entries, newest first.
func (c *Coordinator) RecentCommands(n int) ([]store.CommandEntry, error) {
	return c.store.RecentCommands(n)
}

// PermitJoin opens the network for joining for the given number of seconds.
// Zero closes it.
func (c *Coordinator) PermitJoin(ctx context.Context, seconds int) error {
	if seconds < 0 || seconds > 255 {
		return fmt.Errorf("%w: permit join time %d out of range 0..255", ErrInvalidValue, seconds)
	}
	if err := c.net.PermitJoin(ctx, seconds); err != nil {
		return fmt.Errorf("permit join: %w", err)
	}
	c.logger.Info("permit join requested", "time", seconds)
	return nil
}

// Write sets a gadget value. Only genOnOff gadgets are writable; value is
// interpreted as on/off. State is not touched: the device's own report
// carries the new value.
func (c *Coordinator) Write(ctx context.Context, permAddr, auxID string, value any) error {
	ref, err := gadget.ParseAuxID(auxID)
	if err != nil {
		return err
	}
	ep, ok := c.net.FindEndpoint(permAddr, ref.EndpointID)
	if !ok {
		return fmt.Errorf("%w: %s ep %d", ErrUnknownEndpoint, permAddr, ref.EndpointID)
	}
	if ref.ClusterID != gadget.ClusterOnOff {
		return fmt.Errorf("%w: %s", ErrNotWritable, auxID)
	}
	on, ok := gadget.ToBool(value)
	if !ok {
		return fmt.Errorf("%w: %v is not an on/off value", ErrInvalidValue, value)
	}
	return c.setOnOff(ctx, ep, on, store.SourceUser)
}

// SetOnOff switches the on/off cluster of an endpoint.
func (c *Coordinator) SetOnOff(ctx context.Context, addr string, epID int, on bool, source string) error {
	ep, ok := c.net.FindEndpoint(addr, epID)
	if !ok {
		return fmt.Errorf("%w: %s ep %d", ErrUnknownEndpoint, addr, epID)
	}
	return c.setOnOff(ctx, ep, on, source)
}

func (c *Coordinator) setOnOff(ctx context.Context, ep ncp.Endpoint, on bool, source string) error {
	cmd := "off"
	if on {
		cmd = "on"
	}
	ctx, cancel := context.WithTimeout(ctx, c.cmdTimeout)
	defer cancel()

	err := ep.Invoke(ctx, gadget.ClusterOnOff, cmd, nil)
	c.journal(ep, cmd, source, err)
	if err != nil {
		c.logger.Warn("command failed", "permAddr", ep.Address(), "ep", ep.ID(), "cmd", cmd, "source", source, "err", err)
		c.fault(fmt.Sprintf("%s %s ep %d: %v", cmd, ep.Address(), ep.ID(), err))
		return fmt.Errorf("%w: %s %s ep %d: %w", ErrCommandFailed, cmd, ep.Address(), ep.ID(), err)
	}
	c.logger.Info("command sent", "permAddr", ep.Address(), "ep", ep.ID(), "cmd", cmd, "source", source)
	return nil
}

func (c *Coordinator) journal(ep ncp.Endpoint, cmd, source string, cmdErr error) {
	entry := &store.CommandEntry{
		Time:     time.Now(),
		Address:  ep.Address(),
		Endpoint: ep.ID(),
		Cluster:  gadget.ClusterOnOff,
		Command:  cmd,
		Source:   source,
	}
	if cmdErr != nil {
		entry.Error = cmdErr.Error()
	}
	if err := c.store.AppendCommand(entry); err != nil {
		c.logger.Error("journal command", "err", err)
	}
}

// fault reports a non-fatal error through the error indication.
func (c *Coordinator) fault(msg string) {
	c.logger.Error("error", "msg", msg)
	c.events.Emit(Event{Type: IndError, Data: ErrorData{Msg: msg}})
}

// ruleCommander routes automation commands through the coordinator so they
// are journaled and failures are indicated.
type ruleCommander struct {
	c *Coordinator
}

func (r ruleCommander) SetOnOff(ctx context.Context, addr string, ep int, on bool) error {
	return r.c.SetOnOff(ctx, addr, ep, on, store.SourceAutomation)
}

// saveCatalog records the device and its classification in the store.
func (c *Coordinator) saveCatalog(addr, status string, nwkAddr uint16, eps []ncp.Endpoint) {
	now := time.Now()
	endpoints := catalogEndpoints(eps)
	err := c.store.UpdateDevice(addr, func(dev *store.Device) error {
		dev.Status = status
		dev.Endpoints = endpoints
		dev.LastSeen = now
		if nwkAddr != 0 {
			dev.NwkAddr = nwkAddr
		}
		return nil
	})
	if errors.Is(err, store.ErrNotFound) {
		err = c.store.SaveDevice(&store.Device{
			IEEEAddress: addr,
			NwkAddr:     nwkAddr,
			Status:      status,
			Endpoints:   endpoints,
			JoinedAt:    now,
			LastSeen:    now,
		})
	}
	if err != nil {
		c.logger.Error("save device", "err", err, "permAddr", addr)
	}
}

func (c *Coordinator) saveStatus(addr, status string) {
	err := c.store.UpdateDevice(addr, func(dev *store.Device) error {
		dev.Status = status
		dev.LastSeen = time.Now()
		return nil
	})
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		c.logger.Error("save device status", "err", err, "permAddr", addr)
	}
}
