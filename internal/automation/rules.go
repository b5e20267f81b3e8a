// Package automation runs the built-in cross-device rules. Rules react to
// gadget value changes and drive on/off targets through a Commander; they
// never write gadget state themselves.
package automation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"zigbee-gadgets/internal/gadget"
)

var (
	ErrUnsupportedTrigger = errors.New("automation: unsupported trigger type")
	ErrInvalidTarget      = errors.New("automation: invalid target")
)

const (
	DefaultHumidityThreshold = 80
	defaultCommandTimeout    = 10 * time.Second
)

// defaultTargetType is the target gadget type of each supported trigger.
var defaultTargetType = map[gadget.Type]gadget.Type{
	gadget.Pir:      gadget.Light,
	gadget.Humidity: gadget.Plug,
}

// Selector designates an on/off gadget on a fixed endpoint.
type Selector struct {
	Address  string
	Endpoint int
	Type     gadget.Type
}

// Key returns the state store key of the selected gadget's on/off value.
func (s Selector) Key() gadget.Key {
	return gadget.Key{
		Address: s.Address,
		AuxID: gadget.AuxID(s.Endpoint, gadget.Descriptor{
			Type:      s.Type,
			ClusterID: gadget.ClusterOnOff,
			AttrID:    gadget.AttrOnOff,
		}),
	}
}

// Rule binds a trigger gadget type to the target it drives.
type Rule struct {
	Trigger gadget.Type
	Target  Selector
}

// Config configures the engine.
type Config struct {
	Rules             []Rule
	HumidityThreshold float64
	CommandTimeout    time.Duration
}

// Commander issues on/off commands to the network.
type Commander interface {
	SetOnOff(ctx context.Context, addr string, ep int, on bool) error
}

// Command is an on/off request produced by a rule.
type Command struct {
	Trigger gadget.Type
	Target  Selector
	On      bool
}

// Engine evaluates rules. HandleChange is called from the single event
// stream; commands complete asynchronously.
type Engine struct {
	targets   map[gadget.Type]Selector
	threshold float64
	timeout   time.Duration
	cmd       Commander
	state     *gadget.StateStore
	logger    *slog.Logger

	// pending holds the on/off state last commanded per target until the
	// target reports again or the command fails.
	mu      sync.Mutex
	pending map[gadget.Key]bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New validates cfg and builds an engine.
func New(cfg Config, cmd Commander, state *gadget.StateStore, logger *slog.Logger) (*Engine, error) {
	targets := make(map[gadget.Type]Selector, len(cfg.Rules))
	for _, r := range cfg.Rules {
		def, ok := defaultTargetType[r.Trigger]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupportedTrigger, r.Trigger)
		}
		if _, dup := targets[r.Trigger]; dup {
			return nil, fmt.Errorf("automation: duplicate rule for %s", r.Trigger)
		}
		t := r.Target
		if t.Type == "" {
			t.Type = def
		}
		if t.Address == "" || t.Endpoint < 1 || t.Endpoint > 240 {
			return nil, fmt.Errorf("%w: %s rule target %q endpoint %d", ErrInvalidTarget, r.Trigger, t.Address, t.Endpoint)
		}
		targets[r.Trigger] = t
	}

	threshold := cfg.HumidityThreshold
	if threshold == 0 {
		threshold = DefaultHumidityThreshold
	}
	timeout := cfg.CommandTimeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		targets:   targets,
		threshold: threshold,
		timeout:   timeout,
		cmd:       cmd,
		state:     state,
		logger:    logger.With("component", "automation"),
		pending:   make(map[gadget.Key]bool),
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// HandleChange evaluates the rules keyed to rec's gadget type and dispatches
// the resulting commands. It returns the dispatched commands.
func (e *Engine) HandleChange(addr string, rec gadget.Record) []Command {
	e.clearPending(gadget.Key{Address: addr, AuxID: rec.AuxID})

	var (
		c  Command
		ok bool
	)
	switch rec.Type {
	case gadget.Pir:
		c, ok = e.motionRule(rec)
	case gadget.Humidity:
		c, ok = e.humidityRule(rec)
	}
	if !ok {
		return nil
	}
	e.dispatch(c)
	return []Command{c}
}

// motionRule mirrors the Pir alarm flag onto the configured light.
func (e *Engine) motionRule(rec gadget.Record) (Command, bool) {
	target, ok := e.targets[gadget.Pir]
	if !ok {
		return Command{}, false
	}
	if _, known := e.state.Get(target.Key()); !known {
		e.logger.Debug("motion: light not known", "target", target.Address, "ep", target.Endpoint)
		return Command{}, false
	}
	alarm, ok := gadget.ToBool(rec.Value)
	if !ok {
		return Command{}, false
	}
	return Command{Trigger: gadget.Pir, Target: target, On: alarm}, true
}

// humidityRule switches the configured plug on at or above the threshold
// and off below it, unless the plug is already (or about to be) there.
func (e *Engine) humidityRule(rec gadget.Record) (Command, bool) {
	target, ok := e.targets[gadget.Humidity]
	if !ok {
		return Command{}, false
	}
	h, ok := gadget.ToFloat64(rec.Value)
	if !ok {
		return Command{}, false
	}
	key := target.Key()
	cur, known := e.state.Get(key)
	if !known {
		e.logger.Debug("humidity: plug not known", "target", target.Address, "ep", target.Endpoint)
		return Command{}, false
	}

	desired := h >= e.threshold
	if on, ok := gadget.ToBool(cur); ok && on == desired {
		return Command{}, false
	}
	e.mu.Lock()
	want, inflight := e.pending[key]
	e.mu.Unlock()
	if inflight && want == desired {
		return Command{}, false
	}
	return Command{Trigger: gadget.Humidity, Target: target, On: desired}, true
}

func (e *Engine) dispatch(c Command) {
	key := c.Target.Key()
	e.mu.Lock()
	e.pending[key] = c.On
	e.mu.Unlock()

	e.logger.Info("rule fired", "trigger", c.Trigger, "target", c.Target.Address, "ep", c.Target.Endpoint, "on", c.On)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(e.ctx, e.timeout)
		defer cancel()

		err := e.cmd.SetOnOff(ctx, c.Target.Address, c.Target.Endpoint, c.On)
		if err == nil {
			return
		}
		e.mu.Lock()
		if want, ok := e.pending[key]; ok && want == c.On {
			delete(e.pending, key)
		}
		e.mu.Unlock()
		e.logger.Warn("rule command failed", "trigger", c.Trigger, "target", c.Target.Address, "ep", c.Target.Endpoint, "err", err)
	}()
}

func (e *Engine) clearPending(k gadget.Key) {
	e.mu.Lock()
	delete(e.pending, k)
	e.mu.Unlock()
}

// Wait blocks until every dispatched command has completed.
func (e *Engine) Wait() {
	e.wg.Wait()
}

// Stop cancels outstanding commands and waits for them to return.
func (e *Engine) Stop() {
	e.cancel()
	e.wg.Wait()
}
