//go:build !no_scripting

package scripting

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"zigbee-gadgets/internal/coordinator"

	lua "github.com/yuin/gopher-lua"
)

const (
	runTimeout     = 5 * time.Second
	commandTimeout = 5 * time.Second
)

// luaEventHandler is a registered Lua callback for an indication.
type luaEventHandler struct {
	indication string
	permAddr   string // filter: only this device (empty = any)
	auxID      string // filter: only this gadget (empty = any)
	gadType    string // filter: only this gadget type (empty = any)
	fn         *lua.LFunction
}

// scriptVM is a running Lua VM for a single script.
type scriptVM struct {
	id       string
	commands chan func(*lua.LState) // serializes Lua access
	handlers []luaEventHandler
	onLog    func(msg string)
	ctx      context.Context
	cancel   context.CancelFunc
	mu       sync.Mutex // protects handlers
}

// Engine manages Lua VMs and dispatches indications to scripts.
type Engine struct {
	gw      Gateway
	manager *Manager
	logger  *slog.Logger

	mu    sync.Mutex
	vms   map[string]*scriptVM // script ID -> running VM
	unsub func()
}

// NewEngine creates a new scripting engine.
func NewEngine(gw Gateway, mgr *Manager, logger *slog.Logger) *Engine {
	return &Engine{
		gw:      gw,
		manager: mgr,
		logger:  logger.With("component", "scripting"),
		vms:     make(map[string]*scriptVM),
	}
}

// Start subscribes to indications and loads all enabled scripts.
func (e *Engine) Start() {
	e.unsub = e.gw.Events().OnAll(e.dispatchEvent)

	scripts, err := e.manager.List()
	if err != nil {
		e.logger.Error("load scripts", "err", err)
		return
	}
	for _, s := range scripts {
		if !s.Meta.Enabled {
			continue
		}
		if err := e.startScript(s); err != nil {
			e.logger.Error("start script", "id", s.ID, "err", err)
		}
	}
	e.logger.Info("scripting engine started", "scripts", e.Running())
}

// Stop cancels all VMs and unsubscribes from indications.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, vm := range e.vms {
		vm.cancel()
		delete(e.vms, id)
	}
	if e.unsub != nil {
		e.unsub()
		e.unsub = nil
	}
	e.logger.Info("scripting engine stopped")
}

// Running returns the number of running scripts.
func (e *Engine) Running() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.vms)
}

// ReloadScript stops the old VM (if any) and starts a new one.
func (e *Engine) ReloadScript(id string) error {
	e.stopScript(id)

	s, err := e.manager.Get(id)
	if err != nil {
		return fmt.Errorf("get script: %w", err)
	}
	if !s.Meta.Enabled {
		return nil
	}
	return e.startScript(s)
}

// StopScript stops a running script VM.
func (e *Engine) StopScript(id string) {
	e.stopScript(id)
}

// RunScript executes a stored script once in a temporary VM.
func (e *Engine) RunScript(id string) *RunResult {
	s, err := e.manager.Get(id)
	if err != nil {
		return &RunResult{OK: false, Error: "script not found: " + err.Error(), Duration: "0s"}
	}
	return e.RunLuaCode(s.LuaCode)
}

// RunLuaCode executes code in a temporary sandboxed VM. Handlers the code
// registers are invoked once with a synthetic indication built from their
// filters and value=true. Log output is captured in the result.
func (e *Engine) RunLuaCode(code string) *RunResult {
	start := time.Now()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	L := newSandbox()
	defer L.Close()
	L.SetContext(ctx)

	var (
		logs  []string
		logMu sync.Mutex
	)
	vm := &scriptVM{
		id:       "run",
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
		onLog: func(msg string) {
			logMu.Lock()
			logs = append(logs, msg)
			logMu.Unlock()
		},
	}
	registerGadgetModule(L, vm, e)

	fail := func(err error) *RunResult {
		msg := err.Error()
		if strings.Contains(msg, "context deadline exceeded") {
			msg = "timeout (5s)"
		}
		e.logger.Warn("run: script error", "err", msg)
		return &RunResult{OK: false, Error: msg, Logs: logs, Duration: time.Since(start).String()}
	}

	if err := L.DoString(code); err != nil {
		return fail(err)
	}

	vm.mu.Lock()
	handlers := append([]luaEventHandler(nil), vm.handlers...)
	vm.mu.Unlock()

	for _, h := range handlers {
		ev := L.NewTable()
		ev.RawSetString("type", lua.LString(h.indication))
		if h.permAddr != "" {
			ev.RawSetString("permAddr", lua.LString(h.permAddr))
		}
		if h.auxID != "" {
			ev.RawSetString("auxId", lua.LString(h.auxID))
		}
		if h.gadType != "" {
			ev.RawSetString("gadType", lua.LString(h.gadType))
		}
		ev.RawSetString("value", lua.LTrue)

		if err := L.CallByParam(lua.P{Fn: h.fn, NRet: 0, Protect: true}, ev); err != nil {
			return fail(err)
		}
	}

	dur := time.Since(start)
	e.logger.Info("run complete", "handlers", len(handlers), "logs", len(logs), "duration", dur)
	return &RunResult{OK: true, Logs: logs, Duration: dur.String()}
}

// newSandbox creates a Lua state without filesystem, process or module
// loading access.
func newSandbox() *lua.LState {
	L := lua.NewState(lua.Options{SkipOpenLibs: false})
	for _, name := range []string{"os", "io", "loadfile", "dofile", "require", "load", "debug", "package"} {
		L.SetGlobal(name, lua.LNil)
	}
	return L
}

func (e *Engine) stopScript(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if vm, ok := e.vms[id]; ok {
		vm.cancel()
		delete(e.vms, id)
		e.logger.Info("script stopped", "id", id)
	}
}

func (e *Engine) startScript(s *Script) error {
	ctx, cancel := context.WithCancel(context.Background())
	L := newSandbox()

	logger := e.logger.With("script", s.ID)
	vm := &scriptVM{
		id:       s.ID,
		commands: make(chan func(*lua.LState), 64),
		ctx:      ctx,
		cancel:   cancel,
		onLog:    func(msg string) { logger.Info("script log", "msg", msg) },
	}
	registerGadgetModule(L, vm, e)

	// Top-level code registers handlers.
	if err := L.DoString(s.LuaCode); err != nil {
		cancel()
		L.Close()
		return fmt.Errorf("execute script %s: %w", s.ID, err)
	}

	e.mu.Lock()
	if old, ok := e.vms[s.ID]; ok {
		old.cancel()
	}
	e.vms[s.ID] = vm
	e.mu.Unlock()

	go func() {
		defer L.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case fn := <-vm.commands:
				fn(L)
			}
		}
	}()

	e.logger.Info("script started", "id", s.ID, "name", s.Meta.Name)
	return nil
}

// dispatchEvent routes an indication to all matching Lua handlers.
func (e *Engine) dispatchEvent(event coordinator.Event) {
	e.mu.Lock()
	vms := make([]*scriptVM, 0, len(e.vms))
	for _, vm := range e.vms {
		vms = append(vms, vm)
	}
	e.mu.Unlock()

	fields := eventFields(event)
	for _, vm := range vms {
		vm.mu.Lock()
		handlers := append([]luaEventHandler(nil), vm.handlers...)
		vm.mu.Unlock()

		for _, h := range handlers {
			if !matchesHandler(h, event.Type, fields) {
				continue
			}
			fn := h.fn
			if vm.ctx.Err() != nil {
				break
			}
			select {
			case vm.commands <- func(L *lua.LState) { e.callHandler(L, vm.id, fn, event.Type, fields) }:
			default:
				e.logger.Warn("script command channel full, dropping event", "script", vm.id, "ind", event.Type)
			}
		}
	}
}

// eventFields flattens an indication payload into the fields scripts see.
func eventFields(event coordinator.Event) map[string]any {
	f := make(map[string]any)
	switch d := event.Data.(type) {
	case coordinator.AttrsChangeData:
		f["permAddr"] = d.PermAddr
		f["auxId"] = d.Gad.AuxID
		f["gadType"] = string(d.Gad.Type)
		f["value"] = d.Gad.Value
	case coordinator.DevStatusData:
		f["permAddr"] = d.PermAddr
		f["status"] = d.Status
	case coordinator.DevIncomingData:
		f["permAddr"] = d.Dev.PermAddr
		f["status"] = d.Dev.Status
		f["gads"] = recordGadgets(d.Dev)
	case coordinator.PermitJoiningData:
		f["timeLeft"] = d.TimeLeft
	case coordinator.ErrorData:
		f["msg"] = d.Msg
	}
	return f
}

func recordGadgets(rec coordinator.DeviceRecord) map[string]any {
	gads := make(map[string]any, len(rec.Gads))
	for auxID, g := range rec.Gads {
		gads[auxID] = map[string]any{"type": string(g.Type), "value": g.Value}
	}
	return gads
}

func matchesHandler(h luaEventHandler, indication string, fields map[string]any) bool {
	if h.indication != indication {
		return false
	}
	if h.permAddr != "" {
		if v, _ := fields["permAddr"].(string); v != h.permAddr {
			return false
		}
	}
	if h.auxID != "" {
		if v, _ := fields["auxId"].(string); v != h.auxID {
			return false
		}
	}
	if h.gadType != "" {
		if v, _ := fields["gadType"].(string); v != h.gadType {
			return false
		}
	}
	return true
}

func (e *Engine) callHandler(L *lua.LState, id string, fn *lua.LFunction, indication string, fields map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("lua handler panic", "script", id, "err", r)
		}
	}()

	ev := L.NewTable()
	ev.RawSetString("type", lua.LString(indication))
	for k, v := range fields {
		ev.RawSetString(k, goToLua(L, v))
	}

	if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, ev); err != nil {
		e.logger.Error("lua handler error", "script", id, "err", err)
	}
}

// goToLua converts a Go value to a Lua value.
func goToLua(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case string:
		return lua.LString(val)
	case int:
		return lua.LNumber(val)
	case int8:
		return lua.LNumber(val)
	case int16:
		return lua.LNumber(val)
	case int32:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case uint8:
		return lua.LNumber(val)
	case uint16:
		return lua.LNumber(val)
	case uint32:
		return lua.LNumber(val)
	case uint64:
		return lua.LNumber(val)
	case float32:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case map[string]any:
		t := L.NewTable()
		for k, vv := range val {
			t.RawSetString(k, goToLua(L, vv))
		}
		return t
	case []any:
		t := L.NewTable()
		for i, vv := range val {
			t.RawSetInt(i+1, goToLua(L, vv))
		}
		return t
	default:
		return lua.LString(fmt.Sprintf("%v", val))
	}
}
