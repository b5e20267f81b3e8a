//go:build !no_scripting

package scripting

import (
	"context"
	"time"

	"zigbee-gadgets/internal/store"

	lua "github.com/yuin/gopher-lua"
)

// registerGadgetModule registers the `gadget` global table in a Lua state.
func registerGadgetModule(L *lua.LState, vm *scriptVM, e *Engine) {
	mod := L.NewTable()

	mod.RawSetString("on", L.NewFunction(func(L *lua.LState) int {
		return gadgetOn(L, vm)
	}))
	mod.RawSetString("set_on_off", L.NewFunction(func(L *lua.LState) int {
		return gadgetSetOnOff(L, vm, e)
	}))
	mod.RawSetString("get", L.NewFunction(func(L *lua.LState) int {
		return gadgetGet(L, e)
	}))
	mod.RawSetString("devices", L.NewFunction(func(L *lua.LState) int {
		return gadgetDevices(L, e)
	}))
	mod.RawSetString("after", L.NewFunction(func(L *lua.LState) int {
		return gadgetAfter(L, vm, e)
	}))
	mod.RawSetString("log", L.NewFunction(func(L *lua.LState) int {
		vm.onLog(L.CheckString(1))
		return 0
	}))

	L.SetGlobal("gadget", mod)
}

const maxHandlersPerScript = 100

// gadget.on(indication, filter, callback)
// filter keys: permAddr, auxId, gadType.
func gadgetOn(L *lua.LState, vm *scriptVM) int {
	h := luaEventHandler{indication: L.CheckString(1)}
	filter := L.CheckTable(2)
	h.fn = L.CheckFunction(3)

	if v := filter.RawGetString("permAddr"); v != lua.LNil {
		h.permAddr = v.String()
	}
	if v := filter.RawGetString("auxId"); v != lua.LNil {
		h.auxID = v.String()
	}
	if v := filter.RawGetString("gadType"); v != lua.LNil {
		h.gadType = v.String()
	}

	vm.mu.Lock()
	if len(vm.handlers) >= maxHandlersPerScript {
		vm.mu.Unlock()
		L.RaiseError("too many handlers (max %d)", maxHandlersPerScript)
		return 0
	}
	vm.handlers = append(vm.handlers, h)
	vm.mu.Unlock()
	return 0
}

// gadget.set_on_off(permAddr, epId, on) -> ok, err
func gadgetSetOnOff(L *lua.LState, vm *scriptVM, e *Engine) int {
	addr := L.CheckString(1)
	ep := L.CheckInt(2)
	on := lua.LVAsBool(L.Get(3))

	ctx, cancel := context.WithTimeout(vm.ctx, commandTimeout)
	defer cancel()

	if err := e.gw.SetOnOff(ctx, addr, ep, on, store.SourceScript); err != nil {
		e.logger.Warn("script command failed", "script", vm.id, "permAddr", addr, "ep", ep, "on", on, "err", err)
		L.Push(lua.LFalse)
		L.Push(lua.LString(err.Error()))
		return 2
	}
	L.Push(lua.LTrue)
	return 1
}

// gadget.get(permAddr, auxId) -> value or nil
func gadgetGet(L *lua.LState, e *Engine) int {
	v, ok := e.gw.Value(L.CheckString(1), L.CheckString(2))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(goToLua(L, v))
	return 1
}

// gadget.devices() -> { [permAddr] = { status = ..., gads = { [auxId] = {type, value} } } }
func gadgetDevices(L *lua.LState, e *Engine) int {
	tbl := L.NewTable()
	for addr, rec := range e.gw.GetDevices() {
		d := L.NewTable()
		d.RawSetString("status", lua.LString(rec.Status))
		d.RawSetString("gads", goToLua(L, recordGadgets(rec)))
		tbl.RawSetString(addr, d)
	}
	L.Push(tbl)
	return 1
}

// gadget.after(seconds, callback)
func gadgetAfter(L *lua.LState, vm *scriptVM, e *Engine) int {
	seconds := L.CheckNumber(1)
	fn := L.CheckFunction(2)

	go func() {
		timer := time.NewTimer(time.Duration(float64(seconds) * float64(time.Second)))
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-vm.ctx.Done():
			return
		}

		select {
		case vm.commands <- func(L *lua.LState) {
			if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
				e.logger.Error("after callback error", "script", vm.id, "err", err)
			}
		}:
		default:
			e.logger.Warn("after: command channel full", "script", vm.id)
		}
	}()
	return 0
}
