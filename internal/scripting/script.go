// Package scripting runs user Lua scripts that react to gadget indications
// and drive on/off gadgets.
package scripting

import (
	"context"

	"zigbee-gadgets/internal/coordinator"
)

// ScriptMeta holds user-editable metadata for a script.
type ScriptMeta struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
}

// Script represents a single script stored on disk.
type Script struct {
	ID       string     `json:"id"` // filename stem (no .lua)
	Meta     ScriptMeta `json:"meta"`
	LuaCode  string     `json:"lua_code"`
	FilePath string     `json:"-"`
}

// RunResult is the result of a one-shot script execution.
type RunResult struct {
	OK       bool     `json:"ok"`
	Error    string   `json:"error,omitempty"`
	Logs     []string `json:"logs"`
	Duration string   `json:"duration"`
}

// Gateway is what scripts can see and do. *coordinator.Coordinator
// satisfies it.
type Gateway interface {
	Events() *coordinator.EventBus
	GetDevices() map[string]coordinator.DeviceRecord
	Value(addr, auxID string) (any, bool)
	SetOnOff(ctx context.Context, addr string, ep int, on bool, source string) error
}
