//go:build no_scripting

package scripting

import (
	"errors"
	"log/slog"
)

// ErrInvalidID is returned for script ids that are not safe filename stems.
var ErrInvalidID = errors.New("scripting: invalid script id")

// Manager is a no-op stub when scripting is disabled.
type Manager struct{}

// NewManager returns a nil manager when scripting is disabled.
func NewManager(_ string, _ *slog.Logger) (*Manager, error) { return nil, nil }

// List returns nil.
func (m *Manager) List() ([]*Script, error) { return nil, nil }

// Get returns nil.
func (m *Manager) Get(_ string) (*Script, error) { return nil, nil }

// Save returns the script unchanged.
func (m *Manager) Save(s *Script) (*Script, error) { return s, nil }

// Delete is a no-op.
func (m *Manager) Delete(_ string) error { return nil }

// Engine is a no-op stub when scripting is disabled.
type Engine struct{}

// NewEngine returns a no-op engine when scripting is disabled.
func NewEngine(_ Gateway, _ *Manager, _ *slog.Logger) *Engine { return &Engine{} }

// Start is a no-op.
func (e *Engine) Start() {}

// Stop is a no-op.
func (e *Engine) Stop() {}

// Running returns 0.
func (e *Engine) Running() int { return 0 }

// ReloadScript is a no-op.
func (e *Engine) ReloadScript(_ string) error { return nil }

// StopScript is a no-op.
func (e *Engine) StopScript(_ string) {}

// RunScript returns a stub result.
func (e *Engine) RunScript(_ string) *RunResult {
	return &RunResult{OK: false, Error: "scripting disabled"}
}

// RunLuaCode returns a stub result.
func (e *Engine) RunLuaCode(_ string) *RunResult {
	return &RunResult{OK: false, Error: "scripting disabled"}
}
