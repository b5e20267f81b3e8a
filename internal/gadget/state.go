package gadget

import (
	"reflect"
	"sync"
)

// Key addresses one gadget instance on one device.
type Key struct {
	Address string
	AuxID   string
}

// StateStore holds the last observed value of every gadget.
//
// Writes are expected from a single event stream; reads may come from any
// goroutine and always observe a whole value.
type StateStore struct {
	mu     sync.RWMutex
	values map[Key]any
}

// NewStateStore creates an empty store.
func NewStateStore() *StateStore {
	return &StateStore{values: make(map[Key]any)}
}

// Get returns the last stored value for k.
func (s *StateStore) Get(k Key) (any, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[k]
	return v, ok
}

// Update stores v and reports whether it differs from the previous value.
// The first value stored for a key always counts as a change.
func (s *StateStore) Update(k Key, v any) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.values[k]
	s.values[k] = v
	return !ok || !Equal(prev, v)
}

// Len returns the number of tracked gadgets.
func (s *StateStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.values)
}

// Equal compares gadget values: numbers by numeric value regardless of
// their Go type, booleans by identity, anything else structurally.
func Equal(a, b any) bool {
	if fa, ok := toFloat64(a); ok {
		fb, ok := toFloat64(b)
		return ok && fa == fb
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	return reflect.DeepEqual(a, b)
}
