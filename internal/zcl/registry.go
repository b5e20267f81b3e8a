package zcl

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds the known cluster definitions, indexed by id and by name.
type Registry struct {
	mu     sync.RWMutex
	byID   map[uint16]*ClusterDef
	byName map[string]*ClusterDef
	logger *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		byID:   make(map[uint16]*ClusterDef),
		byName: make(map[string]*ClusterDef),
		logger: logger,
	}
}

// NewDefaultRegistry creates a registry preloaded with Builtin clusters.
func NewDefaultRegistry(logger *slog.Logger) *Registry {
	r := NewRegistry(logger)
	for _, c := range Builtin() {
		r.Register(c)
	}
	return r
}

// Register adds a cluster definition, replacing any previous definition
// with the same id.
func (r *Registry) Register(c ClusterDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byID[c.ID]; ok {
		delete(r.byName, old.Name)
	}
	clone := c.clone()
	r.byID[c.ID] = clone
	r.byName[c.Name] = clone
	r.logger.Debug("cluster registered", "id", fmt.Sprintf("0x%04X", c.ID), "name", c.Name)
}

// Get returns a copy of the cluster with the given id, or nil.
func (r *Registry) Get(id uint16) *ClusterDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c := r.byID[id]; c != nil {
		return c.clone()
	}
	return nil
}

// Lookup returns a copy of the cluster with the given name, or nil.
func (r *Registry) Lookup(name string) *ClusterDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c := r.byName[name]; c != nil {
		return c.clone()
	}
	return nil
}

// ClusterName returns the name for id, or its hex form when unknown.
func (r *Registry) ClusterName(id uint16) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c := r.byID[id]; c != nil {
		return c.Name
	}
	return fmt.Sprintf("0x%04X", id)
}

// Attribute returns the definition of attribute attrID in cluster clusterID.
func (r *Registry) Attribute(clusterID, attrID uint16) (AttributeDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c := r.byID[clusterID]
	if c == nil {
		return AttributeDef{}, false
	}
	if a := c.FindAttribute(attrID); a != nil {
		return *a, true
	}
	return AttributeDef{}, false
}

// All returns copies of every registered cluster ordered by id.
func (r *Registry) All() []ClusterDef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ClusterDef, 0, len(r.byID))
	for _, c := range r.byID {
		out = append(out, *c.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
