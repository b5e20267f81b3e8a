package coordinator

import (
	"sync"

	"zigbee-gadgets/internal/gadget"
)

// DeviceRecord is the UI view of a device: its status and its gadgets keyed
// by auxId.
type DeviceRecord struct {
	PermAddr string                   `json:"permAddr"`
	Status   string                   `json:"status"`
	Gads     map[string]gadget.Record `json:"gads"`
}

func (r DeviceRecord) clone() DeviceRecord {
	gads := make(map[string]gadget.Record, len(r.Gads))
	for k, g := range r.Gads {
		gads[k] = g
	}
	r.Gads = gads
	return r
}

// DeviceRegistry holds the device records served to the UI. Records of
// devices that left stay with status offline and their last values.
type DeviceRegistry struct {
	mu      sync.RWMutex
	devices map[string]DeviceRecord
}

// NewDeviceRegistry creates an empty registry.
func NewDeviceRegistry() *DeviceRegistry {
	return &DeviceRegistry{devices: make(map[string]DeviceRecord)}
}

// Put replaces the record of rec.PermAddr.
func (r *DeviceRegistry) Put(rec DeviceRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.devices[rec.PermAddr] = rec.clone()
}

// Get returns a copy of the record for addr.
func (r *DeviceRegistry) Get(addr string) (DeviceRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.devices[addr]
	if !ok {
		return DeviceRecord{}, false
	}
	return rec.clone(), true
}

// SetStatus updates the status of a known device. It reports whether the
// device was known.
func (r *DeviceRegistry) SetStatus(addr, status string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.devices[addr]
	if !ok {
		return false
	}
	rec.Status = status
	r.devices[addr] = rec
	return true
}

// SetGadget stores g on the device at addr, creating the record if needed.
func (r *DeviceRegistry) SetGadget(addr, status string, g gadget.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.devices[addr]
	if !ok {
		rec = DeviceRecord{PermAddr: addr, Status: status, Gads: make(map[string]gadget.Record)}
	}
	rec.Gads[g.AuxID] = g
	r.devices[addr] = rec
}

// All returns a snapshot of every record keyed by address.
func (r *DeviceRegistry) All() map[string]DeviceRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]DeviceRecord, len(r.devices))
	for addr, rec := range r.devices {
		out[addr] = rec.clone()
	}
	return out
}

// Len returns the number of records.
func (r *DeviceRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
