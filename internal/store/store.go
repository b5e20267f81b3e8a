// Package store persists the device catalog and the command journal.
// Gadget values are not persisted; they are rebuilt from the network after
// a restart.
package store

import "errors"

// ErrNotFound is returned when a requested entity does not exist in the store.
var ErrNotFound = errors.New("store: not found")

// Store defines the persistence interface.
type Store interface {
	SaveDevice(dev *Device) error
	GetDevice(ieee string) (*Device, error)
	ListDevices() ([]*Device, error)

	// UpdateDevice atomically reads, modifies, and saves a device in a single
	// transaction. Returns ErrNotFound if the device does not exist.
	UpdateDevice(ieee string, fn func(dev *Device) error) error

	// AppendCommand records a command in the journal and assigns its Seq.
	AppendCommand(entry *CommandEntry) error
	// RecentCommands returns up to n journal entries, newest first.
	RecentCommands(n int) ([]CommandEntry, error)

	Close() error
}
