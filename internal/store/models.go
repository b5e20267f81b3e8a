package store

import "time"

// Device is the catalog entry of a device seen on the network.
type Device struct {
	IEEEAddress string     `json:"ieee_address"`
	NwkAddr     uint16     `json:"nwk_addr"`
	Status      string     `json:"status"`
	Endpoints   []Endpoint `json:"endpoints,omitempty"`
	JoinedAt    time.Time  `json:"joined_at"`
	LastSeen    time.Time  `json:"last_seen"`
}

// Endpoint records how an endpoint was classified.
type Endpoint struct {
	ID         int      `json:"id"`
	DeviceType int      `json:"device_type"`
	Clusters   []string `json:"clusters,omitempty"`
	Gadgets    []string `json:"gadgets,omitempty"`
}

// Command sources.
const (
	SourceUser       = "user"
	SourceAutomation = "automation"
	SourceScript     = "script"
)

// CommandEntry is one on/off command sent to the network.
type CommandEntry struct {
	Seq      uint64    `json:"seq"`
	Time     time.Time `json:"time"`
	Address  string    `json:"address"`
	Endpoint int       `json:"endpoint"`
	Cluster  string    `json:"cluster"`
	Command  string    `json:"command"`
	Source   string    `json:"source"`
	Error    string    `json:"error,omitempty"`
}
