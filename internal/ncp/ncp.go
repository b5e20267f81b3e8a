// Package ncp is the boundary to the Zigbee network stack. The stack runs on
// the adapter; the gateway sees devices, endpoints and a serial event stream.
package ncp

import "context"

// Network is the capability the gateway consumes from the network stack.
type Network interface {
	// Start brings the network up. A ready event follows once it is usable.
	Start(ctx context.Context) error
	ListDevices(ctx context.Context) ([]DeviceInfo, error)
	FindEndpoint(addr string, epID int) (Endpoint, bool)
	PermitJoin(ctx context.Context, seconds int) error
	// Events delivers network events one at a time. The channel is closed
	// when the network shuts down.
	Events() <-chan Event
	Close() error
}

// Endpoint is one application endpoint of a joined device.
type Endpoint interface {
	Address() string
	ID() int
	// DeviceType is the HA profile device id of the endpoint.
	DeviceType() int
	// Dump returns the last known attribute values, cluster -> attribute -> value.
	Dump() Dump
	// Invoke sends a cluster-specific command, e.g. ("genOnOff", "on", nil).
	Invoke(ctx context.Context, cluster, command string, payload []byte) error
	// Report configures attribute reporting for every reportable attribute of cluster.
	Report(ctx context.Context, cluster string) error
}

// Dump maps cluster name -> attribute name -> decoded value.
type Dump map[string]map[string]any

// Clusters returns the set of cluster names present in the dump.
func (d Dump) Clusters() map[string]bool {
	out := make(map[string]bool, len(d))
	for cid := range d {
		out[cid] = true
	}
	return out
}

func (d Dump) clone() Dump {
	out := make(Dump, len(d))
	for cid, attrs := range d {
		cp := make(map[string]any, len(attrs))
		for k, v := range attrs {
			cp[k] = v
		}
		out[cid] = cp
	}
	return out
}

// Device status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// DeviceInfo describes a device known to the network stack.
type DeviceInfo struct {
	Address   string `json:"ieeeAddr"`
	NwkAddr   uint16 `json:"nwkAddr"`
	Status    string `json:"status"`
	Endpoints []int  `json:"epList"`
}

// EventKind classifies network events.
type EventKind string

const (
	EventReady         EventKind = "ready"
	EventPermitJoining EventKind = "permitJoining"
	EventError         EventKind = "error"
	EventInd           EventKind = "ind"
)

// IndType is the sub-kind of an EventInd.
type IndType string

const (
	IndDevIncoming IndType = "devIncoming"
	IndDevLeaving  IndType = "devLeaving"
	IndDevStatus   IndType = "devStatus"
	IndDevChange   IndType = "devChange"
)

// Change carries the attributes reported for one cluster.
type Change struct {
	Cluster string
	Attrs   map[string]any
}

// Event is a single message from the network stack.
type Event struct {
	Kind     EventKind
	TimeLeft int    // EventPermitJoining
	Message  string // EventError

	Ind       IndType
	Address   string
	Endpoints []Endpoint // devIncoming: all endpoints; devChange: the reporting one
	Status    string     // devStatus
	Change    Change     // devChange
}
