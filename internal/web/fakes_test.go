package web

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"zigbee-gadgets/internal/coordinator"
	"zigbee-gadgets/internal/ncp"
	"zigbee-gadgets/internal/store"
	"zigbee-gadgets/internal/zcl"
)

const (
	lightAddr = "0x00137a000001dab8"
	tempAddr  = "0x000d6f000bb5508e"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeEndpoint struct {
	addr    string
	id      int
	devType int
	dump    ncp.Dump

	mu        sync.Mutex
	invokes   []string
	invokeErr error
}

func (e *fakeEndpoint) Address() string { return e.addr }
func (e *fakeEndpoint) ID() int         { return e.id }
func (e *fakeEndpoint) DeviceType() int { return e.devType }
func (e *fakeEndpoint) Dump() ncp.Dump  { return e.dump }

func (e *fakeEndpoint) Invoke(ctx context.Context, cluster, command string, payload []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.invokes = append(e.invokes, cluster+"/"+command)
	return e.invokeErr
}

func (e *fakeEndpoint) Report(ctx context.Context, cluster string) error { return nil }

func (e *fakeEndpoint) Invokes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.invokes...)
}

type fakeNetwork struct {
	mu        sync.Mutex
	endpoints map[string]*fakeEndpoint
	permits   []int
	events    chan ncp.Event
	closeOnce sync.Once
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		endpoints: make(map[string]*fakeEndpoint),
		events:    make(chan ncp.Event, 16),
	}
}

func (n *fakeNetwork) Start(ctx context.Context) error { return nil }

func (n *fakeNetwork) ListDevices(ctx context.Context) ([]ncp.DeviceInfo, error) {
	return nil, nil
}

func (n *fakeNetwork) FindEndpoint(addr string, epID int) (ncp.Endpoint, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ep, ok := n.endpoints[fmt.Sprintf("%s/%d", addr, epID)]
	if !ok {
		return nil, false
	}
	return ep, true
}

func (n *fakeNetwork) PermitJoin(ctx context.Context, seconds int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.permits = append(n.permits, seconds)
	return nil
}

func (n *fakeNetwork) Permits() []int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]int(nil), n.permits...)
}

func (n *fakeNetwork) Events() <-chan ncp.Event { return n.events }

func (n *fakeNetwork) Close() error {
	n.closeOnce.Do(func() { close(n.events) })
	return nil
}

type testEnv struct {
	srv   *Server
	coord *coordinator.Coordinator
	net   *fakeNetwork
	light *fakeEndpoint
}

// setupTestServer builds a server over a real coordinator with one joined
// light and one joined temperature sensor.
func setupTestServer(t *testing.T, opts ...ServerOption) *testEnv {
	t.Helper()
	logger := newTestLogger()

	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"), 100)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	net := newFakeNetwork()
	coord, err := coordinator.New(net, st, coordinator.NewEventBus(logger), coordinator.Config{}, logger)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(coord.Stop)

	light := &fakeEndpoint{addr: lightAddr, id: 1, devType: 256, dump: ncp.Dump{
		"genOnOff": {"onOff": uint64(0)},
	}}
	temp := &fakeEndpoint{addr: tempAddr, id: 1, devType: 770, dump: ncp.Dump{
		"msTemperatureMeasurement": {"measuredValue": int64(2350)},
	}}
	for _, ep := range []*fakeEndpoint{light, temp} {
		net.endpoints[fmt.Sprintf("%s/%d", ep.addr, ep.id)] = ep
		coord.HandleEvent(ncp.Event{
			Kind:      ncp.EventInd,
			Ind:       ncp.IndDevIncoming,
			Address:   ep.addr,
			Endpoints: []ncp.Endpoint{ep},
		})
	}

	opts = append([]ServerOption{WithRegistry(zcl.NewDefaultRegistry(logger)), WithVersion("test")}, opts...)
	srv := NewServer(coord, logger, opts...)
	t.Cleanup(srv.Stop)

	return &testEnv{srv: srv, coord: coord, net: net, light: light}
}
