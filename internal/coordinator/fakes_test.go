package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"zigbee-gadgets/internal/automation"
	"zigbee-gadgets/internal/ncp"
	"zigbee-gadgets/internal/store"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeEndpoint struct {
	addr    string
	id      int
	devType int
	dump    ncp.Dump

	mu         sync.Mutex
	invokes    []string
	reports    []string
	invokeErr  error
	reportErrs map[string]error
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

func (e *fakeEndpoint) Report(ctx context.Context, cluster string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reports = append(e.reports, cluster)
	return e.reportErrs[cluster]
}

func (e *fakeEndpoint) Invokes() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.invokes...)
}

func (e *fakeEndpoint) Reports() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.reports...)
}

type fakeNetwork struct {
	mu        sync.Mutex
	devices   []ncp.DeviceInfo
	endpoints map[string]*fakeEndpoint
	listErr   error
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

func (n *fakeNetwork) add(ep *fakeEndpoint) *fakeEndpoint {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.endpoints[fmt.Sprintf("%s/%d", ep.addr, ep.id)] = ep
	return ep
}

func (n *fakeNetwork) Start(ctx context.Context) error { return nil }

func (n *fakeNetwork) ListDevices(ctx context.Context) ([]ncp.DeviceInfo, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.devices, n.listErr
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

func (n *fakeNetwork) Events() <-chan ncp.Event { return n.events }

func (n *fakeNetwork) Close() error {
	n.closeOnce.Do(func() { close(n.events) })
	return nil
}

// recorder collects emitted indications.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) handle(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) ofType(typ string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	coord *Coordinator
	net   *fakeNetwork
	store *store.BoltStore
	rec   *recorder
}

func newHarness(t *testing.T, rules ...automation.Rule) *harness {
	t.Helper()
	st, err := store.NewBoltStore(filepath.Join(t.TempDir(), "test.db"), 100)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { st.Close() })

	net := newFakeNetwork()
	bus := NewEventBus(newTestLogger())
	rec := &recorder{}
	bus.OnAll(rec.handle)

	c, err := New(net, st, bus, Config{Automation: automation.Config{Rules: rules}}, newTestLogger())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Stop)
	return &harness{coord: c, net: net, store: st, rec: rec}
}

func (h *harness) incoming(eps ...*fakeEndpoint) {
	list := make([]ncp.Endpoint, len(eps))
	for i, ep := range eps {
		h.net.add(ep)
		list[i] = ep
	}
	h.coord.HandleEvent(ncp.Event{Kind: ncp.EventInd, Ind: ncp.IndDevIncoming, Address: eps[0].addr, Endpoints: list})
}

func (h *harness) change(ep *fakeEndpoint, cluster string, attrs map[string]any) {
	h.coord.HandleEvent(ncp.Event{
		Kind:      ncp.EventInd,
		Ind:       ncp.IndDevChange,
		Address:   ep.addr,
		Endpoints: []ncp.Endpoint{ep},
		Change:    ncp.Change{Cluster: cluster, Attrs: attrs},
	})
}

var errFake = errors.New("fake failure")
