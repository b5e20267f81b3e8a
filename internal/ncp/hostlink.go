package ncp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"zigbee-gadgets/internal/zcl"
)

// Options tunes a HostLink. Zero values select the defaults.
type Options struct {
	RequestTimeout    time.Duration
	ReportMinInterval uint16
	ReportMaxInterval uint16
}

const (
	defaultRequestTimeout = 5 * time.Second
	defaultReportMin      = 1
	defaultReportMax      = 300
	maxFrameSize          = 64 * 1024
)

// Host link frames are single-line JSON objects. Requests carry a sequence
// number echoed by the matching response; frames with "evt" set are
// unsolicited indications. Attribute lists travel as hex-encoded ZCL
// attribute records so values keep their ZCL data types.
type request struct {
	Seq  uint32 `json:"seq"`
	Op   string `json:"op"`
	Args any    `json:"args,omitempty"`
}

type frame struct {
	Seq    uint32          `json:"seq,omitempty"`
	Evt    string          `json:"evt,omitempty"`
	Status uint8           `json:"status,omitempty"`
	Error  string          `json:"error,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

type wireDevice struct {
	IEEEAddr  string         `json:"ieeeAddr"`
	NwkAddr   uint16         `json:"nwkAddr"`
	Status    string         `json:"status"`
	Endpoints []wireEndpoint `json:"endpoints"`
}

type wireEndpoint struct {
	EpID     int           `json:"epId"`
	DevID    int           `json:"devId"`
	Clusters []wireCluster `json:"clusters"`
}

// wireCluster carries read attributes response records (id, status, type, value).
type wireCluster struct {
	CID   uint16 `json:"cid"`
	Attrs string `json:"attrs"`
}

type wireInd struct {
	IEEEAddr string      `json:"ieeeAddr,omitempty"`
	Status   string      `json:"status,omitempty"`
	TimeLeft int         `json:"timeLeft,omitempty"`
	Msg      string      `json:"msg,omitempty"`
	Device   *wireDevice `json:"device,omitempty"`
	EpID     int         `json:"epId,omitempty"`
	CID      uint16      `json:"cid,omitempty"`
	Attrs    string      `json:"attrs,omitempty"` // report records (id, type, value)
	CmdID    uint8       `json:"cmdId,omitempty"`
	Payload  string      `json:"payload,omitempty"`
}

type commandArgs struct {
	IEEEAddr string `json:"ieeeAddr"`
	EpID     int    `json:"epId"`
	CID      uint16 `json:"cid"`
	CmdID    uint8  `json:"cmdId"`
	Payload  string `json:"payload,omitempty"`
}

type reportAttr struct {
	ID   uint16 `json:"id"`
	Type uint8  `json:"type"`
	Min  uint16 `json:"min"`
	Max  uint16 `json:"max"`
}

type reportArgs struct {
	IEEEAddr string       `json:"ieeeAddr"`
	EpID     int          `json:"epId"`
	CID      uint16       `json:"cid"`
	Attrs    []reportAttr `json:"attrs"`
}

// HostLink implements Network over a line-oriented JSON link to an adapter
// that runs the Zigbee stack. It keeps a cache of devices and their last
// reported attribute values.
type HostLink struct {
	rwc    io.ReadWriteCloser
	reg    *zcl.Registry
	logger *slog.Logger
	opts   Options

	writeMu sync.Mutex
	seq     atomic.Uint32
	pendMu  sync.Mutex
	pending map[uint32]chan frame

	devMu   sync.RWMutex
	devices map[string]*linkDevice

	// The reader queues indications without bound so it never stalls
	// behind a slow consumer while responses are still pending.
	qMu      sync.Mutex
	queue    []Event
	queued   chan struct{}
	readDone chan struct{}

	events    chan Event
	done      chan struct{}
	quit      chan struct{}
	closeOnce sync.Once
	quitOnce  sync.Once
	startOnce sync.Once
	wg        sync.WaitGroup
}

var _ Network = (*HostLink)(nil)

type linkDevice struct {
	info DeviceInfo
	eps  map[int]*linkEndpoint
}

// NewHostLink wraps rwc. Reading starts with Start.
func NewHostLink(rwc io.ReadWriteCloser, reg *zcl.Registry, logger *slog.Logger, opts Options) *HostLink {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = defaultRequestTimeout
	}
	if opts.ReportMinInterval == 0 {
		opts.ReportMinInterval = defaultReportMin
	}
	if opts.ReportMaxInterval == 0 {
		opts.ReportMaxInterval = defaultReportMax
	}
	return &HostLink{
		rwc:      rwc,
		reg:      reg,
		logger:   logger,
		opts:     opts,
		pending:  make(map[uint32]chan frame),
		devices:  make(map[string]*linkDevice),
		queued:   make(chan struct{}, 1),
		readDone: make(chan struct{}),
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
		quit:     make(chan struct{}),
	}
}

// Start begins reading frames and asks the adapter to bring the network up.
func (l *HostLink) Start(ctx context.Context) error {
	l.startOnce.Do(func() {
		l.wg.Add(2)
		go l.readLoop()
		go l.deliverLoop()
	})
	return l.request(ctx, "start", nil, nil)
}

// Events returns the event stream.
func (l *HostLink) Events() <-chan Event {
	return l.events
}

// ListDevices fetches the device table from the adapter and refreshes the cache.
func (l *HostLink) ListDevices(ctx context.Context) ([]DeviceInfo, error) {
	var devs []wireDevice
	if err := l.request(ctx, "listDevices", nil, &devs); err != nil {
		return nil, err
	}
	out := make([]DeviceInfo, 0, len(devs))
	for _, wd := range devs {
		dev, _ := l.storeDevice(wd)
		out = append(out, dev.info)
	}
	return out, nil
}

// FindEndpoint returns a cached endpoint.
func (l *HostLink) FindEndpoint(addr string, epID int) (Endpoint, bool) {
	l.devMu.RLock()
	defer l.devMu.RUnlock()
	dev, ok := l.devices[addr]
	if !ok {
		return nil, false
	}
	ep, ok := dev.eps[epID]
	if !ok {
		return nil, false
	}
	return ep, true
}

// PermitJoin opens the network for joining for the given number of seconds.
func (l *HostLink) PermitJoin(ctx context.Context, seconds int) error {
	return l.request(ctx, "permitJoin", map[string]int{"time": seconds}, nil)
}

// Close stops the read loop and closes the underlying stream.
func (l *HostLink) Close() error {
	l.closeOnce.Do(func() { close(l.done) })
	l.quitOnce.Do(func() { close(l.quit) })
	err := l.rwc.Close()
	// If Start never ran, the delivery loop will not close the event channel.
	l.startOnce.Do(func() { close(l.events) })
	l.wg.Wait()
	return err
}

func (l *HostLink) request(ctx context.Context, op string, args any, out any) error {
	select {
	case <-l.done:
		return ErrClosed
	default:
	}

	seq := l.seq.Add(1)
	ch := make(chan frame, 1)
	l.pendMu.Lock()
	l.pending[seq] = ch
	l.pendMu.Unlock()
	defer func() {
		l.pendMu.Lock()
		delete(l.pending, seq)
		l.pendMu.Unlock()
	}()

	b, err := json.Marshal(request{Seq: seq, Op: op, Args: args})
	if err != nil {
		return fmt.Errorf("host link %s: encode: %w", op, err)
	}
	b = append(b, '\n')

	l.writeMu.Lock()
	_, err = l.rwc.Write(b)
	l.writeMu.Unlock()
	if err != nil {
		return fmt.Errorf("host link %s: write: %w", op, err)
	}
	l.logger.Debug("host link TX", "op", op, "seq", seq)

	timer := time.NewTimer(l.opts.RequestTimeout)
	defer timer.Stop()

	select {
	case f := <-ch:
		if f.Status != zcl.StatusSuccess {
			msg := f.Error
			if msg == "" {
				msg = zcl.StatusName(f.Status)
			}
			l.logger.Warn("host link RX", "op", op, "seq", seq, "status", f.Status, "err", msg)
			return fmt.Errorf("%w: %s: %s", ErrRemote, op, msg)
		}
		l.logger.Debug("host link RX", "op", op, "seq", seq)
		if out != nil && len(f.Data) > 0 {
			if err := json.Unmarshal(f.Data, out); err != nil {
				return fmt.Errorf("host link %s: decode response: %w", op, err)
			}
		}
		return nil
	case <-timer.C:
		l.logger.Warn("host link timeout", "op", op, "seq", seq)
		return fmt.Errorf("%w: %s (seq %d)", ErrTimeout, op, seq)
	case <-ctx.Done():
		return ctx.Err()
	case <-l.done:
		return ErrClosed
	}
}

func (l *HostLink) readLoop() {
	defer l.wg.Done()
	defer close(l.readDone)

	sc := bufio.NewScanner(l.rwc)
	sc.Buffer(make([]byte, 4096), maxFrameSize)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var f frame
		if err := json.Unmarshal(line, &f); err != nil {
			l.logger.Warn("host link: bad frame", "err", err, "frame", string(line))
			continue
		}
		if f.Evt != "" {
			l.handleIndication(f)
			continue
		}

		l.pendMu.Lock()
		ch, ok := l.pending[f.Seq]
		l.pendMu.Unlock()
		if !ok {
			l.logger.Warn("host link: orphaned response", "seq", f.Seq, "status", f.Status)
			continue
		}
		select {
		case ch <- f:
		default:
		}
	}

	select {
	case <-l.done:
		return
	default:
	}
	err := sc.Err()
	if err == nil {
		err = io.EOF
	}
	l.logger.Error("host link read failed", "err", err)
	l.emit(Event{Kind: EventError, Message: fmt.Sprintf("host link: %v", err)})
	l.closeOnce.Do(func() { close(l.done) })
}

// emit queues ev for delivery. It never blocks.
func (l *HostLink) emit(ev Event) {
	l.qMu.Lock()
	l.queue = append(l.queue, ev)
	l.qMu.Unlock()
	select {
	case l.queued <- struct{}{}:
	default:
	}
}

func (l *HostLink) dequeue() (Event, bool) {
	l.qMu.Lock()
	defer l.qMu.Unlock()
	if len(l.queue) == 0 {
		return Event{}, false
	}
	ev := l.queue[0]
	l.queue[0] = Event{}
	l.queue = l.queue[1:]
	return ev, true
}

// deliverLoop moves queued events to the event channel in order. After the
// reader stops it flushes what is left, then closes the channel.
func (l *HostLink) deliverLoop() {
	defer l.wg.Done()
	defer close(l.events)

	for {
		ev, ok := l.dequeue()
		if !ok {
			select {
			case <-l.queued:
				continue
			case <-l.readDone:
				l.qMu.Lock()
				empty := len(l.queue) == 0
				l.qMu.Unlock()
				if empty {
					return
				}
				continue
			case <-l.quit:
				return
			}
		}
		select {
		case l.events <- ev:
		case <-l.quit:
			return
		}
	}
}

func (l *HostLink) handleIndication(f frame) {
	var ind wireInd
	if len(f.Data) > 0 {
		if err := json.Unmarshal(f.Data, &ind); err != nil {
			l.logger.Warn("host link: bad indication", "evt", f.Evt, "err", err)
			return
		}
	}

	switch f.Evt {
	case "ready":
		l.emit(Event{Kind: EventReady})
	case "permitJoining":
		l.emit(Event{Kind: EventPermitJoining, TimeLeft: ind.TimeLeft})
	case "error":
		l.emit(Event{Kind: EventError, Message: ind.Msg})
	case "devIncoming":
		if ind.Device == nil {
			l.logger.Warn("host link: devIncoming without device")
			return
		}
		dev, eps := l.storeDevice(*ind.Device)
		l.emit(Event{Kind: EventInd, Ind: IndDevIncoming, Address: dev.info.Address, Status: dev.info.Status, Endpoints: eps})
	case "devLeaving":
		l.setStatus(ind.IEEEAddr, StatusOffline)
		l.emit(Event{Kind: EventInd, Ind: IndDevLeaving, Address: ind.IEEEAddr, Status: StatusOffline})
	case "devStatus":
		l.setStatus(ind.IEEEAddr, ind.Status)
		l.emit(Event{Kind: EventInd, Ind: IndDevStatus, Address: ind.IEEEAddr, Status: ind.Status})
	case "attReport":
		l.applyReport(ind)
	case "clusterCmd":
		l.applyClusterCommand(ind)
	default:
		l.logger.Debug("host link: unhandled indication", "evt", f.Evt)
	}
}

// storeDevice upserts a device into the cache and returns it with its
// endpoints in adapter order.
func (l *HostLink) storeDevice(wd wireDevice) (*linkDevice, []Endpoint) {
	status := wd.Status
	if status == "" {
		status = StatusOnline
	}
	dev := &linkDevice{
		info: DeviceInfo{Address: wd.IEEEAddr, NwkAddr: wd.NwkAddr, Status: status},
		eps:  make(map[int]*linkEndpoint, len(wd.Endpoints)),
	}
	eps := make([]Endpoint, 0, len(wd.Endpoints))
	for _, we := range wd.Endpoints {
		ep := &linkEndpoint{
			link:    l,
			addr:    wd.IEEEAddr,
			id:      we.EpID,
			devType: we.DevID,
			dump:    make(Dump, len(we.Clusters)),
		}
		for _, wc := range we.Clusters {
			ep.dump[l.reg.ClusterName(wc.CID)] = l.decodeAttrs(wd.IEEEAddr, wc.CID, wc.Attrs, true)
		}
		dev.info.Endpoints = append(dev.info.Endpoints, we.EpID)
		dev.eps[we.EpID] = ep
		eps = append(eps, ep)
	}

	l.devMu.Lock()
	l.devices[wd.IEEEAddr] = dev
	l.devMu.Unlock()
	return dev, eps
}

func (l *HostLink) setStatus(addr, status string) {
	l.devMu.Lock()
	defer l.devMu.Unlock()
	if dev, ok := l.devices[addr]; ok {
		dev.info.Status = status
	}
}

func (l *HostLink) endpoint(addr string, epID int) *linkEndpoint {
	l.devMu.RLock()
	defer l.devMu.RUnlock()
	if dev, ok := l.devices[addr]; ok {
		return dev.eps[epID]
	}
	return nil
}

func (l *HostLink) decodeAttrs(addr string, cid uint16, hexAttrs string, withStatus bool) map[string]any {
	raw, err := hex.DecodeString(hexAttrs)
	if err != nil {
		l.logger.Warn("host link: bad attribute hex", "addr", addr, "cluster", l.reg.ClusterName(cid), "err", err)
		return map[string]any{}
	}
	recs, err := parseAttributeRecords(raw, withStatus)
	if err != nil {
		// Keep whatever decoded before the bad record.
		l.logger.Warn("host link: attribute records", "addr", addr, "cluster", l.reg.ClusterName(cid), "err", err)
	}
	return namedAttributes(l.reg, cid, recs)
}

func (l *HostLink) applyReport(ind wireInd) {
	ep := l.endpoint(ind.IEEEAddr, ind.EpID)
	if ep == nil {
		l.logger.Warn("host link: report from unknown endpoint", "addr", ind.IEEEAddr, "ep", ind.EpID)
		return
	}
	attrs := l.decodeAttrs(ind.IEEEAddr, ind.CID, ind.Attrs, false)
	if len(attrs) == 0 {
		return
	}
	cluster := l.reg.ClusterName(ind.CID)
	ep.merge(cluster, attrs)
	l.emit(Event{
		Kind:      EventInd,
		Ind:       IndDevChange,
		Address:   ind.IEEEAddr,
		Endpoints: []Endpoint{ep},
		Change:    Change{Cluster: cluster, Attrs: attrs},
	})
}

// applyClusterCommand turns IAS zone status change notifications into
// zoneStatus changes. Other incoming commands are ignored.
func (l *HostLink) applyClusterCommand(ind wireInd) {
	c := l.reg.Get(ind.CID)
	if c == nil || c.ID != zcl.IASZone.ID {
		l.logger.Debug("host link: ignored cluster command", "addr", ind.IEEEAddr, "cluster", l.reg.ClusterName(ind.CID), "cmd", ind.CmdID)
		return
	}
	cmd := c.FindCommand(ind.CmdID, zcl.DirectionToClient)
	if cmd == nil || cmd.Name != "statusChangeNotification" {
		return
	}
	ep := l.endpoint(ind.IEEEAddr, ind.EpID)
	if ep == nil {
		l.logger.Warn("host link: command from unknown endpoint", "addr", ind.IEEEAddr, "ep", ind.EpID)
		return
	}
	payload, err := hex.DecodeString(ind.Payload)
	if err != nil || len(payload) < 2 {
		l.logger.Warn("host link: short zone status notification", "addr", ind.IEEEAddr, "payload", ind.Payload)
		return
	}
	attrs := map[string]any{"zoneStatus": uint64(binary.LittleEndian.Uint16(payload[:2]))}
	ep.merge(c.Name, attrs)
	l.emit(Event{
		Kind:      EventInd,
		Ind:       IndDevChange,
		Address:   ind.IEEEAddr,
		Endpoints: []Endpoint{ep},
		Change:    Change{Cluster: c.Name, Attrs: attrs},
	})
}

type linkEndpoint struct {
	link    *HostLink
	addr    string
	id      int
	devType int

	mu   sync.RWMutex
	dump Dump
}

func (e *linkEndpoint) Address() string { return e.addr }
func (e *linkEndpoint) ID() int         { return e.id }
func (e *linkEndpoint) DeviceType() int { return e.devType }

func (e *linkEndpoint) Dump() Dump {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.dump.clone()
}

func (e *linkEndpoint) merge(cluster string, attrs map[string]any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	cur := e.dump[cluster]
	if cur == nil {
		cur = make(map[string]any, len(attrs))
		e.dump[cluster] = cur
	}
	for k, v := range attrs {
		cur[k] = v
	}
}

func (e *linkEndpoint) Invoke(ctx context.Context, cluster, command string, payload []byte) error {
	c := e.link.reg.Lookup(cluster)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrUnknownCluster, cluster)
	}
	cmd := c.CommandByName(command, zcl.DirectionToServer)
	if cmd == nil {
		return fmt.Errorf("%w: %s.%s", ErrUnknownCluster, cluster, command)
	}
	return e.link.request(ctx, "command", commandArgs{
		IEEEAddr: e.addr,
		EpID:     e.id,
		CID:      c.ID,
		CmdID:    cmd.ID,
		Payload:  hex.EncodeToString(payload),
	}, nil)
}

func (e *linkEndpoint) Report(ctx context.Context, cluster string) error {
	c := e.link.reg.Lookup(cluster)
	if c == nil {
		return fmt.Errorf("%w: %s", ErrUnknownCluster, cluster)
	}
	args := reportArgs{IEEEAddr: e.addr, EpID: e.id, CID: c.ID}
	for _, a := range c.Reportable() {
		args.Attrs = append(args.Attrs, reportAttr{
			ID:   a.ID,
			Type: a.Type,
			Min:  e.link.opts.ReportMinInterval,
			Max:  e.link.opts.ReportMaxInterval,
		})
	}
	if len(args.Attrs) == 0 {
		return nil
	}
	return e.link.request(ctx, "configReport", args, nil)
}
