package coordinator

import (
	"context"
	"fmt"
	"sort"

	"zigbee-gadgets/internal/gadget"
	"zigbee-gadgets/internal/ncp"
	"zigbee-gadgets/internal/store"
)

// HandleEvent processes one network event to completion. Events must be
// delivered one at a time.
func (c *Coordinator) HandleEvent(ev ncp.Event) {
	switch ev.Kind {
	case ncp.EventReady:
		c.syncDevices()
		c.logger.Info("ready", "devices", c.devices.Len())
		c.events.Emit(Event{Type: IndReady, Data: struct{}{}})
	case ncp.EventPermitJoining:
		c.logger.Info("permit joining", "timeLeft", ev.TimeLeft)
		c.events.Emit(Event{Type: IndPermitJoining, Data: PermitJoiningData{TimeLeft: ev.TimeLeft}})
	case ncp.EventError:
		c.fault(ev.Message)
	case ncp.EventInd:
		c.handleInd(ev)
	default:
		c.logger.Debug("ignoring event", "kind", ev.Kind)
	}
}

func (c *Coordinator) handleInd(ev ncp.Event) {
	switch ev.Ind {
	case ncp.IndDevIncoming:
		c.deviceIncoming(ev)
	case ncp.IndDevLeaving:
		c.deviceStatus(ev.Address, ncp.StatusOffline)
	case ncp.IndDevStatus:
		c.deviceStatus(ev.Address, ev.Status)
	case ncp.IndDevChange:
		c.deviceChange(ev)
	default:
		c.logger.Debug("ignoring indication", "ind", ev.Ind, "permAddr", ev.Address)
	}
}

// syncDevices loads the devices the network already knows. The coordinator
// itself and devices without endpoints are skipped.
func (c *Coordinator) syncDevices() {
	ctx, cancel := context.WithTimeout(c.ctx, c.reqTimeout)
	defer cancel()

	infos, err := c.net.ListDevices(ctx)
	if err != nil {
		c.fault(fmt.Sprintf("list devices: %v", err))
		return
	}
	for _, info := range infos {
		if info.NwkAddr == 0 || len(info.Endpoints) == 0 {
			continue
		}
		eps := make([]ncp.Endpoint, 0, len(info.Endpoints))
		for _, id := range info.Endpoints {
			if ep, ok := c.net.FindEndpoint(info.Address, id); ok {
				eps = append(eps, ep)
			}
		}
		status := info.Status
		if status == "" {
			status = ncp.StatusOnline
		}
		c.devices.Put(c.classify(info.Address, status, eps))
		c.saveCatalog(info.Address, status, info.NwkAddr, eps)
	}
}

func (c *Coordinator) deviceIncoming(ev ncp.Event) {
	rec := c.classify(ev.Address, ncp.StatusOnline, ev.Endpoints)
	c.devices.Put(rec)
	c.saveCatalog(ev.Address, ncp.StatusOnline, 0, ev.Endpoints)

	c.logger.Info("device incoming", "permAddr", ev.Address, "gadgets", len(rec.Gads))
	c.events.Emit(Event{Type: IndDevIncoming, Data: DevIncomingData{Dev: rec}})

	c.requestReports(ev.Address, ev.Endpoints)
}

func (c *Coordinator) deviceStatus(addr, status string) {
	c.devices.SetStatus(addr, status)
	c.saveStatus(addr, status)

	c.logger.Info("device status", "permAddr", addr, "status", status)
	c.events.Emit(Event{Type: IndDevStatus, Data: DevStatusData{PermAddr: addr, Status: status}})
}

// deviceChange resolves the gadgets backed by the reporting cluster. Only
// values that differ from the stored ones reach the rules and the UI.
func (c *Coordinator) deviceChange(ev ncp.Event) {
	if len(ev.Endpoints) == 0 {
		c.logger.Debug("change without endpoint", "permAddr", ev.Address)
		return
	}
	ep := ev.Endpoints[0]
	addr := ev.Address
	if addr == "" {
		addr = ep.Address()
	}

	gads, err := gadget.ResolveChange(ep.ID(), ep.DeviceType(), ev.Change.Cluster, ev.Change.Attrs)
	if err != nil {
		c.logger.Debug("classification miss", "permAddr", addr, "ep", ep.ID(), "cluster", ev.Change.Cluster)
		return
	}
	for _, g := range gads {
		if !c.state.Update(gadget.Key{Address: addr, AuxID: g.AuxID}, g.Value) {
			c.logger.Debug("duplicate suppressed", "permAddr", addr, "auxId", g.AuxID, "value", g.Value)
			continue
		}
		c.devices.SetGadget(addr, ncp.StatusOnline, g)
		c.rules.HandleChange(addr, g)

		c.logger.Info("attrs change", "permAddr", addr, "auxId", g.AuxID, "value", g.Value)
		c.events.Emit(Event{Type: IndAttrsChange, Data: AttrsChangeData{PermAddr: addr, Gad: g}})
	}
}

// classify builds the device record from full endpoint dumps and seeds the
// state store. A gadget whose attribute is missing from the dump keeps the
// value already stored for it.
func (c *Coordinator) classify(addr, status string, eps []ncp.Endpoint) DeviceRecord {
	rec := DeviceRecord{PermAddr: addr, Status: status, Gads: make(map[string]gadget.Record)}
	for _, ep := range eps {
		gads, err := gadget.Resolve(ep.ID(), ep.DeviceType(), ep.Dump())
		if err != nil {
			reason := "no matching cluster"
			if !gadget.KnownDeviceType(ep.DeviceType()) {
				reason = "unknown device type"
			}
			c.logger.Debug("classification miss", "permAddr", addr, "ep", ep.ID(), "deviceType", ep.DeviceType(), "reason", reason)
			continue
		}
		for _, g := range gads {
			key := gadget.Key{Address: addr, AuxID: g.AuxID}
			if g.Value == nil {
				if v, ok := c.state.Get(key); ok {
					g.Value = v
				}
			}
			c.state.Update(key, g.Value)
			rec.Gads[g.AuxID] = g
		}
	}
	return rec
}

// requestReports configures attribute reporting for every classified
// cluster, one request after another. A failed request is logged and the
// next one is still attempted.
func (c *Coordinator) requestReports(addr string, eps []ncp.Endpoint) {
	type job struct {
		ep      ncp.Endpoint
		cluster string
	}
	var jobs []job
	for _, ep := range eps {
		seen := make(map[string]bool)
		for _, d := range gadget.Classify(ep.DeviceType(), ep.Dump().Clusters()) {
			if seen[d.ClusterID] {
				continue
			}
			seen[d.ClusterID] = true
			jobs = append(jobs, job{ep: ep, cluster: d.ClusterID})
		}
	}
	if len(jobs) == 0 {
		return
	}

	c.reports.Add(1)
	go func() {
		defer c.reports.Done()
		for _, j := range jobs {
			if c.ctx.Err() != nil {
				return
			}
			ctx, cancel := context.WithTimeout(c.ctx, c.reqTimeout)
			err := j.ep.Report(ctx, j.cluster)
			cancel()
			if err != nil {
				c.logger.Warn("configure reporting", "err", err, "permAddr", addr, "ep", j.ep.ID(), "cluster", j.cluster)
				continue
			}
			c.logger.Debug("reporting configured", "permAddr", addr, "ep", j.ep.ID(), "cluster", j.cluster)
		}
	}()
}

// catalogEndpoints describes endpoints for the persisted catalog.
func catalogEndpoints(eps []ncp.Endpoint) []store.Endpoint {
	out := make([]store.Endpoint, 0, len(eps))
	for _, ep := range eps {
		dump := ep.Dump()
		clusters := make([]string, 0, len(dump))
		for cid := range dump {
			clusters = append(clusters, cid)
		}
		sort.Strings(clusters)

		var gads []string
		for _, d := range gadget.Classify(ep.DeviceType(), dump.Clusters()) {
			gads = append(gads, gadget.AuxID(ep.ID(), d))
		}
		out = append(out, store.Endpoint{
			ID:         ep.ID(),
			DeviceType: ep.DeviceType(),
			Clusters:   clusters,
			Gadgets:    gads,
		})
	}
	return out
}
