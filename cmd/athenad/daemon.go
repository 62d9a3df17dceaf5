package main

import (
	"fmt"
	"time"

	"github.com/kuuji/athena/internal/adapter"
	"github.com/kuuji/athena/internal/control"
	"github.com/kuuji/athena/internal/fib"
	"github.com/kuuji/athena/internal/forwarder"
	"github.com/kuuji/athena/internal/linkset"
	"github.com/kuuji/athena/internal/wirename"
)

var startedAt = time.Now()

// buildStatus assembles a control.Status snapshot from the live
// tables, for the control server's /status endpoint.
func buildStatus(name, mgmtPrefix string, a *adapter.Adapter, e *forwarder.Engine) control.Status {
	var links []control.LinkStatus
	a.Links().ForEach(func(id linkset.LinkId) {
		linkName, _ := a.Name(id)
		l, ok := a.Link(id)
		ls := control.LinkStatus{ID: uint32(id), Name: linkName}
		if ok {
			ls.Local = l.IsLocal()
			ls.Routable = l.IsRoutable()
			if m, ok := l.(interface{ MTU() int }); ok {
				ls.MTU = m.MTU()
			}
		}
		links = append(links, ls)
	})

	store := e.Store()

	return control.Status{
		Name:             name,
		UptimeSeconds:    time.Since(startedAt).Seconds(),
		Links:            links,
		FIBRoutes:        e.FIB().Len(),
		PITEntries:       e.PIT().Len(),
		ManagementPrefix: mgmtPrefix,
		ContentStore: control.StoreStatus{
			CapacityMB: store.GetCapacity(),
			SizeBytes:  store.Size(),
			Entries:    store.Len(),
		},
	}
}

// applyRoute resolves a control.RouteEntry's link names to LinkIds via
// the adapter and installs or removes the route on f.
func applyRoute(f *fib.FIB, a *adapter.Adapter, e control.RouteEntry, add bool) error {
	name, err := wirename.Parse(e.Prefix)
	if err != nil {
		return fmt.Errorf("parsing prefix %q: %w", e.Prefix, err)
	}

	var links linkset.LinkSet
	byName := make(map[string]linkset.LinkId)
	a.Links().ForEach(func(id linkset.LinkId) {
		if n, ok := a.Name(id); ok {
			byName[n] = id
		}
	})
	for _, ln := range e.Links {
		id, ok := byName[ln]
		if !ok {
			return fmt.Errorf("no open link named %q", ln)
		}
		links.Add(id)
	}
	if links.IsEmpty() {
		return fmt.Errorf("route %q: no resolvable links", e.Prefix)
	}

	if add {
		f.AddRoute(name, links)
		return nil
	}
	return f.DeleteRoute(name, links)
}
