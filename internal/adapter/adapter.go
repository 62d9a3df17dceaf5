// Package adapter implements the Link Adapter: the fleet-level
// multiplexer that owns every open Link, assigns each a dense LinkId,
// fans their receive loops into one shared channel, and drives FIB/PIT
// cleanup when a link disappears (spec §4.2). The fan-in shape is
// internal/bridge.Bind generalized from "one Bind fanning in every
// WebRTC data channel" to "one Adapter fanning in every transport Link";
// the map+mutex link registry follows internal/signaling/hub.go's peers
// map.
package adapter

import (
	"fmt"
	"sync"
	"time"

	"github.com/kuuji/athena/internal/link"
	"github.com/kuuji/athena/internal/linkset"
	"github.com/kuuji/athena/internal/message"
	"github.com/kuuji/athena/internal/stats"
	"github.com/kuuji/athena/internal/transport"
)

// RemoveLinkFunc is invoked with a singleton LinkSet whenever a link
// closes (locally requested or from a transport-side failure), so the
// caller can excise FIB routes and PIT expectations that reference it
// (spec §4.2, §4.3, §4.4).
type RemoveLinkFunc func(linkset.LinkSet)

type slot struct {
	id   linkset.LinkId
	name string
	l    link.Link
}

// Adapter is the dense LinkId-indexed link vector plus fair polling
// across every open link.
type Adapter struct {
	registry *transport.Registry
	onRemove RemoveLinkFunc

	mu      sync.Mutex
	slots   []*slot // dense; index == LinkId; nil at a removed id
	byName  map[string]linkset.LinkId
	freeIDs []linkset.LinkId

	recvCh    chan received
	closeCh   chan struct{}
	closeOnce sync.Once
}

type received struct {
	m       *message.Message
	ingress linkset.LinkSet
}

// New creates an Adapter that opens connection URIs through registry
// and calls onRemove (which may be nil) whenever a link is removed.
func New(registry *transport.Registry, onRemove RemoveLinkFunc) *Adapter {
	return &Adapter{
		registry: registry,
		onRemove: onRemove,
		byName:   make(map[string]linkset.LinkId),
		recvCh:   make(chan received, 256),
		closeCh:  make(chan struct{}),
	}
}

// Open opens uri via the registry, assigns it a dense LinkId (reusing
// one freed by a prior removal), and starts a goroutine that polls the
// link's Receive and funnels results into the adapter's shared receive
// channel — every link gets its own goroutine so one slow or idle link
// never starves another's turn (spec §4.2's fair polling requirement).
func (a *Adapter) Open(uri string) (linkset.LinkId, error) {
	l, err := a.registry.Open(uri)
	if err != nil {
		return 0, err
	}

	a.mu.Lock()
	if _, dup := a.byName[l.Name()]; dup {
		a.mu.Unlock()
		l.Close()
		return 0, fmt.Errorf("adapter: a link named %q is already open", l.Name())
	}
	id := a.allocID()
	a.slots[id] = &slot{id: id, name: l.Name(), l: l}
	a.byName[l.Name()] = id
	a.mu.Unlock()

	go a.pollLink(id, l)
	return id, nil
}

func (a *Adapter) allocID() linkset.LinkId {
	if n := len(a.freeIDs); n > 0 {
		id := a.freeIDs[n-1]
		a.freeIDs = a.freeIDs[:n-1]
		return id
	}
	id := linkset.LinkId(len(a.slots))
	a.slots = append(a.slots, nil)
	return id
}

func (a *Adapter) pollLink(id linkset.LinkId, l link.Link) {
	for {
		m, ok := l.Receive()
		if !ok {
			a.removeLink(id)
			return
		}
		select {
		case a.recvCh <- received{m: m, ingress: linkset.Of(id)}:
		case <-a.closeCh:
			return
		}
	}
}

func (a *Adapter) removeLink(id linkset.LinkId) {
	a.mu.Lock()
	s := a.slots[int(id)]
	if s == nil {
		a.mu.Unlock()
		return
	}
	a.slots[int(id)] = nil
	delete(a.byName, s.name)
	a.freeIDs = append(a.freeIDs, id)
	a.mu.Unlock()

	if a.onRemove != nil {
		a.onRemove(linkset.Of(id))
	}
}

// CloseByID closes the link at id; its poll goroutine observes the
// resulting Receive failure and calls removeLink.
func (a *Adapter) CloseByID(id linkset.LinkId) error {
	a.mu.Lock()
	s := a.slots[int(id)]
	a.mu.Unlock()
	if s == nil {
		return fmt.Errorf("adapter: no link with id %d", id)
	}
	return s.l.Close()
}

// CloseByName closes the link registered under name (spec §4.2).
func (a *Adapter) CloseByName(name string) error {
	a.mu.Lock()
	id, ok := a.byName[name]
	a.mu.Unlock()
	if !ok {
		return fmt.Errorf("adapter: no link named %q", name)
	}
	return a.CloseByID(id)
}

// Send writes m to every link in links, returning the subset that
// failed to send or no longer exists, so the forwarder can subtract
// them from a PIT entry's expected-return set (spec §4.6 step 8).
func (a *Adapter) Send(m *message.Message, links linkset.LinkSet) linkset.LinkSet {
	var failed linkset.LinkSet
	links.ForEach(func(id linkset.LinkId) {
		a.mu.Lock()
		s := a.slots[int(id)]
		a.mu.Unlock()
		if s == nil {
			failed.Add(id)
			return
		}
		if err := s.l.Send(m); err != nil {
			stats.LinkSendFailuresTotal.WithLabelValues(s.name).Inc()
			failed.Add(id)
		}
	})
	return failed
}

// Receive blocks until a message arrives on any open link, the adapter
// is closed, or timeout elapses. The boolean result is false only on
// timeout or adapter closure.
func (a *Adapter) Receive(timeout time.Duration) (*message.Message, linkset.LinkSet, bool) {
	select {
	case r := <-a.recvCh:
		return r.m, r.ingress, true
	case <-time.After(timeout):
		return nil, linkset.LinkSet{}, false
	case <-a.closeCh:
		return nil, linkset.LinkSet{}, false
	}
}

// Close closes every open link and stops accepting further Receives.
func (a *Adapter) Close() {
	a.closeOnce.Do(func() { close(a.closeCh) })

	a.mu.Lock()
	slots := append([]*slot(nil), a.slots...)
	a.mu.Unlock()

	for _, s := range slots {
		if s != nil {
			s.l.Close()
		}
	}
}

// Name returns the registered name for id, for the control surface.
func (a *Adapter) Name(id linkset.LinkId) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.slots[int(id)]
	if s == nil {
		return "", false
	}
	return s.name, true
}

// Link returns the underlying link.Link for id, for pipeline code that
// needs IsLocal/IsRoutable (hop-limit enforcement, spec §4.1).
func (a *Adapter) Link(id linkset.LinkId) (link.Link, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := a.slots[int(id)]
	if s == nil {
		return nil, false
	}
	return s.l, true
}

// Links returns every currently open LinkId, for diagnostics and the
// control surface.
func (a *Adapter) Links() linkset.LinkSet {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out linkset.LinkSet
	for _, s := range a.slots {
		if s != nil {
			out.Add(s.id)
		}
	}
	return out
}
