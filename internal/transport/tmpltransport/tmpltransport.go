// Package tmpltransport implements the "template" connection scheme: an
// in-memory loopback pair of Links with no real I/O. It is the
// forwarder's own test transport and the pattern a new transport module
// is copied from, the same role
// original_source/ccnx/forwarder/athena/athena_TransportLinkModuleTEMPLATE.c
// plays in the original implementation.
package tmpltransport

import (
	"fmt"
	"sync"

	"github.com/kuuji/athena/internal/link"
	"github.com/kuuji/athena/internal/message"
	"github.com/kuuji/athena/internal/transport"
)

// Scheme is the connection-URI scheme this module handles.
const Scheme = "template"

const defaultMTU = 1500

// Module pairs up two Opens of the same authority into a connected
// Link pair, modeling a point-to-point connection without any real
// socket.
type Module struct {
	mu      sync.Mutex
	pending map[string]*Link
}

// New returns an empty Module.
func New() *Module {
	return &Module{pending: make(map[string]*Link)}
}

func (m *Module) Scheme() string { return Scheme }

// Open implements transport.Module. The first Open for a given
// authority parks a half-connected Link; the second completes the pair.
func (m *Module) Open(u *transport.ConnectionURI) (link.Link, error) {
	mtu := defaultMTU
	if u.MTU != nil {
		mtu = *u.MTU
	}
	local := true
	if u.Local != nil {
		local = *u.Local
	}
	name := u.Name
	if name == "" {
		name = Scheme + "://" + u.Authority
	}

	l := &Link{Base: link.NewBase(name, local, true, mtu)}

	m.mu.Lock()
	defer m.mu.Unlock()

	if other, ok := m.pending[u.Authority]; ok {
		delete(m.pending, u.Authority)
		l.setPeer(other)
		other.setPeer(l)
		return l, nil
	}

	m.pending[u.Authority] = l
	return l, nil
}

// Link is one end of an in-memory loopback pair.
type Link struct {
	*link.Base

	mu   sync.Mutex
	peer *Link
}

func (l *Link) setPeer(p *Link) {
	l.mu.Lock()
	l.peer = p
	l.mu.Unlock()
}

// Send implements link.Link by delivering directly into the peer's
// receive queue. A message whose wire bytes exceed the link MTU is
// rejected with an error.
func (l *Link) Send(m *message.Message) error {
	if l.Closed() {
		return fmt.Errorf("tmpltransport: link %q is closed", l.Name())
	}
	l.mu.Lock()
	p := l.peer
	l.mu.Unlock()
	if p == nil {
		return fmt.Errorf("tmpltransport: link %q has no peer yet", l.Name())
	}
	if len(m.Wire()) > l.MTU() {
		return fmt.Errorf("tmpltransport: %d-byte message exceeds link MTU %d", len(m.Wire()), l.MTU())
	}
	p.Deliver(m)
	return nil
}

// NewPair returns two already-connected Links, for use by tests and by
// other modules' own tests that need a cheap in-memory Link without
// going through a Registry.
func NewPair(nameA, nameB string, mtu int) (*Link, *Link) {
	a := &Link{Base: link.NewBase(nameA, true, true, mtu)}
	b := &Link{Base: link.NewBase(nameB, true, true, mtu)}
	a.peer = b
	b.peer = a
	return a, b
}
