// Package link defines the Link interface transport modules implement,
// the locality policy that governs hop-limit enforcement (spec §4.1),
// and a Base helper that generalizes the receive-channel/close-channel
// plumbing from internal/bridge.Bind (one Bind fanning in many WebRTC
// data channels) to one Base per Athena link.
package link

import (
	"sync"

	"github.com/kuuji/athena/internal/message"
	"github.com/kuuji/athena/internal/stats"
)

// EventSet is a bitset of link conditions the adapter polls for.
type EventSet uint8

const (
	EventReceive EventSet = 1 << iota
	EventSend
	EventError
	EventClosing
)

// Link is one bidirectional transport endpoint (spec §4.1). A Link has
// exactly one send and one receive method chosen at construction. The
// transport modules here have no separate listener link: a listener URI
// yields a Link bound to the first peer that connects or sends to it,
// and that Link sends and receives like a dialed one. No child links
// are created for further peers.
type Link interface {
	// Send delivers m, returning a non-nil error if the send failed
	// (transient or permanent; the caller distinguishes via errors.Is).
	Send(m *message.Message) error

	// Receive blocks until a message is available or the link closes.
	// The second return value is false only once the link has closed
	// and no further messages will arrive.
	Receive() (*message.Message, bool)

	Close() error
	Name() string

	// IsLocal reports whether this link's peer lives on the same node
	// (loopback, shared memory) — it governs HopLimit enforcement.
	IsLocal() bool

	// IsRoutable reports whether the forwarding core may install FIB
	// routes over this link. Every transport module here opens its
	// links, listener links included, as routable.
	IsRoutable() bool

	// EventFD returns an OS descriptor the adapter may multiplex with
	// select/poll, or -1 if the link must be polled by calling Receive
	// in its own goroutine.
	EventFD() int

	Events() EventSet
}

// LocalityOf implements spec §4.1's locality policy: a link is local
// when its peer address equals its own address, or when local=true
// forces it.
func LocalityOf(ownAddr, peerAddr string, forced bool) bool {
	if forced {
		return true
	}
	return ownAddr != "" && ownAddr == peerAddr
}

// Base holds the receive-channel/close-channel plumbing shared by every
// point-to-point transport link, generalizing internal/bridge.Bind's
// recvCh/closeCh pair (there, one Bind fanning in every WebRTC peer;
// here, one Base per link). Transport modules embed Base and implement
// Send themselves against their own socket or channel.
type Base struct {
	name     string
	local    bool
	routable bool
	mtu      int

	recvCh    chan *message.Message
	closeCh   chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	events EventSet
}

// NewBase constructs a Base for a link named name with the given
// locality/routability flags and link MTU.
func NewBase(name string, local, routable bool, mtu int) *Base {
	return &Base{
		name:     name,
		local:    local,
		routable: routable,
		mtu:      mtu,
		recvCh:   make(chan *message.Message, 256),
		closeCh:  make(chan struct{}),
	}
}

func (b *Base) Name() string     { return b.name }
func (b *Base) IsLocal() bool    { return b.local }
func (b *Base) IsRoutable() bool { return b.routable }
func (b *Base) MTU() int         { return b.mtu }
func (b *Base) EventFD() int     { return -1 }

func (b *Base) Events() EventSet {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events
}

func (b *Base) setEvent(e EventSet) {
	b.mu.Lock()
	b.events |= e
	b.mu.Unlock()
}

// ClearEvent lets a transport module reset a condition (e.g. Error)
// once it has been observed and handled.
func (b *Base) ClearEvent(e EventSet) {
	b.mu.Lock()
	b.events &^= e
	b.mu.Unlock()
}

// Deliver enqueues an inbound message for Receive. Non-blocking: a full
// receive buffer drops the message and counts it, the same loss
// semantics bridge.Bind applies when its shared receive channel backs
// up (there as a debug log, here as a stats counter since drops are a
// routine, expected datagram-transport occurrence).
func (b *Base) Deliver(m *message.Message) {
	select {
	case b.recvCh <- m:
		b.setEvent(EventReceive)
	case <-b.closeCh:
	default:
		stats.DroppedTotal.WithLabelValues("receive_buffer_full").Inc()
	}
}

// Receive implements Link.Receive for transports built on Base.
func (b *Base) Receive() (*message.Message, bool) {
	select {
	case m, ok := <-b.recvCh:
		if !ok {
			return nil, false
		}
		return m, true
	case <-b.closeCh:
		return nil, false
	}
}

// Close implements Link.Close for transports built on Base. Safe to
// call more than once.
func (b *Base) Close() error {
	b.closeOnce.Do(func() {
		close(b.closeCh)
		b.setEvent(EventClosing)
	})
	return nil
}

// Closed reports whether Close has been called, for transport Send
// implementations that need to stop writing without racing Close.
func (b *Base) Closed() bool {
	select {
	case <-b.closeCh:
		return true
	default:
		return false
	}
}
