// Package udptransport implements the "udp" connection scheme: a
// point-to-point Link over a connected UDP socket. Outbound Messages
// larger than the link MTU are HOPFRAG-fragmented (internal/fragmenter)
// before being written as datagrams; inbound datagrams are fed through
// a per-link Reassembler. Framing and connection setup follow the plain
// net-package idiom internal/agent/protectednet.go uses for its UDP
// sockets, minus the VPN-protect step this repo has no equivalent of.
package udptransport

import (
	"fmt"
	"net"
	"sync"

	"github.com/kuuji/athena/internal/fragmenter"
	"github.com/kuuji/athena/internal/link"
	"github.com/kuuji/athena/internal/message"
	"github.com/kuuji/athena/internal/stats"
	"github.com/kuuji/athena/internal/transport"
	"github.com/kuuji/athena/internal/wireformat"
)

// Scheme is the connection-URI scheme this module handles.
const Scheme = "udp"

const (
	defaultMTU     = 1400
	datagramBuffer = 64 * 1024
)

type Module struct{}

func New() *Module { return &Module{} }

func (m *Module) Scheme() string { return Scheme }

// Open dials a UDP socket to uri.Authority. A listener Link binds
// uri.Authority instead and locks onto the address of whichever peer
// sends it the first datagram, the simplest point-to-point reading of
// an inherently connectionless protocol.
func (m *Module) Open(uri *transport.ConnectionURI) (link.Link, error) {
	mtu := defaultMTU
	if uri.MTU != nil {
		mtu = *uri.MTU
	}
	name := uri.Name
	if name == "" {
		name = Scheme + "://" + uri.Authority
	}
	forced := uri.Local != nil && *uri.Local

	if uri.Listener {
		laddr, err := net.ResolveUDPAddr("udp", uri.Authority)
		if err != nil {
			return nil, fmt.Errorf("udptransport: resolving %q: %w", uri.Authority, err)
		}
		conn, err := net.ListenUDP("udp", laddr)
		if err != nil {
			return nil, fmt.Errorf("udptransport: listening on %q: %w", uri.Authority, err)
		}
		l := newLink(name, mtu, conn, nil, forced)
		l.isListener = true
		go l.acceptLoop()
		return l, nil
	}

	raddr, err := net.ResolveUDPAddr("udp", uri.Authority)
	if err != nil {
		return nil, fmt.Errorf("udptransport: resolving %q: %w", uri.Authority, err)
	}
	var laddr *net.UDPAddr
	if uri.Src != "" {
		laddr, err = net.ResolveUDPAddr("udp", uri.Src)
		if err != nil {
			return nil, fmt.Errorf("udptransport: resolving src %q: %w", uri.Src, err)
		}
	}
	conn, err := net.DialUDP("udp", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("udptransport: dialing %q: %w", uri.Authority, err)
	}

	l := newLink(name, mtu, conn, raddr, forced)
	go l.readLoop()
	return l, nil
}

// Link is a single UDP peer connection.
type Link struct {
	*link.Base

	conn       *net.UDPConn
	isListener bool

	peerMu sync.Mutex
	peer   *net.UDPAddr // nil until the listener case locks onto a sender

	reasm *fragmenter.Reassembler
}

func newLink(name string, mtu int, conn *net.UDPConn, peer *net.UDPAddr, forced bool) *Link {
	local := forced
	if !local && conn.LocalAddr() != nil && peer != nil {
		local = link.LocalityOf(conn.LocalAddr().String(), peer.String(), false)
	}
	return &Link{
		Base:  link.NewBase(name, local, true, mtu),
		conn:  conn,
		peer:  peer,
		reasm: fragmenter.NewReassembler(),
	}
}

// Send implements link.Link, fragmenting m if its encoded size exceeds
// the link MTU.
func (l *Link) Send(m *message.Message) error {
	if l.Closed() {
		return fmt.Errorf("udptransport: link %q is closed", l.Name())
	}

	wire, err := wireformat.Encode(m)
	if err != nil {
		return fmt.Errorf("udptransport: encoding message: %w", err)
	}

	frames := [][]byte{wire}
	if len(wire) > l.MTU() {
		frames, err = fragmenter.Fragment(wire, l.MTU())
		if err != nil {
			return fmt.Errorf("udptransport: fragmenting message: %w", err)
		}
	}

	for _, f := range frames {
		if err := l.writeFrame(f); err != nil {
			stats.LinkSendFailuresTotal.WithLabelValues(l.Name()).Inc()
			return err
		}
		stats.FragmentsSentTotal.WithLabelValues(l.Name()).Inc()
	}
	return nil
}

func (l *Link) writeFrame(frame []byte) error {
	if l.isListener {
		l.peerMu.Lock()
		peer := l.peer
		l.peerMu.Unlock()
		if peer == nil {
			return fmt.Errorf("udptransport: link %q has no peer yet", l.Name())
		}
		_, err := l.conn.WriteToUDP(frame, peer)
		return err
	}
	_, err := l.conn.Write(frame)
	return err
}

func (l *Link) readLoop() {
	buf := make([]byte, datagramBuffer)
	for {
		n, err := l.conn.Read(buf)
		if err != nil {
			l.Close()
			return
		}
		l.handleFrame(buf[:n])
	}
}

func (l *Link) acceptLoop() {
	buf := make([]byte, datagramBuffer)
	for {
		n, from, err := l.conn.ReadFromUDP(buf)
		if err != nil {
			l.Close()
			return
		}
		l.peerMu.Lock()
		if l.peer == nil {
			l.peer = from
		} else if !addrEqual(l.peer, from) {
			l.peerMu.Unlock()
			continue // only the first peer is accepted on a listener Link
		}
		l.peerMu.Unlock()
		l.handleFrame(buf[:n])
	}
}

func (l *Link) handleFrame(frame []byte) {
	stats.LinkReceivedTotal.WithLabelValues(l.Name()).Inc()

	payload := frame
	if fragmenter.IsFragment(frame) {
		reassembled, err := l.reasm.Feed(frame)
		if err != nil {
			stats.FragmentReassemblyErrorsTotal.WithLabelValues(l.Name()).Inc()
			return
		}
		if reassembled == nil {
			return // awaiting more fragments
		}
		payload = reassembled
	}

	m, err := wireformat.Decode(payload)
	if err != nil {
		stats.DroppedTotal.WithLabelValues("decode_error").Inc()
		return
	}
	l.Deliver(m)
}

func addrEqual(a, b *net.UDPAddr) bool {
	return a.IP.Equal(b.IP) && a.Port == b.Port
}
