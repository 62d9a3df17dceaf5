// Package tcptransport implements the "tcp" connection scheme: a
// point-to-point Link over a TCP stream, framed with the same
// length-prefixed idiom internal/wireformat uses for its own fields
// (a 4-byte big-endian length followed by that many bytes of encoded
// message). A listener URI accepts a single connection, closes the
// listening socket, and returns that connection's Link, the same
// single-peer simplification udptransport applies to its listener mode.
package tcptransport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/kuuji/athena/internal/link"
	"github.com/kuuji/athena/internal/message"
	"github.com/kuuji/athena/internal/stats"
	"github.com/kuuji/athena/internal/transport"
	"github.com/kuuji/athena/internal/wireformat"
)

// Scheme is the connection-URI scheme this module handles.
const Scheme = "tcp"

const defaultMTU = 65535

type Module struct{}

func New() *Module { return &Module{} }

func (m *Module) Scheme() string { return Scheme }

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
		ln, err := net.Listen("tcp", uri.Authority)
		if err != nil {
			return nil, fmt.Errorf("tcptransport: listening on %q: %w", uri.Authority, err)
		}
		conn, err := ln.Accept()
		ln.Close()
		if err != nil {
			return nil, fmt.Errorf("tcptransport: accepting on %q: %w", uri.Authority, err)
		}
		return newLink(name, mtu, conn, forced), nil
	}

	var d net.Dialer
	if uri.Src != "" {
		laddr, err := net.ResolveTCPAddr("tcp", uri.Src)
		if err != nil {
			return nil, fmt.Errorf("tcptransport: resolving src %q: %w", uri.Src, err)
		}
		d.LocalAddr = laddr
	}
	conn, err := d.Dial("tcp", uri.Authority)
	if err != nil {
		return nil, fmt.Errorf("tcptransport: dialing %q: %w", uri.Authority, err)
	}
	return newLink(name, mtu, conn, forced), nil
}

// Link is one end of a TCP stream.
type Link struct {
	*link.Base

	conn net.Conn
	w    *bufio.Writer
}

func newLink(name string, mtu int, conn net.Conn, forced bool) *Link {
	local := link.LocalityOf(conn.LocalAddr().String(), conn.RemoteAddr().String(), forced)
	l := &Link{
		Base: link.NewBase(name, local, true, mtu),
		conn: conn,
		w:    bufio.NewWriter(conn),
	}
	go l.readLoop()
	return l
}

// Send implements link.Link, writing m as a 4-byte length prefix
// followed by its wireformat encoding. This link has no fragmenter, so
// a message whose encoding exceeds the link MTU is rejected with an
// error instead of being sent.
func (l *Link) Send(m *message.Message) error {
	if l.Closed() {
		return fmt.Errorf("tcptransport: link %q is closed", l.Name())
	}

	wire, err := wireformat.Encode(m)
	if err != nil {
		return fmt.Errorf("tcptransport: encoding message: %w", err)
	}
	if len(wire) > l.MTU() {
		return fmt.Errorf("tcptransport: %d-byte message exceeds link MTU %d", len(wire), l.MTU())
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(wire)))

	if _, err := l.w.Write(lenBuf[:]); err != nil {
		stats.LinkSendFailuresTotal.WithLabelValues(l.Name()).Inc()
		return fmt.Errorf("tcptransport: writing length prefix: %w", err)
	}
	if _, err := l.w.Write(wire); err != nil {
		stats.LinkSendFailuresTotal.WithLabelValues(l.Name()).Inc()
		return fmt.Errorf("tcptransport: writing message: %w", err)
	}
	if err := l.w.Flush(); err != nil {
		stats.LinkSendFailuresTotal.WithLabelValues(l.Name()).Inc()
		return fmt.Errorf("tcptransport: flushing: %w", err)
	}
	return nil
}

func (l *Link) readLoop() {
	r := bufio.NewReader(l.conn)
	for {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			l.Close()
			return
		}
		n := binary.BigEndian.Uint32(lenBuf[:])
		wire := make([]byte, n)
		if _, err := io.ReadFull(r, wire); err != nil {
			l.Close()
			return
		}

		stats.LinkReceivedTotal.WithLabelValues(l.Name()).Inc()

		m, err := wireformat.Decode(wire)
		if err != nil {
			stats.DroppedTotal.WithLabelValues("decode_error").Inc()
			continue
		}
		l.Deliver(m)
	}
}

// Close also closes the underlying TCP connection, unblocking the
// read loop's io.ReadFull.
func (l *Link) Close() error {
	l.conn.Close()
	return l.Base.Close()
}
