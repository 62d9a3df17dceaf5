// Package wstransport implements the "ws"/"wss" connection schemes: a
// point-to-point Link carried over a WebSocket, framed the same
// length-prefixed way as internal/transport/tcptransport once the
// WebSocket is turned into a net.Conn. Accept/relay and Dial follow
// internal/signaling/hub.go's websocket.Accept usage and
// internal/turn/dialer.go's websocket.Dial/websocket.NetConn pattern.
package wstransport

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/coder/websocket"

	"github.com/kuuji/athena/internal/link"
	"github.com/kuuji/athena/internal/message"
	"github.com/kuuji/athena/internal/stats"
	"github.com/kuuji/athena/internal/transport"
	"github.com/kuuji/athena/internal/wireformat"
)

// SchemeWS and SchemeWSS are the connection-URI schemes this module
// handles. Dialing passes the scheme through to the WebSocket URL, so a
// wss link dials over TLS; the listener side serves plain HTTP for both
// schemes, and nothing configures TLS for it.
const (
	SchemeWS  = "ws"
	SchemeWSS = "wss"
)

const defaultMTU = 65535

type Module struct {
	scheme string
}

// New returns a Module serving scheme, which must be "ws" or "wss".
func New(scheme string) *Module { return &Module{scheme: scheme} }

func (m *Module) Scheme() string { return m.scheme }

func (m *Module) Open(uri *transport.ConnectionURI) (link.Link, error) {
	mtu := defaultMTU
	if uri.MTU != nil {
		mtu = *uri.MTU
	}
	name := uri.Name
	if name == "" {
		name = m.scheme + "://" + uri.Authority
	}
	forced := uri.Local != nil && *uri.Local

	if uri.Listener {
		return m.accept(uri.Authority, name, mtu, forced)
	}

	url := m.scheme + "://" + uri.Authority
	ctx := context.Background()
	wsConn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("wstransport: dialing %q: %w", url, err)
	}
	conn := websocket.NetConn(ctx, wsConn, websocket.MessageBinary)
	return newLink(name, mtu, conn, forced), nil
}

// accept runs a single-shot HTTP server that upgrades the first
// incoming connection to a WebSocket and returns its Link, the same
// one-peer-per-listener simplification tcptransport and udptransport
// apply.
func (m *Module) accept(authority, name string, mtu int, forced bool) (link.Link, error) {
	ln, err := net.Listen("tcp", authority)
	if err != nil {
		return nil, fmt.Errorf("wstransport: listening on %q: %w", authority, err)
	}

	linkCh := make(chan *Link, 1)
	errCh := make(chan error, 1)

	srv := &http.Server{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wsConn, err := websocket.Accept(w, r, nil)
		if err != nil {
			errCh <- fmt.Errorf("wstransport: accepting WebSocket: %w", err)
			return
		}
		conn := websocket.NetConn(r.Context(), wsConn, websocket.MessageBinary)
		linkCh <- newLink(name, mtu, conn, forced)
	})}

	go srv.Serve(ln)

	select {
	case l := <-linkCh:
		go func() {
			<-l.closed()
			srv.Close()
			ln.Close()
		}()
		return l, nil
	case err := <-errCh:
		srv.Close()
		ln.Close()
		return nil, err
	}
}

// Link is one end of a WebSocket connection, framed like tcptransport.
type Link struct {
	*link.Base

	conn net.Conn
	w    *bufio.Writer
	done chan struct{}
}

func newLink(name string, mtu int, conn net.Conn, forced bool) *Link {
	local := link.LocalityOf(conn.LocalAddr().String(), conn.RemoteAddr().String(), forced)
	l := &Link{
		Base: link.NewBase(name, local, true, mtu),
		conn: conn,
		w:    bufio.NewWriter(conn),
		done: make(chan struct{}),
	}
	go l.readLoop()
	return l
}

func (l *Link) closed() <-chan struct{} { return l.done }

// Send implements link.Link with the same 4-byte length prefix framing
// tcptransport uses and, like it, rejects a message whose encoding
// exceeds the link MTU.
func (l *Link) Send(m *message.Message) error {
	if l.Closed() {
		return fmt.Errorf("wstransport: link %q is closed", l.Name())
	}

	wire, err := wireformat.Encode(m)
	if err != nil {
		return fmt.Errorf("wstransport: encoding message: %w", err)
	}
	if len(wire) > l.MTU() {
		return fmt.Errorf("wstransport: %d-byte message exceeds link MTU %d", len(wire), l.MTU())
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(wire)))

	if _, err := l.w.Write(lenBuf[:]); err != nil {
		stats.LinkSendFailuresTotal.WithLabelValues(l.Name()).Inc()
		return fmt.Errorf("wstransport: writing length prefix: %w", err)
	}
	if _, err := l.w.Write(wire); err != nil {
		stats.LinkSendFailuresTotal.WithLabelValues(l.Name()).Inc()
		return fmt.Errorf("wstransport: writing message: %w", err)
	}
	if err := l.w.Flush(); err != nil {
		stats.LinkSendFailuresTotal.WithLabelValues(l.Name()).Inc()
		return fmt.Errorf("wstransport: flushing: %w", err)
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

// Close also closes the underlying connection and signals closed() for
// the accept-side server shutdown goroutine.
func (l *Link) Close() error {
	l.conn.Close()
	err := l.Base.Close()
	select {
	case <-l.done:
	default:
		close(l.done)
	}
	return err
}
