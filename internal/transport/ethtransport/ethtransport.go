//go:build linux

// Package ethtransport implements the "eth" connection scheme: a
// point-to-point Link over a raw AF_PACKET socket bound to one
// interface, grounded on
// original_source/ccnx/forwarder/athena/platform/linux/athena_Ethernet.c's
// socket/SIOCGIFINDEX/bind/SIOCGIFHWADDR/SIOCGIFMTU sequence and
// athena_TransportLinkModuleETH1990.c's ether_header framing (prepend
// a 14-byte header carrying the peer's hardware address as destination
// and this host's as source, ether_type fixed to etherType). Like the
// original, each socket only ever talks to one peer MAC; a listener
// URI waits for the first frame from any peer and locks onto its
// source address, the same simplification udptransport/tcptransport/
// wstransport apply to their own listener modes.
package ethtransport

import (
	"encoding/binary"
	"fmt"
	"net"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/kuuji/athena/internal/fragmenter"
	"github.com/kuuji/athena/internal/link"
	"github.com/kuuji/athena/internal/message"
	"github.com/kuuji/athena/internal/stats"
	"github.com/kuuji/athena/internal/transport"
	"github.com/kuuji/athena/internal/wireformat"
)

// Scheme is the connection-URI scheme this module handles.
const Scheme = "eth"

// etherType is the same reserved CCNx/NDN ethertype the original
// AF_PACKET transport bound its socket to.
const etherType = 0x0801

const headerLen = 14 // 6 dst + 6 src + 2 ethertype, struct ether_header

const defaultMTU = 1500

// minFrameLen is the minimum Ethernet frame size (header + payload);
// shorter frames are zero-padded by the sender (spec §6).
const minFrameLen = 60

type Module struct{}

func New() *Module { return &Module{} }

func (m *Module) Scheme() string { return Scheme }

// Open binds a raw socket to the interface named by uri.Authority. A
// non-listener URI additionally requires uri.Src to name the peer's
// hardware address (there is no ARP/neighbor resolution here); a
// listener URI locks onto whichever MAC address sends the first frame.
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

	ifi, err := net.InterfaceByName(uri.Authority)
	if err != nil {
		return nil, fmt.Errorf("ethtransport: looking up interface %q: %w", uri.Authority, err)
	}

	fd, err := unix.Socket(unix.AF_PACKET, unix.SOCK_RAW, int(htons(etherType)))
	if err != nil {
		return nil, fmt.Errorf("ethtransport: socket: %w", err)
	}

	addr := unix.SockaddrLinklayer{
		Protocol: htons(etherType),
		Ifindex:  ifi.Index,
	}
	if err := unix.Bind(fd, &addr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("ethtransport: bind to %q: %w", uri.Authority, err)
	}

	var peer net.HardwareAddr
	if uri.Src != "" {
		peer, err = net.ParseMAC(uri.Src)
		if err != nil {
			unix.Close(fd)
			return nil, fmt.Errorf("ethtransport: parsing src=%q: %w", uri.Src, err)
		}
	} else if !uri.Listener {
		unix.Close(fd)
		return nil, fmt.Errorf("ethtransport: non-listener %q requires src=<peer MAC>", uri.Authority)
	}

	l := &Link{
		Base:       link.NewBase(name, forced, true, mtu),
		fd:         fd,
		myAddr:     ifi.HardwareAddr,
		peer:       peer,
		isListener: uri.Listener,
		reasm:      fragmenter.NewReassembler(),
	}
	go l.readLoop()
	return l, nil
}

func htons(v uint16) uint16 {
	return v<<8&0xff00 | v>>8&0x00ff
}

// buildFrame prepends a 14-byte Ethernet header to payload and
// zero-pads the result up to minFrameLen (spec §6).
func buildFrame(dst, src net.HardwareAddr, payload []byte) []byte {
	frameLen := headerLen + len(payload)
	if frameLen < minFrameLen {
		frameLen = minFrameLen
	}
	frame := make([]byte, frameLen)
	copy(frame[0:6], dst)
	copy(frame[6:12], src)
	binary.BigEndian.PutUint16(frame[12:14], etherType)
	copy(frame[headerLen:], payload)
	return frame
}

// Link is one raw-socket Ethernet peer connection.
type Link struct {
	*link.Base

	fd         int
	myAddr     net.HardwareAddr
	isListener bool

	peerMu sync.Mutex
	peer   net.HardwareAddr

	reasm *fragmenter.Reassembler
}

// Send implements link.Link, prepending a 14-byte Ethernet header and
// HOPFRAG-fragmenting if the encoded message would exceed the link
// MTU, the same way athena_TransportLinkModuleETH1990.c's
// _ETH1990_FragmentAndSend does.
func (l *Link) Send(m *message.Message) error {
	if l.Closed() {
		return fmt.Errorf("ethtransport: link %q is closed", l.Name())
	}

	l.peerMu.Lock()
	peer := l.peer
	l.peerMu.Unlock()
	if peer == nil {
		return fmt.Errorf("ethtransport: link %q has no peer yet", l.Name())
	}

	wire, err := wireformat.Encode(m)
	if err != nil {
		return fmt.Errorf("ethtransport: encoding message: %w", err)
	}

	frames := [][]byte{wire}
	if len(wire)+headerLen > l.MTU() {
		frames, err = fragmenter.Fragment(wire, l.MTU()-headerLen)
		if err != nil {
			return fmt.Errorf("ethtransport: fragmenting message: %w", err)
		}
	}

	for _, f := range frames {
		frame := buildFrame(peer, l.myAddr, f)

		if err := unix.Send(l.fd, frame, 0); err != nil {
			stats.LinkSendFailuresTotal.WithLabelValues(l.Name()).Inc()
			return fmt.Errorf("ethtransport: send: %w", err)
		}
		stats.FragmentsSentTotal.WithLabelValues(l.Name()).Inc()
	}
	return nil
}

func (l *Link) readLoop() {
	buf := make([]byte, 65536)
	for {
		n, _, err := unix.Recvfrom(l.fd, buf, 0)
		if err != nil {
			l.Close()
			return
		}
		if n < headerLen {
			continue
		}
		frame := buf[:n]

		dst := net.HardwareAddr(frame[0:6])
		if !macEqual(dst, l.myAddr) {
			continue
		}
		src := net.HardwareAddr(append([]byte(nil), frame[6:12]...))

		l.peerMu.Lock()
		if l.peer == nil {
			l.peer = src
		} else if !macEqual(l.peer, src) {
			l.peerMu.Unlock()
			continue
		}
		l.peerMu.Unlock()

		l.handlePayload(frame[headerLen:])
	}
}

func (l *Link) handlePayload(payload []byte) {
	stats.LinkReceivedTotal.WithLabelValues(l.Name()).Inc()

	wire := payload
	if fragmenter.IsFragment(payload) {
		reassembled, err := l.reasm.Feed(payload)
		if err != nil {
			stats.FragmentReassemblyErrorsTotal.WithLabelValues(l.Name()).Inc()
			return
		}
		if reassembled == nil {
			return
		}
		wire = reassembled
	}

	m, err := wireformat.Decode(wire)
	if err != nil {
		stats.DroppedTotal.WithLabelValues("decode_error").Inc()
		return
	}
	l.Deliver(m)
}

func macEqual(a, b net.HardwareAddr) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Close also closes the underlying raw socket fd, unblocking Recvfrom.
func (l *Link) Close() error {
	unix.Close(l.fd)
	return l.Base.Close()
}
