// Package fragmenter implements the HOPFRAG hop-by-hop fragmentation
// wire format and a per-peer reassembly state machine (spec §4.7, §6).
// The wire layout and B/E sequence-number bookkeeping are grounded on
// the original ETH1990 fragmenter
// (original_source/ccnx/forwarder/athena/athena_TransportLinkModuleETHFragmenter_1990.c);
// the middle-fragment accounting here is corrected relative to that
// source, which discards an in-progress reassembly on every fragment
// that is neither Begin nor End — a defect the round-trip invariant
// (spec §8.6) rules out.
package fragmenter

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	version     uint8 = 1
	typeHOPFRAG uint8 = 4

	// HeaderLength is the fixed wire size of a HOPFRAG header, in bytes.
	HeaderLength = 8
)

const (
	flagBegin = 0x80
	flagEnd   = 0x40
	flagIdle  = 0x20
)

const (
	serialBits  = 20
	SeqModulus  = 1 << serialBits
	seqHighMask = 0x0F // top nibble of byte 0 holds bits 19..16
)

// Header is the decoded form of a HOPFRAG fixed header.
type Header struct {
	PacketLength uint16
	Begin        bool
	End          bool
	Idle         bool
	Sequence     uint32 // 20-bit, wraps modulo SeqModulus
}

// Encode renders h as its 8-byte wire form (spec §6 wire diagram).
func (h Header) Encode() [HeaderLength]byte {
	var buf [HeaderLength]byte
	buf[0] = version
	buf[1] = typeHOPFRAG
	binary.BigEndian.PutUint16(buf[2:4], h.PacketLength)

	seq := h.Sequence % SeqModulus
	var flags uint8
	if h.Begin {
		flags |= flagBegin
	}
	if h.End {
		flags |= flagEnd
	}
	if h.Idle {
		flags |= flagIdle
	}
	buf[4] = flags | uint8((seq>>16)&seqHighMask)
	buf[5] = uint8(seq >> 8)
	buf[6] = uint8(seq)
	buf[7] = HeaderLength

	return buf
}

// ErrNotAFragment is returned by Decode when the frame's type field is
// not HOPFRAG; such frames must be passed through unchanged (spec §6).
var ErrNotAFragment = errors.New("fragmenter: not a HOPFRAG frame")

// IsFragment reports whether frame carries a HOPFRAG header, without
// fully decoding it.
func IsFragment(frame []byte) bool {
	return len(frame) >= 2 && frame[1] == typeHOPFRAG
}

// Decode parses the HOPFRAG header from the front of frame and returns
// it along with the remaining payload bytes.
func Decode(frame []byte) (Header, []byte, error) {
	if len(frame) < HeaderLength {
		return Header{}, nil, fmt.Errorf("fragmenter: frame of %d bytes shorter than header", len(frame))
	}
	if frame[1] != typeHOPFRAG {
		return Header{}, nil, ErrNotAFragment
	}

	var h Header
	h.PacketLength = binary.BigEndian.Uint16(frame[2:4])
	flags := frame[4]
	h.Begin = flags&flagBegin != 0
	h.End = flags&flagEnd != 0
	h.Idle = flags&flagIdle != 0
	h.Sequence = uint32(flags&seqHighMask)<<16 | uint32(frame[5])<<8 | uint32(frame[6])

	return h, frame[HeaderLength:], nil
}

// Fragment splits wire into a sequence of HOPFRAG frames no larger than
// mtu bytes each, setting Begin on the first and End on the last (spec
// §4.7, §8.6).
func Fragment(wire []byte, mtu int) ([][]byte, error) {
	maxPayload := mtu - HeaderLength
	if maxPayload <= 0 {
		return nil, fmt.Errorf("fragmenter: mtu %d too small for %d-byte header", mtu, HeaderLength)
	}
	if len(wire) == 0 {
		return nil, errors.New("fragmenter: cannot fragment an empty packet")
	}

	var out [][]byte
	seq := uint32(0)
	offset := 0
	for offset < len(wire) {
		remaining := len(wire) - offset
		payloadLen := maxPayload
		end := false
		if remaining <= maxPayload {
			payloadLen = remaining
			end = true
		}

		h := Header{
			Begin:    offset == 0,
			End:      end,
			Sequence: seq,
		}
		h.PacketLength = uint16(HeaderLength + payloadLen)
		hdr := h.Encode()

		frame := make([]byte, 0, HeaderLength+payloadLen)
		frame = append(frame, hdr[:]...)
		frame = append(frame, wire[offset:offset+payloadLen]...)
		out = append(out, frame)

		offset += payloadLen
		seq = (seq + 1) % SeqModulus
	}
	return out, nil
}

// IdleFrame builds a standalone keepalive fragment: payload-free and
// outside any reassembly sequence. A Reassembler that receives one
// discards any partial reassembly. No transport module here sends idle
// frames on its own; there is no idle timer.
func IdleFrame() []byte {
	h := Header{Idle: true, PacketLength: HeaderLength}
	buf := h.Encode()
	return buf[:]
}

// ErrSequenceGap is returned by Reassembler.Feed when a non-Begin
// fragment arrives with an unexpected sequence number; the in-progress
// reassembly is discarded (spec §7 "Decode" row: drop, count, continue).
var ErrSequenceGap = errors.New("fragmenter: sequence gap, reassembly discarded")

// Reassembler holds one peer's in-progress HOPFRAG reassembly state. The
// zero value is ready to use. Not safe for concurrent use; transports
// keep one Reassembler per peer and feed it from the same goroutine that
// reads that peer's frames.
type Reassembler struct {
	active      bool
	expectedSeq uint32
	buf         []byte
}

// NewReassembler returns a ready Reassembler.
func NewReassembler() *Reassembler { return &Reassembler{} }

// Feed processes one inbound frame. It returns the reassembled packet
// once an End fragment completes a sequence, (nil, nil) while a
// sequence is still in progress, or a non-nil error for a malformed
// frame or a sequence gap.
func (r *Reassembler) Feed(frame []byte) ([]byte, error) {
	h, payload, err := Decode(frame)
	if err != nil {
		return nil, err
	}
	if h.Idle {
		r.reset()
		return nil, nil
	}

	if h.Begin {
		r.buf = append(r.buf[:0], payload...)
		r.expectedSeq = nextSeq(h.Sequence)
		r.active = true
	} else {
		if !r.active || h.Sequence != r.expectedSeq {
			r.reset()
			return nil, ErrSequenceGap
		}
		r.buf = append(r.buf, payload...)
		r.expectedSeq = nextSeq(h.Sequence)
	}

	if h.End {
		out := make([]byte, len(r.buf))
		copy(out, r.buf)
		r.reset()
		return out, nil
	}
	return nil, nil
}

// Reset discards any in-progress reassembly, used when the underlying
// link closes or is reopened.
func (r *Reassembler) Reset() { r.reset() }

func (r *Reassembler) reset() {
	r.buf = nil
	r.active = false
	r.expectedSeq = 0
}

func nextSeq(seq uint32) uint32 { return (seq + 1) % SeqModulus }

// SeqGreaterThan compares two 20-bit HOPFRAG sequence numbers using the
// RFC 1982 shift-and-subtract serial comparison rule, so ordering stays
// correct across wraparound (spec §8 testable property).
func SeqGreaterThan(a, b uint32) bool {
	const halfRange = SeqModulus / 2
	diff := (a - b) & (SeqModulus - 1)
	return diff != 0 && diff < halfRange
}
