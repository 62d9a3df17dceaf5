// Package wireformat provides a minimal binary encoding for Messages.
// The wire codec proper is an external collaborator this forwarder
// assumes rather than implements (spec §1); this package exists only so
// the Link/Adapter/Forwarder pipeline has concrete bytes to exchange in
// this repository's own tests and loopback transports, the way the
// original implementation's TEMPLATE transport module carries raw
// CCNxMetaMessage buffers without caring about their internal TLV
// structure. Field layout follows the teacher's binary-parsing idiom
// (length-prefixed, encoding/binary.BigEndian) rather than any real NDN
// wire schema.
package wireformat

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/kuuji/athena/internal/message"
	"github.com/kuuji/athena/internal/wirename"
)

const (
	kindInterest byte = iota
	kindContentObject
	kindInterestReturn
	kindControl
)

func putBytes(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

func getBytes(r *bytes.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := r.Read(lenBuf[:]); err != nil {
		return nil, fmt.Errorf("wireformat: reading length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	out := make([]byte, n)
	if n > 0 {
		if _, err := r.Read(out); err != nil {
			return nil, fmt.Errorf("wireformat: reading %d bytes: %w", n, err)
		}
	}
	return out, nil
}

func putName(buf *bytes.Buffer, n wirename.Name) {
	buf.WriteByte(byte(n.Len()))
	var typeBuf [2]byte
	for i := 0; i < n.Len(); i++ {
		seg := n.Segment(i)
		binary.BigEndian.PutUint16(typeBuf[:], uint16(seg.Type))
		buf.Write(typeBuf[:])
		putBytes(buf, seg.Value)
	}
}

func getName(r *bytes.Reader) (wirename.Name, error) {
	count, err := r.ReadByte()
	if err != nil {
		return wirename.Name{}, fmt.Errorf("wireformat: reading segment count: %w", err)
	}
	segs := make([]wirename.Segment, count)
	var typeBuf [2]byte
	for i := range segs {
		if _, err := r.Read(typeBuf[:]); err != nil {
			return wirename.Name{}, fmt.Errorf("wireformat: reading segment type: %w", err)
		}
		v, err := getBytes(r)
		if err != nil {
			return wirename.Name{}, err
		}
		segs[i] = wirename.Segment{Type: wirename.SegmentType(binary.BigEndian.Uint16(typeBuf[:])), Value: v}
	}
	return wirename.New(segs...), nil
}

func putRestriction(buf *bytes.Buffer, r message.Restriction) {
	if r.KeyID != nil {
		buf.WriteByte(1)
		putBytes(buf, r.KeyID)
	} else {
		buf.WriteByte(0)
	}
	if r.HasHash {
		buf.WriteByte(1)
		buf.Write(r.Hash[:])
	} else {
		buf.WriteByte(0)
	}
}

func getRestriction(r *bytes.Reader) (message.Restriction, error) {
	var out message.Restriction
	hasKeyID, err := r.ReadByte()
	if err != nil {
		return out, err
	}
	if hasKeyID == 1 {
		out.KeyID, err = getBytes(r)
		if err != nil {
			return out, err
		}
	}
	hasHash, err := r.ReadByte()
	if err != nil {
		return out, err
	}
	if hasHash == 1 {
		out.HasHash = true
		if _, err := r.Read(out.Hash[:]); err != nil {
			return out, err
		}
	}
	return out, nil
}

func putInterest(buf *bytes.Buffer, i *message.Interest) {
	putName(buf, i.Name)
	putRestriction(buf, i.Restriction)
	buf.WriteByte(i.HopLimit)
}

func getInterest(r *bytes.Reader) (*message.Interest, error) {
	name, err := getName(r)
	if err != nil {
		return nil, err
	}
	restriction, err := getRestriction(r)
	if err != nil {
		return nil, err
	}
	hopLimit, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	return &message.Interest{Name: name, Restriction: restriction, HopLimit: hopLimit}, nil
}

// Encode renders m in this package's internal wire encoding.
func Encode(m *message.Message) ([]byte, error) {
	var buf bytes.Buffer

	switch m.Kind() {
	case message.KindInterest:
		buf.WriteByte(kindInterest)
		putInterest(&buf, m.Interest())

	case message.KindContentObject:
		co := m.ContentObject()
		buf.WriteByte(kindContentObject)
		putName(&buf, co.Name)
		if co.KeyID != nil {
			buf.WriteByte(1)
			putBytes(&buf, co.KeyID)
		} else {
			buf.WriteByte(0)
		}
		if co.HasHash {
			buf.WriteByte(1)
			buf.Write(co.Hash[:])
		} else {
			buf.WriteByte(0)
		}
		var expiry int64
		if !co.ExpiryTime.IsZero() {
			expiry = co.ExpiryTime.UnixMilli()
		}
		var expiryBuf [8]byte
		binary.BigEndian.PutUint64(expiryBuf[:], uint64(expiry))
		buf.Write(expiryBuf[:])
		putBytes(&buf, co.Payload)

	case message.KindInterestReturn:
		ir := m.InterestReturn()
		buf.WriteByte(kindInterestReturn)
		putInterest(&buf, ir.Original)
		buf.WriteByte(byte(ir.Reason))

	case message.KindControl:
		c := m.Control()
		buf.WriteByte(kindControl)
		putName(&buf, c.Name)
		putBytes(&buf, []byte(c.Operation))
		putBytes(&buf, c.Payload)
		buf.Write(c.CorrelationID[:])

	default:
		return nil, fmt.Errorf("wireformat: unknown message kind %v", m.Kind())
	}

	return buf.Bytes(), nil
}

// Decode parses wire produced by Encode back into a Message.
func Decode(wire []byte) (*message.Message, error) {
	if len(wire) == 0 {
		return nil, fmt.Errorf("wireformat: empty frame")
	}
	r := bytes.NewReader(wire[1:])

	switch wire[0] {
	case kindInterest:
		i, err := getInterest(r)
		if err != nil {
			return nil, fmt.Errorf("wireformat: decoding interest: %w", err)
		}
		return message.NewInterest(wire, i), nil

	case kindContentObject:
		name, err := getName(r)
		if err != nil {
			return nil, fmt.Errorf("wireformat: decoding content object name: %w", err)
		}
		co := &message.ContentObject{Name: name}
		hasKeyID, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if hasKeyID == 1 {
			co.KeyID, err = getBytes(r)
			if err != nil {
				return nil, err
			}
		}
		hasHash, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		if hasHash == 1 {
			co.HasHash = true
			if _, err := r.Read(co.Hash[:]); err != nil {
				return nil, err
			}
		}
		var expiryBuf [8]byte
		if _, err := r.Read(expiryBuf[:]); err != nil {
			return nil, err
		}
		if expiry := int64(binary.BigEndian.Uint64(expiryBuf[:])); expiry != 0 {
			co.ExpiryTime = time.UnixMilli(expiry)
		}
		co.Payload, err = getBytes(r)
		if err != nil {
			return nil, fmt.Errorf("wireformat: decoding content object payload: %w", err)
		}
		return message.NewContentObject(wire, co), nil

	case kindInterestReturn:
		i, err := getInterest(r)
		if err != nil {
			return nil, fmt.Errorf("wireformat: decoding interest return: %w", err)
		}
		reason, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		return message.NewInterestReturn(wire, &message.InterestReturn{
			Original: i,
			Reason:   message.ReturnReason(reason),
		}), nil

	case kindControl:
		name, err := getName(r)
		if err != nil {
			return nil, fmt.Errorf("wireformat: decoding control name: %w", err)
		}
		op, err := getBytes(r)
		if err != nil {
			return nil, err
		}
		payload, err := getBytes(r)
		if err != nil {
			return nil, err
		}
		var corr [16]byte
		if _, err := r.Read(corr[:]); err != nil {
			return nil, err
		}
		return message.NewControl(wire, &message.Control{
			Name:          name,
			Operation:     string(op),
			Payload:       payload,
			CorrelationID: corr,
		}), nil

	default:
		return nil, fmt.Errorf("wireformat: unknown kind byte 0x%02x", wire[0])
	}
}
