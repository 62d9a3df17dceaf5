// Package wirename implements the hierarchical, segmented name used to
// address Interests and ContentObjects: an ordered sequence of typed,
// opaque byte segments, analogous to a filesystem path but with no
// assumption of human-readable components.
package wirename

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

// SegmentType distinguishes the kind of a Name segment. The forwarding
// core only special-cases SegmentNAME (the default-route marker is a
// single zero-length NAME segment); all other types are opaque to it.
type SegmentType uint16

const (
	SegmentNAME SegmentType = 0
	SegmentAPP  SegmentType = 1
	SegmentCHUNK SegmentType = 2
	SegmentKeyID SegmentType = 3
	SegmentHash SegmentType = 4
)

// Segment is one opaque, typed component of a Name.
type Segment struct {
	Type  SegmentType
	Value []byte
}

func (s Segment) equal(o Segment) bool {
	return s.Type == o.Type && bytes.Equal(s.Value, o.Value)
}

// Name is an ordered, immutable sequence of Segments. The zero Name is
// the empty name (zero segments); a Name consisting of a single
// zero-length NAME segment is the reserved default-route name (see
// IsDefaultRoute).
type Name struct {
	segments []Segment
}

// New builds a Name from the given segments, copying the slice so later
// mutation by the caller cannot affect the Name.
func New(segments ...Segment) Name {
	cp := make([]Segment, len(segments))
	copy(cp, segments)
	return Name{segments: cp}
}

// DefaultRoute is the reserved name that installs/matches the FIB's
// default route: a single zero-length NAME segment (spec §3).
func DefaultRoute() Name {
	return Name{segments: []Segment{{Type: SegmentNAME, Value: nil}}}
}

// Len returns the number of segments in the name.
func (n Name) Len() int { return len(n.segments) }

// Segment returns the i'th segment.
func (n Name) Segment(i int) Segment { return n.segments[i] }

// Copy returns an independent copy of the name.
func (n Name) Copy() Name {
	cp := make([]Segment, len(n.segments))
	copy(cp, n.segments)
	return Name{segments: cp}
}

// TrimLast returns a copy of the name with its last k segments removed.
// Trimming more segments than the name has yields the empty name.
func (n Name) TrimLast(k int) Name {
	if k <= 0 {
		return n.Copy()
	}
	if k >= len(n.segments) {
		return Name{}
	}
	cp := make([]Segment, len(n.segments)-k)
	copy(cp, n.segments[:len(n.segments)-k])
	return Name{segments: cp}
}

// IsPrefixOf reports whether n is a (non-strict) prefix of other: every
// segment of n equals the corresponding segment of other, in order.
func (n Name) IsPrefixOf(other Name) bool {
	if len(n.segments) > len(other.segments) {
		return false
	}
	for i, s := range n.segments {
		if !s.equal(other.segments[i]) {
			return false
		}
	}
	return true
}

// Equal reports whether two names have identical segment sequences.
func (n Name) Equal(o Name) bool {
	if len(n.segments) != len(o.segments) {
		return false
	}
	for i, s := range n.segments {
		if !s.equal(o.segments[i]) {
			return false
		}
	}
	return true
}

// IsDefaultRoute reports whether n is the reserved default-route name: a
// single zero-length NAME segment.
func (n Name) IsDefaultRoute() bool {
	return len(n.segments) == 1 && n.segments[0].Type == SegmentNAME && len(n.segments[0].Value) == 0
}

// IsEmpty reports whether the name has zero segments.
func (n Name) IsEmpty() bool { return len(n.segments) == 0 }

// Key returns a value suitable for use as a Go map key: names with equal
// segment sequences produce equal Keys. Built by concatenating each
// segment's type and length-prefixed value, so segments cannot be
// confused across a boundary (e.g. {A,"BC"} vs {AB,"C"}).
func (n Name) Key() string {
	var b strings.Builder
	for _, s := range n.segments {
		var hdr [6]byte
		hdr[0] = byte(s.Type >> 8)
		hdr[1] = byte(s.Type)
		l := uint32(len(s.Value))
		hdr[2] = byte(l >> 24)
		hdr[3] = byte(l >> 16)
		hdr[4] = byte(l >> 8)
		hdr[5] = byte(l)
		b.Write(hdr[:])
		b.Write(s.Value)
	}
	return b.String()
}

// Hash returns a SHA-256 digest of the name's Key(), for use where a
// fixed-size fingerprint is preferable to the variable-length Key.
func (n Name) Hash() [32]byte {
	return sha256.Sum256([]byte(n.Key()))
}

// String renders the name as a human-readable "lci:/seg/seg/..." form.
// Segment values that are valid UTF-8 printable text are rendered
// directly; others are hex-encoded. This is strictly for logs/debugging
// — it is not guaranteed to round-trip through Parse.
func (n Name) String() string {
	if n.IsEmpty() {
		return "lci:/"
	}
	var b strings.Builder
	b.WriteString("lci:")
	for _, s := range n.segments {
		b.WriteByte('/')
		if isPrintable(s.Value) {
			b.Write(s.Value)
		} else {
			b.WriteString(hex.EncodeToString(s.Value))
		}
	}
	return b.String()
}

// Parse builds a Name from its "lci:/seg/seg/..." textual form: every
// segment becomes a literal SegmentAPP value. This is a configuration-
// file convenience (route prefixes, management prefix, quit name in a
// TOML file) rather than a general wire parser — the real wire format
// is the external codec's job (spec §1) — so it is not guaranteed to
// invert String's hex-encoding of non-printable segments.
func Parse(s string) (Name, error) {
	const prefix = "lci:/"
	if !strings.HasPrefix(s, prefix) {
		return Name{}, fmt.Errorf("wirename: %q must start with %q", s, prefix)
	}
	rest := s[len(prefix):]
	if rest == "" {
		return Name{}, nil
	}

	parts := strings.Split(rest, "/")
	segs := make([]Segment, len(parts))
	for i, p := range parts {
		segs[i] = Segment{Type: SegmentAPP, Value: []byte(p)}
	}
	return New(segs...), nil
}

func isPrintable(b []byte) bool {
	if len(b) == 0 {
		return true
	}
	for _, c := range b {
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}
