// Package message implements the tagged union of wire messages the
// forwarder exchanges: Interest, ContentObject, InterestReturn, and
// Control (spec §3). Every Message wraps an immutable wire-format
// buffer — produced and parsed by an external codec, out of scope here
// (spec §1) — plus an already-decoded typed view, and carries a
// shared-ownership reference count so the PIT, the Content Store, and
// in-flight send queues can each hold the same Message without a copy.
package message

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/kuuji/athena/internal/wirename"
)

// Kind discriminates the concrete type carried by a Message.
type Kind uint8

const (
	KindInterest Kind = iota
	KindContentObject
	KindInterestReturn
	KindControl
)

func (k Kind) String() string {
	switch k {
	case KindInterest:
		return "Interest"
	case KindContentObject:
		return "ContentObject"
	case KindInterestReturn:
		return "InterestReturn"
	case KindControl:
		return "Control"
	default:
		return "Unknown"
	}
}

// ReturnReason is the negative-acknowledgement reason carried by an
// InterestReturn (spec §3).
type ReturnReason uint8

const (
	ReasonNoRoute ReturnReason = iota
	ReasonHopLimitExceeded
	ReasonCongestion
	ReasonMTUTooLarge
	ReasonDuplicate
)

func (r ReturnReason) String() string {
	switch r {
	case ReasonNoRoute:
		return "NoRoute"
	case ReasonHopLimitExceeded:
		return "HopLimitExceeded"
	case ReasonCongestion:
		return "Congestion"
	case ReasonMTUTooLarge:
		return "MTUTooLarge"
	case ReasonDuplicate:
		return "Duplicate"
	default:
		return "Unknown"
	}
}

// Restriction is the (KeyId, ContentObjectHash) pair an Interest may
// optionally carry to narrow which ContentObjects satisfy it (spec §3).
type Restriction struct {
	KeyID    []byte // nil if unrestricted
	HasHash  bool
	Hash     [32]byte
}

// MatchesContentObject reports whether a restriction is satisfied by the
// given ContentObject per spec §4.4's match rule: keyId matches if the
// restriction set one, hash matches if the restriction set one.
func (r Restriction) MatchesContentObject(co *ContentObject) bool {
	if r.KeyID != nil {
		if co.KeyID == nil || !bytesEqual(r.KeyID, co.KeyID) {
			return false
		}
	}
	if r.HasHash {
		if !co.HasHash || r.Hash != co.Hash {
			return false
		}
	}
	return true
}

func bytesEqual(a, b []byte) bool {
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

// Interest is a request for named content.
type Interest struct {
	Name        wirename.Name
	Restriction Restriction
	HopLimit    uint8 // mutable: decremented as the interest crosses non-local links
}

// MatchKey returns a value that is equal, as a Go map key, for two
// Interests iff they are matchable-equal per spec §3: equal (Name,
// KeyId, Hash) restriction tuple.
func (i *Interest) MatchKey() string {
	k := i.Name.Key()
	if i.Restriction.KeyID != nil {
		k += "|k:" + string(i.Restriction.KeyID)
	}
	if i.Restriction.HasHash {
		k += "|h:" + string(i.Restriction.Hash[:])
	}
	return k
}

// ContentObject is a response carrying named content.
type ContentObject struct {
	Name       wirename.Name
	KeyID      []byte // nil if none
	Hash       [32]byte
	HasHash    bool
	ExpiryTime time.Time // zero value means "no expiry"
	Payload    []byte
}

// IsExpired reports whether the object's ExpiryTime has passed as of now.
func (c *ContentObject) IsExpired(now time.Time) bool {
	if c.ExpiryTime.IsZero() {
		return false
	}
	return now.After(c.ExpiryTime)
}

// ComputeHash derives the default content hash (blake2b-256 of the
// payload) for ContentObjects whose codec did not already supply one.
// The forwarder itself never validates a signature (spec §1); this is
// purely a content-addressing convenience used by tests and by content
// stores populated ahead of time.
func ComputeHash(payload []byte) [32]byte {
	return blake2b.Sum256(payload)
}

// InterestReturn is a negative acknowledgement of an Interest.
type InterestReturn struct {
	Original *Interest
	Reason   ReturnReason
}

// Control carries a management-plane request or reply addressed under
// the forwarder's reserved name prefix (spec §6).
type Control struct {
	Name          wirename.Name
	Operation     string
	Payload       []byte
	CorrelationID [16]byte // google/uuid-compatible correlation id, see NewCorrelationID
}

// NewCorrelationID returns a fresh random correlation id for tagging a
// Control request, so its eventual ACK can be matched back to it
// (spec §6; athena_Control.c tags replies with the request's sequence,
// a uuid.UUID plays that role here).
func NewCorrelationID() [16]byte {
	return [16]byte(uuid.New())
}

// Message is the tagged union shared across the pipeline, the PIT, the
// Content Store, and in-flight send queues. Use the New* constructors;
// zero values are not valid Messages.
type Message struct {
	kind Kind
	wire []byte

	interest       *Interest
	contentObject  *ContentObject
	interestReturn *InterestReturn
	control        *Control

	refs    *int32
	release func()
}

func newMessage(kind Kind, wire []byte) *Message {
	refs := int32(1)
	return &Message{kind: kind, wire: wire, refs: &refs}
}

// NewInterest wraps a decoded Interest plus its wire bytes in a Message.
func NewInterest(wire []byte, i *Interest) *Message {
	m := newMessage(KindInterest, wire)
	m.interest = i
	return m
}

// NewContentObject wraps a decoded ContentObject plus its wire bytes.
func NewContentObject(wire []byte, c *ContentObject) *Message {
	m := newMessage(KindContentObject, wire)
	m.contentObject = c
	return m
}

// NewInterestReturn wraps a decoded InterestReturn plus its wire bytes.
func NewInterestReturn(wire []byte, r *InterestReturn) *Message {
	m := newMessage(KindInterestReturn, wire)
	m.interestReturn = r
	return m
}

// NewControl wraps a decoded Control message plus its wire bytes.
func NewControl(wire []byte, c *Control) *Message {
	m := newMessage(KindControl, wire)
	m.control = c
	return m
}

// Kind reports which concrete type this Message carries.
func (m *Message) Kind() Kind { return m.kind }

// Wire returns the immutable wire-format buffer. Callers must not
// mutate the returned slice.
func (m *Message) Wire() []byte { return m.wire }

// Interest returns the typed view, or nil if Kind() != KindInterest.
func (m *Message) Interest() *Interest { return m.interest }

// ContentObject returns the typed view, or nil if Kind() != KindContentObject.
func (m *Message) ContentObject() *ContentObject { return m.contentObject }

// InterestReturn returns the typed view, or nil if Kind() != KindInterestReturn.
func (m *Message) InterestReturn() *InterestReturn { return m.interestReturn }

// Control returns the typed view, or nil if Kind() != KindControl.
func (m *Message) Control() *Control { return m.control }

// OnRelease registers a callback invoked exactly once, when the last
// reference to m is released. Used by the Content Store to know when
// wire bytes it owns can be reclaimed.
func (m *Message) OnRelease(fn func()) {
	m.release = fn
}

// Retain increments the shared reference count and returns m, so callers
// can write `held := msg.Retain()` at the point they store a reference.
func (m *Message) Retain() *Message {
	atomic.AddInt32(m.refs, 1)
	return m
}

// Release decrements the shared reference count. When it reaches zero,
// any registered OnRelease callback runs exactly once.
func (m *Message) Release() {
	if atomic.AddInt32(m.refs, -1) == 0 && m.release != nil {
		m.release()
	}
}
