package contentstore

import (
	"testing"
	"time"

	"github.com/kuuji/athena/internal/message"
	"github.com/kuuji/athena/internal/wirename"
)

func name(s string) wirename.Name {
	return wirename.New(wirename.Segment{Type: wirename.SegmentAPP, Value: []byte(s)})
}

func interestFor(s string) *message.Interest {
	return &message.Interest{Name: name(s)}
}

func TestPutAndGetMatch(t *testing.T) {
	t.Parallel()

	s := New(1) // 1 MB
	co := &message.ContentObject{Name: name("a"), Payload: []byte("hello")}

	stored, reason := s.Put(co)
	if !stored {
		t.Fatalf("Put rejected: %v", reason)
	}

	got := s.GetMatch(interestFor("a"))
	if got == nil || string(got.Payload) != "hello" {
		t.Fatalf("GetMatch = %v, want payload hello", got)
	}
}

func TestGetMatchMiss(t *testing.T) {
	t.Parallel()

	s := New(1)
	if got := s.GetMatch(interestFor("nowhere")); got != nil {
		t.Errorf("expected miss, got %v", got)
	}
}

func TestPutRejectsOversizedItem(t *testing.T) {
	t.Parallel()

	s := New(1) // 1 MB capacity
	huge := make([]byte, 2*bytesPerMegabyte)
	stored, reason := s.Put(&message.ContentObject{Name: name("a"), Payload: huge})
	if stored || reason != RejectTooLarge {
		t.Fatalf("Put(huge) = (%v, %v), want (false, RejectTooLarge)", stored, reason)
	}
	if s.Len() != 0 {
		t.Error("oversized item must not be stored")
	}
}

func TestEvictsLRUFirst(t *testing.T) {
	t.Parallel()

	// Capacity for roughly two 400KB entries.
	s := New(1)
	payload := make([]byte, 400*1024)

	s.Put(&message.ContentObject{Name: name("a"), Payload: payload})
	s.Put(&message.ContentObject{Name: name("b"), Payload: payload})
	// Touch "a" so "b" becomes the least-recently-used entry.
	s.GetMatch(interestFor("a"))
	s.Put(&message.ContentObject{Name: name("c"), Payload: payload})

	if got := s.GetMatch(interestFor("b")); got != nil {
		t.Error("expected b to have been evicted as least-recently-used")
	}
	if got := s.GetMatch(interestFor("a")); got == nil {
		t.Error("expected a to survive (recently touched)")
	}
	if got := s.GetMatch(interestFor("c")); got == nil {
		t.Error("expected c to survive (just inserted)")
	}
}

func TestSizeInvariantNeverExceedsCapacity(t *testing.T) {
	t.Parallel()

	s := New(1)
	payload := make([]byte, 300*1024)
	for i := 0; i < 10; i++ {
		s.Put(&message.ContentObject{Name: name(string(rune('a' + i))), Payload: payload})
		if s.Size() > s.GetCapacity()*bytesPerMegabyte {
			t.Fatalf("size %d exceeds capacity %d after insert %d", s.Size(), s.GetCapacity()*bytesPerMegabyte, i)
		}
	}
}

func TestExpiredEntryIsNotReturned(t *testing.T) {
	t.Parallel()

	s := New(1)
	past := time.Now().Add(-time.Second)
	s.Put(&message.ContentObject{Name: name("a"), ExpiryTime: past, Payload: []byte("x")})

	if got := s.GetMatch(interestFor("a")); got != nil {
		t.Error("expired entry must not be returned")
	}
}

func TestRemoveMatch(t *testing.T) {
	t.Parallel()

	s := New(1)
	s.Put(&message.ContentObject{Name: name("a"), Payload: []byte("x")})

	if !s.RemoveMatch(name("a"), nil, false, [32]byte{}) {
		t.Fatal("expected RemoveMatch to find the entry")
	}
	if s.GetMatch(interestFor("a")) != nil {
		t.Error("entry should be gone after RemoveMatch")
	}
	if s.RemoveMatch(name("a"), nil, false, [32]byte{}) {
		t.Error("second RemoveMatch should find nothing")
	}
}

func TestSetCapacityShrinksSynchronously(t *testing.T) {
	t.Parallel()

	s := New(2)
	payload := make([]byte, 900*1024)
	s.Put(&message.ContentObject{Name: name("a"), Payload: payload})
	s.Put(&message.ContentObject{Name: name("b"), Payload: payload})

	s.SetCapacity(1)

	if s.Size() > s.GetCapacity()*bytesPerMegabyte {
		t.Errorf("size %d exceeds new capacity %d immediately after SetCapacity", s.Size(), s.GetCapacity()*bytesPerMegabyte)
	}
}

func TestPutRefreshesExistingEntry(t *testing.T) {
	t.Parallel()

	s := New(1)
	s.Put(&message.ContentObject{Name: name("a"), Payload: []byte("first")})
	s.Put(&message.ContentObject{Name: name("a"), Payload: []byte("second")})

	if s.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (refresh, not duplicate)", s.Len())
	}
	got := s.GetMatch(interestFor("a"))
	if got == nil || string(got.Payload) != "second" {
		t.Errorf("GetMatch = %v, want payload second", got)
	}
}

func TestRestrictionDistinguishesKeyID(t *testing.T) {
	t.Parallel()

	s := New(1)
	s.Put(&message.ContentObject{Name: name("a"), KeyID: []byte("k1"), Payload: []byte("x")})

	i := interestFor("a")
	i.Restriction.KeyID = []byte("k2")
	if got := s.GetMatch(i); got != nil {
		t.Error("mismatched keyId restriction should miss")
	}

	i.Restriction.KeyID = []byte("k1")
	if got := s.GetMatch(i); got == nil {
		t.Error("matching keyId restriction should hit")
	}
}
