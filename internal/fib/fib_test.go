package fib

import (
	"testing"

	"github.com/kuuji/athena/internal/linkset"
	"github.com/kuuji/athena/internal/wirename"
)

func name(segs ...string) wirename.Name {
	out := make([]wirename.Segment, len(segs))
	for i, s := range segs {
		out[i] = wirename.Segment{Type: wirename.SegmentAPP, Value: []byte(s)}
	}
	return wirename.New(out...)
}

func TestAddRouteLookupLaw(t *testing.T) {
	t.Parallel()

	f := New()
	n := name("a")
	f.AddRoute(n, linkset.Of(1, 2))

	got, ok := f.Lookup(n, linkset.LinkSet{})
	if !ok {
		t.Fatal("expected a match")
	}
	if got.Len() != 2 || !got.Contains(1) || !got.Contains(2) {
		t.Errorf("lookup = %v, want {1,2}", got.Slice())
	}
}

func TestDeleteRouteLaw(t *testing.T) {
	t.Parallel()

	f := New()
	n := name("a")
	f.AddRoute(n, linkset.Of(1, 2))
	if err := f.DeleteRoute(n, linkset.Of(1, 2)); err != nil {
		t.Fatalf("DeleteRoute: %v", err)
	}

	if _, ok := f.Lookup(n, linkset.LinkSet{}); ok {
		t.Error("expected no match after deleting all links")
	}

	if err := f.DeleteRoute(n, linkset.Of(1)); err == nil {
		t.Error("expected ErrNoEntry deleting from an already-empty entry")
	}
}

func TestLongestPrefixMatch(t *testing.T) {
	t.Parallel()

	f := New()
	f.AddRoute(name("a"), linkset.Of(1))
	f.AddRoute(name("a", "b"), linkset.Of(2))

	got, ok := f.Lookup(name("a", "b", "c"), linkset.LinkSet{})
	if !ok || got.Len() != 1 || !got.Contains(2) {
		t.Errorf("expected longest match {2}, got %v ok=%v", got.Slice(), ok)
	}

	got, ok = f.Lookup(name("a", "x"), linkset.LinkSet{})
	if !ok || !got.Contains(1) {
		t.Errorf("expected fallback to shorter prefix {1}, got %v ok=%v", got.Slice(), ok)
	}
}

func TestDefaultRouteFallback(t *testing.T) {
	t.Parallel()

	f := New()
	f.AddRoute(wirename.DefaultRoute(), linkset.Of(9))

	got, ok := f.Lookup(name("nowhere"), linkset.LinkSet{})
	if !ok || !got.Contains(9) {
		t.Errorf("expected default route {9}, got %v ok=%v", got.Slice(), ok)
	}
}

func TestNoMatchNoDefault(t *testing.T) {
	t.Parallel()

	f := New()
	if _, ok := f.Lookup(name("nothing"), linkset.LinkSet{}); ok {
		t.Error("expected no match with an empty FIB")
	}
}

func TestReverseIndexInvariant(t *testing.T) {
	t.Parallel()

	f := New()
	n := name("a")
	f.AddRoute(n, linkset.Of(1, 2))

	names := f.ReverseNames(1)
	if len(names) != 1 || names[0] != n.Key() {
		t.Errorf("reverse index at link 1 = %v, want [%q]", names, n.Key())
	}
}

func TestLen(t *testing.T) {
	t.Parallel()

	f := New()
	if f.Len() != 0 {
		t.Fatalf("Len() on empty FIB = %d, want 0", f.Len())
	}

	f.AddRoute(name("a"), linkset.Of(1))
	f.AddRoute(name("b"), linkset.Of(2))
	f.AddRoute(wirename.DefaultRoute(), linkset.Of(3))
	if f.Len() != 3 {
		t.Errorf("Len() = %d, want 3", f.Len())
	}

	if err := f.DeleteRoute(name("a"), linkset.Of(1)); err != nil {
		t.Fatalf("DeleteRoute: %v", err)
	}
	if f.Len() != 2 {
		t.Errorf("Len() after delete = %d, want 2", f.Len())
	}
}

func TestRemoveLink(t *testing.T) {
	t.Parallel()

	f := New()
	n := name("a")
	f.AddRoute(n, linkset.Of(1, 2))

	f.RemoveLink(linkset.Of(1))

	got, ok := f.Lookup(n, linkset.LinkSet{})
	if !ok || got.Contains(1) || !got.Contains(2) {
		t.Errorf("lookup after RemoveLink(1) = %v ok=%v, want {2}", got.Slice(), ok)
	}
	if names := f.ReverseNames(1); len(names) != 0 {
		t.Errorf("reverse index at link 1 should be empty, got %v", names)
	}
}
