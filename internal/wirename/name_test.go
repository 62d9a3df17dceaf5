package wirename

import "testing"

func seg(t SegmentType, v string) Segment {
	return Segment{Type: t, Value: []byte(v)}
}

func TestIsPrefixOf(t *testing.T) {
	t.Parallel()

	a := New(seg(SegmentAPP, "a"), seg(SegmentAPP, "b"))
	ab := New(seg(SegmentAPP, "a"), seg(SegmentAPP, "b"), seg(SegmentAPP, "c"))

	if !a.IsPrefixOf(ab) {
		t.Errorf("expected %v to be a prefix of %v", a, ab)
	}
	if ab.IsPrefixOf(a) {
		t.Errorf("did not expect %v to be a prefix of %v", ab, a)
	}
	if !a.IsPrefixOf(a) {
		t.Errorf("a name must be a prefix of itself")
	}
}

func TestTrimLast(t *testing.T) {
	t.Parallel()

	n := New(seg(SegmentAPP, "a"), seg(SegmentAPP, "b"), seg(SegmentAPP, "c"))

	trimmed := n.TrimLast(1)
	want := New(seg(SegmentAPP, "a"), seg(SegmentAPP, "b"))
	if !trimmed.Equal(want) {
		t.Errorf("TrimLast(1) = %v, want %v", trimmed, want)
	}

	if got := n.TrimLast(10); !got.Equal(Name{}) {
		t.Errorf("TrimLast(10) = %v, want empty name", got)
	}

	if got := n.TrimLast(0); !got.Equal(n) {
		t.Errorf("TrimLast(0) = %v, want unchanged", got)
	}
}

func TestDefaultRoute(t *testing.T) {
	t.Parallel()

	if !DefaultRoute().IsDefaultRoute() {
		t.Error("DefaultRoute() must report IsDefaultRoute")
	}

	ordinary := New(seg(SegmentNAME, "x"))
	if ordinary.IsDefaultRoute() {
		t.Error("a non-empty NAME segment must not be the default route")
	}
}

func TestKeyDistinguishesSegmentBoundaries(t *testing.T) {
	t.Parallel()

	a := New(seg(SegmentAPP, "AB"), seg(SegmentAPP, "C"))
	b := New(seg(SegmentAPP, "A"), seg(SegmentAPP, "BC"))

	if a.Key() == b.Key() {
		t.Error("names with different segment boundaries must not share a Key")
	}
}

func TestEqualAndHash(t *testing.T) {
	t.Parallel()

	a := New(seg(SegmentAPP, "a"), seg(SegmentCHUNK, "0"))
	b := New(seg(SegmentAPP, "a"), seg(SegmentCHUNK, "0"))

	if !a.Equal(b) {
		t.Error("equal segment sequences must compare equal")
	}
	if a.Hash() != b.Hash() {
		t.Error("equal names must hash equal")
	}
}

func TestParse(t *testing.T) {
	t.Parallel()

	got, err := Parse("lci:/mgmt/route/add")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	want := New(seg(SegmentAPP, "mgmt"), seg(SegmentAPP, "route"), seg(SegmentAPP, "add"))
	if !got.Equal(want) {
		t.Errorf("Parse(%q) = %+v, want %+v", "lci:/mgmt/route/add", got, want)
	}

	if empty, err := Parse("lci:/"); err != nil || !empty.IsEmpty() {
		t.Errorf("Parse(%q) = %+v, %v, want empty name, nil error", "lci:/", empty, err)
	}

	if _, err := Parse("mgmt/route"); err == nil {
		t.Error("Parse should reject a string without the lci:/ scheme")
	}
}
