// Package linkset provides LinkId (a small dense link handle) and
// LinkSet (an efficient set of LinkIds), used throughout the forwarder
// for ingress vectors, FIB egress vectors, expected-return vectors, and
// adapter send-failure vectors (spec §3).
package linkset

import "math/bits"

// LinkId is a stable, dense, non-negative integer handle for a Link.
// Ids are reused after a link is removed (spec §3).
type LinkId uint32

const wordBits = 64

// LinkSet is a growable bitset of LinkIds. The zero value is the empty
// set, ready to use.
type LinkSet struct {
	words []uint64
}

// Of builds a LinkSet containing exactly the given ids.
func Of(ids ...LinkId) LinkSet {
	var s LinkSet
	for _, id := range ids {
		s.Add(id)
	}
	return s
}

func wordIndex(id LinkId) int { return int(id / wordBits) }
func bitMask(id LinkId) uint64 { return uint64(1) << (uint(id) % wordBits) }

func (s *LinkSet) ensure(wordIdx int) {
	if wordIdx < len(s.words) {
		return
	}
	grown := make([]uint64, wordIdx+1)
	copy(grown, s.words)
	s.words = grown
}

// Add inserts id into the set.
func (s *LinkSet) Add(id LinkId) {
	s.ensure(wordIndex(id))
	s.words[wordIndex(id)] |= bitMask(id)
}

// Remove deletes id from the set, if present.
func (s *LinkSet) Remove(id LinkId) {
	idx := wordIndex(id)
	if idx >= len(s.words) {
		return
	}
	s.words[idx] &^= bitMask(id)
}

// Contains reports whether id is a member of the set.
func (s LinkSet) Contains(id LinkId) bool {
	idx := wordIndex(id)
	if idx >= len(s.words) {
		return false
	}
	return s.words[idx]&bitMask(id) != 0
}

// IsEmpty reports whether the set has no members.
func (s LinkSet) IsEmpty() bool {
	for _, w := range s.words {
		if w != 0 {
			return false
		}
	}
	return true
}

// Len returns the number of members (cardinality).
func (s LinkSet) Len() int {
	n := 0
	for _, w := range s.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// Clone returns an independent copy of the set.
func (s LinkSet) Clone() LinkSet {
	cp := make([]uint64, len(s.words))
	copy(cp, s.words)
	return LinkSet{words: cp}
}

func maxLen(a, b []uint64) int {
	if len(a) > len(b) {
		return len(a)
	}
	return len(b)
}

func wordAt(words []uint64, i int) uint64 {
	if i >= len(words) {
		return 0
	}
	return words[i]
}

// Union returns a new LinkSet containing every id in s or in o.
func (s LinkSet) Union(o LinkSet) LinkSet {
	n := maxLen(s.words, o.words)
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = wordAt(s.words, i) | wordAt(o.words, i)
	}
	return LinkSet{words: out}
}

// Intersect returns a new LinkSet containing every id in both s and o.
func (s LinkSet) Intersect(o LinkSet) LinkSet {
	n := maxLen(s.words, o.words)
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = wordAt(s.words, i) & wordAt(o.words, i)
	}
	return LinkSet{words: out}
}

// Intersects reports whether s and o share any member, without
// allocating a result set.
func (s LinkSet) Intersects(o LinkSet) bool {
	n := maxLen(s.words, o.words)
	for i := 0; i < n; i++ {
		if wordAt(s.words, i)&wordAt(o.words, i) != 0 {
			return true
		}
	}
	return false
}

// Difference returns a new LinkSet containing every id in s that is not
// in o (s \ o).
func (s LinkSet) Difference(o LinkSet) LinkSet {
	n := len(s.words)
	out := make([]uint64, n)
	for i := 0; i < n; i++ {
		out[i] = s.words[i] &^ wordAt(o.words, i)
	}
	return LinkSet{words: out}
}

// UnionInPlace mutates s to additionally contain every id in o.
func (s *LinkSet) UnionInPlace(o LinkSet) {
	s.ensure(len(o.words) - 1)
	for i, w := range o.words {
		s.words[i] |= w
	}
}

// SubtractInPlace mutates s to remove every id present in o.
func (s *LinkSet) SubtractInPlace(o LinkSet) {
	n := len(s.words)
	for i := 0; i < n && i < len(o.words); i++ {
		s.words[i] &^= o.words[i]
	}
}

// NextSetBitAfter returns the smallest member of s strictly greater than
// k, and true, or (0, false) if there is none. Used to iterate the set
// in order without allocating a slice.
func (s LinkSet) NextSetBitAfter(k int) (LinkId, bool) {
	start := k + 1
	if start < 0 {
		start = 0
	}
	idx := start / wordBits
	off := start % wordBits
	for idx < len(s.words) {
		w := s.words[idx]
		if off > 0 {
			w &^= (uint64(1) << uint(off)) - 1
		}
		if w != 0 {
			bit := bits.TrailingZeros64(w)
			return LinkId(idx*wordBits + bit), true
		}
		idx++
		off = 0
	}
	return 0, false
}

// Slice returns the members of s as a sorted slice of LinkIds.
func (s LinkSet) Slice() []LinkId {
	out := make([]LinkId, 0, s.Len())
	id, ok := s.NextSetBitAfter(-1)
	for ok {
		out = append(out, id)
		id, ok = s.NextSetBitAfter(int(id))
	}
	return out
}

// ForEach calls fn for every member of s, in ascending order.
func (s LinkSet) ForEach(fn func(LinkId)) {
	id, ok := s.NextSetBitAfter(-1)
	for ok {
		fn(id)
		id, ok = s.NextSetBitAfter(int(id))
	}
}
