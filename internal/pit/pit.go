// Package pit implements the Pending Interest Table: the request-
// coalescing table that aggregates duplicate interests, remembers their
// reverse paths, and drives a matching ContentObject back along them
// (spec §3, §4.4).
package pit

import (
	"sync"
	"time"

	"github.com/kuuji/athena/internal/linkset"
	"github.com/kuuji/athena/internal/message"
	"github.com/kuuji/athena/internal/stats"
)

// Outcome is the result of AddInterest.
type Outcome uint8

const (
	// Forward means a new entry was created; the caller should consult
	// the FIB and populate the returned Entry's ExpectedReturn set.
	Forward Outcome = iota
	// Aggregated means an existing, unexpired entry absorbed the
	// ingress link; the caller must not forward again.
	Aggregated
	// Error means the table could not accept the interest (spec §7
	// "Resource" row); the caller should drop the message.
	Error
)

// Entry is a pending interest's bookkeeping record (spec §3 PITEntry).
type Entry struct {
	mu sync.Mutex

	Key            string
	Ingress        linkset.LinkSet
	ExpectedReturn linkset.LinkSet
	CreatedAt      time.Time
	Lifetime       time.Duration

	restriction message.Restriction
	name        string // wirename.Name.Key(), kept for match()
}

func (e *Entry) expired(now time.Time) bool {
	return now.Sub(e.CreatedAt) >= e.Lifetime
}

// SetExpectedReturn populates the expected-return set after the caller
// has consulted the FIB (spec §4.6 step 7). Safe to call once per
// Forward outcome.
func (e *Entry) SetExpectedReturn(links linkset.LinkSet) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ExpectedReturn = links.Clone()
}

// SubtractFailedLinks removes links the adapter reported as failed on
// send from the expected-return set (spec §4.6 step 8).
func (e *Entry) SubtractFailedLinks(failed linkset.LinkSet) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ExpectedReturn.SubtractInPlace(failed)
}

// DefaultLifetime is used when the caller does not specify one.
const DefaultLifetime = 4 * time.Second

// PIT is the pending interest table. Safe for concurrent use, though
// spec §5's single-writer design means only the engine thread mutates
// it in the common case.
type PIT struct {
	mu      sync.Mutex
	entries map[string]*Entry
	now     func() time.Time
}

// New creates an empty PIT.
func New() *PIT {
	return &PIT{entries: make(map[string]*Entry), now: time.Now}
}

// AddInterest looks up an entry by the interest's matchable key (spec
// §4.4). If absent (or present but expired), it creates a fresh entry
// with the given ingress set and returns (Forward, entry) — the caller
// must consult the FIB and call entry.SetExpectedReturn. If present and
// unexpired, it unions ingress into the entry and returns (Aggregated,
// entry) without touching ExpectedReturn.
func (p *PIT) AddInterest(i *message.Interest, ingress linkset.LinkSet, lifetime time.Duration) (Outcome, *Entry) {
	if ingress.IsEmpty() {
		return Error, nil
	}
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}

	key := i.MatchKey()
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	if e, ok := p.entries[key]; ok && !e.expired(now) {
		e.mu.Lock()
		e.Ingress.UnionInPlace(ingress)
		e.mu.Unlock()
		stats.PITAggregatedTotal.Inc()
		return Aggregated, e
	}

	e := &Entry{
		Key:         key,
		Ingress:     ingress.Clone(),
		CreatedAt:   now,
		Lifetime:    lifetime,
		restriction: i.Restriction,
		name:        i.Name.Key(),
	}
	p.entries[key] = e
	stats.PITForwardedTotal.Inc()
	return Forward, e
}

// Match finds every unexpired entry consistent with co (name equal,
// keyId/hash match if the entry constrained them) whose expected-return
// set intersects ingress, unions their ingress sets minus ingress, and
// removes the consumed entries (spec §4.4).
func (p *PIT) Match(co *message.ContentObject, ingress linkset.LinkSet) linkset.LinkSet {
	coNameKey := co.Name.Key()
	now := p.now()

	p.mu.Lock()
	defer p.mu.Unlock()

	var out linkset.LinkSet
	for key, e := range p.entries {
		if e.expired(now) {
			delete(p.entries, key)
			stats.PITExpiredTotal.Inc()
			continue
		}
		if e.name != coNameKey {
			continue
		}
		if !e.restriction.MatchesContentObject(co) {
			continue
		}
		e.mu.Lock()
		intersects := e.ExpectedReturn.Intersects(ingress)
		e.mu.Unlock()
		if !intersects {
			continue
		}

		out.UnionInPlace(e.Ingress)
		delete(p.entries, key)
	}
	out.SubtractInPlace(ingress)
	return out
}

// RemoveInterest clears links from the ingress set of the entry matching
// i, deleting the entry once its ingress set becomes empty (spec §4.4).
func (p *PIT) RemoveInterest(i *message.Interest, links linkset.LinkSet) {
	key := i.MatchKey()

	p.mu.Lock()
	defer p.mu.Unlock()

	e, ok := p.entries[key]
	if !ok {
		return
	}
	e.mu.Lock()
	e.Ingress.SubtractInPlace(links)
	empty := e.Ingress.IsEmpty()
	e.mu.Unlock()

	if empty {
		delete(p.entries, key)
	}
}

// RemoveLink subtracts links from the ingress and expected-return sets
// of every entry, deleting entries whose ingress set becomes empty
// (spec §4.2, §4.4).
func (p *PIT) RemoveLink(links linkset.LinkSet) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for key, e := range p.entries {
		e.mu.Lock()
		e.Ingress.SubtractInPlace(links)
		e.ExpectedReturn.SubtractInPlace(links)
		empty := e.Ingress.IsEmpty()
		e.mu.Unlock()

		if empty {
			delete(p.entries, key)
		}
	}
}

// Len reports the number of live (not lazily-expired) entries, for
// diagnostics/tests. It does not evict expired entries.
func (p *PIT) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Lookup returns the entry for i, if any, without mutating the table.
// No expiry check is applied: an expired entry that has not yet been
// removed is still returned.
func (p *PIT) Lookup(i *message.Interest) (*Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[i.MatchKey()]
	return e, ok
}
