// Package fib implements the Forwarding Information Base: a longest-
// prefix-match routing table from hierarchical Names to sets of
// outbound LinkIds, with a reverse link→names index for clean removal
// (spec §3, §4.3).
package fib

import (
	"sync"

	"github.com/kuuji/athena/internal/linkset"
	"github.com/kuuji/athena/internal/wirename"
)

// FIB maps Name -> LinkSet with longest-prefix-match lookup, a separate
// default route, and a reverse index for O(routes-on-link) removal.
// Safe for concurrent use, though in this forwarder's single-writer
// design (spec §5) only the engine thread ever calls the mutators.
type FIB struct {
	mu sync.RWMutex

	// byNameKey indexes by wirename.Name.Key() since Name is not itself
	// comparable as a map key (it holds a slice).
	byNameKey map[string]*entry

	defaultRoute linkset.LinkSet
	hasDefault   bool

	// reverse[link] is the set of name-keys that reference it.
	reverse map[linkset.LinkId]map[string]struct{}
}

type entry struct {
	name wirename.Name
	set  linkset.LinkSet
}

// New creates an empty FIB.
func New() *FIB {
	return &FIB{
		byNameKey: make(map[string]*entry),
		reverse:   make(map[linkset.LinkId]map[string]struct{}),
	}
}

func (f *FIB) addReverse(id linkset.LinkId, nameKey string) {
	names, ok := f.reverse[id]
	if !ok {
		names = make(map[string]struct{})
		f.reverse[id] = names
	}
	names[nameKey] = struct{}{}
}

func (f *FIB) removeReverse(id linkset.LinkId, nameKey string) {
	names, ok := f.reverse[id]
	if !ok {
		return
	}
	delete(names, nameKey)
	if len(names) == 0 {
		delete(f.reverse, id)
	}
}

// AddRoute unions links into the entry for name, creating it if absent.
// A name consisting of a single empty NAME segment installs the default
// route instead of a per-name entry (spec §4.3).
func (f *FIB) AddRoute(name wirename.Name, links linkset.LinkSet) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if name.IsDefaultRoute() {
		f.defaultRoute = f.defaultRoute.Union(links)
		f.hasDefault = true
		return
	}

	key := name.Key()
	e, ok := f.byNameKey[key]
	if !ok {
		e = &entry{name: name.Copy()}
		f.byNameKey[key] = e
	}
	e.set.UnionInPlace(links)

	links.ForEach(func(id linkset.LinkId) {
		f.addReverse(id, key)
	})
}

// ErrNoEntry is returned by DeleteRoute when name has no FIB entry.
type ErrNoEntry struct{ Name wirename.Name }

func (e *ErrNoEntry) Error() string { return "fib: no entry for " + e.Name.String() }

// DeleteRoute removes links from the entry for name, deleting the entry
// entirely once its link set becomes empty. Returns ErrNoEntry if name
// has no entry at all (spec §4.3).
func (f *FIB) DeleteRoute(name wirename.Name, links linkset.LinkSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if name.IsDefaultRoute() {
		if !f.hasDefault {
			return &ErrNoEntry{Name: name}
		}
		f.defaultRoute.SubtractInPlace(links)
		if f.defaultRoute.IsEmpty() {
			f.hasDefault = false
		}
		return nil
	}

	key := name.Key()
	e, ok := f.byNameKey[key]
	if !ok {
		return &ErrNoEntry{Name: name}
	}

	e.set.SubtractInPlace(links)
	links.ForEach(func(id linkset.LinkId) {
		f.removeReverse(id, key)
	})

	if e.set.IsEmpty() {
		delete(f.byNameKey, key)
	}
	return nil
}

// RemoveLink excises every route referencing any link in links, using
// the reverse index so only the affected names are touched (spec §4.2,
// §4.3).
func (f *FIB) RemoveLink(links linkset.LinkSet) {
	f.mu.Lock()
	defer f.mu.Unlock()

	links.ForEach(func(id linkset.LinkId) {
		for key := range f.reverse[id] {
			e, ok := f.byNameKey[key]
			if !ok {
				continue
			}
			e.set.Remove(id)
			if e.set.IsEmpty() {
				delete(f.byNameKey, key)
			}
		}
		delete(f.reverse, id)
		f.defaultRoute.Remove(id)
		if f.defaultRoute.IsEmpty() {
			f.hasDefault = false
		}
	})
}

// Lookup returns the longest-prefix match's link set for name, falling
// back to the default route, or (LinkSet{}, false) if neither exists
// (spec §4.3). ingress is accepted for interface symmetry with the
// forwarding pipeline's call site but is not consulted — the pipeline,
// not the FIB, subtracts the ingress link from the result (spec §4.3).
func (f *FIB) Lookup(name wirename.Name, _ linkset.LinkSet) (linkset.LinkSet, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	for n := name.Copy(); ; {
		if e, ok := f.byNameKey[n.Key()]; ok {
			return e.set.Clone(), true
		}
		if n.IsEmpty() {
			break
		}
		n = n.TrimLast(1)
	}

	if f.hasDefault {
		return f.defaultRoute.Clone(), true
	}
	return linkset.LinkSet{}, false
}

// Len returns the number of distinct route entries, counting the
// default route (if installed) as one.
func (f *FIB) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()

	n := len(f.byNameKey)
	if f.hasDefault {
		n++
	}
	return n
}

// ReverseNames returns the set of name-keys currently routed through
// link, for diagnostics/tests.
func (f *FIB) ReverseNames(id linkset.LinkId) []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]string, 0, len(f.reverse[id]))
	for k := range f.reverse[id] {
		out = append(out, k)
	}
	return out
}
