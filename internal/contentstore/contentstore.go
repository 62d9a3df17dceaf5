// Package contentstore implements Athena's bounded, name/keyId/hash-
// addressed cache of ContentObjects with LRU eviction (spec §3, §4.5),
// built on the hashicorp/golang-lru recency tracker the way
// caddyserver-caddy's vendor tree carries the same library for bounded
// in-memory caching.
package contentstore

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/kuuji/athena/internal/message"
	"github.com/kuuji/athena/internal/stats"
	"github.com/kuuji/athena/internal/wirename"
)

// RejectReason explains why Put refused an object.
type RejectReason string

const (
	RejectTooLarge RejectReason = "too_large"
)

type record struct {
	name       string // wirename.Name.Key()
	keyID      []byte
	hasHash    bool
	hash       [32]byte
	expiry     time.Time
	wire       []byte
	lastAccess time.Time
}

func (r *record) isExpired(now time.Time) bool {
	return !r.expiry.IsZero() && now.After(r.expiry)
}

func (r *record) size() int64 { return int64(len(r.wire)) }

// restrictionKey is the composite cache key: (name, keyId?, hash?).
func restrictionKey(nameKey string, keyID []byte, hasHash bool, hash [32]byte) string {
	k := nameKey
	if keyID != nil {
		k += "|k:" + string(keyID)
	}
	if hasHash {
		k += "|h:" + string(hash[:])
	}
	return k
}

// Store is the bounded content-object cache. The zero value is not
// usable; construct with New.
type Store struct {
	mu sync.Mutex

	lru          *lru.Cache // composite key -> *record
	byName       map[string]map[string]struct{}
	capacity     int64 // bytes
	currentBytes int64
	now          func() time.Time
}

// unboundedItems is the item-count ceiling passed to the underlying LRU;
// Store enforces the real (byte-size) capacity itself in Put/evict, so
// the LRU is used purely as a recency tracker, never to size-limit.
const unboundedItems = 1 << 20

const bytesPerMegabyte = 1 << 20

// New creates a Store with the given capacity in megabytes, the unit
// set_capacity/get_capacity operate on (spec §4.5).
func New(capacityMB int64) *Store {
	s := &Store{
		byName:   make(map[string]map[string]struct{}),
		capacity: capacityMB * bytesPerMegabyte,
		now:      time.Now,
	}
	c, err := lru.NewWithEvict(unboundedItems, s.onEvicted)
	if err != nil {
		// lru.NewWithEvict only errors on size <= 0, which unboundedItems
		// never triggers; a failure here is a programmer error.
		panic("contentstore: creating LRU: " + err.Error())
	}
	s.lru = c
	return s
}

// onEvicted is the hashicorp/golang-lru eviction callback; it keeps
// currentBytes and the by-name index consistent whenever the LRU drops
// an entry, whether from our own RemoveOldest() loop or a direct Remove.
func (s *Store) onEvicted(key, value interface{}) {
	r := value.(*record)
	s.currentBytes -= r.size()
	s.unindex(key.(string), r.name)
}

func (s *Store) index(key, nameKey string) {
	set, ok := s.byName[nameKey]
	if !ok {
		set = make(map[string]struct{})
		s.byName[nameKey] = set
	}
	set[key] = struct{}{}
}

func (s *Store) unindex(key, nameKey string) {
	set, ok := s.byName[nameKey]
	if !ok {
		return
	}
	delete(set, key)
	if len(set) == 0 {
		delete(s.byName, nameKey)
	}
}

// Put inserts or refreshes an entry. If capacity would be exceeded,
// entries are evicted LRU-first until enough space exists; an item
// larger than the total capacity is always rejected rather than ever
// accommodated (spec §4.5).
func (s *Store) Put(co *message.ContentObject) (stored bool, reason RejectReason) {
	nameKey := co.Name.Key()
	key := restrictionKey(nameKey, co.KeyID, co.HasHash, co.Hash)
	size := int64(len(co.Payload))

	s.mu.Lock()
	defer s.mu.Unlock()

	if size > s.capacity {
		return false, RejectTooLarge
	}

	// Refreshing an existing entry: remove its old size contribution
	// first so the eviction loop below sees accurate headroom. Remove
	// runs onEvicted, which subtracts the old size and unindexes it.
	if _, ok := s.lru.Peek(key); ok {
		s.lru.Remove(key)
	}

	for s.currentBytes+size > s.capacity && s.lru.Len() > 0 {
		s.lru.RemoveOldest()
		stats.ContentStoreEvictionsTotal.Inc()
	}

	r := &record{
		name:       nameKey,
		keyID:      co.KeyID,
		hasHash:    co.HasHash,
		hash:       co.Hash,
		expiry:     co.ExpiryTime,
		wire:       co.Payload,
		lastAccess: s.now(),
	}
	s.lru.Add(key, r)
	s.index(key, nameKey)
	s.currentBytes += size

	return true, ""
}

// GetMatch returns a ContentObject consistent with the interest's
// (name, optional keyId, optional hash) and not expired, updating its
// last-access time. Returns nil if no such entry exists (spec §4.5).
func (s *Store) GetMatch(i *message.Interest) *message.ContentObject {
	nameKey := i.Name.Key()
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.byName[nameKey] {
		v, ok := s.lru.Peek(key)
		if !ok {
			continue
		}
		r := v.(*record)
		if r.isExpired(now) {
			s.lru.Remove(key)
			continue
		}
		if !matchesRestriction(i, r) {
			continue
		}
		r.lastAccess = now
		s.lru.Get(key) // bump recency
		stats.ContentStoreHitsTotal.Inc()
		return &message.ContentObject{
			Name:       i.Name.Copy(),
			KeyID:      r.keyID,
			Hash:       r.hash,
			HasHash:    r.hasHash,
			ExpiryTime: r.expiry,
			Payload:    r.wire,
		}
	}

	stats.ContentStoreMissesTotal.Inc()
	return nil
}

func matchesRestriction(i *message.Interest, r *record) bool {
	if i.Restriction.KeyID != nil {
		if r.keyID == nil || !bytesEqual(i.Restriction.KeyID, r.keyID) {
			return false
		}
	}
	if i.Restriction.HasHash {
		if !r.hasHash || i.Restriction.Hash != r.hash {
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

// RemoveMatch removes one entry consistent with (name, keyId, hash), if
// any, and reports whether it found one (spec §4.5).
func (s *Store) RemoveMatch(name wirename.Name, keyID []byte, hasHash bool, hash [32]byte) bool {
	nameKey := name.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	for key := range s.byName[nameKey] {
		v, ok := s.lru.Peek(key)
		if !ok {
			continue
		}
		r := v.(*record)
		if keyID != nil && (r.keyID == nil || !bytesEqual(keyID, r.keyID)) {
			continue
		}
		if hasHash && (!r.hasHash || hash != r.hash) {
			continue
		}
		s.lru.Remove(key)
		return true
	}
	return false
}

// SetCapacity changes the capacity in megabytes, evicting down to it
// synchronously if it shrank ("implementations must evict down to the
// new capacity immediately, not lazily", spec §9 Open Question).
func (s *Store) SetCapacity(megabytes int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.capacity = megabytes * bytesPerMegabyte
	for s.currentBytes > s.capacity && s.lru.Len() > 0 {
		s.lru.RemoveOldest()
		stats.ContentStoreEvictionsTotal.Inc()
	}
}

// GetCapacity returns the current capacity in megabytes.
func (s *Store) GetCapacity() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.capacity / bytesPerMegabyte
}

// Size returns the current total size of cached entries in bytes, for
// diagnostics/tests.
func (s *Store) Size() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentBytes
}

// Len returns the number of cached entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}
