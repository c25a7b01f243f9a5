// Package cachestore is a small in-memory key/value cache with two
// independent expiry mechanisms: a per-entry TTL and single-use entries that
// are consumed by their first successful read. It exists to avoid duplicate
// lookups between a validation step and the handler that follows it.
package cachestore

import (
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

const (
	// DefaultTTL applies when a Set does not specify a positive TTL.
	DefaultTTL = 100 * time.Second

	// DefaultCapacity is the maximum number of resident entries before the
	// oldest ones are evicted.
	DefaultCapacity = 1000
)

type entry struct {
	value     any
	expiresAt time.Time
	once      bool
	seq       uint64
	consumed  atomic.Bool
}

// Store is safe for concurrent use by any number of call chains; no
// multi-step invariant spans two chains, so per-key atomicity is all it
// enforces.
type Store struct {
	entries  *xsync.MapOf[string, *entry]
	seq      atomic.Uint64
	capacity int
	now      func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity overrides the maximum number of resident entries.
func WithCapacity(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.capacity = n
		}
	}
}

// withClock is used by tests to control expiry.
func withClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New returns an empty store.
func New(opts ...Option) *Store {
	s := &Store{
		entries:  xsync.NewMapOf[string, *entry](),
		capacity: DefaultCapacity,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Set stores value under key with an absolute expiry of now+ttl. A
// non-positive ttl means DefaultTTL. When once is true the entry is deleted
// as part of its first successful Get. Overwriting an existing key resets
// both expiry and once state. Set never fails; when the store is over
// capacity the oldest entries are evicted first.
func (s *Store) Set(key string, value any, ttl time.Duration, once bool) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s.entries.Store(key, &entry{
		value:     value,
		expiresAt: s.now().Add(ttl),
		once:      once,
		seq:       s.seq.Add(1),
	})
	s.evictOverflow()
}

// Get returns the value under key. It fails closed: expired entries read as
// absent (and are dropped). A once entry is delivered to exactly one reader;
// concurrent Gets for the same key race on an atomic consume flag, so the
// value is handed out at most once before the entry is deleted.
func (s *Store) Get(key string) (any, bool) {
	e, ok := s.entries.Load(key)
	if !ok {
		return nil, false
	}
	if s.now().After(e.expiresAt) {
		s.deleteIfSame(key, e)
		return nil, false
	}
	if e.once {
		if !e.consumed.CompareAndSwap(false, true) {
			return nil, false
		}
		s.deleteIfSame(key, e)
	}
	return e.value, true
}

// deleteIfSame removes key only while it still holds e, so a concurrent Set
// that overwrote the key is never deleted by a stale reader. Deleting an
// absent key is a no-op; returning delete=false there would insert the nil
// entry instead.
func (s *Store) deleteIfSame(key string, e *entry) {
	s.entries.Compute(key, func(cur *entry, loaded bool) (*entry, bool) {
		return cur, !loaded || cur == e
	})
}

// Len reports the number of resident entries, expired or not.
func (s *Store) Len() int {
	return s.entries.Size()
}

// evictOverflow drops oldest-first until the store is back under capacity.
// Eviction is approximate under concurrent writes, which is acceptable for a
// bounded duplicate-lookup cache.
func (s *Store) evictOverflow() {
	for s.entries.Size() > s.capacity {
		var (
			oldestKey string
			oldestSeq uint64
			found     bool
		)
		s.entries.Range(func(key string, e *entry) bool {
			if !found || e.seq < oldestSeq {
				oldestKey, oldestSeq, found = key, e.seq, true
			}
			return true
		})
		if !found {
			return
		}
		s.entries.Delete(oldestKey)
	}
}
