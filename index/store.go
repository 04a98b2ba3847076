// Package index holds the local copy of the remote portal index: a mapping from
// entity id to the last known reference fingerprint.
package index

import (
	"sync"

	"github.com/portaldiscoverer/discoverer/common/types"
)

//go:generate mockgen -typed -package=index -destination=./mocks.go -source=./store.go

// Persister receives every delta applied to the store.
type Persister interface {
	Persist(delta types.Delta) error
}

// Opt configures a Store.
type Opt func(*Store)

// WithPersister saves applied deltas through p.
func WithPersister(p Persister) Opt {
	return func(s *Store) {
		s.persister = p
	}
}

// Store is the baseline index. Entries are only ever inserted or replaced by
// a newer remote value; nothing is removed locally.
type Store struct {
	mu          sync.RWMutex
	entries     map[types.EntityID]types.Fingerprint
	initialized bool
	persister   Persister
}

// New creates an empty, uninitialized store.
func New(opts ...Opt) *Store {
	s := &Store{entries: make(map[types.EntityID]types.Fingerprint)}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Merge inserts or overwrites every key of delta and marks the store initialized,
// even when delta is empty. Merging the same delta twice is a no-op the second
// time. It returns the number of entries that were inserted or changed.
//
// An error from the persister is returned after the in-memory merge is applied.
func (s *Store) Merge(delta types.Delta) (int, error) {
	changed := s.apply(delta)
	return changed, s.Persist(delta)
}

// Restore merges delta in memory only, for snapshots that are already saved
// or deltas persisted later with Persist.
func (s *Store) Restore(delta types.Delta) int {
	return s.apply(delta)
}

// Persist hands the current values of the keys of delta to the persister.
// Concurrent calls may complete in any order and still save the latest values.
func (s *Store) Persist(delta types.Delta) error {
	if s.persister == nil || len(delta) == 0 {
		return nil
	}
	s.mu.RLock()
	current := make(types.Delta, len(delta))
	for id := range delta {
		if fp, ok := s.entries[id]; ok {
			current[id] = fp
		}
	}
	s.mu.RUnlock()
	return s.persister.Persist(current)
}

func (s *Store) apply(delta types.Delta) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed := 0
	for id, fp := range delta {
		if prev, ok := s.entries[id]; ok && prev == fp {
			continue
		}
		s.entries[id] = fp
		changed++
	}
	s.initialized = true
	return changed
}

// Lookup returns the stored fingerprint for id.
func (s *Store) Lookup(id types.EntityID) (types.Fingerprint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fp, ok := s.entries[id]
	return fp, ok
}

// Known reports whether id is present in the index.
func (s *Store) Known(id types.EntityID) bool {
	_, ok := s.Lookup(id)
	return ok
}

// Initialized is false until the first Merge.
func (s *Store) Initialized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initialized
}

// Len returns the number of known entities.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a copy of the index.
func (s *Store) Snapshot() types.Delta {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(types.Delta, len(s.entries))
	for id, fp := range s.entries {
		out[id] = fp
	}
	return out
}
