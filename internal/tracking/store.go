package tracking

import (
	"context"
	"sync"
	"sync/atomic"
)

// InitFunc builds the initial state of a trip that is not yet tracked.
type InitFunc func(ctx context.Context) (*Trip, error)

// MutateFunc changes a trip and its fired set. It works on staged copies which
// are committed only when it returns nil.
type MutateFunc func(trip *Trip, fired FiredSet) error

// Store owns the state of every active trip. Access to one trip is serialized
// by a per-trip mutex; the map lock is only held for lookups.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	active  atomic.Int64
}

type entry struct {
	mu      sync.Mutex
	trip    *Trip
	fired   FiredSet
	removed bool

	// refs counts goroutines holding or waiting for mu; guarded by Store.mu.
	refs int
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]*entry)}
}

// Update runs fn with exclusive access to the trip, initializing it with initFn
// when it is not tracked yet. initFn runs at most once per trip: concurrent
// callers queue on the trip's lock and see the initialized state. A failed
// initFn leaves nothing behind. With a nil initFn an untracked trip yields
// ErrTripNotActive. created reports whether this call initialized the trip.
func (s *Store) Update(ctx context.Context, tripID string, initFn InitFunc, fn MutateFunc) (created bool, err error) {
	e := s.acquire(tripID, initFn != nil)
	if e == nil {
		return false, ErrTripNotActive
	}
	defer s.release(tripID, e)

	if e.trip == nil {
		if initFn == nil {
			return false, ErrTripNotActive
		}
		trip, err := initFn(ctx)
		if err != nil {
			return false, err
		}
		e.trip = trip
		e.fired = make(FiredSet)
		s.active.Add(1)
		created = true
	}

	if fn == nil {
		return created, nil
	}

	staged := e.trip.clone()
	stagedFired := e.fired.clone()
	if err := fn(staged, stagedFired); err != nil {
		return created, err
	}
	e.trip = staged
	e.fired = stagedFired

	return created, nil
}

// Get returns a snapshot of the trip.
func (s *Store) Get(tripID string) (Trip, bool) {
	e := s.acquire(tripID, false)
	if e == nil {
		return Trip{}, false
	}
	defer s.release(tripID, e)

	if e.trip == nil {
		return Trip{}, false
	}
	return *e.trip.clone(), true
}

// Remove evicts the trip and its fired set. It reports whether the trip was tracked.
func (s *Store) Remove(tripID string) bool {
	e := s.acquire(tripID, false)
	if e == nil {
		return false
	}

	existed := e.trip != nil
	if existed {
		e.trip = nil
		e.fired = nil
		s.active.Add(-1)
	}
	s.release(tripID, e)
	return existed
}

// Len returns the number of tracked trips.
func (s *Store) Len() int {
	return int(s.active.Load())
}

// acquire returns the locked entry for tripID, creating it when create is set.
// It returns nil when the entry does not exist and create is false.
func (s *Store) acquire(tripID string, create bool) *entry {
	for {
		s.mu.Lock()
		e, ok := s.entries[tripID]
		if !ok {
			if !create {
				s.mu.Unlock()
				return nil
			}
			e = &entry{}
			s.entries[tripID] = e
		}
		e.refs++
		s.mu.Unlock()

		e.mu.Lock()
		if !e.removed {
			return e
		}

		// Evicted while we waited; retry against the current map.
		s.mu.Lock()
		e.refs--
		s.mu.Unlock()
		e.mu.Unlock()
	}
}

// release drops the caller's reference and unlocks e. Entries without a trip
// are removed from the map once nobody else references them.
func (s *Store) release(tripID string, e *entry) {
	s.mu.Lock()
	e.refs--
	if e.trip == nil && e.refs == 0 && !e.removed {
		e.removed = true
		if s.entries[tripID] == e {
			delete(s.entries, tripID)
		}
	}
	s.mu.Unlock()
	e.mu.Unlock()
}
