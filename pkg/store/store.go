// Package store defines the payload-store port: a stateful map from an
// identifier to its (vector, opaque payload) pair. The engine depends only
// on the PayloadStore interface, never on a concrete backend, so that
// callers can swap in the default in-memory MemStore or the SQLite-backed
// adapter in sqlitestore without touching anything above this package.
// The Postgres+pgvector adapter in pgstore offers the same operations as
// context-taking methods and does not implement PayloadStore.
package store

import (
	"fmt"
	"sync"

	"github.com/liliang-cn/hatvec"
)

// entryOverhead is the fixed per-entry bookkeeping cost added to every
// size accounting, on top of the id and the vector and payload bytes.
const entryOverhead = 48

// Entry is a placed (id, vector, payload) triple.
type Entry struct {
	ID      hatvec.Id
	Vector  hatvec.Point
	Payload hatvec.Blob
}

// sizeOf returns the conservative accounted size of an entry with the
// given vector length and payload size: 16 (id) + 4*dim + len(payload) + 48.
func sizeOf(dim, payloadLen int) int64 {
	return int64(hatvec.IDSize) + int64(4*dim) + int64(payloadLen) + entryOverhead
}

// PayloadStore is the port every backend implements.
type PayloadStore interface {
	// Place generates a fresh id, validates dimensionality and capacity,
	// stores (vector, payload), and returns the new id.
	Place(vector hatvec.Point, payload hatvec.Blob) (hatvec.Id, error)

	// PlaceWithID stores (vector, payload) under the caller-supplied id,
	// rejecting if the id already exists.
	PlaceWithID(id hatvec.Id, vector hatvec.Point, payload hatvec.Blob) error

	// Remove deletes id's entry, returning it if present.
	Remove(id hatvec.Id) (Entry, bool)

	// Get returns id's entry if present.
	Get(id hatvec.Id) (Entry, bool)

	// Iter calls fn for every stored entry in unspecified order. Iteration
	// stops early if fn returns false.
	Iter(fn func(Entry) bool)

	// SizeBytes returns a conservative upper bound on memory held.
	SizeBytes() int64

	// Len returns the number of stored entries.
	Len() int

	// Clear removes every entry.
	Clear()
}

// MemStore is the default PayloadStore adapter: a hashmap with per-entry
// size accounting. Capacity of 0 means unbounded.
type MemStore struct {
	mu       sync.RWMutex
	dim      int
	capacity int64
	entries  map[hatvec.Id]Entry
	size     int64
}

// NewMemStore creates an empty in-memory payload store for vectors of the
// given dimensionality. capacity is the size budget in bytes; 0 means
// unbounded.
func NewMemStore(dim int, capacity int64) *MemStore {
	return &MemStore{
		dim:      dim,
		capacity: capacity,
		entries:  make(map[hatvec.Id]Entry),
	}
}

func (s *MemStore) Place(vector hatvec.Point, payload hatvec.Blob) (hatvec.Id, error) {
	if len(vector) != s.dim {
		return hatvec.Id{}, hatvec.ErrDimensionMismatch
	}
	id := hatvec.NewId()
	if err := s.insert(id, vector, payload, false); err != nil {
		return hatvec.Id{}, err
	}
	return id, nil
}

func (s *MemStore) PlaceWithID(id hatvec.Id, vector hatvec.Point, payload hatvec.Blob) error {
	if len(vector) != s.dim {
		return hatvec.ErrDimensionMismatch
	}
	return s.insert(id, vector, payload, true)
}

func (s *MemStore) insert(id hatvec.Id, vector hatvec.Point, payload hatvec.Blob, rejectDup bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rejectDup {
		if _, exists := s.entries[id]; exists {
			return hatvec.ErrConflict
		}
	}

	added := sizeOf(len(vector), len(payload))
	if s.capacity > 0 && s.size+added > s.capacity {
		return hatvec.ErrCapacityExceeded
	}

	// A Place-style overwrite (not via PlaceWithID) still needs to account
	// for replacing an existing entry's size.
	if old, exists := s.entries[id]; exists {
		s.size -= sizeOf(len(old.Vector), len(old.Payload))
	}

	s.entries[id] = Entry{
		ID:      id,
		Vector:  append(hatvec.Point(nil), vector...),
		Payload: append(hatvec.Blob(nil), payload...),
	}
	s.size += added
	return nil
}

func (s *MemStore) Remove(id hatvec.Id) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	delete(s.entries, id)
	s.size -= sizeOf(len(e.Vector), len(e.Payload))
	return e, true
}

func (s *MemStore) Get(id hatvec.Id) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	return Entry{
		ID:      e.ID,
		Vector:  append(hatvec.Point(nil), e.Vector...),
		Payload: append(hatvec.Blob(nil), e.Payload...),
	}, true
}

func (s *MemStore) Iter(fn func(Entry) bool) {
	s.mu.RLock()
	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	for _, e := range entries {
		if !fn(e) {
			return
		}
	}
}

func (s *MemStore) SizeBytes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.size
}

func (s *MemStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[hatvec.Id]Entry)
	s.size = 0
}

var _ fmt.Stringer = (*MemStore)(nil)

// String returns a short human-readable summary, useful in CLI output.
func (s *MemStore) String() string {
	return fmt.Sprintf("MemStore(dim=%d, len=%d, size=%d)", s.dim, s.Len(), s.SizeBytes())
}
