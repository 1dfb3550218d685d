package store

import (
	"testing"

	"github.com/liliang-cn/hatvec"
)

func TestMemStorePlaceAssignsFreshIds(t *testing.T) {
	s := NewMemStore(3, 0)

	id1, err := s.Place(hatvec.Point{1, 0, 0}, hatvec.Blob("a"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	id2, err := s.Place(hatvec.Point{0, 1, 0}, hatvec.Blob("b"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected distinct ids")
	}
	if s.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", s.Len())
	}
}

func TestMemStorePlaceRejectsWrongDimension(t *testing.T) {
	s := NewMemStore(3, 0)
	if _, err := s.Place(hatvec.Point{1, 0}, nil); err != hatvec.ErrDimensionMismatch {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestMemStorePlaceWithIDRejectsDuplicate(t *testing.T) {
	s := NewMemStore(3, 0)
	id := hatvec.NewId()
	if err := s.PlaceWithID(id, hatvec.Point{1, 0, 0}, nil); err != nil {
		t.Fatalf("place_with_id: %v", err)
	}
	if err := s.PlaceWithID(id, hatvec.Point{0, 1, 0}, nil); err != hatvec.ErrConflict {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestMemStoreGetReturnsCopiesNotAliases(t *testing.T) {
	s := NewMemStore(3, 0)
	v := hatvec.Point{1, 0, 0}
	id, err := s.Place(v, hatvec.Blob("x"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	v[0] = 99
	e, ok := s.Get(id)
	if !ok {
		t.Fatalf("expected entry to exist")
	}
	if e.Vector[0] == 99 {
		t.Fatalf("entry vector aliases caller's slice")
	}

	e.Vector[1] = 42
	e2, _ := s.Get(id)
	if e2.Vector[1] == 42 {
		t.Fatalf("Get result aliases stored entry")
	}
}

func TestMemStoreRemoveReturnsPriorEntry(t *testing.T) {
	s := NewMemStore(3, 0)
	id, err := s.Place(hatvec.Point{1, 0, 0}, hatvec.Blob("x"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	e, ok := s.Remove(id)
	if !ok {
		t.Fatalf("expected removal to report the prior entry")
	}
	if string(e.Payload) != "x" {
		t.Fatalf("payload = %q, want %q", e.Payload, "x")
	}
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", s.Len())
	}

	if _, ok := s.Remove(id); ok {
		t.Fatalf("expected second removal to report absence")
	}
}

func TestMemStoreCapacityExceeded(t *testing.T) {
	v := hatvec.Point{1, 0, 0}
	budget := sizeOf(len(v), 0)
	s := NewMemStore(3, budget)

	if _, err := s.Place(v, nil); err != nil {
		t.Fatalf("place within budget: %v", err)
	}
	if _, err := s.Place(v, nil); err != hatvec.ErrCapacityExceeded {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
}

func TestMemStoreRePlaceWithIDAfterRemoveAccountsSizeOnce(t *testing.T) {
	s := NewMemStore(3, 0)
	id, err := s.Place(hatvec.Point{1, 0, 0}, hatvec.Blob("short"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	before := s.SizeBytes()

	s.Remove(id)
	if err := s.PlaceWithID(id, hatvec.Point{1, 0, 0}, hatvec.Blob("short")); err != nil {
		t.Fatalf("place_with_id: %v", err)
	}
	if s.SizeBytes() != before {
		t.Fatalf("SizeBytes() = %d, want %d", s.SizeBytes(), before)
	}
}

func TestMemStoreIterStopsEarly(t *testing.T) {
	s := NewMemStore(3, 0)
	for i := 0; i < 5; i++ {
		s.Place(hatvec.Point{float32(i), 0, 0}, nil)
	}

	seen := 0
	s.Iter(func(Entry) bool {
		seen++
		return seen < 2
	})
	if seen != 2 {
		t.Fatalf("seen = %d, want 2", seen)
	}
}

func TestMemStoreClear(t *testing.T) {
	s := NewMemStore(3, 0)
	s.Place(hatvec.Point{1, 0, 0}, hatvec.Blob("x"))
	s.Clear()
	if s.Len() != 0 || s.SizeBytes() != 0 {
		t.Fatalf("expected empty store after Clear, got len=%d size=%d", s.Len(), s.SizeBytes())
	}
}
