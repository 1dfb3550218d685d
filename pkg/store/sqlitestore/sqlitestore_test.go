package sqlitestore

import (
	"path/filepath"
	"testing"

	"github.com/liliang-cn/hatvec"
	"github.com/liliang-cn/hatvec/pkg/store"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "entries.db")
	s, err := Open(path, 3, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPlaceAndGetRoundTrip(t *testing.T) {
	s := openTest(t)

	id, err := s.Place(hatvec.Point{1, 0.5, -1}, hatvec.Blob("payload"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	e, ok := s.Get(id)
	if !ok {
		t.Fatalf("expected entry to exist")
	}
	if string(e.Payload) != "payload" {
		t.Fatalf("payload = %q, want %q", e.Payload, "payload")
	}
	for i, v := range e.Vector {
		want := []float32{1, 0.5, -1}[i]
		if v != want {
			t.Fatalf("vector[%d] = %v, want %v", i, v, want)
		}
	}
}

func TestPlaceRejectsWrongDimension(t *testing.T) {
	s := openTest(t)
	if _, err := s.Place(hatvec.Point{1, 0}, nil); err != hatvec.ErrDimensionMismatch {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestPlaceWithIDRejectsDuplicate(t *testing.T) {
	s := openTest(t)
	id := hatvec.NewId()
	if err := s.PlaceWithID(id, hatvec.Point{1, 0, 0}, nil); err != nil {
		t.Fatalf("place_with_id: %v", err)
	}
	if err := s.PlaceWithID(id, hatvec.Point{0, 1, 0}, nil); err != hatvec.ErrConflict {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

func TestRemoveDeletesEntry(t *testing.T) {
	s := openTest(t)
	id, err := s.Place(hatvec.Point{1, 0, 0}, hatvec.Blob("x"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}

	e, ok := s.Remove(id)
	if !ok || string(e.Payload) != "x" {
		t.Fatalf("remove returned e=%+v ok=%v", e, ok)
	}
	if _, ok := s.Get(id); ok {
		t.Fatalf("expected entry to be gone after remove")
	}
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", s.Len())
	}
}

func TestIterVisitsEveryEntry(t *testing.T) {
	s := openTest(t)
	want := map[hatvec.Id]bool{}
	for i := 0; i < 4; i++ {
		id, err := s.Place(hatvec.Point{float32(i), 0, 0}, nil)
		if err != nil {
			t.Fatalf("place: %v", err)
		}
		want[id] = true
	}

	got := map[hatvec.Id]bool{}
	s.Iter(func(e store.Entry) bool {
		got[e.ID] = true
		return true
	})
	if len(got) != len(want) {
		t.Fatalf("iterated %d entries, want %d", len(got), len(want))
	}
}

func TestCapacityExceeded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entries.db")
	s, err := Open(path, 3, 16+12+0+48)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()

	if _, err := s.Place(hatvec.Point{1, 0, 0}, nil); err != nil {
		t.Fatalf("place within budget: %v", err)
	}
	if _, err := s.Place(hatvec.Point{0, 1, 0}, nil); err != hatvec.ErrCapacityExceeded {
		t.Fatalf("err = %v, want ErrCapacityExceeded", err)
	}
}

func TestClearRemovesAllEntries(t *testing.T) {
	s := openTest(t)
	s.Place(hatvec.Point{1, 0, 0}, hatvec.Blob("a"))
	s.Place(hatvec.Point{0, 1, 0}, hatvec.Blob("b"))

	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("Len() = %d, want 0 after Clear", s.Len())
	}
}
