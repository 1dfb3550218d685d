package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/liliang-cn/hatvec"
	"github.com/liliang-cn/hatvec/pkg/store"
)

func cfg3() hatvec.Config {
	return hatvec.DefaultConfig(3)
}

func TestPlaceAssignsFreshIds(t *testing.T) {
	eng := New(cfg3())

	id1, err := eng.Place(hatvec.Point{1, 0, 0}, hatvec.Blob("a"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	id2, err := eng.Place(hatvec.Point{0, 1, 0}, hatvec.Blob("b"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	if id1 == id2 {
		t.Fatalf("expected distinct ids")
	}
	if eng.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", eng.Len())
	}
}

func TestPlaceRejectsWrongDimension(t *testing.T) {
	eng := New(cfg3())
	if _, err := eng.Place(hatvec.Point{1, 0}, nil); !errors.Is(err, hatvec.ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestPlaceWithIDRejectsDuplicate(t *testing.T) {
	eng := New(cfg3())
	id := hatvec.NewId()
	if err := eng.PlaceWithID(id, hatvec.Point{1, 0, 0}, nil); err != nil {
		t.Fatalf("place_with_id: %v", err)
	}
	err := eng.PlaceWithID(id, hatvec.Point{0, 1, 0}, nil)
	if !errors.Is(err, hatvec.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
}

// collidingStore wraps a MemStore but always hands Place the pre-chosen
// id, regardless of whether it is already present elsewhere in the
// index. It exists to force the tree.Add failure branch of Place so the
// store-write-rollback path can be exercised directly.
type collidingStore struct {
	*store.MemStore
	id hatvec.Id
}

func (c *collidingStore) Place(v hatvec.Point, payload hatvec.Blob) (hatvec.Id, error) {
	// Simulate the store independently agreeing to (re)write under c.id —
	// removing any prior entry first, the way a real backend's upsert
	// would — while the tree (which Engine.Place has not touched yet)
	// still holds c.id as a live chunk from an earlier placement.
	c.MemStore.Remove(c.id)
	if err := c.MemStore.PlaceWithID(c.id, v, payload); err != nil {
		return hatvec.Id{}, err
	}
	return c.id, nil
}

func TestPlaceRollsBackStoreWriteOnTreeInsertFailure(t *testing.T) {
	collider := hatvec.NewId()
	s := &collidingStore{MemStore: store.NewMemStore(3, 0), id: collider}
	eng := New(cfg3(), WithStore(s))

	if err := eng.PlaceWithID(collider, hatvec.Point{1, 0, 0}, hatvec.Blob("first")); err != nil {
		t.Fatalf("seed place_with_id: %v", err)
	}
	if s.Len() != 1 {
		t.Fatalf("store len = %d, want 1", s.Len())
	}

	// Place always routes through collidingStore.Place, which reuses the
	// same id already present in the tree: the store write succeeds (the
	// underlying MemStore overwrites) but tree.Add then sees a conflicting
	// chunk id and fails, so Place must roll the store entry back out.
	if _, err := eng.Place(hatvec.Point{0, 1, 0}, hatvec.Blob("second")); !errors.Is(err, hatvec.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if s.Len() != 0 {
		t.Fatalf("store len = %d after rollback, want 0", s.Len())
	}
}

func TestRemoveIsNoopOnUnknownId(t *testing.T) {
	eng := New(cfg3())
	eng.Remove(hatvec.NewId()) // must not panic
	if eng.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", eng.Len())
	}
}

func TestRemoveDeletesFromStoreAndIndex(t *testing.T) {
	eng := New(cfg3())
	id, err := eng.Place(hatvec.Point{1, 0, 0}, hatvec.Blob("x"))
	if err != nil {
		t.Fatalf("place: %v", err)
	}
	eng.Remove(id)
	if eng.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", eng.Len())
	}
	hits, err := eng.NearWithData(hatvec.Point{1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("near: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("expected no hits after removal, got %d", len(hits))
	}
}

func TestNearRanksBySimilarity(t *testing.T) {
	eng := New(cfg3())
	eng.Place(hatvec.Point{1, 0, 0}, hatvec.Blob("close"))
	eng.Place(hatvec.Point{0, 1, 0}, hatvec.Blob("far"))

	hits, err := eng.NearWithData(hatvec.Point{1, 0, 0}, 2)
	if err != nil {
		t.Fatalf("near: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2", len(hits))
	}
	if string(hits[0].Payload) != "close" {
		t.Fatalf("top hit payload = %q, want %q", hits[0].Payload, "close")
	}
}

func TestNearSessionsAndDocumentsScopeToStructure(t *testing.T) {
	eng := New(cfg3())

	eng.NewSession()
	eng.Place(hatvec.Point{1, 0, 0}, nil)
	sessA, _ := eng.tree.CurrentSession()

	eng.NewSession()
	eng.Place(hatvec.Point{0, 1, 0}, nil)

	hits, err := eng.NearSessions(hatvec.Point{1, 0, 0}, 1)
	if err != nil {
		t.Fatalf("near_sessions: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != sessA {
		t.Fatalf("near_sessions did not rank session A first")
	}
}

func TestConsolidateLightIsIdempotent(t *testing.T) {
	eng := New(cfg3())
	for i := 0; i < 5; i++ {
		eng.Place(hatvec.Point{1, float32(i) * 0.01, 0}, nil)
	}
	before := eng.Stats()
	eng.Consolidate(ConsolidateLight)
	eng.Consolidate(ConsolidateLight)
	after := eng.Stats()
	if before != after {
		t.Fatalf("consolidate changed stats across idempotent calls: %+v -> %+v", before, after)
	}
}

func TestClearWipesStoreAndTree(t *testing.T) {
	eng := New(cfg3())
	eng.Place(hatvec.Point{1, 0, 0}, hatvec.Blob("x"))
	eng.Clear()
	if !eng.IsEmpty() {
		t.Fatalf("expected empty engine after Clear")
	}
}

func TestWithClockIsSharedWithTree(t *testing.T) {
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	eng := New(cfg3(), WithClock(func() time.Time { return fixed }))
	if _, err := eng.Place(hatvec.Point{1, 0, 0}, nil); err != nil {
		t.Fatalf("place: %v", err)
	}
	nodes := eng.tree.Walk()
	if len(nodes) == 0 {
		t.Fatalf("expected at least one node")
	}
	for _, n := range nodes {
		if !n.Timestamp.Equal(fixed) {
			t.Fatalf("node timestamp = %v, want %v", n.Timestamp, fixed)
		}
	}
}
