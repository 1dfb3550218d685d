package hatvec

import "testing"

func idSuffix(b byte) Id {
	var id Id
	id[len(id)-1] = b
	return id
}

func TestSortHitsOrdersByDescendingScore(t *testing.T) {
	hits := []Hit{
		{ID: idSuffix(1), Score: 0.2},
		{ID: idSuffix(2), Score: 0.9},
		{ID: idSuffix(3), Score: 0.5},
	}
	SortHits(hits)
	for i := 0; i+1 < len(hits); i++ {
		if hits[i].Score < hits[i+1].Score {
			t.Fatalf("hits not in descending score order: %+v", hits)
		}
	}
	if hits[0].Score != 0.9 {
		t.Fatalf("top score = %v, want 0.9", hits[0].Score)
	}
}

func TestSortHitsBreaksTiesByAscendingId(t *testing.T) {
	hits := []Hit{
		{ID: idSuffix(9), Score: 1.0},
		{ID: idSuffix(2), Score: 1.0},
		{ID: idSuffix(5), Score: 1.0},
	}
	SortHits(hits)
	want := []byte{2, 5, 9}
	for i, w := range want {
		if hits[i].ID != idSuffix(w) {
			t.Fatalf("hits[%d].ID = %x, want suffix %d", i, hits[i].ID, w)
		}
	}
}

func TestSortHitsMixedScoresAndTies(t *testing.T) {
	hits := []Hit{
		{ID: idSuffix(9), Score: 0.5},
		{ID: idSuffix(1), Score: 0.9},
		{ID: idSuffix(3), Score: 0.5},
		{ID: idSuffix(2), Score: 0.9},
	}
	SortHits(hits)
	wantOrder := []byte{1, 2, 3, 9}
	for i, w := range wantOrder {
		if hits[i].ID != idSuffix(w) {
			t.Fatalf("hits[%d] = %+v, want suffix %d", i, hits[i], w)
		}
	}
}

func TestTopKTruncates(t *testing.T) {
	hits := []Hit{{ID: idSuffix(1)}, {ID: idSuffix(2)}, {ID: idSuffix(3)}}
	got := TopK(hits, 2)
	if len(got) != 2 {
		t.Fatalf("len(TopK) = %d, want 2", len(got))
	}
}

func TestTopKClampsToAvailableLength(t *testing.T) {
	hits := []Hit{{ID: idSuffix(1)}}
	if got := TopK(hits, 5); len(got) != 1 {
		t.Fatalf("len(TopK) = %d, want 1", len(got))
	}
}

func TestTopKClampsNegativeToZero(t *testing.T) {
	hits := []Hit{{ID: idSuffix(1)}, {ID: idSuffix(2)}}
	if got := TopK(hits, -1); len(got) != 0 {
		t.Fatalf("len(TopK) = %d, want 0", len(got))
	}
}
