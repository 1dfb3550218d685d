package hat

import (
	"math"
	"time"

	"github.com/liliang-cn/hatvec"
)

// recencyScore returns exp(-age/halfLife), the recency term blended into
// beam-search scoring when TemporalWeight is non-zero.
func recencyScore(ts, now time.Time, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 0
	}
	age := now.Sub(ts)
	if age < 0 {
		age = 0
	}
	return math.Exp(-age.Seconds() / halfLife.Seconds())
}

// blendedScore combines semantic proximity with recency:
// (1-w)*rho + w*recency. w=0 recovers pure semantic scoring.
func (t *Tree) blendedScore(rho float32, ts time.Time, now time.Time) float32 {
	w := t.cfg.TemporalWeight
	if w <= 0 {
		return rho
	}
	rec := recencyScore(ts, now, t.cfg.TemporalHalfLife)
	return float32((1-w)*float64(rho) + w*rec)
}

// Near runs a beam search across levels: score all sessions, keep the top
// B; within those, score all documents and keep the top B; within those,
// score all chunks and return the top k overall, under the standard
// ordering rule.
func (t *Tree) Near(q hatvec.Point, k int) ([]hatvec.Hit, error) {
	if len(q) != t.cfg.Dim {
		return nil, hatvec.ErrDimensionMismatch
	}
	if k <= 0 || len(t.sessions) == 0 {
		return []hatvec.Hit{}, nil
	}

	now := t.now()
	B := t.cfg.BeamWidth

	sessionHits := make([]hatvec.Hit, 0, len(t.sessions))
	for id, s := range t.sessions {
		rho, err := t.cfg.Prox(q, s.centroid)
		if err != nil {
			return nil, err
		}
		sessionHits = append(sessionHits, hatvec.Hit{ID: id, Score: t.blendedScore(rho, s.timestamp, now)})
	}
	sessionHits = hatvec.TopK(hatvec.SortHits(sessionHits), B)

	var docHits []hatvec.Hit
	for _, sh := range sessionHits {
		sess := t.sessions[sh.ID]
		for _, did := range sess.docs {
			d := t.documents[did]
			rho, err := t.cfg.Prox(q, d.centroid)
			if err != nil {
				return nil, err
			}
			docHits = append(docHits, hatvec.Hit{ID: did, Score: t.blendedScore(rho, d.timestamp, now)})
		}
	}
	docHits = hatvec.TopK(hatvec.SortHits(docHits), B)

	var chunkHits []hatvec.Hit
	for _, dh := range docHits {
		doc := t.documents[dh.ID]
		for _, cid := range doc.chunks {
			c := t.chunks[cid]
			rho, err := t.cfg.Prox(q, c.vector)
			if err != nil {
				return nil, err
			}
			chunkHits = append(chunkHits, hatvec.Hit{ID: cid, Score: t.blendedScore(rho, c.timestamp, now)})
		}
	}

	return hatvec.TopK(hatvec.SortHits(chunkHits), k), nil
}

// NearSessions scores every session by pure semantic proximity of its
// centroid to q and returns the top k, skipping the beam.
func (t *Tree) NearSessions(q hatvec.Point, k int) ([]hatvec.Hit, error) {
	if len(q) != t.cfg.Dim {
		return nil, hatvec.ErrDimensionMismatch
	}
	return t.sessionIdx.Near(q, k)
}

// NearDocuments scores every document within sessionID by pure semantic
// proximity of its centroid to q and returns the top k.
func (t *Tree) NearDocuments(sessionID hatvec.Id, q hatvec.Point, k int) ([]hatvec.Hit, error) {
	if len(q) != t.cfg.Dim {
		return nil, hatvec.ErrDimensionMismatch
	}
	sess, ok := t.sessions[sessionID]
	if !ok {
		return nil, hatvec.ErrNotFound
	}
	return sess.docIndex.Near(q, k)
}

// Within returns every chunk in the tree with proximity >= tau to q,
// sorted by the standard ordering rule. Unlike Near, this is an exhaustive
// scan: there is no beam to prune with a threshold query.
func (t *Tree) Within(q hatvec.Point, tau float32) ([]hatvec.Hit, error) {
	if len(q) != t.cfg.Dim {
		return nil, hatvec.ErrDimensionMismatch
	}
	var hits []hatvec.Hit
	for id, c := range t.chunks {
		rho, err := t.cfg.Prox(q, c.vector)
		if err != nil {
			return nil, err
		}
		if rho >= tau {
			hits = append(hits, hatvec.Hit{ID: id, Score: rho})
		}
	}
	return hatvec.SortHits(hits), nil
}

// NearInDocument scores every chunk within documentID by pure semantic
// proximity to q and returns the top k.
func (t *Tree) NearInDocument(documentID hatvec.Id, q hatvec.Point, k int) ([]hatvec.Hit, error) {
	if len(q) != t.cfg.Dim {
		return nil, hatvec.ErrDimensionMismatch
	}
	doc, ok := t.documents[documentID]
	if !ok {
		return nil, hatvec.ErrNotFound
	}
	if doc.chunkIdx == nil {
		return []hatvec.Hit{}, nil
	}
	return doc.chunkIdx.Near(q, k)
}
