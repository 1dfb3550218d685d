package hat

import (
	"math"
	"time"

	"github.com/liliang-cn/hatvec"
	"github.com/liliang-cn/hatvec/pkg/index"
)

// Config configures a Tree's scoring and maintenance behavior. It mirrors
// the relevant fields of hatvec.Config so pkg/hat does not depend on
// pkg/engine, which builds a Config from hatvec.Config.
type Config struct {
	Dim                  int
	Prox                 hatvec.ProximityFunc
	BeamWidth            int
	TemporalWeight       float64
	TemporalHalfLife     time.Duration
	PropagationThreshold float64
	MergeCap             int
	SplitCap             int
}

// Tree is the Hierarchical Attention Tree index. Per spec, its data
// structures are not internally synchronized: single-threaded cooperative
// access to a given instance is assumed, with serialization left to the
// caller (the Engine).
type Tree struct {
	cfg Config

	sessions  map[hatvec.Id]*sessionNode
	documents map[hatvec.Id]*documentNode
	chunks    map[hatvec.Id]*chunkNode

	sessionIdx *index.FlatIndex // session id -> session centroid

	currentSession  hatvec.Id
	currentDocument hatvec.Id

	now func() time.Time // overridable for tests
}

// New creates an empty Hierarchical Attention Tree.
func New(cfg Config) *Tree {
	if cfg.BeamWidth <= 0 {
		cfg.BeamWidth = 3
	}
	if cfg.Prox == nil {
		cfg.Prox = hatvec.CosineProximity
	}
	return &Tree{
		cfg:        cfg,
		sessions:   make(map[hatvec.Id]*sessionNode),
		documents:  make(map[hatvec.Id]*documentNode),
		chunks:     make(map[hatvec.Id]*chunkNode),
		sessionIdx: index.New(cfg.Dim, cfg.Prox),
		now:        time.Now,
	}
}

// SetClock overrides the tree's time source, for deterministic tests and
// for an owning Engine to share a single clock across its components.
func (t *Tree) SetClock(now func() time.Time) {
	if now != nil {
		t.now = now
	}
}

// NewSession marks the next Add as starting a fresh session; the current
// document is reset along with it.
func (t *Tree) NewSession() {
	t.currentSession = hatvec.Id{}
	t.currentDocument = hatvec.Id{}
}

// NewDocument marks the next Add as starting a fresh document under the
// current session.
func (t *Tree) NewDocument() {
	t.currentDocument = hatvec.Id{}
}

// Add inserts a chunk under the supplied id into the current
// document/session, creating either or both if no current context exists.
// It rejects a vector of the wrong dimensionality and an id already in the
// tree.
func (t *Tree) Add(id hatvec.Id, v hatvec.Point) error {
	if len(v) != t.cfg.Dim {
		return hatvec.ErrDimensionMismatch
	}
	if _, exists := t.chunks[id]; exists {
		return hatvec.ErrConflict
	}

	now := t.now()

	sess := t.ensureSession(now)
	doc := t.ensureDocument(sess, now)

	cn := &chunkNode{id: id, document: doc.id, session: sess.id, vector: clone(v), timestamp: now}
	t.chunks[id] = cn

	doc.chunks = append(doc.chunks, id)
	if doc.chunkIdx == nil {
		doc.chunkIdx = index.New(t.cfg.Dim, t.cfg.Prox)
	}
	doc.chunkIdx.Insert(id, v)

	t.applyInsertCentroid(doc, v)
	t.recomputeSessionFromDocs(sess)

	return nil
}

func (t *Tree) ensureSession(now time.Time) *sessionNode {
	if !t.currentSession.IsZero() {
		if s, ok := t.sessions[t.currentSession]; ok {
			return s
		}
	}
	id := hatvec.NewId()
	s := &sessionNode{
		id:        id,
		centroid:  make(hatvec.Point, t.cfg.Dim),
		timestamp: now,
		docIndex:  index.New(t.cfg.Dim, t.cfg.Prox),
	}
	t.sessions[id] = s
	t.sessionIdx.Insert(id, s.centroid)
	t.currentSession = id
	return s
}

func (t *Tree) ensureDocument(sess *sessionNode, now time.Time) *documentNode {
	if !t.currentDocument.IsZero() {
		if d, ok := t.documents[t.currentDocument]; ok {
			return d
		}
	}
	id := hatvec.NewId()
	d := &documentNode{
		id:        id,
		parent:    sess.id,
		centroid:  make(hatvec.Point, t.cfg.Dim),
		timestamp: now,
		chunkIdx:  index.New(t.cfg.Dim, t.cfg.Prox),
	}
	t.documents[id] = d
	sess.docs = append(sess.docs, id)
	sess.docIndex.Insert(id, d.centroid)
	t.currentDocument = id
	return d
}

// applyInsertCentroid updates doc's running mean with the new chunk vector v
// using the Welford-style formula c' = c + (v-c)/n'. When the resulting
// delta's L-infinity norm is below the configured propagation threshold,
// the update is skipped (the node is marked dirty instead) rather than
// paying for a reindex of a change too small to matter for ranking.
func (t *Tree) applyInsertCentroid(doc *documentNode, v hatvec.Point) {
	newCount := doc.count + 1
	delta := make(hatvec.Point, len(doc.centroid))
	var maxAbs float64
	for i := range doc.centroid {
		d := (v[i] - doc.centroid[i]) / float32(newCount)
		delta[i] = d
		if a := math.Abs(float64(d)); a > maxAbs {
			maxAbs = a
		}
	}
	doc.count = newCount
	doc.driftHits++

	if maxAbs < t.cfg.PropagationThreshold {
		doc.dirty = true
	} else {
		for i := range doc.centroid {
			doc.centroid[i] += delta[i]
		}
		if sess, ok := t.sessions[doc.parent]; ok {
			sess.docIndex.Insert(doc.id, doc.centroid)
		}
	}

	if doc.driftHits >= driftRecomputeThreshold(doc.count) {
		t.recomputeDocumentCentroid(doc)
		doc.driftHits = 0
		doc.dirty = false
	}
}

// applyRemoveCentroid updates doc's running mean after a chunk vector v has
// been removed, using the inverse Welford formula c' = c + (c-v)/n', where
// n' (doc.count) already reflects the post-removal count. Mirrors
// applyInsertCentroid's propagation-threshold skip and periodic full
// recompute, so removal-heavy workloads get the same bounded drift
// guarantee as insertion-heavy ones.
func (t *Tree) applyRemoveCentroid(doc *documentNode, v hatvec.Point) {
	n := doc.count
	if n <= 0 {
		return
	}
	delta := make(hatvec.Point, len(doc.centroid))
	var maxAbs float64
	for i := range doc.centroid {
		d := (doc.centroid[i] - v[i]) / float32(n)
		delta[i] = d
		if a := math.Abs(float64(d)); a > maxAbs {
			maxAbs = a
		}
	}
	doc.driftHits++

	if maxAbs < t.cfg.PropagationThreshold {
		doc.dirty = true
	} else {
		for i := range doc.centroid {
			doc.centroid[i] += delta[i]
		}
		if sess, ok := t.sessions[doc.parent]; ok {
			sess.docIndex.Insert(doc.id, doc.centroid)
		}
	}

	if doc.driftHits >= driftRecomputeThreshold(doc.count) {
		t.recomputeDocumentCentroid(doc)
		doc.driftHits = 0
		doc.dirty = false
	}
}

// recomputeDocumentCentroid fully recomputes doc's centroid from its
// current chunk vectors (exact, used to bound drift).
func (t *Tree) recomputeDocumentCentroid(doc *documentNode) {
	vs := make([]hatvec.Point, 0, len(doc.chunks))
	for _, cid := range doc.chunks {
		if c, ok := t.chunks[cid]; ok {
			vs = append(vs, c.vector)
		}
	}
	doc.centroid = hatvec.MergeMean(t.cfg.Dim, vs)
	if sess, ok := t.sessions[doc.parent]; ok {
		sess.docIndex.Insert(doc.id, doc.centroid)
	}
}

// recomputeSessionFromDocs recomputes sess's centroid and count as the
// weighted mean (by chunk count) over its current documents. This keeps
// the session-level invariant exact after every mutation rather than
// relying on incremental propagation, since a session typically has few
// documents and the recompute is cheap.
func (t *Tree) recomputeSessionFromDocs(sess *sessionNode) {
	var vs []hatvec.Point
	var weights []float64
	total := 0
	for _, did := range sess.docs {
		d, ok := t.documents[did]
		if !ok || d.count == 0 {
			continue
		}
		vs = append(vs, d.centroid)
		weights = append(weights, float64(d.count))
		total += d.count
	}
	sess.count = total
	sess.centroid = hatvec.MergeWeightedMean(t.cfg.Dim, vs, weights)
	sess.dirty = false
	t.sessionIdx.Insert(sess.id, sess.centroid)
}

func clone(v hatvec.Point) hatvec.Point {
	out := make(hatvec.Point, len(v))
	copy(out, v)
	return out
}

// Stats summarizes the tree's current size.
type Stats struct {
	ChunkCount    int
	DocumentCount int
	SessionCount  int
}

// Stats returns (chunk_count, document_count, session_count). The global
// chunk total across all sessions is the same value as ChunkCount.
func (t *Tree) Stats() Stats {
	return Stats{
		ChunkCount:    len(t.chunks),
		DocumentCount: len(t.documents),
		SessionCount:  len(t.sessions),
	}
}

// CurrentSession returns the session id inserts currently target, and
// whether one exists.
func (t *Tree) CurrentSession() (hatvec.Id, bool) {
	_, ok := t.sessions[t.currentSession]
	return t.currentSession, ok
}

// CurrentDocument returns the document id inserts currently target, and
// whether one exists.
func (t *Tree) CurrentDocument() (hatvec.Id, bool) {
	_, ok := t.documents[t.currentDocument]
	return t.currentDocument, ok
}

// SessionChunks returns every chunk id under sessionID, document order
// then chunk order, for export.
func (t *Tree) SessionChunks(sessionID hatvec.Id) ([]hatvec.Id, error) {
	sess, ok := t.sessions[sessionID]
	if !ok {
		return nil, hatvec.ErrNotFound
	}
	var out []hatvec.Id
	for _, did := range sess.docs {
		if doc, ok := t.documents[did]; ok {
			out = append(out, doc.chunks...)
		}
	}
	return out, nil
}

// ChunkVector returns the stored vector for a known chunk id, for
// reconstructing a payload store from a loaded tree.
func (t *Tree) ChunkVector(id hatvec.Id) (hatvec.Point, bool) {
	c, ok := t.chunks[id]
	if !ok {
		return nil, false
	}
	return c.vector, true
}

// DocumentChunks returns every chunk id under documentID, in chunk order.
func (t *Tree) DocumentChunks(documentID hatvec.Id) ([]hatvec.Id, error) {
	doc, ok := t.documents[documentID]
	if !ok {
		return nil, hatvec.ErrNotFound
	}
	return append([]hatvec.Id(nil), doc.chunks...), nil
}
