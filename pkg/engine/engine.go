// Package engine orchestrates the payload store and the hierarchical
// index behind a single Config: place normalizes the vector per policy,
// writes the store, then inserts into the index, rolling back the store
// write if the index insert fails. It is the top-level entry point most
// callers use; pkg/hat, pkg/store, and pkg/container are its building
// blocks, kept dependency-free of each other and of this package so each
// can be used standalone.
package engine

import (
	"time"

	"github.com/liliang-cn/hatvec"
	"github.com/liliang-cn/hatvec/pkg/container"
	"github.com/liliang-cn/hatvec/pkg/hat"
	"github.com/liliang-cn/hatvec/pkg/store"
)

// Engine couples one payload store with one hierarchical index under a
// single Config, and is the sole writer to both.
type Engine struct {
	cfg    hatvec.Config
	store  store.PayloadStore
	tree   *hat.Tree
	logger hatvec.Logger
	now    func() time.Time
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithLogger overrides the engine's logger. The default discards every
// message.
func WithLogger(l hatvec.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithClock overrides the engine's time source, for deterministic tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithStore overrides the payload-store backend. The default is an
// in-memory MemStore; callers that need durability can supply
// pkg/store/sqlitestore instead. pkg/store/pgstore's context-taking
// methods do not satisfy store.PayloadStore, so it cannot be passed here.
func WithStore(s store.PayloadStore) Option {
	return func(e *Engine) { e.store = s }
}

// New creates an Engine for the given configuration.
func New(cfg hatvec.Config, opts ...Option) *Engine {
	if cfg.BeamWidth <= 0 {
		cfg.BeamWidth = 3
	}
	if cfg.TemporalHalfLife <= 0 {
		cfg.TemporalHalfLife = 6 * time.Hour
	}

	e := &Engine{
		cfg:    cfg,
		store:  store.NewMemStore(cfg.Dim, cfg.CapacityBytes),
		logger: hatvec.NopLogger(),
		now:    time.Now,
	}
	e.tree = hat.New(e.treeConfig())
	for _, opt := range opts {
		opt(e)
	}
	e.tree.SetClock(e.now)
	return e
}

func (e *Engine) treeConfig() hat.Config {
	return hat.Config{
		Dim:                  e.cfg.Dim,
		Prox:                 e.cfg.Metric.ProximityFunc(),
		BeamWidth:            e.cfg.BeamWidth,
		TemporalWeight:       e.cfg.TemporalWeight,
		TemporalHalfLife:     e.cfg.TemporalHalfLife,
		PropagationThreshold: e.cfg.PropagationThreshold,
		MergeCap:             e.cfg.MergeCap,
		SplitCap:             e.cfg.SplitCap,
	}
}

func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &hatvec.OpError{Op: op, Err: err}
}

func (e *Engine) prepare(v hatvec.Point) (hatvec.Point, error) {
	if len(v) != e.cfg.Dim {
		return nil, hatvec.ErrDimensionMismatch
	}
	if !e.cfg.NormalizeOnInsert {
		out := make(hatvec.Point, len(v))
		copy(out, v)
		return out, nil
	}
	out, ok := hatvec.Normalize(v)
	if !ok {
		e.logger.Warn("zero vector left unnormalized", "dim", e.cfg.Dim)
	}
	return out, nil
}

// Place normalizes v per policy, stores (v, payload) under a fresh id,
// inserts the chunk into the current document/session, and returns the
// new id. The store write is rolled back if the index insert fails.
func (e *Engine) Place(v hatvec.Point, payload hatvec.Blob) (hatvec.Id, error) {
	nv, err := e.prepare(v)
	if err != nil {
		return hatvec.Id{}, wrapErr("place", err)
	}

	id, err := e.store.Place(nv, payload)
	if err != nil {
		return hatvec.Id{}, wrapErr("place", err)
	}

	if err := e.tree.Add(id, nv); err != nil {
		e.store.Remove(id)
		return hatvec.Id{}, wrapErr("place", err)
	}

	e.logger.Debug("placed chunk", "id", id.String())
	return id, nil
}

// PlaceWithID is Place under a caller-supplied id, rejecting a duplicate.
func (e *Engine) PlaceWithID(id hatvec.Id, v hatvec.Point, payload hatvec.Blob) error {
	nv, err := e.prepare(v)
	if err != nil {
		return wrapErr("place_with_id", err)
	}

	if err := e.store.PlaceWithID(id, nv, payload); err != nil {
		return wrapErr("place_with_id", err)
	}

	if err := e.tree.Add(id, nv); err != nil {
		e.store.Remove(id)
		return wrapErr("place_with_id", err)
	}

	e.logger.Debug("placed chunk", "id", id.String())
	return nil
}

// Remove deletes id from the store and the index. Removing an unknown id
// is a no-op, matching the index's own removal contract.
func (e *Engine) Remove(id hatvec.Id) {
	e.store.Remove(id)
	e.tree.Remove(id)
}

// Near runs the hierarchical beam search for the top k chunks nearest q.
func (e *Engine) Near(q hatvec.Point, k int) ([]hatvec.Hit, error) {
	nq, err := e.prepare(q)
	if err != nil {
		return nil, wrapErr("near", err)
	}
	hits, err := e.tree.Near(nq, k)
	return hits, wrapErr("near", err)
}

// Within returns every chunk with proximity >= tau to q.
func (e *Engine) Within(q hatvec.Point, tau float32) ([]hatvec.Hit, error) {
	nq, err := e.prepare(q)
	if err != nil {
		return nil, wrapErr("within", err)
	}
	hits, err := e.tree.Within(nq, tau)
	return hits, wrapErr("within", err)
}

// HitWithData pairs a ranked hit with its stored payload.
type HitWithData struct {
	hatvec.Hit
	Payload hatvec.Blob
}

// NearWithData runs Near and joins each hit with its payload store entry.
func (e *Engine) NearWithData(q hatvec.Point, k int) ([]HitWithData, error) {
	hits, err := e.Near(q, k)
	if err != nil {
		return nil, err
	}
	out := make([]HitWithData, 0, len(hits))
	for _, h := range hits {
		entry, _ := e.store.Get(h.ID)
		out = append(out, HitWithData{Hit: h, Payload: entry.Payload})
	}
	return out, nil
}

// NewSession marks the next Place as starting a fresh session.
func (e *Engine) NewSession() { e.tree.NewSession() }

// NewDocument marks the next Place as starting a fresh document under the
// current session.
func (e *Engine) NewDocument() { e.tree.NewDocument() }

// NearSessions scores every session's centroid against q.
func (e *Engine) NearSessions(q hatvec.Point, k int) ([]hatvec.Hit, error) {
	nq, err := e.prepare(q)
	if err != nil {
		return nil, wrapErr("near_sessions", err)
	}
	hits, err := e.tree.NearSessions(nq, k)
	return hits, wrapErr("near_sessions", err)
}

// NearDocuments scores every document's centroid within sessionID against q.
func (e *Engine) NearDocuments(sessionID hatvec.Id, q hatvec.Point, k int) ([]hatvec.Hit, error) {
	nq, err := e.prepare(q)
	if err != nil {
		return nil, wrapErr("near_documents", err)
	}
	hits, err := e.tree.NearDocuments(sessionID, nq, k)
	return hits, wrapErr("near_documents", err)
}

// NearInDocument scores every chunk within documentID against q.
func (e *Engine) NearInDocument(documentID hatvec.Id, q hatvec.Point, k int) ([]hatvec.Hit, error) {
	nq, err := e.prepare(q)
	if err != nil {
		return nil, wrapErr("near_in_document", err)
	}
	hits, err := e.tree.NearInDocument(documentID, nq, k)
	return hits, wrapErr("near_in_document", err)
}

// ConsolidateMode selects the depth of a maintenance pass.
type ConsolidateMode = hat.ConsolidateMode

const (
	ConsolidateLight = hat.Light
	ConsolidateFull  = hat.Full
)

// Consolidate runs a light or full maintenance pass over the index.
func (e *Engine) Consolidate(mode ConsolidateMode) {
	e.tree.Consolidate(mode)
}

// Stats summarizes the index's current size.
type Stats struct {
	ChunkCount    int
	DocumentCount int
	SessionCount  int
	GlobalCount   int // equal to ChunkCount
}

// Stats returns the current chunk/document/session counts.
func (e *Engine) Stats() Stats {
	s := e.tree.Stats()
	return Stats{
		ChunkCount:    s.ChunkCount,
		DocumentCount: s.DocumentCount,
		SessionCount:  s.SessionCount,
		GlobalCount:   s.ChunkCount,
	}
}

// Len returns the number of placed chunks.
func (e *Engine) Len() int { return e.Stats().ChunkCount }

// IsEmpty reports whether the index holds no chunks.
func (e *Engine) IsEmpty() bool { return e.Len() == 0 }

// Clear wipes the store and the index.
func (e *Engine) Clear() {
	e.store.Clear()
	e.tree = hat.New(e.treeConfig())
	e.tree.SetClock(e.now)
}

// ExportSession encodes every chunk under sessionID as an ATNB v1 batch.
// Each chunk's payload must itself be a valid ATTN v1 record — the
// convention this module uses when a caller wants session/document
// export to round-trip through the container format.
func (e *Engine) ExportSession(sessionID hatvec.Id) ([]byte, error) {
	ids, err := e.tree.SessionChunks(sessionID)
	if err != nil {
		return nil, wrapErr("export_session", err)
	}
	return e.exportChunks(&sessionID, nil, ids)
}

// ExportDocument encodes every chunk under documentID as an ATNB v1 batch.
func (e *Engine) ExportDocument(documentID hatvec.Id) ([]byte, error) {
	ids, err := e.tree.DocumentChunks(documentID)
	if err != nil {
		return nil, wrapErr("export_document", err)
	}
	return e.exportChunks(nil, &documentID, ids)
}

func (e *Engine) exportChunks(sessionID, documentID *hatvec.Id, ids []hatvec.Id) ([]byte, error) {
	batch := &container.Batch{SessionID: sessionID, DocumentID: documentID}
	for _, id := range ids {
		entry, ok := e.store.Get(id)
		if !ok {
			continue
		}
		state, err := container.DecodeATTN(entry.Payload)
		if err != nil {
			return nil, wrapErr("export", err)
		}
		batch.States = append(batch.States, state)
	}
	data, err := container.EncodeATNB(batch)
	if err != nil {
		return nil, wrapErr("export", err)
	}
	return data, nil
}
