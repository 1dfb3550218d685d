// Package pgstore is an optional payload backend on top of Postgres and
// the pgvector extension: a pooled pgx connection, a parameterized insert
// that rejects a duplicate id, and pgvector.NewVector to carry the
// embedding column. Entries are keyed directly by the 128-bit hatvec.Id.
// Its methods take a context.Context, so Store does not implement
// store.PayloadStore and cannot be passed to an Engine as its store.
package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/liliang-cn/hatvec"
	"github.com/liliang-cn/hatvec/pkg/store"
)

// Store is a payload store backed by a `chunk_entries` table in Postgres.
type Store struct {
	pool *pgxpool.Pool
	dim  int
}

// Open connects to Postgres using dsn and ensures the schema exists.
func Open(ctx context.Context, dsn string, maxConns int, dim int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pgstore: parse dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("pgstore: connect: %w", err)
	}

	s := &Store{pool: pool, dim: dim}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) ensureSchema(ctx context.Context) error {
	stmt := fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS chunk_entries (
	id      BYTEA PRIMARY KEY,
	vector  vector(%d) NOT NULL,
	payload BYTEA NOT NULL
);`, s.dim)
	_, err := s.pool.Exec(ctx, stmt)
	if err != nil {
		return fmt.Errorf("pgstore: ensure schema: %w", err)
	}
	return nil
}

// PlaceCtx stores (vector, payload) under a freshly generated id.
func (s *Store) PlaceCtx(ctx context.Context, vector hatvec.Point, payload hatvec.Blob) (hatvec.Id, error) {
	if len(vector) != s.dim {
		return hatvec.Id{}, hatvec.ErrDimensionMismatch
	}
	id := hatvec.NewId()
	if err := s.PlaceWithIDCtx(ctx, id, vector, payload); err != nil {
		return hatvec.Id{}, err
	}
	return id, nil
}

// PlaceWithIDCtx stores (vector, payload) under the caller-supplied id.
func (s *Store) PlaceWithIDCtx(ctx context.Context, id hatvec.Id, vector hatvec.Point, payload hatvec.Blob) error {
	if len(vector) != s.dim {
		return hatvec.ErrDimensionMismatch
	}
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO chunk_entries (id, vector, payload) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`,
		id.Bytes(), pgvector.NewVector(vector), []byte(payload))
	if err != nil {
		return fmt.Errorf("pgstore: insert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return hatvec.ErrConflict
	}
	return nil
}

// RemoveCtx deletes id's entry, returning it if present.
func (s *Store) RemoveCtx(ctx context.Context, id hatvec.Id) (store.Entry, bool) {
	e, ok := s.GetCtx(ctx, id)
	if !ok {
		return store.Entry{}, false
	}
	s.pool.Exec(ctx, `DELETE FROM chunk_entries WHERE id = $1`, id.Bytes())
	return e, true
}

// GetCtx returns id's entry if present.
func (s *Store) GetCtx(ctx context.Context, id hatvec.Id) (store.Entry, bool) {
	row := s.pool.QueryRow(ctx, `SELECT vector, payload FROM chunk_entries WHERE id = $1`, id.Bytes())
	var vec pgvector.Vector
	var payload []byte
	if err := row.Scan(&vec, &payload); err != nil {
		return store.Entry{}, false
	}
	return store.Entry{ID: id, Vector: hatvec.Point(vec.Slice()), Payload: hatvec.Blob(payload)}, true
}

// IterCtx calls fn for every stored entry in unspecified order.
func (s *Store) IterCtx(ctx context.Context, fn func(store.Entry) bool) error {
	rows, err := s.pool.Query(ctx, `SELECT id, vector, payload FROM chunk_entries`)
	if err != nil {
		return fmt.Errorf("pgstore: iter: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var idBytes, payload []byte
		var vec pgvector.Vector
		if err := rows.Scan(&idBytes, &vec, &payload); err != nil {
			return err
		}
		id, err := hatvec.IdFromBytes(idBytes)
		if err != nil {
			continue
		}
		if !fn(store.Entry{ID: id, Vector: hatvec.Point(vec.Slice()), Payload: hatvec.Blob(payload)}) {
			break
		}
	}
	return rows.Err()
}

// ClearCtx removes every entry.
func (s *Store) ClearCtx(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM chunk_entries`)
	return err
}
