// Package sqlitestore is an optional PayloadStore backend that persists
// entries to a SQLite database instead of holding them only in memory,
// using a tuned DSN (WAL journal, normal sync, a busy timeout) opened
// through modernc.org/sqlite, a pure-Go driver.
package sqlitestore

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/liliang-cn/hatvec"
	"github.com/liliang-cn/hatvec/pkg/store"
)

// Store is a PayloadStore backed by a single SQLite table.
type Store struct {
	mu       sync.Mutex
	db       *sql.DB
	dim      int
	capacity int64
}

// Open opens (creating if necessary) a SQLite database at path and
// prepares the entries table. dim is the required vector dimensionality;
// capacity is the size budget in bytes, 0 for unbounded.
func Open(path string, dim int, capacity int64) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-2000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open: %w", err)
	}
	db.SetMaxOpenConns(1) // single-writer, matches the engine's single-writer model

	const schema = `
	CREATE TABLE IF NOT EXISTS entries (
		id      BLOB PRIMARY KEY,
		vector  BLOB NOT NULL,
		payload BLOB NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitestore: create table: %w", err)
	}

	return &Store{db: db, dim: dim, capacity: capacity}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func encodeVector(v hatvec.Point) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) hatvec.Point {
	out := make(hatvec.Point, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}

func (s *Store) currentSizeLocked() (int64, error) {
	row := s.db.QueryRow(`SELECT COALESCE(SUM(LENGTH(vector) + LENGTH(payload) + 16 + 48), 0) FROM entries`)
	var size int64
	if err := row.Scan(&size); err != nil {
		return 0, err
	}
	return size, nil
}

func (s *Store) Place(vector hatvec.Point, payload hatvec.Blob) (hatvec.Id, error) {
	if len(vector) != s.dim {
		return hatvec.Id{}, hatvec.ErrDimensionMismatch
	}
	id := hatvec.NewId()
	if err := s.PlaceWithID(id, vector, payload); err != nil {
		return hatvec.Id{}, err
	}
	return id, nil
}

func (s *Store) PlaceWithID(id hatvec.Id, vector hatvec.Point, payload hatvec.Blob) error {
	if len(vector) != s.dim {
		return hatvec.ErrDimensionMismatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.capacity > 0 {
		size, err := s.currentSizeLocked()
		if err != nil {
			return fmt.Errorf("sqlitestore: size check: %w", err)
		}
		added := int64(hatvec.IDSize + 4*len(vector) + len(payload) + 48)
		if size+added > s.capacity {
			return hatvec.ErrCapacityExceeded
		}
	}

	res, err := s.db.Exec(`INSERT OR IGNORE INTO entries (id, vector, payload) VALUES (?, ?, ?)`,
		id.Bytes(), encodeVector(vector), []byte(payload))
	if err != nil {
		return fmt.Errorf("sqlitestore: insert: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return hatvec.ErrConflict
	}
	return nil
}

func (s *Store) Remove(id hatvec.Id) (store.Entry, bool) {
	e, ok := s.Get(id)
	if !ok {
		return store.Entry{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.Exec(`DELETE FROM entries WHERE id = ?`, id.Bytes())
	return e, true
}

func (s *Store) Get(id hatvec.Id) (store.Entry, bool) {
	row := s.db.QueryRow(`SELECT vector, payload FROM entries WHERE id = ?`, id.Bytes())
	var vecBytes, payload []byte
	if err := row.Scan(&vecBytes, &payload); err != nil {
		return store.Entry{}, false
	}
	return store.Entry{ID: id, Vector: decodeVector(vecBytes), Payload: hatvec.Blob(payload)}, true
}

func (s *Store) Iter(fn func(store.Entry) bool) {
	rows, err := s.db.Query(`SELECT id, vector, payload FROM entries`)
	if err != nil {
		return
	}
	defer rows.Close()

	for rows.Next() {
		var idBytes, vecBytes, payload []byte
		if err := rows.Scan(&idBytes, &vecBytes, &payload); err != nil {
			return
		}
		id, err := hatvec.IdFromBytes(idBytes)
		if err != nil {
			continue
		}
		if !fn(store.Entry{ID: id, Vector: decodeVector(vecBytes), Payload: hatvec.Blob(payload)}) {
			return
		}
	}
}

func (s *Store) SizeBytes() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	size, _ := s.currentSizeLocked()
	return size
}

func (s *Store) Len() int {
	row := s.db.QueryRow(`SELECT COUNT(*) FROM entries`)
	var n int
	row.Scan(&n)
	return n
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.db.Exec(`DELETE FROM entries`)
}

var _ store.PayloadStore = (*Store)(nil)
