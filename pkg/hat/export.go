package hat

import (
	"time"

	"github.com/liliang-cn/hatvec"
	"github.com/liliang-cn/hatvec/pkg/index"
)

// Level identifies a node's position in the tree, matching the HATX
// persistence format's level byte (0:session, 1:document, 2:chunk).
type Level uint8

const (
	LevelSession  Level = 0
	LevelDocument Level = 1
	LevelChunk    Level = 2
)

// NodeRecord is one pre-order entry of a tree dump: a session, document,
// or chunk node stripped of its arena bookkeeping. For a chunk, Centroid
// holds its raw vector and Count is always 1.
type NodeRecord struct {
	Level     Level
	ID        hatvec.Id
	ParentID  hatvec.Id // zero for sessions
	Timestamp time.Time
	Count     int
	Centroid  hatvec.Point
}

// Walk returns every node in pre-order: each session, then each of its
// documents in child order, then each document's chunks in child order.
// This is the order the HATX format persists nodes in.
func (t *Tree) Walk() []NodeRecord {
	var out []NodeRecord
	for sid, sess := range t.sessions {
		out = append(out, NodeRecord{
			Level:     LevelSession,
			ID:        sid,
			Timestamp: sess.timestamp,
			Count:     sess.count,
			Centroid:  clone(sess.centroid),
		})
		for _, did := range sess.docs {
			doc := t.documents[did]
			out = append(out, NodeRecord{
				Level:     LevelDocument,
				ID:        did,
				ParentID:  sid,
				Timestamp: doc.timestamp,
				Count:     doc.count,
				Centroid:  clone(doc.centroid),
			})
			for _, cid := range doc.chunks {
				c := t.chunks[cid]
				out = append(out, NodeRecord{
					Level:     LevelChunk,
					ID:        cid,
					ParentID:  did,
					Timestamp: c.timestamp,
					Count:     1,
					Centroid:  clone(c.vector),
				})
			}
		}
	}
	return out
}

// FromRecords rebuilds a Tree from a pre-order node dump produced by Walk,
// the form a HATX reader parses the persisted file into. It returns
// hatvec.ErrFormat if a document or chunk's parent_id was not seen before
// it (an orphan reference, per spec's reader-rejection rule), and
// hatvec.ErrDimensionMismatch if any node's centroid dimensionality
// disagrees with cfg.Dim.
func FromRecords(cfg Config, records []NodeRecord) (*Tree, error) {
	t := New(cfg)

	for _, r := range records {
		if len(r.Centroid) != cfg.Dim {
			return nil, hatvec.ErrDimensionMismatch
		}
		switch r.Level {
		case LevelSession:
			s := &sessionNode{
				id:        r.ID,
				centroid:  clone(r.Centroid),
				count:     r.Count,
				timestamp: r.Timestamp,
				docIndex:  index.New(cfg.Dim, cfg.Prox),
			}
			t.sessions[r.ID] = s
			t.sessionIdx.Insert(r.ID, s.centroid)

		case LevelDocument:
			sess, ok := t.sessions[r.ParentID]
			if !ok {
				return nil, hatvec.ErrFormat
			}
			d := &documentNode{
				id:        r.ID,
				parent:    r.ParentID,
				centroid:  clone(r.Centroid),
				count:     r.Count,
				timestamp: r.Timestamp,
				chunkIdx:  index.New(cfg.Dim, cfg.Prox),
			}
			t.documents[r.ID] = d
			sess.docs = append(sess.docs, r.ID)
			sess.docIndex.Insert(r.ID, d.centroid)

		case LevelChunk:
			doc, ok := t.documents[r.ParentID]
			if !ok {
				return nil, hatvec.ErrFormat
			}
			sess, ok := t.sessions[doc.parent]
			if !ok {
				return nil, hatvec.ErrFormat
			}
			c := &chunkNode{
				id:        r.ID,
				document:  r.ParentID,
				session:   sess.id,
				vector:    clone(r.Centroid),
				timestamp: r.Timestamp,
			}
			t.chunks[r.ID] = c
			doc.chunks = append(doc.chunks, r.ID)
			doc.chunkIdx.Insert(r.ID, c.vector)

		default:
			return nil, hatvec.ErrFormat
		}
	}

	return t, nil
}
