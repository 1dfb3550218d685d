package hat

import (
	"sort"

	"github.com/liliang-cn/hatvec"
	"github.com/liliang-cn/hatvec/pkg/index"
)

// ConsolidateMode selects the depth of a maintenance pass.
type ConsolidateMode int

const (
	// Light recomputes dirty centroids and re-sorts child lists by
	// descending recency.
	Light ConsolidateMode = iota
	// Full additionally merges near-duplicate sibling documents, splits
	// oversized documents, and drops empty nodes.
	Full
)

// Consolidate runs a maintenance pass. It is idempotent when no inserts or
// removes intervene between calls.
func (t *Tree) Consolidate(mode ConsolidateMode) {
	t.consolidateLight()
	if mode == Full {
		t.consolidateFull()
	}
}

func (t *Tree) consolidateLight() {
	touchedSessions := make(map[hatvec.Id]bool)

	for _, d := range t.documents {
		if d.dirty {
			t.recomputeDocumentCentroid(d)
			d.dirty = false
			d.driftHits = 0
			touchedSessions[d.parent] = true
		}
	}
	for sid := range touchedSessions {
		if s, ok := t.sessions[sid]; ok {
			t.recomputeSessionFromDocs(s)
		}
	}

	for _, d := range t.documents {
		sort.SliceStable(d.chunks, func(i, j int) bool {
			return t.chunks[d.chunks[i]].timestamp.After(t.chunks[d.chunks[j]].timestamp)
		})
	}
	for _, s := range t.sessions {
		sort.SliceStable(s.docs, func(i, j int) bool {
			return t.documents[s.docs[i]].timestamp.After(t.documents[s.docs[j]].timestamp)
		})
	}
}

func (t *Tree) consolidateFull() {
	t.mergeSiblings()
	t.splitOversized()
	t.dropEmptyNodes()
}

// mergeSiblings merges sibling documents within a session whose centroids
// are cosine-near (>=0.98) and whose combined chunk count fits mergeCap.
func (t *Tree) mergeSiblings() {
	mergeCap := t.cfg.MergeCap
	if mergeCap <= 0 {
		mergeCap = 256
	}

	for _, sess := range t.sessions {
		merged := true
		for merged {
			merged = false
			docs := sess.docs
			for i := 0; i < len(docs); i++ {
				a, ok := t.documents[docs[i]]
				if !ok {
					continue
				}
				for j := i + 1; j < len(docs); j++ {
					b, ok := t.documents[docs[j]]
					if !ok {
						continue
					}
					if a.count+b.count > mergeCap {
						continue
					}
					cos, err := hatvec.CosineProximity(a.centroid, b.centroid)
					if err != nil || cos < 0.98 {
						continue
					}
					t.mergeDocuments(sess, a, b)
					merged = true
					break
				}
				if merged {
					break
				}
			}
		}
	}
}

// mergeDocuments folds b's chunks into a and removes b from the session.
func (t *Tree) mergeDocuments(sess *sessionNode, a, b *documentNode) {
	for _, cid := range b.chunks {
		c := t.chunks[cid]
		c.document = a.id
		a.chunks = append(a.chunks, cid)
		a.chunkIdx.Insert(cid, c.vector)
	}
	if b.timestamp.Before(a.timestamp) {
		a.timestamp = b.timestamp
	}
	a.count += b.count
	t.recomputeDocumentCentroid(a)

	delete(t.documents, b.id)
	sess.docs = removeId(sess.docs, b.id)
	sess.docIndex.Remove(b.id)
	if t.currentDocument == b.id {
		t.currentDocument = a.id
	}
}

// splitOversized splits any document whose chunk count exceeds splitCap
// into two documents via 2-means over its chunk vectors.
func (t *Tree) splitOversized() {
	splitCap := t.cfg.SplitCap
	if splitCap <= 0 {
		splitCap = 1024
	}

	for _, sess := range append([]*sessionNode(nil), sessionValues(t.sessions)...) {
		for _, did := range append([]hatvec.Id(nil), sess.docs...) {
			doc, ok := t.documents[did]
			if !ok || doc.count <= splitCap {
				continue
			}
			t.splitDocument(sess, doc)
		}
	}
}

func sessionValues(m map[hatvec.Id]*sessionNode) []*sessionNode {
	out := make([]*sessionNode, 0, len(m))
	for _, s := range m {
		out = append(out, s)
	}
	return out
}

// splitDocument partitions doc's chunks into two groups by 2-means and
// creates a new sibling document for the second group.
func (t *Tree) splitDocument(sess *sessionNode, doc *documentNode) {
	groupA, groupB := twoMeans(t.cfg.Dim, doc.chunks, func(id hatvec.Id) hatvec.Point {
		return t.chunks[id].vector
	})
	if len(groupA) == 0 || len(groupB) == 0 {
		return
	}

	newDoc := &documentNode{
		id:        hatvec.NewId(),
		parent:    sess.id,
		centroid:  make(hatvec.Point, t.cfg.Dim),
		timestamp: doc.timestamp,
		chunkIdx:  index.New(t.cfg.Dim, t.cfg.Prox),
	}
	t.documents[newDoc.id] = newDoc
	sess.docs = append(sess.docs, newDoc.id)

	for _, cid := range groupB {
		c := t.chunks[cid]
		c.document = newDoc.id
		newDoc.chunks = append(newDoc.chunks, cid)
		newDoc.count++
		doc.chunkIdx.Remove(cid)
		newDoc.chunkIdx.Insert(cid, c.vector)
	}
	doc.chunks = groupA
	doc.count = len(groupA)

	t.recomputeDocumentCentroid(doc)
	t.recomputeDocumentCentroid(newDoc)
	sess.docIndex.Insert(newDoc.id, newDoc.centroid)
}

// dropEmptyNodes removes any document or session whose count has reached
// zero (defensive cleanup; Remove and merge/split already avoid creating
// these, but consolidate is the documented place this invariant is
// enforced).
func (t *Tree) dropEmptyNodes() {
	for sid, sess := range t.sessions {
		for _, did := range append([]hatvec.Id(nil), sess.docs...) {
			if d, ok := t.documents[did]; ok && d.count <= 0 {
				t.dropDocument(sess, did)
			}
		}
		if sess.count <= 0 || len(sess.docs) == 0 {
			t.dropSession(sid)
		}
	}
}
