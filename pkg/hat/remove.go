package hat

import "github.com/liliang-cn/hatvec"

// Remove locates the chunk, removes it from its document, updates the
// document's centroid (a full recompute from the remaining chunks below
// removeFullRecomputeThreshold, otherwise applyRemoveCentroid's
// incremental decrement), and recomputes the session. Removing the last chunk of a document removes the document;
// removing the last document of a session removes the session. Removing
// an unknown id is a no-op.
func (t *Tree) Remove(id hatvec.Id) {
	cn, ok := t.chunks[id]
	if !ok {
		return
	}
	delete(t.chunks, id)

	doc, ok := t.documents[cn.document]
	if !ok {
		return
	}
	doc.chunks = removeId(doc.chunks, id)
	if doc.chunkIdx != nil {
		doc.chunkIdx.Remove(id)
	}
	doc.count--

	sess, ok := t.sessions[cn.session]
	if !ok {
		return
	}

	if doc.count <= 0 {
		t.dropDocument(sess, doc.id)
	} else if doc.count < removeFullRecomputeThreshold {
		t.recomputeDocumentCentroid(doc)
		doc.driftHits = 0
		doc.dirty = false
	} else {
		t.applyRemoveCentroid(doc, cn.vector)
	}

	t.recomputeSessionFromDocs(sess)

	if sess.count <= 0 {
		t.dropSession(sess.id)
	}
}

// dropDocument removes doc from its session and the arena, and marks its
// id no longer current if it was.
func (t *Tree) dropDocument(sess *sessionNode, docID hatvec.Id) {
	delete(t.documents, docID)
	sess.docs = removeId(sess.docs, docID)
	sess.docIndex.Remove(docID)
	if t.currentDocument == docID {
		t.currentDocument = hatvec.Id{}
	}
}

// dropSession removes a now-empty session from the arena.
func (t *Tree) dropSession(id hatvec.Id) {
	delete(t.sessions, id)
	t.sessionIdx.Remove(id)
	if t.currentSession == id {
		t.currentSession = hatvec.Id{}
		t.currentDocument = hatvec.Id{}
	}
}

func removeId(ids []hatvec.Id, target hatvec.Id) []hatvec.Id {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}
