// Package hat implements the Hierarchical Attention Tree: a three-level
// index of session, document, and chunk nodes with maintained centroids,
// beam-constrained search across levels, level-scoped queries, removal
// cascades, and a consolidation pass. It is the core of the core: it
// builds on pkg/index for its per-level scans, and pkg/engine pairs it
// with a payload store and serializes it (via Walk and FromRecords).
//
// Nodes live in a flat arena (plain maps keyed by hatvec.Id) rather than
// owning each other directly, per the design note against cyclic
// ownership: children hold their parent's id, parents hold an ordered
// list of child ids.
package hat

import (
	"time"

	"github.com/liliang-cn/hatvec"
	"github.com/liliang-cn/hatvec/pkg/index"
)

// sessionNode is a top-level node representing one conversation.
type sessionNode struct {
	id        hatvec.Id
	centroid  hatvec.Point
	count     int
	timestamp time.Time
	docs      []hatvec.Id // ordered child document ids
	docIndex  *index.FlatIndex // doc id -> doc centroid, for NearDocuments
	dirty     bool
	driftHits int
}

// documentNode is a mid-level node grouping chunks.
type documentNode struct {
	id        hatvec.Id
	parent    hatvec.Id // owning session
	centroid  hatvec.Point
	count     int
	timestamp time.Time
	chunks    []hatvec.Id // ordered child chunk ids
	chunkIdx  *index.FlatIndex
	dirty     bool
	driftHits int
}

// chunkNode is a leaf: a single indexed vector with its parent chain.
type chunkNode struct {
	id        hatvec.Id
	document  hatvec.Id
	session   hatvec.Id
	vector    hatvec.Point
	timestamp time.Time
}

// removeFullRecomputeThreshold is the chunk count below which Remove does
// a full centroid recompute instead of a Welford-style decrement, since a
// small document is cheap to recompute exactly and not worth tracking
// drift for.
const removeFullRecomputeThreshold = 16

// driftRecomputeThreshold returns the "dirty" count at which a node's
// centroid is fully recomputed from its children rather than continuing
// to accumulate incremental floating-point error, per the design note:
// max(16, count/8).
func driftRecomputeThreshold(count int) int {
	t := count / 8
	if t < 16 {
		t = 16
	}
	return t
}
