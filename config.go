package hatvec

import "time"

// Metric identifies a proximity function. The numeric values are the ones
// written into the config block of a persisted HATX file, so they must
// never be renumbered.
type Metric uint8

const (
	// MetricCosine scores by cosine similarity.
	MetricCosine Metric = 0
	// MetricEuclidean scores by negated Euclidean distance (higher = closer).
	MetricEuclidean Metric = 1
	// MetricDot scores by raw dot product.
	MetricDot Metric = 2
)

// String returns the human-readable metric name.
func (m Metric) String() string {
	switch m {
	case MetricCosine:
		return "cosine"
	case MetricEuclidean:
		return "euclidean"
	case MetricDot:
		return "dot"
	default:
		return "unknown"
	}
}

// ProximityFunc resolves the Metric to its ProximityFunc implementation.
func (m Metric) ProximityFunc() ProximityFunc {
	switch m {
	case MetricEuclidean:
		return EuclideanProximity
	case MetricDot:
		return DotProximity
	default:
		return CosineProximity
	}
}

// Config configures an Engine and its underlying hierarchical index.
type Config struct {
	// Dim is the required vector dimensionality. Every vector placed into
	// or queried against the index must have exactly this length.
	Dim int `json:"dim"`

	// Metric selects the proximity function used for ranking.
	Metric Metric `json:"metric"`

	// NormalizeOnInsert, when true, L2-normalizes every vector before it
	// is written to the payload store or the index, and normalizes every
	// query vector the same way before scoring.
	NormalizeOnInsert bool `json:"normalize_on_insert"`

	// BeamWidth is the per-level branching factor used by the hierarchical
	// beam search in Near. Default 3.
	BeamWidth int `json:"beam_width"`

	// TemporalWeight blends semantic proximity with recency when scoring
	// nodes during beam search: score = (1-w)*rho + w*recency. 0 disables
	// the temporal term entirely. Range [0,1].
	TemporalWeight float64 `json:"temporal_weight"`

	// TemporalHalfLife is the half-life used by the recency term,
	// exp(-age/H). Exposed as a config knob per spec's open question
	// about the temporal-weight formula rather than a hardcoded constant.
	TemporalHalfLife time.Duration `json:"temporal_half_life"`

	// PropagationThreshold suppresses re-propagation of a centroid delta
	// up the tree when its L-infinity norm falls below this value.
	PropagationThreshold float64 `json:"propagation_threshold"`

	// MergeCap bounds the combined chunk count of two sibling documents
	// eligible for merging during full consolidation.
	MergeCap int `json:"merge_cap"`

	// SplitCap is the chunk count above which a document is split by
	// 2-means during full consolidation.
	SplitCap int `json:"split_cap"`

	// CapacityBytes is the payload store's size budget. 0 means unbounded.
	CapacityBytes int64 `json:"capacity_bytes"`
}

// DefaultConfig returns a Config for the given dimensionality with sensible
// defaults: cosine metric, normalization on, beam width 3, no temporal
// blending, a 6h half-life, a 1e-3 propagation threshold, merge cap 256,
// split cap 1024, unbounded capacity.
func DefaultConfig(dim int) Config {
	return Config{
		Dim:                  dim,
		Metric:               MetricCosine,
		NormalizeOnInsert:    true,
		BeamWidth:            3,
		TemporalWeight:       0,
		TemporalHalfLife:     6 * time.Hour,
		PropagationThreshold: 1e-3,
		MergeCap:             256,
		SplitCap:             1024,
		CapacityBytes:        0,
	}
}
