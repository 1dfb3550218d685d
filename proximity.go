package hatvec

import "math"

// ProximityFunc returns a single float where higher means more related,
// unified across metrics (Euclidean distance is negated so the ordering
// rule — descending score — is the same for every metric).
type ProximityFunc func(a, b Point) (float32, error)

// CosineProximity returns <a,b> / (||a||*||b||). Zero vectors yield 0.
func CosineProximity(a, b Point) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, nil
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb))), nil
}

// EuclideanProximity returns -||a-b||, so higher is closer.
func EuclideanProximity(a, b Point) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return float32(-math.Sqrt(sum)), nil
}

// DotProximity returns <a,b>.
func DotProximity(a, b Point) (float32, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum), nil
}

// Normalize divides v by its L2 norm. A vector whose norm is below 1e-12
// is returned unchanged, with ok=false, so callers can decide whether to
// reject it — a zero vector is never silently "normalized" to itself.
func Normalize(v Point) (out Point, ok bool) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := math.Sqrt(sum)
	if norm < 1e-12 {
		return clonePoint(v), false
	}
	out = make(Point, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, true
}
