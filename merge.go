package hatvec

// MergeMean returns the componentwise mean of vs. An empty input returns
// the zero vector of the given dimensionality.
func MergeMean(dim int, vs []Point) Point {
	out := make(Point, dim)
	if len(vs) == 0 {
		return out
	}
	for _, v := range vs {
		for i := 0; i < dim && i < len(v); i++ {
			out[i] += v[i]
		}
	}
	n := float32(len(vs))
	for i := range out {
		out[i] /= n
	}
	return out
}

// MergeWeightedMean returns the weighted mean of vs using the parallel
// weights slice. Weights are renormalized internally; if they sum to 0,
// this falls back to a uniform mean.
func MergeWeightedMean(dim int, vs []Point, weights []float64) Point {
	out := make(Point, dim)
	if len(vs) == 0 {
		return out
	}
	var total float64
	for _, w := range weights {
		total += w
	}
	if total == 0 {
		return MergeMean(dim, vs)
	}
	for i, v := range vs {
		w := float32(weights[i] / total)
		for j := 0; j < dim && j < len(v); j++ {
			out[j] += v[j] * w
		}
	}
	return out
}

// MergeMaxPool returns the componentwise maximum across vs. An empty
// input returns the zero vector of the given dimensionality.
func MergeMaxPool(dim int, vs []Point) Point {
	out := make(Point, dim)
	if len(vs) == 0 {
		return out
	}
	for i := 0; i < dim && i < len(vs[0]); i++ {
		out[i] = vs[0][i]
	}
	for _, v := range vs[1:] {
		for i := 0; i < dim && i < len(v); i++ {
			if v[i] > out[i] {
				out[i] = v[i]
			}
		}
	}
	return out
}
