package hat

import "github.com/liliang-cn/hatvec"

// twoMeans partitions ids into two groups by Lloyd's algorithm over the
// vectors returned by vecOf, seeded with the pair farthest apart by squared
// Euclidean distance. Used by splitDocument to break an oversized document
// into two roughly coherent siblings.
func twoMeans(dim int, ids []hatvec.Id, vecOf func(hatvec.Id) hatvec.Point) ([]hatvec.Id, []hatvec.Id) {
	n := len(ids)
	if n < 2 {
		return ids, nil
	}

	seedA, seedB := farthestPair(ids, vecOf)
	centroidA := clone(vecOf(seedA))
	centroidB := clone(vecOf(seedB))

	assign := make([]int, n)
	const maxIters = 10
	for iter := 0; iter < maxIters; iter++ {
		changed := false
		for i, id := range ids {
			v := vecOf(id)
			da := sqDist(v, centroidA)
			db := sqDist(v, centroidB)
			want := 0
			if db < da {
				want = 1
			}
			if assign[i] != want {
				assign[i] = want
				changed = true
			}
		}

		var sumA, sumB []hatvec.Point
		for i, id := range ids {
			if assign[i] == 0 {
				sumA = append(sumA, vecOf(id))
			} else {
				sumB = append(sumB, vecOf(id))
			}
		}
		if len(sumA) > 0 {
			centroidA = hatvec.MergeMean(dim, sumA)
		}
		if len(sumB) > 0 {
			centroidB = hatvec.MergeMean(dim, sumB)
		}

		if !changed {
			break
		}
	}

	var groupA, groupB []hatvec.Id
	for i, id := range ids {
		if assign[i] == 0 {
			groupA = append(groupA, id)
		} else {
			groupB = append(groupB, id)
		}
	}

	// A degenerate split (everything landed in one group) still leaves the
	// document oversized; fall back to an even positional split so the
	// split_cap invariant is restored.
	if len(groupA) == 0 || len(groupB) == 0 {
		mid := n / 2
		groupA = append([]hatvec.Id(nil), ids[:mid]...)
		groupB = append([]hatvec.Id(nil), ids[mid:]...)
	}

	return groupA, groupB
}

func farthestPair(ids []hatvec.Id, vecOf func(hatvec.Id) hatvec.Point) (hatvec.Id, hatvec.Id) {
	best := -1.0
	a, b := ids[0], ids[1]
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			d := sqDist(vecOf(ids[i]), vecOf(ids[j]))
			if d > best {
				best = d
				a, b = ids[i], ids[j]
			}
		}
	}
	return a, b
}

func sqDist(a, b hatvec.Point) float64 {
	var sum float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return sum
}
