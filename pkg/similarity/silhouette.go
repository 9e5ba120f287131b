package similarity

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Silhouette returns the mean silhouette coefficient of the non-noise points.
// ok is false when the score is undefined: fewer than two clusters.
func Silhouette(dist mat.Symmetric, labels []int) (score float64, ok bool) {
	clusters, _ := Groups(labels)
	if len(clusters) < 2 {
		return 0, false
	}

	var sum float64
	var count int
	for ci, members := range clusters {
		for _, i := range members {
			count++
			if len(members) == 1 {
				continue // singleton clusters score 0
			}
			a := meanDistance(dist, i, members)
			b := math.Inf(1)
			for cj, other := range clusters {
				if cj == ci {
					continue
				}
				b = math.Min(b, meanDistance(dist, i, other))
			}
			if m := math.Max(a, b); m > 0 {
				sum += (b - a) / m
			}
		}
	}
	return sum / float64(count), true
}

// meanDistance averages the distance from i to the members of a group,
// excluding i itself.
func meanDistance(dist mat.Symmetric, i int, group []int) float64 {
	var sum float64
	var n int
	for _, j := range group {
		if j == i {
			continue
		}
		sum += dist.At(i, j)
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
