package similarity

import (
	"sort"

	"gonum.org/v1/gonum/mat"
)

// Noise is the DBSCAN label of points that belong to no cluster.
const Noise = -1

const unvisited = -2

// DBSCAN clusters points given their precomputed pairwise distances. A
// point's neighbourhood is every point within eps, itself included, so with
// minSamples = 2 a point is a core point as soon as one other point lies within
// eps. Labels are numbered from 0 in order of discovery; noise is labelled
// Noise. The result is deterministic for a given matrix.
func DBSCAN(dist mat.Symmetric, eps float64, minSamples int) []int {
	if dist == nil {
		return nil
	}
	n := dist.SymmetricDim()
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}
	if minSamples < 1 {
		minSamples = 1
	}

	cluster := 0
	for p := 0; p < n; p++ {
		if labels[p] != unvisited {
			continue
		}
		neighbors := regionQuery(dist, p, eps)
		if len(neighbors) < minSamples {
			labels[p] = Noise
			continue
		}
		labels[p] = cluster
		expandCluster(dist, labels, neighbors, cluster, eps, minSamples)
		cluster++
	}
	return labels
}

func expandCluster(dist mat.Symmetric, labels, seeds []int, cluster int, eps float64, minSamples int) {
	queue := append([]int(nil), seeds...)
	for i := 0; i < len(queue); i++ {
		q := queue[i]
		if labels[q] == Noise {
			// border point
			labels[q] = cluster
			continue
		}
		if labels[q] != unvisited {
			continue
		}
		labels[q] = cluster
		neighbors := regionQuery(dist, q, eps)
		if len(neighbors) >= minSamples {
			queue = append(queue, neighbors...)
		}
	}
}

func regionQuery(dist mat.Symmetric, p int, eps float64) []int {
	n := dist.SymmetricDim()
	var out []int
	for q := 0; q < n; q++ {
		if q == p || dist.At(p, q) <= eps {
			out = append(out, q)
		}
	}
	return out
}

// Groups splits labels into clusters (ordered by label, members ascending)
// and the list of noise points.
func Groups(labels []int) (clusters [][]int, noise []int) {
	byLabel := make(map[int][]int)
	for i, l := range labels {
		if l == Noise {
			noise = append(noise, i)
			continue
		}
		byLabel[l] = append(byLabel[l], i)
	}
	keys := make([]int, 0, len(byLabel))
	for l := range byLabel {
		keys = append(keys, l)
	}
	sort.Ints(keys)
	for _, l := range keys {
		clusters = append(clusters, byLabel[l])
	}
	return clusters, noise
}
