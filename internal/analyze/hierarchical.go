package analyze

import "math"

// hierarchicalCluster runs average-linkage agglomerative clustering over
// cosine distances and cuts the tree at k groups. Merge ties break toward
// the smallest pair index so results are deterministic.
func hierarchicalCluster(rows [][]float64, k int) []int {
	n := len(rows)
	if k >= n {
		labels := make([]int, n)
		for i := range labels {
			labels[i] = i
		}
		return labels
	}

	dist := distanceMatrix(rows)
	active := make([]bool, n)
	size := make([]int, n)
	labels := make([]int, n)
	for i := range active {
		active[i] = true
		size[i] = 1
		labels[i] = i
	}

	remaining := n
	for remaining > k {
		bi, bj := -1, -1
		best := math.Inf(1)
		for i := 0; i < n; i++ {
			if !active[i] {
				continue
			}
			for j := i + 1; j < n; j++ {
				if !active[j] {
					continue
				}
				if dist[i][j] < best {
					best = dist[i][j]
					bi, bj = i, j
				}
			}
		}

		// merge bj into bi, averaging linkage distances by cluster size
		// (Lance-Williams update)
		for m := 0; m < n; m++ {
			if !active[m] || m == bi || m == bj {
				continue
			}
			merged := (dist[bi][m]*float64(size[bi]) + dist[bj][m]*float64(size[bj])) /
				float64(size[bi]+size[bj])
			dist[bi][m] = merged
			dist[m][bi] = merged
		}
		size[bi] += size[bj]
		active[bj] = false
		for m := range labels {
			if labels[m] == bj {
				labels[m] = bi
			}
		}
		remaining--
	}
	return renumber(labels)
}
