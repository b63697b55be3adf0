package analyze

import (
	"sort"

	"later/internal/core"
)

// defaultEps picks a neighborhood radius from the data: the 80th percentile
// of each point's distance to its nearest other point.
func defaultEps(dist [][]float64) float64 {
	n := len(dist)
	nearest := make([]float64, 0, n)
	for i := 0; i < n; i++ {
		best := 2.0 // cosine distance upper bound
		for j := 0; j < n; j++ {
			if j != i && dist[i][j] < best {
				best = dist[i][j]
			}
		}
		nearest = append(nearest, best)
	}
	sort.Float64s(nearest)
	eps := percentile(nearest, 80)
	if eps <= 0 {
		eps = 1e-3
	}
	return eps
}

// dbscanCluster runs density-based clustering over cosine distances. Points
// in no dense region get core.UnclusteredID.
func dbscanCluster(rows [][]float64, eps float64, minSamples int) []int {
	n := len(rows)
	dist := distanceMatrix(rows)
	if eps <= 0 {
		eps = defaultEps(dist)
	}
	if minSamples < 1 {
		minSamples = 1
	}

	const unvisited = -2
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}

	neighborsOf := func(i int) []int {
		var out []int
		for j := 0; j < n; j++ {
			if dist[i][j] <= eps {
				out = append(out, j) // includes i itself
			}
		}
		return out
	}

	cluster := 0
	for i := 0; i < n; i++ {
		if labels[i] != unvisited {
			continue
		}
		neighbors := neighborsOf(i)
		if len(neighbors) < minSamples {
			labels[i] = core.UnclusteredID
			continue
		}
		labels[i] = cluster

		// expand the cluster through density-reachable points
		queue := append([]int(nil), neighbors...)
		for qi := 0; qi < len(queue); qi++ {
			j := queue[qi]
			if labels[j] == core.UnclusteredID {
				labels[j] = cluster // border point
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			jNeighbors := neighborsOf(j)
			if len(jNeighbors) >= minSamples {
				queue = append(queue, jNeighbors...)
			}
		}
		cluster++
	}
	return labels
}
