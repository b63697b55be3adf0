package analyze

import (
	"math"
	"math/rand"
)

const (
	kmeansMaxIterations = 100
	kmeansTolerance     = 1e-6
	kmeansRestarts      = 10
)

// kmeansCluster assigns each row to one of k clusters using kmeans++
// seeding and cosine distance. The best of several restarts (by inertia)
// wins. Returned labels index non-empty clusters only; ids are contiguous
// from zero.
func kmeansCluster(rows [][]float64, k int, rng *rand.Rand) []int {
	n := len(rows)
	if k >= n {
		labels := make([]int, n)
		for i := range labels {
			labels[i] = i
		}
		return labels
	}

	bestInertia := math.Inf(1)
	var bestLabels []int
	for restart := 0; restart < kmeansRestarts; restart++ {
		labels, inertia := runKMeans(rows, k, rng)
		if inertia < bestInertia {
			bestInertia = inertia
			bestLabels = labels
		}
	}
	return renumber(bestLabels)
}

func runKMeans(rows [][]float64, k int, rng *rand.Rand) ([]int, float64) {
	centroids := seedPlusPlus(rows, k, rng)
	n := len(rows)
	labels := make([]int, n)

	inertia := 0.0
	for iter := 0; iter < kmeansMaxIterations; iter++ {
		inertia = 0.0
		for i, row := range rows {
			best, bestDist := 0, math.Inf(1)
			for c, centroid := range centroids {
				if d := cosineDistance(row, centroid); d < bestDist {
					best, bestDist = c, d
				}
			}
			labels[i] = best
			inertia += bestDist
		}

		moved := 0.0
		dims := len(rows[0])
		for c := range centroids {
			sum := make([]float64, dims)
			count := 0
			for i, row := range rows {
				if labels[i] != c {
					continue
				}
				count++
				for j, v := range row {
					sum[j] += v
				}
			}
			if count == 0 {
				continue
			}
			for j := range sum {
				sum[j] /= float64(count)
			}
			moved += cosineDistance(centroids[c], sum)
			centroids[c] = sum
		}
		if moved < kmeansTolerance {
			break
		}
	}
	return labels, inertia
}

// seedPlusPlus picks initial centroids, weighting later picks by distance
// from those already chosen.
func seedPlusPlus(rows [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(rows)
	centroids := make([][]float64, 0, k)
	first := rng.Intn(n)
	centroids = append(centroids, append([]float64(nil), rows[first]...))

	dist := make([]float64, n)
	for len(centroids) < k {
		total := 0.0
		for i, row := range rows {
			nearest := math.Inf(1)
			for _, centroid := range centroids {
				if d := cosineDistance(row, centroid); d < nearest {
					nearest = d
				}
			}
			dist[i] = nearest * nearest
			total += dist[i]
		}
		if total == 0 {
			// all points coincide with a centroid; pick uniformly
			centroids = append(centroids, append([]float64(nil), rows[rng.Intn(n)]...))
			continue
		}
		target := rng.Float64() * total
		acc := 0.0
		pick := n - 1
		for i, d := range dist {
			acc += d
			if acc >= target {
				pick = i
				break
			}
		}
		centroids = append(centroids, append([]float64(nil), rows[pick]...))
	}
	return centroids
}

// renumber maps labels onto contiguous ids ordered by first appearance,
// dropping ids for empty clusters. Noise (-1) passes through.
func renumber(labels []int) []int {
	next := 0
	mapping := make(map[int]int)
	out := make([]int, len(labels))
	for i, l := range labels {
		if l < 0 {
			out[i] = l
			continue
		}
		id, ok := mapping[l]
		if !ok {
			id = next
			mapping[l] = id
			next++
		}
		out[i] = id
	}
	return out
}
