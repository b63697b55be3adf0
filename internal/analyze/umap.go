package analyze

import (
	"math"
	"math/rand"
	"sort"
)

const (
	umapEpochs          = 200
	umapNegativeSamples = 5
	umapInitialAlpha    = 1.0
	// curve coefficients fitted for min_dist 0.1
	umapA = 1.577
	umapB = 0.8951
)

// umapProject lays out a fuzzy k-nearest-neighbor graph with stochastic
// gradient descent. Callers must ensure n >= 3; smaller inputs go through
// t-SNE instead.
func umapProject(rows [][]float64, nNeighbors int, rng *rand.Rand) [][]float64 {
	n := len(rows)
	if nNeighbors > n-1 {
		nNeighbors = n - 1
	}
	if nNeighbors < 2 {
		nNeighbors = 2
	}

	dist := distanceMatrix(rows)
	graph := fuzzyGraph(dist, nNeighbors)

	// PCA init keeps the layout deterministic up to SGD noise
	y, err := pcaProject(rows, 2)
	if err != nil {
		y = make([][]float64, n)
		for i := range y {
			y[i] = []float64{rng.Float64()*20 - 10, rng.Float64()*20 - 10}
		}
	} else {
		scaleToRange(y, 10)
	}

	type edge struct {
		from, to int
		weight   float64
	}
	var edges []edge
	for i := range graph {
		for j, w := range graph[i] {
			if w > 0 && i < j {
				edges = append(edges, edge{from: i, to: j, weight: w})
			}
		}
	}
	if len(edges) == 0 {
		return y
	}
	maxWeight := 0.0
	for _, e := range edges {
		if e.weight > maxWeight {
			maxWeight = e.weight
		}
	}

	for epoch := 0; epoch < umapEpochs; epoch++ {
		alpha := umapInitialAlpha * (1 - float64(epoch)/float64(umapEpochs))
		for _, e := range edges {
			// sample edges proportionally to weight
			if rng.Float64() > e.weight/maxWeight {
				continue
			}
			attract(y[e.from], y[e.to], alpha)
			for s := 0; s < umapNegativeSamples; s++ {
				k := rng.Intn(n)
				if k == e.from {
					continue
				}
				repel(y[e.from], y[k], alpha)
			}
		}
	}
	return y
}

func attract(a, b []float64, alpha float64) {
	d2 := squaredEuclidean(a, b)
	if d2 == 0 {
		return
	}
	gradCoeff := -2.0 * umapA * umapB * math.Pow(d2, umapB-1) /
		(1.0 + umapA*math.Pow(d2, umapB))
	for d := 0; d < 2; d++ {
		g := clip(gradCoeff * (a[d] - b[d]))
		a[d] += alpha * g
		b[d] -= alpha * g
	}
}

func repel(a, b []float64, alpha float64) {
	d2 := squaredEuclidean(a, b)
	gradCoeff := 2.0 * umapB / ((0.001 + d2) * (1.0 + umapA*math.Pow(d2, umapB)))
	for d := 0; d < 2; d++ {
		g := 4.0
		if d2 > 0 {
			g = clip(gradCoeff * (a[d] - b[d]))
		}
		a[d] += alpha * g
	}
}

func clip(v float64) float64 {
	if v > 4 {
		return 4
	}
	if v < -4 {
		return -4
	}
	return v
}

// fuzzyGraph builds the symmetrized fuzzy simplicial set over each point's
// k nearest neighbors.
func fuzzyGraph(dist [][]float64, k int) [][]float64 {
	n := len(dist)
	graph := make([][]float64, n)
	for i := range graph {
		graph[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		neighbors := nearestIndices(dist[i], i, k)

		rho := dist[i][neighbors[0]]
		sigma := smoothKNNDistance(dist[i], neighbors, rho, k)

		for _, j := range neighbors {
			d := dist[i][j] - rho
			if d < 0 {
				d = 0
			}
			graph[i][j] = math.Exp(-d / sigma)
		}
	}

	// probabilistic t-conorm: w = a + b - a*b
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			w := graph[i][j] + graph[j][i] - graph[i][j]*graph[j][i]
			graph[i][j] = w
			graph[j][i] = w
		}
	}
	return graph
}

func nearestIndices(row []float64, self, k int) []int {
	idx := make([]int, 0, len(row)-1)
	for j := range row {
		if j != self {
			idx = append(idx, j)
		}
	}
	sort.Slice(idx, func(a, b int) bool {
		if row[idx[a]] != row[idx[b]] {
			return row[idx[a]] < row[idx[b]]
		}
		return idx[a] < idx[b]
	})
	if len(idx) > k {
		idx = idx[:k]
	}
	return idx
}

// smoothKNNDistance binary searches the bandwidth so neighbor weights sum
// to log2(k).
func smoothKNNDistance(row []float64, neighbors []int, rho float64, k int) float64 {
	target := math.Log2(float64(k))
	lo, hi := 0.0, math.Inf(1)
	sigma := 1.0
	for iter := 0; iter < 64; iter++ {
		sum := 0.0
		for _, j := range neighbors {
			d := row[j] - rho
			if d < 0 {
				d = 0
			}
			sum += math.Exp(-d / sigma)
		}
		if math.Abs(sum-target) < 1e-5 {
			break
		}
		if sum > target {
			hi = sigma
			sigma = (lo + hi) / 2
		} else {
			lo = sigma
			if math.IsInf(hi, 1) {
				sigma *= 2
			} else {
				sigma = (lo + hi) / 2
			}
		}
	}
	if sigma <= 0 {
		sigma = 1e-3
	}
	return sigma
}

func scaleToRange(y [][]float64, limit float64) {
	maxAbs := 0.0
	for _, p := range y {
		for _, v := range p {
			if math.Abs(v) > maxAbs {
				maxAbs = math.Abs(v)
			}
		}
	}
	if maxAbs == 0 {
		return
	}
	scale := limit / maxAbs
	for _, p := range y {
		for d := range p {
			p[d] *= scale
		}
	}
}
