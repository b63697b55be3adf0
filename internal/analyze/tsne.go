package analyze

import (
	"math"
	"math/rand"
)

const (
	tsneIterations      = 500
	tsneExaggeration    = 4.0
	tsneExaggerationEnd = 100
	tsneLearningRate    = 200.0
	tsneMomentumSwitch  = 250
)

// tsneProject runs exact t-SNE over cosine-distance affinities. Suitable
// for the corpus sizes a personal reading queue reaches; no Barnes-Hut
// approximation.
func tsneProject(rows [][]float64, perplexity float64, rng *rand.Rand) [][]float64 {
	n := len(rows)
	if n == 1 {
		return [][]float64{{0, 0}}
	}
	if perplexity > float64(n-1) {
		perplexity = float64(n - 1)
	}
	if perplexity < 1 {
		perplexity = 1
	}

	dist := distanceMatrix(rows)
	p := jointProbabilities(dist, perplexity)

	// small random init
	y := make([][]float64, n)
	vel := make([][]float64, n)
	gains := make([][]float64, n)
	for i := range y {
		y[i] = []float64{rng.NormFloat64() * 1e-4, rng.NormFloat64() * 1e-4}
		vel[i] = []float64{0, 0}
		gains[i] = []float64{1, 1}
	}

	q := make([][]float64, n)
	for i := range q {
		q[i] = make([]float64, n)
	}
	grad := make([][]float64, n)
	for i := range grad {
		grad[i] = make([]float64, 2)
	}

	for iter := 0; iter < tsneIterations; iter++ {
		exaggeration := 1.0
		if iter < tsneExaggerationEnd {
			exaggeration = tsneExaggeration
		}
		momentum := 0.5
		if iter >= tsneMomentumSwitch {
			momentum = 0.8
		}

		// student-t low-dimensional affinities
		qSum := 0.0
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				num := 1.0 / (1.0 + squaredEuclidean(y[i], y[j]))
				q[i][j] = num
				q[j][i] = num
				qSum += 2 * num
			}
		}
		if qSum < 1e-12 {
			qSum = 1e-12
		}

		for i := 0; i < n; i++ {
			grad[i][0], grad[i][1] = 0, 0
			for j := 0; j < n; j++ {
				if i == j {
					continue
				}
				mult := (exaggeration*p[i][j] - q[i][j]/qSum) * q[i][j]
				grad[i][0] += 4 * mult * (y[i][0] - y[j][0])
				grad[i][1] += 4 * mult * (y[i][1] - y[j][1])
			}
		}

		for i := 0; i < n; i++ {
			for d := 0; d < 2; d++ {
				if (grad[i][d] > 0) != (vel[i][d] > 0) {
					gains[i][d] += 0.2
				} else {
					gains[i][d] *= 0.8
				}
				if gains[i][d] < 0.01 {
					gains[i][d] = 0.01
				}
				vel[i][d] = momentum*vel[i][d] - tsneLearningRate*gains[i][d]*grad[i][d]
				y[i][d] += vel[i][d]
			}
		}

		// re-center
		var cx, cy float64
		for i := range y {
			cx += y[i][0]
			cy += y[i][1]
		}
		cx /= float64(n)
		cy /= float64(n)
		for i := range y {
			y[i][0] -= cx
			y[i][1] -= cy
		}
	}
	return y
}

// jointProbabilities converts distances to symmetric affinities, binary
// searching each point's bandwidth to hit the target perplexity.
func jointProbabilities(dist [][]float64, perplexity float64) [][]float64 {
	n := len(dist)
	logU := math.Log(perplexity)
	p := make([][]float64, n)
	for i := range p {
		p[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		beta := 1.0
		betaMin := math.Inf(-1)
		betaMax := math.Inf(1)

		var row []float64
		for iter := 0; iter < 50; iter++ {
			row = make([]float64, n)
			sum := 0.0
			for j := 0; j < n; j++ {
				if j == i {
					continue
				}
				row[j] = math.Exp(-dist[i][j] * beta)
				sum += row[j]
			}
			if sum < 1e-12 {
				sum = 1e-12
			}
			entropy := 0.0
			for j := 0; j < n; j++ {
				if j == i || row[j] == 0 {
					continue
				}
				pj := row[j] / sum
				entropy -= pj * math.Log(pj)
				row[j] = pj
			}

			diff := entropy - logU
			if math.Abs(diff) < 1e-5 {
				break
			}
			if diff > 0 {
				betaMin = beta
				if math.IsInf(betaMax, 1) {
					beta *= 2
				} else {
					beta = (beta + betaMax) / 2
				}
			} else {
				betaMax = beta
				if math.IsInf(betaMin, -1) {
					beta /= 2
				} else {
					beta = (beta + betaMin) / 2
				}
			}
		}
		copy(p[i], row)
	}

	// symmetrize and normalize
	total := 0.0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := (p[i][j] + p[j][i]) / (2 * float64(n))
			if v < 1e-12 {
				v = 1e-12
			}
			p[i][j] = v
			p[j][i] = v
			total += 2 * v
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			p[i][j] /= total
		}
	}
	return p
}
