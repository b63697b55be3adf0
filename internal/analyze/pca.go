package analyze

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"later/internal/core"
)

// pcaProject reduces rows to d dimensions by projecting mean-centered data
// onto the top principal components. Deterministic.
func pcaProject(rows [][]float64, d int) ([][]float64, error) {
	n := len(rows)
	if n < d {
		return nil, &core.InsufficientDataError{Op: "pca", Need: d, Got: n}
	}
	dims := len(rows[0])

	data := mat.NewDense(n, dims, nil)
	for i, row := range rows {
		data.SetRow(i, row)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return nil, fmt.Errorf("pca decomposition failed")
	}

	var vectors mat.Dense
	pc.VectorsTo(&vectors)
	_, comps := vectors.Dims()
	if comps < d {
		return nil, &core.InsufficientDataError{Op: "pca", Need: d, Got: comps}
	}

	// mean-center before projecting
	means := make([]float64, dims)
	for _, row := range rows {
		for j, v := range row {
			means[j] += v
		}
	}
	for j := range means {
		means[j] /= float64(n)
	}
	centered := mat.NewDense(n, dims, nil)
	for i, row := range rows {
		for j, v := range row {
			centered.Set(i, j, v-means[j])
		}
	}

	var projected mat.Dense
	projected.Mul(centered, vectors.Slice(0, dims, 0, d))

	out := make([][]float64, n)
	for i := range out {
		out[i] = make([]float64, d)
		for j := 0; j < d; j++ {
			out[i][j] = projected.At(i, j)
		}
	}
	return out, nil
}
