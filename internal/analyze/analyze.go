// Package analyze projects item embeddings to 2D and groups them into
// clusters for the embedding-space map view.
package analyze

import (
	"fmt"
	"math/rand"

	"later/internal/core"
	"later/internal/logger"
)

// Projection selects the dimensionality-reduction method.
type Projection string

const (
	ProjectionPCA  Projection = "pca"
	ProjectionTSNE Projection = "tsne"
	ProjectionUMAP Projection = "umap"
)

// Clustering selects the grouping method.
type Clustering string

const (
	ClusterKMeans       Clustering = "kmeans"
	ClusterHierarchical Clustering = "hierarchical"
	ClusterDBSCAN       Clustering = "dbscan"
)

const (
	minK = 2
	maxK = 24

	minEps = 0.01
	maxEps = 1.0

	defaultSeed = 42
)

// Options controls one analysis run. Zero values select defaults.
type Options struct {
	Projection Projection
	Clustering Clustering

	// K is the cluster count for kmeans and hierarchical. Default min(5, n).
	K int
	// Eps is the DBSCAN radius. Default derived from the data.
	Eps float64
	// MinSamples is the DBSCAN density threshold. Default min(3, n).
	MinSamples int
	// Perplexity for t-SNE. Default min(30, max(1, n/4)).
	Perplexity float64
	// NNeighbors for UMAP. Default min(15, n-1).
	NNeighbors int
	// Seed for the run's random source. Default 42.
	Seed int64
}

// Analyze projects and clusters the given item vectors. The result carries
// one assignment per input, in input order; DBSCAN noise points get
// cluster core.UnclusteredID.
func Analyze(items []core.ItemVector, opts Options) ([]core.ClusterAssignment, error) {
	n := len(items)
	if n < 2 {
		return nil, &core.InsufficientDataError{Op: "analyze", Need: 2, Got: n}
	}

	rows := make([][]float64, n)
	dims := len(items[0].Vector)
	for i, item := range items {
		if len(item.Vector) == 0 {
			return nil, &core.ValidationError{Param: "items", Reason: fmt.Sprintf("item %s has no embedding", item.ID)}
		}
		if len(item.Vector) != dims {
			return nil, &core.ValidationError{Param: "items", Reason: "embeddings differ in dimensionality"}
		}
		rows[i] = item.Vector
	}
	rows = l2NormalizeRows(rows)

	if opts.Projection == "" {
		opts.Projection = ProjectionPCA
	}
	if opts.Clustering == "" {
		opts.Clustering = ClusterKMeans
	}
	seed := opts.Seed
	if seed == 0 {
		seed = defaultSeed
	}
	rng := rand.New(rand.NewSource(seed))

	coords, err := project(rows, opts, rng)
	if err != nil {
		return nil, err
	}
	labels, err := cluster(rows, opts, rng)
	if err != nil {
		return nil, err
	}

	out := make([]core.ClusterAssignment, n)
	for i := range items {
		out[i] = core.ClusterAssignment{
			ItemID:    items[i].ID,
			ClusterID: labels[i],
			X:         coords[i][0],
			Y:         coords[i][1],
		}
	}
	return out, nil
}

func project(rows [][]float64, opts Options, rng *rand.Rand) ([][]float64, error) {
	n := len(rows)
	switch opts.Projection {
	case ProjectionPCA:
		return pcaProject(rows, 2)
	case ProjectionTSNE:
		return tsneProject(rows, tsnePerplexity(opts, n), rng), nil
	case ProjectionUMAP:
		if n < 3 {
			// too few points for a neighbor graph
			logger.Debug("falling back to tsne projection", "n", n)
			return tsneProject(rows, tsnePerplexity(opts, n), rng), nil
		}
		neighbors := opts.NNeighbors
		if neighbors == 0 {
			neighbors = 15
		}
		return umapProject(rows, neighbors, rng), nil
	default:
		return nil, &core.ValidationError{Param: "projection", Reason: fmt.Sprintf("unknown method %q", opts.Projection)}
	}
}

func tsnePerplexity(opts Options, n int) float64 {
	p := opts.Perplexity
	if p == 0 {
		p = float64(min(30, max(1, n/4)))
	}
	return p
}

func cluster(rows [][]float64, opts Options, rng *rand.Rand) ([]int, error) {
	n := len(rows)
	switch opts.Clustering {
	case ClusterKMeans, ClusterHierarchical:
		k := opts.K
		if k == 0 {
			k = min(5, n)
		} else {
			if k < minK || k > maxK {
				return nil, &core.ValidationError{Param: "k", Reason: fmt.Sprintf("must be between %d and %d", minK, maxK)}
			}
			if k > n {
				return nil, &core.InsufficientDataError{Op: string(opts.Clustering), Need: k, Got: n}
			}
		}
		if opts.Clustering == ClusterKMeans {
			return kmeansCluster(rows, k, rng), nil
		}
		return hierarchicalCluster(rows, k), nil
	case ClusterDBSCAN:
		eps := opts.Eps
		if eps != 0 && (eps < minEps || eps > maxEps) {
			return nil, &core.ValidationError{Param: "eps", Reason: fmt.Sprintf("must be between %v and %v", minEps, maxEps)}
		}
		minSamples := opts.MinSamples
		if minSamples == 0 {
			minSamples = min(3, n)
		}
		return dbscanCluster(rows, eps, minSamples), nil
	default:
		return nil, &core.ValidationError{Param: "clustering", Reason: fmt.Sprintf("unknown method %q", opts.Clustering)}
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
