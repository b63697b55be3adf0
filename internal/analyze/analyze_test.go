package analyze

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"testing"

	"later/internal/core"
)

// makeBlobs generates count points around each of centers distinct axis
// directions, so clusters are well separated under cosine distance.
func makeBlobs(centers, count, dims int, seed int64) []core.ItemVector {
	rng := rand.New(rand.NewSource(seed))
	var items []core.ItemVector
	for b := 0; b < centers; b++ {
		for i := 0; i < count; i++ {
			vec := make([]float64, dims)
			for d := range vec {
				vec[d] = rng.NormFloat64() * 0.05
			}
			vec[b%dims] += 1.0
			items = append(items, core.ItemVector{
				ID:     fmt.Sprintf("b%d-i%d", b, i),
				Vector: vec,
			})
		}
	}
	return items
}

func blobOf(id string) string {
	for i := 1; i < len(id); i++ {
		if id[i] == '-' {
			return id[:i]
		}
	}
	return id
}

func TestAnalyzeTooFewItems(t *testing.T) {
	items := makeBlobs(1, 1, 8, 1)
	_, err := Analyze(items, Options{Projection: ProjectionPCA})
	var ierr *core.InsufficientDataError
	if !errors.As(err, &ierr) {
		t.Fatalf("err = %v, want InsufficientDataError", err)
	}
}

func TestAnalyzeMismatchedDimensions(t *testing.T) {
	items := []core.ItemVector{
		{ID: "a", Vector: []float64{1, 0}},
		{ID: "b", Vector: []float64{1, 0, 0}},
	}
	_, err := Analyze(items, Options{})
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestPCASeparatesBlobs(t *testing.T) {
	items := makeBlobs(2, 15, 16, 7)
	got, err := Analyze(items, Options{Projection: ProjectionPCA, Clustering: ClusterKMeans, K: 2})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(got) != len(items) {
		t.Fatalf("assignments = %d, want %d", len(got), len(items))
	}

	// mean intra-blob distance in 2D should be far below inter-blob
	var intra, inter float64
	var ni, nx int
	for i := range got {
		for j := i + 1; j < len(got); j++ {
			dx := got[i].X - got[j].X
			dy := got[i].Y - got[j].Y
			d := math.Hypot(dx, dy)
			if blobOf(got[i].ItemID) == blobOf(got[j].ItemID) {
				intra += d
				ni++
			} else {
				inter += d
				nx++
			}
		}
	}
	if intra/float64(ni) >= inter/float64(nx) {
		t.Errorf("pca did not separate blobs: intra %v >= inter %v", intra/float64(ni), inter/float64(nx))
	}
}

func TestPCADeterministic(t *testing.T) {
	items := makeBlobs(3, 10, 8, 3)
	a, err := Analyze(items, Options{Projection: ProjectionPCA, K: 3})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	b, err := Analyze(items, Options{Projection: ProjectionPCA, K: 3})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for i := range a {
		if a[i].X != b[i].X || a[i].Y != b[i].Y || a[i].ClusterID != b[i].ClusterID {
			t.Fatalf("run differs at %d: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestKMeansRecoversBlobs(t *testing.T) {
	items := makeBlobs(5, 20, 16, 11)
	got, err := Analyze(items, Options{Projection: ProjectionPCA, Clustering: ClusterKMeans, K: 5})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	// every blob maps to exactly one cluster and vice versa
	blobToCluster := map[string]int{}
	clusterToBlob := map[int]string{}
	for _, a := range got {
		blob := blobOf(a.ItemID)
		if c, ok := blobToCluster[blob]; ok && c != a.ClusterID {
			t.Fatalf("blob %s split across clusters %d and %d", blob, c, a.ClusterID)
		}
		blobToCluster[blob] = a.ClusterID
		if b, ok := clusterToBlob[a.ClusterID]; ok && b != blob {
			t.Fatalf("cluster %d spans blobs %s and %s", a.ClusterID, b, blob)
		}
		clusterToBlob[a.ClusterID] = blob
	}
	if len(blobToCluster) != 5 {
		t.Errorf("blobs = %d, want 5", len(blobToCluster))
	}
}

func TestKMeansKValidation(t *testing.T) {
	items := makeBlobs(2, 5, 8, 5)

	for _, k := range []int{1, 25} {
		_, err := Analyze(items, Options{Clustering: ClusterKMeans, K: k})
		var verr *core.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("k=%d err = %v, want ValidationError", k, err)
		}
	}

	_, err := Analyze(items, Options{Clustering: ClusterKMeans, K: 12})
	var ierr *core.InsufficientDataError
	if !errors.As(err, &ierr) {
		t.Errorf("k>n err = %v, want InsufficientDataError", err)
	}
}

func TestHierarchicalGroupsBlobs(t *testing.T) {
	items := makeBlobs(3, 8, 16, 13)
	got, err := Analyze(items, Options{Clustering: ClusterHierarchical, K: 3})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	clusters := map[int]bool{}
	perBlob := map[string]int{}
	for _, a := range got {
		clusters[a.ClusterID] = true
		blob := blobOf(a.ItemID)
		if c, ok := perBlob[blob]; ok && c != a.ClusterID {
			t.Fatalf("blob %s split across clusters", blob)
		}
		perBlob[blob] = a.ClusterID
	}
	if len(clusters) != 3 {
		t.Errorf("clusters = %d, want 3", len(clusters))
	}
}

func TestDBSCANFlagsNoise(t *testing.T) {
	items := makeBlobs(2, 10, 16, 17)
	// an outlier pointing nowhere near either blob
	outlier := make([]float64, 16)
	outlier[9] = 1
	outlier[10] = -1
	items = append(items, core.ItemVector{ID: "outlier-0", Vector: outlier})

	got, err := Analyze(items, Options{Clustering: ClusterDBSCAN, Eps: 0.1, MinSamples: 3})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	var noise []string
	clusters := map[int]bool{}
	for _, a := range got {
		if a.ClusterID == core.UnclusteredID {
			noise = append(noise, a.ItemID)
		} else {
			clusters[a.ClusterID] = true
		}
	}
	if len(noise) != 1 || noise[0] != "outlier-0" {
		t.Errorf("noise = %v, want only the outlier", noise)
	}
	if len(clusters) != 2 {
		t.Errorf("clusters = %d, want 2", len(clusters))
	}
}

func TestDBSCANEpsValidation(t *testing.T) {
	items := makeBlobs(2, 3, 8, 19)
	for _, eps := range []float64{0.001, 1.5} {
		_, err := Analyze(items, Options{Clustering: ClusterDBSCAN, Eps: eps})
		var verr *core.ValidationError
		if !errors.As(err, &verr) {
			t.Errorf("eps=%v err = %v, want ValidationError", eps, err)
		}
	}
}

func TestDBSCANDefaultEps(t *testing.T) {
	items := makeBlobs(2, 10, 16, 23)
	got, err := Analyze(items, Options{Clustering: ClusterDBSCAN})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(got) != len(items) {
		t.Fatalf("assignments = %d, want %d", len(got), len(items))
	}
}

func TestTSNEFiniteAndSeeded(t *testing.T) {
	items := makeBlobs(3, 8, 8, 29)
	a, err := Analyze(items, Options{Projection: ProjectionTSNE, K: 3, Seed: 42})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for _, p := range a {
		if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			t.Fatalf("non-finite coordinate: %+v", p)
		}
	}
	b, err := Analyze(items, Options{Projection: ProjectionTSNE, K: 3, Seed: 42})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for i := range a {
		if a[i].X != b[i].X || a[i].Y != b[i].Y {
			t.Fatalf("same seed produced different layout at %d", i)
		}
	}
}

func TestUMAPFallsBackForTinyInput(t *testing.T) {
	items := makeBlobs(2, 1, 8, 31)
	got, err := Analyze(items, Options{Projection: ProjectionUMAP, K: 2})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("assignments = %d, want 2", len(got))
	}
}

func TestUMAPFinite(t *testing.T) {
	items := makeBlobs(3, 10, 8, 37)
	got, err := Analyze(items, Options{Projection: ProjectionUMAP, K: 3})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	for _, p := range got {
		if math.IsNaN(p.X) || math.IsInf(p.X, 0) || math.IsNaN(p.Y) || math.IsInf(p.Y, 0) {
			t.Fatalf("non-finite coordinate: %+v", p)
		}
	}
}

func TestRenumber(t *testing.T) {
	in := []int{3, 3, -1, 7, 3, 7}
	got := renumber(in)
	want := []int{0, 0, -1, 1, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("renumber = %v, want %v", got, want)
		}
	}
}
