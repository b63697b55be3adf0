package handlers

import (
	"context"
	"fmt"
	"sort"

	"later/internal/analyze"
	"later/internal/core"
	"later/internal/label"

	"github.com/spf13/cobra"
)

// NewAnalyzeCmd creates the analyze command.
func NewAnalyzeCmd() *cobra.Command {
	var (
		projection string
		clustering string
		k          int
		eps        float64
		minSamples int
		seed       int64
		withLabels bool
	)

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Cluster saved items in embedding space",
		Long: `Project item embeddings to 2D and group them into topic clusters.

Projections: pca, tsne, umap
Clusterings: kmeans, hierarchical, dbscan

Examples:
  later analyze
  later analyze --projection umap --clustering dbscan --eps 0.4
  later analyze --clustering kmeans -k 8 --label`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(projection, clustering, k, eps, minSamples, seed, withLabels)
		},
	}

	cmd.Flags().StringVarP(&projection, "projection", "p", "pca", "Projection method (pca, tsne, umap)")
	cmd.Flags().StringVarP(&clustering, "clustering", "c", "kmeans", "Clustering method (kmeans, hierarchical, dbscan)")
	cmd.Flags().IntVarP(&k, "k", "k", 0, "Cluster count for kmeans and hierarchical")
	cmd.Flags().Float64Var(&eps, "eps", 0, "DBSCAN neighborhood radius")
	cmd.Flags().IntVar(&minSamples, "min-samples", 0, "DBSCAN density threshold")
	cmd.Flags().Int64Var(&seed, "seed", 0, "Random seed for the stochastic projections")
	cmd.Flags().BoolVar(&withLabels, "label", false, "Name each cluster with the LLM")
	return cmd
}

func runAnalyze(projection, clustering string, k int, eps float64, minSamples int, seed int64, withLabels bool) error {
	ctx := context.Background()
	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	vectors, err := a.store.ItemVectors(ctx, a.cfg.App.UserID)
	if err != nil {
		return err
	}

	points, err := analyze.Analyze(vectors, analyze.Options{
		Projection: analyze.Projection(projection),
		Clustering: analyze.Clustering(clustering),
		K:          k,
		Eps:        eps,
		MinSamples: minSamples,
		Seed:       seed,
	})
	if err != nil {
		return err
	}

	grouped := make(map[int][]string)
	for _, p := range points {
		grouped[p.ClusterID] = append(grouped[p.ClusterID], p.ItemID)
	}

	names := map[int]string{}
	if withLabels {
		names, err = labelGroups(ctx, a, grouped)
		if err != nil {
			return err
		}
	}

	clusterIDs := make([]int, 0, len(grouped))
	for id := range grouped {
		clusterIDs = append(clusterIDs, id)
	}
	sort.Ints(clusterIDs)

	for _, id := range clusterIDs {
		name := names[id]
		switch {
		case id == core.UnclusteredID:
			name = "Noise"
		case name == "":
			name = fmt.Sprintf("Cluster %d", id)
		}
		fmt.Printf("%s (%d items)\n", name, len(grouped[id]))
		for _, itemID := range grouped[id] {
			fmt.Printf("  %s\n", itemID)
		}
	}
	return nil
}

func labelGroups(ctx context.Context, a *app, grouped map[int][]string) (map[int]string, error) {
	var ids []string
	for _, members := range grouped {
		ids = append(ids, members...)
	}
	summaries, err := a.store.Summaries(ctx, a.cfg.App.UserID, ids)
	if err != nil {
		return nil, err
	}

	var clusters []label.Cluster
	for id, members := range grouped {
		if id == core.UnclusteredID {
			continue
		}
		var texts []string
		for _, itemID := range members {
			if s := summaries[itemID]; s != "" {
				texts = append(texts, s)
			}
		}
		clusters = append(clusters, label.Cluster{ID: id, Summaries: texts})
	}
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].ID < clusters[j].ID })

	names := map[int]string{}
	for _, l := range a.labeler.Label(ctx, clusters) {
		names[l.ClusterID] = l.Label
	}
	return names, nil
}
