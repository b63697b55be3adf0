// Package label names clusters of saved items using an LLM, one short
// thematic label per cluster.
package label

import (
	"context"
	"fmt"
	"hash/fnv"
	"sort"

	"golang.org/x/sync/errgroup"

	"later/internal/core"
	"later/internal/logger"
)

const (
	// FallbackLabel is used when the model cannot produce a label.
	FallbackLabel = "Unlabeled"

	// maxSummariesPerCluster keeps the prompt for huge clusters bounded.
	maxSummariesPerCluster = 25

	defaultConcurrency = 4
)

// Namer produces a label for one cluster from its member summaries.
type Namer interface {
	LabelCluster(ctx context.Context, summaries []string) (string, error)
}

// Labeler labels clusters concurrently.
type Labeler struct {
	namer       Namer
	concurrency int
}

// New creates a Labeler. concurrency <= 0 selects the default.
func New(namer Namer, concurrency int) *Labeler {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	return &Labeler{namer: namer, concurrency: concurrency}
}

// Cluster is one labeling input: a cluster id and its member summaries.
type Cluster struct {
	ID        int
	Summaries []string
}

// Label names every cluster. Unclustered noise (id -1) and clusters with no
// usable summaries are skipped. A failed model call falls back to
// FallbackLabel rather than failing the batch.
func (l *Labeler) Label(ctx context.Context, clusters []Cluster) []core.ClusterLabel {
	var work []Cluster
	for _, c := range clusters {
		if c.ID == core.UnclusteredID {
			continue
		}
		summaries := nonEmpty(c.Summaries)
		if len(summaries) == 0 {
			continue
		}
		if len(summaries) > maxSummariesPerCluster {
			summaries = summaries[:maxSummariesPerCluster]
		}
		work = append(work, Cluster{ID: c.ID, Summaries: summaries})
	}
	if len(work) == 0 {
		return nil
	}

	results := make([]core.ClusterLabel, len(work))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, c := range work {
		g.Go(func() error {
			name, err := l.namer.LabelCluster(gctx, c.Summaries)
			if err != nil {
				logger.Warn("cluster labeling failed, using fallback",
					"cluster_id", c.ID, "error", err.Error())
				name = FallbackLabel
			}
			results[i] = core.ClusterLabel{
				ClusterID: c.ID,
				Label:     name,
				Color:     Color(name),
			}
			return nil
		})
	}
	// workers never return errors; fallback handles failures
	_ = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].ClusterID < results[j].ClusterID })
	return results
}

// Color derives a stable display color from the label text, spacing hues
// around the wheel with fixed saturation and lightness.
func Color(label string) string {
	h := fnv.New32a()
	h.Write([]byte(label))
	hue := float64(h.Sum32() % 360)
	r, g, b := hslToRGB(hue, 0.65, 0.55)
	return fmt.Sprintf("#%02x%02x%02x", r, g, b)
}

func hslToRGB(h, s, l float64) (uint8, uint8, uint8) {
	c := (1 - abs(2*l-1)) * s
	x := c * (1 - abs(mod2(h/60)-1))
	m := l - c/2

	var r, g, b float64
	switch {
	case h < 60:
		r, g, b = c, x, 0
	case h < 120:
		r, g, b = x, c, 0
	case h < 180:
		r, g, b = 0, c, x
	case h < 240:
		r, g, b = 0, x, c
	case h < 300:
		r, g, b = x, 0, c
	default:
		r, g, b = c, 0, x
	}
	return uint8((r + m) * 255), uint8((g + m) * 255), uint8((b + m) * 255)
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

func mod2(v float64) float64 {
	for v >= 2 {
		v -= 2
	}
	return v
}

func nonEmpty(values []string) []string {
	var out []string
	for _, v := range values {
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
