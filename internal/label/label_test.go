package label

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"later/internal/core"
)

type fakeNamer struct {
	mu          sync.Mutex
	inFlight    int
	maxInFlight int
	failFor     map[string]bool
}

func (f *fakeNamer) LabelCluster(_ context.Context, summaries []string) (string, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	time.Sleep(5 * time.Millisecond)

	f.mu.Lock()
	f.inFlight--
	f.mu.Unlock()

	if f.failFor[summaries[0]] {
		return "", errors.New("model unavailable")
	}
	return "Topic: " + summaries[0], nil
}

func TestLabelAllClusters(t *testing.T) {
	l := New(&fakeNamer{}, 2)
	got := l.Label(context.Background(), []Cluster{
		{ID: 1, Summaries: []string{"databases"}},
		{ID: 0, Summaries: []string{"golang"}},
		{ID: 2, Summaries: []string{"llms"}},
	})

	if len(got) != 3 {
		t.Fatalf("labels = %d, want 3", len(got))
	}
	// sorted by cluster id
	for i, want := range []string{"Topic: golang", "Topic: databases", "Topic: llms"} {
		if got[i].ClusterID != i || got[i].Label != want {
			t.Errorf("label[%d] = %+v, want id %d label %q", i, got[i], i, want)
		}
		if got[i].Color == "" {
			t.Errorf("label[%d] has no color", i)
		}
	}
}

func TestLabelFallbackOnFailure(t *testing.T) {
	namer := &fakeNamer{failFor: map[string]bool{"broken": true}}
	l := New(namer, 2)
	got := l.Label(context.Background(), []Cluster{
		{ID: 0, Summaries: []string{"fine"}},
		{ID: 1, Summaries: []string{"broken"}},
	})

	if len(got) != 2 {
		t.Fatalf("labels = %d, want 2 (one failure must not drop the batch)", len(got))
	}
	if got[1].Label != FallbackLabel {
		t.Errorf("failed cluster label = %q, want %q", got[1].Label, FallbackLabel)
	}
	if got[0].Label != "Topic: fine" {
		t.Errorf("healthy cluster label = %q", got[0].Label)
	}
}

func TestLabelSkipsNoiseAndEmpty(t *testing.T) {
	l := New(&fakeNamer{}, 2)
	got := l.Label(context.Background(), []Cluster{
		{ID: core.UnclusteredID, Summaries: []string{"noise"}},
		{ID: 3, Summaries: nil},
		{ID: 4, Summaries: []string{"", ""}},
		{ID: 5, Summaries: []string{"real"}},
	})
	if len(got) != 1 || got[0].ClusterID != 5 {
		t.Errorf("labels = %+v, want only cluster 5", got)
	}
}

func TestLabelBoundsConcurrency(t *testing.T) {
	namer := &fakeNamer{}
	l := New(namer, 3)
	clusters := make([]Cluster, 12)
	for i := range clusters {
		clusters[i] = Cluster{ID: i, Summaries: []string{"s"}}
	}
	l.Label(context.Background(), clusters)
	if namer.maxInFlight > 3 {
		t.Errorf("max in-flight = %d, want <= 3", namer.maxInFlight)
	}
}

func TestLabelTruncatesHugeClusters(t *testing.T) {
	var captured []string
	namer := namerFunc(func(_ context.Context, summaries []string) (string, error) {
		captured = summaries
		return "ok", nil
	})
	l := New(namer, 1)

	summaries := make([]string, 100)
	for i := range summaries {
		summaries[i] = "summary"
	}
	l.Label(context.Background(), []Cluster{{ID: 0, Summaries: summaries}})
	if len(captured) != maxSummariesPerCluster {
		t.Errorf("prompt summaries = %d, want %d", len(captured), maxSummariesPerCluster)
	}
}

type namerFunc func(ctx context.Context, summaries []string) (string, error)

func (f namerFunc) LabelCluster(ctx context.Context, summaries []string) (string, error) {
	return f(ctx, summaries)
}

func TestColorStableAndWellFormed(t *testing.T) {
	hex := regexp.MustCompile(`^#[0-9a-f]{6}$`)
	for _, label := range []string{"Golang", "Databases", FallbackLabel, ""} {
		c1 := Color(label)
		c2 := Color(label)
		if c1 != c2 {
			t.Errorf("Color(%q) not stable: %q vs %q", label, c1, c2)
		}
		if !hex.MatchString(c1) {
			t.Errorf("Color(%q) = %q, want #rrggbb", label, c1)
		}
	}
	if Color("Golang") == Color("Databases") && strings.EqualFold(Color("Golang"), Color("Databases")) {
		t.Log("distinct labels collided on color; acceptable but unexpected")
	}
}
