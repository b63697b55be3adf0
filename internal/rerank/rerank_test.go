package rerank

import (
	"context"
	"errors"
	"strings"
	"testing"

	cohere "github.com/cohere-ai/cohere-go/v2"

	"later/internal/core"
)

func fakeClient(fn rerankFunc) *Client {
	return &Client{rerank: fn, model: "rerank-english-v3.0"}
}

func TestDocument(t *testing.T) {
	got := Document("Title", "A summary.", "preview text")
	if got != "Title A summary. preview text" {
		t.Errorf("Document = %q", got)
	}

	long := strings.Repeat("x", 2000)
	if got := Document(long, "", ""); len(got) != maxDocumentChars {
		t.Errorf("long document length = %d, want %d", len(got), maxDocumentChars)
	}

	if got := Document("", "", ""); got != " " {
		t.Errorf("blank document = %q, want single space", got)
	}
}

func TestScoreEmptyQuery(t *testing.T) {
	calls := 0
	c := fakeClient(func(_ context.Context, _ *cohere.V2RerankRequest) (*cohere.V2RerankResponse, error) {
		calls++
		return nil, nil
	})

	scores, err := c.Score(context.Background(), "   ", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(scores) != 2 || scores[0] != 0 || scores[1] != 0 {
		t.Errorf("scores = %v, want zeros", scores)
	}
	if calls != 0 {
		t.Errorf("api calls = %d, want 0 for empty query", calls)
	}
}

func TestScoreOrdersByInputIndex(t *testing.T) {
	c := fakeClient(func(_ context.Context, req *cohere.V2RerankRequest) (*cohere.V2RerankResponse, error) {
		// return results out of order, as the API does when sorting by score
		return &cohere.V2RerankResponse{
			Results: []*cohere.V2RerankResponseResultsItem{
				{Index: 2, RelevanceScore: 0.9},
				{Index: 0, RelevanceScore: 0.4},
				{Index: 1, RelevanceScore: 0.1},
			},
		}, nil
	})

	scores, err := c.Score(context.Background(), "query", []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	want := []float64{0.4, 0.1, 0.9}
	for i := range want {
		if scores[i] != want[i] {
			t.Errorf("scores[%d] = %v, want %v", i, scores[i], want[i])
		}
	}
}

func TestScoreBatches(t *testing.T) {
	var batchSizes []int
	c := fakeClient(func(_ context.Context, req *cohere.V2RerankRequest) (*cohere.V2RerankResponse, error) {
		batchSizes = append(batchSizes, len(req.Documents))
		results := make([]*cohere.V2RerankResponseResultsItem, len(req.Documents))
		for i := range results {
			results[i] = &cohere.V2RerankResponseResultsItem{Index: i, RelevanceScore: 0.5}
		}
		return &cohere.V2RerankResponse{Results: results}, nil
	})

	docs := make([]string, 250)
	for i := range docs {
		docs[i] = "doc"
	}
	scores, err := c.Score(context.Background(), "query", docs)
	if err != nil {
		t.Fatalf("Score: %v", err)
	}
	if len(scores) != 250 {
		t.Fatalf("scores = %d, want 250", len(scores))
	}
	if len(batchSizes) != 3 || batchSizes[0] != 100 || batchSizes[1] != 100 || batchSizes[2] != 50 {
		t.Errorf("batch sizes = %v, want [100 100 50]", batchSizes)
	}
}

func TestScoreAPIError(t *testing.T) {
	c := fakeClient(func(_ context.Context, _ *cohere.V2RerankRequest) (*cohere.V2RerankResponse, error) {
		return nil, errors.New("rate limited")
	})

	_, err := c.Score(context.Background(), "query", []string{"a"})
	var perr *core.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("err = %v, want ProviderError", err)
	}
	if !perr.Transient {
		t.Error("rerank failures should be transient")
	}
}

func TestScoreBadIndex(t *testing.T) {
	c := fakeClient(func(_ context.Context, _ *cohere.V2RerankRequest) (*cohere.V2RerankResponse, error) {
		return &cohere.V2RerankResponse{
			Results: []*cohere.V2RerankResponseResultsItem{{Index: 7, RelevanceScore: 1}},
		}, nil
	})
	if _, err := c.Score(context.Background(), "query", []string{"a"}); err == nil {
		t.Fatal("expected error for out-of-range result index")
	}
}
