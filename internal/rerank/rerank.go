// Package rerank scores query/document relevance with Cohere's
// cross-encoder rerank API.
package rerank

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	cohere "github.com/cohere-ai/cohere-go/v2"
	cohereclient "github.com/cohere-ai/cohere-go/v2/client"

	"later/internal/core"
)

const (
	// maxBatchSize keeps each request under the API's document limit.
	maxBatchSize = 100
	// maxDocumentChars truncates candidate text to stay inside token limits.
	maxDocumentChars = 1000
)

type rerankFunc func(ctx context.Context, req *cohere.V2RerankRequest) (*cohere.V2RerankResponse, error)

// Client wraps the Cohere rerank endpoint.
type Client struct {
	rerank  rerankFunc
	model   string
	timeout time.Duration
}

// NewClient creates a rerank client. The API key comes from configuration
// (COHERE_API_KEY).
func NewClient(apiKey, model string, timeout time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("cohere api key not configured (set COHERE_API_KEY)")
	}
	client := cohereclient.NewClient(cohereclient.WithToken(apiKey))
	return &Client{
		rerank: func(ctx context.Context, req *cohere.V2RerankRequest) (*cohere.V2RerankResponse, error) {
			return client.V2.Rerank(ctx, req)
		},
		model:   model,
		timeout: timeout,
	}, nil
}

// Document builds the rerank input text for one candidate from its title,
// summary, and preview, truncated to the API's comfortable length. A blank
// candidate becomes a single space so document indices stay aligned.
func Document(title, summary, preview string) string {
	var parts []string
	for _, p := range []string{title, summary, preview} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	text := strings.Join(parts, " ")
	if len(text) > maxDocumentChars {
		text = text[:maxDocumentChars]
	}
	if strings.TrimSpace(text) == "" {
		return " "
	}
	return text
}

// Score returns one relevance score per document, in input order. Higher is
// more relevant. An empty query scores everything zero without calling the
// API.
func (c *Client) Score(ctx context.Context, query string, documents []string) ([]float64, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	scores := make([]float64, len(documents))
	if strings.TrimSpace(query) == "" {
		return scores, nil
	}

	for start := 0; start < len(documents); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(documents) {
			end = len(documents)
		}
		batch := documents[start:end]

		reqCtx := ctx
		var cancel context.CancelFunc
		if c.timeout > 0 {
			reqCtx, cancel = context.WithTimeout(ctx, c.timeout)
		}
		topN := len(batch)
		resp, err := c.rerank(reqCtx, &cohere.V2RerankRequest{
			Model:     c.model,
			Query:     query,
			Documents: batch,
			TopN:      &topN,
		})
		if cancel != nil {
			cancel()
		}
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return nil, &core.ProviderTimeoutError{Provider: "cohere", Op: "rerank", Timeout: c.timeout}
			}
			return nil, &core.ProviderError{Provider: "cohere", Op: "rerank", Transient: true, Err: err}
		}
		if resp == nil {
			return nil, &core.ProviderError{Provider: "cohere", Op: "rerank", Err: errors.New("empty response")}
		}
		for _, result := range resp.Results {
			if result == nil {
				continue
			}
			idx := start + result.Index
			if idx < 0 || idx >= len(scores) {
				return nil, &core.ProviderError{
					Provider: "cohere",
					Op:       "rerank",
					Err:      fmt.Errorf("result index %d out of range", result.Index),
				}
			}
			scores[idx] = result.RelevanceScore
		}
	}
	return scores, nil
}
