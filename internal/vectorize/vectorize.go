// Package vectorize turns extracted article content into chunk and item
// embeddings.
//
// Content is cleaned and split into overlapping sentence-aligned chunks,
// each chunk is embedded, and the item-level vector is either a direct
// embedding of the full text (when it fits the provider's token window) or
// a weighted mean pool of the chunk vectors.
package vectorize

import (
	"context"
	"fmt"

	"later/internal/core"
	"later/internal/logger"
)

const (
	maxTokens    = 8192
	safetyMargin = 256 // tokenizer estimates can undercount vs the provider
	batchSize    = 16
)

// Embedder produces embedding vectors for batches of text and estimates
// token counts the way the provider's tokenizer would.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	CountTokens(text string) int
}

// Vectorizer chunks and embeds item content.
type Vectorizer struct {
	embedder Embedder
}

// New creates a Vectorizer backed by the given embedder.
func New(embedder Embedder) *Vectorizer {
	return &Vectorizer{embedder: embedder}
}

// Result holds everything produced by indexing one item.
type Result struct {
	CleanText  string
	TokenCount int
	Vector     []float64
	Chunks     []core.Chunk
}

// IndexItem cleans and chunks the item's content, embeds every chunk, and
// computes the item-level vector. Content short enough for the provider's
// token window is embedded whole; longer content falls back to a mean pool
// of the chunk vectors weighted by each chunk's non-overlapping token count.
func (v *Vectorizer) IndexItem(ctx context.Context, itemID, content string) (*Result, error) {
	clean := CleanText(content)
	if clean == "" {
		return nil, &core.ValidationError{Param: "content", Reason: "cannot embed item without extracted content"}
	}
	texts := ChunkText(clean)
	if len(texts) == 0 {
		return nil, &core.ValidationError{Param: "content", Reason: "failed to split content into chunks"}
	}

	var (
		vectors     [][]float64
		tokenCounts []int
	)
	for start := 0; start < len(texts); start += batchSize {
		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]
		embedded, err := v.embedder.Embed(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embed chunk batch at %d: %w", start, err)
		}
		if len(embedded) != len(batch) {
			return nil, fmt.Errorf("embed chunk batch at %d: got %d vectors for %d texts", start, len(embedded), len(batch))
		}
		vectors = append(vectors, embedded...)
		for _, text := range batch {
			tokenCounts = append(tokenCounts, v.embedder.CountTokens(text))
		}
	}

	chunks := make([]core.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = core.Chunk{
			ItemID:     itemID,
			Position:   i,
			Text:       text,
			TokenCount: tokenCounts[i],
			Embedding:  vectors[i],
		}
	}

	contentTokens := v.embedder.CountTokens(clean)
	var itemVector []float64
	if contentTokens <= maxTokens-safetyMargin {
		full, err := v.embedder.Embed(ctx, []string{clean})
		if err != nil {
			return nil, fmt.Errorf("embed full text: %w", err)
		}
		if len(full) > 0 {
			itemVector = full[0]
		}
	}
	if itemVector == nil {
		pooled, err := v.poolChunks(itemID, texts, vectors, tokenCounts)
		if err != nil {
			return nil, err
		}
		itemVector = pooled
	}

	return &Result{
		CleanText:  clean,
		TokenCount: contentTokens,
		Vector:     itemVector,
		Chunks:     chunks,
	}, nil
}

// EmbedQuery embeds a single ad-hoc search query.
func (v *Vectorizer) EmbedQuery(ctx context.Context, text string) ([]float64, error) {
	if CleanText(text) == "" {
		return nil, &core.ValidationError{Param: "query", Reason: "query text must not be empty"}
	}
	vectors, err := v.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embed query: provider returned no vectors")
	}
	return vectors[0], nil
}

// poolChunks combines chunk vectors into one item vector. Overlapping words
// repeated from the previous chunk are discounted from each chunk's weight
// so shared context is not double counted.
func (v *Vectorizer) poolChunks(itemID string, texts []string, vectors [][]float64, tokenCounts []int) ([]float64, error) {
	effective := make([]float64, len(texts))
	total := 0.0
	for i := range texts {
		count := tokenCounts[i]
		if i > 0 {
			if overlap := overlapWordCount(texts[i-1], texts[i]); overlap > 0 {
				words := splitLeadingWords(texts[i], overlap)
				count -= v.embedder.CountTokens(words)
			}
		}
		if count < 0 {
			count = 0
		}
		effective[i] = float64(count)
		total += effective[i]
	}

	if total <= 0 {
		logger.Warn("pooling chunks with uniform weights", "item_id", itemID)
		return meanPool(vectors)
	}
	return weightedMeanPool(vectors, effective)
}

func splitLeadingWords(s string, n int) string {
	seen := 0
	inWord := false
	for i, r := range s {
		isSpace := r == ' ' || r == '\n' || r == '\t'
		if !isSpace && !inWord {
			inWord = true
		} else if isSpace && inWord {
			inWord = false
			seen++
			if seen == n {
				return s[:i]
			}
		}
	}
	return s
}

func meanPool(vectors [][]float64) ([]float64, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("cannot mean-pool an empty list of vectors")
	}
	dims := len(vectors[0])
	totals := make([]float64, dims)
	for _, vec := range vectors {
		if len(vec) != dims {
			return nil, fmt.Errorf("all embeddings must share the same dimensionality")
		}
		for i, val := range vec {
			totals[i] += val
		}
	}
	scale := 1.0 / float64(len(vectors))
	for i := range totals {
		totals[i] *= scale
	}
	return totals, nil
}

func weightedMeanPool(vectors [][]float64, weights []float64) ([]float64, error) {
	if len(vectors) == 0 {
		return nil, fmt.Errorf("cannot pool an empty list of vectors")
	}
	if len(vectors) != len(weights) {
		return nil, fmt.Errorf("vectors and weights must share the same length")
	}
	dims := len(vectors[0])
	totals := make([]float64, dims)
	totalWeight := 0.0
	for i, vec := range vectors {
		if len(vec) != dims {
			return nil, fmt.Errorf("all embeddings must share the same dimensionality")
		}
		w := weights[i]
		if w <= 0 {
			continue
		}
		totalWeight += w
		for j, val := range vec {
			totals[j] += val * w
		}
	}
	if totalWeight <= 0 {
		return nil, fmt.Errorf("total weight for pooling must be positive")
	}
	scale := 1.0 / totalWeight
	for i := range totals {
		totals[i] *= scale
	}
	return totals, nil
}
