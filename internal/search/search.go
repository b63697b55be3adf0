// Package search implements hybrid retrieval over saved items: lexical
// bm25, semantic cosine ranking, and cross-encoder reranking.
package search

import (
	"context"
	"math"
	"sort"
	"strings"

	"later/internal/config"
	"later/internal/core"
	"later/internal/logger"
	"later/internal/rerank"
)

// Mode selects the ranking signal.
type Mode string

const (
	ModeLexical  Mode = "lexical"
	ModeSemantic Mode = "semantic"
)

// Scope selects the search granularity.
type Scope string

const (
	ScopeItems  Scope = "items"
	ScopeChunks Scope = "chunks"
)

const defaultLimit = 10

// Store is the persistence surface search needs.
type Store interface {
	LexicalSearchItems(ctx context.Context, userID, query string, limit int) ([]core.SearchResult, error)
	LexicalSearchChunks(ctx context.Context, userID, query string, limit int) ([]core.SearchResult, error)
	ItemVectors(ctx context.Context, userID string) ([]core.ItemVector, error)
	ChunkVectors(ctx context.Context, userID string) ([]core.ChunkVector, error)
	SearchMeta(ctx context.Context, userID string, ids []string) (map[string]core.SearchResult, error)
}

// QueryEmbedder turns a query string into a vector.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float64, error)
}

// Reranker scores query/document relevance; higher is better.
type Reranker interface {
	Score(ctx context.Context, query string, documents []string) ([]float64, error)
}

// Request is one search invocation.
type Request struct {
	UserID string
	Query  string
	Mode   Mode
	Scope  Scope
	Limit  int
	// Rerank disables the cross-encoder pass when false. Only meaningful
	// in semantic mode.
	Rerank bool
}

// Searcher runs hybrid retrieval.
type Searcher struct {
	store    Store
	embedder QueryEmbedder
	reranker Reranker
	cfg      config.Search
}

// New creates a Searcher. reranker may be nil, disabling the rerank pass.
func New(store Store, embedder QueryEmbedder, reranker Reranker, cfg config.Search) *Searcher {
	return &Searcher{store: store, embedder: embedder, reranker: reranker, cfg: cfg}
}

// Search executes the request. An empty or whitespace query returns no
// results without touching any provider.
func (s *Searcher) Search(ctx context.Context, req Request) ([]core.SearchResult, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, nil
	}
	if req.Limit <= 0 {
		req.Limit = defaultLimit
	}
	if req.Scope == "" {
		req.Scope = ScopeItems
	}

	switch req.Mode {
	case ModeLexical, "":
		return s.lexical(ctx, req)
	case ModeSemantic:
		return s.semantic(ctx, req)
	default:
		return nil, &core.ValidationError{Param: "mode", Reason: "must be lexical or semantic"}
	}
}

func (s *Searcher) lexical(ctx context.Context, req Request) ([]core.SearchResult, error) {
	switch req.Scope {
	case ScopeItems:
		return s.store.LexicalSearchItems(ctx, req.UserID, req.Query, req.Limit)
	case ScopeChunks:
		return s.store.LexicalSearchChunks(ctx, req.UserID, req.Query, req.Limit)
	default:
		return nil, &core.ValidationError{Param: "scope", Reason: "must be items or chunks"}
	}
}

func (s *Searcher) semantic(ctx context.Context, req Request) ([]core.SearchResult, error) {
	if req.Scope != ScopeItems && req.Scope != ScopeChunks {
		return nil, &core.ValidationError{Param: "scope", Reason: "must be items or chunks"}
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, req.Query)
	if err != nil {
		return nil, err
	}
	fetchLimit := req.Limit * s.fetchMultiplier()

	var candidates []core.SearchResult
	if req.Scope == ScopeItems {
		candidates, err = s.semanticItems(ctx, req.UserID, queryVec, fetchLimit)
	} else {
		candidates, err = s.semanticChunks(ctx, req.UserID, queryVec, fetchLimit)
	}
	if err != nil {
		return nil, err
	}

	candidates = s.filterByScore(candidates)

	if req.Rerank && s.reranker != nil {
		candidates = s.rerankCandidates(ctx, req.Query, candidates)
	}

	if len(candidates) < req.Limit {
		candidates, err = s.lexicalFallback(ctx, req, candidates)
		if err != nil {
			return nil, err
		}
	}
	if len(candidates) > req.Limit {
		candidates = candidates[:req.Limit]
	}
	return candidates, nil
}

func (s *Searcher) semanticItems(ctx context.Context, userID string, queryVec []float64, fetchLimit int) ([]core.SearchResult, error) {
	vectors, err := s.store.ItemVectors(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make([]core.SearchResult, 0, len(vectors))
	for _, iv := range vectors {
		sim := cosineSimilarity(queryVec, iv.Vector)
		dist := 1 - sim
		results = append(results, core.SearchResult{ItemID: iv.ID, Score: sim, Distance: &dist})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > fetchLimit {
		results = results[:fetchLimit]
	}
	return s.attachMeta(ctx, userID, results, nil)
}

func (s *Searcher) semanticChunks(ctx context.Context, userID string, queryVec []float64, fetchLimit int) ([]core.SearchResult, error) {
	vectors, err := s.store.ChunkVectors(ctx, userID)
	if err != nil {
		return nil, err
	}

	type scored struct {
		cv  core.ChunkVector
		sim float64
	}
	all := make([]scored, 0, len(vectors))
	for _, cv := range vectors {
		all = append(all, scored{cv: cv, sim: cosineSimilarity(queryVec, cv.Vector)})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].sim > all[j].sim })

	// best chunk per item; its text becomes the preview
	seen := make(map[string]bool)
	var results []core.SearchResult
	previews := make(map[string]string)
	for _, sc := range all {
		if seen[sc.cv.ItemID] {
			continue
		}
		seen[sc.cv.ItemID] = true
		dist := 1 - sc.sim
		results = append(results, core.SearchResult{ItemID: sc.cv.ItemID, Score: sc.sim, Distance: &dist})
		previews[sc.cv.ItemID] = sc.cv.Text
		if len(results) == fetchLimit {
			break
		}
	}
	return s.attachMeta(ctx, userID, results, previews)
}

func (s *Searcher) attachMeta(ctx context.Context, userID string, results []core.SearchResult, previews map[string]string) ([]core.SearchResult, error) {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ItemID
	}
	meta, err := s.store.SearchMeta(ctx, userID, ids)
	if err != nil {
		return nil, err
	}
	for i := range results {
		m, ok := meta[results[i].ItemID]
		if !ok {
			continue
		}
		results[i].Title = m.Title
		results[i].Summary = m.Summary
		results[i].URL = m.URL
		if preview, ok := previews[results[i].ItemID]; ok && preview != "" {
			results[i].Preview = preview
		} else {
			results[i].Preview = m.Preview
		}
	}
	return results, nil
}

func (s *Searcher) filterByScore(results []core.SearchResult) []core.SearchResult {
	threshold := s.cfg.ScoreThreshold
	if threshold <= 0 {
		return results
	}
	out := results[:0]
	for _, r := range results {
		if r.Score >= threshold {
			out = append(out, r)
		}
	}
	return out
}

// rerankCandidates reorders candidates by cross-encoder relevance and drops
// those under the rerank threshold. A reranker failure keeps the coarse
// semantic ordering rather than failing the search.
func (s *Searcher) rerankCandidates(ctx context.Context, query string, candidates []core.SearchResult) []core.SearchResult {
	if len(candidates) == 0 {
		return candidates
	}
	documents := make([]string, len(candidates))
	for i, c := range candidates {
		documents[i] = rerank.Document(c.Title, c.Summary, c.Preview)
	}
	scores, err := s.reranker.Score(ctx, query, documents)
	if err != nil {
		logger.Warn("rerank failed, keeping semantic order", "error", err.Error())
		return candidates
	}

	var kept []core.SearchResult
	for i, c := range candidates {
		if scores[i] >= s.cfg.RerankThreshold {
			c.Score = scores[i]
			kept = append(kept, c)
		}
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Score > kept[j].Score })
	return kept
}

// lexicalFallback fills remaining slots with lexical hits not already
// present.
func (s *Searcher) lexicalFallback(ctx context.Context, req Request, have []core.SearchResult) ([]core.SearchResult, error) {
	remaining := req.Limit - len(have)
	var extra []core.SearchResult
	var err error
	if req.Scope == ScopeItems {
		extra, err = s.store.LexicalSearchItems(ctx, req.UserID, req.Query, remaining)
	} else {
		extra, err = s.store.LexicalSearchChunks(ctx, req.UserID, req.Query, remaining)
	}
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, len(have))
	for _, r := range have {
		seen[r.ItemID] = true
	}
	for _, r := range extra {
		if seen[r.ItemID] {
			continue
		}
		have = append(have, r)
		if len(have) == req.Limit {
			break
		}
	}
	return have, nil
}

func (s *Searcher) fetchMultiplier() int {
	if s.cfg.FetchMultiplier > 0 {
		return s.cfg.FetchMultiplier
	}
	return 4
}

// cosineSimilarity of two vectors; zero vectors score 0 so results stay
// finite.
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
