package handlers

import (
	"context"
	"fmt"

	"later/internal/config"
	"later/internal/extract"
	"later/internal/label"
	"later/internal/llm"
	"later/internal/logger"
	"later/internal/pipeline"
	"later/internal/rerank"
	"later/internal/search"
	"later/internal/store"
	"later/internal/vectorize"
)

// app bundles the wired components the commands share.
type app struct {
	cfg      *config.Config
	store    *store.Store
	llm      *llm.Client
	pipeline *pipeline.Pipeline
	runner   *pipeline.Runner
	searcher *search.Searcher
	labeler  *label.Labeler
}

// buildApp opens the store and constructs every component from config. The
// Cohere reranker is optional; without a key, search degrades to semantic
// ordering.
func buildApp(ctx context.Context) (*app, error) {
	cfg := config.Get()

	st, err := store.New(cfg.App.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	llmClient, err := llm.NewClient(ctx, cfg.AI.Gemini)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("failed to create llm client: %w", err)
	}

	vectorizer := vectorize.New(llmClient)
	extractor := extract.New(cfg.Extract)
	pipe := pipeline.New(st, extractor, llmClient, vectorizer, cfg.Pipeline)

	var reranker search.Reranker
	if cfg.Rerank.APIKey != "" {
		client, err := rerank.NewClient(cfg.Rerank.APIKey, cfg.Rerank.Model, cfg.Rerank.Timeout)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to create rerank client: %w", err)
		}
		reranker = client
	} else {
		logger.Debug("no cohere api key, reranking disabled")
	}

	return &app{
		cfg:      cfg,
		store:    st,
		llm:      llmClient,
		pipeline: pipe,
		runner:   pipeline.NewRunner(pipe),
		searcher: search.New(st, vectorizer, reranker, cfg.Search),
		labeler:  label.New(llmClient, 0),
	}, nil
}

func (a *app) Close() {
	a.runner.Wait()
	if err := a.store.Close(); err != nil {
		logger.Warn("failed to close store", "error", err.Error())
	}
}
