// Package pipeline drives a saved item through its ingestion stages:
// extract, summarise, embed, classify. Processing resumes from the first
// incomplete stage, so a crash or restart never repeats finished work.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"later/internal/config"
	"later/internal/core"
	"later/internal/extract"
	"later/internal/llm"
	"later/internal/logger"
	"later/internal/store"
	"later/internal/vectorize"
)

// Store is the persistence surface the pipeline needs.
type Store interface {
	GetItem(ctx context.Context, userID, id string) (*core.Item, error)
	FindByCanonicalURL(ctx context.Context, userID, canonicalURL string) (*core.Item, error)
	SetExtracted(ctx context.Context, id string, f store.ExtractedFields) error
	SetSummarised(ctx context.Context, id, summary string, expiryScore float64) error
	SetEmbedded(ctx context.Context, id, contentText string, tokenCount int, vector []float64, chunks []core.Chunk) error
	SetClassified(ctx context.Context, id string) error
	MarkError(ctx context.Context, id string) error
}

// Extractor fetches a page and parses its content.
type Extractor interface {
	Extract(ctx context.Context, rawURL string) (*extract.Result, error)
}

// Summariser produces a summary and expiry score for an article.
type Summariser interface {
	Summarise(ctx context.Context, sc llm.SummaryContext) (*llm.Summary, error)
}

// Indexer chunks and embeds an item's content.
type Indexer interface {
	IndexItem(ctx context.Context, itemID, content string) (*vectorize.Result, error)
}

// Pipeline coordinates the stage components.
type Pipeline struct {
	store      Store
	extractor  Extractor
	summariser Summariser
	indexer    Indexer
	cfg        config.Pipeline
}

// New creates a Pipeline.
func New(store Store, extractor Extractor, summariser Summariser, indexer Indexer, cfg config.Pipeline) *Pipeline {
	return &Pipeline{
		store:      store,
		extractor:  extractor,
		summariser: summariser,
		indexer:    indexer,
		cfg:        cfg,
	}
}

// Process runs the item through every remaining stage. On terminal failure
// the item is flagged for the client and the error is returned; a cancelled
// context leaves the item untouched so a later retry can resume.
func (p *Pipeline) Process(ctx context.Context, item *core.Item) error {
	work := *item
	err := p.run(ctx, &work)
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		logger.Debug("pipeline cancelled", "item_id", work.ID, "stage", string(work.ServerStatus))
		return err
	}
	logger.Error("pipeline failed", err, "item_id", work.ID, "stage", string(work.ServerStatus))
	if markErr := p.store.MarkError(context.WithoutCancel(ctx), work.ID); markErr != nil && !errors.Is(markErr, core.ErrNotFound) {
		logger.Error("mark error failed", markErr, "item_id", work.ID)
	}
	return err
}

// Resume reloads the item and processes its remaining stages.
func (p *Pipeline) Resume(ctx context.Context, userID, id string) error {
	item, err := p.store.GetItem(ctx, userID, id)
	if err != nil {
		return err
	}
	return p.Process(ctx, item)
}

func (p *Pipeline) run(ctx context.Context, item *core.Item) error {
	for {
		var err error
		switch item.ServerStatus {
		case core.ServerSaved:
			err = p.extractStage(ctx, item)
		case core.ServerExtracted:
			err = p.summariseStage(ctx, item)
		case core.ServerSummarised:
			err = p.embedStage(ctx, item)
		case core.ServerEmbedded:
			err = p.classifyStage(ctx, item)
		case core.ServerClassified:
			return nil
		default:
			return fmt.Errorf("unknown server status %q for item %s", item.ServerStatus, item.ID)
		}
		if err != nil {
			return err
		}
	}
}

func (p *Pipeline) extractStage(ctx context.Context, item *core.Item) error {
	result, err := retryCall(ctx, p.cfg, "extract", func(ctx context.Context) (*extract.Result, error) {
		return p.extractor.Extract(ctx, item.URL)
	})
	if err != nil {
		return fmt.Errorf("extract %s: %w", item.URL, err)
	}

	// Redirects and tracking parameters can make distinct submitted URLs
	// resolve to the same article; catch the duplicate here.
	if result.CanonicalURL != "" {
		existing, err := p.store.FindByCanonicalURL(ctx, item.UserID, result.CanonicalURL)
		if err != nil && !errors.Is(err, core.ErrNotFound) {
			return fmt.Errorf("canonical lookup for %s: %w", item.ID, err)
		}
		if existing != nil && existing.ID != item.ID {
			return &core.ConflictError{Field: "canonical_url", Value: result.CanonicalURL}
		}
	}

	fields := store.ExtractedFields{
		CanonicalURL:    result.CanonicalURL,
		Title:           result.Title,
		SourceSite:      result.SourceSite,
		FaviconURL:      result.FaviconURL,
		PublicationDate: result.PublicationDate,
		ContentMarkdown: result.ContentMarkdown,
		ContentText:     result.ContentText,
	}
	if err := p.store.SetExtracted(ctx, item.ID, fields); err != nil {
		return fmt.Errorf("persist extraction for %s: %w", item.ID, err)
	}

	item.CanonicalURL = result.CanonicalURL
	item.Title = result.Title
	item.SourceSite = result.SourceSite
	item.FaviconURL = result.FaviconURL
	item.PublicationDate = result.PublicationDate
	item.ContentMarkdown = result.ContentMarkdown
	item.ContentText = result.ContentText
	item.ServerStatus = core.ServerExtracted
	logger.Debug("extracted", "item_id", item.ID, "title", item.Title)
	return nil
}

func (p *Pipeline) summariseStage(ctx context.Context, item *core.Item) error {
	sc := llm.SummaryContext{
		Title:           item.Title,
		SourceSite:      item.SourceSite,
		PublicationDate: item.PublicationDate,
		URL:             item.URL,
		ContentMarkdown: item.ContentMarkdown,
	}
	summary, err := retryCall(ctx, p.cfg, "summarise", func(ctx context.Context) (*llm.Summary, error) {
		return p.summariser.Summarise(ctx, sc)
	})
	if err != nil {
		return fmt.Errorf("summarise %s: %w", item.ID, err)
	}
	if err := p.store.SetSummarised(ctx, item.ID, summary.Summary, summary.ExpiryScore); err != nil {
		return fmt.Errorf("persist summary for %s: %w", item.ID, err)
	}

	item.Summary = summary.Summary
	item.ExpiryScore = summary.ExpiryScore
	item.ServerStatus = core.ServerSummarised
	logger.Debug("summarised", "item_id", item.ID, "expiry_score", summary.ExpiryScore)
	return nil
}

func (p *Pipeline) embedStage(ctx context.Context, item *core.Item) error {
	result, err := retryCall(ctx, p.cfg, "embed", func(ctx context.Context) (*vectorize.Result, error) {
		return p.indexer.IndexItem(ctx, item.ID, item.ContentText)
	})
	if err != nil {
		return fmt.Errorf("embed %s: %w", item.ID, err)
	}
	if err := p.store.SetEmbedded(ctx, item.ID, result.CleanText, result.TokenCount, result.Vector, result.Chunks); err != nil {
		return fmt.Errorf("persist embedding for %s: %w", item.ID, err)
	}

	item.ContentText = result.CleanText
	item.ContentTokenCount = result.TokenCount
	item.Embedding = result.Vector
	item.ServerStatus = core.ServerEmbedded
	logger.Debug("embedded", "item_id", item.ID, "chunks", len(result.Chunks))
	return nil
}

func (p *Pipeline) classifyStage(ctx context.Context, item *core.Item) error {
	if err := p.store.SetClassified(ctx, item.ID); err != nil {
		return fmt.Errorf("classify %s: %w", item.ID, err)
	}
	item.ServerStatus = core.ServerClassified
	item.ClientStatus = core.ClientQueued
	logger.Info("item ready", "item_id", item.ID, "title", item.Title)
	return nil
}

// retryCall runs fn, repeating transient failures with doubling backoff up
// to cfg.MaxRetries extra attempts. Validation and extraction errors are
// terminal and returned immediately.
func retryCall[T any](ctx context.Context, cfg config.Pipeline, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	backoff := cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn("retrying stage", "op", op, "attempt", attempt, "backoff", backoff.String())
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
			backoff *= 2
		}
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if !core.IsRetryable(err) {
			return zero, err
		}
	}
	return zero, lastErr
}
