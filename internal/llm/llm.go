// Package llm wraps the Gemini API for summarisation, cluster labeling, and
// embeddings.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"google.golang.org/genai"

	"later/internal/config"
	"later/internal/core"
	"later/internal/logger"
)

const (
	// DefaultEmbeddingDimensions uses Matryoshka truncation to keep vectors
	// compact while staying compatible with gemini-embedding-001.
	DefaultEmbeddingDimensions int32 = 768

	summarizePrompt = `Your role is to extract key metadata from the scraped article below.
Provide a 1-2 sentence summary and an expiry score between 0 and 1 where 1 decays fastest
(breaking news, launch posts) and 0 is evergreen reference material.

%s`

	labelPrompt = `You are a data labeler for a cluster of saved articles.
Given the summaries of the cluster's contents, provide a 1-2 word label for the cluster.
Look for the broader theme where possible.

%s`
)

// Client talks to Gemini.
type Client struct {
	gClient        *genai.Client
	model          string
	embeddingModel string
	timeout        time.Duration
}

// NewClient creates a Gemini client from configuration.
func NewClient(ctx context.Context, cfg config.GeminiConfig) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key not configured (set GEMINI_API_KEY)")
	}
	gClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &Client{
		gClient:        gClient,
		model:          cfg.Model,
		embeddingModel: cfg.EmbeddingModel,
		timeout:        cfg.Timeout,
	}, nil
}

// Summary is the structured output of Summarise.
type Summary struct {
	Summary     string  `json:"summary"`
	ExpiryScore float64 `json:"expiry_score"`
}

// SummaryContext carries the item metadata given to the model alongside the
// article content.
type SummaryContext struct {
	Title           string
	SourceSite      string
	PublicationDate *time.Time
	URL             string
	ContentMarkdown string
}

func (sc SummaryContext) render() string {
	var parts []string
	if sc.Title != "" {
		parts = append(parts, "Title: "+sc.Title)
	}
	if sc.SourceSite != "" {
		parts = append(parts, "Source: "+sc.SourceSite)
	}
	if sc.PublicationDate != nil {
		parts = append(parts, "Published: "+sc.PublicationDate.Format(time.RFC3339))
	}
	parts = append(parts, "URL: "+sc.URL)
	if sc.ContentMarkdown != "" {
		parts = append(parts, "\nArticle Content:\n"+sc.ContentMarkdown)
	}
	return strings.Join(parts, "\n")
}

// Summarise produces a 1-2 sentence summary and an expiry score in [0, 1]
// for the given item.
func (c *Client) Summarise(ctx context.Context, sc SummaryContext) (*Summary, error) {
	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"summary":      {Type: genai.TypeString},
			"expiry_score": {Type: genai.TypeNumber},
		},
		Required: []string{"summary", "expiry_score"},
	}

	text, err := c.generateStructured(ctx, fmt.Sprintf(summarizePrompt, sc.render()), schema)
	if err != nil {
		return nil, wrapErr("summarise", c.timeout, err)
	}

	var summary Summary
	if err := json.Unmarshal([]byte(cleanJSON(text)), &summary); err != nil {
		return nil, &core.ProviderError{
			Provider: "gemini",
			Op:       "summarise",
			Err:      fmt.Errorf("invalid structured response: %w", err),
		}
	}
	if summary.ExpiryScore < 0 {
		summary.ExpiryScore = 0
	}
	if summary.ExpiryScore > 1 {
		summary.ExpiryScore = 1
	}
	return &summary, nil
}

// LabelCluster produces a short thematic label for a cluster given the
// summaries of its members.
func (c *Client) LabelCluster(ctx context.Context, summaries []string) (string, error) {
	if len(summaries) == 0 {
		return "", &core.ValidationError{Param: "summaries", Reason: "cluster has no summaries to label"}
	}
	var sb strings.Builder
	for i, s := range summaries {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, s)
	}

	schema := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"label": {Type: genai.TypeString},
		},
		Required: []string{"label"},
	}

	text, err := c.generateStructured(ctx, fmt.Sprintf(labelPrompt, sb.String()), schema)
	if err != nil {
		return "", wrapErr("label_cluster", c.timeout, err)
	}

	var out struct {
		Label string `json:"label"`
	}
	if err := json.Unmarshal([]byte(cleanJSON(text)), &out); err != nil {
		return "", &core.ProviderError{
			Provider: "gemini",
			Op:       "label_cluster",
			Err:      fmt.Errorf("invalid structured response: %w", err),
		}
	}
	label := strings.TrimSpace(out.Label)
	if label == "" {
		return "", &core.ProviderError{
			Provider: "gemini",
			Op:       "label_cluster",
			Err:      errors.New("empty label from model"),
		}
	}
	return label, nil
}

func (c *Client) generateStructured(ctx context.Context, prompt string, schema *genai.Schema) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	contents := []*genai.Content{{
		Parts: []*genai.Part{{Text: prompt}},
		Role:  "user",
	}}
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}

	resp, err := c.gClient.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("empty response from model")
	}
	return text, nil
}

// Embed generates one embedding vector per input text.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = &genai.Content{
			Parts: []*genai.Part{{Text: text}},
			Role:  "user",
		}
	}

	dims := DefaultEmbeddingDimensions
	resp, err := c.gClient.Models.EmbedContent(ctx, c.embeddingModel, contents, &genai.EmbedContentConfig{
		OutputDimensionality: &dims,
	})
	if err != nil {
		return nil, wrapErr("embed", c.timeout, err)
	}
	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, &core.ProviderError{
			Provider: "gemini",
			Op:       "embed",
			Err:      fmt.Errorf("got %d embeddings for %d texts", got, len(texts)),
		}
	}

	out := make([][]float64, len(texts))
	for i, emb := range resp.Embeddings {
		if emb == nil || len(emb.Values) == 0 {
			return nil, &core.ProviderError{
				Provider: "gemini",
				Op:       "embed",
				Err:      fmt.Errorf("no embedding values at index %d", i),
			}
		}
		vec := make([]float64, len(emb.Values))
		for j, val := range emb.Values {
			vec[j] = float64(val)
		}
		out[i] = vec
	}
	return out, nil
}

// CountTokens estimates the provider token count for text. The estimate
// deliberately overcounts slightly; callers subtract a safety margin anyway.
func (c *Client) CountTokens(text string) int {
	runes := utf8.RuneCountInString(text)
	// ~4 characters per token for English prose
	return (runes + 3) / 4
}

func (c *Client) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// wrapErr maps SDK failures onto the shared provider error taxonomy.
func wrapErr(op string, timeout time.Duration, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &core.ProviderTimeoutError{Provider: "gemini", Op: op, Timeout: timeout}
	}
	transient := false
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		transient = apiErr.Code == 429 || apiErr.Code >= 500
	}
	if !transient {
		logger.Debug("non-retryable provider failure", "op", op, "error", err.Error())
	}
	return &core.ProviderError{Provider: "gemini", Op: op, Transient: transient, Err: err}
}

// cleanJSON strips markdown code fences the model occasionally wraps around
// structured output.
func cleanJSON(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
