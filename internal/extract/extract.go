// Package extract fetches a web page and pulls out its readable content and
// metadata.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/araddon/dateparse"
	readability "github.com/go-shiori/go-readability"

	"later/internal/config"
	"later/internal/core"
	"later/internal/logger"
)

// maxBodyBytes caps how much of a response we will read.
const maxBodyBytes = 10 << 20

// minContentChars is the least amount of extracted text we accept.
const minContentChars = 10

// Result holds everything extracted from one page.
type Result struct {
	URL             string
	CanonicalURL    string
	Title           string
	SourceSite      string
	FaviconURL      string
	PublicationDate *time.Time
	ContentMarkdown string
	ContentText     string
}

// Extractor fetches and parses pages.
type Extractor struct {
	client    *http.Client
	userAgent string
}

// New creates an Extractor from configuration.
func New(cfg config.Extract) *Extractor {
	return &Extractor{
		client:    &http.Client{Timeout: cfg.Timeout},
		userAgent: cfg.UserAgent,
	}
}

// Extract fetches rawURL and returns its readable content plus page
// metadata. Failures come back as *core.ExtractionError.
func (e *Extractor) Extract(ctx context.Context, rawURL string) (*Result, error) {
	prepared, err := PrepareURL(rawURL)
	if err != nil {
		return nil, err
	}

	body, err := e.fetch(ctx, prepared)
	if err != nil {
		return nil, err
	}

	pageURL, _ := url.Parse(prepared)

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, &core.ExtractionError{URL: prepared, Reason: "failed to parse HTML", Err: err}
	}
	meta := readMetadata(doc, pageURL)

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return nil, &core.ExtractionError{URL: prepared, Reason: "no content could be extracted", Err: err}
	}

	text := strings.TrimSpace(article.TextContent)
	if len(text) < minContentChars {
		return nil, &core.ExtractionError{URL: prepared, Reason: "insufficient content found on the webpage"}
	}

	markdown := MarkdownFromHTML(article.Content)
	if strings.TrimSpace(markdown) == "" {
		markdown = text
	}

	res := &Result{
		URL:             prepared,
		CanonicalURL:    meta.canonical,
		Title:           firstNonEmpty(article.Title, meta.title),
		SourceSite:      firstNonEmpty(article.SiteName, meta.siteName),
		PublicationDate: meta.published,
		ContentMarkdown: markdown,
		ContentText:     text,
	}

	faviconBase := pageURL
	if res.CanonicalURL != "" {
		if cu, err := url.Parse(res.CanonicalURL); err == nil {
			faviconBase = cu
		}
	}
	res.FaviconURL = FaviconURL(faviconBase)
	if res.SourceSite == "" && faviconBase != nil {
		res.SourceSite = faviconBase.Host
	}

	return res, nil
}

func (e *Extractor) fetch(ctx context.Context, pageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, &core.ExtractionError{URL: pageURL, Reason: "invalid request", Err: err}
	}
	if e.userAgent != "" {
		req.Header.Set("User-Agent", e.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, &core.ExtractionError{URL: pageURL, Reason: "fetch failed", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &core.ExtractionError{
			URL:    pageURL,
			Reason: fmt.Sprintf("fetch failed: status code %d", resp.StatusCode),
		}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &core.ExtractionError{URL: pageURL, Reason: "failed to read response body", Err: err}
	}
	return body, nil
}

type pageMetadata struct {
	canonical string
	title     string
	siteName  string
	published *time.Time
}

// readMetadata scrapes canonical and Open Graph metadata from the raw page.
func readMetadata(doc *goquery.Document, base *url.URL) pageMetadata {
	var meta pageMetadata

	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		meta.canonical = normalizeURL(href, base)
	}
	if meta.canonical == "" {
		if content, ok := doc.Find(`meta[property="og:url"]`).First().Attr("content"); ok {
			meta.canonical = normalizeURL(content, base)
		}
	}

	if content, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		meta.title = strings.TrimSpace(content)
	}
	if content, ok := doc.Find(`meta[property="og:site_name"]`).First().Attr("content"); ok {
		meta.siteName = strings.TrimSpace(content)
	}

	for _, selector := range []string{
		`meta[property="article:published_time"]`,
		`meta[name="date"]`,
		`meta[itemprop="datePublished"]`,
	} {
		content, ok := doc.Find(selector).First().Attr("content")
		if !ok || strings.TrimSpace(content) == "" {
			continue
		}
		parsed, err := dateparse.ParseAny(strings.TrimSpace(content))
		if err != nil {
			logger.Debug("unparseable publication date", "value", content)
			continue
		}
		meta.published = &parsed
		break
	}

	return meta
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
