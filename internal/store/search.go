package store

import (
	"context"
	"strings"
	"unicode"

	"later/internal/core"
)

// MatchQuery turns free text into a safe FTS5 MATCH expression: each
// alphanumeric token quoted, joined with implicit AND. Returns "" when the
// input has no usable tokens.
func MatchQuery(input string) string {
	var tokens []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, `"`+current.String()+`"`)
			current.Reset()
		}
	}
	for _, r := range input {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			current.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()
	return strings.Join(tokens, " ")
}

// LexicalSearchItems ranks a user's items against the query with bm25 over
// title, summary, and content. Scores are negated bm25, higher is better.
func (s *Store) LexicalSearchItems(ctx context.Context, userID, query string, limit int) ([]core.SearchResult, error) {
	match := MatchQuery(query)
	if match == "" {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.title, i.summary, i.url,
			substr(i.content_text, 1, 300) AS preview,
			-bm25(items_fts) AS score
		FROM items_fts
		JOIN items i ON i.rowid = items_fts.rowid
		WHERE items_fts MATCH ? AND i.user_id = ?
		ORDER BY score DESC, i.created_at DESC
		LIMIT ?`, match, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.SearchResult
	for rows.Next() {
		var r core.SearchResult
		if err := rows.Scan(&r.ItemID, &r.Title, &r.Summary, &r.URL, &r.Preview, &r.Score); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LexicalSearchChunks ranks chunks with bm25 and rolls hits up to their
// items, keeping the best chunk per item as the preview.
func (s *Store) LexicalSearchChunks(ctx context.Context, userID, query string, limit int) ([]core.SearchResult, error) {
	match := MatchQuery(query)
	if match == "" {
		return nil, nil
	}
	// over-fetch so per-item dedup can still fill the limit
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.item_id, i.title, i.summary, i.url,
			substr(c.content_text, 1, 300) AS preview,
			-bm25(chunks_fts) AS score
		FROM chunks_fts
		JOIN chunks c ON c.rowid = chunks_fts.rowid
		JOIN items i ON i.id = c.item_id
		WHERE chunks_fts MATCH ? AND i.user_id = ?
		ORDER BY score DESC
		LIMIT ?`, match, userID, limit*4)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var out []core.SearchResult
	for rows.Next() {
		var r core.SearchResult
		if err := rows.Scan(&r.ItemID, &r.Title, &r.Summary, &r.URL, &r.Preview, &r.Score); err != nil {
			return nil, err
		}
		if seen[r.ItemID] {
			continue
		}
		seen[r.ItemID] = true
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, rows.Err()
}
