package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	sqlite3 "github.com/mattn/go-sqlite3"

	"later/internal/core"
)

type itemRow struct {
	core.Item
	EmbeddingJSON sql.NullString `db:"embedding"`
}

func (r *itemRow) toItem() (*core.Item, error) {
	item := r.Item
	if r.EmbeddingJSON.Valid {
		vec, err := unmarshalVector(r.EmbeddingJSON.String)
		if err != nil {
			return nil, err
		}
		item.Embedding = vec
	}
	return &item, nil
}

const itemColumns = `id, user_id, url, canonical_url, title, source_site,
	favicon_url, publication_date, content_markdown, content_text,
	content_token_count, client_status, server_status, summary,
	expiry_score, embedding, client_status_at, server_status_at, created_at`

// CreateItem inserts a freshly saved item. A duplicate (user, url) or
// (user, canonical_url) comes back as *core.ConflictError.
func (s *Store) CreateItem(ctx context.Context, item *core.Item) error {
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	if item.ClientStatus == "" {
		item.ClientStatus = core.ClientAdding
	}
	if item.ServerStatus == "" {
		item.ServerStatus = core.ServerSaved
	}
	item.ClientStatusAt = now
	item.ServerStatusAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO items (
			id, user_id, url, canonical_url, title, source_site, favicon_url,
			publication_date, content_markdown, content_text, content_token_count,
			client_status, server_status, summary, expiry_score,
			client_status_at, server_status_at, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		item.ID, item.UserID, item.URL, item.CanonicalURL, item.Title,
		item.SourceSite, item.FaviconURL, item.PublicationDate,
		item.ContentMarkdown, item.ContentText, item.ContentTokenCount,
		item.ClientStatus, item.ServerStatus, item.Summary, item.ExpiryScore,
		item.ClientStatusAt, item.ServerStatusAt, item.CreatedAt,
	)
	if err != nil {
		return mapConflict(err, item)
	}
	return nil
}

func mapConflict(err error, item *core.Item) error {
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.ExtendedCode == sqlite3.ErrConstraintUnique {
		if strings.Contains(serr.Error(), "canonical_url") {
			return &core.ConflictError{Field: "canonical_url", Value: item.CanonicalURL}
		}
		return &core.ConflictError{Field: "url", Value: item.URL}
	}
	return err
}

// GetItem loads one item, embedding included.
func (s *Store) GetItem(ctx context.Context, userID, id string) (*core.Item, error) {
	var row itemRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+itemColumns+` FROM items WHERE user_id = ? AND id = ?`, userID, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toItem()
}

// FindByCanonicalURL returns the existing item a canonical URL would
// collide with, or ErrNotFound.
func (s *Store) FindByCanonicalURL(ctx context.Context, userID, canonicalURL string) (*core.Item, error) {
	var row itemRow
	err := s.db.GetContext(ctx, &row,
		`SELECT `+itemColumns+` FROM items WHERE user_id = ? AND canonical_url = ?`,
		userID, canonicalURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toItem()
}

// ListItems returns a user's items, newest first. Embeddings are omitted.
func (s *Store) ListItems(ctx context.Context, userID string) ([]*core.Item, error) {
	var rows []itemRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, url, canonical_url, title, source_site, favicon_url,
			publication_date, content_markdown, content_text, content_token_count,
			client_status, server_status, summary, expiry_score,
			client_status_at, server_status_at, created_at
		FROM items WHERE user_id = ? ORDER BY created_at DESC, id`, userID)
	if err != nil {
		return nil, err
	}
	items := make([]*core.Item, len(rows))
	for i := range rows {
		items[i] = &rows[i].Item
	}
	return items, nil
}

// ExtractedFields carries everything the extractor contributes to an item.
type ExtractedFields struct {
	CanonicalURL    string
	Title           string
	SourceSite      string
	FaviconURL      string
	PublicationDate *time.Time
	ContentMarkdown string
	ContentText     string
}

// SetExtracted records extraction output and advances the server status.
func (s *Store) SetExtracted(ctx context.Context, id string, f ExtractedFields) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET
			canonical_url = ?, title = ?, source_site = ?, favicon_url = ?,
			publication_date = ?, content_markdown = ?, content_text = ?,
			server_status = ?, server_status_at = ?
		WHERE id = ?`,
		f.CanonicalURL, f.Title, f.SourceSite, f.FaviconURL,
		f.PublicationDate, f.ContentMarkdown, f.ContentText,
		core.ServerExtracted, time.Now().UTC(), id)
	if err != nil {
		return mapConflict(err, &core.Item{CanonicalURL: f.CanonicalURL})
	}
	return requireRow(res)
}

// SetSummarised records the LLM summary and expiry score.
func (s *Store) SetSummarised(ctx context.Context, id, summary string, expiryScore float64) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET summary = ?, expiry_score = ?, server_status = ?, server_status_at = ?
		WHERE id = ?`,
		summary, expiryScore, core.ServerSummarised, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetEmbedded stores the cleaned text, the item embedding, and all chunks
// in one transaction, replacing any chunks from a previous run.
func (s *Store) SetEmbedded(ctx context.Context, id, contentText string, tokenCount int, vector []float64, chunks []core.Chunk) error {
	encoded, err := marshalVector(vector)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE items SET content_text = ?, content_token_count = ?, embedding = ?,
			server_status = ?, server_status_at = ?
		WHERE id = ?`,
		contentText, tokenCount, encoded, core.ServerEmbedded, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if err := requireRow(res); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE item_id = ?`, id); err != nil {
		return err
	}
	for _, chunk := range chunks {
		chunkVec, err := marshalVector(chunk.Embedding)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO chunks (item_id, position, content_text, token_count, embedding)
			VALUES (?, ?, ?, ?, ?)`,
			id, chunk.Position, chunk.Text, chunk.TokenCount, chunkVec); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// SetClassified completes the pipeline: server status classified, client
// status queued.
func (s *Store) SetClassified(ctx context.Context, id string) error {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET server_status = ?, server_status_at = ?,
			client_status = ?, client_status_at = ?
		WHERE id = ?`,
		core.ServerClassified, now, core.ClientQueued, now, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// MarkError flags a failed ingestion. The row stays so the user can retry.
func (s *Store) MarkError(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET client_status = ?, client_status_at = ? WHERE id = ?`,
		core.ClientError, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetClientStatus moves an item between user-facing states.
func (s *Store) SetClientStatus(ctx context.Context, userID, id string, status core.ClientStatus) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE items SET client_status = ?, client_status_at = ?
		WHERE user_id = ? AND id = ?`,
		status, time.Now().UTC(), userID, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// DeleteItem removes an item and, through the cascade, its chunks.
func (s *Store) DeleteItem(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE user_id = ? AND id = ?`, userID, id)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// ItemVectors returns the full-document embedding of every embedded item.
func (s *Store) ItemVectors(ctx context.Context, userID string) ([]core.ItemVector, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, embedding FROM items
		WHERE user_id = ? AND embedding IS NOT NULL AND embedding != ''
		ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ItemVector
	for rows.Next() {
		var id, encoded string
		if err := rows.Scan(&id, &encoded); err != nil {
			return nil, err
		}
		vec, err := unmarshalVector(encoded)
		if err != nil {
			return nil, err
		}
		out = append(out, core.ItemVector{ID: id, Vector: vec})
	}
	return out, rows.Err()
}

// ChunkVectors returns every chunk embedding for a user, with the text
// needed to build previews.
func (s *Store) ChunkVectors(ctx context.Context, userID string) ([]core.ChunkVector, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.item_id, c.position, c.content_text, c.embedding
		FROM chunks c JOIN items i ON i.id = c.item_id
		WHERE i.user_id = ?
		ORDER BY c.item_id, c.position`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.ChunkVector
	for rows.Next() {
		var cv core.ChunkVector
		var encoded string
		if err := rows.Scan(&cv.ItemID, &cv.Position, &cv.Text, &encoded); err != nil {
			return nil, err
		}
		vec, err := unmarshalVector(encoded)
		if err != nil {
			return nil, err
		}
		cv.Vector = vec
		out = append(out, cv)
	}
	return out, rows.Err()
}

// Chunks returns one item's chunks in position order.
func (s *Store) Chunks(ctx context.Context, itemID string) ([]core.Chunk, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT item_id, position, content_text, token_count, embedding
		FROM chunks WHERE item_id = ? ORDER BY position`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []core.Chunk
	for rows.Next() {
		var chunk core.Chunk
		var encoded string
		if err := rows.Scan(&chunk.ItemID, &chunk.Position, &chunk.Text, &chunk.TokenCount, &encoded); err != nil {
			return nil, err
		}
		vec, err := unmarshalVector(encoded)
		if err != nil {
			return nil, err
		}
		chunk.Embedding = vec
		out = append(out, chunk)
	}
	return out, rows.Err()
}

// Summaries returns item id -> summary for the given ids.
func (s *Store) Summaries(ctx context.Context, userID string, ids []string) (map[string]string, error) {
	if len(ids) == 0 {
		return map[string]string{}, nil
	}
	query, args, err := sqlx.In(
		`SELECT id, summary FROM items WHERE user_id = ? AND id IN (?)`, userID, ids)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string, len(ids))
	for rows.Next() {
		var id, summary string
		if err := rows.Scan(&id, &summary); err != nil {
			return nil, err
		}
		out[id] = summary
	}
	return out, rows.Err()
}

// SearchMeta returns the presentation fields for a set of items.
func (s *Store) SearchMeta(ctx context.Context, userID string, ids []string) (map[string]core.SearchResult, error) {
	if len(ids) == 0 {
		return map[string]core.SearchResult{}, nil
	}
	query, args, err := sqlx.In(`
		SELECT id, title, summary, url, substr(content_text, 1, 300) AS preview
		FROM items WHERE user_id = ? AND id IN (?)`, userID, ids)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]core.SearchResult, len(ids))
	for rows.Next() {
		var r core.SearchResult
		if err := rows.Scan(&r.ItemID, &r.Title, &r.Summary, &r.URL, &r.Preview); err != nil {
			return nil, err
		}
		out[r.ItemID] = r
	}
	return out, rows.Err()
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}
