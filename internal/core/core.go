package core

import "time"

// ClientStatus is the user-facing lifecycle of a saved item.
type ClientStatus string

const (
	ClientAdding    ClientStatus = "adding"
	ClientQueued    ClientStatus = "queued"
	ClientPaused    ClientStatus = "paused"
	ClientCompleted ClientStatus = "completed"
	ClientBookmark  ClientStatus = "bookmark"
	ClientError     ClientStatus = "error"
)

// ServerStatus tracks how far the ingestion pipeline has advanced.
type ServerStatus string

const (
	ServerSaved      ServerStatus = "saved"
	ServerExtracted  ServerStatus = "extracted"
	ServerSummarised ServerStatus = "summarised"
	ServerEmbedded   ServerStatus = "embedded"
	ServerClassified ServerStatus = "classified"
)

// Item represents one saved article.
type Item struct {
	ID                string       `json:"id" db:"id"`
	UserID            string       `json:"user_id" db:"user_id"`
	URL               string       `json:"url" db:"url"`
	CanonicalURL      string       `json:"canonical_url,omitempty" db:"canonical_url"`
	Title             string       `json:"title,omitempty" db:"title"`
	SourceSite        string       `json:"source_site,omitempty" db:"source_site"`
	FaviconURL        string       `json:"favicon_url,omitempty" db:"favicon_url"`
	PublicationDate   *time.Time   `json:"publication_date,omitempty" db:"publication_date"`
	ContentMarkdown   string       `json:"content_markdown,omitempty" db:"content_markdown"`
	ContentText       string       `json:"content_text,omitempty" db:"content_text"`
	ContentTokenCount int          `json:"content_token_count" db:"content_token_count"`
	ClientStatus      ClientStatus `json:"client_status" db:"client_status"`
	ServerStatus      ServerStatus `json:"server_status" db:"server_status"`
	Summary           string       `json:"summary,omitempty" db:"summary"`
	ExpiryScore       float64      `json:"expiry_score" db:"expiry_score"`
	Embedding         []float64    `json:"-" db:"-"`
	ClientStatusAt    time.Time    `json:"client_status_at" db:"client_status_at"`
	ServerStatusAt    time.Time    `json:"server_status_at" db:"server_status_at"`
	CreatedAt         time.Time    `json:"created_at" db:"created_at"`
}

// Chunk is an ordered slice of one item's text with its own embedding.
// Positions are contiguous from 0 and unique per item.
type Chunk struct {
	ItemID     string    `json:"item_id" db:"item_id"`
	Position   int       `json:"position" db:"position"`
	Text       string    `json:"text" db:"content_text"`
	TokenCount int       `json:"token_count" db:"content_token_count"`
	Embedding  []float64 `json:"-" db:"-"`
}

// ItemVector pairs an item id with its full-document embedding.
type ItemVector struct {
	ID     string
	Vector []float64
}

// ChunkVector pairs a chunk with its embedding plus the metadata needed to
// roll chunk hits up to their owning item.
type ChunkVector struct {
	ItemID   string
	Position int
	Text     string
	Vector   []float64
}

// UnclusteredID marks points no clustering algorithm claimed (DBSCAN noise).
const UnclusteredID = -1

// ClusterAssignment maps an item to a request-scoped cluster id and its 2D
// projection coordinates. Assignments are recomputed per request, never
// patched incrementally; cluster ids are not stable across requests.
type ClusterAssignment struct {
	ItemID    string  `json:"id"`
	ClusterID int     `json:"cluster_id"`
	X         float64 `json:"x"`
	Y         float64 `json:"y"`
}

// ClusterLabel is a short human-readable label for one cluster, with a
// display color derived from the label text so recomputed layouts keep
// visually stable colors for the same topic.
type ClusterLabel struct {
	ClusterID int    `json:"cluster_id"`
	Label     string `json:"label"`
	Color     string `json:"color"`
}

// SearchResult is one ranked hit from lexical or semantic retrieval. Score
// is higher-is-better; Distance is only set for semantic mode.
type SearchResult struct {
	ItemID   string   `json:"id"`
	Title    string   `json:"title,omitempty"`
	Summary  string   `json:"summary,omitempty"`
	URL      string   `json:"url,omitempty"`
	Preview  string   `json:"preview,omitempty"`
	Score    float64  `json:"score"`
	Distance *float64 `json:"distance,omitempty"`
}
