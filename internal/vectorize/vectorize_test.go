package vectorize

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"testing"

	"later/internal/core"
)

// fakeEmbedder returns deterministic vectors and counts one token per word.
type fakeEmbedder struct {
	calls     int
	batches   [][]string
	embedErr  error
	tokensPer int // tokens reported per word, default 1
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	f.calls++
	f.batches = append(f.batches, texts)
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		n := float64(len(strings.Fields(text)))
		out[i] = []float64{n, n * 2, 1}
	}
	return out, nil
}

func (f *fakeEmbedder) CountTokens(text string) int {
	per := f.tokensPer
	if per == 0 {
		per = 1
	}
	return len(strings.Fields(text)) * per
}

func TestCleanText(t *testing.T) {
	in := "Hello&amp;   world foo\n\n\n\n  bar  \t baz"
	got := CleanText(in)
	want := "Hello& world foo\n\nbar baz"
	if got != want {
		t.Errorf("CleanText = %q, want %q", got, want)
	}
}

func TestSentences(t *testing.T) {
	in := "First sentence. Second one! Third? (Paren start.) 4 numbers too. no split here.lowercase"
	got := Sentences(in)
	want := []string{
		"First sentence.",
		"Second one!",
		"Third?",
		"(Paren start.)",
		"4 numbers too. no split here.lowercase",
	}
	if len(got) != len(want) {
		t.Fatalf("Sentences = %#v, want %#v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("sentence %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSentencesNoBoundaries(t *testing.T) {
	in := "just a run of words with no punctuation at all"
	got := Sentences(in)
	if len(got) != 1 || got[0] != in {
		t.Errorf("Sentences = %#v, want single element", got)
	}
}

func makeLongText(sentences int) string {
	var b strings.Builder
	for i := 0; i < sentences; i++ {
		fmt.Fprintf(&b, "Sentence number %d has exactly eight words total. ", i)
	}
	return strings.TrimSpace(b.String())
}

func TestChunkTextShortSingleChunk(t *testing.T) {
	text := makeLongText(10) // 80 words
	chunks := ChunkText(text)
	if len(chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(chunks))
	}
	if chunks[0] != text {
		t.Errorf("short text should pass through unchanged")
	}
}

func TestChunkTextBudgetAndOverlap(t *testing.T) {
	text := makeLongText(200) // 1600 words
	chunks := ChunkText(text)
	if len(chunks) < 3 {
		t.Fatalf("chunks = %d, want at least 3", len(chunks))
	}
	for i, chunk := range chunks {
		if n := len(strings.Fields(chunk)); n > wordsPerChunk {
			t.Errorf("chunk %d has %d words, over budget %d", i, n, wordsPerChunk)
		}
	}
	for i := 1; i < len(chunks); i++ {
		if overlapWordCount(chunks[i-1], chunks[i]) == 0 {
			t.Errorf("no overlap between chunk %d and %d", i-1, i)
		}
	}
}

func TestChunkTextCoversAllSentences(t *testing.T) {
	text := makeLongText(150)
	joined := strings.Join(ChunkText(text), " ")
	for _, sent := range Sentences(text) {
		if !strings.Contains(joined, sent) {
			t.Errorf("sentence missing from chunks: %q", sent)
		}
	}
}

func TestChunkTextHardSplitsLongSentence(t *testing.T) {
	words := make([]string, 900)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	text := strings.Join(words, " ") // one long "sentence"
	chunks := ChunkText(text)
	if len(chunks) < 2 {
		t.Fatalf("chunks = %d, want at least 2", len(chunks))
	}
	for i, chunk := range chunks {
		if n := len(strings.Fields(chunk)); n > wordsPerChunk {
			t.Errorf("chunk %d has %d words, over budget", i, n)
		}
	}
	joined := strings.Join(chunks, " ")
	for _, w := range words {
		if !strings.Contains(joined, w) {
			t.Fatalf("word %q missing after hard split", w)
		}
	}
}

func TestIndexItemShortContentUsesFullEmbedding(t *testing.T) {
	embedder := &fakeEmbedder{}
	v := New(embedder)

	text := makeLongText(20) // well under the token window
	res, err := v.IndexItem(context.Background(), "item-1", text)
	if err != nil {
		t.Fatalf("IndexItem: %v", err)
	}
	if len(res.Chunks) != 1 {
		t.Fatalf("chunks = %d, want 1", len(res.Chunks))
	}
	// one call for the chunk batch, one for the full text
	if embedder.calls != 2 {
		t.Errorf("embed calls = %d, want 2", embedder.calls)
	}
	wantWords := float64(len(strings.Fields(CleanText(text))))
	if res.Vector[0] != wantWords {
		t.Errorf("item vector = %v, want direct full-text embedding", res.Vector)
	}
	if res.TokenCount != int(wantWords) {
		t.Errorf("token count = %d, want %d", res.TokenCount, int(wantWords))
	}
}

func TestIndexItemLongContentPoolsChunks(t *testing.T) {
	// 10 tokens per word pushes the full text over the window while
	// individual chunks stay embeddable.
	embedder := &fakeEmbedder{tokensPer: 10}
	v := New(embedder)

	text := makeLongText(200)
	res, err := v.IndexItem(context.Background(), "item-1", text)
	if err != nil {
		t.Fatalf("IndexItem: %v", err)
	}
	if len(res.Chunks) < 3 {
		t.Fatalf("chunks = %d, want at least 3", len(res.Chunks))
	}
	// pooled vector must lie within the chunk vectors' range
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, c := range res.Chunks {
		lo = math.Min(lo, c.Embedding[0])
		hi = math.Max(hi, c.Embedding[0])
	}
	if res.Vector[0] < lo || res.Vector[0] > hi {
		t.Errorf("pooled vector %v outside chunk range [%v, %v]", res.Vector[0], lo, hi)
	}
	// no full-text embedding call: one call per chunk batch only
	wantCalls := (len(res.Chunks) + batchSize - 1) / batchSize
	if embedder.calls != wantCalls {
		t.Errorf("embed calls = %d, want %d", embedder.calls, wantCalls)
	}
}

func TestIndexItemChunkPositions(t *testing.T) {
	embedder := &fakeEmbedder{}
	v := New(embedder)
	res, err := v.IndexItem(context.Background(), "item-9", makeLongText(200))
	if err != nil {
		t.Fatalf("IndexItem: %v", err)
	}
	for i, c := range res.Chunks {
		if c.Position != i {
			t.Errorf("chunk %d has position %d", i, c.Position)
		}
		if c.ItemID != "item-9" {
			t.Errorf("chunk %d has item id %q", i, c.ItemID)
		}
		if c.TokenCount <= 0 {
			t.Errorf("chunk %d has token count %d", i, c.TokenCount)
		}
	}
}

func TestIndexItemEmptyContent(t *testing.T) {
	v := New(&fakeEmbedder{})
	_, err := v.IndexItem(context.Background(), "item-1", "   \n ")
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestIndexItemEmbedError(t *testing.T) {
	wantErr := errors.New("provider down")
	v := New(&fakeEmbedder{embedErr: wantErr})
	_, err := v.IndexItem(context.Background(), "item-1", makeLongText(20))
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v, want wrapped provider error", err)
	}
}

func TestEmbedQuery(t *testing.T) {
	embedder := &fakeEmbedder{}
	v := New(embedder)

	vec, err := v.EmbedQuery(context.Background(), "vector databases")
	if err != nil {
		t.Fatalf("EmbedQuery: %v", err)
	}
	if len(vec) != 3 || vec[0] != 2 {
		t.Errorf("query vector = %v", vec)
	}

	_, err = v.EmbedQuery(context.Background(), "  ")
	var verr *core.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
	if embedder.calls != 1 {
		t.Errorf("embed calls = %d, want 1 (empty query must not hit provider)", embedder.calls)
	}
}

func TestWeightedMeanPool(t *testing.T) {
	vectors := [][]float64{{1, 0}, {3, 0}}
	got, err := weightedMeanPool(vectors, []float64{1, 3})
	if err != nil {
		t.Fatalf("weightedMeanPool: %v", err)
	}
	if math.Abs(got[0]-2.5) > 1e-9 {
		t.Errorf("pooled = %v, want [2.5 0]", got)
	}

	if _, err := weightedMeanPool(vectors, []float64{0, 0}); err == nil {
		t.Error("expected error for zero total weight")
	}
	if _, err := weightedMeanPool(nil, nil); err == nil {
		t.Error("expected error for empty input")
	}
}
