package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"later/internal/config"
	"later/internal/core"
	"later/internal/extract"
	"later/internal/llm"
	"later/internal/store"
	"later/internal/vectorize"
)

type fakeStore struct {
	mu         sync.Mutex
	extracted  map[string]store.ExtractedFields
	summarised map[string]string
	embedded   map[string]int
	classified map[string]bool
	errored    map[string]bool
	items      map[string]*core.Item
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		extracted:  map[string]store.ExtractedFields{},
		summarised: map[string]string{},
		embedded:   map[string]int{},
		classified: map[string]bool{},
		errored:    map[string]bool{},
		items:      map[string]*core.Item{},
	}
}

func (f *fakeStore) GetItem(_ context.Context, _, id string) (*core.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item, ok := f.items[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	copied := *item
	return &copied, nil
}

func (f *fakeStore) FindByCanonicalURL(_ context.Context, userID, canonicalURL string) (*core.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.items {
		if item.UserID == userID && item.CanonicalURL == canonicalURL {
			copied := *item
			return &copied, nil
		}
	}
	return nil, core.ErrNotFound
}

func (f *fakeStore) SetExtracted(_ context.Context, id string, fields store.ExtractedFields) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracted[id] = fields
	return nil
}

func (f *fakeStore) SetSummarised(_ context.Context, id, summary string, _ float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summarised[id] = summary
	return nil
}

func (f *fakeStore) SetEmbedded(_ context.Context, id, _ string, _ int, _ []float64, chunks []core.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedded[id] = len(chunks)
	return nil
}

func (f *fakeStore) SetClassified(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.classified[id] = true
	return nil
}

func (f *fakeStore) MarkError(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errored[id] = true
	return nil
}

type fakeExtractor struct {
	mu     sync.Mutex
	calls  int
	result *extract.Result
	errs   []error // consumed per call; nil entry means success
}

func (f *fakeExtractor) Extract(_ context.Context, _ string) (*extract.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return f.result, nil
}

type fakeSummariser struct {
	mu    sync.Mutex
	calls int
	errs  []error
}

func (f *fakeSummariser) Summarise(_ context.Context, _ llm.SummaryContext) (*llm.Summary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &llm.Summary{Summary: "a summary", ExpiryScore: 0.4}, nil
}

type fakeIndexer struct {
	mu    sync.Mutex
	calls int
	block chan struct{} // when set, IndexItem waits on it or ctx
}

func (f *fakeIndexer) IndexItem(ctx context.Context, itemID, _ string) (*vectorize.Result, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &vectorize.Result{
		CleanText:  "clean",
		TokenCount: 10,
		Vector:     []float64{1, 0},
		Chunks:     []core.Chunk{{ItemID: itemID, Position: 0, Text: "clean"}},
	}, nil
}

func testConfig() config.Pipeline {
	return config.Pipeline{MaxRetries: 2, RetryBackoff: time.Millisecond}
}

func savedItem() *core.Item {
	return &core.Item{
		ID:           "item-1",
		UserID:       "u1",
		URL:          "https://example.com/post",
		ClientStatus: core.ClientAdding,
		ServerStatus: core.ServerSaved,
	}
}

func testPipeline(st *fakeStore, ex *fakeExtractor, su *fakeSummariser, ix *fakeIndexer) *Pipeline {
	if ex.result == nil {
		ex.result = &extract.Result{
			Title:       "A Post",
			SourceSite:  "example.com",
			ContentText: "body text",
		}
	}
	return New(st, ex, su, ix, testConfig())
}

func TestProcessRunsAllStages(t *testing.T) {
	st := newFakeStore()
	ex := &fakeExtractor{}
	su := &fakeSummariser{}
	ix := &fakeIndexer{}
	p := testPipeline(st, ex, su, ix)

	if err := p.Process(context.Background(), savedItem()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ex.calls != 1 || su.calls != 1 || ix.calls != 1 {
		t.Errorf("stage calls = %d/%d/%d, want 1 each", ex.calls, su.calls, ix.calls)
	}
	if st.extracted["item-1"].Title != "A Post" {
		t.Errorf("extracted fields not persisted: %+v", st.extracted["item-1"])
	}
	if st.summarised["item-1"] != "a summary" {
		t.Errorf("summary not persisted")
	}
	if st.embedded["item-1"] != 1 {
		t.Errorf("chunks persisted = %d, want 1", st.embedded["item-1"])
	}
	if !st.classified["item-1"] {
		t.Error("item not classified")
	}
	if st.errored["item-1"] {
		t.Error("item wrongly flagged as errored")
	}
}

func TestProcessResumesMidway(t *testing.T) {
	st := newFakeStore()
	ex := &fakeExtractor{}
	su := &fakeSummariser{}
	ix := &fakeIndexer{}
	p := testPipeline(st, ex, su, ix)

	item := savedItem()
	item.ServerStatus = core.ServerSummarised
	item.ContentText = "already extracted text"

	if err := p.Process(context.Background(), item); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if ex.calls != 0 || su.calls != 0 {
		t.Errorf("finished stages re-ran: extract=%d summarise=%d", ex.calls, su.calls)
	}
	if ix.calls != 1 || !st.classified["item-1"] {
		t.Errorf("remaining stages did not run: embed=%d classified=%v", ix.calls, st.classified["item-1"])
	}
}

func TestProcessRetriesTransientFailures(t *testing.T) {
	st := newFakeStore()
	ex := &fakeExtractor{}
	su := &fakeSummariser{errs: []error{
		&core.ProviderError{Provider: "gemini", Op: "summarise", Transient: true, Err: errors.New("429")},
		nil,
	}}
	ix := &fakeIndexer{}
	p := testPipeline(st, ex, su, ix)

	if err := p.Process(context.Background(), savedItem()); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if su.calls != 2 {
		t.Errorf("summarise calls = %d, want 2", su.calls)
	}
}

func TestProcessFailsFastOnExtractionError(t *testing.T) {
	st := newFakeStore()
	ex := &fakeExtractor{errs: []error{
		&core.ExtractionError{URL: "https://example.com/post", Reason: "no content"},
		&core.ExtractionError{URL: "https://example.com/post", Reason: "no content"},
	}}
	su := &fakeSummariser{}
	ix := &fakeIndexer{}
	p := testPipeline(st, ex, su, ix)

	err := p.Process(context.Background(), savedItem())
	var xerr *core.ExtractionError
	if !errors.As(err, &xerr) {
		t.Fatalf("err = %v, want ExtractionError", err)
	}
	if ex.calls != 1 {
		t.Errorf("extract calls = %d, want 1 (no retry)", ex.calls)
	}
	if !st.errored["item-1"] {
		t.Error("item not flagged as errored")
	}
	if su.calls != 0 {
		t.Error("later stages ran after failure")
	}
}

func TestProcessRejectsDuplicateCanonicalURL(t *testing.T) {
	st := newFakeStore()
	st.items["item-0"] = &core.Item{
		ID:           "item-0",
		UserID:       "u1",
		CanonicalURL: "https://example.com/canonical",
		ServerStatus: core.ServerClassified,
	}
	ex := &fakeExtractor{result: &extract.Result{
		Title:        "A Post",
		CanonicalURL: "https://example.com/canonical",
		ContentText:  "body text",
	}}
	su := &fakeSummariser{}
	p := testPipeline(st, ex, su, &fakeIndexer{})

	err := p.Process(context.Background(), savedItem())
	var cerr *core.ConflictError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %v, want ConflictError", err)
	}
	if cerr.Field != "canonical_url" {
		t.Errorf("conflict field = %q, want canonical_url", cerr.Field)
	}
	if _, ok := st.extracted["item-1"]; ok {
		t.Error("extraction persisted for duplicate item")
	}
	if !st.errored["item-1"] {
		t.Error("duplicate item not flagged as errored")
	}
	if su.calls != 0 {
		t.Error("later stages ran after duplicate rejection")
	}
}

func TestProcessExhaustsRetries(t *testing.T) {
	transient := &core.ProviderError{Provider: "gemini", Op: "summarise", Transient: true, Err: errors.New("500")}
	st := newFakeStore()
	ex := &fakeExtractor{}
	su := &fakeSummariser{errs: []error{transient, transient, transient, transient}}
	ix := &fakeIndexer{}
	p := testPipeline(st, ex, su, ix)

	err := p.Process(context.Background(), savedItem())
	if err == nil {
		t.Fatal("Process succeeded, want exhausted retries")
	}
	// initial attempt plus MaxRetries retries
	if su.calls != 3 {
		t.Errorf("summarise calls = %d, want 3", su.calls)
	}
	if !st.errored["item-1"] {
		t.Error("item not flagged as errored")
	}
}

func TestProcessCancelledLeavesItemUntouched(t *testing.T) {
	st := newFakeStore()
	ex := &fakeExtractor{}
	su := &fakeSummariser{}
	ix := &fakeIndexer{block: make(chan struct{})}
	p := testPipeline(st, ex, su, ix)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Process(ctx, savedItem()) }()

	for i := 0; i < 100; i++ {
		ix.mu.Lock()
		started := ix.calls > 0
		ix.mu.Unlock()
		if started {
			break
		}
		time.Sleep(time.Millisecond)
	}
	cancel()

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if st.errored["item-1"] {
		t.Error("cancelled item must not be flagged as errored")
	}
}

func TestResumeLoadsItem(t *testing.T) {
	st := newFakeStore()
	item := savedItem()
	item.ServerStatus = core.ServerEmbedded
	st.items[item.ID] = item

	p := testPipeline(st, &fakeExtractor{}, &fakeSummariser{}, &fakeIndexer{})
	if err := p.Resume(context.Background(), "u1", item.ID); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if !st.classified[item.ID] {
		t.Error("resume did not finish classification")
	}
	if err := p.Resume(context.Background(), "u1", "missing"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("missing item err = %v, want ErrNotFound", err)
	}
}

func TestRunnerCancelStopsProcessing(t *testing.T) {
	st := newFakeStore()
	ix := &fakeIndexer{block: make(chan struct{})}
	p := testPipeline(st, &fakeExtractor{}, &fakeSummariser{}, ix)
	r := NewRunner(p)

	item := savedItem()
	r.Launch(item)
	for i := 0; i < 100; i++ {
		ix.mu.Lock()
		started := ix.calls > 0
		ix.mu.Unlock()
		if started {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if !r.Running(item.ID) {
		t.Fatal("item not tracked as running")
	}
	if !r.Cancel(item.ID) {
		t.Fatal("Cancel returned false for in-flight item")
	}
	r.Wait()
	if r.Running(item.ID) {
		t.Error("item still tracked after cancellation")
	}
	if st.classified[item.ID] {
		t.Error("cancelled item reached classification")
	}
}

func TestRunnerDeduplicatesLaunches(t *testing.T) {
	st := newFakeStore()
	ix := &fakeIndexer{block: make(chan struct{})}
	p := testPipeline(st, &fakeExtractor{}, &fakeSummariser{}, ix)
	r := NewRunner(p)

	item := savedItem()
	r.Launch(item)
	r.Launch(item)
	for i := 0; i < 100; i++ {
		ix.mu.Lock()
		started := ix.calls > 0
		ix.mu.Unlock()
		if started {
			break
		}
		time.Sleep(time.Millisecond)
	}
	ix.mu.Lock()
	calls := ix.calls
	ix.mu.Unlock()
	if calls != 1 {
		t.Errorf("indexer calls = %d, want 1 for duplicate launch", calls)
	}
	close(ix.block)
	r.Wait()
}
