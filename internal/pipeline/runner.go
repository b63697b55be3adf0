package pipeline

import (
	"context"
	"sync"

	"later/internal/core"
	"later/internal/logger"

	"golang.org/x/sync/errgroup"
)

// Runner launches pipeline work in the background and tracks in-flight items
// so a delete can cancel processing instead of racing it.
type Runner struct {
	pipeline *Pipeline

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// NewRunner creates a Runner around p.
func NewRunner(p *Pipeline) *Runner {
	return &Runner{
		pipeline: p,
		cancels:  make(map[string]context.CancelFunc),
	}
}

// Launch processes the item in a background goroutine. Launching an item
// already in flight is a no-op.
func (r *Runner) Launch(item *core.Item) {
	r.mu.Lock()
	if _, running := r.cancels[item.ID]; running {
		r.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.cancels[item.ID] = cancel
	r.wg.Add(1)
	r.mu.Unlock()

	go func() {
		defer r.done(item.ID, cancel)
		if err := r.pipeline.Process(ctx, item); err != nil && ctx.Err() == nil {
			logger.Error("background processing failed", err, "item_id", item.ID)
		}
	}()
}

// Cancel stops in-flight processing for the item. It reports whether the
// item was being processed.
func (r *Runner) Cancel(id string) bool {
	r.mu.Lock()
	cancel, ok := r.cancels[id]
	r.mu.Unlock()
	if ok {
		cancel()
	}
	return ok
}

// Running reports whether the item is currently being processed.
func (r *Runner) Running(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.cancels[id]
	return ok
}

// ResumeAll reprocesses the given items concurrently, bounded to limit
// workers. Individual failures are logged and do not stop the batch.
func (r *Runner) ResumeAll(ctx context.Context, items []*core.Item, limit int) error {
	if limit <= 0 {
		limit = 4
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, item := range items {
		item := item
		g.Go(func() error {
			if err := r.pipeline.Process(ctx, item); err != nil {
				logger.Warn("resume failed", "item_id", item.ID, "error", err.Error())
			}
			return nil
		})
	}
	return g.Wait()
}

// Wait blocks until every launched goroutine has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) done(id string, cancel context.CancelFunc) {
	cancel()
	r.mu.Lock()
	delete(r.cancels, id)
	r.mu.Unlock()
	r.wg.Done()
}
