// Package scheduler fans item observations out over a bounded pool.
package scheduler

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/pricewatch/internal/tracker"
)

// DefaultConcurrency is the in-flight ceiling used when none is configured.
const DefaultConcurrency = 32

// Observer produces one outcome for one item.
type Observer interface {
	Observe(ctx context.Context, item tracker.Item) tracker.Outcome
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, item tracker.Item) tracker.Outcome

// Observe calls f(ctx, item).
func (f ObserverFunc) Observe(ctx context.Context, item tracker.Item) tracker.Outcome {
	return f(ctx, item)
}

// Scheduler runs an Observer over a list of items.
type Scheduler struct {
	observer Observer
	limit    int
}

// New creates a Scheduler admitting at most limit concurrent observations.
func New(observer Observer, limit int) *Scheduler {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	return &Scheduler{observer: observer, limit: limit}
}

// RunAll observes every item and returns outcomes in input order. It returns
// only after every observation finished. A failing item never cancels its
// siblings; the only error is the context's, when it ends before all items
// were admitted.
func (s *Scheduler) RunAll(ctx context.Context, items []tracker.Item) ([]tracker.Outcome, error) {
	outcomes := make([]tracker.Outcome, len(items))
	// Tasks never fail; per-item errors travel inside the outcomes.
	var g errgroup.Group
	g.SetLimit(s.limit)

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			_ = g.Wait()
			return nil, err
		}
		g.Go(func() error {
			outcomes[i] = s.observer.Observe(ctx, item)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return outcomes, nil
}
