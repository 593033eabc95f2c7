// Package worker observes the current price of a single tracked item.
package worker

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/extract"
	"github.com/JakeFAU/pricewatch/internal/price"
	"github.com/JakeFAU/pricewatch/internal/progress"
	"github.com/JakeFAU/pricewatch/internal/telemetry"
	"github.com/JakeFAU/pricewatch/internal/tracker"
)

// Config controls Worker behavior.
type Config struct {
	// RunID tags every progress event emitted by the worker.
	RunID [16]byte
	// Promoter, when set together with a headless fetcher, retries items
	// whose static page looks client-rendered and lacks the price element.
	Promoter Promoter
}

// Promoter decides whether a statically fetched page needs a headless render.
type Promoter interface {
	ShouldPromote(status int, body []byte) bool
}

// Worker fetches a page, extracts the price and parses it. It holds no
// per-item state and is safe for concurrent use.
type Worker struct {
	fetcher  tracker.Fetcher
	headless tracker.Fetcher
	clock    tracker.Clock
	emitter  progress.Emitter
	cfg      Config
	logger   *zap.Logger
}

// New constructs a Worker. headless serves items flagged for rendering and
// may be nil, in which case those items fail individually.
func New(
	fetcher tracker.Fetcher,
	headless tracker.Fetcher,
	clock tracker.Clock,
	emitter progress.Emitter,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if emitter == nil {
		emitter = progress.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		fetcher:  fetcher,
		headless: headless,
		clock:    clock,
		emitter:  emitter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Observe produces exactly one Outcome for item; it never panics on bad input
// and never returns a fatal error.
func (w *Worker) Observe(ctx context.Context, item tracker.Item) tracker.Outcome {
	ctx, span := telemetry.Tracer("worker").Start(ctx, "pricewatch.observe",
		trace.WithAttributes(attribute.String("item.url", item.URL)))
	defer span.End()

	out := w.observe(ctx, item)
	if !out.OK() {
		span.SetStatus(codes.Error, string(out.Err.Reason))
	}
	return out
}

func (w *Worker) observe(ctx context.Context, item tracker.Item) tracker.Outcome {
	w.emit(progress.Event{Stage: progress.StageFetchStart, URL: item.URL})

	doc, err := w.fetcherFor(item).Fetch(ctx, item.URL)
	if err != nil {
		w.logger.Debug("fetch failed", zap.String("url", item.URL), zap.Error(err))
		return tracker.Failure(item, tracker.NewError(tracker.ReasonFetchFailed, item.URL, err))
	}
	w.emit(progress.Event{
		Stage: progress.StageFetchDone,
		URL:   item.URL,
		Bytes: int64(len(doc.Body)),
		Dur:   doc.Duration,
	})

	ext, err := extract.Evaluate(doc.Body, item.Rule)
	if err != nil && w.promotable(item, doc, err) {
		w.logger.Info("promoting to headless", zap.String("url", item.URL))
		rendered, ferr := w.headless.Fetch(ctx, item.URL)
		if ferr != nil {
			return tracker.Failure(item, tracker.NewError(tracker.ReasonFetchFailed, item.URL, ferr))
		}
		ext, err = extract.Evaluate(rendered.Body, item.Rule)
	}
	if err != nil {
		return tracker.Failure(item, tracker.AsError(err, tracker.ReasonElementNotFound, item.URL))
	}

	value, err := price.Parse(ext.Raw)
	if err != nil {
		return tracker.Failure(item, tracker.NewError(tracker.ReasonPriceNotNumeric, item.URL, err))
	}

	return tracker.Success(item, tracker.Observation{
		URL:        item.URL,
		Title:      ext.Title,
		Price:      value,
		ObservedAt: w.clock.Now().UTC(),
	})
}

func (w *Worker) promotable(item tracker.Item, doc tracker.Document, err error) bool {
	if item.Headless || w.headless == nil || w.cfg.Promoter == nil {
		return false
	}
	if tracker.ReasonOf(err) != tracker.ReasonElementNotFound {
		return false
	}
	return w.cfg.Promoter.ShouldPromote(doc.StatusCode, doc.Body)
}

func (w *Worker) fetcherFor(item tracker.Item) tracker.Fetcher {
	if item.Headless {
		if w.headless == nil {
			return unavailableFetcher{}
		}
		return w.headless
	}
	return w.fetcher
}

func (w *Worker) emit(evt progress.Event) {
	evt.RunID = w.cfg.RunID
	evt.TS = w.clock.Now().UTC()
	evt.Site = progress.SiteFromURL(evt.URL)
	w.emitter.Emit(evt)
}

type unavailableFetcher struct{}

func (unavailableFetcher) Fetch(context.Context, string) (tracker.Document, error) {
	return tracker.Document{}, errHeadlessUnavailable
}
