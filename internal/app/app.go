// Package app wires the pipeline stages together and runs one price check.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/clock/system"
	"github.com/JakeFAU/pricewatch/internal/config"
	"github.com/JakeFAU/pricewatch/internal/id/uuid"
	"github.com/JakeFAU/pricewatch/internal/notify"
	"github.com/JakeFAU/pricewatch/internal/progress"
	"github.com/JakeFAU/pricewatch/internal/reconcile"
	"github.com/JakeFAU/pricewatch/internal/scheduler"
	"github.com/JakeFAU/pricewatch/internal/telemetry"
	"github.com/JakeFAU/pricewatch/internal/tracker"
	"github.com/JakeFAU/pricewatch/internal/worker"
)

const hubCloseTimeout = 10 * time.Second

// Services are the collaborators an App needs. Fetcher and Store are
// required; the rest fall back to defaults.
type Services struct {
	Fetcher tracker.Fetcher
	// Headless serves items flagged for rendering; nil fails those items.
	Headless tracker.Fetcher
	// Promoter enables headless retries for client-rendered pages.
	Promoter worker.Promoter
	Store    tracker.StateStore
	Channel  notify.Channel
	Clock    tracker.Clock
	IDs      tracker.IDGenerator
	Sinks    []progress.Sink
	// Gatherer backs the metrics textfile export.
	Gatherer prometheus.Gatherer
}

// App runs price checks for a fixed item list.
type App struct {
	cfg     config.Config
	items   []tracker.Item
	svc     Services
	logger  *zap.Logger
	closers []func() error
}

// New validates svc and returns an App for cfg.
func New(cfg config.Config, svc Services, logger *zap.Logger) (*App, error) {
	if svc.Fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if svc.Store == nil {
		return nil, errors.New("store is required")
	}
	if svc.Channel == nil {
		svc.Channel = notify.Noop
	}
	if svc.Clock == nil {
		svc.Clock = system.New()
	}
	if svc.IDs == nil {
		svc.IDs = uuid.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{cfg: cfg, items: cfg.Items(), svc: svc, logger: logger}, nil
}

// Store exposes the configured state store.
func (a *App) Store() tracker.StateStore {
	return a.svc.Store
}

// Close releases resources acquired by Build, most recent first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// Run checks every item once. Store and configuration failures are returned;
// per-item and notification failures are only counted in the Summary. A
// canceled ctx aborts the run before anything is saved.
func (a *App) Run(ctx context.Context) (Summary, error) {
	id, err := a.svc.IDs.NewID()
	if err != nil {
		return Summary{}, fmt.Errorf("generate run id: %w", err)
	}
	ctx, span := telemetry.Tracer("app").Start(ctx, "pricewatch.run",
		trace.WithAttributes(attribute.String("run.id", id.String()), attribute.Int("run.items", len(a.items))))
	defer span.End()
	r := &run{
		app:     a,
		runID:   progress.UUIDToBytes(id),
		started: a.svc.Clock.Now(),
		hub:     progress.NewHub(progress.Config{Logger: a.logger}, a.svc.Sinks...),
	}
	r.emit(progress.Event{Stage: progress.StageRunStart, Note: fmt.Sprintf("%d items", len(a.items))})

	sum, runErr := r.execute(ctx)
	sum.RunID = id.String()
	sum.Duration = a.svc.Clock.Now().Sub(r.started)
	if runErr == nil {
		r.emit(progress.Event{Stage: progress.StageRunDone, Dur: sum.Duration, Note: sum.String()})
	} else {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, "run failed")
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), hubCloseTimeout)
	defer cancel()
	if err := r.hub.Close(closeCtx); err != nil {
		a.logger.Warn("progress hub close failed", zap.Error(err))
	}
	if err := a.writeMetrics(); err != nil {
		a.logger.Warn("metrics export failed", zap.Error(err))
	}
	return sum, runErr
}

func (a *App) writeMetrics() error {
	if a.cfg.Metrics.Textfile == "" || a.svc.Gatherer == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(a.cfg.Metrics.Textfile, a.svc.Gatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

type run struct {
	app     *App
	runID   [16]byte
	started time.Time
	hub     *progress.Hub
}

func (r *run) emit(evt progress.Event) {
	evt.RunID = r.runID
	if evt.TS.IsZero() {
		evt.TS = r.app.svc.Clock.Now()
	}
	if evt.Site == "" && evt.URL != "" {
		evt.Site = progress.SiteFromURL(evt.URL)
	}
	r.hub.Emit(evt)
}

func (r *run) execute(ctx context.Context) (Summary, error) {
	a := r.app
	emitter := progress.EmitterFunc(r.emit)

	state, err := a.svc.Store.Load(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load store: %w", err)
	}

	w := worker.New(a.svc.Fetcher, a.svc.Headless, a.svc.Clock, emitter, worker.Config{
		RunID:    r.runID,
		Promoter: a.svc.Promoter,
	}, a.logger)
	outcomes, err := scheduler.New(w, a.cfg.Concurrency).RunAll(ctx, a.items)
	if err != nil {
		return Summary{}, fmt.Errorf("check items: %w", err)
	}

	res := reconcile.Reconcile(outcomes, state)
	sum := newSummary(res)
	for _, rep := range res.Reports {
		r.emit(reportEvent(rep))
	}

	if err := ctx.Err(); err != nil {
		return sum, fmt.Errorf("run aborted: %w", err)
	}
	dispatcher := notify.NewDispatcher(a.svc.Channel, emitter, notify.Config{
		Recipients: a.cfg.Email.Recipients,
		RunID:      r.runID,
	}, a.logger)
	for _, change := range res.Changes {
		decision, err := dispatcher.MaybeNotify(ctx, change.Item, change.Event)
		switch {
		case err != nil:
			sum.NotifyFailed++
		case decision == notify.Suppress:
			sum.Suppressed++
		default:
			sum.Notified++
		}
	}

	if err := ctx.Err(); err != nil {
		return sum, fmt.Errorf("run aborted: %w", err)
	}
	if err := a.svc.Store.Save(ctx, state); err != nil {
		return sum, fmt.Errorf("save store: %w", err)
	}
	return sum, nil
}

func reportEvent(rep reconcile.Report) progress.Event {
	evt := progress.Event{URL: rep.Item.URL}
	switch rep.Kind {
	case reconcile.ReportFailed:
		evt.Stage = progress.StageItemFailed
		evt.Reason = string(rep.Err.Reason)
		evt.Note = rep.Err.Error()
	case reconcile.ReportNew:
		evt.Stage = progress.StageNewItem
		evt.Title = rep.Observation.Title
		evt.NewPrice = rep.Observation.Price
	case reconcile.ReportChanged:
		evt.Stage = progress.StagePriceChanged
		evt.Title = rep.Observation.Title
		if evt.Title == "" {
			evt.Title = rep.Previous.Title
		}
		evt.OldPrice = rep.Previous.Price
		evt.NewPrice = rep.Observation.Price
		evt.PrevCheckedAt = rep.Previous.CheckedAt
	case reconcile.ReportUnchanged:
		evt.Stage = progress.StagePriceUnchanged
		evt.Title = rep.Observation.Title
		evt.OldPrice = rep.Previous.Price
		evt.NewPrice = rep.Observation.Price
		evt.PrevCheckedAt = rep.Previous.CheckedAt
	}
	return evt
}
