package app

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/config"
	collyfetcher "github.com/JakeFAU/pricewatch/internal/fetcher/colly"
	"github.com/JakeFAU/pricewatch/internal/fetcher/headless"
	"github.com/JakeFAU/pricewatch/internal/headless/detector"
	"github.com/JakeFAU/pricewatch/internal/notify"
	"github.com/JakeFAU/pricewatch/internal/notify/mail"
	"github.com/JakeFAU/pricewatch/internal/notify/pubsub"
	"github.com/JakeFAU/pricewatch/internal/policy/ratelimit"
	"github.com/JakeFAU/pricewatch/internal/progress"
	"github.com/JakeFAU/pricewatch/internal/progress/sinks"
	"github.com/JakeFAU/pricewatch/internal/storage/file"
	"github.com/JakeFAU/pricewatch/internal/storage/gcs"
	"github.com/JakeFAU/pricewatch/internal/storage/postgres"
	"github.com/JakeFAU/pricewatch/internal/storage/sqlite"
	"github.com/JakeFAU/pricewatch/internal/telemetry"
	"github.com/JakeFAU/pricewatch/internal/tracker"
)

const tracerShutdownTimeout = 5 * time.Second

// Build constructs production services from cfg. The caller must Close the
// returned App.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var closers []func() error
	fail := func(err error) (*App, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		return nil, err
	}

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.Endpoint,
	})
	if err != nil {
		return fail(tracker.NewError(tracker.ReasonConfigInvalid, "", err))
	}
	closers = append(closers, func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), tracerShutdownTimeout)
		defer cancel()
		return tp.Shutdown(shutdownCtx)
	})

	store, closeStore, err := OpenStore(ctx, cfg.Store, logger)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, closeStore)

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return fail(err)
	}

	limiter := ratelimit.New(ratelimit.Config{
		PerHostRPS: cfg.HTTP.PerHostRPS,
		Burst:      cfg.HTTP.PerHostBurst,
	})
	svc := Services{
		Fetcher: ratelimit.Wrap(collyfetcher.New(collyfetcher.Config{
			UserAgent:       cfg.HTTP.UserAgent,
			Timeout:         cfg.HTTP.Timeout,
			MaxConnsPerHost: cfg.Concurrency,
		}), limiter, logger),
		Store:    store,
		Sinks:    []progress.Sink{sinks.NewLogSink(logger), promSink},
		Gatherer: registry,
	}

	if cfg.Headless.Enabled {
		h, err := headless.NewChromedp(headless.Config{
			MaxParallel:       cfg.Headless.MaxParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: cfg.Headless.NavTimeout,
		})
		if err != nil {
			return fail(fmt.Errorf("init headless fetcher: %w", err))
		}
		closers = append(closers, func() error { h.Close(); return nil })
		svc.Headless = ratelimit.Wrap(h, limiter, logger)
		if cfg.Headless.AutoPromote {
			svc.Promoter = detector.NewHeuristic(cfg.Headless.PromoteThreshold)
		}
	}

	var channels []notify.Channel
	if cfg.Email.Enabled() {
		ch, err := mail.New(mail.Config{
			Sender:   cfg.Email.Sender,
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
		}, logger)
		if err != nil {
			return fail(tracker.NewError(tracker.ReasonConfigInvalid, "", err))
		}
		channels = append(channels, ch)
	}
	if cfg.PubSub.Topic != "" {
		ch, closePubSub, err := pubsub.Dial(ctx, cfg.PubSub.ProjectID, cfg.PubSub.Topic)
		if err != nil {
			return fail(tracker.NewError(tracker.ReasonConfigInvalid, "", err))
		}
		closers = append(closers, closePubSub)
		channels = append(channels, ch)
	}
	svc.Channel = notify.Multi(channels...)

	a, err := New(cfg, svc, logger)
	if err != nil {
		return fail(err)
	}
	a.closers = closers
	return a, nil
}

// OpenStore opens the configured state store and returns a close function.
func OpenStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (tracker.StateStore, func() error, error) {
	noop := func() error { return nil }
	switch cfg.Backend {
	case config.BackendFile, "":
		s, err := file.New(cfg.Path, logger)
		if err != nil {
			return nil, nil, tracker.NewError(tracker.ReasonConfigInvalid, "", err)
		}
		return s, noop, nil
	case config.BackendSQLite:
		s, err := sqlite.Open(ctx, cfg.DSN, cfg.Table, logger)
		if err != nil {
			return nil, nil, tracker.AsError(err, tracker.ReasonStoreUnreadable, cfg.DSN)
		}
		return s, s.Close, nil
	case config.BackendPostgres:
		s, err := postgres.New(ctx, postgres.Config{DSN: cfg.DSN, Table: cfg.Table}, logger)
		if err != nil {
			return nil, nil, tracker.NewError(tracker.ReasonStoreUnreadable, cfg.Table, err)
		}
		return s, func() error { s.Close(); return nil }, nil
	case config.BackendGCS:
		s, closeFn, err := gcs.Dial(ctx, gcs.Config{Bucket: cfg.Bucket, Object: cfg.Object}, logger)
		if err != nil {
			return nil, nil, tracker.NewError(tracker.ReasonStoreUnreadable, cfg.Bucket, err)
		}
		return s, closeFn, nil
	default:
		return nil, nil, tracker.NewError(tracker.ReasonConfigInvalid, "",
			fmt.Errorf("unknown store backend %q", cfg.Backend))
	}
}
