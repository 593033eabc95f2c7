package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	googleuuid "github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/clock/system"
	"github.com/JakeFAU/pricewatch/internal/config"
	collyfetcher "github.com/JakeFAU/pricewatch/internal/fetcher/colly"
	"github.com/JakeFAU/pricewatch/internal/notify"
	"github.com/JakeFAU/pricewatch/internal/progress"
	"github.com/JakeFAU/pricewatch/internal/progress/sinks"
	"github.com/JakeFAU/pricewatch/internal/reconcile"
	"github.com/JakeFAU/pricewatch/internal/storage/file"
	"github.com/JakeFAU/pricewatch/internal/storage/memory"
	"github.com/JakeFAU/pricewatch/internal/tracker"
)

type fixedIDs struct{}

func (fixedIDs) NewID() (googleuuid.UUID, error) {
	return googleuuid.MustParse("01890000-0000-7000-8000-000000000001"), nil
}

type recordingChannel struct {
	mu       sync.Mutex
	payloads []notify.Payload
	to       [][]string
}

func (c *recordingChannel) Deliver(_ context.Context, p notify.Payload, to []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, p)
	c.to = append(c.to, to)
	return nil
}

type recordingSink struct {
	mu     sync.Mutex
	events []progress.Event
}

func (s *recordingSink) Consume(_ context.Context, batch []progress.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, batch...)
	return nil
}

func (s *recordingSink) Close(context.Context) error { return nil }

func (s *recordingSink) stages() []progress.Stage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]progress.Stage, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Stage)
	}
	return out
}

// shop serves one page per path with a mutable price.
type shop struct {
	mu     sync.Mutex
	prices map[string]string
}

func newShop(prices map[string]string) (*shop, *httptest.Server) {
	s := &shop{prices: prices}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		price, ok := s.prices[r.URL.Path]
		s.mu.Unlock()
		if !ok {
			http.NotFound(w, r)
			return
		}
		fmt.Fprintf(w, `<html><head><title>Item %s</title></head><body><span class="price">%s</span></body></html>`,
			strings.TrimPrefix(r.URL.Path, "/"), price)
	}))
	return s, srv
}

func (s *shop) set(path, price string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[path] = price
}

func testConfig(products ...config.ProductConfig) config.Config {
	return config.Config{
		Concurrency: 4,
		HTTP:        config.HTTPConfig{Timeout: 5 * time.Second},
		Email:       config.EmailConfig{Recipients: []string{"me@example.com"}},
		Products:    products,
	}
}

func newTestApp(t *testing.T, cfg config.Config, store tracker.StateStore, svc Services) *App {
	t.Helper()
	svc.Fetcher = collyfetcher.New(collyfetcher.Config{Timeout: 5 * time.Second})
	svc.Store = store
	svc.IDs = fixedIDs{}
	a, err := New(cfg, svc, zap.NewNop())
	require.NoError(t, err)
	return a
}

func TestRunEndToEndFileStore(t *testing.T) {
	t.Parallel()

	shop, srv := newShop(map[string]string{"/kettle": "12,50 EUR"})
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "prices.yaml")
	store, err := file.New(path, nil)
	require.NoError(t, err)

	clk := system.NewFixed(time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC))
	ch := &recordingChannel{}
	cfg := testConfig(config.ProductConfig{URL: srv.URL + "/kettle", Selector: ".price"})
	a := newTestApp(t, cfg, store, Services{Clock: clk, Channel: ch})

	sum, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.New)
	require.Empty(t, ch.payloads)

	state, err := store.Load(context.Background())
	require.NoError(t, err)
	entry, found := state.Lookup(srv.URL + "/kettle")
	require.True(t, found)
	require.Equal(t, 12.5, entry.Price)
	require.Equal(t, "Item kettle", entry.Title)

	shop.set("/kettle", "9,99 EUR")
	clk.Advance(24 * time.Hour)
	sum, err = a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Changed)
	require.Equal(t, 1, sum.Notified)
	require.Len(t, ch.payloads, 1)
	require.Equal(t, 12.5, ch.payloads[0].Event.OldPrice)
	require.Equal(t, 9.99, ch.payloads[0].Event.NewPrice)
	require.Equal(t, []string{"me@example.com"}, ch.to[0])

	clk.Advance(24 * time.Hour)
	sum, err = a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.Unchanged)
	require.Len(t, ch.payloads, 1)

	state, err = store.Load(context.Background())
	require.NoError(t, err)
	entry, _ = state.Lookup(srv.URL + "/kettle")
	require.Equal(t, clk.Now(), entry.CheckedAt)
}

func TestRunIsolatesFailures(t *testing.T) {
	t.Parallel()

	_, srv := newShop(map[string]string{"/a": "1.00", "/c": "3.00", "/bad": "call us"})
	defer srv.Close()

	store := memory.New(nil)
	sink := &recordingSink{}
	cfg := testConfig(
		config.ProductConfig{URL: srv.URL + "/a", Selector: ".price"},
		config.ProductConfig{URL: srv.URL + "/missing", Selector: ".price"},
		config.ProductConfig{URL: srv.URL + "/c", Selector: ".price"},
		config.ProductConfig{URL: srv.URL + "/bad", Selector: ".price"},
		config.ProductConfig{URL: srv.URL + "/a?x", Selector: "#nope"},
	)
	a := newTestApp(t, cfg, store, Services{Sinks: []progress.Sink{sink}})

	sum, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 5, sum.Checked)
	require.Equal(t, 2, sum.New)
	require.Equal(t, 3, sum.Failed)

	kinds := make([]reconcile.ReportKind, 0, len(sum.Reports))
	for _, rep := range sum.Reports {
		kinds = append(kinds, rep.Kind)
	}
	require.Equal(t, []reconcile.ReportKind{
		reconcile.ReportNew, reconcile.ReportFailed, reconcile.ReportNew,
		reconcile.ReportFailed, reconcile.ReportFailed,
	}, kinds)
	require.Equal(t, tracker.KindTransport, sum.Reports[1].Err.Kind)
	require.Equal(t, tracker.KindValueFormat, sum.Reports[3].Err.Kind)
	require.Equal(t, tracker.KindExtraction, sum.Reports[4].Err.Kind)

	state, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, state.Len())
	require.Equal(t, 1, store.Saves())

	stages := sink.stages()
	require.Equal(t, progress.StageRunStart, stages[0])
	require.Equal(t, progress.StageRunDone, stages[len(stages)-1])
	require.Contains(t, stages, progress.StageItemFailed)
}

func TestRunOnlyOnDropPolicy(t *testing.T) {
	t.Parallel()

	shop, srv := newShop(map[string]string{"/a": "10", "/b": "10"})
	defer srv.Close()

	ch := &recordingChannel{}
	cfg := testConfig(
		config.ProductConfig{URL: srv.URL + "/a", Selector: ".price", NotifyOnlyDrop: true},
		config.ProductConfig{URL: srv.URL + "/b", Selector: ".price", NotifyOnlyDrop: true,
			Recipients: []string{"b@example.com"}},
	)
	a := newTestApp(t, cfg, memory.New(nil), Services{Channel: ch})

	_, err := a.Run(context.Background())
	require.NoError(t, err)

	shop.set("/a", "12")
	shop.set("/b", "8")
	sum, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sum.Changed)
	require.Equal(t, 1, sum.Suppressed)
	require.Equal(t, 1, sum.Notified)
	require.Len(t, ch.payloads, 1)
	require.Equal(t, 8.0, ch.payloads[0].Event.NewPrice)
	require.Equal(t, []string{"b@example.com"}, ch.to[0])
}

func TestRunWithoutChannelStillSaves(t *testing.T) {
	t.Parallel()

	state := tracker.NewState()
	_, srv := newShop(map[string]string{"/a": "5"})
	defer srv.Close()
	state.Upsert(tracker.Entry{URL: srv.URL + "/a", Price: 6, CheckedAt: time.Unix(0, 0).UTC()})

	store := memory.New(state)
	a := newTestApp(t, testConfig(config.ProductConfig{URL: srv.URL + "/a", Selector: ".price"}), store, Services{})

	sum, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, sum.NotifyFailed)

	saved, err := store.Load(context.Background())
	require.NoError(t, err)
	entry, _ := saved.Lookup(srv.URL + "/a")
	require.Equal(t, 5.0, entry.Price)
}

type failingStore struct {
	loadErr error
	saveErr error
}

func (s failingStore) Load(context.Context) (*tracker.State, error) {
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return tracker.NewState(), nil
}

func (s failingStore) Save(context.Context, *tracker.State) error { return s.saveErr }

func TestRunStoreFailuresAreFatal(t *testing.T) {
	t.Parallel()

	_, srv := newShop(map[string]string{"/a": "5"})
	defer srv.Close()
	cfg := testConfig(config.ProductConfig{URL: srv.URL + "/a", Selector: ".price"})

	load := tracker.NewError(tracker.ReasonStoreUnreadable, "db", errors.New("eio"))
	_, err := newTestApp(t, cfg, failingStore{loadErr: load}, Services{}).Run(context.Background())
	require.Error(t, err)
	require.Equal(t, tracker.KindPersistence, tracker.KindOf(err))

	save := tracker.NewError(tracker.ReasonStoreUnwritable, "db", errors.New("enospc"))
	_, err = newTestApp(t, cfg, failingStore{saveErr: save}, Services{}).Run(context.Background())
	require.Equal(t, tracker.ReasonStoreUnwritable, tracker.ReasonOf(err))
}

func TestRunCanceledDoesNotSave(t *testing.T) {
	t.Parallel()

	_, srv := newShop(map[string]string{"/a": "5"})
	defer srv.Close()

	store := memory.New(nil)
	a := newTestApp(t, testConfig(config.ProductConfig{URL: srv.URL + "/a", Selector: ".price"}),
		&loadOnly{store}, Services{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := a.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, store.Saves())
}

// loadOnly ignores the context on Load so cancellation is observed later.
type loadOnly struct {
	*memory.Store
}

func (l *loadOnly) Load(context.Context) (*tracker.State, error) {
	return l.Store.Load(context.Background())
}

func TestRunWritesMetricsTextfile(t *testing.T) {
	t.Parallel()

	_, srv := newShop(map[string]string{"/a": "5"})
	defer srv.Close()

	registry := prometheus.NewRegistry()
	promSink, err := sinks.NewPrometheusSink(registry)
	require.NoError(t, err)

	cfg := testConfig(config.ProductConfig{URL: srv.URL + "/a", Selector: ".price"})
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "pricewatch.prom")
	a := newTestApp(t, cfg, memory.New(nil), Services{
		Sinks:    []progress.Sink{promSink},
		Gatherer: registry,
	})

	_, err = a.Run(context.Background())
	require.NoError(t, err)
	require.FileExists(t, cfg.Metrics.Textfile)
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	_, err := New(config.Config{}, Services{}, nil)
	require.Error(t, err)
	_, err = New(config.Config{}, Services{Fetcher: collyfetcher.New(collyfetcher.Config{})}, nil)
	require.Error(t, err)
}

func TestOpenStoreUnknownBackend(t *testing.T) {
	t.Parallel()

	_, _, err := OpenStore(context.Background(), config.StoreConfig{Backend: "redis"}, nil)
	require.Equal(t, tracker.KindConfiguration, tracker.KindOf(err))

	s, closeFn, err := OpenStore(context.Background(),
		config.StoreConfig{Backend: config.BackendSQLite, DSN: filepath.Join(t.TempDir(), "p.db")}, nil)
	require.NoError(t, err)
	require.NotNil(t, s)
	require.NoError(t, closeFn())
}

func TestBuildRunsWithRateLimitedFetcher(t *testing.T) {
	_, srv := newShop(map[string]string{"/a": "3,10", "/b": "4,20"})
	t.Cleanup(srv.Close)

	cfg := testConfig(
		config.ProductConfig{URL: srv.URL + "/a", Selector: "span.price"},
		config.ProductConfig{URL: srv.URL + "/b", Selector: "span.price"},
	)
	cfg.HTTP.PerHostRPS = 50
	cfg.HTTP.PerHostBurst = 1
	cfg.Email = config.EmailConfig{}
	cfg.Store = config.StoreConfig{Backend: config.BackendFile, Path: filepath.Join(t.TempDir(), "prices.yaml")}

	a, err := Build(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, a.Close()) })

	sum, err := a.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 2, sum.New)
	require.Zero(t, sum.Failed)

	state, err := a.Store().Load(context.Background())
	require.NoError(t, err)
	require.Len(t, state.Entries(), 2)
}

func TestBuildRejectsIncompleteEmail(t *testing.T) {
	cfg := testConfig(config.ProductConfig{URL: "https://shop.example/a", Selector: "span.price"})
	cfg.Store = config.StoreConfig{Backend: config.BackendFile, Path: filepath.Join(t.TempDir(), "prices.yaml")}
	cfg.Email = config.EmailConfig{Recipients: []string{"me@example.com"}}

	_, err := Build(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	require.Equal(t, tracker.KindConfiguration, tracker.KindOf(err))
}
