package sinks

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/pricewatch/internal/progress"
)

// PrometheusSink exports run metrics via Prometheus. It owns all collectors
// for fetch results, price changes and notifications.
type PrometheusSink struct {
	runs          prometheus.Counter
	runDuration   prometheus.Histogram
	lastRun       prometheus.Gauge
	fetchResults  *prometheus.CounterVec
	fetchBytes    *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	priceChanges  *prometheus.CounterVec
	newItems      prometheus.Counter
	notifications *prometheus.CounterVec
	lastPrice     *prometheus.GaugeVec
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricewatch_runs_total",
			Help: "Total completed runs.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pricewatch_run_duration_seconds",
			Help:    "Wall time per completed run.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pricewatch_last_run_timestamp_seconds",
			Help: "Unix time of the last completed run.",
		}),
		fetchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_fetch_results_total",
			Help: "Item checks partitioned by site and result.",
		}, []string{"site", "result"}),
		fetchBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_fetch_bytes_total",
			Help: "Bytes downloaded per site.",
		}, []string{"site"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pricewatch_fetch_duration_seconds",
			Help:    "Fetch duration partitioned by site.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"site"}),
		priceChanges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_price_changes_total",
			Help: "Detected price changes partitioned by direction.",
		}, []string{"direction"}),
		newItems: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pricewatch_new_items_total",
			Help: "Items seen for the first time.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricewatch_notifications_total",
			Help: "Notification decisions partitioned by result.",
		}, []string{"result"}),
		lastPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pricewatch_last_price",
			Help: "Most recently observed price per item.",
		}, []string{"url"}),
	}
	for _, collector := range []prometheus.Collector{
		s.runs,
		s.runDuration,
		s.lastRun,
		s.fetchResults,
		s.fetchBytes,
		s.fetchDuration,
		s.priceChanges,
		s.newItems,
		s.notifications,
		s.lastPrice,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = progress.SiteFromURL(evt.URL)
	}
	switch evt.Stage {
	case progress.StageRunDone:
		s.runs.Inc()
		if evt.Dur > 0 {
			s.runDuration.Observe(evt.Dur.Seconds())
		}
		s.lastRun.Set(float64(evt.TS.Unix()))
	case progress.StageFetchDone:
		if evt.Bytes > 0 {
			s.fetchBytes.WithLabelValues(site).Add(float64(evt.Bytes))
		}
		if evt.Dur > 0 {
			s.fetchDuration.WithLabelValues(site).Observe(evt.Dur.Seconds())
		}
	case progress.StageItemFailed:
		s.fetchResults.WithLabelValues(site, evt.Reason).Inc()
	case progress.StageNewItem:
		s.fetchResults.WithLabelValues(site, "ok").Inc()
		s.newItems.Inc()
		s.lastPrice.WithLabelValues(evt.URL).Set(evt.NewPrice)
	case progress.StagePriceUnchanged:
		s.fetchResults.WithLabelValues(site, "ok").Inc()
		s.lastPrice.WithLabelValues(evt.URL).Set(evt.NewPrice)
	case progress.StagePriceChanged:
		s.fetchResults.WithLabelValues(site, "ok").Inc()
		direction := "up"
		if evt.NewPrice < evt.OldPrice {
			direction = "down"
		}
		s.priceChanges.WithLabelValues(direction).Inc()
		s.lastPrice.WithLabelValues(evt.URL).Set(evt.NewPrice)
	case progress.StageNotified:
		s.notifications.WithLabelValues("delivered").Inc()
	case progress.StageNotifySuppressed:
		s.notifications.WithLabelValues("suppressed").Inc()
	case progress.StageNotifyFailed:
		s.notifications.WithLabelValues("failed").Inc()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}
