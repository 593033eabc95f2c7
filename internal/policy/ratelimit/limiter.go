// Package ratelimit spaces out requests to the same host.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/JakeFAU/pricewatch/internal/progress"
	"github.com/JakeFAU/pricewatch/internal/tracker"
)

// Config holds the per-host token bucket settings. A non-positive RPS
// disables limiting.
type Config struct {
	PerHostRPS float64
	Burst      int
}

// Limiter keeps one token bucket per host.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rate     rate.Limit
	burst    int
}

// New creates a Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.PerHostRPS)
	if cfg.PerHostRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
		rate:     r,
		burst:    burst,
	}
}

// Enabled reports whether any limiting happens.
func (l *Limiter) Enabled() bool {
	return l.rate != rate.Inf
}

// Wait blocks until a request to rawURL's host may start.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := progress.SiteFromURL(rawURL)
	if host == "" {
		host = "unknown"
	}
	l.mu.Lock()
	limiter, ok := l.limiters[host]
	if !ok {
		limiter = rate.NewLimiter(l.rate, l.burst)
		l.limiters[host] = limiter
	}
	l.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// Fetcher delays each fetch until its host has a token.
type Fetcher struct {
	next    tracker.Fetcher
	limiter *Limiter
	logger  *zap.Logger
}

// Wrap decorates next with limiter. A disabled limiter returns next as is.
func Wrap(next tracker.Fetcher, limiter *Limiter, logger *zap.Logger) tracker.Fetcher {
	if limiter == nil || !limiter.Enabled() {
		return next
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{next: next, limiter: limiter, logger: logger}
}

// Fetch implements tracker.Fetcher.
func (f *Fetcher) Fetch(ctx context.Context, url string) (tracker.Document, error) {
	start := time.Now()
	if err := f.limiter.Wait(ctx, url); err != nil {
		return tracker.Document{}, err
	}
	if waited := time.Since(start); waited > time.Millisecond {
		f.logger.Debug("rate limited", zap.String("url", url), zap.Duration("waited", waited))
	}
	return f.next.Fetch(ctx, url)
}
