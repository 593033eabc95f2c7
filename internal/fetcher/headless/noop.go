package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/pricewatch/internal/tracker"
)

// ErrDisabled is returned by Noop for every fetch.
var ErrDisabled = errors.New("headless fetcher not configured")

// Noop stands in for the headless fetcher when rendering is disabled, so
// items that ask for it fail individually instead of aborting the run.
type Noop struct{}

// NewNoop creates a new Noop fetcher.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always returns ErrDisabled.
func (Noop) Fetch(_ context.Context, _ string) (tracker.Document, error) {
	return tracker.Document{}, ErrDisabled
}
