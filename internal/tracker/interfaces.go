package tracker

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Fetcher retrieves a document for a URL.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Document, error)
}

// StateStore loads and persists the durable price state.
type StateStore interface {
	Load(ctx context.Context) (*State, error)
	Save(ctx context.Context, state *State) error
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (uuid.UUID, error)
}
