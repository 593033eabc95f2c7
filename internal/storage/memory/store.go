// Package memory provides an in-process StateStore.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/pricewatch/internal/tracker"
)

// Store keeps a copy of the last saved state. It is safe for concurrent use.
type Store struct {
	mu    sync.RWMutex
	state *tracker.State
	saves int
}

// New returns a Store seeded with initial, which may be nil.
func New(initial *tracker.State) *Store {
	if initial == nil {
		initial = tracker.NewState()
	}
	return &Store{state: initial.Clone()}
}

// Load returns a copy of the stored state.
func (s *Store) Load(ctx context.Context) (*tracker.State, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone(), nil
}

// Save replaces the stored state with a copy of state.
func (s *Store) Save(ctx context.Context, state *tracker.State) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state.Clone()
	s.saves++
	return nil
}

// Saves reports how many times Save succeeded.
func (s *Store) Saves() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saves
}
