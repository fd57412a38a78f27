// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// RunStore keeps the run record in memory.
type RunStore struct {
	mu  sync.Mutex
	run warmer.Run
}

// NewRunStore creates a RunStore holding warmer.NewRun().
func NewRunStore() *RunStore {
	return &RunStore{run: warmer.NewRun()}
}

// Load returns the current record.
func (s *RunStore) Load(_ context.Context) (warmer.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.run, nil
}

// Update applies fn under the store lock.
func (s *RunStore) Update(_ context.Context, fn func(*warmer.Run) error) (warmer.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.run
	if err := fn(&next); err != nil {
		return warmer.Run{}, err
	}
	s.run = next
	return next, nil
}
