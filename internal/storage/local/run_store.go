package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/JakeFAU/cache-warmer/internal/warmer"
)

// RunStore keeps the run record in a JSON file. It serializes access within
// one process only.
type RunStore struct {
	mu   sync.Mutex
	path string
}

// NewRunStore creates a RunStore writing to path.
func NewRunStore(path string) (*RunStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("state file path is required")
	}
	if err := ensureDir(filepath.Dir(path)); err != nil {
		return nil, err
	}
	return &RunStore{path: path}, nil
}

// Load reads the record, or returns warmer.NewRun() when the file is absent.
func (s *RunStore) Load(_ context.Context) (warmer.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

// Update applies fn to the stored record and rewrites the file.
func (s *RunStore) Update(_ context.Context, fn func(*warmer.Run) error) (warmer.Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, err := s.read()
	if err != nil {
		return warmer.Run{}, err
	}
	if err := fn(&run); err != nil {
		return warmer.Run{}, err
	}
	body, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return warmer.Run{}, fmt.Errorf("encode run: %w", err)
	}
	if err := writeFileAtomic(s.path, body); err != nil {
		return warmer.Run{}, err
	}
	return run, nil
}

func (s *RunStore) read() (warmer.Run, error) {
	body, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return warmer.NewRun(), nil
	}
	if err != nil {
		return warmer.Run{}, fmt.Errorf("read state file: %w", err)
	}
	run := warmer.NewRun()
	if err := json.Unmarshal(body, &run); err != nil {
		return warmer.Run{}, fmt.Errorf("decode state file: %w", err)
	}
	return run, nil
}
