// Package file persists price state as a YAML document on the local disk.
package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/storage"
	"github.com/JakeFAU/pricewatch/internal/tracker"
)

// Store reads and writes a single YAML file.
type Store struct {
	path   string
	logger *zap.Logger
}

// New returns a Store for path.
func New(path string, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("store path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{path: path, logger: logger}, nil
}

// Path returns the file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the state. A missing file is created empty and persisted
// straight away so a bad path fails before any fetching starts.
func (s *Store) Load(ctx context.Context) (*tracker.State, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.logger.Info("creating new store", zap.String("path", s.path))
		state := tracker.NewState()
		if err := s.Save(ctx, state); err != nil {
			return nil, err
		}
		return state, nil
	}
	if err != nil {
		return nil, storage.Unreadable(s.path, err)
	}
	state, err := storage.Decode(data)
	if err != nil {
		return nil, storage.Unreadable(s.path, err)
	}
	return state, nil
}

// Save writes state atomically: temp file in the same directory, fsync, rename.
func (s *Store) Save(ctx context.Context, state *tracker.State) error {
	if err := ctx.Err(); err != nil {
		return storage.Unwritable(s.path, err)
	}
	data, err := storage.Encode(state)
	if err != nil {
		return storage.Unwritable(s.path, err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return storage.Unwritable(s.path, err)
	}
	return nil
}

func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmp.Name())
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}
