// Package gcs persists price state as a YAML object in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	pwstorage "github.com/JakeFAU/pricewatch/internal/storage"
	"github.com/JakeFAU/pricewatch/internal/tracker"
)

// ErrNotFound is returned by an objectStore when the object is absent.
var ErrNotFound = errors.New("object not found")

type objectStore interface {
	Read(ctx context.Context, bucket, object string) ([]byte, error)
	Write(ctx context.Context, bucket, object string, data []byte) error
}

// Config names the object holding the state.
type Config struct {
	Bucket string
	Object string
	// Endpoint overrides the API endpoint, e.g. for a local emulator.
	Endpoint string
}

// Store reads and writes one object.
type Store struct {
	objects objectStore
	bucket  string
	object  string
	logger  *zap.Logger
}

// Dial creates a storage client using Application Default Credentials and
// returns a Store plus a function closing the client.
func Dial(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, func() error, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("create GCS client: %w", err)
	}
	s, err := newStore(clientObjects{client: client}, cfg, logger)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return s, client.Close, nil
}

func newStore(objects objectStore, cfg Config, logger *zap.Logger) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("bucket name is required")
	}
	if cfg.Object == "" {
		cfg.Object = "pricewatch.yaml"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{objects: objects, bucket: cfg.Bucket, object: cfg.Object, logger: logger}, nil
}

func (s *Store) location() string {
	return fmt.Sprintf("gs://%s/%s", s.bucket, s.object)
}

// Load reads the object. A missing object is created empty.
func (s *Store) Load(ctx context.Context) (*tracker.State, error) {
	data, err := s.objects.Read(ctx, s.bucket, s.object)
	if errors.Is(err, ErrNotFound) {
		s.logger.Info("creating new store", zap.String("location", s.location()))
		state := tracker.NewState()
		if err := s.Save(ctx, state); err != nil {
			return nil, err
		}
		return state, nil
	}
	if err != nil {
		return nil, pwstorage.Unreadable(s.location(), err)
	}
	state, err := pwstorage.Decode(data)
	if err != nil {
		return nil, pwstorage.Unreadable(s.location(), err)
	}
	return state, nil
}

// Save uploads the whole state; GCS object writes are atomic on Close.
func (s *Store) Save(ctx context.Context, state *tracker.State) error {
	data, err := pwstorage.Encode(state)
	if err != nil {
		return pwstorage.Unwritable(s.location(), err)
	}
	if err := s.objects.Write(ctx, s.bucket, s.object, data); err != nil {
		return pwstorage.Unwritable(s.location(), err)
	}
	return nil
}

type clientObjects struct {
	client *storage.Client
}

func (c clientObjects) Read(ctx context.Context, bucket, object string) ([]byte, error) {
	r, err := c.client.Bucket(bucket).Object(object).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read object: %w", err)
	}
	return data, nil
}

func (c clientObjects) Write(ctx context.Context, bucket, object string, data []byte) error {
	w := c.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/yaml"
	if _, err := w.Write(data); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}
