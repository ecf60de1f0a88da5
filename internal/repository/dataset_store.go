package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"HoopsCast/internal/domain/models"
	domrepo "HoopsCast/internal/domain/repository"
	applogger "HoopsCast/pkg/logger"
	"HoopsCast/pkg/objectstore"
)

// ObjectDatasetStore keeps dataset tables in an object store.
type ObjectDatasetStore struct {
	store objectstore.Store
	codec TableCodec
	l     *applogger.Logger
}

var _ domrepo.DatasetStore = (*ObjectDatasetStore)(nil)

func NewObjectDatasetStore(store objectstore.Store, codec TableCodec) *ObjectDatasetStore {
	if codec == nil {
		codec = CSVCodec{}
	}
	return &ObjectDatasetStore{store: store, codec: codec, l: applogger.Nop()}
}

// SetLogger injects a structured logger.
func (s *ObjectDatasetStore) SetLogger(l *applogger.Logger) {
	if l != nil {
		s.l = l
	}
}

func (s *ObjectDatasetStore) Save(ctx context.Context, key string, t *models.Table) error {
	start := time.Now()
	body, err := s.codec.Encode(t)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := s.store.Put(ctx, key, body, s.codec.ContentType()); err != nil {
		return fmt.Errorf("save dataset: %w", err)
	}
	s.l.Info("dataset saved",
		applogger.String("key", key),
		applogger.Int("rows", t.Len()),
		applogger.Int("bytes", len(body)),
		applogger.Duration("duration_ms", time.Since(start)))
	return nil
}

func (s *ObjectDatasetStore) Load(ctx context.Context, key string) (*models.Table, error) {
	body, err := s.store.Get(ctx, key)
	if errors.Is(err, objectstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", models.ErrDatasetNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load dataset: %w", err)
	}
	t, err := s.codec.Decode(body)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	s.l.Debug("dataset loaded", applogger.String("key", key), applogger.Int("rows", t.Len()))
	return t, nil
}

// ObjectModelStore keeps encoded model artifacts in an object store.
type ObjectModelStore struct {
	store objectstore.Store
}

var _ domrepo.ModelStore = (*ObjectModelStore)(nil)

func NewObjectModelStore(store objectstore.Store) *ObjectModelStore {
	return &ObjectModelStore{store: store}
}

func (s *ObjectModelStore) SaveModel(ctx context.Context, key string, artifact []byte) error {
	if err := s.store.Put(ctx, key, artifact, "application/zstd"); err != nil {
		return fmt.Errorf("save model: %w", err)
	}
	return nil
}

func (s *ObjectModelStore) LoadModel(ctx context.Context, key string) ([]byte, error) {
	body, err := s.store.Get(ctx, key)
	if errors.Is(err, objectstore.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", models.ErrModelNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	return body, nil
}
