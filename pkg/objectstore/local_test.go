package objectstore

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := s.Put(ctx, "models/best.json", []byte(`{"a":1}`), "application/json"); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, err := s.Get(ctx, "models/best.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if string(got) != `{"a":1}` {
		t.Fatalf("got %q", got)
	}

	ok, err := s.Exists(ctx, "models/best.json")
	if err != nil || !ok {
		t.Fatalf("exists: %v %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(dir, "models", "best.json.tmp")); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind")
	}
}

func TestLocalStoreMissingKey(t *testing.T) {
	s, err := NewLocalStore(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if _, err := s.Get(context.Background(), "nope.csv"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ok, err := s.Exists(context.Background(), "nope.csv")
	if err != nil || ok {
		t.Fatalf("exists: %v %v", ok, err)
	}
}

func TestLocalStoreKeysStayUnderRoot(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	if err := s.Put(context.Background(), "../../escape.csv", []byte("x"), ""); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "escape.csv")); err != nil {
		t.Fatalf("expected file under root: %v", err)
	}
}

func TestNewS3StoreRequiresBucket(t *testing.T) {
	if _, err := NewS3Store(context.Background(), ""); !errors.Is(err, ErrBucketNotConfigured) {
		t.Fatalf("expected ErrBucketNotConfigured, got %v", err)
	}
}
