// Package gcs archives page snapshots in Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

// snapshotCacheControl applies to every object: snapshot paths embed the
// content digest, so an object never changes once written.
const snapshotCacheControl = "private, max-age=31536000, immutable"

// Config selects the bucket. ChunkSize overrides the resumable upload chunk
// size; snapshots are small, so zero uploads each object in one request.
type Config struct {
	Bucket    string
	ChunkSize int
}

// BlobStore implements audit.BlobStore on one bucket.
type BlobStore struct {
	bucket    *storage.BucketHandle
	name      string
	chunkSize int
}

// New creates a GCS-backed blob store.
func New(client *storage.Client, cfg Config) (*BlobStore, error) {
	if client == nil {
		return nil, errors.New("gcs: storage client is required")
	}
	name := strings.TrimSpace(cfg.Bucket)
	if name == "" {
		return nil, errors.New("gcs: bucket name is required")
	}
	return &BlobStore{bucket: client.Bucket(name), name: name, chunkSize: cfg.ChunkSize}, nil
}

// PutObject uploads data and returns its gs:// URI. Leading slashes in path
// are ignored.
func (s *BlobStore) PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error) {
	key := strings.TrimLeft(strings.TrimSpace(path), "/")
	if key == "" {
		return "", errors.New("gcs: object path is required")
	}
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ChunkSize = s.chunkSize
	w.ContentType = contentType
	w.CacheControl = snapshotCacheControl
	if _, err := io.Copy(w, data); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, errors.Join(err, w.Close()))
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize %s: %w", key, err)
	}
	return "gs://" + s.name + "/" + key, nil
}

// Ping checks that the bucket exists and is readable.
func (s *BlobStore) Ping(ctx context.Context) error {
	if _, err := s.bucket.Attrs(ctx); err != nil {
		return fmt.Errorf("get bucket %s: %w", s.name, err)
	}
	return nil
}
