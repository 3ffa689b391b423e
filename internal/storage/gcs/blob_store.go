// Package gcs archives finished corpus files to Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	"github.com/JakeFAU/wikicorpus/internal/corpus"
)

// Config captures the bucket layout.
type Config struct {
	Bucket string
	// Prefix is prepended to every object name, e.g. "corpora".
	Prefix string
}

// Store implements corpus.ObjectStore on a GCS bucket.
type Store struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed store.
func New(client *storage.Client, cfg Config) (*Store, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Store{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ObjectName joins the configured prefix and name.
func (s *Store) ObjectName(name string) string {
	if s.prefix == "" {
		return strings.TrimLeft(name, "/")
	}
	return path.Join(s.prefix, name)
}

// Upload streams r to the bucket with attrs as object metadata and returns a
// gs:// URI.
func (s *Store) Upload(ctx context.Context, name string, r io.Reader, attrs corpus.ObjectAttrs) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("object name is required")
	}
	object := s.ObjectName(name)
	writer := s.client.Bucket(s.bucket).Object(object).NewWriter(ctx)
	if attrs.ContentType != "" {
		writer.ContentType = attrs.ContentType
	}
	if len(attrs.Metadata) > 0 {
		writer.Metadata = attrs.Metadata
	}
	if _, err := io.Copy(writer, r); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return "", fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", s.bucket, object), nil
}
