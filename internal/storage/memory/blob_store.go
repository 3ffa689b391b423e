// Package memory keeps archived objects in process, for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"io"
	"maps"
	"sort"
	"sync"

	"github.com/JakeFAU/wikicorpus/internal/corpus"
)

// Object is a stored artifact with its attributes.
type Object struct {
	Data  []byte
	Attrs corpus.ObjectAttrs
}

// BlobStore implements corpus.ObjectStore in memory and returns memory:// URIs.
type BlobStore struct {
	mu      sync.RWMutex
	objects map[string]Object
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{objects: make(map[string]Object)}
}

// Upload stores the content under name, replacing any previous object.
func (s *BlobStore) Upload(ctx context.Context, name string, r io.Reader, attrs corpus.ObjectAttrs) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("upload %s: %w", name, err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", corpus.ErrStorage, name, err)
	}

	attrs.Metadata = maps.Clone(attrs.Metadata)
	s.mu.Lock()
	s.objects[name] = Object{Data: data, Attrs: attrs}
	s.mu.Unlock()
	return "memory://" + name, nil
}

// Get returns a stored object.
func (s *BlobStore) Get(name string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[name]
	return obj, ok
}

// Names lists stored object names in order.
func (s *BlobStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
