// Package memory stores stage artifacts in-memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// BlobStore keeps artifacts in a map keyed by file name.
type BlobStore struct {
	mu   sync.RWMutex
	data map[string][]byte
	puts int
}

// NewBlobStore creates a new in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		data: make(map[string][]byte),
	}
}

// Exists reports whether name has been stored.
func (s *BlobStore) Exists(name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[name]
	return ok, nil
}

// PutObject stores a copy of data and returns a pseudo URI.
func (s *BlobStore) PutObject(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("put %s: %w", name, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[name] = append([]byte(nil), data...)
	s.puts++
	return fmt.Sprintf("memory://%s", name), nil
}

// Get returns the stored bytes for name.
func (s *BlobStore) Get(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[name]
	return data, ok
}

// ReadObject returns a copy of the bytes stored under name.
func (s *BlobStore) ReadObject(name string) ([]byte, error) {
	data, ok := s.Get(name)
	if !ok {
		return nil, fmt.Errorf("read %s: %w", name, fs.ErrNotExist)
	}
	return append([]byte(nil), data...), nil
}

// List returns stored names with the given extension, sorted.
func (s *BlobStore) List(ext string) ([]string, error) {
	var names []string
	for _, name := range s.Names() {
		if strings.EqualFold(filepath.Ext(name), ext) {
			names = append(names, name)
		}
	}
	return names, nil
}

// Remove deletes name; a missing entry is not an error.
func (s *BlobStore) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, name)
	return nil
}

// Names lists stored names in lexical order.
func (s *BlobStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.data))
	for name := range s.data {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Puts counts successful PutObject calls.
func (s *BlobStore) Puts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.puts
}
