// Package memory keeps containers and uploads in-memory for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/storage"
)

// BlobStore records containers and uploaded file contents and returns
// memory:// links.
type BlobStore struct {
	mu         sync.RWMutex
	containers []storage.Container
	data       map[string][]byte
	failCreate error
}

var _ storage.Store = (*BlobStore)(nil)

// NewBlobStore creates a new in-memory store.
func NewBlobStore() *BlobStore {
	return &BlobStore{
		data: make(map[string][]byte),
	}
}

// FailCreate makes subsequent CreateContainer calls return err.
func (s *BlobStore) FailCreate(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failCreate = err
}

// CreateContainer records a container named name plus a sequence suffix.
func (s *BlobStore) CreateContainer(_ context.Context, name string) (storage.Container, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failCreate != nil {
		return storage.Container{}, s.failCreate
	}
	id := fmt.Sprintf("%s - %d", name, len(s.containers)+1)
	c := storage.Container{ID: id, Name: id, Link: "memory://" + id}
	s.containers = append(s.containers, c)
	return c, nil
}

// Upload stores a copy of the file at localPath under the container.
func (s *BlobStore) Upload(_ context.Context, container storage.Container, localPath string) (string, error) {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", localPath, err)
	}
	key := container.ID + "/" + filepath.Base(localPath)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = data
	return "memory://" + key, nil
}

// Containers returns the containers created so far.
func (s *BlobStore) Containers() []storage.Container {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]storage.Container(nil), s.containers...)
}

// Object returns the uploaded bytes stored under key.
func (s *BlobStore) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.data[key]
	return data, ok
}

// Keys lists the uploaded object keys.
func (s *BlobStore) Keys() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}
