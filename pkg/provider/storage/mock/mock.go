// Package mock provides an in-memory test double for storage.ObjectStore.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/lexivox/pkg/provider/storage"
)

// Store keeps uploaded objects in a map and records every call.
type Store struct {
	mu sync.Mutex

	// UploadErr, if non-nil, is returned from Upload.
	UploadErr error

	// DeleteErr, if non-nil, is returned from Delete.
	DeleteErr error

	// URIPrefix is prepended to object names to form the returned URI.
	// Defaults to "mem://".
	URIPrefix string

	objects map[string][]byte
	deleted []string
}

var _ storage.ObjectStore = (*Store)(nil)

// Upload records data under name.
func (s *Store) Upload(_ context.Context, name string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.UploadErr != nil {
		return "", s.UploadErr
	}
	if s.objects == nil {
		s.objects = make(map[string][]byte)
	}
	s.objects[name] = append([]byte(nil), data...)
	prefix := s.URIPrefix
	if prefix == "" {
		prefix = "mem://"
	}
	return prefix + name, nil
}

// Delete removes the object and records the name.
func (s *Store) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.objects, name)
	s.deleted = append(s.deleted, name)
	return nil
}

// Object returns the stored bytes for name and whether it exists.
func (s *Store) Object(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.objects[name]
	return b, ok
}

// Len returns the number of live objects.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Deleted returns the names passed to Delete, in order.
func (s *Store) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}
