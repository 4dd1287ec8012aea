// Package memstore implements content.Store entirely in memory, useful for
// tests of the badger FSAL backend that want a persistent handle map
// without touching disk for file bytes.
package memstore

import (
	"context"
	"io"
	"sync"

	"github.com/nfsd3/nfsd3/internal/content"
)

type Store struct {
	mu   sync.RWMutex
	blobs map[content.ID][]byte
}

func New() *Store {
	return &Store{blobs: make(map[content.ID][]byte)}
}

func (s *Store) ReadAt(_ context.Context, id content.ID, offset int64, buf []byte) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[id]
	if !ok || offset >= int64(len(b)) {
		return 0, io.EOF
	}
	n := copy(buf, b[offset:])
	return n, nil
}

func (s *Store) WriteAt(_ context.Context, id content.ID, offset int64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.blobs[id]
	end := offset + int64(len(data))
	if end > int64(len(b)) {
		grown := make([]byte, end)
		copy(grown, b)
		b = grown
	}
	copy(b[offset:end], data)
	s.blobs[id] = b
	return nil
}

func (s *Store) Truncate(_ context.Context, id content.ID, size int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b := s.blobs[id]
	if int64(len(b)) >= size {
		s.blobs[id] = b[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, b)
	s.blobs[id] = grown
	return nil
}

func (s *Store) Size(_ context.Context, id content.ID) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.blobs[id])), nil
}

func (s *Store) Delete(_ context.Context, id content.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, id)
	return nil
}
