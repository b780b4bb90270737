// Package memstore is an in-memory imgfit.Storage.
package memstore

import (
	"bytes"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/szxp/imgfit"
)

type entry struct {
	data    []byte
	modTime time.Time
}

type Store struct {
	prefix string

	mu      sync.RWMutex
	entries map[string]entry
}

func New(prefix string) *Store {
	return &Store{
		prefix:  prefix,
		entries: make(map[string]entry),
	}
}

func (s *Store) Save(data []byte, ext string) (string, error) {
	ext = strings.TrimPrefix(ext, ".")
	if ext == "" {
		return "", fmt.Errorf("no ext")
	}
	key := uuid.New().String() + "." + ext
	if s.prefix != "" {
		key = s.prefix + "_" + key
	}

	cp := make([]byte, len(data))
	copy(cp, data)

	s.mu.Lock()
	s.entries[key] = entry{data: cp, modTime: time.Now()}
	s.mu.Unlock()
	return key, nil
}

func (s *Store) Open(key string) (*imgfit.Object, error) {
	s.mu.RLock()
	e, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%v: %w", key, imgfit.ErrNotFound)
	}
	return &imgfit.Object{
		ReadSeekCloser: nopCloser{bytes.NewReader(e.data)},
		Size:           int64(len(e.data)),
		ModTime:        e.modTime,
	}, nil
}

// Len returns the number of stored objects.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

type nopCloser struct {
	*bytes.Reader
}

func (nopCloser) Close() error { return nil }
