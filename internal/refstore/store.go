// Package refstore keeps the last issued retrieval reference in a durable
// key-value slot so it can be looked up after an interruption.
package refstore

import (
	"context"
	"errors"
	"sync"
)

// Key is the fixed slot name the current retrieval reference is cached under.
const Key = "txnRetrievalRef"

var ErrNotFound = errors.New("refstore: not found")

type Store interface {
	Save(ctx context.Context, key, value string) error
	// Load returns ErrNotFound when the slot is empty.
	Load(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
	Close() error
}

type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (s *Memory) Save(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = value
	return nil
}

func (s *Memory) Load(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.data[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *Memory) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.data, key)
	return nil
}

func (s *Memory) Close() error { return nil }
