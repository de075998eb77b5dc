package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/tradeflow/pkg/domain"
)

// Store implements ports.Store in memory.
// Documents are kept serialized so callers can't mutate store state through pointers.
// Safe for concurrent use.
type Store[T any] struct {
	data map[string][]byte
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore[T any]() *Store[T] {
	return &Store[T]{
		data: make(map[string][]byte),
	}
}

// Save persists the document in memory.
func (s *Store[T]) Save(ctx context.Context, id string, doc *T) error {
	if id == "" {
		return fmt.Errorf("%w: id cannot be empty", domain.ErrValidation)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[id] = raw
	return nil
}

// Load retrieves a copy of the document.
func (s *Store[T]) Load(ctx context.Context, id string) (*T, error) {
	s.mu.RLock()
	raw, ok := s.data[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}

	var doc T
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal document: %w", err)
	}
	return &doc, nil
}

// Delete removes the document.
func (s *Store[T]) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, id)
	return nil
}

// List returns the stored ids in lexical order.
func (s *Store[T]) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
