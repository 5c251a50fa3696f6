package access

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// LRUStore keeps entries in process, bounded by size and evicted after ttl.
type LRUStore struct {
	lru *expirable.LRU[string, Entry]
}

// NewLRUStore creates an in-process store. The ttl given here bounds every
// entry; the per-call ttl passed to Set cannot extend it.
func NewLRUStore(size int, ttl time.Duration) *LRUStore {
	return &LRUStore{lru: expirable.NewLRU[string, Entry](size, nil, ttl)}
}

func (s *LRUStore) Get(_ context.Context, userID string) (*Entry, bool, error) {
	e, ok := s.lru.Get(userID)
	if !ok {
		return nil, false, nil
	}
	return &e, true, nil
}

func (s *LRUStore) Set(_ context.Context, entry Entry, _ time.Duration) error {
	s.lru.Add(entry.UserID, entry)
	return nil
}

func (s *LRUStore) Delete(_ context.Context, userID string) error {
	s.lru.Remove(userID)
	return nil
}

// Len returns the number of live entries.
func (s *LRUStore) Len() int {
	return s.lru.Len()
}

// NopStore caches nothing. It backs the shared cache when entries are held
// by clients in cookies and only request-scoped stores carry them.
type NopStore struct{}

func (NopStore) Get(context.Context, string) (*Entry, bool, error) { return nil, false, nil }

func (NopStore) Set(context.Context, Entry, time.Duration) error { return nil }

func (NopStore) Delete(context.Context, string) error { return nil }
