package prefs

import (
	"context"
	"errors"
	"sync"
)

// memoryStore is an in-process preference store for deployments without
// Redis and for tests. One store is shared by every connection; Scope
// returns a per-client view so identities do not read each other's keys.
type memoryStore struct {
	mu     sync.RWMutex
	values map[string]string
}

// NewMemory creates an in-memory preference store.
func NewMemory() *memoryStore {
	return &memoryStore{values: make(map[string]string)}
}

func (m *memoryStore) Get(ctx context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.values[key], nil
}

func (m *memoryStore) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

// Scope returns a view of the store whose keys are namespaced by a client
// identity, backed by the same underlying map. Two views with the same scope
// see the same values, which is what lets a preference survive a reconnect.
func (m *memoryStore) Scope(scope string) *memoryScope {
	return &memoryScope{store: m, scope: scope}
}

type memoryScope struct {
	store *memoryStore
	scope string
}

func (s *memoryScope) Get(ctx context.Context, key string) (string, error) {
	return s.store.Get(ctx, s.key(key))
}

func (s *memoryScope) Set(ctx context.Context, key, value string) error {
	if key == "" {
		return errors.New("key cannot be empty")
	}
	return s.store.Set(ctx, s.key(key), value)
}

func (s *memoryScope) key(key string) string {
	if s.scope == "" {
		return key
	}
	return s.scope + ":" + key
}
