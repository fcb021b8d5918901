// Package cache implements the key-value stores behind the step executor's
// cache policies (§4.4 step 2): a session cache scoped to one FlowContext,
// and a process-wide global cache shared across flows.
package cache

import (
	"context"
	"sync"
)

// Store is the minimal key-value contract both the in-memory and
// Redis-backed caches satisfy. Values are opaque JSON-encoded bytes; the
// step executor is responsible for marshaling/unmarshaling the cached
// output.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// InMemory is a process-local Store. It backs both the default session
// cache (one instance per FlowContext) and, when no Redis is configured,
// the fallback "no flow" global cache.
type InMemory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewInMemory creates an empty in-memory store.
func NewInMemory() *InMemory {
	return &InMemory{data: make(map[string][]byte)}
}

func (m *InMemory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *InMemory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}
