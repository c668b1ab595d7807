package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryProvider is the default in-process cache: a TTL map guarded by a
// read-write mutex. It keeps detection results warm across window and filter
// churn without requiring a Valkey deployment.
type MemoryProvider struct {
	mu   sync.RWMutex
	data map[string]memoryItem
}

type memoryItem struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryProvider creates an empty in-memory provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{data: make(map[string]memoryItem)}
}

// Get returns the cached payload or ErrCacheMiss. Expired entries are
// dropped lazily on access.
func (p *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	p.mu.RLock()
	it, ok := p.data[key]
	p.mu.RUnlock()
	if !ok {
		return nil, ErrCacheMiss
	}
	if !it.expiresAt.IsZero() && time.Now().After(it.expiresAt) {
		p.mu.Lock()
		delete(p.data, key)
		p.mu.Unlock()
		return nil, ErrCacheMiss
	}
	return it.value, nil
}

// Set stores a payload with an optional TTL; ttl <= 0 means no expiry.
func (p *MemoryProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	it := memoryItem{value: value}
	if ttl > 0 {
		it.expiresAt = time.Now().Add(ttl)
	}
	p.mu.Lock()
	p.data[key] = it
	p.mu.Unlock()
	return nil
}

// Del removes a key.
func (p *MemoryProvider) Del(_ context.Context, key string) error {
	p.mu.Lock()
	delete(p.data, key)
	p.mu.Unlock()
	return nil
}

// Close is a no-op for the in-memory provider.
func (p *MemoryProvider) Close() error { return nil }
