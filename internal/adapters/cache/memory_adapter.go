package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/junohealth/marketexplorer/internal/domain/providers"
)

type memoryEntry struct {
	payload  []byte
	storedAt time.Time
	ttl      time.Duration
}

// MemoryAdapter is a process-local CacheProvider with lazy expiry. An entry is a miss once
// now - storedAt exceeds its TTL; nothing sweeps expired entries until they are read or overwritten.
type MemoryAdapter struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// MemoryOption configures a MemoryAdapter
type MemoryOption func(*MemoryAdapter)

// WithClock replaces time.Now, for tests that need deterministic expiry
func WithClock(now func() time.Time) MemoryOption {
	return func(a *MemoryAdapter) {
		a.now = now
	}
}

// NewMemoryAdapter creates an empty in-memory cache
func NewMemoryAdapter(opts ...MemoryOption) *MemoryAdapter {
	a := &MemoryAdapter{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

var _ providers.CacheProvider = (*MemoryAdapter)(nil)

// Get retrieves a value from cache
func (a *MemoryAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	a.mu.RLock()
	e, ok := a.entries[key]
	a.mu.RUnlock()

	if !ok {
		return nil, providers.ErrCacheMiss
	}
	if e.ttl > 0 && a.now().Sub(e.storedAt) > e.ttl {
		a.mu.Lock()
		// Only drop the entry we saw; a concurrent Set may have replaced it.
		if cur, still := a.entries[key]; still && cur.storedAt.Equal(e.storedAt) {
			delete(a.entries, key)
		}
		a.mu.Unlock()
		return nil, providers.ErrCacheMiss
	}
	return e.payload, nil
}

// Set stores a value in cache, always overwriting. A non-positive ttl never expires.
func (a *MemoryAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	payload := make([]byte, len(value))
	copy(payload, value)

	a.mu.Lock()
	a.entries[key] = memoryEntry{payload: payload, storedAt: a.now(), ttl: ttl}
	a.mu.Unlock()
	return nil
}

// Delete removes a value from cache
func (a *MemoryAdapter) Delete(ctx context.Context, key string) error {
	a.mu.Lock()
	delete(a.entries, key)
	a.mu.Unlock()
	return nil
}

// DeletePrefix removes every key starting with prefix
func (a *MemoryAdapter) DeletePrefix(ctx context.Context, prefix string) error {
	a.mu.Lock()
	for key := range a.entries {
		if strings.HasPrefix(key, prefix) {
			delete(a.entries, key)
		}
	}
	a.mu.Unlock()
	return nil
}

// Flush removes every key
func (a *MemoryAdapter) Flush(ctx context.Context) error {
	a.mu.Lock()
	clear(a.entries)
	a.mu.Unlock()
	return nil
}

// Len returns the number of stored entries, expired or not
func (a *MemoryAdapter) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.entries)
}
