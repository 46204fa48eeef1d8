package memory

import (
	"context"
	"path"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/zatekoja/eventscan/internal/domain/providers"
)

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// CacheAdapter is an in-process CacheProvider backed by a bounded LRU with per-key expiry.
// It serves single-instance deployments and tests.
type CacheAdapter struct {
	mu    sync.Mutex
	items *lru.Cache[string, cacheEntry]
	now   func() time.Time
}

// NewCacheAdapter creates an in-memory cache holding at most size entries
func NewCacheAdapter(size int) (*CacheAdapter, error) {
	items, err := lru.New[string, cacheEntry](size)
	if err != nil {
		return nil, err
	}

	return &CacheAdapter{items: items, now: time.Now}, nil
}

// Get retrieves a value from cache
func (a *CacheAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.items.Get(key)
	if !ok {
		return nil, providers.ErrCacheMiss
	}
	if a.expired(entry) {
		a.items.Remove(key)
		return nil, providers.ErrCacheMiss
	}

	out := make([]byte, len(entry.value))
	copy(out, entry.value)
	return out, nil
}

// Set stores a value with expiration. A non-positive expiration never expires.
func (a *CacheAdapter) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry := cacheEntry{value: append([]byte(nil), value...)}
	if expirationSeconds > 0 {
		entry.expiresAt = a.now().Add(time.Duration(expirationSeconds) * time.Second)
	}
	a.items.Add(key, entry)
	return nil
}

// Delete removes a value from cache
func (a *CacheAdapter) Delete(ctx context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.items.Remove(key)
	return nil
}

// Exists checks if a live key exists in cache
func (a *CacheAdapter) Exists(ctx context.Context, key string) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entry, ok := a.items.Peek(key)
	return ok && !a.expired(entry), nil
}

// DeletePattern removes every key matching a glob pattern
func (a *CacheAdapter) DeletePattern(ctx context.Context, pattern string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, key := range a.items.Keys() {
		matched, err := path.Match(pattern, key)
		if err != nil {
			return err
		}
		if matched {
			a.items.Remove(key)
		}
	}
	return nil
}

// Len returns the number of stored entries, including expired ones not yet evicted
func (a *CacheAdapter) Len() int {
	return a.items.Len()
}

func (a *CacheAdapter) expired(e cacheEntry) bool {
	return !e.expiresAt.IsZero() && !a.now().Before(e.expiresAt)
}
