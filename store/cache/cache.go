// Package cache provides a keyed expiring store used for transient
// confirmation sessions. Entries live under a per-key TTL, evict in LRU
// order at capacity, and are reaped by a background goroutine.
package cache

import (
	"container/list"
	"context"
	"strings"
	"sync"
	"time"
)

// Store is the injected session-store abstraction. Values are opaque bytes;
// callers own serialization.
type Store interface {
	// Get retrieves a value. Returns the value and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool)

	// Put stores a value under key. ttl <= 0 uses the store default.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key. Supports a trailing * wildcard (user:123:*).
	Delete(ctx context.Context, key string) error
}

// Config configures the in-memory store.
type Config struct {
	Capacity        int           // maximum entries (default: 1000)
	DefaultTTL      time.Duration // default entry TTL (default: 5 minutes)
	CleanupInterval time.Duration // reaper interval (default: 1 minute)
}

// DefaultConfig returns the default store configuration.
func DefaultConfig() Config {
	return Config{
		Capacity:        1000,
		DefaultTTL:      5 * time.Minute,
		CleanupInterval: time.Minute,
	}
}

// MemoryStore implements Store with LRU eviction and TTL expiry.
type MemoryStore struct {
	mu         sync.Mutex
	entries    map[string]*entry
	order      *list.List
	capacity   int
	defaultTTL time.Duration

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type entry struct {
	key       string
	value     []byte
	expiresAt time.Time
	element   *list.Element
}

// NewMemoryStore creates a memory store and starts its reaper.
func NewMemoryStore(cfg Config) *MemoryStore {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1000
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = 5 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &MemoryStore{
		entries:    make(map[string]*entry),
		order:      list.New(),
		capacity:   cfg.Capacity,
		defaultTTL: cfg.DefaultTTL,
		cancel:     cancel,
	}

	s.wg.Add(1)
	go s.reapLoop(ctx, cfg.CleanupInterval)

	return s
}

// Close stops the reaper goroutine.
func (s *MemoryStore) Close() {
	s.cancel()
	s.wg.Wait()
}

// Get retrieves a value, treating expired entries as absent.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(e.expiresAt) {
		s.remove(e)
		return nil, false
	}

	s.order.MoveToFront(e.element)
	return e.value, true
}

// Put stores a value, evicting the least recently used entry at capacity.
func (s *MemoryStore) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = s.defaultTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		e.value = value
		e.expiresAt = time.Now().Add(ttl)
		s.order.MoveToFront(e.element)
		return nil
	}

	for len(s.entries) >= s.capacity {
		oldest := s.order.Back()
		if oldest == nil {
			break
		}
		s.remove(oldest.Value.(*entry))
	}

	e := &entry{key: key, value: value, expiresAt: time.Now().Add(ttl)}
	e.element = s.order.PushFront(e)
	s.entries[key] = e
	return nil
}

// Delete removes a key, or every key under a trailing-* pattern.
func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !strings.HasSuffix(key, "*") {
		if e, ok := s.entries[key]; ok {
			s.remove(e)
		}
		return nil
	}

	prefix := strings.TrimSuffix(key, "*")
	for k, e := range s.entries {
		if strings.HasPrefix(k, prefix) {
			s.remove(e)
		}
	}
	return nil
}

// Size returns the number of live entries.
func (s *MemoryStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// remove deletes an entry. Must be called with the lock held.
func (s *MemoryStore) remove(e *entry) {
	s.order.Remove(e.element)
	delete(s.entries, e.key)
}

func (s *MemoryStore) reapLoop(ctx context.Context, interval time.Duration) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reapExpired()
		}
	}
}

func (s *MemoryStore) reapExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var expired []*entry
	for _, e := range s.entries {
		if now.After(e.expiresAt) {
			expired = append(expired, e)
		}
	}
	for _, e := range expired {
		s.remove(e)
	}
	return len(expired)
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
