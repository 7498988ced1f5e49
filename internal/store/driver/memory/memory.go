package memory

import (
	"context"
	"sync"
	"time"

	"github.com/statuspulse/statuspulse/pkg/store"
)

// entry represents a single entry in the memory store
type entry struct {
	value     []byte
	expiresAt time.Time
	hasExpiry bool
}

// isExpired checks if the entry has expired
func (e *entry) isExpired() bool {
	return e.hasExpiry && time.Now().After(e.expiresAt)
}

// MemoryStore implements the store.Store interface using in-memory storage.
// Expired entries are removed lazily on read and periodically by a cleanup
// goroutine.
type MemoryStore struct {
	mu        sync.RWMutex
	data      map[string]*entry
	stopCh    chan struct{}
	wg        sync.WaitGroup
	keyPrefix string
	closed    bool
}

// New creates a new in-memory store instance
func New(config *store.Config) (*MemoryStore, error) {
	if config == nil {
		config = store.DefaultConfig()
	}

	ms := &MemoryStore{
		data:      make(map[string]*entry),
		stopCh:    make(chan struct{}),
		keyPrefix: config.KeyPrefix,
	}

	ms.wg.Add(1)
	go ms.cleanupLoop()

	return ms, nil
}

// Get retrieves a value by key. An expired entry is deleted and reported
// as ErrNotFound.
func (ms *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	fullKey := ms.getKey(key)

	ms.mu.Lock()
	defer ms.mu.Unlock()

	e, exists := ms.data[fullKey]
	if !exists {
		return nil, store.ErrNotFound
	}
	if e.isExpired() {
		delete(ms.data, fullKey)
		return nil, store.ErrNotFound
	}

	value := make([]byte, len(e.value))
	copy(value, e.value)
	return value, nil
}

// Set stores a value by key. A zero ttl means the entry never expires.
func (ms *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	fullKey := ms.getKey(key)

	stored := make([]byte, len(value))
	copy(stored, value)

	e := &entry{value: stored}
	if ttl > 0 {
		e.expiresAt = time.Now().Add(ttl)
		e.hasExpiry = true
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.data[fullKey] = e
	return nil
}

// Delete deletes a value by key
func (ms *MemoryStore) Delete(ctx context.Context, key string) error {
	fullKey := ms.getKey(key)

	ms.mu.Lock()
	defer ms.mu.Unlock()
	delete(ms.data, fullKey)
	return nil
}

// Close stops the cleanup goroutine and releases the stored data
func (ms *MemoryStore) Close() error {
	ms.mu.Lock()
	if ms.closed {
		ms.mu.Unlock()
		return nil
	}
	ms.closed = true
	close(ms.stopCh)
	ms.mu.Unlock()

	ms.wg.Wait()

	ms.mu.Lock()
	ms.data = make(map[string]*entry)
	ms.mu.Unlock()
	return nil
}

// Health returns the health status of the store
func (ms *MemoryStore) Health() store.HealthStatus {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	status := "healthy"
	if ms.closed {
		status = "closed"
	}

	return store.HealthStatus{
		Status:    status,
		Timestamp: time.Now(),
	}
}

// getKey returns the full key with prefix
func (ms *MemoryStore) getKey(key string) string {
	if ms.keyPrefix == "" {
		return key
	}
	return ms.keyPrefix + ":" + key
}

// cleanupLoop periodically removes expired entries to prevent unbounded growth
func (ms *MemoryStore) cleanupLoop() {
	defer ms.wg.Done()

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ms.removeExpired()
		case <-ms.stopCh:
			return
		}
	}
}

// removeExpired removes all expired entries
func (ms *MemoryStore) removeExpired() {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	for key, e := range ms.data {
		if e.isExpired() {
			delete(ms.data, key)
		}
	}
}
