package connection

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/statuspulse/statuspulse/pkg/log"
	"github.com/statuspulse/statuspulse/pkg/store"
)

// defaultQueueLimit bounds the outbound offline queue.
const defaultQueueLimit = 100

// QueuedItem is one message held while the client is unreachable.
type QueuedItem struct {
	Data     map[string]interface{} `json:"data"`
	QueuedAt time.Time              `json:"queued_at"`
}

// FlushReceiver receives the buffered messages when connectivity returns.
// Delivery is at most once: the buffer hands the batch over exactly one time
// and does not requeue it if the receiver fails.
type FlushReceiver interface {
	OnFlush(items []QueuedItem)
}

// FlushReceiverFunc adapts a function to the FlushReceiver interface.
type FlushReceiverFunc func(items []QueuedItem)

// OnFlush implements FlushReceiver.
func (f FlushReceiverFunc) OnFlush(items []QueuedItem) { f(items) }

// BufferConfig represents configuration for the offline buffer.
type BufferConfig struct {
	// CacheTTL is how long cached status snapshots stay readable.
	CacheTTL time.Duration
	// QueueLimit caps the outbound queue; the oldest entry is dropped when
	// a new one arrives at capacity.
	QueueLimit int
}

// DefaultBufferConfig returns a default buffer configuration.
func DefaultBufferConfig() *BufferConfig {
	return &BufferConfig{
		CacheTTL:   5 * time.Minute,
		QueueLimit: defaultQueueLimit,
	}
}

// OfflineBuffer holds state for clients that have lost connectivity: a
// TTL-bounded status cache backed by a store driver, and a bounded queue of
// outbound messages flushed in one batch when the client comes back.
type OfflineBuffer struct {
	config *BufferConfig
	cache  store.Store
	logger log.Logger

	mu    sync.Mutex
	queue []QueuedItem
}

// NewOfflineBuffer creates an offline buffer on top of the given store.
func NewOfflineBuffer(config *BufferConfig, cache store.Store, logger log.Logger) *OfflineBuffer {
	if config == nil {
		config = DefaultBufferConfig()
	}
	if config.QueueLimit <= 0 {
		config.QueueLimit = defaultQueueLimit
	}
	if config.CacheTTL <= 0 {
		config.CacheTTL = 5 * time.Minute
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &OfflineBuffer{
		config: config,
		cache:  cache,
		logger: logger.With(log.String("component", "offline_buffer")),
	}
}

// CacheStatus stores a status snapshot under the given key with the
// configured TTL.
func (b *OfflineBuffer) CacheStatus(ctx context.Context, key string, value []byte) error {
	return b.cache.Set(ctx, key, value, b.config.CacheTTL)
}

// CachedStatus returns the cached snapshot for the key, or ok=false when no
// fresh entry exists. Expired entries read as absent.
func (b *OfflineBuffer) CachedStatus(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := b.cache.Get(ctx, key)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return value, true, nil
}

// QueueMessage appends an outbound message to the offline queue, stamping it
// with the time it was buffered. At capacity the oldest entry is dropped so
// the newest data survives.
func (b *OfflineBuffer) QueueMessage(data map[string]interface{}) {
	item := QueuedItem{Data: data, QueuedAt: time.Now()}

	b.mu.Lock()
	if len(b.queue) >= b.config.QueueLimit {
		dropped := len(b.queue) - b.config.QueueLimit + 1
		b.queue = b.queue[dropped:]
		b.logger.Warn("Offline queue full, dropped oldest",
			log.Int("dropped", dropped))
	}
	b.queue = append(b.queue, item)
	b.mu.Unlock()
}

// Flush empties the queue and hands the whole batch to the receiver in one
// call. The queue is cleared before the receiver runs, so messages queued
// during delivery land in the next flush and the batch is delivered at most
// once.
func (b *OfflineBuffer) Flush(receiver FlushReceiver) int {
	b.mu.Lock()
	items := b.queue
	b.queue = nil
	b.mu.Unlock()

	if len(items) == 0 {
		return 0
	}

	b.logger.Info("Flushing offline queue", log.Int("messages", len(items)))
	if receiver != nil {
		receiver.OnFlush(items)
	}
	return len(items)
}

// Len returns the number of queued messages.
func (b *OfflineBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
