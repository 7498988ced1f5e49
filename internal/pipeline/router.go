package pipeline

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/statuspulse/statuspulse/pkg/log"
)

// nowFunc is swapped in tests that need deterministic timestamps.
var nowFunc = time.Now

// RouterConfig represents configuration for the message router.
type RouterConfig struct {
	QueueSize        int
	MaxConcurrent    int
	DefaultTimeout   time.Duration
	DefaultRateLimit int
	// IdlePollInterval is how long the processing loop sleeps when the
	// queue is empty, to avoid busy-spinning.
	IdlePollInterval time.Duration
}

// DefaultRouterConfig returns a default router configuration.
func DefaultRouterConfig() *RouterConfig {
	return &RouterConfig{
		QueueSize:        1000,
		MaxConcurrent:    10,
		DefaultTimeout:   30 * time.Second,
		DefaultRateLimit: 60,
		IdlePollInterval: 100 * time.Millisecond,
	}
}

// Router owns the priority queue and the processor, maintains the
// type-to-handler registry, and runs the processing loop that drains the
// queue into the processor.
// MessageObserver is notified after a message reaches a terminal status.
// Observers run on the dispatch goroutine, outside the router's lock.
type MessageObserver interface {
	OnMessageDone(msg *QueuedMessage)
}

// MessageObserverFunc adapts a function to the MessageObserver interface.
type MessageObserverFunc func(msg *QueuedMessage)

// OnMessageDone implements MessageObserver.
func (f MessageObserverFunc) OnMessageDone(msg *QueuedMessage) { f(msg) }

type Router struct {
	mu        sync.Mutex
	registry  map[string]HandlerSpec
	observers map[int]MessageObserver
	nextObsID int

	queue     *PriorityQueue
	processor *Processor
	config    *RouterConfig
	logger    log.Logger

	running    bool
	loopCancel context.CancelFunc
	loopDone   chan struct{}
	taskWG     sync.WaitGroup
}

// NewRouter creates a new message router.
func NewRouter(config *RouterConfig, logger log.Logger) *Router {
	if config == nil {
		config = DefaultRouterConfig()
	}
	if config.IdlePollInterval <= 0 {
		config.IdlePollInterval = 100 * time.Millisecond
	}
	if logger == nil {
		logger = log.Nop()
	}

	return &Router{
		registry:  make(map[string]HandlerSpec),
		observers: make(map[int]MessageObserver),
		queue: NewPriorityQueue(&QueueConfig{
			MaxSize:          config.QueueSize,
			DefaultRateLimit: config.DefaultRateLimit,
		}, logger),
		processor: NewProcessor(config.MaxConcurrent, logger),
		config:    config,
		logger:    logger.With(log.String("component", "router")),
	}
}

// RegisterOption customizes a handler registration.
type RegisterOption func(*HandlerSpec)

// WithPriority sets the default priority for the message type.
func WithPriority(p Priority) RegisterOption {
	return func(spec *HandlerSpec) { spec.Priority = p }
}

// WithTimeout sets the processing timeout for the message type.
func WithTimeout(d time.Duration) RegisterOption {
	return func(spec *HandlerSpec) { spec.Timeout = d }
}

// WithMaxConcurrent sets the concurrency hint for the message type.
func WithMaxConcurrent(n int) RegisterOption {
	return func(spec *HandlerSpec) { spec.MaxConcurrent = n }
}

// WithRateLimit sets the per-client messages-per-minute limit for the type.
func WithRateLimit(n int) RegisterOption {
	return func(spec *HandlerSpec) { spec.RateLimit = n }
}

// Register stores a handler spec for a message type. Re-registering the same
// type replaces the previous spec.
func (r *Router) Register(messageType string, handler Handler, opts ...RegisterOption) {
	spec := HandlerSpec{
		Type:          messageType,
		Handler:       handler,
		Priority:      PriorityNormal,
		Timeout:       r.config.DefaultTimeout,
		MaxConcurrent: r.config.MaxConcurrent,
		RateLimit:     r.config.DefaultRateLimit,
	}
	for _, opt := range opts {
		opt(&spec)
	}

	r.mu.Lock()
	r.registry[messageType] = spec
	r.mu.Unlock()

	r.logger.Info("Registered handler", log.String("type", messageType))
}

// SubmitOption customizes a single submission.
type SubmitOption func(*QueuedMessage)

// OverridePriority overrides the handler's default priority for this message.
func OverridePriority(p Priority) SubmitOption {
	return func(msg *QueuedMessage) { msg.Priority = p }
}

// Submit routes an inbound envelope to the queue. It returns the message id
// for tracking, ErrUnknownMessageType when no handler is registered for the
// envelope's type, or ErrQueueRejected when the queue refuses the message.
func (r *Router) Submit(clientID string, env Envelope, opts ...SubmitOption) (string, error) {
	r.mu.Lock()
	spec, exists := r.registry[env.Type]
	r.mu.Unlock()

	if !exists {
		r.logger.Warn("No handler for message type", log.String("type", env.Type))
		return "", fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}

	id := env.MessageID
	if id == "" {
		id = newMessageID()
	}

	data := env.Data
	if data == nil {
		data = make(map[string]interface{})
	}

	msg := &QueuedMessage{
		ID:         id,
		ClientID:   clientID,
		Type:       env.Type,
		Data:       data,
		Priority:   spec.Priority,
		EnqueuedAt: nowFunc(),
		Timeout:    spec.Timeout,
		MaxRetries: 3,
		RateLimit:  spec.RateLimit,
		Status:     StatusPending,
	}
	for _, opt := range opts {
		opt(msg)
	}

	if !r.queue.Enqueue(msg) {
		return "", fmt.Errorf("%w: message %s", ErrQueueRejected, id)
	}

	r.logger.Debug("Routed message",
		log.String("message_id", id),
		log.String("type", env.Type))
	return id, nil
}

// Start spawns the processing loop. It returns ErrAlreadyRunning when called
// twice without an intervening Stop.
func (r *Router) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.running {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.running = true
	r.loopCancel = cancel
	r.loopDone = make(chan struct{})

	go r.processingLoop(ctx)

	r.logger.Info("Started message processing")
	return nil
}

// Stop cancels the processing loop, then cancels every still-active
// processing task and waits for their teardown before returning.
func (r *Router) Stop() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return ErrNotRunning
	}
	r.running = false
	cancel := r.loopCancel
	done := r.loopDone
	r.mu.Unlock()

	cancel()
	<-done

	r.processor.CancelAll()
	r.taskWG.Wait()

	r.logger.Info("Stopped message processing")
	return nil
}

// processingLoop drains the queue, acquiring a processor slot for each
// message before handing it off, then running the handler without awaiting it
// inline. Up to the semaphore limit of handlers run concurrently; beyond it
// the loop blocks and messages wait in the queue.
func (r *Router) processingLoop(ctx context.Context) {
	defer close(r.loopDone)

	for {
		if ctx.Err() != nil {
			return
		}

		msg := r.queue.Dequeue()
		if msg == nil {
			select {
			case <-time.After(r.config.IdlePollInterval):
			case <-ctx.Done():
				return
			}
			continue
		}

		r.mu.Lock()
		spec, exists := r.registry[msg.Type]
		r.mu.Unlock()

		if !exists {
			// Handler was unregistered between submit and dequeue.
			r.logger.Error("No handler for dequeued message",
				log.String("type", msg.Type),
				log.String("message_id", msg.ID))
			r.queue.Release(msg.ID)
			continue
		}

		// Hold a processor slot before dispatching, so handlers start in
		// dequeue order and the queue keeps holding whatever exceeds the
		// concurrency cap.
		if !r.processor.acquire(ctx) {
			msg.Status = StatusFailed
			msg.Error = ctx.Err().Error()
			r.queue.Release(msg.ID)
			return
		}

		r.taskWG.Add(1)
		go func(msg *QueuedMessage, handler Handler) {
			defer r.taskWG.Done()
			r.processor.run(ctx, msg, handler)
			r.queue.Release(msg.ID)
			r.notifyDone(msg)
		}(msg, spec.Handler)
	}
}

// SubscribeMessages registers an observer for terminal message outcomes and
// returns a function that removes it.
func (r *Router) SubscribeMessages(o MessageObserver) (unsubscribe func()) {
	r.mu.Lock()
	id := r.nextObsID
	r.nextObsID++
	r.observers[id] = o
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.observers, id)
		r.mu.Unlock()
	}
}

func (r *Router) notifyDone(msg *QueuedMessage) {
	r.mu.Lock()
	observers := make([]MessageObserver, 0, len(r.observers))
	for _, o := range r.observers {
		observers = append(observers, o)
	}
	r.mu.Unlock()

	for _, o := range observers {
		o.OnMessageDone(msg)
	}
}

// Status returns queue stats, processing metrics, the registered type list
// and the active task count.
func (r *Router) Status() RouterStatus {
	r.mu.Lock()
	running := r.running
	types := make([]string, 0, len(r.registry))
	for t := range r.registry {
		types = append(types, t)
	}
	r.mu.Unlock()
	sort.Strings(types)

	stats := r.queue.Stats()
	metrics := r.processor.Metrics()
	metrics.QueueSize = stats.TotalSize
	metrics.ActiveProcessors = r.processor.ActiveCount()

	return RouterStatus{
		IsRunning:          running,
		QueueStats:         stats,
		ProcessingMetrics:  metrics,
		RegisteredHandlers: types,
		ActiveTasks:        r.processor.ActiveCount(),
	}
}

// Queue exposes the underlying queue for status surfaces and tests.
func (r *Router) Queue() *PriorityQueue {
	return r.queue
}

// Processor exposes the underlying processor for status surfaces and tests.
func (r *Router) Processor() *Processor {
	return r.processor
}

// newMessageID generates a unique message id for envelopes submitted
// without one.
func newMessageID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return fmt.Sprintf("msg_%d", nowFunc().UnixNano())
	}
	return fmt.Sprintf("msg_%d_%s", nowFunc().UnixNano(), hex.EncodeToString(buf[:4]))
}
