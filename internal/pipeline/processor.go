package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/statuspulse/statuspulse/pkg/log"
)

// activeTask tracks one in-flight handler invocation so it can be cancelled
// and awaited during shutdown.
type activeTask struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Processor executes handlers for dequeued messages under a concurrency cap,
// a per-message deadline and per-message status tracking. One handler's
// failure never aborts another in-flight message.
type Processor struct {
	mu      sync.Mutex
	active  map[string]*activeTask
	sem     chan struct{}
	metrics *processingMetrics
	logger  log.Logger
}

// NewProcessor creates a new processor bounded to maxConcurrent in-flight
// messages.
func NewProcessor(maxConcurrent int, logger log.Logger) *Processor {
	if maxConcurrent <= 0 {
		maxConcurrent = 10
	}
	if logger == nil {
		logger = log.Nop()
	}

	return &Processor{
		active:  make(map[string]*activeTask),
		sem:     make(chan struct{}, maxConcurrent),
		metrics: newProcessingMetrics(),
		logger:  logger.With(log.String("component", "processor")),
	}
}

// Process runs the handler for one message. It blocks until a semaphore slot
// is free, then invokes the handler under a deadline equal to msg.Timeout.
// The outcome is recorded on the message and in the metrics; processing-time
// failures are captured as message state, never returned as an error.
//
// The supplied ctx bounds the whole operation: cancelling it (as Stop does)
// cancels both the semaphore wait and the running handler.
func (p *Processor) Process(ctx context.Context, msg *QueuedMessage, handler Handler) bool {
	if !p.acquire(ctx) {
		msg.Status = StatusFailed
		msg.Error = ctx.Err().Error()
		return false
	}
	return p.run(ctx, msg, handler)
}

// acquire blocks until a semaphore slot is free or ctx is cancelled.
func (p *Processor) acquire(ctx context.Context) bool {
	select {
	case p.sem <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

// run executes the handler with a semaphore slot already held. The slot is
// released when the handler finishes.
func (p *Processor) run(ctx context.Context, msg *QueuedMessage, handler Handler) bool {
	defer func() { <-p.sem }()

	msg.Status = StatusProcessing
	msg.StartedAt = nowFunc()

	handlerCtx, cancel := context.WithTimeout(ctx, msg.Timeout)
	defer cancel()

	task := &activeTask{cancel: cancel, done: make(chan struct{})}
	p.mu.Lock()
	p.active[msg.ID] = task
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		delete(p.active, msg.ID)
		p.mu.Unlock()
		close(task.done)
	}()

	errCh := make(chan error, 1)
	go func() {
		errCh <- p.runHandler(handlerCtx, msg, handler)
	}()

	var success bool
	select {
	case err := <-errCh:
		msg.EndedAt = nowFunc()
		if err != nil {
			// A handler that returns promptly on cancellation races the
			// Done branch below; classify it by the deadline, not by which
			// channel the select happened to pick.
			if handlerCtx.Err() == context.DeadlineExceeded {
				p.markTimeout(msg)
				break
			}
			msg.Status = StatusFailed
			msg.Error = err.Error()
			p.logger.Error("Message processing failed",
				log.String("message_id", msg.ID),
				log.String("type", msg.Type),
				log.Error(err))
		} else {
			msg.Status = StatusCompleted
			success = true
			p.logger.Debug("Message processed",
				log.String("message_id", msg.ID),
				log.String("type", msg.Type))
		}
	case <-handlerCtx.Done():
		msg.EndedAt = nowFunc()
		if handlerCtx.Err() == context.DeadlineExceeded {
			p.markTimeout(msg)
		} else {
			msg.Status = StatusFailed
			msg.Error = handlerCtx.Err().Error()
		}
	}

	p.metrics.record(msg.Status, msg.EndedAt.Sub(msg.StartedAt))
	return success
}

func (p *Processor) markTimeout(msg *QueuedMessage) {
	msg.Status = StatusTimeout
	msg.Error = fmt.Sprintf("timeout after %gs", msg.Timeout.Seconds())
	p.logger.Warn("Message processing timed out",
		log.String("message_id", msg.ID),
		log.String("type", msg.Type),
		log.Duration("timeout", msg.Timeout))
}

// runHandler invokes the handler, converting a panic into an error so one
// malformed message cannot crash the processing loop.
func (p *Processor) runHandler(ctx context.Context, msg *QueuedMessage, handler Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, msg.ClientID, msg.Data)
}

// Cancel cancels the in-flight task for the given message id, if present,
// and waits for its teardown. It reports whether a task was cancelled.
func (p *Processor) Cancel(id string) bool {
	p.mu.Lock()
	task, exists := p.active[id]
	p.mu.Unlock()

	if !exists {
		return false
	}

	task.cancel()
	<-task.done
	p.logger.Info("Cancelled processing", log.String("message_id", id))
	return true
}

// CancelAll cancels every in-flight task and waits for each teardown.
// Used during router shutdown.
func (p *Processor) CancelAll() {
	p.mu.Lock()
	tasks := make([]*activeTask, 0, len(p.active))
	for _, task := range p.active {
		tasks = append(tasks, task)
	}
	p.mu.Unlock()

	for _, task := range tasks {
		task.cancel()
		<-task.done
	}
}

// ActiveCount returns the number of in-flight tasks.
func (p *Processor) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.active)
}

// Metrics returns a snapshot of processing metrics.
func (p *Processor) Metrics() MetricsSnapshot {
	return p.metrics.snapshot()
}
