package connection

import (
	"fmt"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/statuspulse/statuspulse/pkg/log"
)

// Strategy selects how reconnection delays grow between attempts.
type Strategy string

const (
	StrategyExponentialBackoff Strategy = "exponential_backoff"
	StrategyFixedInterval      Strategy = "fixed_interval"
	StrategyImmediate          Strategy = "immediate"
	StrategyNone               Strategy = "none"
)

// SchedulerConfig represents configuration for the reconnection scheduler.
type SchedulerConfig struct {
	Strategy     Strategy
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       bool
}

// DefaultSchedulerConfig returns a default scheduler configuration.
func DefaultSchedulerConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Strategy:     StrategyExponentialBackoff,
		MaxAttempts:  10,
		InitialDelay: time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}
}

// Scheduler drives reconnection attempts against a state machine. At most one
// attempt is pending at a time; the attempt counter only resets when the
// state machine reaches StateConnected (via ResetAttempts) or on Force.
type Scheduler struct {
	config *SchedulerConfig
	sm     *StateMachine
	logger log.Logger

	mu       sync.Mutex
	attempts int
	pending  chan struct{} // closed to cancel the sleeping worker
	workerWG sync.WaitGroup
}

// NewScheduler creates a reconnection scheduler bound to the state machine.
func NewScheduler(config *SchedulerConfig, sm *StateMachine, logger log.Logger) *Scheduler {
	if config == nil {
		config = DefaultSchedulerConfig()
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Scheduler{
		config: config,
		sm:     sm,
		logger: logger.With(log.String("component", "reconnect_scheduler")),
	}
}

// NextDelay computes the delay before the attempt following the given number
// of completed attempts. Jitter, when enabled, adds up to 10% of the base
// delay so simultaneous clients do not reconnect in lockstep.
func (s *Scheduler) NextDelay(attempts int) time.Duration {
	var delay time.Duration
	switch s.config.Strategy {
	case StrategyImmediate:
		delay = 0
	case StrategyFixedInterval:
		delay = s.config.InitialDelay
	case StrategyExponentialBackoff:
		d := float64(s.config.InitialDelay) * math.Pow(s.config.Multiplier, float64(attempts))
		if d > float64(s.config.MaxDelay) {
			d = float64(s.config.MaxDelay)
		}
		delay = time.Duration(d)
	default:
		return 0
	}

	if s.config.Jitter && delay > 0 {
		delay += time.Duration(float64(delay) * 0.1 * rand.Float64())
	}
	return delay
}

// Schedule queues the next reconnection attempt. When the attempt budget is
// exhausted it transitions the state machine to StateFailed instead; Failed
// is terminal until Force is called. It reports whether an attempt was
// scheduled.
func (s *Scheduler) Schedule() bool {
	return s.schedule(false)
}

// schedule queues the next attempt; immediate skips the strategy delay.
func (s *Scheduler) schedule(immediate bool) bool {
	if s.config.Strategy == StrategyNone {
		return false
	}

	s.mu.Lock()
	if s.pending != nil {
		s.mu.Unlock()
		return false
	}
	if s.config.MaxAttempts > 0 && s.attempts >= s.config.MaxAttempts {
		s.mu.Unlock()
		s.logger.Warn("Reconnection attempts exhausted",
			log.Int("attempts", s.attempts))
		s.sm.SetState(StateFailed, "max_reconnection_attempts_exceeded")
		return false
	}

	var delay time.Duration
	if !immediate {
		delay = s.NextDelay(s.attempts)
	}
	cancel := make(chan struct{})
	s.pending = cancel
	s.workerWG.Add(1)
	s.mu.Unlock()

	s.sm.SetState(StateReconnecting, "reconnection_scheduled")
	s.logger.Info("Scheduled reconnection attempt",
		log.Int("attempt", s.attempts+1),
		log.Duration("delay", delay))

	go s.runAttempt(delay, cancel)
	return true
}

// runAttempt sleeps out the backoff delay, then records the attempt and asks
// the state machine to connect.
func (s *Scheduler) runAttempt(delay time.Duration, cancel chan struct{}) {
	defer s.workerWG.Done()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-cancel:
		return
	}

	s.mu.Lock()
	if s.pending != cancel {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.attempts++
	attempt := s.attempts
	s.mu.Unlock()

	s.sm.SetState(StateConnecting, fmt.Sprintf("reconnection_attempt_%d", attempt))
}

// ResetAttempts clears the attempt counter. The connection manager calls this
// when the state machine reaches StateConnected.
func (s *Scheduler) ResetAttempts() {
	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()
}

// Attempts returns the number of attempts made since the last reset.
func (s *Scheduler) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

// Force abandons any pending attempt, clears the attempt counter and fires a
// fresh attempt with zero delay, ignoring the strategy's backoff. It is the
// only way out of StateFailed.
func (s *Scheduler) Force() {
	s.cancelPending()

	s.mu.Lock()
	s.attempts = 0
	s.mu.Unlock()

	s.sm.SetState(StateReconnecting, "forced_reconnection")
	s.schedule(true)
}

// Stop cancels any pending attempt and waits for the worker to exit.
func (s *Scheduler) Stop() {
	s.cancelPending()
	s.workerWG.Wait()
}

func (s *Scheduler) cancelPending() {
	s.mu.Lock()
	if s.pending != nil {
		close(s.pending)
		s.pending = nil
	}
	s.mu.Unlock()
}
