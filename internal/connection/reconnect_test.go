package connection

import (
	"fmt"
	"testing"
	"time"
)

func backoffConfig() *SchedulerConfig {
	return &SchedulerConfig{
		Strategy:     StrategyExponentialBackoff,
		MaxAttempts:  10,
		InitialDelay: time.Second,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

func TestScheduler_ExponentialDelays(t *testing.T) {
	s := NewScheduler(backoffConfig(), NewStateMachine(nil), nil)

	want := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		10 * time.Second,
		10 * time.Second,
	}
	for attempts, expected := range want {
		if got := s.NextDelay(attempts); got != expected {
			t.Errorf("NextDelay(%d): expected %v, got %v", attempts, expected, got)
		}
	}
}

func TestScheduler_JitterBounds(t *testing.T) {
	cfg := backoffConfig()
	cfg.Jitter = true
	s := NewScheduler(cfg, NewStateMachine(nil), nil)

	for i := 0; i < 50; i++ {
		got := s.NextDelay(2)
		if got < 4*time.Second || got > 4400*time.Millisecond {
			t.Fatalf("Jittered delay out of [base, base*1.1]: %v", got)
		}
	}
}

func TestScheduler_FixedAndImmediate(t *testing.T) {
	cfg := backoffConfig()
	cfg.Strategy = StrategyFixedInterval
	s := NewScheduler(cfg, NewStateMachine(nil), nil)
	for attempts := 0; attempts < 5; attempts++ {
		if got := s.NextDelay(attempts); got != time.Second {
			t.Errorf("Fixed interval attempt %d: expected 1s, got %v", attempts, got)
		}
	}

	cfg2 := backoffConfig()
	cfg2.Strategy = StrategyImmediate
	s2 := NewScheduler(cfg2, NewStateMachine(nil), nil)
	if got := s2.NextDelay(3); got != 0 {
		t.Errorf("Immediate strategy: expected 0, got %v", got)
	}
}

func TestScheduler_NoneNeverSchedules(t *testing.T) {
	cfg := backoffConfig()
	cfg.Strategy = StrategyNone
	sm := NewStateMachine(nil)
	s := NewScheduler(cfg, sm, nil)

	if s.Schedule() {
		t.Error("Strategy none should not schedule")
	}
	if sm.Current() != StateDisconnected {
		t.Errorf("State should be untouched, got %s", sm.Current())
	}
}

func TestScheduler_AttemptTransitions(t *testing.T) {
	cfg := backoffConfig()
	cfg.Strategy = StrategyImmediate
	sm := NewStateMachine(nil)
	s := NewScheduler(cfg, sm, nil)

	transitions := make(chan Transition, 8)
	sm.Subscribe(ObserverFunc(func(t Transition) { transitions <- t }))

	if !s.Schedule() {
		t.Fatal("Schedule should succeed")
	}

	first := awaitTransition(t, transitions)
	if first.To != StateReconnecting {
		t.Errorf("Expected reconnecting first, got %s", first.To)
	}

	second := awaitTransition(t, transitions)
	if second.To != StateConnecting {
		t.Errorf("Expected connecting after delay, got %s", second.To)
	}
	if second.Reason != "reconnection_attempt_1" {
		t.Errorf("Expected reason reconnection_attempt_1, got %s", second.Reason)
	}
	if s.Attempts() != 1 {
		t.Errorf("Expected 1 attempt recorded, got %d", s.Attempts())
	}
}

func TestScheduler_ExhaustionIsTerminal(t *testing.T) {
	cfg := backoffConfig()
	cfg.Strategy = StrategyImmediate
	cfg.MaxAttempts = 2
	sm := NewStateMachine(nil)
	s := NewScheduler(cfg, sm, nil)

	transitions := make(chan Transition, 16)
	sm.Subscribe(ObserverFunc(func(t Transition) { transitions <- t }))

	for i := 0; i < 2; i++ {
		if !s.Schedule() {
			t.Fatalf("Schedule %d should succeed", i+1)
		}
		waitForState(t, sm, StateConnecting)
		sm.SetState(StateDisconnected, fmt.Sprintf("attempt_%d_failed", i+1))
	}

	// Budget spent: the next schedule fails the connection instead.
	if s.Schedule() {
		t.Error("Schedule past the attempt budget should be refused")
	}
	if sm.Current() != StateFailed {
		t.Fatalf("Expected failed after exhaustion, got %s", sm.Current())
	}

	// Failed is terminal: further schedules do nothing.
	if s.Schedule() {
		t.Error("Schedule in failed state should be refused")
	}
	if sm.Current() != StateFailed {
		t.Errorf("State should stay failed, got %s", sm.Current())
	}
}

func TestScheduler_ForceRecoversFromFailed(t *testing.T) {
	cfg := backoffConfig()
	cfg.InitialDelay = 5 * time.Millisecond
	cfg.MaxDelay = 10 * time.Millisecond
	cfg.MaxAttempts = 1
	sm := NewStateMachine(nil)
	s := NewScheduler(cfg, sm, nil)

	s.Schedule()
	waitForState(t, sm, StateConnecting)
	sm.SetState(StateDisconnected, "attempt_failed")
	s.Schedule()
	if sm.Current() != StateFailed {
		t.Fatalf("Expected failed, got %s", sm.Current())
	}

	// Grow the backoff so only a zero-delay forced attempt can fire in time.
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour

	s.Force()

	// Force resets the counter and fires at once, skipping the backoff.
	waitForState(t, sm, StateConnecting)
	if s.Attempts() != 1 {
		t.Errorf("Expected attempt counter restarted at 1, got %d", s.Attempts())
	}
}

func TestScheduler_ForceBypassesBackoffDelay(t *testing.T) {
	cfg := backoffConfig()
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour
	sm := NewStateMachine(nil)
	s := NewScheduler(cfg, sm, nil)
	defer s.Stop()

	s.Force()

	waitForState(t, sm, StateConnecting)
	if s.Attempts() != 1 {
		t.Errorf("Expected 1 attempt, got %d", s.Attempts())
	}
}

func TestScheduler_OnePendingAttempt(t *testing.T) {
	cfg := backoffConfig()
	cfg.InitialDelay = time.Hour
	sm := NewStateMachine(nil)
	s := NewScheduler(cfg, sm, nil)
	defer s.Stop()

	if !s.Schedule() {
		t.Fatal("First schedule should succeed")
	}
	if s.Schedule() {
		t.Error("Second schedule with an attempt pending should be refused")
	}
}

func awaitTransition(t *testing.T, ch chan Transition) Transition {
	t.Helper()
	select {
	case tr := <-ch:
		return tr
	case <-time.After(2 * time.Second):
		t.Fatal("No transition observed before deadline")
		return Transition{}
	}
}

func waitForState(t *testing.T, sm *StateMachine, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sm.Current() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("State never reached %s (got %s)", want, sm.Current())
}
