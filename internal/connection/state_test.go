package connection

import (
	"fmt"
	"testing"
	"time"
)

func TestStateMachine_InitialState(t *testing.T) {
	sm := NewStateMachine(nil)

	if sm.Current() != StateDisconnected {
		t.Errorf("Expected initial state disconnected, got %s", sm.Current())
	}
}

func TestStateMachine_Transition(t *testing.T) {
	sm := NewStateMachine(nil)

	before := time.Now()
	if !sm.SetState(StateConnecting, "dial") {
		t.Fatal("Transition to a new state should succeed")
	}

	if sm.Current() != StateConnecting {
		t.Errorf("Expected connecting, got %s", sm.Current())
	}
	if sm.Previous() != StateDisconnected {
		t.Errorf("Expected previous disconnected, got %s", sm.Previous())
	}
	if sm.ChangedAt().Before(before) {
		t.Error("ChangedAt should be updated on transition")
	}

	history := sm.History()
	if len(history) != 1 {
		t.Fatalf("Expected 1 history entry, got %d", len(history))
	}
	if history[0].From != StateDisconnected || history[0].To != StateConnecting || history[0].Reason != "dial" {
		t.Errorf("Unexpected history entry: %+v", history[0])
	}
}

func TestStateMachine_SameStateIsNoOp(t *testing.T) {
	sm := NewStateMachine(nil)

	var notified int
	sm.Subscribe(ObserverFunc(func(t Transition) { notified++ }))

	if sm.SetState(StateDisconnected, "again") {
		t.Error("Setting the current state should report no transition")
	}
	if notified != 0 {
		t.Errorf("Observers should not fire on a no-op, got %d notifications", notified)
	}
	if len(sm.History()) != 0 {
		t.Error("A no-op should not append to history")
	}
}

func TestStateMachine_HistoryBounded(t *testing.T) {
	sm := NewStateMachine(nil)

	// Alternate states so every set is a real transition.
	for i := 0; i < historyLimit+50; i++ {
		if i%2 == 0 {
			sm.SetState(StateConnecting, fmt.Sprintf("t%d", i))
		} else {
			sm.SetState(StateDisconnected, fmt.Sprintf("t%d", i))
		}
	}

	history := sm.History()
	if len(history) != historyLimit {
		t.Errorf("Expected history capped at %d, got %d", historyLimit, len(history))
	}
	// The oldest entries were evicted; the newest survives.
	last := history[len(history)-1]
	if last.Reason != fmt.Sprintf("t%d", historyLimit+49) {
		t.Errorf("Expected newest transition retained, got %s", last.Reason)
	}
}

func TestStateMachine_ObserverAndUnsubscribe(t *testing.T) {
	sm := NewStateMachine(nil)

	var got []Transition
	unsubscribe := sm.Subscribe(ObserverFunc(func(t Transition) {
		got = append(got, t)
	}))

	sm.SetState(StateConnecting, "dial")
	if len(got) != 1 || got[0].To != StateConnecting {
		t.Fatalf("Observer should see the transition, got %+v", got)
	}

	unsubscribe()
	sm.SetState(StateConnected, "established")
	if len(got) != 1 {
		t.Errorf("Unsubscribed observer should not fire, got %d notifications", len(got))
	}
}

func TestStateMachine_PanickingObserverIsContained(t *testing.T) {
	sm := NewStateMachine(nil)

	var survived int
	sm.Subscribe(ObserverFunc(func(t Transition) { panic("observer bug") }))
	sm.Subscribe(ObserverFunc(func(t Transition) { survived++ }))

	sm.SetState(StateConnecting, "dial")

	if survived != 1 {
		t.Errorf("Remaining observers should run after a panic, got %d", survived)
	}
	if sm.Current() != StateConnecting {
		t.Errorf("Transition should complete despite observer panic, state %s", sm.Current())
	}
}

func TestStateMachine_ObserverMayTransition(t *testing.T) {
	sm := NewStateMachine(nil)

	// An observer reacting to connecting immediately completes the dial.
	sm.Subscribe(ObserverFunc(func(t Transition) {
		if t.To == StateConnecting {
			sm.SetState(StateConnected, "established")
		}
	}))

	sm.SetState(StateConnecting, "dial")

	if sm.Current() != StateConnected {
		t.Errorf("Observer-driven transition should apply, state %s", sm.Current())
	}
	if len(sm.History()) != 2 {
		t.Errorf("Expected 2 history entries, got %d", len(sm.History()))
	}
}
