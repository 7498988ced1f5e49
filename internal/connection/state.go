package connection

import (
	"sync"
	"time"

	"github.com/statuspulse/statuspulse/pkg/log"
)

// State represents the connection state of a client session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateFailed       State = "failed"
	StateOffline      State = "offline"
)

// historyLimit bounds the retained transition history.
const historyLimit = 100

// Transition records one state change with its trigger.
type Transition struct {
	From   State     `json:"from"`
	To     State     `json:"to"`
	Reason string    `json:"reason"`
	At     time.Time `json:"at"`
}

// Observer is notified after each completed state transition. Observers run
// outside the state machine's lock, so they may call SetState themselves.
type Observer interface {
	OnStateChange(t Transition)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(t Transition)

// OnStateChange implements Observer.
func (f ObserverFunc) OnStateChange(t Transition) { f(t) }

// StateMachine tracks the connection state, a bounded transition history and
// a set of observers. Observer failures are contained: a panicking observer
// is logged and the remaining observers still run.
type StateMachine struct {
	mu        sync.Mutex
	current   State
	previous  State
	changedAt time.Time
	history   []Transition

	observers map[int]Observer
	nextID    int

	logger log.Logger
}

// NewStateMachine creates a state machine starting in StateDisconnected.
func NewStateMachine(logger log.Logger) *StateMachine {
	if logger == nil {
		logger = log.Nop()
	}
	return &StateMachine{
		current:   StateDisconnected,
		changedAt: time.Now(),
		observers: make(map[int]Observer),
		logger:    logger.With(log.String("component", "state_machine")),
	}
}

// SetState transitions to the given state and notifies observers. Setting the
// state the machine is already in is a no-op: no history entry, no
// notification. It reports whether a transition happened.
func (sm *StateMachine) SetState(to State, reason string) bool {
	sm.mu.Lock()
	if sm.current == to {
		sm.mu.Unlock()
		return false
	}

	t := Transition{
		From:   sm.current,
		To:     to,
		Reason: reason,
		At:     time.Now(),
	}
	sm.previous = sm.current
	sm.current = to
	sm.changedAt = t.At

	sm.history = append(sm.history, t)
	if len(sm.history) > historyLimit {
		sm.history = sm.history[len(sm.history)-historyLimit:]
	}

	observers := make([]Observer, 0, len(sm.observers))
	for _, o := range sm.observers {
		observers = append(observers, o)
	}
	sm.mu.Unlock()

	sm.logger.Info("Connection state changed",
		log.String("from", string(t.From)),
		log.String("to", string(t.To)),
		log.String("reason", reason))

	for _, o := range observers {
		sm.notify(o, t)
	}
	return true
}

// notify dispatches one observer, containing panics.
func (sm *StateMachine) notify(o Observer, t Transition) {
	defer func() {
		if r := recover(); r != nil {
			sm.logger.Error("State observer panicked",
				log.String("to", string(t.To)),
				log.Any("panic", r))
		}
	}()
	o.OnStateChange(t)
}

// Subscribe registers an observer and returns a function that removes it.
func (sm *StateMachine) Subscribe(o Observer) (unsubscribe func()) {
	sm.mu.Lock()
	id := sm.nextID
	sm.nextID++
	sm.observers[id] = o
	sm.mu.Unlock()

	return func() {
		sm.mu.Lock()
		delete(sm.observers, id)
		sm.mu.Unlock()
	}
}

// Current returns the current state.
func (sm *StateMachine) Current() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.current
}

// Previous returns the state before the last transition.
func (sm *StateMachine) Previous() State {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.previous
}

// ChangedAt returns when the last transition happened.
func (sm *StateMachine) ChangedAt() time.Time {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.changedAt
}

// History returns a copy of the retained transitions, oldest first.
func (sm *StateMachine) History() []Transition {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	out := make([]Transition, len(sm.history))
	copy(out, sm.history)
	return out
}
