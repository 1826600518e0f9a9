package models

import (
	"fmt"
	"sync"
)

// State is the position of a request in its lifecycle.
type State string

const (
	StatePending          State = "PENDING"
	StateScraping         State = "SCRAPING"
	StateScrapeFailed     State = "SCRAPE_FAILED"
	StateExtracted        State = "EXTRACTED"
	StateValidationFailed State = "VALIDATION_FAILED"
	StateValidated        State = "VALIDATED"
)

var transitions = map[State][]State{
	StatePending:   {StateScraping},
	StateScraping:  {StateScrapeFailed, StateExtracted},
	StateExtracted: {StateValidationFailed, StateValidated},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return len(transitions[s]) == 0
}

// Lifecycle tracks the state of one request. A state is never entered
// twice.
type Lifecycle struct {
	mu      sync.Mutex
	state   State
	history []State
}

// NewLifecycle starts in PENDING.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StatePending, history: []State{StatePending}}
}

// Advance moves to the next state, refusing illegal transitions.
func (l *Lifecycle) Advance(to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, next := range transitions[l.state] {
		if next == to {
			l.state = to
			l.history = append(l.history, to)
			return nil
		}
	}
	return fmt.Errorf("lifecycle: illegal transition %s -> %s", l.state, to)
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// History returns every state visited, in order.
func (l *Lifecycle) History() []State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]State(nil), l.history...)
}
