// Package health tracks per-target up/down state derived from scrape
// outcomes.
package health

import (
	"sync"
	"time"
)

// Health is the liveness classification of a target.
type Health string

const (
	// Unknown means no scrape has completed for the target yet.
	Unknown Health = "unknown"
	// Up means the most recent scrape succeeded.
	Up Health = "up"
	// Down means at least failureThreshold consecutive scrapes failed.
	Down Health = "down"
)

// DefaultFailureThreshold is the number of consecutive failures after which
// a target transitions to Down.
const DefaultFailureThreshold = 3

// State is the tracked health of a single target.
type State struct {
	Health              Health
	LastSuccess         time.Time
	LastScrape          time.Time
	LastScrapeDuration  time.Duration
	LastError           string
	ConsecutiveFailures int
}

// Tracker maintains health state per target. Transitions are driven only by
// scrape outcomes: a target moves to Down after failureThreshold consecutive
// failures and back to Up on any success. There is no timer-based demotion.
//
// Writers are partitioned by target (the scheduler allows one in-flight
// scrape per target), readers come from the query path.
type Tracker struct {
	failureThreshold int

	mut    sync.RWMutex
	states map[string]*State
}

// NewTracker creates a Tracker. failureThreshold <= 0 falls back to
// DefaultFailureThreshold.
func NewTracker(failureThreshold int) *Tracker {
	if failureThreshold <= 0 {
		failureThreshold = DefaultFailureThreshold
	}
	return &Tracker{
		failureThreshold: failureThreshold,
		states:           make(map[string]*State),
	}
}

// ObserveSuccess records a successful scrape of the target. The target
// transitions to Up immediately regardless of its previous state.
func (t *Tracker) ObserveSuccess(id string, ts time.Time, duration time.Duration) {
	t.mut.Lock()
	defer t.mut.Unlock()

	s := t.state(id)
	s.Health = Up
	s.LastSuccess = ts
	s.LastScrape = ts
	s.LastScrapeDuration = duration
	s.LastError = ""
	s.ConsecutiveFailures = 0
}

// ObserveFailure records a failed scrape of the target. The target
// transitions to Down once it has accumulated failureThreshold consecutive
// failures; before that its previous state is retained.
func (t *Tracker) ObserveFailure(id string, ts time.Time, duration time.Duration, scrapeErr error) {
	t.mut.Lock()
	defer t.mut.Unlock()

	s := t.state(id)
	s.LastScrape = ts
	s.LastScrapeDuration = duration
	if scrapeErr != nil {
		s.LastError = scrapeErr.Error()
	}
	s.ConsecutiveFailures++
	if s.ConsecutiveFailures >= t.failureThreshold {
		s.Health = Down
	}
}

// Forget drops all state for the target. Called when the registry removes
// it.
func (t *Tracker) Forget(id string) {
	t.mut.Lock()
	defer t.mut.Unlock()
	delete(t.states, id)
}

// Status returns the current state of the target. Targets never observed
// report Unknown.
func (t *Tracker) Status(id string) State {
	t.mut.RLock()
	defer t.mut.RUnlock()

	if s, ok := t.states[id]; ok {
		return *s
	}
	return State{Health: Unknown}
}

// StatusAll returns a copy of the state of every tracked target.
func (t *Tracker) StatusAll() map[string]State {
	t.mut.RLock()
	defer t.mut.RUnlock()

	out := make(map[string]State, len(t.states))
	for id, s := range t.states {
		out[id] = *s
	}
	return out
}

// state returns the mutable state for id, creating it in the Unknown state
// if needed. Callers must hold the write lock.
func (t *Tracker) state(id string) *State {
	s, ok := t.states[id]
	if !ok {
		s = &State{Health: Unknown}
		t.states[id] = s
	}
	return s
}
