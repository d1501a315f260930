package health

import (
	"fmt"
	"sync"
	"time"
)

// State is the health classification of an instance
type State string

const (
	StateStarting  State = "starting"
	StateProbing   State = "probing"
	StateHealthy   State = "healthy"
	StateUnhealthy State = "unhealthy"
)

// Terminal reports whether no further transition is possible
func (s State) Terminal() bool {
	return s == StateUnhealthy
}

// Result is the outcome of a single probe
type Result struct {
	OK       bool
	Status   int
	Duration time.Duration
	Err      error
}

// Snapshot is a point-in-time view of a tracker
type Snapshot struct {
	State          State
	FailingStreak  int
	Probes         int
	LaunchedAt     time.Time
	LastProbeAt    time.Time
	LastTransition time.Time
	LastError      string
}

// Tracker classifies an instance from a sequence of probe results.
//
// Before the start period elapses failures are ignored and the first success
// moves the instance to healthy. Afterwards every failure extends the failing
// streak and Retries consecutive failures make the instance unhealthy, which
// is final.
type Tracker struct {
	policy Policy

	mu             sync.Mutex
	state          State
	launchedAt     time.Time
	streak         int
	probes         int
	lastProbeAt    time.Time
	lastTransition time.Time
	lastErr        string
}

// NewTracker creates a tracker for an instance launched at launchedAt
func NewTracker(policy Policy, launchedAt time.Time) *Tracker {
	return &Tracker{
		policy:         policy,
		state:          StateStarting,
		launchedAt:     launchedAt,
		lastTransition: launchedAt,
	}
}

// Observe records a probe result taken at the given time. It returns the
// resulting state and whether the state changed.
func (t *Tracker) Observe(at time.Time, r Result) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	prev := t.state
	if prev.Terminal() {
		return prev, false
	}

	t.probes++
	t.lastProbeAt = at
	switch {
	case r.Err != nil:
		t.lastErr = r.Err.Error()
	case !r.OK:
		t.lastErr = fmt.Sprintf("unexpected status %d", r.Status)
	}

	inGrace := at.Before(t.launchedAt.Add(t.policy.StartPeriod))

	switch {
	case r.OK:
		t.streak = 0
		t.lastErr = ""
		t.state = StateHealthy
	case inGrace && prev == StateStarting:
		// failures during the start period do not count
	default:
		if prev == StateStarting {
			t.state = StateProbing
		}
		t.streak++
		if t.streak >= t.policy.Retries {
			t.state = StateUnhealthy
		}
	}

	if t.state != prev {
		t.lastTransition = at
		return t.state, true
	}
	return t.state, false
}

// Tick advances the tracker clock without a probe result, moving a starting
// instance to probing once the start period has elapsed.
func (t *Tracker) Tick(at time.Time) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.state == StateStarting && !at.Before(t.launchedAt.Add(t.policy.StartPeriod)) {
		t.state = StateProbing
		t.lastTransition = at
		return t.state, true
	}
	return t.state, false
}

// State returns the current classification
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Snapshot returns a copy of the tracker state
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Snapshot{
		State:          t.state,
		FailingStreak:  t.streak,
		Probes:         t.probes,
		LaunchedAt:     t.launchedAt,
		LastProbeAt:    t.lastProbeAt,
		LastTransition: t.lastTransition,
		LastError:      t.lastErr,
	}
}
