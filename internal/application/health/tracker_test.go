package health

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	launch = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	ok     = Result{OK: true, Status: 200}
	fail   = Result{Err: errors.New("connection refused")}
)

func TestTrackerStartsInStarting(t *testing.T) {
	tr := NewTracker(DefaultPolicy(), launch)
	assert.Equal(t, StateStarting, tr.State())
}

func TestTrackerIgnoresFailuresDuringStartPeriod(t *testing.T) {
	tr := NewTracker(DefaultPolicy(), launch)

	for i := 1; i <= 5; i++ {
		state, changed := tr.Observe(launch.Add(time.Duration(i)*5*time.Second), fail)
		assert.Equal(t, StateStarting, state)
		assert.False(t, changed)
	}
	assert.Equal(t, 0, tr.Snapshot().FailingStreak)
	assert.Equal(t, 5, tr.Snapshot().Probes)
}

func TestTrackerSuccessDuringStartPeriodIsHealthy(t *testing.T) {
	tr := NewTracker(DefaultPolicy(), launch)

	state, changed := tr.Observe(launch.Add(10*time.Second), ok)
	assert.Equal(t, StateHealthy, state)
	assert.True(t, changed)
}

func TestTrackerSuccessfulProbesAfterStartPeriodAreHealthy(t *testing.T) {
	p := DefaultPolicy()
	tr := NewTracker(p, launch)

	at := launch.Add(p.StartPeriod)
	for i := 0; i < 10; i++ {
		state, _ := tr.Observe(at, ok)
		assert.Equal(t, StateHealthy, state)
		at = at.Add(p.Interval)
	}
}

func TestTrackerTickMovesToProbing(t *testing.T) {
	p := DefaultPolicy()
	tr := NewTracker(p, launch)

	state, changed := tr.Tick(launch.Add(p.StartPeriod - time.Second))
	assert.Equal(t, StateStarting, state)
	assert.False(t, changed)

	state, changed = tr.Tick(launch.Add(p.StartPeriod))
	assert.Equal(t, StateProbing, state)
	assert.True(t, changed)
}

func TestTrackerRetriesConsecutiveFailuresIsUnhealthy(t *testing.T) {
	p := DefaultPolicy()
	tr := NewTracker(p, launch)
	at := launch.Add(p.StartPeriod)

	state, _ := tr.Observe(at, ok)
	require.Equal(t, StateHealthy, state)

	for i := 1; i < p.Retries; i++ {
		at = at.Add(p.Interval)
		state, _ = tr.Observe(at, fail)
		assert.Equal(t, StateHealthy, state, "failure %d must not flip state", i)
	}

	at = at.Add(p.Interval)
	state, changed := tr.Observe(at, fail)
	assert.Equal(t, StateUnhealthy, state)
	assert.True(t, changed)
	assert.Equal(t, p.Retries, tr.Snapshot().FailingStreak)
	assert.Equal(t, "connection refused", tr.Snapshot().LastError)
}

func TestTrackerSuccessResetsStreak(t *testing.T) {
	p := DefaultPolicy()
	tr := NewTracker(p, launch)
	at := launch.Add(p.StartPeriod)

	tr.Observe(at, fail)
	tr.Observe(at.Add(p.Interval), fail)
	state, _ := tr.Observe(at.Add(2*p.Interval), ok)
	assert.Equal(t, StateHealthy, state)
	assert.Equal(t, 0, tr.Snapshot().FailingStreak)

	tr.Observe(at.Add(3*p.Interval), fail)
	state, _ = tr.Observe(at.Add(4*p.Interval), fail)
	assert.Equal(t, StateHealthy, state)
}

func TestTrackerUnhealthyIsTerminal(t *testing.T) {
	p := Policy{Interval: time.Second, Timeout: time.Second, Retries: 1}
	tr := NewTracker(p, launch)

	state, _ := tr.Observe(launch, fail)
	require.Equal(t, StateUnhealthy, state)

	state, changed := tr.Observe(launch.Add(time.Second), ok)
	assert.Equal(t, StateUnhealthy, state)
	assert.False(t, changed)
	assert.Equal(t, 1, tr.Snapshot().Probes)
}

func TestTrackerNeverHealthyFailsAfterStartPeriod(t *testing.T) {
	p := DefaultPolicy()
	tr := NewTracker(p, launch)

	// probes at 30s fall inside the 40s grace
	state, _ := tr.Observe(launch.Add(30*time.Second), fail)
	assert.Equal(t, StateStarting, state)

	state, _ = tr.Observe(launch.Add(60*time.Second), fail)
	assert.Equal(t, StateProbing, state)
	state, _ = tr.Observe(launch.Add(90*time.Second), fail)
	assert.Equal(t, StateProbing, state)
	state, _ = tr.Observe(launch.Add(120*time.Second), fail)
	assert.Equal(t, StateUnhealthy, state)
}

func TestTrackerRecordsStatusFailure(t *testing.T) {
	p := Policy{Interval: time.Second, Timeout: time.Second, Retries: 2}
	tr := NewTracker(p, launch)

	tr.Observe(launch, Result{Status: 503})
	assert.Equal(t, "unexpected status 503", tr.Snapshot().LastError)
}

func TestPolicyValidate(t *testing.T) {
	assert.NoError(t, DefaultPolicy().Validate())

	err := Policy{}.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "interval")
	assert.Contains(t, err.Error(), "timeout")
	assert.Contains(t, err.Error(), "retries")

	assert.Error(t, Policy{Interval: time.Second, Timeout: time.Second, StartPeriod: -time.Second, Retries: 1}.Validate())
}
