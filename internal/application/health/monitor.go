package health

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// ErrUnhealthy is returned by Monitor.Run once the instance is classified unhealthy
var ErrUnhealthy = errors.New("instance is unhealthy")

// Recorder receives probe metrics
type Recorder interface {
	RecordProbe(ok bool, duration time.Duration)
	RecordHealthState(state string)
}

// TransitionFunc is called after every state change
type TransitionFunc func(from, to State, snap Snapshot)

// Monitor probes an instance on a fixed interval and classifies it
type Monitor struct {
	policy  Policy
	prober  Prober
	tracker *Tracker
	logger  *zap.Logger
	metrics Recorder
	now     func() time.Time

	onTransition TransitionFunc
}

// NewMonitor creates a monitor for an instance launched at launchedAt
func NewMonitor(policy Policy, prober Prober, launchedAt time.Time, logger *zap.Logger, metrics Recorder) *Monitor {
	return &Monitor{
		policy:  policy,
		prober:  prober,
		tracker: NewTracker(policy, launchedAt),
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

// OnTransition registers a callback for state changes
func (m *Monitor) OnTransition(fn TransitionFunc) {
	m.onTransition = fn
}

// Tracker exposes the underlying classifier
func (m *Monitor) Tracker() *Tracker {
	return m.tracker
}

// Run probes every Interval until ctx ends or the instance becomes unhealthy
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.policy.Validate(); err != nil {
		return err
	}

	m.logger.Info("health monitor started",
		zap.Duration("interval", m.policy.Interval),
		zap.Duration("timeout", m.policy.Timeout),
		zap.Duration("start_period", m.policy.StartPeriod),
		zap.Int("retries", m.policy.Retries))

	if m.metrics != nil {
		m.metrics.RecordHealthState(string(m.tracker.State()))
	}

	ticker := time.NewTicker(m.policy.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if state := m.Step(ctx); state.Terminal() {
				return ErrUnhealthy
			}
		}
	}
}

// Step runs a single probe and feeds it to the tracker
func (m *Monitor) Step(ctx context.Context) State {
	prev := m.tracker.State()
	if state, changed := m.tracker.Tick(m.now()); changed {
		m.transition(prev, state)
		prev = state
	}

	r := CheckOnce(ctx, m.prober, m.policy.Timeout)
	if m.metrics != nil {
		m.metrics.RecordProbe(r.OK, r.Duration)
	}

	if !r.OK {
		fields := []zap.Field{
			zap.Int("status", r.Status),
			zap.Duration("duration", r.Duration),
		}
		if r.Err != nil {
			fields = append(fields, zap.Error(r.Err))
		}
		m.logger.Warn("health probe failed", fields...)
	} else {
		m.logger.Debug("health probe succeeded", zap.Duration("duration", r.Duration))
	}

	state, changed := m.tracker.Observe(m.now(), r)
	if changed {
		m.transition(prev, state)
	}
	return state
}

func (m *Monitor) transition(from, to State) {
	snap := m.tracker.Snapshot()

	fields := []zap.Field{
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.Int("failing_streak", snap.FailingStreak),
	}
	if to == StateUnhealthy {
		m.logger.Error("instance marked unhealthy", append(fields, zap.String("last_error", snap.LastError))...)
	} else {
		m.logger.Info("health state changed", fields...)
	}

	if m.metrics != nil {
		m.metrics.RecordHealthState(string(to))
	}
	if m.onTransition != nil {
		m.onTransition(from, to, snap)
	}
}
