package health

import (
	"errors"
	"fmt"
	"time"
)

// Policy holds the probe schedule the hosting platform applies to an instance
type Policy struct {
	Interval    time.Duration
	Timeout     time.Duration
	StartPeriod time.Duration
	Retries     int
}

// DefaultPolicy returns the schedule baked into the container image
func DefaultPolicy() Policy {
	return Policy{
		Interval:    30 * time.Second,
		Timeout:     10 * time.Second,
		StartPeriod: 40 * time.Second,
		Retries:     3,
	}
}

// Validate checks that the policy can drive a tracker
func (p Policy) Validate() error {
	var errs []error
	if p.Interval <= 0 {
		errs = append(errs, fmt.Errorf("interval must be positive, got %s", p.Interval))
	}
	if p.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", p.Timeout))
	}
	if p.StartPeriod < 0 {
		errs = append(errs, fmt.Errorf("start period must not be negative, got %s", p.StartPeriod))
	}
	if p.Retries < 1 {
		errs = append(errs, fmt.Errorf("retries must be at least 1, got %d", p.Retries))
	}
	return errors.Join(errs...)
}
