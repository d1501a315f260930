// Package registry records instance heartbeats.
//
// Implementations:
//   - redis: Redis with JSON serialization and TTL
//   - memory: In-memory, used when no Redis address is configured and in tests
package registry

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no live heartbeat exists for an instance
var ErrNotFound = errors.New("instance not found")

// Heartbeat is the status an instance reports about itself
type Heartbeat struct {
	InstanceID        string    `json:"instance_id"`
	Hostname          string    `json:"hostname"`
	Version           string    `json:"version"`
	Ready             bool      `json:"ready"`
	TotalWorkers      int       `json:"total_workers"`
	IdleWorkers       int       `json:"idle_workers"`
	BusyWorkers       int       `json:"busy_workers"`
	StoppedWorkers    int       `json:"stopped_workers"`
	EphemerisChecksum string    `json:"ephemeris_checksum,omitempty"`
	StartedAt         time.Time `json:"started_at"`
	Timestamp         time.Time `json:"timestamp"`
}

// Registry stores heartbeats with a time-to-live
type Registry interface {
	Publish(ctx context.Context, hb Heartbeat) error
	Get(ctx context.Context, instanceID string) (*Heartbeat, error)
	List(ctx context.Context) ([]Heartbeat, error)
	Delete(ctx context.Context, instanceID string) error
	Close() error
}
