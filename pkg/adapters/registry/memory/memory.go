package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tattva/tattva/pkg/adapters/registry"
)

type entry struct {
	hb        registry.Heartbeat
	expiresAt time.Time
}

// InMemoryRegistry implements registry.Registry using an in-memory map.
// Entries disappear once their TTL has passed.
type InMemoryRegistry struct {
	ttl     time.Duration
	now     func() time.Time
	entries map[string]entry
	mu      sync.RWMutex
}

// NewInMemoryRegistry creates a new in-memory registry
func NewInMemoryRegistry(ttl time.Duration) *InMemoryRegistry {
	return &InMemoryRegistry{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]entry),
	}
}

// Publish stores or refreshes a heartbeat
func (r *InMemoryRegistry) Publish(ctx context.Context, hb registry.Heartbeat) error {
	if hb.InstanceID == "" {
		return fmt.Errorf("heartbeat has no instance id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[hb.InstanceID] = entry{hb: hb, expiresAt: r.now().Add(r.ttl)}
	return nil
}

// Get returns the live heartbeat for an instance
func (r *InMemoryRegistry) Get(ctx context.Context, instanceID string) (*registry.Heartbeat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[instanceID]
	if !ok || !r.now().Before(e.expiresAt) {
		return nil, fmt.Errorf("%w: %s", registry.ErrNotFound, instanceID)
	}

	hb := e.hb
	return &hb, nil
}

// List returns all live heartbeats ordered by instance id
func (r *InMemoryRegistry) List(ctx context.Context) ([]registry.Heartbeat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]registry.Heartbeat, 0, len(r.entries))
	for id, e := range r.entries {
		if !now.Before(e.expiresAt) {
			delete(r.entries, id)
			continue
		}
		out = append(out, e.hb)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].InstanceID < out[j].InstanceID })
	return out, nil
}

// Delete removes an instance
func (r *InMemoryRegistry) Delete(ctx context.Context, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.entries, instanceID)
	return nil
}

// Close clears the registry
func (r *InMemoryRegistry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]entry)
	return nil
}
