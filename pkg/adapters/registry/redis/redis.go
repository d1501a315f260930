package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tattva/tattva/pkg/adapters/registry"
)

const (
	keyPrefix = "tattva:instance:"
	scanCount = 100
)

// InstanceRegistry implements registry.Registry using Redis
type InstanceRegistry struct {
	client redis.UniversalClient
	logger *zap.Logger
	ttl    time.Duration
}

// NewInstanceRegistry creates a new Redis instance registry
func NewInstanceRegistry(client redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *InstanceRegistry {
	return &InstanceRegistry{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// Publish stores a heartbeat with the registry TTL
func (r *InstanceRegistry) Publish(ctx context.Context, hb registry.Heartbeat) error {
	if hb.InstanceID == "" {
		return fmt.Errorf("heartbeat has no instance id")
	}

	data, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("failed to marshal heartbeat: %w", err)
	}

	if err := r.client.Set(ctx, instanceKey(hb.InstanceID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to publish heartbeat: %w", err)
	}

	r.logger.Debug("heartbeat published",
		zap.String("instance_id", hb.InstanceID),
		zap.Bool("ready", hb.Ready))

	return nil
}

// Get retrieves the heartbeat for an instance
func (r *InstanceRegistry) Get(ctx context.Context, instanceID string) (*registry.Heartbeat, error) {
	data, err := r.client.Get(ctx, instanceKey(instanceID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", registry.ErrNotFound, instanceID)
		}
		return nil, fmt.Errorf("failed to get heartbeat: %w", err)
	}

	var hb registry.Heartbeat
	if err := json.Unmarshal(data, &hb); err != nil {
		return nil, fmt.Errorf("failed to unmarshal heartbeat: %w", err)
	}

	return &hb, nil
}

// List returns all live heartbeats ordered by instance id. Each SCAN page
// is read back with one MGET.
func (r *InstanceRegistry) List(ctx context.Context) ([]registry.Heartbeat, error) {
	var cursor uint64
	heartbeats := make([]registry.Heartbeat, 0)

	for {
		var keys []string
		var err error

		keys, cursor, err = r.client.Scan(ctx, cursor, keyPrefix+"*", scanCount).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		if len(keys) > 0 {
			values, err := r.client.MGet(ctx, keys...).Result()
			if err != nil {
				return nil, fmt.Errorf("failed to read heartbeats: %w", err)
			}
			heartbeats = append(heartbeats, r.decode(keys, values)...)
		}

		if cursor == 0 {
			break
		}
	}

	sort.Slice(heartbeats, func(i, j int) bool { return heartbeats[i].InstanceID < heartbeats[j].InstanceID })
	return heartbeats, nil
}

// decode converts MGET values, skipping keys that expired after SCAN
func (r *InstanceRegistry) decode(keys []string, values []interface{}) []registry.Heartbeat {
	out := make([]registry.Heartbeat, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// nil: expired between SCAN and MGET
			continue
		}

		var hb registry.Heartbeat
		if err := json.Unmarshal([]byte(raw), &hb); err != nil {
			r.logger.Warn("skipping unreadable heartbeat", zap.String("key", keys[i]), zap.Error(err))
			continue
		}
		out = append(out, hb)
	}
	return out
}

// Delete removes an instance heartbeat
func (r *InstanceRegistry) Delete(ctx context.Context, instanceID string) error {
	if err := r.client.Del(ctx, instanceKey(instanceID)).Err(); err != nil {
		return fmt.Errorf("failed to delete heartbeat: %w", err)
	}
	return nil
}

// Close closes the underlying client
func (r *InstanceRegistry) Close() error {
	return r.client.Close()
}

// instanceKey returns the Redis key for an instance heartbeat
func instanceKey(instanceID string) string {
	return keyPrefix + instanceID
}
