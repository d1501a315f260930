package workers

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tattva/tattva/pkg/adapters/registry"
)

// HealthMonitor monitors worker health and publishes instance heartbeats
type HealthMonitor struct {
	pool     *Pool
	interval time.Duration
	logger   *zap.Logger

	mu      sync.RWMutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// HealthStatus represents the health status of the worker pool
type HealthStatus struct {
	TotalWorkers   int
	IdleWorkers    int
	BusyWorkers    int
	StoppedWorkers int
	Healthy        bool
	Timestamp      time.Time
}

// NewHealthMonitor creates a new health monitor
func NewHealthMonitor(pool *Pool, interval time.Duration, logger *zap.Logger) *HealthMonitor {
	return &HealthMonitor{
		pool:     pool,
		interval: interval,
		logger:   logger,
	}
}

// Start starts the health monitor
func (h *HealthMonitor) Start() {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return
	}
	h.running = true
	h.stopCh = make(chan struct{})
	h.doneCh = make(chan struct{})
	h.mu.Unlock()

	go h.run()
}

// Stop stops the health monitor and waits for the loop to exit
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return
	}
	h.running = false
	stopCh, doneCh := h.stopCh, h.doneCh
	h.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// run is the main health monitoring loop
func (h *HealthMonitor) run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.checkHealth()

	for {
		select {
		case <-h.stopCh:
			return
		case <-ticker.C:
			h.checkHealth()
		}
	}
}

// checkHealth checks worker health, logs status and publishes a heartbeat
func (h *HealthMonitor) checkHealth() {
	status := h.GetStatus()

	h.logger.Debug("worker pool health check",
		zap.Int("total", status.TotalWorkers),
		zap.Int("idle", status.IdleWorkers),
		zap.Int("busy", status.BusyWorkers),
		zap.Int("stopped", status.StoppedWorkers),
		zap.Bool("healthy", status.Healthy))

	if h.pool.metrics != nil {
		h.pool.metrics.RecordWorkerPoolStatus(
			status.IdleWorkers,
			status.BusyWorkers,
			status.StoppedWorkers,
		)
	}

	if !status.Healthy {
		h.logger.Warn("worker pool is unhealthy",
			zap.Int("stopped", status.StoppedWorkers),
			zap.Int("total", status.TotalWorkers))
	}

	if status.TotalWorkers > 0 && status.BusyWorkers == status.TotalWorkers {
		h.logger.Warn("all workers are busy - consider raising WORKERS",
			zap.Int("total", status.TotalWorkers))
	}

	h.publish(status)
}

func (h *HealthMonitor) publish(status *HealthStatus) {
	pub := h.pool.cfg.Publisher
	if pub == nil {
		return
	}

	id := h.pool.cfg.Identity
	hb := registry.Heartbeat{
		InstanceID:     id.InstanceID,
		Hostname:       id.Hostname,
		Version:        id.Version,
		TotalWorkers:   status.TotalWorkers,
		IdleWorkers:    status.IdleWorkers,
		BusyWorkers:    status.BusyWorkers,
		StoppedWorkers: status.StoppedWorkers,
		StartedAt:      id.StartedAt,
		Timestamp:      status.Timestamp,
	}
	if h.pool.cfg.Readiness != nil {
		hb.Ready, hb.EphemerisChecksum = h.pool.cfg.Readiness()
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.interval)
	defer cancel()

	err := pub.Publish(ctx, hb)
	if h.pool.metrics != nil {
		h.pool.metrics.RecordHeartbeat(err)
	}
	if err != nil {
		h.logger.Warn("failed to publish heartbeat", zap.Error(err))
	}
}

// deregister removes the instance heartbeat after shutdown
func (h *HealthMonitor) deregister() {
	pub := h.pool.cfg.Publisher
	if pub == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.interval)
	defer cancel()

	if err := pub.Delete(ctx, h.pool.cfg.Identity.InstanceID); err != nil {
		h.logger.Warn("failed to remove heartbeat", zap.Error(err))
	}
}

// GetStatus returns the current health status
func (h *HealthMonitor) GetStatus() *HealthStatus {
	workerStatuses := h.pool.GetStatus()

	var idle, busy, stopped int
	for _, status := range workerStatuses {
		switch status {
		case WorkerStatusIdle:
			idle++
		case WorkerStatusBusy:
			busy++
		case WorkerStatusStopped:
			stopped++
		}
	}

	total := len(workerStatuses)
	healthy := total > 0 && stopped == 0

	return &HealthStatus{
		TotalWorkers:   total,
		IdleWorkers:    idle,
		BusyWorkers:    busy,
		StoppedWorkers: stopped,
		Healthy:        healthy,
		Timestamp:      time.Now(),
	}
}

// IsHealthy returns true if the worker pool is healthy
func (h *HealthMonitor) IsHealthy() bool {
	status := h.GetStatus()
	return status.Healthy
}
