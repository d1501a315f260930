package workers

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tattva/tattva/pkg/adapters/registry"
)

// MetricsRecorder receives worker pool metrics
type MetricsRecorder interface {
	RecordWorkerPoolStatus(idle, busy, stopped int)
	RecordHeartbeat(err error)
}

// HeartbeatPublisher stores instance heartbeats
type HeartbeatPublisher interface {
	Publish(ctx context.Context, hb registry.Heartbeat) error
	Delete(ctx context.Context, instanceID string) error
}

// Identity describes the running instance in heartbeats
type Identity struct {
	InstanceID string
	Hostname   string
	Version    string
	StartedAt  time.Time
}

// ReadinessFunc reports whether startup has completed and which dataset is loaded
type ReadinessFunc func() (ready bool, datasetChecksum string)

// Config holds worker pool configuration
type Config struct {
	Size                int
	Handler             http.Handler
	ReadHeaderTimeout   time.Duration
	IdleTimeout         time.Duration
	HealthCheckInterval time.Duration
	Metrics             MetricsRecorder
	Publisher           HeartbeatPublisher
	Identity            Identity
	Readiness           ReadinessFunc
	Logger              *zap.Logger
}

// Pool runs a fixed number of HTTP server workers that accept connections
// from one shared listener. Workers do not coordinate with each other.
type Pool struct {
	size    int
	handler http.Handler
	cfg     Config
	logger  *zap.Logger
	metrics MetricsRecorder
	health  *HealthMonitor

	workers      []*worker
	wg           sync.WaitGroup
	errCh        chan error
	started      atomic.Bool
	shuttingDown atomic.Bool
}

// worker represents a single HTTP server instance
type worker struct {
	id     string
	pool   *Pool
	server *http.Server

	mu          sync.RWMutex
	status      WorkerStatus
	conns       map[net.Conn]http.ConnState
	active      int
	requests    uint64
	lastRequest time.Time
}

// WorkerStatus represents worker status
type WorkerStatus string

const (
	WorkerStatusIdle    WorkerStatus = "idle"
	WorkerStatusBusy    WorkerStatus = "busy"
	WorkerStatusStopped WorkerStatus = "stopped"
)

// NewPool creates a new worker pool
func NewPool(cfg Config) (*Pool, error) {
	if cfg.Size < 1 {
		return nil, fmt.Errorf("worker pool size must be at least 1, got %d", cfg.Size)
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("worker pool needs a handler")
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	pool := &Pool{
		size:    cfg.Size,
		handler: cfg.Handler,
		cfg:     cfg,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
		workers: make([]*worker, cfg.Size),
		errCh:   make(chan error, cfg.Size),
	}

	if cfg.HealthCheckInterval > 0 {
		pool.health = NewHealthMonitor(pool, cfg.HealthCheckInterval, cfg.Logger)
	}

	return pool, nil
}

// Start starts the workers on ln. The pool takes ownership of ln.
func (p *Pool) Start(ln net.Listener) error {
	if !p.started.CompareAndSwap(false, true) {
		return fmt.Errorf("worker pool already started")
	}

	p.logger.Info("starting worker pool",
		zap.Int("size", p.size),
		zap.String("addr", ln.Addr().String()))

	shared := &onceCloseListener{Listener: ln}

	for i := 0; i < p.size; i++ {
		w := &worker{
			id:     fmt.Sprintf("worker-%d", i),
			pool:   p,
			status: WorkerStatusIdle,
			conns:  make(map[net.Conn]http.ConnState),
		}
		w.server = &http.Server{
			Handler:           p.handler,
			ReadHeaderTimeout: p.cfg.ReadHeaderTimeout,
			IdleTimeout:       p.cfg.IdleTimeout,
			ConnState:         w.trackConn,
			ErrorLog:          zap.NewStdLog(p.logger.With(zap.String("worker_id", w.id))),
		}
		p.workers[i] = w

		p.wg.Add(1)
		go w.run(shared)
	}

	if p.health != nil {
		p.health.Start()
	}

	p.logger.Info("worker pool started", zap.Int("workers", p.size))
	return nil
}

// Err delivers errors from workers that stopped unexpectedly
func (p *Pool) Err() <-chan error {
	return p.errCh
}

// Shutdown gracefully shuts down all workers
func (p *Pool) Shutdown(ctx context.Context) error {
	p.logger.Info("shutting down worker pool")
	p.shuttingDown.Store(true)

	if p.health != nil {
		p.health.Stop()
	}

	if !p.started.Load() {
		return nil
	}

	var mu sync.Mutex
	var errs []error
	var shutdowns sync.WaitGroup
	for _, w := range p.workers {
		shutdowns.Add(1)
		go func(w *worker) {
			defer shutdowns.Done()
			if err := w.server.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("%s: %w", w.id, err))
				mu.Unlock()
			}
		}(w)
	}
	shutdowns.Wait()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("shutdown timeout: %w", ctx.Err())
	}

	if p.health != nil {
		p.health.deregister()
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}

	p.logger.Info("worker pool shut down complete")
	return nil
}

// Size returns the configured worker count
func (p *Pool) Size() int {
	return p.size
}

// GetStatus returns the status of all workers
func (p *Pool) GetStatus() map[string]WorkerStatus {
	status := make(map[string]WorkerStatus, p.size)
	for i, w := range p.workers {
		if w == nil {
			status[fmt.Sprintf("worker-%d", i)] = WorkerStatusStopped
			continue
		}
		w.mu.RLock()
		status[w.id] = w.status
		w.mu.RUnlock()
	}
	return status
}

// Requests returns the number of requests each worker has started serving
func (p *Pool) Requests() map[string]uint64 {
	out := make(map[string]uint64, p.size)
	for _, w := range p.workers {
		if w == nil {
			continue
		}
		w.mu.RLock()
		out[w.id] = w.requests
		w.mu.RUnlock()
	}
	return out
}

// run is the main worker loop
func (w *worker) run(ln net.Listener) {
	defer w.pool.wg.Done()

	w.pool.logger.Info("worker started", zap.String("worker_id", w.id))

	err := w.server.Serve(ln)

	w.mu.Lock()
	w.status = WorkerStatusStopped
	w.mu.Unlock()

	// a sibling closing the shared listener during shutdown is expected
	if err != nil && !errors.Is(err, http.ErrServerClosed) && !w.pool.shuttingDown.Load() {
		w.pool.logger.Error("worker stopped unexpectedly",
			zap.String("worker_id", w.id),
			zap.Error(err))
		select {
		case w.pool.errCh <- fmt.Errorf("%s: %w", w.id, err):
		default:
		}
		return
	}

	w.pool.logger.Info("worker stopped", zap.String("worker_id", w.id))
}

// trackConn follows connection states to tell busy workers from idle ones
func (w *worker) trackConn(c net.Conn, state http.ConnState) {
	w.mu.Lock()
	defer w.mu.Unlock()

	prev, known := w.conns[c]
	wasActive := known && prev == http.StateActive

	switch state {
	case http.StateActive:
		if !wasActive {
			w.active++
		}
		w.requests++
		w.lastRequest = time.Now()
		w.conns[c] = state
	case http.StateClosed, http.StateHijacked:
		if wasActive {
			w.active--
		}
		delete(w.conns, c)
	default:
		if wasActive {
			w.active--
		}
		w.conns[c] = state
	}

	if w.status == WorkerStatusStopped {
		return
	}
	if w.active > 0 {
		w.status = WorkerStatusBusy
	} else {
		w.status = WorkerStatusIdle
	}
}

// onceCloseListener lets every worker close the shared listener safely
type onceCloseListener struct {
	net.Listener
	once     sync.Once
	closeErr error
}

func (l *onceCloseListener) Close() error {
	l.once.Do(func() {
		l.closeErr = l.Listener.Close()
	})
	return l.closeErr
}
