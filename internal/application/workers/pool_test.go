package workers

import (
	"context"
	"io"
	"net"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tattva/tattva/pkg/adapters/registry"
	"github.com/tattva/tattva/pkg/adapters/registry/memory"
)

type fakeMetrics struct {
	mu         sync.Mutex
	idle       int
	busy       int
	stopped    int
	heartbeats int
}

func (f *fakeMetrics) RecordWorkerPoolStatus(idle, busy, stopped int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.idle, f.busy, f.stopped = idle, busy, stopped
}

func (f *fakeMetrics) RecordHeartbeat(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		f.heartbeats++
	}
}

func listen(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func countStatus(statuses map[string]WorkerStatus, want WorkerStatus) int {
	n := 0
	for _, s := range statuses {
		if s == want {
			n++
		}
	}
	return n
}

func TestNewPoolValidates(t *testing.T) {
	_, err := NewPool(Config{Size: 0, Handler: http.NotFoundHandler()})
	assert.Error(t, err)

	_, err = NewPool(Config{Size: 1})
	assert.Error(t, err)
}

func TestPoolServesOnSharedListener(t *testing.T) {
	pool, err := NewPool(Config{
		Size: 3,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = io.WriteString(w, "ok")
		}),
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	ln := listen(t)
	require.NoError(t, pool.Start(ln))
	assert.Error(t, pool.Start(ln), "second start must fail")

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	for i := 0; i < 20; i++ {
		resp, err := client.Get("http://" + ln.Addr().String() + "/")
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, "ok", string(body))
	}

	var total uint64
	for _, n := range pool.Requests() {
		total += n
	}
	assert.Equal(t, uint64(20), total)
	assert.Len(t, pool.GetStatus(), 3)
	assert.Equal(t, 3, pool.Size())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))

	assert.Equal(t, 3, countStatus(pool.GetStatus(), WorkerStatusStopped))

	select {
	case err := <-pool.Err():
		t.Fatalf("unexpected worker error: %v", err)
	default:
	}
}

func TestPoolReportsBusyWorker(t *testing.T) {
	entered := make(chan struct{})
	release := make(chan struct{})

	pool, err := NewPool(Config{
		Size: 2,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			close(entered)
			<-release
		}),
		Logger: zaptest.NewLogger(t),
	})
	require.NoError(t, err)

	ln := listen(t)
	require.NoError(t, pool.Start(ln))

	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := http.Get("http://" + ln.Addr().String() + "/")
		if err == nil {
			resp.Body.Close()
		}
	}()

	<-entered
	statuses := pool.GetStatus()
	assert.Equal(t, 1, countStatus(statuses, WorkerStatusBusy))
	assert.Equal(t, 1, countStatus(statuses, WorkerStatusIdle))

	close(release)
	<-done

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
}

func TestPoolShutdownWithoutStart(t *testing.T) {
	pool, err := NewPool(Config{Size: 1, Handler: http.NotFoundHandler()})
	require.NoError(t, err)
	assert.NoError(t, pool.Shutdown(context.Background()))
}

func TestHealthMonitorPublishesHeartbeat(t *testing.T) {
	reg := memory.NewInMemoryRegistry(time.Minute)
	metrics := &fakeMetrics{}
	started := time.Now()

	pool, err := NewPool(Config{
		Size:                2,
		Handler:             http.NotFoundHandler(),
		HealthCheckInterval: time.Hour,
		Metrics:             metrics,
		Publisher:           reg,
		Identity: Identity{
			InstanceID: "instance-1",
			Hostname:   "host",
			Version:    "1.2.3",
			StartedAt:  started,
		},
		Readiness: func() (bool, string) { return true, "abc" },
		Logger:    zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	require.NoError(t, pool.Start(listen(t)))

	// the monitor checks once immediately on start
	require.Eventually(t, func() bool {
		metrics.mu.Lock()
		defer metrics.mu.Unlock()
		return metrics.heartbeats == 1
	}, 2*time.Second, 10*time.Millisecond)

	hb, err := reg.Get(context.Background(), "instance-1")
	require.NoError(t, err)

	assert.True(t, hb.Ready)
	assert.Equal(t, "abc", hb.EphemerisChecksum)
	assert.Equal(t, 2, hb.TotalWorkers)
	assert.Equal(t, "1.2.3", hb.Version)

	metrics.mu.Lock()
	assert.Equal(t, 1, metrics.heartbeats)
	assert.Equal(t, 2, metrics.idle+metrics.busy)
	metrics.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))

	_, err = reg.Get(context.Background(), "instance-1")
	assert.ErrorIs(t, err, registry.ErrNotFound)
}

func TestHealthMonitorStatus(t *testing.T) {
	pool, err := NewPool(Config{Size: 2, Handler: http.NotFoundHandler(), Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)

	h := NewHealthMonitor(pool, time.Hour, zaptest.NewLogger(t))

	// workers that were never started count as stopped
	status := h.GetStatus()
	assert.Equal(t, 2, status.StoppedWorkers)
	assert.False(t, h.IsHealthy())

	require.NoError(t, pool.Start(listen(t)))
	assert.True(t, h.IsHealthy())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, pool.Shutdown(ctx))
	assert.False(t, h.IsHealthy())
}
