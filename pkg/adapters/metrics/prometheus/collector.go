package prometheus

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var healthStates = []string{"starting", "probing", "healthy", "unhealthy"}

// Collector records service metrics on a Prometheus registry
type Collector struct {
	httpRequests      *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec
	workerPoolIdle    prometheus.Gauge
	workerPoolBusy    prometheus.Gauge
	workerPoolStopped prometheus.Gauge
	ready             prometheus.Gauge
	ephemerisFiles    prometheus.Gauge
	ephemerisBytes    prometheus.Gauge
	probes            *prometheus.CounterVec
	probeDuration     prometheus.Histogram
	healthState       *prometheus.GaugeVec
	heartbeats        *prometheus.CounterVec
}

// NewCollector creates a collector registered on reg
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tattva_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tattva_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		workerPoolIdle: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tattva_worker_pool_idle",
				Help: "Number of idle workers",
			},
		),
		workerPoolBusy: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tattva_worker_pool_busy",
				Help: "Number of busy workers",
			},
		),
		workerPoolStopped: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tattva_worker_pool_stopped",
				Help: "Number of stopped workers",
			},
		),
		ready: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tattva_ready",
				Help: "1 once startup has completed",
			},
		),
		ephemerisFiles: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tattva_ephemeris_files",
				Help: "Number of files in the ephemeris data directory",
			},
		),
		ephemerisBytes: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "tattva_ephemeris_bytes",
				Help: "Total size of the ephemeris data directory in bytes",
			},
		),
		probes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tattva_health_probes_total",
				Help: "Total number of health probes by result",
			},
			[]string{"result"},
		),
		probeDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "tattva_health_probe_duration_seconds",
				Help:    "Health probe duration in seconds",
				Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
			},
		),
		healthState: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tattva_health_state",
				Help: "Current health classification, 1 for the active state",
			},
			[]string{"state"},
		),
		heartbeats: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tattva_heartbeats_total",
				Help: "Instance heartbeats published to the registry",
			},
			[]string{"result"},
		),
	}
}

// ObserveHTTPRequest records a served request
func (c *Collector) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordWorkerPoolStatus records worker pool status
func (c *Collector) RecordWorkerPoolStatus(idle, busy, stopped int) {
	c.workerPoolIdle.Set(float64(idle))
	c.workerPoolBusy.Set(float64(busy))
	c.workerPoolStopped.Set(float64(stopped))
}

// SetReady records whether startup has completed
func (c *Collector) SetReady(ready bool) {
	if ready {
		c.ready.Set(1)
		return
	}
	c.ready.Set(0)
}

// SetEphemeris records the size of the loaded dataset
func (c *Collector) SetEphemeris(files int, bytes int64) {
	c.ephemerisFiles.Set(float64(files))
	c.ephemerisBytes.Set(float64(bytes))
}

// RecordProbe records a health probe result
func (c *Collector) RecordProbe(ok bool, duration time.Duration) {
	result := "failure"
	if ok {
		result = "success"
	}
	c.probes.WithLabelValues(result).Inc()
	c.probeDuration.Observe(duration.Seconds())
}

// RecordHealthState marks state as the active classification
func (c *Collector) RecordHealthState(state string) {
	for _, s := range healthStates {
		v := 0.0
		if s == state {
			v = 1
		}
		c.healthState.WithLabelValues(s).Set(v)
	}
}

// RecordHeartbeat records a registry publish attempt
func (c *Collector) RecordHeartbeat(err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	c.heartbeats.WithLabelValues(result).Inc()
}
