package http

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/tattva/tattva/internal/ephemeris"
)

// ServiceName is reported by the health and info endpoints
const ServiceName = "Tattva API"

// RequestMetrics receives per-request metrics
type RequestMetrics interface {
	ObserveHTTPRequest(method, path string, status int, duration time.Duration)
	SetReady(ready bool)
	SetEphemeris(files int, bytes int64)
}

// Server holds the HTTP routes of the service. Listening is done by the
// worker pool, which serves Handler().
type Server struct {
	router  *gin.Engine
	logger  *zap.Logger
	metrics RequestMetrics
	cfg     Config

	startedAt time.Time
	ready     atomic.Bool
	dataset   atomic.Pointer[ephemeris.Dataset]
}

// Config holds HTTP server configuration
type Config struct {
	Version        string
	BuildID        string
	Environment    string
	Workers        int
	AllowedOrigins []string
	Metrics        RequestMetrics
	Gatherer       prometheus.Gatherer
	Logger         *zap.Logger
}

// NewServer creates a new HTTP server
func NewServer(cfg *Config) *Server {
	gin.SetMode(gin.ReleaseMode)

	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(corsMiddleware(cfg.AllowedOrigins))
	router.Use(requestLogger(logger))
	if cfg.Metrics != nil {
		router.Use(requestMetrics(cfg.Metrics))
	}

	s := &Server{
		router:    router,
		logger:    logger,
		metrics:   cfg.Metrics,
		cfg:       *cfg,
		startedAt: time.Now(),
	}

	s.setupRoutes()

	return s
}

// setupRoutes configures API routes
func (s *Server) setupRoutes() {
	s.router.GET("/", s.handleRoot)

	// Health check
	s.router.GET("/health", s.handleHealth)
	s.router.HEAD("/health", s.handleHealth)

	// Metrics
	if s.cfg.Gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	s.router.NoRoute(s.handleNotFound)
}

// Handler returns the HTTP handler for the worker pool
func (s *Server) Handler() http.Handler {
	return s.router
}

// MarkReady records the loaded dataset and lets /health succeed
func (s *Server) MarkReady(ds *ephemeris.Dataset) {
	s.dataset.Store(ds)
	s.ready.Store(true)

	if s.metrics != nil {
		s.metrics.SetReady(true)
		s.metrics.SetEphemeris(len(ds.Files()), ds.TotalBytes())
	}

	s.logger.Info("service ready",
		zap.String("ephemeris_path", ds.Path()),
		zap.String("ephemeris_checksum", ds.Checksum()),
		zap.Duration("startup", time.Since(s.startedAt)))
}

// MarkNotReady makes /health fail again, used while draining on shutdown
func (s *Server) MarkNotReady() {
	s.ready.Store(false)
	if s.metrics != nil {
		s.metrics.SetReady(false)
	}
}

// Ready reports whether startup has completed
func (s *Server) Ready() bool {
	return s.ready.Load()
}

// Readiness reports readiness and the loaded dataset checksum
func (s *Server) Readiness() (bool, string) {
	if !s.ready.Load() {
		return false, ""
	}
	if ds := s.dataset.Load(); ds != nil {
		return true, ds.Checksum()
	}
	return true, ""
}
