package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail represents error details
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// EphemerisInfo summarizes the loaded dataset in health responses
type EphemerisInfo struct {
	Path     string `json:"path"`
	Files    int    `json:"files"`
	Bytes    int64  `json:"bytes"`
	Checksum string `json:"checksum"`
}

// HealthResponse is the body of a successful /health
type HealthResponse struct {
	Status        string        `json:"status"`
	Service       string        `json:"service"`
	Version       string        `json:"version"`
	BuildID       *string       `json:"build_id"`
	Environment   *string       `json:"environment"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	Workers       int           `json:"workers"`
	Ephemeris     EphemerisInfo `json:"ephemeris"`
}

// handleHealth handles liveness probes. It fails until startup has completed
// and whenever the ephemeris files are no longer in place.
func (s *Server) handleHealth(c *gin.Context) {
	ds := s.dataset.Load()
	if !s.ready.Load() || ds == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "starting",
			"service": ServiceName,
			"version": s.cfg.Version,
		})
		return
	}

	if err := ds.Verify(); err != nil {
		s.logger.Error("ephemeris data unavailable", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "unhealthy",
			"service": ServiceName,
			"version": s.cfg.Version,
			"error":   err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, HealthResponse{
		Status:        "healthy",
		Service:       ServiceName,
		Version:       s.cfg.Version,
		BuildID:       nullable(s.cfg.BuildID),
		Environment:   nullable(s.cfg.Environment),
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Workers:       s.cfg.Workers,
		Ephemeris: EphemerisInfo{
			Path:     ds.Path(),
			Files:    len(ds.Files()),
			Bytes:    ds.TotalBytes(),
			Checksum: ds.Checksum(),
		},
	})
}

// handleRoot returns service information
func (s *Server) handleRoot(c *gin.Context) {
	status := "starting"
	if s.ready.Load() {
		status = "running"
	}

	c.JSON(http.StatusOK, gin.H{
		"service":     "Tattva Vedic Astrology API",
		"status":      status,
		"version":     s.cfg.Version,
		"build_id":    nullable(s.cfg.BuildID),
		"environment": nullable(s.cfg.Environment),
		"health":      "/health",
	})
}

func (s *Server) handleNotFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, ErrorResponse{
		Error: ErrorDetail{
			Code:    "NOT_FOUND",
			Message: "No route for " + c.Request.Method + " " + c.Request.URL.Path,
		},
	})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
