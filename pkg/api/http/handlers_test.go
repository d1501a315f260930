package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tattva/tattva/internal/ephemeris"
	promcollector "github.com/tattva/tattva/pkg/adapters/metrics/prometheus"
)

func setupServer(t *testing.T) (*Server, *prometheus.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	reg := prometheus.NewRegistry()
	s := NewServer(&Config{
		Version:        "1.0.0",
		BuildID:        "build-42",
		Workers:        2,
		AllowedOrigins: []string{"*"},
		Metrics:        promcollector.NewCollector(reg),
		Gatherer:       reg,
		Logger:         zaptest.NewLogger(t),
	})
	return s, reg
}

func stageDataset(t *testing.T) (*ephemeris.Dataset, string) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sepl_18.se1"), []byte("planets"), 0o644))
	ds, err := ephemeris.Load(dir, nil)
	require.NoError(t, err)
	return ds, dir
}

func get(s *Server, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealthBeforeReadyIsUnavailable(t *testing.T) {
	s, _ := setupServer(t)

	w := get(s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "starting", resp["status"])

	ready, checksum := s.Readiness()
	assert.False(t, ready)
	assert.Empty(t, checksum)
}

func TestHealthAfterReady(t *testing.T) {
	s, _ := setupServer(t)
	ds, dir := stageDataset(t)
	s.MarkReady(ds)

	w := get(s, http.MethodGet, "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ServiceName, resp.Service)
	assert.Equal(t, "1.0.0", resp.Version)
	require.NotNil(t, resp.BuildID)
	assert.Equal(t, "build-42", *resp.BuildID)
	assert.Nil(t, resp.Environment)
	assert.Equal(t, 2, resp.Workers)
	assert.Equal(t, dir, resp.Ephemeris.Path)
	assert.Equal(t, 1, resp.Ephemeris.Files)
	assert.Equal(t, int64(len("planets")), resp.Ephemeris.Bytes)
	assert.Equal(t, ds.Checksum(), resp.Ephemeris.Checksum)

	ready, checksum := s.Readiness()
	assert.True(t, ready)
	assert.Equal(t, ds.Checksum(), checksum)
}

func TestHealthFailsWhenDataDisappears(t *testing.T) {
	s, _ := setupServer(t)
	ds, dir := stageDataset(t)
	s.MarkReady(ds)

	require.NoError(t, os.Remove(filepath.Join(dir, "sepl_18.se1")))

	w := get(s, http.MethodGet, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "unhealthy", resp["status"])
	assert.Contains(t, resp["error"], "sepl_18.se1")
}

func TestHealthHead(t *testing.T) {
	s, _ := setupServer(t)

	assert.Equal(t, http.StatusServiceUnavailable, get(s, http.MethodHead, "/health").Code)

	ds, _ := stageDataset(t)
	s.MarkReady(ds)
	assert.Equal(t, http.StatusOK, get(s, http.MethodHead, "/health").Code)
}

func TestMarkNotReady(t *testing.T) {
	s, _ := setupServer(t)
	ds, _ := stageDataset(t)
	s.MarkReady(ds)
	require.True(t, s.Ready())

	s.MarkNotReady()
	assert.False(t, s.Ready())
	assert.Equal(t, http.StatusServiceUnavailable, get(s, http.MethodGet, "/health").Code)
}

func TestRoot(t *testing.T) {
	s, _ := setupServer(t)

	w := get(s, http.MethodGet, "/")
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "starting", resp["status"])
	assert.Equal(t, "/health", resp["health"])
	assert.Equal(t, "build-42", resp["build_id"])
	assert.Nil(t, resp["environment"])
}

func TestNotFound(t *testing.T) {
	s, _ := setupServer(t)

	w := get(s, http.MethodGet, "/api/v1/chart/planets")
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
}

func TestRequestIDIsPropagated(t *testing.T) {
	s, _ := setupServer(t)

	w := get(s, http.MethodGet, "/")
	assert.Len(t, w.Header().Get(headerRequestID), 36)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(headerRequestID, "abc-123")
	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(headerRequestID))
}

func TestCORSPreflight(t *testing.T) {
	s, _ := setupServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/health", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSAllowList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(corsMiddleware([]string{"https://a.example.com"}))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://a.example.com")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "https://a.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsEndpoint(t *testing.T) {
	s, _ := setupServer(t)
	ds, _ := stageDataset(t)
	s.MarkReady(ds)

	get(s, http.MethodGet, "/health")

	w := get(s, http.MethodGet, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)

	body := w.Body.String()
	assert.True(t, strings.Contains(body, `tattva_http_requests_total{method="GET",path="/health",status="200"} 1`), body)
	assert.Contains(t, body, "tattva_ready 1")
	assert.Contains(t, body, "tattva_ephemeris_files 1")
}
