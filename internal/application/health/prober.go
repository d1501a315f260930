package health

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Prober performs a single liveness probe
type Prober interface {
	Probe(ctx context.Context) Result
}

// ProberFunc adapts a function to the Prober interface
type ProberFunc func(ctx context.Context) Result

// Probe calls f(ctx)
func (f ProberFunc) Probe(ctx context.Context) Result {
	return f(ctx)
}

// HTTPProber probes an HTTP endpoint with GET. Any 2xx status is a success.
type HTTPProber struct {
	URL    string
	Client *http.Client
}

// NewHTTPProber creates a prober for the given URL
func NewHTTPProber(url string) *HTTPProber {
	return &HTTPProber{
		URL: url,
		Client: &http.Client{
			// probes must not follow a redirect into another service
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Probe issues the request. The deadline comes from ctx.
func (p *HTTPProber) Probe(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return Result{Err: fmt.Errorf("failed to build probe request: %w", err), Duration: time.Since(start)}
	}
	req.Header.Set("User-Agent", "tattva-healthcheck")

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return Result{Err: fmt.Errorf("probe request failed: %w", err), Duration: time.Since(start)}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	return Result{
		OK:       resp.StatusCode >= 200 && resp.StatusCode < 300,
		Status:   resp.StatusCode,
		Duration: time.Since(start),
	}
}

// CheckOnce runs one probe bounded by timeout. A probe that does not return
// in time is reported as failed even if the prober ignores its context.
func CheckOnce(ctx context.Context, prober Prober, timeout time.Duration) Result {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	done := make(chan Result, 1)
	go func() {
		done <- prober.Probe(ctx)
	}()

	select {
	case r := <-done:
		if r.Duration == 0 {
			r.Duration = time.Since(start)
		}
		return r
	case <-ctx.Done():
		return Result{
			Err:      fmt.Errorf("probe timed out after %s: %w", timeout, ctx.Err()),
			Duration: time.Since(start),
		}
	}
}
