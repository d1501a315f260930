package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/tattva/tattva/internal/application/health"
	"github.com/tattva/tattva/internal/config"
)

// probeFlags registers the flags shared by healthcheck and monitor
func probeFlags(fs *flag.FlagSet) (url *string, timeout *time.Duration) {
	url = fs.String("url", "", "health endpoint (default http://127.0.0.1:$PORT/health)")
	timeout = fs.Duration("timeout", 0, "probe timeout (overrides HEALTHCHECK_TIMEOUT)")
	return url, timeout
}

func loadProbeConfig(url *string, timeout *time.Duration) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if *url != "" {
		cfg.HealthCheck.URL = *url
	}
	if *timeout > 0 {
		cfg.HealthCheck.Timeout = *timeout
	}
	return cfg, cfg.Validate()
}

func runHealthcheck(args []string) int {
	fs := flag.NewFlagSet("healthcheck", flag.ContinueOnError)
	url, timeout := probeFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := loadProbeConfig(url, timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	return healthcheck(context.Background(), health.NewHTTPProber(cfg.ProbeURL()), cfg.HealthCheck.Timeout, os.Stdout)
}

// healthcheck runs a single bounded probe and maps it to an exit code
func healthcheck(ctx context.Context, prober health.Prober, timeout time.Duration, out io.Writer) int {
	result := health.CheckOnce(ctx, prober, timeout)
	if !result.OK {
		reason := fmt.Sprintf("status %d", result.Status)
		if result.Err != nil {
			reason = result.Err.Error()
		}
		fmt.Fprintf(out, "unhealthy: %s (%s)\n", reason, result.Duration.Round(time.Millisecond))
		return 1
	}

	fmt.Fprintf(out, "healthy: status %d (%s)\n", result.Status, result.Duration.Round(time.Millisecond))
	return 0
}

func runMonitor(args []string) int {
	fs := flag.NewFlagSet("monitor", flag.ContinueOnError)
	url, timeout := probeFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := loadProbeConfig(url, timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return monitor(ctx, cfg.HealthPolicy(), health.NewHTTPProber(cfg.ProbeURL()), logger)
}

// monitor classifies the target until it turns unhealthy or ctx ends
func monitor(ctx context.Context, policy health.Policy, prober health.Prober, logger *zap.Logger) int {
	m := health.NewMonitor(policy, prober, time.Now(), logger, nil)

	err := m.Run(ctx)
	switch {
	case errors.Is(err, health.ErrUnhealthy):
		snap := m.Tracker().Snapshot()
		logger.Error("target is unhealthy",
			zap.Int("failing_streak", snap.FailingStreak),
			zap.String("last_error", snap.LastError))
		return 1
	case err != nil && ctx.Err() == nil:
		logger.Error("monitor failed", zap.Error(err))
		return 1
	}
	return 0
}

func runInstances(args []string) int {
	fs := flag.NewFlagSet("instances", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}
	if cfg.Redis.Addr == "" {
		fmt.Fprintln(os.Stderr, "REDIS_ADDR is required to list instances")
		return 1
	}

	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.HealthCheck.Timeout)
	defer cancel()

	instances, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open instance registry", zap.Error(err))
		return 1
	}
	defer instances.Close()

	heartbeats, err := instances.List(ctx)
	if err != nil {
		logger.Error("failed to list instances", zap.Error(err))
		return 1
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(heartbeats); err != nil {
		logger.Error("failed to write instances", zap.Error(err))
		return 1
	}
	return 0
}
