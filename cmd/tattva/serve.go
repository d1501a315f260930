package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tattva/tattva/internal/application/workers"
	"github.com/tattva/tattva/internal/config"
	"github.com/tattva/tattva/internal/ephemeris"
	promcollector "github.com/tattva/tattva/pkg/adapters/metrics/prometheus"
	"github.com/tattva/tattva/pkg/adapters/registry"
	"github.com/tattva/tattva/pkg/adapters/registry/memory"
	redisregistry "github.com/tattva/tattva/pkg/adapters/registry/redis"
	"github.com/tattva/tattva/pkg/api/grpc"
	"github.com/tattva/tattva/pkg/api/http"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	workerCount := fs.Int("workers", 0, "number of HTTP workers (overrides WORKERS)")
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
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "workers" {
			cfg.Workers = *workerCount
		}
	})
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		return 1
	}

	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, logger); err != nil {
		logger.Error("Tattva API stopped with error", zap.Error(err))
		return 1
	}
	return 0
}

// loadDataset is swapped in tests to hold startup between bind and ready
var loadDataset = ephemeris.Load

// serve runs the service until ctx is done or a worker fails. The listener
// is bound and answering 503 before the ephemeris data is loaded, so the
// container runtime sees a live port during startup.
func serve(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	launchedAt := time.Now()

	logger.Info("starting Tattva API",
		zap.String("version", cfg.Version),
		zap.String("build", Version),
		zap.String("build_time", BuildTime),
		zap.String("addr", cfg.HTTPAddr()),
		zap.Int("workers", cfg.Workers),
		zap.String("ephemeris_path", cfg.Ephemeris.Path))

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsCollector := promcollector.NewCollector(promRegistry)

	instances, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer instances.Close()

	identity := workers.Identity{
		InstanceID: uuid.New().String(),
		Hostname:   hostnameOr(os.Hostname, logger),
		Version:    cfg.Version,
		StartedAt:  launchedAt,
	}

	httpServer := http.NewServer(&http.Config{
		Version:        cfg.Version,
		BuildID:        cfg.BuildID,
		Environment:    cfg.Environment,
		Workers:        cfg.Workers,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Metrics:        metricsCollector,
		Gatherer:       promRegistry,
		Logger:         logger,
	})

	listener, err := net.Listen("tcp", cfg.HTTPAddr())
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", cfg.HTTPAddr(), err)
	}

	workerPool, err := workers.NewPool(workers.Config{
		Size:                cfg.Workers,
		Handler:             httpServer.Handler(),
		ReadHeaderTimeout:   cfg.Timeouts.ReadHeader,
		IdleTimeout:         cfg.Timeouts.Idle,
		HealthCheckInterval: cfg.Heartbeat.Interval,
		Metrics:             metricsCollector,
		Publisher:           instances,
		Identity:            identity,
		Readiness:           httpServer.Readiness,
		Logger:              logger,
	})
	if err != nil {
		listener.Close()
		return fmt.Errorf("failed to create worker pool: %w", err)
	}

	if err := workerPool.Start(listener); err != nil {
		listener.Close()
		return fmt.Errorf("failed to start worker pool: %w", err)
	}

	var grpcServer *grpc.Server
	if addr := cfg.GRPCAddr(); addr != "" {
		grpcServer, err = grpc.NewServer(&grpc.Config{Addr: addr, Logger: logger})
		if err != nil {
			shutdown(cfg, logger, httpServer, workerPool, nil)
			return fmt.Errorf("failed to create gRPC server: %w", err)
		}
		go func() {
			if err := grpcServer.Start(); err != nil {
				logger.Error("gRPC server failed", zap.Error(err))
			}
		}()
	}

	dataset, err := loadDataset(cfg.Ephemeris.Path, cfg.Ephemeris.RequiredFiles)
	if err != nil {
		shutdown(cfg, logger, httpServer, workerPool, grpcServer)
		return fmt.Errorf("failed to load ephemeris data: %w", err)
	}

	httpServer.MarkReady(dataset)
	if grpcServer != nil {
		grpcServer.SetServing(true)
	}

	logger.Info("Tattva API started",
		zap.String("instance_id", identity.InstanceID),
		zap.Int("ephemeris_files", len(dataset.Files())),
		zap.Int64("ephemeris_bytes", dataset.TotalBytes()),
		zap.Duration("startup", time.Since(launchedAt)))

	// Wait for shutdown signal or a failed worker
	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case runErr = <-workerPool.Err():
		logger.Error("worker failed", zap.Error(runErr))
	}

	shutdown(cfg, logger, httpServer, workerPool, grpcServer)
	return runErr
}

// shutdown drains the service: probes fail first, then listeners close and
// in-flight requests finish within the shutdown timeout.
func shutdown(cfg *config.Config, logger *zap.Logger, httpServer *http.Server, workerPool *workers.Pool, grpcServer *grpc.Server) {
	httpServer.MarkNotReady()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.Shutdown)
	defer cancel()

	if grpcServer != nil {
		if err := grpcServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("gRPC server shutdown error", zap.Error(err))
		}
	}

	if err := workerPool.Shutdown(shutdownCtx); err != nil {
		logger.Error("worker pool shutdown error", zap.Error(err))
	}

	logger.Info("Tattva API shut down complete")
}

// hostnameOr returns the host name for heartbeats, or "unknown" when it
// cannot be read.
func hostnameOr(lookup func() (string, error), logger *zap.Logger) string {
	hostname, err := lookup()
	if err != nil {
		logger.Warn("failed to read hostname", zap.Error(err))
		return "unknown"
	}
	if hostname == "" {
		logger.Warn("empty hostname")
		return "unknown"
	}
	return hostname
}

// openRegistry connects the heartbeat registry. Redis is used when an address
// is configured, otherwise heartbeats stay in process memory.
func openRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (registry.Registry, error) {
	if cfg.Redis.Addr == "" {
		logger.Info("no Redis address configured, keeping heartbeats in memory")
		return memory.NewInMemoryRegistry(cfg.Heartbeat.TTL), nil
	}

	redisClient := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Redis.Addr,
		Password:    cfg.Redis.Password,
		DB:          cfg.Redis.DB,
		DialTimeout: cfg.Redis.DialTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
	defer cancel()
	if err := redisClient.Ping(pingCtx).Err(); err != nil {
		redisClient.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Redis.Addr, err)
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	return redisregistry.NewInstanceRegistry(redisClient, cfg.Heartbeat.TTL, logger), nil
}
