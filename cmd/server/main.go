package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/onnwee/ethosprompt/backend/internal/api"
	"github.com/onnwee/ethosprompt/backend/internal/cache"
	"github.com/onnwee/ethosprompt/backend/internal/catalog"
	"github.com/onnwee/ethosprompt/backend/internal/config"
	"github.com/onnwee/ethosprompt/backend/internal/db"
	"github.com/onnwee/ethosprompt/backend/internal/errorreporting"
	"github.com/onnwee/ethosprompt/backend/internal/logger"
	"github.com/onnwee/ethosprompt/backend/internal/metrics"
	"github.com/onnwee/ethosprompt/backend/internal/middleware"
	"github.com/onnwee/ethosprompt/backend/internal/scheduler"
	"github.com/onnwee/ethosprompt/backend/internal/secrets"
	"github.com/onnwee/ethosprompt/backend/internal/tracing"
)

const serviceName = "ethosprompt-api"

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.LogLevel)
	if envErr != nil {
		logger.Debug("no .env file found, using process environment")
	}

	if err := run(cfg); err != nil {
		logger.Error("server exited", "error", err)
		errorreporting.CaptureError(err)
		errorreporting.Flush(2 * time.Second)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	if err := checkSecrets(cfg); err != nil {
		return err
	}

	if err := errorreporting.Init(errorreporting.Options{
		DSN:         cfg.SentryDSN,
		Environment: cfg.SentryEnvironment,
		Release:     cfg.SentryRelease,
		SampleRate:  cfg.SentrySampleRate,
	}); err != nil {
		logger.Warn("sentry disabled", "error", err)
	}
	defer errorreporting.Flush(2 * time.Second)

	shutdownTracing, err := tracing.Init(serviceName, tracing.Options{
		Enabled:    cfg.OTELEnabled,
		Endpoint:   cfg.OTELEndpoint,
		SampleRate: cfg.OTELSampleRate,
		Version:    cfg.ServiceVersion,
	})
	if err != nil {
		logger.Warn("tracing disabled", "error", err)
		shutdownTracing = func(context.Context) error { return nil }
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			logger.Warn("tracing shutdown failed", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("connecting to database", "url", secrets.MaskURL(cfg.DatabaseURL))
	conn, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer conn.Close()
	queries := db.New(conn)

	responses := cache.New[[]byte](cache.Config{
		Name:                "responses",
		MaxSizeBytes:        cfg.CacheMaxSizeBytes,
		MinSizeBytes:        cfg.CacheMinSizeBytes,
		DefaultTTL:          cfg.CacheDefaultTTL,
		StaleTTL:            cfg.CacheStaleTTL,
		DisableCompression:  !cfg.CacheCompression,
		CompressThreshold:   cfg.CacheCompressThreshold,
		SweepInterval:       cfg.CacheSweepInterval,
		MemoryCheckInterval: cfg.CacheMemoryCheckInterval,
		MemoryPressureRatio: cfg.CacheMemoryPressureRatio,
		Probe: cache.StaticProbe{
			Network:  cache.ParseNetworkClass(cfg.CacheDefaultNetwork),
			SaveData: cfg.CacheDefaultSaveData,
		},
		Memory: cache.RuntimeMemory{},
	})
	defer responses.Close()

	svc := catalog.NewService(queries, responses, catalog.Options{
		QueryTimeout:     cfg.DBQueryTimeout,
		FailureThreshold: cfg.BreakerFailureThreshold,
		BreakerTimeout:   cfg.BreakerTimeout,
	})

	jobs, err := refreshJobs(cfg, svc)
	if err != nil {
		return err
	}
	sched := scheduler.NewService(nil, jobs...)

	collector := metrics.NewCollector(cfg.MetricsInterval, responses)

	var limiter *middleware.RateLimiter
	if cfg.EnableRateLimit {
		limiter = middleware.NewRateLimiter(cfg.RateLimitGlobal, cfg.RateLimitGlobalBurst, cfg.RateLimitPerIP, cfg.RateLimitPerIPBurst)
		defer limiter.Stop()
	}

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewRouter(api.Deps{
			Catalog:     svc,
			Caches:      []cache.Cache{responses},
			DB:          queries,
			AdminToken:  cfg.AdminAPIToken,
			CORS:        cors,
			RateLimiter: limiter,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		responses.Start(gctx)
		return nil
	})
	g.Go(func() error {
		collector.Start(gctx)
		return nil
	})
	if cfg.CachePreload {
		g.Go(func() error {
			start := time.Now()
			n := svc.Warm(gctx)
			logger.Info("catalog cache warmed", "entries", n, "duration", time.Since(start))
			return nil
		})
	}
	sched.Start(gctx)
	g.Go(func() error {
		logger.Info("server listening", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		sched.Stop()
		collector.Stop()
		responses.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func refreshJobs(cfg *config.Config, svc *catalog.Service) ([]scheduler.Job, error) {
	if strings.EqualFold(cfg.CacheRefreshSchedule, "off") {
		return nil, nil
	}
	sch, err := scheduler.Parse(cfg.CacheRefreshSchedule)
	if err != nil {
		return nil, err
	}
	return []scheduler.Job{{
		Name:     "catalog_refresh",
		Schedule: sch,
		Timeout:  2 * time.Minute,
		Run: func(ctx context.Context) error {
			n := svc.Refresh(ctx)
			logger.Info("catalog cache refreshed", "entries", n)
			return nil
		},
	}}, nil
}

func checkSecrets(cfg *config.Config) error {
	req := secrets.Requirements{
		Required: map[string]string{"DATABASE_URL": cfg.DatabaseURL},
	}
	if cfg.IsProduction() {
		req.Tokens = map[string]string{"ADMIN_API_TOKEN": cfg.AdminAPIToken}
	}
	return secrets.Validate(req)
}
