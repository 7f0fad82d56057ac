package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cajapos/backend/internal/authz"
	"cajapos/backend/internal/cache"
	"cajapos/backend/internal/config"
	"cajapos/backend/internal/httpapi"
	"cajapos/backend/internal/metrics"
	"cajapos/backend/internal/service"
	"cajapos/backend/internal/store"
	"cajapos/backend/internal/store/memory"
	pgstore "cajapos/backend/internal/store/postgres"
	"cajapos/backend/internal/store/remote"
	"cajapos/backend/internal/telemetry"
)

func main() {
	cfg := config.Load()
	logger, err := telemetry.NewLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := validateSecurityConfig(cfg); err != nil {
		logger.Fatal("invalid security configuration", zap.Error(err))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	shutdownTracer, err := telemetry.InitTracer(ctx, cfg.OTLPEndpoint, cfg.ServiceName)
	if err != nil {
		logger.Fatal("tracer init failed", zap.Error(err))
	}

	closers := make([]func() error, 0, 2)

	repo, closeRepo, err := buildRepository(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("repository unavailable", zap.Error(err))
	}
	if closeRepo != nil {
		closers = append(closers, closeRepo)
	}

	permissionCache := cache.PermissionCache(cache.NewMemoryPermissionCache())
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisPermissionCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using in-process permission cache", zap.Error(err))
		} else {
			permissionCache = redisCache
			closers = append(closers, redisCache.Close)
			logger.Info("permission cache: redis")
		}
	} else {
		logger.Info("permission cache: in-process")
	}

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		m = metrics.New()
	}

	svc := service.New(repo, service.WithLogger(logger), service.WithMetrics(m))
	authorizer := authz.New(repo, permissionCache, cfg.PermissionTTL(), authz.WithLogger(logger), authz.WithMetrics(m))
	auth := httpapi.NewAuthManager(cfg.AuthSecret, cfg.AccessTokenTTL())
	api := httpapi.New(svc, auth, authorizer, cfg.AllowedOrigin, httpapi.WithLogger(logger), httpapi.WithMetrics(m))

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go sweepIdleSessions(sweepCtx, svc, cfg.SessionIdle())

	go func() {
		logger.Info("POS backend listening", zap.String("addr", cfg.Address()))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	stopSweep()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
	if err := shutdownTracer(shutdownCtx); err != nil {
		logger.Error("tracer shutdown error", zap.Error(err))
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			logger.Error("close error", zap.Error(err))
		}
	}

	logger.Info("server stopped")
}

// buildRepository picks the system of record: postgres when DATABASE_URL is
// set, the remote data service when DATA_SERVICE_URL is set, else the seeded
// in-memory store.
func buildRepository(ctx context.Context, cfg config.Config, logger *zap.Logger) (store.Repository, func() error, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres unavailable and DATABASE_URL is set; refusing to start with in-memory fallback: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info("repository: postgres")
		return pg, pg.Close, nil
	case cfg.DataServiceURL != "":
		client, err := remote.New(remote.Config{
			BaseURL: cfg.DataServiceURL,
			Token:   cfg.DataServiceToken,
			Timeout: cfg.DataServiceTimeout,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("repository: data service", zap.String("url", cfg.DataServiceURL))
		return client, nil, nil
	default:
		logger.Info("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}
}

// sweepIdleSessions drops abandoned sessions until ctx ends. DiscardIdle logs
// what it removed.
func sweepIdleSessions(ctx context.Context, svc *service.Service, maxIdle time.Duration) {
	interval := maxIdle / 4
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			svc.DiscardIdle(maxIdle)
		}
	}
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	return nil
}
