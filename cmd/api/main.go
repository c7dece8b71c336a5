package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/calctree/engine/internal/api"
	"github.com/calctree/engine/internal/api/handlers"
	mw "github.com/calctree/engine/internal/api/middleware"
	"github.com/calctree/engine/internal/lineage"
	"github.com/calctree/engine/internal/repository"
	"github.com/calctree/engine/internal/services"
	"github.com/calctree/engine/pkg/cache"
	"github.com/calctree/engine/pkg/config"
	"github.com/calctree/engine/pkg/database"
	"github.com/calctree/engine/pkg/logger"
	"github.com/calctree/engine/pkg/metrics"
)

func main() {
	// Load configuration
	cfg := config.MustLoad()

	// Initialize logger
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	log.Info("starting calctree engine",
		zap.String("env", cfg.AppEnv),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("database", cfg.DatabaseDriver),
	)

	// Connect to database
	ctx := context.Background()
	db, err := database.Open(ctx, database.Options{
		Driver: cfg.DatabaseDriver,
		DSN:    cfg.DatabaseURL,
		AppEnv: cfg.AppEnv,
	})
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()
	log.Info("database connected")

	if cfg.AutoMigrate {
		if err := repository.Migrate(db); err != nil {
			log.Fatal("migration failed", zap.Error(err))
		}
	}

	// Initialize repositories
	userRepo := repository.NewUserRepository(db)
	calcRepo := repository.NewCalculationRepository(db)

	collector := metrics.NewPrometheusCollector()
	opts := []lineage.Option{lineage.WithMetrics(collector)}

	// The forest cache is optional; without redis every read hits the store.
	if cfg.CacheEnabled() {
		rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
		if err != nil {
			log.Warn("redis unavailable, forest cache disabled", zap.Error(err))
		} else {
			defer func() { _ = rdb.Close() }()
			opts = append(opts, lineage.WithCache(cache.NewRedisCache(rdb, "calctree:", cfg.ForestCacheTTL)))
			log.Info("forest cache enabled", zap.Duration("ttl", cfg.ForestCacheTTL))
		}
	}
	engine := lineage.NewEngine(calcRepo, opts...)

	jwtSecret := []byte(cfg.JWTSecret)
	if len(jwtSecret) == 0 {
		log.Warn("JWT_SECRET not set, using default (INSECURE for production)")
		jwtSecret = []byte("change-me-in-production-please")
	}
	authSvc := services.NewAuthService(userRepo, jwtSecret, cfg.TokenTTL)

	limiter := mw.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitTrustProxy)
	stopSweep := make(chan struct{})
	defer close(stopSweep)
	go limiter.Run(time.Minute, stopSweep)

	// Create router with dependencies
	router := api.NewRouter(api.Dependencies{
		Verifier:            authSvc,
		RateLimiter:         limiter,
		AuthHandler:         handlers.NewAuthHandler(authSvc, int64(cfg.TokenTTL.Seconds())),
		CalculationsHandler: handlers.NewCalculationsHandler(engine),
		HealthHandler: handlers.NewHealthHandler(func(ctx context.Context) error {
			return database.Ping(ctx, db)
		}),
		MetricsHandler: promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}),
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	// Start server in goroutine
	errCh := make(chan error, 1)
	go func() {
		log.Info("HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", zap.String("signal", sig.String()))
	case err := <-errCh:
		log.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown error", zap.Error(err))
	} else {
		log.Info("server exited gracefully")
	}
}
