package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/calctree/engine/pkg/cache"
	"github.com/calctree/engine/pkg/config"
	"github.com/calctree/engine/pkg/database"
	"github.com/calctree/engine/pkg/logger"
	"github.com/calctree/engine/pkg/metrics"

	"github.com/calctree/engine/internal/lineage"
	"github.com/calctree/engine/internal/queue/tasks"
	"github.com/calctree/engine/internal/repository"
)

func main() {
	cfg := config.MustLoad()
	log, err := logger.Init(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if !cfg.CacheEnabled() {
		log.Fatal("REDIS_ADDR is required to run the worker")
	}

	ctx := context.Background()
	rdb, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	_ = rdb.Close()

	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       0,
	}

	// Initialize DB and repositories for task handlers
	db, err := database.Open(ctx, database.Options{
		Driver: cfg.DatabaseDriver,
		DSN:    cfg.DatabaseURL,
		AppEnv: cfg.AppEnv,
	})
	if err != nil {
		log.Fatal("failed to open database", zap.Error(err))
	}
	defer func() { _ = database.Close(db) }()

	collector := metrics.NewPrometheusCollector()
	engine := lineage.NewEngine(
		repository.NewCalculationRepository(db),
		lineage.WithMetrics(collector),
	)

	// The audit violation gauge is only ever set here, so the worker exposes its own /metrics.
	var metricsSrv *http.Server
	if cfg.WorkerMetricsAddr != "" {
		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{
			Addr:              cfg.WorkerMetricsAddr,
			Handler:           metricsMux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("metrics server starting", zap.String("addr", cfg.WorkerMetricsAddr))
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.AsynqConcurrency,
	})
	mux := asynq.NewServeMux()
	mux.HandleFunc(tasks.TypeLineageAudit, tasks.NewAuditTaskHandler(engine).HandleAudit)

	task, err := tasks.NewAuditTask("schedule")
	if err != nil {
		log.Fatal("failed to build audit task", zap.Error(err))
	}
	scheduler := asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{})
	entryID, err := scheduler.Register(cfg.AuditSchedule, task)
	if err != nil {
		log.Fatal("invalid audit schedule", zap.String("schedule", cfg.AuditSchedule), zap.Error(err))
	}
	log.Info("audit scheduled", zap.String("schedule", cfg.AuditSchedule), zap.String("entry", entryID))

	log.Info("asynq worker starting", zap.Int("concurrency", cfg.AsynqConcurrency))
	if err := srv.Start(mux); err != nil {
		log.Fatal("worker failed to start", zap.Error(err))
	}
	if err := scheduler.Start(); err != nil {
		srv.Shutdown()
		log.Fatal("scheduler failed to start", zap.Error(err))
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.Info("shutdown signal received", zap.String("signal", sig.String()))

	// Allow in-flight audits to finish.
	scheduler.Shutdown()
	srv.Shutdown()

	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
			log.Error("metrics server shutdown error", zap.Error(err))
		}
	}
}
