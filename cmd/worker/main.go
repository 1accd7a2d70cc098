package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/geocoder89/placehunt/internal/config"
	"github.com/geocoder89/placehunt/internal/db"
	"github.com/geocoder89/placehunt/internal/integrity"
	"github.com/geocoder89/placehunt/internal/observability"
	"github.com/geocoder89/placehunt/internal/queue/worker"
	"github.com/geocoder89/placehunt/internal/repo/postgres"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env)

	if err := run(cfg, log); err != nil {
		log.Error("worker stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("worker shutdown complete")
}

func run(cfg config.Config, log *slog.Logger) error {
	if cfg.StoreBackend != "postgres" {
		return errors.New("the standalone worker needs STORE_BACKEND=postgres; the memory backend repairs inside the api process")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, "placehunt-worker", cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		sctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	prom := observability.NewProm(prometheus.DefaultRegisterer)

	pool, err := db.NewPool(ctx, cfg.DBURL, int32(cfg.WorkerConcurrency)+2)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer pool.Close()

	jobsRepo := postgres.NewJobsRepo(pool, prom)

	// repairs only delete, so the worker engine never hashes or enqueues
	engine := integrity.New(postgres.NewStore(pool, prom), integrity.Options{
		Repairs:     jobsRepo,
		Prom:        prom,
		Logger:      log,
		Concurrency: cfg.CascadeConcurrency,
	})

	host, _ := os.Hostname()
	workerID := host + "-" + strconv.Itoa(os.Getpid())

	w := worker.New(worker.Config{
		PollInterval:  cfg.WorkerPollInterval,
		WorkerID:      workerID,
		Concurrency:   cfg.WorkerConcurrency,
		ShutdownGrace: 10 * time.Second,
	}, jobsRepo, engine, prom, log)

	health := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.WorkerHealthPort),
		Handler:           w.HealthHandler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := health.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("health server failed", "err", err)
		}
	}()
	defer func() {
		sctx, cancel := config.WithTimeout(2 * time.Second)
		defer cancel()
		_ = health.Shutdown(sctx)
	}()

	log.Info("worker has started", "worker_id", workerID, "concurrency", cfg.WorkerConcurrency)
	return w.Run(ctx)
}
