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

	"github.com/geocoder89/placehunt/internal/auth"
	"github.com/geocoder89/placehunt/internal/config"
	"github.com/geocoder89/placehunt/internal/db"
	httpx "github.com/geocoder89/placehunt/internal/http"
	"github.com/geocoder89/placehunt/internal/integrity"
	"github.com/geocoder89/placehunt/internal/observability"
	"github.com/geocoder89/placehunt/internal/queue/worker"
	"github.com/geocoder89/placehunt/internal/ratelimit"
	"github.com/geocoder89/placehunt/internal/repo/memory"
	"github.com/geocoder89/placehunt/internal/repo/postgres"
	"github.com/geocoder89/placehunt/internal/security"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Load the config set up; a missing JWT secret stops the process here
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log := observability.NewLogger(cfg.Env)

	if err := run(cfg, log); err != nil {
		log.Error("api stopped with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracer, err := observability.InitTracer(ctx, "placehunt-api", cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer func() {
		sctx, cancel := config.WithTimeout(5 * time.Second)
		defer cancel()
		_ = shutdownTracer(sctx)
	}()

	prom := observability.NewProm(prometheus.DefaultRegisterer)
	hasher := security.NewBcryptHasher()

	tokens, err := auth.NewManager(cfg.JWTSecret)
	if err != nil {
		return err
	}

	var (
		store   integrity.Store
		admins  db.AdminStore
		repairs worker.JobsRepository
		queue   integrity.RepairQueue
		ping    func(context.Context) error
	)

	switch cfg.StoreBackend {
	case "memory":
		ms := memory.NewStore()
		jobsRepo := memory.NewJobsRepo()
		store, admins, repairs, queue = ms, ms, jobsRepo, jobsRepo
		log.Warn("using in-memory store; data is lost on restart")

	default:
		pool, err := db.NewPool(ctx, cfg.DBURL, 10)
		if err != nil {
			return fmt.Errorf("db connect: %w", err)
		}
		defer pool.Close()

		if err := db.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}

		ps := postgres.NewStore(pool, prom)
		jobsRepo := postgres.NewJobsRepo(pool, prom)
		store, admins, queue = ps, ps, jobsRepo
		ping = pool.Ping
	}

	if err := db.EnsureAdminUser(ctx, admins, hasher, cfg); err != nil {
		return fmt.Errorf("seed admin: %w", err)
	}

	engine := integrity.New(store, integrity.Options{
		Hasher:      hasher,
		Repairs:     queue,
		Prom:        prom,
		Logger:      log,
		Concurrency: cfg.CascadeConcurrency,
	})

	var limiter ratelimit.Limiter
	if cfg.RedisAddr != "" {
		rdb := ratelimit.NewRedisClient(ratelimit.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()

		pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pctx).Err(); err != nil {
			log.Warn("redis unreachable; falling back to per-process rate limiting", "err", err)
		} else {
			limiter = ratelimit.NewRedis(rdb, "placehunt:rl", cfg.AuthRateLimit, cfg.AuthRateWindow)
		}
		cancel()
	}

	router := httpx.NewRouter(httpx.Deps{
		Config:  cfg,
		Engine:  engine,
		Tokens:  tokens,
		Limiter: limiter,
		Prom:    prom,
		Ping:    ping,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 2)

	// the memory backend has no shared queue, so repairs run in this process
	if repairs != nil {
		w := worker.New(worker.Config{
			WorkerID:     "api-" + strconv.Itoa(os.Getpid()),
			PollInterval: cfg.WorkerPollInterval,
			Concurrency:  cfg.WorkerConcurrency,
		}, repairs, engine, prom, log)
		go func() { errCh <- w.Run(ctx) }()
	}

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	log.Info("server shutting down")

	sctx, cancel := config.WithTimeout(10 * time.Second)
	defer cancel()

	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info("shutdown complete")
	return nil
}
