// Package worker drives interrupted cascades to completion by replaying the
// repair jobs the integrity engine enqueues.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/placehunt/internal/domain/job"
	"github.com/geocoder89/placehunt/internal/jobs"
	"github.com/geocoder89/placehunt/internal/observability"
	"golang.org/x/sync/errgroup"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
	Ping(ctx context.Context) error
}

// Repairer replays one interrupted delete.
type Repairer interface {
	Repair(ctx context.Context, t jobs.JobType, targetID string) error
}

type Config struct {
	PollInterval  time.Duration
	WorkerID      string
	Concurrency   int
	JobTimeout    time.Duration
	LockTTL       time.Duration
	ShutdownGrace time.Duration
}

type Worker struct {
	cfg      Config
	repo     JobsRepository
	repairer Repairer
	prom     *observability.Prom
	log      *slog.Logger

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, repo JobsRepository, repairer Repairer, prom *observability.Prom, log *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 500 * time.Millisecond
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 30 * time.Second
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}

	return &Worker{
		cfg:      cfg,
		repo:     repo,
		repairer: repairer,
		prom:     prom,
		log:      log.With("worker_id", cfg.WorkerID),
	}
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}

func (w *Worker) Ready() bool {
	w.readyMu.RLock()
	defer w.readyMu.RUnlock()
	return w.ready
}

// Run polls until ctx is cancelled. In-flight jobs get ShutdownGrace to finish
// on a context detached from ctx.
func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	jobCtx, cancelJobs := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelJobs()

	var g errgroup.Group
	for i := 0; i < w.cfg.Concurrency; i++ {
		g.Go(func() error {
			w.loop(ctx, jobCtx)
			return nil
		})
	}
	g.Go(func() error {
		w.reaper(ctx)
		return nil
	})

	<-ctx.Done()
	w.setReady(false)
	w.log.Info("worker received shutdown signal")

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(w.cfg.ShutdownGrace):
		w.log.Warn("shutdown grace elapsed; cancelling in-flight jobs")
		cancelJobs()
		<-done
	}
	return nil
}

func (w *Worker) loop(ctx, jobCtx context.Context) {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// drain while work is available
		for ctx.Err() == nil {
			processed, err := w.ProcessOne(jobCtx)
			if err != nil {
				w.log.Error("process job failed", "err", err)
				break
			}
			if !processed {
				break
			}
		}
	}
}

// reaper requeues jobs whose worker died while holding them.
func (w *Worker) reaper(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.LockTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.repo.RequeueStaleProcessing(ctx, w.cfg.LockTTL)
			if err != nil {
				w.log.Error("requeue stale jobs failed", "err", err)
				continue
			}
			if n > 0 {
				w.log.Warn("requeued stale jobs", "count", n)
			}
		}
	}
}
