package worker

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/placehunt/internal/actorctx"
	"github.com/geocoder89/placehunt/internal/apperr"
	"github.com/geocoder89/placehunt/internal/domain/job"
	"github.com/geocoder89/placehunt/internal/jobs"
)

// ProcessOne claims and runs at most one job. It reports whether a job was
// claimed.
func (w *Worker) ProcessOne(ctx context.Context) (bool, error) {
	claimCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	j, err := w.repo.ClaimNext(claimCtx, w.cfg.WorkerID)
	cancel()

	if err != nil {
		if errors.Is(err, job.ErrJobNotFound) {
			return false, nil
		}
		return false, err
	}

	if w.prom != nil {
		w.prom.JobsInFlight.Inc()
		defer w.prom.JobsInFlight.Dec()
	}

	start := time.Now()
	err = w.execute(ctx, j)
	if err != nil {
		w.handleFailure(ctx, j, err, time.Since(start))
		return true, nil
	}

	w.prom.ObserveJob(j.Type, "done", time.Since(start))
	w.log.Info("repair done", "job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts+1)

	if err := w.repo.MarkDone(ctx, j.ID); err != nil {
		_ = w.repo.MarkFailed(ctx, j.ID, "mark_done_failed: "+err.Error())
		return true, err
	}
	return true, nil
}

func (w *Worker) execute(ctx context.Context, j job.Job) error {
	t := jobs.JobType(j.Type)

	p, err := jobs.DecodePayload(t, j.Payload)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, w.cfg.JobTimeout)
	defer cancel()

	if p.RequestID != "" {
		ctx = actorctx.WithRequestID(ctx, p.RequestID)
	}

	err = w.repairer.Repair(ctx, t, p.TargetID)
	if apperr.Is(err, apperr.KindNotFound) {
		// the target is already gone
		return nil
	}
	return err
}

func (w *Worker) handleFailure(ctx context.Context, j job.Job, cause error, took time.Duration) {
	permanent := errors.Is(cause, jobs.ErrInvalidJobType) || errors.Is(cause, jobs.ErrInvalidJobPayload)
	exhausted := j.Attempts+1 >= j.MaxAttempts

	if permanent || exhausted {
		w.prom.ObserveJob(j.Type, "failed", took)
		w.log.Error("repair failed permanently",
			"job_id", j.ID, "job_type", j.Type, "attempts", j.Attempts+1, "err", cause)

		if err := w.repo.MarkFailed(ctx, j.ID, cause.Error()); err != nil {
			w.log.Error("mark failed failed", "job_id", j.ID, "err", err)
		}
		return
	}

	runAt := time.Now().UTC().Add(ExponentialBackoff(j.Attempts))
	w.prom.ObserveJob(j.Type, "retry", took)
	w.log.Warn("repair failed; rescheduled",
		"job_id", j.ID, "job_type", j.Type, "attempt", j.Attempts+1, "run_at", runAt, "err", cause)

	if err := w.repo.Reschedule(ctx, j.ID, runAt, cause.Error()); err != nil {
		w.log.Error("reschedule failed", "job_id", j.ID, "err", err)
	}
}
