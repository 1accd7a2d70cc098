package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/placehunt/internal/domain/job"
	"github.com/geocoder89/placehunt/internal/jobs"
	"github.com/geocoder89/placehunt/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type JobsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewJobsRepo(pool *pgxpool.Pool, prom *observability.Prom) *JobsRepo {
	return &JobsRepo{pool: pool, prom: prom}
}

const jobColumns = `id::text, type, payload, status,
	attempts, max_attempts, run_at, locked_at, locked_by,
	last_error, idempotency_key, created_at, updated_at`

func scanJob(row pgx.Row) (job.Job, error) {
	var j job.Job
	var status string
	err := row.Scan(
		&j.ID, &j.Type, &j.Payload, &status,
		&j.Attempts, &j.MaxAttempts, &j.RunAt, &j.LockedAt, &j.LockedBy,
		&j.LastError, &j.IdempotencyKey, &j.CreatedAt, &j.UpdatedAt,
	)
	j.Status = job.Status(status)
	return j, err
}

// EnqueueRepair queues one repair per target. A pending or running job for the
// same target absorbs the enqueue; a finished one is re-armed.
func (r *JobsRepo) EnqueueRepair(ctx context.Context, t jobs.JobType, payload jobs.RepairPayload) error {
	raw, err := jobs.EncodePayload(t, payload)
	if err != nil {
		return err
	}

	key := jobs.IdempotencyKey(t, payload.TargetID)
	j := job.New(job.CreateRequest{Type: string(t), Payload: raw, IdempotencyKey: &key})

	return r.prom.ObserveDB("jobs.enqueue_repair", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO jobs (id, type, payload, status, attempts, max_attempts, run_at, idempotency_key, created_at, updated_at)
			VALUES ($1, $2, $3, $4, 0, $5, $6, $7, $8, $9)
			ON CONFLICT (idempotency_key) DO UPDATE
			SET status     = 'pending',
			    attempts   = 0,
			    payload    = EXCLUDED.payload,
			    run_at     = NOW(),
			    last_error = NULL,
			    updated_at = NOW()
			WHERE jobs.status IN ('done', 'failed')`,
			j.ID, j.Type, j.Payload, string(j.Status), j.MaxAttempts, j.RunAt, key, j.CreatedAt, j.UpdatedAt,
		)
		return err
	})
}

func (r *JobsRepo) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	var j job.Job

	err := r.prom.ObserveDB("jobs.claim_next", func() error {
		var serr error
		j, serr = scanJob(r.pool.QueryRow(ctx, `
			WITH next AS (
				SELECT id
				FROM jobs
				WHERE status = 'pending'
				  AND run_at <= NOW()
				  AND attempts < max_attempts
				ORDER BY run_at ASC, created_at ASC
				FOR UPDATE SKIP LOCKED
				LIMIT 1
			)
			UPDATE jobs
			SET status = 'processing',
			    locked_at = NOW(),
			    locked_by = $1,
			    updated_at = NOW()
			WHERE id = (SELECT id FROM next)
			RETURNING `+jobColumns, workerID))
		return serr
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return job.Job{}, job.ErrJobNotFound
	}
	return j, err
}

func (r *JobsRepo) MarkDone(ctx context.Context, id string) error {
	return r.exec(ctx, "jobs.mark_done", `
		UPDATE jobs
		SET status = 'done',
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = NULL,
		    updated_at = NOW()
		WHERE id = $1`, id)
}

func (r *JobsRepo) MarkFailed(ctx context.Context, id, errMsg string) error {
	return r.exec(ctx, "jobs.mark_failed", `
		UPDATE jobs
		SET status = 'failed',
		    attempts = attempts + 1,
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = $2,
		    updated_at = NOW()
		WHERE id = $1`, id, errMsg)
}

func (r *JobsRepo) Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error {
	return r.exec(ctx, "jobs.reschedule", `
		UPDATE jobs
		SET status = 'pending',
		    attempts = attempts + 1,
		    run_at = $2,
		    locked_at = NULL,
		    locked_by = NULL,
		    last_error = $3,
		    updated_at = NOW()
		WHERE id = $1`, id, runAt, errMsg)
}

// RequeueStaleProcessing releases jobs whose worker died holding the lock.
func (r *JobsRepo) RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error) {
	secs := int64(lockTTL.Seconds())
	if secs <= 0 {
		secs = 30
	}

	var rows int64
	err := r.prom.ObserveDB("jobs.requeue_stale", func() error {
		tag, err := r.pool.Exec(ctx, `
			UPDATE jobs
			SET status = 'pending',
			    locked_at = NULL,
			    locked_by = NULL,
			    updated_at = NOW()
			WHERE status = 'processing'
			  AND locked_at IS NOT NULL
			  AND locked_at < NOW() - ($1 * INTERVAL '1 second')`, secs)
		if err != nil {
			return err
		}
		rows = tag.RowsAffected()
		return nil
	})

	return rows, err
}

func (r *JobsRepo) GetByIdempotencyKey(ctx context.Context, key string) (job.Job, error) {
	var j job.Job
	err := r.prom.ObserveDB("jobs.get_by_idempotency_key", func() error {
		var serr error
		j, serr = scanJob(r.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE idempotency_key = $1`, key))
		return serr
	})

	if errors.Is(err, pgx.ErrNoRows) {
		return job.Job{}, job.ErrJobNotFound
	}
	return j, err
}

func (r *JobsRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *JobsRepo) exec(ctx context.Context, op, sql string, args ...any) error {
	var tag pgconn.CommandTag
	err := r.prom.ObserveDB(op, func() error {
		var eerr error
		tag, eerr = r.pool.Exec(ctx, sql, args...)
		return eerr
	})
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return job.ErrJobNotFound
	}
	return nil
}
