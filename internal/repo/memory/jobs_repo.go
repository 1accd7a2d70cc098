package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/placehunt/internal/domain/job"
	"github.com/geocoder89/placehunt/internal/jobs"
)

// JobsRepo is the in-process repair queue. Claiming is a locked scan, which
// gives the same at-most-one-claimer guarantee as SKIP LOCKED.
type JobsRepo struct {
	mu    sync.Mutex
	items map[string]job.Job
	byKey map[string]string
	now   func() time.Time
}

func NewJobsRepo() *JobsRepo {
	return &JobsRepo{
		items: make(map[string]job.Job),
		byKey: make(map[string]string),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func (r *JobsRepo) EnqueueRepair(_ context.Context, t jobs.JobType, payload jobs.RepairPayload) error {
	raw, err := jobs.EncodePayload(t, payload)
	if err != nil {
		return err
	}
	key := jobs.IdempotencyKey(t, payload.TargetID)

	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byKey[key]; ok {
		j := r.items[id]
		if j.Status == job.StatusPending || j.Status == job.StatusProcessing {
			return nil
		}
		j.Status = job.StatusPending
		j.Attempts = 0
		j.Payload = raw
		j.RunAt = r.now()
		j.LastError = nil
		j.UpdatedAt = r.now()
		r.items[id] = j
		return nil
	}

	j := job.New(job.CreateRequest{Type: string(t), Payload: raw, RunAt: r.now(), IdempotencyKey: &key})
	j.CreatedAt, j.UpdatedAt = r.now(), r.now()
	r.items[j.ID] = j
	r.byKey[key] = j.ID
	return nil
}

func (r *JobsRepo) ClaimNext(_ context.Context, workerID string) (job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	var ready []job.Job
	for _, j := range r.items {
		if j.Status == job.StatusPending && !j.RunAt.After(now) && j.Attempts < j.MaxAttempts {
			ready = append(ready, j)
		}
	}
	if len(ready) == 0 {
		return job.Job{}, job.ErrJobNotFound
	}

	sort.Slice(ready, func(a, b int) bool {
		if ready[a].RunAt.Equal(ready[b].RunAt) {
			return ready[a].CreatedAt.Before(ready[b].CreatedAt)
		}
		return ready[a].RunAt.Before(ready[b].RunAt)
	})

	j := ready[0]
	j.Status = job.StatusProcessing
	j.LockedAt = &now
	j.LockedBy = &workerID
	j.UpdatedAt = now
	r.items[j.ID] = j
	return j, nil
}

func (r *JobsRepo) MarkDone(_ context.Context, id string) error {
	return r.update(id, func(j *job.Job) {
		j.Status = job.StatusDone
		j.LockedAt, j.LockedBy, j.LastError = nil, nil, nil
	})
}

func (r *JobsRepo) MarkFailed(_ context.Context, id, errMsg string) error {
	return r.update(id, func(j *job.Job) {
		j.Status = job.StatusFailed
		j.Attempts++
		j.LockedAt, j.LockedBy = nil, nil
		j.LastError = &errMsg
	})
}

func (r *JobsRepo) Reschedule(_ context.Context, id string, runAt time.Time, errMsg string) error {
	return r.update(id, func(j *job.Job) {
		j.Status = job.StatusPending
		j.Attempts++
		j.RunAt = runAt
		j.LockedAt, j.LockedBy = nil, nil
		j.LastError = &errMsg
	})
}

func (r *JobsRepo) RequeueStaleProcessing(_ context.Context, lockTTL time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-lockTTL)
	var n int64
	for id, j := range r.items {
		if j.Status == job.StatusProcessing && j.LockedAt != nil && j.LockedAt.Before(cutoff) {
			j.Status = job.StatusPending
			j.LockedAt, j.LockedBy = nil, nil
			j.UpdatedAt = r.now()
			r.items[id] = j
			n++
		}
	}
	return n, nil
}

func (r *JobsRepo) GetByIdempotencyKey(_ context.Context, key string) (job.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id, ok := r.byKey[key]
	if !ok {
		return job.Job{}, job.ErrJobNotFound
	}
	return r.items[id], nil
}

func (r *JobsRepo) Ping(context.Context) error { return nil }

func (r *JobsRepo) update(id string, fn func(j *job.Job)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	j, ok := r.items[id]
	if !ok {
		return job.ErrJobNotFound
	}
	fn(&j)
	j.UpdatedAt = r.now()
	r.items[id] = j
	return nil
}
