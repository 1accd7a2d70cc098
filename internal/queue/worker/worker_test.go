package worker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/placehunt/internal/actorctx"
	"github.com/geocoder89/placehunt/internal/apperr"
	"github.com/geocoder89/placehunt/internal/domain/job"
	"github.com/geocoder89/placehunt/internal/jobs"
	"github.com/geocoder89/placehunt/internal/repo/memory"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

type fakeRepairer struct {
	err        error
	calls      []string
	requestIDs []string
}

func (f *fakeRepairer) Repair(ctx context.Context, t jobs.JobType, targetID string) error {
	f.calls = append(f.calls, string(t)+":"+targetID)
	f.requestIDs = append(f.requestIDs, actorctx.RequestIDFrom(ctx))
	return f.err
}

func newTestWorker(repo JobsRepository, r Repairer) *Worker {
	return New(Config{WorkerID: "test-worker"}, repo, r, nil, nil)
}

func enqueue(t *testing.T, repo *memory.JobsRepo, jt jobs.JobType, target string) string {
	t.Helper()
	require.NoError(t, repo.EnqueueRepair(context.Background(), jt, jobs.RepairPayload{TargetID: target}))
	return jobs.IdempotencyKey(jt, target)
}

func TestProcessOneNothingToDo(t *testing.T) {
	w := newTestWorker(memory.NewJobsRepo(), &fakeRepairer{})

	processed, err := w.ProcessOne(context.Background())
	require.NoError(t, err)
	require.False(t, processed)
}

func TestProcessOneMarksDone(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewJobsRepo()
	rep := &fakeRepairer{}
	key := enqueue(t, repo, jobs.JobRepairDeletePlace, "p1")

	processed, err := newTestWorker(repo, rep).ProcessOne(ctx)
	require.NoError(t, err)
	require.True(t, processed)
	require.Equal(t, []string{"repair_delete_place:p1"}, rep.calls)

	j, err := repo.GetByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	require.Equal(t, job.StatusDone, j.Status)
}

func TestProcessOneCarriesRequestID(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewJobsRepo()
	require.NoError(t, repo.EnqueueRepair(ctx, jobs.JobRepairDeletePlace, jobs.RepairPayload{
		TargetID: "p1", RequestedBy: "u1", RequestID: "req-42",
	}))

	rep := &fakeRepairer{}
	_, err := newTestWorker(repo, rep).ProcessOne(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"req-42"}, rep.requestIDs)
}

func TestProcessOneTreatsNotFoundAsConverged(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewJobsRepo()
	key := enqueue(t, repo, jobs.JobRepairDeleteUser, "u1")

	_, err := newTestWorker(repo, &fakeRepairer{err: apperr.NotFound("User not found")}).ProcessOne(ctx)
	require.NoError(t, err)

	j, err := repo.GetByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	require.Equal(t, job.StatusDone, j.Status)
}

func TestProcessOneReschedulesOnFailure(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewJobsRepo()
	key := enqueue(t, repo, jobs.JobRepairDeleteExperience, "e1")

	before := time.Now().UTC()
	_, err := newTestWorker(repo, &fakeRepairer{err: errors.New("store down")}).ProcessOne(ctx)
	require.NoError(t, err)

	j, err := repo.GetByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	require.Equal(t, job.StatusPending, j.Status)
	require.Equal(t, 1, j.Attempts)
	require.True(t, j.RunAt.After(before))
	require.NotNil(t, j.LastError)
	require.Equal(t, "store down", *j.LastError)
}

func TestProcessOneFailsWhenAttemptsExhausted(t *testing.T) {
	ctx := context.Background()
	repo := &exhaustedRepo{JobsRepo: memory.NewJobsRepo()}
	key := enqueue(t, repo.JobsRepo, jobs.JobRepairDeletePlace, "p1")

	_, err := newTestWorker(repo, &fakeRepairer{err: errors.New("still down")}).ProcessOne(ctx)
	require.NoError(t, err)

	j, err := repo.GetByIdempotencyKey(ctx, key)
	require.NoError(t, err)
	require.Equal(t, job.StatusFailed, j.Status)
}

// exhaustedRepo hands out jobs that are on their last attempt.
type exhaustedRepo struct {
	*memory.JobsRepo
}

func (r *exhaustedRepo) ClaimNext(ctx context.Context, workerID string) (job.Job, error) {
	j, err := r.JobsRepo.ClaimNext(ctx, workerID)
	j.MaxAttempts = j.Attempts + 1
	return j, err
}

func TestExponentialBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		min     time.Duration
		max     time.Duration
	}{
		{attempt: 0, min: 2 * time.Second, max: 2*time.Second + 250*time.Millisecond},
		{attempt: 2, min: 8 * time.Second, max: 8*time.Second + 250*time.Millisecond},
		{attempt: 30, min: 5 * time.Minute, max: 5*time.Minute + 250*time.Millisecond},
	}

	for _, tt := range tests {
		got := ExponentialBackoff(tt.attempt)
		if got < tt.min || got > tt.max {
			t.Fatalf("attempt %d: expected delay in [%s, %s], got %s", tt.attempt, tt.min, tt.max, got)
		}
	}
}

func TestHealthHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := newTestWorker(memory.NewJobsRepo(), &fakeRepairer{})
	h := w.HealthHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 from /healthz, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 before Run, got %d", rec.Code)
	}

	w.setReady(true)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 when ready, got %d", rec.Code)
	}
}
