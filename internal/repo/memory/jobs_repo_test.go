package memory

import (
	"context"
	"testing"
	"time"

	"github.com/geocoder89/placehunt/internal/domain/job"
	"github.com/geocoder89/placehunt/internal/jobs"
	"github.com/stretchr/testify/require"
)

func TestJobsRepoEnqueueIsIdempotentPerTarget(t *testing.T) {
	ctx := context.Background()
	r := NewJobsRepo()
	p := jobs.RepairPayload{TargetID: "11111111-1111-1111-1111-111111111111"}

	require.NoError(t, r.EnqueueRepair(ctx, jobs.JobRepairDeletePlace, p))
	require.NoError(t, r.EnqueueRepair(ctx, jobs.JobRepairDeletePlace, p))

	j, err := r.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	require.Equal(t, string(jobs.JobRepairDeletePlace), j.Type)
	require.Equal(t, job.StatusProcessing, j.Status)

	_, err = r.ClaimNext(ctx, "w2")
	require.ErrorIs(t, err, job.ErrJobNotFound)

	// a running job absorbs a new enqueue
	require.NoError(t, r.EnqueueRepair(ctx, jobs.JobRepairDeletePlace, p))
	_, err = r.ClaimNext(ctx, "w2")
	require.ErrorIs(t, err, job.ErrJobNotFound)

	// a finished job is re-armed
	require.NoError(t, r.MarkDone(ctx, j.ID))
	require.NoError(t, r.EnqueueRepair(ctx, jobs.JobRepairDeletePlace, p))
	again, err := r.ClaimNext(ctx, "w2")
	require.NoError(t, err)
	require.Equal(t, j.ID, again.ID)
	require.Zero(t, again.Attempts)
}

func TestJobsRepoRescheduleDelaysClaim(t *testing.T) {
	ctx := context.Background()
	r := NewJobsRepo()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	require.NoError(t, r.EnqueueRepair(ctx, jobs.JobRepairDeleteUser, jobs.RepairPayload{TargetID: "u1"}))

	j, err := r.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	require.NoError(t, r.Reschedule(ctx, j.ID, now.Add(time.Minute), "boom"))

	_, err = r.ClaimNext(ctx, "w1")
	require.ErrorIs(t, err, job.ErrJobNotFound)

	now = now.Add(2 * time.Minute)
	j, err = r.ClaimNext(ctx, "w1")
	require.NoError(t, err)
	require.Equal(t, 1, j.Attempts)
	require.NotNil(t, j.LastError)
}

func TestJobsRepoRequeueStale(t *testing.T) {
	ctx := context.Background()
	r := NewJobsRepo()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	require.NoError(t, r.EnqueueRepair(ctx, jobs.JobRepairDeleteExperience, jobs.RepairPayload{TargetID: "e1"}))
	_, err := r.ClaimNext(ctx, "w1")
	require.NoError(t, err)

	n, err := r.RequeueStaleProcessing(ctx, time.Minute)
	require.NoError(t, err)
	require.Zero(t, n)

	now = now.Add(5 * time.Minute)
	n, err = r.RequeueStaleProcessing(ctx, time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	_, err = r.ClaimNext(ctx, "w2")
	require.NoError(t, err)
}
