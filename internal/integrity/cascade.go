package integrity

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/geocoder89/placehunt/internal/actorctx"
	"github.com/geocoder89/placehunt/internal/apperr"
	"github.com/geocoder89/placehunt/internal/authz"
	"github.com/geocoder89/placehunt/internal/domain/experience"
	"github.com/geocoder89/placehunt/internal/domain/place"
	"github.com/geocoder89/placehunt/internal/domain/user"
	"github.com/geocoder89/placehunt/internal/jobs"
	"golang.org/x/sync/errgroup"
)

// cascade tracks whether any write of a multi-step mutation was attempted, so
// a failure can be reported as not applied or indeterminate.
type cascade struct {
	e         *Engine
	attempted atomic.Int32
}

func (e *Engine) newCascade() *cascade {
	return &cascade{e: e}
}

// write runs one idempotent step. Errors listed in tolerate mean the step's
// effect is already in place.
func (c *cascade) write(step string, fn func() error, tolerate ...error) error {
	c.attempted.Add(1)

	err := fn()
	for _, t := range tolerate {
		if errors.Is(err, t) {
			err = nil
			break
		}
	}

	c.e.prom.ObserveStep(step, err)
	return err
}

// once collapses concurrent deletes of the same target inside this process
// into a single cascade. Every caller gets the leader's result.
func (e *Engine) once(ctx context.Context, key string, fn func(c *cascade) error) error {
	ch := e.flight.DoChan(key, func() (any, error) {
		return nil, fn(e.newCascade())
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return apperr.Internal("Operation timed out", apperr.OutcomeIndeterminate, ctx.Err())
	}
}

func (c *cascade) outcome() apperr.Outcome {
	if c.attempted.Load() > 0 {
		return apperr.OutcomeIndeterminate
	}
	return apperr.OutcomeNotApplied
}

// deleteExperience removes both backlinks, then the record, then the
// backlinks again. A create whose append lands after the second pass finds
// its record gone and scrubs the append itself.
func (e *Engine) deleteExperience(ctx context.Context, c *cascade, x experience.Experience) error {
	if err := e.unlinkExperience(ctx, c, x); err != nil {
		return err
	}

	err := c.write("experience.delete", func() error {
		return e.exps.DeleteExperience(ctx, x.ID)
	}, experience.ErrNotFound)
	if err != nil {
		return err
	}

	return e.unlinkExperience(ctx, c, x)
}

func (e *Engine) unlinkExperience(ctx context.Context, c *cascade, x experience.Experience) error {
	var g errgroup.Group

	g.Go(func() error {
		return c.write("place.remove_experience", func() error {
			return e.places.RemovePlaceExperience(ctx, x.PlaceID, x.ID)
		}, place.ErrNotFound)
	})
	g.Go(func() error {
		return c.write("user.remove_experience", func() error {
			return e.users.RemoveUserExperience(ctx, x.CreatedBy, x.ID)
		}, user.ErrNotFound)
	})

	return g.Wait()
}

// deleteExperiences fans sibling deletes out; every sibling finishes before
// this returns.
func (e *Engine) deleteExperiences(ctx context.Context, c *cascade, xs []experience.Experience) error {
	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for _, x := range xs {
		g.Go(func() error {
			return e.deleteExperience(ctx, c, x)
		})
	}

	return g.Wait()
}

// childrenOf returns every experience whose forward reference is p. Ids found
// only in the backlink set are included when the record still points at p;
// stale entries are ignored.
func (e *Engine) childrenOf(ctx context.Context, p place.Place) ([]experience.Experience, error) {
	forward, err := e.exps.ListExperiencesByPlace(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(forward))
	for _, x := range forward {
		seen[x.ID] = struct{}{}
	}

	for _, id := range p.Experiences {
		if _, ok := seen[id]; ok {
			continue
		}
		x, err := e.exps.GetExperience(ctx, id)
		if errors.Is(err, experience.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if x.PlaceID == p.ID {
			seen[id] = struct{}{}
			forward = append(forward, x)
		}
	}

	return forward, nil
}

// cascadePlace deletes p's children, then p's owner backlink, then p. The
// owner backlink is removed once more after p is gone, for the same reason
// deleteExperience does it.
func (e *Engine) cascadePlace(ctx context.Context, c *cascade, p place.Place) error {
	children, err := e.childrenOf(ctx, p)
	if err != nil {
		return err
	}

	if err := e.deleteExperiences(ctx, c, children); err != nil {
		return err
	}

	if err := e.unlinkPlace(ctx, c, p); err != nil {
		return err
	}

	err = c.write("place.delete", func() error {
		return e.places.DeletePlace(ctx, p.ID)
	}, place.ErrNotFound)
	if err != nil {
		return err
	}

	if err := e.unlinkPlace(ctx, c, p); err != nil {
		return err
	}

	return e.sweepPlace(ctx, c, p.ID)
}

func (e *Engine) unlinkPlace(ctx context.Context, c *cascade, p place.Place) error {
	return c.write("user.remove_place", func() error {
		return e.users.RemoveUserPlace(ctx, p.CreatedBy, p.ID)
	}, user.ErrNotFound)
}

// sweepPlace removes experiences that still point at a deleted place. A create
// that passed its existence check before the delete can land after the
// children were listed.
func (e *Engine) sweepPlace(ctx context.Context, c *cascade, placeID string) error {
	late, err := e.exps.ListExperiencesByPlace(ctx, placeID)
	if err != nil {
		return err
	}
	return e.deleteExperiences(ctx, c, late)
}

func (e *Engine) cascadePlaces(ctx context.Context, c *cascade, ps []place.Place) error {
	var g errgroup.Group
	g.SetLimit(e.concurrency)

	for _, p := range ps {
		g.Go(func() error {
			return e.cascadePlace(ctx, c, p)
		})
	}

	return g.Wait()
}

// closure collects everything owned or authored by u, plus the children of
// u's places, before anything is deleted.
type closure struct {
	places      []place.Place
	experiences []experience.Experience
}

func (e *Engine) userClosure(ctx context.Context, u user.User) (closure, error) {
	var out closure

	placeSeen := map[string]struct{}{}
	owned, err := e.places.ListPlacesByCreator(ctx, u.ID)
	if err != nil {
		return out, err
	}
	for _, p := range owned {
		placeSeen[p.ID] = struct{}{}
		out.places = append(out.places, p)
	}
	for _, id := range u.Places {
		if _, ok := placeSeen[id]; ok {
			continue
		}
		p, err := e.places.GetPlace(ctx, id)
		if errors.Is(err, place.ErrNotFound) {
			continue
		}
		if err != nil {
			return out, err
		}
		if p.CreatedBy == u.ID {
			placeSeen[id] = struct{}{}
			out.places = append(out.places, p)
		}
	}

	expSeen := map[string]struct{}{}
	addExp := func(x experience.Experience) {
		if _, ok := expSeen[x.ID]; ok {
			return
		}
		expSeen[x.ID] = struct{}{}
		out.experiences = append(out.experiences, x)
	}

	authored, err := e.exps.ListExperiencesByCreator(ctx, u.ID)
	if err != nil {
		return out, err
	}
	for _, x := range authored {
		addExp(x)
	}
	for _, id := range u.Experiences {
		if _, ok := expSeen[id]; ok {
			continue
		}
		x, err := e.exps.GetExperience(ctx, id)
		if errors.Is(err, experience.ErrNotFound) {
			continue
		}
		if err != nil {
			return out, err
		}
		if x.CreatedBy == u.ID {
			addExp(x)
		}
	}

	for _, p := range out.places {
		children, err := e.childrenOf(ctx, p)
		if err != nil {
			return out, err
		}
		for _, x := range children {
			addExp(x)
		}
	}

	return out, nil
}

// failCascade reports a delete that stopped part way. When writes were
// already attempted the target is handed to the repair queue.
func (e *Engine) failCascade(ctx context.Context, op string, c *cascade, t jobs.JobType, targetID string, caller authz.Identity, cause error) error {
	outcome := c.outcome()
	if outcome == apperr.OutcomeIndeterminate {
		e.enqueueRepair(ctx, t, jobs.RepairPayload{
			TargetID:    targetID,
			RequestedBy: caller.SubjectID,
			RequestID:   actorctx.RequestIDFrom(ctx),
		})
	}
	return e.translate(ctx, op, cause, outcome)
}

func (e *Engine) enqueueRepair(ctx context.Context, t jobs.JobType, p jobs.RepairPayload) {
	if e.repairs == nil {
		return
	}

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), repairEnqueueWait)
	defer cancel()

	if err := e.repairs.EnqueueRepair(rctx, t, p); err != nil {
		e.log.ErrorContext(ctx, "repair enqueue failed", "job_type", string(t), "target_id", p.TargetID, "err", err)
		return
	}

	e.prom.ObserveRepairEnqueued(string(t))
	e.log.WarnContext(ctx, "repair enqueued", "job_type", string(t), "target_id", p.TargetID)
}
