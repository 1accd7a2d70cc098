package integrity

import (
	"context"
	"errors"

	"github.com/geocoder89/placehunt/internal/domain/experience"
	"github.com/geocoder89/placehunt/internal/domain/place"
	"github.com/geocoder89/placehunt/internal/domain/user"
	"github.com/geocoder89/placehunt/internal/jobs"
	"go.opentelemetry.io/otel/attribute"
)

// Repair replays an interrupted delete. It skips authorization: the delete was
// authorized when it was requested. A target whose record is already gone
// only gets the final sweep.
func (e *Engine) Repair(ctx context.Context, t jobs.JobType, targetID string) (err error) {
	ctx, span := e.startSpan(ctx, "Repair",
		attribute.String("job.type", string(t)),
		attribute.String("target.id", targetID),
	)
	defer func() { endSpan(span, err) }()

	c := e.newCascade()

	switch t {
	case jobs.JobRepairDeleteExperience:
		x, err := e.exps.GetExperience(ctx, targetID)
		if errors.Is(err, experience.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return e.deleteExperience(ctx, c, x)

	case jobs.JobRepairDeletePlace:
		p, err := e.places.GetPlace(ctx, targetID)
		if errors.Is(err, place.ErrNotFound) {
			return e.sweepPlace(ctx, c, targetID)
		}
		if err != nil {
			return err
		}
		return e.cascadePlace(ctx, c, p)

	case jobs.JobRepairDeleteUser:
		u, err := e.users.GetUser(ctx, targetID)
		if errors.Is(err, user.ErrNotFound) {
			return e.sweepUser(ctx, c, targetID)
		}
		if err != nil {
			return err
		}
		return e.cascadeUser(ctx, c, u)

	default:
		return jobs.ErrInvalidJobType
	}
}
