package integrity

import (
	"context"
	"errors"
	"strings"

	"github.com/geocoder89/placehunt/internal/apperr"
	"github.com/geocoder89/placehunt/internal/authz"
	"github.com/geocoder89/placehunt/internal/domain/experience"
	"github.com/geocoder89/placehunt/internal/jobs"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

type ExperienceInput struct {
	ID       string
	Text     string
	Type     string
	Solution string
	PlaceID  string
}

// CreateExperience inserts the record, then links it from its place and its
// author. A failed link undoes the insert.
func (e *Engine) CreateExperience(ctx context.Context, in ExperienceInput, caller authz.Identity) (_ experience.Experience, err error) {
	ctx, span := e.startSpan(ctx, "CreateExperience", attribute.String("place.id", in.PlaceID))
	defer func() { endSpan(span, err) }()

	if err := requireCaller(caller); err != nil {
		return experience.Experience{}, err
	}

	var f fieldErrors
	text := strings.TrimSpace(in.Text)
	solution := strings.TrimSpace(in.Solution)
	t := experience.Type(strings.TrimSpace(in.Type))
	f.required("text", text)
	f.required("solution", solution)
	if !t.IsValid() {
		f.add("type", "oneof", "riddle qr gps photo", "must be one of riddle, qr, gps, photo")
	}
	f.required("placeId", in.PlaceID)
	f.optionalID("id", in.ID)
	if err := f.err(); err != nil {
		return experience.Experience{}, err
	}

	if _, err := e.users.GetUser(ctx, caller.SubjectID); err != nil {
		return experience.Experience{}, e.translate(ctx, "CreateExperience", err, apperr.OutcomeNotApplied)
	}

	pl, err := e.places.GetPlace(ctx, in.PlaceID)
	if err != nil {
		return experience.Experience{}, e.translate(ctx, "CreateExperience", err, apperr.OutcomeNotApplied)
	}
	if !authz.IsOwnerOrAdmin(caller, pl.CreatedBy) {
		return experience.Experience{}, apperr.Forbidden("You do not have permission to add experiences to this place")
	}

	x := experience.New(in.ID, text, t, solution, pl.ID, caller.SubjectID)
	span.SetAttributes(attribute.String("experience.id", x.ID))

	c := e.newCascade()
	inserted := true

	err = c.write("experience.create", func() error {
		return e.exps.CreateExperience(ctx, x)
	})
	if errors.Is(err, experience.ErrAlreadyExists) {
		existing, gerr := e.exps.GetExperience(ctx, x.ID)
		if gerr != nil {
			return experience.Experience{}, e.translate(ctx, "CreateExperience", gerr, apperr.OutcomeNotApplied)
		}
		if existing.CreatedBy != caller.SubjectID || existing.PlaceID != pl.ID {
			return experience.Experience{}, apperr.Conflict("Id is already in use")
		}
		x, inserted, err = existing, false, nil
	}
	if err != nil {
		return experience.Experience{}, e.compensate(ctx, "CreateExperience", x.ID, err, e.undoExperience(x, inserted))
	}

	if err := e.linkExperience(ctx, c, x); err != nil {
		return experience.Experience{}, e.compensate(ctx, "CreateExperience", x.ID, err, e.undoExperience(x, inserted))
	}

	// a concurrent delete of x itself may have run before the appends landed
	if _, err := e.exps.GetExperience(ctx, x.ID); err != nil {
		undo := e.undoExperience(x, inserted)
		if errors.Is(err, experience.ErrNotFound) {
			undo = e.scrubExperience(x)
		}
		return experience.Experience{}, e.compensate(ctx, "CreateExperience", x.ID, err, undo)
	}

	// a concurrent place or user delete may have listed children before the
	// insert landed
	if _, err := e.places.GetPlace(ctx, x.PlaceID); err != nil {
		return experience.Experience{}, e.compensate(ctx, "CreateExperience", x.ID, err, e.undoExperience(x, inserted))
	}
	if _, err := e.users.GetUser(ctx, x.CreatedBy); err != nil {
		return experience.Experience{}, e.compensate(ctx, "CreateExperience", x.ID, err, e.undoExperience(x, inserted))
	}

	return x, nil
}

func (e *Engine) linkExperience(ctx context.Context, c *cascade, x experience.Experience) error {
	var g errgroup.Group

	g.Go(func() error {
		return c.write("place.add_experience", func() error {
			return e.places.AddPlaceExperience(ctx, x.PlaceID, x.ID)
		})
	})
	g.Go(func() error {
		return c.write("user.add_experience", func() error {
			return e.users.AddUserExperience(ctx, x.CreatedBy, x.ID)
		})
	})

	return g.Wait()
}

func (e *Engine) undoExperience(x experience.Experience, inserted bool) func(context.Context) error {
	if !inserted {
		return nil
	}
	return func(ctx context.Context) error {
		return e.deleteExperience(ctx, e.newCascade(), x)
	}
}

// scrubExperience drops the backlinks of an experience whose record is
// already gone.
func (e *Engine) scrubExperience(x experience.Experience) func(context.Context) error {
	return func(ctx context.Context) error {
		return e.unlinkExperience(ctx, e.newCascade(), x)
	}
}

func (e *Engine) UpdateExperience(ctx context.Context, id string, patch experience.Patch, caller authz.Identity) (_ experience.Experience, err error) {
	ctx, span := e.startSpan(ctx, "UpdateExperience", attribute.String("experience.id", id))
	defer func() { endSpan(span, err) }()

	if err := requireCaller(caller); err != nil {
		return experience.Experience{}, err
	}

	x, err := e.exps.GetExperience(ctx, id)
	if err != nil {
		return experience.Experience{}, e.translate(ctx, "UpdateExperience", err, apperr.OutcomeNotApplied)
	}
	if !authz.IsOwnerOrAdmin(caller, x.CreatedBy) {
		return experience.Experience{}, apperr.Forbidden("You do not have permission to modify this experience")
	}

	patch.Text = trimPtr(patch.Text)
	patch.Solution = trimPtr(patch.Solution)

	var f fieldErrors
	if patch.Text != nil {
		f.required("text", *patch.Text)
	}
	if patch.Solution != nil {
		f.required("solution", *patch.Solution)
	}
	if patch.Type != nil && !patch.Type.IsValid() {
		f.add("type", "oneof", "riddle qr gps photo", "must be one of riddle, qr, gps, photo")
	}
	if err := f.err(); err != nil {
		return experience.Experience{}, err
	}
	if patch.Empty() {
		return x, nil
	}

	c := e.newCascade()
	var updated experience.Experience
	err = c.write("experience.update", func() error {
		var uerr error
		updated, uerr = e.exps.UpdateExperience(ctx, id, patch)
		return uerr
	})
	if err != nil {
		if errors.Is(err, experience.ErrNotFound) {
			return experience.Experience{}, e.translate(ctx, "UpdateExperience", err, apperr.OutcomeNotApplied)
		}
		return experience.Experience{}, e.translate(ctx, "UpdateExperience", err, c.outcome())
	}

	return updated, nil
}

// DeleteExperience unlinks the experience from its place and author, then
// removes the record.
func (e *Engine) DeleteExperience(ctx context.Context, id string, caller authz.Identity) (err error) {
	ctx, span := e.startSpan(ctx, "DeleteExperience", attribute.String("experience.id", id))
	defer func() { endSpan(span, err) }()

	if err := requireCaller(caller); err != nil {
		return err
	}

	x, err := e.exps.GetExperience(ctx, id)
	if err != nil {
		return e.translate(ctx, "DeleteExperience", err, apperr.OutcomeNotApplied)
	}
	if !authz.IsOwnerOrAdmin(caller, x.CreatedBy) {
		return apperr.Forbidden("You do not have permission to delete this experience")
	}

	err = e.once(ctx, "experience:"+x.ID, func(c *cascade) error {
		if err := e.deleteExperience(ctx, c, x); err != nil {
			return e.failCascade(ctx, "DeleteExperience", c, jobs.JobRepairDeleteExperience, x.ID, caller, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.log.InfoContext(ctx, "experience deleted", "experience_id", x.ID, "by", caller.SubjectID)
	return nil
}

func (e *Engine) GetExperience(ctx context.Context, id string) (_ ExperienceView, err error) {
	ctx, span := e.startSpan(ctx, "GetExperience", attribute.String("experience.id", id))
	defer func() { endSpan(span, err) }()

	x, err := e.exps.GetExperience(ctx, id)
	if err != nil {
		return ExperienceView{}, e.translate(ctx, "GetExperience", err, apperr.OutcomeApplied)
	}

	v, ok, err := e.experienceView(ctx, x)
	if err != nil {
		return ExperienceView{}, e.translate(ctx, "GetExperience", err, apperr.OutcomeApplied)
	}
	if !ok {
		return ExperienceView{}, apperr.NotFound("Experience not found")
	}
	return v, nil
}

// ListExperiences lists every visible experience, or only those under placeID
// when it is set.
func (e *Engine) ListExperiences(ctx context.Context, placeID string) (_ []ExperienceView, err error) {
	ctx, span := e.startSpan(ctx, "ListExperiences")
	defer func() { endSpan(span, err) }()

	var xs []experience.Experience
	if placeID != "" {
		xs, err = e.exps.ListExperiencesByPlace(ctx, placeID)
	} else {
		xs, err = e.exps.ListExperiences(ctx)
	}
	if err != nil {
		return nil, e.translate(ctx, "ListExperiences", err, apperr.OutcomeApplied)
	}

	views := make([]ExperienceView, len(xs))
	keep := make([]bool, len(xs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, x := range xs {
		g.Go(func() error {
			v, ok, verr := e.experienceView(gctx, x)
			if verr != nil {
				return verr
			}
			views[i], keep[i] = v, ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, e.translate(ctx, "ListExperiences", err, apperr.OutcomeApplied)
	}

	out := make([]ExperienceView, 0, len(xs))
	for i, v := range views {
		if keep[i] {
			out = append(out, v)
		}
	}
	return out, nil
}
