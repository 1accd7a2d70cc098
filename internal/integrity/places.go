package integrity

import (
	"context"
	"errors"
	"strings"

	"github.com/geocoder89/placehunt/internal/apperr"
	"github.com/geocoder89/placehunt/internal/authz"
	"github.com/geocoder89/placehunt/internal/domain/place"
	"github.com/geocoder89/placehunt/internal/domain/user"
	"github.com/geocoder89/placehunt/internal/jobs"
	"go.opentelemetry.io/otel/attribute"
)

// PlaceInput is a create request. ID is optional; a caller that supplies one can
// replay the create safely.
type PlaceInput struct {
	ID          string
	Title       string
	Description string
	Location    string
}

func (e *Engine) CreatePlace(ctx context.Context, in PlaceInput, caller authz.Identity) (_ place.Place, err error) {
	ctx, span := e.startSpan(ctx, "CreatePlace")
	defer func() { endSpan(span, err) }()

	if err := requireCaller(caller); err != nil {
		return place.Place{}, err
	}

	var f fieldErrors
	title := strings.TrimSpace(in.Title)
	f.required("title", title)
	f.optionalID("id", in.ID)
	if err := f.err(); err != nil {
		return place.Place{}, err
	}

	if _, err := e.users.GetUser(ctx, caller.SubjectID); err != nil {
		return place.Place{}, e.translate(ctx, "CreatePlace", err, apperr.OutcomeNotApplied)
	}

	p := place.New(in.ID, title, strings.TrimSpace(in.Description), strings.TrimSpace(in.Location), caller.SubjectID)
	span.SetAttributes(attribute.String("place.id", p.ID))

	c := e.newCascade()
	inserted := true

	err = c.write("place.create", func() error {
		return e.places.CreatePlace(ctx, p)
	})
	if errors.Is(err, place.ErrAlreadyExists) {
		existing, gerr := e.places.GetPlace(ctx, p.ID)
		if gerr != nil {
			return place.Place{}, e.translate(ctx, "CreatePlace", gerr, apperr.OutcomeNotApplied)
		}
		if existing.CreatedBy != caller.SubjectID {
			return place.Place{}, apperr.Conflict("Id is already in use")
		}
		p, inserted, err = existing, false, nil
	}
	if err != nil {
		return place.Place{}, e.compensate(ctx, "CreatePlace", p.ID, err, e.undoPlace(p, inserted))
	}

	err = c.write("user.add_place", func() error {
		return e.users.AddUserPlace(ctx, p.CreatedBy, p.ID)
	})
	if err != nil {
		return place.Place{}, e.compensate(ctx, "CreatePlace", p.ID, err, e.undoPlace(p, inserted))
	}

	// a concurrent delete of p may have run before the append landed
	cur, err := e.places.GetPlace(ctx, p.ID)
	if err != nil {
		undo := e.undoPlace(p, inserted)
		if errors.Is(err, place.ErrNotFound) {
			undo = func(ctx context.Context) error {
				return e.unlinkPlace(ctx, e.newCascade(), p)
			}
		}
		return place.Place{}, e.compensate(ctx, "CreatePlace", p.ID, err, undo)
	}

	// the owner may have been deleted after its closure was computed
	if _, err := e.users.GetUser(ctx, p.CreatedBy); err != nil {
		return place.Place{}, e.compensate(ctx, "CreatePlace", p.ID, err, e.undoPlace(p, inserted))
	}

	if !inserted {
		p = cur
	}
	return p, nil
}

// undoPlace returns nil for a replayed create: the record predates this call
// and is not ours to remove.
func (e *Engine) undoPlace(p place.Place, inserted bool) func(context.Context) error {
	if !inserted {
		return nil
	}
	return func(ctx context.Context) error {
		return e.cascadePlace(ctx, e.newCascade(), p)
	}
}

func (e *Engine) UpdatePlace(ctx context.Context, id string, patch place.Patch, caller authz.Identity) (_ place.Place, err error) {
	ctx, span := e.startSpan(ctx, "UpdatePlace", attribute.String("place.id", id))
	defer func() { endSpan(span, err) }()

	if err := requireCaller(caller); err != nil {
		return place.Place{}, err
	}

	p, err := e.places.GetPlace(ctx, id)
	if err != nil {
		return place.Place{}, e.translate(ctx, "UpdatePlace", err, apperr.OutcomeNotApplied)
	}
	if !authz.IsOwnerOrAdmin(caller, p.CreatedBy) {
		return place.Place{}, apperr.Forbidden("You do not have permission to modify this place")
	}

	patch = trimPlacePatch(patch)
	var f fieldErrors
	if patch.Title != nil {
		f.required("title", *patch.Title)
	}
	if err := f.err(); err != nil {
		return place.Place{}, err
	}
	if patch.Empty() {
		return p, nil
	}

	c := e.newCascade()
	var updated place.Place
	err = c.write("place.update", func() error {
		var uerr error
		updated, uerr = e.places.UpdatePlace(ctx, id, patch)
		return uerr
	})
	if err != nil {
		if errors.Is(err, place.ErrNotFound) {
			return place.Place{}, e.translate(ctx, "UpdatePlace", err, apperr.OutcomeNotApplied)
		}
		return place.Place{}, e.translate(ctx, "UpdatePlace", err, c.outcome())
	}

	return updated, nil
}

func trimPlacePatch(p place.Patch) place.Patch {
	p.Title = trimPtr(p.Title)
	p.Description = trimPtr(p.Description)
	p.Location = trimPtr(p.Location)
	return p
}

func trimPtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// DeletePlace removes every experience under the place, then the owner's
// backlink, then the place.
func (e *Engine) DeletePlace(ctx context.Context, id string, caller authz.Identity) (err error) {
	ctx, span := e.startSpan(ctx, "DeletePlace", attribute.String("place.id", id))
	defer func() { endSpan(span, err) }()

	if err := requireCaller(caller); err != nil {
		return err
	}

	p, err := e.places.GetPlace(ctx, id)
	if err != nil {
		return e.translate(ctx, "DeletePlace", err, apperr.OutcomeNotApplied)
	}
	if !authz.IsOwnerOrAdmin(caller, p.CreatedBy) {
		return apperr.Forbidden("You do not have permission to delete this place")
	}

	err = e.once(ctx, "place:"+p.ID, func(c *cascade) error {
		if err := e.cascadePlace(ctx, c, p); err != nil {
			return e.failCascade(ctx, "DeletePlace", c, jobs.JobRepairDeletePlace, p.ID, caller, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.log.InfoContext(ctx, "place deleted", "place_id", p.ID, "by", caller.SubjectID)
	return nil
}

func (e *Engine) GetPlace(ctx context.Context, id string) (_ PlaceView, err error) {
	ctx, span := e.startSpan(ctx, "GetPlace", attribute.String("place.id", id))
	defer func() { endSpan(span, err) }()

	p, err := e.places.GetPlace(ctx, id)
	if err != nil {
		return PlaceView{}, e.translate(ctx, "GetPlace", err, apperr.OutcomeApplied)
	}

	v, ok, err := e.placeView(ctx, p)
	if err != nil {
		return PlaceView{}, e.translate(ctx, "GetPlace", err, apperr.OutcomeApplied)
	}
	if !ok {
		return PlaceView{}, apperr.NotFound("Place not found")
	}
	return v, nil
}

// PlacePage is one page of places ordered by (createdAt, id).
type PlacePage struct {
	Items   []PlaceView
	HasMore bool
}

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// ListPlaces fills the page with visible places. Places hidden because their
// owner is being deleted do not count against the limit, so a short page
// always means the listing is exhausted.
func (e *Engine) ListPlaces(ctx context.Context, filter place.ListFilter) (_ PlacePage, err error) {
	ctx, span := e.startSpan(ctx, "ListPlaces")
	defer func() { endSpan(span, err) }()

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	filter.Limit = limit + 1

	views := make([]PlaceView, 0, limit+1)
	for len(views) <= limit {
		ps, err := e.places.ListPlaces(ctx, filter)
		if err != nil {
			return PlacePage{}, e.translate(ctx, "ListPlaces", err, apperr.OutcomeApplied)
		}

		vs, err := e.placeViews(ctx, ps)
		if err != nil {
			return PlacePage{}, e.translate(ctx, "ListPlaces", err, apperr.OutcomeApplied)
		}
		views = append(views, vs...)

		if len(ps) < filter.Limit {
			break
		}
		last := ps[len(ps)-1]
		filter.AfterCreatedAt, filter.AfterID = last.CreatedAt, last.ID
	}

	page := PlacePage{Items: views}
	if len(views) > limit {
		page.HasMore = true
		page.Items = views[:limit]
	}
	return page, nil
}

// ownerExists reports whether id still resolves to a user.
func (e *Engine) ownerExists(ctx context.Context, id string) (user.User, bool, error) {
	u, err := e.users.GetUser(ctx, id)
	if errors.Is(err, user.ErrNotFound) {
		return user.User{}, false, nil
	}
	if err != nil {
		return user.User{}, false, err
	}
	return u, true, nil
}
