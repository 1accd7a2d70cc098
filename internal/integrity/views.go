package integrity

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/geocoder89/placehunt/internal/domain/experience"
	"github.com/geocoder89/placehunt/internal/domain/place"
	"github.com/geocoder89/placehunt/internal/domain/user"
	"golang.org/x/sync/errgroup"
)

// PlaceView is a place as readers see it: owner resolved, experiences
// resolved through their forward reference.
type PlaceView struct {
	ID          string                  `json:"id"`
	Title       string                  `json:"title"`
	Description string                  `json:"description,omitempty"`
	Location    string                  `json:"location,omitempty"`
	CreatedBy   user.Summary            `json:"createdBy"`
	Experiences []experience.Experience `json:"experiences"`
	CreatedAt   time.Time               `json:"createdAt"`
	UpdatedAt   time.Time               `json:"updatedAt"`
}

type PlaceSummary struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type ExperienceView struct {
	ID        string          `json:"id"`
	Text      string          `json:"text"`
	Type      experience.Type `json:"type"`
	Solution  string          `json:"solution"`
	Place     PlaceSummary    `json:"place"`
	CreatedBy user.Summary    `json:"createdBy"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// placeView resolves p for a reader. ok is false when p's owner is gone, which
// only happens while a user cascade is in flight. Experiences are the ones
// both pointing at p and linked from it, in link order, so a half-created or
// half-deleted experience is never listed.
func (e *Engine) placeView(ctx context.Context, p place.Place) (PlaceView, bool, error) {
	owner, ok, err := e.ownerExists(ctx, p.CreatedBy)
	if err != nil || !ok {
		return PlaceView{}, false, err
	}

	children, err := e.exps.ListExperiencesByPlace(ctx, p.ID)
	if err != nil {
		return PlaceView{}, false, err
	}

	linked := make([]experience.Experience, 0, len(children))
	for _, x := range children {
		if slices.Contains(p.Experiences, x.ID) {
			linked = append(linked, x)
		}
	}
	slices.SortStableFunc(linked, func(a, b experience.Experience) int {
		return slices.Index(p.Experiences, a.ID) - slices.Index(p.Experiences, b.ID)
	})

	return PlaceView{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Location:    p.Location,
		CreatedBy:   owner.Summary(),
		Experiences: linked,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}, true, nil
}

func (e *Engine) placeViews(ctx context.Context, ps []place.Place) ([]PlaceView, error) {
	views := make([]PlaceView, len(ps))
	keep := make([]bool, len(ps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, p := range ps {
		g.Go(func() error {
			v, ok, err := e.placeView(gctx, p)
			if err != nil {
				return err
			}
			views[i], keep[i] = v, ok
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]PlaceView, 0, len(ps))
	for i, v := range views {
		if keep[i] {
			out = append(out, v)
		}
	}
	return out, nil
}

// experienceView resolves x for a reader. ok is false while x is being created
// or deleted, or while its place or author is going away.
func (e *Engine) experienceView(ctx context.Context, x experience.Experience) (ExperienceView, bool, error) {
	p, err := e.places.GetPlace(ctx, x.PlaceID)
	if errors.Is(err, place.ErrNotFound) {
		return ExperienceView{}, false, nil
	}
	if err != nil {
		return ExperienceView{}, false, err
	}
	if !slices.Contains(p.Experiences, x.ID) {
		return ExperienceView{}, false, nil
	}

	author, ok, err := e.ownerExists(ctx, x.CreatedBy)
	if err != nil || !ok {
		return ExperienceView{}, false, err
	}

	return ExperienceView{
		ID:        x.ID,
		Text:      x.Text,
		Type:      x.Type,
		Solution:  x.Solution,
		Place:     PlaceSummary{ID: p.ID, Title: p.Title},
		CreatedBy: author.Summary(),
		CreatedAt: x.CreatedAt,
		UpdatedAt: x.UpdatedAt,
	}, true, nil
}
