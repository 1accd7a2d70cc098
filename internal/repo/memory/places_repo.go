package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/placehunt/internal/domain/place"
)

type PlacesRepo struct {
	mu    sync.RWMutex
	items map[string]place.Place
}

func NewPlacesRepo() *PlacesRepo {
	return &PlacesRepo{items: make(map[string]place.Place)}
}

func clonePlace(p place.Place) place.Place {
	p.Experiences = slices.Clone(p.Experiences)
	if p.Experiences == nil {
		p.Experiences = []string{}
	}
	return p
}

func (r *PlacesRepo) CreatePlace(_ context.Context, p place.Place) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[p.ID]; ok {
		return place.ErrAlreadyExists
	}
	r.items[p.ID] = clonePlace(p)
	return nil
}

func (r *PlacesRepo) GetPlace(_ context.Context, id string) (place.Place, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.items[id]
	if !ok {
		return place.Place{}, place.ErrNotFound
	}
	return clonePlace(p), nil
}

func (r *PlacesRepo) ListPlaces(_ context.Context, filter place.ListFilter) ([]place.Place, error) {
	out := r.collect(func(p place.Place) bool {
		if filter.AfterCreatedAt.IsZero() {
			return true
		}
		return p.CreatedAt.After(filter.AfterCreatedAt) ||
			(p.CreatedAt.Equal(filter.AfterCreatedAt) && p.ID > filter.AfterID)
	})

	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (r *PlacesRepo) ListPlacesByCreator(_ context.Context, userID string) ([]place.Place, error) {
	return r.collect(func(p place.Place) bool { return p.CreatedBy == userID }), nil
}

// collect returns matching places ordered by (createdAt, id).
func (r *PlacesRepo) collect(match func(place.Place) bool) []place.Place {
	r.mu.RLock()
	out := make([]place.Place, 0)
	for _, p := range r.items {
		if match(p) {
			out = append(out, clonePlace(p))
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (r *PlacesRepo) UpdatePlace(_ context.Context, id string, patch place.Patch) (place.Place, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return place.Place{}, place.ErrNotFound
	}
	p = patch.Apply(p)
	p.UpdatedAt = time.Now().UTC()
	r.items[id] = p
	return clonePlace(p), nil
}

func (r *PlacesRepo) DeletePlace(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[id]; !ok {
		return place.ErrNotFound
	}
	delete(r.items, id)
	return nil
}

func (r *PlacesRepo) AddPlaceExperience(_ context.Context, placeID, experienceID string) error {
	return r.mutate(placeID, func(p *place.Place) { p.Experiences = addID(p.Experiences, experienceID) })
}

func (r *PlacesRepo) RemovePlaceExperience(_ context.Context, placeID, experienceID string) error {
	return r.mutate(placeID, func(p *place.Place) { p.Experiences = removeID(p.Experiences, experienceID) })
}

func (r *PlacesRepo) mutate(id string, fn func(p *place.Place)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.items[id]
	if !ok {
		return place.ErrNotFound
	}
	fn(&p)
	r.items[id] = p
	return nil
}
