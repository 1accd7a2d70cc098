package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/placehunt/internal/domain/experience"
)

// ExperiencesRepo keeps a secondary index from place id to child ids, derived
// from the forward reference.
type ExperiencesRepo struct {
	mu      sync.RWMutex
	items   map[string]experience.Experience
	byPlace map[string]map[string]struct{}
}

func NewExperiencesRepo() *ExperiencesRepo {
	return &ExperiencesRepo{
		items:   make(map[string]experience.Experience),
		byPlace: make(map[string]map[string]struct{}),
	}
}

func (r *ExperiencesRepo) CreateExperience(_ context.Context, x experience.Experience) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[x.ID]; ok {
		return experience.ErrAlreadyExists
	}
	r.items[x.ID] = x

	children, ok := r.byPlace[x.PlaceID]
	if !ok {
		children = make(map[string]struct{})
		r.byPlace[x.PlaceID] = children
	}
	children[x.ID] = struct{}{}
	return nil
}

func (r *ExperiencesRepo) GetExperience(_ context.Context, id string) (experience.Experience, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	x, ok := r.items[id]
	if !ok {
		return experience.Experience{}, experience.ErrNotFound
	}
	return x, nil
}

func (r *ExperiencesRepo) ListExperiences(_ context.Context) ([]experience.Experience, error) {
	r.mu.RLock()
	out := make([]experience.Experience, 0, len(r.items))
	for _, x := range r.items {
		out = append(out, x)
	}
	r.mu.RUnlock()

	sortExperiences(out)
	return out, nil
}

func (r *ExperiencesRepo) ListExperiencesByPlace(_ context.Context, placeID string) ([]experience.Experience, error) {
	r.mu.RLock()
	children := r.byPlace[placeID]
	out := make([]experience.Experience, 0, len(children))
	for id := range children {
		out = append(out, r.items[id])
	}
	r.mu.RUnlock()

	sortExperiences(out)
	return out, nil
}

func (r *ExperiencesRepo) ListExperiencesByCreator(_ context.Context, userID string) ([]experience.Experience, error) {
	r.mu.RLock()
	out := make([]experience.Experience, 0)
	for _, x := range r.items {
		if x.CreatedBy == userID {
			out = append(out, x)
		}
	}
	r.mu.RUnlock()

	sortExperiences(out)
	return out, nil
}

func (r *ExperiencesRepo) UpdateExperience(_ context.Context, id string, patch experience.Patch) (experience.Experience, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	x, ok := r.items[id]
	if !ok {
		return experience.Experience{}, experience.ErrNotFound
	}
	x = patch.Apply(x)
	x.UpdatedAt = time.Now().UTC()
	r.items[id] = x
	return x, nil
}

func (r *ExperiencesRepo) DeleteExperience(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	x, ok := r.items[id]
	if !ok {
		return experience.ErrNotFound
	}
	delete(r.items, id)

	if children := r.byPlace[x.PlaceID]; children != nil {
		delete(children, id)
		if len(children) == 0 {
			delete(r.byPlace, x.PlaceID)
		}
	}
	return nil
}

func sortExperiences(xs []experience.Experience) {
	sort.Slice(xs, func(i, j int) bool {
		if xs[i].CreatedAt.Equal(xs[j].CreatedAt) {
			return xs[i].ID < xs[j].ID
		}
		return xs[i].CreatedAt.Before(xs[j].CreatedAt)
	})
}
