package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/placehunt/internal/domain/user"
)

type UsersRepo struct {
	mu         sync.RWMutex
	items      map[string]user.User
	byEmail    map[string]string
	byUsername map[string]string
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		items:      make(map[string]user.User),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
	}
}

func cloneUser(u user.User) user.User {
	u.Places = slices.Clone(u.Places)
	u.Experiences = slices.Clone(u.Experiences)
	if u.Places == nil {
		u.Places = []string{}
	}
	if u.Experiences == nil {
		u.Experiences = []string{}
	}
	return u
}

func (r *UsersRepo) CreateUser(_ context.Context, u user.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byUsername[u.Username]; ok {
		return user.ErrUsernameTaken
	}
	if _, ok := r.byEmail[u.Email]; ok {
		return user.ErrEmailTaken
	}

	r.items[u.ID] = cloneUser(u)
	r.byEmail[u.Email] = u.ID
	r.byUsername[u.Username] = u.ID
	return nil
}

func (r *UsersRepo) GetUser(_ context.Context, id string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return cloneUser(u), nil
}

func (r *UsersRepo) GetUserByEmail(_ context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	return cloneUser(r.items[id]), nil
}

func (r *UsersRepo) ListUsers(_ context.Context) ([]user.User, error) {
	r.mu.RLock()
	out := make([]user.User, 0, len(r.items))
	for _, u := range r.items {
		out = append(out, cloneUser(u))
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (r *UsersRepo) SetUserRole(_ context.Context, id, role string) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	u.Role = role
	u.UpdatedAt = time.Now().UTC()
	r.items[id] = u
	return cloneUser(u), nil
}

func (r *UsersRepo) DeleteUser(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.ErrNotFound
	}
	delete(r.items, id)
	delete(r.byEmail, u.Email)
	delete(r.byUsername, u.Username)
	return nil
}

// mutate applies fn to the stored user under the write lock.
func (r *UsersRepo) mutate(id string, fn func(u *user.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[id]
	if !ok {
		return user.ErrNotFound
	}
	fn(&u)
	r.items[id] = u
	return nil
}

func (r *UsersRepo) AddUserPlace(_ context.Context, userID, placeID string) error {
	return r.mutate(userID, func(u *user.User) { u.Places = addID(u.Places, placeID) })
}

func (r *UsersRepo) RemoveUserPlace(_ context.Context, userID, placeID string) error {
	return r.mutate(userID, func(u *user.User) { u.Places = removeID(u.Places, placeID) })
}

func (r *UsersRepo) AddUserExperience(_ context.Context, userID, experienceID string) error {
	return r.mutate(userID, func(u *user.User) { u.Experiences = addID(u.Experiences, experienceID) })
}

func (r *UsersRepo) RemoveUserExperience(_ context.Context, userID, experienceID string) error {
	return r.mutate(userID, func(u *user.User) { u.Experiences = removeID(u.Experiences, experienceID) })
}

// addID and removeID always return a fresh slice; stored slices are never
// shared with callers.
func addID(ids []string, id string) []string {
	if slices.Contains(ids, id) {
		return ids
	}
	return append(slices.Clone(ids), id)
}

func removeID(ids []string, id string) []string {
	i := slices.Index(ids, id)
	if i < 0 {
		return ids
	}
	return slices.Delete(slices.Clone(ids), i, i+1)
}
