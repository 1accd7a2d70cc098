package integrity

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"testing"

	"github.com/geocoder89/placehunt/internal/authz"
	"github.com/geocoder89/placehunt/internal/domain/experience"
	"github.com/geocoder89/placehunt/internal/domain/place"
	"github.com/geocoder89/placehunt/internal/domain/user"
	"github.com/geocoder89/placehunt/internal/repo/memory"
	"github.com/geocoder89/placehunt/internal/security"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	t      *testing.T
	ctx    context.Context
	store  *memory.Store
	jobs   *memory.JobsRepo
	engine *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	return newFixtureWith(t, store, store)
}

func newFixtureWith(t *testing.T, store *memory.Store, backend Store) *fixture {
	t.Helper()
	jobsRepo := memory.NewJobsRepo()

	e := New(backend, Options{
		Hasher:  security.BcryptHasher{Cost: 4},
		Repairs: jobsRepo,
		Logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	})

	return &fixture{t: t, ctx: context.Background(), store: store, jobs: jobsRepo, engine: e}
}

func (f *fixture) register(name string) authz.Identity {
	f.t.Helper()
	u, err := f.engine.RegisterUser(f.ctx, name, name+"@example.com", "password1")
	require.NoError(f.t, err)
	return authz.Identity{SubjectID: u.ID, Role: u.Role}
}

func (f *fixture) admin(name string) authz.Identity {
	f.t.Helper()
	id := f.register(name)
	_, err := f.store.SetUserRole(f.ctx, id.SubjectID, user.RoleAdmin)
	require.NoError(f.t, err)
	return authz.Identity{SubjectID: id.SubjectID, Role: user.RoleAdmin}
}

func (f *fixture) place(owner authz.Identity, title string) place.Place {
	f.t.Helper()
	p, err := f.engine.CreatePlace(f.ctx, PlaceInput{Title: title}, owner)
	require.NoError(f.t, err)
	return p
}

func (f *fixture) experience(author authz.Identity, placeID, text string) experience.Experience {
	f.t.Helper()
	x, err := f.engine.CreateExperience(f.ctx, ExperienceInput{
		Text: text, Type: "riddle", Solution: "42", PlaceID: placeID,
	}, author)
	require.NoError(f.t, err)
	return x
}

func (f *fixture) user(id string) user.User {
	f.t.Helper()
	u, err := f.store.GetUser(f.ctx, id)
	require.NoError(f.t, err)
	return u
}

func (f *fixture) requirePlaceGone(id string) {
	f.t.Helper()
	_, err := f.store.GetPlace(f.ctx, id)
	require.ErrorIs(f.t, err, place.ErrNotFound)
}

func (f *fixture) requireExperienceGone(id string) {
	f.t.Helper()
	_, err := f.store.GetExperience(f.ctx, id)
	require.ErrorIs(f.t, err, experience.ErrNotFound)
}

// requireGraphConsistent checks every backlink set against the forward
// references and that nothing points at a missing record.
func requireGraphConsistent(t *testing.T, ctx context.Context, s *memory.Store) {
	t.Helper()

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	places, err := s.ListPlaces(ctx, place.ListFilter{})
	require.NoError(t, err)
	exps, err := s.ListExperiences(ctx)
	require.NoError(t, err)

	userSet := map[string]bool{}
	for _, u := range users {
		userSet[u.ID] = true
		require.True(t, user.ValidRole(u.Role), "user %s has role %q", u.ID, u.Role)
	}
	placeSet := map[string]bool{}
	for _, p := range places {
		placeSet[p.ID] = true
		require.True(t, userSet[p.CreatedBy], "place %s owned by missing user %s", p.ID, p.CreatedBy)
	}

	wantPlaceExps := map[string][]string{}
	wantUserExps := map[string][]string{}
	wantUserPlaces := map[string][]string{}

	for _, x := range exps {
		require.True(t, placeSet[x.PlaceID], "experience %s under missing place %s", x.ID, x.PlaceID)
		require.True(t, userSet[x.CreatedBy], "experience %s by missing user %s", x.ID, x.CreatedBy)
		wantPlaceExps[x.PlaceID] = append(wantPlaceExps[x.PlaceID], x.ID)
		wantUserExps[x.CreatedBy] = append(wantUserExps[x.CreatedBy], x.ID)
	}
	for _, p := range places {
		wantUserPlaces[p.CreatedBy] = append(wantUserPlaces[p.CreatedBy], p.ID)
		require.ElementsMatch(t, wantPlaceExps[p.ID], p.Experiences, "place %s experiences", p.ID)
		require.Len(t, p.Experiences, len(uniq(p.Experiences)), "place %s has duplicate links", p.ID)
	}
	for _, u := range users {
		require.ElementsMatch(t, wantUserPlaces[u.ID], u.Places, "user %s places", u.ID)
		require.ElementsMatch(t, wantUserExps[u.ID], u.Experiences, "user %s experiences", u.ID)
	}
}

func uniq(ids []string) []string {
	out := slices.Clone(ids)
	sort.Strings(out)
	return slices.Compact(out)
}

type graphSnapshot struct {
	users  []user.User
	places []place.Place
	exps   []experience.Experience
}

func snapshot(t *testing.T, ctx context.Context, s *memory.Store) graphSnapshot {
	t.Helper()
	var g graphSnapshot
	var err error
	g.users, err = s.ListUsers(ctx)
	require.NoError(t, err)
	g.places, err = s.ListPlaces(ctx, place.ListFilter{})
	require.NoError(t, err)
	g.exps, err = s.ListExperiences(ctx)
	require.NoError(t, err)
	return g
}

// faultyStore fails chosen operations once each, after the real store has
// been left untouched. It can also run a hook once, just before a chosen
// operation reaches the real store, to interleave a concurrent call.
type faultyStore struct {
	*memory.Store

	mu       sync.Mutex
	failures map[string]error
	hooks    map[string]func()
	calls    map[string]int
}

func newFaultyStore() *faultyStore {
	return &faultyStore{
		Store:    memory.NewStore(),
		failures: map[string]error{},
		hooks:    map[string]func(){},
		calls:    map[string]int{},
	}
}

func (f *faultyStore) failNext(op string, err error) {
	f.mu.Lock()
	f.failures[op] = err
	f.mu.Unlock()
}

func (f *faultyStore) beforeNext(op string, fn func()) {
	f.mu.Lock()
	f.hooks[op] = fn
	f.mu.Unlock()
}

func (f *faultyStore) trip(op string) error {
	f.mu.Lock()
	f.calls[op]++
	hook := f.hooks[op]
	delete(f.hooks, op)
	err, failing := f.failures[op]
	delete(f.failures, op)
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	if failing {
		return err
	}
	return nil
}

func (f *faultyStore) DeletePlace(ctx context.Context, id string) error {
	if err := f.trip("DeletePlace"); err != nil {
		return err
	}
	return f.Store.DeletePlace(ctx, id)
}

func (f *faultyStore) DeleteExperience(ctx context.Context, id string) error {
	if err := f.trip("DeleteExperience"); err != nil {
		return err
	}
	return f.Store.DeleteExperience(ctx, id)
}

func (f *faultyStore) DeleteUser(ctx context.Context, id string) error {
	if err := f.trip("DeleteUser"); err != nil {
		return err
	}
	return f.Store.DeleteUser(ctx, id)
}

func (f *faultyStore) RemoveUserPlace(ctx context.Context, userID, placeID string) error {
	if err := f.trip("RemoveUserPlace"); err != nil {
		return err
	}
	return f.Store.RemoveUserPlace(ctx, userID, placeID)
}

func (f *faultyStore) AddUserExperience(ctx context.Context, userID, experienceID string) error {
	if err := f.trip("AddUserExperience"); err != nil {
		return err
	}
	return f.Store.AddUserExperience(ctx, userID, experienceID)
}

func (f *faultyStore) AddPlaceExperience(ctx context.Context, placeID, experienceID string) error {
	if err := f.trip("AddPlaceExperience"); err != nil {
		return err
	}
	return f.Store.AddPlaceExperience(ctx, placeID, experienceID)
}

func (f *faultyStore) AddUserPlace(ctx context.Context, userID, placeID string) error {
	if err := f.trip("AddUserPlace"); err != nil {
		return err
	}
	return f.Store.AddUserPlace(ctx, userID, placeID)
}
