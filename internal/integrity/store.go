package integrity

import (
	"context"

	"github.com/geocoder89/placehunt/internal/domain/experience"
	"github.com/geocoder89/placehunt/internal/domain/place"
	"github.com/geocoder89/placehunt/internal/domain/user"
	"github.com/geocoder89/placehunt/internal/jobs"
)

// The stores only promise per-record atomicity. Set operations are
// add-if-absent / remove-if-present and report the parent's ErrNotFound when
// the parent record is gone.

type UserStore interface {
	CreateUser(ctx context.Context, u user.User) error
	GetUser(ctx context.Context, id string) (user.User, error)
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	ListUsers(ctx context.Context) ([]user.User, error)
	SetUserRole(ctx context.Context, id, role string) (user.User, error)
	DeleteUser(ctx context.Context, id string) error

	AddUserPlace(ctx context.Context, userID, placeID string) error
	RemoveUserPlace(ctx context.Context, userID, placeID string) error
	AddUserExperience(ctx context.Context, userID, experienceID string) error
	RemoveUserExperience(ctx context.Context, userID, experienceID string) error
}

type PlaceStore interface {
	CreatePlace(ctx context.Context, p place.Place) error
	GetPlace(ctx context.Context, id string) (place.Place, error)
	ListPlaces(ctx context.Context, filter place.ListFilter) ([]place.Place, error)
	ListPlacesByCreator(ctx context.Context, userID string) ([]place.Place, error)
	UpdatePlace(ctx context.Context, id string, patch place.Patch) (place.Place, error)
	DeletePlace(ctx context.Context, id string) error

	AddPlaceExperience(ctx context.Context, placeID, experienceID string) error
	RemovePlaceExperience(ctx context.Context, placeID, experienceID string) error
}

type ExperienceStore interface {
	CreateExperience(ctx context.Context, e experience.Experience) error
	GetExperience(ctx context.Context, id string) (experience.Experience, error)
	ListExperiences(ctx context.Context) ([]experience.Experience, error)
	ListExperiencesByPlace(ctx context.Context, placeID string) ([]experience.Experience, error)
	ListExperiencesByCreator(ctx context.Context, userID string) ([]experience.Experience, error)
	UpdateExperience(ctx context.Context, id string, patch experience.Patch) (experience.Experience, error)
	DeleteExperience(ctx context.Context, id string) error
}

type Store interface {
	UserStore
	PlaceStore
	ExperienceStore
}

// RepairQueue receives deletes that failed half way so a worker can drive
// them to completion.
type RepairQueue interface {
	EnqueueRepair(ctx context.Context, t jobs.JobType, payload jobs.RepairPayload) error
}
