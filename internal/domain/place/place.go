package place

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("place not found")
	ErrAlreadyExists = errors.New("place already exists")
)

type Place struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Location    string    `json:"location,omitempty"`
	CreatedBy   string    `json:"createdBy"`
	Experiences []string  `json:"experiences"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type CreatePlaceRequest struct {
	Title       string `json:"title" binding:"required,max=200"`
	Description string `json:"description" binding:"omitempty,max=2000"`
	Location    string `json:"location" binding:"omitempty,max=500"`
}

// Patch holds the scalar attributes an update may touch. Nil means untouched.
type Patch struct {
	Title       *string
	Description *string
	Location    *string
}

func (p Patch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Location == nil
}

// Apply returns a copy of pl with the patch applied.
func (p Patch) Apply(pl Place) Place {
	if p.Title != nil {
		pl.Title = *p.Title
	}
	if p.Description != nil {
		pl.Description = *p.Description
	}
	if p.Location != nil {
		pl.Location = *p.Location
	}
	return pl
}

// ListFilter drives cursor pagination ordered by (createdAt, id).
type ListFilter struct {
	Limit          int
	AfterCreatedAt time.Time
	AfterID        string
}

// New builds a place owned by ownerID. A non-empty id is kept so replays of the
// same create land on the same record.
func New(id, title, description, location, ownerID string) Place {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()

	return Place{
		ID:          id,
		Title:       title,
		Description: description,
		Location:    location,
		CreatedBy:   ownerID,
		Experiences: []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}
