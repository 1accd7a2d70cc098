package experience

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	TypeRiddle Type = "riddle"
	TypeQR     Type = "qr"
	TypeGPS    Type = "gps"
	TypePhoto  Type = "photo"
)

func (t Type) IsValid() bool {
	switch t {
	case TypeRiddle, TypeQR, TypeGPS, TypePhoto:
		return true
	default:
		return false
	}
}

var (
	ErrNotFound      = errors.New("experience not found")
	ErrAlreadyExists = errors.New("experience already exists")
)

type Experience struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Type      Type      `json:"type"`
	Solution  string    `json:"solution"`
	PlaceID   string    `json:"place"`
	CreatedBy string    `json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateExperienceRequest struct {
	Text     string `json:"text" binding:"required,max=2000"`
	Type     string `json:"type" binding:"required,oneof=riddle qr gps photo"`
	Solution string `json:"solution" binding:"required,max=500"`
	PlaceID  string `json:"placeId" binding:"required,uuid"`
}

type Patch struct {
	Text     *string
	Type     *Type
	Solution *string
}

func (p Patch) Empty() bool {
	return p.Text == nil && p.Type == nil && p.Solution == nil
}

func (p Patch) Apply(e Experience) Experience {
	if p.Text != nil {
		e.Text = *p.Text
	}
	if p.Type != nil {
		e.Type = *p.Type
	}
	if p.Solution != nil {
		e.Solution = *p.Solution
	}
	return e
}

func New(id, text string, t Type, solution, placeID, ownerID string) Experience {
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()

	return Experience{
		ID:        id,
		Text:      text,
		Type:      t,
		Solution:  solution,
		PlaceID:   placeID,
		CreatedBy: ownerID,
		CreatedAt: now,
		UpdatedAt: now,
	}
}
