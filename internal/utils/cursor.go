package utils

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"time"
)

var ErrInvalidCursor = errors.New("invalid cursor")

// PlaceCursor marks the last place of a page in (createdAt, id) order.
type PlaceCursor struct {
	CreatedAt time.Time `json:"createdAt"`
	ID        string    `json:"id"`
}

func EncodePlaceCursor(createdAt time.Time, id string) (string, error) {
	b, err := json.Marshal(PlaceCursor{CreatedAt: createdAt.UTC(), ID: id})
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

func DecodePlaceCursor(cursor string) (PlaceCursor, error) {
	if cursor == "" {
		return PlaceCursor{}, ErrInvalidCursor
	}

	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return PlaceCursor{}, ErrInvalidCursor
	}

	var c PlaceCursor
	if err := json.Unmarshal(raw, &c); err != nil {
		return PlaceCursor{}, ErrInvalidCursor
	}
	if c.ID == "" || c.CreatedAt.IsZero() {
		return PlaceCursor{}, ErrInvalidCursor
	}
	return c, nil
}
