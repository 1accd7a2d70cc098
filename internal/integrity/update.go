package integrity

import (
	"context"

	"github.com/geocoder89/placehunt/internal/apperr"
	"github.com/geocoder89/placehunt/internal/authz"
	"github.com/geocoder89/placehunt/internal/domain/experience"
	"github.com/geocoder89/placehunt/internal/domain/place"
)

type Kind string

const (
	KindPlace      Kind = "place"
	KindExperience Kind = "experience"
)

// Only these attributes survive an update. Relationship fields (place,
// createdBy, experiences) and anything unknown are dropped without error.
var (
	placeFields      = map[string]struct{}{"title": {}, "description": {}, "location": {}}
	experienceFields = map[string]struct{}{"text": {}, "type": {}, "solution": {}}
)

// UpdateEntity applies the scalar subset of fields to the place or experience
// id and returns the updated record.
func (e *Engine) UpdateEntity(ctx context.Context, kind Kind, id string, fields map[string]any, caller authz.Identity) (any, error) {
	switch kind {
	case KindPlace:
		patch, err := placePatch(fields)
		if err != nil {
			return nil, err
		}
		return e.UpdatePlace(ctx, id, patch, caller)
	case KindExperience:
		patch, err := experiencePatch(fields)
		if err != nil {
			return nil, err
		}
		return e.UpdateExperience(ctx, id, patch, caller)
	default:
		return nil, apperr.Validation("Unknown entity kind", nil)
	}
}

func placePatch(fields map[string]any) (place.Patch, error) {
	vals, err := scalarStrings(fields, placeFields)
	if err != nil {
		return place.Patch{}, err
	}
	return place.Patch{
		Title:       vals["title"],
		Description: vals["description"],
		Location:    vals["location"],
	}, nil
}

func experiencePatch(fields map[string]any) (experience.Patch, error) {
	vals, err := scalarStrings(fields, experienceFields)
	if err != nil {
		return experience.Patch{}, err
	}

	p := experience.Patch{Text: vals["text"], Solution: vals["solution"]}
	if t := vals["type"]; t != nil {
		typ := experience.Type(*t)
		p.Type = &typ
	}
	return p, nil
}

// scalarStrings keeps the allowed keys and requires each to be a string.
func scalarStrings(fields map[string]any, allowed map[string]struct{}) (map[string]*string, error) {
	out := make(map[string]*string, len(allowed))
	var f fieldErrors

	for k, v := range fields {
		if _, ok := allowed[k]; !ok {
			continue
		}
		s, ok := v.(string)
		if !ok {
			f.add(k, "string", "", "must be a string")
			continue
		}
		out[k] = &s
	}

	if err := f.err(); err != nil {
		return nil, err
	}
	return out, nil
}
