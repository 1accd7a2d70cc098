package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/geocoder89/placehunt/internal/domain/place"
	"github.com/geocoder89/placehunt/internal/domain/user"
	"github.com/geocoder89/placehunt/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PlacesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewPlacesRepo(pool *pgxpool.Pool, prom *observability.Prom) *PlacesRepo {
	return &PlacesRepo{pool: pool, prom: prom}
}

const placeColumns = `id::text, title, description, location, created_by::text,
	experiences::text[], created_at, updated_at`

func scanPlace(row pgx.Row) (place.Place, error) {
	var p place.Place
	err := row.Scan(
		&p.ID, &p.Title, &p.Description, &p.Location, &p.CreatedBy,
		&p.Experiences, &p.CreatedAt, &p.UpdatedAt,
	)
	return p, err
}

func (r *PlacesRepo) CreatePlace(ctx context.Context, p place.Place) error {
	err := r.prom.ObserveDB("places.create", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO places (id, title, description, location, created_by, experiences, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, '{}', $6, $7)`,
			p.ID, p.Title, p.Description, p.Location, p.CreatedBy, p.CreatedAt, p.UpdatedAt,
		)
		return err
	})

	switch code, _ := pgCode(err); code {
	case "23505":
		return place.ErrAlreadyExists
	case "23503":
		return user.ErrNotFound
	}
	return err
}

func (r *PlacesRepo) GetPlace(ctx context.Context, id string) (place.Place, error) {
	var p place.Place
	err := r.prom.ObserveDB("places.get", func() error {
		var serr error
		p, serr = scanPlace(r.pool.QueryRow(ctx, `SELECT `+placeColumns+` FROM places WHERE id = $1`, id))
		return serr
	})

	if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
		return place.Place{}, place.ErrNotFound
	}
	return p, err
}

func (r *PlacesRepo) ListPlaces(ctx context.Context, filter place.ListFilter) ([]place.Place, error) {
	var (
		conds []string
		args  []any
	)

	if !filter.AfterCreatedAt.IsZero() {
		conds = append(conds, fmt.Sprintf("(created_at, id) > ($%d, $%d::uuid)", len(args)+1, len(args)+2))
		args = append(args, filter.AfterCreatedAt, filter.AfterID)
	}

	q := `SELECT ` + placeColumns + ` FROM places`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at ASC, id ASC"
	if filter.Limit > 0 {
		q += fmt.Sprintf(" LIMIT $%d", len(args)+1)
		args = append(args, filter.Limit)
	}

	return r.query(ctx, "places.list", q, args...)
}

func (r *PlacesRepo) ListPlacesByCreator(ctx context.Context, userID string) ([]place.Place, error) {
	out, err := r.query(ctx, "places.list_by_creator",
		`SELECT `+placeColumns+` FROM places WHERE created_by = $1 ORDER BY created_at, id`, userID)
	if isInvalidText(err) {
		return []place.Place{}, nil
	}
	return out, err
}

func (r *PlacesRepo) query(ctx context.Context, op, sql string, args ...any) ([]place.Place, error) {
	var out []place.Place

	err := r.prom.ObserveDB(op, func() error {
		rows, err := r.pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]place.Place, 0)
		for rows.Next() {
			p, err := scanPlace(rows)
			if err != nil {
				return err
			}
			out = append(out, p)
		}
		return rows.Err()
	})

	return out, err
}

func (r *PlacesRepo) UpdatePlace(ctx context.Context, id string, patch place.Patch) (place.Place, error) {
	var p place.Place
	err := r.prom.ObserveDB("places.update", func() error {
		var serr error
		p, serr = scanPlace(r.pool.QueryRow(ctx, `
			UPDATE places
			SET title       = COALESCE($2, title),
			    description = COALESCE($3, description),
			    location    = COALESCE($4, location),
			    updated_at  = NOW()
			WHERE id = $1
			RETURNING `+placeColumns,
			id, patch.Title, patch.Description, patch.Location,
		))
		return serr
	})

	if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
		return place.Place{}, place.ErrNotFound
	}
	return p, err
}

func (r *PlacesRepo) DeletePlace(ctx context.Context, id string) error {
	return r.exec(ctx, "places.delete", `DELETE FROM places WHERE id = $1`, id)
}

func (r *PlacesRepo) AddPlaceExperience(ctx context.Context, placeID, experienceID string) error {
	return r.exec(ctx, "places.add_experience", `
		UPDATE places
		SET experiences = CASE WHEN $2::uuid = ANY(experiences) THEN experiences ELSE array_append(experiences, $2::uuid) END,
		    updated_at = NOW()
		WHERE id = $1`, placeID, experienceID)
}

func (r *PlacesRepo) RemovePlaceExperience(ctx context.Context, placeID, experienceID string) error {
	return r.exec(ctx, "places.remove_experience", `
		UPDATE places SET experiences = array_remove(experiences, $2::uuid), updated_at = NOW()
		WHERE id = $1`, placeID, experienceID)
}

func (r *PlacesRepo) exec(ctx context.Context, op, sql string, args ...any) error {
	var tag pgconn.CommandTag
	err := r.prom.ObserveDB(op, func() error {
		var eerr error
		tag, eerr = r.pool.Exec(ctx, sql, args...)
		return eerr
	})

	if isInvalidText(err) {
		return place.ErrNotFound
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return place.ErrNotFound
	}
	return nil
}
