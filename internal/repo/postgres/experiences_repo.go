package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/placehunt/internal/domain/experience"
	"github.com/geocoder89/placehunt/internal/domain/place"
	"github.com/geocoder89/placehunt/internal/domain/user"
	"github.com/geocoder89/placehunt/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ExperiencesRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewExperiencesRepo(pool *pgxpool.Pool, prom *observability.Prom) *ExperiencesRepo {
	return &ExperiencesRepo{pool: pool, prom: prom}
}

const experienceColumns = `id::text, text, type, solution, place_id::text, created_by::text,
	created_at, updated_at`

func scanExperience(row pgx.Row) (experience.Experience, error) {
	var x experience.Experience
	var typ string
	err := row.Scan(
		&x.ID, &x.Text, &typ, &x.Solution, &x.PlaceID, &x.CreatedBy,
		&x.CreatedAt, &x.UpdatedAt,
	)
	x.Type = experience.Type(typ)
	return x, err
}

func (r *ExperiencesRepo) CreateExperience(ctx context.Context, x experience.Experience) error {
	err := r.prom.ObserveDB("experiences.create", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO experiences (id, text, type, solution, place_id, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			x.ID, x.Text, string(x.Type), x.Solution, x.PlaceID, x.CreatedBy, x.CreatedAt, x.UpdatedAt,
		)
		return err
	})

	switch code, constraint := pgCode(err); code {
	case "23505":
		return experience.ErrAlreadyExists
	case "23503":
		if constraint == "experiences_created_by_fkey" {
			return user.ErrNotFound
		}
		return place.ErrNotFound
	}
	return err
}

func (r *ExperiencesRepo) GetExperience(ctx context.Context, id string) (experience.Experience, error) {
	var x experience.Experience
	err := r.prom.ObserveDB("experiences.get", func() error {
		var serr error
		x, serr = scanExperience(r.pool.QueryRow(ctx, `SELECT `+experienceColumns+` FROM experiences WHERE id = $1`, id))
		return serr
	})

	if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
		return experience.Experience{}, experience.ErrNotFound
	}
	return x, err
}

func (r *ExperiencesRepo) ListExperiences(ctx context.Context) ([]experience.Experience, error) {
	return r.query(ctx, "experiences.list",
		`SELECT `+experienceColumns+` FROM experiences ORDER BY created_at, id`)
}

func (r *ExperiencesRepo) ListExperiencesByPlace(ctx context.Context, placeID string) ([]experience.Experience, error) {
	out, err := r.query(ctx, "experiences.list_by_place",
		`SELECT `+experienceColumns+` FROM experiences WHERE place_id = $1 ORDER BY created_at, id`, placeID)
	if isInvalidText(err) {
		return []experience.Experience{}, nil
	}
	return out, err
}

func (r *ExperiencesRepo) ListExperiencesByCreator(ctx context.Context, userID string) ([]experience.Experience, error) {
	out, err := r.query(ctx, "experiences.list_by_creator",
		`SELECT `+experienceColumns+` FROM experiences WHERE created_by = $1 ORDER BY created_at, id`, userID)
	if isInvalidText(err) {
		return []experience.Experience{}, nil
	}
	return out, err
}

func (r *ExperiencesRepo) query(ctx context.Context, op, sql string, args ...any) ([]experience.Experience, error) {
	var out []experience.Experience

	err := r.prom.ObserveDB(op, func() error {
		rows, err := r.pool.Query(ctx, sql, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]experience.Experience, 0)
		for rows.Next() {
			x, err := scanExperience(rows)
			if err != nil {
				return err
			}
			out = append(out, x)
		}
		return rows.Err()
	})

	return out, err
}

func (r *ExperiencesRepo) UpdateExperience(ctx context.Context, id string, patch experience.Patch) (experience.Experience, error) {
	var typ *string
	if patch.Type != nil {
		s := string(*patch.Type)
		typ = &s
	}

	var x experience.Experience
	err := r.prom.ObserveDB("experiences.update", func() error {
		var serr error
		x, serr = scanExperience(r.pool.QueryRow(ctx, `
			UPDATE experiences
			SET text       = COALESCE($2, text),
			    type       = COALESCE($3, type),
			    solution   = COALESCE($4, solution),
			    updated_at = NOW()
			WHERE id = $1
			RETURNING `+experienceColumns,
			id, patch.Text, typ, patch.Solution,
		))
		return serr
	})

	if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
		return experience.Experience{}, experience.ErrNotFound
	}
	return x, err
}

func (r *ExperiencesRepo) DeleteExperience(ctx context.Context, id string) error {
	var tag pgconn.CommandTag
	err := r.prom.ObserveDB("experiences.delete", func() error {
		var eerr error
		tag, eerr = r.pool.Exec(ctx, `DELETE FROM experiences WHERE id = $1`, id)
		return eerr
	})

	if isInvalidText(err) {
		return experience.ErrNotFound
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return experience.ErrNotFound
	}
	return nil
}
