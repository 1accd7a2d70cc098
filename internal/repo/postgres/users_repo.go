package postgres

import (
	"context"
	"errors"

	"github.com/geocoder89/placehunt/internal/domain/user"
	"github.com/geocoder89/placehunt/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

const userColumns = `id::text, username, email, password_hash, role,
	places::text[], experiences::text[], created_at, updated_at`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	err := row.Scan(
		&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Role,
		&u.Places, &u.Experiences, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}

func (r *UsersRepo) CreateUser(ctx context.Context, u user.User) error {
	err := r.prom.ObserveDB("users.create", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO users (id, username, email, password_hash, role, places, experiences, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, '{}', '{}', $6, $7)`,
			u.ID, u.Username, u.Email, u.PasswordHash, u.Role, u.CreatedAt, u.UpdatedAt,
		)
		return err
	})

	if code, constraint := pgCode(err); code == "23505" {
		if constraint == "users_username_key" {
			return user.ErrUsernameTaken
		}
		return user.ErrEmailTaken
	}
	return err
}

func (r *UsersRepo) getOne(ctx context.Context, op, where string, arg any) (user.User, error) {
	var u user.User
	err := r.prom.ObserveDB(op, func() error {
		var serr error
		u, serr = scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
		return serr
	})

	if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, err
	}
	return u, nil
}

func (r *UsersRepo) GetUser(ctx context.Context, id string) (user.User, error) {
	return r.getOne(ctx, "users.get", "id = $1", id)
}

func (r *UsersRepo) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return r.getOne(ctx, "users.get_by_email", "email = $1", email)
}

func (r *UsersRepo) ListUsers(ctx context.Context) ([]user.User, error) {
	var out []user.User

	err := r.prom.ObserveDB("users.list", func() error {
		rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY created_at, id`)
		if err != nil {
			return err
		}
		defer rows.Close()

		out = make([]user.User, 0)
		for rows.Next() {
			u, err := scanUser(rows)
			if err != nil {
				return err
			}
			out = append(out, u)
		}
		return rows.Err()
	})

	return out, err
}

func (r *UsersRepo) SetUserRole(ctx context.Context, id, role string) (user.User, error) {
	var u user.User
	err := r.prom.ObserveDB("users.set_role", func() error {
		var serr error
		u, serr = scanUser(r.pool.QueryRow(ctx, `
			UPDATE users SET role = $2, updated_at = NOW()
			WHERE id = $1
			RETURNING `+userColumns, id, role))
		return serr
	})

	if errors.Is(err, pgx.ErrNoRows) || isInvalidText(err) {
		return user.User{}, user.ErrNotFound
	}
	return u, err
}

func (r *UsersRepo) DeleteUser(ctx context.Context, id string) error {
	return r.exec(ctx, "users.delete", `DELETE FROM users WHERE id = $1`, id)
}

func (r *UsersRepo) AddUserPlace(ctx context.Context, userID, placeID string) error {
	return r.exec(ctx, "users.add_place", `
		UPDATE users
		SET places = CASE WHEN $2::uuid = ANY(places) THEN places ELSE array_append(places, $2::uuid) END,
		    updated_at = NOW()
		WHERE id = $1`, userID, placeID)
}

func (r *UsersRepo) RemoveUserPlace(ctx context.Context, userID, placeID string) error {
	return r.exec(ctx, "users.remove_place", `
		UPDATE users SET places = array_remove(places, $2::uuid), updated_at = NOW()
		WHERE id = $1`, userID, placeID)
}

func (r *UsersRepo) AddUserExperience(ctx context.Context, userID, experienceID string) error {
	return r.exec(ctx, "users.add_experience", `
		UPDATE users
		SET experiences = CASE WHEN $2::uuid = ANY(experiences) THEN experiences ELSE array_append(experiences, $2::uuid) END,
		    updated_at = NOW()
		WHERE id = $1`, userID, experienceID)
}

func (r *UsersRepo) RemoveUserExperience(ctx context.Context, userID, experienceID string) error {
	return r.exec(ctx, "users.remove_experience", `
		UPDATE users SET experiences = array_remove(experiences, $2::uuid), updated_at = NOW()
		WHERE id = $1`, userID, experienceID)
}

// exec runs a single-row write and reports user.ErrNotFound when no row matched.
func (r *UsersRepo) exec(ctx context.Context, op, sql string, args ...any) error {
	var tag pgconn.CommandTag
	err := r.prom.ObserveDB(op, func() error {
		var eerr error
		tag, eerr = r.pool.Exec(ctx, sql, args...)
		return eerr
	})

	if isInvalidText(err) {
		return user.ErrNotFound
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}
