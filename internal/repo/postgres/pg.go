// Package postgres implements the graph stores and the jobs queue on pgx.
// Every statement touches one row, so each write is atomic on its own and
// nothing relies on multi-statement transactions.
package postgres

import (
	"errors"

	"github.com/geocoder89/placehunt/internal/observability"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	*UsersRepo
	*PlacesRepo
	*ExperiencesRepo
}

func NewStore(pool *pgxpool.Pool, prom *observability.Prom) *Store {
	return &Store{
		UsersRepo:       NewUsersRepo(pool, prom),
		PlacesRepo:      NewPlacesRepo(pool, prom),
		ExperiencesRepo: NewExperiencesRepo(pool, prom),
	}
}

func pgCode(err error) (code, constraint string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

func IsUniqueViolation(err error) bool {
	code, _ := pgCode(err)
	return code == "23505"
}

// isInvalidText catches ids that are not UUIDs; those can never match a row.
func isInvalidText(err error) bool {
	code, _ := pgCode(err)
	return code == "22P02"
}
