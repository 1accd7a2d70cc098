package db

import (
	"context"
	"errors"

	"github.com/geocoder89/placehunt/internal/config"
	"github.com/geocoder89/placehunt/internal/domain/user"
	"github.com/geocoder89/placehunt/internal/security"
)

// AdminStore is the slice of the user store the bootstrap needs.
type AdminStore interface {
	GetUserByEmail(ctx context.Context, email string) (user.User, error)
	CreateUser(ctx context.Context, u user.User) error
	SetUserRole(ctx context.Context, id, role string) (user.User, error)
}

// EnsureAdminUser creates the first admin from ADMIN_EMAIL/ADMIN_PASSWORD, or
// promotes an existing account with that email. Registration can only produce
// plain users, so this is how the first admin comes to exist.
func EnsureAdminUser(ctx context.Context, store AdminStore, hasher security.Hasher, cfg config.Config) error {
	if cfg.AdminEmail == "" || cfg.AdminPassword == "" {
		return nil
	}

	email := user.NormalizeEmail(cfg.AdminEmail)

	existing, err := store.GetUserByEmail(ctx, email)
	if err == nil {
		if existing.Role == user.RoleAdmin {
			return nil
		}
		_, err = store.SetUserRole(ctx, existing.ID, user.RoleAdmin)
		return err
	}
	if !errors.Is(err, user.ErrNotFound) {
		return err
	}

	hash, err := hasher.Hash(cfg.AdminPassword)
	if err != nil {
		return err
	}

	username := cfg.AdminUsername
	if username == "" {
		username = "admin"
	}

	u := user.New(username, email, hash)
	u.Role = user.RoleAdmin

	if err := store.CreateUser(ctx, u); err != nil {
		// another instance won the race
		if errors.Is(err, user.ErrEmailTaken) {
			return nil
		}
		return err
	}
	return nil
}
