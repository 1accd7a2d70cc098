package db

import (
	"context"
	"testing"

	"github.com/geocoder89/placehunt/internal/config"
	"github.com/geocoder89/placehunt/internal/domain/user"
	"github.com/geocoder89/placehunt/internal/repo/memory"
	"github.com/geocoder89/placehunt/internal/security"
	"github.com/stretchr/testify/require"
)

func TestEnsureAdminUser(t *testing.T) {
	ctx := context.Background()
	hasher := security.BcryptHasher{Cost: 4}

	t.Run("no config is a no-op", func(t *testing.T) {
		store := memory.NewStore()
		require.NoError(t, EnsureAdminUser(ctx, store, hasher, config.Config{}))

		us, err := store.ListUsers(ctx)
		require.NoError(t, err)
		require.Empty(t, us)
	})

	t.Run("creates admin once", func(t *testing.T) {
		store := memory.NewStore()
		cfg := config.Config{AdminEmail: " Admin@Example.com ", AdminPassword: "secret123", AdminUsername: "root"}

		require.NoError(t, EnsureAdminUser(ctx, store, hasher, cfg))
		require.NoError(t, EnsureAdminUser(ctx, store, hasher, cfg))

		us, err := store.ListUsers(ctx)
		require.NoError(t, err)
		require.Len(t, us, 1)
		require.Equal(t, "admin@example.com", us[0].Email)
		require.Equal(t, user.RoleAdmin, us[0].Role)
		require.NoError(t, hasher.Compare(us[0].PasswordHash, "secret123"))
	})

	t.Run("promotes existing account", func(t *testing.T) {
		store := memory.NewStore()
		require.NoError(t, store.CreateUser(ctx, user.New("alice", "alice@example.com", "x")))

		cfg := config.Config{AdminEmail: "alice@example.com", AdminPassword: "secret123"}
		require.NoError(t, EnsureAdminUser(ctx, store, hasher, cfg))

		u, err := store.GetUserByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, user.RoleAdmin, u.Role)
	})
}
