package integrity

import (
	"context"
	"errors"
	"strings"

	"github.com/geocoder89/placehunt/internal/apperr"
	"github.com/geocoder89/placehunt/internal/authz"
	"github.com/geocoder89/placehunt/internal/domain/user"
	"github.com/geocoder89/placehunt/internal/jobs"
	"github.com/geocoder89/placehunt/internal/security"
	"go.opentelemetry.io/otel/attribute"
)

const invalidCredentials = "Invalid email or password"

// sweepRounds bounds how often a user cascade re-lists records that were
// created while it ran.
const sweepRounds = 3

// RegisterUser creates an account with role user.
func (e *Engine) RegisterUser(ctx context.Context, username, email, password string) (_ user.User, err error) {
	ctx, span := e.startSpan(ctx, "RegisterUser")
	defer func() { endSpan(span, err) }()

	if err := validateRegistration(username, email, password); err != nil {
		return user.User{}, err
	}

	hash, err := e.hasher.Hash(password)
	if err != nil {
		return user.User{}, e.translate(ctx, "RegisterUser", err, apperr.OutcomeNotApplied)
	}

	u := user.New(username, email, hash)

	if err := e.users.CreateUser(ctx, u); err != nil {
		outcome := apperr.OutcomeIndeterminate
		if errors.Is(err, user.ErrUsernameTaken) || errors.Is(err, user.ErrEmailTaken) {
			outcome = apperr.OutcomeNotApplied
		}
		return user.User{}, e.translate(ctx, "RegisterUser", err, outcome)
	}

	e.log.InfoContext(ctx, "user registered", "user_id", u.ID)
	return u, nil
}

// Authenticate never tells an unknown email apart from a wrong password.
func (e *Engine) Authenticate(ctx context.Context, email, password string) (_ user.User, err error) {
	ctx, span := e.startSpan(ctx, "Authenticate")
	defer func() { endSpan(span, err) }()

	u, err := e.users.GetUserByEmail(ctx, user.NormalizeEmail(email))
	if errors.Is(err, user.ErrNotFound) {
		if hash, herr := e.dummyHash(); herr == nil {
			_ = e.hasher.Compare(hash, password)
		}
		return user.User{}, apperr.Unauthenticated(invalidCredentials)
	}
	if err != nil {
		return user.User{}, e.translate(ctx, "Authenticate", err, apperr.OutcomeApplied)
	}

	if err := e.hasher.Compare(u.PasswordHash, password); err != nil {
		if !errors.Is(err, security.ErrPasswordMismatch) {
			e.log.ErrorContext(ctx, "password compare failed", "err", err)
		}
		return user.User{}, apperr.Unauthenticated(invalidCredentials)
	}

	return u, nil
}

func (e *Engine) ListUsers(ctx context.Context, caller authz.Identity) (_ []user.User, err error) {
	ctx, span := e.startSpan(ctx, "ListUsers")
	defer func() { endSpan(span, err) }()

	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !authz.RequireAdmin(caller) {
		return nil, apperr.Forbidden("Admin role required")
	}

	us, err := e.users.ListUsers(ctx)
	if err != nil {
		return nil, e.translate(ctx, "ListUsers", err, apperr.OutcomeApplied)
	}
	return us, nil
}

func (e *Engine) SetUserRole(ctx context.Context, id, role string, caller authz.Identity) (_ user.User, err error) {
	ctx, span := e.startSpan(ctx, "SetUserRole", attribute.String("user.id", id))
	defer func() { endSpan(span, err) }()

	if err := requireCaller(caller); err != nil {
		return user.User{}, err
	}
	if !authz.RequireAdmin(caller) {
		return user.User{}, apperr.Forbidden("Admin role required")
	}

	role = strings.TrimSpace(role)
	if !user.ValidRole(role) {
		var f fieldErrors
		f.add("role", "oneof", "user admin", "must be one of user, admin")
		return user.User{}, f.err()
	}

	c := e.newCascade()
	var u user.User
	err = c.write("user.set_role", func() error {
		var serr error
		u, serr = e.users.SetUserRole(ctx, id, role)
		return serr
	})
	if err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return user.User{}, e.translate(ctx, "SetUserRole", err, apperr.OutcomeNotApplied)
		}
		return user.User{}, e.translate(ctx, "SetUserRole", err, c.outcome())
	}

	e.log.InfoContext(ctx, "user role changed", "user_id", id, "role", role, "by", caller.SubjectID)
	return u, nil
}

// DeleteUser removes the account with everything it owns or authored and
// every experience under its places. The user record goes last, so an
// interrupted delete can be re-run.
func (e *Engine) DeleteUser(ctx context.Context, id string, caller authz.Identity) (err error) {
	ctx, span := e.startSpan(ctx, "DeleteUser", attribute.String("user.id", id))
	defer func() { endSpan(span, err) }()

	if err := requireCaller(caller); err != nil {
		return err
	}
	if !authz.CanDeleteUser(caller, id) {
		return apperr.Forbidden("You do not have permission to delete this user")
	}

	u, err := e.users.GetUser(ctx, id)
	if err != nil {
		return e.translate(ctx, "DeleteUser", err, apperr.OutcomeNotApplied)
	}

	err = e.once(ctx, "user:"+u.ID, func(c *cascade) error {
		if err := e.cascadeUser(ctx, c, u); err != nil {
			return e.failCascade(ctx, "DeleteUser", c, jobs.JobRepairDeleteUser, u.ID, caller, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	e.log.InfoContext(ctx, "user deleted", "user_id", u.ID, "by", caller.SubjectID)
	return nil
}

func (e *Engine) cascadeUser(ctx context.Context, c *cascade, u user.User) error {
	cl, err := e.userClosure(ctx, u)
	if err != nil {
		return err
	}

	for round := 0; ; round++ {
		if err := e.deleteExperiences(ctx, c, cl.experiences); err != nil {
			return err
		}
		if err := e.cascadePlaces(ctx, c, cl.places); err != nil {
			return err
		}
		if round == sweepRounds {
			break
		}

		// pick up anything created under u while the cascade ran
		cl, err = e.stragglers(ctx, u.ID)
		if err != nil {
			return err
		}
		if len(cl.places) == 0 && len(cl.experiences) == 0 {
			break
		}
	}

	err = c.write("user.delete", func() error {
		return e.users.DeleteUser(ctx, u.ID)
	}, user.ErrNotFound)
	if err != nil {
		return err
	}

	return e.sweepUser(ctx, c, u.ID)
}

// sweepUser removes whatever still references a deleted user.
func (e *Engine) sweepUser(ctx context.Context, c *cascade, userID string) error {
	cl, err := e.stragglers(ctx, userID)
	if err != nil {
		return err
	}
	if err := e.deleteExperiences(ctx, c, cl.experiences); err != nil {
		return err
	}
	return e.cascadePlaces(ctx, c, cl.places)
}

func (e *Engine) stragglers(ctx context.Context, userID string) (closure, error) {
	var cl closure
	var err error

	if cl.places, err = e.places.ListPlacesByCreator(ctx, userID); err != nil {
		return closure{}, err
	}
	if cl.experiences, err = e.exps.ListExperiencesByCreator(ctx, userID); err != nil {
		return closure{}, err
	}
	return cl, nil
}
