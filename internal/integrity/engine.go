// Package integrity keeps the User/Place/Experience graph consistent.
//
// The backing store can only write one record at a time, so every multi-record
// mutation is a sequence of idempotent steps: set inserts and removals that
// tolerate an already-applied state, and record deletes that tolerate an
// already-missing record. Deletes clean backlinks no later than the record
// that is referenced. A failure part way through leaves a state from which
// re-running the same operation converges.
package integrity

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/geocoder89/placehunt/internal/apperr"
	"github.com/geocoder89/placehunt/internal/authz"
	"github.com/geocoder89/placehunt/internal/domain/experience"
	"github.com/geocoder89/placehunt/internal/domain/place"
	"github.com/geocoder89/placehunt/internal/domain/user"
	"github.com/geocoder89/placehunt/internal/observability"
	"github.com/geocoder89/placehunt/internal/security"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	defaultConcurrency = 8
	compensateTimeout  = 5 * time.Second
	repairEnqueueWait  = 2 * time.Second
)

type Options struct {
	Hasher      security.Hasher
	Repairs     RepairQueue
	Prom        *observability.Prom
	Logger      *slog.Logger
	Concurrency int
}

type Engine struct {
	users  UserStore
	places PlaceStore
	exps   ExperienceStore

	hasher      security.Hasher
	repairs     RepairQueue
	prom        *observability.Prom
	log         *slog.Logger
	tracer      trace.Tracer
	concurrency int
	flight      singleflight.Group

	// dummyHash is compared against when a login names no account, so both
	// failures cost one full hash comparison.
	dummyHash func() (string, error)
}

func New(store Store, opts Options) *Engine {
	if opts.Hasher == nil {
		opts.Hasher = security.NewBcryptHasher()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultConcurrency
	}

	hasher := opts.Hasher

	return &Engine{
		users:       store,
		places:      store,
		exps:        store,
		hasher:      opts.Hasher,
		repairs:     opts.Repairs,
		prom:        opts.Prom,
		log:         opts.Logger,
		tracer:      otel.Tracer("placehunt/integrity"),
		concurrency: opts.Concurrency,
		dummyHash: sync.OnceValues(func() (string, error) {
			return hasher.Hash("placehunt-unknown-account")
		}),
	}
}

func (e *Engine) startSpan(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return e.tracer.Start(ctx, "integrity."+op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperr.KindOf(err)))
	}
	span.End()
}

// translate maps store sentinels onto caller-facing kinds. Anything unknown is
// internal; its detail stays in the log.
func (e *Engine) translate(ctx context.Context, op string, err error, outcome apperr.Outcome) error {
	if err == nil {
		return nil
	}

	var ae *apperr.Error
	if errors.As(err, &ae) {
		return err
	}

	if known := classify(err); known != nil {
		known.Outcome = outcome
		return known
	}

	msg := "Internal error"
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		msg = "Operation timed out"
	}

	e.log.ErrorContext(ctx, "integrity operation failed", "op", op, "outcome", string(outcome), "err", err)
	return apperr.Internal(msg, outcome, err)
}

func classify(err error) *apperr.Error {
	switch {
	case errors.Is(err, user.ErrNotFound):
		return apperr.NotFound("User not found")
	case errors.Is(err, place.ErrNotFound):
		return apperr.NotFound("Place not found")
	case errors.Is(err, experience.ErrNotFound):
		return apperr.NotFound("Experience not found")
	case errors.Is(err, user.ErrUsernameTaken):
		return apperr.Conflict("Username is already in use")
	case errors.Is(err, user.ErrEmailTaken):
		return apperr.Conflict("Email is already in use")
	case errors.Is(err, place.ErrAlreadyExists), errors.Is(err, experience.ErrAlreadyExists):
		return apperr.Conflict("Id is already in use")
	}
	return nil
}

// compensate undoes a partially applied create on a context that outlives the
// request. The outcome of cause depends on whether the undo went through.
func (e *Engine) compensate(ctx context.Context, op, id string, cause error, undo func(context.Context) error) error {
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensateTimeout)
	defer cancel()

	if undo == nil {
		return indeterminate(e.translate(ctx, op, cause, apperr.OutcomeIndeterminate), id)
	}
	if err := undo(cctx); err != nil {
		e.log.ErrorContext(ctx, "compensation failed", "op", op, "id", id, "err", err)
		return indeterminate(e.translate(ctx, op, cause, apperr.OutcomeIndeterminate), id)
	}
	return e.translate(ctx, op, cause, apperr.OutcomeNotApplied)
}

// indeterminate attaches the record id so the caller can retry the same create
// with it.
func indeterminate(err error, id string) error {
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Details == nil {
		ae.Details = map[string]string{"id": id}
	}
	return err
}

func requireCaller(caller authz.Identity) error {
	if !caller.Valid() {
		return apperr.Unauthenticated("Token invalid")
	}
	return nil
}
