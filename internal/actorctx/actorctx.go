package actorctx

import (
	"context"

	"github.com/geocoder89/placehunt/internal/authz"
)

type ctxKey string

const (
	keyIdentity  ctxKey = "identity"
	keyRequestID ctxKey = "request_id"
)

func WithIdentity(ctx context.Context, id authz.Identity) context.Context {
	return context.WithValue(ctx, keyIdentity, id)
}

func IdentityFrom(ctx context.Context) (authz.Identity, bool) {
	v, ok := ctx.Value(keyIdentity).(authz.Identity)

	return v, ok && v.SubjectID != ""
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, keyRequestID, requestID)
}

func RequestIDFrom(ctx context.Context) string {
	v, _ := ctx.Value(keyRequestID).(string)
	return v
}
