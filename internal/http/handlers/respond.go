package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/geocoder89/placehunt/internal/apperr"
	"github.com/geocoder89/placehunt/internal/authz"
	"github.com/geocoder89/placehunt/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type APIError struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"requestId,omitempty"`
	Details   any    `json:"details,omitempty"`
}

func RespondError(ctx *gin.Context, status int, code, message string, details any) {
	ctx.AbortWithStatusJSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: middlewares.RequestIDFromContext(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details any) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondNotFound(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusNotFound, "not_found", message, nil)
}

// RespondAppError is the one place error kinds become status codes. Internal
// failures only ever expose their message and outcome.
func RespondAppError(ctx *gin.Context, err error) {
	var ae *apperr.Error
	if !errors.As(err, &ae) {
		slog.Default().ErrorContext(ctx.Request.Context(), "unclassified handler error", "err", err)
		ae = apperr.Internal("Internal error", apperr.OutcomeIndeterminate, err)
	}

	switch ae.Kind {
	case apperr.KindUnauthenticated:
		RespondError(ctx, http.StatusUnauthorized, "unauthenticated", ae.Message, nil)
	case apperr.KindForbidden:
		RespondError(ctx, http.StatusForbidden, "forbidden", ae.Message, nil)
	case apperr.KindNotFound:
		RespondNotFound(ctx, ae.Message)
	case apperr.KindValidation:
		RespondBadRequest(ctx, ae.Message, ae.Details)
	case apperr.KindConflict:
		RespondError(ctx, http.StatusConflict, "conflict", ae.Message, nil)
	default:
		details := gin.H{"outcome": string(ae.Outcome)}
		if m, ok := ae.Details.(map[string]string); ok {
			for k, v := range m {
				details[k] = v
			}
		}

		if errors.Is(ae, context.DeadlineExceeded) || errors.Is(ae, context.Canceled) {
			RespondError(ctx, http.StatusGatewayTimeout, "timeout", "Operation timed out", details)
			return
		}
		RespondError(ctx, http.StatusInternalServerError, "internal_error", "Internal error", details)
	}
}

// caller returns the identity set by the auth middleware, or the zero value
// which the engine rejects as unauthenticated.
func caller(ctx *gin.Context) authz.Identity {
	id, _ := middlewares.IdentityFromContext(ctx)
	return id
}
