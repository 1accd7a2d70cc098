package middlewares_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/placehunt/internal/actorctx"
	"github.com/geocoder89/placehunt/internal/auth"
	"github.com/geocoder89/placehunt/internal/authz"
	"github.com/geocoder89/placehunt/internal/domain/user"
	"github.com/geocoder89/placehunt/internal/http/middlewares"
	"github.com/geocoder89/placehunt/internal/ratelimit"
	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeVerifier struct {
	id  authz.Identity
	err error
}

func (f fakeVerifier) Verify(string) (authz.Identity, error) { return f.id, f.err }

type errorBody struct {
	Error struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"requestId"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v body=%s", err, w.Body.String())
	}
	return body
}

func TestRequireAuth(t *testing.T) {
	alice := authz.Identity{SubjectID: "u-1", Role: user.RoleUser}

	tests := []struct {
		name     string
		header   string
		verifier fakeVerifier
		status   int
		message  string
	}{
		{"missing header", "", fakeVerifier{id: alice}, http.StatusUnauthorized, "Token missing"},
		{"wrong scheme", "Basic abc", fakeVerifier{id: alice}, http.StatusUnauthorized, "Token invalid"},
		{"expired", "Bearer abc", fakeVerifier{err: auth.ErrTokenExpired}, http.StatusUnauthorized, "Token expired"},
		{"bad signature", "bearer   abc", fakeVerifier{err: auth.ErrInvalidSignature}, http.StatusUnauthorized, "Token invalid"},
		{"valid", "Bearer abc", fakeVerifier{id: alice}, http.StatusOK, ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			r.Use(middlewares.RequestID())
			r.GET("/me", middlewares.NewAuthMiddleware(tc.verifier).RequireAuth(), func(c *gin.Context) {
				id, ok := middlewares.IdentityFromContext(c)
				fromCtx, ok2 := actorctx.IdentityFrom(c.Request.Context())
				if !ok || !ok2 || id != fromCtx {
					t.Fatalf("identity not propagated: %+v %+v", id, fromCtx)
				}
				c.Status(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if w.Code != tc.status {
				t.Fatalf("status = %d, want %d body=%s", w.Code, tc.status, w.Body.String())
			}
			if tc.status == http.StatusOK {
				return
			}

			body := decodeError(t, w)
			if body.Error.Code != "unauthenticated" || body.Error.Message != tc.message {
				t.Fatalf("unexpected error: %+v", body.Error)
			}
			if body.Error.RequestID == "" {
				t.Fatalf("request id missing from envelope")
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	for _, tc := range []struct {
		role   string
		status int
	}{
		{user.RoleUser, http.StatusForbidden},
		{user.RoleAdmin, http.StatusOK},
	} {
		m := middlewares.NewAuthMiddleware(fakeVerifier{id: authz.Identity{SubjectID: "u-1", Role: tc.role}})
		r := gin.New()
		r.GET("/users", m.RequireAuth(), m.RequireAdmin(), func(c *gin.Context) { c.Status(http.StatusOK) })

		req := httptest.NewRequest(http.MethodGet, "/users", nil)
		req.Header.Set("Authorization", "Bearer x")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)

		if w.Code != tc.status {
			t.Fatalf("role %s: status = %d, want %d", tc.role, w.Code, tc.status)
		}
	}
}

func TestRequestIDEchoesHeader(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.RequestID())
	r.GET("/", func(c *gin.Context) {
		if got := actorctx.RequestIDFrom(c.Request.Context()); got != "req-123" {
			t.Fatalf("request id in context = %q", got)
		}
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if got := w.Header().Get("X-Request-Id"); got != "req-123" {
		t.Fatalf("X-Request-Id = %q", got)
	}
}

func TestRateLimitBlocksAfterLimit(t *testing.T) {
	r := gin.New()
	r.POST("/auth/login", middlewares.RateLimit(ratelimit.NewMemory(2, time.Minute), "auth", middlewares.KeyByIP),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	var last *httptest.ResponseRecorder
	for range 3 {
		last = httptest.NewRecorder()
		r.ServeHTTP(last, httptest.NewRequest(http.MethodPost, "/auth/login", nil))
	}

	if last.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", last.Code)
	}
	if last.Header().Get("Retry-After") == "" {
		t.Fatalf("Retry-After missing")
	}
}

type brokenLimiter struct{}

func (brokenLimiter) Allow(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, errors.New("redis down")
}

func TestRateLimitFailsOpen(t *testing.T) {
	r := gin.New()
	r.GET("/", middlewares.RateLimit(brokenLimiter{}, "auth", middlewares.KeyByIP),
		func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}

func TestRequireJSON(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.RequireJSON())
	r.POST("/places", func(c *gin.Context) { c.Status(http.StatusCreated) })
	r.DELETE("/places/1", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/places", nil)
	req.Header.Set("Content-Type", "text/plain")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("status = %d, want 415", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/places/1", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", w.Code)
	}
}

func TestTimeoutSetsDeadline(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.Timeout(50 * time.Millisecond))
	r.GET("/", func(c *gin.Context) {
		if _, ok := c.Request.Context().Deadline(); !ok {
			t.Fatalf("no deadline on request context")
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}
