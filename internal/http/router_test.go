package http_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/placehunt/internal/auth"
	"github.com/geocoder89/placehunt/internal/config"
	"github.com/geocoder89/placehunt/internal/db"
	apphttp "github.com/geocoder89/placehunt/internal/http"
	"github.com/geocoder89/placehunt/internal/integrity"
	"github.com/geocoder89/placehunt/internal/repo/memory"
	"github.com/geocoder89/placehunt/internal/security"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
)

func testConfig() config.Config {
	return config.Config{
		Env:            "test",
		StoreBackend:   "memory",
		JWTSecret:      "test-secret-key",
		AdminEmail:     "admin@example.com",
		AdminPassword:  "admin-pass",
		AdminUsername:  "admin",
		RequestTimeout: 5 * time.Second,
		MaxBodyBytes:   1 << 20,
		AuthRateLimit:  100,
		AuthRateWindow: time.Minute,
	}
}

type testServer struct {
	t      *testing.T
	router *gin.Engine
	store  *memory.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := testConfig()
	store := memory.NewStore()
	hasher := security.BcryptHasher{Cost: 4}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	require.NoError(t, db.EnsureAdminUser(context.Background(), store, hasher, cfg))

	tokens, err := auth.NewManager(cfg.JWTSecret)
	require.NoError(t, err)

	engine := integrity.New(store, integrity.Options{
		Hasher:  hasher,
		Repairs: memory.NewJobsRepo(),
		Logger:  logger,
	})

	return &testServer{
		t:      t,
		store:  store,
		router: apphttp.NewRouter(apphttp.Deps{Config: cfg, Engine: engine, Tokens: tokens}),
	}
}

func (s *testServer) call(method, path, token string, body any) (int, map[string]any) {
	s.t.Helper()

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(s.t, err)
		r = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 {
		require.NoError(s.t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	}
	return w.Code, out
}

func (s *testServer) register(name string) (token, id string) {
	s.t.Helper()
	status, body := s.call(http.MethodPost, "/auth/register", "", map[string]string{
		"username": name, "email": name + "@example.com", "password": "password1",
	})
	require.Equal(s.t, http.StatusCreated, status, body)
	return body["token"].(string), body["user"].(map[string]any)["id"].(string)
}

func (s *testServer) login(email, password string) string {
	s.t.Helper()
	status, body := s.call(http.MethodPost, "/auth/login", "", map[string]string{"email": email, "password": password})
	require.Equal(s.t, http.StatusOK, status, body)
	return body["token"].(string)
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestPlaceLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)
	u1, u1ID := s.register("u1")
	u2, _ := s.register("u2")
	admin := s.login("admin@example.com", "admin-pass")

	status, p1 := s.call(http.MethodPost, "/places", u1, map[string]string{"title": "Old mill"})
	require.Equal(t, http.StatusCreated, status, p1)
	p1ID := p1["id"].(string)

	status, e1 := s.call(http.MethodPost, "/experiences", u1, map[string]string{
		"text": "What turns?", "type": "riddle", "solution": "wheel", "placeId": p1ID,
	})
	require.Equal(t, http.StatusCreated, status, e1)
	e1ID := e1["id"].(string)

	status, view := s.call(http.MethodGet, "/places/"+p1ID, "", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, view["experiences"], 1)
	require.Equal(t, "u1", view["createdBy"].(map[string]any)["username"])

	status, body := s.call(http.MethodDelete, "/experiences/"+e1ID, u2, nil)
	require.Equal(t, http.StatusForbidden, status)
	require.Equal(t, "forbidden", errorCode(body))

	status, body = s.call(http.MethodPut, "/places/"+p1ID, u1, map[string]any{"title": "Mill", "createdBy": "someone"})
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, u1ID, body["createdBy"])

	status, _ = s.call(http.MethodDelete, "/places/"+p1ID, admin, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, body = s.call(http.MethodGet, "/experiences/"+e1ID, "", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "not_found", errorCode(body))

	u, err := s.store.GetUser(context.Background(), u1ID)
	require.NoError(t, err)
	require.Empty(t, u.Places)
	require.Empty(t, u.Experiences)
}

func TestAuthFailuresOverHTTP(t *testing.T) {
	s := newTestServer(t)
	s.register("alice")

	status, body := s.call(http.MethodPost, "/places", "", map[string]string{"title": "x"})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, "unauthenticated", errorCode(body))

	status, _ = s.call(http.MethodPost, "/places", "not-a-jwt", map[string]string{"title": "x"})
	require.Equal(t, http.StatusUnauthorized, status)

	status, _ = s.call(http.MethodPost, "/auth/register", "", map[string]string{
		"username": "alice", "email": "other@example.com", "password": "password1",
	})
	require.Equal(t, http.StatusConflict, status)

	status, wrong := s.call(http.MethodPost, "/auth/login", "", map[string]string{"email": "alice@example.com", "password": "nope123"})
	require.Equal(t, http.StatusUnauthorized, status)
	status, unknown := s.call(http.MethodPost, "/auth/login", "", map[string]string{"email": "bob@example.com", "password": "nope123"})
	require.Equal(t, http.StatusUnauthorized, status)
	require.Equal(t, wrong["error"].(map[string]any)["message"], unknown["error"].(map[string]any)["message"])
}

func TestAdminRoutesOverHTTP(t *testing.T) {
	s := newTestServer(t)
	user, userID := s.register("plain")
	admin := s.login("admin@example.com", "admin-pass")

	status, _ := s.call(http.MethodGet, "/users", user, nil)
	require.Equal(t, http.StatusForbidden, status)

	status, body := s.call(http.MethodGet, "/users", admin, nil)
	require.Equal(t, http.StatusOK, status)
	require.EqualValues(t, 2, body["count"])

	status, body = s.call(http.MethodPut, "/users/"+userID+"/role", admin, map[string]string{"role": "admin"})
	require.Equal(t, http.StatusOK, status, body)
	require.Equal(t, "admin", body["role"])

	status, _ = s.call(http.MethodDelete, "/users/"+userID, user, nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = s.call(http.MethodDelete, "/users/"+userID, admin, nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestUnknownRouteUsesEnvelope(t *testing.T) {
	s := newTestServer(t)

	status, body := s.call(http.MethodGet, "/nope", "", nil)
	require.Equal(t, http.StatusNotFound, status)
	require.Equal(t, "not_found", errorCode(body))

	status, _ = s.call(http.MethodGet, "/healthz", "", nil)
	require.Equal(t, http.StatusOK, status)
}
