package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/geocoder89/placehunt/internal/apperr"
	"github.com/geocoder89/placehunt/internal/domain/experience"
	"github.com/geocoder89/placehunt/internal/http/handlers"
	"github.com/geocoder89/placehunt/internal/http/middlewares"
	"github.com/gin-gonic/gin"
)

type bindErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			JSON   string              `json:"json"`
			Field  string              `json:"field"`
			Fields []apperr.FieldError `json:"fields"`
		} `json:"details"`
	} `json:"error"`
}

func bindRouter() *gin.Engine {
	r := gin.New()
	r.POST("/experiences", func(ctx *gin.Context) {
		var req experience.CreateExperienceRequest
		if !handlers.BindJSON(ctx, &req) {
			return
		}
		ctx.Status(http.StatusCreated)
	})
	return r
}

func postJSON(r http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBindError(t *testing.T, w *httptest.ResponseRecorder) bindErrorResponse {
	t.Helper()
	var resp bindErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to unmarshal error response: %v body=%s", err, w.Body.String())
	}
	return resp
}

func TestBindJSON_ValidationErrorsUseJSONFieldNames(t *testing.T) {
	w := postJSON(bindRouter(), "/experiences", `{"text":"where?","type":"dance"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}

	resp := decodeBindError(t, w)
	if resp.Error.Code != "invalid_request" {
		t.Fatalf("unexpected code: %s", resp.Error.Code)
	}

	wantRules := map[string]string{
		"type":     "oneof",
		"solution": "required",
		"placeId":  "required",
	}

	found := map[string]apperr.FieldError{}
	for _, fieldErr := range resp.Error.Details.Fields {
		found[fieldErr.Field] = fieldErr
	}

	for field, rule := range wantRules {
		fieldErr, ok := found[field]
		if !ok {
			t.Fatalf("missing field error for %q: %+v", field, resp.Error.Details.Fields)
		}
		if fieldErr.Rule != rule {
			t.Fatalf("field %q rule mismatch: got %q want %q", field, fieldErr.Rule, rule)
		}
		if fieldErr.Message == "" {
			t.Fatalf("field %q should include a non-empty message", field)
		}
	}
}

func TestBindJSON_TypeMismatchUsesJSONFieldNames(t *testing.T) {
	w := postJSON(bindRouter(), "/experiences", `{"text":7,"type":"qr","solution":"s","placeId":"x"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want %d, body=%s", w.Code, http.StatusBadRequest, w.Body.String())
	}

	resp := decodeBindError(t, w)
	if resp.Error.Details.JSON != "invalid_json_type" {
		t.Fatalf("expected invalid_json_type, got %q", resp.Error.Details.JSON)
	}
	if resp.Error.Details.Field != "text" {
		t.Fatalf("expected detail field to be text, got %q", resp.Error.Details.Field)
	}
	if len(resp.Error.Details.Fields) == 0 || resp.Error.Details.Fields[0].Rule != "type" {
		t.Fatalf("expected a type rule in details.fields: %+v", resp.Error.Details.Fields)
	}
}

func TestBindJSON_SyntaxError(t *testing.T) {
	w := postJSON(bindRouter(), "/experiences", `{"text":`)

	resp := decodeBindError(t, w)
	if w.Code != http.StatusBadRequest || resp.Error.Details.JSON != "invalid_json_syntax" {
		t.Fatalf("got %d %+v", w.Code, resp.Error)
	}
}

func TestBindJSON_BodyTooLarge(t *testing.T) {
	r := gin.New()
	r.Use(middlewares.MaxBodyBytes(16))
	r.POST("/experiences", func(ctx *gin.Context) {
		var req experience.CreateExperienceRequest
		if !handlers.BindJSON(ctx, &req) {
			return
		}
		ctx.Status(http.StatusCreated)
	})

	w := postJSON(r, "/experiences", `{"text":"a much longer body than sixteen bytes"}`)
	if w.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("got status %d, want 413", w.Code)
	}
}

func TestBindFields_RejectsNonObject(t *testing.T) {
	r := gin.New()
	r.PUT("/places/:id", func(ctx *gin.Context) {
		if _, ok := handlers.BindFields(ctx); !ok {
			return
		}
		ctx.Status(http.StatusOK)
	})

	for _, body := range []string{"", "null", "[1,2]"} {
		req := httptest.NewRequest(http.MethodPut, "/places/1", bytes.NewBufferString(body))
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusBadRequest {
			t.Fatalf("body %q: got status %d, want 400", body, w.Code)
		}
	}
}
