package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestJSONResponseBuilder(t *testing.T) {
	rr := httptest.NewRecorder()
	NewJSONResponse().
		Status(http.StatusCreated).
		Header("Location", "/api/transactions/1").
		Body(map[string]int{"id": 1}).
		Write(rr)

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d", rr.Code)
	}
	if rr.Header().Get("Location") != "/api/transactions/1" {
		t.Fatalf("Location = %q", rr.Header().Get("Location"))
	}
	if rr.Header().Get("Content-Type") != "application/json; charset=utf-8" {
		t.Fatalf("Content-Type = %q", rr.Header().Get("Content-Type"))
	}
	if rr.Body.String() != "{\"id\":1}\n" {
		t.Fatalf("body = %q", rr.Body.String())
	}
}

func TestEmptyBodySendsNoContentType(t *testing.T) {
	rr := httptest.NewRecorder()
	NewJSONResponse().Status(http.StatusNoContent).Write(rr)
	if rr.Code != http.StatusNoContent || rr.Body.Len() != 0 || rr.Header().Get("Content-Type") != "" {
		t.Fatalf("unexpected 204: code=%d body=%q headers=%v", rr.Code, rr.Body.String(), rr.Header())
	}
}

func TestErrorResponses(t *testing.T) {
	tests := []struct {
		name string
		b    *JSONResponseBuilder
		want int
	}{
		{"bad request", BadRequestError("x"), http.StatusBadRequest},
		{"unauthorized", UnauthorizedError("x"), http.StatusUnauthorized},
		{"not found", NotFoundError("x"), http.StatusNotFound},
		{"conflict", ConflictError("x"), http.StatusConflict},
		{"unprocessable", UnprocessableEntityError("x"), http.StatusUnprocessableEntity},
		{"internal", InternalServerError(), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			tt.b.Write(rr)
			if rr.Code != tt.want {
				t.Fatalf("status = %d, want %d", rr.Code, tt.want)
			}
			if decode[ErrorBody](t, rr).Error == "" {
				t.Fatal("missing error message")
			}
		})
	}
}
