package http

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	cerrors "github.com/canvassdb/canvassd/internal/errors"
)

// TestRequestIDMiddleware tests request id generation and passthrough.
func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := RequestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if seen == "" {
		t.Error("expected a generated request id")
	}
	if rec.Header().Get("X-Request-ID") != seen {
		t.Error("request id not echoed in response header")
	}

	// A client-supplied id is preserved.
	rec = httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-Request-ID", "client-id-1")
	handler.ServeHTTP(rec, req)
	if seen != "client-id-1" {
		t.Errorf("expected client id preserved, got %q", seen)
	}
}

// TestRecoveryMiddleware tests panic conversion to a 500 response.
func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

// TestStatusForTaxonomy tests the error-to-status mapping, in particular that
// Forbidden and InvalidTenant stay distinguishable.
func TestStatusForTaxonomy(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"forbidden", cerrors.NewForbidden("no"), http.StatusForbidden},
		{"invalid tenant", cerrors.NewInvalidTenant(9), http.StatusNotFound},
		{"partition absent", cerrors.NewPartitionAbsent(9, "voters"), http.StatusNotFound},
		{"invalid identity", cerrors.NewInvalidIdentity("bad", nil), http.StatusBadRequest},
		{"invalid field", cerrors.NewQueryError(cerrors.CodeInvalidField, "bad sort"), http.StatusBadRequest},
		{"storage fault", cerrors.NewStorageError("disk", nil), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := statusFor(tt.err); got != tt.want {
				t.Errorf("statusFor = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestWriteCoreError tests the error body shape.
func TestWriteCoreError(t *testing.T) {
	rec := httptest.NewRecorder()
	writeCoreError(rec, cerrors.NewForbidden("not your tenant"), "req-1")

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}

	var body ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if body.Code != cerrors.CodeForbidden {
		t.Errorf("code = %q, want %q", body.Code, cerrors.CodeForbidden)
	}
	if body.RequestID != "req-1" {
		t.Errorf("request id = %q", body.RequestID)
	}
}
