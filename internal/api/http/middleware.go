// Package http provides the thin HTTP consumers of the data-access core.
// Routing and parameter parsing live here; every data decision is delegated
// to the core's contracts.
package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	cerrors "github.com/canvassdb/canvassd/internal/errors"
)

// Context keys for request metadata.
type contextKey string

const requestIDKey contextKey = "request_id"

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// RequestIDMiddleware adds a unique request_id to each request.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RecoveryMiddleware recovers from panics and returns a 500 error.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				writeError(w, http.StatusInternalServerError, "internal server error", "", GetRequestID(r.Context()))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// ChainMiddleware chains multiple middleware functions together.
func ChainMiddleware(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// DefaultMiddleware returns the default middleware chain for API handlers.
func DefaultMiddleware() func(http.Handler) http.Handler {
	return ChainMiddleware(
		RecoveryMiddleware,
		RequestIDMiddleware,
	)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// statusFor maps the error taxonomy to HTTP statuses. Forbidden and
// InvalidTenant stay distinct so clients can tell "not your tenant" from
// "no such tenant".
func statusFor(err error) int {
	switch cerrors.GetCode(err) {
	case cerrors.CodeForbidden:
		return http.StatusForbidden
	case cerrors.CodeInvalidTenant, cerrors.CodePartitionAbsent:
		return http.StatusNotFound
	case cerrors.CodeInvalidIdentity, cerrors.CodeInvalidField:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeCoreError writes an error response using the taxonomy mapping.
func writeCoreError(w http.ResponseWriter, err error, requestID string) {
	writeError(w, statusFor(err), err.Error(), cerrors.GetCode(err), requestID)
}

// writeError writes an error response with the given status code.
func writeError(w http.ResponseWriter, statusCode int, message, code, requestID string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestID,
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}
