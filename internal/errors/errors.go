// Package errors provides structured error types for canvassd. All errors
// include a category, code, message, and retryable flag for consistent error
// handling across components, and a stable mapping to the client-facing
// taxonomy (invalid tenant, forbidden, partition absent, storage error).
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by system component.
type ErrorCategory string

const (
	ErrCategoryTenant   ErrorCategory = "TENANT"
	ErrCategoryAccess   ErrorCategory = "ACCESS"
	ErrCategoryStorage  ErrorCategory = "STORAGE"
	ErrCategoryQuery    ErrorCategory = "QUERY"
	ErrCategoryCache    ErrorCategory = "CACHE"
	ErrCategoryInternal ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Tenant codes
	CodeInvalidTenant   = "INVALID_TENANT"
	CodePartitionAbsent = "PARTITION_ABSENT"

	// Access codes
	CodeForbidden       = "FORBIDDEN"
	CodeInvalidIdentity = "INVALID_IDENTITY"

	// Storage codes
	CodeStorageError   = "STORAGE_ERROR"
	CodeUploadFailed   = "UPLOAD_FAILED"
	CodeDownloadFailed = "DOWNLOAD_FAILED"

	// Query codes
	CodePartialFanout  = "PARTIAL_FANOUT"
	CodeShardTimeout   = "SHARD_TIMEOUT"
	CodeBadAggregation = "BAD_AGGREGATION"
	CodeInvalidField   = "INVALID_FIELD"

	// Cache codes
	CodeEncodeFailed = "ENCODE_FAILED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// CanvassError is the structured error type used throughout the system.
type CanvassError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *CanvassError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *CanvassError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *CanvassError) Is(target error) bool {
	var t *CanvassError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new CanvassError.
func New(category ErrorCategory, code, message string) *CanvassError {
	return &CanvassError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category, code),
	}
}

// Wrap creates a new CanvassError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *CanvassError {
	return &CanvassError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category, code),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *CanvassError) WithDetails(details map[string]interface{}) *CanvassError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var ce *CanvassError
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a CanvassError.
func GetCategory(err error) ErrorCategory {
	var ce *CanvassError
	if errors.As(err, &ce) {
		return ce.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a CanvassError.
func GetCode(err error) string {
	var ce *CanvassError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ""
}

// isRetryable determines if an error code is retryable.
func isRetryable(category ErrorCategory, code string) bool {
	switch {
	case category == ErrCategoryStorage && code == CodeUploadFailed:
		return true
	case category == ErrCategoryStorage && code == CodeDownloadFailed:
		return true
	case category == ErrCategoryQuery && code == CodeShardTimeout:
		return true
	default:
		return false
	}
}

// Convenience constructors for the client-facing taxonomy.

// NewInvalidTenant reports a tenant id outside the known set. Always a client
// error, never retried.
func NewInvalidTenant(tenantID int) *CanvassError {
	return New(ErrCategoryTenant, CodeInvalidTenant,
		fmt.Sprintf("tenant %d is not a known constituency", tenantID))
}

// NewPartitionAbsent reports a physically missing partition. Recoverable:
// callers treat it as an empty dataset, never surface it.
func NewPartitionAbsent(tenantID int, recordType string) *CanvassError {
	return New(ErrCategoryTenant, CodePartitionAbsent,
		fmt.Sprintf("no %s partition for tenant %d", recordType, tenantID))
}

// NewForbidden reports an access-control denial. Surfaced distinctly from
// InvalidTenant so clients can tell "no such tenant" from "not your tenant".
func NewForbidden(message string) *CanvassError {
	return New(ErrCategoryAccess, CodeForbidden, message)
}

// NewInvalidIdentity reports a malformed caller identity.
func NewInvalidIdentity(message string, cause error) *CanvassError {
	return Wrap(ErrCategoryAccess, CodeInvalidIdentity, message, cause)
}

// NewStorageError wraps a storage-layer fault.
func NewStorageError(message string, cause error) *CanvassError {
	return Wrap(ErrCategoryStorage, CodeStorageError, message, cause)
}

// NewQueryError reports a query construction or execution problem.
func NewQueryError(code, message string) *CanvassError {
	return New(ErrCategoryQuery, code, message)
}

// NewInternalError wraps an unexpected fault.
func NewInternalError(message string, cause error) *CanvassError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}

// Sentinel helpers used at call sites instead of re-deriving codes.

// IsInvalidTenant reports whether err is an InvalidTenant error.
func IsInvalidTenant(err error) bool {
	return GetCode(err) == CodeInvalidTenant
}

// IsPartitionAbsent reports whether err is a PartitionAbsent error.
func IsPartitionAbsent(err error) bool {
	return GetCode(err) == CodePartitionAbsent
}

// IsForbidden reports whether err is a Forbidden error.
func IsForbidden(err error) bool {
	return GetCode(err) == CodeForbidden
}
