package errors

import (
	"errors"
	"fmt"
	"testing"
)

// TestErrorIsMatchesCategoryAndCode tests errors.Is over the taxonomy.
func TestErrorIsMatchesCategoryAndCode(t *testing.T) {
	err := NewInvalidTenant(42)
	if !errors.Is(err, New(ErrCategoryTenant, CodeInvalidTenant, "")) {
		t.Error("expected Is to match same category and code")
	}
	if errors.Is(err, New(ErrCategoryTenant, CodePartitionAbsent, "")) {
		t.Error("expected Is to reject different code")
	}
}

// TestErrorUnwrap tests cause chains survive wrapping.
func TestErrorUnwrap(t *testing.T) {
	cause := fmt.Errorf("disk on fire")
	err := NewStorageError("read failed", cause)
	if !errors.Is(err, cause) {
		t.Error("expected wrapped cause to be reachable via errors.Is")
	}
}

// TestTaxonomyHelpers tests the sentinel helpers distinguish codes.
func TestTaxonomyHelpers(t *testing.T) {
	invalid := NewInvalidTenant(7)
	absent := NewPartitionAbsent(7, "voters")
	forbidden := NewForbidden("not yours")

	if !IsInvalidTenant(invalid) || IsInvalidTenant(absent) || IsInvalidTenant(forbidden) {
		t.Error("IsInvalidTenant misclassified")
	}
	if !IsPartitionAbsent(absent) || IsPartitionAbsent(invalid) {
		t.Error("IsPartitionAbsent misclassified")
	}
	if !IsForbidden(forbidden) || IsForbidden(invalid) {
		t.Error("IsForbidden misclassified")
	}
	if IsInvalidTenant(fmt.Errorf("plain")) {
		t.Error("plain errors must not match the taxonomy")
	}
}

// TestRetryableFlags tests retryability assignment.
func TestRetryableFlags(t *testing.T) {
	if IsRetryable(NewInvalidTenant(1)) {
		t.Error("InvalidTenant must not be retryable")
	}
	if !IsRetryable(Wrap(ErrCategoryStorage, CodeUploadFailed, "upload", nil)) {
		t.Error("UploadFailed should be retryable")
	}
	if !IsRetryable(Wrap(ErrCategoryQuery, CodeShardTimeout, "timeout", nil)) {
		t.Error("ShardTimeout should be retryable")
	}
}

// TestGetCodeThroughChain tests code extraction through fmt wrapping.
func TestGetCodeThroughChain(t *testing.T) {
	inner := NewForbidden("nope")
	outer := fmt.Errorf("handling request: %w", inner)
	if GetCode(outer) != CodeForbidden {
		t.Errorf("GetCode through chain = %q, want %q", GetCode(outer), CodeForbidden)
	}
	if GetCategory(outer) != ErrCategoryAccess {
		t.Errorf("GetCategory through chain = %q", GetCategory(outer))
	}
}

// TestWithDetailsCopies tests that WithDetails does not mutate the original.
func TestWithDetailsCopies(t *testing.T) {
	base := NewForbidden("nope")
	detailed := base.WithDetails(map[string]interface{}{"tenant": 9})
	if base.Details != nil {
		t.Error("WithDetails mutated the original error")
	}
	if detailed.Details["tenant"] != 9 {
		t.Error("WithDetails lost the details")
	}
}
