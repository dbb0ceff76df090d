package grid

import (
	"errors"
	"fmt"
	"testing"
)

// TestErrorCodes verifies code extraction and predicates
func TestErrorCodes(t *testing.T) {
	err := NewError(RetCRemoved, "entry retired")

	if CodeOf(err) != RetCRemoved {
		t.Errorf("CodeOf = %v, want RetCRemoved", CodeOf(err))
	}
	if !IsRemoved(err) {
		t.Error("IsRemoved should match a RetCRemoved error")
	}
	if IsStoreFailure(err) {
		t.Error("IsStoreFailure should not match a RetCRemoved error")
	}

	if CodeOf(nil) != RetCSuccess {
		t.Errorf("CodeOf(nil) = %v, want RetCSuccess", CodeOf(nil))
	}
	if CodeOf(errors.New("plain")) != RetCInternalError {
		t.Errorf("CodeOf(plain error) = %v, want RetCInternalError", CodeOf(errors.New("plain")))
	}
}

// TestErrorWrapping verifies cause propagation through errors.Is/As
func TestErrorWrapping(t *testing.T) {
	cause := errors.New("disk gone")
	err := WrapError(RetCStoreFailure, "write-through failed", cause)

	if !errors.Is(err, cause) {
		t.Error("errors.Is should find the wrapped cause")
	}
	if !IsStoreFailure(err) {
		t.Error("IsStoreFailure should match the wrapping error")
	}

	// wrapping once more with fmt keeps both matchable
	outer := fmt.Errorf("operation put: %w", err)
	if !IsStoreFailure(outer) {
		t.Error("IsStoreFailure should match through fmt wrapping")
	}
	if !errors.Is(outer, cause) {
		t.Error("errors.Is should find the cause through fmt wrapping")
	}
}

// TestErrorIsByCode verifies code-based sentinel matching
func TestErrorIsByCode(t *testing.T) {
	err := NewErrorf(RetCProtocolViolation, "key %q written without lock", "a")

	if !errors.Is(err, &Error{Code: RetCProtocolViolation}) {
		t.Error("errors.Is should match errors by return code")
	}
	if errors.Is(err, &Error{Code: RetCRemoved}) {
		t.Error("errors.Is should not match a different return code")
	}
}

// TestErrorMessage verifies the formatted output
func TestErrorMessage(t *testing.T) {
	err := NewError(RetCUnsupported, "no swap tier configured")
	want := "GridError (code Unsupported): no swap tier configured"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := WrapError(RetCStoreFailure, "load failed", errors.New("timeout"))
	if wrapped.Error() != "GridError (code StoreFailure): load failed: timeout" {
		t.Errorf("unexpected wrapped message: %q", wrapped.Error())
	}
}
