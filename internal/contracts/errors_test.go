package contracts

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestValidationError_CollectsAllFields(t *testing.T) {
	err := &ValidationError{Fields: []FieldError{
		{Field: "qty", Message: "must be > 0"},
		{Field: "side", Message: "unknown side"},
	}}

	msg := err.Error()
	if msg != "validation failed: qty: must be > 0; side: unknown side" {
		t.Errorf("unexpected message: %s", msg)
	}
}

func TestClassificationThroughWrapping(t *testing.T) {
	conflict := &ConflictError{OrderID: 7, Reason: "version mismatch"}
	wrapped := fmt.Errorf("approve failed: %w", conflict)

	if !IsConflict(wrapped) {
		t.Error("IsConflict should see through fmt.Errorf wrapping")
	}
	if IsNotFound(wrapped) {
		t.Error("IsNotFound must not match a ConflictError")
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{NewValidationError("reason", "required"), "validation"},
		{&NotFoundError{OrderID: 1}, "not_found"},
		{&InvalidTransitionError{OrderID: 1, Current: StatusStaged, Attempted: StatusApproved, Operation: "approve"}, "invalid_transition"},
		{&ConflictError{OrderID: 1, Reason: "raced"}, "conflict"},
		{&DependencyTimeoutError{Dependency: "quotes", Timeout: time.Second}, "dependency_timeout"},
		{&DependencyUnavailableError{Dependency: "refdata", Err: errors.New("down")}, "dependency_unavailable"},
		{errors.New("boom"), "internal"},
	}

	for _, tc := range tests {
		if got := ErrorKind(tc.err); got != tc.want {
			t.Errorf("ErrorKind(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestErrorKind_ContextErrors(t *testing.T) {
	// 생 context 에러도 분류돼야 함 (호출자 취소가 internal로 새지 않게)
	if got := ErrorKind(context.Canceled); got != "cancelled" {
		t.Errorf("ErrorKind(context.Canceled) = %s, want cancelled", got)
	}
	if got := ErrorKind(fmt.Errorf("stage aborted: %w", context.Canceled)); got != "cancelled" {
		t.Errorf("wrapped cancellation = %s, want cancelled", got)
	}
	if got := ErrorKind(context.DeadlineExceeded); got != "dependency_timeout" {
		t.Errorf("ErrorKind(context.DeadlineExceeded) = %s, want dependency_timeout", got)
	}

	// 도메인 타입이 항상 우선
	timeout := &DependencyTimeoutError{Dependency: "quotes", Timeout: time.Second}
	if got := ErrorKind(timeout); got != "dependency_timeout" {
		t.Errorf("typed timeout = %s, want dependency_timeout", got)
	}
}

func TestInvalidTransitionError_Detail(t *testing.T) {
	err := &InvalidTransitionError{
		OrderID:   123,
		Current:   StatusStaged,
		Attempted: StatusApproved,
		Operation: "approve",
	}

	msg := err.Error()
	// Detail must include both current and attempted status
	if msg != "order 123: approve illegal from STAGED (attempted APPROVED)" {
		t.Errorf("unexpected message: %s", msg)
	}
}

func TestDependencyUnavailable_Unwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := &DependencyUnavailableError{Dependency: "quotes", Err: cause}

	if !errors.Is(err, cause) {
		t.Error("Unwrap should expose the cause")
	}
}
