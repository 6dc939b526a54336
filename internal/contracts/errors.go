package contracts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// 에러 분류 체계
// ⭐ SSOT: 경계 밖으로 나가는 에러는 전부 이 타입들 중 하나로 분류되어야 함

// FieldError describes one violated field of a request
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError reports malformed input. Caller-fixable, never retried.
// 위반된 필드를 전부 모아서 반환 (첫 번째만 반환하지 않음)
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Field, f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError builds a ValidationError for a single field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Message: message}}}
}

// NotFoundError reports an unknown order id
type NotFoundError struct {
	OrderID int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("order %d not found", e.OrderID)
}

// InvalidTransitionError reports an operation illegal from the current status
type InvalidTransitionError struct {
	OrderID   int64
	Current   OrderStatus
	Attempted OrderStatus
	Operation string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %d: %s illegal from %s (attempted %s)",
		e.OrderID, e.Operation, e.Current, e.Attempted)
}

// ConflictError reports a concurrent-write race or a duplicate approval
// by a different approver
type ConflictError struct {
	OrderID int64
	Reason  string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("order %d: conflict: %s", e.OrderID, e.Reason)
}

// DependencyUnavailableError reports a scoring/compliance data source being down
type DependencyUnavailableError struct {
	Dependency string
	Err        error
}

func (e *DependencyUnavailableError) Error() string {
	return fmt.Sprintf("dependency %s unavailable: %v", e.Dependency, e.Err)
}

func (e *DependencyUnavailableError) Unwrap() error {
	return e.Err
}

// DependencyTimeoutError reports that the bounded wait on a dependency
// was exceeded. 주문은 생성되지 않은 상태로 남음
type DependencyTimeoutError struct {
	Dependency string
	Timeout    time.Duration
}

func (e *DependencyTimeoutError) Error() string {
	return fmt.Sprintf("dependency %s timed out after %s", e.Dependency, e.Timeout)
}

// Classification helpers (errors.As 래핑 체인까지 탐색)

// IsValidation reports whether err is a ValidationError
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

// IsConflict reports whether err is a ConflictError
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsDependencyUnavailable reports whether err is a DependencyUnavailableError
func IsDependencyUnavailable(err error) bool {
	var target *DependencyUnavailableError
	return errors.As(err, &target)
}

// IsDependencyTimeout reports whether err is a DependencyTimeoutError
func IsDependencyTimeout(err error) bool {
	var target *DependencyTimeoutError
	return errors.As(err, &target)
}

// ErrorKind returns the taxonomy name of err for per-order result lists.
// 도메인 타입이 우선, 생(raw) context 에러는 호출자 중단으로 분류
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsValidation(err):
		return "validation"
	case IsNotFound(err):
		return "not_found"
	case IsInvalidTransition(err):
		return "invalid_transition"
	case IsConflict(err):
		return "conflict"
	case IsDependencyTimeout(err):
		return "dependency_timeout"
	case IsDependencyUnavailable(err):
		return "dependency_unavailable"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, context.DeadlineExceeded):
		return "dependency_timeout"
	default:
		return "internal"
	}
}
