// Package shared contains the error kinds and small value types used across
// all domain packages. This package has zero external dependencies.
package shared

import (
	"errors"
	"fmt"
	"net/http"
)

// Base error kinds, checked with errors.Is().
var (
	// ErrNotFound: a referenced quiz, lesson, user, vocabulary item or badge does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict: the requested state transition would violate an aggregate invariant.
	ErrConflict = errors.New("conflict")

	// ErrDataIntegrity: stored or submitted data is malformed (e.g. quiz with no questions).
	ErrDataIntegrity = errors.New("data integrity violation")

	// ErrDependency: the underlying store is unreachable or rejected a write.
	ErrDependency = errors.New("dependency failure")

	// ErrInvalidInput: the caller supplied an invalid argument.
	ErrInvalidInput = errors.New("invalid input")

	// ErrForbidden: the actor lacks the capability required for the operation.
	ErrForbidden = errors.New("forbidden")
)

// DomainError represents a domain-specific error with context.
type DomainError struct {
	Domain  string // e.g. "progress", "quiz", "badge"
	Op      string // operation that failed, e.g. "SubmitQuiz"
	Kind    error  // base error kind for errors.Is()
	Message string
	Err     error // underlying cause (optional)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s.%s: %s: %v", e.Domain, e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s.%s: %s", e.Domain, e.Op, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap().
func (e *DomainError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return e.Kind
}

// Is implements errors.Is() matching against both the kind and the cause.
func (e *DomainError) Is(target error) bool {
	if e.Kind != nil && errors.Is(e.Kind, target) {
		return true
	}
	if e.Err != nil && errors.Is(e.Err, target) {
		return true
	}
	return false
}

// NewDomainError creates a new domain error.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
	}
}

// WrapError wraps an existing error with domain context.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	return &DomainError{
		Domain:  domain,
		Op:      op,
		Kind:    kind,
		Message: message,
		Err:     err,
	}
}

// Dependency wraps a store failure. Errors that already carry a domain kind
// pass through untouched so NotFound/Conflict survive repository layers.
func Dependency(domain, op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DomainError
	if errors.As(err, &de) {
		return err
	}
	return WrapError(domain, op, ErrDependency, "store operation failed", err)
}

func IsNotFound(err error) bool      { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool      { return errors.Is(err, ErrConflict) }
func IsDataIntegrity(err error) bool { return errors.Is(err, ErrDataIntegrity) }
func IsDependency(err error) bool    { return errors.Is(err, ErrDependency) }
func IsForbidden(err error) bool     { return errors.Is(err, ErrForbidden) }
func IsInvalidInput(err error) bool  { return errors.Is(err, ErrInvalidInput) }

// Status maps an error to the HTTP-equivalent status the orchestrating layer
// should surface.
func Status(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case IsNotFound(err):
		return http.StatusNotFound
	case IsConflict(err):
		return http.StatusConflict
	case IsDataIntegrity(err):
		return http.StatusUnprocessableEntity
	case IsInvalidInput(err):
		return http.StatusBadRequest
	case IsForbidden(err):
		return http.StatusForbidden
	case IsDependency(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
