// Package apperr defines the error taxonomy shared by services and mapped to HTTP statuses by pkg/response.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ValidationError reports bad input. Fields maps a field name to what is wrong with it.
type ValidationError struct {
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return e.Message
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return e.Message + " (" + strings.Join(parts, "; ") + ")"
}

// ConflictError reports a request that contradicts current state (duplicate, already reviewed, last admin).
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// NotFoundError reports an unknown entity.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

// AuthorizationError reports an action the caller may not perform. It carries no detail on purpose.
type AuthorizationError struct{}

func (e *AuthorizationError) Error() string { return "insufficient permissions" }

// Validation returns a ValidationError with an optional field map.
func Validation(message string, fields map[string]string) error {
	return &ValidationError{Message: message, Fields: fields}
}

// FieldError returns a ValidationError for a single field.
func FieldError(field, problem string) error {
	return &ValidationError{Message: "invalid request", Fields: map[string]string{field: problem}}
}

// Conflict returns a ConflictError.
func Conflict(format string, args ...any) error {
	return &ConflictError{Message: fmt.Sprintf(format, args...)}
}

// NotFound returns a NotFoundError for resource.
func NotFound(resource string) error {
	return &NotFoundError{Resource: resource}
}

// Forbidden returns an AuthorizationError.
func Forbidden() error {
	return &AuthorizationError{}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsConflict reports whether err is or wraps a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsForbidden reports whether err is or wraps an AuthorizationError.
func IsForbidden(err error) bool {
	var target *AuthorizationError
	return errors.As(err, &target)
}
