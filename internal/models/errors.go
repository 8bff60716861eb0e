package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared by every layer. The api package maps them to HTTP
// status codes.
var (
	ErrUnauthenticated  = errors.New("unauthenticated")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrNotFound         = errors.New("not found")
)

// ValidationError is a request field failure. It matches ErrInvalidArgument
// under errors.Is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidArgument
}

// Invalidf builds a ValidationError from a format string
func Invalidf(format string, args ...any) error {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a driver error so that it matches ErrStoreUnavailable
func Unavailable(store string, err error) error {
	return fmt.Errorf("%s: %w: %w", store, ErrStoreUnavailable, err)
}
