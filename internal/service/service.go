// Package service implements the job and media use cases on top of the
// repositories, the broker and the storage backend. All status transitions
// funnel through here so the lifecycle rules live in one place.
package service

import (
	"errors"
	"fmt"
)

// Sentinel errors mapped to API responses by the HTTP layer.
var (
	// ErrNotFound indicates the requested job or artifact does not exist.
	ErrNotFound = errors.New("service: not found")

	// ErrInvalidState indicates the operation is not allowed in the
	// entity's current lifecycle state.
	ErrInvalidState = errors.New("service: invalid state")

	// ErrValidation indicates the request payload failed validation.
	ErrValidation = errors.New("service: validation failed")

	// ErrExpired indicates the artifact's retention period has elapsed.
	ErrExpired = errors.New("service: media expired")
)

func validationErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func invalidStateErr(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidState, fmt.Sprintf(format, args...))
}
