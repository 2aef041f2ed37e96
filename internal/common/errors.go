// Package common defines shared constants and sentinel errors used across
// the service layers. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")
	ErrorConflict = errors.New("already exists")

	// Service-level errors.
	ErrorBadRequest   = errors.New("bad request")
	ErrorValidation   = errors.New("validation error")
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrorForbidden    = errors.New("forbidden")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)

var (
	// ErrInvalidCredentials is returned when a password digest does not match.
	ErrInvalidCredentials = fmt.Errorf("invalid credentials: %w", ErrorBadRequest)

	// ErrCodeMismatch covers both a wrong confirmation code and an expired one.
	ErrCodeMismatch = fmt.Errorf("confirmation code mismatch or expired: %w", ErrorBadRequest)

	// ErrNotificationFailed is returned when the confirmation code could not be delivered.
	ErrNotificationFailed = fmt.Errorf("notification was not delivered: %w", ErrorBadRequest)

	// ErrInvalidRole is returned for role values outside the known set.
	ErrInvalidRole = fmt.Errorf("invalid role: %w", ErrorValidation)
)
