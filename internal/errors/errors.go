package errors

import (
	"errors"
	"fmt"
)

// Common error types for the brew session client
var (
	// Session errors
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrInvalidTokens          = errors.New("invalid tokens")
	ErrStorageUnavailable     = errors.New("session storage unavailable")

	// Refresh errors
	ErrNoRefreshToken   = errors.New("no refresh token")
	ErrRefreshRejected  = errors.New("refresh token rejected")
	ErrRefreshExhausted = errors.New("refresh retries exhausted")
	ErrMalformedGrant   = errors.New("malformed token grant")
	ErrRefreshTimeout   = errors.New("timed out waiting for token refresh")

	// API errors
	ErrInvalidRequest = errors.New("invalid request")
	ErrNotFound       = errors.New("not found")
	ErrRateLimited    = errors.New("rate limited")

	// General errors
	ErrInternal    = errors.New("internal error")
	ErrUnsupported = errors.New("unsupported operation")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

// Join returns an error that wraps the given errors
func Join(errs ...error) error {
	return errors.Join(errs...)
}

// IsTerminal reports whether err ended the session. Terminal failures must not be retried.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrNoRefreshToken) ||
		errors.Is(err, ErrRefreshRejected) ||
		errors.Is(err, ErrRefreshExhausted) ||
		errors.Is(err, ErrMalformedGrant)
}
