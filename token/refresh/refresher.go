package refresh

import (
	"context"
	"fmt"
	"net/http"

	brewerrors "github.com/jrsteele09/go-brew-client/internal/errors"
	"github.com/jrsteele09/go-brew-client/token"
)

// Refresher exchanges a refresh token for a new grant. It is the only network call a Coordinator makes.
//
// Errors that match brewerrors.ErrRefreshRejected (e.g. a *StatusError with 401) or
// brewerrors.ErrMalformedGrant are terminal; every other error is treated as transient and retried.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (token.Tokens, error)
}

// RefresherFunc adapts a function to the Refresher interface
type RefresherFunc func(ctx context.Context, refreshToken string) (token.Tokens, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (token.Tokens, error) {
	return f(ctx, refreshToken)
}

// StatusError is a non-2xx response from a refresh endpoint
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("refresh endpoint returned %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("refresh endpoint returned %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrRefreshRejected) match a 401
func (e *StatusError) Is(target error) bool {
	return target == brewerrors.ErrRefreshRejected && e.StatusCode == http.StatusUnauthorized
}
