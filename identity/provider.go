// Package identity defines the boundary to whatever service issues and renews the user's tokens.
package identity

import (
	"context"

	"github.com/jrsteele09/go-brew-client/token"
	"github.com/jrsteele09/go-brew-client/users"
)

// Challenge is the pending step of a passwordless sign in, usually an emailed one-time code.
type Challenge struct {
	Name     string `json:"challengeName"`
	Session  string `json:"session"`
	Email    string `json:"email"`
	NextStep string `json:"nextStep"`
	Message  string `json:"message,omitempty"`
}

// SignInResult is what a completed sign in yields: a token grant and the signed-in user.
type SignInResult struct {
	Tokens token.Tokens
	User   users.Profile
}

// Provider issues, renews and describes the tokens for one user.
//
// Refresh must return an error matching brewerrors.ErrRefreshRejected when the refresh token is no
// longer accepted; any other error is treated as transient.
type Provider interface {
	InitiateSignIn(ctx context.Context, email string) (Challenge, error)
	ConfirmSignIn(ctx context.Context, challenge Challenge, code string) (SignInResult, error)
	Refresh(ctx context.Context, refreshToken string) (token.Tokens, error)
	CurrentUser(ctx context.Context, accessToken string) (users.Profile, error)
}
