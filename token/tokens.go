package token

import (
	"fmt"
	"strings"
	"time"

	brewerrors "github.com/jrsteele09/go-brew-client/internal/errors"
)

// Tokens is a token grant as returned by sign-in and refresh endpoints.
type Tokens struct {
	// AccessToken is the bearer credential for authenticated API calls.
	// Usage: Authorization: Bearer <accessToken>
	// Lifespan: Short-lived (typically 1 hour)
	AccessToken string `json:"accessToken"`

	// RefreshToken mints new access tokens. Hosted user pools may omit it on refresh,
	// in which case the previous refresh token remains valid.
	RefreshToken string `json:"refreshToken,omitempty"`

	// ExpiresIn is the access token lifetime in seconds, relative to when the grant was received.
	// When zero the JWT "exp" claim of the access token is used instead.
	ExpiresIn int `json:"expiresIn,omitempty"`

	// IDToken is the OpenID Connect ID token, present only for OIDC providers.
	IDToken string `json:"idToken,omitempty"`
}

// ExpiryFrom resolves the absolute expiry of the access token relative to now
func (t Tokens) ExpiryFrom(now time.Time) (time.Time, error) {
	if t.ExpiresIn > 0 {
		return now.Add(time.Duration(t.ExpiresIn) * time.Second), nil
	}
	if t.ExpiresIn < 0 {
		return time.Time{}, fmt.Errorf("negative expiresIn %d: %w", t.ExpiresIn, brewerrors.ErrMalformedGrant)
	}
	exp, err := ExpiryFromJWT(t.AccessToken)
	if err != nil {
		return time.Time{}, fmt.Errorf("no expiresIn and %v: %w", err, brewerrors.ErrMalformedGrant)
	}
	return exp, nil
}

// Validate checks the grant carries a usable access token
func (t Tokens) Validate() error {
	if strings.TrimSpace(t.AccessToken) == "" {
		return fmt.Errorf("empty access token: %w", brewerrors.ErrMalformedGrant)
	}
	return nil
}
