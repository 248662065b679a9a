package token

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrNoExpiryClaim = errors.New("token has no exp claim")

// ExpiryFromJWT reads the exp claim of a JWT without verifying its signature.
// The client never holds the signing key; this is only used to schedule refreshes.
func ExpiryFromJWT(rawToken string) (time.Time, error) {
	if strings.TrimSpace(rawToken) == "" {
		return time.Time{}, errors.New("empty token")
	}

	unverified, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return time.Time{}, err
	}

	exp, err := unverified.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, ErrNoExpiryClaim
	}
	return exp.Time, nil
}

// SubjectFromJWT reads the sub claim of a JWT without verifying its signature
func SubjectFromJWT(rawToken string) (string, error) {
	unverified, _, err := jwt.NewParser().ParseUnverified(rawToken, jwt.MapClaims{})
	if err != nil {
		return "", err
	}
	return unverified.Claims.GetSubject()
}
