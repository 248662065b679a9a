package sessions

import (
	"time"

	"github.com/jrsteele09/go-brew-client/users"
)

// Session is the client-side authentication state. Empty strings and nil pointers mean absent.
// AccessToken and Expiry are present together or not at all; User is only present alongside them.
type Session struct {
	AccessToken  string         // Bearer credential for API calls
	RefreshToken string         // Credential used solely to mint new access tokens
	Expiry       *time.Time     // Absolute time after which AccessToken is invalid
	User         *users.Profile // Cached profile of the signed-in user
}

// TokenSet is the absolute-time form of a token grant as held in a Store
type TokenSet struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// HasTokens reports whether the access token / expiry pair is present
func (s Session) HasTokens() bool {
	return s.AccessToken != "" && s.Expiry != nil
}

// Empty reports whether no field is present
func (s Session) Empty() bool {
	return s.AccessToken == "" && s.RefreshToken == "" && s.Expiry == nil && s.User == nil
}

// Tokens returns the stored token triple, if any
func (s Session) Tokens() (TokenSet, bool) {
	if !s.HasTokens() {
		return TokenSet{}, false
	}
	return TokenSet{AccessToken: s.AccessToken, RefreshToken: s.RefreshToken, Expiry: *s.Expiry}, true
}

// Normalize drops fields that would break the pairing invariants, so a partially
// written or corrupt record reads back as absent rather than half-present.
func (s Session) Normalize() Session {
	if s.AccessToken == "" || s.Expiry == nil || s.Expiry.IsZero() {
		s.AccessToken = ""
		s.Expiry = nil
		s.User = nil
	}
	if s.User != nil {
		u := s.User.Clone()
		s.User = &u
	}
	if s.Expiry != nil {
		exp := *s.Expiry
		s.Expiry = &exp
	}
	return s
}
