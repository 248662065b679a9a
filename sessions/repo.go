package sessions

import (
	"fmt"
	"strings"

	brewerrors "github.com/jrsteele09/go-brew-client/internal/errors"
	"github.com/jrsteele09/go-brew-client/users"
)

// Store persists the Session fields. It never publishes events; that is left to the caller
// so a Store can be exercised in isolation.
type Store interface {
	// Read returns whatever subset of the session is present. Absent or corrupt fields read as absent.
	Read() Session

	// Write stores the token triple and the user profile together
	Write(tokens TokenSet, user users.Profile) error

	// WriteTokens replaces the token triple and leaves the cached user untouched
	WriteTokens(tokens TokenSet) error

	// WriteTokensIf behaves like WriteTokens but only while the stored refresh token equals
	// refreshToken. It reports whether the write happened.
	WriteTokensIf(refreshToken string, tokens TokenSet) (bool, error)

	// MergeUser shallow-merges update into the cached user. It is a no-op when no user is cached.
	MergeUser(update users.Update) error

	// Clear removes every field. Clearing an empty store is not an error.
	Clear() error

	// ClearIf clears the session only while the stored refresh token equals refreshToken.
	// It reports whether the session was cleared.
	ClearIf(refreshToken string) (bool, error)
}

// ValidateTokenSet rejects triples that would leave an access token without an expiry
func ValidateTokenSet(tokens TokenSet) error {
	if strings.TrimSpace(tokens.AccessToken) == "" {
		return fmt.Errorf("empty access token: %w", brewerrors.ErrInvalidTokens)
	}
	if tokens.Expiry.IsZero() {
		return fmt.Errorf("missing expiry: %w", brewerrors.ErrInvalidTokens)
	}
	return nil
}
