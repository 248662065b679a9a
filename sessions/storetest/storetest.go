// Package storetest holds behaviour tests every sessions.Store implementation must pass.
package storetest

import (
	"testing"
	"time"

	brewerrors "github.com/jrsteele09/go-brew-client/internal/errors"
	"github.com/jrsteele09/go-brew-client/internal/utils"
	"github.com/jrsteele09/go-brew-client/sessions"
	"github.com/jrsteele09/go-brew-client/users"
	"github.com/stretchr/testify/require"
)

// DefaultUser is the profile written by the store tests
func DefaultUser() users.Profile {
	return users.Profile{
		ID:        "u1",
		Email:     "x@y.com",
		FirstName: "Ada",
		LastName:  "Lovelace",
		Country:   "GB",
		Interests: []string{"tech"},
		Timezone:  "UTC",
	}
}

// DefaultTokens returns a valid token triple expiring an hour from now
func DefaultTokens() sessions.TokenSet {
	return sessions.TokenSet{
		AccessToken:  "a1",
		RefreshToken: "r1",
		Expiry:       time.Now().Add(time.Hour).UTC().Truncate(time.Second),
	}
}

// Run exercises newStore against the sessions.Store contract
func Run(t *testing.T, newStore func(t *testing.T) sessions.Store) {
	t.Run("EmptyStoreReadsAbsent", func(t *testing.T) {
		s := newStore(t)
		require.True(t, s.Read().Empty())
	})

	t.Run("WriteThenRead", func(t *testing.T) {
		s := newStore(t)
		tokens := DefaultTokens()
		require.NoError(t, s.Write(tokens, DefaultUser()))

		got := s.Read()
		require.Equal(t, "a1", got.AccessToken)
		require.Equal(t, "r1", got.RefreshToken)
		require.NotNil(t, got.Expiry)
		require.True(t, tokens.Expiry.Equal(*got.Expiry))
		require.NotNil(t, got.User)
		require.Equal(t, DefaultUser(), *got.User)
	})

	t.Run("WriteRejectsUnpairedTokens", func(t *testing.T) {
		s := newStore(t)
		err := s.Write(sessions.TokenSet{AccessToken: "a1"}, DefaultUser())
		require.ErrorIs(t, err, brewerrors.ErrInvalidTokens)

		err = s.WriteTokens(sessions.TokenSet{Expiry: time.Now().Add(time.Hour)})
		require.ErrorIs(t, err, brewerrors.ErrInvalidTokens)

		got := s.Read()
		require.Equal(t, got.AccessToken != "", got.Expiry != nil)
	})

	t.Run("WriteTokensKeepsUser", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(DefaultTokens(), DefaultUser()))

		next := sessions.TokenSet{AccessToken: "a2", RefreshToken: "r2", Expiry: time.Now().Add(2 * time.Hour)}
		require.NoError(t, s.WriteTokens(next))

		got := s.Read()
		require.Equal(t, "a2", got.AccessToken)
		require.Equal(t, "r2", got.RefreshToken)
		require.NotNil(t, got.User)
		require.Equal(t, "u1", got.User.ID)
	})

	t.Run("WriteTokensIfMatchingRefreshToken", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(DefaultTokens(), DefaultUser()))

		next := sessions.TokenSet{AccessToken: "a2", RefreshToken: "r2", Expiry: time.Now().Add(2 * time.Hour)}
		written, err := s.WriteTokensIf("r1", next)
		require.NoError(t, err)
		require.True(t, written)

		got := s.Read()
		require.Equal(t, "a2", got.AccessToken)
		require.Equal(t, "r2", got.RefreshToken)
		require.NotNil(t, got.User)
	})

	t.Run("WriteTokensIfAfterClearIsDropped", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(DefaultTokens(), DefaultUser()))
		require.NoError(t, s.Clear())

		next := sessions.TokenSet{AccessToken: "a2", RefreshToken: "r2", Expiry: time.Now().Add(2 * time.Hour)}
		written, err := s.WriteTokensIf("r1", next)
		require.NoError(t, err)
		require.False(t, written)
		require.True(t, s.Read().Empty())
	})

	t.Run("WriteTokensIfAfterNewLoginIsDropped", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(DefaultTokens(), DefaultUser()))
		other := sessions.TokenSet{AccessToken: "b1", RefreshToken: "s1", Expiry: time.Now().Add(time.Hour)}
		require.NoError(t, s.Write(other, users.Profile{ID: "u2", Email: "b@y.com"}))

		written, err := s.WriteTokensIf("r1", sessions.TokenSet{AccessToken: "a2", RefreshToken: "r2", Expiry: time.Now().Add(2 * time.Hour)})
		require.NoError(t, err)
		require.False(t, written)

		got := s.Read()
		require.Equal(t, "b1", got.AccessToken)
		require.Equal(t, "s1", got.RefreshToken)
		require.Equal(t, "u2", got.User.ID)
	})

	t.Run("WriteTokensIfRejectsUnpairedTokens", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(DefaultTokens(), DefaultUser()))

		written, err := s.WriteTokensIf("r1", sessions.TokenSet{RefreshToken: "r2"})
		require.ErrorIs(t, err, brewerrors.ErrInvalidTokens)
		require.False(t, written)
		require.Equal(t, "a1", s.Read().AccessToken)
	})

	t.Run("ClearIf", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(DefaultTokens(), DefaultUser()))

		cleared, err := s.ClearIf("stale")
		require.NoError(t, err)
		require.False(t, cleared)
		require.Equal(t, "a1", s.Read().AccessToken)

		cleared, err = s.ClearIf("r1")
		require.NoError(t, err)
		require.True(t, cleared)
		require.True(t, s.Read().Empty())
	})

	t.Run("MergeUser", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(DefaultTokens(), DefaultUser()))
		require.NoError(t, s.MergeUser(users.Update{Timezone: utils.Ptr("Asia/Tokyo")}))

		got := s.Read()
		require.Equal(t, "Asia/Tokyo", got.User.Timezone)
		require.Equal(t, "Ada", got.User.FirstName)
		require.Equal(t, "a1", got.AccessToken)
	})

	t.Run("MergeUserWithoutUserIsNoop", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.MergeUser(users.Update{FirstName: utils.Ptr("Bob")}))
		require.True(t, s.Read().Empty())
	})

	t.Run("ClearRemovesEverything", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(DefaultTokens(), DefaultUser()))
		require.NoError(t, s.Clear())
		require.True(t, s.Read().Empty())

		// Clearing twice is fine
		require.NoError(t, s.Clear())
		require.True(t, s.Read().Empty())
	})

	t.Run("ReadReturnsCopies", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Write(DefaultTokens(), DefaultUser()))

		got := s.Read()
		got.User.Interests[0] = "mutated"
		*got.Expiry = time.Time{}

		again := s.Read()
		require.Equal(t, "tech", again.User.Interests[0])
		require.False(t, again.Expiry.IsZero())
	})
}
