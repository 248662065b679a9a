package memstore

import (
	"sync"

	"github.com/jrsteele09/go-brew-client/sessions"
	"github.com/jrsteele09/go-brew-client/users"
)

var _ sessions.Store = (*Store)(nil)

// Store is an in-memory sessions.Store. State lives as long as the process.
type Store struct {
	mu      sync.RWMutex
	session sessions.Session
}

// New creates an empty in-memory session store
func New() *Store {
	return &Store{}
}

// NewWithSession creates a store pre-populated with s, e.g. restored from elsewhere
func NewWithSession(s sessions.Session) *Store {
	return &Store{session: s.Normalize()}
}

// Read returns a copy of the stored session
func (s *Store) Read() sessions.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session.Normalize()
}

// Write stores tokens and user together
func (s *Store) Write(tokens sessions.TokenSet, user users.Profile) error {
	if err := sessions.ValidateTokenSet(tokens); err != nil {
		return err
	}

	u := user.Clone()
	exp := tokens.Expiry

	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = sessions.Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Expiry:       &exp,
		User:         &u,
	}
	return nil
}

// WriteTokens replaces the token triple only
func (s *Store) WriteTokens(tokens sessions.TokenSet) error {
	if err := sessions.ValidateTokenSet(tokens); err != nil {
		return err
	}

	exp := tokens.Expiry

	s.mu.Lock()
	defer s.mu.Unlock()
	s.session.AccessToken = tokens.AccessToken
	s.session.RefreshToken = tokens.RefreshToken
	s.session.Expiry = &exp
	return nil
}

// WriteTokensIf replaces the token triple while the session still holds refreshToken
func (s *Store) WriteTokensIf(refreshToken string, tokens sessions.TokenSet) (bool, error) {
	if err := sessions.ValidateTokenSet(tokens); err != nil {
		return false, err
	}

	exp := tokens.Expiry

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.RefreshToken != refreshToken {
		return false, nil
	}
	s.session.AccessToken = tokens.AccessToken
	s.session.RefreshToken = tokens.RefreshToken
	s.session.Expiry = &exp
	return true, nil
}

// MergeUser merges update into the cached user, if there is one
func (s *Store) MergeUser(update users.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session.User == nil {
		return nil
	}
	merged := s.session.User.Merge(update)
	s.session.User = &merged
	return nil
}

// Clear removes the session
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = sessions.Session{}
	return nil
}

// ClearIf removes the session while it still holds refreshToken
func (s *Store) ClearIf(refreshToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session.RefreshToken != refreshToken {
		return false, nil
	}
	s.session = sessions.Session{}
	return true, nil
}
