package filestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	brewerrors "github.com/jrsteele09/go-brew-client/internal/errors"
	"github.com/jrsteele09/go-brew-client/sessions"
	"github.com/jrsteele09/go-brew-client/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const documentVersion = 1

var _ sessions.Store = (*Store)(nil)

// document is the on-disk layout. User is kept raw so a corrupt profile only loses the profile.
type document struct {
	Version      int             `json:"version"`
	AccessToken  string          `json:"accessToken,omitempty"`
	RefreshToken string          `json:"refreshToken,omitempty"`
	Expiry       *time.Time      `json:"expiry,omitempty"`
	User         json.RawMessage `json:"user,omitempty"`
}

// Store is a sessions.Store persisted as a single JSON file, optionally sealed with a passphrase.
// Every write replaces the whole file through a rename.
type Store struct {
	path   string
	sealer *sealer
	logger zerolog.Logger
	mu     sync.Mutex
}

type Option func(*Store)

// WithPassphrase seals the file with a key derived from passphrase
func WithPassphrase(passphrase string) Option {
	return func(s *Store) {
		if passphrase != "" {
			s.sealer = newSealer(passphrase)
		}
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a file-backed store at path. The file and its directory are created on first write.
func New(path string, options ...Option) *Store {
	s := &Store{
		path:   path,
		logger: log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Path returns the backing file path
func (s *Store) Path() string {
	return s.path
}

func (s *Store) Read() sessions.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *Store) Write(tokens sessions.TokenSet, user users.Profile) error {
	if err := sessions.ValidateTokenSet(tokens); err != nil {
		return err
	}
	u := user.Clone()
	exp := tokens.Expiry

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(sessions.Session{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Expiry:       &exp,
		User:         &u,
	})
}

func (s *Store) WriteTokens(tokens sessions.TokenSet) error {
	if err := sessions.ValidateTokenSet(tokens); err != nil {
		return err
	}
	exp := tokens.Expiry

	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.readRaw()
	current.AccessToken = tokens.AccessToken
	current.RefreshToken = tokens.RefreshToken
	current.Expiry = &exp
	return s.write(current)
}

func (s *Store) WriteTokensIf(refreshToken string, tokens sessions.TokenSet) (bool, error) {
	if err := sessions.ValidateTokenSet(tokens); err != nil {
		return false, err
	}
	exp := tokens.Expiry

	s.mu.Lock()
	defer s.mu.Unlock()
	current := s.readRaw()
	if current.RefreshToken != refreshToken {
		return false, nil
	}
	current.AccessToken = tokens.AccessToken
	current.RefreshToken = tokens.RefreshToken
	current.Expiry = &exp
	if err := s.write(current); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Store) MergeUser(update users.Update) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.readRaw()
	if current.User == nil {
		return nil
	}
	merged := current.User.Merge(update)
	current.User = &merged
	return s.write(current)
}

func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return brewerrors.Wrapf(brewerrors.ErrStorageUnavailable, "filestore.Clear %s: %v", s.path, err)
	}
	return nil
}

func (s *Store) ClearIf(refreshToken string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.readRaw().RefreshToken != refreshToken {
		return false, nil
	}
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return false, brewerrors.Wrapf(brewerrors.ErrStorageUnavailable, "filestore.ClearIf %s: %v", s.path, err)
	}
	return true, nil
}

func (s *Store) read() sessions.Session {
	return s.readRaw().Normalize()
}

// readRaw decodes the file without applying the pairing rules, so partial updates keep
// whatever fields were valid on disk.
func (s *Store) readRaw() sessions.Session {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("session file unreadable, treating as signed out")
		}
		return sessions.Session{}
	}

	if s.sealer != nil {
		data, err = s.sealer.open(data)
		if err != nil {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("session file could not be unsealed")
			return sessions.Session{}
		}
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("session file corrupt")
		return sessions.Session{}
	}

	session := sessions.Session{
		AccessToken:  doc.AccessToken,
		RefreshToken: doc.RefreshToken,
		Expiry:       doc.Expiry,
	}
	if len(doc.User) > 0 && string(doc.User) != "null" {
		var u users.Profile
		if err := json.Unmarshal(doc.User, &u); err != nil {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("cached user corrupt, dropping it")
		} else {
			session.User = &u
		}
	}
	return session
}

func (s *Store) write(session sessions.Session) error {
	doc := document{
		Version:      documentVersion,
		AccessToken:  session.AccessToken,
		RefreshToken: session.RefreshToken,
		Expiry:       session.Expiry,
	}
	if session.User != nil {
		raw, err := json.Marshal(session.User)
		if err != nil {
			return fmt.Errorf("filestore.write marshal user: %w", err)
		}
		doc.User = raw
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("filestore.write marshal: %w", err)
	}
	if s.sealer != nil {
		if data, err = s.sealer.seal(data); err != nil {
			return brewerrors.Wrapf(brewerrors.ErrStorageUnavailable, "filestore.write seal: %v", err)
		}
	}

	if err := writeFileAtomic(s.path, data); err != nil {
		return brewerrors.Wrapf(brewerrors.ErrStorageUnavailable, "filestore.write %s: %v", s.path, err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".session-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op once renamed

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
