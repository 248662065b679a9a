package config

import (
	"os"
	"path/filepath"
)

type Storage struct {
	file *File
}

var _ StorageConfig = Storage{}

// GetSessionFile returns where the persisted session lives, defaulting to the user config dir
func (s Storage) GetSessionFile() string {
	if path := GetEnv("BREW_SESSION_FILE", s.file.SessionFile); path != "" {
		return path
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "brew", "session.json")
}

// GetSessionPassphrase returns the passphrase used to seal the session file. Empty means plaintext.
func (s Storage) GetSessionPassphrase() string {
	return GetEnv("BREW_SESSION_PASSPHRASE", s.file.SessionPassphrase)
}
