package config

import "time"

type Config interface {
	EnvConfig
	RefreshConfig
	IdentityConfig
	StorageConfig
}

type EnvConfig interface {
	GetAppName() string
	GetAPIBaseURL() string
	GetEnv() string
	GetLogLevel() string
	GetHTTPTimeout() time.Duration
}

type StorageConfig interface {
	GetSessionFile() string
	GetSessionPassphrase() string
}

type mainConfig struct {
	EnvVars
	Refresh
	Identity
	Storage
}

// New returns a Config backed by environment variables and built-in defaults.
func New() Config {
	return newConfig(&File{})
}

// Load returns a Config that falls back to the YAML file at path for any value
// not set in the environment. An empty path behaves like New.
func Load(path string) (Config, error) {
	if path == "" {
		return New(), nil
	}
	f, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return newConfig(f), nil
}

func newConfig(f *File) Config {
	return mainConfig{
		EnvVars:  EnvVars{file: f},
		Refresh:  Refresh{file: f},
		Identity: Identity{file: f},
		Storage:  Storage{file: f},
	}
}
