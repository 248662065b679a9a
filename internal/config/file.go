package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// File mirrors the optional YAML configuration file. Zero values fall through to defaults.
type File struct {
	AppName           string        `yaml:"app_name"`
	APIBaseURL        string        `yaml:"api_base_url"`
	Env               string        `yaml:"env"`
	LogLevel          string        `yaml:"log_level"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`
	SessionFile       string        `yaml:"session_file"`
	SessionPassphrase string        `yaml:"session_passphrase"`
	Refresh           RefreshFile   `yaml:"refresh"`
	Identity          IdentityFile  `yaml:"identity"`
}

type RefreshFile struct {
	MaxRetries         *int          `yaml:"max_retries"`
	BaseDelay          time.Duration `yaml:"base_delay"`
	MaxDelay           time.Duration `yaml:"max_delay"`
	WaitCeiling        time.Duration `yaml:"wait_ceiling"`
	FlightTimeout      time.Duration `yaml:"flight_timeout"`
	ExpiringSoonWindow time.Duration `yaml:"expiring_soon_window"`
}

type IdentityFile struct {
	Provider     string   `yaml:"provider"`
	Issuer       string   `yaml:"issuer"`
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
}

// ReadFile parses the YAML config file at path
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.ReadFile: %w", err)
	}
	f := &File{}
	if err := yaml.Unmarshal(data, f); err != nil {
		return nil, fmt.Errorf("config.ReadFile %s: %w", path, err)
	}
	return f, nil
}

func fileOr(value, defaultValue string) string {
	if value == "" {
		return defaultValue
	}
	return value
}

func durationOr(value, defaultValue time.Duration) time.Duration {
	if value <= 0 {
		return defaultValue
	}
	return value
}

// max_retries may legitimately be zero, so it is a pointer.
func intOr(value *int, defaultValue int) int {
	if value == nil || *value < 0 {
		return defaultValue
	}
	return *value
}
