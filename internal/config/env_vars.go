package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	appNameVar     = "APP_NAME"
	apiBaseURLVar  = "BREW_API_URL"
	envVar         = "ENV"
	logLevelVar    = "LOG_LEVEL"
	httpTimeoutVar = "BREW_HTTP_TIMEOUT"

	// ConfigFileVar names the optional YAML config file.
	ConfigFileVar = "BREW_CONFIG"
)

type EnvVars struct {
	file *File
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetAppName() string {
	return GetEnv(appNameVar, fileOr(e.file.AppName, "Brew"))
}

// GetAPIBaseURL returns the backend REST API base URL without a trailing slash
func (e EnvVars) GetAPIBaseURL() string {
	return strings.TrimRight(GetEnv(apiBaseURLVar, fileOr(e.file.APIBaseURL, "http://localhost:3001")), "/")
}

func (e EnvVars) GetEnv() string {
	return strings.ToUpper(GetEnv(envVar, fileOr(e.file.Env, "DEV")))
}

func (e EnvVars) GetLogLevel() string {
	return strings.ToLower(GetEnv(logLevelVar, fileOr(e.file.LogLevel, "info")))
}

func (e EnvVars) GetHTTPTimeout() time.Duration {
	return GetEnvDuration(httpTimeoutVar, durationOr(e.file.HTTPTimeout, 15*time.Second))
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvDuration parses envVar as a time.Duration, returning defaultValue when unset or invalid.
func GetEnvDuration(envVar string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}

// GetEnvInt parses envVar as an int, returning defaultValue when unset or invalid.
func GetEnvInt(envVar string, defaultValue int) int {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return defaultValue
	}
	return n
}
