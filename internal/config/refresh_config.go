package config

import "time"

type RefreshConfig interface {
	GetRefreshMaxRetries() int
	GetRefreshBaseDelay() time.Duration
	GetRefreshMaxDelay() time.Duration
	GetRefreshWaitCeiling() time.Duration
	GetRefreshFlightTimeout() time.Duration
	GetExpiringSoonWindow() time.Duration
}

type Refresh struct {
	file *File
}

var _ RefreshConfig = Refresh{}

func (r Refresh) GetRefreshMaxRetries() int {
	return GetEnvInt("BREW_REFRESH_MAX_RETRIES", intOr(r.file.Refresh.MaxRetries, 2))
}

func (r Refresh) GetRefreshBaseDelay() time.Duration {
	return GetEnvDuration("BREW_REFRESH_BASE_DELAY", durationOr(r.file.Refresh.BaseDelay, time.Second))
}

func (r Refresh) GetRefreshMaxDelay() time.Duration {
	return GetEnvDuration("BREW_REFRESH_MAX_DELAY", durationOr(r.file.Refresh.MaxDelay, 8*time.Second))
}

// GetRefreshWaitCeiling is how long a caller waits on an in-flight refresh before giving up
func (r Refresh) GetRefreshWaitCeiling() time.Duration {
	return GetEnvDuration("BREW_REFRESH_WAIT_CEILING", durationOr(r.file.Refresh.WaitCeiling, 10*time.Second))
}

func (r Refresh) GetRefreshFlightTimeout() time.Duration {
	return GetEnvDuration("BREW_REFRESH_FLIGHT_TIMEOUT", durationOr(r.file.Refresh.FlightTimeout, 30*time.Second))
}

func (r Refresh) GetExpiringSoonWindow() time.Duration {
	return GetEnvDuration("BREW_EXPIRING_SOON_WINDOW", durationOr(r.file.Refresh.ExpiringSoonWindow, 5*time.Minute))
}
