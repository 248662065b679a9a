package refresh

import (
	"context"
	"fmt"
	"time"

	"github.com/jrsteele09/go-brew-client/events"
	"github.com/jrsteele09/go-brew-client/internal/config"
	brewerrors "github.com/jrsteele09/go-brew-client/internal/errors"
	"github.com/jrsteele09/go-brew-client/sessions"
	"github.com/jrsteele09/go-brew-client/token"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultMaxRetries    = 2
	DefaultBaseDelay     = time.Second
	DefaultMaxDelay      = 8 * time.Second
	DefaultWaitCeiling   = 10 * time.Second
	DefaultFlightTimeout = 30 * time.Second

	flightKey = "refresh"
)

var errSessionChanged = fmt.Errorf("session changed during token refresh: %w", brewerrors.ErrAuthenticationRequired)

// Publisher receives session lifecycle events. *events.Bus satisfies it.
type Publisher interface {
	Publish(topic events.Topic)
}

// Coordinator serializes token refreshes for one session. Concurrent callers share a single
// network call and all observe its result.
type Coordinator struct {
	store     sessions.Store
	refresher Refresher
	publisher Publisher
	group     singleflight.Group

	maxRetries    int
	baseDelay     time.Duration
	maxDelay      time.Duration
	waitCeiling   time.Duration
	flightTimeout time.Duration

	nowFunc func() time.Time
	sleep   func(ctx context.Context, d time.Duration) error
	logger  zerolog.Logger
	metrics *Metrics
}

type Option func(*Coordinator)

func WithMaxRetries(n int) Option {
	return func(c *Coordinator) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithBackoff sets the delay before the first retry and the cap the doubling delay never exceeds
func WithBackoff(base, max time.Duration) Option {
	return func(c *Coordinator) {
		c.baseDelay = base
		c.maxDelay = max
	}
}

func WithWaitCeiling(d time.Duration) Option {
	return func(c *Coordinator) {
		c.waitCeiling = d
	}
}

func WithFlightTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		c.flightTimeout = d
	}
}

// WithConfig applies the refresh settings from cfg
func WithConfig(cfg config.RefreshConfig) Option {
	return func(c *Coordinator) {
		WithMaxRetries(cfg.GetRefreshMaxRetries())(c)
		WithBackoff(cfg.GetRefreshBaseDelay(), cfg.GetRefreshMaxDelay())(c)
		c.waitCeiling = cfg.GetRefreshWaitCeiling()
		c.flightTimeout = cfg.GetRefreshFlightTimeout()
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Coordinator) {
		c.logger = logger
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Coordinator) {
		c.metrics = m
	}
}

func WithNowFunc(nowFunc func() time.Time) Option {
	return func(c *Coordinator) {
		c.nowFunc = nowFunc
	}
}

// WithSleepFunc replaces the backoff sleep. The function must return early with ctx.Err() when ctx is done.
func WithSleepFunc(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(c *Coordinator) {
		c.sleep = sleep
	}
}

func New(store sessions.Store, refresher Refresher, publisher Publisher, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:         store,
		refresher:     refresher,
		publisher:     publisher,
		maxRetries:    DefaultMaxRetries,
		baseDelay:     DefaultBaseDelay,
		maxDelay:      DefaultMaxDelay,
		waitCeiling:   DefaultWaitCeiling,
		flightTimeout: DefaultFlightTimeout,
		nowFunc:       time.Now,
		sleep:         sleepContext,
		logger:        log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxDelay < c.baseDelay {
		c.maxDelay = c.baseDelay
	}
	return c
}

// Refresh obtains a new access token, joining a refresh already in flight if there is one.
//
// A caller gives up after the wait ceiling or when ctx is done; the flight itself carries on and
// still updates the store. Errors for which brewerrors.IsTerminal is true mean the session has been
// cleared and a logout event published. A flight whose session was replaced by a login or logout
// while it ran changes nothing and reports brewerrors.ErrAuthenticationRequired.
func (c *Coordinator) Refresh(ctx context.Context) (string, error) {
	flightCtx := context.WithoutCancel(ctx)

	var led bool
	ch := c.group.DoChan(flightKey, func() (interface{}, error) {
		led = true
		return c.fly(flightCtx)
	})

	var ceiling <-chan time.Time
	if c.waitCeiling > 0 {
		timer := time.NewTimer(c.waitCeiling)
		defer timer.Stop()
		ceiling = timer.C
	}

	select {
	case res := <-ch:
		if !led {
			c.metrics.joined()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ceiling:
		return "", brewerrors.ErrRefreshTimeout
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// fly runs one flight. The singleflight key is released before any event is published so a
// listener that refreshes again starts a fresh flight instead of waiting on this one.
func (c *Coordinator) fly(ctx context.Context) (accessToken string, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.flightTimeout)
	defer cancel()

	var topic events.Topic
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("token refresh panicked")
			accessToken = ""
			err = fmt.Errorf("token refresh panicked: %v: %w", r, brewerrors.ErrInternal)
			topic = 0
		}
		c.group.Forget(flightKey)
		if topic != 0 {
			c.publisher.Publish(topic)
		}
	}()

	refreshToken := c.store.Read().RefreshToken
	accessToken, err = c.refresh(ctx, refreshToken)
	switch {
	case err == nil:
		topic = events.TopicTokenRefreshed
	case brewerrors.IsTerminal(err):
		if !c.endSession(refreshToken, err) {
			return "", errSessionChanged
		}
		topic = events.TopicLogout
	}
	return accessToken, err
}

func (c *Coordinator) refresh(ctx context.Context, refreshToken string) (string, error) {
	if refreshToken == "" {
		c.metrics.observe(OutcomeNoToken)
		return "", brewerrors.ErrNoRefreshToken
	}

	delay := c.baseDelay
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("retrying token refresh")
			if err := c.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
			delay = min(delay*2, c.maxDelay)
		}

		grant, err := c.callRefresher(ctx, refreshToken)
		if err == nil {
			return c.accept(grant, refreshToken)
		}
		if brewerrors.Is(err, brewerrors.ErrRefreshRejected) {
			c.metrics.observe(OutcomeRejected)
			return "", brewerrors.Wrapf(err, "refresh token rejected")
		}
		if brewerrors.Is(err, brewerrors.ErrMalformedGrant) {
			c.metrics.observe(OutcomeMalformed)
			return "", err
		}
		c.metrics.observe(OutcomeTransient)
		c.logger.Warn().Err(err).Int("attempt", attempt).Msg("token refresh failed")
		lastErr = err
	}

	c.metrics.observe(OutcomeExhausted)
	return "", fmt.Errorf("%w: %v", brewerrors.ErrRefreshExhausted, lastErr)
}

// callRefresher turns a panic in the refresher into a transient failure
func (c *Coordinator) callRefresher(ctx context.Context, refreshToken string) (grant token.Tokens, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresher panicked: %v", r)
		}
	}()
	return c.refresher.Refresh(ctx, refreshToken)
}

func (c *Coordinator) accept(grant token.Tokens, previousRefreshToken string) (string, error) {
	if err := grant.Validate(); err != nil {
		c.metrics.observe(OutcomeMalformed)
		return "", err
	}
	expiry, err := grant.ExpiryFrom(c.nowFunc())
	if err != nil {
		c.metrics.observe(OutcomeMalformed)
		return "", err
	}

	refreshToken := grant.RefreshToken
	if refreshToken == "" {
		refreshToken = previousRefreshToken
	}
	written, err := c.store.WriteTokensIf(previousRefreshToken, sessions.TokenSet{
		AccessToken:  grant.AccessToken,
		RefreshToken: refreshToken,
		Expiry:       expiry,
	})
	if err != nil {
		return "", brewerrors.Wrapf(err, "storing refreshed tokens")
	}
	if !written {
		c.metrics.observe(OutcomeSuperseded)
		c.logger.Info().Msg("session changed during token refresh, discarding the new grant")
		return "", errSessionChanged
	}

	c.metrics.observe(OutcomeSuccess)
	c.logger.Debug().Time("expiry", expiry).Msg("access token refreshed")
	return grant.AccessToken, nil
}

// endSession clears the session the flight started from. It returns false when a login or
// logout replaced that session meanwhile; the newer session is left alone.
func (c *Coordinator) endSession(refreshToken string, cause error) bool {
	cleared, err := c.store.ClearIf(refreshToken)
	if err != nil {
		c.logger.Error().Err(err).Msg("failed to clear session")
		return true
	}
	if !cleared {
		c.logger.Info().Err(cause).Msg("token refresh failed for a session that has since changed")
		return false
	}
	c.logger.Info().Err(cause).Msg("ending session after failed token refresh")
	return true
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
