package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-brew-client/events"
	"github.com/jrsteele09/go-brew-client/internal/config"
	brewerrors "github.com/jrsteele09/go-brew-client/internal/errors"
	"github.com/jrsteele09/go-brew-client/sessions"
	"github.com/jrsteele09/go-brew-client/token"
	"github.com/jrsteele09/go-brew-client/token/refresh"
	"github.com/jrsteele09/go-brew-client/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Service is the single entry point the rest of the application uses for session state.
// It combines the token store, the refresh coordinator and the event bus for one signed-in user.
type Service struct {
	store          sessions.Store
	bus            *events.Bus
	coordinator    *refresh.Coordinator
	refreshOptions []refresh.Option
	expiringSoon   time.Duration
	nowTime        func() time.Time // injectable for testing
	logger         zerolog.Logger
}

// ServiceOption defines a function type to modify the Service instance.
type ServiceOption func(*Service)

// WithNowTime sets the now time function (primarily for testing)
func WithNowTime(nowFunc func() time.Time) ServiceOption {
	return func(s *Service) {
		s.nowTime = nowFunc
	}
}

// WithExpiringSoonWindow sets how close to expiry ValidAccessToken starts refreshing
func WithExpiringSoonWindow(window time.Duration) ServiceOption {
	return func(s *Service) {
		s.expiringSoon = window
	}
}

func WithLogger(logger zerolog.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRefreshOptions passes options through to the refresh coordinator
func WithRefreshOptions(opts ...refresh.Option) ServiceOption {
	return func(s *Service) {
		s.refreshOptions = append(s.refreshOptions, opts...)
	}
}

// WithConfig applies the refresh and expiry settings from cfg
func WithConfig(cfg config.RefreshConfig) ServiceOption {
	return func(s *Service) {
		s.expiringSoon = cfg.GetExpiringSoonWindow()
		s.refreshOptions = append(s.refreshOptions, refresh.WithConfig(cfg))
	}
}

// NewService wires a Service around store. refresher is the network call used to renew tokens.
func NewService(store sessions.Store, refresher refresh.Refresher, options ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("[NewService] store is required")
	}
	if refresher == nil {
		return nil, errors.New("[NewService] refresher is required")
	}

	s := &Service{
		store:        store,
		bus:          events.NewBus(),
		expiringSoon: token.DefaultExpiringSoonWindow,
		nowTime:      time.Now,
		logger:       log.Logger,
	}
	for _, opt := range options {
		opt(s)
	}

	// Service-level clock and logger come first so explicit refresh options win
	opts := append([]refresh.Option{
		refresh.WithNowFunc(s.nowTime),
		refresh.WithLogger(s.logger),
	}, s.refreshOptions...)
	s.coordinator = refresh.New(store, refresher, s.bus, opts...)

	return s, nil
}

// IsAuthenticated reports whether a user is cached and holds an unexpired access token.
// It is recomputed from the store on every call.
func (s *Service) IsAuthenticated() bool {
	session := s.store.Read()
	return session.User != nil &&
		session.AccessToken != "" &&
		!token.IsExpired(session.Expiry, s.nowTime())
}

// Login stores a freshly issued grant with its user and publishes TopicLogin.
// Nothing is written if the grant has no access token or no resolvable expiry.
func (s *Service) Login(tokens token.Tokens, user users.Profile) error {
	if err := tokens.Validate(); err != nil {
		return fmt.Errorf("%w: %v", brewerrors.ErrInvalidTokens, err)
	}
	expiry, err := tokens.ExpiryFrom(s.nowTime())
	if err != nil {
		return fmt.Errorf("%w: %v", brewerrors.ErrInvalidTokens, err)
	}

	if err := s.store.Write(sessions.TokenSet{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
		Expiry:       expiry,
	}, user); err != nil {
		return brewerrors.Wrapf(err, "[Login] storing session")
	}

	s.logger.Info().Str("user", user.ID).Time("expiry", expiry).Msg("signed in")
	s.publish(events.TopicLogin)
	return nil
}

// Logout clears the session and publishes TopicLogout. It is safe to call when already logged out;
// the event is published either way so listeners can reset.
func (s *Service) Logout() error {
	err := s.store.Clear()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to clear session")
	}
	s.publish(events.TopicLogout)
	return err
}

func (s *Service) publish(topic events.Topic) {
	s.logger.Debug().Stringer("topic", topic).Int("listeners", s.bus.Count(topic)).Msg("publishing session event")
	s.bus.Publish(topic)
}

// AccessToken returns the stored access token without checking its expiry
func (s *Service) AccessToken() string {
	return s.store.Read().AccessToken
}

// CurrentUser returns the cached profile
func (s *Service) CurrentUser() (users.Profile, bool) {
	user := s.store.Read().User
	if user == nil {
		return users.Profile{}, false
	}
	return *user, true
}

// Session returns a snapshot of everything stored
func (s *Service) Session() sessions.Session {
	return s.store.Read()
}

// UpdateUser merges update into the cached profile. It does not call the backend.
func (s *Service) UpdateUser(update users.Update) error {
	if s.store.Read().User == nil {
		return brewerrors.ErrAuthenticationRequired
	}
	return s.store.MergeUser(update)
}

// RefreshToken forces a token refresh, joining one already in flight.
func (s *Service) RefreshToken(ctx context.Context) (string, error) {
	return s.coordinator.Refresh(ctx)
}

// ValidAccessToken returns an access token that is not about to expire, refreshing first when needed.
func (s *Service) ValidAccessToken(ctx context.Context) (string, error) {
	session := s.store.Read()
	if session.AccessToken == "" && session.RefreshToken == "" {
		return "", brewerrors.ErrAuthenticationRequired
	}
	if session.AccessToken != "" && !token.IsExpiringSoon(session.Expiry, s.nowTime(), s.expiringSoon) {
		return session.AccessToken, nil
	}
	return s.RefreshToken(ctx)
}

func (s *Service) Subscribe(topic events.Topic, fn events.Listener) events.Subscription {
	return s.bus.Subscribe(topic, fn)
}

func (s *Service) Unsubscribe(sub events.Subscription) {
	s.bus.Unsubscribe(sub)
}
