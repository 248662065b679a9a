// Package apiclient talks to the brew backend REST API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jrsteele09/go-brew-client/internal/config"
	brewerrors "github.com/jrsteele09/go-brew-client/internal/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultTimeout   = 15 * time.Second
	maxResponseBytes = 4 << 20
)

// TokenSource supplies bearer tokens for authenticated calls. *auth.Service satisfies it.
type TokenSource interface {
	// ValidAccessToken returns a token that is not about to expire
	ValidAccessToken(ctx context.Context) (string, error)
	// RefreshToken forces a refresh after the backend rejected a token
	RefreshToken(ctx context.Context) (string, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	middleware []Middleware
	session    TokenSource
	logger     zerolog.Logger
}

type Option func(*Client)

// WithHTTPClient sets the underlying client. Its transport is wrapped, not replaced.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithMiddleware appends transport middleware after the built-in request ID and logging middleware
func WithMiddleware(mw ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, mw...)
	}
}

func WithSession(session TokenSource) Option {
	return func(c *Client) {
		c.session = session
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(c)
	}

	base := c.httpClient.Transport
	if base == nil {
		base = http.DefaultTransport
	}
	chain := append([]Middleware{
		RecoverMiddleware(),
		RequestIDMiddleware(),
		LoggingMiddleware(c.logger),
	}, c.middleware...)

	// Copy so the caller's client keeps its own transport
	httpClient := *c.httpClient
	httpClient.Transport = ChainMiddleware(base, chain...)
	c.httpClient = &httpClient
	return c
}

// NewFromConfig builds a client for the configured backend
func NewFromConfig(cfg config.EnvConfig, opts ...Option) *Client {
	base := []Option{
		WithHTTPClient(&http.Client{Timeout: cfg.GetHTTPTimeout()}),
		WithMiddleware(UserAgentMiddleware(cfg.GetAppName() + "-client")),
	}
	return New(cfg.GetAPIBaseURL(), append(base, opts...)...)
}

// SetSession attaches the token source used by authenticated calls. Call it before the client is
// shared between goroutines.
func (c *Client) SetSession(session TokenSource) {
	c.session = session
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

type request struct {
	method        string
	path          string
	query         url.Values
	body          any
	authenticated bool
	accessToken   string // explicit bearer token, bypasses the session
}

// call sends req. Authenticated requests that come back 401 are retried once with a refreshed token.
func (c *Client) call(ctx context.Context, req request, out any) error {
	var payload []byte
	if req.body != nil {
		var err error
		if payload, err = json.Marshal(req.body); err != nil {
			return fmt.Errorf("encoding %s %s request: %w", req.method, req.path, err)
		}
	}

	if !req.authenticated {
		return c.send(ctx, req, payload, req.accessToken, out)
	}
	if c.session == nil {
		return fmt.Errorf("%s %s: %w", req.method, req.path, brewerrors.ErrAuthenticationRequired)
	}

	accessToken, err := c.session.ValidAccessToken(ctx)
	if err != nil {
		return authFailure(err)
	}
	err = c.send(ctx, req, payload, accessToken, out)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != http.StatusUnauthorized {
		return err
	}

	c.logger.Debug().Str("path", req.path).Msg("access token rejected, refreshing")
	accessToken, err = c.session.RefreshToken(ctx)
	if err != nil {
		return authFailure(err)
	}
	return c.send(ctx, req, payload, accessToken, out)
}

func (c *Client) send(ctx context.Context, req request, payload []byte, accessToken string, out any) error {
	target := c.baseURL + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return fmt.Errorf("building %s %s request: %w", req.method, req.path, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("reading %s %s response: %w", req.method, req.path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp, data)
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decoding %s %s response: %w: %w", req.method, req.path, errUndecodable, err)
	}
	return nil
}

// authFailure reports a failure to obtain a token. Terminal refresh failures also read as
// ErrAuthenticationRequired so callers can send the user back to sign in.
func authFailure(err error) error {
	if brewerrors.IsTerminal(err) && !brewerrors.Is(err, brewerrors.ErrAuthenticationRequired) {
		return brewerrors.Join(brewerrors.ErrAuthenticationRequired, err)
	}
	return err
}
