// Package oidcprovider implements identity.Provider against a hosted OpenID Connect issuer.
package oidcprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-brew-client/identity"
	"github.com/jrsteele09/go-brew-client/internal/config"
	brewerrors "github.com/jrsteele09/go-brew-client/internal/errors"
	"github.com/jrsteele09/go-brew-client/token"
	"github.com/jrsteele09/go-brew-client/token/refresh"
	"github.com/jrsteele09/go-brew-client/users"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

type Provider struct {
	provider     *oidc.Provider
	oauth2Config *oauth2.Config
	verifier     *oidc.IDTokenVerifier
	httpClient   *http.Client
	nowFunc      func() time.Time
	logger       zerolog.Logger
}

var _ identity.Provider = (*Provider)(nil)
var _ refresh.Refresher = (*Provider)(nil)

type Option func(*Provider)

func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

func WithLogger(logger zerolog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

func WithNowFunc(nowFunc func() time.Time) Option {
	return func(p *Provider) {
		p.nowFunc = nowFunc
	}
}

// New discovers the issuer named in cfg and prepares the token and userinfo endpoints.
func New(ctx context.Context, cfg config.IdentityConfig, opts ...Option) (*Provider, error) {
	if cfg.GetOIDCIssuer() == "" {
		return nil, errors.New("[oidcprovider New] issuer is required")
	}
	if cfg.GetOIDCClientID() == "" {
		return nil, errors.New("[oidcprovider New] client id is required")
	}

	p := &Provider{
		nowFunc: time.Now,
		logger:  log.Logger,
	}
	for _, opt := range opts {
		opt(p)
	}

	provider, err := oidc.NewProvider(p.clientContext(ctx), cfg.GetOIDCIssuer())
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	p.provider = provider
	p.oauth2Config = &oauth2.Config{
		ClientID:     cfg.GetOIDCClientID(),
		ClientSecret: cfg.GetOIDCClientSecret(),
		Endpoint:     provider.Endpoint(),
		Scopes:       cfg.GetOIDCScopes(),
	}
	p.verifier = provider.Verifier(&oidc.Config{
		ClientID: cfg.GetOIDCClientID(),
		Now:      p.nowFunc,
	})
	return p, nil
}

// InitiateSignIn is not part of OpenID Connect; hosted issuers run their own sign in pages.
func (p *Provider) InitiateSignIn(context.Context, string) (identity.Challenge, error) {
	return identity.Challenge{}, fmt.Errorf("[oidcprovider InitiateSignIn] %w", brewerrors.ErrUnsupported)
}

func (p *Provider) ConfirmSignIn(context.Context, identity.Challenge, string) (identity.SignInResult, error) {
	return identity.SignInResult{}, fmt.Errorf("[oidcprovider ConfirmSignIn] %w", brewerrors.ErrUnsupported)
}

// Refresh exchanges refreshToken at the issuer's token endpoint.
// An invalid_grant or 401 answer is reported as a rejected refresh token. A returned ID token that
// fails verification makes the grant malformed.
func (p *Provider) Refresh(ctx context.Context, refreshToken string) (token.Tokens, error) {
	src := p.oauth2Config.TokenSource(p.clientContext(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return token.Tokens{}, mapRetrieveError(err)
	}

	grant := token.Tokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresIn:    int(tok.ExpiresIn),
	}
	if grant.ExpiresIn <= 0 && !tok.Expiry.IsZero() {
		grant.ExpiresIn = int(tok.Expiry.Sub(p.nowFunc()).Seconds())
	}
	if rawIDToken, ok := tok.Extra("id_token").(string); ok && rawIDToken != "" {
		if _, err := p.verifier.Verify(p.clientContext(ctx), rawIDToken); err != nil {
			// The exchange already went through, so a rotating issuer has spent the old refresh token
			return token.Tokens{}, fmt.Errorf("ID token verification failed: %w: %w", brewerrors.ErrMalformedGrant, err)
		}
		grant.IDToken = rawIDToken
	}
	return grant, nil
}

// CurrentUser loads the profile from the issuer's UserInfo endpoint
func (p *Provider) CurrentUser(ctx context.Context, accessToken string) (users.Profile, error) {
	ui, err := p.provider.UserInfo(p.clientContext(ctx), oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: accessToken,
		TokenType:   "Bearer",
	}))
	if err != nil {
		return users.Profile{}, fmt.Errorf("failed to fetch user info: %w", err)
	}

	var attrs map[string]any
	if err := ui.Claims(&attrs); err != nil {
		return users.Profile{}, fmt.Errorf("failed to decode user info: %w", err)
	}
	return users.FromAttributes(attrs)
}

// VerifyIDToken checks the signature and claims of rawIDToken and maps its claims to a profile
func (p *Provider) VerifyIDToken(ctx context.Context, rawIDToken string) (users.Profile, error) {
	idToken, err := p.verifier.Verify(p.clientContext(ctx), rawIDToken)
	if err != nil {
		return users.Profile{}, fmt.Errorf("ID token verification failed: %w", err)
	}
	var attrs map[string]any
	if err := idToken.Claims(&attrs); err != nil {
		return users.Profile{}, fmt.Errorf("failed to extract claims: %w", err)
	}
	return users.FromAttributes(attrs)
}

func (p *Provider) clientContext(ctx context.Context) context.Context {
	if p.httpClient == nil {
		return ctx
	}
	ctx = oidc.ClientContext(ctx, p.httpClient)
	return context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)
}

func mapRetrieveError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) || re.Response == nil {
		return err
	}

	status := re.Response.StatusCode
	if re.ErrorCode == "invalid_grant" || status == http.StatusUnauthorized {
		status = http.StatusUnauthorized
	}
	msg := re.ErrorDescription
	if msg == "" {
		msg = re.ErrorCode
	}
	return &refresh.StatusError{StatusCode: status, Message: msg}
}
