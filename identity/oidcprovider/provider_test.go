package oidcprovider_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jrsteele09/go-brew-client/events"
	"github.com/jrsteele09/go-brew-client/identity"
	"github.com/jrsteele09/go-brew-client/identity/oidcprovider"
	brewerrors "github.com/jrsteele09/go-brew-client/internal/errors"
	"github.com/jrsteele09/go-brew-client/sessions/memstore"
	"github.com/jrsteele09/go-brew-client/sessions/storetest"
	"github.com/jrsteele09/go-brew-client/token"
	"github.com/jrsteele09/go-brew-client/token/refresh"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const testClientID = "brew-cli"

type identityConfig struct {
	issuer string
}

func (c identityConfig) GetIdentityProvider() string { return "oidc" }
func (c identityConfig) GetOIDCIssuer() string       { return c.issuer }
func (c identityConfig) GetOIDCClientID() string     { return testClientID }
func (c identityConfig) GetOIDCClientSecret() string { return "" }
func (c identityConfig) GetOIDCScopes() []string     { return []string{"openid", "email", "offline_access"} }

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// newIssuer serves discovery, token and userinfo endpoints for a fake hosted issuer
func newIssuer(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/token",
			"userinfo_endpoint":      srv.URL + "/userinfo",
			"jwks_uri":               srv.URL + "/jwks",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))

		switch r.PostForm.Get("refresh_token") {
		case "good":
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token":  "a2",
				"token_type":    "Bearer",
				"expires_in":    3600,
				"refresh_token": "r2",
			})
		case "no-rotation":
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token": "a3",
				"token_type":   "Bearer",
				"expires_in":   600,
			})
		case "bad-id-token":
			writeJSON(w, http.StatusOK, map[string]any{
				"access_token":  "a4",
				"token_type":    "Bearer",
				"expires_in":    3600,
				"refresh_token": "r4",
				"id_token":      "not-a-jwt",
			})
		case "revoked":
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":             "invalid_grant",
				"error_description": "Refresh Token has been revoked",
			})
		default:
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "temporarily_unavailable"})
		}
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer a1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"sub":              "abc-123",
			"email":            "ada@example.com",
			"email_verified":   true,
			"given_name":       "Ada",
			"family_name":      "Lovelace",
			"zoneinfo":         "Europe/London",
			"custom:country":   "GB",
			"custom:interests": "tech,science",
		})
	})
	return srv
}

func newProvider(t *testing.T) *oidcprovider.Provider {
	t.Helper()
	srv := newIssuer(t)
	p, err := oidcprovider.New(context.Background(), identityConfig{issuer: srv.URL},
		oidcprovider.WithHTTPClient(srv.Client()),
		oidcprovider.WithLogger(zerolog.Nop()),
	)
	require.NoError(t, err)
	return p
}

func TestNew_RequiresIssuerAndClient(t *testing.T) {
	_, err := oidcprovider.New(context.Background(), identityConfig{})
	require.Error(t, err)
}

func TestNew_DiscoveryFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := oidcprovider.New(context.Background(), identityConfig{issuer: srv.URL},
		oidcprovider.WithHTTPClient(srv.Client()))
	require.Error(t, err)
}

func TestRefresh(t *testing.T) {
	p := newProvider(t)

	grant, err := p.Refresh(context.Background(), "good")
	require.NoError(t, err)
	require.Equal(t, "a2", grant.AccessToken)
	require.Equal(t, "r2", grant.RefreshToken)
	require.InDelta(t, 3600, grant.ExpiresIn, 2)

	expiry, err := grant.ExpiryFrom(time.Now())
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), expiry, 5*time.Second)
}

func TestRefresh_WithoutRotationKeepsPreviousToken(t *testing.T) {
	p := newProvider(t)

	grant, err := p.Refresh(context.Background(), "no-rotation")
	require.NoError(t, err)
	require.Equal(t, "a3", grant.AccessToken)
	// oauth2 carries the presented refresh token forward when none is returned
	require.Equal(t, "no-rotation", grant.RefreshToken)
}

func TestRefresh_RevokedIsRejected(t *testing.T) {
	p := newProvider(t)

	_, err := p.Refresh(context.Background(), "revoked")
	require.ErrorIs(t, err, brewerrors.ErrRefreshRejected)

	var statusErr *refresh.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
	require.Equal(t, "Refresh Token has been revoked", statusErr.Message)
}

func TestRefresh_ServerErrorIsTransient(t *testing.T) {
	p := newProvider(t)

	_, err := p.Refresh(context.Background(), "anything")
	require.Error(t, err)
	require.NotErrorIs(t, err, brewerrors.ErrRefreshRejected)

	var statusErr *refresh.StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
}

func TestRefresh_UnverifiableIDTokenIsTerminal(t *testing.T) {
	p := newProvider(t)

	_, err := p.Refresh(context.Background(), "bad-id-token")
	require.ErrorIs(t, err, brewerrors.ErrMalformedGrant)
	require.True(t, brewerrors.IsTerminal(err))

	// The coordinator gives up on the first attempt instead of replaying a spent refresh token
	store := memstore.New()
	tokens := storetest.DefaultTokens()
	tokens.RefreshToken = "bad-id-token"
	require.NoError(t, store.Write(tokens, storetest.DefaultUser()))

	var calls int
	c := refresh.New(store, refresh.RefresherFunc(func(ctx context.Context, refreshToken string) (token.Tokens, error) {
		calls++
		return p.Refresh(ctx, refreshToken)
	}), events.NewBus(),
		refresh.WithLogger(zerolog.Nop()),
		refresh.WithSleepFunc(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	)

	_, err = c.Refresh(context.Background())
	require.ErrorIs(t, err, brewerrors.ErrMalformedGrant)
	require.Equal(t, 1, calls)
	require.True(t, store.Read().Empty())
}

func TestCurrentUser(t *testing.T) {
	p := newProvider(t)

	user, err := p.CurrentUser(context.Background(), "a1")
	require.NoError(t, err)
	require.Equal(t, "abc-123", user.ID)
	require.Equal(t, "ada@example.com", user.Email)
	require.Equal(t, "Ada Lovelace", user.Name())
	require.Equal(t, "GB", user.Country)
	require.Equal(t, []string{"tech", "science"}, user.Interests)
	require.Equal(t, "Europe/London", user.Timezone)

	_, err = p.CurrentUser(context.Background(), "stale")
	require.Error(t, err)
}

func TestSignInIsUnsupported(t *testing.T) {
	p := newProvider(t)

	_, err := p.InitiateSignIn(context.Background(), "ada@example.com")
	require.ErrorIs(t, err, brewerrors.ErrUnsupported)

	_, err = p.ConfirmSignIn(context.Background(), identity.Challenge{}, "123456")
	require.ErrorIs(t, err, brewerrors.ErrUnsupported)
}
