package apiclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-brew-client/identity"
	brewerrors "github.com/jrsteele09/go-brew-client/internal/errors"
	"github.com/jrsteele09/go-brew-client/internal/utils"
	"github.com/jrsteele09/go-brew-client/token"
	"github.com/jrsteele09/go-brew-client/token/refresh"
	"github.com/jrsteele09/go-brew-client/users"
)

const (
	pathLogin              = "/auth/login"
	pathVerifyOTP          = "/auth/verify-otp"
	pathRefreshToken       = "/auth/refresh-token"
	pathRegister           = "/auth/register"
	pathResendVerification = "/auth/resend-verification"
	pathMe                 = "/auth/me"
)

var _ identity.Provider = (*Client)(nil)
var _ refresh.Refresher = (*Client)(nil)

type RegisterRequest struct {
	Email     string   `json:"email"`
	FirstName string   `json:"firstName"`
	LastName  string   `json:"lastName"`
	Country   string   `json:"country"`
	Interests []string `json:"interests"`
	Timezone  string   `json:"timezone"`
}

// Normalize trims every field, lower-cases the email and defaults the timezone
func (r RegisterRequest) Normalize() RegisterRequest {
	r.Email = users.NormalizeEmail(r.Email)
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Country = strings.TrimSpace(r.Country)
	r.Interests = utils.CompactStrings(r.Interests)
	r.Timezone = strings.TrimSpace(r.Timezone)
	if r.Timezone == "" {
		r.Timezone = users.DefaultTimezone
	}
	return r
}

func (r RegisterRequest) Validate() error {
	r = r.Normalize()
	required := []struct{ field, value string }{
		{"email", r.Email},
		{"firstName", r.FirstName},
		{"lastName", r.LastName},
		{"country", r.Country},
	}
	for _, f := range required {
		if f.value == "" {
			return fmt.Errorf("%s is required: %w", f.field, brewerrors.ErrInvalidRequest)
		}
	}
	if !strings.Contains(r.Email, "@") {
		return fmt.Errorf("email %q is not valid: %w", r.Email, brewerrors.ErrInvalidRequest)
	}
	if len(r.Interests) == 0 {
		return fmt.Errorf("at least one interest is required: %w", brewerrors.ErrInvalidRequest)
	}
	return nil
}

type RegisterResult struct {
	Message       string
	User          users.Profile
	EmailVerified bool
	NextStep      string
}

// Register creates an account. The user must verify their email before signing in.
func (c *Client) Register(ctx context.Context, req RegisterRequest) (RegisterResult, error) {
	if err := req.Validate(); err != nil {
		return RegisterResult{}, err
	}

	var resp struct {
		Message string `json:"message"`
		User    struct {
			users.Profile
			EmailVerified bool   `json:"emailVerified"`
			NextStep      string `json:"nextStep"`
		} `json:"user"`
	}
	if err := c.call(ctx, request{method: http.MethodPost, path: pathRegister, body: req.Normalize()}, &resp); err != nil {
		return RegisterResult{}, err
	}
	return RegisterResult{
		Message:       resp.Message,
		User:          resp.User.Profile,
		EmailVerified: resp.User.EmailVerified,
		NextStep:      resp.User.NextStep,
	}, nil
}

// ResendVerification emails a new verification link and returns the backend's message
func (c *Client) ResendVerification(ctx context.Context, email string) (string, error) {
	email = users.NormalizeEmail(email)
	if email == "" {
		return "", fmt.Errorf("email is required: %w", brewerrors.ErrInvalidRequest)
	}

	var resp struct {
		Message string `json:"message"`
	}
	err := c.call(ctx, request{
		method: http.MethodPost,
		path:   pathResendVerification,
		body:   map[string]string{"email": email},
	}, &resp)
	return resp.Message, err
}

// InitiateSignIn asks the backend to email a one-time code
func (c *Client) InitiateSignIn(ctx context.Context, email string) (identity.Challenge, error) {
	email = users.NormalizeEmail(email)
	if email == "" {
		return identity.Challenge{}, fmt.Errorf("email is required: %w", brewerrors.ErrInvalidRequest)
	}

	var challenge identity.Challenge
	err := c.call(ctx, request{
		method: http.MethodPost,
		path:   pathLogin,
		body:   map[string]string{"email": email},
	}, &challenge)
	if err != nil {
		return identity.Challenge{}, err
	}
	if challenge.Email == "" {
		challenge.Email = email
	}
	return challenge, nil
}

// ConfirmSignIn exchanges the emailed code for a token grant and the user's profile
func (c *Client) ConfirmSignIn(ctx context.Context, challenge identity.Challenge, code string) (identity.SignInResult, error) {
	code = strings.TrimSpace(code)
	if code == "" || challenge.Session == "" || challenge.Email == "" {
		return identity.SignInResult{}, fmt.Errorf("email, OTP code and session are required: %w", brewerrors.ErrInvalidRequest)
	}

	var resp struct {
		token.Tokens
		User *users.Profile `json:"user"`
	}
	err := c.call(ctx, request{
		method: http.MethodPost,
		path:   pathVerifyOTP,
		body: map[string]string{
			"email":   challenge.Email,
			"otpCode": code,
			"session": challenge.Session,
		},
	}, &resp)
	if err != nil {
		return identity.SignInResult{}, err
	}

	user := users.Profile{Email: challenge.Email, Timezone: users.DefaultTimezone}
	if resp.User != nil {
		user = *resp.User
	}
	if user.ID == "" {
		// Profile not provisioned yet; the access token subject still identifies the user
		user.ID, _ = token.SubjectFromJWT(resp.AccessToken)
	}
	return identity.SignInResult{Tokens: resp.Tokens, User: user}, nil
}

// Refresh exchanges refreshToken for a new grant. Non-2xx answers come back as *refresh.StatusError
// so a 401 ends the session and anything else is retried.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (token.Tokens, error) {
	var grant token.Tokens
	err := c.call(ctx, request{
		method: http.MethodPost,
		path:   pathRefreshToken,
		body:   map[string]string{"refreshToken": refreshToken},
	}, &grant)

	var apiErr *APIError
	switch {
	case err == nil:
		return grant, nil
	case errors.As(err, &apiErr):
		return token.Tokens{}, &refresh.StatusError{StatusCode: apiErr.StatusCode, Message: apiErr.Message}
	case errors.Is(err, errUndecodable):
		return token.Tokens{}, fmt.Errorf("%w: %v", brewerrors.ErrMalformedGrant, err)
	}
	return token.Tokens{}, err
}

// CurrentUser loads the profile belonging to accessToken
func (c *Client) CurrentUser(ctx context.Context, accessToken string) (users.Profile, error) {
	var raw json.RawMessage
	if err := c.call(ctx, request{method: http.MethodGet, path: pathMe, accessToken: accessToken}, &raw); err != nil {
		return users.Profile{}, err
	}
	return decodeProfile(raw)
}

// Me loads the signed-in user's profile using the attached session
func (c *Client) Me(ctx context.Context) (users.Profile, error) {
	var raw json.RawMessage
	if err := c.call(ctx, request{method: http.MethodGet, path: pathMe, authenticated: true}, &raw); err != nil {
		return users.Profile{}, err
	}
	return decodeProfile(raw)
}

// decodeProfile accepts both {"user": {...}} and a bare profile object
func decodeProfile(raw json.RawMessage) (users.Profile, error) {
	var envelope struct {
		User *users.Profile `json:"user"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return users.Profile{}, fmt.Errorf("decoding profile: %w", err)
	}
	if envelope.User != nil {
		return *envelope.User, nil
	}

	var profile users.Profile
	if err := json.Unmarshal(raw, &profile); err != nil {
		return users.Profile{}, fmt.Errorf("decoding profile: %w", err)
	}
	return profile, nil
}
