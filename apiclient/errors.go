package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	brewerrors "github.com/jrsteele09/go-brew-client/internal/errors"
)

// errUndecodable marks a 2xx response whose body could not be decoded
var errUndecodable = errors.New("undecodable response")

// APIError is a non-2xx response from the backend
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("brew api: %d: %s", e.StatusCode, e.Message)
}

// Unwrap maps the status code onto the shared sentinel errors
func (e *APIError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusBadRequest:
		return brewerrors.ErrInvalidRequest
	case e.StatusCode == http.StatusUnauthorized:
		return brewerrors.ErrAuthenticationRequired
	case e.StatusCode == http.StatusNotFound:
		return brewerrors.ErrNotFound
	case e.StatusCode == http.StatusTooManyRequests:
		return brewerrors.ErrRateLimited
	case e.StatusCode >= http.StatusInternalServerError:
		return brewerrors.ErrInternal
	}
	return nil
}

func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Message:    errorMessage(body),
	}
	if resp.Request != nil {
		apiErr.RequestID = resp.Request.Header.Get(RequestIDHeader)
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}

// errorMessage pulls the message out of {"error": "..."} or {"message": "..."} bodies
func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		return payload.Message
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 || strings.HasPrefix(msg, "<") {
		return ""
	}
	return msg
}
