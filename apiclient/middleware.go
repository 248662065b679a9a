package apiclient

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const RequestIDHeader = "X-Request-ID"

// Middleware wraps the transport used for every backend request
type Middleware func(next http.RoundTripper) http.RoundTripper

// RoundTripperFunc adapts a function to http.RoundTripper
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

// ChainMiddleware wraps transport so that mw[0] sees each request first
func ChainMiddleware(transport http.RoundTripper, mw ...Middleware) http.RoundTripper {
	chained := transport
	// Apply middleware in reverse order
	for i := len(mw) - 1; i >= 0; i-- {
		chained = mw[i](chained)
	}
	return chained
}

// RequestIDMiddleware tags each request with a correlation ID unless the caller already set one
func RequestIDMiddleware() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			if r.Header.Get(RequestIDHeader) == "" {
				r = r.Clone(r.Context())
				r.Header.Set(RequestIDHeader, uuid.NewString())
			}
			return next.RoundTrip(r)
		})
	}
}

func UserAgentMiddleware(userAgent string) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			if userAgent != "" && r.Header.Get("User-Agent") == "" {
				r = r.Clone(r.Context())
				r.Header.Set("User-Agent", userAgent)
			}
			return next.RoundTrip(r)
		})
	}
}

func LoggingMiddleware(logger zerolog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(r)

			event := logger.Debug()
			if err != nil {
				event = logger.Warn().Err(err)
			}
			if resp != nil {
				event = event.Int("status", resp.StatusCode)
			}
			event.
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("request_id", r.Header.Get(RequestIDHeader)).
				Dur("elapsed", time.Since(start)).
				Msg("api request")
			return resp, err
		})
	}
}

// RecoverMiddleware turns a panicking transport into an ordinary request error
func RecoverMiddleware() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (resp *http.Response, err error) {
			defer func() {
				if p := recover(); p != nil {
					resp = nil
					err = fmt.Errorf("transport panicked: %v", p)
				}
			}()
			return next.RoundTrip(r)
		})
	}
}
