package refresh_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-brew-client/events"
	brewerrors "github.com/jrsteele09/go-brew-client/internal/errors"
	"github.com/jrsteele09/go-brew-client/sessions/memstore"
	"github.com/jrsteele09/go-brew-client/sessions/storetest"
	"github.com/jrsteele09/go-brew-client/token"
	"github.com/jrsteele09/go-brew-client/token/refresh"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

const secretStr = "1234"

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// fakeRefresher answers refresh calls from a script of results. The last result repeats.
type fakeRefresher struct {
	mu      sync.Mutex
	calls   int
	tokens  []string
	results []func(ctx context.Context) (token.Tokens, error)
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (token.Tokens, error) {
	f.mu.Lock()
	idx := min(f.calls, len(f.results)-1)
	f.calls++
	f.tokens = append(f.tokens, refreshToken)
	result := f.results[idx]
	f.mu.Unlock()
	return result(ctx)
}

func (f *fakeRefresher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func grant(access, refreshToken string) func(context.Context) (token.Tokens, error) {
	return func(context.Context) (token.Tokens, error) {
		return token.Tokens{AccessToken: access, RefreshToken: refreshToken, ExpiresIn: 3600}, nil
	}
}

func failure(err error) func(context.Context) (token.Tokens, error) {
	return func(context.Context) (token.Tokens, error) {
		return token.Tokens{}, err
	}
}

type testFixture struct {
	store     *memstore.Store
	bus       *events.Bus
	refresher *fakeRefresher
	metrics   *refresh.Metrics

	sleepMu sync.Mutex
	sleeps  []time.Duration

	logouts   atomic.Int32
	refreshes atomic.Int32
}

func setupTestFixture(t *testing.T, results ...func(context.Context) (token.Tokens, error)) *testFixture {
	t.Helper()

	f := &testFixture{
		store:     memstore.New(),
		bus:       events.NewBus(),
		refresher: &fakeRefresher{results: results},
		metrics:   refresh.NewMetrics(prometheus.NewRegistry()),
	}
	require.NoError(t, f.store.Write(storetest.DefaultTokens(), storetest.DefaultUser()))

	f.bus.Subscribe(events.TopicLogout, func() { f.logouts.Add(1) })
	f.bus.Subscribe(events.TopicTokenRefreshed, func() { f.refreshes.Add(1) })
	return f
}

func (f *testFixture) coordinator(opts ...refresh.Option) *refresh.Coordinator {
	base := []refresh.Option{
		refresh.WithBackoff(time.Second, 8*time.Second),
		refresh.WithMetrics(f.metrics),
		refresh.WithNowFunc(func() time.Time { return fixedNow }),
		refresh.WithLogger(zerolog.Nop()),
		refresh.WithSleepFunc(f.sleep),
	}
	return refresh.New(f.store, f.refresher, f.bus, append(base, opts...)...)
}

func (f *testFixture) sleep(ctx context.Context, d time.Duration) error {
	f.sleepMu.Lock()
	f.sleeps = append(f.sleeps, d)
	f.sleepMu.Unlock()
	return ctx.Err()
}

func (f *testFixture) Sleeps() []time.Duration {
	f.sleepMu.Lock()
	defer f.sleepMu.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}

func (f *testFixture) outcome(label string) float64 {
	return testutil.ToFloat64(f.metrics.Attempts.WithLabelValues(label))
}

func (f *testFixture) requireLoggedOut(t *testing.T) {
	t.Helper()
	require.True(t, f.store.Read().Empty())
	require.EqualValues(t, 1, f.logouts.Load())
	require.EqualValues(t, 0, f.refreshes.Load())
}

func TestRefresh_Success(t *testing.T) {
	f := setupTestFixture(t, grant("a2", "r2"))
	c := f.coordinator()

	accessToken, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a2", accessToken)

	s := f.store.Read()
	require.Equal(t, "a2", s.AccessToken)
	require.Equal(t, "r2", s.RefreshToken)
	require.NotNil(t, s.Expiry)
	require.True(t, s.Expiry.Equal(fixedNow.Add(time.Hour)))
	require.NotNil(t, s.User)

	require.Equal(t, []string{"r1"}, f.refresher.tokens)
	require.EqualValues(t, 1, f.refreshes.Load())
	require.EqualValues(t, 0, f.logouts.Load())
	require.Equal(t, 1.0, f.outcome(refresh.OutcomeSuccess))
}

func TestRefresh_KeepsRefreshTokenWhenGrantOmitsIt(t *testing.T) {
	f := setupTestFixture(t, grant("a2", ""))

	_, err := f.coordinator().Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "r1", f.store.Read().RefreshToken)
}

func TestRefresh_ExpiryFromAccessTokenClaim(t *testing.T) {
	exp := fixedNow.Add(30 * time.Minute)
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u1",
		"exp": exp.Unix(),
	}).SignedString([]byte(secretStr))
	require.NoError(t, err)

	f := setupTestFixture(t, func(context.Context) (token.Tokens, error) {
		return token.Tokens{AccessToken: signed}, nil
	})

	accessToken, err := f.coordinator().Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, signed, accessToken)
	require.True(t, f.store.Read().Expiry.Equal(exp))
}

func TestRefresh_ConcurrentCallersShareOneCall(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	f := setupTestFixture(t, func(context.Context) (token.Tokens, error) {
		started <- struct{}{}
		<-release
		return token.Tokens{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 3600}, nil
	})
	c := f.coordinator()

	const callers = 5
	results := make(chan string, callers)
	errs := make(chan error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			accessToken, err := c.Refresh(context.Background())
			results <- accessToken
			errs <- err
		}()
	}

	<-started
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	for accessToken := range results {
		require.Equal(t, "a2", accessToken)
	}
	require.Equal(t, 1, f.refresher.Calls())
	require.EqualValues(t, 1, f.refreshes.Load())
	require.Equal(t, float64(callers-1), testutil.ToFloat64(f.metrics.Joined))
}

func TestRefresh_SequentialCallsEachRefresh(t *testing.T) {
	f := setupTestFixture(t, grant("a2", "r2"), grant("a3", "r3"))
	c := f.coordinator()

	_, err := c.Refresh(context.Background())
	require.NoError(t, err)
	accessToken, err := c.Refresh(context.Background())
	require.NoError(t, err)

	require.Equal(t, "a3", accessToken)
	require.Equal(t, []string{"r1", "r2"}, f.refresher.tokens)
	require.EqualValues(t, 2, f.refreshes.Load())
}

func TestRefresh_RejectedIsTerminal(t *testing.T) {
	f := setupTestFixture(t, failure(&refresh.StatusError{StatusCode: http.StatusUnauthorized}))

	_, err := f.coordinator().Refresh(context.Background())
	require.ErrorIs(t, err, brewerrors.ErrRefreshRejected)
	require.True(t, brewerrors.IsTerminal(err))

	require.Equal(t, 1, f.refresher.Calls())
	require.Empty(t, f.Sleeps())
	f.requireLoggedOut(t)
	require.Equal(t, 1.0, f.outcome(refresh.OutcomeRejected))
}

func TestRefresh_RetriesTransientFailures(t *testing.T) {
	netErr := errors.New("connection reset")
	f := setupTestFixture(t, failure(netErr), failure(netErr), grant("a2", "r2"))

	accessToken, err := f.coordinator().Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a2", accessToken)

	require.Equal(t, 3, f.refresher.Calls())
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second}, f.Sleeps())
	require.EqualValues(t, 1, f.refreshes.Load())
	require.EqualValues(t, 0, f.logouts.Load())
	require.Equal(t, 2.0, f.outcome(refresh.OutcomeTransient))
	require.Equal(t, 1.0, f.outcome(refresh.OutcomeSuccess))
}

func TestRefresh_ExhaustionIsTerminal(t *testing.T) {
	f := setupTestFixture(t, failure(&refresh.StatusError{StatusCode: http.StatusServiceUnavailable}))
	c := f.coordinator(refresh.WithMaxRetries(3), refresh.WithBackoff(time.Second, 3*time.Second))

	_, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, brewerrors.ErrRefreshExhausted)
	require.NotErrorIs(t, err, brewerrors.ErrRefreshRejected)

	require.Equal(t, 4, f.refresher.Calls())
	require.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, f.Sleeps())
	f.requireLoggedOut(t)
	require.Equal(t, 1.0, f.outcome(refresh.OutcomeExhausted))
}

func TestRefresh_NoRefreshTokenSkipsNetwork(t *testing.T) {
	f := setupTestFixture(t, grant("a2", "r2"))
	require.NoError(t, f.store.Clear())

	_, err := f.coordinator().Refresh(context.Background())
	require.ErrorIs(t, err, brewerrors.ErrNoRefreshToken)

	require.Equal(t, 0, f.refresher.Calls())
	f.requireLoggedOut(t)
}

func TestRefresh_MalformedGrantIsTerminal(t *testing.T) {
	tests := []struct {
		name  string
		grant token.Tokens
	}{
		{name: "EmptyAccessToken", grant: token.Tokens{RefreshToken: "r2", ExpiresIn: 3600}},
		{name: "NoExpiry", grant: token.Tokens{AccessToken: "opaque", RefreshToken: "r2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := setupTestFixture(t, func(context.Context) (token.Tokens, error) { return tt.grant, nil })

			_, err := f.coordinator().Refresh(context.Background())
			require.ErrorIs(t, err, brewerrors.ErrMalformedGrant)
			require.Equal(t, 1, f.refresher.Calls())
			f.requireLoggedOut(t)
		})
	}
}

func TestRefresh_LogoutListenerSeesClearedStore(t *testing.T) {
	f := setupTestFixture(t, failure(&refresh.StatusError{StatusCode: http.StatusUnauthorized}))
	var clearedBeforeEvent bool
	f.bus.Subscribe(events.TopicLogout, func() {
		clearedBeforeEvent = f.store.Read().Empty()
	})

	_, err := f.coordinator().Refresh(context.Background())
	require.Error(t, err)
	require.True(t, clearedBeforeEvent)
}

func TestRefresh_PanicDoesNotWedge(t *testing.T) {
	f := setupTestFixture(t,
		func(context.Context) (token.Tokens, error) { panic("boom") },
		grant("a2", "r2"),
	)
	c := f.coordinator(refresh.WithMaxRetries(0))

	_, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, brewerrors.ErrRefreshExhausted)
	f.requireLoggedOut(t)

	// A new session refreshes normally afterwards
	require.NoError(t, f.store.Write(storetest.DefaultTokens(), storetest.DefaultUser()))
	accessToken, err := c.Refresh(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a2", accessToken)
}

func TestRefresh_WaitCeiling(t *testing.T) {
	release := make(chan struct{})
	f := setupTestFixture(t, func(context.Context) (token.Tokens, error) {
		<-release
		return token.Tokens{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 3600}, nil
	})
	c := f.coordinator(refresh.WithWaitCeiling(20 * time.Millisecond))

	_, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, brewerrors.ErrRefreshTimeout)
	require.Equal(t, "a1", f.store.Read().AccessToken)

	// The flight carries on without the caller
	close(release)
	require.Eventually(t, func() bool {
		return f.refreshes.Load() == 1
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, "a2", f.store.Read().AccessToken)
}

func TestRefresh_CallerCancelDoesNotCancelFlight(t *testing.T) {
	release := make(chan struct{})
	flightErr := make(chan error, 1)
	f := setupTestFixture(t, func(ctx context.Context) (token.Tokens, error) {
		<-release
		flightErr <- ctx.Err()
		return token.Tokens{AccessToken: "a2", ExpiresIn: 3600}, nil
	})
	c := f.coordinator()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := c.Refresh(ctx)
		done <- err
	}()

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(release)
	require.NoError(t, <-flightErr)
	require.Eventually(t, func() bool {
		return f.store.Read().AccessToken == "a2"
	}, time.Second, 5*time.Millisecond)
}

func TestRefresh_LogoutDuringFlightDropsGrant(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	f := setupTestFixture(t, func(context.Context) (token.Tokens, error) {
		close(started)
		<-release
		return token.Tokens{AccessToken: "a2", RefreshToken: "r2", ExpiresIn: 3600}, nil
	})
	c := f.coordinator()

	done := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background())
		done <- err
	}()

	<-started
	require.NoError(t, f.store.Clear())
	close(release)

	err := <-done
	require.ErrorIs(t, err, brewerrors.ErrAuthenticationRequired)
	require.False(t, brewerrors.IsTerminal(err))
	require.True(t, f.store.Read().Empty())
	require.EqualValues(t, 0, f.refreshes.Load())
	require.EqualValues(t, 0, f.logouts.Load())
	require.Equal(t, 1.0, f.outcome(refresh.OutcomeSuperseded))
	require.Equal(t, 0.0, f.outcome(refresh.OutcomeSuccess))
}

func TestRefresh_RejectionLeavesNewerSessionAlone(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	f := setupTestFixture(t, func(context.Context) (token.Tokens, error) {
		close(started)
		<-release
		return token.Tokens{}, &refresh.StatusError{StatusCode: http.StatusUnauthorized}
	})
	c := f.coordinator()

	done := make(chan error, 1)
	go func() {
		_, err := c.Refresh(context.Background())
		done <- err
	}()

	<-started
	next := storetest.DefaultTokens()
	next.AccessToken, next.RefreshToken = "b1", "s1"
	require.NoError(t, f.store.Write(next, storetest.DefaultUser()))
	close(release)

	require.ErrorIs(t, <-done, brewerrors.ErrAuthenticationRequired)
	got := f.store.Read()
	require.Equal(t, "b1", got.AccessToken)
	require.Equal(t, "s1", got.RefreshToken)
	require.NotNil(t, got.User)
	require.EqualValues(t, 0, f.logouts.Load())
}

func TestRefresh_FlightTimeoutStopsBackoff(t *testing.T) {
	f := setupTestFixture(t, failure(errors.New("unreachable")))
	c := refresh.New(f.store, f.refresher, f.bus,
		refresh.WithLogger(zerolog.Nop()),
		refresh.WithBackoff(time.Hour, time.Hour),
		refresh.WithFlightTimeout(20*time.Millisecond),
	)

	_, err := c.Refresh(context.Background())
	require.ErrorIs(t, err, brewerrors.ErrRefreshExhausted)
	require.Equal(t, 1, f.refresher.Calls())
	f.requireLoggedOut(t)
}

func TestStatusError(t *testing.T) {
	rejected := &refresh.StatusError{StatusCode: http.StatusUnauthorized}
	require.ErrorIs(t, rejected, brewerrors.ErrRefreshRejected)
	require.Contains(t, rejected.Error(), "401 Unauthorized")

	unavailable := &refresh.StatusError{StatusCode: http.StatusBadGateway, Message: "upstream down"}
	require.NotErrorIs(t, unavailable, brewerrors.ErrRefreshRejected)
	require.Equal(t, "refresh endpoint returned 502: upstream down", unavailable.Error())
}

func TestRefresherFunc(t *testing.T) {
	var r refresh.Refresher = refresh.RefresherFunc(func(_ context.Context, refreshToken string) (token.Tokens, error) {
		return token.Tokens{AccessToken: "for-" + refreshToken}, nil
	})
	tokens, err := r.Refresh(context.Background(), "r1")
	require.NoError(t, err)
	require.Equal(t, "for-r1", tokens.AccessToken)
}

func TestRefresh_UndecodableGrantIsTerminal(t *testing.T) {
	f := setupTestFixture(t, failure(fmt.Errorf("decoding grant: %w", brewerrors.ErrMalformedGrant)))

	_, err := f.coordinator().Refresh(context.Background())
	require.ErrorIs(t, err, brewerrors.ErrMalformedGrant)
	require.Equal(t, 1, f.refresher.Calls())
	f.requireLoggedOut(t)
	require.Equal(t, 1.0, f.outcome(refresh.OutcomeMalformed))
}
