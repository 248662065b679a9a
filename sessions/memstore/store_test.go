package memstore_test

import (
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-brew-client/sessions"
	"github.com/jrsteele09/go-brew-client/sessions/memstore"
	"github.com/jrsteele09/go-brew-client/sessions/storetest"
	"github.com/stretchr/testify/require"
)

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) sessions.Store {
		return memstore.New()
	})
}

func TestNewWithSession_DropsUnpairedFields(t *testing.T) {
	u := storetest.DefaultUser()
	s := memstore.NewWithSession(sessions.Session{AccessToken: "a1", RefreshToken: "r1", User: &u})

	got := s.Read()
	require.Empty(t, got.AccessToken)
	require.Nil(t, got.Expiry)
	require.Nil(t, got.User)
	require.Equal(t, "r1", got.RefreshToken)
}

func TestConcurrentWritesKeepPairing(t *testing.T) {
	s := memstore.New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = s.WriteTokens(sessions.TokenSet{AccessToken: "a", RefreshToken: "r", Expiry: time.Now().Add(time.Hour)})
		}()
		go func() {
			defer wg.Done()
			_ = s.Clear()
		}()
	}
	wg.Wait()

	got := s.Read()
	require.Equal(t, got.AccessToken != "", got.Expiry != nil)
}
