package session

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_NotReadyBeforeFirstPublish(t *testing.T) {
	r := NewRegistry()

	_, err := r.Current()
	assert.True(t, errors.Is(err, ErrNotReady))
}

func TestRegistry_PublishThenCurrent(t *testing.T) {
	r := NewRegistry()
	s := &Session{AccessToken: "tok", ExpiresAt: time.Now().Add(time.Hour)}

	r.Publish(s)

	got, err := r.Current()
	require.NoError(t, err)
	assert.Same(t, s, got)
}

// Every observed session must be one that was published whole, with access
// token and expiry from the same publish.
func TestRegistry_AtomicPublish(t *testing.T) {
	r := NewRegistry()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	published := make([]*Session, 64)

	for i := range published {
		published[i] = &Session{
			AccessToken:  fmt.Sprintf("tok-%d", i),
			RefreshToken: fmt.Sprintf("ref-%d", i),
			ExpiresAt:    base.Add(time.Duration(i) * time.Minute),
		}
	}

	r.Publish(published[0])

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		for _, s := range published {
			r.Publish(s)
		}
	}()

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for range 2000 {
				got, err := r.Current()
				require.NoError(t, err)

				var i int
				_, scanErr := fmt.Sscanf(got.AccessToken, "tok-%d", &i)
				require.NoError(t, scanErr)
				assert.Equal(t, published[i].RefreshToken, got.RefreshToken)
				assert.Equal(t, published[i].ExpiresAt, got.ExpiresAt)
			}
		}()
	}

	wg.Wait()
}

func TestSession_Expired(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s := &Session{ExpiresAt: now.Add(30 * time.Second)}

	assert.False(t, s.Expired(now))
	assert.True(t, s.Expired(now.Add(30*time.Second)), "expired at exactly ExpiresAt")
	assert.True(t, s.Expired(now.Add(time.Minute)))
	assert.Equal(t, 30*time.Second, s.TTL(now))
}
