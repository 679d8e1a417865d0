package session

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestScheduler wires a Scheduler whose sleeps record their duration and
// return instantly, canceling the run after maxSleeps so the loop terminates.
func newTestScheduler(t *testing.T, ref *fakeRefresher, maxSleeps int) (*Scheduler, *[]time.Duration, context.Context) {
	t.Helper()

	p := NewProvider(context.Background(), NewRegistry(), ref, nil, slog.Default())
	p.now = testNow

	s := NewScheduler(p, slog.Default())
	s.now = testNow

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	sleeps := &[]time.Duration{}
	s.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		if len(*sleeps) >= maxSleeps {
			cancel()
		}

		return ctx.Err()
	}

	return s, sleeps, ctx
}

func TestScheduler_IdlesUntilSessionPublished(t *testing.T) {
	ref := &fakeRefresher{}
	s, sleeps, ctx := newTestScheduler(t, ref, 3)

	err := s.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))

	require.Len(t, *sleeps, 3)
	for _, d := range *sleeps {
		assert.Equal(t, DefaultIdleInterval, d)
	}

	assert.Zero(t, ref.calls.Load())
}

func TestScheduler_SleepsUntilSafetyMargin(t *testing.T) {
	ref := &fakeRefresher{
		next: func(string) *Session {
			return &Session{AccessToken: "fresh", ExpiresAt: testNow().Add(time.Hour)}
		},
	}

	s, sleeps, ctx := newTestScheduler(t, ref, 1)
	s.provider.registry.Publish(&Session{
		AccessToken: "tok",
		ExpiresAt:   testNow().Add(30 * time.Minute),
	})

	_ = s.Run(ctx)

	require.NotEmpty(t, *sleeps)
	assert.Equal(t, 29*time.Minute, (*sleeps)[0])
}

// A session expiring inside the safety margin is refreshed immediately,
// never negative-slept.
func TestScheduler_ClampsNegativeSleepToZero(t *testing.T) {
	refreshed := make(chan struct{}, 1)
	ref := &fakeRefresher{
		next: func(string) *Session {
			select {
			case refreshed <- struct{}{}:
			default:
			}

			return &Session{AccessToken: "fresh", ExpiresAt: testNow().Add(time.Hour)}
		},
	}

	s, sleeps, ctx := newTestScheduler(t, ref, 2)
	s.provider.registry.Publish(&Session{
		AccessToken: "tok",
		ExpiresAt:   testNow().Add(30 * time.Second), // inside the 60s margin
	})

	_ = s.Run(ctx)

	require.NotEmpty(t, *sleeps)
	assert.Equal(t, time.Duration(0), (*sleeps)[0])
	assert.GreaterOrEqual(t, ref.calls.Load(), int32(1))

	select {
	case <-refreshed:
	default:
		t.Fatal("expected an immediate refresh")
	}
}

func TestScheduler_RefreshSuccessRepublishes(t *testing.T) {
	ref := &fakeRefresher{
		next: func(string) *Session {
			return &Session{AccessToken: "fresh", RefreshToken: "rt2", ExpiresAt: testNow().Add(2 * time.Hour)}
		},
	}

	s, _, ctx := newTestScheduler(t, ref, 2)
	s.provider.registry.Publish(&Session{
		AccessToken:  "tok",
		RefreshToken: "rt1",
		ExpiresAt:    testNow().Add(time.Second),
	})

	_ = s.Run(ctx)

	cur, err := s.provider.registry.Current()
	require.NoError(t, err)
	assert.Equal(t, "fresh", cur.AccessToken)
	assert.Equal(t, "rt1", ref.lastSeen)
}

// Refresh failure backs off and retries; the loop never terminates on its
// own and the stale session stays published for request handlers.
func TestScheduler_BacksOffAndRetriesOnFailure(t *testing.T) {
	ref := &fakeRefresher{err: errors.New("token exchange failed")}

	s, sleeps, ctx := newTestScheduler(t, ref, 6)
	stale := &Session{AccessToken: "stale", ExpiresAt: testNow().Add(time.Second)}
	s.provider.registry.Publish(stale)

	err := s.Run(ctx)
	assert.True(t, errors.Is(err, context.Canceled))

	// Alternating refresh sleep (0, clamped) and backoff sleep.
	var backoffs int

	for _, d := range *sleeps {
		if d == DefaultBackoff {
			backoffs++
		}
	}

	assert.GreaterOrEqual(t, backoffs, 2)
	assert.GreaterOrEqual(t, ref.calls.Load(), int32(2), "must keep retrying")

	cur, curErr := s.provider.registry.Current()
	require.NoError(t, curErr)
	assert.Same(t, stale, cur, "failed refresh must not unpublish the stale session")
}
