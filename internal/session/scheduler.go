package session

import (
	"context"
	"log/slog"
	"time"
)

// Scheduler timing defaults, mirroring the refresh worker in the shipped
// service: refresh one minute before expiry, retry failures after one
// minute, poll every minute while waiting for the first login to publish.
const (
	DefaultSafetyMargin = time.Minute
	DefaultBackoff      = time.Minute
	DefaultIdleInterval = time.Minute
)

// Scheduler keeps the published session fresh without request-path
// involvement. It is a long-running task: refresh failures back off and
// retry forever, and request handlers keep serving the last-known session
// in the meantime.
type Scheduler struct {
	provider *Provider
	logger   *slog.Logger

	margin  time.Duration
	backoff time.Duration
	idle    time.Duration

	now func() time.Time

	// sleep waits for d or until ctx is canceled. Tests override it to
	// run the loop without real delays.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewScheduler creates a Scheduler that refreshes through provider and
// republishes via provider.Publish.
func NewScheduler(provider *Provider, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		provider: provider,
		logger:   logger,
		margin:   DefaultSafetyMargin,
		backoff:  DefaultBackoff,
		idle:     DefaultIdleInterval,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Run executes the refresh loop until ctx is canceled. It always returns
// ctx.Err(); a failed refresh is never fatal.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("refresh scheduler started",
		slog.Duration("safety_margin", s.margin),
	)

	defer s.logger.Info("refresh scheduler stopped")

	for {
		cur, err := s.provider.registry.Current()
		if err != nil {
			// Startup race: no session published yet. Idle and re-check.
			if sleepErr := s.sleep(ctx, s.idle); sleepErr != nil {
				return ctx.Err()
			}

			continue
		}

		wait := max(0, cur.TTL(s.now())-s.margin)

		s.logger.Debug("next token refresh scheduled",
			slog.Duration("in", wait),
			slog.Time("expires_at", cur.ExpiresAt),
		)

		if err := s.sleep(ctx, wait); err != nil {
			return ctx.Err()
		}

		if err := s.refreshOnce(ctx); err != nil {
			s.logger.Error("scheduled refresh failed, backing off",
				slog.Duration("backoff", s.backoff),
				slog.String("error", err.Error()),
			)

			if sleepErr := s.sleep(ctx, s.backoff); sleepErr != nil {
				return ctx.Err()
			}
		}
	}
}

// refreshOnce performs one refresh-and-publish cycle.
func (s *Scheduler) refreshOnce(ctx context.Context) error {
	cur, err := s.provider.registry.Current()
	if err != nil {
		return err
	}

	next, err := s.provider.refresher.Refresh(ctx, cur.RefreshToken)
	if err != nil {
		return err
	}

	s.provider.Publish(next)

	s.logger.Info("session refreshed",
		slog.Time("expires_at", next.ExpiresAt),
	)

	return nil
}

// sleepCtx waits for d or until ctx is canceled.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		// Still yield to cancellation before an immediate refresh.
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			return nil
		}
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
