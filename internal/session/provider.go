package session

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"
)

// Refresher exchanges a refresh token for a new session. Implemented by
// auth.Authenticator; defined here per "accept interfaces, return structs".
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Session, error)
}

// PersistFunc is called with the rotated refresh token after every
// successful refresh so a process restart can resume without an
// interactive login. Failures are logged, never fatal.
type PersistFunc func(refreshToken string) error

// Provider hands access tokens to the API client. The fast path is a
// lock-free registry read; only when the published session is already past
// expiry does it refresh on demand, deduplicated so a burst of concurrent
// requests triggers a single upstream exchange.
type Provider struct {
	registry  *Registry
	refresher Refresher
	persist   PersistFunc
	logger    *slog.Logger

	// ctx bounds on-demand refresh exchanges. It must outlive the
	// Provider; serve wires the process context here.
	ctx   context.Context
	group singleflight.Group
	now   func() time.Time
}

// NewProvider creates a Provider reading through registry and refreshing
// through refresher. persist may be nil if rotated refresh tokens should
// not be written back.
func NewProvider(ctx context.Context, registry *Registry, refresher Refresher, persist PersistFunc, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}

	return &Provider{
		registry:  registry,
		refresher: refresher,
		persist:   persist,
		logger:    logger,
		ctx:       ctx,
		now:       time.Now,
	}
}

// Token returns the current access token, refreshing first if the
// published session is already expired. Implements graph.TokenSource.
func (p *Provider) Token() (string, error) {
	s, err := p.registry.Current()
	if err != nil {
		return "", err
	}

	if !s.Expired(p.now()) {
		return s.AccessToken, nil
	}

	s, err = p.refreshExpired()
	if err != nil {
		return "", err
	}

	return s.AccessToken, nil
}

// refreshExpired performs a deduplicated refresh-and-publish. A request
// that lost the race reuses the winner's freshly published session.
func (p *Provider) refreshExpired() (*Session, error) {
	v, err, _ := p.group.Do("refresh", func() (any, error) {
		cur, err := p.registry.Current()
		if err != nil {
			return nil, err
		}

		// Another caller may have refreshed while we waited for the
		// flight; don't redo the exchange.
		if !cur.Expired(p.now()) {
			return cur, nil
		}

		p.logger.Info("session expired, refreshing on demand",
			slog.Time("expired_at", cur.ExpiresAt),
		)

		next, err := p.refresher.Refresh(p.ctx, cur.RefreshToken)
		if err != nil {
			return nil, err
		}

		p.Publish(next)

		return next, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(*Session), nil
}

// Publish stores the session in the registry and persists its refresh
// token. Both the Scheduler and the on-demand path publish through here so
// write-back happens in exactly one place.
func (p *Provider) Publish(s *Session) {
	p.registry.Publish(s)

	p.logger.Debug("session published", slog.Time("expires_at", s.ExpiresAt))

	if p.persist == nil || s.RefreshToken == "" {
		return
	}

	if err := p.persist(s.RefreshToken); err != nil {
		p.logger.Warn("failed to persist refresh token",
			slog.String("error", err.Error()),
		)
	}
}
