package token

import (
	"context"
	"fmt"
	"time"

	"github.com/smallbiznis/shikkha/internal/clock"
	"github.com/smallbiznis/shikkha/internal/config"
	"github.com/smallbiznis/shikkha/internal/payment/domain"
	"github.com/smallbiznis/shikkha/internal/ratelimit"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"
)

const (
	lockWaitStep     = 200 * time.Millisecond
	lockWaitAttempts = 10
)

// Granter fetches a brand new token from the provider.
type Granter func(ctx context.Context) (*domain.CachedToken, error)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Clock    clock.Clock
	Repo     domain.TokenRepository
	Settings *config.PaymentSettingsHolder
	Lock     *ratelimit.GrantLock `optional:"true"`
}

// Cache hands out provider access tokens backed by the gateway_tokens table.
// Concurrent refreshes in one process collapse into one grant; across
// processes the optional redis lock and the row version keep writers apart.
type Cache struct {
	db       *gorm.DB
	log      *zap.Logger
	clock    clock.Clock
	repo     domain.TokenRepository
	settings *config.PaymentSettingsHolder
	lock     *ratelimit.GrantLock
	group    singleflight.Group
}

func New(p Params) *Cache {
	return &Cache{
		db:       p.DB,
		log:      p.Log.Named("payment.token"),
		clock:    p.Clock,
		repo:     p.Repo,
		settings: p.Settings,
		lock:     p.Lock,
	}
}

// Get returns a valid id_token for provider, calling grant only when the
// stored token is missing or older than the configured TTL.
func (c *Cache) Get(ctx context.Context, provider string, grant Granter) (string, error) {
	if tok, ok := c.fresh(ctx, provider); ok {
		return tok.IDToken, nil
	}

	value, err, shared := c.group.Do(provider, func() (any, error) {
		return c.refresh(context.WithoutCancel(ctx), provider, grant)
	})
	if err != nil {
		return "", err
	}
	if shared {
		c.log.Debug("token refresh shared", zap.String("provider", provider))
	}
	return value.(string), nil
}

func (c *Cache) fresh(ctx context.Context, provider string) (*domain.CachedToken, bool) {
	stored, err := c.repo.Find(ctx, c.db, provider)
	if err != nil {
		c.log.Warn("failed to read cached token", zap.String("provider", provider), zap.Error(err))
		return nil, false
	}
	return stored, stored.Fresh(c.clock.Now(), c.settings.Get().TokenTTL)
}

func (c *Cache) refresh(ctx context.Context, provider string, grant Granter) (string, error) {
	stored, ok := c.fresh(ctx, provider)
	if ok {
		return stored.IDToken, nil
	}

	release, acquired, err := c.lock.Acquire(ctx, provider)
	if err != nil {
		c.log.Warn("token grant lock unavailable; granting without it", zap.String("provider", provider), zap.Error(err))
	}
	defer release()
	if err == nil && !acquired {
		if tok, ok := c.waitForPeer(ctx, provider); ok {
			return tok.IDToken, nil
		}
	}

	// Re-read after the lock: a peer may have finished a grant meanwhile.
	stored, ok = c.fresh(ctx, provider)
	if ok {
		return stored.IDToken, nil
	}

	granted, err := grant(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrTokenUnavailable, err)
	}
	if granted == nil || granted.IDToken == "" {
		return "", domain.ErrTokenUnavailable
	}
	granted.Provider = provider
	granted.UpdatedAt = c.clock.Now()

	var expected int64
	if stored != nil {
		expected = stored.Version
	}
	saved, err := c.repo.Save(ctx, c.db, granted, expected)
	if err != nil {
		c.log.Warn("failed to persist granted token", zap.String("provider", provider), zap.Error(err))
		return granted.IDToken, nil
	}
	if !saved {
		// Another writer stored a newer token; prefer it so every process
		// converges on the same row.
		if current, ok := c.fresh(ctx, provider); ok {
			return current.IDToken, nil
		}
		return granted.IDToken, nil
	}

	c.log.Info("gateway token granted",
		zap.String("provider", provider),
		zap.Int64("version", granted.Version),
		zap.Int64("expires_in", granted.ExpiresIn),
	)
	return granted.IDToken, nil
}

func (c *Cache) waitForPeer(ctx context.Context, provider string) (*domain.CachedToken, bool) {
	timer := time.NewTimer(lockWaitStep)
	defer timer.Stop()
	for i := 0; i < lockWaitAttempts; i++ {
		select {
		case <-ctx.Done():
			return nil, false
		case <-timer.C:
		}
		if tok, ok := c.fresh(ctx, provider); ok {
			return tok, true
		}
		timer.Reset(lockWaitStep)
	}
	return nil, false
}
