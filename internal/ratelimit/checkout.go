package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/shikkha/internal/config"
	"go.uber.org/zap"
)

const (
	keyCheckoutUser  = "checkout:user:%s"
	keyGatewayGrant  = "gateway:token:grant:%s"
	gatewayGrantLock = 15 * time.Second
)

// CheckoutLimiter throttles checkout attempts per user. A nil limiter or a
// missing redis client allows everything.
type CheckoutLimiter struct {
	bucket   *TokenBucket
	settings *config.PaymentSettingsHolder
	log      *zap.Logger
}

func NewCheckoutLimiter(client *redis.Client, settings *config.PaymentSettingsHolder, log *zap.Logger) *CheckoutLimiter {
	return &CheckoutLimiter{
		bucket:   NewTokenBucket(client),
		settings: settings,
		log:      log.Named("ratelimit.checkout"),
	}
}

func (l *CheckoutLimiter) Enabled() bool {
	return l != nil && l.bucket != nil
}

// Allow fails open on redis errors so an outage never blocks payments.
func (l *CheckoutLimiter) Allow(ctx context.Context, userID string) (bool, time.Duration) {
	if !l.Enabled() {
		return true, 0
	}
	settings := l.settings.Get()
	res, err := l.bucket.Allow(ctx, CheckoutKey(userID), settings.CheckoutRate, settings.CheckoutBurst)
	if err != nil {
		l.log.Warn("checkout rate limit check failed", zap.Error(err))
		return true, 0
	}
	return res.Allowed, res.RetryAfter
}

func CheckoutKey(userID string) string {
	return fmt.Sprintf(keyCheckoutUser, strings.TrimSpace(userID))
}

// GrantLock serialises gateway token grants across processes.
type GrantLock struct {
	locker *Locker
}

func NewGrantLock(locker *Locker) *GrantLock {
	return &GrantLock{locker: locker}
}

// Acquire returns a release func. Without redis it always succeeds; when
// another process is granting it reports false.
func (g *GrantLock) Acquire(ctx context.Context, provider string) (func(), bool, error) {
	if g == nil {
		return func() {}, true, nil
	}
	return g.locker.Acquire(ctx, fmt.Sprintf(keyGatewayGrant, strings.TrimSpace(provider)), gatewayGrantLock)
}
