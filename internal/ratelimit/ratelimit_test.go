package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/smallbiznis/shikkha/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCheckoutLimiterWithoutRedisAllows(t *testing.T) {
	limiter := NewCheckoutLimiter(nil, config.NewStaticPaymentSettings(config.DefaultPaymentSettings()), zap.NewNop())
	assert.False(t, limiter.Enabled())

	for i := 0; i < 20; i++ {
		ok, wait := limiter.Allow(context.Background(), "u-1")
		assert.True(t, ok)
		assert.Zero(t, wait)
	}

	var nilLimiter *CheckoutLimiter
	ok, _ := nilLimiter.Allow(context.Background(), "u-1")
	assert.True(t, ok)
}

func TestGrantLockWithoutRedisIsNoop(t *testing.T) {
	lock := NewGrantLock(NewLocker(nil))
	release, ok, err := lock.Acquire(context.Background(), "bkash")
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}

func TestTokenBucketNotConfigured(t *testing.T) {
	var bucket *TokenBucket
	_, err := bucket.Allow(context.Background(), "k", 1, 1)
	assert.Error(t, err)
	assert.Nil(t, NewTokenBucket(nil))
	assert.Nil(t, NewLocker(nil))

	var locker *Locker
	release, ok, err := locker.Acquire(context.Background(), "scheduler:reconcile_payments", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
	release()
}

func TestBucketTTLAndRetryAfter(t *testing.T) {
	assert.Equal(t, 50*time.Second, bucketTTL(0.2, 5))
	assert.Equal(t, time.Second, bucketTTL(100, 1))
	assert.Equal(t, time.Second, bucketTTL(0, 0))

	assert.Zero(t, retryAfter(true, 0, 1))
	assert.Equal(t, time.Second, retryAfter(false, 0.5, 0.5))
}

func TestScriptValueParsing(t *testing.T) {
	assert.Equal(t, int64(1), toInt(int64(1)))
	assert.Equal(t, int64(7), toInt("7"))
	assert.InDelta(t, 3.25, toFloat("3.25"), 0.0001)
	assert.Equal(t, "checkout:user:u-9", CheckoutKey(" u-9 "))
}
