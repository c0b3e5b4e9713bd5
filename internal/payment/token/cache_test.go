package token

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/shikkha/internal/clock"
	"github.com/smallbiznis/shikkha/internal/config"
	"github.com/smallbiznis/shikkha/internal/payment/domain"
	"github.com/smallbiznis/shikkha/internal/payment/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:token_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(&domain.CachedToken{}))
	return db
}

func newTestCache(t *testing.T) (*Cache, *clock.FakeClock) {
	t.Helper()
	clk := clock.NewFakeClock(time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC))
	return New(Params{
		DB:       setupTestDB(t),
		Log:      zap.NewNop(),
		Clock:    clk,
		Repo:     repository.ProvideTokens(),
		Settings: config.NewStaticPaymentSettings(config.DefaultPaymentSettings()),
	}), clk
}

func countingGranter(calls *int32) Granter {
	return func(ctx context.Context) (*domain.CachedToken, error) {
		n := atomic.AddInt32(calls, 1)
		return &domain.CachedToken{IDToken: fmt.Sprintf("id-%d", n), RefreshToken: "refresh", ExpiresIn: 3600}, nil
	}
}

func TestGetCachesWithinTTL(t *testing.T) {
	cache, clk := newTestCache(t)
	ctx := context.Background()
	var calls int32

	first, err := cache.Get(ctx, domain.ProviderBkash, countingGranter(&calls))
	require.NoError(t, err)
	assert.Equal(t, "id-1", first)

	clk.Advance(59 * time.Minute)
	second, err := cache.Get(ctx, domain.ProviderBkash, countingGranter(&calls))
	require.NoError(t, err)
	assert.Equal(t, "id-1", second)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetRefreshesStaleTokenAndBumpsVersion(t *testing.T) {
	cache, clk := newTestCache(t)
	ctx := context.Background()
	var calls int32

	_, err := cache.Get(ctx, domain.ProviderBkash, countingGranter(&calls))
	require.NoError(t, err)

	clk.Advance(time.Hour)
	refreshed, err := cache.Get(ctx, domain.ProviderBkash, countingGranter(&calls))
	require.NoError(t, err)
	assert.Equal(t, "id-2", refreshed)

	stored, err := cache.repo.Find(ctx, cache.db, domain.ProviderBkash)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, int64(2), stored.Version)
	assert.WithinDuration(t, clk.Now(), stored.UpdatedAt, time.Second)
}

func TestGetConcurrentStaleCallersShareOneGrant(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()
	var calls int32
	gate := make(chan struct{})
	slow := func(ctx context.Context) (*domain.CachedToken, error) {
		<-gate
		atomic.AddInt32(&calls, 1)
		return &domain.CachedToken{IDToken: "shared"}, nil
	}

	const workers = 10
	var wg sync.WaitGroup
	tokens := make([]string, workers)
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = cache.Get(ctx, domain.ProviderBkash, slow)
		}(i)
	}
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "shared", tokens[i])
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGetGrantFailure(t *testing.T) {
	cache, _ := newTestCache(t)
	_, err := cache.Get(context.Background(), domain.ProviderBkash, func(ctx context.Context) (*domain.CachedToken, error) {
		return nil, errors.New("connection refused")
	})
	assert.ErrorIs(t, err, domain.ErrTokenUnavailable)
}

func TestSaveRejectsStaleVersion(t *testing.T) {
	cache, clk := newTestCache(t)
	ctx := context.Background()
	repo := cache.repo

	tok := &domain.CachedToken{Provider: domain.ProviderBkash, IDToken: "a", UpdatedAt: clk.Now()}
	saved, err := repo.Save(ctx, cache.db, tok, 0)
	require.NoError(t, err)
	assert.True(t, saved)

	again, err := repo.Save(ctx, cache.db, &domain.CachedToken{Provider: domain.ProviderBkash, IDToken: "b", UpdatedAt: clk.Now()}, 0)
	require.NoError(t, err)
	assert.False(t, again, "insert must not clobber an existing row")

	newer := &domain.CachedToken{Provider: domain.ProviderBkash, IDToken: "c", UpdatedAt: clk.Now()}
	saved, err = repo.Save(ctx, cache.db, newer, 1)
	require.NoError(t, err)
	assert.True(t, saved)
	assert.Equal(t, int64(2), newer.Version)

	stale, err := repo.Save(ctx, cache.db, &domain.CachedToken{Provider: domain.ProviderBkash, IDToken: "d", UpdatedAt: clk.Now()}, 1)
	require.NoError(t, err)
	assert.False(t, stale)

	stored, err := repo.Find(ctx, cache.db, domain.ProviderBkash)
	require.NoError(t, err)
	assert.Equal(t, "c", stored.IDToken)
}
