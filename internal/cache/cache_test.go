package cache

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poscore/backend/internal/domain"
)

func TestNoopBalanceCacheAlwaysMisses(t *testing.T) {
	var c BalanceCache = NoopBalanceCache{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, domain.CashBalance{SessionID: "cs-1", Balance: decimal.NewFromInt(5)}, 0, time.Minute))
	got, ok, err := c.Get(ctx, "cs-1")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.NoError(t, c.Invalidate(ctx, "cs-1"))
}

func TestBalanceKeyIsNamespaced(t *testing.T) {
	assert.Equal(t, "poscore:cash-balance:cs-1", balanceKey("cs-1"))
	assert.Equal(t, "poscore:cash-balance-gen:cs-1", generationKey("cs-1"))
}

func TestMemoryBalanceCacheDropsStaleGenerationFill(t *testing.T) {
	c := NewMemoryBalanceCache()
	ctx := context.Background()

	gen, err := c.Generation(ctx, "cs-1")
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx, "cs-1"))
	require.NoError(t, c.Set(ctx, domain.CashBalance{SessionID: "cs-1", Balance: decimal.NewFromInt(100)}, gen, time.Minute))
	_, ok, err := c.Get(ctx, "cs-1")
	require.NoError(t, err)
	assert.False(t, ok)

	gen, err = c.Generation(ctx, "cs-1")
	require.NoError(t, err)
	require.NoError(t, c.Set(ctx, domain.CashBalance{SessionID: "cs-1", Balance: decimal.NewFromInt(150)}, gen, time.Minute))
	got, ok, err := c.Get(ctx, "cs-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "150", got.Balance.String())
}

func TestMemoryBalanceCacheExpiresEntries(t *testing.T) {
	c := NewMemoryBalanceCache()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, domain.CashBalance{SessionID: "cs-1"}, 0, time.Second))
	_, ok, _ := c.Get(ctx, "cs-1")
	assert.True(t, ok)

	now = now.Add(time.Second)
	_, ok, _ = c.Get(ctx, "cs-1")
	assert.False(t, ok)
}

func TestRedisBalanceCacheSurfacesConnectionErrors(t *testing.T) {
	client := NewRedisClient("127.0.0.1:1", "", 0)
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisBalanceCache(client)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, ok, err := c.Get(ctx, "cs-1")
	assert.Error(t, err)
	assert.False(t, ok)
}
