package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/segyhp/fee-engine/internal/config"
	"github.com/segyhp/fee-engine/internal/domain"
)

func TestNewRedisClient(t *testing.T) {
	client, err := NewRedisClient(config.RedisConfig{URL: "redis://:secret@cache.internal:6380/2"})
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", client.Options().Addr)
	assert.Equal(t, 2, client.Options().DB)
	assert.Equal(t, "secret", client.Options().Password)

	client, err = NewRedisClient(config.RedisConfig{Host: "localhost", Port: "6379", DB: 1})
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", client.Options().Addr)

	_, err = NewRedisClient(config.RedisConfig{URL: "http://nope"})
	assert.Error(t, err)
}

func TestNoopLedgerCache(t *testing.T) {
	c := NewNoopLedgerCache()
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, c.Set(ctx, domain.LedgerSummary{LedgerID: id}))
	got, ok, err := c.Get(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.NoError(t, c.Invalidate(ctx, id))
}

func TestRedisLedgerCache_UnreachableServerReturnsError(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	c := NewRedisLedgerCache(client, time.Minute)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, uuid.New())
	assert.Error(t, err)
	assert.False(t, ok)
	assert.Error(t, c.Set(ctx, domain.LedgerSummary{LedgerID: uuid.New()}))
	assert.NoError(t, c.Invalidate(ctx))
}

func TestRedisLedgerCache_RoundTrip(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	client, err := NewRedisClient(config.RedisConfig{URL: url})
	require.NoError(t, err)
	defer client.Close()

	c := NewRedisLedgerCache(client, time.Minute)
	ctx := context.Background()
	summary := domain.LedgerSummary{
		LedgerID:           uuid.New(),
		StudentID:          "STU-1",
		NetPayable:         domain.NewMoney(50000),
		TotalPaid:          domain.NewMoney(20000),
		OutstandingBalance: domain.NewMoney(30000),
		FeeStatus:          domain.FeeStatusPartiallyPaid,
		AgingBucket:        domain.AgingCurrent,
	}

	require.NoError(t, c.Set(ctx, summary))
	got, ok, err := c.Get(ctx, summary.LedgerID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, summary.OutstandingBalance, got.OutstandingBalance)
	assert.Equal(t, summary.FeeStatus, got.FeeStatus)

	require.NoError(t, c.Invalidate(ctx, summary.LedgerID))
	_, ok, err = c.Get(ctx, summary.LedgerID)
	require.NoError(t, err)
	assert.False(t, ok)
}
