package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/segyhp/fee-engine/internal/config"
	"github.com/segyhp/fee-engine/internal/domain"
)

const keyPrefix = "fee:ledger-summary:"

// LedgerCache stores ledger summaries between reads. Callers treat every
// error as a miss; the database stays the source of truth.
type LedgerCache interface {
	Get(ctx context.Context, ledgerID uuid.UUID) (*domain.LedgerSummary, bool, error)
	Set(ctx context.Context, summary domain.LedgerSummary) error
	Invalidate(ctx context.Context, ledgerIDs ...uuid.UUID) error
}

// NewRedisClient builds a client from REDIS_URL, or REDIS_HOST and REDIS_PORT.
func NewRedisClient(cfg config.RedisConfig) (*redis.Client, error) {
	if cfg.URL != "" {
		opts, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		return redis.NewClient(opts), nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Host + ":" + cfg.Port,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}

type redisLedgerCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisLedgerCache(client *redis.Client, ttl time.Duration) LedgerCache {
	return &redisLedgerCache{client: client, ttl: ttl}
}

func ledgerKey(id uuid.UUID) string {
	return keyPrefix + id.String()
}

func (c *redisLedgerCache) Get(ctx context.Context, ledgerID uuid.UUID) (*domain.LedgerSummary, bool, error) {
	raw, err := c.client.Get(ctx, ledgerKey(ledgerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.LedgerSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, false, fmt.Errorf("decode cached summary: %w", err)
	}
	return &summary, true, nil
}

func (c *redisLedgerCache) Set(ctx context.Context, summary domain.LedgerSummary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, ledgerKey(summary.LedgerID), raw, c.ttl).Err()
}

func (c *redisLedgerCache) Invalidate(ctx context.Context, ledgerIDs ...uuid.UUID) error {
	if len(ledgerIDs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ledgerIDs))
	for _, id := range ledgerIDs {
		keys = append(keys, ledgerKey(id))
	}
	return c.client.Del(ctx, keys...).Err()
}

type noopLedgerCache struct{}

// NewNoopLedgerCache is used when no Redis endpoint is configured.
func NewNoopLedgerCache() LedgerCache {
	return noopLedgerCache{}
}

func (noopLedgerCache) Get(context.Context, uuid.UUID) (*domain.LedgerSummary, bool, error) {
	return nil, false, nil
}

func (noopLedgerCache) Set(context.Context, domain.LedgerSummary) error { return nil }

func (noopLedgerCache) Invalidate(context.Context, ...uuid.UUID) error { return nil }
