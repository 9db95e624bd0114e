package cache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"

	"poscore/backend/internal/domain"
)

// generationTTL bounds how long an idle session's generation counter lives.
// It must outlast any balance TTL.
const generationTTL = 24 * time.Hour

var setIfGeneration = redis.NewScript(`
local gen = redis.call('GET', KEYS[1]) or '0'
if gen ~= ARGV[1] then
	return 0
end
if tonumber(ARGV[3]) > 0 then
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
else
	redis.call('SET', KEYS[2], ARGV[2])
end
return 1
`)

func NewRedisClient(addr string, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

type RedisBalanceCache struct {
	client *redis.Client
}

func NewRedisBalanceCache(client *redis.Client) *RedisBalanceCache {
	return &RedisBalanceCache{client: client}
}

func (c *RedisBalanceCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisBalanceCache) Get(ctx context.Context, sessionID string) (*domain.CashBalance, bool, error) {
	val, err := c.client.Get(ctx, balanceKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var balance domain.CashBalance
	if err := json.Unmarshal([]byte(val), &balance); err != nil {
		return nil, false, err
	}
	return &balance, true, nil
}

func (c *RedisBalanceCache) Generation(ctx context.Context, sessionID string) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(sessionID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Set stores the balance only while the session generation still matches.
func (c *RedisBalanceCache) Set(ctx context.Context, balance domain.CashBalance, generation int64, ttl time.Duration) error {
	payload, err := json.Marshal(balance)
	if err != nil {
		return err
	}
	keys := []string{generationKey(balance.SessionID), balanceKey(balance.SessionID)}
	return setIfGeneration.Run(ctx, c.client, keys, strconv.FormatInt(generation, 10), payload, ttl.Milliseconds()).Err()
}

// Invalidate bumps the generation and drops the entry in one transaction.
func (c *RedisBalanceCache) Invalidate(ctx context.Context, sessionID string) error {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(sessionID))
		pipe.Expire(ctx, generationKey(sessionID), generationTTL)
		pipe.Del(ctx, balanceKey(sessionID))
		return nil
	})
	return err
}
