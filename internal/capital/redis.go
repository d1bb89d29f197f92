package capital

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/vmihailenco/msgpack/v5"
)

const keyPrefix = "signal-trader:capital:"

// RedisConfig configures the Redis snapshot cache.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// RedisCache fronts a Source with a short-lived Redis copy of each
// snapshot. Entries expire after TTL and are dropped on every ledger
// mutation, so a stale read is bounded by both.
type RedisCache struct {
	client *goredis.Client
	next   Source
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisCache connects to Redis and pings the server.
func NewRedisCache(cfg RedisConfig, next Source, logger zerolog.Logger) (*RedisCache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	logger.Info().Str("addr", cfg.Addr).Dur("ttl", ttl).Msg("Capital cache connected")
	return &RedisCache{client: client, next: next, ttl: ttl, logger: logger}, nil
}

// Snapshot returns the cached snapshot or reads through to the next source.
// Redis errors fall through to the source rather than failing the read.
func (c *RedisCache) Snapshot(ctx context.Context, walletID string) (Snapshot, error) {
	key := keyPrefix + walletID

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var snap Snapshot
		if err := msgpack.Unmarshal(raw, &snap); err == nil {
			return snap, nil
		}
		c.logger.Warn().Str("wallet_id", walletID).Msg("Discarding undecodable capital snapshot")
	} else if err != goredis.Nil {
		c.logger.Warn().Err(err).Str("wallet_id", walletID).Msg("Capital cache read failed")
	}

	snap, err := c.next.Snapshot(ctx, walletID)
	if err != nil {
		return Snapshot{}, err
	}

	buf, err := msgpack.Marshal(&snap)
	if err != nil {
		return snap, nil
	}
	if err := c.client.Set(ctx, key, buf, c.ttl).Err(); err != nil {
		c.logger.Warn().Err(err).Str("wallet_id", walletID).Msg("Capital cache write failed")
	}
	return snap, nil
}

// Invalidate drops the cached snapshot for a wallet.
func (c *RedisCache) Invalidate(ctx context.Context, walletID string) error {
	return c.client.Del(ctx, keyPrefix+walletID).Err()
}

// Close closes the Redis client.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
