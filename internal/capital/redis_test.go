package capital

import (
	"context"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T, next Source) *RedisCache {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	c, err := NewRedisCache(RedisConfig{Addr: addr, TTL: time.Minute}, next, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestRedisCacheReadThroughAndInvalidate(t *testing.T) {
	var reads int32
	src := SourceFunc(func(ctx context.Context, walletID string) (Snapshot, error) {
		n := atomic.AddInt32(&reads, 1)
		return Snapshot{WalletID: walletID, Available: 50000, Capital: 100000, Version: int64(n)}, nil
	})
	c := newTestCache(t, src)
	ctx := context.Background()
	walletID := "test-" + time.Now().Format("150405.000000")

	first, err := c.Snapshot(ctx, walletID)
	require.NoError(t, err)
	second, err := c.Snapshot(ctx, walletID)
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.Equal(t, int32(1), atomic.LoadInt32(&reads))

	require.NoError(t, c.Invalidate(ctx, walletID))
	third, err := c.Snapshot(ctx, walletID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), third.Version)
}

func TestSourceFunc(t *testing.T) {
	src := SourceFunc(func(ctx context.Context, walletID string) (Snapshot, error) {
		return Snapshot{WalletID: walletID, Available: 1}, nil
	})
	snap, err := src.Snapshot(context.Background(), "w")
	require.NoError(t, err)
	assert.Equal(t, "w", snap.WalletID)
}
