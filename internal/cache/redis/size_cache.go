package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quoterlabs/polyquoter/internal/domain"
)

// sizeCacheTTL bounds how long a stale last-size entry survives. A week is
// far past any realistic restart gap; after that the delta baseline is
// re-established from the exchange anyway.
const sizeCacheTTL = 7 * 24 * time.Hour

// SizeCache implements domain.SizeCache on Redis, so position-delta fill
// detection has a baseline that survives restarts.
type SizeCache struct {
	rdb *redis.Client
}

// NewSizeCache creates a SizeCache on the given connection.
func NewSizeCache(rdb *redis.Client) *SizeCache {
	return &SizeCache{rdb: rdb}
}

func sizeKey(marketID string) string {
	return "polyquoter:lastsize:" + marketID
}

// LastSize returns the stored size for a market and whether one was present.
func (sc *SizeCache) LastSize(ctx context.Context, marketID string) (float64, bool, error) {
	val, err := sc.rdb.Get(ctx, sizeKey(marketID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("redis: last size %s: %w", marketID, err)
	}

	size, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, false, fmt.Errorf("redis: last size %s: parse %q: %w", marketID, val, err)
	}
	return size, true, nil
}

// SetLastSize stores the observed size for a market.
func (sc *SizeCache) SetLastSize(ctx context.Context, marketID string, size float64) error {
	val := strconv.FormatFloat(size, 'f', -1, 64)
	if err := sc.rdb.Set(ctx, sizeKey(marketID), val, sizeCacheTTL).Err(); err != nil {
		return fmt.Errorf("redis: set last size %s: %w", marketID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SizeCache = (*SizeCache)(nil)
