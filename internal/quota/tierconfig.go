package quota

import (
	"context"
	"strconv"
	"time"

	"github.com/jeevibe/ale/internal/cache"
	"github.com/jeevibe/ale/internal/database"
	"github.com/jeevibe/ale/internal/store"

	"gorm.io/gorm"
)

const tierConfigCacheTTL = 60 * time.Second

// LoadLimit resolves the (tier, feature) quota limit and period from
// the tier-config collection, cached for 60s the same way tier
// resolution is (spec.md §4.6), with an explicit invalidation hook
// (InvalidateLimitCache) for the admin tier-config update path rather
// than waiting out the TTL.
func LoadLimit(ctx context.Context, db *database.DB, redis *cache.RedisClient, tier, feature string) (int, Period, error) {
	key := cache.TierConfigKey(tier, feature)

	var cached string
	if err := redis.Get(ctx, key, &cached); err == nil {
		limit, period, ok := decodeLimit(cached)
		if ok {
			return limit, period, nil
		}
	}

	var limit int
	var period Period
	err := db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := store.GetTierLimit(ctx, tx, tier, feature)
		if err != nil {
			return err
		}
		limit = row.Limit
		period = Period(row.Period)
		return nil
	})
	if err != nil {
		return 0, "", err
	}

	_ = redis.Set(ctx, key, encodeLimit(limit, period), tierConfigCacheTTL)
	return limit, period, nil
}

// InvalidateLimitCache drops the cached (tier, feature) limit,
// called after an admin edits the tier-config collection.
func InvalidateLimitCache(ctx context.Context, redis *cache.RedisClient, tier, feature string) error {
	return redis.Delete(ctx, cache.TierConfigKey(tier, feature))
}

func encodeLimit(limit int, period Period) string {
	return strconv.Itoa(limit) + "|" + string(period)
}

func decodeLimit(s string) (int, Period, bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '|' {
			limit, err := strconv.Atoi(s[:i])
			if err != nil {
				return 0, "", false
			}
			return limit, Period(s[i+1:]), true
		}
	}
	return 0, "", false
}
