// Package quota is the Tier & Quota Gate (C8): tier resolution with a
// 60s cache, and atomic reserve/rollback over per-(user,feature,period)
// counters. The tier cache follows the teacher's cache/redis.go Get/Set
// idiom; reserve/rollback (reserve.go) use GORM row-locked
// transactions, not Redis counters.
package quota

import (
	"context"
	"time"

	"github.com/jeevibe/ale/internal/cache"
	"github.com/jeevibe/ale/internal/models"
)

// Tier is one of the four resolvable tiers, spec.md §4.6.
type Tier string

const (
	TierFree          Tier = "free"
	TierTrial         Tier = "trial"
	TierAdminOverride Tier = "admin_override"
	TierPaid          Tier = "paid"
)

// Subscription is the minimal record Resolve needs — a pure function
// over the user's subscription record plus current time, per spec.md
// §9's Design Note ("make it a value, not a service call").
type Subscription struct {
	HasActivePaidSubscription bool
	HasActiveTrial            bool
	HasAdminOverride          bool
}

// FromRecord projects a stored models.Subscription row into the
// value Resolve consumes, evaluating the paid/trial expiry windows
// against now so an expired-but-not-yet-swept row still resolves to
// free between scheduled trial-processing runs.
func FromRecord(sub models.Subscription, now time.Time) Subscription {
	return Subscription{
		HasActivePaidSubscription: sub.PaidActive && (sub.PaidExpiresAt == nil || now.Before(*sub.PaidExpiresAt)),
		HasActiveTrial:            sub.TrialActive && sub.TrialEndsAt != nil && now.Before(*sub.TrialEndsAt),
		HasAdminOverride:          sub.AdminOverride,
	}
}

// Resolve implements spec.md §4.6's resolution order: active paid
// subscription > active trial > admin override > free. Pure.
func Resolve(sub Subscription) Tier {
	switch {
	case sub.HasActivePaidSubscription:
		return TierPaid
	case sub.HasActiveTrial:
		return TierTrial
	case sub.HasAdminOverride:
		return TierAdminOverride
	default:
		return TierFree
	}
}

const tierCacheTTL = 60 * time.Second

// ResolveCached wraps Resolve with the 60-second tier-resolution
// cache spec.md §4.6 requires. loadSub is only called on a cache miss.
func ResolveCached(ctx context.Context, redis *cache.RedisClient, userID string, loadSub func(context.Context) (Subscription, error)) (Tier, error) {
	key := cache.TierResolutionKey(userID)

	var cached string
	if err := redis.Get(ctx, key, &cached); err == nil {
		return Tier(cached), nil
	}

	sub, err := loadSub(ctx)
	if err != nil {
		return "", err
	}
	tier := Resolve(sub)
	_ = redis.Set(ctx, key, string(tier), tierCacheTTL)
	return tier, nil
}

// InvalidateTierCache drops the cached tier, used when a
// subscription/trial/admin-override change should take effect
// immediately rather than waiting out the TTL.
func InvalidateTierCache(ctx context.Context, redis *cache.RedisClient, userID string) error {
	return redis.Delete(ctx, cache.TierResolutionKey(userID))
}
