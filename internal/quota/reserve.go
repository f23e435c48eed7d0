package quota

import (
	"context"
	"errors"
	"time"

	"github.com/jeevibe/ale/internal/apperr"
	"github.com/jeevibe/ale/internal/clock"
	"github.com/jeevibe/ale/internal/database"
	"github.com/jeevibe/ale/internal/events"
	"github.com/jeevibe/ale/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Feature keys from spec.md §4.6.
const (
	FeatureSnapSolve       = "snap_solve"
	FeatureDailyQuiz       = "daily_quiz"
	FeatureAITutor         = "ai_tutor"
	FeatureChapterPractice = "chapter_practice"
	FeatureMockTests       = "mock_tests"
)

// Period is the reset cadence a feature's quota key is built against.
type Period string

const (
	PeriodDaily   Period = "daily"
	PeriodWeekly  Period = "weekly"
	PeriodMonthly Period = "monthly"
)

// PeriodKeyFor builds the (period_key, resets_at) pair for the given
// period. The feature argument is not consulted, and
// config.TierConfig.ChapterPracticeQuotaWeekly is not read here or
// anywhere else: chapter practice's cadence is the period on its
// tier-config row, and counters are not keyed per subject.
func PeriodKeyFor(feature string, period Period, now time.Time) (string, time.Time) {
	switch period {
	case PeriodWeekly:
		return clock.WeeklyPeriodKey(now), clock.NextWeeklyReset(now)
	case PeriodMonthly:
		return clock.MonthlyPeriodKey(now), clock.NextMonthlyReset(now)
	default:
		return clock.DailyPeriodKey(now), clock.NextDailyReset(now)
	}
}

// Reservation is the result of a reserve() call, spec.md §4.6.
type Reservation struct {
	Allowed   bool
	Used      int
	Limit     int
	Remaining int // -1 means unlimited
	ResetsAt  time.Time
}

// Unlimited is the sentinel quota limit meaning "no cap" (spec.md §4.6:
// "limit ≠ −1").
const Unlimited = -1

// Reserve implements spec.md §4.6's reserve(): read tier limit and the
// (user, feature, period) counter, and if used+1 > limit deny;
// otherwise transactionally increment and allow. Runs inside a
// Postgres row-locked transaction (SELECT ... FOR UPDATE) rather than
// a bare Redis INCR so the quota-race boundary scenario in spec.md §8
// ("exactly one of two concurrent reserve calls succeeds") holds
// under true concurrency, matching spec.md §5's "no multi-document
// locks; cross-field atomicity via the store's transactions."
//
// On denial, emits QuotaExhausted (spec.md §4.11, C8) after the
// transaction returns — the event never blocks the caller's response.
func Reserve(ctx context.Context, db *database.DB, emitter events.Emitter, userID, feature string, period Period, limit int, now time.Time) (Reservation, error) {
	periodKey, resetsAt := PeriodKeyFor(feature, period, now)

	if limit == Unlimited {
		// Unlimited tiers skip the write but still return a response,
		// spec.md §4.6.
		return Reservation{Allowed: true, Used: 0, Limit: Unlimited, Remaining: Unlimited, ResetsAt: resetsAt}, nil
	}

	var result Reservation
	err := db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var counter models.QuotaCounter
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND feature = ? AND period_key = ?", userID, feature, periodKey).
			First(&counter).Error

		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			counter = models.QuotaCounter{UserID: userID, Feature: feature, PeriodKey: periodKey, Used: 0, Limit: limit, ResetsAt: resetsAt}
			if err := tx.Create(&counter).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		}

		if counter.Used+1 > limit {
			result = Reservation{Allowed: false, Used: counter.Used, Limit: limit, ResetsAt: counter.ResetsAt}
			return nil
		}

		counter.Used++
		if err := tx.Save(&counter).Error; err != nil {
			return err
		}

		result = Reservation{
			Allowed:   true,
			Used:      counter.Used,
			Limit:     limit,
			Remaining: limit - counter.Used,
			ResetsAt:  counter.ResetsAt,
		}
		return nil
	})

	if err != nil {
		return Reservation{}, apperr.Wrap(apperr.Transient, "", "quota reserve failed", err)
	}
	if !result.Allowed {
		if emitter != nil {
			_ = emitter.Publish(ctx, events.TypeQuotaExhausted, userID, map[string]any{
				"feature":   feature,
				"period":    string(period),
				"used":      result.Used,
				"limit":     result.Limit,
				"resets_at": result.ResetsAt,
			})
		}
		return result, apperr.New(apperr.QuotaExhausted, "QUOTA_EXHAUSTED", "quota exhausted for "+feature).
			WithDetails(map[string]any{"resets_at": result.ResetsAt, "used": result.Used, "limit": result.Limit})
	}
	return result, nil
}

// Rollback implements spec.md §4.6's rollback(): decrements used on
// caller failure. Never goes below zero.
func Rollback(ctx context.Context, db *database.DB, userID, feature string, period Period, now time.Time) error {
	periodKey, _ := PeriodKeyFor(feature, period, now)
	return db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var counter models.QuotaCounter
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("user_id = ? AND feature = ? AND period_key = ?", userID, feature, periodKey).
			First(&counter).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}
		if counter.Used > 0 {
			counter.Used--
		}
		return tx.Save(&counter).Error
	})
}
