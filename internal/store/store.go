// Package store is the Persistence Gateway (C1): typed access to the
// document-oriented store, modeled as Postgres tables via GORM.
// Transaction/retry primitives live in internal/database
// (database.DB.RetryTransaction); this package owns schema migration
// and the small number of cross-cutting read helpers every component
// needs (fetch-or-404, batch fetch).
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jeevibe/ale/internal/apperr"
	"github.com/jeevibe/ale/internal/database"
	"github.com/jeevibe/ale/internal/models"

	"gorm.io/gorm"
)

// Migrate creates/updates every table the ALE owns. Catalog tables
// (questions) are seeded separately; this only establishes shape.
func Migrate(db *database.DB) error {
	return db.DB.AutoMigrate(
		&models.User{},
		&models.ChapterState{},
		&models.Question{},
		&models.Session{},
		&models.QuestionPosition{},
		&models.Response{},
		&models.QuotaCounter{},
		&models.ReviewInterval{},
		&models.ThetaSnapshot{},
		&models.Subscription{},
		&models.TierLimit{},
	)
}

// GetTierLimit fetches one (tier, feature) row from the tier-config
// collection. NotFound is translated to apperr.NotFound so callers
// can distinguish an unconfigured (tier, feature) pair from a store
// failure.
func GetTierLimit(ctx context.Context, tx *gorm.DB, tier, feature string) (*models.TierLimit, error) {
	var row models.TierLimit
	err := tx.WithContext(ctx).Where("tier = ? AND feature = ?", tier, feature).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.New(apperr.NotFound, "TIER_LIMIT_NOT_CONFIGURED", "no tier limit configured")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "", "fetch tier limit failed", err)
	}
	return &row, nil
}

// UpsertTierLimit writes an admin-edited tier-config row.
func UpsertTierLimit(ctx context.Context, tx *gorm.DB, row *models.TierLimit) error {
	return tx.WithContext(ctx).Save(row).Error
}

// GetSubscription fetches a user's entitlement row, returning a
// zero-value (all-false, i.e. free tier) Subscription rather than
// apperr.NotFound when none exists yet — most users never purchase or
// trial, and tier.Resolve treats the zero value as TierFree correctly.
func GetSubscription(ctx context.Context, tx *gorm.DB, userID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Subscription{UserID: userID}, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "", "fetch subscription failed", err)
	}
	return &sub, nil
}

// GetUser fetches a user by ID, translating gorm.ErrRecordNotFound to
// apperr.NotFound (spec.md §7).
func GetUser(ctx context.Context, tx *gorm.DB, userID string) (*models.User, error) {
	var u models.User
	if err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&u).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "USER_NOT_FOUND", "user not found")
		}
		return nil, apperr.Wrap(apperr.Transient, "", "fetch user failed", err)
	}
	return &u, nil
}

// GetSession fetches a session by ID.
func GetSession(ctx context.Context, tx *gorm.DB, sessionID string) (*models.Session, error) {
	var s models.Session
	if err := tx.WithContext(ctx).Where("session_id = ?", sessionID).First(&s).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.New(apperr.NotFound, "SESSION_NOT_FOUND", "session not found")
		}
		return nil, apperr.Wrap(apperr.Transient, "", "fetch session failed", err)
	}
	return &s, nil
}

// ListChapterStates loads every ChapterState row for a user, the
// input rollupSubjects (C4) reduces over.
func ListChapterStates(ctx context.Context, tx *gorm.DB, userID string) ([]models.ChapterState, error) {
	var rows []models.ChapterState
	if err := tx.WithContext(ctx).Where("user_id = ?", userID).Find(&rows).Error; err != nil {
		return nil, apperr.Wrap(apperr.Transient, "", "list chapter states failed", err)
	}
	return rows, nil
}

// UpsertChapterState writes a single chapter's planned state, used
// inside C9's submit-answer commit transaction.
func UpsertChapterState(ctx context.Context, tx *gorm.DB, cs *models.ChapterState) error {
	return tx.WithContext(ctx).Save(cs).Error
}

// GetQuestionsByIDs fetches a batch of catalog questions keyed by
// question_id, used to re-hydrate a selection planner's ordered
// output into full question rows before sanitizing them for the
// client.
func GetQuestionsByIDs(ctx context.Context, tx *gorm.DB, ids []string) (map[string]models.Question, error) {
	if len(ids) == 0 {
		return map[string]models.Question{}, nil
	}
	var rows []models.Question
	if err := tx.WithContext(ctx).Where("question_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, apperr.Wrap(apperr.Transient, "", "fetch questions by id failed", err)
	}
	out := make(map[string]models.Question, len(rows))
	for _, q := range rows {
		out[q.QuestionID] = q
	}
	return out, nil
}

// ListRecentAnsweredQuestionIDs returns the question_ids a user has
// answered most recently (optionally scoped to one chapter), the
// exclusion set C6's selection request builds from spec.md §4.4's
// "questions asked in last K sessions."
func ListRecentAnsweredQuestionIDs(ctx context.Context, tx *gorm.DB, userID, chapterKey string, limit int) ([]string, error) {
	q := tx.WithContext(ctx).Model(&models.Response{}).
		Where("user_id = ?", userID).
		Order("answered_at DESC").
		Limit(limit)
	if chapterKey != "" {
		q = q.Where("chapter_key = ?", chapterKey)
	}
	var ids []string
	if err := q.Pluck("question_id", &ids).Error; err != nil {
		return nil, apperr.Wrap(apperr.Transient, "", "list recent answered questions failed", err)
	}
	return ids, nil
}

// ListResponsesSince fetches a user's responses answered at or after
// since, the raw input C10's weekly-activity analytics endpoint
// buckets by ISO week in Go rather than a dialect-specific SQL
// date_trunc.
func ListResponsesSince(ctx context.Context, tx *gorm.DB, userID string, since time.Time) ([]models.Response, error) {
	var rows []models.Response
	err := tx.WithContext(ctx).
		Where("user_id = ? AND answered_at >= ?", userID, since).
		Order("answered_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "", "list responses since failed", err)
	}
	return rows, nil
}

// ListUserIDsPage keyset-paginates user_id ascending, the shape C11's
// weekly-snapshot sweep and email dispatch jobs page the whole user
// table with, bounded by config.SchedulerConfig.PageSize per call.
// Returns the next page's cursor (empty string once exhausted).
func ListUserIDsPage(ctx context.Context, tx *gorm.DB, afterUserID string, pageSize int) ([]string, string, error) {
	q := tx.WithContext(ctx).Model(&models.User{}).Order("user_id ASC").Limit(pageSize)
	if afterUserID != "" {
		q = q.Where("user_id > ?", afterUserID)
	}
	var ids []string
	if err := q.Pluck("user_id", &ids).Error; err != nil {
		return nil, "", apperr.Wrap(apperr.Transient, "", "list user ids failed", err)
	}
	next := ""
	if len(ids) == pageSize {
		next = ids[len(ids)-1]
	}
	return ids, next, nil
}

// ListExpiredTrials finds subscriptions whose trial is still marked
// active but has run past trial_ends_at, the predicate C11's trial
// processing job sweeps on.
func ListExpiredTrials(ctx context.Context, tx *gorm.DB, now time.Time, pageSize int) ([]models.Subscription, error) {
	var rows []models.Subscription
	err := tx.WithContext(ctx).
		Where("trial_active = ? AND trial_ends_at IS NOT NULL AND trial_ends_at <= ?", true, now).
		Order("user_id ASC").
		Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "", "list expired trials failed", err)
	}
	return rows, nil
}

// ListRecoveryAlertCandidates finds users whose consecutive low-score
// streak has reached threshold — C11's alert-check job input.
func ListRecoveryAlertCandidates(ctx context.Context, tx *gorm.DB, threshold int, pageSize int) ([]models.User, error) {
	var rows []models.User
	err := tx.WithContext(ctx).
		Where("consecutive_low_score_quizzes >= ?", threshold).
		Order("user_id ASC").
		Limit(pageSize).
		Find(&rows).Error
	if err != nil {
		return nil, apperr.Wrap(apperr.Transient, "", "list recovery alert candidates failed", err)
	}
	return rows, nil
}
