// Package spacedrep is Spaced Repetition (C7): per-(user,question)
// review intervals over the fixed ladder {1,3,7,14,30}. Grounded on
// the teacher's algorithms/sm2.go method shapes
// (InitializeState/UpdateState/IsDue/GetUrgencyScore), but the SM-2
// easiness-factor model itself is dropped: spec.md §3's
// ReviewInterval record has no easiness_factor field, and §4.5 pins a
// literal fixed ladder rather than SM-2's dynamically computed
// interval — so only the teacher's shape survives, not its formula.
package spacedrep

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/jeevibe/ale/internal/models"

	"gorm.io/gorm"
)

// Ladder is the fixed promotion sequence from spec.md §4.5/§3.
var Ladder = []int{1, 3, 7, 14, 30}

// InitializeState returns the first ReviewInterval row for a
// (user, question) pair that has just entered the due set.
func InitializeState(userID, questionID string, now time.Time) models.ReviewInterval {
	return models.ReviewInterval{
		UserID:       userID,
		QuestionID:   questionID,
		IntervalDays: Ladder[0],
		NextReview:   now.AddDate(0, 0, Ladder[0]),
	}
}

// UpdateState implements spec.md §4.5: on incorrect answer,
// interval resets to 1 day; on a correct review (the question was
// already in the due set), the interval promotes one step up the
// ladder. A correct answer to a question not yet due is not a review
// and leaves the row unchanged.
func UpdateState(prior models.ReviewInterval, correct bool, now time.Time) models.ReviewInterval {
	if correct && !IsDue(prior, now) {
		return prior
	}
	next := prior
	next.TimesReviewed++

	if !correct {
		next.IntervalDays = Ladder[0]
	} else {
		next.IntervalDays = promote(prior.IntervalDays)
	}
	next.NextReview = now.AddDate(0, 0, next.IntervalDays)
	return next
}

func promote(current int) int {
	for i, step := range Ladder {
		if step == current && i+1 < len(Ladder) {
			return Ladder[i+1]
		}
	}
	return Ladder[len(Ladder)-1]
}

// IsDue reports whether the interval's next_review has passed before.
func IsDue(ri models.ReviewInterval, before time.Time) bool {
	return !ri.NextReview.After(before)
}

// UrgencyScore is a sigmoid of days-overdue. C6's exploitation mode
// does not call it; its review slice takes the due set in question_id
// order. Never negative for items not yet due.
func UrgencyScore(ri models.ReviewInterval, now time.Time) float64 {
	daysOverdue := now.Sub(ri.NextReview).Hours() / 24.0
	if daysOverdue < 0 {
		daysOverdue = 0
	}
	return 1.0 / (1.0 + math.Exp(-daysOverdue/2.0))
}

// DueSet implements spec.md §4.5 dueSet(user_id, before): returns
// question IDs with next_review ≤ before, ordered by overdueness
// (most overdue first).
func DueSet(ctx context.Context, tx *gorm.DB, userID string, before time.Time) ([]models.ReviewInterval, error) {
	var rows []models.ReviewInterval
	if err := tx.WithContext(ctx).
		Where("user_id = ? AND next_review <= ?", userID, before).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool {
		return rows[i].NextReview.Before(rows[j].NextReview)
	})
	return rows, nil
}
