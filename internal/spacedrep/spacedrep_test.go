package spacedrep

import (
	"testing"
	"time"

	"github.com/jeevibe/ale/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestUpdateStateIncorrectResetsToOne(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	prior := models.ReviewInterval{IntervalDays: 14}
	next := UpdateState(prior, false, now)
	assert.Equal(t, 1, next.IntervalDays)
	assert.Equal(t, now.AddDate(0, 0, 1), next.NextReview)
}

func TestUpdateStatePromotesOneStep(t *testing.T) {
	now := time.Now()
	cases := []struct{ from, to int }{
		{1, 3}, {3, 7}, {7, 14}, {14, 30}, {30, 30},
	}
	for _, tc := range cases {
		prior := models.ReviewInterval{IntervalDays: tc.from}
		next := UpdateState(prior, true, now)
		assert.Equal(t, tc.to, next.IntervalDays)
	}
}

func TestSpacedRepetitionIncorrectAnsweredAtPlusOneDay(t *testing.T) {
	// Testable property 9 from spec.md §8.
	answeredAt := time.Date(2026, 7, 31, 9, 0, 0, 0, time.UTC)
	next := UpdateState(models.ReviewInterval{IntervalDays: 7}, false, answeredAt)
	assert.Equal(t, answeredAt.AddDate(0, 0, 1), next.NextReview)
	assert.True(t, IsDue(next, answeredAt.AddDate(0, 0, 1)))
}

func TestIsDue(t *testing.T) {
	now := time.Now()
	due := models.ReviewInterval{NextReview: now.Add(-time.Hour)}
	notDue := models.ReviewInterval{NextReview: now.Add(time.Hour)}
	assert.True(t, IsDue(due, now))
	assert.False(t, IsDue(notDue, now))
}

func TestUrgencyScoreIncreasesWithOverdue(t *testing.T) {
	now := time.Now()
	mild := models.ReviewInterval{NextReview: now.Add(-24 * time.Hour)}
	severe := models.ReviewInterval{NextReview: now.Add(-240 * time.Hour)}
	assert.Less(t, UrgencyScore(mild, now), UrgencyScore(severe, now))
}

func TestUrgencyScoreNotNegativeForFutureDue(t *testing.T) {
	now := time.Now()
	future := models.ReviewInterval{NextReview: now.Add(48 * time.Hour)}
	assert.GreaterOrEqual(t, UrgencyScore(future, now), 0.0)
}
