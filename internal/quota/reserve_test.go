package quota

import (
	"context"
	"testing"
	"time"

	"github.com/jeevibe/ale/internal/database"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPeriodKeyForDailyWeeklyMonthlyDiffer(t *testing.T) {
	now := time.Date(2026, 7, 31, 10, 0, 0, 0, time.UTC)
	daily, dailyReset := PeriodKeyFor(FeatureSnapSolve, PeriodDaily, now)
	weekly, weeklyReset := PeriodKeyFor(FeatureChapterPractice, PeriodWeekly, now)
	monthly, monthlyReset := PeriodKeyFor(FeatureMockTests, PeriodMonthly, now)

	assert.NotEqual(t, daily, weekly)
	assert.NotEqual(t, weekly, monthly)
	assert.True(t, dailyReset.After(now))
	assert.True(t, weeklyReset.After(now))
	assert.True(t, monthlyReset.After(now))
}

// TestReserveUnlimitedSkipsWrite covers spec.md §4.6: unlimited tiers
// skip the write but still return an allowed response. Passing a bare
// *database.DB with a nil embedded gorm.DB proves no store access
// happens on this path.
func TestReserveUnlimitedSkipsWrite(t *testing.T) {
	db := &database.DB{}
	res, err := Reserve(context.Background(), db, nil, "user-1", FeatureAITutor, PeriodDaily, Unlimited, time.Now())
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, Unlimited, res.Remaining)
}
