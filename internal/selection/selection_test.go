package selection

import (
	"testing"

	"github.com/jeevibe/ale/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestUserSeedDeterministic(t *testing.T) {
	assert.Equal(t, userSeed("user-1"), userSeed("user-1"))
	assert.NotEqual(t, userSeed("user-1"), userSeed("user-2"))
}

func TestNewUserRandSameUserSameSequence(t *testing.T) {
	r1 := newUserRand("user-42")
	r2 := newUserRand("user-42")
	for i := 0; i < 10; i++ {
		assert.Equal(t, r1.Int63(), r2.Int63())
	}
}

func TestRoundShareSumsToCount(t *testing.T) {
	deliberate := roundShare(20, exploitationDeliberateShare)
	review := roundShare(20, exploitationReviewShare)
	exploration := 20 - deliberate - review
	assert.Equal(t, 20, deliberate+review+exploration)
	assert.True(t, exploration >= 0)
}

func TestWeakestChaptersOrdersBelowMedianFurthestFirst(t *testing.T) {
	states := []models.ChapterState{
		{ChapterKey: "strong", Theta: 2.0},
		{ChapterKey: "weak", Theta: -1.5},
		{ChapterKey: "mid", Theta: 0.0},
		{ChapterKey: "weakest", Theta: -2.0},
	}
	weak := weakestChapters(states)
	assert.Equal(t, []string{"weakest", "weak"}, weak)
}

func TestWeakestChaptersEmptyOnNoStates(t *testing.T) {
	assert.Nil(t, weakestChapters(nil))
}

func TestSortByDistanceThenIDTieBreaksOnLowerID(t *testing.T) {
	qs := []models.Question{
		{QuestionID: "q2", IRTDifficulty: 0.5},
		{QuestionID: "q1", IRTDifficulty: 0.5},
	}
	sortByDistanceThenID(qs, 0.0)
	assert.Equal(t, "q1", qs[0].QuestionID)
}

func TestMergedExclusionCombinesBaseAndSelected(t *testing.T) {
	base := map[string]bool{"q1": true}
	selected := []Selected{{QuestionID: "q2"}}
	merged := mergedExclusion(base, selected)
	assert.True(t, merged["q1"])
	assert.True(t, merged["q2"])
	assert.False(t, merged["q3"])
}
