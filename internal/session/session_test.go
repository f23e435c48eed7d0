package session

import (
	"testing"

	"github.com/jeevibe/ale/internal/config"
	"github.com/jeevibe/ale/internal/models"

	"github.com/stretchr/testify/assert"
)

func newTestCoordinator() *Coordinator {
	return &Coordinator{
		tierCfg: config.TierConfig{
			ChapterPracticeMultiplier: 0.5,
			SnapPracticeMultiplier:    0.4,
		},
	}
}

func TestMultiplierForDailyQuizAndInitialAssessmentIsOne(t *testing.T) {
	c := newTestCoordinator()
	assert.Equal(t, 1.0, c.multiplierFor(models.KindDailyQuiz, true))
	assert.Equal(t, 1.0, c.multiplierFor(models.KindInitialAssessment, false))
}

func TestMultiplierForChapterPractice(t *testing.T) {
	c := newTestCoordinator()
	assert.Equal(t, 0.5, c.multiplierFor(models.KindChapterPractice, true))
	assert.Equal(t, 0.5, c.multiplierFor(models.KindChapterPractice, false))
}

func TestMultiplierForSnapPracticeOnlyAppliesWhenCorrect(t *testing.T) {
	c := newTestCoordinator()
	assert.Equal(t, 0.4, c.multiplierFor(models.KindSnapPractice, true))
	assert.Equal(t, 0.0, c.multiplierFor(models.KindSnapPractice, false))
}

func TestMultiplierForUnlockAndMockIsZero(t *testing.T) {
	c := newTestCoordinator()
	assert.Equal(t, 0.0, c.multiplierFor(models.KindUnlockQuiz, true))
	assert.Equal(t, 0.0, c.multiplierFor(models.KindMockTest, true))
}

func TestScoreMCQExactMatch(t *testing.T) {
	c := newTestCoordinator()
	q := models.Question{QuestionType: models.QuestionMCQSingle, CorrectAnswer: "B"}
	assert.True(t, c.score(q, SubmitAnswerInput{StudentAnswer: "B"}))
	assert.False(t, c.score(q, SubmitAnswerInput{StudentAnswer: "C"}))
}

func TestScoreNumericalWithinRange(t *testing.T) {
	c := newTestCoordinator()
	lo, hi := 9.5, 10.5
	q := models.Question{QuestionType: models.QuestionNumerical, CorrectAnswer: "10", AnswerRangeMin: &lo, AnswerRangeMax: &hi}
	val := 10.2
	assert.True(t, c.score(q, SubmitAnswerInput{StudentNumericalValue: &val}))
	outOfRange := 20.0
	assert.False(t, c.score(q, SubmitAnswerInput{StudentNumericalValue: &outOfRange}))
}
