package proficiency

import (
	"testing"
	"time"

	"github.com/jeevibe/ale/internal/irt"
	"github.com/jeevibe/ale/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestApplyChapterNoResponsesReturnsUnchanged(t *testing.T) {
	prior := models.ChapterState{Theta: 0.5, ConfidenceSE: 0.3, Attempts: 2, Correct: 1}
	next := ApplyChapter(prior, nil, 1.0, time.Now(), irt.DefaultParams)
	assert.Equal(t, prior.Theta, next.Theta)
	assert.Equal(t, prior.Attempts, next.Attempts)
}

func TestApplyChapterFullMultiplierShrinksSE(t *testing.T) {
	prior := models.ChapterState{Theta: 0, ConfidenceSE: 0.5, Subject: SubjectPhysics}
	responses := []irt.Response{{Discrimination: 1.5, Difficulty: 0, Guessing: 0.25, Correct: true}}
	next := ApplyChapter(prior, responses, 1.0, time.Now(), irt.DefaultParams)
	assert.Less(t, next.ConfidenceSE, prior.ConfidenceSE)
	assert.Equal(t, 1, next.Attempts)
	assert.Equal(t, 1, next.Correct)
}

func TestApplyChapterPartialMultiplierScalesDelta(t *testing.T) {
	prior := models.ChapterState{Theta: 0, ConfidenceSE: 0.5, Subject: SubjectPhysics}
	responses := []irt.Response{{Discrimination: 1.5, Difficulty: 0, Guessing: 0.25, Correct: true}}

	full := ApplyChapter(prior, responses, 1.0, time.Now(), irt.DefaultParams)
	half := ApplyChapter(prior, responses, 0.5, time.Now(), irt.DefaultParams)

	fullDelta := full.Theta - prior.Theta
	halfDelta := half.Theta - prior.Theta
	assert.InDelta(t, fullDelta*0.5, halfDelta, 1e-9)
	// SE only shrinks toward the MAP estimate at multiplier 1.0; at a
	// lower multiplier it decays by the fixed 0.98 factor instead.
	assert.InDelta(t, prior.ConfidenceSE*0.98, half.ConfidenceSE, 1e-9)
}

func TestApplyChapterClampsThetaAtBounds(t *testing.T) {
	prior := models.ChapterState{Theta: -2.9, ConfidenceSE: 0.2}
	responses := make([]irt.Response, 20)
	for i := range responses {
		responses[i] = irt.Response{Discrimination: 1.0, Difficulty: 0, Guessing: 0, Correct: false}
	}
	next := ApplyChapter(prior, responses, 1.0, time.Now(), irt.DefaultParams)
	assert.Equal(t, irt.DefaultBounds.ThetaMin, next.Theta)
}

func TestRollupSubjectsExcludesZeroAttemptChapters(t *testing.T) {
	chapters := []models.ChapterState{
		{Subject: SubjectPhysics, ChapterKey: "physics_kinematics", Theta: 1.0, Attempts: 10, Correct: 8},
		{Subject: SubjectPhysics, ChapterKey: "physics_untouched", Theta: 5.0, Attempts: 0, Correct: 0},
	}
	result := RollupSubjects(chapters)
	physics := result.BySubject[SubjectPhysics]
	assert.Equal(t, 1.0, physics.Theta)
	assert.InDelta(t, 0.8, physics.Accuracy, 1e-9)
}

func TestRollupSubjectsAttemptWeightedMean(t *testing.T) {
	chapters := []models.ChapterState{
		{Subject: SubjectPhysics, ChapterKey: "a", Theta: 0.0, Attempts: 10, Correct: 5},
		{Subject: SubjectPhysics, ChapterKey: "b", Theta: 2.0, Attempts: 30, Correct: 20},
	}
	result := RollupSubjects(chapters)
	physics := result.BySubject[SubjectPhysics]
	// weighted mean: (0*10 + 2*30) / 40 = 1.5
	assert.InDelta(t, 1.5, physics.Theta, 1e-9)
}

func TestRollupSubjectsOverallAcrossSubjects(t *testing.T) {
	chapters := []models.ChapterState{
		{Subject: SubjectPhysics, ChapterKey: "a", Theta: 1.0, Attempts: 10, Correct: 5},
		{Subject: SubjectChemistry, ChapterKey: "b", Theta: -1.0, Attempts: 10, Correct: 3},
	}
	result := RollupSubjects(chapters)
	assert.InDelta(t, 0.0, result.OverallTheta, 1e-9)
}

func TestApplySubTopicAccuracyAccumulates(t *testing.T) {
	m := ApplySubTopicAccuracy(nil, []string{"vectors"}, true)
	m = ApplySubTopicAccuracy(m, []string{"vectors"}, false)
	entry := m["vectors"].(map[string]any)
	assert.Equal(t, 2.0, entry["total"])
	assert.Equal(t, 1.0, entry["correct"])
}
