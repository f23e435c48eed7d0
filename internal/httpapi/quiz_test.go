package httpapi

import (
	"testing"

	"github.com/jeevibe/ale/internal/config"
	"github.com/jeevibe/ale/internal/models"
	"github.com/jeevibe/ale/internal/selection"

	"github.com/stretchr/testify/assert"
)

func newTestServer(tierCfg config.TierConfig) *Server {
	return &Server{cfg: &config.Config{Tier: tierCfg}}
}

func TestResolveDailyQuizMode(t *testing.T) {
	s := newTestServer(config.TierConfig{RecoveryQuizConsecutiveLowScores: 3})

	cases := []struct {
		name string
		user models.User
		want selection.Mode
	}{
		{
			name: "recovery takes precedence over exploitation phase",
			user: models.User{ConsecutiveLowScoreQuizzes: 3, LearningPhase: models.PhaseExploitation},
			want: selection.ModeRecovery,
		},
		{
			name: "exploitation phase without recovery streak",
			user: models.User{ConsecutiveLowScoreQuizzes: 1, LearningPhase: models.PhaseExploitation},
			want: selection.ModeExploitation,
		},
		{
			name: "exploration phase is the default",
			user: models.User{ConsecutiveLowScoreQuizzes: 0, LearningPhase: models.PhaseExploration},
			want: selection.ModeExploration,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.resolveDailyQuizMode(tc.user))
		})
	}
}

func TestModeFor(t *testing.T) {
	s := newTestServer(config.TierConfig{RecoveryQuizConsecutiveLowScores: 3})
	exploitingUser := models.User{LearningPhase: models.PhaseExploitation}

	cases := []struct {
		name string
		kind models.SessionKind
		want selection.Mode
	}{
		{"daily quiz defers to resolveDailyQuizMode", models.KindDailyQuiz, selection.ModeExploitation},
		{"chapter practice is fixed", models.KindChapterPractice, selection.ModeChapterPractice},
		{"unlock quiz is fixed", models.KindUnlockQuiz, selection.ModeUnlock},
		{"snap practice is fixed", models.KindSnapPractice, selection.ModeSnapPractice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, s.modeFor(tc.kind, exploitingUser))
		})
	}
}

func TestToSanitizedQuestions(t *testing.T) {
	byID := map[string]models.Question{
		"q1": {QuestionID: "q1", Subject: "physics", Chapter: "kinematics", ChapterKey: "phy-kin", QuestionType: models.QuestionMCQSingle, CorrectAnswer: "A"},
	}
	selected := []selection.Selected{{QuestionID: "q1", Rationale: selection.RationaleExploration}}

	out := toSanitizedQuestions(selected, byID)

	assert.Len(t, out, 1)
	assert.Equal(t, "q1", out[0].QuestionID)
	assert.Equal(t, "physics", out[0].Subject)
	assert.Equal(t, string(selection.RationaleExploration), out[0].Rationale)
	assert.Equal(t, 0, out[0].Position)
}
