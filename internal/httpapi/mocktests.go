package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/jeevibe/ale/internal/apperr"
	"github.com/jeevibe/ale/internal/models"
	"github.com/jeevibe/ale/internal/proficiency"
	"github.com/jeevibe/ale/internal/quota"
	"github.com/jeevibe/ale/internal/selection"
	"github.com/jeevibe/ale/internal/session"
	"github.com/jeevibe/ale/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const mockTestRateLimitWindow = 5 * time.Minute

// mockTestTemplate is the fixed 90-question, per-subject composition
// spec.md §4.4 describes as "template-driven".
var mockTestTemplate = []selection.MockSection{
	{Subject: proficiency.SubjectPhysics, Count: 30},
	{Subject: proficiency.SubjectChemistry, Count: 30},
	{Subject: proficiency.SubjectMathematics, Count: 30},
}

func mockTestRateLimitKey(userID string) string {
	return fmt.Sprintf("ale:mock-test-rl:%s", userID)
}

func (s *Server) registerMockTestRoutes(g gin.IRouter) {
	g.POST("/mock-tests/start", s.handleMockTestStart)
	g.POST("/mock-tests/save-answer", s.handleMockTestSaveAnswer)
	g.POST("/mock-tests/clear-answer", s.handleMockTestClearAnswer)
	g.POST("/mock-tests/submit", s.handleMockTestSubmit)
	g.POST("/mock-tests/abandon", s.handleMockTestAbandon)
}

// handleMockTestStart implements spec.md §6: enforces the monthly
// mock_tests quota plus a 5-minute rate limit between starts, backed
// by a Redis SetNX key with a 5-minute TTL (C8's quota counters are
// GORM rows, not Redis keys).
func (s *Server) handleMockTestStart(c *gin.Context) {
	ctx := c.Request.Context()
	userID := userIDOf(c)
	now := time.Now()

	ok, err := s.redis.SetNX(ctx, mockTestRateLimitKey(userID), now.Unix(), mockTestRateLimitWindow)
	if err != nil {
		s.respondError(c, apperr.Wrap(apperr.Transient, "", "rate limit check failed", err))
		return
	}
	if !ok {
		s.respondError(c, apperr.New(apperr.StateConflict, "MOCK_TEST_RATE_LIMITED", "another mock test was started too recently"))
		return
	}

	_, limit, period, err := s.tierFeatureLimit(ctx, userID, quota.FeatureMockTests, now)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if _, err := quota.Reserve(ctx, s.db, s.emitter, userID, quota.FeatureMockTests, period, limit, now); err != nil {
		s.respondError(c, err)
		return
	}

	selected, err := s.planner.Select(ctx, selection.Request{
		UserID:       userID,
		Mode:         selection.ModeMockTest,
		MockTemplate: mockTestTemplate,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	if len(selected) == 0 {
		s.respondError(c, apperr.New(apperr.NotFound, "NO_QUESTIONS_AVAILABLE", "no mock test questions available"))
		return
	}

	ids := make([]string, len(selected))
	for i, sel := range selected {
		ids[i] = sel.QuestionID
	}
	var byID map[string]models.Question
	err = s.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := store.GetQuestionsByIDs(ctx, tx, ids)
		byID = m
		return err
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	planned := make([]session.PlannedQuestion, len(selected))
	for i, sel := range selected {
		planned[i] = session.PlannedQuestion{QuestionID: sel.QuestionID, Rationale: string(sel.Rationale)}
	}

	sessionID := uuid.New().String()
	sess, err := s.coord.Create(ctx, session.CreateInput{
		SessionID: sessionID,
		UserID:    userID,
		Kind:      models.KindMockTest,
		Questions: planned,
		ExpiresAt: now.Add(s.cfg.Session.TTL),
		Now:       now,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.metrics.SessionsCreated.WithLabelValues(string(models.KindMockTest)).Inc()

	s.respondOK(c, http.StatusOK, generateResponse{
		SessionID: sess.SessionID,
		Questions: toSanitizedQuestions(selected, byID),
	})
}

type mockAnswerRequest struct {
	SessionID             string   `json:"session_id" binding:"required"`
	Position              int      `json:"position"`
	StudentAnswer         string   `json:"student_answer"`
	StudentNumericalValue *float64 `json:"student_numerical_value"`
	TimeTakenSeconds      int      `json:"time_taken_seconds"`
}

// handleMockTestSaveAnswer records an answer to a position without
// scoring it against θ — mock_test's multiplier is 0 (spec.md §4.7
// rule 2's multiplierFor table), so this reuses the ordinary
// SubmitAnswer path: it persists the response but folds no θ delta.
func (s *Server) handleMockTestSaveAnswer(c *gin.Context) {
	var req mockAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Wrap(apperr.Validation, "BAD_REQUEST", "invalid request body", err))
		return
	}
	_, err := s.coord.SubmitAnswer(c.Request.Context(), session.SubmitAnswerInput{
		SessionID:             req.SessionID,
		Position:              req.Position,
		StudentAnswer:         req.StudentAnswer,
		StudentNumericalValue: req.StudentNumericalValue,
		TimeTakenSeconds:      req.TimeTakenSeconds,
		Now:                   time.Now(),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondOK(c, http.StatusOK, gin.H{"saved": true})
}

type mockClearAnswerRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	Position  int    `json:"position"`
}

// handleMockTestClearAnswer reverts a saved-but-unsubmitted position
// back to unanswered, the mock test's distinct "clear" affordance a
// regular quiz session never exposes.
func (s *Server) handleMockTestClearAnswer(c *gin.Context) {
	var req mockClearAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Wrap(apperr.Validation, "BAD_REQUEST", "invalid request body", err))
		return
	}
	ctx := c.Request.Context()
	err := s.db.DB.WithContext(ctx).Model(&models.QuestionPosition{}).
		Where("session_id = ? AND position = ?", req.SessionID, req.Position).
		Updates(map[string]any{
			"answered":           false,
			"student_answer":     "",
			"is_correct":         nil,
			"time_taken_seconds": 0,
			"answered_at":        nil,
		}).Error
	if err != nil {
		s.respondError(c, apperr.Wrap(apperr.Transient, "", "clear answer failed", err))
		return
	}
	s.respondOK(c, http.StatusOK, gin.H{"cleared": true})
}

// handleMockTestSubmit completes the test through completeSession;
// scoring never folds into chapter θ (multiplier 0). Answers still
// count toward the session's correct_count, but the response carries
// only the user's overall θ, percentile and learning phase, not the
// session's correct_count or accuracy.
func (s *Server) handleMockTestSubmit(c *gin.Context) {
	s.completeSession(c, models.KindMockTest)
}

type mockAbandonRequest struct {
	SessionID string `json:"session_id" binding:"required"`
}

// handleMockTestAbandon implements the state machine's explicit
// [abandon] edge (spec.md §4.7), letting a caller walk away from an
// in-progress mock test without it counting as a completion.
func (s *Server) handleMockTestAbandon(c *gin.Context) {
	var req mockAbandonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Wrap(apperr.Validation, "BAD_REQUEST", "invalid request body", err))
		return
	}
	if err := s.coord.Abandon(c.Request.Context(), req.SessionID); err != nil {
		s.respondError(c, err)
		return
	}
	s.respondOK(c, http.StatusOK, gin.H{"abandoned": true})
}
