package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/jeevibe/ale/internal/apperr"
	"github.com/jeevibe/ale/internal/models"
	"github.com/jeevibe/ale/internal/quota"
	"github.com/jeevibe/ale/internal/selection"
	"github.com/jeevibe/ale/internal/session"
	"github.com/jeevibe/ale/internal/spacedrep"
	"github.com/jeevibe/ale/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Fixed per-mode counts from spec.md §4.4 (unlock quiz's 5, snap
// practice's up to 5) and reasonable per-kind defaults for the modes
// the spec leaves as "per tier ceiling" (chapter practice, daily
// quiz), since the ceiling itself is a quota concern enforced
// separately by C8, not a selection-count concern.
const (
	countDailyQuiz       = 15
	countChapterPractice = 10
	countUnlockQuiz      = 5
	countSnapPractice    = 5
	recentExclusionLimit = 200
	dueSetLimit          = 50
)

// sanitizedQuestion is the client-facing projection of a catalog
// question: never exposes correct_answer or the answer range, per
// spec.md §7's boundary discipline.
type sanitizedQuestion struct {
	Position     int      `json:"position"`
	QuestionID   string   `json:"question_id"`
	Subject      string   `json:"subject"`
	Chapter      string   `json:"chapter"`
	ChapterKey   string   `json:"chapter_key"`
	QuestionType string   `json:"question_type"`
	SubTopics    []string `json:"sub_topics,omitempty"`
	Rationale    string   `json:"rationale"`
}

func toSanitizedQuestions(selected []selection.Selected, byID map[string]models.Question) []sanitizedQuestion {
	out := make([]sanitizedQuestion, 0, len(selected))
	for i, sel := range selected {
		q := byID[sel.QuestionID]
		out = append(out, sanitizedQuestion{
			Position:     i,
			QuestionID:   q.QuestionID,
			Subject:      q.Subject,
			Chapter:      q.Chapter,
			ChapterKey:   q.ChapterKey,
			QuestionType: string(q.QuestionType),
			SubTopics:    q.SubTopicList(),
			Rationale:    string(sel.Rationale),
		})
	}
	return out
}

type generateRequest struct {
	SessionID  string `json:"session_id"`
	ChapterKey string `json:"chapter_key"`
}

type generateResponse struct {
	SessionID string              `json:"session_id"`
	Questions []sanitizedQuestion `json:"questions"`
}

// resolveDailyQuizMode implements spec.md §4.4's mode switch for the
// daily quiz family: recovery takes precedence over the
// exploration/exploitation split on learning_phase.
func (s *Server) resolveDailyQuizMode(user models.User) selection.Mode {
	if user.ConsecutiveLowScoreQuizzes >= s.cfg.Tier.RecoveryQuizConsecutiveLowScores {
		return selection.ModeRecovery
	}
	if user.LearningPhase == models.PhaseExploitation {
		return selection.ModeExploitation
	}
	return selection.ModeExploration
}

func (s *Server) modeFor(kind models.SessionKind, user models.User) selection.Mode {
	switch kind {
	case models.KindDailyQuiz:
		return s.resolveDailyQuizMode(user)
	case models.KindChapterPractice:
		return selection.ModeChapterPractice
	case models.KindUnlockQuiz:
		return selection.ModeUnlock
	case models.KindSnapPractice:
		return selection.ModeSnapPractice
	default:
		return selection.ModeChapterPractice
	}
}

func (s *Server) recentExclusion(ctx context.Context, userID, chapterKey string) (map[string]bool, error) {
	var ids []string
	err := s.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := store.ListRecentAnsweredQuestionIDs(ctx, tx, userID, chapterKey, recentExclusionLimit)
		ids = rows
		return err
	})
	if err != nil {
		return nil, err
	}
	out := make(map[string]bool, len(ids))
	for _, id := range ids {
		out[id] = true
	}
	return out, nil
}

// dueSetFor delegates to spacedrep.DueSet (C7) for the review-ladder
// rows due for (userID, now), truncating to dueSetLimit — DueSet
// itself returns the full due set sorted most-overdue-first.
func (s *Server) dueSetFor(ctx context.Context, userID string, now time.Time) ([]models.ReviewInterval, error) {
	var due []models.ReviewInterval
	err := s.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := spacedrep.DueSet(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		if len(rows) > dueSetLimit {
			rows = rows[:dueSetLimit]
		}
		due = rows
		return nil
	})
	return due, err
}

// generate is the shared first step of every session-kind family:
// reserve quota (if the feature requires it), run the planner, create
// the session, and return the sanitized question list.
func (s *Server) generate(c *gin.Context, kind models.SessionKind, feature string, count int, requireChapterKey bool) {
	ctx := c.Request.Context()
	userID := userIDOf(c)
	now := time.Now()

	var req generateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			s.respondError(c, apperr.Wrap(apperr.Validation, "BAD_REQUEST", "invalid request body", err))
			return
		}
	}
	if requireChapterKey && req.ChapterKey == "" {
		s.respondError(c, apperr.New(apperr.Validation, "CHAPTER_KEY_REQUIRED", "chapter_key is required"))
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	var user models.User
	var chapters []models.ChapterState
	err := s.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := store.GetUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		user = *u
		rows, err := store.ListChapterStates(ctx, tx, userID)
		if err != nil {
			return err
		}
		chapters = rows
		return nil
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	if feature != "" {
		_, limit, period, err := s.tierFeatureLimit(ctx, userID, feature, now)
		if err != nil {
			s.respondError(c, err)
			return
		}
		if _, err := quota.Reserve(ctx, s.db, s.emitter, userID, feature, period, limit, now); err != nil {
			s.respondError(c, err)
			return
		}
	}

	mode := s.modeFor(kind, user)
	exclusionScope := req.ChapterKey
	if kind == models.KindDailyQuiz {
		exclusionScope = ""
	}
	recent, err := s.recentExclusion(ctx, userID, exclusionScope)
	if err != nil {
		s.respondError(c, err)
		return
	}

	selReq := selection.Request{
		UserID:        userID,
		Mode:          mode,
		Count:         count,
		Exclusion:     recent,
		ChapterKey:    req.ChapterKey,
		ChapterStates: chapters,
	}
	if mode == selection.ModeExploitation {
		due, err := s.dueSetFor(ctx, userID, now)
		if err != nil {
			s.respondError(c, err)
			return
		}
		selReq.DueSet = due
	}

	selected, err := s.planner.Select(ctx, selReq)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if len(selected) == 0 {
		s.respondError(c, apperr.New(apperr.NotFound, "NO_QUESTIONS_AVAILABLE", "no questions available for this request"))
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

	metadata := models.JSONMap{}
	if req.ChapterKey != "" {
		metadata["chapter_key"] = req.ChapterKey
	}

	sess, err := s.coord.Create(ctx, session.CreateInput{
		SessionID:  req.SessionID,
		UserID:     userID,
		Kind:       kind,
		ChapterKey: req.ChapterKey,
		Questions:  planned,
		ExpiresAt:  now.Add(s.cfg.Session.TTL),
		Metadata:   metadata,
		Now:        now,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.metrics.SessionsCreated.WithLabelValues(string(kind)).Inc()

	s.respondOK(c, http.StatusOK, generateResponse{
		SessionID: sess.SessionID,
		Questions: toSanitizedQuestions(selected, byID),
	})
}

type submitAnswerRequest struct {
	SessionID             string   `json:"session_id" binding:"required"`
	Position              int      `json:"position"`
	StudentAnswer         string   `json:"student_answer"`
	StudentNumericalValue *float64 `json:"student_numerical_value"`
	TimeTakenSeconds      int      `json:"time_taken_seconds"`
}

// submitAnswer is shared by every kind's submit-answer endpoint.
func (s *Server) submitAnswer(c *gin.Context) {
	var req submitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Wrap(apperr.Validation, "BAD_REQUEST", "invalid request body", err))
		return
	}
	result, err := s.coord.SubmitAnswer(c.Request.Context(), session.SubmitAnswerInput{
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
	s.respondOK(c, http.StatusOK, gin.H{
		"is_correct":       result.Response.IsCorrect,
		"already_answered": result.AlreadyAnswered,
	})
}

type completeRequest struct {
	SessionID string `json:"session_id" binding:"required"`
	QuizID    string `json:"quiz_id"`
}

// completeSession is shared by every kind's complete endpoint; quizID
// defaults to sessionID so daily_quiz's snapshot keying has a stable
// identifier even when the caller omits it.
func (s *Server) completeSession(c *gin.Context, kind models.SessionKind) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Wrap(apperr.Validation, "BAD_REQUEST", "invalid request body", err))
		return
	}
	quizID := req.QuizID
	if quizID == "" {
		quizID = req.SessionID
	}
	user, err := s.coord.Complete(c.Request.Context(), session.CompleteInput{
		SessionID: req.SessionID,
		QuizID:    quizID,
		Now:       time.Now(),
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.metrics.SessionsCompleted.WithLabelValues(string(kind)).Inc()
	s.respondOK(c, http.StatusOK, gin.H{
		"overall_theta":      user.OverallTheta,
		"overall_percentile": user.OverallPercentile,
		"learning_phase":     user.LearningPhase,
	})
}

func (s *Server) registerDailyQuizRoutes(g gin.IRouter) {
	g.GET("/daily-quiz/generate", func(c *gin.Context) {
		s.generate(c, models.KindDailyQuiz, quota.FeatureDailyQuiz, countDailyQuiz, false)
	})
	g.POST("/daily-quiz/submit-answer", s.submitAnswer)
	g.POST("/daily-quiz/complete", func(c *gin.Context) { s.completeSession(c, models.KindDailyQuiz) })
}

func (s *Server) registerChapterPracticeRoutes(g gin.IRouter) {
	g.POST("/chapter-practice/generate", func(c *gin.Context) {
		s.generate(c, models.KindChapterPractice, quota.FeatureChapterPractice, countChapterPractice, true)
	})
	g.POST("/chapter-practice/submit-answer", s.submitAnswer)
	g.POST("/chapter-practice/complete", func(c *gin.Context) { s.completeSession(c, models.KindChapterPractice) })
}

func (s *Server) registerUnlockQuizRoutes(g gin.IRouter) {
	g.POST("/unlock-quiz/generate", func(c *gin.Context) {
		s.generate(c, models.KindUnlockQuiz, "", countUnlockQuiz, true)
	})
	g.POST("/unlock-quiz/submit-answer", s.submitAnswer)
	g.POST("/unlock-quiz/complete", s.handleUnlockQuizComplete)
}

// handleUnlockQuizComplete implements spec.md §6's pass rule (correct
// ≥ 3 of 5) on top of the shared Complete call, since unlock quiz
// never updates θ (multiplierFor returns 0 for KindUnlockQuiz) and
// needs its pass/fail verdict surfaced instead.
func (s *Server) handleUnlockQuizComplete(c *gin.Context) {
	var req completeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Wrap(apperr.Validation, "BAD_REQUEST", "invalid request body", err))
		return
	}
	ctx := c.Request.Context()

	var sess models.Session
	err := s.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row, err := store.GetSession(ctx, tx, req.SessionID)
		if err != nil {
			return err
		}
		sess = *row
		return nil
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	if _, err := s.coord.Complete(ctx, session.CompleteInput{SessionID: req.SessionID, Now: time.Now()}); err != nil {
		s.respondError(c, err)
		return
	}
	passed := sess.CorrectCount >= 3
	s.metrics.SessionsCompleted.WithLabelValues(string(models.KindUnlockQuiz)).Inc()
	s.respondOK(c, http.StatusOK, gin.H{
		"correct_count": sess.CorrectCount,
		"passed":        passed,
		"can_retry":     !passed,
	})
}
