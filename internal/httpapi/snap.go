package httpapi

import (
	"net/http"
	"time"

	"github.com/jeevibe/ale/internal/apperr"
	"github.com/jeevibe/ale/internal/models"
	"github.com/jeevibe/ale/internal/quota"
	"github.com/jeevibe/ale/internal/selection"
	"github.com/jeevibe/ale/internal/session"
	"github.com/jeevibe/ale/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type snapPracticeRequest struct {
	SessionID  string `json:"session_id"`
	ChapterKey string `json:"chapter_key" binding:"required"`
}

type snapPracticeResponse struct {
	SessionID string              `json:"session_id"`
	Questions []sanitizedQuestion `json:"questions"`
	Source    string              `json:"source"`
}

func (s *Server) registerSnapPracticeRoutes(g gin.IRouter) {
	g.POST("/snap-practice/questions", s.handleSnapPracticeQuestions)
	g.POST("/snap-practice/complete", func(c *gin.Context) { s.completeSession(c, models.KindSnapPractice) })
}

// handleSnapPracticeQuestions implements spec.md §6's snap practice
// endpoint: up to 5 DB-matched questions for (chapter_key, difficulty
// bucket), reporting a source tag. AI fallback generation is out of
// scope (spec.md Non-goals), so source is always "database" or
// "none" here — never "ai"/"mixed".
func (s *Server) handleSnapPracticeQuestions(c *gin.Context) {
	ctx := c.Request.Context()
	userID := userIDOf(c)
	now := time.Now()

	var req snapPracticeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.respondError(c, apperr.Wrap(apperr.Validation, "BAD_REQUEST", "invalid request body", err))
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	_, limit, period, err := s.tierFeatureLimit(ctx, userID, quota.FeatureSnapSolve, now)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if _, err := quota.Reserve(ctx, s.db, s.emitter, userID, quota.FeatureSnapSolve, period, limit, now); err != nil {
		s.respondError(c, err)
		return
	}

	var chapters []models.ChapterState
	err = s.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := store.ListChapterStates(ctx, tx, userID)
		chapters = rows
		return err
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	recent, err := s.recentExclusion(ctx, userID, req.ChapterKey)
	if err != nil {
		s.respondError(c, err)
		return
	}

	selected, err := s.planner.Select(ctx, selection.Request{
		UserID:        userID,
		Mode:          selection.ModeSnapPractice,
		Count:         countSnapPractice,
		Exclusion:     recent,
		ChapterKey:    req.ChapterKey,
		ChapterStates: chapters,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	source := "database"
	if len(selected) == 0 {
		source = "none"
		s.respondOK(c, http.StatusOK, snapPracticeResponse{Source: source})
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

	sess, err := s.coord.Create(ctx, session.CreateInput{
		SessionID:  req.SessionID,
		UserID:     userID,
		Kind:       models.KindSnapPractice,
		ChapterKey: req.ChapterKey,
		Questions:  planned,
		ExpiresAt:  now.Add(s.cfg.Session.TTL),
		Metadata:   models.JSONMap{"chapter_key": req.ChapterKey},
		Now:        now,
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.metrics.SessionsCreated.WithLabelValues(string(models.KindSnapPractice)).Inc()

	s.respondOK(c, http.StatusOK, snapPracticeResponse{
		SessionID: sess.SessionID,
		Questions: toSanitizedQuestions(selected, byID),
		Source:    source,
	})
}
