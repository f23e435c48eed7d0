package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/jeevibe/ale/internal/apperr"
	"github.com/jeevibe/ale/internal/clock"
	"github.com/jeevibe/ale/internal/models"
	"github.com/jeevibe/ale/internal/proficiency"
	"github.com/jeevibe/ale/internal/snapshot"
	"github.com/jeevibe/ale/internal/store"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

const weeklyActivityWindow = 12 * 7 * 24 * time.Hour

func (s *Server) registerAnalyticsRoutes(g gin.IRouter) {
	g.GET("/analytics/overview", s.handleAnalyticsOverview)
	g.GET("/analytics/mastery/:subject", s.handleAnalyticsMastery)
	g.GET("/analytics/mastery-timeline", s.handleAnalyticsMasteryTimeline)
	g.GET("/analytics/accuracy-timeline", s.handleAnalyticsAccuracyTimeline)
	g.GET("/analytics/all-chapters", s.handleAnalyticsAllChapters)
	g.GET("/analytics/weekly-activity", s.handleAnalyticsWeeklyActivity)
}

// handleAnalyticsOverview reports the user doc's own rollups plus a
// freshly recomputed rollupSubjects (C4), read-only per spec.md §6.
func (s *Server) handleAnalyticsOverview(c *gin.Context) {
	ctx := c.Request.Context()
	userID := userIDOf(c)

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

	rollup := proficiency.RollupSubjects(chapters)
	s.respondOK(c, http.StatusOK, gin.H{
		"overall_theta":        user.OverallTheta,
		"overall_percentile":   user.OverallPercentile,
		"completed_quiz_count": user.CompletedQuizCount,
		"learning_phase":       user.LearningPhase,
		"current_day":          user.CurrentDay,
		"accuracy":             user.Accuracy(),
		"by_subject":           rollup.BySubject,
	})
}

// handleAnalyticsMastery reports one subject's rollup plus its
// chapters.
func (s *Server) handleAnalyticsMastery(c *gin.Context) {
	ctx := c.Request.Context()
	userID := userIDOf(c)
	subject := c.Param("subject")

	var chapters []models.ChapterState
	err := s.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := store.ListChapterStates(ctx, tx, userID)
		chapters = rows
		return err
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	rollup := proficiency.RollupSubjects(chapters)
	subjectRollup, ok := rollup.BySubject[subject]
	if !ok {
		s.respondError(c, apperr.New(apperr.NotFound, "SUBJECT_NOT_FOUND", "no attempted chapters for this subject"))
		return
	}

	var subjectChapters []models.ChapterState
	for _, cs := range chapters {
		if cs.Subject == subject {
			subjectChapters = append(subjectChapters, cs)
		}
	}

	s.respondOK(c, http.StatusOK, gin.H{
		"subject":  subject,
		"rollup":   subjectRollup,
		"chapters": subjectChapters,
	})
}

func parseTimelineQuery(c *gin.Context, userID string) snapshot.TimelineQuery {
	q := snapshot.TimelineQuery{UserID: userID, Subject: c.Query("subject"), ChapterKey: c.Query("chapter_key")}
	if v := c.Query("limit"); v != "" {
		if n, err := parsePositiveInt(v); err == nil {
			q.Limit = n
		}
	}
	return q
}

func parsePositiveInt(v string) (int, error) {
	return strconv.Atoi(v)
}

// handleAnalyticsMasteryTimeline implements spec.md §4.8's timeline
// query, filtered by ?subject or ?chapter_key.
func (s *Server) handleAnalyticsMasteryTimeline(c *gin.Context) {
	userID := userIDOf(c)
	points, err := s.snap.Timeline(c.Request.Context(), parseTimelineQuery(c, userID))
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondOK(c, http.StatusOK, gin.H{"points": points})
}

// handleAnalyticsAccuracyTimeline is the same timeline query rendered
// for accuracy rather than θ. ThetaSnapshot does not persist a separate
// accuracy series, so every point carries the user's current lifetime
// accuracy (User.Accuracy()); per-quiz historical accuracy is not
// reported.
func (s *Server) handleAnalyticsAccuracyTimeline(c *gin.Context) {
	ctx := c.Request.Context()
	userID := userIDOf(c)

	points, err := s.snap.Timeline(ctx, parseTimelineQuery(c, userID))
	if err != nil {
		s.respondError(c, err)
		return
	}

	var user models.User
	err = s.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		u, err := store.GetUser(ctx, tx, userID)
		user = *u
		return err
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	out := make([]gin.H, 0, len(points))
	for _, p := range points {
		out = append(out, gin.H{
			"date":        p.Date,
			"quiz_number": p.QuizNumber,
			"accuracy":    user.Accuracy(),
		})
	}
	s.respondOK(c, http.StatusOK, gin.H{"points": out})
}

// handleAnalyticsAllChapters lists every chapter the user has touched.
func (s *Server) handleAnalyticsAllChapters(c *gin.Context) {
	ctx := c.Request.Context()
	userID := userIDOf(c)

	var chapters []models.ChapterState
	err := s.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := store.ListChapterStates(ctx, tx, userID)
		chapters = rows
		return err
	})
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.respondOK(c, http.StatusOK, gin.H{"chapters": chapters})
}

type weeklyBucket struct {
	WeekKey           string `json:"week_key"`
	QuestionsAnswered int    `json:"questions_answered"`
	CorrectCount      int    `json:"correct_count"`
}

// handleAnalyticsWeeklyActivity buckets the last 12 weeks of answered
// responses by ISO week, reusing clock.WeeklyPeriodKey so the bucket
// boundaries match C11's weekly-snapshot cadence.
func (s *Server) handleAnalyticsWeeklyActivity(c *gin.Context) {
	ctx := c.Request.Context()
	userID := userIDOf(c)
	now := time.Now()

	var responses []models.Response
	err := s.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := store.ListResponsesSince(ctx, tx, userID, now.Add(-weeklyActivityWindow))
		responses = rows
		return err
	})
	if err != nil {
		s.respondError(c, err)
		return
	}

	order := []string{}
	buckets := map[string]*weeklyBucket{}
	for _, r := range responses {
		key := clock.WeeklyPeriodKey(r.AnsweredAt)
		b, ok := buckets[key]
		if !ok {
			b = &weeklyBucket{WeekKey: key}
			buckets[key] = b
			order = append(order, key)
		}
		b.QuestionsAnswered++
		if r.IsCorrect {
			b.CorrectCount++
		}
	}

	out := make([]weeklyBucket, 0, len(order))
	for _, key := range order {
		out = append(out, *buckets[key])
	}
	s.respondOK(c, http.StatusOK, gin.H{"weeks": out})
}
