// Package snapshot is Snapshot & Timeline (C10): immutable per-quiz
// ThetaSnapshot writes, the idempotent weekly sweep snapshot C11
// calls, and timeline queries over the resulting history. Grounded on
// models/irt_state.go's plain-GORM-model idiom from the teacher;
// immutability is enforced by never issuing an UPDATE against the
// snapshot table except the explicitly idempotent weekly upsert.
package snapshot

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jeevibe/ale/internal/clock"
	"github.com/jeevibe/ale/internal/database"
	"github.com/jeevibe/ale/internal/models"
	"github.com/jeevibe/ale/internal/session"

	"gorm.io/gorm/clause"
)

// Writer implements session.SnapshotWriter and the weekly-sweep /
// timeline read side of C10.
type Writer struct {
	db *database.DB
}

func New(db *database.DB) *Writer {
	return &Writer{db: db}
}

var _ session.SnapshotWriter = (*Writer)(nil)

// buildChapterMap projects chapter states into the JSONB shape both
// the per-quiz and weekly snapshot rows store.
func buildChapterMap(chapters []models.ChapterState) models.JSONMap {
	out := models.JSONMap{}
	for _, cs := range chapters {
		out[cs.ChapterKey] = map[string]any{
			"theta":      cs.Theta,
			"percentile": cs.Percentile,
			"accuracy":   cs.Accuracy(),
		}
	}
	return out
}

// WriteQuizSnapshot implements session.SnapshotWriter: spec.md §4.8
// persists one immutable snapshot per (user, quiz_id) on quiz
// completion. A no-op when in.QuizID is empty: httpapi's
// completeSession always passes one (the session ID by default), while
// the initial-assessment and unlock-quiz completions pass none, so
// those write no quiz snapshot.
func (w *Writer) WriteQuizSnapshot(ctx context.Context, in session.QuizSnapshotInput) error {
	if in.QuizID == "" {
		return nil
	}
	chapterMap := buildChapterMap(in.ChapterUpdates)
	snap := models.ThetaSnapshot{
		ID:                fmt.Sprintf("%s:quiz:%s", in.UserID, in.QuizID),
		UserID:            in.UserID,
		QuizID:            in.QuizID,
		ThetaByChapter:    chapterMap,
		ThetaBySubject:    in.User.ThetaBySubject,
		OverallTheta:      in.User.OverallTheta,
		OverallPercentile: in.User.OverallPercentile,
		QuizPerformance:   in.QuizPerformance,
		ChapterUpdates:    chapterMap,
		QuizNumber:        in.User.CompletedQuizCount,
		CreatedAt:         in.Now,
	}
	return w.db.DB.WithContext(ctx).Create(&snap).Error
}

// CreateWeeklySnapshot implements spec.md §4.9's createWeeklySnapshot:
// identical shape to the per-quiz snapshot but keyed by ISO week, and
// idempotent on that key — a second run in the same week overwrites
// rather than erroring.
func (w *Writer) CreateWeeklySnapshot(ctx context.Context, userID string, now time.Time) error {
	var user models.User
	if err := w.db.DB.WithContext(ctx).Where("user_id = ?", userID).First(&user).Error; err != nil {
		return err
	}
	var chapters []models.ChapterState
	if err := w.db.DB.WithContext(ctx).Where("user_id = ?", userID).Find(&chapters).Error; err != nil {
		return err
	}

	weekKey := clock.WeeklyPeriodKey(now)
	chapterMap := buildChapterMap(chapters)
	snap := models.ThetaSnapshot{
		ID:                fmt.Sprintf("%s:week:%s", userID, weekKey),
		UserID:            userID,
		WeekKey:           weekKey,
		ThetaByChapter:    chapterMap,
		ThetaBySubject:    user.ThetaBySubject,
		OverallTheta:      user.OverallTheta,
		OverallPercentile: user.OverallPercentile,
		ChapterUpdates:    chapterMap,
		QuizNumber:        user.CompletedQuizCount,
		CreatedAt:         now,
	}

	return w.db.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"theta_by_chapter", "theta_by_subject", "overall_theta",
			"overall_percentile", "chapter_updates", "quiz_number", "created_at",
		}),
	}).Create(&snap).Error
}

const (
	defaultTimelineLimit = 30
	maxTimelineLimit     = 100
)

// TimelinePoint is one entry of a timeline query's output, spec.md §4.8.
type TimelinePoint struct {
	Date       time.Time
	Theta      float64
	Percentile int
	QuizNumber int
}

// TimelineQuery filters and bounds a timeline read. At most one of
// Subject/ChapterKey should be set; Subject takes precedence.
type TimelineQuery struct {
	UserID     string
	Subject    string
	ChapterKey string
	Limit      int
	Cursor     *time.Time
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultTimelineLimit
	}
	if limit > maxTimelineLimit {
		return maxTimelineLimit
	}
	return limit
}

// extractPoint projects one snapshot row into a TimelinePoint for the
// requested filter, returning ok=false if the snapshot carries no data
// for that subject/chapter (e.g. a subject the user never attempted).
func extractPoint(snap models.ThetaSnapshot, subject, chapterKey string) (TimelinePoint, bool) {
	theta := snap.OverallTheta
	percentile := snap.OverallPercentile

	switch {
	case subject != "":
		entry, ok := snap.ThetaBySubject[subject].(map[string]any)
		if !ok {
			return TimelinePoint{}, false
		}
		theta, percentile = extractThetaPercentile(entry, theta, percentile)
	case chapterKey != "":
		entry, ok := snap.ThetaByChapter[chapterKey].(map[string]any)
		if !ok {
			return TimelinePoint{}, false
		}
		theta, percentile = extractThetaPercentile(entry, theta, percentile)
	}

	return TimelinePoint{Date: snap.CreatedAt, Theta: theta, Percentile: percentile, QuizNumber: snap.QuizNumber}, true
}

func extractThetaPercentile(entry map[string]any, fallbackTheta float64, fallbackPercentile int) (float64, int) {
	theta := fallbackTheta
	percentile := fallbackPercentile
	if t, ok := entry["theta"].(float64); ok {
		theta = t
	}
	if p, ok := entry["percentile"].(float64); ok {
		percentile = int(p)
	}
	return theta, percentile
}

// Timeline implements spec.md §4.8's timeline query: the latest K
// points (default 30, max 100) unless a cursor is given, returned in
// monotonically increasing date order.
func (w *Writer) Timeline(ctx context.Context, q TimelineQuery) ([]TimelinePoint, error) {
	limit := clampLimit(q.Limit)

	query := w.db.DB.WithContext(ctx).
		Where("user_id = ?", q.UserID).
		Order("created_at DESC").
		Limit(limit)
	if q.Cursor != nil {
		query = query.Where("created_at < ?", *q.Cursor)
	}

	var rows []models.ThetaSnapshot
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}

	points := make([]TimelinePoint, 0, len(rows))
	for _, r := range rows {
		if point, ok := extractPoint(r, q.Subject, q.ChapterKey); ok {
			points = append(points, point)
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })
	return points, nil
}
