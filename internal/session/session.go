// Package session is the Session Coordinator (C9): the single state
// machine shared by every session kind, spec.md §4.7. Grounded on the
// teacher's server/scheduler.go request-handling shape (timed,
// logged, single-purpose methods per lifecycle step) and
// database.go's RetryTransaction for the exponential-backoff retry
// spec.md §4.7's failure semantics requires.
package session

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jeevibe/ale/internal/apperr"
	"github.com/jeevibe/ale/internal/config"
	"github.com/jeevibe/ale/internal/database"
	"github.com/jeevibe/ale/internal/events"
	"github.com/jeevibe/ale/internal/irt"
	"github.com/jeevibe/ale/internal/models"
	"github.com/jeevibe/ale/internal/proficiency"
	"github.com/jeevibe/ale/internal/spacedrep"
	"github.com/jeevibe/ale/internal/store"

	"gorm.io/gorm"
)

// SnapshotWriter is the C10 dependency Complete calls after a
// successful completion transaction, spec.md §4.7 rule 3: "Emit a
// snapshot (C10) after the transaction succeeds." Defined here (the
// consumer) rather than in the snapshot package, per Go convention.
type SnapshotWriter interface {
	WriteQuizSnapshot(ctx context.Context, in QuizSnapshotInput) error
}

// QuizSnapshotInput is everything C10 needs to persist one immutable
// per-quiz ThetaSnapshot.
type QuizSnapshotInput struct {
	UserID          string
	QuizID          string
	User            models.User
	ChapterUpdates  []models.ChapterState
	QuizPerformance map[string]any
	Now             time.Time
}

// Coordinator implements the session state machine over the store.
type Coordinator struct {
	db       *database.DB
	sessCfg  config.SessionConfig
	tierCfg  config.TierConfig
	irtCfg   irt.Params
	snapshot SnapshotWriter
	emitter  events.Emitter
}

func New(db *database.DB, sessCfg config.SessionConfig, tierCfg config.TierConfig, irtParams irt.Params, snapshot SnapshotWriter, emitter events.Emitter) *Coordinator {
	return &Coordinator{db: db, sessCfg: sessCfg, tierCfg: tierCfg, irtCfg: irtParams, snapshot: snapshot, emitter: emitter}
}

// CreateInput bundles what Create needs: the planner (C6) has already
// run by the time this is called.
type CreateInput struct {
	SessionID  string // caller-supplied idempotency key
	UserID     string
	Kind       models.SessionKind
	ChapterKey string // only meaningful for chapter_practice
	Questions  []PlannedQuestion
	ExpiresAt  time.Time
	Metadata   models.JSONMap
	Now        time.Time
}

// PlannedQuestion is one output row from the selection planner (C6).
type PlannedQuestion struct {
	QuestionID string
	Rationale  string
}

// Create implements spec.md §4.7 rule 1: write the session and its
// question positions in one batch. If a peer already created a
// session with the same session_id, the existing one is returned
// instead (idempotent create). At most one in_progress session per
// (user, kind) — further keyed by chapter_key for chapter_practice —
// is enforced by re-reading any existing live session for that key
// rather than a unique index, since expiry is lazy (spec.md §4.7 rule
// 4) and a unique constraint can't express "unless expired."
func (c *Coordinator) Create(ctx context.Context, in CreateInput) (*models.Session, error) {
	var result models.Session
	err := c.db.RetryTransaction(ctx, c.sessCfg, "session_create", func(tx *gorm.DB) error {
		var existing models.Session
		err := tx.WithContext(ctx).Where("session_id = ?", in.SessionID).First(&existing).Error
		switch {
		case err == nil:
			result = existing
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}

		if live, err := c.findLiveSession(ctx, tx, in.UserID, in.Kind, in.ChapterKey, in.Now); err != nil {
			return err
		} else if live != nil {
			result = *live
			return nil
		}

		expiresAt := in.ExpiresAt
		sess := models.Session{
			SessionID: in.SessionID,
			UserID:    in.UserID,
			Kind:      in.Kind,
			Status:    models.StatusInProgress,
			CreatedAt: in.Now,
			ExpiresAt: &expiresAt,
			Metadata:  in.Metadata,
		}
		if err := tx.WithContext(ctx).Create(&sess).Error; err != nil {
			return err
		}

		positions := make([]models.QuestionPosition, len(in.Questions))
		for i, q := range in.Questions {
			positions[i] = models.QuestionPosition{
				SessionID:       sess.SessionID,
				Position:        i,
				QuestionID:      q.QuestionID,
				SelectionReason: q.Rationale,
			}
		}
		if len(positions) > 0 {
			if err := tx.WithContext(ctx).Create(&positions).Error; err != nil {
				return err
			}
		}

		result = sess
		return nil
	})
	if err != nil {
		return nil, translateStoreErr(err, "session create failed")
	}
	return &result, nil
}

// findLiveSession enforces "at most one in_progress session per
// (user, kind[, chapter_key])", lazily expiring any stale match first
// (spec.md §4.7 rule 4).
func (c *Coordinator) findLiveSession(ctx context.Context, tx *gorm.DB, userID string, kind models.SessionKind, chapterKey string, now time.Time) (*models.Session, error) {
	q := tx.WithContext(ctx).Where("user_id = ? AND kind = ? AND status = ?", userID, kind, models.StatusInProgress)
	if kind == models.KindChapterPractice {
		q = q.Where("metadata->>'chapter_key' = ?", chapterKey)
	}
	var rows []models.Session
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		s := &rows[i]
		if s.Expired(now) {
			s.Status = models.StatusExpired
			if err := tx.Save(s).Error; err != nil {
				return nil, err
			}
			continue
		}
		return s, nil
	}
	return nil, nil
}

// SubmitAnswerInput is one answer submission, spec.md §4.7 rule 2.
type SubmitAnswerInput struct {
	SessionID              string
	Position               int
	StudentAnswer          string
	StudentNumericalValue  *float64
	TimeTakenSeconds       int
	Now                    time.Time
}

// SubmitAnswerResult carries the committed position and response, or
// the already-answered position if the submission was a replay.
type SubmitAnswerResult struct {
	Position        models.QuestionPosition
	Response        models.Response
	AlreadyAnswered bool
}

// SubmitAnswer implements spec.md §4.7 rule 2: a sentinel transaction
// guards against concurrent writers to the same position, then the
// scoring and chapter-theta computation run outside any transaction
// (CPU-bound, per spec.md §5), and finally the five-write batch
// (position, session counters, chapter state, the spaced-repetition
// review_intervals row (C7), response) commits atomically.
func (c *Coordinator) SubmitAnswer(ctx context.Context, in SubmitAnswerInput) (*SubmitAnswerResult, error) {
	var sess models.Session
	var pos models.QuestionPosition
	var alreadyAnswered bool

	err := c.db.RetryTransaction(ctx, c.sessCfg, "submit_answer_sentinel", func(tx *gorm.DB) error {
		s, err := store.GetSession(ctx, tx, in.SessionID)
		if err != nil {
			return err
		}
		sess = *s

		if sess.Expired(in.Now) && sess.Status == models.StatusInProgress {
			sess.Status = models.StatusExpired
			if err := tx.Save(&sess).Error; err != nil {
				return err
			}
		}
		if sess.Status != models.StatusInProgress {
			return apperr.New(apperr.StateConflict, "SESSION_NOT_ACTIVE", "session is not in progress")
		}

		if err := tx.WithContext(ctx).Where("session_id = ? AND position = ?", in.SessionID, in.Position).First(&pos).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.NotFound, "QUESTION_NOT_FOUND", "question not in session")
			}
			return err
		}

		if pos.Answered {
			alreadyAnswered = true
			return nil
		}

		if pos.Answering && pos.AnsweringSince != nil && in.Now.Sub(*pos.AnsweringSince) < c.sessCfg.AnsweringSentinelTTL {
			return apperr.New(apperr.StateConflict, "ANSWER_IN_PROGRESS", "answer submission already in progress")
		}

		now := in.Now
		pos.Answering = true
		pos.AnsweringSince = &now
		return tx.Save(&pos).Error
	})
	if err != nil {
		return nil, translateStoreErr(err, "submit answer sentinel failed")
	}
	if alreadyAnswered {
		var resp models.Response
		if err := c.db.DB.WithContext(ctx).Where("session_id = ? AND question_id = ?", in.SessionID, pos.QuestionID).First(&resp).Error; err != nil {
			return nil, translateStoreErr(err, "fetch existing response failed")
		}
		return &SubmitAnswerResult{Position: pos, Response: resp, AlreadyAnswered: true}, nil
	}

	var question models.Question
	if err := c.db.DB.WithContext(ctx).Where("question_id = ?", pos.QuestionID).First(&question).Error; err != nil {
		c.rollbackSentinel(ctx, in.SessionID, in.Position)
		return nil, translateStoreErr(err, "fetch question failed")
	}

	correct := c.score(question, in)

	var chapterState models.ChapterState
	if err := c.db.DB.WithContext(ctx).Where("user_id = ? AND chapter_key = ?", sess.UserID, question.ChapterKey).First(&chapterState).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			c.rollbackSentinel(ctx, in.SessionID, in.Position)
			return nil, translateStoreErr(err, "fetch chapter state failed")
		}
		chapterState = models.ChapterState{UserID: sess.UserID, ChapterKey: question.ChapterKey, Subject: question.Subject, ConfidenceSE: irt.DefaultBounds.SEMax}
	}

	multiplier := c.multiplierFor(sess.Kind, correct)
	var updatedChapter models.ChapterState
	if multiplier == 0 {
		updatedChapter = chapterState
	} else {
		responses := []irt.Response{{
			Discrimination: question.IRTDiscrimination,
			Difficulty:     question.IRTDifficulty,
			Guessing:       question.IRTGuessing,
			Correct:        correct,
		}}
		updatedChapter = proficiency.ApplyChapter(chapterState, responses, multiplier, in.Now, c.irtCfg)
	}

	var reviewState models.ReviewInterval
	if err := c.db.DB.WithContext(ctx).Where("user_id = ? AND question_id = ?", sess.UserID, pos.QuestionID).First(&reviewState).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			c.rollbackSentinel(ctx, in.SessionID, in.Position)
			return nil, translateStoreErr(err, "fetch review interval failed")
		}
		reviewState = spacedrep.InitializeState(sess.UserID, pos.QuestionID, in.Now)
	} else {
		reviewState = spacedrep.UpdateState(reviewState, correct, in.Now)
	}

	var response models.Response
	err = c.db.RetryTransaction(ctx, c.sessCfg, "submit_answer_commit", func(tx *gorm.DB) error {
		now := in.Now
		pos.Answered = true
		pos.Answering = false
		pos.AnsweringSince = nil
		pos.StudentAnswer = in.StudentAnswer
		pos.IsCorrect = &correct
		pos.TimeTakenSeconds = in.TimeTakenSeconds
		pos.AnsweredAt = &now
		if err := tx.Save(&pos).Error; err != nil {
			return err
		}

		sess.QuestionsAnswered++
		if correct {
			sess.CorrectCount++
		}
		sess.TotalTimeSeconds += in.TimeTakenSeconds
		if err := tx.Save(&sess).Error; err != nil {
			return err
		}

		if err := store.UpsertChapterState(ctx, tx, &updatedChapter); err != nil {
			return err
		}

		if err := tx.Save(&reviewState).Error; err != nil {
			return err
		}

		response = models.Response{
			SessionID:         in.SessionID,
			QuestionID:        pos.QuestionID,
			UserID:            sess.UserID,
			StudentAnswer:     in.StudentAnswer,
			CorrectAnswer:     question.CorrectAnswer,
			IsCorrect:         correct,
			TimeTakenSeconds:  in.TimeTakenSeconds,
			ChapterKey:        question.ChapterKey,
			SubTopics:         question.SubTopics,
			ThetaDelta:        updatedChapter.Theta - chapterState.Theta,
			AnsweredAt:        in.Now,
		}
		return tx.Create(&response).Error
	})
	if err != nil {
		return nil, translateStoreErr(err, "submit answer commit failed")
	}
	return &SubmitAnswerResult{Position: pos, Response: response}, nil
}

// rollbackSentinel is the compensating write spec.md §5 describes:
// "cancellation observed between the answer-scoring step and the
// four-write batch rolls back the sentinel." Best-effort: if it
// fails, the sentinel's own TTL still reclaims the position after
// AnsweringSentinelTTL.
func (c *Coordinator) rollbackSentinel(ctx context.Context, sessionID string, position int) {
	c.db.DB.WithContext(ctx).Model(&models.QuestionPosition{}).
		Where("session_id = ? AND position = ?", sessionID, position).
		Updates(map[string]any{"answering": false, "answering_since": nil})
}

func (c *Coordinator) score(q models.Question, in SubmitAnswerInput) bool {
	if q.QuestionType == models.QuestionNumerical && in.StudentNumericalValue != nil {
		correctValue, err := strconv.ParseFloat(q.CorrectAnswer, 64)
		if err != nil {
			return false
		}
		return q.ScoreNumerical(*in.StudentNumericalValue, correctValue)
	}
	return in.StudentAnswer == q.CorrectAnswer
}

// multiplierFor implements spec.md §4.7's per-kind theta multipliers.
// snap_practice only folds a theta update when the submission is
// correct ("applied only when correct ≥ 1 overall"); an incorrect
// snap submission updates nothing.
func (c *Coordinator) multiplierFor(kind models.SessionKind, correct bool) float64 {
	switch kind {
	case models.KindDailyQuiz, models.KindInitialAssessment:
		return 1.0
	case models.KindChapterPractice:
		return c.tierCfg.ChapterPracticeMultiplier
	case models.KindSnapPractice:
		if !correct {
			return 0
		}
		return c.tierCfg.SnapPracticeMultiplier
	case models.KindUnlockQuiz, models.KindMockTest:
		return 0
	default:
		return 0
	}
}

// CompleteInput is spec.md §4.7 rule 3's input.
type CompleteInput struct {
	SessionID string
	QuizID    string // used as the snapshot key; when empty, no quiz snapshot is written
	Now       time.Time
}

// Complete implements spec.md §4.7 rule 3. Idempotent: a session
// already completed returns ALREADY_COMPLETED; a session another
// request is mid-completing returns IN_PROGRESS_BY_PEER.
func (c *Coordinator) Complete(ctx context.Context, in CompleteInput) (*models.User, error) {
	var sess models.Session
	err := c.db.RetryTransaction(ctx, c.sessCfg, "session_complete_claim", func(tx *gorm.DB) error {
		s, err := store.GetSession(ctx, tx, in.SessionID)
		if err != nil {
			return err
		}
		sess = *s
		switch sess.Status {
		case models.StatusCompleted:
			return apperr.New(apperr.StateConflict, "ALREADY_COMPLETED", "session already completed")
		case models.StatusCompleting:
			return apperr.New(apperr.StateConflict, "IN_PROGRESS_BY_PEER", "session completion already in progress")
		}
		sess.Status = models.StatusCompleting
		return tx.Save(&sess).Error
	})
	if err != nil {
		return nil, translateStoreErr(err, "claim completion failed")
	}

	accuracy := 0.0
	if sess.QuestionsAnswered > 0 {
		accuracy = float64(sess.CorrectCount) / float64(sess.QuestionsAnswered)
	}
	isQuiz := sess.Kind == models.KindDailyQuiz || sess.Kind == models.KindInitialAssessment

	var user *models.User
	var finalChapters []models.ChapterState
	err = c.db.RetryTransaction(ctx, c.sessCfg, "session_complete_finalize", func(tx *gorm.DB) error {
		chapters, err := store.ListChapterStates(ctx, tx, sess.UserID)
		if err != nil {
			return err
		}
		finalChapters = chapters

		writeIn := proficiency.WriteAtomicInput{
			UserID:                 sess.UserID,
			AttemptedDelta:         sess.QuestionsAnswered,
			CorrectDelta:           sess.CorrectCount,
			TimeSpentMinutesDelta:  float64(sess.TotalTimeSeconds) / 60.0,
			IncrementCompletedQuiz: isQuiz,
			Now:                    in.Now,
		}
		if isQuiz {
			writeIn.LearningPhaseThreshold = c.tierCfg.LearningPhaseQuizThreshold
			acc := accuracy
			writeIn.QuizAccuracy = &acc
			writeIn.RecoveryLowScoreThreshold = c.tierCfg.RecoveryQuizLowScoreThreshold
		}
		if sess.Kind == models.KindDailyQuiz {
			writeIn.IncrementCurrentDay = true
		}
		if sess.Kind == models.KindChapterPractice {
			if chapterKey, ok := sess.Metadata["chapter_key"].(string); ok {
				writeIn.ChapterPracticeKey = chapterKey
			}
		}

		u, err := proficiency.WriteAtomic(ctx, tx, writeIn)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.New(apperr.NotFound, "USER_NOT_FOUND", "user not found")
			}
			return err
		}
		user = u

		sess.Status = models.StatusCompleted
		return tx.Save(&sess).Error
	})
	if err != nil {
		// Per spec.md §4.7: a missing user leaves the session in
		// completing, recoverable by a follow-up Complete call.
		return nil, translateStoreErr(err, "finalize completion failed")
	}

	if c.emitter != nil {
		_ = c.emitter.Publish(ctx, events.TypeSessionCompleted, sess.UserID, map[string]any{
			"session_id":         sess.SessionID,
			"kind":               sess.Kind,
			"questions_answered": sess.QuestionsAnswered,
			"correct_count":      sess.CorrectCount,
			"accuracy":           accuracy,
		})
	}

	if c.snapshot != nil {
		perf := map[string]any{
			"accuracy":           accuracy,
			"questions_answered": sess.QuestionsAnswered,
			"correct_count":      sess.CorrectCount,
			"total_time_seconds": sess.TotalTimeSeconds,
		}
		_ = c.snapshot.WriteQuizSnapshot(ctx, QuizSnapshotInput{
			UserID:          sess.UserID,
			QuizID:          in.QuizID,
			User:            *user,
			ChapterUpdates:  finalChapters,
			QuizPerformance: perf,
			Now:             in.Now,
		})
	}

	return user, nil
}

// Invalidate implements spec.md §4.7 rule 5: mark a session
// invalidated with a reason tag when its questions fail validation or
// its count exceeds the tier's current per-chapter ceiling.
func (c *Coordinator) Invalidate(ctx context.Context, sessionID, reason string) error {
	err := c.db.RetryTransaction(ctx, c.sessCfg, "session_invalidate", func(tx *gorm.DB) error {
		s, err := store.GetSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if s.IsTerminal() {
			return nil
		}
		s.Status = models.StatusInvalidated
		s.InvalidationReason = reason
		return tx.Save(s).Error
	})
	return translateStoreErr(err, "invalidate session failed")
}

// Abandon marks a live session abandoned by explicit caller request
// (the state machine's [abandon] edge — not triggered internally).
func (c *Coordinator) Abandon(ctx context.Context, sessionID string) error {
	err := c.db.RetryTransaction(ctx, c.sessCfg, "session_abandon", func(tx *gorm.DB) error {
		s, err := store.GetSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if s.IsTerminal() {
			return nil
		}
		s.Status = models.StatusAbandoned
		return tx.Save(s).Error
	})
	return translateStoreErr(err, "abandon session failed")
}

func translateStoreErr(err error, message string) error {
	if err == nil {
		return nil
	}
	if apperr.IsDomain(err) {
		return err
	}
	if errors.Is(err, database.ErrTransient) {
		return apperr.Wrap(apperr.Transient, "", message, err)
	}
	return apperr.Wrap(apperr.Fatal, "", message, err)
}
