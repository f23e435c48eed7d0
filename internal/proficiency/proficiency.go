// Package proficiency is the Proficiency Store (C4): pure
// applyChapter/rollupSubjects functions plus the writeAtomic
// transaction, grounded on the teacher's state/irt_manager.go
// cache-then-db read-through shape, adapted into pure functions
// called from the session coordinator (C9) rather than a stateful
// manager — spec.md §4.2 requires applyChapter/rollupSubjects to be
// pure, caller-persisted functions.
package proficiency

import (
	"context"
	"time"

	"github.com/jeevibe/ale/internal/irt"
	"github.com/jeevibe/ale/internal/models"

	"gorm.io/gorm"
)

// Subjects the ALE covers, per spec.md §3.
const (
	SubjectPhysics     = "Physics"
	SubjectChemistry   = "Chemistry"
	SubjectMathematics = "Mathematics"
)

// ApplyChapter implements spec.md §4.2 applyChapter: the raw theta
// delta from irt.MapUpdate is scaled by multiplier before being added
// to the prior theta, then clamped. SE reduction only applies at
// multiplier 1.0; otherwise SE shrinks by ×0.98 per submission with
// the standard floor. Attempts/correct accumulate the actual response
// count regardless of multiplier. Pure: callers persist the result.
func ApplyChapter(prior models.ChapterState, responses []irt.Response, multiplier float64, now time.Time, params irt.Params) models.ChapterState {
	next := prior

	if len(responses) == 0 {
		return next
	}

	unscaled := irt.MapUpdate(prior.Theta, prior.ConfidenceSE, responses, params)
	rawDelta := unscaled.Theta - prior.Theta
	next.Theta = params.Bounds.ClampTheta(prior.Theta + rawDelta*multiplier)

	if multiplier >= 1.0 {
		next.ConfidenceSE = params.Bounds.ClampSE(unscaled.SE)
	} else {
		next.ConfidenceSE = params.Bounds.ClampSE(prior.ConfidenceSE * 0.98)
	}

	for _, r := range responses {
		next.Attempts++
		if r.Correct {
			next.Correct++
		}
	}

	next.Percentile = irt.Percentile(next.Theta)
	next.LastUpdated = now

	return next
}

// SubjectRollup is rollupSubjects' per-subject output row.
type SubjectRollup struct {
	Subject    string
	Theta      float64
	Percentile int
	Accuracy   float64
}

// RollupResult is rollupSubjects' full output, spec.md §4.2.
type RollupResult struct {
	BySubject    map[string]SubjectRollup
	OverallTheta float64
	OverallPercentile int
}

// RollupSubjects implements spec.md §4.2 rollupSubjects: subject theta
// is the attempt-weighted mean of its chapters' theta (chapters with
// attempts=0 excluded); overall theta is the attempt-weighted mean
// across Physics/Chemistry/Mathematics. Pure function.
func RollupSubjects(chapters []models.ChapterState) RollupResult {
	type acc struct {
		weightedTheta float64
		attempts      int
		correct       int
	}
	bySubject := map[string]*acc{}

	for _, ch := range chapters {
		if ch.Attempts == 0 {
			continue
		}
		a, ok := bySubject[ch.Subject]
		if !ok {
			a = &acc{}
			bySubject[ch.Subject] = a
		}
		a.weightedTheta += ch.Theta * float64(ch.Attempts)
		a.attempts += ch.Attempts
		a.correct += ch.Correct
	}

	result := RollupResult{BySubject: map[string]SubjectRollup{}}

	var overallWeighted float64
	var overallAttempts int

	for subject, a := range bySubject {
		theta := a.weightedTheta / float64(a.attempts)
		accuracy := 0.0
		if a.attempts > 0 {
			accuracy = float64(a.correct) / float64(a.attempts)
		}
		result.BySubject[subject] = SubjectRollup{
			Subject:    subject,
			Theta:      theta,
			Percentile: irt.Percentile(theta),
			Accuracy:   accuracy,
		}
		overallWeighted += theta * float64(a.attempts)
		overallAttempts += a.attempts
	}

	if overallAttempts > 0 {
		result.OverallTheta = overallWeighted / float64(overallAttempts)
	}
	result.OverallPercentile = irt.Percentile(result.OverallTheta)

	return result
}

// ApplySubTopicAccuracy folds one response's sub_topics into the
// user's subtopic accuracy map, spec.md §4.2: "each response carries
// zero or more sub_topics; for each, {correct, total} is incremented."
func ApplySubTopicAccuracy(existing models.JSONMap, subTopics []string, correct bool) models.JSONMap {
	if existing == nil {
		existing = models.JSONMap{}
	}
	for _, topic := range subTopics {
		raw, _ := existing[topic].(map[string]any)
		if raw == nil {
			raw = map[string]any{"correct": 0.0, "total": 0.0}
		}
		total, _ := raw["total"].(float64)
		correctCount, _ := raw["correct"].(float64)
		total++
		if correct {
			correctCount++
		}
		raw["total"] = total
		raw["correct"] = correctCount
		existing[topic] = raw
	}
	return existing
}

// applyChapterPracticeStats folds attempted/correct deltas into the
// per-chapter aggregate spec.md §4.7 rule 3 names, keeping a running
// attempts/correct/accuracy triple per chapter_key.
func applyChapterPracticeStats(existing models.JSONMap, chapterKey string, attemptedDelta, correctDelta int) models.JSONMap {
	if existing == nil {
		existing = models.JSONMap{}
	}
	raw, _ := existing[chapterKey].(map[string]any)
	if raw == nil {
		raw = map[string]any{"attempts": 0.0, "correct": 0.0}
	}
	attempts, _ := raw["attempts"].(float64)
	correct, _ := raw["correct"].(float64)
	attempts += float64(attemptedDelta)
	correct += float64(correctDelta)
	raw["attempts"] = attempts
	raw["correct"] = correct
	if attempts > 0 {
		raw["accuracy"] = correct / attempts
	} else {
		raw["accuracy"] = 0.0
	}
	existing[chapterKey] = raw
	return existing
}

// WriteAtomicInput bundles everything one writeAtomic call folds into
// the user document, spec.md §4.2/§4.7 rule 3.
type WriteAtomicInput struct {
	UserID              string
	UpdatedChapters      []models.ChapterState
	SubTopicDeltas       map[string][]bool // topic -> list of correctness outcomes to fold in
	AttemptedDelta       int
	CorrectDelta         int
	TimeSpentMinutesDelta float64
	IncrementCompletedQuiz bool
	Now                  time.Time

	// LearningPhaseThreshold, when > 0, flips the user's learning_phase
	// to exploitation once completed_quiz_count reaches it (spec.md
	// §4.7 rule 3: "flips to exploitation at count 14").
	LearningPhaseThreshold int

	// QuizAccuracy, when non-nil, is this quiz's accuracy, folded into
	// consecutive_low_score_quizzes against RecoveryLowScoreThreshold —
	// spec.md §4.4's recovery-quiz trigger.
	QuizAccuracy           *float64
	RecoveryLowScoreThreshold float64

	// ChapterPracticeKey, when non-empty, folds AttemptedDelta/CorrectDelta
	// into user.chapter_practice_stats[key] — spec.md §4.7 rule 3's
	// "feature-specific aggregate (e.g., chapter_practice_stats)".
	ChapterPracticeKey string

	// IncrementCurrentDay advances user.current_day once per completion,
	// spec.md §4.7 rule 3 — set for daily_quiz completions, the one
	// session kind current_day is meant to track.
	IncrementCurrentDay bool
}

// WriteAtomic implements spec.md §4.2 writeAtomic: a single
// transaction merging chapter deltas, subject rollup, overall
// theta/percentile, subtopic accuracy, and cumulative counters.
// Invariant: a session completion writes exactly once to the user
// document — callers must invoke this exactly once per completion.
func WriteAtomic(ctx context.Context, tx *gorm.DB, in WriteAtomicInput) (*models.User, error) {
	var user models.User
	if err := tx.WithContext(ctx).Where("user_id = ?", in.UserID).First(&user).Error; err != nil {
		return nil, err
	}

	for i := range in.UpdatedChapters {
		if err := tx.WithContext(ctx).Save(&in.UpdatedChapters[i]).Error; err != nil {
			return nil, err
		}
	}

	var allChapters []models.ChapterState
	if err := tx.WithContext(ctx).Where("user_id = ?", in.UserID).Find(&allChapters).Error; err != nil {
		return nil, err
	}

	rollup := RollupSubjects(allChapters)

	subjectMap := models.JSONMap{}
	for subject, r := range rollup.BySubject {
		subjectMap[subject] = map[string]any{
			"theta":      r.Theta,
			"percentile": r.Percentile,
			"accuracy":   r.Accuracy,
		}
	}
	user.ThetaBySubject = subjectMap
	user.OverallTheta = rollup.OverallTheta
	user.OverallPercentile = rollup.OverallPercentile

	for topic, outcomes := range in.SubTopicDeltas {
		for _, correct := range outcomes {
			user.SubtopicAccuracy = ApplySubTopicAccuracy(user.SubtopicAccuracy, []string{topic}, correct)
		}
	}

	user.TotalQuestionsAttempted += in.AttemptedDelta
	user.TotalQuestionsCorrect += in.CorrectDelta
	user.TotalTimeSpentMinutes += in.TimeSpentMinutesDelta
	if in.IncrementCompletedQuiz {
		user.CompletedQuizCount++
	}
	if in.LearningPhaseThreshold > 0 && user.CompletedQuizCount >= in.LearningPhaseThreshold {
		user.LearningPhase = models.PhaseExploitation
	}
	if in.QuizAccuracy != nil {
		if *in.QuizAccuracy < in.RecoveryLowScoreThreshold {
			user.ConsecutiveLowScoreQuizzes++
		} else {
			user.ConsecutiveLowScoreQuizzes = 0
		}
	}
	if in.ChapterPracticeKey != "" {
		user.ChapterPracticeStats = applyChapterPracticeStats(user.ChapterPracticeStats, in.ChapterPracticeKey, in.AttemptedDelta, in.CorrectDelta)
	}
	if in.IncrementCurrentDay {
		user.CurrentDay++
	}
	user.UpdatedAt = in.Now

	if err := tx.WithContext(ctx).Save(&user).Error; err != nil {
		return nil, err
	}

	return &user, nil
}
