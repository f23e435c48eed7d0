package models

import (
	"time"

	"gorm.io/gorm"
)

// AssessmentStatus mirrors spec.md §3 User.assessment.status.
type AssessmentStatus string

const (
	AssessmentNotStarted AssessmentStatus = "not_started"
	AssessmentProcessing AssessmentStatus = "processing"
	AssessmentCompleted  AssessmentStatus = "completed"
	AssessmentError      AssessmentStatus = "error"
)

// LearningPhase mirrors spec.md §3 User.learning_phase.
type LearningPhase string

const (
	PhaseExploration LearningPhase = "exploration"
	PhaseExploitation LearningPhase = "exploitation"
)

// User is the root aggregate. It exclusively owns its proficiency
// rollups, subtopic/subject accuracy, and cumulative counters
// (spec.md §3 Ownership); chapter-level state lives in ChapterState
// rows keyed by (user_id, chapter_key) so C4's rollupSubjects can
// query them directly rather than unpacking a JSONB map.
type User struct {
	UserID                  string           `gorm:"primaryKey;column:user_id;type:varchar(64)" json:"user_id"`
	OverallTheta            float64          `gorm:"column:overall_theta;type:decimal(6,4);not null;default:0" json:"overall_theta"`
	OverallPercentile       int              `gorm:"column:overall_percentile;not null;default:0" json:"overall_percentile"`
	ThetaBySubject          JSONMap `gorm:"column:theta_by_subject" json:"theta_by_subject"`
	SubtopicAccuracy        JSONMap `gorm:"column:subtopic_accuracy" json:"subtopic_accuracy"`
	SubjectAccuracy         JSONMap `gorm:"column:subject_accuracy" json:"subject_accuracy"`
	TotalQuestionsAttempted int              `gorm:"column:total_questions_attempted;not null;default:0" json:"total_questions_attempted"`
	TotalQuestionsCorrect   int              `gorm:"column:total_questions_correct;not null;default:0" json:"total_questions_correct"`
	TotalTimeSpentMinutes   float64          `gorm:"column:total_time_spent_minutes;not null;default:0" json:"total_time_spent_minutes"`
	CompletedQuizCount      int              `gorm:"column:completed_quiz_count;not null;default:0" json:"completed_quiz_count"`
	LearningPhase           LearningPhase    `gorm:"column:learning_phase;type:varchar(20);not null;default:'exploration'" json:"learning_phase"`
	CurrentDay              int              `gorm:"column:current_day;not null;default:1" json:"current_day"`
	AssessmentStatus        AssessmentStatus `gorm:"column:assessment_status;type:varchar(20);not null;default:'not_started'" json:"assessment_status"`
	AssessmentBaseline      JSONMap `gorm:"column:assessment_baseline" json:"assessment_baseline"`
	ChapterPracticeStats    JSONMap `gorm:"column:chapter_practice_stats" json:"chapter_practice_stats"`
	ConsecutiveLowScoreQuizzes int           `gorm:"column:consecutive_low_score_quizzes;not null;default:0" json:"consecutive_low_score_quizzes"`
	CreatedAt               time.Time        `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	UpdatedAt                time.Time       `gorm:"column:updated_at;not null;default:now()" json:"updated_at"`
}

func (User) TableName() string { return "users" }

func (u *User) BeforeCreate(tx *gorm.DB) error {
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now
	if u.LearningPhase == "" {
		u.LearningPhase = PhaseExploration
	}
	if u.AssessmentStatus == "" {
		u.AssessmentStatus = AssessmentNotStarted
	}
	if u.CurrentDay == 0 {
		u.CurrentDay = 1
	}
	return nil
}

func (u *User) BeforeUpdate(tx *gorm.DB) error {
	u.UpdatedAt = time.Now()
	return nil
}

// Accuracy returns the lifetime correct/attempted ratio, 0 if no
// attempts yet (spec.md §3 ChapterState.accuracy rule applied to the
// cumulative counters).
func (u *User) Accuracy() float64 {
	if u.TotalQuestionsAttempted == 0 {
		return 0
	}
	return float64(u.TotalQuestionsCorrect) / float64(u.TotalQuestionsAttempted)
}
