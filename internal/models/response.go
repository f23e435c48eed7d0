package models

import "time"

// Response is written exactly once per (session_id, question_id) via
// the answer-submission transaction (spec.md §3, §4.7 rule 2).
type Response struct {
	SessionID        string    `gorm:"primaryKey;column:session_id;type:varchar(64)" json:"session_id"`
	QuestionID        string    `gorm:"primaryKey;column:question_id;type:varchar(64)" json:"question_id"`
	UserID           string    `gorm:"column:user_id;type:varchar(64);not null;index" json:"user_id"`
	StudentAnswer    string    `gorm:"column:student_answer" json:"student_answer"`
	CorrectAnswer    string    `gorm:"column:correct_answer" json:"correct_answer"`
	IsCorrect        bool      `gorm:"column:is_correct;not null" json:"is_correct"`
	TimeTakenSeconds int       `gorm:"column:time_taken_seconds;not null;default:0" json:"time_taken_seconds"`
	QuestionIRTParams JSONMap  `gorm:"column:question_irt_params" json:"question_irt_params"`
	ChapterKey       string    `gorm:"column:chapter_key;type:varchar(160);not null;index" json:"chapter_key"`
	SubTopics        JSONMap   `gorm:"column:sub_topics" json:"sub_topics"`
	ThetaDelta       float64   `gorm:"column:theta_delta;type:decimal(6,4);not null;default:0" json:"theta_delta"`
	AnsweredAt       time.Time `gorm:"column:answered_at;not null;default:now()" json:"answered_at"`
}

func (Response) TableName() string { return "responses" }

// QuotaCounter is per (user_id, feature, period_key), spec.md §3.
type QuotaCounter struct {
	UserID    string    `gorm:"primaryKey;column:user_id;type:varchar(64)" json:"user_id"`
	Feature   string    `gorm:"primaryKey;column:feature;type:varchar(32)" json:"feature"`
	PeriodKey string    `gorm:"primaryKey;column:period_key;type:varchar(16)" json:"period_key"`
	Used      int       `gorm:"column:used;not null;default:0" json:"used"`
	Limit     int       `gorm:"column:quota_limit;not null" json:"limit"`
	ResetsAt  time.Time `gorm:"column:resets_at;not null" json:"resets_at"`
}

func (QuotaCounter) TableName() string { return "quota_counters" }

// ReviewInterval is per (user_id, question_id), spec.md §3. IntervalDays
// always holds one of the fixed ladder values {1,3,7,14,30}.
type ReviewInterval struct {
	UserID        string    `gorm:"primaryKey;column:user_id;type:varchar(64)" json:"user_id"`
	QuestionID    string    `gorm:"primaryKey;column:question_id;type:varchar(64)" json:"question_id"`
	IntervalDays  int       `gorm:"column:interval_days;not null;default:1" json:"interval_days"`
	NextReview    time.Time `gorm:"column:next_review;not null" json:"next_review"`
	TimesReviewed int       `gorm:"column:times_reviewed;not null;default:0" json:"times_reviewed"`
}

func (ReviewInterval) TableName() string { return "review_intervals" }

// ThetaSnapshot is an immutable post-completion record for timeline
// queries (spec.md §3, C10). Once written it is never updated — only
// inserted (per-quiz key) or upserted on the week key (weekly sweep,
// C11, which is explicitly idempotent "a second run in the same week
// overwrites").
type ThetaSnapshot struct {
	ID                string    `gorm:"primaryKey;column:id;type:varchar(80)" json:"id"`
	UserID            string    `gorm:"column:user_id;type:varchar(64);not null;index:idx_snapshots_user_time" json:"user_id"`
	QuizID            string    `gorm:"column:quiz_id;type:varchar(64)" json:"quiz_id,omitempty"`
	WeekKey           string    `gorm:"column:week_key;type:varchar(16)" json:"week_key,omitempty"`
	ThetaByChapter    JSONMap   `gorm:"column:theta_by_chapter" json:"theta_by_chapter"`
	ThetaBySubject    JSONMap   `gorm:"column:theta_by_subject" json:"theta_by_subject"`
	OverallTheta      float64   `gorm:"column:overall_theta;type:decimal(6,4);not null" json:"overall_theta"`
	OverallPercentile int       `gorm:"column:overall_percentile;not null" json:"overall_percentile"`
	QuizPerformance   JSONMap   `gorm:"column:quiz_performance" json:"quiz_performance"`
	ChapterUpdates    JSONMap   `gorm:"column:chapter_updates" json:"chapter_updates"`
	QuizNumber        int       `gorm:"column:quiz_number;not null;default:0" json:"quiz_number"`
	CreatedAt         time.Time `gorm:"column:created_at;not null;default:now();index:idx_snapshots_user_time" json:"created_at"`
}

func (ThetaSnapshot) TableName() string { return "theta_snapshots" }
