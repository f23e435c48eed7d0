package models

import "time"

// SessionKind enumerates spec.md §3's session kinds.
type SessionKind string

const (
	KindDailyQuiz         SessionKind = "daily_quiz"
	KindChapterPractice   SessionKind = "chapter_practice"
	KindUnlockQuiz        SessionKind = "unlock_quiz"
	KindSnapPractice      SessionKind = "snap_practice"
	KindMockTest          SessionKind = "mock_test"
	KindInitialAssessment SessionKind = "initial_assessment"
)

// SessionStatus enumerates the state machine in spec.md §4.7.
type SessionStatus string

const (
	StatusInProgress  SessionStatus = "in_progress"
	StatusCompleting  SessionStatus = "completing"
	StatusCompleted   SessionStatus = "completed"
	StatusExpired     SessionStatus = "expired"
	StatusInvalidated SessionStatus = "invalidated"
	StatusAbandoned   SessionStatus = "abandoned"
)

// Session is one active work unit (spec.md §3). Kind-specific
// metadata (chapter_key, template_id, learning_phase,
// is_recovery_quiz, invalidation reason) lives in Metadata rather than
// as separate nullable columns per kind, per the Design Notes guidance
// ("variant-specific metadata").
type Session struct {
	SessionID         string        `gorm:"primaryKey;column:session_id;type:varchar(64)" json:"session_id"`
	UserID            string        `gorm:"column:user_id;type:varchar(64);not null;index:idx_sessions_user_kind" json:"user_id"`
	Kind              SessionKind   `gorm:"column:kind;type:varchar(32);not null;index:idx_sessions_user_kind" json:"kind"`
	Status            SessionStatus `gorm:"column:status;type:varchar(20);not null;default:'in_progress'" json:"status"`
	CreatedAt         time.Time     `gorm:"column:created_at;not null;default:now()" json:"created_at"`
	ExpiresAt         *time.Time    `gorm:"column:expires_at" json:"expires_at,omitempty"`
	QuestionsAnswered int           `gorm:"column:questions_answered;not null;default:0" json:"questions_answered"`
	CorrectCount      int           `gorm:"column:correct_count;not null;default:0" json:"correct_count"`
	TotalTimeSeconds  int           `gorm:"column:total_time_seconds;not null;default:0" json:"total_time_seconds"`
	Metadata          JSONMap       `gorm:"column:metadata" json:"metadata"`
	InvalidationReason string       `gorm:"column:invalidation_reason;type:varchar(64)" json:"invalidation_reason,omitempty"`
}

func (Session) TableName() string { return "sessions" }

// Expired reports whether the session's TTL has elapsed as of now —
// spec.md §4.7 rule 4: expiry is observed lazily on next touch, never
// by a sweeper.
func (s Session) Expired(now time.Time) bool {
	return s.ExpiresAt != nil && now.After(*s.ExpiresAt)
}

// IsTerminal reports whether the session has left the live part of
// the state machine.
func (s Session) IsTerminal() bool {
	switch s.Status {
	case StatusCompleted, StatusExpired, StatusInvalidated, StatusAbandoned:
		return true
	default:
		return false
	}
}

// QuestionPosition is one ordered slot within a session (spec.md §3's
// "questions[] (ordered positions)"). The "answering" sentinel guards
// against concurrent submitters to the same position (spec.md §4.7
// rule 2, §5 cancellation semantics) and expires after
// config.SessionConfig.AnsweringSentinelTTL if the process dies
// mid-submission.
type QuestionPosition struct {
	SessionID        string     `gorm:"primaryKey;column:session_id;type:varchar(64)" json:"session_id"`
	Position         int        `gorm:"primaryKey;column:position" json:"position"`
	QuestionID       string     `gorm:"column:question_id;type:varchar(64);not null" json:"question_id"`
	SelectionReason  string     `gorm:"column:selection_reason;type:varchar(32)" json:"selection_reason"`
	Answered         bool       `gorm:"column:answered;not null;default:false" json:"answered"`
	Answering        bool       `gorm:"column:answering;not null;default:false" json:"answering"`
	AnsweringSince   *time.Time `gorm:"column:answering_since" json:"answering_since,omitempty"`
	StudentAnswer    string     `gorm:"column:student_answer" json:"student_answer,omitempty"`
	IsCorrect        *bool      `gorm:"column:is_correct" json:"is_correct,omitempty"`
	TimeTakenSeconds int        `gorm:"column:time_taken_seconds" json:"time_taken_seconds,omitempty"`
	AnsweredAt       *time.Time `gorm:"column:answered_at" json:"answered_at,omitempty"`
}

func (QuestionPosition) TableName() string { return "question_positions" }
