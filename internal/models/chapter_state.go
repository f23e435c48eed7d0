package models

import "time"

// ChapterState is one row per (user, chapter_key), spec.md §3.
// Invariants enforced by callers, not the database: theta clamped to
// [-3,3] on every write, confidence_se in [0.15,0.6], accuracy equal
// to correct/attempts within 1 ulp.
type ChapterState struct {
	UserID       string    `gorm:"primaryKey;column:user_id;type:varchar(64)" json:"user_id"`
	ChapterKey   string    `gorm:"primaryKey;column:chapter_key;type:varchar(128)" json:"chapter_key"`
	Subject      string    `gorm:"column:subject;type:varchar(32);not null" json:"subject"`
	Theta        float64   `gorm:"column:theta;type:decimal(6,4);not null;default:0" json:"theta"`
	ConfidenceSE float64   `gorm:"column:confidence_se;type:decimal(6,4);not null;default:0.6" json:"confidence_se"`
	Attempts     int       `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Correct      int       `gorm:"column:correct;not null;default:0" json:"correct"`
	Percentile   int       `gorm:"column:percentile;not null;default:0" json:"percentile"`
	LastUpdated  time.Time `gorm:"column:last_updated;not null;default:now()" json:"last_updated"`
}

func (ChapterState) TableName() string { return "chapter_states" }

// Accuracy returns correct/attempts, 0 if attempts == 0 (spec.md §3).
func (c ChapterState) Accuracy() float64 {
	if c.Attempts == 0 {
		return 0
	}
	return float64(c.Correct) / float64(c.Attempts)
}
