package models

import "gorm.io/gorm"

// QuestionType mirrors spec.md §3 Question.question_type.
type QuestionType string

const (
	QuestionMCQSingle QuestionType = "mcq_single"
	QuestionNumerical QuestionType = "numerical"
)

// Question is an immutable catalog entry (spec.md §3). The ALE never
// mutates a Question row; it is seeded and updated only by the
// (out-of-scope) content-authoring system.
type Question struct {
	QuestionID           string       `gorm:"primaryKey;column:question_id;type:varchar(64)" json:"question_id"`
	Subject              string       `gorm:"column:subject;type:varchar(32);not null;index" json:"subject"`
	Chapter              string       `gorm:"column:chapter;type:varchar(128);not null" json:"chapter"`
	ChapterKey           string       `gorm:"column:chapter_key;type:varchar(160);not null;index" json:"chapter_key"`
	SubTopics            JSONMap      `gorm:"column:sub_topics" json:"sub_topics"`
	QuestionType         QuestionType `gorm:"column:question_type;type:varchar(20);not null" json:"question_type"`
	CorrectAnswer        string       `gorm:"column:correct_answer;type:varchar(256);not null" json:"correct_answer"`
	AnswerRangeMin       *float64     `gorm:"column:answer_range_min" json:"answer_range_min,omitempty"`
	AnswerRangeMax       *float64     `gorm:"column:answer_range_max" json:"answer_range_max,omitempty"`
	IRTDiscrimination    float64      `gorm:"column:irt_a;type:decimal(5,3);not null" json:"irt_a"`
	IRTDifficulty        float64      `gorm:"column:irt_b;type:decimal(5,3);not null" json:"irt_b"`
	IRTGuessing          float64      `gorm:"column:irt_c;type:decimal(5,3);not null" json:"irt_c"`
	IsInitialAssessment  bool         `gorm:"column:is_initial_assessment;not null;default:false;index" json:"is_initial_assessment"`
}

func (Question) TableName() string { return "questions" }

func (q *Question) BeforeSave(tx *gorm.DB) error {
	if q.IRTDiscrimination == 0 {
		q.IRTDiscrimination = 1.0
	}
	return nil
}

// SubTopicList extracts the sub_topics JSON map's keys in insertion
// order is not guaranteed by maps; callers needing ordered sub-topics
// should read the "list" key populated at seed time.
func (q Question) SubTopicList() []string {
	raw, ok := q.SubTopics["list"]
	if !ok {
		return nil
	}
	items, ok := raw.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// ScoreNumerical implements spec.md §4.1's edge case: "a numerical
// answer is scored correct iff within answer_range when supplied,
// else |student − correct| < 0.01".
func (q Question) ScoreNumerical(studentValue, correctValue float64) bool {
	if q.AnswerRangeMin != nil && q.AnswerRangeMax != nil {
		return studentValue >= *q.AnswerRangeMin && studentValue <= *q.AnswerRangeMax
	}
	diff := studentValue - correctValue
	if diff < 0 {
		diff = -diff
	}
	return diff < 0.01
}
