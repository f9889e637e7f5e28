package model

const (
	QuestionSingleChoice   = "single_choice"
	QuestionMultipleAnswer = "multiple_answer"
	QuestionTrueFalse      = "true_false"
	QuestionOpenEnded      = "open_ended"
	QuestionPoll           = "poll"
	QuestionReorder        = "reorder"
	QuestionSequencing     = "sequencing"
	QuestionMatch          = "match"
	QuestionDragDrop       = "drag_drop"
)

// swagger:model TestQuestion
type TestQuestion struct {
	BaseModel

	TestID       uint   `gorm:"index;type:bigint unsigned" json:"testId"`
	QuestionType string `gorm:"size:50" json:"questionType"`
	QuestionText string `gorm:"type:text" json:"questionText"`
	// Options is a JSON array of {id, text} entries, or a {left, right}
	// pairing structure for match/drag_drop questions.
	Options string `gorm:"type:json" json:"options"`
	// CorrectAnswer shape depends on the type: a scalar, an array of option
	// ids, an ordered sequence, or a left->right id mapping.
	CorrectAnswer    string `gorm:"type:json" json:"correctAnswer"`
	Explanation      string `gorm:"type:text" json:"explanation"`
	Points           int    `gorm:"default:0" json:"points"`
	TimeLimitSeconds int    `gorm:"default:0" json:"timeLimitSeconds"`
	Order            int    `gorm:"default:0" json:"order"`
	IsRequired       bool   `gorm:"default:true" json:"isRequired"`
}

func (TestQuestion) TableName() string {
	return "test_questions"
}

// Scorable reports whether the question contributes to score and maxScore.
// Polls exist for data collection, open-ended answers are not auto-graded.
func (q *TestQuestion) Scorable() bool {
	return q.QuestionType != QuestionPoll && q.QuestionType != QuestionOpenEnded
}
