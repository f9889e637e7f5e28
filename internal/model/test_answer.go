package model

import "time"

// TestAnswer stores one student's response to one question within one attempt.
// Unique on (attempt_id, question_id): a resubmission updates the row.
type TestAnswer struct {
	BaseModel

	AttemptID  uint `gorm:"uniqueIndex:idx_answer_attempt_question;type:bigint unsigned" json:"attemptId"`
	QuestionID uint `gorm:"uniqueIndex:idx_answer_attempt_question;type:bigint unsigned" json:"questionId"`
	StudentID  uint `gorm:"index;type:bigint unsigned" json:"studentId"`

	Answer       string `gorm:"type:json" json:"answer"`
	IsCorrect    bool   `gorm:"default:false" json:"isCorrect"`
	PointsEarned int    `gorm:"default:0" json:"pointsEarned"`
	// Client-reported, kept for analytics only; never used for limits.
	TimeSpentSeconds int       `gorm:"default:0" json:"timeSpentSeconds"`
	AnsweredAt       time.Time `json:"answeredAt"`
}

func (TestAnswer) TableName() string {
	return "test_answers"
}
