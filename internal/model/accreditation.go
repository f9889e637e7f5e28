package model

import "time"

// Accreditation records that a student has met a test's passing bar for a
// course. Emitted at submit time and consumed downstream by certificate
// issuance; unique per (student, course, test).
type Accreditation struct {
	BaseModel

	StudentID uint `gorm:"uniqueIndex:idx_accreditation_unique;type:bigint unsigned" json:"studentId"`
	CourseID  uint `gorm:"uniqueIndex:idx_accreditation_unique;type:bigint unsigned" json:"courseId"`
	TestID    uint `gorm:"uniqueIndex:idx_accreditation_unique;type:bigint unsigned" json:"testId"`
	AttemptID uint `gorm:"index;type:bigint unsigned" json:"attemptId"`

	CertificateID string    `gorm:"type:varchar(36);uniqueIndex" json:"certificateId"`
	Percentage    float64   `json:"percentage"`
	AccreditedAt  time.Time `json:"accreditedAt"`
}

func (Accreditation) TableName() string {
	return "accreditations"
}
