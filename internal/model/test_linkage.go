package model

import "time"

// TestLinkage associates a test with a course, optionally scoped to a lesson
// or section. The linkage, not the test, carries the availability window: the
// same test can be linked into several courses with different windows.
//
// swagger:model TestLinkage
type TestLinkage struct {
	BaseModel

	TestID    uint  `gorm:"index;type:bigint unsigned" json:"testId"`
	CourseID  uint  `gorm:"index;type:bigint unsigned" json:"courseId"`
	LessonID  *uint `gorm:"type:bigint unsigned" json:"lessonId,omitempty"`
	SectionID *uint `gorm:"type:bigint unsigned" json:"sectionId,omitempty"`

	IsRequired     bool       `gorm:"default:false" json:"isRequired"` // required for course accreditation
	AvailableFrom  *time.Time `json:"availableFrom,omitempty"`
	AvailableUntil *time.Time `json:"availableUntil,omitempty"`
	Order          int        `gorm:"default:0" json:"order"`
}

func (TestLinkage) TableName() string {
	return "test_linkages"
}
