package model

const (
	TestStatusDraft     = "draft"
	TestStatusPublished = "published"
	TestStatusArchived  = "archived"
)

const (
	TimeModeUnlimited = "unlimited"
	TimeModeTimed     = "timed"
)

// swagger:model Test
type Test struct {
	BaseModel

	CreatedBy   uint   `gorm:"index;type:bigint unsigned" json:"createdBy"`
	Title       string `gorm:"size:255;not null" json:"title"`
	Description string `gorm:"type:text" json:"description"`
	Status      string `gorm:"type:enum('draft','published','archived');default:'draft'" json:"status"`

	TimeMode         string `gorm:"type:enum('unlimited','timed');default:'unlimited'" json:"timeMode"`
	TimeLimitMinutes int    `gorm:"default:0" json:"timeLimitMinutes"`
	PassingScore     int    `gorm:"default:60" json:"passingScore"` // percentage threshold
	MaxAttempts      int    `gorm:"default:1" json:"maxAttempts"`

	ShuffleQuestions       bool `gorm:"default:false" json:"shuffleQuestions"`
	ShuffleOptions         bool `gorm:"default:false" json:"shuffleOptions"`
	ShowResultsImmediately bool `gorm:"default:true" json:"showResultsImmediately"`
	ShowCorrectAnswers     bool `gorm:"default:false" json:"showCorrectAnswers"`
	AllowReview            bool `gorm:"default:true" json:"allowReview"`

	IsActive bool `gorm:"default:true" json:"isActive"`
}

func (Test) TableName() string {
	return "tests"
}

// Consumable reports whether attempts may be built on this test at all,
// independent of any linkage window.
func (t *Test) Consumable() bool {
	return t.Status == TestStatusPublished && t.IsActive
}

// TimeLimitSeconds returns 0 for untimed tests.
func (t *Test) TimeLimitSeconds() int {
	if t.TimeMode != TimeModeTimed {
		return 0
	}
	return t.TimeLimitMinutes * 60
}
