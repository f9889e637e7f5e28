package model

import (
	"fmt"
	"time"
)

type AttemptStatus string

const (
	AttemptInProgress AttemptStatus = "in_progress"
	AttemptCompleted  AttemptStatus = "completed"
	AttemptAbandoned  AttemptStatus = "abandoned"
	AttemptTimedOut   AttemptStatus = "timed_out"
)

// attemptTransitions enumerates the legal status transitions. Terminal states
// have no outgoing edges.
var attemptTransitions = map[AttemptStatus][]AttemptStatus{
	AttemptInProgress: {AttemptCompleted, AttemptTimedOut, AttemptAbandoned},
}

func (s AttemptStatus) CanTransitionTo(next AttemptStatus) bool {
	for _, allowed := range attemptTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

func (s AttemptStatus) Terminal() bool {
	return len(attemptTransitions[s]) == 0
}

// swagger:model TestAttempt
type TestAttempt struct {
	BaseModel

	LinkageID uint `gorm:"index:idx_attempt_student_linkage;type:bigint unsigned" json:"linkageId"`
	TestID    uint `gorm:"index;type:bigint unsigned" json:"testId"`
	StudentID uint `gorm:"index:idx_attempt_student_linkage;type:bigint unsigned" json:"studentId"`

	AttemptNumber int           `gorm:"default:1" json:"attemptNumber"` // 1-based, monotonic per student+linkage
	Status        AttemptStatus `gorm:"type:enum('in_progress','completed','abandoned','timed_out');default:'in_progress'" json:"status"`

	// ShuffleSeed is fixed at start so a resume reproduces the exact question
	// and option ordering the student first saw.
	ShuffleSeed int64 `json:"-"`

	Score            int     `gorm:"default:0" json:"score"`
	MaxScore         int     `gorm:"default:0" json:"maxScore"`
	Percentage       float64 `gorm:"default:0" json:"percentage"`
	Passed           bool    `gorm:"default:false" json:"passed"`
	Accredited       bool    `gorm:"default:false" json:"accredited"`
	StartTime        time.Time  `json:"startTime"`
	EndTime          *time.Time `json:"endTime,omitempty"`
	TimeSpentSeconds int        `gorm:"default:0" json:"timeSpentSeconds"`
}

func (TestAttempt) TableName() string {
	return "test_attempts"
}

// TransitionTo moves the attempt to the next status, rejecting illegal
// transitions centrally instead of relying on callers to check first.
func (a *TestAttempt) TransitionTo(next AttemptStatus) error {
	if !a.Status.CanTransitionTo(next) {
		return fmt.Errorf("illegal attempt transition %s -> %s", a.Status, next)
	}
	a.Status = next
	return nil
}

// Deadline returns the instant the attempt times out, or zero if untimed.
func (a *TestAttempt) Deadline(test *Test) time.Time {
	limit := test.TimeLimitSeconds()
	if limit <= 0 {
		return time.Time{}
	}
	return a.StartTime.Add(time.Duration(limit) * time.Second)
}
