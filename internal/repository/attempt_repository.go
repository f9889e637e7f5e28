package repository

import (
	"errors"

	"edu_assessment_backend/internal/model"
	"edu_assessment_backend/internal/util"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AttemptRepository struct {
	DB *gorm.DB
}

func NewAttemptRepository(db *gorm.DB) *AttemptRepository {
	return &AttemptRepository{DB: db}
}

// ClaimInProgress resolves the "one in_progress attempt per student+linkage"
// invariant atomically. It locks the student's attempt rows for the linkage,
// resumes an existing in_progress attempt when present, and otherwise checks
// the attempt limit and creates a fresh one built by newAttempt. Two
// concurrent starts therefore converge on the same attempt instead of
// creating two.
func (r *AttemptRepository) ClaimInProgress(studentID, linkageID uint, maxAttempts int, newAttempt func(attemptNumber int) *model.TestAttempt) (*model.TestAttempt, bool, error) {
	var attempt *model.TestAttempt
	resumed := false

	err := r.DB.Transaction(func(tx *gorm.DB) error {
		var existing model.TestAttempt
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("student_id = ? AND linkage_id = ? AND status = ?",
				studentID, linkageID, model.AttemptInProgress).
			First(&existing).Error
		if err == nil {
			attempt = &existing
			resumed = true
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		var count int64
		if err := tx.Model(&model.TestAttempt{}).
			Where("student_id = ? AND linkage_id = ?", studentID, linkageID).
			Count(&count).Error; err != nil {
			return err
		}
		if maxAttempts > 0 && int(count) >= maxAttempts {
			return util.ErrAttemptLimitReached
		}

		fresh := newAttempt(int(count) + 1)
		if err := tx.Create(fresh).Error; err != nil {
			return err
		}
		attempt = fresh
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return attempt, resumed, nil
}

func (r *AttemptRepository) FindByID(id uint) (*model.TestAttempt, error) {
	var a model.TestAttempt
	if err := r.DB.First(&a, id).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AttemptRepository) FindInProgress(studentID, linkageID uint) (*model.TestAttempt, error) {
	var a model.TestAttempt
	err := r.DB.Where("student_id = ? AND linkage_id = ? AND status = ?",
		studentID, linkageID, model.AttemptInProgress).First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrNoActiveAttempt
		}
		return nil, err
	}
	return &a, nil
}

// FindLatest returns the newest attempt for the pair regardless of status.
func (r *AttemptRepository) FindLatest(studentID, linkageID uint) (*model.TestAttempt, error) {
	var a model.TestAttempt
	err := r.DB.Where("student_id = ? AND linkage_id = ?", studentID, linkageID).
		Order("attempt_number DESC").First(&a).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrNoActiveAttempt
		}
		return nil, err
	}
	return &a, nil
}

// UpsertAnswer writes one answer row keyed on (attempt_id, question_id); a
// resubmission overwrites the previous value instead of duplicating.
func (r *AttemptRepository) UpsertAnswer(ans *model.TestAnswer) error {
	return r.upsertAnswers(r.DB, []model.TestAnswer{*ans})
}

func (r *AttemptRepository) upsertAnswers(tx *gorm.DB, answers []model.TestAnswer) error {
	if len(answers) == 0 {
		return nil
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "attempt_id"}, {Name: "question_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"answer", "is_correct", "points_earned", "time_spent_seconds", "answered_at",
		}),
	}).Create(&answers).Error
}

func (r *AttemptRepository) GetAnswers(attemptID uint) ([]model.TestAnswer, error) {
	var answers []model.TestAnswer
	err := r.DB.Where("attempt_id = ?", attemptID).Find(&answers).Error
	return answers, err
}

// FinalizeAttempt persists the graded answers and the terminal attempt state
// in one transaction so a half-written submit can never be observed.
func (r *AttemptRepository) FinalizeAttempt(attempt *model.TestAttempt, answers []model.TestAnswer) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := r.upsertAnswers(tx, answers); err != nil {
			return err
		}
		return tx.Save(attempt).Error
	})
}

// FinalizeBatch applies many terminal attempts and their regraded answers in
// a single transaction; used by the stale-attempt sweep.
func (r *AttemptRepository) FinalizeBatch(attempts []*model.TestAttempt, answers []model.TestAnswer) error {
	if len(attempts) == 0 {
		return nil
	}
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := r.upsertAnswers(tx, answers); err != nil {
			return err
		}
		for _, a := range attempts {
			if err := tx.Save(a).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *AttemptRepository) ListInProgress() ([]model.TestAttempt, error) {
	var attempts []model.TestAttempt
	err := r.DB.Where("status = ?", model.AttemptInProgress).Find(&attempts).Error
	return attempts, err
}

func (r *AttemptRepository) ListByTest(testID uint) ([]model.TestAttempt, error) {
	var attempts []model.TestAttempt
	err := r.DB.Where("test_id = ?", testID).
		Order("student_id ASC, attempt_number ASC").Find(&attempts).Error
	return attempts, err
}

// TestStats aggregates attempt figures for one test.
type TestStats struct {
	TotalAttempts int64   `json:"totalAttempts"`
	AvgPercentage float64 `json:"avgPercentage"`
	AvgTime       float64 `json:"avgTimeSeconds"`
	PassRate      float64 `json:"passRate"`
}

func (r *AttemptRepository) StatsByTest(testID uint) (*TestStats, error) {
	// Session gives each finisher a fresh statement instead of piling
	// conditions onto a shared chain
	query := r.DB.Model(&model.TestAttempt{}).
		Where("test_id = ? AND status <> ?", testID, model.AttemptInProgress).
		Session(&gorm.Session{})

	stats := &TestStats{}
	if err := query.Count(&stats.TotalAttempts).Error; err != nil {
		return nil, err
	}
	if stats.TotalAttempts == 0 {
		return stats, nil
	}
	if err := query.Select("AVG(percentage)").Scan(&stats.AvgPercentage).Error; err != nil {
		return nil, err
	}
	if err := query.Select("AVG(time_spent_seconds)").Scan(&stats.AvgTime).Error; err != nil {
		return nil, err
	}
	var passCount int64
	if err := query.Where("passed = ?", true).Count(&passCount).Error; err != nil {
		return nil, err
	}
	stats.PassRate = float64(passCount) / float64(stats.TotalAttempts)
	return stats, nil
}
