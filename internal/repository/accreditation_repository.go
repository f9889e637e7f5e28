package repository

import (
	"edu_assessment_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type AccreditationRepository struct {
	DB *gorm.DB
}

func NewAccreditationRepository(db *gorm.DB) *AccreditationRepository {
	return &AccreditationRepository{DB: db}
}

// Ensure inserts the accreditation unless one already exists for the
// (student, course, test) triple; a submit retry never duplicates it.
func (r *AccreditationRepository) Ensure(acc *model.Accreditation) error {
	return r.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "student_id"}, {Name: "course_id"}, {Name: "test_id"}},
		DoNothing: true,
	}).Create(acc).Error
}

func (r *AccreditationRepository) ListByStudent(studentID uint) ([]model.Accreditation, error) {
	var accs []model.Accreditation
	err := r.DB.Where("student_id = ?", studentID).Order("accredited_at DESC").Find(&accs).Error
	return accs, err
}

func (r *AccreditationRepository) ExistsForCourse(studentID, courseID, testID uint) (bool, error) {
	var count int64
	err := r.DB.Model(&model.Accreditation{}).
		Where("student_id = ? AND course_id = ? AND test_id = ?", studentID, courseID, testID).
		Count(&count).Error
	return count > 0, err
}
