package repository

import (
	"errors"

	"edu_assessment_backend/internal/model"
	"edu_assessment_backend/internal/util"

	"gorm.io/gorm"
)

type TestRepository struct {
	DB *gorm.DB
}

func NewTestRepository(db *gorm.DB) *TestRepository {
	return &TestRepository{DB: db}
}

func (r *TestRepository) Create(test *model.Test) error {
	return r.DB.Create(test).Error
}

func (r *TestRepository) Update(test *model.Test) error {
	return r.DB.Save(test).Error
}

func (r *TestRepository) FindByID(id uint) (*model.Test, error) {
	var t model.Test
	if err := r.DB.First(&t, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrTestNotFound
		}
		return nil, err
	}
	return &t, nil
}

func (r *TestRepository) ListByCreator(creatorID uint, page, limit int) ([]model.Test, int64, error) {
	var tests []model.Test
	var total int64
	query := r.DB.Model(&model.Test{}).Where("created_by = ?", creatorID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	err := query.Order("created_at DESC").
		Offset((page - 1) * limit).Limit(limit).
		Find(&tests).Error
	return tests, total, err
}

// DeleteCascade removes a test together with its questions and linkages in a
// single transaction.
func (r *TestRepository) DeleteCascade(testID uint) error {
	return r.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("test_id = ?", testID).Delete(&model.TestQuestion{}).Error; err != nil {
			return err
		}
		if err := tx.Where("test_id = ?", testID).Delete(&model.TestLinkage{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Test{}, testID).Error
	})
}

func (r *TestRepository) GetQuestions(testID uint) ([]model.TestQuestion, error) {
	var questions []model.TestQuestion
	err := r.DB.Where("test_id = ?", testID).Order("`order` ASC, id ASC").Find(&questions).Error
	return questions, err
}

func (r *TestRepository) CreateQuestions(questions []model.TestQuestion) error {
	if len(questions) == 0 {
		return nil
	}
	return r.DB.Create(&questions).Error
}

func (r *TestRepository) DeleteQuestionsByTest(testID uint) error {
	return r.DB.Where("test_id = ?", testID).Delete(&model.TestQuestion{}).Error
}

func (r *TestRepository) FindQuestionByID(id uint) (*model.TestQuestion, error) {
	var q model.TestQuestion
	if err := r.DB.First(&q, id).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *TestRepository) CreateLinkage(linkage *model.TestLinkage) error {
	return r.DB.Create(linkage).Error
}

func (r *TestRepository) UpdateLinkage(linkage *model.TestLinkage) error {
	return r.DB.Save(linkage).Error
}

func (r *TestRepository) DeleteLinkage(id uint) error {
	return r.DB.Delete(&model.TestLinkage{}, id).Error
}

func (r *TestRepository) GetLinkage(id uint) (*model.TestLinkage, error) {
	var l model.TestLinkage
	if err := r.DB.First(&l, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, util.ErrLinkageNotFound
		}
		return nil, err
	}
	return &l, nil
}

func (r *TestRepository) ListLinkagesByTest(testID uint) ([]model.TestLinkage, error) {
	var linkages []model.TestLinkage
	err := r.DB.Where("test_id = ?", testID).Order("`order` ASC, id ASC").Find(&linkages).Error
	return linkages, err
}

func (r *TestRepository) ListLinkagesByCourse(courseID uint) ([]model.TestLinkage, error) {
	var linkages []model.TestLinkage
	err := r.DB.Where("course_id = ?", courseID).Order("`order` ASC, id ASC").Find(&linkages).Error
	return linkages, err
}
