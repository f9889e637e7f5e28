package service

import (
	"edu_assessment_backend/internal/model"
	"edu_assessment_backend/internal/repository"
)

// AccreditationService exposes the pass records written at submit time.
type AccreditationService struct {
	Repo *repository.AccreditationRepository
}

func NewAccreditationService(repo *repository.AccreditationRepository) *AccreditationService {
	return &AccreditationService{Repo: repo}
}

func (s *AccreditationService) ListForStudent(studentID uint) ([]model.Accreditation, error) {
	return s.Repo.ListByStudent(studentID)
}

func (s *AccreditationService) HasAccreditation(studentID, courseID, testID uint) (bool, error) {
	return s.Repo.ExistsForCourse(studentID, courseID, testID)
}
