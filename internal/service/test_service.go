package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"edu_assessment_backend/internal/model"
	"edu_assessment_backend/internal/repository"
	"edu_assessment_backend/internal/util"
	"edu_assessment_backend/pkg/logger"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type TestService struct {
	TestRepo    *repository.TestRepository
	AttemptRepo *repository.AttemptRepository
	Storage     *StorageService
	Redis       *redis.Client
}

func NewTestService(testRepo *repository.TestRepository, attemptRepo *repository.AttemptRepository, storage *StorageService, rdb *redis.Client) *TestService {
	return &TestService{
		TestRepo:    testRepo,
		AttemptRepo: attemptRepo,
		Storage:     storage,
		Redis:       rdb,
	}
}

const (
	testCacheKeyPrefix = "test_detail:"
	testCacheTTL       = 10 * time.Minute
)

type QuestionInput struct {
	QuestionType     string          `json:"questionType" binding:"required"`
	QuestionText     string          `json:"questionText" binding:"required"`
	Options          json.RawMessage `json:"options"`
	CorrectAnswer    json.RawMessage `json:"correctAnswer"`
	Explanation      string          `json:"explanation"`
	Points           int             `json:"points"`
	TimeLimitSeconds int             `json:"timeLimitSeconds"`
	IsRequired       *bool           `json:"isRequired"`
}

type CreateTestRequest struct {
	Title                  string          `json:"title" binding:"required"`
	Description            string          `json:"description"`
	TimeMode               string          `json:"timeMode"`
	TimeLimitMinutes       int             `json:"timeLimitMinutes"`
	PassingScore           int             `json:"passingScore"`
	MaxAttempts            int             `json:"maxAttempts"`
	ShuffleQuestions       bool            `json:"shuffleQuestions"`
	ShuffleOptions         bool            `json:"shuffleOptions"`
	ShowResultsImmediately *bool           `json:"showResultsImmediately"`
	ShowCorrectAnswers     bool            `json:"showCorrectAnswers"`
	AllowReview            *bool           `json:"allowReview"`
	Questions              []QuestionInput `json:"questions"`
}

type UpdateTestRequest struct {
	Title                  *string          `json:"title"`
	Description            *string          `json:"description"`
	TimeMode               *string          `json:"timeMode"`
	TimeLimitMinutes       *int             `json:"timeLimitMinutes"`
	PassingScore           *int             `json:"passingScore"`
	MaxAttempts            *int             `json:"maxAttempts"`
	ShuffleQuestions       *bool            `json:"shuffleQuestions"`
	ShuffleOptions         *bool            `json:"shuffleOptions"`
	ShowResultsImmediately *bool            `json:"showResultsImmediately"`
	ShowCorrectAnswers     *bool            `json:"showCorrectAnswers"`
	AllowReview            *bool            `json:"allowReview"`
	Questions              *[]QuestionInput `json:"questions"`
}

type CreateLinkageRequest struct {
	CourseID       uint       `json:"courseId" binding:"required"`
	LessonID       *uint      `json:"lessonId"`
	SectionID      *uint      `json:"sectionId"`
	IsRequired     bool       `json:"isRequired"`
	AvailableFrom  *time.Time `json:"availableFrom"`
	AvailableUntil *time.Time `json:"availableUntil"`
	Order          int        `json:"order"`
}

type TestDetail struct {
	Test      *model.Test          `json:"test"`
	Questions []model.TestQuestion `json:"questions"`
	Linkages  []model.TestLinkage  `json:"linkages"`
}

// CreateTest 创建测验及其题目
func (s *TestService) CreateTest(creatorID uint, req *CreateTestRequest) (*model.Test, error) {
	test := &model.Test{
		CreatedBy:              creatorID,
		Title:                  req.Title,
		Description:            req.Description,
		Status:                 model.TestStatusDraft,
		TimeMode:               model.TimeModeUnlimited,
		TimeLimitMinutes:       req.TimeLimitMinutes,
		PassingScore:           60,
		MaxAttempts:            1,
		ShuffleQuestions:       req.ShuffleQuestions,
		ShuffleOptions:         req.ShuffleOptions,
		ShowCorrectAnswers:     req.ShowCorrectAnswers,
		ShowResultsImmediately: true,
		AllowReview:            true,
		IsActive:               true,
	}
	if req.TimeMode != "" {
		test.TimeMode = req.TimeMode
	}
	if req.PassingScore > 0 {
		test.PassingScore = req.PassingScore
	}
	if req.MaxAttempts > 0 {
		test.MaxAttempts = req.MaxAttempts
	}
	if req.ShowResultsImmediately != nil {
		test.ShowResultsImmediately = *req.ShowResultsImmediately
	}
	if req.AllowReview != nil {
		test.AllowReview = *req.AllowReview
	}

	if err := s.TestRepo.Create(test); err != nil {
		return nil, err
	}
	if len(req.Questions) > 0 {
		if err := s.TestRepo.CreateQuestions(buildQuestions(test.ID, req.Questions)); err != nil {
			return nil, err
		}
	}
	return test, nil
}

func buildQuestions(testID uint, inputs []QuestionInput) []model.TestQuestion {
	questions := make([]model.TestQuestion, 0, len(inputs))
	for i, in := range inputs {
		q := model.TestQuestion{
			TestID:           testID,
			QuestionType:     in.QuestionType,
			QuestionText:     in.QuestionText,
			Options:          string(in.Options),
			CorrectAnswer:    string(in.CorrectAnswer),
			Explanation:      in.Explanation,
			Points:           in.Points,
			TimeLimitSeconds: in.TimeLimitSeconds,
			Order:            i + 1,
			IsRequired:       true,
		}
		if in.IsRequired != nil {
			q.IsRequired = *in.IsRequired
		}
		questions = append(questions, q)
	}
	return questions
}

// GetTestDetail 获取测验详情，优先走缓存
func (s *TestService) GetTestDetail(ctx context.Context, testID uint) (*TestDetail, error) {
	cacheKey := testCacheKeyPrefix + strconv.FormatUint(uint64(testID), 10)
	if s.Redis != nil {
		if cached, err := s.Redis.Get(ctx, cacheKey).Result(); err == nil {
			var detail TestDetail
			if err := json.Unmarshal([]byte(cached), &detail); err == nil {
				return &detail, nil
			}
		}
	}

	test, err := s.TestRepo.FindByID(testID)
	if err != nil {
		return nil, err
	}
	questions, err := s.TestRepo.GetQuestions(testID)
	if err != nil {
		return nil, err
	}
	linkages, err := s.TestRepo.ListLinkagesByTest(testID)
	if err != nil {
		return nil, err
	}

	detail := &TestDetail{Test: test, Questions: questions, Linkages: linkages}
	if s.Redis != nil {
		if data, err := json.Marshal(detail); err == nil {
			s.Redis.Set(ctx, cacheKey, data, testCacheTTL)
		}
	}
	return detail, nil
}

func (s *TestService) invalidateCache(ctx context.Context, testID uint) {
	if s.Redis == nil {
		return
	}
	if err := s.Redis.Del(ctx, testCacheKeyPrefix+strconv.FormatUint(uint64(testID), 10)).Err(); err != nil {
		logger.Log.Warn("failed to invalidate test cache", zap.Uint("testId", testID), zap.Error(err))
	}
}

// UpdateTest 更新测验；题目集合是整体替换
func (s *TestService) UpdateTest(ctx context.Context, userID, testID uint, req *UpdateTestRequest) (*model.Test, error) {
	test, err := s.mustOwn(userID, testID)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		test.Title = *req.Title
	}
	if req.Description != nil {
		test.Description = *req.Description
	}
	if req.TimeMode != nil {
		test.TimeMode = *req.TimeMode
	}
	if req.TimeLimitMinutes != nil {
		test.TimeLimitMinutes = *req.TimeLimitMinutes
	}
	if req.PassingScore != nil {
		test.PassingScore = *req.PassingScore
	}
	if req.MaxAttempts != nil {
		test.MaxAttempts = *req.MaxAttempts
	}
	if req.ShuffleQuestions != nil {
		test.ShuffleQuestions = *req.ShuffleQuestions
	}
	if req.ShuffleOptions != nil {
		test.ShuffleOptions = *req.ShuffleOptions
	}
	if req.ShowResultsImmediately != nil {
		test.ShowResultsImmediately = *req.ShowResultsImmediately
	}
	if req.ShowCorrectAnswers != nil {
		test.ShowCorrectAnswers = *req.ShowCorrectAnswers
	}
	if req.AllowReview != nil {
		test.AllowReview = *req.AllowReview
	}

	if err := s.TestRepo.Update(test); err != nil {
		return nil, err
	}

	if req.Questions != nil {
		if err := s.TestRepo.DeleteQuestionsByTest(testID); err != nil {
			return nil, err
		}
		if len(*req.Questions) > 0 {
			if err := s.TestRepo.CreateQuestions(buildQuestions(testID, *req.Questions)); err != nil {
				return nil, err
			}
		}
	}

	s.invalidateCache(ctx, testID)
	return test, nil
}

// PublishTest moves a draft to published so linkages can start serving
// attempts.
func (s *TestService) PublishTest(ctx context.Context, userID, testID uint) (*model.Test, error) {
	test, err := s.mustOwn(userID, testID)
	if err != nil {
		return nil, err
	}
	questions, err := s.TestRepo.GetQuestions(testID)
	if err != nil {
		return nil, err
	}
	if len(questions) == 0 {
		return nil, fmt.Errorf("cannot publish a test with no questions")
	}

	test.Status = model.TestStatusPublished
	if err := s.TestRepo.Update(test); err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, testID)
	return test, nil
}

// ArchiveTest retires a test. In-flight attempts may still be submitted; new
// starts are refused.
func (s *TestService) ArchiveTest(ctx context.Context, userID, testID uint) (*model.Test, error) {
	test, err := s.mustOwn(userID, testID)
	if err != nil {
		return nil, err
	}
	test.Status = model.TestStatusArchived
	if err := s.TestRepo.Update(test); err != nil {
		return nil, err
	}
	s.invalidateCache(ctx, testID)
	return test, nil
}

func (s *TestService) DeleteTest(ctx context.Context, userID, testID uint) error {
	if _, err := s.mustOwn(userID, testID); err != nil {
		return err
	}
	if err := s.TestRepo.DeleteCascade(testID); err != nil {
		return err
	}
	s.invalidateCache(ctx, testID)
	return nil
}

func (s *TestService) ListTests(userID uint, page, limit int) ([]model.Test, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return s.TestRepo.ListByCreator(userID, page, limit)
}

func (s *TestService) CreateLinkage(userID, testID uint, req *CreateLinkageRequest) (*model.TestLinkage, error) {
	if _, err := s.mustOwn(userID, testID); err != nil {
		return nil, err
	}
	linkage := &model.TestLinkage{
		TestID:         testID,
		CourseID:       req.CourseID,
		LessonID:       req.LessonID,
		SectionID:      req.SectionID,
		IsRequired:     req.IsRequired,
		AvailableFrom:  req.AvailableFrom,
		AvailableUntil: req.AvailableUntil,
		Order:          req.Order,
	}
	if err := s.TestRepo.CreateLinkage(linkage); err != nil {
		return nil, err
	}
	return linkage, nil
}

func (s *TestService) DeleteLinkage(userID, linkageID uint) error {
	linkage, err := s.TestRepo.GetLinkage(linkageID)
	if err != nil {
		return err
	}
	if _, err := s.mustOwn(userID, linkage.TestID); err != nil {
		return err
	}
	return s.TestRepo.DeleteLinkage(linkageID)
}

func (s *TestService) ListLinkagesByCourse(courseID uint) ([]model.TestLinkage, error) {
	return s.TestRepo.ListLinkagesByCourse(courseID)
}

// GetTestStats 获取测验的答题统计
func (s *TestService) GetTestStats(userID, testID uint) (*repository.TestStats, error) {
	if _, err := s.mustOwn(userID, testID); err != nil {
		return nil, err
	}
	return s.AttemptRepo.StatsByTest(testID)
}

// ExportAttempts writes every finished attempt of a test to CSV and uploads
// it, returning the download URL.
func (s *TestService) ExportAttempts(ctx context.Context, userID, testID uint) (string, error) {
	if _, err := s.mustOwn(userID, testID); err != nil {
		return "", err
	}
	attempts, err := s.AttemptRepo.ListByTest(testID)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.Write([]string{"student_id", "attempt_number", "status", "score", "max_score", "percentage", "passed", "time_spent_seconds", "start_time", "end_time"})
	for _, a := range attempts {
		if a.Status == model.AttemptInProgress {
			continue
		}
		endTime := ""
		if a.EndTime != nil {
			endTime = a.EndTime.Format(time.RFC3339)
		}
		w.Write([]string{
			strconv.FormatUint(uint64(a.StudentID), 10),
			strconv.Itoa(a.AttemptNumber),
			string(a.Status),
			strconv.Itoa(a.Score),
			strconv.Itoa(a.MaxScore),
			strconv.FormatFloat(a.Percentage, 'f', 2, 64),
			strconv.FormatBool(a.Passed),
			strconv.Itoa(a.TimeSpentSeconds),
			a.StartTime.Format(time.RFC3339),
			endTime,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", err
	}

	filename := fmt.Sprintf("exports/test_%d_attempts_%s.csv", testID, time.Now().Format("20060102150405"))
	return s.Storage.Upload(ctx, filename, &buf, int64(buf.Len()), "text/csv")
}

// mustOwn loads a test and checks the caller created it. Admin checks happen
// at the middleware layer; here ownership is the rule.
func (s *TestService) mustOwn(userID, testID uint) (*model.Test, error) {
	test, err := s.TestRepo.FindByID(testID)
	if err != nil {
		return nil, err
	}
	if test.CreatedBy != userID {
		return nil, util.ErrPermissionDenied
	}
	return test, nil
}
