package service

import (
	"encoding/json"
	"errors"
	"time"

	"edu_assessment_backend/internal/grading"
	"edu_assessment_backend/internal/model"
	"edu_assessment_backend/internal/util"
	"edu_assessment_backend/pkg/logger"
	"edu_assessment_backend/pkg/monitoring"

	"go.uber.org/zap"
)

// TestStore is the narrow read view the attempt engine needs over test data.
type TestStore interface {
	FindByID(id uint) (*model.Test, error)
	GetQuestions(testID uint) ([]model.TestQuestion, error)
	GetLinkage(id uint) (*model.TestLinkage, error)
}

// AttemptStore persists attempts and answers. ClaimInProgress must be atomic:
// two concurrent starts for the same (student, linkage) converge on one
// attempt.
type AttemptStore interface {
	ClaimInProgress(studentID, linkageID uint, maxAttempts int, newAttempt func(attemptNumber int) *model.TestAttempt) (*model.TestAttempt, bool, error)
	FindInProgress(studentID, linkageID uint) (*model.TestAttempt, error)
	FindLatest(studentID, linkageID uint) (*model.TestAttempt, error)
	UpsertAnswer(ans *model.TestAnswer) error
	GetAnswers(attemptID uint) ([]model.TestAnswer, error)
	FinalizeAttempt(attempt *model.TestAttempt, answers []model.TestAnswer) error
	FinalizeBatch(attempts []*model.TestAttempt, answers []model.TestAnswer) error
	ListInProgress() ([]model.TestAttempt, error)
}

// AccreditationStore receives accreditation records for downstream
// certificate issuance.
type AccreditationStore interface {
	Ensure(acc *model.Accreditation) error
}

type AttemptService struct {
	Tests          TestStore
	Attempts       AttemptStore
	Accreditations AccreditationStore

	// Now is an injectable clock; tests pin it.
	Now func() time.Time
}

func NewAttemptService(tests TestStore, attempts AttemptStore, accreditations AccreditationStore) *AttemptService {
	return &AttemptService{
		Tests:          tests,
		Attempts:       attempts,
		Accreditations: accreditations,
		Now:            time.Now,
	}
}

// TestSummary is the test as shown to a student taking it; no grading
// metadata.
type TestSummary struct {
	ID                     uint   `json:"id"`
	Title                  string `json:"title"`
	Description            string `json:"description"`
	TimeMode               string `json:"timeMode"`
	TimeLimitMinutes       int    `json:"timeLimitMinutes"`
	PassingScore           int    `json:"passingScore"`
	MaxAttempts            int    `json:"maxAttempts"`
	ShowResultsImmediately bool   `json:"showResultsImmediately"`
	AllowReview            bool   `json:"allowReview"`
}

// QuestionView strips correctAnswer and explanation; that omission is the
// anti-cheating invariant of Start.
type QuestionView struct {
	ID               uint            `json:"id"`
	QuestionType     string          `json:"questionType"`
	QuestionText     string          `json:"questionText"`
	Options          json.RawMessage `json:"options,omitempty"`
	Points           int             `json:"points"`
	TimeLimitSeconds int             `json:"timeLimitSeconds,omitempty"`
	Order            int             `json:"order"`
	IsRequired       bool            `json:"isRequired"`
}

type AnswerView struct {
	QuestionID       uint            `json:"questionId"`
	Answer           json.RawMessage `json:"answer"`
	TimeSpentSeconds int             `json:"timeSpentSeconds,omitempty"`
	AnsweredAt       time.Time       `json:"answeredAt"`
}

type StartAttemptResult struct {
	Attempt              *model.TestAttempt `json:"attempt"`
	Test                 TestSummary        `json:"test"`
	Questions            []QuestionView     `json:"questions"`
	SavedAnswers         []AnswerView       `json:"savedAnswers"`
	RemainingTimeSeconds *int               `json:"remainingTimeSeconds"`
}

type SubmittedAnswer struct {
	QuestionID       uint            `json:"questionId" binding:"required"`
	Answer           json.RawMessage `json:"answer"`
	TimeSpentSeconds int             `json:"timeSpentSeconds"`
}

type ResultStats struct {
	TotalQuestions   int     `json:"totalQuestions"`
	CorrectAnswers   int     `json:"correctAnswers"`
	IncorrectAnswers int     `json:"incorrectAnswers"`
	Unanswered       int     `json:"unanswered"`
	Score            int     `json:"score"`
	MaxScore         int     `json:"maxScore"`
	Percentage       float64 `json:"percentage"`
	Passed           bool    `json:"passed"`
	TimeSpent        int     `json:"timeSpent"`
}

type QuestionReview struct {
	QuestionID      uint            `json:"questionId"`
	QuestionType    string          `json:"questionType"`
	QuestionText    string          `json:"questionText"`
	SubmittedAnswer json.RawMessage `json:"submittedAnswer,omitempty"`
	CorrectAnswer   json.RawMessage `json:"correctAnswer"`
	Explanation     string          `json:"explanation,omitempty"`
	IsCorrect       bool            `json:"isCorrect"`
	PointsEarned    int             `json:"pointsEarned"`
}

type SubmitAttemptResult struct {
	Attempt       *model.TestAttempt `json:"attempt"`
	Results       *ResultStats       `json:"results,omitempty"`
	AnswersReview []QuestionReview   `json:"answersReview,omitempty"`
}

// checkWindow evaluates the linkage availability window. No side effects.
func checkWindow(l *model.TestLinkage, now time.Time) error {
	if l.AvailableFrom != nil && now.Before(*l.AvailableFrom) {
		return util.ErrNotYetOpen
	}
	if l.AvailableUntil != nil && now.After(*l.AvailableUntil) {
		return util.ErrWindowClosed
	}
	return nil
}

// loadContext resolves linkage -> test -> questions. requireOpen additionally
// gates on published/active: a draft or archived test cannot accept new
// attempts, but an attempt already in flight may still be submitted.
func (s *AttemptService) loadContext(linkageID uint, requireOpen bool) (*model.TestLinkage, *model.Test, []model.TestQuestion, error) {
	linkage, err := s.Tests.GetLinkage(linkageID)
	if err != nil {
		return nil, nil, nil, err
	}
	test, err := s.Tests.FindByID(linkage.TestID)
	if err != nil {
		return nil, nil, nil, err
	}
	if requireOpen && !test.Consumable() {
		return nil, nil, nil, util.ErrTestNotFound
	}
	questions, err := s.Tests.GetQuestions(test.ID)
	if err != nil {
		return nil, nil, nil, err
	}
	return linkage, test, questions, nil
}

// StartAttempt 开始或恢复一次测验尝试
func (s *AttemptService) StartAttempt(studentID, linkageID uint) (*StartAttemptResult, error) {
	now := s.Now()
	linkage, test, questions, err := s.loadContext(linkageID, true)
	if err != nil {
		return nil, err
	}
	if err := checkWindow(linkage, now); err != nil {
		return nil, err
	}

	attempt, resumed, err := s.Attempts.ClaimInProgress(studentID, linkageID, test.MaxAttempts,
		func(attemptNumber int) *model.TestAttempt {
			return &model.TestAttempt{
				LinkageID:     linkageID,
				TestID:        test.ID,
				StudentID:     studentID,
				AttemptNumber: attemptNumber,
				Status:        model.AttemptInProgress,
				ShuffleSeed:   grading.NewSeed(),
				StartTime:     now,
			}
		})
	if err != nil {
		return nil, err
	}

	saved := []AnswerView{}
	if resumed {
		answers, err := s.Attempts.GetAnswers(attempt.ID)
		if err != nil {
			return nil, err
		}
		for _, a := range answers {
			saved = append(saved, AnswerView{
				QuestionID:       a.QuestionID,
				Answer:           json.RawMessage(a.Answer),
				TimeSpentSeconds: a.TimeSpentSeconds,
				AnsweredAt:       a.AnsweredAt,
			})
		}
	} else {
		monitoring.AttemptsStarted.Inc()
	}

	return &StartAttemptResult{
		Attempt: attempt,
		Test: TestSummary{
			ID:                     test.ID,
			Title:                  test.Title,
			Description:            test.Description,
			TimeMode:               test.TimeMode,
			TimeLimitMinutes:       test.TimeLimitMinutes,
			PassingScore:           test.PassingScore,
			MaxAttempts:            test.MaxAttempts,
			ShowResultsImmediately: test.ShowResultsImmediately,
			AllowReview:            test.AllowReview,
		},
		Questions:            buildQuestionViews(test, attempt, questions),
		SavedAnswers:         saved,
		RemainingTimeSeconds: remainingSeconds(test, attempt, now),
	}, nil
}

// buildQuestionViews orders and strips the question set for delivery. The
// ordering is derived from the persisted shuffle seed, never re-rolled, so a
// resume reproduces exactly what the student first saw.
func buildQuestionViews(test *model.Test, attempt *model.TestAttempt, questions []model.TestQuestion) []QuestionView {
	byID := make(map[uint]*model.TestQuestion, len(questions))
	ids := make([]uint, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
		ids[i] = questions[i].ID
	}
	if test.ShuffleQuestions {
		ids = grading.QuestionOrder(attempt.ShuffleSeed, ids)
	}

	views := make([]QuestionView, 0, len(ids))
	for pos, id := range ids {
		q := byID[id]
		views = append(views, QuestionView{
			ID:               q.ID,
			QuestionType:     q.QuestionType,
			QuestionText:     q.QuestionText,
			Options:          shuffledOptions(test, attempt, q),
			Points:           q.Points,
			TimeLimitSeconds: q.TimeLimitSeconds,
			Order:            pos + 1,
			IsRequired:       q.IsRequired,
		})
	}
	return views
}

// shuffledOptions permutes an option list per attempt. Match-style questions
// keep their left column (the prompts) in place and shuffle only the right.
func shuffledOptions(test *model.Test, attempt *model.TestAttempt, q *model.TestQuestion) json.RawMessage {
	raw := json.RawMessage(q.Options)
	if len(raw) == 0 || !test.ShuffleOptions {
		return raw
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		perm := grading.OptionOrder(attempt.ShuffleSeed, q.ID, len(list))
		out := make([]json.RawMessage, len(list))
		for i, p := range perm {
			out[i] = list[p]
		}
		shuffled, err := json.Marshal(out)
		if err != nil {
			return raw
		}
		return shuffled
	}

	var pairs struct {
		Left  []json.RawMessage `json:"left"`
		Right []json.RawMessage `json:"right"`
	}
	if err := json.Unmarshal(raw, &pairs); err == nil && len(pairs.Right) > 0 {
		perm := grading.OptionOrder(attempt.ShuffleSeed, q.ID, len(pairs.Right))
		right := make([]json.RawMessage, len(pairs.Right))
		for i, p := range perm {
			right[i] = pairs.Right[p]
		}
		shuffled, err := json.Marshal(map[string]interface{}{
			"left":  pairs.Left,
			"right": right,
		})
		if err != nil {
			return raw
		}
		return shuffled
	}

	return raw
}

func remainingSeconds(test *model.Test, attempt *model.TestAttempt, now time.Time) *int {
	limit := test.TimeLimitSeconds()
	if limit <= 0 {
		return nil
	}
	remaining := limit - int(now.Sub(attempt.StartTime).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	return &remaining
}

// SaveAnswers upserts in-flight answers while the attempt is in progress.
// Grading happens only at submit; the rows just hold the raw payload so a
// resume can replay them.
func (s *AttemptService) SaveAnswers(studentID, linkageID uint, answers []SubmittedAnswer) error {
	now := s.Now()
	_, _, questions, err := s.loadContext(linkageID, false)
	if err != nil {
		return err
	}
	attempt, err := s.Attempts.FindInProgress(studentID, linkageID)
	if err != nil {
		return err
	}

	known := make(map[uint]bool, len(questions))
	for _, q := range questions {
		known[q.ID] = true
	}

	for _, a := range answers {
		if !known[a.QuestionID] {
			logger.Log.Warn("answer references question outside test",
				zap.Uint("attemptId", attempt.ID),
				zap.Uint("questionId", a.QuestionID))
			continue
		}
		row := &model.TestAnswer{
			AttemptID:        attempt.ID,
			QuestionID:       a.QuestionID,
			StudentID:        studentID,
			Answer:           string(a.Answer),
			TimeSpentSeconds: a.TimeSpentSeconds,
			AnsweredAt:       now,
		}
		if err := s.Attempts.UpsertAnswer(row); err != nil {
			return err
		}
	}
	return nil
}

// SubmitAttempt 提交测验，评分并冻结尝试
func (s *AttemptService) SubmitAttempt(studentID, linkageID uint, submitted []SubmittedAnswer) (*SubmitAttemptResult, error) {
	now := s.Now()
	linkage, test, questions, err := s.loadContext(linkageID, false)
	if err != nil {
		return nil, err
	}

	attempt, err := s.Attempts.FindInProgress(studentID, linkageID)
	if err != nil {
		if !errors.Is(err, util.ErrNoActiveAttempt) {
			return nil, err
		}
		// submit retry against a finished attempt is an idempotent success
		// returning the previously computed result
		latest, lerr := s.Attempts.FindLatest(studentID, linkageID)
		if lerr == nil && latest.Status.Terminal() {
			return s.buildSubmitResult(test, questions, latest)
		}
		return nil, util.ErrNoActiveAttempt
	}

	// final answer set: whatever was saved during the attempt, overridden by
	// anything sent with the submit call
	merged := make(map[uint]SubmittedAnswer)
	stored, err := s.Attempts.GetAnswers(attempt.ID)
	if err != nil {
		return nil, err
	}
	for _, a := range stored {
		merged[a.QuestionID] = SubmittedAnswer{
			QuestionID:       a.QuestionID,
			Answer:           json.RawMessage(a.Answer),
			TimeSpentSeconds: a.TimeSpentSeconds,
		}
	}
	known := make(map[uint]*model.TestQuestion, len(questions))
	for i := range questions {
		known[questions[i].ID] = &questions[i]
	}
	for _, a := range submitted {
		if known[a.QuestionID] == nil {
			// one bad client payload must not block an otherwise valid grade
			logger.Log.Warn("submitted answer references question outside test",
				zap.Uint("attemptId", attempt.ID),
				zap.Uint("questionId", a.QuestionID))
			continue
		}
		merged[a.QuestionID] = a
	}

	results := make(map[uint]grading.Result, len(merged))
	answerRows := make([]model.TestAnswer, 0, len(merged))
	for qid, sub := range merged {
		q, ok := known[qid]
		if !ok {
			continue
		}
		res := grading.Grade(q, sub.Answer)
		results[qid] = res
		answerRows = append(answerRows, model.TestAnswer{
			AttemptID:        attempt.ID,
			QuestionID:       qid,
			StudentID:        studentID,
			Answer:           string(sub.Answer),
			IsCorrect:        res.IsCorrect,
			PointsEarned:     res.PointsEarned,
			TimeSpentSeconds: sub.TimeSpentSeconds,
			AnsweredAt:       now,
		})
	}

	summary := grading.Aggregate(test, questions, results)

	elapsed := int(now.Sub(attempt.StartTime).Seconds())
	limit := test.TimeLimitSeconds()
	target := model.AttemptCompleted
	if limit > 0 && elapsed > limit {
		target = model.AttemptTimedOut
		// an overrun never inflates recorded time past the limit
		elapsed = limit
	}
	if err := attempt.TransitionTo(target); err != nil {
		return nil, util.ErrAttemptAlreadyCompleted
	}

	endTime := now
	attempt.Score = summary.Score
	attempt.MaxScore = summary.MaxScore
	attempt.Percentage = summary.Percentage
	attempt.Passed = summary.Passed
	attempt.EndTime = &endTime
	attempt.TimeSpentSeconds = elapsed

	if summary.Passed && linkage.IsRequired {
		attempt.Accredited = true
	}

	if err := s.Attempts.FinalizeAttempt(attempt, answerRows); err != nil {
		return nil, err
	}
	monitoring.AttemptsSubmitted.WithLabelValues(string(target)).Inc()

	if attempt.Accredited {
		acc := &model.Accreditation{
			StudentID:     studentID,
			CourseID:      linkage.CourseID,
			TestID:        test.ID,
			AttemptID:     attempt.ID,
			CertificateID: model.GenerateUUID(),
			Percentage:    summary.Percentage,
			AccreditedAt:  now,
		}
		if err := s.Accreditations.Ensure(acc); err != nil {
			// the attempt is already frozen; accreditation failures are
			// recoverable from the attempt record
			logger.Log.Error("failed to record accreditation",
				zap.Uint("attemptId", attempt.ID), zap.Error(err))
		}
	}

	return s.buildSubmitResult(test, questions, attempt)
}

// GetResult returns the last finished attempt for review.
func (s *AttemptService) GetResult(studentID, linkageID uint) (*SubmitAttemptResult, error) {
	_, test, questions, err := s.loadContext(linkageID, false)
	if err != nil {
		return nil, err
	}
	if !test.AllowReview {
		return nil, util.ErrPermissionDenied
	}
	latest, err := s.Attempts.FindLatest(studentID, linkageID)
	if err != nil {
		return nil, err
	}
	if !latest.Status.Terminal() {
		return nil, util.ErrNoActiveAttempt
	}
	return s.buildSubmitResult(test, questions, latest)
}

// buildSubmitResult reconstructs the response from frozen attempt state and
// stored answers; replaying it for a retried submit yields the same payload.
func (s *AttemptService) buildSubmitResult(test *model.Test, questions []model.TestQuestion, attempt *model.TestAttempt) (*SubmitAttemptResult, error) {
	out := &SubmitAttemptResult{Attempt: attempt}
	if !test.ShowResultsImmediately {
		return out, nil
	}

	answers, err := s.Attempts.GetAnswers(attempt.ID)
	if err != nil {
		return nil, err
	}
	byQuestion := make(map[uint]*model.TestAnswer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	stats := ResultStats{
		TotalQuestions: len(questions),
		Score:          attempt.Score,
		MaxScore:       attempt.MaxScore,
		Percentage:     attempt.Percentage,
		Passed:         attempt.Passed,
		TimeSpent:      attempt.TimeSpentSeconds,
	}
	for i := range questions {
		q := &questions[i]
		if !q.Scorable() {
			continue
		}
		a, answered := byQuestion[q.ID]
		switch {
		case !answered:
			stats.Unanswered++
		case a.IsCorrect:
			stats.CorrectAnswers++
		default:
			stats.IncorrectAnswers++
		}
	}
	out.Results = &stats

	if test.ShowCorrectAnswers {
		review := make([]QuestionReview, 0, len(questions))
		for i := range questions {
			q := &questions[i]
			r := QuestionReview{
				QuestionID:    q.ID,
				QuestionType:  q.QuestionType,
				QuestionText:  q.QuestionText,
				CorrectAnswer: json.RawMessage(q.CorrectAnswer),
				Explanation:   q.Explanation,
			}
			if a, ok := byQuestion[q.ID]; ok {
				r.SubmittedAnswer = json.RawMessage(a.Answer)
				r.IsCorrect = a.IsCorrect
				r.PointsEarned = a.PointsEarned
			}
			review = append(review, r)
		}
		out.AnswersReview = review
	}
	return out, nil
}

// SweepExpiredAttempts moves stale in_progress attempts into a terminal
// state: past the time limit they are graded from saved answers and timed
// out, past the availability window they are abandoned. All updates land in
// one transaction per sweep pass.
func (s *AttemptService) SweepExpiredAttempts() (int, error) {
	now := s.Now()
	attempts, err := s.Attempts.ListInProgress()
	if err != nil {
		return 0, err
	}

	var expired []*model.TestAttempt
	var regraded []model.TestAnswer
	for i := range attempts {
		attempt := &attempts[i]
		test, err := s.Tests.FindByID(attempt.TestID)
		if err != nil {
			logger.Log.Warn("sweep: test lookup failed",
				zap.Uint("attemptId", attempt.ID), zap.Error(err))
			continue
		}
		linkage, err := s.Tests.GetLinkage(attempt.LinkageID)
		if err != nil {
			logger.Log.Warn("sweep: linkage lookup failed",
				zap.Uint("attemptId", attempt.ID), zap.Error(err))
			continue
		}

		deadline := attempt.Deadline(test)
		switch {
		case !deadline.IsZero() && now.After(deadline):
			rows, err := s.timeOutAttempt(attempt, test, deadline)
			if err != nil {
				logger.Log.Warn("sweep: grading failed",
					zap.Uint("attemptId", attempt.ID), zap.Error(err))
				continue
			}
			expired = append(expired, attempt)
			regraded = append(regraded, rows...)
		case linkage.AvailableUntil != nil && now.After(*linkage.AvailableUntil):
			if err := attempt.TransitionTo(model.AttemptAbandoned); err != nil {
				continue
			}
			endTime := *linkage.AvailableUntil
			attempt.EndTime = &endTime
			attempt.TimeSpentSeconds = int(endTime.Sub(attempt.StartTime).Seconds())
			expired = append(expired, attempt)
		}
	}

	if err := s.Attempts.FinalizeBatch(expired, regraded); err != nil {
		return 0, err
	}
	if len(expired) > 0 {
		monitoring.AttemptsSwept.Add(float64(len(expired)))
		logger.Log.Info("swept stale attempts", zap.Int("count", len(expired)))
	}
	return len(expired), nil
}

// timeOutAttempt grades whatever answers were saved before the deadline and
// freezes the attempt as timed_out.
func (s *AttemptService) timeOutAttempt(attempt *model.TestAttempt, test *model.Test, deadline time.Time) ([]model.TestAnswer, error) {
	questions, err := s.Tests.GetQuestions(test.ID)
	if err != nil {
		return nil, err
	}
	stored, err := s.Attempts.GetAnswers(attempt.ID)
	if err != nil {
		return nil, err
	}

	byID := make(map[uint]*model.TestQuestion, len(questions))
	for i := range questions {
		byID[questions[i].ID] = &questions[i]
	}

	results := make(map[uint]grading.Result, len(stored))
	rows := make([]model.TestAnswer, 0, len(stored))
	for _, a := range stored {
		q, ok := byID[a.QuestionID]
		if !ok {
			continue
		}
		res := grading.Grade(q, json.RawMessage(a.Answer))
		results[a.QuestionID] = res
		a.IsCorrect = res.IsCorrect
		a.PointsEarned = res.PointsEarned
		rows = append(rows, a)
	}

	summary := grading.Aggregate(test, questions, results)
	if err := attempt.TransitionTo(model.AttemptTimedOut); err != nil {
		return nil, err
	}
	endTime := deadline
	attempt.Score = summary.Score
	attempt.MaxScore = summary.MaxScore
	attempt.Percentage = summary.Percentage
	attempt.Passed = summary.Passed
	attempt.EndTime = &endTime
	attempt.TimeSpentSeconds = test.TimeLimitSeconds()
	return rows, nil
}
