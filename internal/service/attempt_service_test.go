package service

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"edu_assessment_backend/internal/model"
	"edu_assessment_backend/internal/util"
	"edu_assessment_backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMain(m *testing.M) {
	logger.Log = zap.NewNop()
	os.Exit(m.Run())
}

type fakeTestStore struct {
	tests     map[uint]*model.Test
	questions map[uint][]model.TestQuestion
	linkages  map[uint]*model.TestLinkage
}

func (f *fakeTestStore) FindByID(id uint) (*model.Test, error) {
	t, ok := f.tests[id]
	if !ok {
		return nil, util.ErrTestNotFound
	}
	return t, nil
}

func (f *fakeTestStore) GetQuestions(testID uint) ([]model.TestQuestion, error) {
	return f.questions[testID], nil
}

func (f *fakeTestStore) GetLinkage(id uint) (*model.TestLinkage, error) {
	l, ok := f.linkages[id]
	if !ok {
		return nil, util.ErrLinkageNotFound
	}
	return l, nil
}

type fakeAttemptStore struct {
	mu       sync.Mutex
	attempts []*model.TestAttempt
	answers  map[uint]map[uint]model.TestAnswer
	nextID   uint
}

func newFakeAttemptStore() *fakeAttemptStore {
	return &fakeAttemptStore{answers: make(map[uint]map[uint]model.TestAnswer)}
}

// The mutex stands in for the row lock the real store takes while
// claiming, so concurrent StartAttempt calls can be exercised against it.
func (f *fakeAttemptStore) ClaimInProgress(studentID, linkageID uint, maxAttempts int, newAttempt func(int) *model.TestAttempt) (*model.TestAttempt, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for _, a := range f.attempts {
		if a.StudentID != studentID || a.LinkageID != linkageID {
			continue
		}
		if a.Status == model.AttemptInProgress {
			return a, true, nil
		}
		count++
	}
	if maxAttempts > 0 && count >= maxAttempts {
		return nil, false, util.ErrAttemptLimitReached
	}
	a := newAttempt(count + 1)
	f.nextID++
	a.ID = f.nextID
	f.attempts = append(f.attempts, a)
	return a, false, nil
}

func (f *fakeAttemptStore) FindInProgress(studentID, linkageID uint) (*model.TestAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.attempts {
		if a.StudentID == studentID && a.LinkageID == linkageID && a.Status == model.AttemptInProgress {
			return a, nil
		}
	}
	return nil, util.ErrNoActiveAttempt
}

func (f *fakeAttemptStore) FindLatest(studentID, linkageID uint) (*model.TestAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *model.TestAttempt
	for _, a := range f.attempts {
		if a.StudentID != studentID || a.LinkageID != linkageID {
			continue
		}
		if latest == nil || a.AttemptNumber > latest.AttemptNumber {
			latest = a
		}
	}
	if latest == nil {
		return nil, util.ErrNoActiveAttempt
	}
	return latest, nil
}

func (f *fakeAttemptStore) UpsertAnswer(ans *model.TestAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.putAnswer(ans)
	return nil
}

func (f *fakeAttemptStore) putAnswer(ans *model.TestAnswer) {
	if f.answers[ans.AttemptID] == nil {
		f.answers[ans.AttemptID] = make(map[uint]model.TestAnswer)
	}
	f.answers[ans.AttemptID][ans.QuestionID] = *ans
}

func (f *fakeAttemptStore) GetAnswers(attemptID uint) ([]model.TestAnswer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := make([]model.TestAnswer, 0, len(f.answers[attemptID]))
	for _, a := range f.answers[attemptID] {
		rows = append(rows, a)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].QuestionID < rows[j].QuestionID })
	return rows, nil
}

func (f *fakeAttemptStore) replace(attempt *model.TestAttempt) {
	for i, a := range f.attempts {
		if a.ID == attempt.ID {
			f.attempts[i] = attempt
		}
	}
}

func (f *fakeAttemptStore) FinalizeAttempt(attempt *model.TestAttempt, answers []model.TestAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.replace(attempt)
	for _, ans := range answers {
		f.putAnswer(&ans)
	}
	return nil
}

func (f *fakeAttemptStore) FinalizeBatch(attempts []*model.TestAttempt, answers []model.TestAnswer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range attempts {
		f.replace(a)
	}
	for _, ans := range answers {
		f.putAnswer(&ans)
	}
	return nil
}

func (f *fakeAttemptStore) ListInProgress() ([]model.TestAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.TestAttempt
	for _, a := range f.attempts {
		if a.Status == model.AttemptInProgress {
			out = append(out, *a)
		}
	}
	return out, nil
}

type fakeAccreditationStore struct {
	records []model.Accreditation
}

func (f *fakeAccreditationStore) Ensure(acc *model.Accreditation) error {
	for _, r := range f.records {
		if r.StudentID == acc.StudentID && r.CourseID == acc.CourseID && r.TestID == acc.TestID {
			return nil
		}
	}
	f.records = append(f.records, *acc)
	return nil
}

type fixture struct {
	svc      *AttemptService
	tests    *fakeTestStore
	attempts *fakeAttemptStore
	accs     *fakeAccreditationStore
	now      time.Time
}

// newFixture builds a published timed test (10 minutes, pass at 60%) with five
// two-point single choice questions, linked to course 100 as linkage 1.
func newFixture() *fixture {
	now := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

	test := &model.Test{
		BaseModel:              model.BaseModel{ID: 1},
		Title:                  "Pointers and Memory",
		Status:                 model.TestStatusPublished,
		TimeMode:               model.TimeModeTimed,
		TimeLimitMinutes:       10,
		PassingScore:           60,
		MaxAttempts:            2,
		ShowResultsImmediately: true,
		ShowCorrectAnswers:     true,
		AllowReview:            true,
		IsActive:               true,
	}
	questions := make([]model.TestQuestion, 0, 5)
	for i := 1; i <= 5; i++ {
		questions = append(questions, model.TestQuestion{
			BaseModel:     model.BaseModel{ID: uint(i)},
			TestID:        1,
			QuestionType:  model.QuestionSingleChoice,
			QuestionText:  fmt.Sprintf("question %d", i),
			Options:       `[{"id":"a"},{"id":"b"},{"id":"c"}]`,
			CorrectAnswer: `"a"`,
			Points:        2,
			Order:         i,
		})
	}
	linkage := &model.TestLinkage{
		BaseModel:  model.BaseModel{ID: 1},
		TestID:     1,
		CourseID:   100,
		IsRequired: true,
	}

	store := &fakeTestStore{
		tests:     map[uint]*model.Test{1: test},
		questions: map[uint][]model.TestQuestion{1: questions},
		linkages:  map[uint]*model.TestLinkage{1: linkage},
	}
	attempts := newFakeAttemptStore()
	accs := &fakeAccreditationStore{}

	svc := NewAttemptService(store, attempts, accs)
	svc.Now = func() time.Time { return now }

	return &fixture{svc: svc, tests: store, attempts: attempts, accs: accs, now: now}
}

func (f *fixture) advance(d time.Duration) {
	f.now = f.now.Add(d)
	now := f.now
	f.svc.Now = func() time.Time { return now }
}

func answersFor(ids []uint, value string) []SubmittedAnswer {
	out := make([]SubmittedAnswer, 0, len(ids))
	for _, id := range ids {
		out = append(out, SubmittedAnswer{QuestionID: id, Answer: json.RawMessage(value)})
	}
	return out
}

func TestStartAttemptCreatesAndStripsGradingData(t *testing.T) {
	f := newFixture()

	res, err := f.svc.StartAttempt(7, 1)
	require.NoError(t, err)

	assert.Equal(t, model.AttemptInProgress, res.Attempt.Status)
	assert.Equal(t, 1, res.Attempt.AttemptNumber)
	assert.Len(t, res.Questions, 5)
	assert.Empty(t, res.SavedAnswers)
	require.NotNil(t, res.RemainingTimeSeconds)
	assert.Equal(t, 600, *res.RemainingTimeSeconds)

	// nothing gradeable leaks to the client
	payload, err := json.Marshal(res.Questions)
	require.NoError(t, err)
	assert.NotContains(t, string(payload), "correctAnswer")
	assert.NotContains(t, string(payload), "explanation")
}

func TestStartAttemptResumesExisting(t *testing.T) {
	f := newFixture()

	first, err := f.svc.StartAttempt(7, 1)
	require.NoError(t, err)

	require.NoError(t, f.svc.SaveAnswers(7, 1, answersFor([]uint{1, 2}, `"a"`)))

	f.advance(3 * time.Minute)
	second, err := f.svc.StartAttempt(7, 1)
	require.NoError(t, err)

	assert.Equal(t, first.Attempt.ID, second.Attempt.ID)
	assert.Len(t, second.SavedAnswers, 2)
	require.NotNil(t, second.RemainingTimeSeconds)
	assert.Equal(t, 420, *second.RemainingTimeSeconds)
}

func TestStartAttemptConcurrentCallsShareOneAttempt(t *testing.T) {
	f := newFixture()

	const callers = 16
	ids := make([]uint, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := f.svc.StartAttempt(7, 1)
			if assert.NoError(t, err) {
				ids[i] = res.Attempt.ID
			}
		}(i)
	}
	wg.Wait()

	// everyone lands on the same attempt and only one row exists
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	count := 0
	for _, a := range f.attempts.attempts {
		if a.StudentID == 7 && a.LinkageID == 1 {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestStartAttemptStableOrderAcrossResume(t *testing.T) {
	f := newFixture()
	f.tests.tests[1].ShuffleQuestions = true
	f.tests.tests[1].ShuffleOptions = true

	first, err := f.svc.StartAttempt(7, 1)
	require.NoError(t, err)

	f.advance(time.Minute)
	second, err := f.svc.StartAttempt(7, 1)
	require.NoError(t, err)

	require.Len(t, second.Questions, len(first.Questions))
	for i := range first.Questions {
		assert.Equal(t, first.Questions[i].ID, second.Questions[i].ID)
		assert.Equal(t, string(first.Questions[i].Options), string(second.Questions[i].Options))
	}
}

func TestStartAttemptLimitReached(t *testing.T) {
	f := newFixture()

	for i := 0; i < 2; i++ {
		_, err := f.svc.StartAttempt(7, 1)
		require.NoError(t, err)
		_, err = f.svc.SubmitAttempt(7, 1, answersFor([]uint{1}, `"a"`))
		require.NoError(t, err)
	}

	_, err := f.svc.StartAttempt(7, 1)
	assert.ErrorIs(t, err, util.ErrAttemptLimitReached)
}

func TestStartAttemptAvailabilityWindow(t *testing.T) {
	f := newFixture()
	from := f.now.Add(time.Hour)
	until := f.now.Add(2 * time.Hour)
	f.tests.linkages[1].AvailableFrom = &from
	f.tests.linkages[1].AvailableUntil = &until

	_, err := f.svc.StartAttempt(7, 1)
	assert.ErrorIs(t, err, util.ErrNotYetOpen)

	f.advance(90 * time.Minute)
	_, err = f.svc.StartAttempt(7, 1)
	assert.NoError(t, err)

	f.advance(90 * time.Minute)
	_, err = f.svc.StartAttempt(8, 1)
	assert.ErrorIs(t, err, util.ErrWindowClosed)
}

func TestStartAttemptUnpublishedTest(t *testing.T) {
	f := newFixture()
	f.tests.tests[1].Status = model.TestStatusDraft

	_, err := f.svc.StartAttempt(7, 1)
	assert.ErrorIs(t, err, util.ErrTestNotFound)
}

func TestSubmitAttemptScoresAndPasses(t *testing.T) {
	f := newFixture()

	_, err := f.svc.StartAttempt(7, 1)
	require.NoError(t, err)

	f.advance(4 * time.Minute)
	answers := append(answersFor([]uint{1, 2, 3, 4}, `"a"`), SubmittedAnswer{QuestionID: 5, Answer: json.RawMessage(`"b"`)})
	res, err := f.svc.SubmitAttempt(7, 1, answers)
	require.NoError(t, err)

	assert.Equal(t, model.AttemptCompleted, res.Attempt.Status)
	assert.Equal(t, 8, res.Attempt.Score)
	assert.Equal(t, 10, res.Attempt.MaxScore)
	assert.Equal(t, 80.0, res.Attempt.Percentage)
	assert.True(t, res.Attempt.Passed)
	assert.Equal(t, 240, res.Attempt.TimeSpentSeconds)

	require.NotNil(t, res.Results)
	assert.Equal(t, 4, res.Results.CorrectAnswers)
	assert.Equal(t, 1, res.Results.IncorrectAnswers)
	assert.Equal(t, 0, res.Results.Unanswered)
	require.Len(t, res.AnswersReview, 5)
	assert.Equal(t, `"a"`, string(res.AnswersReview[0].CorrectAnswer))

	// passing a required linkage records the accreditation exactly once,
	// with a certificate serial for downstream issuance
	require.Len(t, f.accs.records, 1)
	assert.Equal(t, uint(100), f.accs.records[0].CourseID)
	assert.Len(t, f.accs.records[0].CertificateID, 36)
	assert.True(t, res.Attempt.Accredited)
}

func TestSubmitAttemptFailBelowThreshold(t *testing.T) {
	f := newFixture()

	_, err := f.svc.StartAttempt(7, 1)
	require.NoError(t, err)

	// 2 of 5 correct: 40% against a 60% bar
	answers := append(answersFor([]uint{1, 2}, `"a"`), answersFor([]uint{3, 4, 5}, `"c"`)...)
	res, err := f.svc.SubmitAttempt(7, 1, answers)
	require.NoError(t, err)

	assert.Equal(t, 40.0, res.Attempt.Percentage)
	assert.False(t, res.Attempt.Passed)
	assert.False(t, res.Attempt.Accredited)
	assert.Empty(t, f.accs.records)
}

func TestSubmitAttemptMergesSavedAnswers(t *testing.T) {
	f := newFixture()

	_, err := f.svc.StartAttempt(7, 1)
	require.NoError(t, err)

	// saved during the attempt: q1 right, q2 wrong
	require.NoError(t, f.svc.SaveAnswers(7, 1, []SubmittedAnswer{
		{QuestionID: 1, Answer: json.RawMessage(`"a"`)},
		{QuestionID: 2, Answer: json.RawMessage(`"b"`)},
	}))

	// submit overrides q2 and leaves q1 from the saved set
	res, err := f.svc.SubmitAttempt(7, 1, []SubmittedAnswer{
		{QuestionID: 2, Answer: json.RawMessage(`"a"`)},
	})
	require.NoError(t, err)

	assert.Equal(t, 4, res.Attempt.Score)
	assert.Equal(t, 2, res.Results.CorrectAnswers)
	assert.Equal(t, 3, res.Results.Unanswered)
}

func TestSubmitAttemptTimedOutClampsTime(t *testing.T) {
	f := newFixture()

	_, err := f.svc.StartAttempt(7, 1)
	require.NoError(t, err)

	f.advance(15 * time.Minute)
	res, err := f.svc.SubmitAttempt(7, 1, answersFor([]uint{1, 2, 3, 4, 5}, `"a"`))
	require.NoError(t, err)

	assert.Equal(t, model.AttemptTimedOut, res.Attempt.Status)
	assert.Equal(t, 600, res.Attempt.TimeSpentSeconds)
	// late answers still grade
	assert.Equal(t, 10, res.Attempt.Score)
}

func TestSubmitAttemptRetryIsIdempotent(t *testing.T) {
	f := newFixture()

	_, err := f.svc.StartAttempt(7, 1)
	require.NoError(t, err)

	first, err := f.svc.SubmitAttempt(7, 1, answersFor([]uint{1, 2, 3}, `"a"`))
	require.NoError(t, err)

	second, err := f.svc.SubmitAttempt(7, 1, answersFor([]uint{1, 2, 3}, `"a"`))
	require.NoError(t, err)

	assert.Equal(t, first.Attempt.ID, second.Attempt.ID)
	assert.Equal(t, first.Attempt.Score, second.Attempt.Score)
	assert.Equal(t, first.Attempt.Status, second.Attempt.Status)
	require.Len(t, f.attempts.attempts, 1)
}

func TestSubmitAttemptNoActiveAttempt(t *testing.T) {
	f := newFixture()

	_, err := f.svc.SubmitAttempt(7, 1, nil)
	assert.ErrorIs(t, err, util.ErrNoActiveAttempt)
}

func TestSubmitAttemptIgnoresForeignQuestion(t *testing.T) {
	f := newFixture()

	_, err := f.svc.StartAttempt(7, 1)
	require.NoError(t, err)

	answers := append(answersFor([]uint{1}, `"a"`), SubmittedAnswer{QuestionID: 999, Answer: json.RawMessage(`"a"`)})
	res, err := f.svc.SubmitAttempt(7, 1, answers)
	require.NoError(t, err)

	assert.Equal(t, 2, res.Attempt.Score)
	rows, _ := f.attempts.GetAnswers(res.Attempt.ID)
	assert.Len(t, rows, 1)
}

func TestSaveAnswersRequiresActiveAttempt(t *testing.T) {
	f := newFixture()

	err := f.svc.SaveAnswers(7, 1, answersFor([]uint{1}, `"a"`))
	assert.ErrorIs(t, err, util.ErrNoActiveAttempt)
}

func TestGetResultGatedOnAllowReview(t *testing.T) {
	f := newFixture()

	_, err := f.svc.StartAttempt(7, 1)
	require.NoError(t, err)
	_, err = f.svc.SubmitAttempt(7, 1, answersFor([]uint{1, 2, 3, 4}, `"a"`))
	require.NoError(t, err)

	res, err := f.svc.GetResult(7, 1)
	require.NoError(t, err)
	assert.Equal(t, 8, res.Attempt.Score)

	f.tests.tests[1].AllowReview = false
	_, err = f.svc.GetResult(7, 1)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}

func TestSweepTimesOutExpiredAttempt(t *testing.T) {
	f := newFixture()

	_, err := f.svc.StartAttempt(7, 1)
	require.NoError(t, err)
	require.NoError(t, f.svc.SaveAnswers(7, 1, answersFor([]uint{1, 2, 3}, `"a"`)))

	f.advance(11 * time.Minute)
	swept, err := f.svc.SweepExpiredAttempts()
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	attempt, err := f.attempts.FindLatest(7, 1)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptTimedOut, attempt.Status)
	assert.Equal(t, 6, attempt.Score)
	assert.Equal(t, 60.0, attempt.Percentage)
	assert.True(t, attempt.Passed)
	assert.Equal(t, 600, attempt.TimeSpentSeconds)
	require.NotNil(t, attempt.EndTime)
	assert.Equal(t, attempt.StartTime.Add(10*time.Minute), *attempt.EndTime)
}

func TestSweepAbandonsAfterWindowCloses(t *testing.T) {
	f := newFixture()
	f.tests.tests[1].TimeMode = model.TimeModeUnlimited
	until := f.now.Add(30 * time.Minute)
	f.tests.linkages[1].AvailableUntil = &until

	_, err := f.svc.StartAttempt(7, 1)
	require.NoError(t, err)

	f.advance(45 * time.Minute)
	swept, err := f.svc.SweepExpiredAttempts()
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	attempt, err := f.attempts.FindLatest(7, 1)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptAbandoned, attempt.Status)
	assert.Equal(t, 0, attempt.Score)
	assert.Equal(t, 1800, attempt.TimeSpentSeconds)
}

func TestSweepLeavesHealthyAttemptsAlone(t *testing.T) {
	f := newFixture()

	_, err := f.svc.StartAttempt(7, 1)
	require.NoError(t, err)

	f.advance(5 * time.Minute)
	swept, err := f.svc.SweepExpiredAttempts()
	require.NoError(t, err)
	assert.Zero(t, swept)

	attempt, err := f.attempts.FindInProgress(7, 1)
	require.NoError(t, err)
	assert.Equal(t, model.AttemptInProgress, attempt.Status)
}
