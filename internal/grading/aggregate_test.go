package grading

import (
	"testing"

	"edu_assessment_backend/internal/model"
)

func makeQuestions(specs ...model.TestQuestion) []model.TestQuestion {
	for i := range specs {
		specs[i].ID = uint(i + 1)
	}
	return specs
}

func TestAggregate_OneRightOneWrong(t *testing.T) {
	// passingScore=60, two single-choice questions worth 5 each; one correct
	// answer yields 50.00 and a fail
	test := &model.Test{PassingScore: 60}
	questions := makeQuestions(
		model.TestQuestion{QuestionType: model.QuestionSingleChoice, Points: 5},
		model.TestQuestion{QuestionType: model.QuestionSingleChoice, Points: 5},
	)
	results := map[uint]Result{
		1: {IsCorrect: true, PointsEarned: 5},
		2: {},
	}

	got := Aggregate(test, questions, results)
	if got.Score != 5 || got.MaxScore != 10 {
		t.Fatalf("score = %d/%d, want 5/10", got.Score, got.MaxScore)
	}
	if got.Percentage != 50.00 {
		t.Errorf("percentage = %v, want 50.00", got.Percentage)
	}
	if got.Passed {
		t.Error("passed = true, want false")
	}
}

func TestAggregate_PollAndOpenEndedExcluded(t *testing.T) {
	test := &model.Test{PassingScore: 60}
	questions := makeQuestions(
		model.TestQuestion{QuestionType: model.QuestionSingleChoice, Points: 5},
		model.TestQuestion{QuestionType: model.QuestionPoll, Points: 5},
		model.TestQuestion{QuestionType: model.QuestionOpenEnded, Points: 5},
	)
	results := map[uint]Result{
		1: {IsCorrect: true, PointsEarned: 5},
		2: {IsCorrect: true},
	}

	got := Aggregate(test, questions, results)
	if got.MaxScore != 5 {
		t.Fatalf("maxScore = %d, want 5 (polls and open-ended excluded)", got.MaxScore)
	}
	if got.Percentage != 100.00 || !got.Passed {
		t.Errorf("got %+v, want 100.00 passed", got)
	}
}

func TestAggregate_UnansweredStillCountsTowardMax(t *testing.T) {
	test := &model.Test{PassingScore: 50}
	questions := makeQuestions(
		model.TestQuestion{QuestionType: model.QuestionSingleChoice, Points: 5},
		model.TestQuestion{QuestionType: model.QuestionSingleChoice, Points: 5},
	)
	results := map[uint]Result{
		1: {IsCorrect: true, PointsEarned: 5},
		// question 2 never answered: no entry at all
	}

	got := Aggregate(test, questions, results)
	if got.MaxScore != 10 {
		t.Fatalf("maxScore = %d, want 10", got.MaxScore)
	}
	if got.Percentage != 50.00 || !got.Passed {
		t.Errorf("got %+v, want 50.00 passed", got)
	}
}

func TestAggregate_EmptyMaxScore(t *testing.T) {
	test := &model.Test{PassingScore: 60}
	questions := makeQuestions(
		model.TestQuestion{QuestionType: model.QuestionPoll, Points: 5},
	)

	got := Aggregate(test, questions, map[uint]Result{})
	if got.MaxScore != 0 || got.Percentage != 0 {
		t.Errorf("got %+v, want zero percentage on zero maxScore", got)
	}
	if got.Passed {
		t.Error("passed with no scorable questions")
	}
}

func TestAggregate_Replayable(t *testing.T) {
	test := &model.Test{PassingScore: 70}
	questions := makeQuestions(
		model.TestQuestion{QuestionType: model.QuestionSingleChoice, Points: 3},
		model.TestQuestion{QuestionType: model.QuestionMultipleAnswer, Points: 7},
	)
	results := map[uint]Result{
		1: {IsCorrect: true, PointsEarned: 3},
		2: {IsCorrect: true, PointsEarned: 7},
	}

	first := Aggregate(test, questions, results)
	for i := 0; i < 10; i++ {
		if got := Aggregate(test, questions, results); got != first {
			t.Fatalf("run %d: got %+v, want %+v", i, got, first)
		}
	}
}

func TestRoundPercent(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{in: 50.0, want: 50.00},
		{in: 33.333333, want: 33.33},
		{in: 66.666666, want: 66.67},
		{in: 87.505, want: 87.51}, // half rounds up
	}
	for _, tc := range tests {
		if got := RoundPercent(tc.in); got != tc.want {
			t.Errorf("RoundPercent(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
