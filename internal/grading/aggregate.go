package grading

import (
	"math"

	"edu_assessment_backend/internal/model"
)

// Summary is the aggregated outcome of one graded attempt.
type Summary struct {
	Score      int     `json:"score"`
	MaxScore   int     `json:"maxScore"`
	Percentage float64 `json:"percentage"`
	Passed     bool    `json:"passed"`
}

// Aggregate combines per-question results into a total. Deterministic and
// replayable: the same (test, questions, results) triple always produces the
// same summary, which is what makes audit regrades possible.
//
// Polls and open-ended questions are excluded from maxScore; an unanswered
// scorable question contributes zero points but full weight to maxScore.
func Aggregate(test *model.Test, questions []model.TestQuestion, results map[uint]Result) Summary {
	var summary Summary
	for i := range questions {
		q := &questions[i]
		if !q.Scorable() {
			continue
		}
		summary.MaxScore += q.Points
		if r, ok := results[q.ID]; ok {
			summary.Score += r.PointsEarned
		}
	}

	if summary.MaxScore > 0 {
		summary.Percentage = RoundPercent(float64(summary.Score) / float64(summary.MaxScore) * 100)
	}
	summary.Passed = summary.Percentage >= float64(test.PassingScore)
	return summary
}

// RoundPercent rounds half-up to two decimal places.
func RoundPercent(p float64) float64 {
	return math.Floor(p*100+0.5) / 100
}
