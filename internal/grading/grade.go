package grading

import (
	"encoding/json"
	"strconv"
	"strings"

	"edu_assessment_backend/internal/model"
)

// Result is the outcome of grading a single submitted answer.
type Result struct {
	IsCorrect    bool `json:"isCorrect"`
	PointsEarned int  `json:"pointsEarned"`
}

// Grade scores one submitted answer against its question. Pure and
// deterministic, no I/O. A missing or unparsable submission grades as
// incorrect with zero points; it is the caller's job to decide whether the
// question still counts toward the maximum score.
func Grade(q *model.TestQuestion, submitted json.RawMessage) Result {
	switch q.QuestionType {
	case model.QuestionPoll:
		// polls are collected, never scored
		return Result{IsCorrect: true}
	case model.QuestionOpenEnded:
		// never auto-graded by this engine
		return Result{}
	}

	if emptyPayload(submitted) {
		return Result{}
	}

	switch q.QuestionType {
	case model.QuestionSingleChoice, model.QuestionTrueFalse:
		return gradeScalar(q, submitted)
	case model.QuestionMultipleAnswer:
		return gradeSet(q, submitted)
	case model.QuestionReorder, model.QuestionSequencing:
		return gradeSequence(q, submitted)
	case model.QuestionMatch:
		return gradePairs(q, submitted)
	case model.QuestionDragDrop:
		// structural variant: a pair-shaped key grades like match, a
		// list-shaped key like reorder
		if strings.HasPrefix(strings.TrimSpace(q.CorrectAnswer), "{") {
			return gradePairs(q, submitted)
		}
		return gradeSequence(q, submitted)
	default:
		return Result{}
	}
}

func award(q *model.TestQuestion, correct bool) Result {
	if !correct {
		return Result{}
	}
	return Result{IsCorrect: true, PointsEarned: q.Points}
}

func emptyPayload(raw json.RawMessage) bool {
	s := strings.TrimSpace(string(raw))
	return s == "" || s == "null" || s == `""` || s == "[]" || s == "{}"
}

// gradeScalar: correct iff the submitted value equals the single correct value.
func gradeScalar(q *model.TestQuestion, submitted json.RawMessage) Result {
	correct, ok := parseScalar([]byte(q.CorrectAnswer))
	if !ok {
		return Result{}
	}
	got, ok := parseScalar(submitted)
	if !ok {
		return Result{}
	}
	return award(q, got == correct)
}

// gradeSet: set equality, order-independent, all-or-nothing.
func gradeSet(q *model.TestQuestion, submitted json.RawMessage) Result {
	correct, ok := parseScalarList([]byte(q.CorrectAnswer))
	if !ok || len(correct) == 0 {
		return Result{}
	}
	got, ok := parseScalarList(submitted)
	if !ok {
		return Result{}
	}
	return award(q, equalSets(got, correct))
}

// gradeSequence: position-by-position equality.
func gradeSequence(q *model.TestQuestion, submitted json.RawMessage) Result {
	correct, ok := parseScalarList([]byte(q.CorrectAnswer))
	if !ok || len(correct) == 0 {
		return Result{}
	}
	got, ok := parseScalarList(submitted)
	if !ok || len(got) != len(correct) {
		return Result{}
	}
	for i := range correct {
		if got[i] != correct[i] {
			return Result{}
		}
	}
	return award(q, true)
}

// gradePairs: every submitted left->right pair must match exactly one correct
// pair; no partial credit.
func gradePairs(q *model.TestQuestion, submitted json.RawMessage) Result {
	correct, ok := parsePairs([]byte(q.CorrectAnswer))
	if !ok || len(correct) == 0 {
		return Result{}
	}
	got, ok := parsePairs(submitted)
	if !ok || len(got) != len(correct) {
		return Result{}
	}
	for left, right := range correct {
		if got[left] != right {
			return Result{}
		}
	}
	return award(q, true)
}

// parseScalar normalizes a JSON scalar to a canonical string so that "A",
// true and 1 compare consistently regardless of how the client encoded them.
func parseScalar(raw []byte) (string, bool) {
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", false
	}
	return normalizeValue(v)
}

func normalizeValue(v interface{}) (string, bool) {
	switch t := v.(type) {
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return "", false
		}
		return s, true
	case bool:
		return strconv.FormatBool(t), true
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), true
	default:
		return "", false
	}
}

func parseScalarList(raw []byte) ([]string, bool) {
	var items []interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := normalizeValue(item)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

// parsePairs accepts either a {"l1":"r2"} mapping or an array of
// {"left":"l1","right":"r2"} objects; clients send both shapes.
func parsePairs(raw []byte) (map[string]string, bool) {
	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err == nil {
		out := make(map[string]string, len(asMap))
		for k, v := range asMap {
			s, ok := normalizeValue(v)
			if !ok {
				return nil, false
			}
			out[k] = s
		}
		return out, true
	}

	var asList []struct {
		Left  string `json:"left"`
		Right string `json:"right"`
	}
	if err := json.Unmarshal(raw, &asList); err != nil {
		return nil, false
	}
	out := make(map[string]string, len(asList))
	for _, p := range asList {
		if p.Left == "" {
			return nil, false
		}
		out[p.Left] = strings.TrimSpace(p.Right)
	}
	return out, true
}

// equalSets treats both inputs as sets so duplicates in the submission cannot
// inflate a match.
func equalSets(a, b []string) bool {
	setA := make(map[string]struct{}, len(a))
	for _, s := range a {
		setA[s] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, s := range b {
		setB[s] = struct{}{}
	}
	if len(setA) != len(setB) {
		return false
	}
	for s := range setA {
		if _, ok := setB[s]; !ok {
			return false
		}
	}
	return true
}
