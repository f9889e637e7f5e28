package grading

import (
	"math/rand"
	"time"
)

// NewSeed produces the shuffle seed persisted on a fresh attempt.
func NewSeed() int64 {
	return time.Now().UnixNano()
}

// QuestionOrder returns a copy of ids shuffled by the attempt seed. The same
// seed always yields the same ordering, so a resumed attempt sees the exact
// arrangement it started with.
func QuestionOrder(seed int64, ids []uint) []uint {
	out := append([]uint(nil), ids...)
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// OptionOrder returns a stable permutation of n option positions for one
// question. Mixing the question id into the seed lets every question shuffle
// its options independently within the same attempt.
func OptionOrder(seed int64, questionID uint, n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	r := rand.New(rand.NewSource(seed + int64(questionID)))
	r.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
