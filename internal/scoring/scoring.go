// Package scoring decides whether an answer is correct and how many points it earns.
package scoring

import (
	"time"

	"github.com/shopspring/decimal"

	"quizgame-service/internal/domain"
)

var one = decimal.NewFromInt(1)

// Correct compares a submission with the question's answer key. Single and
// sequence questions need the exact ordered list; multi questions ignore order
// but still require the same set of variants.
func Correct(q domain.GeneratedQuestion, submitted []int64) bool {
	key := q.Answer()
	if len(key) != len(submitted) {
		return false
	}
	if q.Type() == domain.QuestionMulti {
		return sameSet(key, submitted)
	}
	for i := range key {
		if key[i] != submitted[i] {
			return false
		}
	}
	return true
}

// Points returns the award for an answer submitted at now. Correct answers to
// timed questions are topped up by points*coefficient where coefficient is the
// elapsed share of the timer clamped to [0, 1], so a correct answer earns at
// most double points.
func Points(q domain.GeneratedQuestion, correct bool, now time.Time) decimal.Decimal {
	if !correct {
		return decimal.Zero
	}
	points := decimal.NewFromInt(int64(q.Points()))
	limit := q.Timer()
	if limit == nil || q.StartedAt == nil {
		return points
	}
	coefficient := Coefficient(now.Sub(*q.StartedAt), *limit)
	return points.Add(points.Mul(coefficient)).Round(2)
}

// Coefficient is elapsed/limit clamped to [0, 1]. A non-positive limit counts
// as already expired.
func Coefficient(elapsed, limit time.Duration) decimal.Decimal {
	if limit <= 0 {
		return one
	}
	if elapsed <= 0 {
		return decimal.Zero
	}
	c := decimal.NewFromInt(int64(elapsed)).Div(decimal.NewFromInt(int64(limit)))
	if c.GreaterThan(one) {
		return one
	}
	return c
}

func sameSet(a, b []int64) bool {
	counts := make(map[int64]int, len(a))
	for _, id := range a {
		counts[id]++
	}
	for _, id := range b {
		if counts[id] == 0 {
			return false
		}
		counts[id]--
	}
	return true
}
