package scoring

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"quizgame-service/internal/domain"
)

var start = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func question(kind domain.QuestionType, answer []int64, timer *time.Duration, points int) domain.GeneratedQuestion {
	started := start
	return domain.GeneratedQuestion{
		StartedAt: &started,
		Question:  &domain.Question{Type: kind, Answer: answer, Timer: timer, Points: points},
	}
}

func TestPointsUntimed(t *testing.T) {
	q := question(domain.QuestionSingle, []int64{1}, nil, 5)
	got := Points(q, true, start.Add(time.Hour))
	if !got.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("expected 5 points, got %s", got)
	}
}

func TestPointsTimed(t *testing.T) {
	limit := 20 * time.Second
	q := question(domain.QuestionSingle, []int64{1}, &limit, 10)

	cases := []struct {
		name string
		at   time.Time
		want int64
	}{
		{"instant", start, 10},
		{"half", start.Add(10 * time.Second), 15},
		{"deadline", start.Add(limit), 20},
		{"overtime is capped", start.Add(5 * limit), 20},
		{"clock skew", start.Add(-3 * time.Second), 10},
	}
	for _, tc := range cases {
		got := Points(q, true, tc.at)
		if !got.Equal(decimal.NewFromInt(tc.want)) {
			t.Fatalf("%s: expected %d, got %s", tc.name, tc.want, got)
		}
	}
}

func TestPointsIncorrect(t *testing.T) {
	limit := 20 * time.Second
	for _, q := range []domain.GeneratedQuestion{
		question(domain.QuestionSingle, []int64{1}, nil, 5),
		question(domain.QuestionSingle, []int64{1}, &limit, 5),
	} {
		for _, at := range []time.Time{start, start.Add(limit), start.Add(time.Hour)} {
			if got := Points(q, false, at); !got.IsZero() {
				t.Fatalf("expected 0 for incorrect answer, got %s", got)
			}
		}
	}
}

func TestCorrect(t *testing.T) {
	cases := []struct {
		name      string
		kind      domain.QuestionType
		key       []int64
		submitted []int64
		want      bool
	}{
		{"single match", domain.QuestionSingle, []int64{3}, []int64{3}, true},
		{"single miss", domain.QuestionSingle, []int64{3}, []int64{4}, false},
		{"single extra", domain.QuestionSingle, []int64{3}, []int64{3, 4}, false},
		{"sequence order matters", domain.QuestionSequence, []int64{1, 2, 3}, []int64{2, 1, 3}, false},
		{"sequence exact", domain.QuestionSequence, []int64{1, 2, 3}, []int64{1, 2, 3}, true},
		{"multi any order", domain.QuestionMulti, []int64{1, 2}, []int64{2, 1}, true},
		{"multi subset", domain.QuestionMulti, []int64{1, 2}, []int64{1}, false},
		{"multi duplicates", domain.QuestionMulti, []int64{1, 2}, []int64{1, 1}, false},
		{"empty submission", domain.QuestionSingle, []int64{3}, nil, false},
	}
	for _, tc := range cases {
		q := question(tc.kind, tc.key, nil, 1)
		if got := Correct(q, tc.submitted); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestCoefficientZeroLimit(t *testing.T) {
	if c := Coefficient(time.Second, 0); !c.Equal(decimal.NewFromInt(1)) {
		t.Fatalf("expected coefficient 1 for zero limit, got %s", c)
	}
}
