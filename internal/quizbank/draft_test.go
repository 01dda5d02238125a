package quizbank

import (
	"errors"
	"testing"
	"time"

	"quizgame-service/internal/domain"
)

func TestSampleIsValid(t *testing.T) {
	quiz, err := Build(Sample(1), time.Now())
	if err != nil {
		t.Fatalf("build sample: %v", err)
	}
	if len(quiz.Questions) != 3 {
		t.Fatalf("expected 3 questions, got %d", len(quiz.Questions))
	}
	q := quiz.Questions[1]
	if q.Timer == nil || *q.Timer != 20*time.Second {
		t.Fatalf("expected 20s timer, got %v", q.Timer)
	}
	if quiz.Questions[0].Timer != nil {
		t.Fatalf("expected untimed first question")
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(d *Draft)
	}{
		{"missing title", func(d *Draft) { d.Title = "" }},
		{"no questions", func(d *Draft) { d.Questions = nil }},
		{"bad type", func(d *Draft) { d.Questions[0].Type = "essay" }},
		{"gap in numbers", func(d *Draft) { d.Questions[2].Number = 4 }},
		{"duplicate number", func(d *Draft) { d.Questions[1].Number = 1 }},
		{"duplicate variant", func(d *Draft) { d.Questions[0].Variants = []string{"4", "4"} }},
		{"answer out of range", func(d *Draft) { d.Questions[0].Answer = []int{9} }},
		{"zero position", func(d *Draft) { d.Questions[0].Answer = []int{0} }},
		{"single with two answers", func(d *Draft) { d.Questions[0].Answer = []int{1, 2} }},
		{"partial sequence", func(d *Draft) { d.Questions[2].Answer = []int{1, 2} }},
		{"repeated answer", func(d *Draft) { d.Questions[1].Answer = []int{1, 1} }},
		{"negative timer", func(d *Draft) { d.Questions[1].Timer = -1 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := Sample(1)
			tc.mutate(&d)
			if err := Validate(d); !errors.Is(err, domain.ErrInvalidQuiz) {
				t.Fatalf("expected ErrInvalidQuiz, got %v", err)
			}
		})
	}
}
