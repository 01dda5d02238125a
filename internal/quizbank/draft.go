// Package quizbank validates authored quiz content before it is stored.
package quizbank

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"

	"quizgame-service/internal/domain"
)

var validate = validator.New()

// Draft is a quiz as authored. Answers are 1-based positions into Variants.
type Draft struct {
	Title       string          `json:"title" yaml:"title" validate:"required,max=255"`
	Description string          `json:"description" yaml:"description" validate:"max=2000"`
	AuthorID    int64           `json:"authorId" yaml:"author_id"`
	Tags        []string        `json:"tags" yaml:"tags" validate:"dive,required,max=64"`
	Questions   []QuestionDraft `json:"questions" yaml:"questions" validate:"required,min=1,dive"`
}

type QuestionDraft struct {
	Number   int      `json:"number" yaml:"number" validate:"required,min=1"`
	Type     string   `json:"type" yaml:"type" validate:"required,oneof=single multi sequence"`
	Text     string   `json:"text" yaml:"text" validate:"required"`
	Variants []string `json:"variants" yaml:"variants" validate:"required,min=1,dive,required,max=255"`
	Answer   []int    `json:"answer" yaml:"answer" validate:"required,min=1,dive,min=1"`
	// Timer is in seconds; zero means untimed.
	Timer  int `json:"timer" yaml:"timer" validate:"min=0"`
	Points int `json:"points" yaml:"points" validate:"min=0"`
}

// Validate checks field constraints and the rules that span fields: question
// numbers are 1..N without gaps, variant labels are unique per question,
// answers point at existing variants, and the answer size fits the type.
func Validate(d Draft) error {
	if err := validate.Struct(d); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			fe := ve[0]
			return fmt.Errorf("%s failed %q: %w", fe.Namespace(), fe.Tag(), domain.ErrInvalidQuiz)
		}
		return fmt.Errorf("%v: %w", err, domain.ErrInvalidQuiz)
	}

	numbers := make([]int, len(d.Questions))
	for i, q := range d.Questions {
		numbers[i] = q.Number
		if err := validateQuestion(q); err != nil {
			return fmt.Errorf("question %d: %w", q.Number, err)
		}
	}
	sort.Ints(numbers)
	for i, n := range numbers {
		if n != i+1 {
			return fmt.Errorf("question numbers must run 1..%d, found %d: %w", len(numbers), n, domain.ErrInvalidQuiz)
		}
	}
	return nil
}

func validateQuestion(q QuestionDraft) error {
	labels := make(map[string]bool, len(q.Variants))
	for _, v := range q.Variants {
		if labels[v] {
			return fmt.Errorf("duplicate variant %q: %w", v, domain.ErrInvalidQuiz)
		}
		labels[v] = true
	}

	used := make(map[int]bool, len(q.Answer))
	for _, pos := range q.Answer {
		if pos > len(q.Variants) {
			return fmt.Errorf("answer position %d out of range: %w", pos, domain.ErrInvalidQuiz)
		}
		if used[pos] {
			return fmt.Errorf("answer position %d repeated: %w", pos, domain.ErrInvalidQuiz)
		}
		used[pos] = true
	}

	switch domain.QuestionType(q.Type) {
	case domain.QuestionSingle:
		if len(q.Answer) != 1 {
			return fmt.Errorf("single choice needs one answer: %w", domain.ErrInvalidQuiz)
		}
	case domain.QuestionSequence:
		if len(q.Answer) != len(q.Variants) {
			return fmt.Errorf("sequence must order every variant: %w", domain.ErrInvalidQuiz)
		}
	}
	return nil
}

// Build validates d and converts it to a quiz ready for a store's CreateQuiz.
// Question answers still hold positions; the store rewrites them to variant ids.
func Build(d Draft, now time.Time) (domain.Quiz, error) {
	if err := Validate(d); err != nil {
		return domain.Quiz{}, err
	}
	quiz := domain.Quiz{
		Title:       d.Title,
		Description: d.Description,
		AuthorID:    d.AuthorID,
		Tags:        append([]string(nil), d.Tags...),
		VersionDate: now,
	}
	for _, qd := range d.Questions {
		q := domain.Question{
			Number: qd.Number,
			Type:   domain.QuestionType(qd.Type),
			Text:   qd.Text,
			Points: qd.Points,
		}
		if qd.Timer > 0 {
			t := time.Duration(qd.Timer) * time.Second
			q.Timer = &t
		}
		for _, v := range qd.Variants {
			q.Variants = append(q.Variants, domain.Variant{Text: v})
		}
		for _, pos := range qd.Answer {
			q.Answer = append(q.Answer, int64(pos))
		}
		quiz.Questions = append(quiz.Questions, q)
	}
	sort.Slice(quiz.Questions, func(i, j int) bool { return quiz.Questions[i].Number < quiz.Questions[j].Number })
	return quiz, nil
}

// Sample is the quiz the seed command installs.
func Sample(authorID int64) Draft {
	return Draft{
		Title:       "Warm-up",
		Description: "A short quiz to try the game flow.",
		AuthorID:    authorID,
		Tags:        []string{"demo"},
		Questions: []QuestionDraft{
			{Number: 1, Type: "single", Text: "What is 2 + 2?", Variants: []string{"3", "4", "5"}, Answer: []int{2}, Points: 5},
			{Number: 2, Type: "multi", Text: "Which of these are prime?", Variants: []string{"2", "4", "7", "9"}, Answer: []int{1, 3}, Timer: 20, Points: 10},
			{Number: 3, Type: "sequence", Text: "Order from smallest to largest", Variants: []string{"10", "1", "5"}, Answer: []int{2, 3, 1}, Timer: 30, Points: 10},
		},
	}
}
