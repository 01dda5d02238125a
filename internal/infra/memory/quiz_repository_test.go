package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quizgame-service/internal/domain"
)

func TestQuizRepositoryCaches(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(sampleQuiz())}
	repo := NewQuizRepository(loader, time.Minute)

	for i := 0; i < 2; i++ {
		quiz, err := repo.GetQuiz(context.Background(), 1)
		if err != nil {
			t.Fatalf("get quiz: %v", err)
		}
		if len(quiz.Questions) != 1 {
			t.Fatalf("expected 1 question, got %d", len(quiz.Questions))
		}
	}
	if n := loader.calls.Load(); n != 1 {
		t.Fatalf("expected loader once, got %d", n)
	}
}

func TestQuizRepositoryExpires(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(sampleQuiz())}
	repo := NewQuizRepository(loader, time.Minute)
	now := time.Now()
	repo.clock = func() time.Time { return now }

	if _, err := repo.GetQuiz(context.Background(), 1); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := repo.GetQuiz(context.Background(), 1); err != nil {
		t.Fatalf("get quiz after expiry: %v", err)
	}
	if n := loader.calls.Load(); n != 2 {
		t.Fatalf("expected reload after ttl, got %d calls", n)
	}
}

func TestQuizRepositoryInvalidate(t *testing.T) {
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(sampleQuiz())}
	repo := NewQuizRepository(loader, time.Minute)

	if _, err := repo.GetQuiz(context.Background(), 1); err != nil {
		t.Fatalf("get quiz: %v", err)
	}
	repo.Invalidate(1)
	if _, err := repo.GetQuiz(context.Background(), 1); err != nil {
		t.Fatalf("get quiz after invalidate: %v", err)
	}
	if n := loader.calls.Load(); n != 2 {
		t.Fatalf("expected reload after invalidate, got %d loads", n)
	}
}

func TestQuizRepositoryCollapsesConcurrentMisses(t *testing.T) {
	release := make(chan struct{})
	loader := &countingLoader{QuizLoader: NewStaticQuizLoader(sampleQuiz()), gate: release}
	repo := NewQuizRepository(loader, time.Minute)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := repo.GetQuiz(context.Background(), 1); err != nil {
				t.Errorf("get quiz: %v", err)
			}
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	if n := loader.calls.Load(); n != 1 {
		t.Fatalf("expected one load for concurrent misses, got %d", n)
	}
}

func TestQuizRepositoryMissing(t *testing.T) {
	repo := NewQuizRepository(NewStaticQuizLoader(), time.Minute)
	if _, err := repo.GetQuiz(context.Background(), 42); !errors.Is(err, domain.ErrQuizNotFound) {
		t.Fatalf("expected ErrQuizNotFound, got %v", err)
	}
}

type countingLoader struct {
	QuizLoader
	calls atomic.Int32
	gate  chan struct{}
}

func (l *countingLoader) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	l.calls.Add(1)
	if l.gate != nil {
		<-l.gate
	}
	return l.QuizLoader.LoadQuiz(ctx, quizID)
}

func sampleQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    1,
		Title: "Arithmetic",
		Questions: []domain.Question{
			{
				ID:     10,
				QuizID: 1,
				Number: 1,
				Type:   domain.QuestionSingle,
				Text:   "What is 2 + 2?",
				Variants: []domain.Variant{
					{ID: 100, QuestionID: 10, Text: "3"},
					{ID: 101, QuestionID: 10, Text: "4"},
				},
				Answer: []int64{101},
				Points: 1,
			},
		},
	}
}
