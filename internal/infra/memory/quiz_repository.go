package memory

import (
	"context"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"quizgame-service/internal/domain"
)

// QuizLoader fetches quiz content from the system of record.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
}

// QuizRepository is the question bank used at game creation. Quizzes are
// immutable once published, so entries only expire to bound memory.
type QuizRepository struct {
	loader QuizLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	cache map[int64]cachedQuiz
}

type cachedQuiz struct {
	quiz      domain.Quiz
	expiresAt time.Time
}

func NewQuizRepository(loader QuizLoader, ttl time.Duration) *QuizRepository {
	return &QuizRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		cache:  make(map[int64]cachedQuiz),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	if quiz, ok := r.cached(quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(strconv.FormatInt(quizID, 10), func() (interface{}, error) {
		if quiz, ok := r.cached(quizID); ok {
			return quiz, nil
		}
		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		r.mu.Lock()
		r.cache[quizID] = cachedQuiz{quiz: quiz, expiresAt: r.clock().Add(ttlWithJitter(r.ttl))}
		r.mu.Unlock()
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

func (r *QuizRepository) cached(quizID int64) (domain.Quiz, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.cache[quizID]
	if !ok || !entry.expiresAt.After(r.clock()) {
		return domain.Quiz{}, false
	}
	return entry.quiz, true
}

// Invalidate drops a cached quiz.
func (r *QuizRepository) Invalidate(quizID int64) {
	r.mu.Lock()
	delete(r.cache, quizID)
	r.mu.Unlock()
}

// StaticQuizLoader serves a fixed set of quizzes.
type StaticQuizLoader struct {
	quizzes map[int64]domain.Quiz
}

func NewStaticQuizLoader(quizzes ...domain.Quiz) *StaticQuizLoader {
	l := &StaticQuizLoader{quizzes: make(map[int64]domain.Quiz, len(quizzes))}
	for _, q := range quizzes {
		l.quizzes[q.ID] = q
	}
	return l
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID int64) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

// GetQuiz lets a static loader stand in for a question bank directly.
func (l *StaticQuizLoader) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	return l.LoadQuiz(ctx, quizID)
}

// ttlWithJitter adds up to 10% so entries loaded together expire apart.
func ttlWithJitter(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ttl + time.Duration(rand.Int64N(int64(ttl)/10+1))
}
