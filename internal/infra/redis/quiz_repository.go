package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quizgame-service/internal/domain"
	"quizgame-service/internal/logger"
)

// QuizLoader fetches quiz content from the system of record.
type QuizLoader interface {
	LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
}

// QuizRepository caches whole quizzes in Redis as JSON (key quiz:{id}) so every
// instance shares one copy, and falls back to the loader on a miss.
type QuizRepository struct {
	client *redis.Client
	loader QuizLoader
	ttl    time.Duration
	log    *logger.Logger
	sf     singleflight.Group
}

func NewQuizRepository(client *redis.Client, loader QuizLoader, ttl time.Duration, log *logger.Logger) *QuizRepository {
	return &QuizRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
		log:    log.With("component", "redis.QuizRepository"),
	}
}

func (r *QuizRepository) GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	if quiz, ok := r.cached(ctx, quizID); ok {
		return quiz, nil
	}

	result, err, _ := r.sf.Do(strconv.FormatInt(quizID, 10), func() (interface{}, error) {
		// another caller may have filled the cache while we waited
		if quiz, ok := r.cached(ctx, quizID); ok {
			return quiz, nil
		}
		quiz, err := r.loader.LoadQuiz(ctx, quizID)
		if err != nil {
			return domain.Quiz{}, err
		}
		raw, err := json.Marshal(quiz)
		if err != nil {
			return domain.Quiz{}, err
		}
		if err := r.client.Set(ctx, quizKey(quizID), raw, r.ttlWithJitter()).Err(); err != nil {
			r.log.Warn("cache quiz", "quiz", quizID, "error", err)
		}
		return quiz, nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return result.(domain.Quiz), nil
}

// Invalidate drops the cached copy of a quiz.
func (r *QuizRepository) Invalidate(ctx context.Context, quizID int64) error {
	return r.client.Del(ctx, quizKey(quizID)).Err()
}

func (r *QuizRepository) cached(ctx context.Context, quizID int64) (domain.Quiz, bool) {
	raw, err := r.client.Get(ctx, quizKey(quizID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.log.Warn("read cached quiz", "quiz", quizID, "error", err)
		}
		return domain.Quiz{}, false
	}
	var quiz domain.Quiz
	if err := json.Unmarshal(raw, &quiz); err != nil {
		r.log.Warn("decode cached quiz", "quiz", quizID, "error", err)
		return domain.Quiz{}, false
	}
	return quiz, true
}

func quizKey(quizID int64) string {
	return "quiz:" + strconv.FormatInt(quizID, 10)
}

func (r *QuizRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	return r.ttl + time.Duration(rand.Int64N(int64(r.ttl)/10+1))
}
