package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quizgame-service/internal/domain"
)

// QuizLoader reads quiz content for the question bank caches. It only reads,
// so it uses a plain pgx pool next to the bun store.
type QuizLoader struct {
	pool *pgxpool.Pool
}

func NewQuizLoader(pool *pgxpool.Pool) *QuizLoader {
	return &QuizLoader{pool: pool}
}

func (l *QuizLoader) LoadQuiz(ctx context.Context, quizID int64) (domain.Quiz, error) {
	var (
		quiz     domain.Quiz
		authorID *int64
	)
	err := l.pool.QueryRow(ctx, `
SELECT id, title, description, author_id, tags, rating, version_date, old_version_id
FROM quizzes WHERE id = $1`, quizID).Scan(
		&quiz.ID, &quiz.Title, &quiz.Description, &authorID, &quiz.Tags, &quiz.Rating, &quiz.VersionDate, &quiz.OldVersionID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load quiz: %w", err)
	}
	if authorID != nil {
		quiz.AuthorID = *authorID
	}

	rows, err := l.pool.Query(ctx, `
SELECT id, number, type, text, answer, timer_ms, points
FROM questions WHERE quiz_id = $1 ORDER BY number`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}
	index := make(map[int64]int)
	for rows.Next() {
		var (
			q       domain.Question
			kind    string
			timerMS *int64
		)
		if err := rows.Scan(&q.ID, &q.Number, &kind, &q.Text, &q.Answer, &timerMS, &q.Points); err != nil {
			rows.Close()
			return domain.Quiz{}, fmt.Errorf("scan question: %w", err)
		}
		q.QuizID = quizID
		q.Type = domain.QuestionType(kind)
		if timerMS != nil {
			d := time.Duration(*timerMS) * time.Millisecond
			q.Timer = &d
		}
		index[q.ID] = len(quiz.Questions)
		quiz.Questions = append(quiz.Questions, q)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load questions: %w", err)
	}

	rows, err = l.pool.Query(ctx, `
SELECT v.id, v.question_id, v.text
FROM variants v JOIN questions q ON q.id = v.question_id
WHERE q.quiz_id = $1 ORDER BY v.id`, quizID)
	if err != nil {
		return domain.Quiz{}, fmt.Errorf("load variants: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v domain.Variant
		if err := rows.Scan(&v.ID, &v.QuestionID, &v.Text); err != nil {
			return domain.Quiz{}, fmt.Errorf("scan variant: %w", err)
		}
		if i, ok := index[v.QuestionID]; ok {
			quiz.Questions[i].Variants = append(quiz.Questions[i].Variants, v)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.Quiz{}, fmt.Errorf("load variants: %w", err)
	}
	return quiz, nil
}
