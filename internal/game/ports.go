package game

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"quizgame-service/internal/domain"
)

// Repo is the persistence surface the engine needs. Lookups return the
// domain not-found errors; games and generated questions come back with their
// current question and underlying question loaded.
type Repo interface {
	CreateGame(ctx context.Context, g *domain.Game) error
	PinInUse(ctx context.Context, pin string) (bool, error)
	Game(ctx context.Context, id int64) (domain.Game, error)
	// GameForUpdate loads the game and holds a row lock until the transaction ends.
	GameForUpdate(ctx context.Context, id int64) (domain.Game, error)
	GameByPin(ctx context.Context, pin string) (domain.Game, error)
	UpdateGame(ctx context.Context, g domain.Game) error
	TouchGame(ctx context.Context, id int64, at time.Time) error
	HostedGames(ctx context.Context, userID int64, runningOnly bool) ([]domain.Game, error)
	PlayedGames(ctx context.Context, userID int64, runningOnly bool) ([]domain.Game, error)

	CreateGeneratedQuestion(ctx context.Context, q *domain.GeneratedQuestion) error
	GeneratedQuestionByNumber(ctx context.Context, gameID int64, number int) (domain.GeneratedQuestion, error)
	StartQuestion(ctx context.Context, id int64, at time.Time) error

	// InsertPlayer creates p unless the (user, game) pair already exists, in
	// which case p is overwritten with the stored row and created is false.
	InsertPlayer(ctx context.Context, p *domain.Player) (created bool, err error)
	PlayerByUser(ctx context.Context, gameID, userID int64) (domain.Player, error)
	PlayerForUpdate(ctx context.Context, id int64) (domain.Player, error)
	Players(ctx context.Context, gameID int64) ([]domain.Player, error)
	FinishPlayers(ctx context.Context, gameID int64, at time.Time) error
	SetPlayerRating(ctx context.Context, playerID int64, rating decimal.Decimal) error

	// UpsertAnswer inserts or overwrites the answer keyed by (player, question).
	UpsertAnswer(ctx context.Context, a *domain.Answer) error
	Answers(ctx context.Context, playerID int64) ([]domain.Answer, error)
	PlayerPoints(ctx context.Context, playerID int64) (decimal.Decimal, error)

	User(ctx context.Context, id int64) (domain.User, error)
	AddUserRating(ctx context.Context, userID int64, delta decimal.Decimal) error

	Stats(ctx context.Context) (domain.Stats, error)
}

// Store runs repository work either atomically or as a plain read.
type Store interface {
	// Tx commits everything fn wrote or nothing if fn returns an error.
	Tx(ctx context.Context, fn func(ctx context.Context, r Repo) error) error
	View(ctx context.Context, fn func(ctx context.Context, r Repo) error) error
}

// QuestionBank loads quiz content.
type QuestionBank interface {
	GetQuiz(ctx context.Context, quizID int64) (domain.Quiz, error)
}

// Library is the organization quiz library of the group a game was started for.
type Library interface {
	LinkQuiz(ctx context.Context, groupID, quizID int64) error
}

// Locker grants exclusive access to a key across engine instances sharing it.
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
