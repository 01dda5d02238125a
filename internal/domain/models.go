package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuestionType selects how a submitted answer is compared with the answer key.
type QuestionType string

const (
	QuestionSingle   QuestionType = "single"
	QuestionMulti    QuestionType = "multi"
	QuestionSequence QuestionType = "sequence"
)

// Valid reports whether t is one of the known question types.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionSingle, QuestionMulti, QuestionSequence:
		return true
	}
	return false
}

// GameState is the position of a game in its lifecycle.
type GameState string

const (
	StatePlayersWaiting GameState = "players_waiting"
	StateAnswering      GameState = "answering"
	StateCheck          GameState = "check"
	StateFinish         GameState = "finish"
)

// Quiz is an immutable template of ordered questions. Editing produces a new
// quiz that points at the previous one through OldVersionID.
type Quiz struct {
	ID           int64      `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	AuthorID     int64      `json:"authorId"`
	Tags         []string   `json:"tags"`
	Questions    []Question `json:"questions"`
	Rating       int        `json:"rating"`
	VersionDate  time.Time  `json:"versionDate"`
	OldVersionID *int64     `json:"oldVersionId,omitempty"`
}

// Question returns the question with the given number.
func (q Quiz) Question(number int) (Question, bool) {
	for _, question := range q.Questions {
		if question.Number == number {
			return question, true
		}
	}
	return Question{}, false
}

// Question belongs to exactly one quiz. Answer holds variant ids.
type Question struct {
	ID       int64          `json:"id"`
	QuizID   int64          `json:"quizId"`
	Number   int            `json:"number"`
	Type     QuestionType   `json:"type"`
	Text     string         `json:"text"`
	Variants []Variant      `json:"variants"`
	Answer   []int64        `json:"answer"`
	Timer    *time.Duration `json:"timer,omitempty"` // nil means untimed
	Points   int            `json:"points"`
}

// HasVariant reports whether id is one of the question's variants.
func (q Question) HasVariant(id int64) bool {
	for _, v := range q.Variants {
		if v.ID == id {
			return true
		}
	}
	return false
}

// Variant is one selectable option of a question.
type Variant struct {
	ID         int64  `json:"id"`
	QuestionID int64  `json:"questionId"`
	Text       string `json:"text"`
}

// Game is a running or completed playthrough of a quiz.
type Game struct {
	ID                int64              `json:"id"`
	QuizID            int64              `json:"quizId"`
	Pin               string             `json:"pin"`
	Label             string             `json:"label"`
	Online            bool               `json:"online"`
	HostID            int64              `json:"hostId"`
	GroupID           *int64             `json:"groupId,omitempty"`
	State             GameState          `json:"state"`
	CurrentQuestionID *int64             `json:"currentQuestionId,omitempty"`
	CurrentQuestion   *GeneratedQuestion `json:"currentQuestion,omitempty"`
	TimerOn           bool               `json:"timerOn"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
	StateChangedAt    time.Time          `json:"stateChangedAt"`
	FinishedAt        *time.Time         `json:"finishedAt,omitempty"`
}

// Timer is the signed distance from the current question's deadline: negative
// values are time remaining, non-negative values are overtime. It is nil when
// there is no current question or the question is untimed.
func (g Game) Timer(now time.Time) *time.Duration {
	if g.CurrentQuestion == nil {
		return nil
	}
	limit := g.CurrentQuestion.Timer()
	if limit == nil {
		return nil
	}
	d := now.Sub(g.StateChangedAt) - *limit
	return &d
}

// Finished reports whether the game reached its terminal state.
func (g Game) Finished() bool {
	return g.State == StateFinish
}

// GeneratedQuestion is a game-scoped instance of a question with its own
// presentation order. Number, Type, Answer, Timer and Points read through the
// underlying question.
type GeneratedQuestion struct {
	ID            int64      `json:"id"`
	GameID        int64      `json:"gameId"`
	QuestionID    int64      `json:"questionId"`
	VariantsOrder []int64    `json:"variantsOrder"`
	StartedAt     *time.Time `json:"startedAt,omitempty"`
	Question      *Question  `json:"question,omitempty"`
}

func (g GeneratedQuestion) Number() int {
	if g.Question == nil {
		return 0
	}
	return g.Question.Number
}

func (g GeneratedQuestion) Type() QuestionType {
	if g.Question == nil {
		return ""
	}
	return g.Question.Type
}

func (g GeneratedQuestion) Answer() []int64 {
	if g.Question == nil {
		return nil
	}
	return g.Question.Answer
}

func (g GeneratedQuestion) Timer() *time.Duration {
	if g.Question == nil {
		return nil
	}
	return g.Question.Timer
}

func (g GeneratedQuestion) Points() int {
	if g.Question == nil {
		return 0
	}
	return g.Question.Points
}

// Player links a user to a game and carries the per-game rating.
type Player struct {
	ID         int64           `json:"id"`
	GameID     int64           `json:"gameId"`
	UserID     int64           `json:"userId"`
	Rating     decimal.Decimal `json:"rating"`
	CreatedAt  time.Time       `json:"createdAt"`
	FinishedAt *time.Time      `json:"finishedAt,omitempty"`
}

// Answer is a player's latest response to one generated question.
type Answer struct {
	ID         int64           `json:"id"`
	PlayerID   int64           `json:"playerId"`
	QuestionID int64           `json:"questionId"`
	Answer     []int64         `json:"answer"`
	Correct    bool            `json:"correct"`
	Points     decimal.Decimal `json:"points"`
	AnsweredAt time.Time       `json:"answeredAt"`
}

// User is owned by the auth collaborator; only its lifetime rating is touched here.
type User struct {
	ID       int64           `json:"id"`
	Username string          `json:"username"`
	Rating   decimal.Decimal `json:"rating"`
}

// Stats summarises the platform.
type Stats struct {
	Users         int `json:"usersCount"`
	Games         int `json:"gamesCount"`
	Organizations int `json:"organizationsCount"`
	Groups        int `json:"groupsCount"`
	Quizzes       int `json:"quizzesCount"`
}

// Organization owns groups and a quiz library.
type Organization struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Group is a team inside an organization that games can be started for.
type Group struct {
	ID             int64  `json:"id"`
	OrganizationID int64  `json:"organizationId"`
	Name           string `json:"name"`
}
