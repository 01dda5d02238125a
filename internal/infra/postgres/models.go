package postgres

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"

	"quizgame-service/internal/domain"
)

type userRow struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID       int64           `bun:"id,pk,autoincrement"`
	Username string          `bun:"username,notnull"`
	Rating   decimal.Decimal `bun:"rating,type:numeric(14,2)"`
}

func (r userRow) toDomain() domain.User {
	return domain.User{ID: r.ID, Username: r.Username, Rating: r.Rating}
}

type organizationRow struct {
	bun.BaseModel `bun:"table:organizations,alias:o"`

	ID   int64  `bun:"id,pk,autoincrement"`
	Name string `bun:"name,notnull"`
}

type groupRow struct {
	bun.BaseModel `bun:"table:groups,alias:grp"`

	ID             int64  `bun:"id,pk,autoincrement"`
	OrganizationID int64  `bun:"organization_id,notnull"`
	Name           string `bun:"name,notnull"`
}

type quizRow struct {
	bun.BaseModel `bun:"table:quizzes,alias:qz"`

	ID           int64     `bun:"id,pk,autoincrement"`
	Title        string    `bun:"title,notnull"`
	Description  string    `bun:"description"`
	AuthorID     *int64    `bun:"author_id"`
	Tags         []string  `bun:"tags,array"`
	Rating       int       `bun:"rating"`
	VersionDate  time.Time `bun:"version_date,notnull"`
	OldVersionID *int64    `bun:"old_version_id"`
}

type questionRow struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID      int64   `bun:"id,pk,autoincrement"`
	QuizID  int64   `bun:"quiz_id,notnull"`
	Number  int     `bun:"number,notnull"`
	Type    string  `bun:"type,notnull"`
	Text    string  `bun:"text,notnull"`
	Answer  []int64 `bun:"answer,array"`
	TimerMS *int64  `bun:"timer_ms"`
	Points  int     `bun:"points"`
}

func (r questionRow) toDomain(variants []variantRow) domain.Question {
	q := domain.Question{
		ID:     r.ID,
		QuizID: r.QuizID,
		Number: r.Number,
		Type:   domain.QuestionType(r.Type),
		Text:   r.Text,
		Answer: r.Answer,
		Points: r.Points,
	}
	if r.TimerMS != nil {
		d := time.Duration(*r.TimerMS) * time.Millisecond
		q.Timer = &d
	}
	for _, v := range variants {
		q.Variants = append(q.Variants, domain.Variant{ID: v.ID, QuestionID: v.QuestionID, Text: v.Text})
	}
	return q
}

type variantRow struct {
	bun.BaseModel `bun:"table:variants,alias:v"`

	ID         int64  `bun:"id,pk,autoincrement"`
	QuestionID int64  `bun:"question_id,notnull"`
	Text       string `bun:"text,notnull"`
}

type gameRow struct {
	bun.BaseModel `bun:"table:games,alias:g"`

	ID                int64      `bun:"id,pk,autoincrement"`
	QuizID            int64      `bun:"quiz_id,notnull"`
	Pin               string     `bun:"pin,notnull"`
	Label             string     `bun:"label"`
	Online            bool       `bun:"online"`
	HostID            int64      `bun:"host_id,notnull"`
	GroupID           *int64     `bun:"group_id"`
	State             string     `bun:"state,notnull"`
	CurrentQuestionID *int64     `bun:"current_question_id"`
	TimerOn           bool       `bun:"timer_on"`
	CreatedAt         time.Time  `bun:"created_at,notnull"`
	UpdatedAt         time.Time  `bun:"updated_at,notnull"`
	StateChangedAt    time.Time  `bun:"state_changed_at,notnull"`
	FinishedAt        *time.Time `bun:"finished_at"`
}

func newGameRow(g domain.Game) gameRow {
	return gameRow{
		ID:                g.ID,
		QuizID:            g.QuizID,
		Pin:               g.Pin,
		Label:             g.Label,
		Online:            g.Online,
		HostID:            g.HostID,
		GroupID:           g.GroupID,
		State:             string(g.State),
		CurrentQuestionID: g.CurrentQuestionID,
		TimerOn:           g.TimerOn,
		CreatedAt:         g.CreatedAt,
		UpdatedAt:         g.UpdatedAt,
		StateChangedAt:    g.StateChangedAt,
		FinishedAt:        g.FinishedAt,
	}
}

func (r gameRow) toDomain() domain.Game {
	return domain.Game{
		ID:                r.ID,
		QuizID:            r.QuizID,
		Pin:               r.Pin,
		Label:             r.Label,
		Online:            r.Online,
		HostID:            r.HostID,
		GroupID:           r.GroupID,
		State:             domain.GameState(r.State),
		CurrentQuestionID: r.CurrentQuestionID,
		TimerOn:           r.TimerOn,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
		StateChangedAt:    r.StateChangedAt,
		FinishedAt:        r.FinishedAt,
	}
}

type generatedRow struct {
	bun.BaseModel `bun:"table:generated_questions,alias:gq"`

	ID            int64      `bun:"id,pk,autoincrement"`
	GameID        int64      `bun:"game_id,notnull"`
	QuestionID    int64      `bun:"question_id,notnull"`
	VariantsOrder []int64    `bun:"variants_order,array"`
	StartedAt     *time.Time `bun:"started_at"`
}

func (r generatedRow) toDomain(q *domain.Question) domain.GeneratedQuestion {
	return domain.GeneratedQuestion{
		ID:            r.ID,
		GameID:        r.GameID,
		QuestionID:    r.QuestionID,
		VariantsOrder: r.VariantsOrder,
		StartedAt:     r.StartedAt,
		Question:      q,
	}
}

type playerRow struct {
	bun.BaseModel `bun:"table:players,alias:p"`

	ID         int64           `bun:"id,pk,autoincrement"`
	GameID     int64           `bun:"game_id,notnull"`
	UserID     int64           `bun:"user_id,notnull"`
	Rating     decimal.Decimal `bun:"rating,type:numeric(14,2)"`
	CreatedAt  time.Time       `bun:"created_at,notnull"`
	FinishedAt *time.Time      `bun:"finished_at"`
}

func (r playerRow) toDomain() domain.Player {
	return domain.Player{
		ID:         r.ID,
		GameID:     r.GameID,
		UserID:     r.UserID,
		Rating:     r.Rating,
		CreatedAt:  r.CreatedAt,
		FinishedAt: r.FinishedAt,
	}
}

type answerRow struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ID         int64           `bun:"id,pk,autoincrement"`
	PlayerID   int64           `bun:"player_id,notnull"`
	QuestionID int64           `bun:"question_id,notnull"`
	Answer     []int64         `bun:"answer,array"`
	Correct    bool            `bun:"correct"`
	Points     decimal.Decimal `bun:"points,type:numeric(14,2)"`
	AnsweredAt time.Time       `bun:"answered_at,notnull"`
}

func (r answerRow) toDomain() domain.Answer {
	return domain.Answer{
		ID:         r.ID,
		PlayerID:   r.PlayerID,
		QuestionID: r.QuestionID,
		Answer:     r.Answer,
		Correct:    r.Correct,
		Points:     r.Points,
		AnsweredAt: r.AnsweredAt,
	}
}
