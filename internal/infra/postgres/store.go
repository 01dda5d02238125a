package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"quizgame-service/internal/domain"
	"quizgame-service/internal/game"
)

// Store is the Postgres game.Store built on bun. Row locks and unique
// constraints carry the engine's consistency rules across instances.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, r game.Repo) error) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &repo{db: tx})
	})
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r game.Repo) error) error {
	return fn(ctx, &repo{db: s.db})
}

// foreign keys whose violation means a referenced row is missing
var missingRefs = map[string]error{
	"players_user_id_fkey":                 domain.ErrUserNotFound,
	"players_game_id_fkey":                 domain.ErrGameNotFound,
	"answers_player_id_fkey":               domain.ErrPlayerNotFound,
	"answers_question_id_fkey":             domain.ErrQuestionNotFound,
	"games_quiz_id_fkey":                   domain.ErrQuizNotFound,
	"games_host_id_fkey":                   domain.ErrUserNotFound,
	"generated_questions_game_id_fkey":     domain.ErrGameNotFound,
	"generated_questions_question_id_fkey": domain.ErrQuestionNotFound,
}

// mapErr translates driver errors into domain errors. notFound replaces sql.ErrNoRows.
func mapErr(err, notFound error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) && notFound != nil {
		return notFound
	}
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		constraint := pgErr.Field('n')
		switch pgErr.Field('C') {
		case "23505":
			return fmt.Errorf("%s: %w", constraint, domain.ErrConflict)
		case "23503":
			if target, ok := missingRefs[constraint]; ok {
				return fmt.Errorf("%s: %w", constraint, target)
			}
			return fmt.Errorf("%s: %w", constraint, domain.ErrConflict)
		}
	}
	return err
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// CreateUser registers a user with zero rating.
func (s *Store) CreateUser(ctx context.Context, username string) (domain.User, error) {
	row := userRow{Username: username, Rating: decimal.Zero}
	if _, err := s.db.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
		return domain.User{}, mapErr(err, nil)
	}
	return row.toDomain(), nil
}

// UserByName looks a user up by username.
func (s *Store) UserByName(ctx context.Context, username string) (domain.User, error) {
	var row userRow
	if err := s.db.NewSelect().Model(&row).Where("u.username = ?", username).Scan(ctx); err != nil {
		return domain.User{}, mapErr(err, domain.ErrUserNotFound)
	}
	return row.toDomain(), nil
}

func (s *Store) CreateOrganization(ctx context.Context, name string) (domain.Organization, error) {
	row := organizationRow{Name: name}
	if _, err := s.db.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
		return domain.Organization{}, mapErr(err, nil)
	}
	return domain.Organization{ID: row.ID, Name: row.Name}, nil
}

func (s *Store) CreateGroup(ctx context.Context, orgID int64, name string) (domain.Group, error) {
	row := groupRow{OrganizationID: orgID, Name: name}
	if _, err := s.db.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
		return domain.Group{}, mapErr(err, nil)
	}
	return domain.Group{ID: row.ID, OrganizationID: row.OrganizationID, Name: row.Name}, nil
}

// LinkQuiz adds the quiz to the library of the group's organization. Linking
// twice is a no-op.
func (s *Store) LinkQuiz(ctx context.Context, groupID, quizID int64) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO organization_quizzes (organization_id, quiz_id)
SELECT organization_id, ? FROM groups WHERE id = ?
ON CONFLICT DO NOTHING`, quizID, groupID)
	return mapErr(err, nil)
}

// CreateQuiz stores quiz in one transaction. Question answers are given as
// 1-based variant positions and come back as variant ids.
func (s *Store) CreateQuiz(ctx context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		qr := quizRow{
			Title:        quiz.Title,
			Description:  quiz.Description,
			Tags:         nonNil(quiz.Tags),
			Rating:       quiz.Rating,
			VersionDate:  quiz.VersionDate,
			OldVersionID: quiz.OldVersionID,
		}
		if quiz.AuthorID != 0 {
			qr.AuthorID = &quiz.AuthorID
		}
		if qr.VersionDate.IsZero() {
			qr.VersionDate = time.Now()
		}
		if _, err := tx.NewInsert().Model(&qr).Returning("id").Exec(ctx); err != nil {
			return fmt.Errorf("insert quiz: %w", mapErr(err, nil))
		}
		quiz.ID = qr.ID

		questions := make([]domain.Question, len(quiz.Questions))
		for i, q := range quiz.Questions {
			if !q.Type.Valid() {
				return fmt.Errorf("question %d type %q: %w", q.Number, q.Type, domain.ErrInvalidQuiz)
			}
			row := questionRow{QuizID: quiz.ID, Number: q.Number, Type: string(q.Type), Text: q.Text, Answer: []int64{}, Points: q.Points}
			if q.Timer != nil {
				ms := q.Timer.Milliseconds()
				row.TimerMS = &ms
			}
			if _, err := tx.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
				return fmt.Errorf("insert question %d: %w", q.Number, mapErr(err, nil))
			}

			variants := make([]variantRow, len(q.Variants))
			for j, v := range q.Variants {
				variants[j] = variantRow{QuestionID: row.ID, Text: v.Text}
			}
			if len(variants) > 0 {
				if _, err := tx.NewInsert().Model(&variants).Returning("id").Exec(ctx); err != nil {
					return fmt.Errorf("insert variants of question %d: %w", q.Number, mapErr(err, nil))
				}
			}

			answer := make([]int64, len(q.Answer))
			for k, pos := range q.Answer {
				if pos < 1 || int(pos) > len(variants) {
					return fmt.Errorf("question %d answer position %d: %w", q.Number, pos, domain.ErrInvalidQuiz)
				}
				answer[k] = variants[pos-1].ID
			}
			row.Answer = answer
			if _, err := tx.NewUpdate().Model(&row).Column("answer").WherePK().Exec(ctx); err != nil {
				return fmt.Errorf("set answer of question %d: %w", q.Number, err)
			}
			questions[i] = row.toDomain(variants)
		}
		quiz.Questions = questions
		return nil
	})
	if err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

type repo struct {
	db bun.IDB
}

func (r *repo) CreateGame(ctx context.Context, g *domain.Game) error {
	row := newGameRow(*g)
	if _, err := r.db.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
		return mapErr(err, nil)
	}
	g.ID = row.ID
	return nil
}

func (r *repo) PinInUse(ctx context.Context, pin string) (bool, error) {
	return r.db.NewSelect().Model((*gameRow)(nil)).
		Where("g.pin = ?", pin).
		Where("g.state <> ?", string(domain.StateFinish)).
		Exists(ctx)
}

func (r *repo) Game(ctx context.Context, id int64) (domain.Game, error) {
	return r.game(ctx, r.db.NewSelect().Where("g.id = ?", id))
}

func (r *repo) GameForUpdate(ctx context.Context, id int64) (domain.Game, error) {
	return r.game(ctx, r.db.NewSelect().Where("g.id = ?", id).For("UPDATE OF g"))
}

func (r *repo) GameByPin(ctx context.Context, pin string) (domain.Game, error) {
	return r.game(ctx, r.db.NewSelect().
		Where("g.pin = ?", pin).
		Where("g.state <> ?", string(domain.StateFinish)))
}

func (r *repo) game(ctx context.Context, q *bun.SelectQuery) (domain.Game, error) {
	var row gameRow
	if err := q.Model(&row).Limit(1).Scan(ctx); err != nil {
		return domain.Game{}, mapErr(err, domain.ErrGameNotFound)
	}
	return r.loadCurrent(ctx, row.toDomain())
}

func (r *repo) loadCurrent(ctx context.Context, g domain.Game) (domain.Game, error) {
	if g.CurrentQuestionID == nil {
		return g, nil
	}
	var row generatedRow
	if err := r.db.NewSelect().Model(&row).Where("gq.id = ?", *g.CurrentQuestionID).Scan(ctx); err != nil {
		return domain.Game{}, mapErr(err, domain.ErrQuestionNotFound)
	}
	q, err := r.generated(ctx, row)
	if err != nil {
		return domain.Game{}, err
	}
	g.CurrentQuestion = &q
	return g, nil
}

func (r *repo) generated(ctx context.Context, row generatedRow) (domain.GeneratedQuestion, error) {
	q, err := r.question(ctx, row.QuestionID)
	if err != nil {
		return domain.GeneratedQuestion{}, err
	}
	return row.toDomain(&q), nil
}

func (r *repo) question(ctx context.Context, id int64) (domain.Question, error) {
	var row questionRow
	if err := r.db.NewSelect().Model(&row).Where("q.id = ?", id).Scan(ctx); err != nil {
		return domain.Question{}, mapErr(err, domain.ErrQuestionNotFound)
	}
	var variants []variantRow
	if err := r.db.NewSelect().Model(&variants).Where("v.question_id = ?", id).Order("v.id").Scan(ctx); err != nil {
		return domain.Question{}, err
	}
	return row.toDomain(variants), nil
}

func (r *repo) UpdateGame(ctx context.Context, g domain.Game) error {
	row := newGameRow(g)
	res, err := r.db.NewUpdate().Model(&row).
		Column("label", "online", "state", "current_question_id", "timer_on", "updated_at", "state_changed_at", "finished_at").
		WherePK().
		Exec(ctx)
	return affected(res, err, domain.ErrGameNotFound)
}

func (r *repo) TouchGame(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.NewUpdate().Model((*gameRow)(nil)).
		Set("updated_at = ?", at).
		Where("g.id = ?", id).
		Exec(ctx)
	return affected(res, err, domain.ErrGameNotFound)
}

func affected(res sql.Result, err, notFound error) error {
	if err != nil {
		return mapErr(err, notFound)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound
	}
	return nil
}

func (r *repo) HostedGames(ctx context.Context, userID int64, runningOnly bool) ([]domain.Game, error) {
	return r.listGames(ctx, r.db.NewSelect().Where("g.host_id = ?", userID), runningOnly)
}

func (r *repo) PlayedGames(ctx context.Context, userID int64, runningOnly bool) ([]domain.Game, error) {
	return r.listGames(ctx, r.db.NewSelect().
		Join("JOIN players AS p ON p.game_id = g.id").
		Where("p.user_id = ?", userID), runningOnly)
}

func (r *repo) listGames(ctx context.Context, q *bun.SelectQuery, runningOnly bool) ([]domain.Game, error) {
	var rows []gameRow
	q = q.Model(&rows).Order("g.created_at DESC", "g.id DESC")
	if runningOnly {
		q = q.Where("g.state <> ?", string(domain.StateFinish))
	}
	if err := q.Scan(ctx); err != nil {
		return nil, err
	}
	games := make([]domain.Game, 0, len(rows))
	for _, row := range rows {
		g, err := r.loadCurrent(ctx, row.toDomain())
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, nil
}

func (r *repo) CreateGeneratedQuestion(ctx context.Context, q *domain.GeneratedQuestion) error {
	row := generatedRow{
		GameID:        q.GameID,
		QuestionID:    q.QuestionID,
		VariantsOrder: nonNil(q.VariantsOrder),
		StartedAt:     q.StartedAt,
	}
	if _, err := r.db.NewInsert().Model(&row).Returning("id").Exec(ctx); err != nil {
		return mapErr(err, nil)
	}
	q.ID = row.ID
	return nil
}

func (r *repo) GeneratedQuestionByNumber(ctx context.Context, gameID int64, number int) (domain.GeneratedQuestion, error) {
	var row generatedRow
	err := r.db.NewSelect().Model(&row).
		Join("JOIN questions AS q ON q.id = gq.question_id").
		Where("gq.game_id = ?", gameID).
		Where("q.number = ?", number).
		Scan(ctx)
	if err != nil {
		return domain.GeneratedQuestion{}, mapErr(err, domain.ErrQuestionNotFound)
	}
	return r.generated(ctx, row)
}

func (r *repo) StartQuestion(ctx context.Context, id int64, at time.Time) error {
	res, err := r.db.NewUpdate().Model((*generatedRow)(nil)).
		Set("started_at = ?", at).
		Where("gq.id = ?", id).
		Exec(ctx)
	return affected(res, err, domain.ErrQuestionNotFound)
}

func (r *repo) InsertPlayer(ctx context.Context, p *domain.Player) (bool, error) {
	row := playerRow{GameID: p.GameID, UserID: p.UserID, Rating: p.Rating, CreatedAt: p.CreatedAt}
	res, err := r.db.NewInsert().Model(&row).
		On("CONFLICT ON CONSTRAINT players_user_game_key DO NOTHING").
		Returning("id").
		Exec(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, mapErr(err, nil)
	}
	if err == nil {
		if n, _ := res.RowsAffected(); n > 0 && row.ID != 0 {
			*p = row.toDomain()
			return true, nil
		}
	}
	existing, err := r.PlayerByUser(ctx, p.GameID, p.UserID)
	if err != nil {
		return false, err
	}
	*p = existing
	return false, nil
}

func (r *repo) PlayerByUser(ctx context.Context, gameID, userID int64) (domain.Player, error) {
	var row playerRow
	err := r.db.NewSelect().Model(&row).
		Where("p.game_id = ?", gameID).
		Where("p.user_id = ?", userID).
		Scan(ctx)
	if err != nil {
		return domain.Player{}, mapErr(err, domain.ErrPlayerNotFound)
	}
	return row.toDomain(), nil
}

func (r *repo) PlayerForUpdate(ctx context.Context, id int64) (domain.Player, error) {
	var row playerRow
	if err := r.db.NewSelect().Model(&row).Where("p.id = ?", id).For("UPDATE").Scan(ctx); err != nil {
		return domain.Player{}, mapErr(err, domain.ErrPlayerNotFound)
	}
	return row.toDomain(), nil
}

func (r *repo) Players(ctx context.Context, gameID int64) ([]domain.Player, error) {
	var rows []playerRow
	if err := r.db.NewSelect().Model(&rows).Where("p.game_id = ?", gameID).Order("p.id").Scan(ctx); err != nil {
		return nil, err
	}
	players := make([]domain.Player, len(rows))
	for i, row := range rows {
		players[i] = row.toDomain()
	}
	return players, nil
}

func (r *repo) FinishPlayers(ctx context.Context, gameID int64, at time.Time) error {
	_, err := r.db.NewUpdate().Model((*playerRow)(nil)).
		Set("finished_at = ?", at).
		Where("p.game_id = ?", gameID).
		Where("p.finished_at IS NULL").
		Exec(ctx)
	return err
}

func (r *repo) SetPlayerRating(ctx context.Context, playerID int64, rating decimal.Decimal) error {
	res, err := r.db.NewUpdate().Model((*playerRow)(nil)).
		Set("rating = ?::numeric", rating.String()).
		Where("p.id = ?", playerID).
		Exec(ctx)
	return affected(res, err, domain.ErrPlayerNotFound)
}

func (r *repo) UpsertAnswer(ctx context.Context, a *domain.Answer) error {
	row := answerRow{
		PlayerID:   a.PlayerID,
		QuestionID: a.QuestionID,
		Answer:     nonNil(a.Answer),
		Correct:    a.Correct,
		Points:     a.Points,
		AnsweredAt: a.AnsweredAt,
	}
	_, err := r.db.NewInsert().Model(&row).
		On("CONFLICT ON CONSTRAINT answers_player_question_key DO UPDATE").
		Set("answer = EXCLUDED.answer").
		Set("correct = EXCLUDED.correct").
		Set("points = EXCLUDED.points").
		Set("answered_at = EXCLUDED.answered_at").
		Returning("id").
		Exec(ctx)
	if err != nil {
		return mapErr(err, nil)
	}
	a.ID = row.ID
	return nil
}

func (r *repo) Answers(ctx context.Context, playerID int64) ([]domain.Answer, error) {
	var rows []answerRow
	if err := r.db.NewSelect().Model(&rows).Where("a.player_id = ?", playerID).Order("a.id").Scan(ctx); err != nil {
		return nil, err
	}
	answers := make([]domain.Answer, len(rows))
	for i, row := range rows {
		answers[i] = row.toDomain()
	}
	return answers, nil
}

func (r *repo) PlayerPoints(ctx context.Context, playerID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	err := r.db.NewSelect().
		TableExpr("answers").
		ColumnExpr("COALESCE(SUM(points), 0)").
		Where("player_id = ?", playerID).
		Scan(ctx, &total)
	return total, err
}

func (r *repo) User(ctx context.Context, id int64) (domain.User, error) {
	var row userRow
	if err := r.db.NewSelect().Model(&row).Where("u.id = ?", id).Scan(ctx); err != nil {
		return domain.User{}, mapErr(err, domain.ErrUserNotFound)
	}
	return row.toDomain(), nil
}

func (r *repo) AddUserRating(ctx context.Context, userID int64, delta decimal.Decimal) error {
	res, err := r.db.NewUpdate().Model((*userRow)(nil)).
		Set("rating = u.rating + ?::numeric", delta.String()).
		Where("u.id = ?", userID).
		Exec(ctx)
	return affected(res, err, domain.ErrUserNotFound)
}

func (r *repo) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats
	counts := []struct {
		table string
		dst   *int
	}{
		{"users", &st.Users},
		{"games", &st.Games},
		{"organizations", &st.Organizations},
		{"groups", &st.Groups},
		{"quizzes", &st.Quizzes},
	}
	for _, c := range counts {
		n, err := r.db.NewSelect().TableExpr(c.table).Count(ctx)
		if err != nil {
			return domain.Stats{}, fmt.Errorf("count %s: %w", c.table, err)
		}
		*c.dst = n
	}
	return st, nil
}
