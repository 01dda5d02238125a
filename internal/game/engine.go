// Package game runs the lifecycle of quiz games: creation, joining, question
// advancement, answering, reveal and finish.
package game

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sort"
	"strconv"
	"time"

	"quizgame-service/internal/domain"
	"quizgame-service/internal/events"
	"quizgame-service/internal/logger"
	"quizgame-service/internal/scoring"
)

const pinAttempts = 10

// Config holds the engine's behavioural switches.
type Config struct {
	// CanJoinStartedGame allows joining after the first question was shown.
	CanJoinStartedGame bool
	// AnswerGrace is how long past the timer a live submission is still accepted
	// when the game's timer is on.
	AnswerGrace time.Duration
}

// Option customises an Engine.
type Option func(*Engine)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithShuffler replaces the variant shuffler.
func WithShuffler(s Shuffler) Option {
	return func(e *Engine) { e.shuffle = s }
}

// WithLibrary links quizzes into the organization library of the game's group.
func WithLibrary(l Library) Option {
	return func(e *Engine) { e.library = l }
}

// Engine is the game state machine. It is safe for concurrent use; state
// transitions of one game are serialized through the Locker.
type Engine struct {
	store   Store
	bank    QuestionBank
	locks   Locker
	pub     events.Publisher
	library Library
	cfg     Config
	log     *logger.Logger
	now     func() time.Time
	shuffle Shuffler
}

func NewEngine(store Store, bank QuestionBank, locks Locker, pub events.Publisher, cfg Config, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		bank:    bank,
		locks:   locks,
		pub:     pub,
		cfg:     cfg,
		log:     log.With("component", "game.Engine"),
		now:     time.Now,
		shuffle: defaultShuffler(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// CreateGame describes a new game.
type CreateGame struct {
	QuizID  int64
	HostID  int64
	Label   string
	Online  bool
	TimerOn bool
	GroupID *int64
}

// Create starts a game in players_waiting with one generated question per quiz
// question. The game and all generated questions are written atomically.
func (e *Engine) Create(ctx context.Context, req CreateGame) (domain.Game, error) {
	quiz, err := e.bank.GetQuiz(ctx, req.QuizID)
	if err != nil {
		return domain.Game{}, fmt.Errorf("load quiz %d: %w", req.QuizID, err)
	}
	questions := append([]domain.Question(nil), quiz.Questions...)
	sort.Slice(questions, func(i, j int) bool { return questions[i].Number < questions[j].Number })

	now := e.now()
	g := domain.Game{
		QuizID:         quiz.ID,
		Label:          req.Label,
		Online:         req.Online,
		HostID:         req.HostID,
		GroupID:        req.GroupID,
		State:          domain.StatePlayersWaiting,
		TimerOn:        req.TimerOn,
		CreatedAt:      now,
		UpdatedAt:      now,
		StateChangedAt: now,
	}
	err = e.store.Tx(ctx, func(ctx context.Context, r Repo) error {
		pin, err := e.newPin(ctx, r)
		if err != nil {
			return err
		}
		g.Pin = pin
		if err := r.CreateGame(ctx, &g); err != nil {
			return fmt.Errorf("create game: %w", err)
		}
		for _, q := range questions {
			gq := generate(g.ID, q, e.shuffle)
			if err := r.CreateGeneratedQuestion(ctx, &gq); err != nil {
				return fmt.Errorf("generate question %d: %w", q.Number, err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.Game{}, err
	}

	if req.GroupID != nil && e.library != nil {
		if err := e.library.LinkQuiz(ctx, *req.GroupID, quiz.ID); err != nil {
			e.log.Warn("link quiz to group library", "game", g.ID, "group", *req.GroupID, "error", err)
		}
	}
	e.log.Info("game created", "game", g.ID, "quiz", quiz.ID, "questions", len(questions))
	return g, nil
}

func (e *Engine) newPin(ctx context.Context, r Repo) (string, error) {
	for i := 0; i < pinAttempts; i++ {
		pin := fmt.Sprintf("%06d", rand.IntN(1000000))
		used, err := r.PinInUse(ctx, pin)
		if err != nil {
			return "", fmt.Errorf("check pin: %w", err)
		}
		if !used {
			return pin, nil
		}
	}
	return "", fmt.Errorf("allocate pin: %w", domain.ErrConflict)
}

// Join adds the user to the game. Joining twice returns the existing player
// without side effects. Joinability is decided under the game lock so a join
// cannot slip past a concurrent start.
func (e *Engine) Join(ctx context.Context, gameID, userID int64) (domain.Player, error) {
	var (
		player domain.Player
		found  bool
	)
	err := e.store.View(ctx, func(ctx context.Context, r Repo) error {
		if _, err := r.Game(ctx, gameID); err != nil {
			return err
		}
		var err error
		player, err = r.PlayerByUser(ctx, gameID, userID)
		switch {
		case err == nil:
			found = true
		case !errors.Is(err, domain.ErrPlayerNotFound):
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Player{}, err
	}
	if found {
		return player, nil
	}

	unlock, err := e.locks.Lock(ctx, gameKey(gameID))
	if err != nil {
		return domain.Player{}, fmt.Errorf("lock game %d: %w", gameID, err)
	}
	defer unlock()

	now := e.now()
	var created bool
	err = e.store.Tx(ctx, func(ctx context.Context, r Repo) error {
		g, err := r.GameForUpdate(ctx, gameID)
		if err != nil {
			return err
		}
		existing, err := r.PlayerByUser(ctx, gameID, userID)
		switch {
		case err == nil:
			player = existing
			return nil
		case !errors.Is(err, domain.ErrPlayerNotFound):
			return err
		}
		if g.Finished() || (!e.cfg.CanJoinStartedGame && g.State != domain.StatePlayersWaiting) {
			return domain.ErrNotJoinable
		}
		player = domain.Player{GameID: gameID, UserID: userID, CreatedAt: now}
		created, err = r.InsertPlayer(ctx, &player)
		if err != nil || !created {
			return err
		}
		return r.TouchGame(ctx, gameID, now)
	})
	if errors.Is(err, domain.ErrNotJoinable) {
		return domain.Player{}, err
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("join game %d: %w", gameID, err)
	}
	if created {
		e.publish(ctx, events.New(gameID, events.Joined, now, player))
	}
	return player, nil
}

// JoinByPin joins the unfinished game using pin.
func (e *Engine) JoinByPin(ctx context.Context, pin string, userID int64) (domain.Game, domain.Player, error) {
	var g domain.Game
	err := e.store.View(ctx, func(ctx context.Context, r Repo) error {
		var err error
		g, err = r.GameByPin(ctx, pin)
		return err
	})
	if err != nil {
		return domain.Game{}, domain.Player{}, err
	}
	p, err := e.Join(ctx, g.ID, userID)
	return g, p, err
}

// NextQuestion moves the game from question number from (0 before the first)
// to the next one, or finishes it when the questions are exhausted. When the
// game is no longer at from the call is a no-op returning the current
// question, so duplicate requests advance once. It returns nil once finished.
func (e *Engine) NextQuestion(ctx context.Context, gameID int64, from int) (*domain.GeneratedQuestion, error) {
	unlock, err := e.locks.Lock(ctx, gameKey(gameID))
	if err != nil {
		return nil, fmt.Errorf("lock game %d: %w", gameID, err)
	}
	defer unlock()

	now := e.now()
	var (
		current *domain.GeneratedQuestion
		evt     *events.Event
	)
	err = e.store.Tx(ctx, func(ctx context.Context, r Repo) error {
		g, err := r.GameForUpdate(ctx, gameID)
		if err != nil {
			return err
		}
		if g.Finished() {
			return nil
		}
		if currentNumber(g) != from {
			current = g.CurrentQuestion
			return nil
		}

		next, err := r.GeneratedQuestionByNumber(ctx, gameID, currentNumber(g)+1)
		if errors.Is(err, domain.ErrQuestionNotFound) {
			evt, err = e.finish(ctx, r, g, now)
			return err
		}
		if err != nil {
			return err
		}
		if err := r.StartQuestion(ctx, next.ID, now); err != nil {
			return fmt.Errorf("start question: %w", err)
		}
		next.StartedAt = &now
		g.CurrentQuestionID = &next.ID
		g.CurrentQuestion = &next
		g.State = domain.StateAnswering
		g.StateChangedAt = now
		g.UpdatedAt = now
		if err := r.UpdateGame(ctx, g); err != nil {
			return fmt.Errorf("update game: %w", err)
		}
		current = &next
		ev := events.New(gameID, events.QuestionChanged, now, g)
		evt = &ev
		return nil
	})
	if err != nil {
		return nil, err
	}
	if evt != nil {
		e.publish(ctx, *evt)
	}
	return current, nil
}

// NextQuestionAs is NextQuestion restricted to the game's host.
func (e *Engine) NextQuestionAs(ctx context.Context, gameID, userID int64, from int) (*domain.GeneratedQuestion, error) {
	if err := e.requireHost(ctx, gameID, userID); err != nil {
		return nil, err
	}
	return e.NextQuestion(ctx, gameID, from)
}

// CheckState switches an answering game to check so clients reveal the answer.
func (e *Engine) CheckState(ctx context.Context, gameID int64) (domain.GeneratedQuestion, error) {
	unlock, err := e.locks.Lock(ctx, gameKey(gameID))
	if err != nil {
		return domain.GeneratedQuestion{}, fmt.Errorf("lock game %d: %w", gameID, err)
	}
	defer unlock()

	now := e.now()
	var question domain.GeneratedQuestion
	err = e.store.Tx(ctx, func(ctx context.Context, r Repo) error {
		g, err := r.GameForUpdate(ctx, gameID)
		if err != nil {
			return err
		}
		if g.State != domain.StateAnswering || g.CurrentQuestion == nil {
			return domain.ErrNotAnswering
		}
		g.State = domain.StateCheck
		g.UpdatedAt = now
		if err := r.UpdateGame(ctx, g); err != nil {
			return fmt.Errorf("update game: %w", err)
		}
		question = *g.CurrentQuestion
		return nil
	})
	if err != nil {
		return domain.GeneratedQuestion{}, err
	}
	e.publish(ctx, events.New(gameID, events.Check, now, question))
	return question, nil
}

// CheckStateAs is CheckState restricted to the game's host.
func (e *Engine) CheckStateAs(ctx context.Context, gameID, userID int64) (domain.GeneratedQuestion, error) {
	if err := e.requireHost(ctx, gameID, userID); err != nil {
		return domain.GeneratedQuestion{}, err
	}
	return e.CheckState(ctx, gameID)
}

// Finish ends the game. Finishing a finished game is a no-op.
func (e *Engine) Finish(ctx context.Context, gameID int64) error {
	unlock, err := e.locks.Lock(ctx, gameKey(gameID))
	if err != nil {
		return fmt.Errorf("lock game %d: %w", gameID, err)
	}
	defer unlock()

	now := e.now()
	var evt *events.Event
	err = e.store.Tx(ctx, func(ctx context.Context, r Repo) error {
		g, err := r.GameForUpdate(ctx, gameID)
		if err != nil {
			return err
		}
		if g.Finished() {
			return nil
		}
		evt, err = e.finish(ctx, r, g, now)
		return err
	})
	if err != nil {
		return err
	}
	if evt != nil {
		e.publish(ctx, *evt)
	}
	return nil
}

func (e *Engine) finish(ctx context.Context, r Repo, g domain.Game, now time.Time) (*events.Event, error) {
	g.CurrentQuestionID = nil
	g.CurrentQuestion = nil
	g.State = domain.StateFinish
	g.StateChangedAt = now
	g.UpdatedAt = now
	g.FinishedAt = &now
	if err := r.UpdateGame(ctx, g); err != nil {
		return nil, fmt.Errorf("finish game: %w", err)
	}
	if err := r.FinishPlayers(ctx, g.ID, now); err != nil {
		return nil, fmt.Errorf("finish players: %w", err)
	}
	ev := events.New(g.ID, events.Finished, now, g)
	return &ev, nil
}

// Answer records a player's answer to question, scoring it at the current
// time, and re-aggregates the player's rating in the same transaction. It does
// not check the game state; live play goes through Submit.
func (e *Engine) Answer(ctx context.Context, gameID int64, player domain.Player, question domain.GeneratedQuestion, submitted []int64) (domain.Answer, error) {
	unlock, err := e.locks.Lock(ctx, playerKey(player.ID))
	if err != nil {
		return domain.Answer{}, fmt.Errorf("lock player %d: %w", player.ID, err)
	}
	defer unlock()

	now := e.now()
	var answer domain.Answer
	err = e.store.Tx(ctx, func(ctx context.Context, r Repo) error {
		var err error
		answer, err = e.saveAnswer(ctx, r, gameID, player, question, submitted, now)
		return err
	})
	if err != nil {
		return domain.Answer{}, err
	}
	e.publish(ctx, events.New(gameID, events.Answered, now, answer))
	return answer, nil
}

func (e *Engine) saveAnswer(ctx context.Context, r Repo, gameID int64, player domain.Player, question domain.GeneratedQuestion, submitted []int64, now time.Time) (domain.Answer, error) {
	correct := scoring.Correct(question, submitted)
	answer := domain.Answer{
		PlayerID:   player.ID,
		QuestionID: question.ID,
		Answer:     append([]int64(nil), submitted...),
		Correct:    correct,
		Points:     scoring.Points(question, correct, now),
		AnsweredAt: now,
	}
	if err := r.UpsertAnswer(ctx, &answer); err != nil {
		return domain.Answer{}, fmt.Errorf("save answer: %w", err)
	}
	if _, err := aggregateRating(ctx, r, player.ID); err != nil {
		return domain.Answer{}, err
	}
	if err := r.TouchGame(ctx, gameID, now); err != nil {
		return domain.Answer{}, err
	}
	return answer, nil
}

// Submission is a live answer from a user. QuestionID zero means the current question.
type Submission struct {
	GameID     int64
	UserID     int64
	QuestionID int64
	Answer     []int64
}

// Submit validates a live submission and records it. The question is checked
// against the game row locked inside the answer transaction, so an answer
// never lands on a question the host already moved past. The answer
// transaction touches the game row anyway, so the lock adds no contention.
func (e *Engine) Submit(ctx context.Context, s Submission) (domain.Answer, error) {
	var player domain.Player
	err := e.store.View(ctx, func(ctx context.Context, r Repo) error {
		if _, err := r.Game(ctx, s.GameID); err != nil {
			return err
		}
		var err error
		player, err = r.PlayerByUser(ctx, s.GameID, s.UserID)
		if errors.Is(err, domain.ErrPlayerNotFound) {
			return fmt.Errorf("user %d is not a player: %w", s.UserID, domain.ErrForbidden)
		}
		return err
	})
	if err != nil {
		return domain.Answer{}, err
	}

	unlock, err := e.locks.Lock(ctx, playerKey(player.ID))
	if err != nil {
		return domain.Answer{}, fmt.Errorf("lock player %d: %w", player.ID, err)
	}
	defer unlock()

	now := e.now()
	var answer domain.Answer
	err = e.store.Tx(ctx, func(ctx context.Context, r Repo) error {
		g, err := r.GameForUpdate(ctx, s.GameID)
		if err != nil {
			return err
		}
		q, err := e.openQuestion(g, s, now)
		if err != nil {
			return err
		}
		answer, err = e.saveAnswer(ctx, r, g.ID, player, q, s.Answer, now)
		return err
	})
	if err != nil {
		return domain.Answer{}, err
	}
	e.publish(ctx, events.New(s.GameID, events.Answered, now, answer))
	return answer, nil
}

// openQuestion returns the question a submission may answer at now.
func (e *Engine) openQuestion(g domain.Game, s Submission, now time.Time) (domain.GeneratedQuestion, error) {
	q := g.CurrentQuestion
	if g.State != domain.StateAnswering || q == nil {
		return domain.GeneratedQuestion{}, domain.ErrTooLate
	}
	if s.QuestionID != 0 && s.QuestionID != q.ID {
		return domain.GeneratedQuestion{}, domain.ErrTooLate
	}
	if g.TimerOn {
		if over := g.Timer(now); over != nil && *over > e.cfg.AnswerGrace {
			return domain.GeneratedQuestion{}, domain.ErrTooLate
		}
	}
	for _, id := range s.Answer {
		if q.Question == nil || !q.Question.HasVariant(id) {
			return domain.GeneratedQuestion{}, fmt.Errorf("variant %d: %w", id, domain.ErrUnknownVariant)
		}
	}
	return *q, nil
}

// Game returns the current snapshot of a game.
func (e *Engine) Game(ctx context.Context, gameID int64) (domain.Game, error) {
	var g domain.Game
	err := e.store.View(ctx, func(ctx context.Context, r Repo) error {
		var err error
		g, err = r.Game(ctx, gameID)
		return err
	})
	return g, err
}

// Rating returns the game's players ordered by rating, then join order.
func (e *Engine) Rating(ctx context.Context, gameID int64) ([]domain.Player, error) {
	var players []domain.Player
	err := e.store.View(ctx, func(ctx context.Context, r Repo) error {
		if _, err := r.Game(ctx, gameID); err != nil {
			return err
		}
		var err error
		players, err = r.Players(ctx, gameID)
		return err
	})
	if err != nil {
		return nil, err
	}
	SortRating(players)
	return players, nil
}

// SortRating orders players by rating desc, created asc, id asc.
func SortRating(players []domain.Player) {
	sort.SliceStable(players, func(i, j int) bool {
		a, b := players[i], players[j]
		if c := a.Rating.Cmp(b.Rating); c != 0 {
			return c > 0
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

// Answers returns the answers a player has recorded.
func (e *Engine) Answers(ctx context.Context, playerID int64) ([]domain.Answer, error) {
	var answers []domain.Answer
	err := e.store.View(ctx, func(ctx context.Context, r Repo) error {
		var err error
		answers, err = r.Answers(ctx, playerID)
		return err
	})
	return answers, err
}

// HostedGames lists games created by the user, newest first.
func (e *Engine) HostedGames(ctx context.Context, userID int64, runningOnly bool) ([]domain.Game, error) {
	var games []domain.Game
	err := e.store.View(ctx, func(ctx context.Context, r Repo) error {
		var err error
		games, err = r.HostedGames(ctx, userID, runningOnly)
		return err
	})
	return games, err
}

// PlayedGames lists games the user joined, newest first.
func (e *Engine) PlayedGames(ctx context.Context, userID int64, runningOnly bool) ([]domain.Game, error) {
	var games []domain.Game
	err := e.store.View(ctx, func(ctx context.Context, r Repo) error {
		var err error
		games, err = r.PlayedGames(ctx, userID, runningOnly)
		return err
	})
	return games, err
}

// Stats returns platform counters.
func (e *Engine) Stats(ctx context.Context) (domain.Stats, error) {
	var st domain.Stats
	err := e.store.View(ctx, func(ctx context.Context, r Repo) error {
		var err error
		st, err = r.Stats(ctx)
		return err
	})
	return st, err
}

func (e *Engine) requireHost(ctx context.Context, gameID, userID int64) error {
	g, err := e.Game(ctx, gameID)
	if err != nil {
		return err
	}
	if g.HostID != userID {
		return domain.ErrForbidden
	}
	return nil
}

// publish runs after commit; a failed delivery never undoes the transition.
// Game transitions and joins publish under the game lock, so their order
// matches commit order. Answered events publish under the player lock only:
// they are ordered per player, and one may trail the question_changed that
// closed its question. Consumers match an answer to its question by id.
func (e *Engine) publish(ctx context.Context, ev events.Event) {
	if e.pub == nil {
		return
	}
	if err := e.pub.Publish(context.WithoutCancel(ctx), ev); err != nil {
		e.log.Error("publish event", "game", ev.GameID, "kind", ev.Kind, "error", err)
	}
}

func currentNumber(g domain.Game) int {
	if g.CurrentQuestion == nil {
		return 0
	}
	return g.CurrentQuestion.Number()
}

func gameKey(id int64) string   { return "game:" + strconv.FormatInt(id, 10) }
func playerKey(id int64) string { return "player:" + strconv.FormatInt(id, 10) }
