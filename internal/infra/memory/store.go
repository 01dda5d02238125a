package memory

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"quizgame-service/internal/domain"
	"quizgame-service/internal/game"
)

var errReadOnly = errors.New("memory: write in read-only view")

// Store is an in-memory game.Store. A transaction works on a copy of every
// table and swaps it in on success, so a failed transaction leaves no trace.
// Stored slices are never modified in place, which keeps the copies shallow.
type Store struct {
	mu    sync.RWMutex
	state *state
}

type answerKey struct{ player, question int64 }

type state struct {
	seq        int64
	users      map[int64]domain.User
	orgs       map[int64]domain.Organization
	groups     map[int64]domain.Group
	quizzes    map[int64]domain.Quiz
	library    map[[2]int64]bool
	games      map[int64]domain.Game
	generated  map[int64]domain.GeneratedQuestion
	players    map[int64]domain.Player
	answers    map[int64]domain.Answer
	answerKeys map[answerKey]int64
}

func NewStore() *Store {
	return &Store{state: &state{
		users:      make(map[int64]domain.User),
		orgs:       make(map[int64]domain.Organization),
		groups:     make(map[int64]domain.Group),
		quizzes:    make(map[int64]domain.Quiz),
		library:    make(map[[2]int64]bool),
		games:      make(map[int64]domain.Game),
		generated:  make(map[int64]domain.GeneratedQuestion),
		players:    make(map[int64]domain.Player),
		answers:    make(map[int64]domain.Answer),
		answerKeys: make(map[answerKey]int64),
	}}
}

func (s *state) clone() *state {
	return &state{
		seq:        s.seq,
		users:      maps.Clone(s.users),
		orgs:       maps.Clone(s.orgs),
		groups:     maps.Clone(s.groups),
		quizzes:    maps.Clone(s.quizzes),
		library:    maps.Clone(s.library),
		games:      maps.Clone(s.games),
		generated:  maps.Clone(s.generated),
		players:    maps.Clone(s.players),
		answers:    maps.Clone(s.answers),
		answerKeys: maps.Clone(s.answerKeys),
	}
}

func (s *state) nextID() int64 {
	s.seq++
	return s.seq
}

func (s *Store) Tx(ctx context.Context, fn func(ctx context.Context, r game.Repo) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	if err := fn(ctx, &repo{st: work}); err != nil {
		return err
	}
	s.state = work
	return nil
}

func (s *Store) View(ctx context.Context, fn func(ctx context.Context, r game.Repo) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(ctx, &repo{st: s.state, readOnly: true})
}

// CreateUser registers a user with zero rating.
func (s *Store) CreateUser(_ context.Context, username string) (domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.state.users {
		if u.Username == username {
			return domain.User{}, fmt.Errorf("username %q: %w", username, domain.ErrConflict)
		}
	}
	u := domain.User{ID: s.state.nextID(), Username: username}
	s.state.users[u.ID] = u
	return u, nil
}

// UserByName looks a user up by username.
func (s *Store) UserByName(_ context.Context, username string) (domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.state.users {
		if u.Username == username {
			return u, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (s *Store) CreateOrganization(_ context.Context, name string) (domain.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := domain.Organization{ID: s.state.nextID(), Name: name}
	s.state.orgs[o.ID] = o
	return o, nil
}

func (s *Store) CreateGroup(_ context.Context, orgID int64, name string) (domain.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.state.orgs[orgID]; !ok {
		return domain.Group{}, fmt.Errorf("organization %d: %w", orgID, domain.ErrConflict)
	}
	g := domain.Group{ID: s.state.nextID(), OrganizationID: orgID, Name: name}
	s.state.groups[g.ID] = g
	return g, nil
}

// CreateQuiz stores quiz with fresh ids. Question answers are given as 1-based
// variant positions and come back as variant ids.
func (s *Store) CreateQuiz(_ context.Context, quiz domain.Quiz) (domain.Quiz, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	work := s.state.clone()
	quiz.ID = work.nextID()
	questions := make([]domain.Question, len(quiz.Questions))
	for i, q := range quiz.Questions {
		if !q.Type.Valid() {
			return domain.Quiz{}, fmt.Errorf("question %d type %q: %w", q.Number, q.Type, domain.ErrInvalidQuiz)
		}
		q.ID = work.nextID()
		q.QuizID = quiz.ID
		variants := make([]domain.Variant, len(q.Variants))
		for j, v := range q.Variants {
			v.ID = work.nextID()
			v.QuestionID = q.ID
			variants[j] = v
		}
		q.Variants = variants
		answer, err := positionsToIDs(q.Answer, variants)
		if err != nil {
			return domain.Quiz{}, fmt.Errorf("question %d: %w", q.Number, err)
		}
		q.Answer = answer
		questions[i] = q
	}
	quiz.Questions = questions
	work.quizzes[quiz.ID] = quiz
	s.state = work
	return quiz, nil
}

func positionsToIDs(positions []int64, variants []domain.Variant) ([]int64, error) {
	ids := make([]int64, len(positions))
	for i, p := range positions {
		if p < 1 || int(p) > len(variants) {
			return nil, fmt.Errorf("answer position %d: %w", p, domain.ErrInvalidQuiz)
		}
		ids[i] = variants[p-1].ID
	}
	return ids, nil
}

// LoadQuiz makes the store a QuizLoader for the quiz caches.
func (s *Store) LoadQuiz(_ context.Context, quizID int64) (domain.Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.state.quizzes[quizID]
	if !ok {
		return domain.Quiz{}, domain.ErrQuizNotFound
	}
	return q, nil
}

// LinkQuiz adds the quiz to the library of the group's organization.
func (s *Store) LinkQuiz(_ context.Context, groupID, quizID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.state.groups[groupID]
	if !ok {
		return fmt.Errorf("group %d not found", groupID)
	}
	s.state.library[[2]int64{g.OrganizationID, quizID}] = true
	return nil
}

// Linked reports whether the organization library holds the quiz.
func (s *Store) Linked(orgID, quizID int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.library[[2]int64{orgID, quizID}]
}

type repo struct {
	st       *state
	readOnly bool
}

func (r *repo) write() error {
	if r.readOnly {
		return errReadOnly
	}
	return nil
}

func (r *repo) CreateGame(_ context.Context, g *domain.Game) error {
	if err := r.write(); err != nil {
		return err
	}
	g.ID = r.st.nextID()
	r.putGame(*g)
	return nil
}

func (r *repo) putGame(g domain.Game) {
	g.CurrentQuestion = nil
	r.st.games[g.ID] = g
}

func (r *repo) PinInUse(_ context.Context, pin string) (bool, error) {
	for _, g := range r.st.games {
		if g.Pin == pin && !g.Finished() {
			return true, nil
		}
	}
	return false, nil
}

func (r *repo) Game(_ context.Context, id int64) (domain.Game, error) {
	g, ok := r.st.games[id]
	if !ok {
		return domain.Game{}, domain.ErrGameNotFound
	}
	return r.load(g), nil
}

func (r *repo) GameForUpdate(ctx context.Context, id int64) (domain.Game, error) {
	return r.Game(ctx, id)
}

func (r *repo) load(g domain.Game) domain.Game {
	if g.CurrentQuestionID != nil {
		if q, ok := r.st.generated[*g.CurrentQuestionID]; ok {
			g.CurrentQuestion = &q
		}
	}
	return g
}

func (r *repo) GameByPin(_ context.Context, pin string) (domain.Game, error) {
	for _, g := range r.st.games {
		if g.Pin == pin && !g.Finished() {
			return r.load(g), nil
		}
	}
	return domain.Game{}, domain.ErrGameNotFound
}

func (r *repo) UpdateGame(_ context.Context, g domain.Game) error {
	if err := r.write(); err != nil {
		return err
	}
	if _, ok := r.st.games[g.ID]; !ok {
		return domain.ErrGameNotFound
	}
	r.putGame(g)
	return nil
}

func (r *repo) TouchGame(_ context.Context, id int64, at time.Time) error {
	if err := r.write(); err != nil {
		return err
	}
	g, ok := r.st.games[id]
	if !ok {
		return domain.ErrGameNotFound
	}
	g.UpdatedAt = at
	r.st.games[id] = g
	return nil
}

func (r *repo) HostedGames(_ context.Context, userID int64, runningOnly bool) ([]domain.Game, error) {
	return r.listGames(func(g domain.Game) bool { return g.HostID == userID }, runningOnly), nil
}

func (r *repo) PlayedGames(_ context.Context, userID int64, runningOnly bool) ([]domain.Game, error) {
	joined := make(map[int64]bool)
	for _, p := range r.st.players {
		if p.UserID == userID {
			joined[p.GameID] = true
		}
	}
	return r.listGames(func(g domain.Game) bool { return joined[g.ID] }, runningOnly), nil
}

func (r *repo) listGames(match func(domain.Game) bool, runningOnly bool) []domain.Game {
	var out []domain.Game
	for _, g := range r.st.games {
		if !match(g) || (runningOnly && g.Finished()) {
			continue
		}
		out = append(out, r.load(g))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out
}

func (r *repo) CreateGeneratedQuestion(_ context.Context, q *domain.GeneratedQuestion) error {
	if err := r.write(); err != nil {
		return err
	}
	if _, ok := r.st.games[q.GameID]; !ok {
		return domain.ErrGameNotFound
	}
	for _, existing := range r.st.generated {
		if existing.GameID == q.GameID && existing.QuestionID == q.QuestionID {
			return fmt.Errorf("generated question %d/%d: %w", q.GameID, q.QuestionID, domain.ErrConflict)
		}
	}
	q.ID = r.st.nextID()
	r.st.generated[q.ID] = *q
	return nil
}

func (r *repo) GeneratedQuestionByNumber(_ context.Context, gameID int64, number int) (domain.GeneratedQuestion, error) {
	for _, q := range r.st.generated {
		if q.GameID == gameID && q.Number() == number {
			return q, nil
		}
	}
	return domain.GeneratedQuestion{}, domain.ErrQuestionNotFound
}

func (r *repo) StartQuestion(_ context.Context, id int64, at time.Time) error {
	if err := r.write(); err != nil {
		return err
	}
	q, ok := r.st.generated[id]
	if !ok {
		return domain.ErrQuestionNotFound
	}
	q.StartedAt = &at
	r.st.generated[id] = q
	return nil
}

func (r *repo) InsertPlayer(ctx context.Context, p *domain.Player) (bool, error) {
	if err := r.write(); err != nil {
		return false, err
	}
	if existing, err := r.PlayerByUser(ctx, p.GameID, p.UserID); err == nil {
		*p = existing
		return false, nil
	}
	if _, ok := r.st.games[p.GameID]; !ok {
		return false, domain.ErrGameNotFound
	}
	if _, ok := r.st.users[p.UserID]; !ok {
		return false, domain.ErrUserNotFound
	}
	p.ID = r.st.nextID()
	r.st.players[p.ID] = *p
	return true, nil
}

func (r *repo) PlayerByUser(_ context.Context, gameID, userID int64) (domain.Player, error) {
	for _, p := range r.st.players {
		if p.GameID == gameID && p.UserID == userID {
			return p, nil
		}
	}
	return domain.Player{}, domain.ErrPlayerNotFound
}

func (r *repo) PlayerForUpdate(_ context.Context, id int64) (domain.Player, error) {
	p, ok := r.st.players[id]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return p, nil
}

func (r *repo) Players(_ context.Context, gameID int64) ([]domain.Player, error) {
	var out []domain.Player
	for _, p := range r.st.players {
		if p.GameID == gameID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *repo) FinishPlayers(_ context.Context, gameID int64, at time.Time) error {
	if err := r.write(); err != nil {
		return err
	}
	for id, p := range r.st.players {
		if p.GameID == gameID && p.FinishedAt == nil {
			p.FinishedAt = &at
			r.st.players[id] = p
		}
	}
	return nil
}

func (r *repo) SetPlayerRating(_ context.Context, playerID int64, rating decimal.Decimal) error {
	if err := r.write(); err != nil {
		return err
	}
	p, ok := r.st.players[playerID]
	if !ok {
		return domain.ErrPlayerNotFound
	}
	p.Rating = rating
	r.st.players[playerID] = p
	return nil
}

func (r *repo) UpsertAnswer(_ context.Context, a *domain.Answer) error {
	if err := r.write(); err != nil {
		return err
	}
	if _, ok := r.st.players[a.PlayerID]; !ok {
		return domain.ErrPlayerNotFound
	}
	if _, ok := r.st.generated[a.QuestionID]; !ok {
		return domain.ErrQuestionNotFound
	}
	key := answerKey{a.PlayerID, a.QuestionID}
	if id, ok := r.st.answerKeys[key]; ok {
		a.ID = id
	} else {
		a.ID = r.st.nextID()
		r.st.answerKeys[key] = a.ID
	}
	r.st.answers[a.ID] = *a
	return nil
}

func (r *repo) Answers(_ context.Context, playerID int64) ([]domain.Answer, error) {
	var out []domain.Answer
	for _, a := range r.st.answers {
		if a.PlayerID == playerID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *repo) PlayerPoints(_ context.Context, playerID int64) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, a := range r.st.answers {
		if a.PlayerID == playerID {
			total = total.Add(a.Points)
		}
	}
	return total, nil
}

func (r *repo) User(_ context.Context, id int64) (domain.User, error) {
	u, ok := r.st.users[id]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return u, nil
}

func (r *repo) AddUserRating(_ context.Context, userID int64, delta decimal.Decimal) error {
	if err := r.write(); err != nil {
		return err
	}
	u, ok := r.st.users[userID]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.Rating = u.Rating.Add(delta)
	r.st.users[userID] = u
	return nil
}

func (r *repo) Stats(context.Context) (domain.Stats, error) {
	return domain.Stats{
		Users:         len(r.st.users),
		Games:         len(r.st.games),
		Organizations: len(r.st.orgs),
		Groups:        len(r.st.groups),
		Quizzes:       len(r.st.quizzes),
	}, nil
}
