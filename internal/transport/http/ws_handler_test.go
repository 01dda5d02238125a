package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"quizgame-service/internal/domain"
	"quizgame-service/internal/events"
	"quizgame-service/internal/game"
	"quizgame-service/internal/infra/memory"
	"quizgame-service/internal/logger"
)

type env struct {
	server *httptest.Server
	engine *game.Engine
	store  *memory.Store
	quiz   domain.Quiz
	host   domain.User
	player domain.User
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx := context.Background()
	store := memory.NewStore()
	quiz, err := store.CreateQuiz(ctx, domain.Quiz{
		Title: "Capitals",
		Questions: []domain.Question{
			{Number: 1, Type: domain.QuestionSingle, Text: "Capital of France", Variants: []domain.Variant{{Text: "Paris"}, {Text: "Rome"}}, Answer: []int64{1}, Points: 4},
		},
	})
	if err != nil {
		t.Fatalf("create quiz: %v", err)
	}
	host, _ := store.CreateUser(ctx, "host")
	player, _ := store.CreateUser(ctx, "player")

	log := logger.Nop()
	hub := events.NewHub(log)
	engine := game.NewEngine(store, memory.NewQuizRepository(store, time.Minute), memory.NewLocker(), hub, game.Config{}, log)
	server := httptest.NewServer(NewRouter(engine, hub, log, 0))
	t.Cleanup(server.Close)
	return &env{server: server, engine: engine, store: store, quiz: quiz, host: host, player: player}
}

func (e *env) dial(t *testing.T, gameID, userID int64) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?gameId=" + strconv.FormatInt(gameID, 10) + "&userId=" + strconv.FormatInt(userID, 10)
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if typ, _ := readNext(t, conn); typ != "game" {
		t.Fatalf("expected game snapshot first, got %s", typ)
	}
	return conn
}

func TestWebSocketGameFlow(t *testing.T) {
	e := newEnv(t)
	g, err := e.engine.Create(context.Background(), game.CreateGame{QuizID: e.quiz.ID, HostID: e.host.ID})
	if err != nil {
		t.Fatalf("create game: %v", err)
	}

	host := e.dial(t, g.ID, e.host.ID)
	player := e.dial(t, g.ID, e.player.ID)

	send(t, player, "join", nil)
	waitFor(t, player, "player")
	waitFor(t, host, string(events.Joined))

	send(t, player, "next_question", map[string]any{"ifCurrent": 0})
	if payload := waitFor(t, player, "error"); payload["kind"] != string(domain.KindPermission) {
		t.Fatalf("expected permission error, got %v", payload)
	}

	send(t, host, "next_question", nil)
	if payload := waitFor(t, host, "error"); payload["kind"] != string(domain.KindValidation) {
		t.Fatalf("expected next_question without ifCurrent to be rejected, got %v", payload)
	}
	if cur, _ := e.engine.Game(context.Background(), g.ID); cur.State != domain.StatePlayersWaiting {
		t.Fatalf("rejected next_question must not advance, state %s", cur.State)
	}

	send(t, host, "next_question", map[string]any{"ifCurrent": 0})
	waitFor(t, player, string(events.QuestionChanged))

	q, _ := e.quiz.Question(1)
	send(t, player, "answer", map[string]any{"answer": []int64{q.Variants[0].ID}})
	result := waitFor(t, player, "answer_result")
	if result["correct"] != true {
		t.Fatalf("expected correct answer, got %v", result)
	}
	waitFor(t, host, string(events.Answered))

	send(t, host, "check", nil)
	waitFor(t, player, string(events.Check))

	send(t, player, "answer", map[string]any{"answer": []int64{q.Variants[1].ID}})
	if payload := waitFor(t, player, "error"); payload["kind"] != string(domain.KindValidation) {
		t.Fatalf("expected too-late validation error, got %v", payload)
	}

	send(t, host, "next_question", map[string]any{"ifCurrent": 1})
	waitFor(t, player, string(events.Finished))

	resp, err := http.Get(e.server.URL + "/games/" + strconv.FormatInt(g.ID, 10) + "/rating")
	if err != nil {
		t.Fatalf("get rating: %v", err)
	}
	defer resp.Body.Close()
	var rating []domain.Player
	if err := json.NewDecoder(resp.Body).Decode(&rating); err != nil {
		t.Fatalf("decode rating: %v", err)
	}
	if len(rating) != 1 || rating[0].Rating.String() != "4" {
		t.Fatalf("unexpected rating %+v", rating)
	}
}

func TestWebSocketRejectsUnknownGame(t *testing.T) {
	e := newEnv(t)
	u := "ws" + strings.TrimPrefix(e.server.URL, "http") + "/ws?gameId=999&userId=1"
	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	if err == nil {
		t.Fatalf("expected dial failure")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %+v", resp)
	}
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

// waitFor reads until a message of type typ arrives and returns its payload.
// Events and command replies interleave, so other messages are skipped.
func waitFor(t *testing.T, conn *websocket.Conn, typ string) map[string]any {
	t.Helper()
	for i := 0; i < 20; i++ {
		got, payload := readNext(t, conn)
		if got == typ {
			return payload
		}
	}
	t.Fatalf("never received %s", typ)
	return nil
}

func readNext(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg.Type, msg.Payload
}
