package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"testing"

	"quizgame-service/internal/domain"
	"quizgame-service/internal/game"
)

func TestCreateAndJoinByPin(t *testing.T) {
	e := newEnv(t)

	body, _ := json.Marshal(map[string]any{"quizId": e.quiz.ID, "hostId": e.host.ID, "label": "demo"})
	resp, err := http.Post(e.server.URL+"/games", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var g domain.Game
	if err := json.NewDecoder(resp.Body).Decode(&g); err != nil {
		t.Fatalf("decode game: %v", err)
	}

	body, _ = json.Marshal(map[string]any{"pin": g.Pin, "userId": e.player.ID})
	joinResp, err := http.Post(e.server.URL+"/games/join", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	defer joinResp.Body.Close()
	if joinResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", joinResp.StatusCode)
	}

	played, err := http.Get(e.server.URL + "/users/" + strconv.FormatInt(e.player.ID, 10) + "/games?role=player&running=true")
	if err != nil {
		t.Fatalf("played: %v", err)
	}
	defer played.Body.Close()
	var games []domain.Game
	if err := json.NewDecoder(played.Body).Decode(&games); err != nil {
		t.Fatalf("decode games: %v", err)
	}
	if len(games) != 1 || games[0].ID != g.ID {
		t.Fatalf("unexpected played games %+v", games)
	}
}

func TestAPIErrorStatuses(t *testing.T) {
	e := newEnv(t)
	g, _ := e.engine.Create(context.Background(), game.CreateGame{QuizID: e.quiz.ID, HostID: e.host.ID})
	e.engine.NextQuestion(context.Background(), g.ID, 0)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		want   int
	}{
		{"missing game", http.MethodGet, "/games/424242", nil, http.StatusNotFound},
		{"bad id", http.MethodGet, "/games/abc", nil, http.StatusBadRequest},
		{"started game", http.MethodPost, "/games/join", map[string]any{"pin": g.Pin, "userId": e.player.ID}, http.StatusUnprocessableEntity},
		{"unknown quiz", http.MethodPost, "/games", map[string]any{"quizId": 777, "hostId": e.host.ID}, http.StatusNotFound},
		{"bad role", http.MethodGet, "/users/1/games?role=admin", nil, http.StatusBadRequest},
		{"stats", http.MethodGet, "/stats", nil, http.StatusOK},
		{"health", http.MethodGet, "/healthz", nil, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			if tc.body != nil {
				_ = json.NewEncoder(&buf).Encode(tc.body)
			}
			req, _ := http.NewRequest(tc.method, e.server.URL+tc.path, &buf)
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.StatusCode)
			}
		})
	}
}
