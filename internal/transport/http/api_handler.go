package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"

	"quizgame-service/internal/domain"
	"quizgame-service/internal/game"
	"quizgame-service/internal/logger"
)

// APIHandler serves the read side of the engine plus game creation.
type APIHandler struct {
	engine *game.Engine
	log    *logger.Logger
}

func NewAPIHandler(engine *game.Engine, log *logger.Logger) *APIHandler {
	return &APIHandler{engine: engine, log: log.With("component", "http.APIHandler")}
}

type createGameRequest struct {
	QuizID  int64  `json:"quizId"`
	HostID  int64  `json:"hostId"`
	Label   string `json:"label"`
	Online  bool   `json:"online"`
	TimerOn bool   `json:"timerOn"`
	GroupID *int64 `json:"groupId"`
}

type joinRequest struct {
	Pin    string `json:"pin"`
	UserID int64  `json:"userId"`
}

type joinResponse struct {
	Game   domain.Game   `json:"game"`
	Player domain.Player `json:"player"`
}

func (h *APIHandler) CreateGame(w http.ResponseWriter, r *http.Request) {
	var req createGameRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.QuizID == 0 || req.HostID == 0 {
		http.Error(w, "quizId and hostId are required", http.StatusBadRequest)
		return
	}
	g, err := h.engine.Create(r.Context(), game.CreateGame{
		QuizID:  req.QuizID,
		HostID:  req.HostID,
		Label:   req.Label,
		Online:  req.Online,
		TimerOn: req.TimerOn,
		GroupID: req.GroupID,
	})
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *APIHandler) JoinByPin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Pin == "" || req.UserID == 0 {
		http.Error(w, "pin and userId are required", http.StatusBadRequest)
		return
	}
	g, p, err := h.engine.JoinByPin(r.Context(), req.Pin, req.UserID)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, joinResponse{Game: g, Player: p})
}

func (h *APIHandler) Game(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	g, err := h.engine.Game(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *APIHandler) Rating(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	players, err := h.engine.Rating(r.Context(), id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, players)
}

// UserGames lists games hosted (role=host, default) or played (role=player)
// by a user; running=true hides finished games.
func (h *APIHandler) UserGames(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	running := r.URL.Query().Get("running") == "true"
	var (
		games []domain.Game
		err   error
	)
	switch r.URL.Query().Get("role") {
	case "", "host":
		games, err = h.engine.HostedGames(r.Context(), id, running)
	case "player":
		games, err = h.engine.PlayedGames(r.Context(), id, running)
	default:
		http.Error(w, "role must be host or player", http.StatusBadRequest)
		return
	}
	if err != nil {
		h.fail(w, err)
		return
	}
	if games == nil {
		games = []domain.Game{}
	}
	writeJSON(w, http.StatusOK, games)
}

func (h *APIHandler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.engine.Stats(r.Context())
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *APIHandler) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.log.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorPayload{Kind: string(domain.Kind(err)), Message: err.Error()})
}

func statusFor(err error) int {
	switch domain.Kind(err) {
	case domain.KindValidation:
		return http.StatusUnprocessableEntity
	case domain.KindPermission:
		return http.StatusForbidden
	case domain.KindNotFound:
		return http.StatusNotFound
	case domain.KindConsistency:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
