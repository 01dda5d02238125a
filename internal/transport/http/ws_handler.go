package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"quizgame-service/internal/domain"
	"quizgame-service/internal/events"
	"quizgame-service/internal/game"
	"quizgame-service/internal/logger"
)

// WSHandler runs one websocket per (game, user). It forwards the game's events
// to the client and turns client commands into engine calls.
type WSHandler struct {
	engine   *game.Engine
	hub      *events.Hub
	log      *logger.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(engine *game.Engine, hub *events.Hub, log *logger.Logger) *WSHandler {
	return &WSHandler{
		engine: engine,
		hub:    hub,
		log:    log.With("component", "http.WSHandler"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID int64   `json:"questionId"`
	Answer     []int64 `json:"answer"`
}

type nextPayload struct {
	IfCurrent *int `json:"ifCurrent"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// ServeWS expects gameId and userId query parameters. Identity is trusted
// from the query; authentication happens in front of this service.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	gameID, err1 := strconv.ParseInt(r.URL.Query().Get("gameId"), 10, 64)
	userID, err2 := strconv.ParseInt(r.URL.Query().Get("userId"), 10, 64)
	if err1 != nil || err2 != nil {
		http.Error(w, "missing or invalid gameId or userId", http.StatusBadRequest)
		return
	}
	snapshot, err := h.engine.Game(r.Context(), gameID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.hub.Subscribe(gameID)
	defer cancel()

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	// the writer goroutine is the only one touching conn for writes
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", "game", gameID, "user", userID, "error", err)
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case e, ok := <-updates:
				if !ok {
					// dropped as a slow subscriber
					conn.Close()
					return
				}
				select {
				case send <- outboundMessage{Type: string(e.Kind), Payload: e}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage{Type: "game", Payload: snapshot}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		reply := h.handle(r, gameID, userID, inbound)
		select {
		case send <- reply:
		case <-writerDone:
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handle(r *http.Request, gameID, userID int64, in inboundMessage) outboundMessage {
	ctx := r.Context()
	switch in.Type {
	case "join":
		p, err := h.engine.Join(ctx, gameID, userID)
		if err != nil {
			return h.errorMessage(err)
		}
		return outboundMessage{Type: "player", Payload: p}
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			return outboundMessage{Type: "error", Payload: errorPayload{Kind: string(domain.KindValidation), Message: "invalid answer payload"}}
		}
		a, err := h.engine.Submit(ctx, game.Submission{GameID: gameID, UserID: userID, QuestionID: payload.QuestionID, Answer: payload.Answer})
		if err != nil {
			return h.errorMessage(err)
		}
		return outboundMessage{Type: "answer_result", Payload: a}
	case "next_question":
		var payload nextPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil || payload.IfCurrent == nil {
			return outboundMessage{Type: "error", Payload: errorPayload{Kind: string(domain.KindValidation), Message: "next_question needs ifCurrent"}}
		}
		q, err := h.engine.NextQuestionAs(ctx, gameID, userID, *payload.IfCurrent)
		if err != nil {
			return h.errorMessage(err)
		}
		return outboundMessage{Type: "current_question", Payload: q}
	case "check":
		q, err := h.engine.CheckStateAs(ctx, gameID, userID)
		if err != nil {
			return h.errorMessage(err)
		}
		return outboundMessage{Type: "current_question", Payload: q}
	}
	return outboundMessage{Type: "error", Payload: errorPayload{Kind: string(domain.KindValidation), Message: "unsupported message type"}}
}

func (h *WSHandler) errorMessage(err error) outboundMessage {
	kind := domain.Kind(err)
	if kind == domain.KindInternal {
		h.log.Error("ws command failed", "error", err)
	}
	return outboundMessage{Type: "error", Payload: errorPayload{Kind: string(kind), Message: err.Error()}}
}
