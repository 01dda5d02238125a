package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/httprate"

	"quizgame-service/internal/events"
	"quizgame-service/internal/game"
	"quizgame-service/internal/logger"
)

// NewRouter mounts the REST handlers and the websocket endpoint. rateLimit is
// requests per minute per client IP; zero disables limiting.
func NewRouter(engine *game.Engine, hub *events.Hub, log *logger.Logger, rateLimit int) http.Handler {
	api := NewAPIHandler(engine, log)
	ws := NewWSHandler(engine, hub, log)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if rateLimit > 0 {
		r.Use(httprate.LimitByIP(rateLimit, time.Minute))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ws", ws.ServeWS)

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))
		r.Get("/stats", api.Stats)
		r.Post("/games", api.CreateGame)
		r.Post("/games/join", api.JoinByPin)
		r.Get("/games/{id}", api.Game)
		r.Get("/games/{id}/rating", api.Rating)
		r.Get("/users/{id}/games", api.UserGames)
	})
	return r
}
