package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"tutorchat/internal/handlers"
	"tutorchat/internal/middleware"
	"tutorchat/internal/web"
)

func New(
	chatHandler *handlers.ChatHandler,
	sessions *middleware.SessionCookies,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recoverer(logger))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Handle("/static/*", http.StripPrefix("/static/", web.Static()))

	r.Group(func(r chi.Router) {
		r.Use(sessions.Middleware)

		// ──── Chat page ────
		r.Get("/", chatHandler.Page)
		r.Route("/chat", func(r chi.Router) {
			r.Post("/messages", chatHandler.PostMessage)
			r.Post("/reset", chatHandler.PostReset)
			r.Post("/temperature", chatHandler.PostTemperature)
		})

		r.Route("/api/v1", func(r chi.Router) {
			r.Get("/session", chatHandler.GetSession)
			r.Post("/chat", chatHandler.AskQuestion)
			r.Post("/reset", chatHandler.Reset)
			r.Put("/temperature", chatHandler.SetTemperature)

			// ──── WebSocket ────
			r.Get("/ws", chatHandler.WebSocket)
		})
	})

	return r
}
