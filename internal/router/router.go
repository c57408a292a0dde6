package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"studyflow/internal/handlers"
	"studyflow/internal/middleware"
	"studyflow/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	authLimiter *middleware.RateLimiter,
	authHandler *handlers.AuthHandler,
	planHandler *handlers.StudyPlanHandler,
	studySessionHandler *handlers.StudySessionHandler,
	wsHub *websocket.Hub,
	frontendURL string,
	trustProxy bool,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.RealIP(trustProxy))
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			// Logout requires auth
			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", authHandler.Logout)
			})
		})

		// ──── Study Plan Routes ────
		r.Route("/plans", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", planHandler.Create)
			r.Get("/", planHandler.List)
			r.Get("/{id}", planHandler.Get)
			r.Get("/{id}/sessions", planHandler.Sessions)
		})

		// ──── Study Session Routes ────
		r.Route("/study-sessions", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Post("/", studySessionHandler.Create)
			r.Get("/", studySessionHandler.List)
			r.Get("/{id}", studySessionHandler.Get)
			r.Put("/{id}/status", studySessionHandler.UpdateStatus)
			r.Post("/{id}/complete", studySessionHandler.Complete)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
