package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"reporthub-backend/internal/handlers"
	"reporthub-backend/internal/middleware"
	"reporthub-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	collabHandler *handlers.CollabHandler,
	reportHandler *handlers.ReportHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Session creation rate limiter (20 req/min per IP)
	createLimiter := middleware.NewRateLimiter(20, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Collaborative Session Routes ────
		r.Route("/collab", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)

			r.Group(func(r chi.Router) {
				r.Use(createLimiter.Middleware)
				r.Post("/", collabHandler.Create)
			})

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", collabHandler.Snapshot)
				r.Delete("/", collabHandler.Delete)
				r.Post("/join", collabHandler.Join)
				r.Post("/leave", collabHandler.Leave)
				r.Post("/update", collabHandler.Update)
				r.Get("/poll", collabHandler.Poll)
				r.Post("/refresh", collabHandler.Refresh)
				r.Post("/save", reportHandler.Save)
			})
		})

		// ──── Saved Report Routes ────
		r.Route("/reports", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", reportHandler.List)
			r.Get("/{id}", reportHandler.Get)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
