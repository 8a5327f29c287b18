package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"

	"github.com/albapepper/scoracle-nhl/internal/api/handler"
	"github.com/albapepper/scoracle-nhl/internal/config"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(h *handler.Handler, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "If-None-Match", "Cache-Control"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "ETag"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Routes ---

	r.Get("/", h.Root)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/cache", h.HealthCheckCache)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Jobs (202 Accepted, run in the background)
		r.Route("/jobs", func(r chi.Router) {
			r.Post("/strength/players", h.StartStrengthPlayers)
			r.Post("/strength/teams", h.StartStrengthTeams)
			r.Post("/project", h.StartProjection)
			r.Post("/backtest", h.StartBacktest)
		})

		// Accuracy reads
		r.Route("/accuracy", func(r chi.Router) {
			r.Get("/scopes", h.GetAccuracyScopes)
			r.Get("/stats/{date}", h.GetAccuracyStats)
			r.Get("/players/{date}", h.GetAccuracyPlayers)
			r.Get("/history/{playerID}", h.GetPlayerHistory)
		})

		// Runs
		r.Get("/runs/latest", h.GetLatestRun)
		r.Get("/runs/{id}", h.GetRun)
	})

	return r
}
