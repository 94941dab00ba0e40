package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"

	"github.com/albapepper/scoracle-live/internal/api/handler"
	"github.com/albapepper/scoracle-live/internal/config"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(h *handler.Handler, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TimingMiddleware)

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins: cfg.CORSAllowOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders: []string{
			"Accept", "Accept-Encoding", "Content-Type", "If-None-Match", "Cache-Control",
			handler.HeaderActorRole, handler.HeaderActorID,
		},
		ExposedHeaders:   []string{"X-Process-Time", "X-Cache", "ETag"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/cache", h.HealthCheckCache)
	})

	// Push channel. Kept out of the gzip group: the upgrade needs the raw writer.
	r.Get("/ws", h.ServeWS)

	// API v1 routes
	r.Route("/api/v1/live-fixtures", func(r chi.Router) {
		r.Use(middleware.Compress(5))

		r.Get("/", h.ListLiveFixtures)
		r.Post("/", h.Initialize)

		r.Route("/{fixtureID}", func(r chi.Router) {
			r.Get("/", h.GetLiveFixture)
			r.Get("/audience", h.GetAudience)

			r.Put("/status", h.UpdateStatus)
			r.Put("/score", h.UpdateScore)
			r.Post("/score/increment", h.IncrementScore)
			r.Post("/timeline", h.AddTimelineEvent)
			r.Post("/substitutions", h.AddSubstitution)
			r.Put("/statistics", h.UpdateStatistics)
			r.Put("/lineups", h.SetLineups)
			r.Put("/clock", h.AdjustClock)
			r.Put("/info", h.UpdateInfo)
			r.Post("/cheer", h.UpdateCheer)
			r.Post("/potm/votes", h.SubmitPOTMVote)
			r.Put("/potm/official", h.SetOfficialPOTM)
		})
	})

	return r
}
