package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/consultly/chat-service/internal/api/middleware"
	"github.com/consultly/chat-service/internal/handlers"
)

// NewRouter creates and configures the HTTP router. redisClient may be
// nil, in which case rate limiting is disabled.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, redisClient *redis.Client, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // content caps out at 1000 chars
	r.Use(middleware.RequireJSON)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	limiter := middleware.NewRateLimiter(redisClient, logger)
	r.Use(limiter.Middleware)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-Id", "X-User-Name", "X-User-Role", "X-User-Image"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", h.Health)

	// Everything under /chat requires the caller identity injected by
	// the platform gateway.
	r.Route("/chat", func(r chi.Router) {
		r.Use(middleware.RequireIdentity)

		r.Get("/rooms", h.ListRooms)
		r.Post("/rooms", h.CreateRoom)
		r.Get("/unread-count", h.UnreadCounts)
		r.Put("/online-status", h.UpdateOnlineStatus)
		r.Get("/online-users", h.ListOnlineUsers)
		r.Get("/ws", h.ServeWS)

		r.Get("/{roomID}", h.GetHistory)
		r.Post("/{roomID}/message", h.PostMessage)
		r.Put("/{roomID}/read", h.MarkRead)
	})

	return r
}
