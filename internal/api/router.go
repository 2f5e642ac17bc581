package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dsavault/clubchat/internal/api/middleware"
	"github.com/dsavault/clubchat/internal/chat"
	"github.com/dsavault/clubchat/internal/crypto"
	"github.com/dsavault/clubchat/internal/handlers"
)

// Deps are the services the router serves.
type Deps struct {
	Chat   *chat.Service
	Tokens *crypto.TokenIssuer
	// Redis backs rate limiting; nil disables it.
	Redis          *redis.Client
	AllowedOrigins []string
	RateLimit      middleware.RateLimiterConfig
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, deps Deps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024))
	r.Use(middleware.ValidateRequest)

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	origins := deps.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	streamCfg := handlers.DefaultStreamConfig()
	streamCfg.AllowedOrigins = origins
	h := handlers.NewHandler(deps.Chat, logger, handlers.WithStreamConfig(streamCfg))
	auth := middleware.NewAuthenticator(deps.Tokens, logger)

	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)
	r.Get("/rooms", h.ListRooms)
	r.Get("/stats", h.Stats)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth)
		if deps.Redis != nil {
			r.Use(middleware.NewRateLimiter(deps.Redis, logger, deps.RateLimit).Middleware)
		}

		r.Put("/users/me", h.PutMe)
		r.Get("/users", h.ListUsers)
		r.Get("/users/{id}", h.GetUserProfile)

		r.Get("/rooms/{id}/messages", h.GetRoomMessages)
		r.Post("/rooms/{id}/messages", h.PostRoomMessage)

		r.Get("/dm/{id}/messages", h.GetDirectMessages)
		r.Post("/dm/{id}/messages", h.PostDirectMessage)

		r.Get("/inbox", h.GetInbox)

		r.Get("/stream/rooms/{id}", h.StreamRoom)
		r.Get("/stream/dm/{id}", h.StreamDirect)
		r.Get("/stream/inbox", h.StreamInbox)
	})

	return r
}
