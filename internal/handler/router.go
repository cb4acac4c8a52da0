package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/capitalize-ai/admin-chat/internal/middleware"
	"github.com/capitalize-ai/admin-chat/pkg/logger"
)

// RouterConfig holds what the router needs besides the chat service.
type RouterConfig struct {
	JWTSecret         string
	RateLimitRequests int
	RateLimitWindow   time.Duration
}

// NewRouter builds the console API.
func NewRouter(cfg RouterConfig, chat Chat, log *logger.Logger) http.Handler {
	log = logger.OrNop(log)

	healthHandler := NewHealthHandler(chat)
	conversationHandler := NewConversationHandler(chat, log)
	messageHandler := NewMessageHandler(chat, log)
	streamHandler := NewStreamHandler(chat, log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(operatorContext)
		if cfg.RateLimitRequests > 0 {
			r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		}

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversationHandler.List)
			r.Get("/stream", streamHandler.Stream)
			r.With(middleware.RequireScope(middleware.ScopeChatWrite)).Post("/refresh", conversationHandler.Refresh)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Get("/messages", messageHandler.List)

				r.Group(func(r chi.Router) {
					r.Use(middleware.RequireScope(middleware.ScopeChatWrite))
					r.Put("/read", conversationHandler.Read)
					r.Post("/messages", messageHandler.Send)
				})
			})
		})
	})

	return r
}
