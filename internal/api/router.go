// Package api wires the HTTP surface: REST routes, websocket endpoints,
// middleware chain, and the attachment file server.
package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/OpenFieldOps/open-job-api/internal/api/middleware"
	"github.com/OpenFieldOps/open-job-api/internal/auth"
	"github.com/OpenFieldOps/open-job-api/internal/files"
	"github.com/OpenFieldOps/open-job-api/internal/gateway"
	"github.com/OpenFieldOps/open-job-api/internal/handlers"
)

// Deps collects everything the router mounts.
type Deps struct {
	Logger   zerolog.Logger
	Handler  *handlers.Handler
	Verifier auth.Verifier
	Gateway  *gateway.Gateway
	Limiter  *middleware.RateLimiter
	Files    *files.DiskStore
}

// NewRouter creates and configures the HTTP router.
func NewRouter(d Deps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(32 * 1024 * 1024)) // attachments arrive as multipart
	r.Use(middleware.ValidateContentType)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(d.Logger))
	r.Use(chimw.Recoverer)

	// CORS - mobile and web clients call from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := d.Handler
	authmw := middleware.NewAuthMiddleware(d.Verifier)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/health", h.Health)

	// Attachment blobs; ids are uuids, so listings are not guessable
	if d.Files != nil {
		prefix := strings.TrimSuffix(d.Files.BaseURL, "/") + "/"
		r.Handle(prefix+"*", http.StripPrefix(prefix, http.FileServer(http.Dir(d.Files.Dir))))
	}

	// Websocket endpoints authenticate during the handshake, before any
	// middleware that would buffer or rewrite the hijacked connection.
	r.Get("/realtime", d.Gateway.UserEvents)
	r.Get("/chat/new-message", d.Gateway.ChatFeed)

	// Authenticated routes (require bearer token). The rate limiter runs
	// after RequireAuth so its windows are keyed by principal; keyed by IP
	// it would lump users behind one NAT together and trust
	// X-Forwarded-For. A nil limiter disables it, e.g. without Redis.
	r.Group(func(r chi.Router) {
		r.Use(authmw.RequireAuth)
		r.Use(d.Limiter.Middleware)

		r.Get("/chat", h.ListChats)
		r.Post("/chat", h.CreateChat)
		r.Put("/chat/{chatId}/members", h.SetChatMembers)
		r.Get("/chat/{chatId}/messages", h.GetChatMessages)
		r.Post("/chat/{chatId}/messages", h.SendMessage)

		r.Get("/job", h.ListJobs)
		r.Post("/job", h.CreateJob)
		r.Get("/job/{id}", h.GetJob)
		r.Patch("/job/{id}/status", h.UpdateJobStatus)
		r.Put("/job/{id}/operators", h.SetJobOperators)

		r.Get("/notification", h.ListNotifications)
		r.Post("/notification", h.SendNotification)
		r.Patch("/notification/{id}/read", h.MarkNotificationRead)
		r.Patch("/notification/read-all", h.MarkAllNotificationsRead)
		r.Delete("/notification", h.DeleteAllNotifications)
	})

	return r
}
