package api

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/iconidentify/igrabba/internal/api/handler"
	mw "github.com/iconidentify/igrabba/internal/api/middleware"
)

// NewRouter creates the HTTP router with all routes configured.
func NewRouter(
	healthHandler *handler.HealthHandler,
	webhookHandler *handler.WebhookHandler,
	webhookSecret string,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.CleanPath) // Normalize paths (e.g., //ready -> /ready)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/", healthHandler.Root)
	r.Get("/health", healthHandler.Live)
	r.Get("/ready", healthHandler.Ready)
	r.Get("/stats", healthHandler.Stats)

	r.With(mw.WebhookSecret(webhookSecret)).Post("/webhook", webhookHandler.Receive)

	return r
}
