// Package router wires the admin API surface.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/http/handlers"
	httpmiddleware "github.com/clicksaudeagendamento/clicksaudeagendamento-backend/internal/http/middleware"
	"github.com/clicksaudeagendamento/clicksaudeagendamento-backend/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger          *logging.Logger
	QueueHandler    *handlers.QueueHandler
	WhatsAppHandler *handlers.WhatsAppHandler
	AdminAuthSecret string
	MetricsHandler  http.Handler
}

// New creates a Chi router with all routes configured. Everything except
// the health check and metrics sits behind the admin JWT.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Group(func(admin chi.Router) {
		admin.Use(httpmiddleware.AdminJWT(cfg.AdminAuthSecret))

		if cfg.QueueHandler != nil {
			admin.Route("/appointment-queue", func(r chi.Router) {
				r.Post("/process-next-day", cfg.QueueHandler.ProcessNextDay)
				r.Post("/process-date", cfg.QueueHandler.ProcessDate)
				r.Get("/stats", cfg.QueueHandler.Stats)
				r.Get("/response-stats", cfg.QueueHandler.ResponseStats)
				r.Post("/test-message", cfg.QueueHandler.TestMessage)
			})
		}

		if cfg.WhatsAppHandler != nil {
			admin.Route("/whatsapp", func(r chi.Router) {
				r.Post("/connect", cfg.WhatsAppHandler.Connect)
				r.Get("/status", cfg.WhatsAppHandler.Status)
				r.Post("/reconnect", cfg.WhatsAppHandler.Reconnect)
				r.Delete("/disconnect", cfg.WhatsAppHandler.Disconnect)
			})
		}
	})

	return r
}
