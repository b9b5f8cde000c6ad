// Package router assembles the chi router and its middleware chain.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	httpmiddleware "github.com/tonyjurso-collab/attorney-directory/internal/http/middleware"
	"github.com/tonyjurso-collab/attorney-directory/internal/httpapi"
	"github.com/tonyjurso-collab/attorney-directory/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger             *logging.Logger
	Chat               *httpapi.Handler
	MetricsHandler     http.Handler
	CORSAllowedOrigins []string

	// ChatRatePerSecond limits per-IP chat traffic; zero disables limiting.
	ChatRatePerSecond float64
	ChatBurst         int
}

// New creates a chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	r.Get("/health", cfg.Chat.Health)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	r.Route("/chat", func(chat chi.Router) {
		if cfg.ChatRatePerSecond > 0 {
			chat.Use(httpmiddleware.RateLimit(cfg.ChatRatePerSecond, cfg.ChatBurst))
		}
		chat.Post("/turn", cfg.Chat.Turn)
		chat.Post("/reset", cfg.Chat.Reset)
		chat.Post("/submit", cfg.Chat.Submit)
		chat.Get("/history", cfg.Chat.History)
	})

	return r
}
