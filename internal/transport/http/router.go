package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"glabassets/internal/config"
	apperrors "glabassets/internal/errors"
	"glabassets/internal/middleware"
	"glabassets/internal/services"
	"glabassets/internal/validation"
)

// RouterDeps collects what the loopback API serves. Updates, Events,
// Metrics and Shutdown are optional. Shutdown, when done, aborts in-flight
// downloads; request cancellation never does.
type RouterDeps struct {
	Config       *config.Config
	Logger       *slog.Logger
	ErrorHandler *apperrors.ErrorHandler
	Validator    *validation.Validator

	Health    *services.HealthService
	License   LicenseService
	Sessions  SessionService
	Catalog   CatalogService
	Downloads Downloader
	Updates   UpdateService

	Events  http.Handler
	Metrics http.Handler

	Shutdown context.Context
}

// NewRouter builds the chi router with the middleware chain RequestID,
// RealIP, StructuredLogger, Recoverer, SecurityHeaders, CORS and the rate
// limiter.
func NewRouter(d RouterDeps) chi.Router {
	cfg := d.Config
	eh := d.ErrorHandler

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.StructuredLogger(d.Logger))
	r.Use(middleware.Recoverer(eh))
	r.Use(middleware.SecurityHeaders)
	if cfg.Security.EnableCORS {
		r.Use(middleware.CORS(middleware.CORSConfig{
			AllowedOrigins: cfg.Security.AllowedOrigins,
		}))
	}
	if cfg.Security.RateLimit.Enabled {
		r.Use(middleware.NewRateLimiter(cfg.Security.RateLimit.RPS, cfg.Security.RateLimit.Burst, eh, d.Logger).Handler)
	}

	r.NotFound(eh.NotFound)
	r.MethodNotAllowed(eh.MethodNotAllowed)

	if d.Events != nil {
		r.Handle("/ws", d.Events)
	}
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	health := NewHealthHandler(d.Health, d.Logger)
	sessions := NewSessionHandler(d.Sessions, d.Validator, eh, d.Logger)
	license := NewLicenseHandler(d.License, d.Validator, eh, d.Logger)
	assets := NewAssetHandler(d.Catalog, d.Sessions, cfg.Server.MaxUploadBytes, eh, d.Logger)
	downloads := NewDownloadHandler(d.Downloads, d.Validator, eh, d.Logger)
	assets.base = d.Shutdown
	downloads.base = d.Shutdown

	r.Route("/api", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))

		r.Get("/health", health.HealthCheck)
		r.Get("/version", health.Version)
		r.Get("/device", license.Device)

		r.Mount("/session", sessions.Routes())
		r.Mount("/license", license.Routes())
		r.Mount("/assets", assets.Routes())

		r.With(middleware.RequireDownload(d.Sessions, eh)).Post("/downloads", downloads.Download)

		if d.Updates != nil {
			r.Mount("/updates", NewUpdateHandler(d.Updates, eh, d.Logger).Routes())
		}
	})

	return r
}
