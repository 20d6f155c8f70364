// FaceTrack - Classroom Attendance Edge-Cloud Sync
// Copyright 2026 K. Bhujbal (kbhujbal)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kbhujbal/facetrack

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kbhujbal/facetrack/internal/config"
	"github.com/kbhujbal/facetrack/internal/logging"
	"github.com/kbhujbal/facetrack/internal/middleware"
)

// healthRateLimit is deliberately permissive; monitors poll these paths.
const healthRateLimit = 1000

// NewRouter wires the full HTTP surface.
func NewRouter(cfg *config.SecurityConfig, handler *Handler) http.Handler {
	r := chi.NewRouter()

	// Global middleware, applied to all routes in order.
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	if cfg.APIToken == "" {
		logging.Warn().Msg("API token not configured, authentication disabled")
	}

	// Health endpoints: no auth, permissive rate limit.
	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(httprate.LimitByIP(healthRateLimit, cfg.RateLimitWindow))
		r.Get("/live", handler.HealthLive)
		r.Get("/ready", handler.HealthReady)
	})

	// Device-facing and read API: rate limited, instrumented, authenticated.
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(httprate.Limit(cfg.RateLimitReqs, cfg.RateLimitWindow, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Use(middleware.PrometheusMetrics)
		r.Use(middleware.BearerAuth(cfg.APIToken))

		r.Get("/schedule", handler.Schedule)
		r.Post("/attendance", handler.Attendance)
		r.Post("/heartbeat", handler.Heartbeat)
		r.Get("/attendance/subjects/{id}", handler.AttendanceBySubject)
		r.Get("/attendance/activities/{id}", handler.AttendanceByActivity)
	})

	// Prometheus scrape endpoint.
	r.Handle("/metrics", promhttp.Handler())

	return r
}
