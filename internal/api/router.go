// FleetGlass - Fleet Tracking Dashboard and Real-Time Location Relay
// Copyright 2026 FleetGlass Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/fleetglass/fleetglass

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fleetglass/fleetglass/internal/auth"
	"github.com/fleetglass/fleetglass/internal/middleware"
)

// chiMiddleware adapts http.HandlerFunc middleware to Chi's
// func(http.Handler) http.Handler so the shared middleware package works
// with r.Use().
func chiMiddleware(mw func(http.HandlerFunc) http.HandlerFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return mw(next.ServeHTTP)
	}
}

// Routes builds the HTTP API router. authMW may be nil, in which case the
// vehicle registry mutations are left open (local development).
func (s *Server) Routes(authMW *auth.Middleware) http.Handler {
	r := chi.NewRouter()

	r.Use(chiMiddleware(middleware.RequestID))
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.cfg.Security.CORSOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health and metrics stay outside the rate limit so monitoring cannot
	// be starved by dashboard traffic.
	r.Get("/health/live", s.HandleHealthLive)
	r.Get("/health/ready", s.HandleHealthReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(s.cfg.Security.RateLimitReqs, s.cfg.Security.RateLimitWindow))
		r.Use(chiMiddleware(middleware.PrometheusMetrics))

		r.Post("/auth/login", s.HandleLogin)

		r.Get("/location", s.HandleListLocations)
		r.Post("/location", s.HandleIngestLocation)
		r.Get("/reports/historical", s.HandleHistoricalReport)
		r.Post("/gps/upload", s.HandleGPSUpload)

		r.Get("/vehicles", s.HandleListVehicles)
		r.Get("/vehicles/logs", s.HandleVehicleLogs)
		r.Get("/vehicles/{id}", s.HandleGetVehicle)

		// Registry mutations are admin operations when auth is configured.
		r.Group(func(r chi.Router) {
			if authMW != nil {
				r.Use(chiMiddleware(authMW.Authenticate))
			}
			r.Post("/vehicles", s.HandleCreateVehicle)
			r.Put("/vehicles/{id}", s.HandleUpdateVehicle)
			r.Delete("/vehicles/{id}", s.HandleDeleteVehicle)
		})
	})

	return r
}
