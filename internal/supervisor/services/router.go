// Wikivault - Wiki Backup and Restore Service
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/wikivault

package services

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/wikivault/internal/logging"
)

// BackupStatus is the part of the backup service the health endpoint reads.
// *backup.Service satisfies it.
type BackupStatus interface {
	LatestBackupTime() (time.Time, error)
}

// HealthResponse is the /healthz body
type HealthResponse struct {
	Status     string     `json:"status"`
	LastBackup *time.Time `json:"last_backup,omitempty"`
	Error      string     `json:"error,omitempty"`
}

// RateLimit bounds requests per client IP. Requests <= 0 disables limiting.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// NewObservabilityRouter serves /metrics (Prometheus) and the health probes.
// /healthz/live always answers 200; /healthz answers 503 when the backup
// catalog cannot be read.
func NewObservabilityRouter(status BackupStatus, limit RateLimit) http.Handler {
	r := chi.NewRouter()

	r.Use(requestIDWithLogging)
	r.Use(chimiddleware.Recoverer)
	if limit.Requests > 0 {
		window := limit.Window
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.LimitByIP(limit.Requests, window))
	}

	r.Route("/healthz", func(r chi.Router) {
		r.Get("/live", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
		})
		r.Get("/", healthHandler(status))
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func healthHandler(status BackupStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		last, err := status.LatestBackupTime()
		if err != nil {
			logging.Ctx(r.Context()).Warn().Err(err).Msg("Health check could not read backup catalog")
			writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "degraded", Error: err.Error()})
			return
		}

		resp := HealthResponse{Status: "ok"}
		if !last.IsZero() {
			resp.LastBackup = &last
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// requestIDWithLogging echoes or generates X-Request-ID and stores it in the
// request context for logging.Ctx.
func requestIDWithLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = logging.GenerateRequestID()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(logging.ContextWithRequestID(r.Context(), id)))
	})
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	//nolint:errcheck // Client may have gone away
	json.NewEncoder(w).Encode(v)
}
