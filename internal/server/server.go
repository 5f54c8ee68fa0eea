// Strata - Bounded Caching Engine for Keyed Domain Objects
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/strata

// Package server provides the ops HTTP surface using the Chi router:
// liveness, Prometheus metrics, and read-only cache introspection. It is an
// operational sidecar, not a data-plane API; cache reads and writes happen
// through the engine's Go API.
package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tomtom215/strata/internal/cache"
	"github.com/tomtom215/strata/internal/keys"
	"github.com/tomtom215/strata/internal/logging"
)

// Server is the ops HTTP server over one cache engine.
type Server struct {
	engine *cache.Cache
}

// New creates the ops server for the given engine.
func New(engine *cache.Cache) *Server {
	return &Server{engine: engine}
}

// Routes builds the Chi handler tree.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogging)

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1/cache", func(r chi.Router) {
		r.Get("/stats", s.handleStats)
		r.Get("/keys", s.handleKeys)
	})

	return r
}

// HTTPServer assembles an http.Server with the configured address and
// timeouts, ready to be wrapped as a supervised service.
func (s *Server) HTTPServer(host string, port int, timeout time.Duration) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: timeout,
		ReadTimeout:       timeout,
		WriteTimeout:      timeout,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.engine.Stats())
}

// keyView is the wire shape of one cache key in the introspection API.
type keyView struct {
	Type     string     `json:"type"`
	ID       any        `json:"id"`
	Location []keys.Ref `json:"location,omitempty"`
}

func (s *Server) handleKeys(w http.ResponseWriter, r *http.Request) {
	ks, err := s.engine.Keys()
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	views := make([]keyView, len(ks))
	for i, k := range ks {
		views[i] = keyView{Type: k.Type, ID: k.ID, Location: k.Location}
	}
	respondJSON(w, http.StatusOK, map[string]any{"count": len(views), "keys": views})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.Error().Err(err).Msg("encode response")
	}
}

// requestLogging logs each request with a correlation id, at debug level to
// keep scrape noise out of production logs.
func requestLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithNewCorrelationID(r.Context())
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		log := logging.Ctx(ctx)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}
