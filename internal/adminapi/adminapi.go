// Package adminapi is the relay's small read-only HTTP surface:
// liveness and stats, no auth, no rate limiting (both explicitly out
// of scope for this relay).
package adminapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/relaycore/nostrd/internal/relay"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("failed to encode JSON response")
	}
}

// NewRouter builds the admin HTTP router for r's /health and /stats
// endpoints.
func NewRouter(r *relay.Relay) *chi.Mux {
	mux := chi.NewRouter()
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Logger)
	mux.Use(middleware.Recoverer)

	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	}))

	mux.Get("/health", healthCheck)
	mux.Get("/stats", statsHandler(r))

	return mux
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func statsHandler(r *relay.Relay) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		clients, events, subs := r.Snapshot()
		respondJSON(w, http.StatusOK, map[string]int64{
			"clients":       clients,
			"events":        events,
			"subscriptions": subs,
		})
	}
}
