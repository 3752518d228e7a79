// Package api exposes stored and on-demand balance projections over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"github.com/rewired-gh/kickbalance/internal/models"
)

// ProjectionReader returns the most recent stored batch of a league.
type ProjectionReader interface {
	LatestProjections(ctx context.Context, leagueID string) ([]models.UserProjection, error)
}

// Refresher runs and stores a projection batch for a league.
type Refresher interface {
	RunLeague(ctx context.Context, leagueID string) (models.League, []models.UserProjection, error)
}

// NewRouter constructs a chi router with all API endpoints registered.
func NewRouter(reader ProjectionReader, refresher Refresher, allowedOrigins []string) http.Handler {
	h := NewHandler(reader, refresher)
	r := chi.NewRouter()

	r.Use(cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/leagues/{leagueID}/balances", h.GetBalancesHandler)
	r.Post("/leagues/{leagueID}/refresh", h.RefreshHandler)

	return r
}
