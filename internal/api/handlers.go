package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/rewired-gh/kickbalance/internal/kickbase"
	"github.com/rewired-gh/kickbalance/internal/logger"
	"github.com/rewired-gh/kickbalance/internal/models"
	"github.com/rewired-gh/kickbalance/internal/runner"
)

// Handler wraps projection storage and the batch runner and exposes HTTP handlers.
type Handler struct {
	reader    ProjectionReader
	refresher Refresher
}

// NewHandler returns a new Handler.
func NewHandler(reader ProjectionReader, refresher Refresher) *Handler {
	return &Handler{reader: reader, refresher: refresher}
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("Failed to encode JSON response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// projectionView is a UserProjection with its failure rendered as text.
type projectionView struct {
	models.UserProjection
	Error string `json:"error,omitempty"`
}

type balancesResponse struct {
	LeagueID   string           `json:"league_id"`
	LeagueName string           `json:"league_name,omitempty"`
	BatchID    string           `json:"batch_id,omitempty"`
	Users      []projectionView `json:"users"`
}

func newBalancesResponse(leagueID string, rows []models.UserProjection) balancesResponse {
	resp := balancesResponse{LeagueID: leagueID, Users: make([]projectionView, 0, len(rows))}
	for _, row := range rows {
		view := projectionView{UserProjection: row}
		if row.Err != nil {
			view.Error = row.Err.Error()
		}
		if resp.BatchID == "" {
			resp.BatchID = row.BatchID
		}
		resp.Users = append(resp.Users, view)
	}
	return resp
}

// --- Handlers ---

// GetBalancesHandler handles GET /leagues/{leagueID}/balances
func (h *Handler) GetBalancesHandler(w http.ResponseWriter, r *http.Request) {
	leagueID := chi.URLParam(r, "leagueID")

	rows, err := h.reader.LatestProjections(r.Context(), leagueID)
	if err != nil {
		logger.Error("Failed to read projections for league %s: %v", leagueID, err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if len(rows) == 0 {
		writeError(w, http.StatusNotFound, "no projections for league")
		return
	}

	writeJSON(w, http.StatusOK, newBalancesResponse(leagueID, rows))
}

// RefreshHandler handles POST /leagues/{leagueID}/refresh
func (h *Handler) RefreshHandler(w http.ResponseWriter, r *http.Request) {
	leagueID := chi.URLParam(r, "leagueID")

	league, rows, err := h.refresher.RunLeague(r.Context(), leagueID)
	if err != nil {
		logger.Error("Refresh of league %s failed: %v", leagueID, err)
		switch {
		case errors.Is(err, runner.ErrUnknownLeague):
			writeError(w, http.StatusNotFound, "league not found")
		case errors.Is(err, runner.ErrBusy):
			writeError(w, http.StatusConflict, "a projection is already running")
		case errors.Is(err, kickbase.ErrUnauthorized):
			writeError(w, http.StatusBadGateway, "kickbase rejected the credentials")
		default:
			writeError(w, http.StatusBadGateway, "projection failed")
		}
		return
	}

	resp := newBalancesResponse(leagueID, rows)
	resp.LeagueName = league.Name
	writeJSON(w, http.StatusOK, resp)
}
