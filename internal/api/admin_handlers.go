package api

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/5day4cast/coordinator/internal/domain"
)

type createCompetitionResponse struct {
	ID uuid.UUID `json:"id"`
}

// CreateCompetition handles POST /admin/api/competitions (§3, §6). The
// coordinator never generates the id itself: it is client-assigned
// (UUIDv7) so retried create calls against a crashed admin client are
// idempotent against the same row instead of minting duplicates.
func (s *Server) CreateCompetition(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID uuid.UUID `json:"id"`
		domain.EventSubmission
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == uuid.Nil {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}
	if req.TotalAllowedEntries <= 0 {
		writeError(w, http.StatusBadRequest, "total_allowed_entries must be positive")
		return
	}

	competition := domain.NewCompetition(req.ID, req.EventSubmission)
	if err := s.Competitions.Insert(r.Context(), competition); err != nil {
		s.logError(r, "inserting competition", err)
		writeError(w, http.StatusInternalServerError, "error creating competition")
		return
	}

	writeJSON(w, http.StatusCreated, createCompetitionResponse{ID: competition.ID})
}

// RequestCancellation handles POST /admin/api/competitions/{id}/cancel
// (§5 "Cancellation and timeouts"). It only flips cancel_requested; the
// watcher observes the flag on its next tick and drives the competition
// to Cancelled through whichever handler is appropriate for its current
// state.
func (s *Server) RequestCancellation(w http.ResponseWriter, r *http.Request) {
	id, ok := s.parseID(w, r, "id")
	if !ok {
		return
	}

	if err := s.Competitions.RequestCancellation(r.Context(), id); err != nil {
		s.logError(r, "requesting cancellation", err)
		writeError(w, http.StatusInternalServerError, "error requesting cancellation")
		return
	}

	writeJSON(w, http.StatusAccepted, struct {
		OK bool `json:"ok"`
	}{OK: true})
}
