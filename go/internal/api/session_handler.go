// Package api exposes the session and vote operations over REST for clients
// that do not hold a WebSocket connection, such as admin tooling.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/showdownhq/showdown/go/internal/models"
	"github.com/showdownhq/showdown/go/internal/session"
)

// SessionService defines what the handlers need from the session layer.
type SessionService interface {
	FetchSessionByCode(ctx context.Context, code string) (*models.Session, error)
	CreateSession(ctx context.Context, code string) (*models.Session, error)
	UpdateSessionStatus(ctx context.Context, id uuid.UUID, active, showResults bool, endTime *time.Time) (*models.Session, error)
	DeleteSession(ctx context.Context, id uuid.UUID) error
}

// VoteAdminService is the slice of the vote layer the session handlers use.
type VoteAdminService interface {
	DeleteAllVotes(ctx context.Context, sessionID uuid.UUID) error
}

type SessionHandler struct {
	sessions SessionService
	votes    VoteAdminService
	clock    clockwork.Clock
}

func NewSessionHandler(sessions SessionService, votes VoteAdminService, clock clockwork.Clock) *SessionHandler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SessionHandler{
		sessions: sessions,
		votes:    votes,
		clock:    clock,
	}
}

// Join fetches the session for a code, creating it on first use.
func (h *SessionHandler) Join(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	s, err := h.sessions.FetchSessionByCode(r.Context(), code)
	if errors.Is(err, session.ErrSessionNotFound) {
		s, err = h.sessions.CreateSession(r.Context(), code)
	}
	if err != nil {
		log.Error().Err(err).Str("code", code).Msg("failed to join session")
		http.Error(w, "failed to join session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, s)
}

// Get returns the session for a code without creating it.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionByCode(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Start opens a voting window closing after the fixed round length.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionByCode(w, r)
	if !ok {
		return
	}

	end := h.clock.Now().Add(session.VotingWindow)
	updated, err := h.sessions.UpdateSessionStatus(r.Context(), s.ID, true, false, &end)
	if err != nil {
		log.Error().Err(err).Str("code", s.Code).Msg("failed to start voting")
		http.Error(w, "failed to start voting", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// End closes the window and reveals results. Idempotent: ending an ended
// session returns the same record.
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionByCode(w, r)
	if !ok {
		return
	}

	updated, err := h.sessions.UpdateSessionStatus(r.Context(), s.ID, false, true, nil)
	if err != nil {
		log.Error().Err(err).Str("code", s.Code).Msg("failed to end voting")
		http.Error(w, "failed to end voting", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// Reset clears every ballot and returns the session to the idle state.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionByCode(w, r)
	if !ok {
		return
	}

	if err := h.votes.DeleteAllVotes(r.Context(), s.ID); err != nil {
		log.Error().Err(err).Str("code", s.Code).Msg("failed to reset votes")
		http.Error(w, "failed to reset votes", http.StatusInternalServerError)
		return
	}

	updated, err := h.sessions.UpdateSessionStatus(r.Context(), s.ID, false, false, nil)
	if err != nil {
		log.Error().Err(err).Str("code", s.Code).Msg("failed to reset session status")
		http.Error(w, "failed to reset session status", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

// Replace deletes the session with its votes and recreates it under the same
// code.
func (h *SessionHandler) Replace(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionByCode(w, r)
	if !ok {
		return
	}

	if err := h.sessions.DeleteSession(r.Context(), s.ID); err != nil {
		log.Error().Err(err).Str("code", s.Code).Msg("failed to delete session")
		http.Error(w, "failed to replace session", http.StatusInternalServerError)
		return
	}

	created, err := h.sessions.CreateSession(r.Context(), s.Code)
	if err != nil {
		log.Error().Err(err).Str("code", s.Code).Msg("failed to recreate session")
		http.Error(w, "failed to replace session", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *SessionHandler) sessionByCode(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
	code := chi.URLParam(r, "code")
	if code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return nil, false
	}

	s, err := h.sessions.FetchSessionByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return nil, false
		}
		log.Error().Err(err).Str("code", code).Msg("failed to fetch session")
		http.Error(w, "failed to fetch session", http.StatusInternalServerError)
		return nil, false
	}
	return s, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}
