package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/showdownhq/showdown/go/internal/models"
	"github.com/showdownhq/showdown/go/internal/session"
	"github.com/showdownhq/showdown/go/internal/vote"
)

// VoteService defines what the vote handlers need from the vote layer.
type VoteService interface {
	FetchVotes(ctx context.Context, sessionID uuid.UUID) ([]models.Vote, error)
	UpsertVote(ctx context.Context, req vote.UpsertVoteRequest) (*models.Vote, error)
}

// SessionLookup resolves a session code for vote routes.
type SessionLookup interface {
	FetchSessionByCode(ctx context.Context, code string) (*models.Session, error)
}

type VoteHandler struct {
	votes    VoteService
	sessions SessionLookup
}

func NewVoteHandler(votes VoteService, sessions SessionLookup) *VoteHandler {
	return &VoteHandler{
		votes:    votes,
		sessions: sessions,
	}
}

type castVoteRequest struct {
	ParticipantID string `json:"participant_id"`
	Team          string `json:"team"`
	Value         string `json:"value"`
}

// Cast writes a ballot; a repeat cast by the same participant updates in
// place.
func (h *VoteHandler) Cast(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	var req castVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ParticipantID == "" {
		http.Error(w, "participant_id is required", http.StatusBadRequest)
		return
	}
	team := models.Team(req.Team)
	value := models.VoteValue(req.Value)
	if !team.Valid() || !value.Valid() {
		http.Error(w, "invalid team or vote value", http.StatusBadRequest)
		return
	}
	if !s.VotingActive {
		http.Error(w, "voting is not active", http.StatusConflict)
		return
	}

	v, err := h.votes.UpsertVote(r.Context(), vote.UpsertVoteRequest{
		SessionID:     s.ID,
		ParticipantID: req.ParticipantID,
		Team:          team,
		Value:         value,
	})
	if err != nil {
		log.Error().Err(err).Str("session_id", s.ID.String()).Msg("failed to cast vote")
		http.Error(w, "failed to cast vote", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, v)
}

type votesResponse struct {
	Votes      models.TeamVotes `json:"votes"`
	Team1Tally models.Tally     `json:"team1Tally"`
	Team2Tally models.Tally     `json:"team2Tally"`
}

// List returns a session's ballots partitioned by team with per-team tallies.
func (h *VoteHandler) List(w http.ResponseWriter, r *http.Request) {
	s, ok := h.lookupSession(w, r)
	if !ok {
		return
	}

	votes, err := h.votes.FetchVotes(r.Context(), s.ID)
	if err != nil {
		log.Error().Err(err).Str("session_id", s.ID.String()).Msg("failed to fetch votes")
		http.Error(w, "failed to fetch votes", http.StatusInternalServerError)
		return
	}

	tv := models.PartitionVotes(votes)
	writeJSON(w, http.StatusOK, votesResponse{
		Votes:      tv,
		Team1Tally: models.TallyVotes(tv.Team1),
		Team2Tally: models.TallyVotes(tv.Team2),
	})
}

func (h *VoteHandler) lookupSession(w http.ResponseWriter, r *http.Request) (*models.Session, bool) {
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
