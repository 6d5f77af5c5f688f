package gateway

import (
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"
	"github.com/showdownhq/showdown/go/internal/models"
)

// TeamRouter maps a join-URL team token to a team. Unknown tokens leave the
// participant on manual team selection.
type TeamRouter interface {
	TeamForToken(token string) (models.Team, bool)
}

// WebSocketHandler handles WebSocket upgrade requests for session connections.
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	teams             TeamRouter
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(cm *ConnectionManager, teams TeamRouter) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		teams:             teams,
	}
}

// HandleSessionConnection handles WebSocket connections for a coded session.
// An optional team token in the query preselects the participant's side; an
// optional client_id is the browser's stable identity, used to remember the
// last-chosen team across visits.
func (h *WebSocketHandler) HandleSessionConnection(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "code is required", http.StatusBadRequest)
		return
	}

	var team models.Team
	if token := r.URL.Query().Get("token"); token != "" && h.teams != nil {
		mapped, ok := h.teams.TeamForToken(token)
		if ok {
			team = mapped
		} else {
			log.Debug().Str("code", code).Msg("unknown team token, falling back to manual selection")
		}
	}

	clientID := r.URL.Query().Get("client_id")

	if err := h.connectionManager.UpgradeConnection(w, r, code, team, clientID); err != nil {
		log.Error().
			Err(err).
			Str("code", code).
			Msg("failed to upgrade WebSocket connection")
		http.Error(w, "failed to upgrade connection", http.StatusInternalServerError)
		return
	}
}

// HandleConnectionStats returns statistics about active connections.
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	total, sessions := h.connectionManager.GetConnectionStats()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"total_connections":%d,"active_sessions":%d}`, total, sessions)
}
