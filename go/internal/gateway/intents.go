package gateway

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"
	"github.com/showdownhq/showdown/go/internal/models"
)

// clientIntent is the wire shape of every message a client sends: one action
// plus its arguments.
type clientIntent struct {
	Action string `json:"action"`
	Team   string `json:"team,omitempty"`
	Value  string `json:"value,omitempty"`
}

const (
	actionSelectTeam     = "select_team"
	actionCastVote       = "cast_vote"
	actionStartVoting    = "start_voting"
	actionEndVoting      = "end_voting"
	actionResetVotes     = "reset_votes"
	actionReplaceSession = "replace_session"
)

// handleClientMessage dispatches one client intent to the connection's
// coordinator. Failures are pushed back as error messages, never closing
// the connection.
func (c *Connection) handleClientMessage(message []byte) {
	var intent clientIntent
	if err := json.Unmarshal(message, &intent); err != nil {
		log.Debug().
			Str("connection_id", c.ID).
			Msg("ignoring malformed client message")
		return
	}

	ctx := context.Background()
	var err error

	switch intent.Action {
	case actionSelectTeam:
		err = c.coord.SelectTeam(ctx, models.Team(intent.Team))
	case actionCastVote:
		err = c.coord.CastVote(ctx, models.VoteValue(intent.Value))
	case actionStartVoting:
		err = c.coord.StartVoting(ctx)
	case actionEndVoting:
		err = c.coord.EndVoting(ctx)
	case actionResetVotes:
		err = c.coord.ResetVotes(ctx)
	case actionReplaceSession:
		err = c.coord.ReplaceSession(ctx)
	default:
		log.Debug().
			Str("connection_id", c.ID).
			Str("action", intent.Action).
			Msg("unknown client action")
		return
	}

	if err != nil {
		log.Error().
			Err(err).
			Str("connection_id", c.ID).
			Str("action", intent.Action).
			Msg("client intent failed")
		c.pushError(intent.Action + " failed")
	}
}
