package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/showdownhq/showdown/go/internal/countdown"
	"github.com/showdownhq/showdown/go/internal/models"
	"github.com/showdownhq/showdown/go/internal/notify"
	"github.com/showdownhq/showdown/go/internal/session"
	"github.com/showdownhq/showdown/go/internal/vote"
)

// teamPrefKey is where the participant's last-chosen team is remembered
// between visits.
const teamPrefKey = "selected_team"

// Config wires one coordinator to its collaborators.
type Config struct {
	Code            string
	PreselectedTeam models.Team // from a join-URL team token; overrides the stored preference
	Sessions        SessionStore
	Votes           VoteStore
	Stream          notify.Stream
	Prefs           Preferences     // optional
	Clock           clockwork.Clock // optional, defaults to the real clock
	Alerts          Alerter         // optional, defaults to LogAlerter
	// OnChange receives a state snapshot after every change. It is invoked
	// on the coordinator's goroutines and must not call back into it.
	OnChange func(Snapshot)
}

// Coordinator owns one participant's view of one session: lifecycle,
// countdown reconciliation, and the unified snapshot. All operations are
// serialized on an internal mutex; change notifications and countdown ticks
// funnel through the same lock.
type Coordinator struct {
	cfg   Config
	clock clockwork.Clock

	runCtx context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	loading       bool
	session       *models.Session
	votes         []models.Vote
	myVote        *models.Vote
	team          models.Team
	participantID string
	subscribed    bool
	subs          []*notify.Subscription

	timer *countdown.Controller
}

// New creates a coordinator for one session code. Call Initialize to join.
func New(cfg Config) (*Coordinator, error) {
	if cfg.Code == "" {
		return nil, fmt.Errorf("code cannot be empty")
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if cfg.Votes == nil {
		return nil, fmt.Errorf("vote store is required")
	}
	if cfg.Stream == nil {
		return nil, fmt.Errorf("change stream is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Alerts == nil {
		cfg.Alerts = LogAlerter{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		cfg:     cfg,
		clock:   cfg.Clock,
		runCtx:  ctx,
		cancel:  cancel,
		loading: true,
	}
	c.timer = countdown.NewController(cfg.Clock, c.onTick, c.onExpire)
	return c, nil
}

// Initialize joins the session: looks it up by code, creating it on a miss,
// loads the team preference, generates a fresh participant identity, and
// starts consuming change notifications.
func (c *Coordinator) Initialize(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.loading = true
	c.session = nil
	c.votes = nil
	c.myVote = nil
	c.participantID = uuid.NewString()
	c.timer.Stop()

	c.loadTeamLocked(ctx)
	c.publishLocked()

	if err := c.joinLocked(ctx); err != nil {
		c.loading = false
		c.publishLocked()
		return err
	}

	if !c.subscribed {
		if err := c.subscribeLocked(); err != nil {
			c.loading = false
			c.publishLocked()
			return err
		}
		c.subscribed = true
	}

	c.loading = false
	c.publishLocked()

	log.Info().
		Str("code", c.cfg.Code).
		Str("participant_id", c.participantID).
		Msg("coordinator initialized")
	return nil
}

// joinLocked fetches or creates the session, loads votes, and reconciles the
// countdown against the authoritative end time.
func (c *Coordinator) joinLocked(ctx context.Context) error {
	s, err := c.cfg.Sessions.FetchSessionByCode(ctx, c.cfg.Code)
	if errors.Is(err, session.ErrSessionNotFound) {
		s, err = c.cfg.Sessions.CreateSession(ctx, c.cfg.Code)
	}
	if err != nil {
		c.cfg.Alerts.Error("failed to join session")
		return fmt.Errorf("failed to join session %q: %w", c.cfg.Code, err)
	}
	c.session = s

	if err := c.refreshVotesLocked(ctx); err != nil {
		log.Error().Err(err).Str("code", c.cfg.Code).Msg("failed to load votes")
	}

	c.reconcileCountdownLocked(ctx)
	return nil
}

func (c *Coordinator) loadTeamLocked(ctx context.Context) {
	if c.cfg.PreselectedTeam.Valid() {
		c.team = c.cfg.PreselectedTeam
		c.persistTeamLocked(ctx, c.team)
		return
	}
	if c.cfg.Prefs == nil {
		return
	}
	stored, err := c.cfg.Prefs.Get(ctx, teamPrefKey)
	if err != nil {
		log.Error().Err(err).Msg("failed to load team preference")
		return
	}
	if t := models.Team(stored); t.Valid() {
		c.team = t
	}
}

func (c *Coordinator) persistTeamLocked(ctx context.Context, team models.Team) {
	if c.cfg.Prefs == nil {
		return
	}
	if err := c.cfg.Prefs.Set(ctx, teamPrefKey, string(team)); err != nil {
		log.Error().Err(err).Msg("failed to persist team preference")
	}
}

func (c *Coordinator) subscribeLocked() error {
	voteSub, err := c.cfg.Stream.Subscribe(c.runCtx, notify.Filter{Table: notify.TableVotes})
	if err != nil {
		return fmt.Errorf("subscribe to vote changes: %w", err)
	}
	sessSub, err := c.cfg.Stream.Subscribe(c.runCtx, notify.Filter{Table: notify.TableSessions, Code: c.cfg.Code})
	if err != nil {
		voteSub.Cancel()
		return fmt.Errorf("subscribe to session changes: %w", err)
	}
	c.subs = []*notify.Subscription{voteSub, sessSub}

	go c.consume(voteSub, c.handleVoteEvent)
	go c.consume(sessSub, c.handleSessionEvent)
	return nil
}

func (c *Coordinator) consume(sub *notify.Subscription, handle func(notify.Event)) {
	for ev := range sub.C {
		handle(ev)
	}
}

// handleVoteEvent re-fetches ballots whenever anything in the votes
// collection changes for our session. The event carries no ballot payload;
// it is purely a re-fetch trigger.
func (c *Coordinator) handleVoteEvent(ev notify.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || ev.SessionID != c.session.ID {
		return
	}
	if err := c.refreshVotesLocked(c.runCtx); err != nil {
		log.Error().Err(err).Str("code", c.cfg.Code).Msg("failed to refresh votes")
		return
	}
	c.publishLocked()
}

// handleSessionEvent applies session updates directly from the event payload
// and re-derives the countdown from the new authoritative end time.
func (c *Coordinator) handleSessionEvent(ev notify.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch ev.Kind {
	case notify.KindDelete:
		// Session replaced from another client: rejoin under the same code
		// with a fresh participant identity.
		c.loading = true
		c.votes = nil
		c.myVote = nil
		c.participantID = uuid.NewString()
		c.timer.Stop()
		c.publishLocked()
		if err := c.joinLocked(c.runCtx); err != nil {
			log.Error().Err(err).Str("code", c.cfg.Code).Msg("failed to rejoin after session replacement")
		}
		c.loading = false
		c.publishLocked()

	case notify.KindCreate, notify.KindUpdate:
		if ev.Session == nil {
			return
		}
		if c.session == nil || c.session.ID != ev.Session.ID {
			// A new session under our code; re-fetch the full record.
			if err := c.joinLocked(c.runCtx); err != nil {
				log.Error().Err(err).Str("code", c.cfg.Code).Msg("failed to fetch replacing session")
				return
			}
			c.publishLocked()
			return
		}
		c.session.VotingActive = ev.Session.VotingActive
		c.session.ShowResults = ev.Session.ShowResults
		c.session.EndTime = ev.Session.EndTime
		c.reconcileCountdownLocked(c.runCtx)
		c.publishLocked()
	}
}

// reconcileCountdownLocked aligns the local timer with the session record: a
// future end time restarts the countdown toward it, a past end time finalizes
// the round, and an inactive session stops any ticking.
func (c *Coordinator) reconcileCountdownLocked(ctx context.Context) {
	s := c.session
	if s == nil || !s.VotingActive || s.EndTime == nil {
		c.timer.Stop()
		return
	}
	if s.Ended(c.clock.Now()) {
		// Found already past its end time; finalize rather than tick.
		c.timer.Stop()
		c.endVotingLocked(ctx)
		return
	}
	c.timer.SyncToDeadline(*s.EndTime)
}

// StartVoting opens a voting window closing after the fixed round length.
// On a write failure local state is left untouched.
func (c *Coordinator) StartVoting(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return fmt.Errorf("no active session")
	}

	end := c.clock.Now().Add(session.VotingWindow)
	s, err := c.cfg.Sessions.UpdateSessionStatus(ctx, c.session.ID, true, false, &end)
	if err != nil {
		c.cfg.Alerts.Error("failed to start voting")
		log.Error().Err(err).Str("code", c.cfg.Code).Msg("failed to start voting")
		return err
	}

	c.session = s
	c.timer.SyncToDeadline(end)
	c.publishLocked()
	return nil
}

// EndVoting closes the window and reveals results. Safe to call from several
// clients racing on the same expiry: ending an ended session changes nothing.
func (c *Coordinator) EndVoting(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.endVotingLocked(ctx)
}

func (c *Coordinator) endVotingLocked(ctx context.Context) error {
	if c.session == nil {
		return fmt.Errorf("no active session")
	}

	s, err := c.cfg.Sessions.UpdateSessionStatus(ctx, c.session.ID, false, true, nil)
	if err != nil {
		c.cfg.Alerts.Error("failed to end voting")
		log.Error().Err(err).Str("code", c.cfg.Code).Msg("failed to end voting")
		return err
	}

	c.session = s
	c.timer.Stop()
	c.publishLocked()
	return nil
}

// ResetVotes clears every ballot of the session and returns it to the idle,
// results-hidden state. Local vote state is cleared optimistically before the
// delete is confirmed; a residual-row check afterwards reports any mismatch.
func (c *Coordinator) ResetVotes(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return fmt.Errorf("no active session")
	}

	c.votes = nil
	c.myVote = nil
	c.timer.Stop()
	c.publishLocked()

	if err := c.cfg.Votes.DeleteAllVotes(ctx, c.session.ID); err != nil {
		c.cfg.Alerts.Error("failed to reset votes")
		log.Error().Err(err).Str("code", c.cfg.Code).Msg("failed to reset votes")
		return err
	}

	s, err := c.cfg.Sessions.UpdateSessionStatus(ctx, c.session.ID, false, false, nil)
	if err != nil {
		c.cfg.Alerts.Error("failed to reset session status")
		log.Error().Err(err).Str("code", c.cfg.Code).Msg("failed to reset session status")
		return err
	}
	c.session = s

	// Verify the delete actually emptied the collection.
	remaining, err := c.cfg.Votes.FetchVotes(ctx, c.session.ID)
	if err != nil {
		log.Error().Err(err).Str("code", c.cfg.Code).Msg("failed to verify vote reset")
	} else if len(remaining) > 0 {
		c.cfg.Alerts.Error("some votes could not be cleared")
		log.Warn().
			Int("remaining", len(remaining)).
			Str("code", c.cfg.Code).
			Msg("votes remain after reset")
	}

	c.publishLocked()
	return nil
}

// ReplaceSession deletes the current session with all of its ballots and
// recreates a fresh one under the same code, with a new participant identity.
func (c *Coordinator) ReplaceSession(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return fmt.Errorf("no active session")
	}

	if err := c.cfg.Sessions.DeleteSession(ctx, c.session.ID); err != nil {
		c.cfg.Alerts.Error("failed to replace session")
		log.Error().Err(err).Str("code", c.cfg.Code).Msg("failed to delete session for replacement")
		return err
	}

	s, err := c.cfg.Sessions.CreateSession(ctx, c.cfg.Code)
	if err != nil {
		c.cfg.Alerts.Error("failed to create replacement session")
		log.Error().Err(err).Str("code", c.cfg.Code).Msg("failed to create replacement session")
		return err
	}

	c.session = s
	c.votes = nil
	c.myVote = nil
	c.participantID = uuid.NewString()
	c.timer.Stop()
	c.publishLocked()

	c.cfg.Alerts.Info("new session started")
	return nil
}

// CastVote writes the participant's ballot. A missing precondition (no
// session, no team, voting closed) makes the call a silent no-op; only a
// failed write is reported.
func (c *Coordinator) CastVote(ctx context.Context, value models.VoteValue) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil || !c.session.VotingActive || !c.team.Valid() || c.participantID == "" || !value.Valid() {
		log.Debug().Str("code", c.cfg.Code).Msg("cast vote ignored: preconditions not met")
		return nil
	}

	v, err := c.cfg.Votes.UpsertVote(ctx, vote.UpsertVoteRequest{
		SessionID:     c.session.ID,
		ParticipantID: c.participantID,
		Team:          c.team,
		Value:         value,
	})
	if err != nil {
		c.cfg.Alerts.Error("failed to cast vote")
		log.Error().Err(err).Str("code", c.cfg.Code).Msg("failed to cast vote")
		return err
	}

	// Commit local state only once the write is confirmed.
	c.myVote = v
	c.publishLocked()
	return nil
}

// SelectTeam records the team choice locally and in the preference store. It
// never writes a ballot.
func (c *Coordinator) SelectTeam(ctx context.Context, team models.Team) error {
	if !team.Valid() {
		return fmt.Errorf("invalid team: %s", team)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.team = team
	c.persistTeamLocked(ctx, team)
	c.publishLocked()
	return nil
}

// Snapshot returns the current unified state view.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	snap := Snapshot{
		Loading:       c.loading,
		ParticipantID: c.participantID,
		Team:          c.team,
		MyVote:        c.myVote,
		Votes:         models.PartitionVotes(c.votes),
		Remaining:     c.timer.Remaining(),
	}
	if c.session != nil {
		s := *c.session
		snap.Session = &s
	}
	snap.Team1Tally = models.TallyVotes(snap.Votes.Team1)
	snap.Team2Tally = models.TallyVotes(snap.Votes.Team2)
	return snap
}

func (c *Coordinator) refreshVotesLocked(ctx context.Context) error {
	votes, err := c.cfg.Votes.FetchVotes(ctx, c.session.ID)
	if err != nil {
		return err
	}
	c.votes = votes

	v, err := c.cfg.Votes.FindVote(ctx, c.session.ID, c.participantID)
	if err != nil {
		if !errors.Is(err, vote.ErrVoteNotFound) {
			return err
		}
		c.myVote = nil
		return nil
	}
	c.myVote = v
	return nil
}

func (c *Coordinator) publishLocked() {
	if c.cfg.OnChange == nil {
		return
	}
	c.cfg.OnChange(c.snapshotLocked())
}

func (c *Coordinator) onTick(int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishLocked()
}

// onExpire finalizes the round when the local countdown reaches zero. Other
// clients observe the resulting session update instead of ending it again.
func (c *Coordinator) onExpire() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == nil || !c.session.VotingActive {
		return
	}
	if err := c.endVotingLocked(c.runCtx); err != nil {
		log.Error().Err(err).Str("code", c.cfg.Code).Msg("failed to finalize expired round")
	}
}

// Close cancels subscriptions and stops the countdown.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, sub := range c.subs {
		sub.Cancel()
	}
	c.subs = nil
	c.subscribed = false
	c.timer.Stop()
	c.cancel()
	log.Debug().Str("code", c.cfg.Code).Msg("coordinator closed")
}
