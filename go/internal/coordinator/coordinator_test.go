package coordinator

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/showdownhq/showdown/go/internal/models"
	"github.com/showdownhq/showdown/go/internal/notify"
	"github.com/showdownhq/showdown/go/internal/session"
	"github.com/showdownhq/showdown/go/internal/vote"
	"github.com/stretchr/testify/suite"
)

// fakeSessionStore keeps sessions in memory and publishes change events to
// the shared bus, standing in for the Postgres-plus-outbox pipeline.
type fakeSessionStore struct {
	mu         sync.Mutex
	bus        *notify.Bus
	clock      clockwork.Clock
	byCode     map[string]*models.Session
	failUpdate bool
}

func newFakeSessionStore(bus *notify.Bus, clock clockwork.Clock) *fakeSessionStore {
	return &fakeSessionStore{
		bus:    bus,
		clock:  clock,
		byCode: make(map[string]*models.Session),
	}
}

func (f *fakeSessionStore) FetchSessionByCode(ctx context.Context, code string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byCode[code]
	if !ok {
		return nil, session.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeSessionStore) CreateSession(ctx context.Context, code string) (*models.Session, error) {
	f.mu.Lock()
	s := &models.Session{
		ID:        uuid.New(),
		Code:      code,
		Question:  models.DefaultQuestion,
		CreatedAt: f.clock.Now(),
		UpdatedAt: f.clock.Now(),
	}
	f.byCode[code] = s
	cp := *s
	f.mu.Unlock()

	f.bus.Publish(notify.Event{Kind: notify.KindCreate, Table: notify.TableSessions, SessionID: cp.ID, Session: &cp})
	return &cp, nil
}

func (f *fakeSessionStore) UpdateSessionStatus(ctx context.Context, id uuid.UUID, active, showResults bool, endTime *time.Time) (*models.Session, error) {
	f.mu.Lock()
	if f.failUpdate {
		f.mu.Unlock()
		return nil, fmt.Errorf("backend rejected write")
	}
	var found *models.Session
	for _, s := range f.byCode {
		if s.ID == id {
			found = s
			break
		}
	}
	if found == nil {
		f.mu.Unlock()
		return nil, session.ErrSessionNotFound
	}
	found.VotingActive = active
	found.ShowResults = showResults
	found.EndTime = endTime
	found.UpdatedAt = f.clock.Now()
	cp := *found
	f.mu.Unlock()

	f.bus.Publish(notify.Event{Kind: notify.KindUpdate, Table: notify.TableSessions, SessionID: cp.ID, Session: &cp})
	return &cp, nil
}

func (f *fakeSessionStore) DeleteSession(ctx context.Context, id uuid.UUID) error {
	f.mu.Lock()
	var deleted *models.Session
	for code, s := range f.byCode {
		if s.ID == id {
			deleted = s
			delete(f.byCode, code)
			break
		}
	}
	f.mu.Unlock()

	if deleted != nil {
		cp := *deleted
		f.bus.Publish(notify.Event{Kind: notify.KindDelete, Table: notify.TableSessions, SessionID: cp.ID, Session: &cp})
	}
	return nil
}

// fakeVoteStore upserts ballots keyed by (session, participant), mirroring
// the unique-constraint contract of the real store.
type fakeVoteStore struct {
	mu    sync.Mutex
	bus   *notify.Bus
	clock clockwork.Clock
	votes map[uuid.UUID]map[string]models.Vote
}

func newFakeVoteStore(bus *notify.Bus, clock clockwork.Clock) *fakeVoteStore {
	return &fakeVoteStore{
		bus:   bus,
		clock: clock,
		votes: make(map[uuid.UUID]map[string]models.Vote),
	}
}

func (f *fakeVoteStore) FetchVotes(ctx context.Context, sessionID uuid.UUID) ([]models.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.Vote, 0)
	for _, v := range f.votes[sessionID] {
		out = append(out, v)
	}
	return out, nil
}

func (f *fakeVoteStore) FindVote(ctx context.Context, sessionID uuid.UUID, participantID string) (*models.Vote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.votes[sessionID][participantID]
	if !ok {
		return nil, vote.ErrVoteNotFound
	}
	return &v, nil
}

func (f *fakeVoteStore) UpsertVote(ctx context.Context, req vote.UpsertVoteRequest) (*models.Vote, error) {
	f.mu.Lock()
	byParticipant, ok := f.votes[req.SessionID]
	if !ok {
		byParticipant = make(map[string]models.Vote)
		f.votes[req.SessionID] = byParticipant
	}
	v, exists := byParticipant[req.ParticipantID]
	if !exists {
		v = models.Vote{
			ID:            uuid.New(),
			SessionID:     req.SessionID,
			ParticipantID: req.ParticipantID,
			CreatedAt:     f.clock.Now(),
		}
	}
	v.Team = req.Team
	v.Value = req.Value
	v.UpdatedAt = f.clock.Now()
	byParticipant[req.ParticipantID] = v
	f.mu.Unlock()

	f.bus.Publish(notify.Event{Kind: notify.KindUpdate, Table: notify.TableVotes, SessionID: req.SessionID})
	return &v, nil
}

func (f *fakeVoteStore) DeleteAllVotes(ctx context.Context, sessionID uuid.UUID) error {
	f.mu.Lock()
	delete(f.votes, sessionID)
	f.mu.Unlock()

	f.bus.Publish(notify.Event{Kind: notify.KindDelete, Table: notify.TableVotes, SessionID: sessionID})
	return nil
}

type fakePrefs struct {
	mu     sync.Mutex
	values map[string]string
}

func newFakePrefs() *fakePrefs {
	return &fakePrefs{values: make(map[string]string)}
}

func (f *fakePrefs) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key], nil
}

func (f *fakePrefs) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	return nil
}

type CoordinatorTestSuite struct {
	suite.Suite
	bus      *notify.Bus
	clock    *clockwork.FakeClock
	sessions *fakeSessionStore
	votes    *fakeVoteStore
}

func (s *CoordinatorTestSuite) SetupTest() {
	s.bus = notify.NewBus()
	s.clock = clockwork.NewFakeClock()
	s.sessions = newFakeSessionStore(s.bus, s.clock)
	s.votes = newFakeVoteStore(s.bus, s.clock)
}

func TestCoordinatorTestSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorTestSuite))
}

func (s *CoordinatorTestSuite) newCoordinator(code string, team models.Team) *Coordinator {
	c, err := New(Config{
		Code:            code,
		PreselectedTeam: team,
		Sessions:        s.sessions,
		Votes:           s.votes,
		Stream:          s.bus,
		Prefs:           newFakePrefs(),
		Clock:           s.clock,
	})
	s.Require().NoError(err)
	s.Require().NoError(c.Initialize(context.Background()))
	return c
}

func (s *CoordinatorTestSuite) TestInitializeCreatesSessionOnMiss() {
	c := s.newCoordinator("FRESH", "")
	defer c.Close()

	snap := c.Snapshot()
	s.Require().NotNil(snap.Session)
	s.False(snap.Loading)
	s.Equal("FRESH", snap.Session.Code)
	s.Equal(models.DefaultQuestion, snap.Session.Question)
	s.False(snap.Session.VotingActive)
	s.False(snap.Session.ShowResults)
	s.Nil(snap.Session.EndTime)
}

func (s *CoordinatorTestSuite) TestInitializeReusesExistingSession() {
	first := s.newCoordinator("SHARED", "")
	defer first.Close()

	second := s.newCoordinator("SHARED", "")
	defer second.Close()

	s.Equal(first.Snapshot().Session.ID, second.Snapshot().Session.ID)
}

func (s *CoordinatorTestSuite) TestStartVotingSetsEndTime() {
	c := s.newCoordinator("ROUND", models.TeamOne)
	defer c.Close()

	s.Require().NoError(c.StartVoting(context.Background()))

	stored, err := s.sessions.FetchSessionByCode(context.Background(), "ROUND")
	s.Require().NoError(err)
	s.True(stored.VotingActive)
	s.False(stored.ShowResults)
	s.Require().NotNil(stored.EndTime)
	s.Equal(s.clock.Now().Add(session.VotingWindow), *stored.EndTime)
	s.Equal(15, c.Snapshot().Remaining)
}

func (s *CoordinatorTestSuite) TestInitializeMidWindowPrimesCountdown() {
	created, err := s.sessions.CreateSession(context.Background(), "LATE")
	s.Require().NoError(err)
	end := s.clock.Now().Add(5 * time.Second)
	_, err = s.sessions.UpdateSessionStatus(context.Background(), created.ID, true, false, &end)
	s.Require().NoError(err)

	c := s.newCoordinator("LATE", models.TeamTwo)
	defer c.Close()

	s.Equal(5, c.Snapshot().Remaining)

	s.clock.BlockUntil(1)
	s.clock.Advance(6 * time.Second)

	s.Require().Eventually(func() bool {
		snap := c.Snapshot()
		return snap.Session != nil &&
			!snap.Session.VotingActive && snap.Session.ShowResults &&
			snap.Remaining == 0
	}, time.Second, 10*time.Millisecond)
}

func (s *CoordinatorTestSuite) TestInitializeReconcilesStaleEndTime() {
	created, err := s.sessions.CreateSession(context.Background(), "STALE")
	s.Require().NoError(err)
	end := s.clock.Now().Add(5 * time.Second)
	_, err = s.sessions.UpdateSessionStatus(context.Background(), created.ID, true, false, &end)
	s.Require().NoError(err)

	// The window lapsed while nobody was connected.
	s.clock.Advance(10 * time.Second)

	c := s.newCoordinator("STALE", models.TeamOne)
	defer c.Close()

	snap := c.Snapshot()
	s.Require().NotNil(snap.Session)
	s.False(snap.Session.VotingActive)
	s.True(snap.Session.ShowResults)
	s.Equal(0, snap.Remaining)
}

func (s *CoordinatorTestSuite) TestStartVotingFailureLeavesStateUntouched() {
	c := s.newCoordinator("FAIL", models.TeamOne)
	defer c.Close()

	before := c.Snapshot()
	s.sessions.failUpdate = true

	err := c.StartVoting(context.Background())
	s.Require().Error(err)

	after := c.Snapshot()
	s.False(after.Session.VotingActive)
	s.Nil(after.Session.EndTime)
	s.Equal(before.Remaining, after.Remaining)
}

func (s *CoordinatorTestSuite) TestRevoteKeepsSingleBallot() {
	c := s.newCoordinator("REVOTE", models.TeamOne)
	defer c.Close()

	s.Require().NoError(c.StartVoting(context.Background()))
	s.Require().NoError(c.CastVote(context.Background(), models.VoteYes))
	s.Require().NoError(c.CastVote(context.Background(), models.VoteNo))

	votes, err := s.votes.FetchVotes(context.Background(), c.Snapshot().Session.ID)
	s.Require().NoError(err)
	s.Require().Len(votes, 1)
	s.Equal(models.VoteNo, votes[0].Value)

	s.Require().Eventually(func() bool {
		snap := c.Snapshot()
		return snap.MyVote != nil && snap.MyVote.Value == models.VoteNo
	}, time.Second, 10*time.Millisecond)
}

func (s *CoordinatorTestSuite) TestCastVoteNoopWhenVotingInactive() {
	c := s.newCoordinator("CLOSED", models.TeamOne)
	defer c.Close()

	s.Require().NoError(c.CastVote(context.Background(), models.VoteYes))

	votes, err := s.votes.FetchVotes(context.Background(), c.Snapshot().Session.ID)
	s.Require().NoError(err)
	s.Empty(votes)
	s.Nil(c.Snapshot().MyVote)
}

func (s *CoordinatorTestSuite) TestCastVoteNoopWithoutTeam() {
	c := s.newCoordinator("NOTEAM", "")
	defer c.Close()

	s.Require().NoError(c.StartVoting(context.Background()))
	s.Require().NoError(c.CastVote(context.Background(), models.VoteYes))

	votes, err := s.votes.FetchVotes(context.Background(), c.Snapshot().Session.ID)
	s.Require().NoError(err)
	s.Empty(votes)
}

func (s *CoordinatorTestSuite) TestResetVotesClearsEverything() {
	c := s.newCoordinator("RESET", models.TeamOne)
	defer c.Close()

	s.Require().NoError(c.StartVoting(context.Background()))
	s.Require().NoError(c.CastVote(context.Background(), models.VoteYes))
	sessionID := c.Snapshot().Session.ID

	s.Require().NoError(c.ResetVotes(context.Background()))

	votes, err := s.votes.FetchVotes(context.Background(), sessionID)
	s.Require().NoError(err)
	s.Empty(votes)

	snap := c.Snapshot()
	s.Nil(snap.MyVote)
	s.False(snap.Session.VotingActive)
	s.False(snap.Session.ShowResults)
	s.Equal(0, snap.Remaining)
}

func (s *CoordinatorTestSuite) TestResetVotesOnEmptySession() {
	c := s.newCoordinator("EMPTY", models.TeamOne)
	defer c.Close()

	s.Require().NoError(c.ResetVotes(context.Background()))
	s.Nil(c.Snapshot().MyVote)
}

func (s *CoordinatorTestSuite) TestReplaceSessionKeepsCodeNewIdentity() {
	c := s.newCoordinator("SWAP", models.TeamOne)
	defer c.Close()

	before := c.Snapshot()
	s.Require().NoError(c.ReplaceSession(context.Background()))
	after := c.Snapshot()

	s.Equal("SWAP", after.Session.Code)
	s.NotEqual(before.Session.ID, after.Session.ID)
	s.NotEqual(before.ParticipantID, after.ParticipantID)
	s.Nil(after.MyVote)
}

func (s *CoordinatorTestSuite) TestSelectTeamPersistsPreference() {
	prefs := newFakePrefs()
	c, err := New(Config{
		Code:     "PREF",
		Sessions: s.sessions,
		Votes:    s.votes,
		Stream:   s.bus,
		Prefs:    prefs,
		Clock:    s.clock,
	})
	s.Require().NoError(err)
	s.Require().NoError(c.Initialize(context.Background()))
	defer c.Close()

	s.Require().NoError(c.SelectTeam(context.Background(), models.TeamTwo))
	s.Equal(models.TeamTwo, c.Snapshot().Team)

	stored, err := prefs.Get(context.Background(), teamPrefKey)
	s.Require().NoError(err)
	s.Equal(string(models.TeamTwo), stored)

	s.Require().Error(c.SelectTeam(context.Background(), models.Team("purple")))
}

func (s *CoordinatorTestSuite) TestFullRoundAcrossTwoParticipants() {
	p1 := s.newCoordinator("ABCD", models.TeamOne)
	defer p1.Close()
	p2 := s.newCoordinator("ABCD", models.TeamTwo)
	defer p2.Close()

	s.Require().NoError(p1.StartVoting(context.Background()))

	// The second participant picks the new state up from the change stream.
	s.Require().Eventually(func() bool {
		snap := p2.Snapshot()
		return snap.Session != nil && snap.Session.VotingActive
	}, time.Second, 10*time.Millisecond)

	s.Require().NoError(p1.CastVote(context.Background(), models.VoteYes))
	s.Require().NoError(p2.CastVote(context.Background(), models.VoteYes))

	// Both countdowns are ticking; let the window run out.
	s.clock.BlockUntil(2)
	s.clock.Advance(16 * time.Second)

	s.Require().Eventually(func() bool {
		a, b := p1.Snapshot(), p2.Snapshot()
		return a.Session != nil && b.Session != nil &&
			!a.Session.VotingActive && a.Session.ShowResults &&
			!b.Session.VotingActive && b.Session.ShowResults
	}, time.Second, 10*time.Millisecond)

	s.Require().Eventually(func() bool {
		snap := p1.Snapshot()
		return snap.Team1Tally == (models.Tally{Yes: 1}) &&
			snap.Team2Tally == (models.Tally{Yes: 1})
	}, time.Second, 10*time.Millisecond)

	snap := p1.Snapshot()
	s.Len(snap.Votes.Team1, 1)
	s.Len(snap.Votes.Team2, 1)
}
