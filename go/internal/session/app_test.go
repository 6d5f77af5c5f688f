package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/showdownhq/showdown/go/internal/events"
	"github.com/showdownhq/showdown/go/internal/models"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu     sync.Mutex
	byCode map[string]*models.Session
}

func newMemRepo() *memRepo {
	return &memRepo{byCode: make(map[string]*models.Session)}
}

func (m *memRepo) FetchSessionByCode(ctx context.Context, code string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byCode[code]
	if !ok {
		return nil, ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memRepo) GetSession(ctx context.Context, id uuid.UUID) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byCode {
		if s.ID == id {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (m *memRepo) CreateSession(ctx context.Context, id uuid.UUID, code string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &models.Session{ID: id, Code: code, Question: models.DefaultQuestion, CreatedAt: time.Now(), UpdatedAt: time.Now()}
	m.byCode[code] = s
	cp := *s
	return &cp, nil
}

func (m *memRepo) UpdateSessionStatus(ctx context.Context, id uuid.UUID, req UpdateStatusRequest) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.byCode {
		if s.ID == id {
			s.VotingActive = req.VotingActive
			s.ShowResults = req.ShowResults
			s.EndTime = req.EndTime
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrSessionNotFound
}

func (m *memRepo) DeleteSession(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for code, s := range m.byCode {
		if s.ID == id {
			delete(m.byCode, code)
			return nil
		}
	}
	return ErrSessionNotFound
}

type recordingOutbox struct {
	mu      sync.Mutex
	entries []string
}

func (r *recordingOutbox) record(eventType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, eventType)
	return nil
}

func (r *recordingOutbox) InsertSessionCreated(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return r.record(events.TypeSessionCreated)
}

func (r *recordingOutbox) InsertSessionUpdated(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return r.record(events.TypeSessionUpdated)
}

func (r *recordingOutbox) InsertSessionDeleted(ctx context.Context, sessionID uuid.UUID, payload []byte) error {
	return r.record(events.TypeSessionDeleted)
}

func (r *recordingOutbox) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.entries...)
}

func TestCreateSessionEmitsEvent(t *testing.T) {
	outbox := &recordingOutbox{}
	app := NewApp(newMemRepo(), outbox)

	s, err := app.CreateSession(context.Background(), "ABCD")
	require.NoError(t, err)
	require.Equal(t, "ABCD", s.Code)
	require.Equal(t, models.DefaultQuestion, s.Question)
	require.False(t, s.VotingActive)
	require.False(t, s.ShowResults)
	require.Equal(t, []string{events.TypeSessionCreated}, outbox.recorded())
}

func TestCreateSessionRejectsEmptyCode(t *testing.T) {
	app := NewApp(newMemRepo(), &recordingOutbox{})
	_, err := app.CreateSession(context.Background(), "")
	require.Error(t, err)
}

func TestFetchSessionByCodeMissIsNotFound(t *testing.T) {
	app := NewApp(newMemRepo(), &recordingOutbox{})
	_, err := app.FetchSessionByCode(context.Background(), "NOPE")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestUpdateSessionStatusRejectsEndTimeWhenInactive(t *testing.T) {
	app := NewApp(newMemRepo(), &recordingOutbox{})
	s, err := app.CreateSession(context.Background(), "ABCD")
	require.NoError(t, err)

	end := time.Now().Add(15 * time.Second)
	_, err = app.UpdateSessionStatus(context.Background(), s.ID, false, true, &end)
	require.Error(t, err)
}

func TestUpdateSessionStatusEmitsUpdate(t *testing.T) {
	outbox := &recordingOutbox{}
	app := NewApp(newMemRepo(), outbox)
	s, err := app.CreateSession(context.Background(), "ABCD")
	require.NoError(t, err)

	end := time.Now().Add(15 * time.Second)
	updated, err := app.UpdateSessionStatus(context.Background(), s.ID, true, false, &end)
	require.NoError(t, err)
	require.True(t, updated.VotingActive)
	require.NotNil(t, updated.EndTime)
	require.Equal(t, []string{events.TypeSessionCreated, events.TypeSessionUpdated}, outbox.recorded())
}

func TestDeleteSessionEmitsDelete(t *testing.T) {
	outbox := &recordingOutbox{}
	app := NewApp(newMemRepo(), outbox)
	s, err := app.CreateSession(context.Background(), "GONE")
	require.NoError(t, err)

	require.NoError(t, app.DeleteSession(context.Background(), s.ID))
	require.Equal(t, []string{events.TypeSessionCreated, events.TypeSessionDeleted}, outbox.recorded())

	_, err = app.FetchSessionByCode(context.Background(), "GONE")
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionEndedReconciliation(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(10 * time.Second)

	require.True(t, (&models.Session{VotingActive: true, EndTime: &past}).Ended(now))
	require.False(t, (&models.Session{VotingActive: true, EndTime: &future}).Ended(now))
	require.False(t, (&models.Session{VotingActive: false, EndTime: &past}).Ended(now))
	require.False(t, (&models.Session{VotingActive: true}).Ended(now))
}

func TestSessionUpdatedPayloadRoundTrip(t *testing.T) {
	end := time.Now().UTC().Truncate(time.Second)
	payload, err := json.Marshal(events.SessionUpdatedPayload{
		Code:         "ABCD",
		VotingActive: true,
		EndTime:      &end,
	})
	require.NoError(t, err)

	var decoded events.SessionUpdatedPayload
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, "ABCD", decoded.Code)
	require.True(t, decoded.VotingActive)
	require.True(t, end.Equal(*decoded.EndTime))
}
