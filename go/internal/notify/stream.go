// Package notify delivers change notifications from the vote and session
// stores to every interested observer. Consumers treat events purely as
// re-fetch triggers; only session updates carry the updated record, so
// subscribers can filter by code without a round trip.
package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/showdownhq/showdown/go/internal/models"
)

// Kind classifies a change event.
type Kind string

const (
	KindCreate Kind = "create"
	KindUpdate Kind = "update"
	KindDelete Kind = "delete"
)

// Table identifies which collection changed.
type Table string

const (
	TableSessions Table = "sessions"
	TableVotes    Table = "votes"
)

// Event is a single change notification.
type Event struct {
	Kind      Kind
	Table     Table
	SessionID uuid.UUID
	// Session is set for sessions-table events and carries the record as of
	// the change, so subscribers can match on Code and read the new
	// active/results/end-time fields directly.
	Session *models.Session
}

// Filter scopes a subscription to one table, optionally narrowed to a
// session code. The code narrows sessions-table subscriptions only; vote
// events are delivered unfiltered and consumers match on session id.
type Filter struct {
	Table Table
	Code  string
}

func (f Filter) matches(ev Event) bool {
	if ev.Table != f.Table {
		return false
	}
	if f.Table == TableSessions && f.Code != "" {
		return ev.Session != nil && ev.Session.Code == f.Code
	}
	return true
}

// Subscription is a live event feed. Cancel is idempotent and releases the
// subscriber slot; the channel is closed afterwards.
type Subscription struct {
	C      <-chan Event
	cancel func()
}

// Cancel stops the subscription.
func (s *Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
	}
}

// Stream is a restartable sequence of change events per (table, filter).
// Implementations decouple transport (in-process bus, JetStream) from the
// coordinator's reaction logic.
type Stream interface {
	Subscribe(ctx context.Context, f Filter) (*Subscription, error)
}
