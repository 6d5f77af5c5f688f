package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"
	"github.com/showdownhq/showdown/go/internal/events"
	"github.com/showdownhq/showdown/go/internal/models"
)

// JetStreamConfig holds configuration for the JetStream-backed stream.
type JetStreamConfig struct {
	URL           string
	StreamName    string
	ConsumerName  string
	SubjectFilter string        // e.g. "vote.events.>"
	MaxDeliver    int           // max delivery attempts
	AckWait       time.Duration // how long to wait for ack
	MaxAckPending int           // max messages pending ack
	MaxReconnects int
	ReconnectWait time.Duration
}

// DefaultJetStreamConfig returns default JetStream consumer configuration.
func DefaultJetStreamConfig() JetStreamConfig {
	return JetStreamConfig{
		URL:           nats.DefaultURL,
		StreamName:    "VOTE_EVENTS",
		ConsumerName:  "showdown-notify",
		SubjectFilter: "vote.events.>",
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
		MaxAckPending: 100,
		MaxReconnects: -1, // infinite
		ReconnectWait: 2 * time.Second,
	}
}

// JetStreamStream consumes change events from JetStream and fans them out to
// local subscribers through an in-process Bus.
type JetStreamStream struct {
	bus      *Bus
	nc       *nats.Conn
	js       jetstream.JetStream
	consumer jetstream.Consumer
	config   JetStreamConfig
}

// NewJetStreamStream connects to NATS and creates (or reuses) a durable
// consumer on the vote event stream.
func NewJetStreamStream(config JetStreamConfig) (*JetStreamStream, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	s := &JetStreamStream{
		bus:    NewBus(),
		nc:     nc,
		js:     js,
		config: config,
	}

	if err := s.ensureConsumer(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}

	return s, nil
}

// Subscribe registers a local subscriber on the fan-out bus.
func (s *JetStreamStream) Subscribe(ctx context.Context, f Filter) (*Subscription, error) {
	return s.bus.Subscribe(ctx, f)
}

func (s *JetStreamStream) ensureConsumer(ctx context.Context) error {
	stream, err := s.js.Stream(ctx, s.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          s.config.ConsumerName,
		Durable:       s.config.ConsumerName,
		Description:   "Showdown change-notification consumer",
		FilterSubject: s.config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    s.config.MaxDeliver,
		AckWait:       s.config.AckWait,
		MaxAckPending: s.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, s.config.ConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().
			Str("consumer", s.config.ConsumerName).
			Str("stream", s.config.StreamName).
			Msg("created JetStream consumer")
	} else {
		log.Info().
			Str("consumer", s.config.ConsumerName).
			Str("stream", s.config.StreamName).
			Msg("using existing JetStream consumer")
	}

	s.consumer = consumer
	return nil
}

// Start consumes events from JetStream until ctx is done, dispatching each
// decoded event to local subscribers.
func (s *JetStreamStream) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", s.config.ConsumerName).
		Str("stream", s.config.StreamName).
		Msg("starting JetStream notify consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := s.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("notify consumer shutting down")
			return nil
		case msg := <-messageCh:
			if err := s.processMessage(msg); err != nil {
				log.Error().
					Err(err).
					Str("subject", msg.Subject()).
					Msg("failed to process message")
				if nakErr := msg.Nak(); nakErr != nil {
					log.Error().Err(nakErr).Msg("failed to NAK message")
				}
			} else {
				if ackErr := msg.Ack(); ackErr != nil {
					log.Error().Err(ackErr).Msg("failed to ACK message")
				}
			}
		}
	}
}

func (s *JetStreamStream) processMessage(msg jetstream.Msg) error {
	var envelope struct {
		EventID   string          `json:"eventId"`
		EventType string          `json:"eventType"`
		SessionID string          `json:"sessionId"`
		Timestamp time.Time       `json:"timestamp"`
		Payload   json.RawMessage `json:"payload"`
	}

	if err := json.Unmarshal(msg.Data(), &envelope); err != nil {
		return fmt.Errorf("unmarshal event envelope: %w", err)
	}

	sessionID, err := uuid.Parse(envelope.SessionID)
	if err != nil {
		return fmt.Errorf("parse session ID: %w", err)
	}

	ev, err := decodeEvent(envelope.EventType, sessionID, envelope.Payload)
	if err != nil {
		return fmt.Errorf("decode event: %w", err)
	}

	s.bus.Publish(ev)

	log.Debug().
		Str("event_id", envelope.EventID).
		Str("event_type", envelope.EventType).
		Str("session_id", envelope.SessionID).
		Msg("change event dispatched")

	return nil
}

// decodeEvent maps an outbox event onto the notify Event shape.
func decodeEvent(eventType string, sessionID uuid.UUID, payload json.RawMessage) (Event, error) {
	switch eventType {
	case events.TypeSessionCreated:
		var p events.SessionCreatedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return Event{}, err
		}
		return Event{
			Kind:      KindCreate,
			Table:     TableSessions,
			SessionID: sessionID,
			Session:   &models.Session{ID: sessionID, Code: p.Code, Question: p.Question},
		}, nil

	case events.TypeSessionUpdated:
		var p events.SessionUpdatedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return Event{}, err
		}
		return Event{
			Kind:      KindUpdate,
			Table:     TableSessions,
			SessionID: sessionID,
			Session: &models.Session{
				ID:           sessionID,
				Code:         p.Code,
				VotingActive: p.VotingActive,
				ShowResults:  p.ShowResults,
				EndTime:      p.EndTime,
			},
		}, nil

	case events.TypeSessionDeleted:
		var p events.SessionDeletedPayload
		if err := json.Unmarshal(payload, &p); err != nil {
			return Event{}, err
		}
		return Event{
			Kind:      KindDelete,
			Table:     TableSessions,
			SessionID: sessionID,
			Session:   &models.Session{ID: sessionID, Code: p.Code},
		}, nil

	case events.TypeVoteCast:
		return Event{Kind: KindUpdate, Table: TableVotes, SessionID: sessionID}, nil

	case events.TypeVotesReset:
		return Event{Kind: KindDelete, Table: TableVotes, SessionID: sessionID}, nil

	default:
		return Event{}, fmt.Errorf("unknown event type: %s", eventType)
	}
}

// Stop closes the NATS connection.
func (s *JetStreamStream) Stop() error {
	log.Info().Msg("stopping notify consumer")
	if s.nc != nil {
		s.nc.Close()
	}
	return nil
}
