package main

import (
	"database/sql"
	"net/http"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/showdownhq/showdown/go/internal/api"
	"github.com/showdownhq/showdown/go/internal/config"
	"github.com/showdownhq/showdown/go/internal/coordinator"
	"github.com/showdownhq/showdown/go/internal/gateway"
	"github.com/showdownhq/showdown/go/internal/notify"
	"github.com/showdownhq/showdown/go/internal/outbox"
	"github.com/showdownhq/showdown/go/internal/prefs"
	"github.com/showdownhq/showdown/go/internal/session"
	"github.com/showdownhq/showdown/go/internal/vote"
)

// Services holds everything the server process wires together.
type Services struct {
	Sessions  *session.App
	Votes     *vote.App
	Outbox    *outbox.App
	Stream    *notify.JetStreamStream
	WSHandler *gateway.WebSocketHandler
	API       http.Handler
}

func setupServices(db *sql.DB, appCfg *config.Config, natsURL string, redisClient *redis.Client) (*Services, error) {
	outboxApp := outbox.NewApp(outbox.NewRepository(db))
	sessionApp := session.NewApp(session.NewPostgresRepository(db), outboxApp)
	voteApp := vote.NewApp(vote.NewPostgresRepository(db), outboxApp)

	notifyCfg := notify.DefaultJetStreamConfig()
	notifyCfg.URL = natsURL
	stream, err := notify.NewJetStreamStream(notifyCfg)
	if err != nil {
		return nil, err
	}

	manager := gateway.NewConnectionManager(gateway.DefaultConnectionConfig(), gateway.Deps{
		Sessions: sessionApp,
		Votes:    voteApp,
		Stream:   stream,
		Prefs:    prefsFactory(redisClient),
	})
	wsHandler := gateway.NewWebSocketHandler(manager, appCfg)

	apiHandler := api.NewHandler(
		api.NewSessionHandler(sessionApp, voteApp, nil),
		api.NewVoteHandler(voteApp, sessionApp),
	)

	return &Services{
		Sessions:  sessionApp,
		Votes:     voteApp,
		Outbox:    outboxApp,
		Stream:    stream,
		WSHandler: wsHandler,
		API:       apiHandler,
	}, nil
}

// prefsFactory builds per-client preference stores: Redis-backed when a
// client is configured, in-memory otherwise. The scope is the client's
// stable identity, so both backends hand every reconnect of the same client
// the same values; the in-memory fallback shares one store across
// connections for the same reason.
func prefsFactory(redisClient *redis.Client) func(scope string) coordinator.Preferences {
	shared := prefs.NewMemory()
	return func(scope string) coordinator.Preferences {
		if redisClient == nil {
			return shared.Scope(scope)
		}
		store, err := prefs.NewRedis(&prefs.Config{
			RedisClient: redisClient,
			Scope:       scope,
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to create redis preference store, using memory")
			return shared.Scope(scope)
		}
		return store
	}
}
