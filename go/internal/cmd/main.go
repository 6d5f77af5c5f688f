package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/showdownhq/showdown/go/internal/config"
	"github.com/showdownhq/showdown/go/internal/dbconfig"
	"github.com/showdownhq/showdown/go/internal/outbox"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	natsURL := getEnv("NATS_URL", "nats://localhost:4222")

	// Team-token routing table
	appCfg := config.Default()
	if path := getEnv("CONFIG_PATH", ""); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			log.Fatal().Err(err).Str("path", path).Msg("failed to load config")
		}
		appCfg = loaded
	}

	// Database
	dbCfg := dbconfig.NewConfigFromEnv()
	db, err := setupDatabase(dbCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer db.Close()

	// Redis for participant preferences; optional
	var redisClient *redis.Client
	if addr := getEnv("REDIS_ADDR", ""); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr})
		defer redisClient.Close()
	}

	// Outbox relay: Postgres NOTIFY -> JetStream. The publisher also ensures
	// the event stream exists, so it must come up before the consumer side.
	publisherCfg := outbox.DefaultJetStreamConfig()
	publisherCfg.URL = natsURL
	publisher, err := outbox.NewJetStreamPublisher(publisherCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create outbox publisher")
	}
	defer publisher.Close()

	services, err := setupServices(db, appCfg, natsURL, redisClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up services")
	}

	listenerCfg := outbox.DefaultListenerConfig()
	listenerCfg.DatabaseURL = dbCfg.DSN()
	listener, err := outbox.NewListener(db, publisher, listenerCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create outbox listener")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := listener.Start(ctx); err != nil {
			log.Error().Err(err).Msg("outbox listener failed")
		}
	}()

	go func() {
		if err := services.Stream.Start(ctx); err != nil {
			log.Error().Err(err).Msg("notify consumer failed")
		}
	}()

	server := setupServer(services)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	sig := <-sigChan

	log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	cancel()
	if err := services.Stream.Stop(); err != nil {
		log.Error().Err(err).Msg("notify consumer stop failed")
	}

	log.Info().Msg("shutdown complete")
}
