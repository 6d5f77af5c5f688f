package coordinator

import "github.com/rs/zerolog/log"

// LogAlerter reports participant-facing notices through the process logger.
// Deployments with a richer notification channel swap in their own Alerter.
type LogAlerter struct{}

func (LogAlerter) Info(msg string) {
	log.Info().Str("alert", "info").Msg(msg)
}

func (LogAlerter) Error(msg string) {
	log.Error().Str("alert", "error").Msg(msg)
}
