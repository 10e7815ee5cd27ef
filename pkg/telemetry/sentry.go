package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/getsentry/sentry-go"
	sentryhttp "github.com/getsentry/sentry-go/http"

	"github.com/ghuser/todos/pkg/config"
)

const sentryFlushTimeout = 2 * time.Second

// Headers that identify a client or replay a request; never sent to Sentry.
var scrubbedHeaders = []string{"Authorization", "Cookie", "Idempotency-Key"}

// SetupSentry starts the Sentry client when SENTRY_DSN is set.
func SetupSentry(cfg *config.Config) error {
	if cfg.SentryDSN == "" {
		return nil
	}
	if err := sentry.Init(sentryOptions(cfg)); err != nil {
		return fmt.Errorf("sentry init: %w", err)
	}
	return nil
}

func sentryOptions(cfg *config.Config) sentry.ClientOptions {
	return sentry.ClientOptions{
		Dsn:              cfg.SentryDSN,
		Environment:      cfg.Environment,
		Release:          cfg.ServiceName + "@" + cfg.ServiceVersion,
		ServerName:       cfg.ServiceName,
		AttachStacktrace: true,
		TracesSampleRate: 0.2,
		BeforeSend:       scrubRequest,
	}
}

// scrubRequest strips todo text and client identifiers from a captured
// request before the event leaves the process.
func scrubRequest(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
	req := event.Request
	if req == nil {
		return event
	}
	req.Data = ""
	req.Cookies = ""
	for _, h := range scrubbedHeaders {
		delete(req.Headers, h)
	}
	return event
}

// SentryFlush waits briefly for queued events before the process exits.
func SentryFlush() {
	sentry.Flush(sentryFlushTimeout)
}

// SentryMiddleware puts a per-request hub in the context for the error
// responder. Panics are re-raised for logger.Recovery to answer.
func SentryMiddleware() func(http.Handler) http.Handler {
	return sentryhttp.New(sentryhttp.Options{Repanic: true}).Handle
}
