package app

import (
	"github.com/ghuser/todos/pkg/cache"
	"github.com/ghuser/todos/pkg/database"
	"github.com/ghuser/todos/pkg/errhttp"
	"github.com/ghuser/todos/pkg/events"
	"github.com/ghuser/todos/pkg/logger"
)

// Application holds shared infrastructure dependencies for all services.
// Pass to every service's Routes call during server initialization.
//
// Logging: app.Logger is backed by a trace-aware handler; use slog's context methods
// and trace_id, span_id, and request_id are injected automatically:
//
//	app.Logger.InfoContext(ctx, "todo created", "todo_id", id)
//	app.Logger.ErrorContext(ctx, "failed to save", "error", err)
//
// Use app.Logger.Info/Error (no context) only for startup and shutdown messages.
type Application struct {
	Db       *database.Database
	Logger   logger.Logger
	EventBus *events.EventBus   // nil when the bus could not be constructed
	Redis    *cache.RedisClient // nil when REDIS_URL is unset or unreachable
	Errors   *errhttp.Responder
	Version  string
}
