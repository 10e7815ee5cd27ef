package events

import (
	"github.com/ThreeDotsLabs/watermill"

	"github.com/ghuser/todos/pkg/logger"
)

// watermillLogger routes Watermill's internal logging into logger.Logger.
// Watermill's trace level is folded into debug.
type watermillLogger struct{ log logger.Logger }

func (w watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	w.log.Error(msg, append(flatten(fields), "error", err)...)
}

func (w watermillLogger) Info(msg string, fields watermill.LogFields) {
	w.log.Info(msg, flatten(fields)...)
}

func (w watermillLogger) Debug(msg string, fields watermill.LogFields) {
	w.log.Debug(msg, flatten(fields)...)
}

func (w watermillLogger) Trace(msg string, fields watermill.LogFields) {
	w.log.Debug(msg, flatten(fields)...)
}

func (w watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return watermillLogger{log: w.log.With(flatten(fields)...)}
}

func flatten(fields watermill.LogFields) []any {
	args := make([]any, 0, 2*len(fields))
	for k, v := range fields {
		args = append(args, k, v)
	}
	return args
}
