// Package logger wraps log/slog behind a small interface and supplies the
// HTTP middleware that records one line per request.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel/trace"

	"github.com/ghuser/todos/pkg/config"
)

// Logger is what the rest of the module depends on. The slog-backed
// implementation is the only one; tests build it over a buffer.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	Debug(msg string, args ...any)
	InfoContext(ctx context.Context, msg string, args ...any)
	ErrorContext(ctx context.Context, msg string, args ...any)
	WarnContext(ctx context.Context, msg string, args ...any)
	DebugContext(ctx context.Context, msg string, args ...any)
	With(args ...any) Logger
	// ToSlog exposes the handler chain to libraries that take *slog.Logger.
	ToSlog() *slog.Logger
}

// New builds the process logger: JSON on stdout, tagged with service and env.
func New(cfg *config.Config) Logger {
	return NewWithWriter(os.Stdout, cfg.LogLevel).With(
		"service", cfg.ServiceName,
		"env", cfg.Environment,
	)
}

// NewWithWriter writes JSON records at or above level to w.
func NewWithWriter(w io.Writer, level string) Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return &slogLogger{Logger: slog.New(contextHandler{h})}
}

type slogLogger struct {
	*slog.Logger
}

func (l *slogLogger) With(args ...any) Logger {
	return &slogLogger{Logger: l.Logger.With(args...)}
}

func (l *slogLogger) ToSlog() *slog.Logger {
	return l.Logger
}

// contextHandler copies correlation ids out of the record's context:
// trace_id and span_id from a valid OTel span context, request_id from chi.
type contextHandler struct {
	slog.Handler
}

func (h contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if id := middleware.GetReqID(ctx); id != "" {
		r.AddAttrs(slog.String("request_id", id))
	}
	return h.Handler.Handle(ctx, r)
}

func (h contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return contextHandler{h.Handler.WithAttrs(attrs)}
}

func (h contextHandler) WithGroup(name string) slog.Handler {
	return contextHandler{h.Handler.WithGroup(name)}
}

// Middleware logs each request once it has been served. Server errors log
// at error, client errors at warn, everything else at info. Probes of
// quietPaths drop to debug so orchestrator polling does not flood the log.
func Middleware(log Logger, quietPaths ...string) func(http.Handler) http.Handler {
	quiet := make(map[string]struct{}, len(quietPaths))
	for _, p := range quietPaths {
		quiet[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", status,
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"remote_addr", r.RemoteAddr,
			}

			ctx := r.Context()
			switch _, isQuiet := quiet[r.URL.Path]; {
			case status >= http.StatusInternalServerError:
				log.ErrorContext(ctx, "request", args...)
			case status >= http.StatusBadRequest:
				log.WarnContext(ctx, "request", args...)
			case isQuiet:
				log.DebugContext(ctx, "request", args...)
			default:
				log.InfoContext(ctx, "request", args...)
			}
		})
	}
}

// PanicResponder writes the client response for a recovered panic.
type PanicResponder func(w http.ResponseWriter, r *http.Request, err error)

// Recovery turns a handler panic into a logged error and a 500 written by
// respond. http.ErrAbortHandler is re-raised so net/http can drop the
// connection. A nil respond writes a plain-text 500.
func Recovery(log Logger, respond PanicResponder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler { //nolint:errorlint
					panic(rec)
				}
				log.ErrorContext(r.Context(), "panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				if respond == nil {
					http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
					return
				}
				respond(w, r, fmt.Errorf("panic: %v", rec))
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// ParseLevel maps LOG_LEVEL onto a slog level. Unknown values select info.
func ParseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo
	}
	return lvl
}
