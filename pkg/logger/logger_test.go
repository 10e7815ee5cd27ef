package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/ghuser/todos/pkg/config"
)

func withTracer(t *testing.T) trace.Tracer {
	t.Helper()
	tp := sdktrace.NewTracerProvider()
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return tp.Tracer("logger-test")
}

// records decodes every JSON line written to buf.
func records(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("decode log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	recs := records(t, buf)
	if len(recs) == 0 {
		t.Fatal("nothing was logged")
	}
	return recs[len(recs)-1]
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		" warn ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewWithWriter_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "warn")

	log.Info("dropped")
	log.Warn("kept")

	recs := records(t, &buf)
	if len(recs) != 1 || recs[0]["msg"] != "kept" {
		t.Fatalf("expected only the warn record, got %v", recs)
	}
}

func TestContextHandler_SpanIDs(t *testing.T) {
	tracer := withTracer(t)
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug")

	ctx, parent := tracer.Start(context.Background(), "parent")
	log.InfoContext(ctx, "in parent")
	p := lastRecord(t, &buf)

	childCtx, child := tracer.Start(ctx, "child")
	log.ErrorContext(childCtx, "in child", "error", errors.New("boom"), "todo_id", 7)
	c := lastRecord(t, &buf)
	child.End()
	parent.End()

	if p["trace_id"] == nil || p["trace_id"] != c["trace_id"] {
		t.Errorf("parent and child should share a trace id: %v vs %v", p["trace_id"], c["trace_id"])
	}
	if p["span_id"] == c["span_id"] {
		t.Error("parent and child should have distinct span ids")
	}
	if c["error"] != "boom" || c["todo_id"] != float64(7) {
		t.Errorf("caller attributes lost: %v", c)
	}
}

func TestContextHandler_RemoteSpanContext(t *testing.T) {
	// A context restored from message metadata carries a valid but
	// non-recording span context; ids must still be logged.
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x0a, 0x0b},
		SpanID:     trace.SpanID{0x01},
		TraceFlags: trace.FlagsSampled,
		Remote:     true,
	})
	ctx := trace.ContextWithRemoteSpanContext(context.Background(), sc)

	var buf bytes.Buffer
	NewWithWriter(&buf, "info").InfoContext(ctx, "event consumed")

	if got := lastRecord(t, &buf)["trace_id"]; got != sc.TraceID().String() {
		t.Errorf("trace_id = %v, want %s", got, sc.TraceID())
	}
}

func TestContextHandler_NoSpan(t *testing.T) {
	var buf bytes.Buffer
	NewWithWriter(&buf, "info").InfoContext(context.Background(), "plain")

	rec := lastRecord(t, &buf)
	for _, key := range []string{"trace_id", "span_id", "request_id"} {
		if _, ok := rec[key]; ok {
			t.Errorf("%s should be absent without context values", key)
		}
	}
}

func TestContextHandler_SurvivesWith(t *testing.T) {
	tracer := withTracer(t)
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "info").With("component", "worker")

	ctx, span := tracer.Start(context.Background(), "op")
	defer span.End()
	log.InfoContext(ctx, "bound")

	rec := lastRecord(t, &buf)
	if rec["component"] != "worker" || rec["trace_id"] == nil {
		t.Errorf("expected bound attribute and trace id, got %v", rec)
	}
}

func TestNew_TagsServiceAndEnv(t *testing.T) {
	log := New(&config.Config{LogLevel: "info", ServiceName: "todos", Environment: config.EnvTesting})
	if log.ToSlog() == nil {
		t.Fatal("ToSlog returned nil")
	}
	if !log.ToSlog().Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be enabled")
	}
}

func TestMiddleware_RecordsRequest(t *testing.T) {
	tracer := withTracer(t)
	var buf bytes.Buffer
	log := NewWithWriter(&buf, "debug")

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			ctx, span := tracer.Start(req.Context(), "server")
			defer span.End()
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Use(Middleware(log))
	r.Post("/todos", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":1}`)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/todos", http.NoBody))

	rec := lastRecord(t, &buf)
	if rec["level"] != "INFO" || rec["method"] != "POST" || rec["path"] != "/todos" {
		t.Errorf("unexpected request record: %v", rec)
	}
	if rec["status"] != float64(http.StatusCreated) || rec["bytes"] != float64(len(`{"id":1}`)) {
		t.Errorf("status/bytes not captured: %v", rec)
	}
	if rec["request_id"] == nil || rec["trace_id"] == nil {
		t.Errorf("correlation ids missing: %v", rec)
	}
}

func TestMiddleware_LevelByStatus(t *testing.T) {
	tests := []struct {
		path   string
		status int
		want   string
	}{
		{"/todos", http.StatusOK, "INFO"},
		{"/todos", 0, "INFO"},
		{"/todos", http.StatusUnprocessableEntity, "WARN"},
		{"/todos", http.StatusServiceUnavailable, "ERROR"},
		{"/healthz", http.StatusOK, "DEBUG"},
		{"/healthz", http.StatusInternalServerError, "ERROR"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		h := Middleware(NewWithWriter(&buf, "debug"), "/healthz")(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if tt.status != 0 {
				w.WriteHeader(tt.status)
			}
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, http.NoBody))

		rec := lastRecord(t, &buf)
		if rec["level"] != tt.want {
			t.Errorf("%s %d: level = %v, want %s", tt.path, tt.status, rec["level"], tt.want)
		}
	}
}

func TestRecovery_DelegatesResponse(t *testing.T) {
	var buf bytes.Buffer
	var gotErr error
	respond := func(w http.ResponseWriter, _ *http.Request, err error) {
		gotErr = err
		w.WriteHeader(http.StatusTeapot)
	}
	h := Recovery(NewWithWriter(&buf, "info"), respond)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected responder status 418, got %d", rr.Code)
	}
	if gotErr == nil || !strings.Contains(gotErr.Error(), "kaboom") {
		t.Errorf("expected panic value in error, got %v", gotErr)
	}
	rec := lastRecord(t, &buf)
	if rec["msg"] != "panic recovered" || rec["stack"] == nil {
		t.Errorf("expected panic record with stack, got %v", rec)
	}
}

func TestRecovery_NilResponder(t *testing.T) {
	h := Recovery(NewWithWriter(io.Discard, "error"), nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("kaboom")
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", http.NoBody))

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
}

func TestRecovery_ReraisesAbort(t *testing.T) {
	h := Recovery(NewWithWriter(io.Discard, "error"), nil)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic(http.ErrAbortHandler)
	}))

	defer func() {
		if rec := recover(); rec != http.ErrAbortHandler { //nolint:errorlint
			t.Errorf("expected ErrAbortHandler to propagate, got %v", rec)
		}
	}()
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", http.NoBody))
}
