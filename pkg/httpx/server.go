package httpx

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"
)

const (
	defaultRateLimit      = 100
	defaultBodyLimit      = 1 << 20
	defaultHandlerTimeout = 30 * time.Second
)

// ServerConfig holds the options for NewRouter. Zero limits select defaults.
type ServerConfig struct {
	ServiceName   string
	IsDevelopment bool
	// CORSAllowedOrigins is a comma-separated list of allowed origins; "*"
	// allows any.
	CORSAllowedOrigins string
	// RateLimit is requests per minute per client IP. Default 100.
	RateLimit int
	// BodyLimit caps request bodies in bytes. Default 1 MiB.
	BodyLimit int64
	// HandlerTimeout cancels the request context. Default 30s.
	HandlerTimeout time.Duration
}

func (c ServerConfig) withDefaults() ServerConfig {
	if c.RateLimit <= 0 {
		c.RateLimit = defaultRateLimit
	}
	if c.BodyLimit <= 0 {
		c.BodyLimit = defaultBodyLimit
	}
	if c.HandlerTimeout <= 0 {
		c.HandlerTimeout = defaultHandlerTimeout
	}
	return c
}

// NewRouter builds the public router. The four app middlewares are applied
// outermost, in the order recovery, sentry, request id, otel, logger; the
// shared policy layers (real IP, rate limit, CORS, body cap, timeout,
// security headers) follow.
func NewRouter(
	cfg ServerConfig,
	loggerMiddleware func(http.Handler) http.Handler,
	recoveryMiddleware func(http.Handler) http.Handler,
	sentryMiddleware func(http.Handler) http.Handler,
	otelMiddleware func(http.Handler) http.Handler,
) *chi.Mux {
	cfg = cfg.withDefaults()

	r := chi.NewRouter()
	r.Use(
		recoveryMiddleware,
		sentryMiddleware,
		middleware.RequestID,
		otelMiddleware,
		loggerMiddleware,
		middleware.RealIP,
		httprate.LimitByIP(cfg.RateLimit, time.Minute),
		CORSMiddleware(cfg.CORSAllowedOrigins),
		RequestBodyLimit(cfg.BodyLimit),
		middleware.Timeout(cfg.HandlerTimeout),
		securityHeaders(cfg.IsDevelopment),
	)
	return r
}

// securityHeaders sets the browser hardening headers. The HTML pages load
// nothing external, so the CSP admits only same-origin resources. HSTS is
// skipped in development so plain-http localhost keeps working.
func securityHeaders(dev bool) func(http.Handler) http.Handler {
	return secure.New(secure.Options{
		STSSeconds:            63072000,
		STSIncludeSubdomains:  true,
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		ReferrerPolicy:        "no-referrer",
		ContentSecurityPolicy: "default-src 'self'; frame-ancestors 'none'",
		PermissionsPolicy:     "geolocation=(), microphone=(), camera=()",
		IsDevelopment:         dev,
	}).Handler
}

// CORSMiddleware allows the methods and headers the todo API uses from the
// given comma-separated origins.
func CORSMiddleware(allowedOrigins string) func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins: parseOrigins(allowedOrigins),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "Idempotency-Key", "X-Request-Id", "X-Requested-With"},
		ExposedHeaders: []string{"Idempotent-Replayed", "X-Request-Id"},
		MaxAge:         300,
	})
}

// parseOrigins splits s on commas. An empty list means any origin.
func parseOrigins(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// RequestBodyLimit wraps the body in http.MaxBytesReader. Overflowing reads
// fail with *http.MaxBytesError, which the body decoder maps to 413.
func RequestBodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// NewAdminRouter is the operator listener: metrics, readiness, docs. No
// CORS, rate limit or CSP, so scrapers and the Swagger UI work as-is.
func NewAdminRouter(recoveryMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Use(recoveryMiddleware, middleware.RequestID)
	return r
}

// NewServer sets read, write and idle timeouts on an *http.Server for addr.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}
}
