package httpx

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

const readinessTimeout = 2 * time.Second

// HealthChecker is anything with a Ping: database.Database,
// cache.RedisClient and events.EventBus all qualify.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// HealthChecks lists what /readyz probes. A nil entry reports "disabled"
// and does not degrade the result.
type HealthChecks struct {
	Database HealthChecker
	Redis    HealthChecker
	EventBus HealthChecker
}

type readinessResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Redis    string `json:"redis"`
	EventBus string `json:"event_bus"`
}

// LivenessHandler answers 200 with an empty body. It never touches a
// dependency, so a degraded database cannot cause probe-driven restarts.
func LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}
}

// ReadinessHandler pings every configured dependency in parallel under a
// shared 2s deadline and answers 503 when any of them fails.
func ReadinessHandler(checks HealthChecks) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		resp := readinessResponse{Status: "ok"}
		var g errgroup.Group
		probe := func(c HealthChecker, out *string) {
			if c == nil {
				*out = "disabled"
				return
			}
			g.Go(func() error {
				*out = "ok"
				if err := c.Ping(ctx); err != nil {
					*out = "unreachable"
				}
				return nil
			})
		}
		probe(checks.Database, &resp.Database)
		probe(checks.Redis, &resp.Redis)
		probe(checks.EventBus, &resp.EventBus)
		_ = g.Wait()

		status := http.StatusOK
		for _, s := range []string{resp.Database, resp.Redis, resp.EventBus} {
			if s == "unreachable" {
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
		}
		JSON(w, status, resp)
	}
}
