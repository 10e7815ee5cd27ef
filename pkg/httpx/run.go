package httpx

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ghuser/todos/pkg/logger"
)

// Run serves every server until ctx ends or one of them fails, then shuts
// all of them down within drain. The first listener error is returned.
func Run(ctx context.Context, log logger.Logger, drain time.Duration, servers ...*http.Server) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, srv := range servers {
		g.Go(func() error {
			ln, err := net.Listen("tcp", srv.Addr)
			if err != nil {
				return fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
			log.Info("server listening", "addr", ln.Addr().String())
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve %s: %w", srv.Addr, err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down servers", "drain", drain)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
		defer cancel()
		errs := make([]error, 0, len(servers))
		for _, srv := range servers {
			errs = append(errs, srv.Shutdown(shutdownCtx)) //nolint:contextcheck
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}
