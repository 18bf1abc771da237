// internal/server/timeouts.go
//
// HTTP server helper with explicit timeouts.
//
//   • ReadTimeout        – abort slow-loris bodies (config http.read_timeout)
//   • ReadHeaderTimeout  – abort slow headers, capped at ReadTimeout
//   • WriteTimeout       – cap total response time (config http.write_timeout)
//   • IdleTimeout        – close keep-alives on idle clients
//
// Run wraps ListenAndServe with a graceful shutdown once ctx is cancelled.

package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/yanizio/waitlist/internal/config"
)

const (
	headerTimeout   = 5 * time.Second
	shutdownTimeout = 10 * time.Second
)

// New constructs an *http.Server from the HTTP config section.
func New(c config.HTTP, handler http.Handler) *http.Server {
	rh := headerTimeout
	if c.ReadTimeout > 0 && c.ReadTimeout < rh {
		rh = c.ReadTimeout
	}
	return &http.Server{
		Addr:              c.ListenAddr,
		Handler:           handler,
		ReadTimeout:       c.ReadTimeout,
		ReadHeaderTimeout: rh,
		WriteTimeout:      c.WriteTimeout,
		IdleTimeout:       c.IdleTimeout,
	}
}

// Run serves until ctx is done, then drains in-flight requests.  A clean
// shutdown returns nil.
func Run(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
