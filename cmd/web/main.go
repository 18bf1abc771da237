// cmd/web/main.go
//
// Signup service – HTTP entry point.
//
// Start-up
// --------
//
//  1. Load configuration (defaults → .env → conf/signup.yaml → env).
//
//  2. Start the logger (daily rotating file when log.dir is set, tees to
//     console when running in a TTY).
//
//  3. Build the handler: Vault secrets, form definition, GeoIP, storage
//     chain, optional schema bootstrap, and admission policy.
//
//  4. Mount the handler on every http.paths entry, plus /healthz and the
//     Prometheus endpoint.
//
//  5. Serve until SIGINT or SIGTERM, then drain in-flight requests.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/yanizio/waitlist/internal/app"
	"github.com/yanizio/waitlist/internal/config"
	"github.com/yanizio/waitlist/internal/logger"
	"github.com/yanizio/waitlist/internal/server"
)

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//
	// ── 1.  Config and logger ───────────────────────────────────────────
	//
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logOut, err := logger.New(logger.Options{
		Dir:   cfg.Log.Dir,
		Level: cfg.Log.Level,
		Tee:   cfg.Log.Tee || runningInTTY(),
	})
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer func() { _ = logOut.Sync() }()

	//
	// ── 2.  Handler and its dependencies ────────────────────────────────
	//
	a, err := app.Build(ctx, cfg, logOut, app.Options{RenewVault: true})
	if err != nil {
		logOut.Fatalw("build signup handler", "err", err)
	}
	defer func() { _ = a.Close() }()

	//
	// ── 3.  Serve ───────────────────────────────────────────────────────
	//
	srv := server.New(cfg.HTTP, a.Router())
	logOut.Infow("listening", "addr", cfg.HTTP.ListenAddr, "paths", cfg.HTTP.Paths)
	if err := server.Run(ctx, srv); err != nil {
		logOut.Errorw("http server", "err", err)
		return
	}
	logOut.Infow("shutdown complete")
}
