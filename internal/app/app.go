// internal/app/app.go
//
// Process wiring shared by both entry points.
//
// Context
// -------
// cmd/web and cmd/lambda differ only in how requests arrive.  Build turns a
// loaded Config into a ready Handler so neither main repeats the wiring, and
// Router mounts that Handler on a chi mux for the long-running server.
//
// Workflow
// --------
//  1. Resolve `vault:` references when Vault is enabled.
//  2. Load the form definition (embedded default or YAML file).
//  3. Open the optional GeoIP database.
//  4. Build the storage chain; run schema bootstrap when asked.
//  5. Build the admission policy and the Handler.
//
// Notes
// -----
//   • Close releases the SQL pool and GeoIP reader.  Safe to call once.
//   • Oxford commas, two spaces after periods.
package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/yanizio/waitlist/internal/acl"
	"github.com/yanizio/waitlist/internal/config"
	"github.com/yanizio/waitlist/internal/database"
	"github.com/yanizio/waitlist/internal/form"
	"github.com/yanizio/waitlist/internal/handler"
	"github.com/yanizio/waitlist/internal/logger"
	"github.com/yanizio/waitlist/internal/requestinfo"
	"github.com/yanizio/waitlist/internal/signup"
	"github.com/yanizio/waitlist/internal/storage"
	"github.com/yanizio/waitlist/internal/vault"
)

// Options tunes Build for the hosting model.
type Options struct {
	RenewVault bool // long-running processes keep the Vault token alive
}

// App owns the Handler and the resources behind it.
type App struct {
	Handler *handler.Handler
	Config  *config.Config

	sql *storage.SQL
	geo *requestinfo.Geo
	log *zap.SugaredLogger
}

// Build wires every dependency named by cfg.  cfg is mutated in place when
// secrets are resolved.
func Build(ctx context.Context, cfg *config.Config, log *zap.SugaredLogger, opts Options) (*App, error) {
	if cfg.Vault.Enabled && cfg.HasSecretRefs() {
		vc, err := vault.New(ctx, vault.Options{
			Address: cfg.Vault.Address,
			Token:   cfg.Vault.Token,
			Renew:   opts.RenewVault,
			Logger:  log,
		})
		if err != nil {
			return nil, fmt.Errorf("vault: %w", err)
		}
		if err := config.ResolveSecrets(ctx, cfg, vc); err != nil {
			return nil, fmt.Errorf("resolve secrets: %w", err)
		}
		log.Infow("vault secrets resolved")
	}

	def, err := form.Load(cfg.Form.Definition)
	if err != nil {
		return nil, fmt.Errorf("form definition: %w", err)
	}

	geo, err := requestinfo.OpenGeo(cfg.GeoIP.DBPath)
	if err != nil {
		return nil, fmt.Errorf("geoip: %w", err)
	}

	chain, sqlw := storage.FromConfig(cfg.Storage, log)
	a := &App{Config: cfg, sql: sqlw, geo: geo, log: log}

	if sqlw != nil && cfg.Storage.SQL.AutoMigrate {
		if err := migrate(ctx, sqlw, cfg.Storage); err != nil {
			_ = a.Close()
			return nil, err
		}
	}
	if !chain.Configured() {
		log.Warnw("no storage path configured, submissions will be refused")
	}

	policy, err := acl.New(cfg.CORS, cfg.Webhook.Secret)
	if err != nil {
		_ = a.Close()
		return nil, fmt.Errorf("admission policy: %w", err)
	}

	a.Handler = handler.New(handler.Config{
		Policy:         policy,
		Normalizer:     signup.NewNormalizer(def, cfg.Form.PlaceholderEmails, cfg.Storage.DedupeByEmail),
		Store:          chain,
		Preflight:      cfg.CORS.Preflight,
		ClientIPHeader: cfg.Request.ClientIPHeader,
		MaxBodyBytes:   cfg.HTTP.MaxBodyBytes,
		Geo:            geo,
		Redact:         logger.Redactor{Off: !cfg.Log.RedactPII},
		Logger:         log,
	})

	log.Infow("signup handler ready",
		"form", def.ID,
		"primary", cfg.Storage.Primary,
		"rest", cfg.Storage.REST.Configured(),
		"sql", cfg.Storage.SQL.Configured(),
		"dedupe", cfg.Storage.DedupeByEmail,
		"geoip", geo != nil,
	)
	return a, nil
}

func migrate(ctx context.Context, sqlw *storage.SQL, sc config.Storage) error {
	db, err := sqlw.DB(ctx)
	if err != nil {
		return fmt.Errorf("open sql pool: %w", err)
	}
	if err := database.EnsureSchema(ctx, db, sc.Table, sc.DedupeByEmail); err != nil {
		return err
	}
	return nil
}

// Close releases pooled resources.
func (a *App) Close() error {
	var first error
	if a.sql != nil {
		if err := a.sql.Close(); err != nil {
			first = err
		}
	}
	if err := a.geo.Close(); err != nil && first == nil {
		first = err
	}
	return first
}
