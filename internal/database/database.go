// Package database centralises sqlx connection helpers for the direct-SQL
// write path.  Two drivers are registered:
//
//	postgres – github.com/lib/pq, for the managed Postgres behind the data API.
//	mysql    – github.com/go-sql-driver/mysql, also fine for MariaDB.
//
// Public entry points:
//
//	Open(ctx, driver, dsn, opts) – pool with explicit limits, pinged once.
//	PrepareDSN(driver, dsn)      – driver-specific DSN adjustments.
//
// Callers should Close() the returned *sqlx.DB when no longer needed.  Every
// query helper elsewhere uses the *Context variants, so a pooled connection
// is returned on success, error, and cancellation alike.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Driver names accepted by Open.
const (
	Postgres = "postgres"
	MySQL    = "mysql"
)

// Options tunes the pool.  Zero values fall back to small serverless-friendly
// limits.
type Options struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Open returns a *sqlx.DB for driver with opts applied.  It pings the
// database under ctx so a dead DSN fails here rather than mid-write.
func Open(ctx context.Context, driver, dsn string, opts Options) (*sqlx.DB, error) {
	dsn, err := PrepareDSN(driver, dsn)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, err
	}

	if opts.MaxOpenConns <= 0 {
		opts.MaxOpenConns = 5
	}
	if opts.MaxIdleConns < 0 || opts.MaxIdleConns > opts.MaxOpenConns {
		opts.MaxIdleConns = opts.MaxOpenConns
	}
	if opts.ConnMaxLifetime <= 0 {
		opts.ConnMaxLifetime = 30 * time.Minute
	}
	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(opts.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// PrepareDSN applies driver-specific settings the write path depends on.
//
// MySQL reports rows *changed* rather than rows *matched* by default, which
// would make update-then-insert insert a duplicate whenever a resubmission
// carries identical values.  clientFoundRows switches to matched rows.
func PrepareDSN(driver, dsn string) (string, error) {
	switch driver {
	case Postgres:
		return dsn, nil
	case MySQL:
		cfg, err := mysql.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("parse mysql dsn: %w", err)
		}
		cfg.ClientFoundRows = true
		cfg.ParseTime = true
		return cfg.FormatDSN(), nil
	default:
		return "", fmt.Errorf("unsupported sql driver %q", driver)
	}
}
