package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// EnsureSchema creates the signups table when it does not exist.  The unique
// email index is only created for upsert deployments; plain-insert
// deployments keep duplicate rows.  Safe to call on every start.
func EnsureSchema(ctx context.Context, db *sqlx.DB, table string, uniqueEmail bool) error {
	stmts, err := schemaFor(db.DriverName(), table, uniqueEmail)
	if err != nil {
		return err
	}
	for _, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

func schemaFor(driver, table string, uniqueEmail bool) ([]string, error) {
	index := strings.ReplaceAll(table, ".", "_") + "_email_key"

	switch driver {
	case Postgres:
		stmts := []string{fmt.Sprintf(pgTable, table)}
		if uniqueEmail {
			stmts = append(stmts, fmt.Sprintf(
				`CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (email)`, index, table))
		}
		return stmts, nil

	case MySQL:
		unique := ""
		if uniqueEmail {
			unique = fmt.Sprintf(",\n    UNIQUE KEY %s (email)", index)
		}
		return []string{fmt.Sprintf(mysqlTable, table, unique)}, nil

	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}
}

const pgTable = `
CREATE TABLE IF NOT EXISTS %s (
    id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    first_name     TEXT,
    last_name      TEXT,
    email          TEXT NOT NULL,
    role           TEXT,
    state          TEXT,
    organization   TEXT,
    message        TEXT,
    updates_opt_in BOOLEAN NOT NULL DEFAULT FALSE,
    ip             TEXT,
    ua             TEXT
)`

// MySQL has no portable server-side UUID default across versions, so rows
// always arrive with a client-generated id.
const mysqlTable = `
CREATE TABLE IF NOT EXISTS %s (
    id             VARCHAR(36) NOT NULL PRIMARY KEY,
    created_at     TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    first_name     VARCHAR(255),
    last_name      VARCHAR(255),
    email          VARCHAR(254) NOT NULL,
    role           VARCHAR(512),
    state          VARCHAR(255),
    organization   VARCHAR(255),
    message        TEXT,
    updates_opt_in BOOLEAN NOT NULL DEFAULT FALSE,
    ip             VARCHAR(64),
    ua             TEXT%s
)`
