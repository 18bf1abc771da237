// internal/database/database_test.go
//
// Unit-tests for DSN preparation and schema bootstrap using sqlmock.
//
// Run: go test ./internal/database -v

package database

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

func TestPrepareDSN_MySQLForcesFoundRows(t *testing.T) {
	got, err := PrepareDSN(MySQL, "user:pw@tcp(db:3306)/waitlist")
	if err != nil {
		t.Fatalf("PrepareDSN: %v", err)
	}
	if !strings.Contains(got, "clientFoundRows=true") {
		t.Fatalf("dsn %q missing clientFoundRows", got)
	}
	if !strings.Contains(got, "parseTime=true") {
		t.Fatalf("dsn %q missing parseTime", got)
	}
}

func TestPrepareDSN_PostgresUnchanged(t *testing.T) {
	in := "postgres://u:p@db.example.co:5432/postgres?sslmode=require"
	got, err := PrepareDSN(Postgres, in)
	if err != nil || got != in {
		t.Fatalf("PrepareDSN = %q, %v; want unchanged", got, err)
	}
}

func TestPrepareDSN_UnknownDriver(t *testing.T) {
	if _, err := PrepareDSN("sqlite", "file.db"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestEnsureSchema_Postgres(t *testing.T) {
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer raw.Close()
	db := sqlx.NewDb(raw, Postgres)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS public\.signups`).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE UNIQUE INDEX IF NOT EXISTS public_signups_email_key ON public\.signups \(email\)`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := EnsureSchema(context.Background(), db, "public.signups", true); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestEnsureSchema_MySQLWithoutUnique(t *testing.T) {
	raw, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer raw.Close()
	db := sqlx.NewDb(raw, MySQL)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS signups`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := EnsureSchema(context.Background(), db, "signups", false); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}

	stmts, _ := schemaFor(MySQL, "signups", false)
	if strings.Contains(stmts[0], "UNIQUE") {
		t.Fatal("plain-insert schema must not add a unique email key")
	}
}
