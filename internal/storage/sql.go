// internal/storage/sql.go
//
// Direct-SQL writer.
//
// Context
// -------
// The pool is opened lazily on the first write and then shared by every
// request.  Concurrent first writes collapse into one open through
// singleflight.
//
// Dialects
// --------
//	postgres – one statement:
//	             INSERT … ON CONFLICT (email) DO UPDATE SET … RETURNING id
//	mysql    – update-then-insert inside a transaction.  The DSN is forced to
//	           clientFoundRows so an identical resubmission still counts as a
//	           matched row.  MySQL rows always carry a client-generated id.
//
// Every statement uses the *Context variants and every transaction has a
// deferred Rollback, so pooled connections return on all exit paths.

package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/sync/singleflight"

	"github.com/yanizio/waitlist/internal/config"
	"github.com/yanizio/waitlist/internal/database"
	"github.com/yanizio/waitlist/internal/signup"
)

// OpenFunc opens a pool.  NewSQL sets it to database.Open; the field is
// unexported, so only tests inside this package swap it.
type OpenFunc func(ctx context.Context, driver, dsn string, opts database.Options) (*sqlx.DB, error)

// SQL writes through a lazily opened sqlx pool.
type SQL struct {
	driver string
	dsn    string
	opts   database.Options
	table  string
	upsert bool
	open   OpenFunc

	group singleflight.Group
	mu    sync.RWMutex
	db    *sqlx.DB
}

// NewSQL returns nil when cfg has no DSN.
func NewSQL(cfg config.SQL, table string, upsert bool) *SQL {
	if !cfg.Configured() {
		return nil
	}
	return &SQL{
		driver: cfg.Driver,
		dsn:    cfg.DSN,
		opts: database.Options{
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
		},
		table:  table,
		upsert: upsert,
		open:   database.Open,
	}
}

// NewSQLWithDB wraps an already-open pool.
func NewSQLWithDB(db *sqlx.DB, table string, upsert bool) *SQL {
	return &SQL{driver: db.DriverName(), table: table, upsert: upsert, db: db}
}

// Via implements Writer.
func (s *SQL) Via() string {
	if s.upsert {
		return ViaSQLUpsert
	}
	return ViaSQLInsert
}

// DB returns the pool, opening it on first use.
func (s *SQL) DB(ctx context.Context) (*sqlx.DB, error) {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db != nil {
		return db, nil
	}

	v, err, _ := s.group.Do("open", func() (any, error) {
		s.mu.RLock()
		db := s.db
		s.mu.RUnlock()
		if db != nil {
			return db, nil
		}
		db, err := s.open(ctx, s.driver, s.dsn, s.opts)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.db = db
		s.mu.Unlock()
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sqlx.DB), nil
}

// Close releases the pool if it was opened.
func (s *SQL) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Write implements Writer.
func (s *SQL) Write(ctx context.Context, rec signup.Record) (Result, error) {
	via := s.Via()
	db, err := s.DB(ctx)
	if err != nil {
		return Result{}, &Failure{Via: via, Kind: KindUnreachable, Err: err}
	}

	var id string
	switch s.driver {
	case database.MySQL:
		if rec.ID == "" {
			rec.ID = uuid.NewString()
		}
		if s.upsert {
			id, err = s.mysqlUpsert(ctx, db, rec)
		} else {
			id, err = rec.ID, s.exec(ctx, db, s.insertSQL(rec, ""), rec)
		}
	default:
		suffix := " RETURNING id"
		if s.upsert {
			suffix = " ON CONFLICT (email) DO UPDATE SET " + s.assignments("EXCLUDED.%s") + suffix
		}
		id, err = s.returning(ctx, db, s.insertSQL(rec, suffix), rec)
	}
	if err != nil {
		return Result{}, &Failure{Via: via, Kind: classify(err), Err: err}
	}
	return Result{ID: id, Via: via}, nil
}

/*──────────────────────────── statements ──────────────────────────────────*/

// insertSQL builds a named INSERT.  id is included only when the record
// carries one, so server-side defaults apply otherwise.
func (s *SQL) insertSQL(rec signup.Record, suffix string) string {
	cols := signup.Columns
	if rec.ID != "" {
		cols = append([]string{"id"}, cols...)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (:%s)%s",
		s.table, strings.Join(cols, ", "), strings.Join(cols, ", :"), suffix)
}

// assignments renders "col = <format>" for every column except email.
func (s *SQL) assignments(format string) string {
	parts := make([]string, 0, len(signup.Columns))
	for _, c := range signup.Columns {
		if c == "email" {
			continue
		}
		parts = append(parts, c+" = "+fmt.Sprintf(format, c))
	}
	return strings.Join(parts, ", ")
}

type execer interface {
	sqlx.ExecerContext
	sqlx.QueryerContext
	Rebind(string) string
}

func (s *SQL) exec(ctx context.Context, db execer, named string, rec signup.Record) error {
	q, args, err := sqlx.Named(named, rec)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, db.Rebind(q), args...)
	return err
}

func (s *SQL) returning(ctx context.Context, db execer, named string, rec signup.Record) (string, error) {
	q, args, err := sqlx.Named(named, rec)
	if err != nil {
		return "", err
	}
	var id string
	err = db.QueryRowxContext(ctx, db.Rebind(q), args...).Scan(&id)
	return id, err
}

// mysqlUpsert updates by email and inserts when nothing matched.  A
// duplicate-key error on insert means a concurrent request won the race;
// the update is retried once.
func (s *SQL) mysqlUpsert(ctx context.Context, db *sqlx.DB, rec signup.Record) (string, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return "", err
	}
	defer tx.Rollback() //nolint:errcheck

	update := fmt.Sprintf("UPDATE %s SET %s WHERE email = :email", s.table, s.assignments(":%s"))

	n, err := s.affected(ctx, tx, update, rec)
	if err != nil {
		return "", err
	}
	if n == 0 {
		err = s.exec(ctx, tx, s.insertSQL(rec, ""), rec)
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == 1062 {
			_, err = s.affected(ctx, tx, update, rec)
		} else if err == nil {
			return rec.ID, tx.Commit()
		}
		if err != nil {
			return "", err
		}
	}

	var id string
	q := tx.Rebind(fmt.Sprintf("SELECT id FROM %s WHERE email = ? LIMIT 1", s.table))
	if err := tx.QueryRowxContext(ctx, q, rec.Email).Scan(&id); err != nil {
		return "", err
	}
	return id, tx.Commit()
}

func (s *SQL) affected(ctx context.Context, tx *sqlx.Tx, named string, rec signup.Record) (int64, error) {
	q, args, err := sqlx.Named(named, rec)
	if err != nil {
		return 0, err
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(q), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

/*──────────────────────────── classification ──────────────────────────────*/

// classify maps driver errors onto failure kinds.  Connection-class errors
// are unreachable; anything the server answered is rejected.
func classify(err error) Kind {
	var (
		netErr net.Error
		pqErr  *pq.Error
	)
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, driver.ErrBadConn),
		errors.Is(err, sql.ErrConnDone),
		errors.Is(err, mysql.ErrInvalidConn),
		errors.As(err, &netErr):
		return KindUnreachable
	case errors.As(err, &pqErr) && pqErr.Code.Class() == "08":
		return KindUnreachable
	default:
		return KindRejected
	}
}
