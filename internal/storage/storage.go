// Package storage persists Signup Records through one or two write paths.
//
// Context
// -------
// Two interchangeable writers exist:
//
//	REST – the managed database's data API (PostgREST), one HTTP call.
//	SQL  – a direct sqlx pool against the same (or another) database.
//
// A Chain holds the primary writer and, optionally, a fallback.  Write tries
// the primary once and, if it fails, the fallback once.  There is no retry
// loop and no backoff; upsert-by-email is the only idempotency mechanism.
//
// Every attempt runs under its own timeout, and the whole Write under one
// budget, so the fallback only gets what the primary left over.  Failures
// are classified so the caller can pick a status without inspecting driver
// errors:
//
//	rejected    – the database refused the write (constraint, bad column).
//	unreachable – network, DNS, TLS, or 5xx from the data API.
//	timeout     – the attempt or budget deadline expired.
//
// Notes
// -----
//   - The raw error is kept in Failure.Err for server-side logs only.
//   - Write logs through the request logger in ctx when one is present.
//   - Oxford commas, two spaces after periods.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanizio/waitlist/internal/logger"
	"github.com/yanizio/waitlist/internal/metrics"
	"github.com/yanizio/waitlist/internal/signup"
)

// Via names reported to callers and used as metric labels.
const (
	ViaRESTUpsert = "rest_upsert"
	ViaRESTInsert = "rest_insert"
	ViaSQLUpsert  = "sql_upsert"
	ViaSQLInsert  = "sql_insert"
)

// ErrUnavailable means no write path is configured.
var ErrUnavailable = errors.New("storage: no write path configured")

// Kind classifies a failed write.
type Kind string

const (
	KindRejected    Kind = "rejected"
	KindUnreachable Kind = "unreachable"
	KindTimeout     Kind = "timeout"
)

// Failure is returned by writers and by Chain.Write.
type Failure struct {
	Via  string
	Kind Kind
	Err  error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("%s %s: %v", f.Via, f.Kind, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Result describes a successful write.
type Result struct {
	ID  string // storage-assigned identifier, may be empty
	Via string // write path that served the request
}

// Writer is one write path.
type Writer interface {
	// Via returns the path name used in responses and metrics.
	Via() string
	// Write persists rec.  Errors should be *Failure; anything else is
	// classified by the chain.
	Write(ctx context.Context, rec signup.Record) (Result, error)
}

// Chain tries writers in order, at most once each.
type Chain struct {
	writers   []Writer
	timeout   time.Duration
	budget    time.Duration
	clientIDs bool
	log       *zap.SugaredLogger
}

// Options configures a Chain.
type Options struct {
	Timeout   time.Duration // per attempt
	Budget    time.Duration // all attempts together; defaults to twice Timeout
	ClientIDs bool          // pre-generate a UUID shared by every attempt
	Logger    *zap.SugaredLogger
}

// NewChain builds a chain from primary and fallback.  Either may be nil.
func NewChain(opts Options, primary, fallback Writer) *Chain {
	c := &Chain{timeout: opts.Timeout, budget: opts.Budget, clientIDs: opts.ClientIDs, log: opts.Logger}
	if c.log == nil {
		c.log = zap.NewNop().Sugar()
	}
	if c.timeout <= 0 {
		c.timeout = 6 * time.Second
	}
	if c.budget <= 0 {
		c.budget = 2 * c.timeout
	}
	for _, w := range []Writer{primary, fallback} {
		if w != nil {
			c.writers = append(c.writers, w)
		}
	}
	return c
}

// Configured reports whether at least one writer exists.
func (c *Chain) Configured() bool { return len(c.writers) > 0 }

// Write persists rec through the first writer that succeeds.  When all
// writers fail the last *Failure is returned.
func (c *Chain) Write(ctx context.Context, rec signup.Record) (Result, error) {
	if len(c.writers) == 0 {
		return Result{}, ErrUnavailable
	}
	if c.clientIDs && rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	log := logger.FromContextOr(ctx, c.log)

	ctx, cancel := context.WithTimeout(ctx, c.budget)
	defer cancel()

	var last *Failure
	for i, w := range c.writers {
		res, err := c.attempt(ctx, w, rec)
		if err == nil {
			if i > 0 {
				log.Infow("fallback write succeeded", "via", res.Via)
			}
			return res, nil
		}
		last = err
		log.Warnw("storage write failed",
			"via", err.Via, "kind", err.Kind, "err", err.Err, "attempt", i+1)

		// The caller is gone or the budget is spent.
		if ctx.Err() != nil {
			break
		}
	}
	return Result{}, last
}

func (c *Chain) attempt(parent context.Context, w Writer, rec signup.Record) (Result, *Failure) {
	ctx, cancel := context.WithTimeout(parent, c.timeout)
	defer cancel()

	start := time.Now()
	res, err := w.Write(ctx, rec)
	metrics.StorageWriteSeconds.WithLabelValues(w.Via()).Observe(time.Since(start).Seconds())

	if err == nil {
		if res.Via == "" {
			res.Via = w.Via()
		}
		metrics.StorageWrites.WithLabelValues(res.Via, "ok").Inc()
		return res, nil
	}

	f := asFailure(ctx, w.Via(), err)
	metrics.StorageWrites.WithLabelValues(f.Via, string(f.Kind)).Inc()
	return Result{}, f
}

// asFailure normalizes err into a *Failure.  An expired attempt context
// always wins, whatever the writer reported.
func asFailure(ctx context.Context, via string, err error) *Failure {
	var f *Failure
	if !errors.As(err, &f) {
		f = &Failure{Via: via, Kind: KindRejected, Err: err}
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		f.Kind = KindTimeout
	}
	if f.Via == "" {
		f.Via = via
	}
	return f
}
