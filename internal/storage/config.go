package storage

import (
	"go.uber.org/zap"

	"github.com/yanizio/waitlist/internal/config"
)

// FromConfig wires the writers named by cfg into a Chain.  storage.primary
// picks which path goes first; the other, when configured, is the
// fallback.  The SQL writer is returned separately so the caller can run
// schema bootstrap and Close it on shutdown; it is nil when no DSN is set.
func FromConfig(cfg config.Storage, log *zap.SugaredLogger) (*Chain, *SQL) {
	var rest, sqlw Writer
	if r := NewREST(NewHTTPClient(cfg.DialTimeout, cfg.PreferIPv4), cfg.REST, cfg.Table, cfg.DedupeByEmail); r != nil {
		rest = r
	}
	s := NewSQL(cfg.SQL, cfg.Table, cfg.DedupeByEmail)
	if s != nil {
		sqlw = s
	}

	primary, fallback := rest, sqlw
	if cfg.Primary == "sql" {
		primary, fallback = sqlw, rest
	}
	chain := NewChain(Options{
		Timeout:   cfg.Timeout,
		Budget:    cfg.Budget,
		ClientIDs: cfg.ClientIDs,
		Logger:    log,
	}, primary, fallback)
	return chain, s
}
