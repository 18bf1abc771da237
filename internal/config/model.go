// internal/config/model.go
//
// Typed configuration model for the signup service.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from its overlay layers:
//
//   • built-in defaults                       – embedded defaults.yaml,
//   • optional `.env`                         – dotenv values,
//   • optional `conf/signup.yaml`             – static file,
//   • legacy hosting env names                – SUPABASE_URL and friends,
//   • `SIGNUP_`-prefixed environment overrides – highest precedence.
//
// Any string value that begins with `vault:` is resolved through the Vault
// client after unmarshalling, so request-handling code only ever sees plain
// strings.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.
//   • Oxford commas, two spaces after periods.  No em-dash.

package config

import "time"

//
// HTTP section
//

// HTTP holds web-server tunables.  Lambda deployments ignore everything
// except MaxBodyBytes.
type HTTP struct {
	ListenAddr   string        `koanf:"listen_addr"    validate:"required,hostname_port"`
	Paths        []string      `koanf:"paths"          validate:"min=1,dive,startswith=/"`
	MaxBodyBytes int64         `koanf:"max_body_bytes" validate:"gt=0"`
	ForceHTTPS   bool          `koanf:"force_https"`
	ReadTimeout  time.Duration `koanf:"read_timeout"   validate:"gt=0"`
	WriteTimeout time.Duration `koanf:"write_timeout"  validate:"gt=0"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"   validate:"gt=0"`
}

//
// Admission section
//

// CORS lists the browser origins allowed to post the form.  Patterns are
// regular expressions matched against the full origin
// (e.g., `^https://[a-z0-9-]+--veteranverify\.netlify\.app$`).
type CORS struct {
	AllowedOrigins []string `koanf:"allowed_origins" validate:"dive,url"`
	OriginPatterns []string `koanf:"origin_patterns"`
	AllowLocalhost bool     `koanf:"allow_localhost"`
	Preflight      string   `koanf:"preflight"       validate:"oneof=strict permissive"`
}

// Webhook holds the shared secret accepted in the `token` or `secret` query
// parameter.  Empty disables webhook admission entirely.
type Webhook struct {
	Secret string `koanf:"secret"`
}

//
// Storage section
//

// REST configures the managed database's data API (PostgREST).
type REST struct {
	URL        string `koanf:"url"         validate:"omitempty,url"`
	ServiceKey string `koanf:"service_key"`
	Schema     string `koanf:"schema"`
}

// Configured reports whether both the URL and key are present.
func (r REST) Configured() bool { return r.URL != "" && r.ServiceKey != "" }

// SQL configures the direct connection-pool fallback.
type SQL struct {
	Driver          string        `koanf:"driver"            validate:"oneof=postgres mysql"`
	DSN             string        `koanf:"dsn"`
	MaxOpenConns    int           `koanf:"max_open_conns"    validate:"gte=1"`
	MaxIdleConns    int           `koanf:"max_idle_conns"    validate:"gte=0"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
	AutoMigrate     bool          `koanf:"auto_migrate"`
}

// Configured reports whether a DSN is present.
func (s SQL) Configured() bool { return s.DSN != "" }

// Storage selects the write paths and their shared behaviour.
//
// DedupeByEmail chooses upsert-by-email (true) over plain insert (false).
// Primary names the path tried first; the other one, when configured, is
// the fallback.  Timeout bounds one attempt and Budget bounds both, so the
// answer always leaves before http.write_timeout.
type Storage struct {
	Table         string        `koanf:"table"           validate:"required,sqlident"`
	Primary       string        `koanf:"primary"         validate:"oneof=rest sql"`
	DedupeByEmail bool          `koanf:"dedupe_by_email"`
	ClientIDs     bool          `koanf:"client_ids"`
	Timeout       time.Duration `koanf:"timeout"         validate:"gt=0"`
	Budget        time.Duration `koanf:"budget"          validate:"gtefield=Timeout"`
	DialTimeout   time.Duration `koanf:"dial_timeout"    validate:"gt=0"`
	PreferIPv4    bool          `koanf:"prefer_ipv4"`
	REST          REST          `koanf:"rest"`
	SQL           SQL           `koanf:"sql"`
}

//
// Form, request, and logging sections
//

// Form points at an optional YAML form definition and lists decoy emails.
type Form struct {
	Definition        string   `koanf:"definition"`
	PlaceholderEmails []string `koanf:"placeholder_emails"`
}

// Request tunes best-effort client metadata extraction.
type Request struct {
	ClientIPHeader string `koanf:"client_ip_header"`
}

// Log controls the zap logger.  An empty Dir logs to stdout only.
type Log struct {
	Level     string `koanf:"level"      validate:"oneof=debug info warn error"`
	Dir       string `koanf:"dir"`
	Tee       bool   `koanf:"tee"`
	RedactPII bool   `koanf:"redact_pii"`
}

// Vault enables `vault:` secret references.  Address and token fall back to
// VAULT_ADDR and VAULT_TOKEN when empty.
type Vault struct {
	Enabled  bool          `koanf:"enabled"`
	Address  string        `koanf:"address"   validate:"omitempty,url"`
	Token    string        `koanf:"token"`
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// GeoIP points at an optional GeoLite2-City database used for log hints.
type GeoIP struct {
	DBPath string `koanf:"db_path"`
}

// Metrics sets the Prometheus scrape path on the web server.
type Metrics struct {
	Path string `koanf:"path" validate:"startswith=/"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // SIGNUP_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load().  It is built once at
// process start and passed into constructors; nothing downstream reads the
// environment.
type Config struct {
	HTTP    HTTP    `koanf:"http"`
	CORS    CORS    `koanf:"cors"`
	Webhook Webhook `koanf:"webhook"`
	Storage Storage `koanf:"storage"`
	Form    Form    `koanf:"form"`
	Request Request `koanf:"request"`
	Log     Log     `koanf:"log"`
	Vault   Vault   `koanf:"vault"`
	GeoIP   GeoIP   `koanf:"geoip"`
	Metrics Metrics `koanf:"metrics"`
	Paths   Paths   `koanf:"-"`
}
