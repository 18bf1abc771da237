// internal/config/loader.go
//
// Configuration loader.
//
/*
Context
--------
`Load()` builds one immutable `Config` struct from five layers (highest
precedence last):

  1. Embedded `defaults.yaml`.
  2. Optional `.env` file at `<root>/.env` (values land in the process env).
  3. Optional `<root>/conf/signup.yaml`.
  4. Legacy hosting names: SUPABASE_URL, SUPABASE_SERVICE_KEY,
     SUPABASE_DB_URL, WEBHOOK_TOKEN, and FORM_WEBHOOK_SECRET (the latter
     wins over WEBHOOK_TOKEN).
  5. Environment variables prefixed `SIGNUP_`, where `__` maps to “.”
     (e.g., `SIGNUP_STORAGE__REST__URL → storage.rest.url`).

After merging, the tree is unmarshalled into strongly-typed structs,
normalized, validated, and returned.  There is no package-level copy:
callers pass the pointer into constructors so request-handling code never
reads ambient state.

Instrumentation
---------------
  • DEBUG spans - root discovery, YAML read, env overlay.
  • ERROR spans - YAML parse, env overlay, unmarshal, validation failures.
  • INFO  span  - final “config loaded” with key highlights, never secrets.
  • Logs use the global sugared logger (`zap.S()`), a no-op until
    logger.New installs a real one.
*/
package config

import (
	_ "embed"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"
)

//go:embed defaults.yaml
var defaultsYAML []byte

const (
	envPrefix = "SIGNUP_"
	yamlName  = "signup.yaml"
)

// legacyEnv maps the variable names used by the hosted-function deployment
// onto config keys.  WEBHOOK_TOKEN is read in its own pass first so that
// FORM_WEBHOOK_SECRET always overrides it.
var (
	legacyWebhookToken = map[string]string{
		"WEBHOOK_TOKEN": "webhook.secret",
	}
	legacyEnv = map[string]string{
		"SUPABASE_URL":         "storage.rest.url",
		"SUPABASE_SERVICE_KEY": "storage.rest.service_key",
		"SUPABASE_DB_URL":      "storage.sql.dsn",
		"FORM_WEBHOOK_SECRET":  "webhook.secret",
	}
)

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves SIGNUP_ROOT or climbs directories until conf/signup.yaml
// is found.  Falls back to the working directory.
func rootDir() string {
	if r := os.Getenv("SIGNUP_ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	dir := wd
	for {
		if _, err := os.Stat(filepath.Join(dir, "conf", yamlName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir { // reached filesystem root
			break
		}
		dir = parent
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads every layer, validates, and returns the Config.
func Load() (*Config, error) {
	root := rootDir()
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing).  Never overrides real env vars.
	_ = godotenv.Load(filepath.Join(root, ".env"))

	k := koanf.New(".")

	if err := k.Load(bytesProvider(defaultsYAML), yaml.Parser()); err != nil {
		zap.S().Errorw("config defaults load failed", "err", err)
		return nil, err
	}

	yamlPath := filepath.Join(root, "conf", yamlName)
	if _, err := os.Stat(yamlPath); err == nil {
		if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
			zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
			return nil, err
		}
		zap.S().Debugw("config yaml loaded", "file", yamlPath)
	}

	for _, names := range []map[string]string{legacyWebhookToken, legacyEnv} {
		if err := k.Load(legacyProvider(names), nil); err != nil {
			zap.S().Errorw("config legacy env overlay failed", "err", err)
			return nil, err
		}
	}

	// Env overrides: SIGNUP_STORAGE__REST__URL → storage.rest.url
	if err := k.Load(env.ProviderWithValue(envPrefix, ".", func(key, val string) (string, any) {
		if key == "SIGNUP_ROOT" {
			return "", nil
		}
		key = strings.ToLower(strings.ReplaceAll(strings.TrimPrefix(key, envPrefix), "__", "."))
		return key, strings.TrimSpace(val)
	}), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	// Comma-separated env values become slices; "8s" becomes a Duration.
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			Result:           &cfg,
			TagName:          "koanf",
			WeaklyTypedInput: true,
		},
	}); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	normalize(&cfg)
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"primary", cfg.Storage.Primary,
		"rest", cfg.Storage.REST.Configured(),
		"sql", cfg.Storage.SQL.Configured(),
		"dedupe_by_email", cfg.Storage.DedupeByEmail,
		"webhook", cfg.Webhook.Secret != "",
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

// normalize trims values that commonly arrive with stray whitespace or
// trailing slashes from hosting dashboards.
func normalize(c *Config) {
	c.Webhook.Secret = strings.TrimSpace(c.Webhook.Secret)
	c.Storage.REST.URL = strings.TrimRight(strings.TrimSpace(c.Storage.REST.URL), "/")
	c.Storage.REST.ServiceKey = strings.TrimSpace(c.Storage.REST.ServiceKey)
	c.Storage.SQL.DSN = strings.TrimSpace(c.Storage.SQL.DSN)
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.CORS.Preflight = strings.ToLower(strings.TrimSpace(c.CORS.Preflight))
	for i, o := range c.CORS.AllowedOrigins {
		c.CORS.AllowedOrigins[i] = strings.TrimRight(strings.TrimSpace(o), "/")
	}
}

// bytesProvider feeds an in-memory document to a koanf parser.
type bytesProvider []byte

func (b bytesProvider) ReadBytes() ([]byte, error) { return b, nil }

func (b bytesProvider) Read() (map[string]any, error) {
	return nil, errors.New("bytesProvider does not support Read")
}

// legacyProvider reads a fixed set of unprefixed variables.  Empty or unset
// names are skipped so they never blank out an earlier layer.
type legacyProvider map[string]string

func (l legacyProvider) ReadBytes() ([]byte, error) {
	return nil, errors.New("legacyProvider does not support ReadBytes")
}

func (l legacyProvider) Read() (map[string]any, error) {
	out := make(map[string]any)
	for name, key := range l {
		val := strings.TrimSpace(os.Getenv(name))
		if val == "" {
			continue
		}
		// Nest "a.b.c" into map[a][b][c] the way koanf expects from Read.
		parts := strings.Split(key, ".")
		m := out
		for _, p := range parts[:len(parts)-1] {
			next, ok := m[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				m[p] = next
			}
			m = next
		}
		m[parts[len(parts)-1]] = val
	}
	return out, nil
}
