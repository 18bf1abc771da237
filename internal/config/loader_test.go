// internal/config/loader_test.go
//
// Unit-tests for the layered loader.  Each test points SIGNUP_ROOT at a
// temp dir so the real repository configuration never leaks in.

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// isolate clears every variable the loader reads and roots it at a temp dir.
func isolate(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("SIGNUP_ROOT", root)
	for _, name := range []string{
		"SUPABASE_URL", "SUPABASE_SERVICE_KEY", "SUPABASE_DB_URL",
		"WEBHOOK_TOKEN", "FORM_WEBHOOK_SECRET",
	} {
		t.Setenv(name, "")
	}
	return root
}

func writeYAML(t *testing.T, root, body string) {
	t.Helper()
	dir := filepath.Join(root, "conf")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, yamlName), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestLoad_Defaults(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Table != "signups" {
		t.Errorf("table = %q, want signups", cfg.Storage.Table)
	}
	if !cfg.Storage.DedupeByEmail {
		t.Error("dedupe_by_email should default to true")
	}
	if cfg.Storage.Timeout != 6*time.Second {
		t.Errorf("timeout = %v, want 6s", cfg.Storage.Timeout)
	}
	if cfg.Storage.Budget >= cfg.HTTP.WriteTimeout {
		t.Errorf("budget %v must end before write_timeout %v", cfg.Storage.Budget, cfg.HTTP.WriteTimeout)
	}
	if cfg.CORS.Preflight != "strict" {
		t.Errorf("preflight = %q, want strict", cfg.CORS.Preflight)
	}
	if len(cfg.HTTP.Paths) != 2 {
		t.Errorf("paths = %v, want two defaults", cfg.HTTP.Paths)
	}
	if got := cfg.Form.PlaceholderEmails; len(got) != 1 || got[0] != "you@example.com" {
		t.Errorf("placeholder_emails = %v", got)
	}
	if cfg.Storage.REST.Configured() || cfg.Storage.SQL.Configured() {
		t.Error("no write path should be configured by default")
	}
}

func TestLoad_YAMLThenEnvOverride(t *testing.T) {
	root := isolate(t)
	writeYAML(t, root, `
storage:
  table: waitlist
  timeout: 2s
cors:
  allowed_origins:
    - https://veteranverify.net/
http:
  paths:
    - /signup
`)
	t.Setenv("SIGNUP_STORAGE__TIMEOUT", "3s")
	t.Setenv("SIGNUP_WEBHOOK__SECRET", "  s3cret  ")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Table != "waitlist" {
		t.Errorf("table = %q, want waitlist", cfg.Storage.Table)
	}
	if cfg.Storage.Timeout != 3*time.Second {
		t.Errorf("timeout = %v, want env override 3s", cfg.Storage.Timeout)
	}
	if cfg.Webhook.Secret != "s3cret" {
		t.Errorf("secret = %q, want trimmed", cfg.Webhook.Secret)
	}
	if got := cfg.CORS.AllowedOrigins; len(got) != 1 || got[0] != "https://veteranverify.net" {
		t.Errorf("allowed_origins = %v", got)
	}
	if got := cfg.HTTP.Paths; len(got) != 1 || got[0] != "/signup" {
		t.Errorf("paths = %v, want YAML list to replace defaults", got)
	}
}

func TestLoad_LegacyNames(t *testing.T) {
	isolate(t)
	t.Setenv("SUPABASE_URL", "https://abc.supabase.co/ ")
	t.Setenv("SUPABASE_SERVICE_KEY", "service-key")
	t.Setenv("WEBHOOK_TOKEN", "old")
	t.Setenv("FORM_WEBHOOK_SECRET", "new")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.REST.URL != "https://abc.supabase.co" {
		t.Errorf("rest url = %q", cfg.Storage.REST.URL)
	}
	if !cfg.Storage.REST.Configured() {
		t.Error("rest path should be configured")
	}
	if cfg.Webhook.Secret != "new" {
		t.Errorf("secret = %q, want FORM_WEBHOOK_SECRET to win", cfg.Webhook.Secret)
	}
}

func TestLoad_CommaSeparatedEnvSlice(t *testing.T) {
	isolate(t)
	t.Setenv("SIGNUP_CORS__ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 {
		t.Fatalf("allowed_origins = %v, want 2 entries", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := map[string][2]string{
		"bad preflight":  {"SIGNUP_CORS__PREFLIGHT", "loose"},
		"bad table":      {"SIGNUP_STORAGE__TABLE", "signups; drop table x"},
		"bad primary":    {"SIGNUP_STORAGE__PRIMARY", "ftp"},
		"bad pattern":    {"SIGNUP_CORS__ORIGIN_PATTERNS", "(unclosed"},
		"budget > write": {"SIGNUP_STORAGE__BUDGET", "20s"},
		"budget < try":   {"SIGNUP_STORAGE__BUDGET", "1s"},
	}
	for name, kv := range cases {
		t.Run(name, func(t *testing.T) {
			isolate(t)
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Fatalf("%s=%q: expected validation error", kv[0], kv[1])
			}
		})
	}
}

// fakeResolver serves secrets from a map keyed by "path#key".
type fakeResolver map[string]string

func (f fakeResolver) GetKV(_ context.Context, path, key string, _ time.Duration) (string, error) {
	v, ok := f[path+"#"+key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func TestResolveSecrets(t *testing.T) {
	isolate(t)
	t.Setenv("SIGNUP_STORAGE__REST__SERVICE_KEY", "vault:secret/signup#service_key")
	t.Setenv("SIGNUP_WEBHOOK__SECRET", "plain")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.HasSecretRefs() {
		t.Fatal("expected a vault reference")
	}

	err = ResolveSecrets(context.Background(), cfg, fakeResolver{
		"secret/signup#service_key": " resolved-key ",
	})
	if err != nil {
		t.Fatalf("ResolveSecrets: %v", err)
	}
	if cfg.Storage.REST.ServiceKey != "resolved-key" {
		t.Errorf("service key = %q", cfg.Storage.REST.ServiceKey)
	}
	if cfg.Webhook.Secret != "plain" {
		t.Errorf("plain value changed: %q", cfg.Webhook.Secret)
	}
	if cfg.HasSecretRefs() {
		t.Error("references should be gone after resolution")
	}
}

func TestResolveSecrets_Malformed(t *testing.T) {
	isolate(t)
	t.Setenv("SIGNUP_WEBHOOK__SECRET", "vault:secret/signup")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := ResolveSecrets(context.Background(), cfg, fakeResolver{}); err == nil {
		t.Fatal("expected malformed reference error")
	}
}
