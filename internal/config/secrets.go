// internal/config/secrets.go
//
// Resolution of `vault:` references.
//
// A secret-bearing value may be written as
//
//	vault:<mount>/<path>#<key>        e.g. vault:secret/signup#service_key
//
// ResolveSecrets swaps each reference for the plain value fetched through
// the supplied resolver.  It runs once, right after Load, so the handler
// never talks to Vault on the request path.

package config

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const vaultPrefix = "vault:"

// SecretResolver fetches a single key from a KV secret.  *vault.Client
// satisfies it.
type SecretResolver interface {
	GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error)
}

// HasSecretRefs reports whether any secret-bearing field holds a reference.
func (c *Config) HasSecretRefs() bool {
	for _, p := range c.secretFields() {
		if strings.HasPrefix(*p, vaultPrefix) {
			return true
		}
	}
	return false
}

// ResolveSecrets replaces every `vault:` reference in place.
func ResolveSecrets(ctx context.Context, c *Config, r SecretResolver) error {
	for _, p := range c.secretFields() {
		ref, ok := strings.CutPrefix(*p, vaultPrefix)
		if !ok {
			continue
		}
		path, key, ok := strings.Cut(ref, "#")
		if !ok || path == "" || key == "" {
			return fmt.Errorf("malformed vault reference %q (want vault:<path>#<key>)", *p)
		}
		val, err := r.GetKV(ctx, path, key, c.Vault.CacheTTL)
		if err != nil {
			return fmt.Errorf("resolve %s#%s: %w", path, key, err)
		}
		*p = strings.TrimSpace(val)
	}
	normalize(c)
	return c.Validate()
}

// secretFields lists the values that may carry vault references.
func (c *Config) secretFields() []*string {
	return []*string{
		&c.Webhook.Secret,
		&c.Storage.REST.URL,
		&c.Storage.REST.ServiceKey,
		&c.Storage.SQL.DSN,
	}
}
