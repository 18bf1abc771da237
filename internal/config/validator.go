// internal/config/validator.go
//
// Thin wrapper around go-playground/validator.
//
// Context
// -------
// `internal/config/loader.go` calls `validateStruct` immediately after it
// unmarshals the merged Koanf tree into a `Config` instance.  Any tag
// mismatch or validation error aborts startup, ensuring the binary never
// runs with partial or malformed configuration.
//
// Custom rules
// ------------
//   • sqlident – table names are interpolated into SQL and URLs, so they must
//     be plain identifiers, optionally schema-qualified (`public.signups`).
//   • Origin patterns must compile; checked outside the tag system because
//     regexp errors carry the useful message.
//   • storage.budget must end before http.write_timeout, or a hung write
//     path turns the 504 into a dropped connection.

package config

import (
	"fmt"
	"regexp"

	"github.com/go-playground/validator/v10"
)

//
// validator instance (package-level singleton)
//

var (
	v       = validator.New()
	identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)
)

func init() {
	if err := v.RegisterValidation("sqlident", func(fl validator.FieldLevel) bool {
		return identRe.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
}

//
// public API
//

// validateStruct returns the first validation error, or nil on success.
func validateStruct(c *Config) error {
	if err := v.Struct(c); err != nil {
		return err
	}
	if c.Storage.Budget >= c.HTTP.WriteTimeout {
		return fmt.Errorf("storage.budget %v must be shorter than http.write_timeout %v",
			c.Storage.Budget, c.HTTP.WriteTimeout)
	}
	for _, p := range c.CORS.OriginPatterns {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("cors.origin_patterns %q: %w", p, err)
		}
	}
	return nil
}

// Validate re-runs the checks, e.g. after ResolveSecrets rewrote values.
func (c *Config) Validate() error { return validateStruct(c) }
