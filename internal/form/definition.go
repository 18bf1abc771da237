// internal/form/definition.go
//
// Signup form definition loader.
//
// Context
//   The fields a signup form may post, the alternate names other forms use
//   for the same field, and the name of the honeypot input are declared in
//   YAML.  A default definition is embedded in the binary; `form.definition`
//   may point at a replacement file so a deployment can accept a different
//   landing page without a rebuild.
//
// Workflow
//   •  Structs mirror the YAML schema: Definition → FieldDef.
//   •  Default parses the embedded waitlist.yaml once.
//   •  Load parses a file from disk and validates structural rules.
//   •  Text, Values, and Bool read canonical fields out of a Payload,
//      consulting aliases in declaration order.
//
// Style
//   Full sentences, two spaces after periods, Oxford commas.
//
//------------------------------------------------------------------------------

package form

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// -----------------------------------------------------------------------------
// Data structures
// -----------------------------------------------------------------------------

// Definition describes one accepted form.
type Definition struct {
	ID       string     `yaml:"id"`       // Identifier used in logs.
	Honeypot string     `yaml:"honeypot"` // Decoy input name, e.g. "bot-field".
	Fields   []FieldDef `yaml:"fields"`   // Canonical fields.

	byName map[string]*FieldDef
}

// FieldDef describes one canonical field.
type FieldDef struct {
	Name      string   `yaml:"name"`      // Canonical key.  Required.
	Type      string   `yaml:"type"`      // text, email, or bool.
	Aliases   []string `yaml:"aliases"`   // Alternate keys, tried in order.
	Multi     bool     `yaml:"multi"`     // Accepts repeated `name[]` values.
	MaxLength int      `yaml:"maxlength"` // 0 means unset.
}

//go:embed waitlist.yaml
var waitlistYAML []byte

var (
	defaultOnce sync.Once
	defaultDef  *Definition
)

// -----------------------------------------------------------------------------
// Loader API
// -----------------------------------------------------------------------------

// Default returns the embedded waitlist definition.  It panics if the
// embedded file is invalid, which a unit test guards against.
func Default() *Definition {
	defaultOnce.Do(func() {
		d, err := ParseDefinition(waitlistYAML, "waitlist.yaml")
		if err != nil {
			panic(err)
		}
		defaultDef = d
	})
	return defaultDef
}

// Load parses one YAML file and returns a validated Definition.  An empty
// path yields Default().
func Load(path string) (*Definition, error) {
	if path == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read form file %s: %w", path, err)
	}
	return ParseDefinition(raw, path)
}

// ParseDefinition decodes raw YAML.  src names the origin in error messages.
func ParseDefinition(raw []byte, src string) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parse YAML %s: %w", src, err)
	}
	if err := validateDefinition(&d, src); err != nil {
		return nil, err
	}
	d.byName = make(map[string]*FieldDef, len(d.Fields))
	for i := range d.Fields {
		d.byName[d.Fields[i].Name] = &d.Fields[i]
	}
	return &d, nil
}

// Field returns the canonical field called name.
func (d *Definition) Field(name string) (FieldDef, bool) {
	f, ok := d.byName[name]
	if !ok {
		return FieldDef{}, false
	}
	return *f, true
}

// -----------------------------------------------------------------------------
// Payload accessors
// -----------------------------------------------------------------------------

// keys lists name followed by its aliases.  Unknown names are looked up
// verbatim so callers can read undeclared keys.
func (d *Definition) keys(name string) []string {
	f, ok := d.byName[name]
	if !ok {
		return []string{name}
	}
	return append([]string{f.Name}, f.Aliases...)
}

// Text returns the first non-blank value among name and its aliases,
// trimmed.  Lists are joined with ", ".
func (d *Definition) Text(p Payload, name string) string {
	for _, k := range d.keys(name) {
		if s := strings.TrimSpace(p.text(k)); s != "" {
			return s
		}
	}
	return ""
}

// Values returns the non-blank values of a multi-value field.  A single
// scalar value yields a one-element slice.
func (d *Definition) Values(p Payload, name string) []string {
	for _, k := range d.keys(name) {
		if vs := p.list(k); len(vs) > 0 {
			return vs
		}
	}
	return nil
}

// Bool reports whether name or any alias carries a truthy token.
func (d *Definition) Bool(p Payload, name string) bool {
	for _, k := range d.keys(name) {
		if Truthy(p[k]) {
			return true
		}
	}
	return false
}

// IsBot reports whether the honeypot input was filled in.
func (d *Definition) IsBot(p Payload) bool {
	if d.Honeypot == "" {
		return false
	}
	return filled(p[d.Honeypot])
}

// -----------------------------------------------------------------------------
// Validation helpers
// -----------------------------------------------------------------------------

var validTypes = map[string]bool{"text": true, "email": true, "bool": true}

func validateDefinition(d *Definition, src string) error {
	if d.ID == "" {
		return fmt.Errorf("form definition %s: missing required 'id'", src)
	}
	if len(d.Fields) == 0 {
		return fmt.Errorf("form definition %s: must have 'fields'", src)
	}

	seen := make(map[string]string)
	hasEmail := false
	for i := range d.Fields {
		f := &d.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("form %s: field missing 'name'", src)
		}
		if f.Type == "" {
			f.Type = "text"
		}
		if !validTypes[f.Type] {
			return fmt.Errorf("form %s: field '%s' has unknown type '%s'", src, f.Name, f.Type)
		}
		if f.MaxLength < 0 {
			return fmt.Errorf("form %s: field '%s' maxlength cannot be negative", src, f.Name)
		}
		if f.Name == "email" {
			hasEmail = true
		}
		for _, k := range append([]string{f.Name}, f.Aliases...) {
			if owner, dup := seen[k]; dup {
				return fmt.Errorf("form %s: key '%s' claimed by both '%s' and '%s'", src, k, owner, f.Name)
			}
			seen[k] = f.Name
		}
	}
	if !hasEmail {
		return fmt.Errorf("form %s: an 'email' field is required", src)
	}
	if _, clash := seen[d.Honeypot]; clash && d.Honeypot != "" {
		return fmt.Errorf("form %s: honeypot '%s' collides with a field", src, d.Honeypot)
	}
	return nil
}
