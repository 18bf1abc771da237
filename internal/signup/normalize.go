// internal/signup/normalize.go
//
// Payload → Record normalization.
//
// Workflow
// --------
//  1. Canonical fields are read through the form definition, so aliases
//     (company → organization, region → state, …) apply uniformly.
//  2. A combined `name` splits on whitespace into first token and remainder;
//     without it, discrete first_name/last_name are used.
//  3. Email is trimmed, lower-cased when deduplicating by email, checked
//     against `local@domain.tld`, and rejected when it is a known placeholder.
//  4. Multi-value role joins with ", "; opt-in uses the truthy token set.
//  5. Declared max lengths are enforced on the raw values.
//
// Errors
// ------
// ErrInvalidEmail and ErrInvalidField are the only failures; both are user
// errors (400), never system faults.

package signup

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"

	"github.com/yanizio/waitlist/internal/form"
)

var (
	// ErrInvalidEmail covers a malformed or placeholder address.
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidField covers any other rejected value, e.g. an over-long field.
	ErrInvalidField = errors.New("invalid submission")
)

var (
	emailRe = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	v       = validator.New()
)

func init() {
	if err := v.RegisterValidation("signupemail", func(fl validator.FieldLevel) bool {
		return emailRe.MatchString(fl.Field().String())
	}); err != nil {
		panic(err)
	}
}

// Normalizer converts decoded payloads into Records.  It is immutable after
// construction and safe for concurrent use.
type Normalizer struct {
	def          *form.Definition
	placeholders map[string]struct{}
	lowercase    bool
}

// NewNormalizer builds a Normalizer.  placeholders are compared
// case-insensitively; lowercase controls whether stored emails are folded.
func NewNormalizer(def *form.Definition, placeholders []string, lowercase bool) *Normalizer {
	if def == nil {
		def = form.Default()
	}
	n := &Normalizer{
		def:          def,
		placeholders: make(map[string]struct{}, len(placeholders)),
		lowercase:    lowercase,
	}
	for _, p := range placeholders {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			n.placeholders[p] = struct{}{}
		}
	}
	return n
}

// Form exposes the definition, e.g. for the honeypot check.
func (n *Normalizer) Form() *form.Definition { return n.def }

// Normalize builds a Record from p and request metadata.
func (n *Normalizer) Normalize(p form.Payload, meta Meta) (Record, error) {
	if err := n.checkLengths(p); err != nil {
		return Record{}, err
	}

	email := n.def.Text(p, "email")
	if n.lowercase {
		email = strings.ToLower(email)
	}
	if _, decoy := n.placeholders[strings.ToLower(email)]; decoy {
		return Record{}, ErrInvalidEmail
	}

	rec := Record{
		Email:        email,
		State:        str(n.def.Text(p, "state")),
		Organization: str(n.def.Text(p, "organization")),
		Message:      str(n.def.Text(p, "message")),
		UpdatesOptIn: n.def.Bool(p, "updates_opt_in"),
		IP:           str(strings.TrimSpace(meta.IP)),
		UA:           str(meta.UA),
	}

	if parts := strings.Fields(n.def.Text(p, "name")); len(parts) > 0 {
		rec.FirstName = str(parts[0])
		rec.LastName = str(strings.Join(parts[1:], " "))
	} else {
		rec.FirstName = str(n.def.Text(p, "first_name"))
		rec.LastName = str(n.def.Text(p, "last_name"))
	}

	if roles := n.def.Values(p, "role"); len(roles) > 0 {
		rec.Role = str(strings.Join(roles, ", "))
	}

	if err := v.Struct(rec); err != nil {
		return Record{}, ErrInvalidEmail
	}
	return rec, nil
}

func (n *Normalizer) checkLengths(p form.Payload) error {
	for _, f := range n.def.Fields {
		if f.MaxLength == 0 {
			continue
		}
		if utf8.RuneCountInString(n.def.Text(p, f.Name)) > f.MaxLength {
			return fmt.Errorf("%w: %s exceeds %d characters", ErrInvalidField, f.Name, f.MaxLength)
		}
	}
	return nil
}
