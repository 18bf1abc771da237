package signup

import (
	"errors"
	"strings"
	"testing"

	"github.com/yanizio/waitlist/internal/form"
)

func newTestNormalizer() *Normalizer {
	return NewNormalizer(form.Default(), []string{"you@example.com"}, true)
}

func TestNormalize_FormRoundTrip(t *testing.T) {
	body := "name=Jane+Doe&email=jane@example.com&role[]=vet&role[]=spouse&updates=yes"
	p, err := form.Decode("application/x-www-form-urlencoded", []byte(body))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	rec, err := newTestNormalizer().Normalize(p, Meta{})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	if Value(rec.FirstName) != "Jane" || Value(rec.LastName) != "Doe" {
		t.Fatalf("name = %q %q", Value(rec.FirstName), Value(rec.LastName))
	}
	if rec.Email != "jane@example.com" {
		t.Fatalf("email = %q", rec.Email)
	}
	if Value(rec.Role) != "vet, spouse" {
		t.Fatalf("role = %q", Value(rec.Role))
	}
	if !rec.UpdatesOptIn {
		t.Fatal("updates_opt_in = false")
	}
	if rec.IP != nil || rec.UA != nil || rec.State != nil {
		t.Fatalf("absent optionals should be nil: %+v", rec)
	}
}

func TestNormalize_Email(t *testing.T) {
	n := newTestNormalizer()
	cases := []struct {
		email string
		want  error
	}{
		{"not-an-email", ErrInvalidEmail},
		{"you@example.com", ErrInvalidEmail},
		{"YOU@Example.com", ErrInvalidEmail},
		{"", ErrInvalidEmail},
		{"a b@c.de", ErrInvalidEmail},
		{"a@b.co", nil},
		{"  Mixed@Case.ORG ", nil},
	}
	for _, tc := range cases {
		_, err := n.Normalize(form.Payload{"email": tc.email}, Meta{})
		if !errors.Is(err, tc.want) && !(err == nil && tc.want == nil) {
			t.Errorf("email %q: err = %v, want %v", tc.email, err, tc.want)
		}
	}

	rec, _ := n.Normalize(form.Payload{"email": "  Mixed@Case.ORG "}, Meta{})
	if rec.Email != "mixed@case.org" {
		t.Fatalf("dedupe email = %q", rec.Email)
	}

	keep := NewNormalizer(nil, nil, false)
	rec, _ = keep.Normalize(form.Payload{"email": "Mixed@Case.ORG"}, Meta{})
	if rec.Email != "Mixed@Case.ORG" {
		t.Fatalf("insert email = %q, want case kept", rec.Email)
	}
}

func TestNormalize_NameVariants(t *testing.T) {
	n := newTestNormalizer()
	cases := []struct {
		name        string
		p           form.Payload
		first, last string
	}{
		{"single token", form.Payload{"name": "Cher"}, "Cher", ""},
		{"multi space", form.Payload{"fullname": "  Mary   Ann  Smith "}, "Mary", "Ann Smith"},
		{"discrete", form.Payload{"first_name": "Ada", "last_name": "Lovelace"}, "Ada", "Lovelace"},
		{"name wins", form.Payload{"name": "A B", "first_name": "X"}, "A", "B"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tc.p["email"] = "a@b.co"
			rec, err := n.Normalize(tc.p, Meta{})
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if Value(rec.FirstName) != tc.first || Value(rec.LastName) != tc.last {
				t.Fatalf("got %q / %q", Value(rec.FirstName), Value(rec.LastName))
			}
			if tc.last == "" && rec.LastName != nil {
				t.Fatal("empty last name should be nil")
			}
		})
	}
}

func TestNormalize_AliasesAndMeta(t *testing.T) {
	p := form.Payload{
		"user_email": "a@b.co",
		"company":    "Acme",
		"region":     "VA",
		"comment":    "hello",
		"role":       "veteran",
		"updates":    "on",
	}
	rec, err := newTestNormalizer().Normalize(p, Meta{IP: " 203.0.113.9 ", UA: "curl/8"})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if rec.Email != "a@b.co" || Value(rec.Organization) != "Acme" ||
		Value(rec.State) != "VA" || Value(rec.Message) != "hello" ||
		Value(rec.Role) != "veteran" || !rec.UpdatesOptIn {
		t.Fatalf("unexpected record: %+v", rec)
	}
	if Value(rec.IP) != "203.0.113.9" || Value(rec.UA) != "curl/8" {
		t.Fatalf("meta = %q %q", Value(rec.IP), Value(rec.UA))
	}
}

func TestNormalize_JSONRoleList(t *testing.T) {
	p, err := form.Decode("application/json", []byte(`{"data":{"email":"a@b.co","role":["vet"," ","spouse"],"updates_opt_in":true}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	rec, err := newTestNormalizer().Normalize(p, Meta{})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if Value(rec.Role) != "vet, spouse" || !rec.UpdatesOptIn {
		t.Fatalf("unexpected record: %+v", rec)
	}
}

func TestNormalize_MaxLength(t *testing.T) {
	p := form.Payload{"email": "a@b.co", "message": strings.Repeat("x", 5001)}
	if _, err := newTestNormalizer().Normalize(p, Meta{}); !errors.Is(err, ErrInvalidField) {
		t.Fatalf("err = %v, want ErrInvalidField", err)
	}
}
