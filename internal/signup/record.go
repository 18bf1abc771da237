// Package signup holds the canonical Signup Record and the rules that turn
// a decoded form payload into one.
//
// A Record is built per request, written once by internal/storage, and
// never read back.  Optional text columns are *string so an absent value is
// stored as NULL rather than "".
package signup

// Record is one normalized submission.  The json tags are the column names
// the data API expects; the db tags serve sqlx named statements.
type Record struct {
	ID           string  `json:"id,omitempty"   db:"id"`
	FirstName    *string `json:"first_name"     db:"first_name"`
	LastName     *string `json:"last_name"      db:"last_name"`
	Email        string  `json:"email"          db:"email"          validate:"required,max=254,signupemail"`
	Role         *string `json:"role"           db:"role"`
	State        *string `json:"state"          db:"state"`
	Organization *string `json:"organization"   db:"organization"`
	Message      *string `json:"message"        db:"message"`
	UpdatesOptIn bool    `json:"updates_opt_in" db:"updates_opt_in"`
	IP           *string `json:"ip"             db:"ip"`
	UA           *string `json:"ua"             db:"ua"`
}

// Columns lists the writable columns in a stable order.  id is excluded;
// storage adds it when a client-side id is in use.
var Columns = []string{
	"first_name", "last_name", "email", "role", "state",
	"organization", "message", "updates_opt_in", "ip", "ua",
}

// Meta is best-effort request metadata folded into the Record.
type Meta struct {
	IP string
	UA string
}

// str returns nil for "" so optional columns store NULL.
func str(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Value dereferences an optional column for logging and tests.
func Value(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
