// internal/acl/policy.go
//
// Admission policy for the signup endpoint.
//
// Context
// -------
// A submission is admitted through one of two independent doors:
//
//  1. Browser origin – the Origin header (or the scheme://host of the
//     Referer when Origin is absent) matches an exact allowed origin, a
//     configured regular expression, or localhost.  Only this door grants
//     CORS response headers.
//  2. Webhook secret – the `token` or `secret` query parameter equals the
//     configured secret.  Server-to-server callers need no CORS headers.
//
// The Policy is compiled once from config and is read-only afterwards, so
// one value is shared by every concurrent request.
//
// Notes
// -----
//   • Secrets are compared in constant time.
//   • An empty secret disables the webhook door; it never matches "".
//   • Oxford commas, two spaces after periods.
package acl

import (
	"crypto/subtle"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"

	"github.com/yanizio/waitlist/internal/config"
)

// Policy decides whether a request may proceed.
type Policy struct {
	origins        map[string]struct{}
	patterns       []*regexp.Regexp
	allowLocalhost bool
	secret         []byte
}

// Decision is the outcome of Admit.
type Decision struct {
	Origin   string // resolved origin, possibly empty
	OriginOK bool   // browser door matched; CORS headers may be echoed
	Webhook  bool   // secret door matched
}

// Admitted reports whether either door matched.
func (d Decision) Admitted() bool { return d.OriginOK || d.Webhook }

// New compiles the CORS block and webhook secret into a Policy.
func New(cors config.CORS, secret string) (*Policy, error) {
	p := &Policy{
		origins:        make(map[string]struct{}, len(cors.AllowedOrigins)),
		allowLocalhost: cors.AllowLocalhost,
		secret:         []byte(secret),
	}
	for _, o := range cors.AllowedOrigins {
		if o = canonical(o); o != "" {
			p.origins[o] = struct{}{}
		}
	}
	// Patterns always match the whole origin, anchored or not.
	for _, expr := range cors.OriginPatterns {
		re, err := regexp.Compile(`^(?:` + expr + `)$`)
		if err != nil {
			return nil, fmt.Errorf("origin pattern %q: %w", expr, err)
		}
		p.patterns = append(p.patterns, re)
	}
	return p, nil
}

// Admit evaluates both doors.  Both are always computed so the caller can
// log which one matched.
func (p *Policy) Admit(origin, referer string, query url.Values) Decision {
	o := ResolveOrigin(origin, referer)
	d := Decision{Origin: o, OriginOK: p.OriginAllowed(o)}
	if query != nil {
		d.Webhook = p.SecretValid(query.Get("token")) || p.SecretValid(query.Get("secret"))
	}
	return d
}

// OriginAllowed reports whether origin matches the allow-list, a pattern, or
// localhost (when enabled).
func (p *Policy) OriginAllowed(origin string) bool {
	origin = canonical(origin)
	if origin == "" || origin == "null" {
		return false
	}
	if _, ok := p.origins[origin]; ok {
		return true
	}
	for _, re := range p.patterns {
		if re.MatchString(origin) {
			return true
		}
	}
	return p.allowLocalhost && isLocalhost(origin)
}

// SecretValid compares token against the configured secret.
func (p *Policy) SecretValid(token string) bool {
	if len(p.secret) == 0 || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), p.secret) == 1
}

// ResolveOrigin returns the Origin header, or the scheme://host portion of
// the Referer when Origin is empty.  Unparseable referers yield "".
func ResolveOrigin(origin, referer string) string {
	if o := strings.TrimSpace(origin); o != "" {
		return canonical(o)
	}
	referer = strings.TrimSpace(referer)
	if referer == "" {
		return ""
	}
	u, err := url.Parse(referer)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return canonical(u.Scheme + "://" + u.Host)
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func canonical(o string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(o), "/"))
}

func isLocalhost(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
