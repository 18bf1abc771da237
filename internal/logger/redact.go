// internal/logger/redact.go
//
// PII masking for log fields.
//
// Submissions carry names, emails, and client addresses.  Operators need
// enough to correlate a complaint with a log line, not the values
// themselves, so the handler passes every personal field through a
// Redactor before logging it.

package logger

import (
	"net"
	"strings"
)

// Redactor masks personal values.  The zero value masks; Off passes values
// through unchanged for local debugging.
type Redactor struct {
	Off bool
}

// Email keeps the first character of the local part and the domain:
// "jane@example.com" → "j***@example.com".
func (r Redactor) Email(s string) string {
	if r.Off || s == "" {
		return s
	}
	local, domain, ok := strings.Cut(s, "@")
	if !ok || local == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}

// IP zeroes the host part: the last octet for IPv4 and the last five
// groups for IPv6.  Unparseable input is fully masked.
func (r Redactor) IP(s string) string {
	if r.Off || s == "" {
		return s
	}
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return "***"
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.Mask(net.CIDRMask(24, 32)).String()
	}
	return ip.Mask(net.CIDRMask(48, 128)).String()
}

// Text reports only whether a free-form value was present.
func (r Redactor) Text(s string) string {
	if r.Off {
		return s
	}
	if s == "" {
		return ""
	}
	return "[redacted]"
}
