//
//  internal/requestinfo/requestinfo.go
//
//  Best-effort client metadata: forwarded client IP, a parsed user-agent,
//  and an optional GeoLite2 country hint.  None of it is authoritative.
//  The IP and raw UA are stored with the signup row; the parsed fields and
//  country only ever reach log lines.
//
//  Dependencies
//  • github.com/avct/uasurfer           (through internal/ua)
//  • github.com/oschwald/geoip2-golang  (MaxMind lookup)
//

package requestinfo

import (
	"net"
	"net/http"
	"strings"

	"github.com/oschwald/geoip2-golang"

	"github.com/yanizio/waitlist/internal/ua"
)

//
//  -----------------------------
//  Struct definitions
//  -----------------------------
//

// Info is inert and safe to log.
type Info struct {
	IP      string
	UA      ua.Info
	Country string // "US", "CA", ... or "" when unknown
}

// Geo wraps a MaxMind reader.  A nil *Geo is valid and never matches.
type Geo struct {
	r *geoip2.Reader
}

// OpenGeo opens the GeoLite2 database at path.  An empty path returns a nil
// *Geo and no error, so lookups become no-ops.
func OpenGeo(path string) (*Geo, error) {
	if path == "" {
		return nil, nil
	}
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	return &Geo{r: r}, nil
}

// Country returns the ISO country code for ip, or "".
func (g *Geo) Country(ip string) string {
	if g == nil || g.r == nil {
		return ""
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	rec, err := g.r.Country(parsed)
	if err != nil {
		return ""
	}
	return rec.Country.IsoCode
}

// Close releases the database handle.
func (g *Geo) Close() error {
	if g == nil || g.r == nil {
		return nil
	}
	return g.r.Close()
}

//
//  -----------------------------
//  Header helpers
//  -----------------------------
//

// ClientIP walks the proxy headers in order of trust:
//
//  1. platformHeader (e.g., X-Nf-Client-Connection-Ip), when configured,
//  2. Client-Ip,
//  3. the left-most X-Forwarded-For entry,
//  4. X-Real-Ip.
//
// It returns "" when none are present; transports supply their own
// fallback (socket address or API-gateway source IP).
func ClientIP(h http.Header, platformHeader string) string {
	if platformHeader != "" {
		if v := strings.TrimSpace(h.Get(platformHeader)); v != "" {
			return v
		}
	}
	if v := strings.TrimSpace(h.Get("Client-Ip")); v != "" {
		return v
	}
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}
	return strings.TrimSpace(h.Get("X-Real-Ip"))
}

// HostOnly strips a :port suffix from a socket address such as
// http.Request.RemoteAddr.
func HostOnly(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// Describe assembles an Info for logging.
func Describe(ip, userAgent string, geo *Geo) Info {
	return Info{
		IP:      ip,
		UA:      ua.Parse(userAgent),
		Country: geo.Country(ip),
	}
}
