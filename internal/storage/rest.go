// internal/storage/rest.go
//
// Data-API writer.
//
// Request shape:
//
//	POST {url}/rest/v1/{table}?on_conflict=email&select=id
//	apikey: <service key>
//	Authorization: Bearer <service key>
//	Prefer: return=representation,resolution=merge-duplicates
//
// Insert mode drops on_conflict and the resolution preference.  Any 2xx is
// success; 4xx means the database rejected the row; 5xx and transport errors
// mean the API is unreachable.
//
// The *http.Client is built once by NewHTTPClient and shared; dialing rules
// (timeout, IPv4-only) live there rather than in per-request workarounds.

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/yanizio/waitlist/internal/config"
	"github.com/yanizio/waitlist/internal/signup"
)

// NewHTTPClient returns a client whose dialer honours dialTimeout and, when
// ipv4Only is set, never attempts IPv6.  Overall request time is bounded by
// the per-attempt context, not Client.Timeout.
func NewHTTPClient(dialTimeout time.Duration, ipv4Only bool) *http.Client {
	d := &net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		if ipv4Only && strings.HasPrefix(network, "tcp") {
			network = "tcp4"
		}
		return d.DialContext(ctx, network, addr)
	}
	tr.TLSHandshakeTimeout = dialTimeout
	tr.MaxIdleConnsPerHost = 4
	return &http.Client{Transport: tr}
}

// REST writes through PostgREST.
type REST struct {
	client   *http.Client
	endpoint string
	key      string
	profile  string
	upsert   bool
}

// NewREST returns nil when cfg is not configured, so the result can be
// passed straight to NewChain.
func NewREST(client *http.Client, cfg config.REST, table string, upsert bool) *REST {
	if !cfg.Configured() {
		return nil
	}
	profile := cfg.Schema
	if schema, name, ok := strings.Cut(table, "."); ok {
		profile, table = schema, name
	}

	q := url.Values{"select": {"id"}}
	if upsert {
		q.Set("on_conflict", "email")
	}
	return &REST{
		client:   client,
		endpoint: cfg.URL + "/rest/v1/" + url.PathEscape(table) + "?" + q.Encode(),
		key:      cfg.ServiceKey,
		profile:  profile,
		upsert:   upsert,
	}
}

// Via implements Writer.
func (r *REST) Via() string {
	if r.upsert {
		return ViaRESTUpsert
	}
	return ViaRESTInsert
}

// Write implements Writer.
func (r *REST) Write(ctx context.Context, rec signup.Record) (Result, error) {
	via := r.Via()

	// A merge would overwrite the existing row's id.
	if r.upsert {
		rec.ID = ""
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return Result{}, &Failure{Via: via, Kind: KindRejected, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(body))
	if err != nil {
		return Result{}, &Failure{Via: via, Kind: KindRejected, Err: err}
	}
	prefer := "return=representation"
	if r.upsert {
		prefer += ",resolution=merge-duplicates"
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", r.key)
	req.Header.Set("Authorization", "Bearer "+r.key)
	req.Header.Set("Prefer", prefer)
	if r.profile != "" {
		req.Header.Set("Content-Profile", r.profile)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Result{}, &Failure{Via: via, Kind: KindUnreachable, Err: err}
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Result{ID: firstID(raw), Via: via}, nil
	case resp.StatusCode >= 500:
		return Result{}, &Failure{Via: via, Kind: KindUnreachable, Err: apiError(resp.StatusCode, raw)}
	default:
		return Result{}, &Failure{Via: via, Kind: KindRejected, Err: apiError(resp.StatusCode, raw)}
	}
}

// firstID extracts id from `[{"id":…}]` or `{"id":…}`.  Numeric and string
// ids are both returned as text.
func firstID(raw []byte) string {
	type row struct {
		ID json.RawMessage `json:"id"`
	}
	var rows []row
	if err := json.Unmarshal(raw, &rows); err != nil {
		var one row
		if json.Unmarshal(raw, &one) != nil {
			return ""
		}
		rows = []row{one}
	}
	if len(rows) == 0 || len(rows[0].ID) == 0 || string(rows[0].ID) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(rows[0].ID, &s) == nil {
		return s
	}
	return string(rows[0].ID)
}

// apiError keeps PostgREST's message for logs, trimmed to a sane length.
func apiError(status int, raw []byte) error {
	var pe struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &pe) == nil && pe.Message != "" {
		return fmt.Errorf("data api %d (%s): %s", status, pe.Code, pe.Message)
	}
	msg := strings.TrimSpace(string(raw))
	if len(msg) > 256 {
		msg = msg[:256]
	}
	return fmt.Errorf("data api %d: %s", status, msg)
}
