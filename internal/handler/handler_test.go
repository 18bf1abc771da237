// internal/handler/handler_test.go
//
// Behavioural tests for the Submission Handler.  Storage is an in-memory
// stub that counts calls and keeps one row per email.
//
// Run: go test ./internal/handler -v

package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/yanizio/waitlist/internal/acl"
	"github.com/yanizio/waitlist/internal/config"
	"github.com/yanizio/waitlist/internal/form"
	"github.com/yanizio/waitlist/internal/metrics"
	"github.com/yanizio/waitlist/internal/signup"
	"github.com/yanizio/waitlist/internal/storage"
)

const (
	allowedOrigin = "https://veteranverify.net"
	secret        = "hook-secret"
	formCT        = "application/x-www-form-urlencoded"
)

// memStore upserts by email and counts every Write.
type memStore struct {
	mu    sync.Mutex
	rows  map[string]signup.Record
	calls int
	err   error
	unset bool
}

func newMemStore() *memStore { return &memStore{rows: map[string]signup.Record{}} }

func (m *memStore) Configured() bool { return !m.unset }

func (m *memStore) Write(_ context.Context, rec signup.Record) (storage.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return storage.Result{}, m.err
	}
	id := rec.Email
	m.rows[rec.Email] = rec
	return storage.Result{ID: id, Via: storage.ViaRESTUpsert}, nil
}

func newTestHandler(t *testing.T, store Store, preflight string) *Handler {
	t.Helper()
	pol, err := acl.New(config.CORS{
		AllowedOrigins: []string{allowedOrigin},
		OriginPatterns: []string{`^https://[a-z0-9-]+--veteranverify\.netlify\.app$`},
		AllowLocalhost: true,
	}, secret)
	if err != nil {
		t.Fatalf("acl.New: %v", err)
	}
	return New(Config{
		Policy:         pol,
		Normalizer:     signup.NewNormalizer(form.Default(), []string{"you@example.com"}, true),
		Store:          store,
		Preflight:      preflight,
		ClientIPHeader: "X-Nf-Client-Connection-Ip",
		MaxBodyBytes:   1024,
		Logger:         zap.NewNop().Sugar(),
	})
}

func browserPost(body string) Request {
	h := http.Header{}
	h.Set("Origin", allowedOrigin)
	h.Set("Content-Type", formCT)
	return Request{Method: http.MethodPost, Header: h, Body: body}
}

func decodeBody(t *testing.T, r Response) body {
	t.Helper()
	var b body
	if err := json.Unmarshal(r.Body, &b); err != nil {
		t.Fatalf("response body %q: %v", r.Body, err)
	}
	return b
}

func TestHandle_ForbiddenNeverTouchesStorage(t *testing.T) {
	store := newMemStore()
	h := newTestHandler(t, store, PreflightStrict)

	cases := []Request{
		{Method: http.MethodPost, Header: http.Header{"Origin": {"https://evil.example"}}, Body: "email=a@b.co"},
		{Method: http.MethodPost, Header: http.Header{}, Body: `{"email":"a@b.co"}`},
		{Method: http.MethodPost, Query: url.Values{"token": {"wrong"}}, Body: `{"email":"a@b.co"}`},
		{Method: http.MethodPost, Header: http.Header{"Referer": {"https://veteranverify.net.evil.io/x"}}, Body: "email=a@b.co"},
	}
	for i, req := range cases {
		resp := h.Handle(context.Background(), req)
		if resp.Status != http.StatusForbidden {
			t.Errorf("case %d: status = %d", i, resp.Status)
		}
		if b := decodeBody(t, resp); b.Error != "forbidden" || b.OK {
			t.Errorf("case %d: body = %+v", i, b)
		}
		if resp.Header.Get("Access-Control-Allow-Origin") != "" {
			t.Errorf("case %d: CORS granted to forbidden caller", i)
		}
	}
	if store.calls != 0 {
		t.Fatalf("storage calls = %d, want 0", store.calls)
	}
}

func TestHandle_HoneypotIsSilent(t *testing.T) {
	store := newMemStore()
	h := newTestHandler(t, store, PreflightStrict)

	resp := h.Handle(context.Background(), browserPost("email=a@b.co&bot-field=gotcha"))
	if resp.Status != http.StatusNoContent || len(resp.Body) != 0 {
		t.Fatalf("resp = %d %q", resp.Status, resp.Body)
	}

	req := Request{
		Method: http.MethodPost,
		Header: http.Header{"Content-Type": {"application/json"}},
		Query:  url.Values{"secret": {secret}},
		Body:   `{"payload":{"data":{"email":"a@b.co","bot-field":"x"}}}`,
	}
	if resp := h.Handle(context.Background(), req); resp.Status != http.StatusNoContent {
		t.Fatalf("webhook honeypot status = %d", resp.Status)
	}
	if store.calls != 0 {
		t.Fatalf("storage calls = %d, want 0", store.calls)
	}
}

func TestHandle_SuccessRoundTrip(t *testing.T) {
	store := newMemStore()
	h := newTestHandler(t, store, PreflightStrict)
	before := testutil.ToFloat64(metrics.Requests.WithLabelValues("ok"))

	req := browserPost("name=Jane+Doe&email=jane@example.com&role[]=vet&role[]=spouse&updates=yes")
	req.Header.Set("X-Forwarded-For", "203.0.113.5, 10.0.0.1")
	req.Header.Set("User-Agent", "Mozilla/5.0")
	resp := h.Handle(context.Background(), req)

	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d body=%s", resp.Status, resp.Body)
	}
	b := decodeBody(t, resp)
	if !b.OK || b.ID != "jane@example.com" || b.Via != storage.ViaRESTUpsert {
		t.Fatalf("body = %+v", b)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != allowedOrigin {
		t.Fatalf("ACAO = %q", got)
	}
	if resp.Header.Get("Cache-Control") != "no-store" || resp.Header.Get("Vary") != "Origin" {
		t.Fatalf("headers = %v", resp.Header)
	}

	rec := store.rows["jane@example.com"]
	if signup.Value(rec.FirstName) != "Jane" || signup.Value(rec.LastName) != "Doe" ||
		signup.Value(rec.Role) != "vet, spouse" || !rec.UpdatesOptIn ||
		signup.Value(rec.IP) != "203.0.113.5" || signup.Value(rec.UA) != "Mozilla/5.0" {
		t.Fatalf("stored = %+v", rec)
	}

	if after := testutil.ToFloat64(metrics.Requests.WithLabelValues("ok")); after-before != 1 {
		t.Fatalf("ok counter delta = %v", after-before)
	}
}

func TestHandle_WebhookGetsNoCORS(t *testing.T) {
	store := newMemStore()
	h := newTestHandler(t, store, PreflightStrict)

	req := Request{
		Method: http.MethodPost,
		Header: http.Header{},
		Query:  url.Values{"token": {secret}},
		Body:   `{"data":{"email":"hook@b.co"}}`,
	}
	resp := h.Handle(context.Background(), req)
	if resp.Status != http.StatusOK {
		t.Fatalf("status = %d body=%s", resp.Status, resp.Body)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("webhook response carried CORS headers")
	}
	if _, ok := store.rows["hook@b.co"]; !ok {
		t.Fatal("webhook row not stored")
	}
}

func TestHandle_EmailValidation(t *testing.T) {
	cases := []struct {
		email  string
		status int
		msg    string
	}{
		{"not-an-email", http.StatusBadRequest, "invalid email"},
		{"you@example.com", http.StatusBadRequest, "invalid email"},
		{"", http.StatusBadRequest, "invalid email"},
		{"a@b.co", http.StatusOK, ""},
	}
	for _, tc := range cases {
		store := newMemStore()
		h := newTestHandler(t, store, PreflightStrict)
		resp := h.Handle(context.Background(), browserPost("email="+url.QueryEscape(tc.email)))
		if resp.Status != tc.status {
			t.Errorf("email %q: status = %d", tc.email, resp.Status)
			continue
		}
		if tc.msg != "" {
			if b := decodeBody(t, resp); b.Error != tc.msg {
				t.Errorf("email %q: error = %q", tc.email, b.Error)
			}
			if store.calls != 0 {
				t.Errorf("email %q: storage called", tc.email)
			}
		}
	}
}

func TestHandle_UpsertIdempotence(t *testing.T) {
	store := newMemStore()
	h := newTestHandler(t, store, PreflightStrict)

	for _, org := range []string{"First+Org", "Second+Org"} {
		resp := h.Handle(context.Background(), browserPost("email=Dup@Example.org&organization="+org))
		if resp.Status != http.StatusOK {
			t.Fatalf("status = %d", resp.Status)
		}
	}
	if len(store.rows) != 1 {
		t.Fatalf("rows = %d, want 1", len(store.rows))
	}
	if got := signup.Value(store.rows["dup@example.org"].Organization); got != "Second Org" {
		t.Fatalf("organization = %q", got)
	}
}

func TestHandle_Preflight(t *testing.T) {
	h := newTestHandler(t, newMemStore(), PreflightStrict)

	req := Request{Method: http.MethodOptions, Header: http.Header{"Origin": {allowedOrigin}}}
	resp := h.Handle(context.Background(), req)
	if resp.Status != http.StatusNoContent {
		t.Fatalf("status = %d", resp.Status)
	}
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != allowedOrigin {
		t.Fatalf("ACAO = %q", got)
	}
	if resp.Header.Get("Access-Control-Allow-Methods") != "POST, OPTIONS" {
		t.Fatalf("methods = %q", resp.Header.Get("Access-Control-Allow-Methods"))
	}

	req.Header.Set("Origin", "https://evil.example")
	if resp := h.Handle(context.Background(), req); resp.Header.Get("Access-Control-Allow-Origin") != "" {
		t.Fatal("strict preflight granted an unknown origin")
	}

	permissive := newTestHandler(t, newMemStore(), PreflightPermissive)
	resp = permissive.Handle(context.Background(), req)
	if resp.Status != http.StatusNoContent || resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("permissive = %d %v", resp.Status, resp.Header)
	}
}

func TestHandle_MethodNotAllowed(t *testing.T) {
	store := newMemStore()
	h := newTestHandler(t, store, PreflightStrict)
	req := browserPost("")
	req.Method = http.MethodGet

	resp := h.Handle(context.Background(), req)
	if resp.Status != http.StatusMethodNotAllowed || resp.Header.Get("Allow") != "POST, OPTIONS" {
		t.Fatalf("resp = %d %v", resp.Status, resp.Header)
	}
	if store.calls != 0 {
		t.Fatal("storage called on GET")
	}
}

func TestHandle_UnsupportedContentType(t *testing.T) {
	h := newTestHandler(t, newMemStore(), PreflightStrict)

	req := browserPost(`{"email":`)
	req.Header.Set("Content-Type", "application/json")
	if resp := h.Handle(context.Background(), req); resp.Status != http.StatusUnsupportedMediaType {
		t.Fatalf("malformed json status = %d", resp.Status)
	}

	req = browserPost("email=a@b.co")
	req.Header.Set("Content-Type", "text/plain")
	if resp := h.Handle(context.Background(), req); resp.Status != http.StatusUnsupportedMediaType {
		t.Fatalf("text/plain status = %d", resp.Status)
	}

	req = browserPost(`{"email":"a@b.co"}`)
	req.Header.Del("Content-Type")
	if resp := h.Handle(context.Background(), req); resp.Status != http.StatusOK {
		t.Fatalf("json without content type status = %d", resp.Status)
	}
}

func TestHandle_Base64Body(t *testing.T) {
	store := newMemStore()
	h := newTestHandler(t, store, PreflightStrict)

	req := browserPost(base64.StdEncoding.EncodeToString([]byte("email=b64@b.co")))
	req.Base64 = true
	if resp := h.Handle(context.Background(), req); resp.Status != http.StatusOK {
		t.Fatalf("status = %d body=%s", resp.Status, resp.Body)
	}
	if _, ok := store.rows["b64@b.co"]; !ok {
		t.Fatal("base64 row not stored")
	}
}

func TestHandle_TooLarge(t *testing.T) {
	store := newMemStore()
	h := newTestHandler(t, store, PreflightStrict)

	resp := h.Handle(context.Background(), browserPost("email=a@b.co&message="+strings.Repeat("x", 2048)))
	if resp.Status != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d", resp.Status)
	}
	if store.calls != 0 {
		t.Fatal("storage called for oversized body")
	}
}

func TestHandle_StorageFailures(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"unconfigured", storage.ErrUnavailable, http.StatusInternalServerError, "server misconfigured"},
		{"rejected", &storage.Failure{Via: storage.ViaSQLUpsert, Kind: storage.KindRejected, Err: errors.New(`pq: column "x" secret detail`)},
			http.StatusInternalServerError, "database write failed"},
		{"unreachable", &storage.Failure{Via: storage.ViaSQLUpsert, Kind: storage.KindUnreachable, Err: errors.New("dial tcp")},
			http.StatusBadGateway, "database unreachable"},
		{"timeout", &storage.Failure{Via: storage.ViaRESTUpsert, Kind: storage.KindTimeout, Err: context.DeadlineExceeded},
			http.StatusGatewayTimeout, "database timeout"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store := newMemStore()
			store.err = tc.err
			h := newTestHandler(t, store, PreflightStrict)

			resp := h.Handle(context.Background(), browserPost("email=a@b.co"))
			if resp.Status != tc.status {
				t.Fatalf("status = %d", resp.Status)
			}
			b := decodeBody(t, resp)
			if b.Error != tc.msg || b.OK {
				t.Fatalf("body = %+v", b)
			}
			if strings.Contains(string(resp.Body), "secret detail") || strings.Contains(string(resp.Body), "dial") {
				t.Fatalf("raw error leaked: %s", resp.Body)
			}
		})
	}
}

func TestHandle_MisconfiguredBeforeParsing(t *testing.T) {
	store := newMemStore()
	store.unset = true
	h := newTestHandler(t, store, PreflightStrict)

	resp := h.Handle(context.Background(), browserPost("garbage"))
	if resp.Status != http.StatusInternalServerError || decodeBody(t, resp).Error != "server misconfigured" {
		t.Fatalf("resp = %d %s", resp.Status, resp.Body)
	}
	if store.calls != 0 {
		t.Fatal("storage called while unconfigured")
	}
}

// panicStore simulates an unexpected fault deep in a write path.
type panicStore struct{}

func (panicStore) Configured() bool { return true }
func (panicStore) Write(context.Context, signup.Record) (storage.Result, error) {
	panic("boom")
}

func TestHandle_RecoversPanics(t *testing.T) {
	h := newTestHandler(t, panicStore{}, PreflightStrict)
	resp := h.Handle(context.Background(), browserPost("email=a@b.co"))
	if resp.Status != http.StatusInternalServerError || decodeBody(t, resp).Error != "server error" {
		t.Fatalf("resp = %d %s", resp.Status, resp.Body)
	}
}

func TestHandle_WebhookJSONArrayKeys(t *testing.T) {
	store := newMemStore()
	h := newTestHandler(t, store, PreflightStrict)

	cases := map[string]string{
		"list@b.co":   `{"payload":{"data":{"email":"list@b.co","role[]":["vet","spouse"]}}}`,
		"single@b.co": `{"payload":{"data":{"email":"single@b.co","role[]":"vet"}}}`,
	}
	want := map[string]string{"list@b.co": "vet, spouse", "single@b.co": "vet"}
	for email, raw := range cases {
		resp := h.Handle(context.Background(), Request{
			Method: http.MethodPost,
			Header: http.Header{"Content-Type": {"application/json"}},
			Query:  url.Values{"secret": {secret}},
			Body:   raw,
		})
		if resp.Status != http.StatusOK {
			t.Fatalf("%s: status = %d body=%s", email, resp.Status, resp.Body)
		}
		if got := signup.Value(store.rows[email].Role); got != want[email] {
			t.Fatalf("%s: role = %q, want %q", email, got, want[email])
		}
	}
}
