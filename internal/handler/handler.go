// internal/handler/handler.go
//
// Submission Handler.
//
// Context
// -------
// One transport-neutral operation, Handle(ctx, Request) Response, shared by
// the net/http server (http.go) and the serverless entry point (lambda.go).
// Everything it needs arrives through Config at construction; nothing here
// reads the environment.
//
// Workflow
// --------
//  1. Admission: browser origin or webhook secret (internal/acl).
//  2. OPTIONS → 204 per the preflight policy; non-POST → 405.
//  3. Neither door matched → 403 before any parsing or storage access.
//  4. No write path configured → 500 "server misconfigured".
//  5. Body over the cap → 413; unreadable → 400.  Decode and parse the body
//     (internal/form); failures → 415.
//  6. Honeypot filled → 204, nothing written.
//  7. Normalize (internal/signup); failures → 400.
//  8. Write through the storage chain; failures → 500, 502, or 504.
//  9. 200 {ok, id, via}.
//
// Instrumentation
// ---------------
//   • One INFO line per request with outcome, redacted email and IP, UA
//     family, bot flag, country, and duration.
//   • Storage failures log the raw error at ERROR; the response carries only
//     a generic message and the failing stage.
//   • Panics are recovered, logged with a stack, and answered with 500.
//
// Notes
// -----
//   • Oxford commas, two spaces after periods.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yanizio/waitlist/internal/acl"
	"github.com/yanizio/waitlist/internal/form"
	"github.com/yanizio/waitlist/internal/logger"
	"github.com/yanizio/waitlist/internal/metrics"
	"github.com/yanizio/waitlist/internal/requestinfo"
	"github.com/yanizio/waitlist/internal/signup"
	"github.com/yanizio/waitlist/internal/storage"
)

// Preflight policies.
const (
	PreflightStrict     = "strict"
	PreflightPermissive = "permissive"
)

const (
	allowMethods = "POST, OPTIONS"
	allowHeaders = "Content-Type"
	maxAge       = "86400"
)

// Store is the persistence dependency; *storage.Chain satisfies it.
type Store interface {
	Configured() bool
	Write(ctx context.Context, rec signup.Record) (storage.Result, error)
}

// Request is the transport-neutral inbound request.
type Request struct {
	Method   string
	Header   http.Header // canonical keys
	Query    url.Values
	Body     string
	Base64   bool   // Body is base64 transport-encoded
	RemoteIP string // transport fallback when no proxy header is present
	Oversize bool   // transport already saw more than MaxBodyBytes
	BodyErr  error  // transport failed to read the body
}

// Response is the transport-neutral outbound response.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Config wires a Handler.  Policy, Normalizer, and Store are required.
type Config struct {
	Policy         *acl.Policy
	Normalizer     *signup.Normalizer
	Store          Store
	Preflight      string
	ClientIPHeader string
	MaxBodyBytes   int64
	Geo            *requestinfo.Geo
	Redact         logger.Redactor
	Logger         *zap.SugaredLogger
}

// Handler is safe for concurrent use.
type Handler struct {
	cfg Config
	log *zap.SugaredLogger
}

// New returns a Handler.
func New(cfg Config) *Handler {
	if cfg.Preflight == "" {
		cfg.Preflight = PreflightStrict
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 64 << 10
	}
	log := cfg.Logger
	if log == nil {
		log = zap.S()
	}
	return &Handler{cfg: cfg, log: log}
}

// MaxBodyBytes reports the body cap so transports can bound their reads.
func (h *Handler) MaxBodyBytes() int64 { return h.cfg.MaxBodyBytes }

// outcome is filled in as a request progresses and logged once at the end.
type outcome struct {
	id       string
	decision acl.Decision
	name     string
	status   int
	via      string
	email    string
	message  string
	info     requestinfo.Info
}

// Handle processes one request.  It never panics and never returns a raw
// error to the caller.
func (h *Handler) Handle(ctx context.Context, req Request) (resp Response) {
	start := time.Now()
	oc := &outcome{id: uuid.NewString()}
	log := h.log.With("request_id", oc.id)

	defer func() {
		if p := recover(); p != nil {
			log.Errorw("panic in signup handler", "panic", p, "stack", zap.StackSkip("", 2).String)
			resp = h.errorResponse(errServer, corsHeaders(oc.decision))
			oc.name, oc.status = errServer.Outcome, errServer.Status
		}
		metrics.Requests.WithLabelValues(oc.name).Inc()
		h.logOutcome(log, oc, time.Since(start))
	}()

	if req.Header == nil {
		req.Header = http.Header{}
	}
	oc.decision = h.cfg.Policy.Admit(req.Header.Get("Origin"), req.Header.Get("Referer"), req.Query)
	cors := corsHeaders(oc.decision)

	if req.Method == http.MethodOptions {
		oc.name, oc.status = "preflight", http.StatusNoContent
		return Response{Status: http.StatusNoContent, Header: h.preflightHeaders(cors)}
	}

	res, err := h.submit(logger.WithContext(ctx, log), req, oc)
	if err != nil {
		var se *StatusError
		if !errors.As(err, &se) {
			se = &StatusError{Status: http.StatusInternalServerError, Message: "server error", Outcome: "error", Err: err}
		}
		oc.name, oc.status, oc.via = se.Outcome, se.Status, se.Via
		switch {
		case se.Status >= http.StatusInternalServerError:
			log.Errorw("signup failed", "status", se.Status, "via", se.Via, "err", se.Err)
		case se.Err != nil:
			log.Debugw("signup rejected", "status", se.Status, "err", se.Err)
		}
		r := h.errorResponse(se, cors)
		if se.Status == http.StatusMethodNotAllowed {
			r.Header.Set("Allow", allowMethods)
		}
		return r
	}

	if res == nil {
		oc.name, oc.status = "honeypot", http.StatusNoContent
		return Response{Status: http.StatusNoContent, Header: cors}
	}

	oc.name, oc.status, oc.via = "ok", http.StatusOK, res.Via
	return h.jsonResponse(http.StatusOK, body{OK: true, ID: res.ID, Via: res.Via}, cors)
}

// submit runs steps 2 through 8.  A nil Result with a nil error means the
// honeypot fired.
func (h *Handler) submit(ctx context.Context, req Request, oc *outcome) (*storage.Result, error) {
	if req.Method != http.MethodPost {
		return nil, errMethod
	}
	if !oc.decision.Admitted() {
		return nil, errForbidden
	}
	if !h.cfg.Store.Configured() {
		return nil, errMisconfigured
	}
	if req.Oversize {
		return nil, errTooLarge
	}
	if req.BodyErr != nil {
		return nil, &StatusError{Status: errBadBody.Status, Message: errBadBody.Message,
			Outcome: errBadBody.Outcome, Err: req.BodyErr}
	}

	raw, err := form.DecodeBody(req.Body, req.Base64)
	if err != nil {
		return nil, errUnsupported
	}
	if int64(len(raw)) > h.cfg.MaxBodyBytes {
		return nil, errTooLarge
	}
	p, err := form.Decode(req.Header.Get("Content-Type"), raw)
	if err != nil {
		return nil, errUnsupported
	}

	ip := requestinfo.ClientIP(req.Header, h.cfg.ClientIPHeader)
	if ip == "" {
		ip = req.RemoteIP
	}
	userAgent := req.Header.Get("User-Agent")
	oc.info = requestinfo.Describe(ip, userAgent, h.cfg.Geo)

	if h.cfg.Normalizer.Form().IsBot(p) {
		return nil, nil
	}

	rec, err := h.cfg.Normalizer.Normalize(p, signup.Meta{IP: ip, UA: userAgent})
	if err != nil {
		return nil, fromNormalize(err)
	}
	oc.email, oc.message = rec.Email, signup.Value(rec.Message)

	res, err := h.cfg.Store.Write(ctx, rec)
	if err != nil {
		return nil, fromStorage(err)
	}
	return &res, nil
}

/*──────────────────────────── responses ───────────────────────────────────*/

type body struct {
	OK    bool   `json:"ok"`
	ID    string `json:"id,omitempty"`
	Via   string `json:"via,omitempty"`
	Error string `json:"error,omitempty"`
}

func (h *Handler) errorResponse(se *StatusError, cors http.Header) Response {
	return h.jsonResponse(se.Status, body{OK: false, Via: se.Via, Error: se.Message}, cors)
}

func (h *Handler) jsonResponse(status int, b body, cors http.Header) Response {
	hdr := cors.Clone()
	if hdr == nil {
		hdr = http.Header{}
	}
	hdr.Set("Content-Type", "application/json; charset=utf-8")
	hdr.Set("Cache-Control", "no-store")
	raw, _ := json.Marshal(b)
	return Response{Status: status, Header: hdr, Body: raw}
}

// corsHeaders grants CORS only to an allowed browser origin.  Vary is
// always set so shared caches key on Origin.
func corsHeaders(d acl.Decision) http.Header {
	h := http.Header{}
	h.Set("Vary", "Origin")
	if d.OriginOK {
		h.Set("Access-Control-Allow-Origin", d.Origin)
		h.Set("Access-Control-Allow-Methods", allowMethods)
		h.Set("Access-Control-Allow-Headers", allowHeaders)
	}
	return h
}

func (h *Handler) preflightHeaders(cors http.Header) http.Header {
	if h.cfg.Preflight == PreflightPermissive {
		cors.Set("Access-Control-Allow-Origin", "*")
		cors.Set("Access-Control-Allow-Methods", allowMethods)
		cors.Set("Access-Control-Allow-Headers", allowHeaders)
	}
	if cors.Get("Access-Control-Allow-Origin") != "" {
		cors.Set("Access-Control-Max-Age", maxAge)
	}
	return cors
}

/*──────────────────────────── logging ─────────────────────────────────────*/

func (h *Handler) logOutcome(log *zap.SugaredLogger, oc *outcome, d time.Duration) {
	r := h.cfg.Redact
	log.Infow("signup request",
		"outcome", oc.name,
		"status", oc.status,
		"via", oc.via,
		"origin", oc.decision.Origin,
		"webhook", oc.decision.Webhook,
		"email", r.Email(oc.email),
		"message", r.Text(oc.message),
		"ip", r.IP(oc.info.IP),
		"browser", oc.info.UA.Browser,
		"bot", oc.info.UA.IsBot,
		"country", oc.info.Country,
		"duration_ms", d.Milliseconds(),
	)
}
