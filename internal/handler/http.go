package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/yanizio/waitlist/internal/requestinfo"
)

// ServeHTTP adapts Handle to net/http.  The body read is capped at
// MaxBodyBytes; anything larger becomes a 413 once admission has passed,
// and a failed read becomes a 400.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req := Request{
		Method:   r.Method,
		Header:   r.Header,
		Query:    r.URL.Query(),
		RemoteIP: requestinfo.HostOnly(r.RemoteAddr),
	}

	if r.Method == http.MethodPost && r.Body != nil {
		raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.cfg.MaxBodyBytes))
		var tooBig *http.MaxBytesError
		switch {
		case errors.As(err, &tooBig):
			req.Oversize = true
		case err != nil:
			req.BodyErr = err
		default:
			req.Body = string(raw)
		}
	}

	resp := h.Handle(r.Context(), req)
	for k, vs := range resp.Header {
		w.Header()[k] = vs
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}
