package handler

import (
	"errors"
	"net/http"

	"github.com/yanizio/waitlist/internal/signup"
	"github.com/yanizio/waitlist/internal/storage"
)

// StatusError carries the public status and message for a rejected
// request.  Err holds detail for server-side logs and never reaches the
// response body.
type StatusError struct {
	Status  int
	Message string
	Outcome string // metrics label
	Via     string // write path that failed last, if any
	Err     error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *StatusError) Unwrap() error { return e.Err }

var (
	errForbidden     = &StatusError{Status: http.StatusForbidden, Message: "forbidden", Outcome: "forbidden"}
	errMethod        = &StatusError{Status: http.StatusMethodNotAllowed, Message: "method not allowed", Outcome: "method"}
	errTooLarge      = &StatusError{Status: http.StatusRequestEntityTooLarge, Message: "payload too large", Outcome: "too_large"}
	errBadBody       = &StatusError{Status: http.StatusBadRequest, Message: "unreadable body", Outcome: "bad_body"}
	errUnsupported   = &StatusError{Status: http.StatusUnsupportedMediaType, Message: "unsupported content type", Outcome: "unsupported"}
	errMisconfigured = &StatusError{Status: http.StatusInternalServerError, Message: "server misconfigured", Outcome: "misconfigured"}
	errServer        = &StatusError{Status: http.StatusInternalServerError, Message: "server error", Outcome: "panic"}
)

// fromNormalize maps normalization failures onto 400s.
func fromNormalize(err error) *StatusError {
	msg := "invalid submission"
	if errors.Is(err, signup.ErrInvalidEmail) {
		msg = "invalid email"
	}
	return &StatusError{Status: http.StatusBadRequest, Message: msg, Outcome: "invalid", Err: err}
}

// fromStorage maps chain failures onto 500, 502, or 504.  The response
// names the stage that failed but never the driver error.
func fromStorage(err error) *StatusError {
	if errors.Is(err, storage.ErrUnavailable) {
		return &StatusError{Status: http.StatusInternalServerError, Message: "server misconfigured",
			Outcome: "misconfigured", Err: err}
	}

	se := &StatusError{Status: http.StatusInternalServerError, Message: "database write failed",
		Outcome: "storage_error", Err: err}
	var f *storage.Failure
	if errors.As(err, &f) {
		se.Via = f.Via
		switch f.Kind {
		case storage.KindUnreachable:
			se.Status, se.Message = http.StatusBadGateway, "database unreachable"
		case storage.KindTimeout:
			se.Status, se.Message = http.StatusGatewayTimeout, "database timeout"
		}
	}
	return se
}
