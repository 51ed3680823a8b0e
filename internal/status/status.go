package status

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrValidation     = errors.New("validation: input out of policy")
	ErrAuthRequired   = errors.New("auth: authenticated session required")
	ErrForbidden      = errors.New("auth: role not allowed")
	ErrRemoteRejected = errors.New("remote: request rejected")
	ErrNotFound       = errors.New("remote: resource not found")
	ErrTransport      = errors.New("transport: remote unavailable")
	ErrCodec          = errors.New("codec: rendering failed")
)

// RemoteError is a non-2xx answer from the remote API. Detail holds the
// server-provided `detail` message, verbatim, when the body carried one.
type RemoteError struct {
	StatusCode int
	Detail     string
}

func (e *RemoteError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("remote: status %d: %s", e.StatusCode, e.Detail)
	}
	return fmt.Sprintf("remote: status %d", e.StatusCode)
}

// Unwrap maps the status code onto the taxonomy so callers can use errors.Is.
func (e *RemoteError) Unwrap() error {
	switch {
	case e.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case e.StatusCode == http.StatusUnauthorized:
		return ErrAuthRequired
	case e.StatusCode == http.StatusForbidden:
		return ErrForbidden
	case e.StatusCode >= 500:
		return ErrTransport
	default:
		return ErrRemoteRejected
	}
}

// Message returns the text to show a user for err: the server detail when
// there is one, otherwise fallback.
func Message(err error, fallback string) string {
	var re *RemoteError
	if errors.As(err, &re) && re.Detail != "" {
		return re.Detail
	}
	return fallback
}
