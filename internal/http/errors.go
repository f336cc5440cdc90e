package http

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed request.
type ErrorKind int

const (
	// KindConnect means no connection to the server could be obtained.
	KindConnect ErrorKind = iota
	// KindRead means the connection failed before response headers arrived.
	KindRead
	// KindStatus means the server answered with a failure status.
	KindStatus
	// KindRedirect means the redirect cap was exceeded.
	KindRedirect
	// KindCanceled means the context ended.
	KindCanceled
	// KindInvalid means the request could not be built.
	KindInvalid
)

// String returns the string representation of the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindRead:
		return "read"
	case KindStatus:
		return "status"
	case KindRedirect:
		return "redirect"
	case KindCanceled:
		return "canceled"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Common errors.
var (
	ErrNotFound         = errors.New("http: resource not found")
	ErrForbidden        = errors.New("http: access forbidden")
	ErrUnauthorized     = errors.New("http: unauthorized")
	ErrServerError      = errors.New("http: server error")
	ErrTooManyRedirects = errors.New("http: too many redirects")
)

// Error is returned by Client when a request ultimately fails.
type Error struct {
	Kind       ErrorKind
	URL        string
	StatusCode int // set for KindStatus
	Retries    int // retries performed before giving up
	Err        error
}

func (e *Error) Error() string {
	if e.Kind == KindStatus {
		return fmt.Sprintf("http %s error: GET %s: status %d after %d retries: %v",
			e.Kind, e.URL, e.StatusCode, e.Retries, e.Err)
	}
	return fmt.Sprintf("http %s error: GET %s after %d retries: %v", e.Kind, e.URL, e.Retries, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// statusError returns the cause recorded for a failure status code.
func statusError(code int) error {
	switch {
	case code == 404:
		return ErrNotFound
	case code == 403:
		return ErrForbidden
	case code == 401:
		return ErrUnauthorized
	case code >= 500:
		return fmt.Errorf("%w: %d", ErrServerError, code)
	default:
		return fmt.Errorf("unexpected status code: %d", code)
	}
}
