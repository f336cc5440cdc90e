package fetch

import (
	"errors"
	"fmt"

	fetchhttp "github.com/imager-service/worker/internal/http"
)

// Kind classifies why a transfer failed.
type Kind int

const (
	KindConnect Kind = iota
	KindRead
	KindStatus
	KindRedirect
	KindSizeMismatch
	KindWrite
	KindCanceled
	KindInvalid
)

func (k Kind) String() string {
	switch k {
	case KindConnect:
		return "connect"
	case KindRead:
		return "read"
	case KindStatus:
		return "status"
	case KindRedirect:
		return "redirect"
	case KindSizeMismatch:
		return "size_mismatch"
	case KindWrite:
		return "write"
	case KindCanceled:
		return "canceled"
	case KindInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// ErrSizeMismatch is matched by errors.Is when the body length differs from
// the declared content length.
var ErrSizeMismatch = errors.New("downloaded size is different than expected")

// Error describes a failed transfer.
type Error struct {
	Kind Kind
	URL  string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, and false if err is not a transfer error.
func KindOf(err error) (Kind, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind, true
	}
	return 0, false
}

// fromHTTP converts a client error into a transfer error.
func fromHTTP(url string, err error) *Error {
	var herr *fetchhttp.Error
	if !errors.As(err, &herr) {
		return &Error{Kind: KindConnect, URL: url, Err: err}
	}

	kind := KindConnect
	switch herr.Kind {
	case fetchhttp.KindConnect:
		kind = KindConnect
	case fetchhttp.KindRead:
		kind = KindRead
	case fetchhttp.KindStatus:
		kind = KindStatus
	case fetchhttp.KindRedirect:
		kind = KindRedirect
	case fetchhttp.KindCanceled:
		kind = KindCanceled
	case fetchhttp.KindInvalid:
		kind = KindInvalid
	}
	return &Error{Kind: kind, URL: url, Err: err}
}

func sizeMismatch(url string, written, total int64) *Error {
	return &Error{
		Kind: KindSizeMismatch,
		URL:  url,
		Err:  fmt.Errorf("%w (%d vs %d)", ErrSizeMismatch, written, total),
	}
}
