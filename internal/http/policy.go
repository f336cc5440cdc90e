package http

import (
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy controls how failed requests are retried.
// It is read-only once handed to a Client.
type RetryPolicy struct {
	// Total caps the number of retries across all error classes.
	// Default: 6
	Total int

	// Connect is the retry budget for failures to establish a connection.
	// Default: 6
	Connect int

	// Read is the retry budget for failures after a connection was obtained
	// but before response headers arrived.
	// Default: 6
	Read int

	// Status is the retry budget for responses whose status code is in
	// StatusForcelist.
	// Default: 2
	Status int

	// BackoffFactor scales the wait before each retry. The wait before
	// retry n is BackoffFactor * 2^(n-1).
	// Default: 30s
	BackoffFactor time.Duration

	// MaxBackoff caps a single wait.
	// Default: 120s
	MaxBackoff time.Duration

	// StatusForcelist is the set of retryable status codes.
	StatusForcelist []int

	// MaxRedirects caps how many redirects a single request follows.
	// Redirects do not consume retry budget.
	// Default: 30
	MaxRedirects int
}

// DefaultStatusForcelist are the status codes retried by default.
var DefaultStatusForcelist = []int{413, 429, 500, 502, 503, 504}

// DefaultRetryPolicy returns the default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Total:           6,
		Connect:         6,
		Read:            6,
		Status:          2,
		BackoffFactor:   30 * time.Second,
		MaxBackoff:      120 * time.Second,
		StatusForcelist: slices.Clone(DefaultStatusForcelist),
		MaxRedirects:    30,
	}
}

// Retryable reports whether code is in the status forcelist.
func (p RetryPolicy) Retryable(code int) bool {
	return slices.Contains(p.StatusForcelist, code)
}

// newBackOff returns the delay schedule for one request.
func (p RetryPolicy) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.BackoffFactor
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = p.MaxBackoff
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// budget tracks the retries left for one request.
type budget struct {
	total   int
	byClass map[ErrorKind]int
	used    int
}

func (p RetryPolicy) newBudget() *budget {
	return &budget{
		total: p.Total,
		byClass: map[ErrorKind]int{
			KindConnect: p.Connect,
			KindRead:    p.Read,
			KindStatus:  p.Status,
		},
	}
}

// consume takes one retry from the total and the class budget.
// It returns false when either is exhausted.
func (b *budget) consume(kind ErrorKind) bool {
	left, ok := b.byClass[kind]
	if !ok || left <= 0 || b.total <= 0 {
		return false
	}
	b.byClass[kind] = left - 1
	b.total--
	b.used++
	return true
}
