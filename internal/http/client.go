package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/imager-service/worker/internal/logger"
)

// Options configures the HTTP client.
type Options struct {
	// Timeout bounds a whole request including the body read.
	// Default: 0 (transfers may be long; rely on ResponseHeaderTimeout)
	Timeout time.Duration

	// ResponseHeaderTimeout bounds the wait for response headers once the
	// request is written. Expiry counts against the read budget.
	// Default: 60s
	ResponseHeaderTimeout time.Duration

	// Retry is the retry policy applied to every request.
	Retry RetryPolicy

	// Transport overrides the round tripper, mainly for tests.
	Transport http.RoundTripper

	// UserAgent is sent with every request when non-empty.
	UserAgent string

	// Logger receives retry diagnostics.
	// Default: no-op
	Logger *zap.Logger
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		ResponseHeaderTimeout: 60 * time.Second,
		Retry:                 DefaultRetryPolicy(),
	}
}

// FileInfo contains metadata about a remote file.
type FileInfo struct {
	Size          int64 // -1 when unknown
	ETag          string
	AcceptsRanges bool
	ContentType   string
	LastModified  time.Time
}

// Response is a successful response whose body is ready to stream.
type Response struct {
	Body          io.ReadCloser
	ContentLength int64 // -1 when the server did not declare one
	ContentType   string
	StatusCode    int
	Retries       int
	FinalURL      string

	header http.Header
}

// Client is an HTTP client that retries transient failures.
type Client struct {
	client *http.Client
	opts   Options
	logger *zap.Logger
}

// NewClient creates a new HTTP client with the given options.
func NewClient(opts Options) *Client {
	transport := opts.Transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: opts.ResponseHeaderTimeout,
			IdleConnTimeout:       90 * time.Second,
		}
	}

	maxRedirects := opts.Retry.MaxRedirects
	return &Client{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return ErrTooManyRedirects
				}
				return nil
			},
		},
		opts:   opts,
		logger: logger.OrNop(opts.Logger),
	}
}

// Policy returns the client's retry policy.
func (c *Client) Policy() RetryPolicy {
	return c.opts.Retry
}

// Get performs a GET request, retrying per the client's policy.
// The caller must close the returned body.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	return c.do(ctx, http.MethodGet, url)
}

// Head performs a HEAD request to get file metadata.
func (c *Client) Head(ctx context.Context, url string) (*FileInfo, error) {
	resp, err := c.do(ctx, http.MethodHead, url)
	if err != nil {
		return nil, err
	}
	resp.Body.Close()

	info := &FileInfo{
		Size: resp.ContentLength,
	}
	if h := resp.header; h != nil {
		info.ETag = cleanETag(h.Get("ETag"))
		info.AcceptsRanges = h.Get("Accept-Ranges") == "bytes"
		info.ContentType = h.Get("Content-Type")
		if lm := h.Get("Last-Modified"); lm != "" {
			if t, err := http.ParseTime(lm); err == nil {
				info.LastModified = t
			}
		}
	}
	return info, nil
}

func (c *Client) do(ctx context.Context, method, rawURL string) (*Response, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, &Error{Kind: KindInvalid, URL: rawURL, Err: err}
	}

	policy := c.opts.Retry
	budget := policy.newBudget()
	delays := policy.newBackOff()

	for {
		resp, kind, err := c.attempt(ctx, method, rawURL)
		statusCode := 0
		var retryAfter time.Duration

		if err == nil {
			statusCode = resp.StatusCode
			if !policy.Retryable(statusCode) {
				if statusCode >= 400 {
					resp.Body.Close()
					return nil, &Error{
						Kind:       KindStatus,
						URL:        rawURL,
						StatusCode: statusCode,
						Retries:    budget.used,
						Err:        statusError(statusCode),
					}
				}
				finalURL := rawURL
				if resp.Request != nil {
					finalURL = resp.Request.URL.String()
				}
				return &Response{
					Body:          resp.Body,
					ContentLength: resp.ContentLength,
					ContentType:   resp.Header.Get("Content-Type"),
					StatusCode:    statusCode,
					Retries:       budget.used,
					FinalURL:      finalURL,
					header:        resp.Header,
				}, nil
			}

			retryAfter = retryAfterDelay(statusCode, resp.Header, time.Now())

			// Drain so the connection can be reused.
			io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
			resp.Body.Close()
			kind = KindStatus
			err = statusError(statusCode)
		}

		if !retryableKind(kind) || !budget.consume(kind) {
			return nil, &Error{
				Kind:       kind,
				URL:        rawURL,
				StatusCode: statusCode,
				Retries:    budget.used,
				Err:        err,
			}
		}

		wait := delays.NextBackOff()
		if retryAfter > wait {
			wait = retryAfter
		}
		c.logger.Warn("retrying request",
			zap.String("method", method),
			zap.String("url", rawURL),
			zap.Stringer("kind", kind),
			zap.Int("retry", budget.used),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)

		if err := sleep(ctx, wait); err != nil {
			return nil, &Error{Kind: KindCanceled, URL: rawURL, Retries: budget.used, Err: err}
		}
	}
}

// attempt performs a single request and classifies transport failures.
func (c *Client) attempt(ctx context.Context, method, url string) (*http.Response, ErrorKind, error) {
	var connected atomic.Bool
	// Reset on every hop so a failed redirect target counts as connect.
	trace := &httptrace.ClientTrace{
		GetConn: func(string) { connected.Store(false) },
		GotConn: func(httptrace.GotConnInfo) { connected.Store(true) },
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), method, url, nil)
	if err != nil {
		return nil, KindInvalid, fmt.Errorf("create request: %w", err)
	}
	if c.opts.UserAgent != "" {
		req.Header.Set("User-Agent", c.opts.UserAgent)
	}

	resp, err := c.client.Do(req)
	if err == nil {
		return resp, 0, nil
	}

	switch {
	case ctx.Err() != nil:
		return nil, KindCanceled, ctx.Err()
	case errors.Is(err, ErrTooManyRedirects):
		return nil, KindRedirect, err
	case connected.Load():
		return nil, KindRead, err
	default:
		return nil, KindConnect, err
	}
}

// retryAfterStatus are the codes whose Retry-After header is honored.
var retryAfterStatus = []int{
	http.StatusRequestEntityTooLarge,
	http.StatusTooManyRequests,
	http.StatusServiceUnavailable,
}

// retryAfterDelay returns the wait requested by a Retry-After header, given
// as seconds or an HTTP date, or 0 when there is none.
func retryAfterDelay(code int, h http.Header, now time.Time) time.Duration {
	if !slices.Contains(retryAfterStatus, code) {
		return 0
	}
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

func retryableKind(kind ErrorKind) bool {
	return kind == KindConnect || kind == KindRead || kind == KindStatus
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("parse url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// cleanETag removes quotes from an ETag value.
func cleanETag(etag string) string {
	etag = strings.TrimPrefix(etag, "W/")
	etag = strings.Trim(etag, `"`)
	return etag
}
