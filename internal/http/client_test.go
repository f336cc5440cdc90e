package http

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// fastOptions returns default options with millisecond backoff.
func fastOptions() Options {
	opts := DefaultOptions()
	opts.Retry.BackoffFactor = time.Millisecond
	opts.Retry.MaxBackoff = 5 * time.Millisecond
	return opts
}

func TestGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "5")
		w.Write([]byte("hello"))
	}))
	defer server.Close()

	client := NewClient(fastOptions())
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(body) != "hello" {
		t.Errorf("expected 'hello', got %q", body)
	}
	if resp.ContentLength != 5 {
		t.Errorf("expected content length 5, got %d", resp.ContentLength)
	}
	if resp.Retries != 0 {
		t.Errorf("expected 0 retries, got %d", resp.Retries)
	}
}

func TestHead(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodHead {
			t.Errorf("expected HEAD, got %s", r.Method)
		}
		w.Header().Set("Content-Length", "1024")
		w.Header().Set("ETag", `"abc123"`)
		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Last-Modified", "Sat, 01 Jan 2025 00:00:00 GMT")
	}))
	defer server.Close()

	client := NewClient(fastOptions())
	info, err := client.Head(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Head: %v", err)
	}

	if info.Size != 1024 {
		t.Errorf("expected size 1024, got %d", info.Size)
	}
	if info.ETag != "abc123" {
		t.Errorf("expected ETag 'abc123', got %s", info.ETag)
	}
	if !info.AcceptsRanges {
		t.Error("expected AcceptsRanges to be true")
	}
	if info.ContentType != "application/octet-stream" {
		t.Errorf("expected content-type 'application/octet-stream', got %s", info.ContentType)
	}
	if info.LastModified.IsZero() {
		t.Error("expected LastModified to be parsed")
	}
}

func TestNotFoundFailsWithoutRetry(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewClient(fastOptions())
	_, err := client.Get(context.Background(), server.URL)

	var herr *Error
	if !errors.As(err, &herr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if herr.Kind != KindStatus || herr.StatusCode != http.StatusNotFound {
		t.Errorf("expected status 404 error, got %v", herr)
	}
	if herr.Retries != 0 {
		t.Errorf("expected 0 retries, got %d", herr.Retries)
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestRetryOnServiceUnavailable(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(fastOptions())
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
	if resp.Retries != 2 {
		t.Errorf("expected 2 retries, got %d", resp.Retries)
	}
}

func TestStatusBudgetExhausted(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(fastOptions())
	_, err := client.Get(context.Background(), server.URL)

	var herr *Error
	if !errors.As(err, &herr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if herr.Kind != KindStatus || herr.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502 status error, got %v", herr)
	}
	if herr.Retries != 2 {
		t.Errorf("expected 2 retries, got %d", herr.Retries)
	}
	if !errors.Is(err, ErrServerError) {
		t.Errorf("expected ErrServerError, got %v", err)
	}
	// One initial attempt plus the status budget.
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestNonForcelistServerErrorNotRetried(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotImplemented)
	}))
	defer server.Close()

	client := NewClient(fastOptions())
	if _, err := client.Get(context.Background(), server.URL); err == nil {
		t.Fatal("expected error for 501")
	}
	if attempts.Load() != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts.Load())
	}
}

func TestForcelist(t *testing.T) {
	policy := DefaultRetryPolicy()
	for _, code := range []int{413, 429, 500, 502, 503, 504} {
		if !policy.Retryable(code) {
			t.Errorf("expected %d to be retryable", code)
		}
	}
	for _, code := range []int{200, 301, 400, 401, 403, 404, 501} {
		if policy.Retryable(code) {
			t.Errorf("expected %d not to be retryable", code)
		}
	}
}

func TestConnectBudgetExhausted(t *testing.T) {
	// Grab a free port and close it so connections are refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	opts := fastOptions()
	opts.Retry.Connect = 2
	client := NewClient(opts)

	_, err = client.Get(context.Background(), "http://"+addr+"/file")

	var herr *Error
	if !errors.As(err, &herr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if herr.Kind != KindConnect {
		t.Errorf("expected connect error, got %s", herr.Kind)
	}
	if herr.Retries != 2 {
		t.Errorf("expected 2 retries, got %d", herr.Retries)
	}
}

func TestTotalBudgetCapsRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	opts := fastOptions()
	opts.Retry.Status = 10
	opts.Retry.Total = 1
	client := NewClient(opts)

	if _, err := client.Get(context.Background(), server.URL); err == nil {
		t.Fatal("expected error")
	}
	if attempts.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts.Load())
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func TestInjectedTransportConnectFailureRecovers(t *testing.T) {
	var attempts int
	opts := fastOptions()
	opts.Transport = roundTripFunc(func(r *http.Request) (*http.Response, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("connection refused")
		}
		return &http.Response{
			StatusCode:    http.StatusOK,
			ContentLength: 2,
			Body:          io.NopCloser(strings.NewReader("ok")),
			Header:        make(http.Header),
			Request:       r,
		}, nil
	})

	client := NewClient(opts)
	resp, err := client.Get(context.Background(), "http://example.invalid/file")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if resp.Retries != 1 {
		t.Errorf("expected 1 retry, got %d", resp.Retries)
	}
}

func TestRedirectFollowed(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("moved"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client := NewClient(fastOptions())
	resp, err := client.Get(context.Background(), server.URL+"/old")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	defer resp.Body.Close()

	if !strings.HasSuffix(resp.FinalURL, "/new") {
		t.Errorf("expected final URL to end with /new, got %s", resp.FinalURL)
	}
	if resp.Retries != 0 {
		t.Errorf("redirects must not consume retries, got %d", resp.Retries)
	}
}

func TestRedirectLoopCapped(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, r.URL.Path, http.StatusFound)
	}))
	defer server.Close()

	opts := fastOptions()
	opts.Retry.MaxRedirects = 3
	client := NewClient(opts)

	_, err := client.Get(context.Background(), server.URL+"/loop")

	var herr *Error
	if !errors.As(err, &herr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if herr.Kind != KindRedirect {
		t.Errorf("expected redirect error, got %s", herr.Kind)
	}
	if !errors.Is(err, ErrTooManyRedirects) {
		t.Errorf("expected ErrTooManyRedirects, got %v", err)
	}
	if hits.Load() != 4 {
		t.Errorf("expected 4 requests, got %d", hits.Load())
	}
}

func TestInvalidURL(t *testing.T) {
	client := NewClient(fastOptions())
	for _, u := range []string{"ftp://example.com/file", "not a url", "http://"} {
		_, err := client.Get(context.Background(), u)
		var herr *Error
		if !errors.As(err, &herr) || herr.Kind != KindInvalid {
			t.Errorf("Get(%q): expected invalid error, got %v", u, err)
		}
	}
}

func TestBackoffSchedule(t *testing.T) {
	policy := RetryPolicy{BackoffFactor: time.Second, MaxBackoff: 5 * time.Second}
	b := policy.newBackOff()

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 5 * time.Second, 5 * time.Second}
	for i, w := range want {
		if got := b.NextBackOff(); got != w {
			t.Errorf("backoff %d = %v, want %v", i+1, got, w)
		}
	}
}

func TestBudgetConsume(t *testing.T) {
	policy := RetryPolicy{Total: 3, Connect: 2, Read: 1, Status: 5}
	b := policy.newBudget()

	if !b.consume(KindRead) {
		t.Fatal("expected first read retry to be allowed")
	}
	if b.consume(KindRead) {
		t.Fatal("expected read budget to be exhausted")
	}
	if !b.consume(KindConnect) || !b.consume(KindConnect) {
		t.Fatal("expected two connect retries")
	}
	if b.consume(KindStatus) {
		t.Fatal("expected total budget to be exhausted")
	}
	if b.consume(KindRedirect) {
		t.Fatal("redirects are never retried")
	}
	if b.used != 3 {
		t.Errorf("expected 3 used, got %d", b.used)
	}
}

func TestCleanETag(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{`"abc123"`, "abc123"},
		{`W/"abc123"`, "abc123"},
		{"abc123", "abc123"},
		{`""`, ""},
	}

	for _, tt := range tests {
		result := cleanETag(tt.input)
		if result != tt.expected {
			t.Errorf("cleanETag(%q) = %q, want %q", tt.input, result, tt.expected)
		}
	}
}

func TestContextCancellationDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	opts := DefaultOptions() // 30s backoff
	client := NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := client.Get(ctx, server.URL)

	var herr *Error
	if !errors.As(err, &herr) || herr.Kind != KindCanceled {
		t.Fatalf("expected canceled error, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Error("backoff did not honor cancellation")
	}
}

func TestRedirectTargetRefusedIsConnectError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	dead := "http://" + ln.Addr().String() + "/file"
	ln.Close()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, dead, http.StatusFound)
	}))
	defer server.Close()

	opts := fastOptions()
	opts.Retry.Connect = 1
	opts.Retry.Read = 0
	client := NewClient(opts)

	_, err = client.Get(context.Background(), server.URL)

	var herr *Error
	if !errors.As(err, &herr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if herr.Kind != KindConnect {
		t.Errorf("expected connect error, got %s", herr.Kind)
	}
	if herr.Retries != 1 {
		t.Errorf("expected 1 retry, got %d", herr.Retries)
	}
}

func TestRetryAfterHonored(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			w.Header().Set("Retry-After", "1")
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	client := NewClient(fastOptions())
	start := time.Now()
	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	resp.Body.Close()

	if elapsed := time.Since(start); elapsed < time.Second {
		t.Errorf("expected to wait at least 1s for Retry-After, waited %v", elapsed)
	}
	if resp.Retries != 1 {
		t.Errorf("expected 1 retry, got %d", resp.Retries)
	}
}

func TestRetryAfterDelay(t *testing.T) {
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		code  int
		value string
		want  time.Duration
	}{
		{"seconds", http.StatusServiceUnavailable, "7", 7 * time.Second},
		{"too many requests", http.StatusTooManyRequests, "2", 2 * time.Second},
		{"payload too large", http.StatusRequestEntityTooLarge, "3", 3 * time.Second},
		{"http date", http.StatusServiceUnavailable, now.Add(30 * time.Second).Format(http.TimeFormat), 30 * time.Second},
		{"date in the past", http.StatusServiceUnavailable, now.Add(-time.Minute).Format(http.TimeFormat), 0},
		{"negative", http.StatusServiceUnavailable, "-5", 0},
		{"garbage", http.StatusServiceUnavailable, "soon", 0},
		{"missing", http.StatusServiceUnavailable, "", 0},
		{"ignored status", http.StatusBadGateway, "9", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.value != "" {
				h.Set("Retry-After", tt.value)
			}
			if got := retryAfterDelay(tt.code, h, now); got != tt.want {
				t.Errorf("retryAfterDelay = %v, want %v", got, tt.want)
			}
		})
	}
}
