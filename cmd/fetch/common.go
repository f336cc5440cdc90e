package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/imager-service/worker/internal/config"
	"github.com/imager-service/worker/internal/fetch"
	"github.com/imager-service/worker/internal/logger"
	"github.com/imager-service/worker/internal/progress"
)

// transferFlags are the flags shared by download and upload.
type transferFlags struct {
	configPath   *string
	url          *string
	chunkSize    *string
	progress     *string
	timeout      *time.Duration
	retryTotal   *int
	retryStatus  *int
	backoff      *time.Duration
	maxBackoff   *time.Duration
	maxRedirects *int
	logLevel     *string
	logFormat    *string
}

func bindTransferFlags(fs *flag.FlagSet) *transferFlags {
	return &transferFlags{
		configPath:   fs.String("config", "", "YAML configuration file"),
		url:          fs.String("url", "", "Source URL to download (required)"),
		chunkSize:    fs.String("chunk-size", "", "Read size per chunk (default 1KiB)"),
		progress:     fs.String("progress", "", "Progress style: dots, bar or none (default dots)"),
		timeout:      fs.Duration("timeout", 0, "Overall request timeout (default none)"),
		retryTotal:   fs.Int("retry-total", 0, "Total retry budget (default 6)"),
		retryStatus:  fs.Int("retry-status", 0, "Retry budget for retryable status codes (default 2)"),
		backoff:      fs.Duration("backoff-factor", 0, "Backoff factor; retry n waits factor*2^(n-1) (default 30s)"),
		maxBackoff:   fs.Duration("max-backoff", 0, "Cap on a single backoff wait (default 2m)"),
		maxRedirects: fs.Int("max-redirects", 0, "Redirects followed per request (default 30)"),
		logLevel:     fs.String("log-level", "", "Log level: debug, info, warn, error"),
		logFormat:    fs.String("log-format", "", "Log format: console or json"),
	}
}

// load builds the effective config: defaults, file, environment, flags.
func (f *transferFlags) load() (config.Config, error) {
	cfg := config.Default()
	if *f.configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(*f.configPath)
		if err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	override := config.Config{
		URL:      *f.url,
		Progress: *f.progress,
		Timeout:  *f.timeout,
		Retry: config.RetryConfig{
			Total:         *f.retryTotal,
			Status:        *f.retryStatus,
			BackoffFactor: *f.backoff,
			MaxBackoff:    *f.maxBackoff,
			MaxRedirects:  *f.maxRedirects,
		},
		Log: config.LogConfig{
			Level:  *f.logLevel,
			Format: *f.logFormat,
		},
	}
	if *f.chunkSize != "" {
		size, err := progress.ParseBytes(*f.chunkSize)
		if err != nil {
			return config.Config{}, fmt.Errorf("parse -chunk-size: %w", err)
		}
		override.ChunkSize = size
	}

	return cfg.Merge(override), nil
}

// newFetcher builds a Fetcher and logger from cfg. observers may be nil.
func newFetcher(cfg config.Config, observers func() progress.Observer) (*fetch.Fetcher, *zap.Logger, error) {
	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}

	opts := fetch.DefaultOptions()
	opts.HTTPOptions = cfg.HTTPOptions()
	opts.ChunkSize = int(cfg.ChunkSize)
	opts.Logger = log
	opts.NewObserver = observers
	return fetch.New(opts), log, nil
}

// newObserver returns the observer for style and a func to call once the
// transfer ends.
func newObserver(style string, w io.Writer, label string) (progress.Observer, func()) {
	switch style {
	case config.ProgressBar:
		bar := progress.NewBar(w, label)
		return bar, func() { _ = bar.Finish() }
	case config.ProgressNone:
		return progress.Discard, func() {}
	default:
		return progress.NewReporter(progress.Options{Output: w}), func() {}
	}
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\n[fetch] Received interrupt, shutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()

	return ctx, cancel
}

// exitCodeFor maps a transfer error to an exit code.
func exitCodeFor(err error) int {
	kind, ok := fetch.KindOf(err)
	if !ok {
		return ExitGeneralError
	}
	switch kind {
	case fetch.KindConnect, fetch.KindRead, fetch.KindStatus, fetch.KindRedirect:
		return ExitSourceError
	case fetch.KindSizeMismatch:
		return ExitValidationFailed
	case fetch.KindWrite:
		return ExitStorageError
	case fetch.KindInvalid:
		return ExitInvalidArgs
	default:
		return ExitGeneralError
	}
}

// parseError reports a flag parse failure; -h is not an error.
func parseError(err error) int {
	if errors.Is(err, flag.ErrHelp) {
		return ExitSuccess
	}
	return ExitInvalidArgs
}
