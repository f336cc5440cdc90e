package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/imager-service/worker/internal/config"
	"github.com/imager-service/worker/internal/device"
	"github.com/imager-service/worker/internal/fetch"
	"github.com/imager-service/worker/internal/progress"
)

// runDownload fetches a URL into a local file.
func runDownload(args []string) int {
	fs := flag.NewFlagSet("download", flag.ContinueOnError)

	common := bindTransferFlags(fs)
	output := fs.String("output", "", "Destination file path (required)")
	algo := fs.String("checksum", "", "Print the file digest after download (md5, sha1, sha256, sha512)")
	expect := fs.String("expect", "", "Expected hex digest; a mismatch fails the download")
	dev := fs.String("device", "", "Refuse to download when the file does not fit on this device")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: fetch download [options]

Fetch a file from an HTTP URL into a local file. Transient failures are
retried with exponential backoff and the byte count is checked against
the declared Content-Length.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return parseError(err)
	}

	cfg, err := common.load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	cfg = cfg.Merge(config.Config{Output: *output, Checksum: *algo, Device: *dev})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		return ExitInvalidArgs
	}
	if cfg.Output == "" {
		fmt.Fprintln(os.Stderr, "Error: -output is required")
		fs.Usage()
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext()
	defer cancel()

	var finish func()
	fetcher, log, err := newFetcher(cfg, func() progress.Observer {
		obs, done := newObserver(cfg.Progress, os.Stdout, filepath.Base(cfg.Output))
		finish = done
		return obs
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	defer log.Sync()

	if cfg.Device != "" {
		if code := checkFits(ctx, fetcher, log, cfg.URL, cfg.Device); code != ExitSuccess {
			return code
		}
	}

	start := time.Now()
	outcome := fetcher.DownloadFile(ctx, cfg.URL, cfg.Output)
	if finish != nil {
		finish()
	}
	if !outcome.OK() {
		fmt.Fprintf(os.Stderr, "Error: %v\n", outcome.Err)
		return exitCodeFor(outcome.Err)
	}

	fmt.Fprintf(os.Stderr, "[fetch] Downloaded %s to %s in %s\n",
		progress.FormatBytes(outcome.Size), outcome.Path, progress.FormatDuration(time.Since(start)))

	if cfg.Checksum == "" && *expect == "" {
		return ExitSuccess
	}
	return reportChecksum(outcome.Path, cfg.Checksum, *expect)
}

// checkFits compares the declared size of url with the capacity of dev.
// Unknown sizes or capacities do not block the download.
func checkFits(ctx context.Context, fetcher *fetch.Fetcher, log *zap.Logger, url, dev string) int {
	info, err := fetcher.Client().Head(ctx, url)
	if err != nil {
		log.Warn("cannot determine remote size", zap.String("url", url), zap.Error(err))
		return ExitSuccess
	}
	if info.Size < 0 {
		log.Warn("remote size unknown, skipping capacity check", zap.String("url", url))
		return ExitSuccess
	}

	fits, known := device.NewProber(device.WithLogger(log)).Fits(ctx, dev, info.Size)
	if !known {
		log.Warn("device capacity unknown, skipping capacity check", zap.String("device", dev))
		return ExitSuccess
	}
	if !fits {
		fmt.Fprintf(os.Stderr, "Error: %s does not fit on %s\n", progress.FormatBytes(info.Size), dev)
		return ExitValidationFailed
	}
	return ExitSuccess
}
