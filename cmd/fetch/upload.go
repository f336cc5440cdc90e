package main

import (
	"flag"
	"fmt"
	"os"
	"path"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/imager-service/worker/internal/config"
	"github.com/imager-service/worker/internal/progress"
)

// runUpload fetches a URL and stores it as an object in a bucket.
func runUpload(args []string) int {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)

	common := bindTransferFlags(fs)
	bucket := fs.String("bucket", "", "Destination bucket URL, e.g. s3://name or file:///dir (required)")
	object := fs.String("object", "", "Destination object key (required)")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: fetch upload [options]

Fetch a file from an HTTP URL and store it in object storage. A failed
transfer leaves no object behind.

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
	cfg = cfg.Merge(config.Config{Bucket: *bucket, Object: *object})

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		fs.Usage()
		return ExitInvalidArgs
	}
	if cfg.Bucket == "" || cfg.Object == "" {
		fmt.Fprintln(os.Stderr, "Error: -bucket and -object are required")
		fs.Usage()
		return ExitInvalidArgs
	}

	ctx, cancel := signalContext()
	defer cancel()

	fetcher, log, err := newFetcher(cfg, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}
	defer log.Sync()

	bkt, err := blob.OpenBucket(ctx, cfg.Bucket)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening bucket: %v\n", err)
		return ExitStorageError
	}
	defer bkt.Close()

	obs, finish := newObserver(cfg.Progress, os.Stdout, path.Base(cfg.Object))
	outcome := fetcher.Upload(ctx, cfg.URL, bkt, cfg.Object, obs)
	finish()
	if !outcome.OK() {
		fmt.Fprintf(os.Stderr, "Error: %v\n", outcome.Err)
		return exitCodeFor(outcome.Err)
	}

	fmt.Fprintf(os.Stderr, "[fetch] Uploaded %s to %s/%s\n", progress.FormatBytes(outcome.Size), cfg.Bucket, cfg.Object)
	return ExitSuccess
}
