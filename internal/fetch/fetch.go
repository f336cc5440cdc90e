package fetch

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"time"

	"go.uber.org/zap"
	"gocloud.dev/blob"

	fetchhttp "github.com/imager-service/worker/internal/http"
	"github.com/imager-service/worker/internal/logger"
	"github.com/imager-service/worker/internal/progress"
)

// DefaultChunkSize is the read size used when a request does not set one.
const DefaultChunkSize = 1024

// Options configures a Fetcher.
type Options struct {
	// HTTPOptions configures the retrying HTTP client.
	HTTPOptions fetchhttp.Options

	// ChunkSize is the default read size per chunk.
	// Default: 1024
	ChunkSize int

	// NewObserver builds the observer DownloadFile attaches to each
	// transfer. Called once per transfer.
	// Default: a dots Reporter on stdout
	NewObserver func() progress.Observer

	// Logger receives transfer diagnostics.
	// Default: no-op
	Logger *zap.Logger
}

// DefaultOptions returns options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		HTTPOptions: fetchhttp.DefaultOptions(),
		ChunkSize:   DefaultChunkSize,
	}
}

// Request describes one transfer. It is not modified by the Fetcher.
type Request struct {
	URL string

	// Destination is the local file to write. Empty means in memory.
	Destination string

	// ChunkSize overrides the fetcher's chunk size when positive.
	ChunkSize int

	// Observer is called once per chunk. Nil means progress.Discard.
	Observer progress.Observer
}

// Result describes a completed transfer.
type Result struct {
	Size int64

	// Path is the destination file, empty for in-memory transfers.
	Path string

	// Body holds in-memory transfers, positioned at the start.
	Body *bytes.Reader
}

// Outcome is the result of Fetch: either a success carrying the transferred
// size or a failure carrying Err, never both.
type Outcome struct {
	Size int64
	Path string
	Body *bytes.Reader
	Err  error
}

// OK reports whether the transfer succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Fetcher performs transfers. It holds no per-transfer state and is safe
// for concurrent use.
type Fetcher struct {
	client *fetchhttp.Client
	opts   Options
	logger *zap.Logger
}

// New creates a Fetcher.
func New(opts Options) *Fetcher {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.NewObserver == nil {
		opts.NewObserver = func() progress.Observer {
			return progress.NewReporter(progress.Options{Output: os.Stdout})
		}
	}
	log := logger.OrNop(opts.Logger)
	if opts.HTTPOptions.Logger == nil {
		opts.HTTPOptions.Logger = log
	}

	return &Fetcher{
		client: fetchhttp.NewClient(opts.HTTPOptions),
		opts:   opts,
		logger: log,
	}
}

// Client returns the underlying HTTP client.
func (f *Fetcher) Client() *fetchhttp.Client {
	return f.client
}

// Stream performs the transfer described by req.
func (f *Fetcher) Stream(ctx context.Context, req Request) (*Result, error) {
	if req.URL == "" {
		return nil, &Error{Kind: KindInvalid, Err: errors.New("url is required")}
	}

	resp, err := f.client.Get(ctx, req.URL)
	if err != nil {
		return nil, fromHTTP(req.URL, err)
	}
	defer resp.Body.Close()

	var s sink
	if req.Destination != "" {
		fs, err := newFileSink(req.Destination)
		if err != nil {
			return nil, &Error{Kind: KindWrite, URL: req.URL, Err: err}
		}
		s = fs
	} else {
		s = &memorySink{}
	}

	size, err := f.copy(ctx, req, resp, s)
	if err != nil {
		return nil, err
	}

	result := &Result{Size: size, Path: req.Destination}
	if ms, ok := s.(*memorySink); ok {
		result.Body = ms.reader
	}
	return result, nil
}

// Fetch performs the transfer and folds any error into the Outcome.
func (f *Fetcher) Fetch(ctx context.Context, req Request) Outcome {
	start := time.Now()

	result, err := f.Stream(ctx, req)
	if err != nil {
		f.logger.Error("transfer failed",
			zap.String("url", req.URL),
			zap.String("destination", req.Destination),
			zap.Error(err),
		)
		return Outcome{Err: err}
	}

	f.logger.Info("transfer complete",
		zap.String("url", req.URL),
		zap.String("destination", req.Destination),
		zap.Int64("bytes", result.Size),
		zap.Duration("elapsed", time.Since(start)),
	)
	return Outcome{Size: result.Size, Path: result.Path, Body: result.Body}
}

// DownloadFile fetches url into the file at path, reporting progress with a
// fresh observer from Options.NewObserver.
func (f *Fetcher) DownloadFile(ctx context.Context, url, path string) Outcome {
	return f.Fetch(ctx, Request{
		URL:         url,
		Destination: path,
		Observer:    f.opts.NewObserver(),
	})
}

// Upload fetches url into the object key of bucket. A failed transfer
// leaves no object behind.
func (f *Fetcher) Upload(ctx context.Context, url string, bucket *blob.Bucket, key string, obs progress.Observer) Outcome {
	req := Request{URL: url, Destination: key, Observer: obs}

	resp, err := f.client.Get(ctx, url)
	if err != nil {
		return f.fail(req, fromHTTP(url, err))
	}
	defer resp.Body.Close()

	s, err := newBlobSink(ctx, bucket, key, resp.ContentType)
	if err != nil {
		return f.fail(req, &Error{Kind: KindWrite, URL: url, Err: err})
	}

	size, err := f.copy(ctx, req, resp, s)
	if err != nil {
		return f.fail(req, err)
	}

	f.logger.Info("upload complete",
		zap.String("url", url),
		zap.String("object", key),
		zap.Int64("bytes", size),
	)
	return Outcome{Size: size, Path: key}
}

func (f *Fetcher) fail(req Request, err error) Outcome {
	f.logger.Error("transfer failed",
		zap.String("url", req.URL),
		zap.String("destination", req.Destination),
		zap.Error(err),
	)
	return Outcome{Err: err}
}

// copy streams resp into s chunk by chunk, then commits or aborts s.
func (f *Fetcher) copy(ctx context.Context, req Request, resp *fetchhttp.Response, s sink) (int64, error) {
	chunkSize := req.ChunkSize
	if chunkSize <= 0 {
		chunkSize = f.opts.ChunkSize
	}
	obs := req.Observer
	if obs == nil {
		obs = progress.Discard
	}

	total := resp.ContentLength
	if total < 0 {
		total = progress.UnknownSize
	}

	buf := make([]byte, chunkSize)
	var written int64
	truncated := false

	for {
		if err := ctx.Err(); err != nil {
			s.abort()
			return written, &Error{Kind: KindCanceled, URL: req.URL, Err: err}
		}

		n, readErr := readChunk(resp.Body, buf)
		if n > 0 {
			if _, err := s.Write(buf[:n]); err != nil {
				s.abort()
				return written, &Error{Kind: KindWrite, URL: req.URL, Err: err}
			}
			written += int64(n)
			obs.OnChunk(n, chunkSize, total)
		}

		if readErr == nil {
			continue
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if errors.Is(readErr, io.ErrUnexpectedEOF) && total > 0 {
			truncated = true
			break
		}
		s.abort()
		if ctx.Err() != nil {
			return written, &Error{Kind: KindCanceled, URL: req.URL, Err: ctx.Err()}
		}
		return written, &Error{Kind: KindRead, URL: req.URL, Err: readErr}
	}

	if total > 0 && written != total {
		s.abort()
		f.logger.Debug("size mismatch",
			zap.String("url", req.URL),
			zap.Int64("written", written),
			zap.Int64("declared", total),
			zap.Bool("truncated", truncated),
		)
		return written, sizeMismatch(req.URL, written, total)
	}

	if err := s.commit(); err != nil {
		return written, &Error{Kind: KindWrite, URL: req.URL, Err: err}
	}
	return written, nil
}

// readChunk fills buf from r. It returns a short count only together with
// the error that ended the stream.
func readChunk(r io.Reader, buf []byte) (int, error) {
	var n int
	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if err != nil {
			return n, err
		}
	}
	return n, nil
}
