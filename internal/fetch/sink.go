package fetch

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"gocloud.dev/blob"
)

// sink receives the body of one transfer. Exactly one of commit or abort is
// called, and both release every resource the sink holds.
type sink interface {
	Write(p []byte) (int, error)
	commit() error
	abort()
}

// fileSink writes to a local file. Partial files are removed on abort.
type fileSink struct {
	f    *os.File
	path string
}

func newFileSink(path string) (*fileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("open destination: %w", err)
	}
	return &fileSink{f: f, path: path}, nil
}

func (s *fileSink) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

func (s *fileSink) commit() error {
	if err := s.f.Close(); err != nil {
		os.Remove(s.path)
		return fmt.Errorf("close destination: %w", err)
	}
	return nil
}

func (s *fileSink) abort() {
	s.f.Close()
	os.Remove(s.path)
}

// memorySink accumulates the body in memory.
type memorySink struct {
	buf    bytes.Buffer
	reader *bytes.Reader
}

func (s *memorySink) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

func (s *memorySink) commit() error {
	s.reader = bytes.NewReader(s.buf.Bytes())
	return nil
}

func (s *memorySink) abort() {
	s.buf.Reset()
}

// blobSink streams into an object. Canceling the writer's context before
// Close discards the object.
type blobSink struct {
	w      *blob.Writer
	cancel context.CancelFunc
}

func newBlobSink(ctx context.Context, bucket *blob.Bucket, key string, contentType string) (*blobSink, error) {
	wctx, cancel := context.WithCancel(ctx)
	w, err := bucket.NewWriter(wctx, key, &blob.WriterOptions{ContentType: contentType})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open object %s: %w", key, err)
	}
	return &blobSink{w: w, cancel: cancel}, nil
}

func (s *blobSink) Write(p []byte) (int, error) {
	return s.w.Write(p)
}

func (s *blobSink) commit() error {
	defer s.cancel()
	if err := s.w.Close(); err != nil {
		return fmt.Errorf("close object: %w", err)
	}
	return nil
}

func (s *blobSink) abort() {
	s.cancel()
	s.w.Close()
}
