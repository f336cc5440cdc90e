package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// UnknownSize is the total passed to observers when the server did not
// declare a content length.
const UnknownSize int64 = -1

// DefaultWidth is the rendered width of a Reporter bar, brackets included.
const DefaultWidth = 60

// Observer receives progress for a single transfer.
//
// received is the number of bytes in the chunk just read, chunkSize the
// configured chunk size and total the declared size or UnknownSize.
type Observer interface {
	OnChunk(received, chunkSize int, total int64)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(received, chunkSize int, total int64)

// OnChunk calls f.
func (f ObserverFunc) OnChunk(received, chunkSize int, total int64) {
	f(received, chunkSize, total)
}

type discard struct{}

func (discard) OnChunk(int, int, int64) {}

// Discard is an Observer that ignores all progress.
var Discard Observer = discard{}

// Options configures the progress reporter.
type Options struct {
	// Output is where to write progress output.
	// Default: os.Stdout
	Output io.Writer

	// Width is the bar width including the two bracket characters.
	// Default: 60
	Width int
}

// Reporter renders a dot progress bar, redrawing only when the rendered
// line changes.
type Reporter struct {
	out      io.Writer
	width    int
	current  int64
	lastLine string
	rendered bool
}

// NewReporter creates a reporter and immediately renders an empty bar.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Width < 3 {
		opts.Width = DefaultWidth
	}

	r := &Reporter{
		out:   opts.Output,
		width: opts.Width,
	}
	r.OnChunk(0, 0, 100)
	return r
}

// OnChunk accounts for a received chunk and redraws the bar if needed.
func (r *Reporter) OnChunk(received, chunkSize int, total int64) {
	if received > 0 {
		r.current += int64(received)
	}

	line := r.render(total)
	if r.rendered && line == r.lastLine {
		return
	}
	r.lastLine = line
	r.rendered = true
	fmt.Fprint(r.out, line)
}

// Current returns the cumulative number of bytes reported so far.
func (r *Reporter) Current() int64 {
	return r.current
}

func (r *Reporter) render(total int64) string {
	slots := r.width - 2

	switch {
	case total == UnknownSize:
		return "unknown size\n"
	case r.current >= total:
		return "[" + strings.Repeat(".", slots) + "] 100%\n"
	}

	ratio := float64(r.current) / float64(total)
	if ratio > 1 {
		ratio = 1
	}
	dots := min(int(ratio*float64(slots)), slots)
	percent := min(int(ratio*100), 100)

	return fmt.Sprintf("[%s%s] %d%%\r",
		strings.Repeat(".", dots),
		strings.Repeat(" ", slots-dots),
		percent,
	)
}
