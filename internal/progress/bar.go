package progress

import (
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Bar is an interactive Observer that draws a terminal progress bar with
// byte counts. The underlying bar is created on the first chunk, once the
// total size is known.
type Bar struct {
	out         io.Writer
	description string
	bar         *progressbar.ProgressBar
}

// NewBar creates a Bar writing to w (os.Stderr when nil).
func NewBar(w io.Writer, description string) *Bar {
	if w == nil {
		w = os.Stderr
	}
	return &Bar{out: w, description: description}
}

// OnChunk advances the bar by received bytes.
func (b *Bar) OnChunk(received, chunkSize int, total int64) {
	if b.bar == nil {
		limit := total
		if limit < 0 {
			limit = -1 // spinner
		}
		b.bar = progressbar.NewOptions64(limit,
			progressbar.OptionSetWriter(b.out),
			progressbar.OptionSetDescription(b.description),
			progressbar.OptionShowBytes(true),
			progressbar.OptionShowCount(),
			progressbar.OptionSetPredictTime(false),
			progressbar.OptionShowElapsedTimeOnFinish(),
			progressbar.OptionOnCompletion(func() { io.WriteString(b.out, "\n") }),
		)
	}
	if received > 0 {
		b.bar.Add(received)
	}
}

// Finish completes the bar, if one was drawn.
func (b *Bar) Finish() error {
	if b.bar == nil {
		return nil
	}
	return b.bar.Finish()
}
