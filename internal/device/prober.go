package device

import (
	"context"
	"errors"
	"os/exec"
	"runtime"

	"go.uber.org/zap"

	"github.com/imager-service/worker/internal/logger"
)

// Unknown is the capacity reported when no strategy succeeds.
const Unknown int64 = 0

// errNoMatch is logged when a strategy's source did not contain a size.
var errNoMatch = errors.New("no capacity found in output")

// Option configures a Prober.
type Option func(*Prober)

// WithRunner sets the command runner.
func WithRunner(r Runner) Option {
	return func(p *Prober) { p.runner = r }
}

// WithStrategies replaces the strategy list.
func WithStrategies(s ...Strategy) Option {
	return func(p *Prober) { p.strategies = s }
}

// WithGOOS overrides the operating system used to filter strategies.
func WithGOOS(goos string) Option {
	return func(p *Prober) { p.goos = goos }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(p *Prober) { p.logger = logger.OrNop(l) }
}

// Prober finds device capacities. It is stateless and safe for concurrent use.
type Prober struct {
	strategies []Strategy
	runner     Runner
	goos       string
	logger     *zap.Logger
}

// NewProber creates a Prober with the default strategies.
func NewProber(opts ...Option) *Prober {
	p := &Prober{
		strategies: DefaultStrategies(),
		runner:     ExecRunner{},
		goos:       runtime.GOOS,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Capacity returns the raw byte capacity of device, or Unknown.
func (p *Prober) Capacity(ctx context.Context, device string) int64 {
	for _, s := range p.strategies {
		if s.GOOS != "" && s.GOOS != p.goos {
			continue
		}

		out, err := s.Read(ctx, p.runner, device)
		if err != nil {
			p.logger.Warn("capacity probe failed",
				zap.String("strategy", s.Name),
				zap.String("device", device),
				zap.String("cause", failureCause(err)),
				zap.Error(err),
			)
			continue
		}

		size, ok := s.Parse(device, out)
		if !ok {
			p.logger.Warn("capacity probe failed",
				zap.String("strategy", s.Name),
				zap.String("device", device),
				zap.String("cause", "parse"),
				zap.Error(errNoMatch),
			)
			continue
		}

		p.logger.Debug("device capacity",
			zap.String("strategy", s.Name),
			zap.String("device", device),
			zap.Int64("bytes", size),
		)
		return size
	}

	return Unknown
}

// Fits reports whether need bytes fit on device. known is false when the
// capacity could not be determined, in which case fits is also false.
func (p *Prober) Fits(ctx context.Context, device string, need int64) (fits, known bool) {
	capacity := p.Capacity(ctx, device)
	if capacity == Unknown {
		return false, false
	}
	return need <= capacity, true
}

// Capacity probes device with the default Prober.
func Capacity(ctx context.Context, device string) int64 {
	return NewProber().Capacity(ctx, device)
}

// failureCause names the class of a strategy read error.
func failureCause(err error) string {
	var execErr *exec.Error
	var exitErr *exec.ExitError
	switch {
	case errors.As(err, &execErr):
		return "launch"
	case errors.As(err, &exitErr):
		return "exit"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "read"
	}
}
