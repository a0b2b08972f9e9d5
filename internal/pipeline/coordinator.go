package pipeline

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/voltmetric/billscan/internal/fusion"
)

// ErrSuperseded is returned for a scan whose result was obsoleted by a
// newer submission before it completed.
var ErrSuperseded = errors.New("scan superseded by a newer submission")

// Coordinator serializes intent, not work: each submission gets a
// generation number, cancels the in-flight run, and only the newest
// generation may publish its result. A user re-photographing a bill makes
// the previous photo's answer worthless, so it is dropped rather than
// raced against.
type Coordinator struct {
	scanner *Scanner
	gen     atomic.Uint64

	mu        sync.Mutex
	cancelGen uint64
	cancel    context.CancelFunc
}

// NewCoordinator wraps scanner with supersession tracking.
func NewCoordinator(scanner *Scanner) *Coordinator {
	return &Coordinator{scanner: scanner}
}

// Scan runs one submission. If a newer submission arrives while this one
// is in flight, this run is cancelled and ErrSuperseded is returned.
func (c *Coordinator) Scan(ctx context.Context, img image.Image) (fusion.ConsumptionEstimate, *Report, error) {
	gen := c.gen.Add(1)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.mu.Lock()
	if c.cancel != nil {
		slog.Debug("superseding in-flight scan", "old", c.cancelGen, "new", gen)
		c.cancel()
	}
	c.cancelGen = gen
	c.cancel = cancel
	c.mu.Unlock()

	est, report, err := c.scanner.ScanImage(runCtx, img)

	c.mu.Lock()
	if c.cancelGen == gen {
		c.cancel = nil
	}
	c.mu.Unlock()

	// A newer submission bumps the generation before cancelling, so a
	// stale generation covers both the cancelled and the lost-race case.
	if c.gen.Load() != gen {
		return fusion.ConsumptionEstimate{}, nil, ErrSuperseded
	}
	return est, report, err
}

// Generation reports the newest submission number.
func (c *Coordinator) Generation() uint64 { return c.gen.Load() }
