package samples

import (
	"context"
	"time"

	"github.com/go-kit/log"

	"github.com/vigil-obs/vigil/internal/runtime/logging/level"
	"github.com/vigil-obs/vigil/internal/util/jitter"
)

// DefaultSweepInterval is how often the background sweep evicts aged
// samples when not configured otherwise.
const DefaultSweepInterval = 1 * time.Minute

// Sweeper periodically evicts samples older than the buffer's retention
// window. The lazy eviction on insert already bounds active series; this
// catches series whose targets stopped reporting.
type Sweeper struct {
	logger   log.Logger
	buffer   *Buffer
	interval time.Duration
}

// NewSweeper creates a Sweeper for the buffer. interval <= 0 falls back to
// DefaultSweepInterval.
func NewSweeper(logger log.Logger, buffer *Buffer, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Sweeper{logger: logger, buffer: buffer, interval: interval}
}

// Run sweeps until the context is canceled. Always returns nil.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := jitter.NewTicker(s.interval, s.interval/10)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			start := time.Now()
			s.buffer.Sweep(now)
			level.Debug(s.logger).Log("msg", "buffer sweep finished", "duration", time.Since(start))
		}
	}
}
