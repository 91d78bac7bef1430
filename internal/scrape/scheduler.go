package scrape

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
	"golang.org/x/sync/semaphore"

	"github.com/vigil-obs/vigil/internal/health"
	"github.com/vigil-obs/vigil/internal/runtime/logging/level"
	"github.com/vigil-obs/vigil/internal/samples"
	"github.com/vigil-obs/vigil/internal/targets"
	"github.com/vigil-obs/vigil/internal/util/jitter"
)

// resyncInterval is how often the scheduler reconciles its loops against the
// full registry listing, healing any change events lost to a full buffer.
const resyncInterval = 1 * time.Minute

// Options configures a Scheduler.
type Options struct {
	// DefaultInterval applies to targets that do not declare their own
	// scrape interval.
	DefaultInterval time.Duration
	// DefaultTimeout applies to targets that do not declare their own
	// scrape timeout.
	DefaultTimeout time.Duration
	// MaxInFlight caps concurrent scrapes across all targets. Due targets
	// beyond the cap wait; they are not dropped.
	MaxInFlight int
}

// Scheduler runs one scrape loop per registered target. Each loop ticks on
// its own jittered interval and keeps at most one fetch in flight: a tick
// that arrives while a fetch is still running is skipped and counted as a
// missed scrape, never queued.
//
// Completed outcomes update the health tracker first and the sample buffer
// second, so the query path never sees fresh samples for a target whose
// health still reflects an older scrape.
type Scheduler struct {
	logger   log.Logger
	opts     Options
	scraper  *Scraper
	registry *targets.Registry
	tracker  *health.Tracker
	buffer   *samples.Buffer
	inflight *semaphore.Weighted
	metrics  *schedulerMetrics

	mut   sync.Mutex
	loops map[string]*scrapeLoop
}

type scrapeLoop struct {
	target   targets.Target
	cancel   context.CancelFunc
	done     chan struct{}
	inFlight atomic.Bool
}

// NewScheduler creates a Scheduler. Loops start when Run observes the
// registry.
func NewScheduler(logger log.Logger, reg prometheus.Registerer, opts Options, scraper *Scraper, registry *targets.Registry, tracker *health.Tracker, buffer *samples.Buffer) *Scheduler {
	if opts.MaxInFlight < 1 {
		opts.MaxInFlight = 1
	}
	return &Scheduler{
		logger:   logger,
		opts:     opts,
		scraper:  scraper,
		registry: registry,
		tracker:  tracker,
		buffer:   buffer,
		inflight: semaphore.NewWeighted(int64(opts.MaxInFlight)),
		metrics:  newSchedulerMetrics(reg),
		loops:    make(map[string]*scrapeLoop),
	}
}

// Run consumes registry events and drives the per-target loops until the
// context is canceled. Always returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	s.sync(ctx)

	resync := time.NewTicker(resyncInterval)
	defer resync.Stop()

	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			return nil
		case ev := <-s.registry.Events():
			s.apply(ctx, ev)
		case <-resync.C:
			s.sync(ctx)
		}
	}
}

func (s *Scheduler) apply(ctx context.Context, ev targets.Event) {
	switch ev.Type {
	case targets.TargetAdded:
		s.startLoop(ctx, ev.Target)
	case targets.TargetUpdated:
		// Restart so new interval/timeout/labels take effect.
		s.stopLoop(ev.Target.ID(), false)
		s.startLoop(ctx, ev.Target)
	case targets.TargetRemoved:
		s.stopLoop(ev.Target.ID(), true)
	}
}

// sync reconciles running loops with the registry listing.
func (s *Scheduler) sync(ctx context.Context) {
	current := s.registry.List()

	want := make(map[string]targets.Target, len(current))
	for _, t := range current {
		want[t.ID()] = t
	}

	s.mut.Lock()
	var stale, changed []string
	for id, l := range s.loops {
		t, ok := want[id]
		if !ok {
			stale = append(stale, id)
			continue
		}
		if !l.target.NonIdentityEquals(t) {
			changed = append(changed, id)
		}
	}
	s.mut.Unlock()

	for _, id := range stale {
		s.stopLoop(id, true)
	}
	// Loops whose target metadata drifted are restarted too; this heals an
	// update event lost to a full registry channel.
	for _, id := range changed {
		s.stopLoop(id, false)
	}
	for _, t := range current {
		s.startLoop(ctx, t)
	}
}

// startLoop is a no-op when a loop for the target already runs.
func (s *Scheduler) startLoop(ctx context.Context, t targets.Target) {
	s.mut.Lock()
	defer s.mut.Unlock()

	id := t.ID()
	if _, ok := s.loops[id]; ok {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	l := &scrapeLoop{
		target: t,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.loops[id] = l
	s.metrics.activeLoops.Inc()
	go s.runLoop(loopCtx, l)

	level.Debug(s.logger).Log("msg", "scrape loop started", "target", id)
}

// stopLoop cancels the loop (and with it any in-flight fetch, whose outcome
// is discarded). forget additionally drops the target's health and samples.
func (s *Scheduler) stopLoop(id string, forget bool) {
	s.mut.Lock()
	l, ok := s.loops[id]
	if ok {
		delete(s.loops, id)
	}
	s.mut.Unlock()

	if !ok {
		return
	}

	l.cancel()
	<-l.done
	s.metrics.activeLoops.Dec()

	if forget {
		s.tracker.Forget(id)
		s.buffer.Drop(id)
		level.Info(s.logger).Log("msg", "scrape loop stopped", "target", id)
	}
}

func (s *Scheduler) stopAll() {
	s.mut.Lock()
	ids := make([]string, 0, len(s.loops))
	for id := range s.loops {
		ids = append(ids, id)
	}
	s.mut.Unlock()

	for _, id := range ids {
		s.stopLoop(id, false)
	}
}

func (s *Scheduler) runLoop(ctx context.Context, l *scrapeLoop) {
	defer close(l.done)

	interval := l.target.Interval
	if interval <= 0 {
		interval = s.opts.DefaultInterval
	}

	ticker := jitter.NewTicker(interval, interval/10)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	scrape := func() {
		// Marked in flight before the goroutine is scheduled so the next
		// tick cannot observe a stale false.
		l.inFlight.Store(true)
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.scrapeOnce(ctx, l, interval)
		}()
	}

	scrape()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if l.inFlight.Load() {
				// The previous fetch is still running; never queue a second
				// one for the same target.
				s.metrics.missedScrapes.Inc()
				continue
			}
			scrape()
		}
	}
}

// scrapeOnce runs a single fetch. The caller has already marked the loop in
// flight; the flag is cleared here once the fetch settles.
func (s *Scheduler) scrapeOnce(ctx context.Context, l *scrapeLoop, interval time.Duration) {
	defer l.inFlight.Store(false)

	// Backpressure: due targets wait for a slot instead of growing the
	// number of concurrent fetches without bound.
	if err := s.inflight.Acquire(ctx, 1); err != nil {
		return
	}
	defer s.inflight.Release(1)
	s.metrics.inFlight.Inc()
	defer s.metrics.inFlight.Dec()

	timeout := l.target.Timeout
	if timeout <= 0 {
		timeout = s.opts.DefaultTimeout
	}
	if timeout >= interval {
		timeout = interval - interval/10
	}

	start := time.Now()
	scrapeCtx, cancel := context.WithTimeout(ctx, timeout)
	scraped, err := s.scraper.Scrape(scrapeCtx, l.target, start)
	cancel()
	duration := time.Since(start)

	if ctx.Err() != nil {
		// The target was removed (or the scheduler is shutting down) while
		// the fetch was in flight; discard the outcome.
		return
	}

	s.publish(l.target, start, duration, scraped, err)
}

// publish applies a scrape outcome: health state first, samples second.
func (s *Scheduler) publish(t targets.Target, start time.Time, duration time.Duration, scraped []samples.Sample, scrapeErr error) {
	id := t.ID()

	if scrapeErr != nil {
		s.tracker.ObserveFailure(id, start, duration, scrapeErr)
		s.metrics.scrapes.WithLabelValues("failed").Inc()
		s.metrics.scrapeErrors.WithLabelValues(string(Classify(scrapeErr))).Inc()
		s.metrics.scrapeDuration.Observe(duration.Seconds())
		level.Debug(s.logger).Log("msg", "scrape failed", "target", id, "kind", Classify(scrapeErr), "err", scrapeErr)
		return
	}

	s.tracker.ObserveSuccess(id, start, duration)
	for _, sample := range scraped {
		if err := s.buffer.Append(sample); err != nil {
			if errors.Is(err, samples.ErrDuplicateTimestamp) {
				// Counted by the buffer; an anomaly worth surfacing, not an
				// error worth failing the scrape over.
				level.Warn(s.logger).Log("msg", "dropped duplicate sample", "target", id, "metric", sample.Metric, "ts", sample.Timestamp)
				continue
			}
			level.Warn(s.logger).Log("msg", "dropped sample", "target", id, "metric", sample.Metric, "err", err)
		}
	}
	s.metrics.scrapes.WithLabelValues("success").Inc()
	s.metrics.scrapeDuration.Observe(duration.Seconds())
	s.metrics.scrapedSamples.Observe(float64(len(scraped)))
}
