// Package samples implements the short-horizon in-memory sample buffer.
// Samples are kept per series (target, metric, label set), ordered by
// timestamp, and bounded both by a retention window and by a per-target
// capacity.
package samples

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/model/labels"
)

// ErrDuplicateTimestamp is returned by Append when a sample for the same
// series and timestamp already exists. Duplicates indicate a clock or
// collector bug, so they are rejected rather than overwritten, and counted.
var ErrDuplicateTimestamp = errors.New("duplicate timestamp for series")

// Sample is a single scraped value.
type Sample struct {
	TargetID  string
	Metric    string
	Labels    labels.Labels
	Value     float64
	Timestamp time.Time
}

// Options configures a Buffer.
type Options struct {
	// Retention is how long samples are kept. Anything older than
	// now-Retention is evicted lazily on insert and by Sweep.
	Retention time.Duration
	// MaxSamplesPerTarget bounds memory independently of the retention
	// window. When a target is at capacity the oldest sample is evicted
	// first.
	MaxSamplesPerTarget int
}

// DefaultOptions holds the default buffer bounds.
var DefaultOptions = Options{
	Retention:           15 * time.Minute,
	MaxSamplesPerTarget: 5000,
}

// Buffer owns all buffered samples. Mutation is partitioned by target: each
// target has its own lock, so eviction or insertion for one target never
// blocks another. The outer lock only guards the target map itself.
type Buffer struct {
	opts Options

	duplicates      prometheus.Counter
	evictedAge      prometheus.Counter
	evictedCapacity prometheus.Counter
	bufferedSamples prometheus.Gauge

	mut     sync.RWMutex
	targets map[string]*targetBuffer
}

type targetBuffer struct {
	mut    sync.Mutex
	series map[string]*series
	total  int
}

type series struct {
	metric string
	lset   labels.Labels
	points []point
}

type point struct {
	ts  int64 // unix milliseconds
	val float64
}

// NewBuffer creates a Buffer. Zero option fields fall back to
// DefaultOptions.
func NewBuffer(opts Options, reg prometheus.Registerer) *Buffer {
	if opts.Retention <= 0 {
		opts.Retention = DefaultOptions.Retention
	}
	if opts.MaxSamplesPerTarget <= 0 {
		opts.MaxSamplesPerTarget = DefaultOptions.MaxSamplesPerTarget
	}

	b := &Buffer{
		opts:    opts,
		targets: make(map[string]*targetBuffer),

		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vigil_buffer_duplicate_timestamps_total",
			Help: "Number of samples rejected because their series already had a sample at the same timestamp.",
		}),
		evictedAge: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vigil_buffer_evicted_age_total",
			Help: "Number of samples evicted for exceeding the retention window.",
		}),
		evictedCapacity: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vigil_buffer_evicted_capacity_total",
			Help: "Number of samples evicted because their target hit its capacity limit.",
		}),
		bufferedSamples: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_buffer_samples",
			Help: "Number of samples currently buffered.",
		}),
	}
	if reg != nil {
		reg.MustRegister(b.duplicates, b.evictedAge, b.evictedCapacity, b.bufferedSamples)
	}
	return b
}

// Append inserts a sample. It fails with ErrDuplicateTimestamp when the
// series already holds a sample at the same timestamp. Before inserting, the
// target is brought under its capacity limit (oldest sample first) and the
// sample's own series is pruned of aged points.
func (b *Buffer) Append(s Sample) error {
	tb := b.target(s.TargetID)

	tb.mut.Lock()
	defer tb.mut.Unlock()

	key := seriesKey(s.Metric, s.Labels)
	sr, ok := tb.series[key]
	if !ok {
		sr = &series{metric: s.Metric, lset: s.Labels}
		tb.series[key] = sr
	}

	ts := s.Timestamp.UnixMilli()
	idx := sort.Search(len(sr.points), func(i int) bool { return sr.points[i].ts >= ts })
	if idx < len(sr.points) && sr.points[idx].ts == ts {
		b.duplicates.Inc()
		return ErrDuplicateTimestamp
	}

	// Capacity eviction runs before age eviction so memory stays bounded
	// even with a misconfigured retention window.
	for tb.total >= b.opts.MaxSamplesPerTarget {
		evicted := tb.evictOldest()
		b.evictedCapacity.Inc()
		b.bufferedSamples.Dec()
		// Re-locate the insertion point if we evicted from our own series.
		if evicted == sr {
			idx = sort.Search(len(sr.points), func(i int) bool { return sr.points[i].ts >= ts })
		}
	}

	aged := sr.evictOlderThan(time.Now().Add(-b.opts.Retention).UnixMilli())
	if aged > 0 {
		tb.total -= aged
		b.evictedAge.Add(float64(aged))
		b.bufferedSamples.Sub(float64(aged))
		idx = sort.Search(len(sr.points), func(i int) bool { return sr.points[i].ts >= ts })
	}

	sr.points = append(sr.points, point{})
	copy(sr.points[idx+1:], sr.points[idx:])
	sr.points[idx] = point{ts: ts, val: s.Value}
	tb.total++
	b.bufferedSamples.Inc()
	return nil
}

// Select returns the samples of every series of the target matching metric
// and selector within [start, end], ordered by timestamp per series.
func (b *Buffer) Select(targetID, metric string, sel labels.Selector, start, end time.Time) []Sample {
	tb, ok := b.lookup(targetID)
	if !ok {
		return nil
	}

	tb.mut.Lock()
	defer tb.mut.Unlock()

	var (
		out    []Sample
		fromMs = start.UnixMilli()
		toMs   = end.UnixMilli()
	)
	for _, sr := range tb.series {
		if sr.metric != metric || !sel.Matches(sr.lset) {
			continue
		}
		lo := sort.Search(len(sr.points), func(i int) bool { return sr.points[i].ts >= fromMs })
		for _, p := range sr.points[lo:] {
			if p.ts > toMs {
				break
			}
			out = append(out, Sample{
				TargetID:  targetID,
				Metric:    sr.metric,
				Labels:    sr.lset,
				Value:     p.val,
				Timestamp: time.UnixMilli(p.ts),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

// Latest returns the most recent sample at or before `at` across the
// target's series matching metric and selector.
func (b *Buffer) Latest(targetID, metric string, sel labels.Selector, at time.Time) (Sample, bool) {
	tb, ok := b.lookup(targetID)
	if !ok {
		return Sample{}, false
	}

	tb.mut.Lock()
	defer tb.mut.Unlock()

	var (
		best  Sample
		found bool
		atMs  = at.UnixMilli()
	)
	for _, sr := range tb.series {
		if sr.metric != metric || !sel.Matches(sr.lset) {
			continue
		}
		idx := sort.Search(len(sr.points), func(i int) bool { return sr.points[i].ts > atMs })
		if idx == 0 {
			continue
		}
		p := sr.points[idx-1]
		if !found || p.ts > best.Timestamp.UnixMilli() {
			best = Sample{
				TargetID:  targetID,
				Metric:    sr.metric,
				Labels:    sr.lset,
				Value:     p.val,
				Timestamp: time.UnixMilli(p.ts),
			}
			found = true
		}
	}
	return best, found
}

// TargetIDs returns the IDs of every target with buffered samples.
func (b *Buffer) TargetIDs() []string {
	b.mut.RLock()
	defer b.mut.RUnlock()

	out := make([]string, 0, len(b.targets))
	for id := range b.targets {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of buffered samples for the target.
func (b *Buffer) Len(targetID string) int {
	tb, ok := b.lookup(targetID)
	if !ok {
		return 0
	}
	tb.mut.Lock()
	defer tb.mut.Unlock()
	return tb.total
}

// Drop discards all samples of the target. Called on target removal.
func (b *Buffer) Drop(targetID string) {
	b.mut.Lock()
	tb, ok := b.targets[targetID]
	if ok {
		delete(b.targets, targetID)
	}
	b.mut.Unlock()

	if ok {
		tb.mut.Lock()
		b.bufferedSamples.Sub(float64(tb.total))
		// A fresh map keeps a racing Append holding the detached buffer
		// safe; its writes land in garbage instead of a nil map.
		tb.series, tb.total = make(map[string]*series), 0
		tb.mut.Unlock()
	}
}

// Sweep eagerly evicts samples older than the retention window across all
// targets. Each target is swept under its own lock, so a sweep never blocks
// inserts for other targets.
func (b *Buffer) Sweep(now time.Time) {
	cutoff := now.Add(-b.opts.Retention).UnixMilli()

	b.mut.RLock()
	tbs := make([]*targetBuffer, 0, len(b.targets))
	for _, tb := range b.targets {
		tbs = append(tbs, tb)
	}
	b.mut.RUnlock()

	for _, tb := range tbs {
		tb.mut.Lock()
		for key, sr := range tb.series {
			if evicted := sr.evictOlderThan(cutoff); evicted > 0 {
				tb.total -= evicted
				b.evictedAge.Add(float64(evicted))
				b.bufferedSamples.Sub(float64(evicted))
			}
			if len(sr.points) == 0 {
				delete(tb.series, key)
			}
		}
		tb.mut.Unlock()
	}
}

func (b *Buffer) target(id string) *targetBuffer {
	b.mut.RLock()
	tb, ok := b.targets[id]
	b.mut.RUnlock()
	if ok {
		return tb
	}

	b.mut.Lock()
	defer b.mut.Unlock()
	if tb, ok = b.targets[id]; ok {
		return tb
	}
	tb = &targetBuffer{series: make(map[string]*series)}
	b.targets[id] = tb
	return tb
}

func (b *Buffer) lookup(id string) (*targetBuffer, bool) {
	b.mut.RLock()
	defer b.mut.RUnlock()
	tb, ok := b.targets[id]
	return tb, ok
}

// evictOldest removes the single oldest point of the target and returns the
// series it was removed from. Callers must hold the target lock.
func (tb *targetBuffer) evictOldest() *series {
	var oldest *series
	for _, sr := range tb.series {
		if len(sr.points) == 0 {
			continue
		}
		if oldest == nil || sr.points[0].ts < oldest.points[0].ts {
			oldest = sr
		}
	}
	if oldest == nil {
		return nil
	}
	oldest.points = oldest.points[1:]
	tb.total--
	return oldest
}

// evictOlderThan drops points strictly older than cutoff and reports how
// many were dropped.
func (sr *series) evictOlderThan(cutoff int64) int {
	idx := sort.Search(len(sr.points), func(i int) bool { return sr.points[i].ts >= cutoff })
	if idx == 0 {
		return 0
	}
	sr.points = append(sr.points[:0:0], sr.points[idx:]...)
	return idx
}

func seriesKey(metric string, lset labels.Labels) string {
	return metric + "\xff" + lset.String()
}
