// Package query implements the read-only query surface over the sample
// buffer, target registry and health tracker. Nothing in this package
// mutates state.
package query

import (
	"time"

	"github.com/prometheus/prometheus/model/labels"

	"github.com/vigil-obs/vigil/internal/samples"
	"github.com/vigil-obs/vigil/internal/targets"
)

// Store is the part of the sample buffer the querier reads.
type Store interface {
	Select(targetID, metric string, sel labels.Selector, start, end time.Time) []samples.Sample
	Latest(targetID, metric string, sel labels.Selector, at time.Time) (samples.Sample, bool)
}

// TargetLister is the part of the registry the querier reads.
type TargetLister interface {
	List() []targets.Target
}

// InstantResult is the per-target answer of an instant query. Absent means
// no sample existed at or before the query time within the target's
// staleness window.
type InstantResult struct {
	Sample samples.Sample
	Absent bool
}

// Querier answers point-in-time and range queries over buffered samples.
type Querier struct {
	registry        TargetLister
	store           Store
	defaultInterval time.Duration
}

// NewQuerier creates a Querier. defaultInterval is the staleness window for
// targets that do not declare their own scrape interval.
func NewQuerier(registry TargetLister, store Store, defaultInterval time.Duration) *Querier {
	return &Querier{
		registry:        registry,
		store:           store,
		defaultInterval: defaultInterval,
	}
}

// Range returns, per target, the ordered samples of every series matching
// metric and selector within [start, end]. Targets with no matching samples
// are omitted.
func (q *Querier) Range(metric string, sel labels.Selector, start, end time.Time) map[string][]samples.Sample {
	out := make(map[string][]samples.Sample)
	for _, t := range q.registry.List() {
		id := t.ID()
		if matched := q.store.Select(id, metric, sel, start, end); len(matched) > 0 {
			out[id] = matched
		}
	}
	return out
}

// Instant returns, per target, the latest matching sample at or before
// `at`. A sample older than one scrape interval of the target relative to
// `at` is stale and reported Absent rather than returned.
func (q *Querier) Instant(metric string, sel labels.Selector, at time.Time) map[string]InstantResult {
	out := make(map[string]InstantResult)
	for _, t := range q.registry.List() {
		var (
			id       = t.ID()
			interval = t.Interval
		)
		if interval <= 0 {
			interval = q.defaultInterval
		}

		s, ok := q.store.Latest(id, metric, sel, at)
		if !ok || at.Sub(s.Timestamp) > interval {
			out[id] = InstantResult{Absent: true}
			continue
		}
		out[id] = InstantResult{Sample: s}
	}
	return out
}
