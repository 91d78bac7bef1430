package targets

import (
	"sort"
	"sync"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vigil-obs/vigil/internal/runtime/logging/level"
)

// EventType describes a change to the registry's target set.
type EventType int

const (
	// TargetAdded is emitted when a target appears in a snapshot for the
	// first time.
	TargetAdded EventType = iota
	// TargetUpdated is emitted when an already known target's metadata
	// changed on refresh.
	TargetUpdated
	// TargetRemoved is emitted after a target has been absent from enough
	// consecutive snapshots of its source.
	TargetRemoved
)

// Event is a change notification consumed by the scrape scheduler.
type Event struct {
	Type   EventType
	Target Target
}

// DefaultRemovalThreshold is the number of consecutive snapshots a target
// must be missing from before it is purged.
const DefaultRemovalThreshold = 3

const eventBuffer = 512

// Registry tracks the current target set. It is single-writer (discovery
// refresh calls Upsert) and multi-reader.
//
// Targets absent from a snapshot are not removed immediately; they are
// retained until they have been missing from removalThreshold consecutive
// snapshots of their source, so a flaky discovery refresh does not churn the
// scheduler.
type Registry struct {
	logger           log.Logger
	removalThreshold int

	events        chan Event
	droppedEvents prometheus.Counter
	activeTargets prometheus.Gauge

	mut     sync.RWMutex
	entries map[string]*entry
}

type entry struct {
	target Target
	// missed counts consecutive snapshots of the owning source that did not
	// include the target.
	missed int
}

// NewRegistry creates an empty registry. removalThreshold <= 0 falls back to
// DefaultRemovalThreshold.
func NewRegistry(logger log.Logger, removalThreshold int, reg prometheus.Registerer) *Registry {
	if removalThreshold <= 0 {
		removalThreshold = DefaultRemovalThreshold
	}

	r := &Registry{
		logger:           logger,
		removalThreshold: removalThreshold,
		events:           make(chan Event, eventBuffer),
		entries:          make(map[string]*entry),

		droppedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vigil_registry_dropped_events_total",
			Help: "Number of registry change events dropped because the event buffer was full.",
		}),
		activeTargets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_registry_targets",
			Help: "Number of targets currently tracked by the registry.",
		}),
	}
	if reg != nil {
		reg.MustRegister(r.droppedEvents, r.activeTargets)
	}
	return r
}

// Events returns the channel change notifications are delivered on. If a
// consumer falls far enough behind that the buffer fills up, events are
// dropped and counted; consumers are expected to resync from List
// periodically to recover.
func (r *Registry) Events() <-chan Event {
	return r.events
}

// Upsert applies a discovery snapshot from the named source, diffing it
// against the previous state. New targets are added immediately; targets of
// this source absent from the snapshot accumulate a miss and are purged once
// they hit the removal threshold. A target reported by two sources belongs
// to whichever source refreshed it most recently.
func (r *Registry) Upsert(source string, snapshot []Target) {
	r.mut.Lock()
	defer r.mut.Unlock()

	seen := make(map[string]struct{}, len(snapshot))
	for _, t := range snapshot {
		t.Source = source
		id := t.ID()
		if _, dup := seen[id]; dup {
			level.Warn(r.logger).Log("msg", "duplicate target in snapshot ignored", "source", source, "target", id)
			continue
		}
		seen[id] = struct{}{}

		e, ok := r.entries[id]
		if !ok {
			r.entries[id] = &entry{target: t}
			r.emit(Event{Type: TargetAdded, Target: t})
			continue
		}

		e.missed = 0
		if !e.target.NonIdentityEquals(t) {
			e.target = t
			r.emit(Event{Type: TargetUpdated, Target: t})
		}
	}

	for id, e := range r.entries {
		if e.target.Source != source {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		e.missed++
		if e.missed < r.removalThreshold {
			continue
		}
		delete(r.entries, id)
		r.emit(Event{Type: TargetRemoved, Target: e.target})
		level.Info(r.logger).Log("msg", "target removed", "source", source, "target", id, "missed_snapshots", e.missed)
	}

	r.activeTargets.Set(float64(len(r.entries)))
}

// List returns the current target set, ordered by ID for deterministic
// iteration.
func (r *Registry) List() []Target {
	r.mut.RLock()
	defer r.mut.RUnlock()

	out := make([]Target, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.target)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Get returns the target with the given ID.
func (r *Registry) Get(id string) (Target, bool) {
	r.mut.RLock()
	defer r.mut.RUnlock()

	e, ok := r.entries[id]
	if !ok {
		return Target{}, false
	}
	return e.target, true
}

func (r *Registry) emit(ev Event) {
	select {
	case r.events <- ev:
	default:
		r.droppedEvents.Inc()
	}
}
