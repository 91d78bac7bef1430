package discovery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vigil-obs/vigil/internal/config"
	"github.com/vigil-obs/vigil/internal/runtime/logging/level"
	"github.com/vigil-obs/vigil/internal/targets"
	"github.com/vigil-obs/vigil/internal/util/jitter"
)

// refreshTimeoutFraction bounds a single refresh relative to its interval.
const refreshTimeoutFraction = 2

// Source is a named discoverer refreshed on its own cadence.
type Source struct {
	Name            string
	Discoverer      Discoverer
	RefreshInterval time.Duration
}

// Manager refreshes every source on its own schedule and applies successful
// snapshots to the registry. Failed refreshes are logged and counted; they
// never touch registry state.
type Manager struct {
	logger   log.Logger
	registry *targets.Registry
	sources  []Source

	refreshes       *prometheus.CounterVec
	refreshFailures *prometheus.CounterVec
}

// NewManager creates a Manager for the given sources.
func NewManager(logger log.Logger, reg prometheus.Registerer, registry *targets.Registry, sources []Source) *Manager {
	m := &Manager{
		logger:   logger,
		registry: registry,
		sources:  sources,

		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_discovery_refreshes_total",
			Help: "Number of completed discovery refreshes per source.",
		}, []string{"source"}),
		refreshFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_discovery_refresh_failures_total",
			Help: "Number of failed discovery refreshes per source.",
		}, []string{"source"}),
	}
	if reg != nil {
		reg.MustRegister(m.refreshes, m.refreshFailures)
	}
	return m
}

// Run refreshes all sources until the context is canceled. Always returns
// nil.
func (m *Manager) Run(ctx context.Context) error {
	var wg sync.WaitGroup
	for _, src := range m.sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			m.runSource(ctx, src)
		}(src)
	}
	wg.Wait()
	return nil
}

func (m *Manager) runSource(ctx context.Context, src Source) {
	ticker := jitter.NewTicker(src.RefreshInterval, src.RefreshInterval/10)
	defer ticker.Stop()

	m.refresh(ctx, src)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.refresh(ctx, src)
		}
	}
}

func (m *Manager) refresh(ctx context.Context, src Source) {
	refreshCtx, cancel := context.WithTimeout(ctx, src.RefreshInterval/refreshTimeoutFraction)
	defer cancel()

	snapshot, err := src.Discoverer.Refresh(refreshCtx)
	m.refreshes.WithLabelValues(src.Name).Inc()
	if err != nil {
		// Last known state stays in effect until a refresh succeeds.
		m.refreshFailures.WithLabelValues(src.Name).Inc()
		level.Warn(m.logger).Log("msg", "discovery refresh failed", "source", src.Name, "err", err)
		return
	}

	m.registry.Upsert(src.Name, snapshot)
	level.Debug(m.logger).Log("msg", "discovery refresh applied", "source", src.Name, "targets", len(snapshot))
}

// SourcesFromConfig builds the configured discovery sources. Source names
// follow the <variant>/<index> convention and double as the registry's
// source tags.
func SourcesFromConfig(logger log.Logger, cfg config.DiscoveryConfig) ([]Source, error) {
	defaultInterval := time.Duration(cfg.RefreshInterval)

	var sources []Source
	for i, sc := range cfg.Static {
		name := fmt.Sprintf("static/%d", i)
		sources = append(sources, Source{
			Name:            name,
			Discoverer:      NewStatic(log.With(logger, "discovery", name), name, sc),
			RefreshInterval: defaultInterval,
		})
	}
	for i, fc := range cfg.File {
		name := fmt.Sprintf("file/%d", i)
		interval := time.Duration(fc.RefreshInterval)
		if interval == 0 {
			interval = defaultInterval
		}
		sources = append(sources, Source{
			Name:            name,
			Discoverer:      NewFile(log.With(logger, "discovery", name), name, fc),
			RefreshInterval: interval,
		})
	}
	for i, hc := range cfg.HTTP {
		name := fmt.Sprintf("http/%d", i)
		interval := time.Duration(hc.RefreshInterval)
		if interval == 0 {
			interval = defaultInterval
		}
		disc, err := NewHTTP(log.With(logger, "discovery", name), name, hc)
		if err != nil {
			return nil, err
		}
		sources = append(sources, Source{
			Name:            name,
			Discoverer:      disc,
			RefreshInterval: interval,
		})
	}
	return sources, nil
}
