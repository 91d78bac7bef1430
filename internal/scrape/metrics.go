package scrape

import "github.com/prometheus/client_golang/prometheus"

type schedulerMetrics struct {
	scrapes        *prometheus.CounterVec
	scrapeErrors   *prometheus.CounterVec
	missedScrapes  prometheus.Counter
	inFlight       prometheus.Gauge
	activeLoops    prometheus.Gauge
	scrapeDuration prometheus.Histogram
	scrapedSamples prometheus.Histogram
}

func newSchedulerMetrics(reg prometheus.Registerer) *schedulerMetrics {
	m := &schedulerMetrics{
		scrapes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_scrapes_total",
			Help: "Number of completed scrapes by result.",
		}, []string{"result"}),
		scrapeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_scrape_errors_total",
			Help: "Number of failed scrapes by error kind.",
		}, []string{"kind"}),
		missedScrapes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vigil_missed_scrapes_total",
			Help: "Number of scrape ticks skipped because the previous fetch of the target was still in flight.",
		}),
		inFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_scrapes_in_flight",
			Help: "Number of scrapes currently executing.",
		}),
		activeLoops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vigil_scrape_loops",
			Help: "Number of running per-target scrape loops.",
		}),
		scrapeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vigil_scrape_duration_seconds",
			Help:    "Duration of completed scrapes.",
			Buckets: prometheus.DefBuckets,
		}),
		scrapedSamples: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vigil_scrape_samples",
			Help:    "Number of samples parsed per successful scrape.",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.scrapes, m.scrapeErrors, m.missedScrapes, m.inFlight,
			m.activeLoops, m.scrapeDuration, m.scrapedSamples,
		)
	}
	return m
}
