// Package targets holds the model for scrape targets and the registry that
// tracks the currently discovered target set.
package targets

import (
	"fmt"
	"strings"
	"time"

	"github.com/prometheus/prometheus/model/labels"
)

// DefaultMetricsPath is the HTTP path scraped when a target does not declare
// one.
const DefaultMetricsPath = "/metrics"

// DefaultScheme is the URL scheme used when a target does not declare one.
const DefaultScheme = "http"

// Target is an addressable endpoint polled for metrics. Its identity is the
// (scheme, address, path) triple; everything else is metadata that may be
// refreshed by discovery.
type Target struct {
	// Address is the host:port to scrape.
	Address string
	// MetricsPath is the HTTP resource path metrics are fetched from.
	MetricsPath string
	// Scheme is the URL scheme used to fetch metrics.
	Scheme string

	// Labels is the label set attached to every sample scraped from the
	// target.
	Labels labels.Labels

	// Source names the discovery source that produced the target.
	Source string

	// Interval is how often the target is scraped. Zero means the global
	// default applies.
	Interval time.Duration
	// Timeout bounds a single scrape of the target. Zero means the global
	// default applies.
	Timeout time.Duration
}

// ID returns the stable identity of the target. Two targets with the same ID
// are the same target regardless of labels or source.
func (t Target) ID() string {
	return fmt.Sprintf("%s://%s%s", t.scheme(), t.Address, t.metricsPath())
}

// URL returns the fully qualified URL the target is scraped from.
func (t Target) URL() string {
	return t.ID()
}

// NonIdentityEquals reports whether the refreshable metadata of two targets
// is the same. Used to detect label refreshes for an already known target.
func (t Target) NonIdentityEquals(other Target) bool {
	return t.Source == other.Source &&
		t.Interval == other.Interval &&
		t.Timeout == other.Timeout &&
		labels.Equal(t.Labels, other.Labels)
}

// Validate checks that the target has a usable identity.
func (t Target) Validate() error {
	if t.Address == "" {
		return fmt.Errorf("target address must not be empty")
	}
	switch t.scheme() {
	case "http", "https":
	default:
		return fmt.Errorf("unsupported scheme %q for target %q", t.Scheme, t.Address)
	}
	if p := t.metricsPath(); !strings.HasPrefix(p, "/") {
		return fmt.Errorf("metrics path %q for target %q must start with /", p, t.Address)
	}
	return nil
}

func (t Target) scheme() string {
	if t.Scheme == "" {
		return DefaultScheme
	}
	return t.Scheme
}

func (t Target) metricsPath() string {
	if t.MetricsPath == "" {
		return DefaultMetricsPath
	}
	return t.MetricsPath
}
