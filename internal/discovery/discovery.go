// Package discovery determines the current scrape target set from external
// sources. A failed refresh never clears previously discovered state; the
// manager only applies snapshots from successful refreshes.
package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/common/model"
	"github.com/prometheus/prometheus/model/labels"

	"github.com/vigil-obs/vigil/internal/runtime/logging/level"
	"github.com/vigil-obs/vigil/internal/targets"
)

// ErrorKind classifies why a refresh failed.
type ErrorKind string

const (
	// ParseFailure means the source was reachable but its content was
	// malformed at the document level.
	ParseFailure ErrorKind = "parse_failure"
	// Unreachable means the source could not be read at all.
	Unreachable ErrorKind = "unreachable"
)

// Error is a failed discovery refresh. The previous registry state stays in
// effect; the refresh is retried on the next scheduled cycle.
type Error struct {
	Kind   ErrorKind
	Source string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("discovery source %s: %s: %v", e.Source, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Discoverer produces a snapshot of the current target set.
type Discoverer interface {
	// Refresh returns the full target set of the source. An error means the
	// snapshot must not be applied; it does not invalidate earlier ones.
	Refresh(ctx context.Context) ([]targets.Target, error)
}

// group is the wire format shared by the file and HTTP variants: the
// prometheus SD target-group list, extended with optional per-group path and
// scheme.
type group struct {
	Targets []string          `yaml:"targets" json:"targets"`
	Labels  map[string]string `yaml:"labels,omitempty" json:"labels,omitempty"`
	Path    string            `yaml:"path,omitempty" json:"path,omitempty"`
	Scheme  string            `yaml:"scheme,omitempty" json:"scheme,omitempty"`
}

// overrides carries per-source scrape settings stamped onto every produced
// target.
type overrides struct {
	interval time.Duration
	timeout  time.Duration
}

// expand converts a target group into targets, skipping malformed entries
// individually rather than failing the refresh.
func expand(logger log.Logger, source string, idx int, g group, ov overrides) []targets.Target {
	if len(g.Targets) == 0 {
		level.Warn(logger).Log("msg", "skipping target group with no targets", "source", source, "group", idx)
		return nil
	}

	lset, err := buildLabels(g.Labels)
	if err != nil {
		level.Warn(logger).Log("msg", "skipping target group with invalid labels", "source", source, "group", idx, "err", err)
		return nil
	}

	out := make([]targets.Target, 0, len(g.Targets))
	for _, addr := range g.Targets {
		t := targets.Target{
			Address:     addr,
			MetricsPath: g.Path,
			Scheme:      g.Scheme,
			Labels:      lset,
			Interval:    ov.interval,
			Timeout:     ov.timeout,
		}
		if err := t.Validate(); err != nil {
			level.Warn(logger).Log("msg", "skipping malformed target", "source", source, "group", idx, "err", err)
			continue
		}
		out = append(out, t)
	}
	return out
}

func buildLabels(m map[string]string) (labels.Labels, error) {
	for name := range m {
		if !model.LegacyValidation.IsValidLabelName(name) {
			return labels.EmptyLabels(), fmt.Errorf("invalid label name %q", name)
		}
	}
	return labels.FromMap(m), nil
}
