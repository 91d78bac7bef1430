package discovery

import (
	"context"
	"time"

	"github.com/go-kit/log"

	"github.com/vigil-obs/vigil/internal/config"
	"github.com/vigil-obs/vigil/internal/targets"
)

// Static is the fixed-list discovery variant. Refresh always returns the
// same set, built once at construction.
type Static struct {
	set []targets.Target
}

// NewStatic builds a static source from its configuration. Malformed entries
// are skipped with a log line, matching the behavior of the dynamic
// variants.
func NewStatic(logger log.Logger, name string, cfg config.StaticConfig) *Static {
	g := group{
		Targets: cfg.Targets,
		Labels:  cfg.Labels,
		Path:    cfg.MetricsPath,
		Scheme:  cfg.Scheme,
	}
	ov := overrides{
		interval: time.Duration(cfg.ScrapeInterval),
		timeout:  time.Duration(cfg.ScrapeTimeout),
	}
	return &Static{set: expand(logger, name, 0, g, ov)}
}

// Refresh implements Discoverer.
func (s *Static) Refresh(context.Context) ([]targets.Target, error) {
	out := make([]targets.Target, len(s.set))
	copy(out, s.set)
	return out, nil
}
