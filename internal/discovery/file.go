package discovery

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/go-kit/log"
	"gopkg.in/yaml.v2"

	"github.com/vigil-obs/vigil/internal/config"
	"github.com/vigil-obs/vigil/internal/targets"
)

// File re-reads a declared set of files on every refresh. Files hold a YAML
// (or JSON) list of target groups. A file that cannot be read fails the
// refresh with Unreachable, a file whose document does not parse fails it
// with ParseFailure; malformed groups inside a parseable document are
// skipped individually.
type File struct {
	logger log.Logger
	name   string
	files  []string
	ov     overrides
}

// NewFile builds a file source from its configuration.
func NewFile(logger log.Logger, name string, cfg config.FileConfig) *File {
	return &File{
		logger: logger,
		name:   name,
		files:  cfg.Files,
		ov: overrides{
			interval: time.Duration(cfg.ScrapeInterval),
			timeout:  time.Duration(cfg.ScrapeTimeout),
		},
	}
}

// Refresh implements Discoverer.
func (f *File) Refresh(context.Context) ([]targets.Target, error) {
	var out []targets.Target
	for _, path := range f.files {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, &Error{Kind: Unreachable, Source: f.name, Err: fmt.Errorf("reading %s: %w", path, err)}
		}

		var groups []group
		if err := yaml.Unmarshal(buf, &groups); err != nil {
			return nil, &Error{Kind: ParseFailure, Source: f.name, Err: fmt.Errorf("parsing %s: %w", path, err)}
		}

		for i, g := range groups {
			out = append(out, expand(f.logger, f.name, i, g, f.ov)...)
		}
	}
	return out, nil
}
