// Package build holds build-time information injected by the release
// process. All fields are set via -ldflags and fall back to values that make
// development builds recognizable.
package build

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/common/version"
)

var (
	// Version is the version of the build. It is set to the release tag, or
	// to "v0.0.0" for untagged development builds.
	Version string

	Revision  = "unknown"
	Branch    = "unknown"
	BuildUser = "unknown"
	BuildDate = "unknown"
	GoVersion = runtime.Version()
)

// Injects the build-time information into prometheus/common/version so that
// both our collector and any vendored code reading it agree.
func init() {
	injectVersion()
}

func injectVersion() {
	Version = normalizeVersion(Version)

	version.Version = Version
	version.Revision = Revision
	version.Branch = Branch
	version.BuildUser = BuildUser
	version.BuildDate = BuildDate
}

// normalizeVersion normalizes the version string to always contain a "v"
// prefix. Non-semver strings are left untouched, and an empty version maps
// to v0.0.0.
func normalizeVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return "v0.0.0"
	}

	base := v
	if rest, found := strings.CutPrefix(v, "v"); found {
		base = rest
	}
	if !semverLike(base) {
		return v
	}
	return "v" + base
}

// semverLike reports whether s looks like MAJOR.MINOR.PATCH with optional
// pre-release and build metadata. It is intentionally looser than full
// semver; it only decides whether a "v" prefix should be forced.
func semverLike(s string) bool {
	if i := strings.IndexAny(s, "-+"); i >= 0 {
		s = s[:i]
	}
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, r := range p {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

// NewCollector returns a collector that exports metrics about current
// version information.
func NewCollector(program string) prometheus.Collector {
	return versioncollector.NewCollector(program)
}

// Print returns version information suitable for a --version flag.
func Print(program string) string {
	return fmt.Sprintf("%s, version %s (branch: %s, revision: %s)", program, Version, Branch, Revision)
}
