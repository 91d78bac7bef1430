// Package config implements the typed configuration surface of Vigil. All
// recognized options are enumerated here with defaults; validation runs at
// load time and reports every invalid field at once instead of stopping at
// the first.
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/alecthomas/units"
	"github.com/hashicorp/go-multierror"
	config_util "github.com/prometheus/common/config"
	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v2"

	"github.com/vigil-obs/vigil/internal/runtime/logging"
)

// Error is the fatal configuration error returned at startup. It aggregates
// every invalid field found during validation.
type Error struct {
	inner error
}

func (e *Error) Error() string { return "invalid configuration: " + e.inner.Error() }
func (e *Error) Unwrap() error { return e.inner }

// Config is the top-level configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server,omitempty"`
	Logging   logging.Options `yaml:"logging,omitempty"`
	Scrape    ScrapeConfig    `yaml:"scrape,omitempty"`
	Storage   StorageConfig   `yaml:"storage,omitempty"`
	Registry  RegistryConfig  `yaml:"registry,omitempty"`
	Discovery DiscoveryConfig `yaml:"discovery,omitempty"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	ListenAddress string `yaml:"listen_address,omitempty"`
}

// ScrapeConfig holds the global scrape options. Discovery blocks may
// override interval and timeout per target set.
type ScrapeConfig struct {
	// Interval is the default time between scrapes of a target.
	Interval model.Duration `yaml:"interval,omitempty"`
	// Timeout bounds a single scrape. Must be strictly less than the
	// interval it applies under.
	Timeout model.Duration `yaml:"timeout,omitempty"`
	// FailureThreshold is the number of consecutive failed scrapes after
	// which a target is marked down.
	FailureThreshold int `yaml:"failure_threshold,omitempty"`
	// MaxInFlight caps concurrent scrapes across all targets.
	MaxInFlight int `yaml:"max_in_flight,omitempty"`
	// BodySizeLimit fails scrapes whose uncompressed response body is
	// larger. 0 means no limit.
	BodySizeLimit units.Base2Bytes `yaml:"body_size_limit,omitempty"`

	HTTPClientConfig config_util.HTTPClientConfig `yaml:",inline"`
}

// StorageConfig bounds the in-memory sample buffer.
type StorageConfig struct {
	Retention           model.Duration `yaml:"retention,omitempty"`
	MaxSamplesPerTarget int            `yaml:"max_samples_per_target,omitempty"`
	SweepInterval       model.Duration `yaml:"sweep_interval,omitempty"`
}

// RegistryConfig configures target registry behavior.
type RegistryConfig struct {
	// RemovalThreshold is the number of consecutive discovery snapshots a
	// target must be absent from before it is purged.
	RemovalThreshold int `yaml:"removal_threshold,omitempty"`
}

// DiscoveryConfig enumerates the configured discovery sources.
type DiscoveryConfig struct {
	// RefreshInterval is the default time between refreshes of each source.
	RefreshInterval model.Duration `yaml:"refresh_interval,omitempty"`

	Static []StaticConfig `yaml:"static,omitempty"`
	File   []FileConfig   `yaml:"file,omitempty"`
	HTTP   []HTTPConfig   `yaml:"http,omitempty"`
}

// StaticConfig is a fixed list of targets.
type StaticConfig struct {
	Targets []string          `yaml:"targets"`
	Labels  map[string]string `yaml:"labels,omitempty"`

	MetricsPath    string         `yaml:"metrics_path,omitempty"`
	Scheme         string         `yaml:"scheme,omitempty"`
	ScrapeInterval model.Duration `yaml:"scrape_interval,omitempty"`
	ScrapeTimeout  model.Duration `yaml:"scrape_timeout,omitempty"`
}

// FileConfig re-reads target lists from files on each refresh.
type FileConfig struct {
	Files []string `yaml:"files"`

	RefreshInterval model.Duration `yaml:"refresh_interval,omitempty"`
	ScrapeInterval  model.Duration `yaml:"scrape_interval,omitempty"`
	ScrapeTimeout   model.Duration `yaml:"scrape_timeout,omitempty"`
}

// HTTPConfig polls an external directory endpoint for targets.
type HTTPConfig struct {
	URL string `yaml:"url"`

	RefreshInterval model.Duration `yaml:"refresh_interval,omitempty"`
	ScrapeInterval  model.Duration `yaml:"scrape_interval,omitempty"`
	ScrapeTimeout   model.Duration `yaml:"scrape_timeout,omitempty"`
}

// DefaultConfig is the configuration all loads start from.
var DefaultConfig = Config{
	Server: ServerConfig{
		ListenAddress: "127.0.0.1:9480",
	},
	Logging: logging.DefaultOptions,
	Scrape: ScrapeConfig{
		Interval:         model.Duration(1 * time.Minute),
		Timeout:          model.Duration(10 * time.Second),
		FailureThreshold: 3,
		MaxInFlight:      50,
		HTTPClientConfig: config_util.DefaultHTTPClientConfig,
	},
	Storage: StorageConfig{
		Retention:           model.Duration(15 * time.Minute),
		MaxSamplesPerTarget: 5000,
		SweepInterval:       model.Duration(1 * time.Minute),
	},
	Registry: RegistryConfig{
		RemovalThreshold: 3,
	},
	Discovery: DiscoveryConfig{
		RefreshInterval: model.Duration(1 * time.Minute),
	},
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *Config) UnmarshalYAML(unmarshal func(interface{}) error) error {
	*c = DefaultConfig
	type plain Config
	return unmarshal((*plain)(c))
}

// Load parses and validates a configuration file.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return LoadBytes(buf)
}

// LoadBytes parses and validates configuration from raw YAML.
func LoadBytes(buf []byte) (*Config, error) {
	cfg := DefaultConfig
	if err := yaml.UnmarshalStrict(buf, &cfg); err != nil {
		return nil, &Error{inner: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks every field and returns an *Error aggregating all
// violations, or nil.
func (c *Config) Validate() error {
	var errs *multierror.Error

	if c.Server.ListenAddress == "" {
		errs = multierror.Append(errs, fmt.Errorf("server.listen_address must not be empty"))
	} else if _, _, err := net.SplitHostPort(c.Server.ListenAddress); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("server.listen_address %q: %w", c.Server.ListenAddress, err))
	}

	if c.Scrape.Interval <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("scrape.interval must be positive, got %s", c.Scrape.Interval))
	}
	if c.Scrape.Timeout <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("scrape.timeout must be positive, got %s", c.Scrape.Timeout))
	}
	if c.Scrape.Timeout >= c.Scrape.Interval && c.Scrape.Interval > 0 && c.Scrape.Timeout > 0 {
		errs = multierror.Append(errs, fmt.Errorf("scrape.timeout (%s) must be strictly less than scrape.interval (%s)", c.Scrape.Timeout, c.Scrape.Interval))
	}
	if c.Scrape.FailureThreshold < 1 {
		errs = multierror.Append(errs, fmt.Errorf("scrape.failure_threshold must be at least 1, got %d", c.Scrape.FailureThreshold))
	}
	if c.Scrape.MaxInFlight < 1 {
		errs = multierror.Append(errs, fmt.Errorf("scrape.max_in_flight must be at least 1, got %d", c.Scrape.MaxInFlight))
	}
	if c.Scrape.BodySizeLimit < 0 {
		errs = multierror.Append(errs, fmt.Errorf("scrape.body_size_limit must not be negative, got %s", c.Scrape.BodySizeLimit))
	}
	if err := c.Scrape.HTTPClientConfig.Validate(); err != nil {
		errs = multierror.Append(errs, fmt.Errorf("scrape HTTP client config: %w", err))
	}

	if c.Storage.Retention <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("storage.retention must be positive, got %s", c.Storage.Retention))
	}
	if c.Storage.MaxSamplesPerTarget < 1 {
		errs = multierror.Append(errs, fmt.Errorf("storage.max_samples_per_target must be at least 1, got %d", c.Storage.MaxSamplesPerTarget))
	}
	if c.Storage.SweepInterval <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("storage.sweep_interval must be positive, got %s", c.Storage.SweepInterval))
	}

	if c.Registry.RemovalThreshold < 1 {
		errs = multierror.Append(errs, fmt.Errorf("registry.removal_threshold must be at least 1, got %d", c.Registry.RemovalThreshold))
	}

	if c.Discovery.RefreshInterval <= 0 {
		errs = multierror.Append(errs, fmt.Errorf("discovery.refresh_interval must be positive, got %s", c.Discovery.RefreshInterval))
	}
	for i, sc := range c.Discovery.Static {
		if len(sc.Targets) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("discovery.static[%d]: targets must not be empty", i))
		}
		for _, addr := range sc.Targets {
			if addr == "" {
				errs = multierror.Append(errs, fmt.Errorf("discovery.static[%d]: empty target address", i))
			}
		}
		for name := range sc.Labels {
			if !model.LabelName(name).IsValid() {
				errs = multierror.Append(errs, fmt.Errorf("discovery.static[%d]: invalid label name %q", i, name))
			}
		}
		errs = appendOverrideErrs(errs, fmt.Sprintf("discovery.static[%d]", i), sc.ScrapeInterval, sc.ScrapeTimeout, c.Scrape)
	}
	for i, fc := range c.Discovery.File {
		if len(fc.Files) == 0 {
			errs = multierror.Append(errs, fmt.Errorf("discovery.file[%d]: files must not be empty", i))
		}
		for _, f := range fc.Files {
			if f == "" {
				errs = multierror.Append(errs, fmt.Errorf("discovery.file[%d]: empty file path", i))
			}
		}
		errs = appendOverrideErrs(errs, fmt.Sprintf("discovery.file[%d]", i), fc.ScrapeInterval, fc.ScrapeTimeout, c.Scrape)
	}
	for i, hc := range c.Discovery.HTTP {
		u, err := url.Parse(hc.URL)
		switch {
		case hc.URL == "":
			errs = multierror.Append(errs, fmt.Errorf("discovery.http[%d]: url must not be empty", i))
		case err != nil:
			errs = multierror.Append(errs, fmt.Errorf("discovery.http[%d]: %w", i, err))
		case u.Scheme != "http" && u.Scheme != "https":
			errs = multierror.Append(errs, fmt.Errorf("discovery.http[%d]: unsupported scheme %q", i, u.Scheme))
		}
		errs = appendOverrideErrs(errs, fmt.Sprintf("discovery.http[%d]", i), hc.ScrapeInterval, hc.ScrapeTimeout, c.Scrape)
	}

	if err := errs.ErrorOrNil(); err != nil {
		return &Error{inner: err}
	}
	return nil
}

// appendOverrideErrs validates per-source scrape overrides against the
// timeout < interval invariant, falling back to globals for unset fields.
func appendOverrideErrs(errs *multierror.Error, prefix string, interval, timeout model.Duration, global ScrapeConfig) *multierror.Error {
	if interval < 0 {
		errs = multierror.Append(errs, fmt.Errorf("%s: scrape_interval must not be negative, got %s", prefix, interval))
	}
	if timeout < 0 {
		errs = multierror.Append(errs, fmt.Errorf("%s: scrape_timeout must not be negative, got %s", prefix, timeout))
	}
	effInterval := interval
	if effInterval == 0 {
		effInterval = global.Interval
	}
	effTimeout := timeout
	if effTimeout == 0 {
		effTimeout = global.Timeout
	}
	if effInterval > 0 && effTimeout > 0 && effTimeout >= effInterval {
		errs = multierror.Append(errs, fmt.Errorf("%s: scrape_timeout (%s) must be strictly less than scrape_interval (%s)", prefix, effTimeout, effInterval))
	}
	return errs
}
