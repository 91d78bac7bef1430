package config

import (
	"testing"
	"time"

	"github.com/prometheus/common/model"
	"github.com/stretchr/testify/require"

	"github.com/vigil-obs/vigil/internal/runtime/logging"
)

func TestLoadBytesDefaults(t *testing.T) {
	cfg, err := LoadBytes([]byte(`{}`))
	require.NoError(t, err)

	require.Equal(t, "127.0.0.1:9480", cfg.Server.ListenAddress)
	require.Equal(t, logging.LevelInfo, cfg.Logging.Level)
	require.Equal(t, model.Duration(time.Minute), cfg.Scrape.Interval)
	require.Equal(t, model.Duration(10*time.Second), cfg.Scrape.Timeout)
	require.Equal(t, 3, cfg.Scrape.FailureThreshold)
	require.Equal(t, 50, cfg.Scrape.MaxInFlight)
	require.Equal(t, model.Duration(15*time.Minute), cfg.Storage.Retention)
	require.Equal(t, 5000, cfg.Storage.MaxSamplesPerTarget)
	require.Equal(t, 3, cfg.Registry.RemovalThreshold)
}

func TestLoadBytesOverrides(t *testing.T) {
	in := `
server:
  listen_address: 0.0.0.0:8080
logging:
  level: debug
  format: json
scrape:
  interval: 15s
  timeout: 5s
  body_size_limit: 10MiB
storage:
  retention: 5m
discovery:
  static:
    - targets: ["node1:9100", "node2:9100"]
      labels:
        env: prod
  file:
    - files: ["/etc/vigil/targets.yml"]
  http:
    - url: http://sd.internal:8080/targets
      scrape_interval: 30s
`
	cfg, err := LoadBytes([]byte(in))
	require.NoError(t, err)

	require.Equal(t, "0.0.0.0:8080", cfg.Server.ListenAddress)
	require.Equal(t, logging.LevelDebug, cfg.Logging.Level)
	require.Equal(t, logging.FormatJSON, cfg.Logging.Format)
	require.Equal(t, model.Duration(15*time.Second), cfg.Scrape.Interval)
	require.Equal(t, int64(10*1024*1024), int64(cfg.Scrape.BodySizeLimit))
	require.Equal(t, model.Duration(5*time.Minute), cfg.Storage.Retention)
	// Unset fields keep their defaults.
	require.Equal(t, 3, cfg.Scrape.FailureThreshold)

	require.Len(t, cfg.Discovery.Static, 1)
	require.Equal(t, []string{"node1:9100", "node2:9100"}, cfg.Discovery.Static[0].Targets)
	require.Len(t, cfg.Discovery.File, 1)
	require.Len(t, cfg.Discovery.HTTP, 1)
	require.Equal(t, model.Duration(30*time.Second), cfg.Discovery.HTTP[0].ScrapeInterval)
}

func TestLoadBytesUnknownField(t *testing.T) {
	_, err := LoadBytes([]byte("scrap:\n  interval: 15s\n"))
	require.Error(t, err)

	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)
}

func TestValidateReportsAllErrors(t *testing.T) {
	in := `
server:
  listen_address: "not-an-addr"
scrape:
  interval: 5s
  timeout: 10s
  failure_threshold: 0
storage:
  max_samples_per_target: -1
discovery:
  static:
    - targets: []
  http:
    - url: ftp://example.com/targets
`
	_, err := LoadBytes([]byte(in))
	require.Error(t, err)

	var cfgErr *Error
	require.ErrorAs(t, err, &cfgErr)

	// Every invalid field is reported, not just the first.
	msg := err.Error()
	require.Contains(t, msg, "server.listen_address")
	require.Contains(t, msg, "scrape.timeout")
	require.Contains(t, msg, "scrape.failure_threshold")
	require.Contains(t, msg, "storage.max_samples_per_target")
	require.Contains(t, msg, "discovery.static[0]")
	require.Contains(t, msg, "discovery.http[0]")
}

func TestValidateOverrideTimeoutAgainstGlobalInterval(t *testing.T) {
	in := `
discovery:
  static:
    - targets: ["node1:9100"]
      scrape_timeout: 2m
`
	_, err := LoadBytes([]byte(in))
	require.Error(t, err)
	require.Contains(t, err.Error(), "scrape_timeout")
}

func TestValidateOverrideIntervalAllowsLongTimeout(t *testing.T) {
	in := `
discovery:
  static:
    - targets: ["node1:9100"]
      scrape_interval: 5m
      scrape_timeout: 90s
`
	cfg, err := LoadBytes([]byte(in))
	require.NoError(t, err)
	require.Equal(t, model.Duration(5*time.Minute), cfg.Discovery.Static[0].ScrapeInterval)
}
