package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/grafana/dskit/backoff"
	config_util "github.com/prometheus/common/config"

	"github.com/vigil-obs/vigil/internal/config"
	"github.com/vigil-obs/vigil/internal/targets"
	"github.com/vigil-obs/vigil/internal/useragent"
)

const httpSDMaxBodySize = 16 * 1024 * 1024

// HTTP is the label-query discovery variant: it polls an external directory
// endpoint that answers with a JSON list of target groups. A timeout or
// transport error fails the refresh with Unreachable, a malformed body with
// ParseFailure; either way the previous registry state stays in effect.
type HTTP struct {
	logger log.Logger
	name   string
	url    string
	client *http.Client
	ov     overrides
}

// NewHTTP builds an HTTP source from its configuration.
func NewHTTP(logger log.Logger, name string, cfg config.HTTPConfig) (*HTTP, error) {
	client, err := config_util.NewClientFromConfig(config_util.DefaultHTTPClientConfig, "http_sd")
	if err != nil {
		return nil, fmt.Errorf("building HTTP SD client: %w", err)
	}

	return &HTTP{
		logger: logger,
		name:   name,
		url:    cfg.URL,
		client: client,
		ov: overrides{
			interval: time.Duration(cfg.ScrapeInterval),
			timeout:  time.Duration(cfg.ScrapeTimeout),
		},
	}, nil
}

// Refresh implements Discoverer. Transport errors are retried a few times
// with backoff within the refresh; once retries are exhausted the whole
// refresh fails with Unreachable and is attempted again on the next cycle.
func (h *HTTP) Refresh(ctx context.Context) ([]targets.Target, error) {
	var (
		buf     []byte
		lastErr error
		boff    = backoff.New(ctx, backoff.Config{
			MinBackoff: 500 * time.Millisecond,
			MaxBackoff: 5 * time.Second,
			MaxRetries: 3,
		})
	)
	for boff.Ongoing() {
		buf, lastErr = h.fetch(ctx)
		if lastErr == nil {
			break
		}
		boff.Wait()
	}
	if lastErr != nil {
		return nil, &Error{Kind: Unreachable, Source: h.name, Err: lastErr}
	}
	if buf == nil {
		// Backoff never ran an attempt; the context is gone.
		return nil, &Error{Kind: Unreachable, Source: h.name, Err: ctx.Err()}
	}

	var groups []group
	if err := json.Unmarshal(buf, &groups); err != nil {
		return nil, &Error{Kind: ParseFailure, Source: h.name, Err: err}
	}

	var out []targets.Target
	for i, g := range groups {
		out = append(out, expand(h.logger, h.name, i, g, h.ov)...)
	}
	return out, nil
}

func (h *HTTP) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", useragent.Get())

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, httpSDMaxBodySize))
}
