// Package scrape owns the polling of targets: an HTTP scraper for the text
// exposition format and a scheduler that runs every target on its own
// cadence.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"syscall"
	"time"

	"github.com/alecthomas/units"
	dto "github.com/prometheus/client_model/go"
	config_util "github.com/prometheus/common/config"
	"github.com/prometheus/common/expfmt"
	"github.com/prometheus/common/model"
	"github.com/prometheus/prometheus/model/labels"

	"github.com/vigil-obs/vigil/internal/samples"
	"github.com/vigil-obs/vigil/internal/targets"
	"github.com/vigil-obs/vigil/internal/useragent"
)

// ErrorKind classifies a failed scrape for observability. Scrape failures
// are absorbed into outcome state; they are never returned to the caller of
// the scheduler.
type ErrorKind string

const (
	// KindTimeout means the fetch exceeded the scrape timeout.
	KindTimeout ErrorKind = "timeout"
	// KindConnectionRefused means the target actively refused the
	// connection.
	KindConnectionRefused ErrorKind = "connection_refused"
	// KindMalformedResponse means the target answered with a body that is
	// not valid exposition format, or an unexpected status code.
	KindMalformedResponse ErrorKind = "malformed_response"
	// KindOther covers remaining transport failures (DNS, resets, ...).
	KindOther ErrorKind = "other"
)

// errMalformed wraps parse-level failures so they classify as
// MalformedResponse.
type errMalformed struct{ err error }

func (e *errMalformed) Error() string { return "malformed response: " + e.err.Error() }
func (e *errMalformed) Unwrap() error { return e.err }

// Classify maps a scrape error to its kind.
func Classify(err error) ErrorKind {
	var malformed *errMalformed
	var netErr net.Error
	switch {
	case err == nil:
		return ""
	case errors.As(err, &malformed):
		return KindMalformedResponse
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		return KindTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		return KindConnectionRefused
	default:
		return KindOther
	}
}

// Scraper fetches and parses a target's metrics endpoint.
type Scraper struct {
	client        *http.Client
	bodySizeLimit int64
}

// NewScraper builds a Scraper using the given outbound HTTP client
// configuration. bodySizeLimit 0 means no limit.
func NewScraper(httpConfig config_util.HTTPClientConfig, bodySizeLimit units.Base2Bytes) (*Scraper, error) {
	client, err := config_util.NewClientFromConfig(httpConfig, "scrape")
	if err != nil {
		return nil, fmt.Errorf("building scrape client: %w", err)
	}
	return &Scraper{
		client:        client,
		bodySizeLimit: int64(bodySizeLimit),
	}, nil
}

// Scrape fetches the target once. Returned samples carry the scrape
// timestamp `now` unless the exposition line declared its own, and the
// target's labels merged with each series' own (series labels win).
func (s *Scraper) Scrape(ctx context.Context, t targets.Target, now time.Time) ([]samples.Sample, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/plain;version=0.0.4")
	req.Header.Set("User-Agent", useragent.Get())

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &errMalformed{err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	body := resp.Body
	if s.bodySizeLimit > 0 {
		body = struct {
			io.Reader
			io.Closer
		}{io.LimitReader(resp.Body, s.bodySizeLimit+1), resp.Body}
	}

	out, err := s.parse(body, t, now)
	if err != nil {
		return nil, &errMalformed{err: err}
	}
	return out, nil
}

func (s *Scraper) parse(r io.Reader, t targets.Target, now time.Time) ([]samples.Sample, error) {
	var (
		parser   = expfmt.NewTextParser(model.UTF8Validation)
		read     = &countingReader{r: r}
		targetID = t.ID()
	)
	families, err := parser.TextToMetricFamilies(read)
	if err != nil {
		return nil, err
	}
	if s.bodySizeLimit > 0 && read.n > s.bodySizeLimit {
		return nil, fmt.Errorf("body size limit of %d bytes exceeded", s.bodySizeLimit)
	}

	// Deterministic order so outcomes are stable for tests and debugging.
	names := make([]string, 0, len(families))
	for name := range families {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []samples.Sample
	for _, name := range names {
		out = appendFamilySamples(out, targetID, t, name, families[name], now)
	}
	return out, nil
}

// appendFamilySamples flattens one metric family into samples. Summaries
// expand into quantile series plus _sum and _count; histograms into _bucket
// series plus _sum and _count.
func appendFamilySamples(out []samples.Sample, targetID string, t targets.Target, name string, mf *dto.MetricFamily, now time.Time) []samples.Sample {
	for _, m := range mf.GetMetric() {
		ts := now
		if m.TimestampMs != nil {
			ts = time.UnixMilli(m.GetTimestampMs())
		}

		base := labels.NewBuilder(t.Labels)
		for _, lp := range m.GetLabel() {
			base.Set(lp.GetName(), lp.GetValue())
		}
		if t.Labels.Get(model.InstanceLabel) == "" {
			base.Set(model.InstanceLabel, t.Address)
		}
		lset := base.Labels()

		emit := func(metric string, lset labels.Labels, value float64) {
			out = append(out, samples.Sample{
				TargetID:  targetID,
				Metric:    metric,
				Labels:    lset,
				Value:     value,
				Timestamp: ts,
			})
		}

		switch {
		case m.Counter != nil:
			emit(name, lset, m.Counter.GetValue())
		case m.Gauge != nil:
			emit(name, lset, m.Gauge.GetValue())
		case m.Untyped != nil:
			emit(name, lset, m.Untyped.GetValue())
		case m.Summary != nil:
			for _, q := range m.Summary.GetQuantile() {
				ql := labels.NewBuilder(lset).Set(model.QuantileLabel, fmt.Sprint(q.GetQuantile())).Labels()
				emit(name, ql, q.GetValue())
			}
			emit(name+"_sum", lset, m.Summary.GetSampleSum())
			emit(name+"_count", lset, float64(m.Summary.GetSampleCount()))
		case m.Histogram != nil:
			for _, b := range m.Histogram.GetBucket() {
				bl := labels.NewBuilder(lset).Set(model.BucketLabel, fmt.Sprint(b.GetUpperBound())).Labels()
				emit(name+"_bucket", bl, float64(b.GetCumulativeCount()))
			}
			emit(name+"_sum", lset, m.Histogram.GetSampleSum())
			emit(name+"_count", lset, float64(m.Histogram.GetSampleCount()))
		}
	}
	return out
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
