package scrape

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	config_util "github.com/prometheus/common/config"
	"github.com/prometheus/prometheus/model/labels"
	"github.com/stretchr/testify/require"

	"github.com/vigil-obs/vigil/internal/targets"
)

const exposition = `# HELP node_load1 1m load average.
# TYPE node_load1 gauge
node_load1 0.21
# TYPE http_requests_total counter
http_requests_total{code="200"} 1027
http_requests_total{code="500"} 3
# TYPE rpc_duration_seconds summary
rpc_duration_seconds{quantile="0.5"} 0.05
rpc_duration_seconds_sum 17.5
rpc_duration_seconds_count 2693
`

func targetFor(t *testing.T, srv *httptest.Server) targets.Target {
	t.Helper()
	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	return targets.Target{
		Address: u.Host,
		Labels:  labels.FromStrings("env", "test"),
	}
}

func TestScraperParsesExposition(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		w.Write([]byte(exposition))
	}))
	defer srv.Close()

	s, err := NewScraper(config_util.DefaultHTTPClientConfig, 0)
	require.NoError(t, err)

	now := time.Now()
	got, err := s.Scrape(context.Background(), targetFor(t, srv), now)
	require.NoError(t, err)

	byMetric := map[string][]float64{}
	for _, sm := range got {
		byMetric[sm.Metric] = append(byMetric[sm.Metric], sm.Value)
		// Target labels and the synthesized instance label are attached to
		// every sample.
		require.Equal(t, "test", sm.Labels.Get("env"))
		require.NotEmpty(t, sm.Labels.Get("instance"))
		require.Equal(t, now.UnixMilli(), sm.Timestamp.UnixMilli())
	}

	require.Equal(t, []float64{0.21}, byMetric["node_load1"])
	require.ElementsMatch(t, []float64{1027, 3}, byMetric["http_requests_total"])
	require.Equal(t, []float64{0.05}, byMetric["rpc_duration_seconds"])
	require.Equal(t, []float64{17.5}, byMetric["rpc_duration_seconds_sum"])
	require.Equal(t, []float64{2693}, byMetric["rpc_duration_seconds_count"])
}

func TestScraperSeriesLabelsWinOverTargetLabels(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("up{env=\"prod\"} 1\n"))
	}))
	defer srv.Close()

	s, err := NewScraper(config_util.DefaultHTTPClientConfig, 0)
	require.NoError(t, err)

	got, err := s.Scrape(context.Background(), targetFor(t, srv), time.Now())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, "prod", got[0].Labels.Get("env"))
}

func TestScraperMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is { not exposition format"))
	}))
	defer srv.Close()

	s, err := NewScraper(config_util.DefaultHTTPClientConfig, 0)
	require.NoError(t, err)

	_, err = s.Scrape(context.Background(), targetFor(t, srv), time.Now())
	require.Error(t, err)
	require.Equal(t, KindMalformedResponse, Classify(err))
}

func TestScraperNon200Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no metrics here", http.StatusNotFound)
	}))
	defer srv.Close()

	s, err := NewScraper(config_util.DefaultHTTPClientConfig, 0)
	require.NoError(t, err)

	_, err = s.Scrape(context.Background(), targetFor(t, srv), time.Now())
	require.Error(t, err)
	require.Equal(t, KindMalformedResponse, Classify(err))
}

func TestScraperTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	s, err := NewScraper(config_util.DefaultHTTPClientConfig, 0)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = s.Scrape(ctx, targetFor(t, srv), time.Now())
	require.Error(t, err)
	require.Equal(t, KindTimeout, Classify(err))
}

func TestScraperBodySizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("huge_metric 1\n" + strings.Repeat("# padding\n", 1024)))
	}))
	defer srv.Close()

	s, err := NewScraper(config_util.DefaultHTTPClientConfig, 64)
	require.NoError(t, err)

	_, err = s.Scrape(context.Background(), targetFor(t, srv), time.Now())
	require.Error(t, err)
	require.Equal(t, KindMalformedResponse, Classify(err))
}

func TestScraperHonorsExposedTimestamps(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("stale_metric 1 1700000000000\n"))
	}))
	defer srv.Close()

	s, err := NewScraper(config_util.DefaultHTTPClientConfig, 0)
	require.NoError(t, err)

	got, err := s.Scrape(context.Background(), targetFor(t, srv), time.Now())
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, int64(1700000000000), got[0].Timestamp.UnixMilli())
}

func TestClassify(t *testing.T) {
	require.Equal(t, ErrorKind(""), Classify(nil))
	require.Equal(t, KindTimeout, Classify(context.DeadlineExceeded))
	require.Equal(t, KindOther, Classify(context.Canceled))
}
