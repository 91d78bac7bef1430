// Package api implements the HTTP API used to read targets, health and
// buffered samples.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/prometheus/model/labels"

	"github.com/vigil-obs/vigil/internal/health"
	"github.com/vigil-obs/vigil/internal/query"
	"github.com/vigil-obs/vigil/internal/targets"
)

// Registry is the part of the target registry the API reads.
type Registry interface {
	List() []targets.Target
}

// HealthReader is the part of the health tracker the API reads.
type HealthReader interface {
	StatusAll() map[string]health.State
}

// VigilAPI serves the read-only HTTP endpoints.
type VigilAPI struct {
	registry Registry
	tracker  HealthReader
	querier  *query.Querier
}

// NewVigilAPI instantiates a new Vigil API.
func NewVigilAPI(registry Registry, tracker HealthReader, querier *query.Querier) *VigilAPI {
	return &VigilAPI{registry: registry, tracker: tracker, querier: querier}
}

// RegisterRoutes registers all the API's routes.
func (a *VigilAPI) RegisterRoutes(urlPrefix string, r *mux.Router) {
	r.Handle(path.Join(urlPrefix, "/targets"), getTargetsHandler(a.registry, a.tracker)).Methods(http.MethodGet)
	r.Handle(path.Join(urlPrefix, "/query/instant"), instantQueryHandler(a.querier)).Methods(http.MethodGet)
	r.Handle(path.Join(urlPrefix, "/query/range"), rangeQueryHandler(a.querier)).Methods(http.MethodGet)
}

type response struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, resp response) {
	bb, err := json.Marshal(resp)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(bb)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, response{Status: "error", Error: err.Error()})
}

// parseSelector parses a comma-separated list of label matchers of the form
// name=value or name!=value.
func parseSelector(s string) (labels.Selector, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}

	var sel labels.Selector
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)

		var (
			typ  labels.MatchType
			idx  int
			name string
		)
		switch {
		case strings.Contains(part, "!="):
			typ, idx = labels.MatchNotEqual, strings.Index(part, "!=")
			name = part[:idx]
			idx += 2
		case strings.Contains(part, "="):
			typ, idx = labels.MatchEqual, strings.Index(part, "=")
			name = part[:idx]
			idx++
		default:
			return nil, fmt.Errorf("invalid matcher %q: expected name=value or name!=value", part)
		}

		m, err := labels.NewMatcher(typ, strings.TrimSpace(name), strings.TrimSpace(part[idx:]))
		if err != nil {
			return nil, fmt.Errorf("invalid matcher %q: %w", part, err)
		}
		sel = append(sel, m)
	}
	return sel, nil
}

// parseTime accepts RFC 3339 timestamps and Unix seconds, optionally with a
// fractional part.
func parseTime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		sec, frac := int64(f), f-float64(int64(f))
		return time.Unix(sec, int64(frac*float64(time.Second))).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
