package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/vigil-obs/vigil/internal/query"
	"github.com/vigil-obs/vigil/internal/samples"
)

// SampleData is the JSON form of a buffered sample.
type SampleData struct {
	Labels    map[string]string `json:"labels"`
	Value     float64           `json:"value"`
	Timestamp string            `json:"timestamp"`
}

// InstantResultData is the per-target answer of an instant query. Sample is
// nil when Absent is true.
type InstantResultData struct {
	Absent bool        `json:"absent"`
	Sample *SampleData `json:"sample,omitempty"`
}

func sampleData(s samples.Sample) SampleData {
	return SampleData{
		Labels:    s.Labels.Map(),
		Value:     s.Value,
		Timestamp: s.Timestamp.UTC().Format(time.RFC3339Nano),
	}
}

func instantQueryHandler(querier *query.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		metric := q.Get("metric")
		if metric == "" {
			writeError(w, http.StatusBadRequest, errors.New("missing metric parameter"))
			return
		}
		sel, err := parseSelector(q.Get("selector"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		at := time.Now()
		if ts := q.Get("time"); ts != "" {
			if at, err = parseTime(ts); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
		}

		data := make(map[string]InstantResultData)
		for id, res := range querier.Instant(metric, sel, at) {
			if res.Absent {
				data[id] = InstantResultData{Absent: true}
				continue
			}
			s := sampleData(res.Sample)
			data[id] = InstantResultData{Sample: &s}
		}
		writeJSON(w, http.StatusOK, response{Status: "success", Data: data})
	}
}

func rangeQueryHandler(querier *query.Querier) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		metric := q.Get("metric")
		if metric == "" {
			writeError(w, http.StatusBadRequest, errors.New("missing metric parameter"))
			return
		}
		sel, err := parseSelector(q.Get("selector"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		start, err := parseTime(q.Get("start"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		end, err := parseTime(q.Get("end"))
		if err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if end.Before(start) {
			writeError(w, http.StatusBadRequest, errors.New("end must not be before start"))
			return
		}

		data := make(map[string][]SampleData)
		for id, ss := range querier.Range(metric, sel, start, end) {
			out := make([]SampleData, 0, len(ss))
			for _, s := range ss {
				out = append(out, sampleData(s))
			}
			data[id] = out
		}
		writeJSON(w, http.StatusOK, response{Status: "success", Data: data})
	}
}
