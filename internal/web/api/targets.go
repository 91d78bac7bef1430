package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/common/model"
)

// TargetsResponse represents the API response for the targets endpoint.
type TargetsResponse struct {
	Status string       `json:"status"`
	Data   []TargetData `json:"data"`
}

// TargetData represents information about a single scrape target.
type TargetData struct {
	URL                string            `json:"url"`
	Source             string            `json:"source"`
	Health             string            `json:"health"`
	Labels             map[string]string `json:"labels"`
	ScrapeInterval     string            `json:"scrape_interval,omitempty"`
	LastScrape         string            `json:"last_scrape,omitempty"`
	LastScrapeDuration string            `json:"last_scrape_duration,omitempty"`
	LastSuccess        string            `json:"last_success,omitempty"`
	LastError          string            `json:"last_error,omitempty"`
}

func getTargetsHandler(registry Registry, tracker HealthReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Optional query parameters for filtering.
		sourceFilter := r.URL.Query().Get("source")
		healthFilter := r.URL.Query().Get("health")

		states := tracker.StatusAll()

		all := make([]TargetData, 0)
		for _, t := range registry.List() {
			if sourceFilter != "" && t.Source != sourceFilter {
				continue
			}

			state := states[t.ID()]
			td := TargetData{
				URL:    t.URL(),
				Source: t.Source,
				Health: string(state.Health),
				Labels: t.Labels.Map(),
			}
			if td.Health == "" {
				td.Health = "unknown"
			}
			if healthFilter != "" && td.Health != healthFilter {
				continue
			}

			if t.Interval > 0 {
				td.ScrapeInterval = model.Duration(t.Interval).String()
			}
			if !state.LastScrape.IsZero() {
				td.LastScrape = state.LastScrape.UTC().Format(time.RFC3339Nano)
				td.LastScrapeDuration = state.LastScrapeDuration.String()
			}
			if !state.LastSuccess.IsZero() {
				td.LastSuccess = state.LastSuccess.UTC().Format(time.RFC3339Nano)
			}
			td.LastError = state.LastError

			all = append(all, td)
		}

		resp := TargetsResponse{Status: "success", Data: all}
		bb, err := json.Marshal(resp)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(bb)
	}
}
