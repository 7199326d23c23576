package http

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"crimewatch/analytics"
)

const (
	defaultTopOffenses = 10
	maxHeatmapPoints   = 50000
)

// dataset returns the filtered records, or writes a 503 when no data is loaded.
func (a *API) dataset(w http.ResponseWriter, r *http.Request) (*analytics.Dataset, analytics.Filter, bool) {
	if a.Data == nil {
		writeError(w, http.StatusServiceUnavailable, "dataset not loaded")
		return nil, analytics.Filter{}, false
	}
	filter, err := parseFilter(r.URL.Query())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, analytics.Filter{}, false
	}
	return a.Data, filter, true
}

func (a *API) handleOptions(w http.ResponseWriter, r *http.Request) {
	if a.Data == nil {
		writeError(w, http.StatusServiceUnavailable, "dataset not loaded")
		return
	}
	respondJSON(w, analytics.BuildOptions(a.Data.Select(analytics.Filter{})))
}

func (a *API) handleStats(w http.ResponseWriter, r *http.Request) {
	data, filter, ok := a.dataset(w, r)
	if !ok {
		return
	}
	respondJSON(w, analytics.Summarize(data.Select(filter)))
}

func (a *API) handleTrends(w http.ResponseWriter, r *http.Request) {
	data, filter, ok := a.dataset(w, r)
	if !ok {
		return
	}
	respondJSON(w, map[string]interface{}{
		"points": analytics.Trend(data.Select(filter)),
	})
}

func (a *API) handleHourHeatmap(w http.ResponseWriter, r *http.Request) {
	data, filter, ok := a.dataset(w, r)
	if !ok {
		return
	}
	respondJSON(w, analytics.HourDay(data.Select(filter)))
}

func (a *API) handlePointHeatmap(w http.ResponseWriter, r *http.Request) {
	data, filter, ok := a.dataset(w, r)
	if !ok {
		return
	}
	limit, err := intParam(r.URL.Query(), "limit", maxHeatmapPoints)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit <= 0 || limit > maxHeatmapPoints {
		limit = maxHeatmapPoints
	}
	respondJSON(w, analytics.Heatmap(data.Select(filter), limit))
}

func (a *API) handleTopOffenses(w http.ResponseWriter, r *http.Request) {
	data, filter, ok := a.dataset(w, r)
	if !ok {
		return
	}
	n, err := intParam(r.URL.Query(), "n", defaultTopOffenses)
	if err != nil || n <= 0 {
		writeError(w, http.StatusBadRequest, "n must be a positive integer")
		return
	}
	respondJSON(w, map[string]interface{}{
		"offenses": analytics.TopOffenses(data.Select(filter), n),
	})
}

// parseFilter reads the comma-separated district, offense, year and month parameters.
func parseFilter(q url.Values) (analytics.Filter, error) {
	var f analytics.Filter
	f.Districts = listParam(q, "district")
	f.OffenseGroups = listParam(q, "offense")

	var err error
	if f.Years, err = intListParam(q, "year"); err != nil {
		return analytics.Filter{}, err
	}
	if f.Months, err = intListParam(q, "month"); err != nil {
		return analytics.Filter{}, err
	}
	return f, nil
}

func listParam(q url.Values, name string) []string {
	var out []string
	for _, raw := range q[name] {
		for _, v := range strings.Split(raw, ",") {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
	}
	return out
}

func intListParam(q url.Values, name string) ([]int, error) {
	values := listParam(q, name)
	if len(values) == 0 {
		return nil, nil
	}
	out := make([]int, 0, len(values))
	for _, v := range values {
		n, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q", name, v)
		}
		out = append(out, n)
	}
	return out, nil
}

func intParam(q url.Values, name string, fallback int) (int, error) {
	raw := strings.TrimSpace(q.Get(name))
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return n, nil
}
