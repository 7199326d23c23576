package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"crimewatch/crime"
	"crimewatch/inference"
	"crimewatch/ml"
)

// predictRequest is the POST body. hour must be an integer.
type predictRequest struct {
	District  string `json:"district"`
	DayOfWeek string `json:"day_of_week"`
	Hour      *int   `json:"hour"`
}

func (a *API) handlePredictQuery(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	raw := strings.TrimSpace(q.Get("hour"))
	if raw == "" {
		a.fail(w, r, fmt.Errorf("%w: hour is required", crime.ErrInvalidQuery))
		return
	}
	hour, err := strconv.Atoi(raw)
	if err != nil {
		a.fail(w, r, fmt.Errorf("%w: hour %q is not an integer", crime.ErrInvalidQuery, raw))
		return
	}
	day := q.Get("day")
	if day == "" {
		day = q.Get("day_of_week")
	}
	a.predict(w, r, crime.Query{
		District:  strings.TrimSpace(q.Get("district")),
		DayOfWeek: strings.TrimSpace(day),
		Hour:      hour,
	})
}

func (a *API) handlePredictBody(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		a.fail(w, r, fmt.Errorf("%w: %v", crime.ErrInvalidQuery, err))
		return
	}
	if req.Hour == nil {
		a.fail(w, r, fmt.Errorf("%w: hour is required", crime.ErrInvalidQuery))
		return
	}
	a.predict(w, r, crime.Query{
		District:  strings.TrimSpace(req.District),
		DayOfWeek: strings.TrimSpace(req.DayOfWeek),
		Hour:      *req.Hour,
	})
}

func (a *API) predict(w http.ResponseWriter, r *http.Request, q crime.Query) {
	if a.Predictor == nil {
		a.fail(w, r, inference.ErrModelNotLoaded)
		return
	}
	pred, err := a.Predictor.Predict(r.Context(), q)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, map[string]interface{}{
		"query":      q,
		"prediction": pred,
	})
}

type featureImportance struct {
	Column     string  `json:"column"`
	Importance float64 `json:"importance"`
}

type modelResponse struct {
	Version           string              `json:"version"`
	ModelType         string              `json:"model_type"`
	CreatedAt         time.Time           `json:"created_at"`
	Schema            ml.FeatureSchema    `json:"schema"`
	SchemaFingerprint string              `json:"schema_fingerprint"`
	Classes           []string            `json:"classes"`
	Metrics           ml.Metrics          `json:"metrics"`
	TrainRows         int                 `json:"train_rows"`
	TestRows          int                 `json:"test_rows"`
	TopFeatures       []featureImportance `json:"top_features"`
}

func (a *API) handleModel(w http.ResponseWriter, r *http.Request) {
	if a.Predictor == nil || !a.Predictor.Loaded() {
		a.fail(w, r, inference.ErrModelNotLoaded)
		return
	}
	art := a.Predictor.Artifact()
	respondJSON(w, modelResponse{
		Version:           art.Version,
		ModelType:         art.ModelType,
		CreatedAt:         art.CreatedAt,
		Schema:            art.Schema,
		SchemaFingerprint: art.SchemaFingerprint,
		Classes:           art.Classes,
		Metrics:           art.Metrics,
		TrainRows:         art.TrainRows,
		TestRows:          art.TestRows,
		TopFeatures:       topFeatures(art, 10),
	})
}

// topFeatures sorts by importance, descending; ties keep column order.
func topFeatures(art *ml.Artifact, n int) []featureImportance {
	importances := art.Classifier().FeatureImportances()
	out := make([]featureImportance, 0, len(importances))
	for i, v := range importances {
		if i >= art.Schema.Len() {
			break
		}
		out = append(out, featureImportance{Column: art.Schema.Column(i), Importance: v})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Importance > out[j].Importance })
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func (a *API) handleModelHistory(w http.ResponseWriter, r *http.Request) {
	if a.History == nil {
		writeError(w, http.StatusServiceUnavailable, "training history not available")
		return
	}
	history, err := a.History.LoadTrainingLog(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	respondJSON(w, map[string]interface{}{
		"runs":  history,
		"count": len(history),
	})
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
