package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"crimewatch/analytics"
	"crimewatch/crime"
	"crimewatch/db"
	"crimewatch/inference"
	"crimewatch/ml"
	"crimewatch/monitoring"
)

const wsPath = "/api/ws"

type Predictor interface {
	Predict(ctx context.Context, q crime.Query) (inference.Prediction, error)
	Artifact() *ml.Artifact
	Loaded() bool
}

type TrainingHistory interface {
	LoadTrainingLog(ctx context.Context) ([]db.TrainingLog, error)
}

// API holds the handler dependencies. Endpoints whose dependency is nil answer 503.
type API struct {
	Data      *analytics.Dataset
	Predictor Predictor
	History   TrainingHistory
	Monitor   *monitoring.RealtimeMonitor
	Metrics   *monitoring.Metrics
	Logger    *zap.Logger
	Started   time.Time
}

type route struct {
	pattern string
	handler http.HandlerFunc
}

func (a *API) routes() []route {
	routes := []route{
		{"GET /api/health", a.handleHealth},
		{"GET /api/options", a.handleOptions},
		{"GET /api/stats", a.handleStats},
		{"GET /api/trends", a.handleTrends},
		{"GET /api/heatmap/hours", a.handleHourHeatmap},
		{"GET /api/heatmap/points", a.handlePointHeatmap},
		{"GET /api/offenses/top", a.handleTopOffenses},
		{"GET /api/predict", a.handlePredictQuery},
		{"POST /api/predict", a.handlePredictBody},
		{"GET /api/model", a.handleModel},
		{"GET /api/model/history", a.handleModelHistory},
	}
	if a.Metrics != nil {
		routes = append(routes, route{"GET /metrics", a.Metrics.Handler().ServeHTTP})
	}
	return routes
}

func (a *API) Register(mux *http.ServeMux) {
	if a.Logger == nil {
		a.Logger = zap.NewNop()
	}
	for _, r := range a.routes() {
		mux.HandleFunc(r.pattern, r.handler)
	}
}

// Routes lists the registered patterns, including the websocket route.
func (a *API) Routes() []string {
	var patterns []string
	for _, r := range a.routes() {
		patterns = append(patterns, r.pattern)
	}
	if a.Monitor != nil {
		patterns = append(patterns, "GET "+wsPath)
	}
	return patterns
}

type healthResponse struct {
	Status       string `json:"status"`
	DataLoaded   bool   `json:"data_loaded"`
	Records      int    `json:"records"`
	ModelLoaded  bool   `json:"model_loaded"`
	ModelVersion string `json:"model_version,omitempty"`
	Uptime       string `json:"uptime,omitempty"`
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "ok",
		DataLoaded: a.Data != nil,
		Records:    a.Data.Len(),
	}
	if a.Predictor != nil && a.Predictor.Loaded() {
		resp.ModelLoaded = true
		if art := a.Predictor.Artifact(); art != nil {
			resp.ModelVersion = art.Version
		}
	}
	if !a.Started.IsZero() {
		resp.Uptime = time.Since(a.Started).Round(time.Second).String()
	}
	if !resp.DataLoaded || !resp.ModelLoaded {
		resp.Status = "degraded"
	}
	respondJSON(w, resp)
}

func (a *API) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	a.Monitor.Hub().HandleWebSocket(w, r)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: message})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, crime.ErrInvalidQuery):
		return http.StatusBadRequest
	case errors.Is(err, inference.ErrModelNotLoaded):
		return http.StatusServiceUnavailable
	case errors.Is(err, ml.ErrSchemaMismatch):
		return http.StatusInternalServerError
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.Logger.Error("request failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeError(w, status, err.Error())
}
