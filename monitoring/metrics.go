package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors. All methods are safe on a nil receiver.
type Metrics struct {
	registry *prometheus.Registry

	predictions       *prometheus.CounterVec
	predictionErrors  *prometheus.CounterVec
	unseenCategories  *prometheus.CounterVec
	predictionLatency prometheus.Histogram
	cacheLookups      *prometheus.CounterVec

	modelReloads *prometheus.CounterVec
	modelInfo    *prometheus.GaugeVec

	trainingAccuracy prometheus.Gauge
	trainingRows     *prometheus.GaugeVec
	schemaColumns    prometheus.Gauge
	trainingDuration prometheus.Gauge
	recordsDropped   prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	wsClients    prometheus.Gauge
}

// NewMetrics registers the collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		predictions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crimewatch_predictions_total",
			Help: "Predictions served, by predicted offense group.",
		}, []string{"label"}),
		predictionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crimewatch_prediction_errors_total",
			Help: "Failed predictions, by reason.",
		}, []string{"reason"}),
		unseenCategories: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crimewatch_unseen_categories_total",
			Help: "Query values absent from the feature schema, by field.",
		}, []string{"field"}),
		predictionLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "crimewatch_prediction_duration_seconds",
			Help:    "Time to encode, reconcile and predict one query.",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		}),
		cacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crimewatch_prediction_cache_lookups_total",
			Help: "Prediction cache lookups, by result.",
		}, []string{"result"}),
		modelReloads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crimewatch_model_reloads_total",
			Help: "Artifact loads, by result.",
		}, []string{"result"}),
		modelInfo: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crimewatch_model_info",
			Help: "Currently served artifact; value is the schema width.",
		}, []string{"version", "model_type"}),
		trainingAccuracy: f.NewGauge(prometheus.GaugeOpts{
			Name: "crimewatch_training_accuracy",
			Help: "Held-out accuracy of the last training run.",
		}),
		trainingRows: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "crimewatch_training_rows",
			Help: "Rows used by the last training run, by split.",
		}, []string{"split"}),
		schemaColumns: f.NewGauge(prometheus.GaugeOpts{
			Name: "crimewatch_training_schema_columns",
			Help: "Feature schema width of the last training run.",
		}),
		trainingDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "crimewatch_training_duration_seconds",
			Help: "Wall time of the last training run.",
		}),
		recordsDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "crimewatch_records_dropped_total",
			Help: "Records dropped by cleaning before training.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "crimewatch_http_requests_total",
			Help: "HTTP requests, by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crimewatch_http_request_duration_seconds",
			Help:    "HTTP request latency, by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		wsClients: f.NewGauge(prometheus.GaugeOpts{
			Name: "crimewatch_websocket_clients",
			Help: "Connected dashboard websocket clients.",
		}),
	}
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObservePrediction(label string, d time.Duration, unseenFields []string) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(label).Inc()
	m.predictionLatency.Observe(d.Seconds())
	for _, field := range unseenFields {
		m.unseenCategories.WithLabelValues(field).Inc()
	}
}

func (m *Metrics) PredictionFailed(reason string) {
	if m == nil {
		return
	}
	m.predictionErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) ModelLoaded(version, modelType string, columns int) {
	if m == nil {
		return
	}
	m.modelReloads.WithLabelValues("success").Inc()
	m.modelInfo.Reset()
	m.modelInfo.WithLabelValues(version, modelType).Set(float64(columns))
}

func (m *Metrics) ModelLoadFailed() {
	if m == nil {
		return
	}
	m.modelReloads.WithLabelValues("failure").Inc()
}

func (m *Metrics) TrainingCompleted(accuracy float64, trainRows, testRows, columns, dropped int, d time.Duration) {
	if m == nil {
		return
	}
	m.trainingAccuracy.Set(accuracy)
	m.trainingRows.WithLabelValues("train").Set(float64(trainRows))
	m.trainingRows.WithLabelValues("test").Set(float64(testRows))
	m.schemaColumns.Set(float64(columns))
	m.trainingDuration.Set(d.Seconds())
	m.recordsDropped.Add(float64(dropped))
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) SetWebSocketClients(n int) {
	if m == nil {
		return
	}
	m.wsClients.Set(float64(n))
}
