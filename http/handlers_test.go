package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/klauspost/compress/gzip"

	"crimewatch/db"
	"crimewatch/monitoring"
)

func TestHealthHandler(t *testing.T) {
	tests := []struct {
		name       string
		api        *API
		wantStatus string
	}{
		{"nothing loaded", &API{}, "degraded"},
		{"data and model loaded", &API{Data: dataset(), Predictor: &fakePredictor{artifact: trainedArtifact(t)}}, "ok"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			newTestHandler(tt.api).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			if rr.Code != http.StatusOK {
				t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
			}
			var body healthResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
		})
	}
}

func TestGzipMinSize(t *testing.T) {
	small := DefaultServerConfig()
	small.GzipMinSize = 256

	tests := []struct {
		name     string
		config   ServerConfig
		path     string
		wantGzip bool
	}{
		{"body above threshold", small, "/api/heatmap/hours", true},
		{"body below threshold", small, "/api/health", false},
		{"default threshold keeps small bodies plain", DefaultServerConfig(), "/api/heatmap/hours", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler(tt.config, &API{Data: dataset()}, nil)
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			req.Header.Set("Accept-Encoding", "gzip")
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != http.StatusOK {
				t.Fatalf("status = %d", rr.Code)
			}

			gzipped := rr.Header().Get("Content-Encoding") == "gzip"
			if gzipped != tt.wantGzip {
				t.Fatalf("gzip = %v, want %v (headers %v)", gzipped, tt.wantGzip, rr.Header())
			}
			var body []byte
			if gzipped {
				zr, err := gzip.NewReader(rr.Body)
				if err != nil {
					t.Fatalf("gzip reader: %v", err)
				}
				if body, err = io.ReadAll(zr); err != nil {
					t.Fatalf("read: %v", err)
				}
			} else {
				body = rr.Body.Bytes()
				if len(body) >= tt.config.GzipMinSize {
					t.Fatalf("plain body of %d bytes reached the %d byte threshold", len(body), tt.config.GzipMinSize)
				}
			}
			if !json.Valid(body) {
				t.Errorf("body is not json: %s", body)
			}
		})
	}
}

func TestMiddlewareChain(t *testing.T) {
	handler := newTestHandler(&API{Data: dataset(), Metrics: monitoring.NewMetrics()})

	t.Run("request id", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
		if rr.Header().Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID header")
		}

		req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
		req.Header.Set("X-Request-ID", "abc-123")
		rr = httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if got := rr.Header().Get("X-Request-ID"); got != "abc-123" {
			t.Errorf("request id = %q, want the caller's", got)
		}
	})

	t.Run("cors preflight", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/api/predict", nil)
		req.Header.Set("Origin", "http://dashboard.local")
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req)
		if rr.Code != http.StatusNoContent {
			t.Errorf("status = %d", rr.Code)
		}
		if rr.Header().Get("Access-Control-Allow-Origin") != "http://dashboard.local" {
			t.Errorf("allow origin = %q", rr.Header().Get("Access-Control-Allow-Origin"))
		}
	})

	t.Run("metrics", func(t *testing.T) {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if rr.Code != http.StatusOK {
			t.Fatalf("status = %d", rr.Code)
		}
		if !strings.Contains(rr.Body.String(), "crimewatch_http_requests_total") {
			t.Errorf("metrics output missing request counter")
		}
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := RecoveryMiddleware(nopLogger())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestHandleModelHistory(t *testing.T) {
	ctx := context.Background()
	store, err := db.Open(filepath.Join(t.TempDir(), "crimewatch.db"))
	if err != nil {
		t.Fatalf("db.Open: %v", err)
	}
	defer store.Close()
	if err := store.SaveTrainingLog(ctx, db.TrainingLog{ModelVersion: "v1", ModelName: "random_forest", Accuracy: 0.4, TrainedAt: time.Now()}); err != nil {
		t.Fatalf("SaveTrainingLog: %v", err)
	}

	rr := httptest.NewRecorder()
	newTestHandler(&API{History: store}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/model/history", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var payload struct {
		Runs  []db.TrainingLog `json:"runs"`
		Count int              `json:"count"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if payload.Count != 1 || payload.Runs[0].ModelVersion != "v1" {
		t.Errorf("payload = %+v", payload)
	}

	rr = httptest.NewRecorder()
	newTestHandler(&API{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/model/history", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("no history: status = %d", rr.Code)
	}
}

func TestWebSocketRoute(t *testing.T) {
	monitor := monitoring.NewRealtimeMonitor(monitoring.NewWebSocketHub(nil, nil, nil), nil)
	if err := monitor.Start(0); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer monitor.Stop()

	srv := httptest.NewServer(newTestHandler(&API{Monitor: monitor}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/api/ws", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for monitor.Hub().ClientCount() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err := monitor.SendSystemStatus(monitoring.SystemStatusMessage{Status: "ok"}); err != nil {
		t.Fatalf("SendSystemStatus: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg monitoring.Message
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != monitoring.SystemStatus {
		t.Errorf("type = %s", msg.Type)
	}
}
