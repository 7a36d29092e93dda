package ml

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/leungkcofficial/detect-pd/internal/cfg"
)

// referenceJSON is the reference scenario as a wire payload.
const referenceJSON = `{
  "features": {
    "blood_creatinine": 650,
    "blood_albumin": 36,
    "dwell_time_minutes": 720,
    "urine_protein_creatinine": 1200,
    "pdf_osmolarity": 366.6,
    "bmi": 24.8,
    "age": 57,
    "charlson_index": 6,
    "pdf_urea": 12.5,
    "pdf_creatinine": 900
  }
}`

func newTestServer(t *testing.T, sink MetricsSink) *Server {
	t.Helper()
	settings := testSettings()
	reg, err := NewRegistry(settings, sink)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return NewServer(0, NewPredictor(reg, settings, sink), reg)
}

func doRequest(s *Server, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	s.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestHandlePredict(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(s, http.MethodPost, "/predict", referenceJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type = %s", ct)
	}

	var pred Prediction
	if err := json.NewDecoder(rec.Body).Decode(&pred); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if pred.ID == "" {
		t.Error("response carries no prediction id")
	}
	if pred.Model != "pd-stage" {
		t.Errorf("model = %s, want pd-stage", pred.Model)
	}

	want := []float64{0.04153783, 0.0346017, 0.7884713, 0.1353892}
	for i, p := range pred.Result.Probabilities {
		if math.Abs(p-want[i]) > 1e-6 {
			t.Errorf("probability[%d] = %.8f, want %.8f within 1e-6", i, p, want[i])
		}
	}
	if pred.Result.PredClass != 2 {
		t.Errorf("pred class = %d, want 2", pred.Result.PredClass)
	}
}

func TestHandlePredictRejectsBadRequests(t *testing.T) {
	s := newTestServer(t, nil)

	cases := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"malformed body", http.MethodPost, `{"features": `, http.StatusBadRequest},
		{"no features", http.MethodPost, `{}`, http.StatusBadRequest},
		{"empty features", http.MethodPost, `{"features": {}}`, http.StatusBadRequest},
		{"unknown model", http.MethodPost, `{"model": "egfr-stage", "features": {"age": 57}}`, http.StatusNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(s, tc.method, "/predict", tc.body)
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tc.want, rec.Body.String())
			}
		})
	}
}

func TestHandlePredictArtifactUnreachable(t *testing.T) {
	settings := cfg.Settings{
		Models: map[string]cfg.ModelConfig{
			"pd-stage": {Path: filepath.Join("testdata", "does_not_exist.json")},
		},
		DefaultModel: "pd-stage",
		LoadTimeout:  time.Second,
		TopK:         2,
	}
	reg, err := NewRegistry(settings, nil)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	s := NewServer(0, NewPredictor(reg, settings, nil), reg)

	rec := doRequest(s, http.MethodPost, "/predict", referenceJSON)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestHandlePredictLoadTimeout(t *testing.T) {
	src := &countingSource{raw: fixtureRaw(t, stageFixture), delay: 300 * time.Millisecond}
	reg := newTestRegistry("pd-stage", src, 30*time.Millisecond, nil)
	s := NewServer(0, NewPredictor(reg, testSettings(), nil), reg)

	rec := doRequest(s, http.MethodPost, "/predict", referenceJSON)
	if rec.Code != http.StatusGatewayTimeout {
		t.Errorf("status = %d, want 504 (body %s)", rec.Code, rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("cold status = %d, want 503", rec.Code)
	}
	var st HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if st.Status != "unhealthy" || st.ModelLoaded {
		t.Errorf("cold health = %+v", st)
	}

	if rec := doRequest(s, http.MethodPost, "/predict", referenceJSON); rec.Code != http.StatusOK {
		t.Fatalf("warm-up predict: %d", rec.Code)
	}

	rec = doRequest(s, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("warm status = %d, want 200", rec.Code)
	}
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if st.Status != "healthy" || !st.ModelLoaded || st.ModelVersion == "" {
		t.Errorf("warm health = %+v", st)
	}
}

func TestHandleModelInfo(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doRequest(s, http.MethodGet, "/model/info", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var info struct {
		DefaultModel string        `json:"default_model"`
		Models       []ModelStatus `json:"models"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info.DefaultModel != "pd-stage" {
		t.Errorf("default model = %s", info.DefaultModel)
	}
	if len(info.Models) != 2 {
		t.Errorf("models = %d rows, want 2", len(info.Models))
	}
}

func TestHandleReload(t *testing.T) {
	s := newTestServer(t, nil)

	// Empty body reloads the default model.
	rec := doRequest(s, http.MethodPost, "/model/reload", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode reload: %v", err)
	}
	if resp["model"] != "pd-stage" || !strings.HasPrefix(resp["version"], "pd-stage-") {
		t.Errorf("reload response = %v", resp)
	}

	rec = doRequest(s, http.MethodPost, "/model/reload", `{"model": "egfr-stage"}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown model status = %d, want 404", rec.Code)
	}

	rec = doRequest(s, http.MethodGet, "/model/reload", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("wrong method status = %d, want 405", rec.Code)
	}
}

type captureStore struct {
	mu    sync.Mutex
	preds []*Prediction
	err   error
}

func (c *captureStore) Append(_ context.Context, p *Prediction) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preds = append(c.preds, p)
	return c.err
}

type captureFeed struct {
	mu    sync.Mutex
	preds []*Prediction
}

func (c *captureFeed) Publish(p *Prediction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.preds = append(c.preds, p)
}

func TestServerNotifiesStoreAndFeed(t *testing.T) {
	store := &captureStore{}
	feed := &captureFeed{}
	s := newTestServer(t, nil).WithStore(store).WithFeed(feed)

	rec := doRequest(s, http.MethodPost, "/predict", referenceJSON)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	if len(store.preds) != 1 || len(feed.preds) != 1 {
		t.Fatalf("store = %d, feed = %d entries; want 1 each", len(store.preds), len(feed.preds))
	}
	if store.preds[0].ID != feed.preds[0].ID {
		t.Error("store and feed saw different predictions")
	}

	// An audit failure is logged, not surfaced to the client.
	store.err = errors.New("bucket gone")
	rec = doRequest(s, http.MethodPost, "/predict", referenceJSON)
	if rec.Code != http.StatusOK {
		t.Errorf("status with failing store = %d, want 200", rec.Code)
	}
}
