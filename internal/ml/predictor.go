package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/leungkcofficial/detect-pd/internal/booster"
	"github.com/leungkcofficial/detect-pd/internal/cfg"
	"github.com/leungkcofficial/detect-pd/internal/remote"
)

// DefaultTopDrivers is how many explanation entries a result carries when
// a driver ranker is configured.
const DefaultTopDrivers = 3

// degradedErrorRate is the failure share above which health degrades.
const degradedErrorRate = 0.1

// DriverRanker computes deviation-from-reference explanations for a
// scored vector. *drivers.Reference satisfies it.
type DriverRanker interface {
	Rank(fv booster.FeatureVector, n int) []booster.FeatureDriver
}

// SurvivalClient calls the remote technique-survival service.
// *remote.Client satisfies it.
type SurvivalClient interface {
	TechniqueSurvival(ctx context.Context, fv booster.FeatureVector) (*remote.Survival, error)
}

// PredictionRequest is the scoring payload. Model defaults to the
// configured default model and TopK overrides the ranked-class count for
// this call only.
type PredictionRequest struct {
	Model           string         `json:"model,omitempty"`
	Features        map[string]any `json:"features"`
	TopK            int            `json:"top_k,omitempty"`
	IncludeSurvival bool           `json:"include_survival,omitempty"`
}

// Prediction is one issued prediction with its serving metadata.
type Prediction struct {
	ID        string                    `json:"prediction_id"`
	Model     string                    `json:"model"`
	Result    *booster.PredictionResult `json:"result"`
	Survival  *remote.Survival          `json:"survival,omitempty"`
	LatencyMs float64                   `json:"latency_ms"`
	Timestamp time.Time                 `json:"timestamp"`
}

// PerformanceStats tracks serving counters for health reporting. The
// Prometheus registry keeps the authoritative series; these stay local so
// /health can answer without scraping.
type PerformanceStats struct {
	mu             sync.RWMutex
	total          uint64
	failed         uint64
	totalLatency   time.Duration
	lastPrediction time.Time
}

func (s *PerformanceStats) record(latency time.Duration, failed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total++
	if failed {
		s.failed++
	}
	s.totalLatency += latency
	s.lastPrediction = time.Now()
}

// Snapshot returns the counters and the average latency over them.
func (s *PerformanceStats) Snapshot() (total, failed uint64, avgLatency time.Duration, last time.Time) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total, failed = s.total, s.failed
	if s.total > 0 {
		avgLatency = s.totalLatency / time.Duration(s.total)
	}
	return total, failed, avgLatency, s.lastPrediction
}

// Predictor turns feature payloads into identified predictions. It owns
// no model state itself; documents come from the registry and stay
// shareable between calls.
type Predictor struct {
	registry     *Registry
	defaultModel string
	defaultTopK  int
	modelTopK    map[string]int
	ranker       DriverRanker
	survival     SurvivalClient
	metrics      MetricsSink
	stats        PerformanceStats
	started      time.Time
	health       atomic.Value // HealthStatus
}

// NewPredictor wires a predictor to the registry. m may be nil.
func NewPredictor(registry *Registry, settings cfg.Settings, m MetricsSink) *Predictor {
	modelTopK := make(map[string]int, len(settings.Models))
	for name, mc := range settings.Models {
		if mc.TopK > 0 {
			modelTopK[name] = mc.TopK
		}
	}
	return &Predictor{
		registry:     registry,
		defaultModel: settings.DefaultModel,
		defaultTopK:  settings.TopK,
		modelTopK:    modelTopK,
		metrics:      m,
		started:      time.Now(),
	}
}

// WithDrivers attaches an explanation ranker applied to every result.
func (p *Predictor) WithDrivers(r DriverRanker) *Predictor {
	p.ranker = r
	return p
}

// WithSurvival attaches the remote survival client used when a request
// asks for the merged estimate.
func (p *Predictor) WithSurvival(c SurvivalClient) *Predictor {
	p.survival = c
	return p
}

// DefaultModel returns the model name used when a request names none.
func (p *Predictor) DefaultModel() string { return p.defaultModel }

// Predict scores one request. Load problems and corrupt-tree walks fail
// the call; unusable feature values degrade to missing and never fail it.
func (p *Predictor) Predict(ctx context.Context, req PredictionRequest) (*Prediction, error) {
	start := time.Now()
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	doc, err := p.registry.Get(ctx, model)
	if err != nil {
		p.recordFailure(start)
		return nil, err
	}

	fv := FeatureVectorFromJSON(req.Features, p.metrics)
	res, err := doc.PredictTopK(fv, p.topKFor(model, req.TopK))
	if err != nil {
		p.recordFailure(start)
		return nil, fmt.Errorf("score with model %s: %w", model, err)
	}
	if p.ranker != nil {
		res.Drivers = p.ranker.Rank(fv, DefaultTopDrivers)
	}

	pred := &Prediction{
		ID:        uuid.New().String(),
		Model:     model,
		Result:    res,
		Timestamp: time.Now().UTC(),
	}
	if req.IncludeSurvival && p.survival != nil {
		surv, err := p.survival.TechniqueSurvival(ctx, fv)
		if err != nil {
			// The merged estimate is best-effort; the local result stands.
			log.Warn().Err(err).Str("prediction_id", pred.ID).Msg("survival merge skipped")
		} else {
			pred.Survival = surv
		}
	}

	latency := time.Since(start)
	pred.LatencyMs = float64(latency) / float64(time.Millisecond)
	p.stats.record(latency, false)
	if p.metrics != nil {
		p.metrics.PredictionsInc()
		p.metrics.PredictionLatencyObserve(latency.Seconds())
		p.metrics.PredictionScoreObserve(res.Probabilities[res.PredClass])
	}
	return pred, nil
}

func (p *Predictor) topKFor(model string, override int) int {
	if override > 0 {
		return override
	}
	if k, ok := p.modelTopK[model]; ok {
		return k
	}
	return p.defaultTopK
}

func (p *Predictor) recordFailure(start time.Time) {
	p.stats.record(time.Since(start), true)
	if p.metrics != nil {
		p.metrics.PredictionFailuresInc()
	}
}

// HealthStatus is the /health payload.
type HealthStatus struct {
	Status           string     `json:"status"`
	ModelLoaded      bool       `json:"model_loaded"`
	ModelVersion     string     `json:"model_version,omitempty"`
	TotalPredictions uint64     `json:"total_predictions"`
	ErrorRate        float64    `json:"error_rate"`
	AvgLatencyMs     float64    `json:"avg_latency_ms"`
	LastPrediction   *time.Time `json:"last_prediction,omitempty"`
	UptimeSeconds    float64    `json:"uptime_seconds"`
	Timestamp        time.Time  `json:"timestamp"`
}

// Health recomputes the serving status. Unhealthy means the default model
// is not ready; degraded means it serves but the error rate crossed
// degradedErrorRate.
func (p *Predictor) Health() HealthStatus {
	total, failed, avg, last := p.stats.Snapshot()
	st := HealthStatus{
		Status:           "healthy",
		TotalPredictions: total,
		AvgLatencyMs:     float64(avg) / float64(time.Millisecond),
		UptimeSeconds:    time.Since(p.started).Seconds(),
		Timestamp:        time.Now().UTC(),
	}
	if total > 0 {
		st.ErrorRate = float64(failed) / float64(total)
	}
	if !last.IsZero() {
		at := last
		st.LastPrediction = &at
	}
	for _, ms := range p.registry.Status() {
		if ms.Name == p.defaultModel {
			st.ModelLoaded = ms.Loaded
			st.ModelVersion = ms.Version
		}
	}
	switch {
	case !st.ModelLoaded:
		st.Status = "unhealthy"
	case st.ErrorRate > degradedErrorRate:
		st.Status = "degraded"
	}

	if prev, ok := p.health.Load().(HealthStatus); !ok || prev.Status != st.Status {
		log.Info().
			Str("status", st.Status).
			Float64("error_rate", st.ErrorRate).
			Bool("model_loaded", st.ModelLoaded).
			Msg("health status changed")
	}
	p.health.Store(st)
	return st
}

// FeatureVectorFromJSON converts a decoded JSON feature object into a
// model vector. Numbers pass through, explicit null means observed but
// unusable, and anything else that cannot be read as a number degrades to
// missing with a feature-error count. Numeric strings are accepted
// because several upstream systems quote their lab values.
func FeatureVectorFromJSON(features map[string]any, m MetricsSink) booster.FeatureVector {
	if m != nil {
		m.FeatureVectorsInc()
	}
	fv := make(booster.FeatureVector, len(features))
	for name, v := range features {
		switch val := v.(type) {
		case float64:
			fv[name] = val
		case json.Number:
			f, err := val.Float64()
			if err != nil {
				fv[name] = unusable(name, val, m)
				continue
			}
			fv[name] = f
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
			if err != nil {
				fv[name] = unusable(name, val, m)
				continue
			}
			fv[name] = f
		case nil:
			fv[name] = booster.Missing()
		default:
			fv[name] = unusable(name, val, m)
		}
	}
	return fv
}

func unusable(name string, v any, m MetricsSink) float64 {
	if m != nil {
		m.FeatureErrorsInc()
	}
	log.Debug().Str("feature", name).Interface("value", v).Msg("unusable feature value scored as missing")
	return booster.Missing()
}
