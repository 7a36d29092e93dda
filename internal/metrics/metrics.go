// Package metrics provides Prometheus metrics collection for the detect-pd
// serving stack. It defines and manages the prediction, model-lifecycle,
// feature-derivation and remote-call metrics exposed on the Prometheus
// endpoint for monitoring and alerting.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the serving stack.
type Metrics struct {
	// Prediction metrics
	Predictions        prometheus.Counter   // Total number of predictions served
	PredictionFailures prometheus.Counter   // Total number of failed prediction calls
	PredictionLatency  prometheus.Histogram // End-to-end prediction latency in seconds
	PredictionScores   prometheus.Histogram // Distribution of winning-class probabilities

	// Model lifecycle metrics
	ModelLoads        prometheus.Counter   // Total number of completed artifact loads
	ModelLoadFailures prometheus.Counter   // Total number of failed artifact loads
	ModelLoadTimeouts prometheus.Counter   // Total number of artifact loads that hit the deadline
	ModelLoadDuration prometheus.Histogram // Artifact fetch+parse+validate duration in seconds
	ModelAge          prometheus.Gauge     // Age of the default model document in seconds
	ModelsCached      prometheus.Gauge     // Model documents resident in the registry

	// Feature derivation metrics
	FeatureVectors prometheus.Counter // Total number of feature vectors assembled
	FeatureErrors  prometheus.Counter // Unusable inputs downgraded to missing values

	// Remote fallback metrics
	RemoteCalls    prometheus.Counter   // Total number of remote survival-service calls
	RemoteFailures prometheus.Counter   // Total number of failed remote calls
	RemoteLatency  prometheus.Histogram // Remote call latency in seconds

	// Storage metrics
	HistoryRecords prometheus.Counter // Prediction records written to the history store

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
// This is the standard way to create metrics for production use.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// This allows for isolated metric collection in tests without affecting
// the global Prometheus registry.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of predictions served",
		}),
		PredictionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of failed prediction calls",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "End-to-end prediction latency in seconds",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}),
		PredictionScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_scores",
			Help:    "Distribution of winning-class probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		ModelLoads: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_loads_total",
			Help: "Total number of completed artifact loads",
		}),
		ModelLoadFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_load_failures_total",
			Help: "Total number of failed artifact loads",
		}),
		ModelLoadTimeouts: factory.NewCounter(prometheus.CounterOpts{
			Name: "model_load_timeouts_total",
			Help: "Total number of artifact loads that exceeded the deadline",
		}),
		ModelLoadDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "model_load_duration_seconds",
			Help:    "Artifact fetch, parse and validation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		ModelAge: factory.NewGauge(prometheus.GaugeOpts{
			Name: "model_age_seconds",
			Help: "Age of the default model document in seconds",
		}),
		ModelsCached: factory.NewGauge(prometheus.GaugeOpts{
			Name: "models_cached",
			Help: "Model documents resident in the registry",
		}),
		FeatureVectors: factory.NewCounter(prometheus.CounterOpts{
			Name: "feature_vectors_total",
			Help: "Total number of feature vectors assembled",
		}),
		FeatureErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "feature_errors_total",
			Help: "Unusable feature inputs downgraded to missing values",
		}),
		RemoteCalls: factory.NewCounter(prometheus.CounterOpts{
			Name: "remote_calls_total",
			Help: "Total number of remote survival-service calls",
		}),
		RemoteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "remote_failures_total",
			Help: "Total number of failed remote calls",
		}),
		RemoteLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "remote_latency_seconds",
			Help:    "Remote survival-service call latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		HistoryRecords: factory.NewCounter(prometheus.CounterOpts{
			Name: "history_records_total",
			Help: "Prediction records written to the history store",
		}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

