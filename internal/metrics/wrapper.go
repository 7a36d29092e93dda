package metrics

import "github.com/prometheus/client_golang/prometheus"

// Interfaces for metrics to avoid circular imports
type MetricsCounter interface {
	Inc()
}

type MetricsGauge interface {
	Set(float64)
	Add(float64)
}

type MetricsHistogram interface {
	Observe(float64)
}

// MetricsWrapper exposes the metric set as plain methods so consumer
// packages (ml, features, remote, storage) can declare narrow interfaces
// against it instead of importing prometheus types.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// Prediction metrics.

func (w *MetricsWrapper) PredictionsInc()                    { w.m.Predictions.Inc() }
func (w *MetricsWrapper) PredictionFailuresInc()             { w.m.PredictionFailures.Inc() }
func (w *MetricsWrapper) PredictionLatencyObserve(s float64) { w.m.PredictionLatency.Observe(s) }
func (w *MetricsWrapper) PredictionScoreObserve(p float64)   { w.m.PredictionScores.Observe(p) }

// Model lifecycle metrics.

func (w *MetricsWrapper) ModelLoadsInc()                     { w.m.ModelLoads.Inc() }
func (w *MetricsWrapper) ModelLoadFailuresInc()              { w.m.ModelLoadFailures.Inc() }
func (w *MetricsWrapper) ModelLoadTimeoutsInc()              { w.m.ModelLoadTimeouts.Inc() }
func (w *MetricsWrapper) ModelLoadDurationObserve(s float64) { w.m.ModelLoadDuration.Observe(s) }
func (w *MetricsWrapper) ModelAgeSet(s float64)              { w.m.ModelAge.Set(s) }
func (w *MetricsWrapper) ModelsCachedSet(n float64)          { w.m.ModelsCached.Set(n) }

// Feature derivation metrics.

func (w *MetricsWrapper) FeatureVectorsInc() { w.m.FeatureVectors.Inc() }
func (w *MetricsWrapper) FeatureErrorsInc()  { w.m.FeatureErrors.Inc() }

// Remote fallback metrics.

func (w *MetricsWrapper) RemoteCallsInc()                { w.m.RemoteCalls.Inc() }
func (w *MetricsWrapper) RemoteFailuresInc()             { w.m.RemoteFailures.Inc() }
func (w *MetricsWrapper) RemoteLatencyObserve(s float64) { w.m.RemoteLatency.Observe(s) }

// Storage and system metrics.

func (w *MetricsWrapper) HistoryRecordsInc() { w.m.HistoryRecords.Inc() }
func (w *MetricsWrapper) ErrorsTotalInc()    { w.m.ErrorsTotal.Inc() }

// Typed accessors for call sites that hold a single metric.

func (w *MetricsWrapper) PredictionsCounter() MetricsCounter {
	return &CounterWrapper{w.m.Predictions}
}

func (w *MetricsWrapper) ModelAgeGauge() MetricsGauge {
	return &GaugeWrapper{w.m.ModelAge}
}

func (w *MetricsWrapper) PredictionLatencyHistogram() MetricsHistogram {
	return &HistogramWrapper{w.m.PredictionLatency}
}

type CounterWrapper struct {
	c prometheus.Counter
}

func (cw *CounterWrapper) Inc() {
	cw.c.Inc()
}

type GaugeWrapper struct {
	g prometheus.Gauge
}

func (gw *GaugeWrapper) Set(v float64) {
	gw.g.Set(v)
}

func (gw *GaugeWrapper) Add(v float64) {
	gw.g.Add(v)
}

type HistogramWrapper struct {
	h prometheus.Histogram
}

func (hw *HistogramWrapper) Observe(v float64) {
	hw.h.Observe(v)
}
