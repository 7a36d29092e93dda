package ml

import "sync"

// MockSink implements MetricsSink for testing.
type MockSink struct {
	mu             sync.Mutex
	predictions    int
	failures       int
	latencyObs     int
	scores         []float64
	loads          int
	loadFailures   int
	loadTimeouts   int
	loadDurations  int
	modelAge       float64
	modelsCached   float64
	featureVectors int
	featureErrors  int
}

func (m *MockSink) PredictionsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions++
}

func (m *MockSink) PredictionFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockSink) PredictionLatencyObserve(float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencyObs++
}

func (m *MockSink) PredictionScoreObserve(p float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scores = append(m.scores, p)
}

func (m *MockSink) ModelLoadsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
}

func (m *MockSink) ModelLoadFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadFailures++
}

func (m *MockSink) ModelLoadTimeoutsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadTimeouts++
}

func (m *MockSink) ModelLoadDurationObserve(float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loadDurations++
}

func (m *MockSink) ModelAgeSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge = v
}

func (m *MockSink) ModelsCachedSet(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelsCached = v
}

func (m *MockSink) FeatureVectorsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.featureVectors++
}

func (m *MockSink) FeatureErrorsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.featureErrors++
}

// Counts returns a copyable snapshot for assertions.
func (m *MockSink) Counts() MockSinkCounts {
	m.mu.Lock()
	defer m.mu.Unlock()
	return MockSinkCounts{
		Predictions:    m.predictions,
		Failures:       m.failures,
		LatencyObs:     m.latencyObs,
		Scores:         append([]float64(nil), m.scores...),
		Loads:          m.loads,
		LoadFailures:   m.loadFailures,
		LoadTimeouts:   m.loadTimeouts,
		LoadDurations:  m.loadDurations,
		ModelAge:       m.modelAge,
		ModelsCached:   m.modelsCached,
		FeatureVectors: m.featureVectors,
		FeatureErrors:  m.featureErrors,
	}
}

// MockSinkCounts is a point-in-time view of a MockSink.
type MockSinkCounts struct {
	Predictions    int
	Failures       int
	LatencyObs     int
	Scores         []float64
	Loads          int
	LoadFailures   int
	LoadTimeouts   int
	LoadDurations  int
	ModelAge       float64
	ModelsCached   float64
	FeatureVectors int
	FeatureErrors  int
}
