// Package drivers ranks how far a scored vector's features sit from a
// reference population. The ranking is presentation metadata computed
// entirely outside the engine; entries attach to a PredictionResult and
// ride along untouched.
package drivers

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/leungkcofficial/detect-pd/internal/booster"
)

// FeatureBaseline is the reference distribution of one model input.
type FeatureBaseline struct {
	Feature string  `json:"feature"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
}

// Reference holds per-feature baselines for one population, typically
// exported by the training pipeline alongside the model artifact.
type Reference struct {
	mu        sync.RWMutex
	baselines map[string]FeatureBaseline
}

// New returns an empty reference.
func New() *Reference {
	return &Reference{baselines: make(map[string]FeatureBaseline)}
}

// Load reads a baselines file. A configured-but-unreadable file is an
// error; explanations silently based on nothing would mislead.
func Load(path string) (*Reference, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read baselines %s: %w", path, err)
	}
	var baselines map[string]FeatureBaseline
	if err := json.Unmarshal(raw, &baselines); err != nil {
		return nil, fmt.Errorf("parse baselines %s: %w", path, err)
	}
	r := New()
	for name, b := range baselines {
		b.Feature = name
		r.baselines[name] = b
	}
	return r, nil
}

// Set inserts or replaces one baseline.
func (r *Reference) Set(b FeatureBaseline) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.baselines[b.Feature] = b
}

// Baseline returns the stored distribution for one feature.
func (r *Reference) Baseline(name string) (FeatureBaseline, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.baselines[name]
	return b, ok
}

// Len returns the number of stored baselines.
func (r *Reference) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.baselines)
}

// Save writes the baselines to disk.
func (r *Reference) Save(path string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(r.baselines, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// Rank scores every usable feature by its absolute standardized
// deviation from the baseline mean and returns the top n, largest
// deviation first, ties by feature name. Missing values, features
// without a baseline and degenerate baselines (zero spread) are
// skipped. n below 1 returns every scored entry.
func (r *Reference) Rank(fv booster.FeatureVector, n int) []booster.FeatureDriver {
	r.mu.RLock()
	defer r.mu.RUnlock()

	scored := make([]booster.FeatureDriver, 0, len(fv))
	for name, value := range fv {
		if math.IsNaN(value) {
			continue
		}
		b, ok := r.baselines[name]
		if !ok || b.StdDev <= 0 {
			continue
		}

		direction := "above"
		if value < b.Mean {
			direction = "below"
		}
		scored = append(scored, booster.FeatureDriver{
			Feature:   name,
			Value:     value,
			Reference: b.Mean,
			Score:     math.Abs(value-b.Mean) / b.StdDev,
			Direction: direction,
		})
	}

	sort.Slice(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].Feature < scored[j].Feature
	})

	if n < 1 || n > len(scored) {
		n = len(scored)
	}
	return scored[:n]
}
