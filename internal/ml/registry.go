// Package ml is the serving layer around the booster engine: a keyed
// registry that memoizes artifact loads, the file and HTTP sources those
// artifacts come from, and a predictor that turns feature payloads into
// scored, identified predictions behind an HTTP API.
//
// Loads are deduplicated per model name, so concurrent callers of a
// not-yet-loaded model share one underlying fetch bounded by the
// configured load timeout. The cache is written only when a load
// completes successfully; a failed reload never clobbers a serving
// model, and a failed first load leaves nothing behind to poison later
// attempts.
package ml

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/leungkcofficial/detect-pd/internal/booster"
	"github.com/leungkcofficial/detect-pd/internal/cfg"
)

// ErrUnknownModel reports a model name absent from the configuration.
var ErrUnknownModel = errors.New("model is not configured")

// MetricsSink is the metrics surface this package consumes.
// *metrics.MetricsWrapper satisfies it; tests substitute a mock, and nil
// disables reporting entirely.
type MetricsSink interface {
	PredictionsInc()
	PredictionFailuresInc()
	PredictionLatencyObserve(seconds float64)
	PredictionScoreObserve(p float64)
	ModelLoadsInc()
	ModelLoadFailuresInc()
	ModelLoadTimeoutsInc()
	ModelLoadDurationObserve(seconds float64)
	ModelAgeSet(seconds float64)
	ModelsCachedSet(n float64)
	FeatureVectorsInc()
	FeatureErrorsInc()
}

type entry struct {
	doc      *booster.ModelDocument
	loadedAt time.Time
}

// Registry resolves model names to ready documents. Reads of a cached
// model take a shared lock only; loading is memoized per name through a
// singleflight group whose key lives exactly as long as the load itself.
type Registry struct {
	mu    sync.RWMutex
	cache map[string]*entry

	sources      map[string]Source
	calibrations map[string]string
	timeout      time.Duration
	group        singleflight.Group
	metrics      MetricsSink
}

// NewRegistry builds a source for every configured model. m may be nil.
func NewRegistry(settings cfg.Settings, m MetricsSink) (*Registry, error) {
	sources := make(map[string]Source, len(settings.Models))
	calibrations := make(map[string]string)
	for name, mc := range settings.Models {
		src, err := SourceFor(mc, settings.LoadTimeout)
		if err != nil {
			return nil, fmt.Errorf("model %s: %w", name, err)
		}
		sources[name] = src
		if mc.Calibration != "" {
			calibrations[name] = mc.Calibration
		}
	}
	return &Registry{
		cache:        make(map[string]*entry),
		sources:      sources,
		calibrations: calibrations,
		timeout:      settings.LoadTimeout,
		metrics:      m,
	}, nil
}

// Get returns the ready document for name, loading it on first use. ctx
// bounds only this caller's wait; an in-flight load runs on the
// registry's own deadline and completes for whoever still wants it.
func (r *Registry) Get(ctx context.Context, name string) (*booster.ModelDocument, error) {
	r.mu.RLock()
	e, ok := r.cache[name]
	r.mu.RUnlock()
	if ok {
		if r.metrics != nil {
			r.metrics.ModelAgeSet(time.Since(e.loadedAt).Seconds())
		}
		return e.doc, nil
	}
	return r.loadShared(ctx, name)
}

// Reload runs a fresh load cycle even when name is cached. On success the
// new document replaces the cached one; on failure the cached document
// keeps serving.
func (r *Registry) Reload(ctx context.Context, name string) (*booster.ModelDocument, error) {
	return r.loadShared(ctx, name)
}

// Loaded reports whether name is cached ready.
func (r *Registry) Loaded(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.cache[name]
	return ok
}

func (r *Registry) loadShared(ctx context.Context, name string) (*booster.ModelDocument, error) {
	ch := r.group.DoChan(name, func() (interface{}, error) {
		return r.load(name)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*booster.ModelDocument), nil
	case <-ctx.Done():
		// The shared load keeps running on its own deadline; this caller
		// only stops waiting for it.
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("waiting for model %s: %w", name, booster.ErrLoadTimeout)
		}
		return nil, ctx.Err()
	}
}

// load is the single in-flight load for one model name. The singleflight
// group drops its key the moment this returns, so a failed attempt leaves
// nothing memoized and the next call starts fresh.
func (r *Registry) load(name string) (*booster.ModelDocument, error) {
	src, ok := r.sources[name]
	if !ok {
		return nil, fmt.Errorf("model %s: %w", name, ErrUnknownModel)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	start := time.Now()
	raw, err := src.Fetch(ctx)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			err = fmt.Errorf("load model %s from %s: deadline %v exceeded: %w",
				name, src.Location(), r.timeout, booster.ErrLoadTimeout)
			if r.metrics != nil {
				r.metrics.ModelLoadTimeoutsInc()
			}
		}
		r.loadFailed(name, err)
		return nil, err
	}

	doc, err := booster.Load(raw)
	if err != nil {
		r.loadFailed(name, err)
		return nil, err
	}
	doc.Version = artifactVersion(name, raw)

	if path, ok := r.calibrations[name]; ok {
		calib, err := loadCalibration(path)
		if err != nil {
			r.loadFailed(name, err)
			return nil, err
		}
		doc.Calibration = calib
	}

	r.mu.Lock()
	r.cache[name] = &entry{doc: doc, loadedAt: time.Now()}
	cached := len(r.cache)
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.ModelLoadsInc()
		r.metrics.ModelLoadDurationObserve(time.Since(start).Seconds())
		r.metrics.ModelsCachedSet(float64(cached))
	}
	log.Info().
		Str("model", name).
		Str("version", doc.Version).
		Int("trees", len(doc.Trees)).
		Int("classes", doc.Classes()).
		Dur("took", time.Since(start)).
		Msg("model loaded")
	return doc, nil
}

func (r *Registry) loadFailed(name string, err error) {
	if r.metrics != nil {
		r.metrics.ModelLoadFailuresInc()
	}
	log.Warn().Err(err).Str("model", name).Msg("model load failed")
}

// ModelStatus is one row of the registry's status output.
type ModelStatus struct {
	Name       string     `json:"name"`
	Source     string     `json:"source"`
	Loaded     bool       `json:"loaded"`
	Version    string     `json:"version,omitempty"`
	LoadedAt   *time.Time `json:"loaded_at,omitempty"`
	Classes    int        `json:"classes,omitempty"`
	Features   int        `json:"features,omitempty"`
	Trees      int        `json:"trees,omitempty"`
	Calibrated bool       `json:"calibrated,omitempty"`
}

// Status reports every configured model, loaded or not, sorted by name.
func (r *Registry) Status() []ModelStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ModelStatus, 0, len(r.sources))
	for name, src := range r.sources {
		st := ModelStatus{Name: name, Source: src.Location()}
		if e, ok := r.cache[name]; ok {
			at := e.loadedAt
			st.Loaded = true
			st.Version = e.doc.Version
			st.LoadedAt = &at
			st.Classes = e.doc.Classes()
			st.Features = len(e.doc.FeatureNames)
			st.Trees = len(e.doc.Trees)
			st.Calibrated = e.doc.Calibration != nil
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// artifactVersion derives a stable identifier from the artifact bytes, so
// identical bytes always serve under the same version and a republished
// artifact is visible as a new one.
func artifactVersion(name string, raw []byte) string {
	sum := sha256.Sum256(raw)
	return name + "-" + hex.EncodeToString(sum[:6])
}
