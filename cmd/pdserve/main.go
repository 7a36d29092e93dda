package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/leungkcofficial/detect-pd/internal/cfg"
	"github.com/leungkcofficial/detect-pd/internal/common"
	"github.com/leungkcofficial/detect-pd/internal/dashboard"
	"github.com/leungkcofficial/detect-pd/internal/drivers"
	"github.com/leungkcofficial/detect-pd/internal/metrics"
	"github.com/leungkcofficial/detect-pd/internal/ml"
	"github.com/leungkcofficial/detect-pd/internal/remote"
	"github.com/leungkcofficial/detect-pd/internal/storage"
)

// AuditStoreAdapter adapts storage.Store to the ml.HistoryStore interface
// and keeps the audit counters current.
type AuditStoreAdapter struct {
	store *storage.Store
	mw    *metrics.MetricsWrapper
}

func (a *AuditStoreAdapter) Append(ctx context.Context, p *ml.Prediction) error {
	if a.store == nil {
		return nil
	}
	if err := a.store.Append(ctx, p); err != nil {
		a.mw.ErrorsTotalInc()
		return err
	}
	a.mw.HistoryRecordsInc()
	return nil
}

func main() {
	setupLogging()

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize components
	m := metrics.New()
	mw := metrics.NewWrapper(m)
	store := initializeStorage(c)
	if store != nil {
		defer store.Close()
	}

	// Start metrics server
	startMetricsServer(ctx, c)

	registry, err := ml.NewRegistry(c, mw)
	if err != nil {
		log.Fatal().Err(err).Msg("model registry setup failed")
	}
	predictor := ml.NewPredictor(registry, c, mw)
	attachDrivers(c, predictor)
	attachSurvival(c, predictor, mw)

	// Warm the default model so the first request does not pay the load.
	// The load fn carries its own timeout, so the parent ctx suffices.
	if _, err := registry.Get(ctx, c.DefaultModel); err != nil {
		log.Warn().Err(err).Str("model", c.DefaultModel).Msg("default model warm-up failed, serving degraded until reload")
	}

	server := ml.NewServer(c.ListenPort, predictor, registry)
	if store != nil {
		server.WithStore(&AuditStoreAdapter{store: store, mw: mw})
	}

	hub := startDashboard(c, predictor, registry, server, store)

	// Start background goroutines
	var wg sync.WaitGroup
	startRetentionLoop(ctx, &wg, store, c, mw)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("prediction API failed")
			cancel()
		}
	}()

	mc := c.GetModelConfig(c.DefaultModel)
	artifact := mc.Path
	if artifact == "" {
		artifact = mc.URL
	}
	log.Info().
		Int("listen", c.ListenPort).
		Int("metrics", c.MetricsPort).
		Str("model", c.DefaultModel).
		Str("artifact", artifact).
		Msg("detect-pd serving")

	// Wait for shutdown signal
	waitForShutdown(ctx, cancel, &wg)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("prediction API shutdown failed")
	}
	if hub != nil {
		if err := hub.Stop(); err != nil {
			log.Error().Err(err).Msg("dashboard stop failed")
		}
	}
}

// setupLogging applies LOG_LEVEL before anything else logs.
func setupLogging() {
	raw := os.Getenv(common.EnvLogLevel)
	if raw == "" {
		raw = common.DefaultLogLevel
	}
	level, err := zerolog.ParseLevel(raw)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

// initializeStorage opens the audit log if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath != "" {
		store, err := storage.New(c.DataPath)
		if err != nil {
			log.Warn().Err(err).Msg("storage initialization failed, continuing without audit history")
			return nil
		}
		return store
	}
	return nil
}

// startMetricsServer starts the Prometheus metrics HTTP server
func startMetricsServer(ctx context.Context, c cfg.Settings) {
	go func() {
		mux := http.NewServeMux()

		// Add health endpoint
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})

		// Add metrics endpoint
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// attachDrivers loads the cohort baselines used for feature-driver
// explanations. Serving continues without drivers when the file is missing.
func attachDrivers(c cfg.Settings, predictor *ml.Predictor) {
	if c.BaselinesPath == "" {
		return
	}
	ref, err := drivers.Load(c.BaselinesPath)
	if err != nil {
		log.Warn().Err(err).Str("path", c.BaselinesPath).Msg("baselines load failed, predictions carry no drivers")
		return
	}
	predictor.WithDrivers(ref)
	log.Info().Int("features", ref.Len()).Msg("feature baselines loaded")
}

// attachSurvival wires the remote technique-survival service when configured
func attachSurvival(c cfg.Settings, predictor *ml.Predictor, mw *metrics.MetricsWrapper) {
	if c.RemoteURL == "" {
		return
	}
	predictor.WithSurvival(remote.New(c.RemoteURL, c.RemoteTimeout, mw))
	log.Info().Str("url", c.RemoteURL).Msg("technique survival service attached")
}

// startDashboard brings up the reporting UI when DASHBOARD_PORT is set and
// feeds it every issued prediction.
func startDashboard(c cfg.Settings, predictor *ml.Predictor, registry *ml.Registry, server *ml.Server, store *storage.Store) *dashboard.Hub {
	if c.DashboardPort <= 0 {
		return nil
	}
	hub := dashboard.NewHub(c.DashboardPort, predictor, registry)
	if store != nil {
		hub.WithHistory(store)
	}
	server.WithFeed(hub)
	if err := hub.Start(); err != nil {
		log.Error().Err(err).Msg("dashboard start failed")
		return nil
	}
	return hub
}

// startRetentionLoop prunes audit records past their retention window once
// an hour
func startRetentionLoop(ctx context.Context, wg *sync.WaitGroup, store *storage.Store, c cfg.Settings, mw *metrics.MetricsWrapper) {
	if store == nil || c.HistoryRetention <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				cutoff := time.Now().Add(-c.HistoryRetention)
				removed, err := store.Prune(ctx, cutoff)
				if err != nil {
					log.Error().Err(err).Msg("history prune failed")
					mw.ErrorsTotalInc()
					continue
				}
				if removed > 0 {
					log.Info().Int("removed", removed).Time("cutoff", cutoff).Msg("history pruned")
				}
			}
		}
	}()
}

// waitForShutdown waits for shutdown signals and handles graceful shutdown
func waitForShutdown(ctx context.Context, cancel context.CancelFunc, wg *sync.WaitGroup) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		log.Info().Msg("shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("context canceled")
	}

	log.Info().Msg("shutting down gracefully...")
	cancel() // Cancel context to stop all goroutines

	// Wait for all goroutines to finish with timeout
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Info().Msg("all goroutines stopped")
	case <-time.After(10 * time.Second):
		log.Warn().Msg("shutdown timeout, forcing exit")
	}
}
