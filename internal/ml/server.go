package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/leungkcofficial/detect-pd/internal/booster"
)

// HistoryStore persists issued predictions for audit. *storage.Store
// satisfies it.
type HistoryStore interface {
	Append(ctx context.Context, p *Prediction) error
}

// Feed receives every issued prediction for live display. *dashboard.Hub
// satisfies it.
type Feed interface {
	Publish(p *Prediction)
}

// Server is the prediction HTTP API.
type Server struct {
	predictor *Predictor
	registry  *Registry
	store     HistoryStore
	feed      Feed
	server    *http.Server
}

// NewServer wires the API routes. Audit and feed sinks are optional and
// attach through WithStore and WithFeed before Start.
func NewServer(port int, predictor *Predictor, registry *Registry) *Server {
	s := &Server{
		predictor: predictor,
		registry:  registry,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/predict", s.handlePredict)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/model/info", s.handleModelInfo)
	mux.HandleFunc("/model/reload", s.handleReload)

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// WithStore adds an audit sink for issued predictions.
func (s *Server) WithStore(store HistoryStore) *Server {
	s.store = store
	return s
}

// WithFeed adds a live prediction feed.
func (s *Server) WithFeed(feed Feed) *Server {
	s.feed = feed
	return s
}

// Start serves the API until Shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Msg("prediction API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req PredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if len(req.Features) == 0 {
		http.Error(w, "features object is required", http.StatusBadRequest)
		return
	}

	pred, err := s.predictor.Predict(r.Context(), req)
	if err != nil {
		status := errorStatus(err)
		log.Warn().Err(err).Int("status", status).Msg("prediction failed")
		http.Error(w, err.Error(), status)
		return
	}

	if s.store != nil {
		if err := s.store.Append(r.Context(), pred); err != nil {
			log.Warn().Err(err).Str("prediction_id", pred.ID).Msg("history append failed")
		}
	}
	if s.feed != nil {
		s.feed.Publish(pred)
	}

	writeJSON(w, http.StatusOK, pred)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := s.predictor.Health()
	status := http.StatusOK
	if health.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, health)
}

func (s *Server) handleModelInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"default_model": s.predictor.DefaultModel(),
		"models":        s.registry.Status(),
	})
}

func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	// An empty body reloads the default model.
	var req struct {
		Model string `json:"model"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	name := req.Model
	if name == "" {
		name = s.predictor.DefaultModel()
	}

	doc, err := s.registry.Reload(r.Context(), name)
	if err != nil {
		status := errorStatus(err)
		log.Warn().Err(err).Str("model", name).Int("status", status).Msg("model reload failed")
		http.Error(w, err.Error(), status)
		return
	}

	log.Info().Str("model", name).Str("version", doc.Version).Msg("model reloaded")
	writeJSON(w, http.StatusOK, map[string]string{
		"model":   name,
		"version": doc.Version,
	})
}

// errorStatus maps the load and evaluation taxonomy onto HTTP statuses.
// Malformed artifacts stay 5xx: the client did nothing wrong.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnknownModel):
		return http.StatusNotFound
	case errors.Is(err, booster.ErrLoadTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, booster.ErrLoadIO):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response failed")
	}
}
