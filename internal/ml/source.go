package ml

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/leungkcofficial/detect-pd/internal/booster"
	"github.com/leungkcofficial/detect-pd/internal/cfg"
)

// Source yields the raw bytes of one model artifact. Implementations make
// a single attempt per call; retry policy belongs to the caller.
type Source interface {
	Fetch(ctx context.Context) ([]byte, error)

	// Location names the artifact origin for logs and status output.
	Location() string
}

// FileSource reads the artifact from the local filesystem.
type FileSource struct {
	Path string
}

func (s FileSource) Fetch(_ context.Context) ([]byte, error) {
	raw, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("read model artifact %s: %w: %w", s.Path, booster.ErrLoadIO, err)
	}
	return raw, nil
}

func (s FileSource) Location() string { return s.Path }

// HTTPSource fetches the artifact from a model store over HTTP.
type HTTPSource struct {
	url  string
	rest *resty.Client
}

func NewHTTPSource(url string, timeout time.Duration) *HTTPSource {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(30 * time.Second) // default fallback
	}
	return &HTTPSource{url: url, rest: r}
}

func (s *HTTPSource) Fetch(ctx context.Context) ([]byte, error) {
	resp, err := s.rest.R().SetContext(ctx).Get(s.url)
	if err != nil {
		// Context expiry is reported as-is so the registry can tell a
		// timed-out load from an unreachable store.
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("fetch model artifact %s: %w: %w", s.url, booster.ErrLoadIO, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("fetch model artifact %s: status %d: %w", s.url, resp.StatusCode(), booster.ErrLoadIO)
	}
	return resp.Body(), nil
}

func (s *HTTPSource) Location() string { return s.url }

// SourceFor builds the artifact source a model config names.
func SourceFor(mc cfg.ModelConfig, timeout time.Duration) (Source, error) {
	switch {
	case mc.Path != "" && mc.URL != "":
		return nil, errors.New("path and url are mutually exclusive")
	case mc.Path != "":
		return FileSource{Path: mc.Path}, nil
	case mc.URL != "":
		return NewHTTPSource(mc.URL, timeout), nil
	default:
		return nil, errors.New("either path or url is required")
	}
}

// loadCalibration reads a reliability sidecar written by the training
// pipeline. The serving layer never computes these numbers, it only
// carries them.
func loadCalibration(path string) (*booster.Calibration, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read calibration sidecar %s: %w", path, err)
	}
	var c booster.Calibration
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("parse calibration sidecar %s: %w", path, err)
	}
	return &c, nil
}
