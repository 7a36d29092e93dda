// Package remote calls the technique-survival service, a separately
// trained model served outside this process. The serving layer merges its
// estimate into prediction responses; the local engine never depends on
// it.
package remote

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/leungkcofficial/detect-pd/internal/booster"
)

// Survival is the typed response of the survival service.
type Survival struct {
	ModelVersion string `json:"model_version,omitempty"`

	// FailureRisk is the probability of technique failure over the
	// service's horizon, in [0,1].
	FailureRisk float64 `json:"failure_risk"`

	// SurvivalByYear maps a horizon label ("1", "2", ...) to the
	// probability of remaining on the technique at that point.
	SurvivalByYear map[string]float64 `json:"survival_by_year,omitempty"`
}

// Observer is the metrics surface the client reports to.
// *metrics.MetricsWrapper satisfies it.
type Observer interface {
	RemoteCallsInc()
	RemoteFailuresInc()
	RemoteLatencyObserve(seconds float64)
}

// Client is a single-attempt HTTP client for the survival service.
// Retrying a failed call is the caller's decision, not the client's.
type Client struct {
	base string
	rest *resty.Client
	obs  Observer
}

// New builds a client for the service at base. obs may be nil.
func New(base string, timeout time.Duration, obs Observer) *Client {
	r := resty.New()
	if timeout > 0 {
		r.SetTimeout(timeout)
	} else {
		r.SetTimeout(5 * time.Second) // default fallback
	}
	return &Client{base: base, rest: r, obs: obs}
}

type survivalRequest struct {
	Features map[string]float64 `json:"features"`
}

// TechniqueSurvival scores fv against the remote survival model.
func (c *Client) TechniqueSurvival(ctx context.Context, fv booster.FeatureVector) (*Survival, error) {
	start := time.Now()
	if c.obs != nil {
		c.obs.RemoteCallsInc()
	}

	out := &Survival{}
	resp, err := c.rest.R().
		SetContext(ctx).
		SetBody(survivalRequest{Features: wireFeatures(fv)}).
		SetResult(out).
		Post(c.base + "/survival/predict")
	if c.obs != nil {
		c.obs.RemoteLatencyObserve(time.Since(start).Seconds())
	}
	if err != nil {
		c.fail()
		return nil, fmt.Errorf("survival request failed: %w", err)
	}
	if resp.StatusCode() != 200 {
		c.fail()
		return nil, fmt.Errorf("survival service: status %d: %s", resp.StatusCode(), resp.String())
	}
	if math.IsNaN(out.FailureRisk) || out.FailureRisk < 0 || out.FailureRisk > 1 {
		c.fail()
		return nil, fmt.Errorf("survival service: failure risk %v out of range", out.FailureRisk)
	}
	return out, nil
}

func (c *Client) fail() {
	if c.obs != nil {
		c.obs.RemoteFailuresInc()
	}
}

// wireFeatures drops missing values before encoding. NaN has no JSON
// representation; the service reads an absent key as missing.
func wireFeatures(fv booster.FeatureVector) map[string]float64 {
	out := make(map[string]float64, len(fv))
	for name, v := range fv {
		if math.IsNaN(v) {
			continue
		}
		out[name] = v
	}
	return out
}
