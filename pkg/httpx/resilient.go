// Package httpx wraps an HTTP client with retries and a circuit
// breaker. The composer client itself never retries; callers that want
// resilience against transient control-plane failures wrap their
// client with a ResilientDoer and pass it in.
package httpx

import (
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
)

// Doer issues one HTTP request.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ResilienceConfig bundles the retry and breaker settings.
type ResilienceConfig struct {
	Backoff         *backoff.ExponentialBackOff
	BreakerSettings gobreaker.Settings
}

// DefaultResilienceConfig mirrors the settings used for the Composer
// control plane: short exponential backoff capped well under the poll
// loop's own cadence, breaker tripping after a run of failures.
func DefaultResilienceConfig() *ResilienceConfig {
	bo := &backoff.ExponentialBackOff{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         5 * time.Second,
		MaxElapsedTime:      30 * time.Second,
		Multiplier:          1.5,
		RandomizationFactor: 0.5,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	return &ResilienceConfig{
		Backoff: bo,
		BreakerSettings: gobreaker.Settings{
			Name:        "composer-control-plane",
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		},
	}
}

// ResilientDoer retries network errors and 5xx responses with
// exponential backoff, behind a circuit breaker. Responses below 500
// pass through untouched; interpreting them is the caller's business.
type ResilientDoer struct {
	base    Doer
	cfg     *ResilienceConfig
	breaker *gobreaker.CircuitBreaker
}

func NewResilientDoer(base Doer, cfg *ResilienceConfig) *ResilientDoer {
	if cfg == nil {
		cfg = DefaultResilienceConfig()
	}
	return &ResilientDoer{
		base:    base,
		cfg:     cfg,
		breaker: gobreaker.NewCircuitBreaker(cfg.BreakerSettings),
	}
}

// Do issues req, replaying the body via req.GetBody on each retry.
// Requests built with a bytes.Reader body (as the composer client does)
// carry GetBody automatically.
func (d *ResilientDoer) Do(req *http.Request) (*http.Response, error) {
	operation := func() (*http.Response, error) {
		attempt := req
		if req.GetBody != nil {
			body, err := req.GetBody()
			if err != nil {
				return nil, backoff.Permanent(fmt.Errorf("httpx: replay body: %w", err))
			}
			attempt = req.Clone(req.Context())
			attempt.Body = body
		}

		res, err := d.breaker.Execute(func() (any, error) {
			resp, err := d.base.Do(attempt)
			if err != nil {
				return nil, err
			}
			// 5xx counts as a breaker failure and gets retried
			if resp.StatusCode >= 500 {
				resp.Body.Close()
				return nil, fmt.Errorf("httpx: server error: %s", resp.Status)
			}
			return resp, nil
		})
		if err != nil {
			return nil, err
		}
		return res.(*http.Response), nil
	}

	// each request gets its own backoff state, the template is shared
	ebo := *d.cfg.Backoff
	bo := backoff.WithContext(&ebo, req.Context())
	return backoff.RetryWithData(operation, bo)
}
