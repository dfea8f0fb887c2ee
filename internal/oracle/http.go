package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"fxanalyst/internal/breaker"
	"fxanalyst/internal/features"
)

// Config holds the HTTP oracle settings.
type Config struct {
	URL            string        `yaml:"url"`
	Timeout        time.Duration `yaml:"timeout" default:"5s" validate:"gt=0"`
	RequestsPerSec float64       `yaml:"requests_per_sec" default:"2" validate:"gt=0"`
	Burst          int           `yaml:"burst" default:"2" validate:"gte=1"`
	MaxRetries     int           `yaml:"max_retries" default:"2" validate:"gte=0"`
	MaxFailures    int           `yaml:"max_failures" default:"5" validate:"gte=0"`
	Cooldown       time.Duration `yaml:"cooldown" default:"30s"`
}

type inferRequest struct {
	Features      map[string]float64 `json:"features"`
	SchemaVersion string             `json:"schema_version"`
}

type inferResponse struct {
	Probability *float64 `json:"probability"`
}

// HTTPClient POSTs feature vectors to <url>/infer. Calls are rate limited,
// retried with exponential backoff inside the per-call timeout and guarded by
// a circuit breaker.
type HTTPClient struct {
	endpoint string
	timeout  time.Duration
	retries  int
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *breaker.Breaker
}

// NewHTTPClient creates an HTTP oracle. The breaker may be shared with
// metrics hooks by the caller.
func NewHTTPClient(cfg Config, br *breaker.Breaker) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = 2
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if br == nil {
		br = breaker.New("oracle", cfg.MaxFailures, cfg.Cooldown)
	}
	return &HTTPClient{
		endpoint: strings.TrimRight(cfg.URL, "/") + "/infer",
		timeout:  cfg.Timeout,
		retries:  cfg.MaxRetries,
		http:     &http.Client{},
		limiter:  rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		breaker:  br,
	}
}

// Score implements Oracle. It never blocks longer than the configured timeout.
func (c *HTTPClient) Score(ctx context.Context, v features.Vector) Result {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(inferRequest{Features: v.Map(), SchemaVersion: features.SchemaVersion})
	if err != nil {
		return Fallback(FailureMalformed, err)
	}

	var p float64
	err = c.breaker.Execute(func() error {
		var callErr error
		p, callErr = c.call(ctx, body)
		return callErr
	})

	var res Result
	switch {
	case err == nil:
		res = OK(p)
	case ctx.Err() != nil && Classify(err) == FailureUnreachable:
		res = Fallback(FailureTimeout, fmt.Errorf("%w: %v", context.DeadlineExceeded, err))
	default:
		res = Fallback(Classify(err), err)
	}
	res.Latency = time.Since(start)
	return res
}

func (c *HTTPClient) call(ctx context.Context, body []byte) (float64, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		return 0, err
	}

	var p float64
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			io.Copy(io.Discard, resp.Body)
			return &StatusError{StatusCode: resp.StatusCode}
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(&StatusError{StatusCode: resp.StatusCode})
		}

		var out inferResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			return backoff.Permanent(fmt.Errorf("%w: %v", ErrMalformed, err))
		}
		if out.Probability == nil {
			return backoff.Permanent(fmt.Errorf("%w: missing probability", ErrMalformed))
		}
		if err := checkRange(*out.Probability); err != nil {
			return backoff.Permanent(err)
		}
		p = *out.Probability
		return nil
	}

	strategy := backoff.NewExponentialBackOff()
	strategy.InitialInterval = 100 * time.Millisecond
	strategy.MaxElapsedTime = c.timeout

	retry := backoff.WithContext(backoff.WithMaxRetries(strategy, uint64(c.retries)), ctx)
	if err := backoff.Retry(operation, retry); err != nil {
		return 0, err
	}
	return p, nil
}

// Breaker exposes the circuit breaker for health reporting.
func (c *HTTPClient) Breaker() *breaker.Breaker { return c.breaker }
