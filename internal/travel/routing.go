package travel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"kribdispatch/internal/metrics"
	"kribdispatch/internal/model"
)

// Routed queries an OSRM-compatible routing backend for drive times.
// Any backend failure (timeout, 5xx, malformed body, rate starvation)
// is absorbed: the caller always gets an estimate, sourced from the
// distance fallback when the backend cannot answer.
type Routed struct {
	BaseURL  string
	Profile  string
	HTTP     *http.Client
	Limiter  *rate.Limiter
	Fallback Estimator
}

// NewRouted builds a routing-backed estimator. baseURL is the OSRM
// server root, e.g. "https://router.project-osrm.org".
func NewRouted(baseURL string) *Routed {
	return &Routed{
		BaseURL:  baseURL,
		Profile:  "driving",
		HTTP:     &http.Client{Timeout: 5 * time.Second},
		Limiter:  rate.NewLimiter(rate.Limit(10), 20),
		Fallback: Fallback{},
	}
}

func (r *Routed) Estimate(ctx context.Context, from, to model.GeoPoint) time.Duration {
	d, err := r.route(ctx, from, to)
	if err != nil {
		metrics.TravelFallbacks.Inc()
		return r.Fallback.Estimate(ctx, from, to)
	}
	return d
}

type osrmResponse struct {
	Code   string `json:"code"`
	Routes []struct {
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

func (r *Routed) route(ctx context.Context, from, to model.GeoPoint) (time.Duration, error) {
	if r.Limiter != nil {
		if err := r.Limiter.Wait(ctx); err != nil {
			return 0, err
		}
	}
	url := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?overview=false",
		r.BaseURL, r.Profile, from.Lng, from.Lat, to.Lng, to.Lat)
	resp, err := r.doWithRetry(ctx, url)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()
	var body osrmResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, err
	}
	if body.Code != "Ok" || len(body.Routes) == 0 {
		return 0, fmt.Errorf("routing backend: code=%s routes=%d", body.Code, len(body.Routes))
	}
	return time.Duration(body.Routes[0].Duration * float64(time.Second)), nil
}

// doWithRetry retries transient failures (network errors, 429/5xx)
// with exponential backoff while respecting context cancellation.
func (r *Routed) doWithRetry(ctx context.Context, url string) (*http.Response, error) {
	const maxAttempts = 3
	backoff := 150 * time.Millisecond

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := r.HTTP.Do(req)
		if err == nil && resp.StatusCode < 400 {
			return resp, nil
		}
		retry := false
		if err == nil {
			code := resp.StatusCode
			_ = resp.Body.Close()
			lastErr = fmt.Errorf("routing backend: status %d", code)
			retry = code == 429 || code >= 500
		} else {
			lastErr = err
			var netErr net.Error
			retry = errors.As(err, &netErr)
		}
		if !retry || attempt == maxAttempts {
			return nil, lastErr
		}
		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return nil, lastErr
}
