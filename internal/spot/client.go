// Package spot is the anti-corruption layer between the control loop and the
// Spot Ocean elastic-compute API. All outbound capacity calls route through a
// single resilient client enforcing timeouts, circuit breaking, retries with
// exponential backoff, and error mapping to types.AppError.
package spot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"stormsurge/internal/types"
)

// RetryPolicy configures the retry behavior for capacity API calls.
// Retries apply only to network errors and 5xx responses; 4xx responses are
// surfaced immediately.
type RetryPolicy struct {
	MaxRetries  int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// DefaultRetryPolicy returns the product defaults: 3 retries, exponential
// backoff starting at 1s, doubling, capped at 8s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  3,
		BackoffBase: 1 * time.Second,
		BackoffCap:  8 * time.Second,
	}
}

// backoff returns the wait before retry attempt n (0-based).
func (p RetryPolicy) backoff(attempt int) time.Duration {
	wait := p.BackoffBase << attempt
	if wait > p.BackoffCap {
		wait = p.BackoffCap
	}
	return wait
}

// capacityPayload mirrors the Spot Ocean capacity object on the wire.
type capacityPayload struct {
	Target  int `json:"target"`
	Minimum int `json:"minimum"`
	Maximum int `json:"maximum"`
}

// clusterResponse is the envelope Spot Ocean wraps cluster reads in.
type clusterResponse struct {
	Response struct {
		Capacity capacityPayload `json:"capacity"`
	} `json:"response"`
}

// updateRequest is the PUT body for a capacity mutation.
type updateRequest struct {
	Cluster struct {
		Capacity capacityPayload `json:"capacity"`
	} `json:"cluster"`
}

// Client wraps the Spot Ocean cluster read/modify API with a fixed request
// timeout, bounded retries, and a circuit breaker. It is safe for concurrent
// use, though the control loop serializes mutations behind the scaling lock.
type Client struct {
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[*http.Response]
	retry      RetryPolicy
	baseURL    string
	clusterID  string
	token      types.SecretString
	logger     *slog.Logger
	sleepFn    func(time.Duration) // injected for tests; defaults to time.Sleep
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithSleepFunc overrides the sleep function used between retries.
// Intended for tests to avoid real delays.
func WithSleepFunc(fn func(time.Duration)) Option {
	return func(c *Client) {
		c.sleepFn = fn
	}
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a capacity client for the given cluster.
func NewClient(
	baseURL, clusterID string,
	token types.SecretString,
	requestTimeout time.Duration,
	retry RetryPolicy,
	logger *slog.Logger,
	opts ...Option,
) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "spot-ocean",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})

	c := &Client{
		httpClient: &http.Client{Timeout: requestTimeout},
		breaker:    cb,
		retry:      retry,
		baseURL:    baseURL,
		clusterID:  clusterID,
		token:      token,
		logger:     logger,
		sleepFn:    time.Sleep,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// GetCapacity fetches the current cluster capacity.
func (c *Client) GetCapacity(ctx context.Context) (types.CapacitySnapshot, error) {
	resp, err := c.do(ctx, http.MethodGet, nil, types.ErrCodeCapacityFetchFailed)
	if err != nil {
		return types.CapacitySnapshot{}, err
	}
	defer resp.Body.Close()

	var body clusterResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return types.CapacitySnapshot{}, types.NewAppError(
			types.ErrCodeCapacityFetchFailed,
			"failed to decode cluster capacity response",
			err,
		)
	}

	return types.CapacitySnapshot{
		Current:   body.Response.Capacity.Target,
		Min:       body.Response.Capacity.Minimum,
		Max:       body.Response.Capacity.Maximum,
		FetchedAt: time.Now().UTC(),
	}, nil
}

// SetCapacity submits a capacity update for the cluster.
func (c *Client) SetCapacity(ctx context.Context, target, minimum, maximum int) error {
	var req updateRequest
	req.Cluster.Capacity = capacityPayload{
		Target:  target,
		Minimum: minimum,
		Maximum: maximum,
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return types.NewAppError(
			types.ErrCodeInternalUnexpected,
			"failed to marshal capacity update",
			err,
		)
	}

	resp, err := c.do(ctx, http.MethodPut, payload, types.ErrCodeCapacityUpdateFailed)
	if err != nil {
		return err
	}
	resp.Body.Close()

	c.logger.InfoContext(ctx, "cluster capacity updated",
		"cluster_id", c.clusterID,
		"target", target,
		"minimum", minimum,
		"maximum", maximum,
	)
	return nil
}

// do executes a capacity API request with retry and circuit-breaker wrapping.
// Network errors and 5xx responses are retried up to MaxRetries times with
// exponential backoff; 4xx responses are mapped to an AppError immediately.
func (c *Client) do(ctx context.Context, method string, body []byte, failCode types.ErrorCode) (*http.Response, error) {
	url := fmt.Sprintf("%s/cluster/%s", c.baseURL, c.clusterID)

	var lastErr error
	maxAttempts := 1 + c.retry.MaxRetries
	for attempt := 0; attempt < maxAttempts; attempt++ {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to build capacity request", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token.Unmask())
		req.Header.Set("Content-Type", "application/json")
		if traceID := types.GetRequestID(ctx); traceID != "" {
			req.Header.Set("X-Request-Id", traceID)
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.httpClient.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			// 5xx is a breaker failure so consecutive outages trip it open.
			if r.StatusCode >= 500 {
				return r, fmt.Errorf("upstream returned %d", r.StatusCode)
			}
			return r, nil
		})

		if err == nil {
			if resp.StatusCode >= 400 {
				// 4xx: not retryable, surface immediately.
				defer resp.Body.Close()
				code := types.ErrCodeUpstreamRejected
				if resp.StatusCode == http.StatusTooManyRequests {
					code = types.ErrCodeUpstreamRateLimited
				}
				return nil, types.NewAppErrorWithDetails(
					code,
					fmt.Sprintf("capacity API rejected the request with %d", resp.StatusCode),
					nil,
					map[string]any{"status": resp.StatusCode},
				)
			}
			return resp, nil
		}

		lastErr = err
		if resp != nil {
			resp.Body.Close()
		}

		// An open breaker will not recover within our retry budget.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}

		if attempt < maxAttempts-1 {
			wait := c.retry.backoff(attempt)
			c.logger.WarnContext(ctx, "capacity API call failed, retrying",
				"cluster_id", c.clusterID,
				"method", method,
				"attempt", attempt+1,
				"backoff", wait.String(),
				"error", err,
			)
			c.sleepFn(wait)
		}
	}

	return nil, types.NewAppError(
		failCode,
		fmt.Sprintf("capacity API %s failed after %d attempts", method, maxAttempts),
		lastErr,
	)
}
