// Package transport wraps outbound HTTP calls in a circuit breaker so that a
// dead price API, relay or messaging endpoint fails fast instead of piling up
// timeouts. Calls are never retried here; the next recompute cycle is the
// retry.
package transport

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// ErrUnavailable is returned while the breaker is open
var ErrUnavailable = errors.New("endpoint temporarily unavailable")

// Client is an *http.Client guarded by a circuit breaker
type Client struct {
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	userAgent string
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithUserAgent sets the User-Agent header on every request
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// New creates a client whose breaker trips after five consecutive failures
func New(name string, opts ...Option) *Client {
	c := &Client{
		http: &http.Client{Timeout: 30 * time.Second},
		breaker: gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
			Name:        name,
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Do executes req through the breaker. Transport errors and 5xx responses
// count as failures; every other response is returned to the caller, which
// owns the body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		if r.StatusCode >= 500 {
			return r, fmt.Errorf("upstream returned %d", r.StatusCode)
		}
		return r, nil
	})

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %w", c.breaker.Name(), ErrUnavailable)
	}
	if err != nil && resp != nil {
		// 5xx: hand the response back so the caller can report status and body
		return resp, nil
	}
	return resp, err
}

// State reports the breaker state
func (c *Client) State() string {
	return c.breaker.State().String()
}
