// Package httpclient provides the pooled HTTP client and JSON helpers used by
// HTTP-based transports. It does not retry; retries belong to the dispatcher.
package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// DefaultUserAgent is sent when Config.UserAgent is empty
const DefaultUserAgent = "mail-dispatch-kit/1.0"

// Client wraps an *http.Client with default headers and request counters
type Client struct {
	client *http.Client
	config Config

	requestCount int64
	successCount int64
	errorCount   int64
	totalLatency int64 // Nanoseconds
}

// Config configures the HTTP client
type Config struct {
	Timeout   time.Duration     `json:"timeout,omitempty" yaml:"timeout,omitempty" mapstructure:"timeout"`
	Headers   map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" mapstructure:"headers"`
	UserAgent string            `json:"user_agent,omitempty" yaml:"user_agent,omitempty" mapstructure:"user_agent"`

	// Transport configuration
	MaxIdleConns        int           `json:"max_idle_conns,omitempty" yaml:"max_idle_conns,omitempty" mapstructure:"max_idle_conns"`
	MaxIdleConnsPerHost int           `json:"max_idle_conns_per_host,omitempty" yaml:"max_idle_conns_per_host,omitempty" mapstructure:"max_idle_conns_per_host"`
	IdleConnTimeout     time.Duration `json:"idle_conn_timeout,omitempty" yaml:"idle_conn_timeout,omitempty" mapstructure:"idle_conn_timeout"`
	TLSHandshakeTimeout time.Duration `json:"tls_handshake_timeout,omitempty" yaml:"tls_handshake_timeout,omitempty" mapstructure:"tls_handshake_timeout"`

	// RoundTripper wraps the pooled transport, e.g. to add OAuth2 tokens
	RoundTripper func(base http.RoundTripper) http.RoundTripper `json:"-" yaml:"-" mapstructure:"-"`
}

// Stats is a snapshot of client counters
type Stats struct {
	TotalRequests  int64         `json:"total_requests"`
	SuccessfulReqs int64         `json:"successful_requests"`
	FailedReqs     int64         `json:"failed_requests"`
	AvgLatency     time.Duration `json:"avg_latency"`
}

// New creates a client, filling in defaults for zero fields
func New(config Config) *Client {
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 100
	}
	if config.MaxIdleConnsPerHost == 0 {
		config.MaxIdleConnsPerHost = 10
	}
	if config.IdleConnTimeout == 0 {
		config.IdleConnTimeout = 90 * time.Second
	}
	if config.TLSHandshakeTimeout == 0 {
		config.TLSHandshakeTimeout = 10 * time.Second
	}
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}

	var rt http.RoundTripper = &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		TLSHandshakeTimeout: config.TLSHandshakeTimeout,
	}
	if config.RoundTripper != nil {
		rt = config.RoundTripper(rt)
	}

	return &Client{
		client: &http.Client{
			Timeout:   config.Timeout,
			Transport: rt,
		},
		config: config,
	}
}

// HTTPClient returns the underlying *http.Client
func (c *Client) HTTPClient() *http.Client { return c.client }

// Do sends req with ctx and the default headers applied. Any response,
// whatever its status, counts as a completed request; only transport
// errors and non-2xx statuses count as failures.
func (c *Client) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()
	atomic.AddInt64(&c.requestCount, 1)

	req = req.WithContext(ctx)
	for key, value := range c.config.Headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)

	resp, err := c.client.Do(req)
	atomic.AddInt64(&c.totalLatency, int64(time.Since(start)))

	if err != nil {
		atomic.AddInt64(&c.errorCount, 1)
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if IsSuccess(resp.StatusCode) {
		atomic.AddInt64(&c.successCount, 1)
	} else {
		atomic.AddInt64(&c.errorCount, 1)
	}
	return resp, nil
}

// Stats returns the current counters
func (c *Client) Stats() Stats {
	total := atomic.LoadInt64(&c.requestCount)
	stats := Stats{
		TotalRequests:  total,
		SuccessfulReqs: atomic.LoadInt64(&c.successCount),
		FailedReqs:     atomic.LoadInt64(&c.errorCount),
	}
	if total > 0 {
		stats.AvgLatency = time.Duration(atomic.LoadInt64(&c.totalLatency) / total)
	}
	return stats
}
