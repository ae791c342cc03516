// Package client talks to the stock-signal backend over HTTP.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yourorg/signal-dashboard/internal/logger"
	"github.com/yourorg/signal-dashboard/internal/metrics"
	"github.com/yourorg/signal-dashboard/internal/model"

	"go.uber.org/zap"
)

// SessionSource exposes the current session to authenticated clients
type SessionSource interface {
	Get() (model.Session, bool)
}

// SessionWriter is the part of the session store the auth client mutates
type SessionWriter interface {
	SessionSource
	Set(ctx context.Context, sess model.Session) error
	Clear(ctx context.Context) error
}

// Option configures a backend client
type Option func(*baseClient)

// WithHTTPClient replaces the underlying HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *baseClient) {
		c.httpClient = hc
	}
}

// WithTimeout sets a per-request timeout. Zero means no timeout.
// The transport of a client given with WithHTTPClient is kept.
func WithTimeout(timeout time.Duration) Option {
	return func(c *baseClient) {
		hc := http.Client{}
		if c.httpClient != nil {
			hc = *c.httpClient
		}
		hc.Timeout = timeout
		c.httpClient = &hc
	}
}

// WithMetrics records every request on rec
func WithMetrics(rec *metrics.Recorder) Option {
	return func(c *baseClient) {
		c.metrics = rec
	}
}

type baseClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	metrics    *metrics.Recorder
}

func newBaseClient(baseURL string, log *zap.Logger, opts []Option) baseClient {
	c := baseClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		logger:     logger.OrNop(log),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

type request struct {
	endpoint string
	method   string
	path     string
	rawQuery string
	token    string
	body     interface{}
}

// send performs r and returns the status code and the full body.
// A non-nil error means no usable response arrived.
func (c *baseClient) send(ctx context.Context, r request) (int, []byte, error) {
	start := time.Now()

	var reader io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return 0, nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	url := c.baseURL + r.path
	if r.rawQuery != "" {
		url += "?" + r.rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, r.method, url, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.ObserveRequest(r.endpoint, metrics.OutcomeNetwork, time.Since(start))
		return 0, nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.ObserveRequest(r.endpoint, metrics.OutcomeNetwork, time.Since(start))
		return resp.StatusCode, nil, fmt.Errorf("read body: %w", err)
	}

	outcome := metrics.OutcomeSuccess
	if !isSuccess(resp.StatusCode) {
		outcome = metrics.OutcomeStatus
	}
	c.metrics.ObserveRequest(r.endpoint, outcome, time.Since(start))

	return resp.StatusCode, body, nil
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
