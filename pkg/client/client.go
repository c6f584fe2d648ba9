// Package client provides the HTTP request executor for the admin
// toolkit: request descriptors, settings defaulting, session auth, and
// error classification.
//
// The executor performs exactly one network call per Do invocation. It
// never retries; callers that want retry wrap it (see pkg/retry).
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for request execution.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gwadmin_requests_total",
		Help: "Total admin API requests by endpoint and status",
	}, []string{"endpoint", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "gwadmin_request_duration_seconds",
		Help:    "Admin API request duration in seconds by endpoint",
		Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
	}, []string{"endpoint"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "gwadmin_errors_total",
		Help: "Total request errors by class",
	}, []string{"class"})
)

// SessionCookie is the cookie name carrying the session token on
// authenticated calls.
const SessionCookie = "GWSESSION"

// Defaults applied by New when the corresponding Config field is unset.
const (
	DefaultTimeout    = 30 * time.Second
	DefaultLoginPath  = "/api/v1/login"
	DefaultLogoutPath = "/api/v1/logout"
)

// Doer executes one request descriptor. *Client and *Session both satisfy
// it; everything above the executor depends on nothing else.
type Doer interface {
	Do(ctx context.Context, req *Request) (*Response, error)
}

// Config holds the executor settings.
type Config struct {
	// BaseURL of the platform API (REQUIRED),
	// e.g. "https://gateway.example.com:8075".
	BaseURL string

	// Headers are default headers, merged under per-request headers.
	Headers map[string]string

	// Token is an optional pre-issued session token. Login supersedes it.
	Token string

	// TLSVerify enables certificate verification. Admin endpoints commonly
	// run on self-signed certificates, so the default (false) skips it.
	TLSVerify bool

	// Timeout is the default per-request timeout (default 30s). Individual
	// requests may override it through Request.Timeout.
	Timeout time.Duration

	// LoginPath and LogoutPath are the session endpoints.
	LoginPath  string
	LogoutPath string

	// Transport overrides the HTTP transport (for testing).
	Transport http.RoundTripper
}

// DefaultConfig returns a configuration for the given base URL with the
// package defaults filled in.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:    baseURL,
		Timeout:    DefaultTimeout,
		LoginPath:  DefaultLoginPath,
		LogoutPath: DefaultLogoutPath,
	}
}

// Client executes request descriptors against the platform.
type Client struct {
	httpClient *http.Client
	base       *url.URL
	token      string
	config     Config
	logger     zerolog.Logger
}

// New creates a new executor. Configuration problems surface here as
// *SettingsError, before any request is made.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, &SettingsError{Field: "base_url", Reason: "base URL is required"}
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, &SettingsError{Field: "base_url", Reason: fmt.Sprintf("invalid base URL %q", cfg.BaseURL)}
	}

	if cfg.Timeout < 0 {
		return nil, &SettingsError{Field: "timeout", Reason: "timeout must not be negative"}
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.LoginPath == "" {
		cfg.LoginPath = DefaultLoginPath
	}
	if cfg.LogoutPath == "" {
		cfg.LogoutPath = DefaultLogoutPath
	}

	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: !cfg.TLSVerify},
		}
	}

	logger := log.With().Str("component", "client").Logger()

	return &Client{
		// The per-request deadline is enforced through the context in Do,
		// so the underlying http.Client carries no timeout of its own.
		httpClient: &http.Client{Transport: transport},
		base:       base,
		token:      cfg.Token,
		config:     cfg,
		logger:     logger,
	}, nil
}

// Do executes one request descriptor and returns the fully read response.
// Defaulting happens in a fixed order: default headers are merged under
// the descriptor's headers, then the session token is injected as a
// cookie-style header (displacing basic auth), then the default timeout
// applies if the descriptor carries none. Statuses >= 400 are returned as
// *APIError; the descriptor itself is never modified.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	return c.do(ctx, req, c.token)
}

func (c *Client) do(ctx context.Context, req *Request, token string) (*Response, error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	path, err := expandPath(req.Path, req.PathParams)
	if err != nil {
		return nil, err
	}

	u := c.base.JoinPath(path)
	if len(req.Query) > 0 {
		u.RawQuery = req.Query.Encode()
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	// Defaults first, then the descriptor's own headers on top.
	for k, v := range c.config.Headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	if contentType != "" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	if httpReq.Header.Get("Accept") == "" {
		httpReq.Header.Set("Accept", "application/json")
	}

	// A held token wins over basic auth.
	switch {
	case token != "":
		httpReq.Header.Set("Cookie", SessionCookie+"="+token)
	case req.BasicAuth != nil:
		httpReq.SetBasicAuth(req.BasicAuth.Username, req.BasicAuth.Password)
	}

	// The unexpanded path keeps metric label cardinality bounded.
	endpoint := req.Path

	c.logger.Debug().
		Str("endpoint", endpoint).
		Str("method", method).
		Dur("timeout", timeout).
		Msg("Executing request")

	start := time.Now()
	httpResp, err := c.httpClient.Do(httpReq)
	duration := time.Since(start)
	requestDuration.WithLabelValues(endpoint).Observe(duration.Seconds())

	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		errorsTotal.WithLabelValues(string(classify(0, err))).Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Request failed")
		return nil, &TransportError{URL: u.String(), Err: err}
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		requestsTotal.WithLabelValues(endpoint, "network_error").Inc()
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		c.logger.Error().Err(err).Str("endpoint", endpoint).Msg("Reading response failed")
		return nil, &TransportError{URL: u.String(), Err: err}
	}

	requestsTotal.WithLabelValues(endpoint, strconv.Itoa(httpResp.StatusCode)).Inc()

	if httpResp.StatusCode >= 400 {
		class := classify(httpResp.StatusCode, nil)
		errorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("endpoint", endpoint).
			Int("status", httpResp.StatusCode).
			Str("error_class", string(class)).
			Msg("Request error")
		return nil, &APIError{
			StatusCode: httpResp.StatusCode,
			Class:      class,
			Endpoint:   endpoint,
			Message:    httpResp.Status,
			Body:       data,
		}
	}

	c.logger.Debug().
		Str("endpoint", endpoint).
		Int("status", httpResp.StatusCode).
		Dur("duration", duration).
		Msg("Request completed")

	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header.Clone(),
		Body:       data,
		Duration:   duration,
	}, nil
}

// encodeBody renders the descriptor's payload. RawBody is sent verbatim;
// Body is JSON-encoded.
func encodeBody(req *Request) (io.Reader, string, error) {
	switch {
	case req.RawBody != nil:
		contentType := req.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		return bytes.NewReader(req.RawBody), contentType, nil
	case req.Body != nil:
		buf, err := json.Marshal(req.Body)
		if err != nil {
			return nil, "", fmt.Errorf("encode request body: %w", err)
		}
		return bytes.NewReader(buf), "application/json", nil
	default:
		return nil, "", nil
	}
}
