// Package backend is the HTTP client for the podcast generation backend.
//
// JSON endpoints (transcript editing and extension, configuration fetches)
// return decoded documents. Audio endpoints answer with a server-sent-event
// stream which is folded into a [Progress] record. Non-2xx responses surface
// as [*APIError]. The client never retries; an optional
// [resilience.CircuitBreaker] makes a dead backend fail fast instead.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/MrWong99/podwright/internal/observe"
	"github.com/MrWong99/podwright/internal/resilience"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultCacheTTL   = 10 * time.Minute
	maxErrorBody      = 64 << 10
	requestIDHeader   = "X-Request-ID"
	contentTypeJSON   = "application/json"
	contentTypeStream = "text/event-stream"
)

// Client talks to one backend instance. It is safe for concurrent use.
type Client struct {
	baseURL  string
	http     *http.Client
	timeout  time.Duration
	breaker  *resilience.CircuitBreaker
	metrics  *observe.Metrics
	cacheTTL time.Duration
	cache    *gocache.Cache
	log      *slog.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client. Its Timeout must be
// zero or longer than any audio stream, since streams are only bounded by
// the caller's context.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout bounds every non-streaming request. Default: 60s. Zero
// disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithCircuitBreaker guards every request with cb. Build cb with
// [IsBreakerFailure] as its classifier so client errors do not trip it.
func WithCircuitBreaker(cb *resilience.CircuitBreaker) Option {
	return func(c *Client) { c.breaker = cb }
}

// WithMetrics records request metrics on m instead of
// [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// WithConfigCacheTTL sets how long configuration documents are cached.
// Default: 10m. Zero or negative disables caching.
func WithConfigCacheTTL(d time.Duration) Option {
	return func(c *Client) { c.cacheTTL = d }
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// New creates a Client for the backend at baseURL, e.g.
// "http://localhost:8000". A trailing slash is ignored.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("backend: parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend: base url %q must use http or https", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("backend: base url %q has no host", baseURL)
	}

	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{},
		timeout:  defaultTimeout,
		cacheTTL: defaultCacheTTL,
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.cacheTTL > 0 {
		c.cache = gocache.New(c.cacheTTL, 2*c.cacheTTL)
	}
	return c, nil
}

// BaseURL returns the normalised base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	// Detail is the backend's "detail" or "message" field, or a generic
	// "HTTP error! status: N" when the body carried neither.
	Detail string
}

func (e *APIError) Error() string { return e.Detail }

// Temporary reports whether the failure is on the server side.
func (e *APIError) Temporary() bool { return e.StatusCode >= 500 }

// IsBreakerFailure is the circuit breaker classifier for backend calls:
// transport failures and 5xx responses count, 4xx responses and caller
// cancellation do not.
func IsBreakerFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

// Ping reports whether the backend answers at all. Any HTTP response,
// including an error status, counts as reachable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/config", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("backend unreachable: %w", err)
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	return resp.Body.Close()
}

// send issues one request through the circuit breaker and returns the
// response with a 2xx status. The caller closes the body.
func (c *Client) send(ctx context.Context, method, path string, body any, accept string) (*http.Response, error) {
	endpoint := strings.TrimPrefix(path, "/api/")

	var resp *http.Response
	call := func(ctx context.Context) error {
		r, err := c.roundTrip(ctx, method, path, endpoint, body, accept)
		resp = r
		return err
	}

	var err error
	if c.breaker != nil {
		err = c.breaker.Execute(ctx, call)
		if errors.Is(err, resilience.ErrCircuitOpen) {
			c.metrics.RecordBackendError(ctx, endpoint, "circuit_open")
			return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
		}
	} else {
		err = call(ctx)
	}
	return resp, err
}

func (c *Client) roundTrip(ctx context.Context, method, path, endpoint string, body any, accept string) (*http.Response, error) {
	ctx, span := observe.StartSpan(ctx, "backend "+endpoint,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", method),
			attribute.String("podwright.endpoint", endpoint),
		),
	)
	defer span.End()

	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s %s: encode request: %w", method, endpoint, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentTypeJSON)
	}
	req.Header.Set("Accept", accept)
	reqID := uuid.NewString()
	req.Header.Set(requestIDHeader, reqID)
	observe.InjectHeaders(ctx, req.Header)

	log := observe.Logger(ctx, c.log).With("endpoint", endpoint, "request_id", reqID)

	start := time.Now()
	resp, err := c.http.Do(req)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		c.metrics.RecordBackendRequest(ctx, endpoint, "transport_error", elapsed)
		c.metrics.RecordBackendError(ctx, endpoint, "transport")
		span.RecordError(err)
		span.SetStatus(codes.Error, "transport error")
		log.Debug("backend request failed", "err", err)
		return nil, fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	c.metrics.RecordBackendRequest(ctx, endpoint, strconv.Itoa(resp.StatusCode), elapsed)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := decodeAPIError(resp)
		c.metrics.RecordBackendError(ctx, endpoint, "http")
		span.SetStatus(codes.Error, apiErr.Detail)
		log.Debug("backend returned error status", "status", resp.StatusCode, "detail", apiErr.Detail)
		return nil, apiErr
	}
	log.Debug("backend request ok", "status", resp.StatusCode, "seconds", elapsed)
	return resp, nil
}

// decodeAPIError reads and closes resp.Body.
func decodeAPIError(resp *http.Response) *APIError {
	defer resp.Body.Close()
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		Detail:     "HTTP error! status: " + strconv.Itoa(resp.StatusCode),
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return apiErr
	}
	var body struct {
		Detail  json.RawMessage `json:"detail"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(raw, &body) != nil {
		return apiErr
	}
	if d := detailString(body.Detail); d != "" {
		apiErr.Detail = d
	} else if body.Message != "" {
		apiErr.Detail = body.Message
	}
	return apiErr
}

// detailString accepts a plain string or any other JSON value (validation
// errors arrive as a list) and renders it as text.
func detailString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return string(raw)
}

// doJSON performs a bounded request and decodes the JSON response into out.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := c.send(ctx, method, path, in, contentTypeJSON)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		endpoint := strings.TrimPrefix(path, "/api/")
		c.metrics.RecordBackendError(ctx, endpoint, "decode")
		return fmt.Errorf("%s %s: decode response: %w", method, endpoint, err)
	}
	return nil
}
