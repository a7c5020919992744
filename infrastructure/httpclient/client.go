package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	pkgError "github.com/AzielCF/az-wacrm/pkg/error"
	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTimeout        = 30 * time.Second
	DefaultMaxRetries     = 3
	DefaultBaseDelay      = time.Second
	DefaultMaxDelay       = 30 * time.Second
	DefaultRateLimitDelay = 5 * time.Second
	jitterFraction        = 0.1
	maxErrorBody          = 64 * 1024
)

type Config struct {
	BaseURL        string
	APIKey         string
	APIKeyHeader   string // defaults to "apikey"
	BearerToken    string
	Timeout        time.Duration
	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RateLimitDelay time.Duration
	HTTPClient     *http.Client
	// NewTimer builds the timer used between attempts; nil uses the system timer.
	NewTimer func() backoff.Timer
}

// Client performs gateway calls with a per-attempt timeout and a single retry
// policy: 429 waits for retry-after, 5xx and network failures back off
// exponentially, other 4xx are returned immediately.
type Client struct {
	cfg Config
}

func New(cfg Config) *Client {
	if cfg.APIKeyHeader == "" {
		cfg.APIKeyHeader = "apikey"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = DefaultBaseDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = DefaultMaxDelay
	}
	if cfg.RateLimitDelay <= 0 {
		cfg.RateLimitDelay = DefaultRateLimitDelay
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Client{cfg: cfg}
}

// NewWithDefaults keeps the standard retry budget and only sets the endpoint.
func NewWithDefaults(baseURL, apiKey string) *Client {
	return New(Config{BaseURL: baseURL, APIKey: apiKey, MaxRetries: DefaultMaxRetries})
}

func (c *Client) BaseURL() string {
	return c.cfg.BaseURL
}

type requestOptions struct {
	timeout    time.Duration
	maxRetries int
	headers    map[string]string
	query      url.Values
}

type Option func(*requestOptions)

func WithTimeout(d time.Duration) Option {
	return func(o *requestOptions) { o.timeout = d }
}

func WithMaxRetries(n int) Option {
	return func(o *requestOptions) { o.maxRetries = n }
}

func WithHeader(key, value string) Option {
	return func(o *requestOptions) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[key] = value
	}
}

func WithQuery(key, value string) Option {
	return func(o *requestOptions) {
		if o.query == nil {
			o.query = url.Values{}
		}
		o.query.Set(key, value)
	}
}

// Request sends body to path; structs and maps are JSON-encoded, []byte and
// string are sent as-is. HTTP and network failures are reported inside the
// Result; the error return is reserved for requests that could not be built.
func (c *Client) Request(ctx context.Context, method, path string, body any, opts ...Option) (*Result, error) {
	o := requestOptions{timeout: c.cfg.Timeout, maxRetries: c.cfg.MaxRetries}
	for _, opt := range opts {
		opt(&o)
	}

	payload, contentType, err := encodeBody(body)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s body: %w", method, path, err)
	}

	target, err := c.resolve(path, o.query)
	if err != nil {
		return nil, err
	}
	if _, err := http.NewRequestWithContext(ctx, method, target, nil); err != nil {
		return nil, fmt.Errorf("build request %s %s: %w", method, path, err)
	}

	var (
		result   *Result
		attempts int
	)
	policy := &retryAfter{BackOff: c.newBackOff()}
	b := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(o.maxRetries)), ctx)

	operation := func() error {
		attempts++
		result = c.do(ctx, method, target, payload, contentType, o)
		result.Attempts = attempts
		if result.Success {
			return nil
		}
		var rateLimit *pkgError.RateLimitError
		if errors.As(result.Err, &rateLimit) {
			policy.wait = rateLimit.RetryAfter
			return result.Err
		}
		if !retryable(result) {
			return backoff.Permanent(result.Err)
		}
		return result.Err
	}
	notify := func(err error, wait time.Duration) {
		logrus.WithFields(logrus.Fields{
			"method":  method,
			"path":    path,
			"status":  result.StatusCode,
			"attempt": attempts,
			"wait":    wait.String(),
		}).Warnf("[HTTP] retrying gateway call: %v", err)
	}

	var timer backoff.Timer
	if c.cfg.NewTimer != nil {
		timer = c.cfg.NewTimer()
	}
	err = backoff.RetryNotifyWithTimer(operation, b, notify, timer)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		result.Err = &pkgError.NetworkError{Err: err}
	}
	return result, nil
}

func (c *Client) Get(ctx context.Context, path string, opts ...Option) (*Result, error) {
	return c.Request(ctx, http.MethodGet, path, nil, opts...)
}

func (c *Client) Post(ctx context.Context, path string, body any, opts ...Option) (*Result, error) {
	return c.Request(ctx, http.MethodPost, path, body, opts...)
}

func (c *Client) Delete(ctx context.Context, path string, opts ...Option) (*Result, error) {
	return c.Request(ctx, http.MethodDelete, path, nil, opts...)
}

func (c *Client) do(ctx context.Context, method, target string, payload []byte, contentType string, o requestOptions) *Result {
	attemptCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(attemptCtx, method, target, reader)
	if err != nil {
		return &Result{Err: &pkgError.NetworkError{Err: err}}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set(c.cfg.APIKeyHeader, c.cfg.APIKey)
	}
	if c.cfg.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.BearerToken)
	}
	for k, v := range o.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = fmt.Errorf("request timed out after %s: %w", o.timeout, err)
		}
		return &Result{Err: &pkgError.NetworkError{Err: err}}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Result{StatusCode: resp.StatusCode, Err: &pkgError.NetworkError{Err: fmt.Errorf("read response body: %w", err)}}
	}

	result := &Result{
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Header:      resp.Header,
		raw:         raw,
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		result.Success = true
		result.Data = parseBody(result.ContentType, raw)
	case resp.StatusCode == http.StatusTooManyRequests:
		result.Err = &pkgError.RateLimitError{
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), c.cfg.RateLimitDelay),
			Body:       clip(raw),
		}
	default:
		result.Err = &pkgError.GatewayError{Status: resp.StatusCode, Body: clip(raw)}
	}
	return result
}

// retryable reports whether a failed attempt may succeed later: network
// failures and 5xx are retried, other 4xx are final.
func retryable(result *Result) bool {
	var network *pkgError.NetworkError
	return errors.As(result.Err, &network) || result.StatusCode >= 500
}

// newBackOff doubles from BaseDelay up to MaxDelay with 10% jitter and no
// elapsed-time limit; the retry count bounds it.
func (c *Client) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.BaseDelay
	b.RandomizationFactor = jitterFraction
	b.Multiplier = 2
	b.MaxInterval = c.cfg.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// retryAfter waits what the gateway asked for after a 429 and otherwise
// defers to the exponential policy.
type retryAfter struct {
	backoff.BackOff
	wait time.Duration
}

func (r *retryAfter) NextBackOff() time.Duration {
	if r.wait > 0 {
		d := r.wait
		r.wait = 0
		return d
	}
	return r.BackOff.NextBackOff()
}

func (c *Client) resolve(path string, query url.Values) (string, error) {
	target := path
	if !strings.HasPrefix(path, "http://") && !strings.HasPrefix(path, "https://") {
		if c.cfg.BaseURL == "" {
			return "", errors.New("gateway base URL is not configured")
		}
		target = c.cfg.BaseURL + "/" + strings.TrimPrefix(path, "/")
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", fmt.Errorf("invalid gateway url %q: %w", target, err)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func encodeBody(body any) ([]byte, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case []byte:
		return b, "application/octet-stream", nil
	case string:
		return []byte(b), "text/plain; charset=utf-8", nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, "", err
		}
		return data, "application/json", nil
	}
}

func parseRetryAfter(header string, fallback time.Duration) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(header); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
		return 0
	}
	return fallback
}

func clip(raw []byte) string {
	if len(raw) > maxErrorBody {
		return string(raw[:maxErrorBody])
	}
	return string(raw)
}
