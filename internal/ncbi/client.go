// Package ncbi provides the shared HTTP client for NCBI E-utilities.
// It owns rate limiting, common parameter injection, 429 retries and
// response size guards for every request getpapers sends to NCBI.
package ncbi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL is the NCBI E-utilities base URL.
	DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	// DefaultTool identifies this application to NCBI.
	DefaultTool = "getpapers"
	// DefaultEmail is the contact email sent to NCBI.
	DefaultEmail = "getpapers@users.noreply.github.com"
	// DefaultTimeout bounds a single HTTP round trip.
	DefaultTimeout = 30 * time.Second

	// Rate limits per NCBI policy.
	RateWithoutKey = 3  // requests per second without API key
	RateWithKey    = 10 // requests per second with API key

	// DefaultMaxResponseBytes is the maximum response body size (50 MB).
	DefaultMaxResponseBytes int64 = 50 * 1024 * 1024

	maxRetries    = 2
	baseRetryWait = 700 * time.Millisecond
	maxRetryWait  = 4 * time.Second
)

// RequestObserver is called once per HTTP attempt. status is 0 when the
// request failed before a response arrived.
type RequestObserver func(endpoint string, status int, elapsed time.Duration)

// BaseClient is a rate-limited HTTP client for NCBI E-utilities.
// It is safe for concurrent use.
type BaseClient struct {
	BaseURL    string
	APIKey     string
	Tool       string
	Email      string
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	MaxBytes   int64
	Observer   RequestObserver
	Logger     zerolog.Logger
}

// Option configures a BaseClient.
type Option func(*BaseClient)

// WithBaseURL sets the base URL for requests.
func WithBaseURL(u string) Option {
	return func(c *BaseClient) { c.BaseURL = u }
}

// WithAPIKey sets the NCBI API key and raises the rate limit accordingly.
func WithAPIKey(key string) Option {
	return func(c *BaseClient) {
		c.APIKey = key
		if key != "" {
			c.Limiter = rate.NewLimiter(rate.Limit(RateWithKey), 1)
		}
	}
}

// WithTool sets the tool parameter for NCBI requests.
func WithTool(tool string) Option {
	return func(c *BaseClient) { c.Tool = tool }
}

// WithEmail sets the email parameter for NCBI requests.
func WithEmail(email string) Option {
	return func(c *BaseClient) { c.Email = email }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *BaseClient) { c.HTTPClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *BaseClient) {
		if d > 0 {
			c.HTTPClient.Timeout = d
		}
	}
}

// WithMaxResponseBytes sets the maximum allowed response body size.
func WithMaxResponseBytes(n int64) Option {
	return func(c *BaseClient) { c.MaxBytes = n }
}

// WithObserver registers a callback invoked after every HTTP attempt.
func WithObserver(o RequestObserver) Option {
	return func(c *BaseClient) { c.Observer = o }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l zerolog.Logger) Option {
	return func(c *BaseClient) { c.Logger = l }
}

// NewBaseClient creates a new NCBI base client with the given options.
func NewBaseClient(opts ...Option) *BaseClient {
	c := &BaseClient{
		BaseURL:    DefaultBaseURL,
		Tool:       DefaultTool,
		Email:      DefaultEmail,
		MaxBytes:   DefaultMaxResponseBytes,
		Limiter:    rate.NewLimiter(rate.Limit(RateWithoutKey), 1),
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		Logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DoGet performs a rate-limited GET against endpoint with the common NCBI
// parameters added and returns the response body.
func (c *BaseClient) DoGet(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	if c.APIKey != "" {
		params.Set("api_key", c.APIKey)
	}
	if c.Tool != "" {
		params.Set("tool", c.Tool)
	}
	if c.Email != "" {
		params.Set("email", c.Email)
	}

	u, err := url.JoinPath(c.BaseURL, endpoint)
	if err != nil {
		return nil, fmt.Errorf("building URL: %w", err)
	}
	fullURL := u + "?" + params.Encode()

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}

		resp, err := c.send(ctx, endpoint, fullURL)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			wait := retryAfterDuration(resp.Header.Get("Retry-After"))
			resp.Body.Close()
			if attempt >= maxRetries {
				return nil, fmt.Errorf("NCBI rate limit exceeded (HTTP 429 after %d retries). Consider setting an API key with --api-key or NCBI_API_KEY", maxRetries)
			}
			if wait <= 0 {
				wait = baseRetryWait * time.Duration(1<<attempt)
				if wait > maxRetryWait {
					wait = maxRetryWait
				}
			}
			c.Logger.Debug().Str("endpoint", endpoint).Dur("wait", wait).Int("attempt", attempt+1).Msg("rate limited by NCBI, retrying")
			if err := sleepWithContext(ctx, wait); err != nil {
				return nil, fmt.Errorf("rate limit retry canceled: %w", err)
			}
			continue
		}

		return c.readBody(resp, endpoint)
	}

	return nil, fmt.Errorf("unreachable request loop")
}

func (c *BaseClient) send(ctx context.Context, endpoint, fullURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		c.observe(endpoint, 0, elapsed)
		return nil, fmt.Errorf("executing request: %w", err)
	}
	c.observe(endpoint, resp.StatusCode, elapsed)
	c.Logger.Debug().Str("endpoint", endpoint).Int("status", resp.StatusCode).Dur("elapsed", elapsed).Msg("ncbi request")
	return resp, nil
}

// readBody enforces the status check and MaxBytes limit, closing the body.
func (c *BaseClient) readBody(resp *http.Response, endpoint string) ([]byte, error) {
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("NCBI returned HTTP %d for %s", resp.StatusCode, endpoint)
	}

	// Read one byte past the limit to detect oversized bodies.
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if int64(len(body)) > c.MaxBytes {
		return nil, fmt.Errorf("response exceeds maximum size of %d bytes", c.MaxBytes)
	}
	return body, nil
}

func (c *BaseClient) observe(endpoint string, status int, elapsed time.Duration) {
	if c.Observer != nil {
		c.Observer(endpoint, status, elapsed)
	}
}

func retryAfterDuration(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}

	if secs, err := strconv.Atoi(v); err == nil {
		if secs > 0 {
			return time.Duration(secs) * time.Second
		}
		return 0
	}

	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}

	return 0
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
