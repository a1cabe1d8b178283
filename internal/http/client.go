package http

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kosarica/feed-service/config"
	"github.com/kosarica/feed-service/internal/http/ratelimit"
	"github.com/kosarica/feed-service/internal/types"
)

// DefaultAccept prefers feed formats but takes anything.
const DefaultAccept = "text/xml,application/xml,application/rss+xml,text/csv,application/csv,text/plain;q=0.9,*/*;q=0.8"

// DefaultUserAgent identifies the service to feed hosts.
const DefaultUserAgent = "Mozilla/5.0 (compatible; KosaricaFeedBot/1.0)"

// Config holds client settings.
type Config struct {
	Timeout            time.Duration
	MaxRedirects       int
	UserAgent          string
	Accept             string
	InsecureSkipVerify bool
	MaxBodyBytes       int64
	RateLimit          ratelimit.Config
}

// DefaultConfig returns a 20 second, 5 redirect client.
func DefaultConfig() Config {
	return Config{
		Timeout:      20 * time.Second,
		MaxRedirects: 5,
		UserAgent:    DefaultUserAgent,
		Accept:       DefaultAccept,
		MaxBodyBytes: 50 << 20,
		RateLimit:    ratelimit.DefaultConfig(),
	}
}

// ConfigFrom builds a client Config from the fetch section of the service
// configuration.
func ConfigFrom(fc config.FetchConfig) Config {
	return Config{
		Timeout:            fc.Timeout,
		MaxRedirects:       fc.MaxRedirects,
		UserAgent:          fc.UserAgent,
		Accept:             fc.Accept,
		InsecureSkipVerify: fc.InsecureSkipVerify,
		MaxBodyBytes:       fc.MaxBodyBytes,
		RateLimit: ratelimit.Config{
			RequestsPerSecond: fc.RequestsPerSecond,
			Burst:             1,
			MaxRetries:        fc.MaxRetries,
			InitialBackoff:    fc.InitialBackoff,
			MaxBackoff:        fc.MaxBackoff,
		},
	}
}

// Response is a fully read response. Body is still content-encoded.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Attempts   int
}

// Client is an HTTP client with rate limiting and retry logic
type Client struct {
	httpClient  *http.Client
	rateLimiter *ratelimit.RateLimiter
	config      Config
}

// NewClient creates a new HTTP client with rate limiting
func NewClient(config Config) *Client {
	if config.UserAgent == "" {
		config.UserAgent = DefaultUserAgent
	}
	if config.Accept == "" {
		config.Accept = DefaultAccept
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	// Content-Encoding is decoded by the caller so failures can fall back to raw bytes.
	transport.DisableCompression = true
	if config.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	maxRedirects := config.MaxRedirects
	return &Client{
		httpClient: &http.Client{
			Timeout:   config.Timeout,
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > maxRedirects {
					return fmt.Errorf("%w (%d)", errTooManyRedirects, maxRedirects)
				}
				return nil
			},
		},
		rateLimiter: ratelimit.NewRateLimiter(config.RateLimit),
		config:      config,
	}
}

// NewClientDefault creates a new HTTP client with default settings
func NewClientDefault() *Client {
	return NewClient(DefaultConfig())
}

// Get fetches url, retrying 429 and 5xx responses and transport errors.
// Any other non-2xx status fails immediately. All failures are *types.FetchError.
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	var (
		lastStatus int
		lastErr    error
	)

	for attempt := 0; attempt <= c.config.RateLimit.MaxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, &types.FetchError{URL: url, Attempts: attempt, Err: err}
		}

		resp, err := c.do(ctx, url)
		if err != nil {
			lastErr = err
			var fatal *fatalError
			if errors.As(err, &fatal) || errors.Is(err, errTooManyRedirects) || ctx.Err() != nil {
				return nil, &types.FetchError{URL: url, Attempts: attempt + 1, Err: err}
			}
			if attempt < c.config.RateLimit.MaxRetries {
				if err := ratelimit.Sleep(ctx, ratelimit.CalculateBackoff(attempt, c.config.RateLimit)); err != nil {
					return nil, &types.FetchError{URL: url, Attempts: attempt + 1, Err: err}
				}
			}
			continue
		}

		resp.Attempts = attempt + 1
		lastStatus = resp.StatusCode
		lastErr = nil

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		if !ratelimit.IsRetryableStatus(resp.StatusCode) || attempt == c.config.RateLimit.MaxRetries {
			return nil, &types.FetchError{URL: url, StatusCode: resp.StatusCode, Attempts: attempt + 1}
		}

		var backoff time.Duration
		if resp.StatusCode == http.StatusTooManyRequests {
			backoff = ratelimit.CalculateRateLimitBackoff(attempt, c.config.RateLimit, resp.Header.Get("Retry-After"))
		} else {
			backoff = ratelimit.CalculateBackoff(attempt, c.config.RateLimit)
		}
		if err := ratelimit.Sleep(ctx, backoff); err != nil {
			return nil, &types.FetchError{URL: url, StatusCode: resp.StatusCode, Attempts: attempt + 1, Err: err}
		}
	}

	return nil, &types.FetchError{
		URL:        url,
		StatusCode: lastStatus,
		Attempts:   c.config.RateLimit.MaxRetries + 1,
		Err:        lastErr,
	}
}

var errTooManyRedirects = errors.New("too many redirects")

// fatalError marks failures that retrying cannot fix.
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

func (c *Client) do(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &fatalError{err}
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", c.config.Accept)
	req.Header.Set("Accept-Encoding", "gzip, deflate")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var reader io.Reader = resp.Body
	if c.config.MaxBodyBytes > 0 {
		reader = io.LimitReader(resp.Body, c.config.MaxBodyBytes+1)
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if c.config.MaxBodyBytes > 0 && int64(len(body)) > c.config.MaxBodyBytes {
		return nil, &fatalError{fmt.Errorf("response body exceeds %d bytes", c.config.MaxBodyBytes)}
	}

	return &Response{
		URL:        resp.Request.URL.String(),
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}

// GetConfig returns the client configuration
func (c *Client) GetConfig() Config {
	return c.config
}
