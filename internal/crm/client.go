// Package crm is a thin client for the parts of the CRM REST API the lead
// workflow needs. Every request carries the bearer token of the configured
// oauth2.TokenSource and passes through a client-side rate limiter.
package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultRateLimit = 7
	DefaultRateBurst = 1

	// maxBodySize caps how much of a response is read.
	maxBodySize = 4 << 20
)

// Config describes the CRM account and the fixed lead attributes.
type Config struct {
	BaseURL     string
	Timeout     time.Duration
	RateLimit   float64
	RateBurst   int
	LeadName    string
	CompanyName string
}

// Contact is a CRM contact flattened to the fields this service manages.
type Contact struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Company is attached to every created lead.
type Company struct {
	ID   int    `json:"id,omitempty"`
	Name string `json:"name"`
}

// Lead is a created sales lead.
type Lead struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	Contacts  []Contact `json:"contacts"`
	Companies []Company `json:"companies"`
	RequestID string    `json:"request_id,omitempty"`
}

// Option configures a Client.
type Option func(*clientOptions)

type clientOptions struct {
	transport   http.RoundTripper
	idGenerator func() string
}

// WithTransport sets the base transport beneath the authorization layer.
func WithTransport(transport http.RoundTripper) Option {
	return func(o *clientOptions) {
		o.transport = transport
	}
}

// WithRequestIDs replaces the generator of lead request ids.
func WithRequestIDs(gen func() string) Option {
	return func(o *clientOptions) {
		o.idGenerator = gen
	}
}

// Client calls the CRM API on behalf of a single account.
type Client struct {
	baseURL     *url.URL
	httpClient  *http.Client
	limiter     *rate.Limiter
	leadName    string
	companyName string
	newID       func() string
}

// New creates a Client authenticating with tokens from source.
func New(cfg Config, source oauth2.TokenSource, opts ...Option) (*Client, error) {
	if source == nil {
		return nil, errors.New("missing token source")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid CRM base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid CRM base URL %q: scheme and host are required", cfg.BaseURL)
	}

	o := &clientOptions{
		transport:   http.DefaultTransport,
		idGenerator: newRequestID,
	}
	for _, opt := range opts {
		opt(o)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = DefaultRateLimit
	}
	burst := cfg.RateBurst
	if burst <= 0 {
		burst = DefaultRateBurst
	}

	return &Client{
		baseURL: base,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &oauth2.Transport{
				Source: source,
				Base:   o.transport,
			},
		},
		limiter:     rate.NewLimiter(limit, burst),
		leadName:    cfg.LeadName,
		companyName: cfg.CompanyName,
		newID:       o.idGenerator,
	}, nil
}

// do sends one API request. A non-nil body is sent as JSON; a 2xx response
// with content is decoded into out. It returns the response status code.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) (int, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, fmt.Errorf("rate limit wait: %w", err)
	}

	u := c.baseURL.JoinPath(path)
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("encoding request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return resp.StatusCode, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return resp.StatusCode, newAPIError(resp.StatusCode, data)
	}
	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding %s %s response: %w", method, path, err)
		}
	}
	return resp.StatusCode, nil
}
