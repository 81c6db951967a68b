package tokensource

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
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// tokenPath is the CRM's token endpoint, relative to the account base URL.
const tokenPath = "/oauth2/access_token"

// DefaultTimeout bounds each token request.
const DefaultTimeout = 10 * time.Second

// FallbackLifetime is assumed for access tokens whose response states no lifetime.
const FallbackLifetime = 15 * time.Minute

// Config describes the OAuth2 integration registered in the CRM.
type Config struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	RedirectURI  string
}

// Option configures an Exchanger.
type Option func(*exchangerConfig)

type exchangerConfig struct {
	baseTransport http.RoundTripper
	timeout       time.Duration
}

// WithTransport sets a custom base transport for token requests.
// If not provided, http.DefaultTransport is used.
func WithTransport(transport http.RoundTripper) Option {
	return func(c *exchangerConfig) {
		c.baseTransport = transport
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *exchangerConfig) {
		c.timeout = timeout
	}
}

// Endpoint returns the OAuth2 endpoint of the CRM account at baseURL.
// Client credentials travel in the request body.
func Endpoint(baseURL string) oauth2.Endpoint {
	return oauth2.Endpoint{
		TokenURL:  strings.TrimRight(baseURL, "/") + tokenPath,
		AuthStyle: oauth2.AuthStyleInParams,
	}
}

// Exchanger performs the two unauthenticated token requests: authorization code
// exchange and refresh token exchange. It keeps no token state.
type Exchanger struct {
	oauth2Config *oauth2.Config
	httpClient   *http.Client
}

// NewExchanger creates an Exchanger for the given integration.
func NewExchanger(cfg Config, opts ...Option) (*Exchanger, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL cannot be empty")
	}
	if cfg.ClientID == "" {
		return nil, errors.New("client ID cannot be empty")
	}
	if cfg.RedirectURI == "" {
		return nil, errors.New("redirect URI cannot be empty")
	}

	ec := &exchangerConfig{
		baseTransport: http.DefaultTransport,
		timeout:       DefaultTimeout,
	}
	for _, opt := range opts {
		opt(ec)
	}

	return &Exchanger{
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     Endpoint(cfg.BaseURL),
			RedirectURL:  cfg.RedirectURI,
		},
		httpClient: &http.Client{
			Timeout: ec.timeout,
			Transport: &tokenRequestTransport{
				base:  ec.baseTransport,
				extra: map[string]string{"redirect_uri": cfg.RedirectURI},
			},
		},
	}, nil
}

// ExchangeCode trades a one-time authorization code for the initial token pair.
func (e *Exchanger) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	if code == "" {
		return nil, errors.New("authorization code cannot be empty")
	}

	tok, err := e.oauth2Config.Exchange(e.withClient(ctx), code)
	if err != nil {
		return nil, fmt.Errorf("exchanging authorization code: %w", err)
	}
	return tok, nil
}

// Refresh trades a refresh token for a new access token. The returned token
// carries the (possibly rotated) refresh token.
func (e *Exchanger) Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, errors.New("refresh token cannot be empty")
	}

	// An empty access token forces oauth2 to hit the token endpoint
	ts := e.oauth2Config.TokenSource(e.withClient(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := ts.Token()
	if err != nil {
		return nil, fmt.Errorf("refreshing access token: %w", err)
	}
	return tok, nil
}

// withClient injects the JSON-rewriting HTTP client; oauth2 picks it up from the context.
func (e *Exchanger) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, e.httpClient)
}

// Lifetime returns how long tok stays valid counted from issuedAt. Responses
// without a usable expires_in or expiry get FallbackLifetime.
func Lifetime(tok *oauth2.Token, issuedAt time.Time) time.Duration {
	if tok.ExpiresIn > 0 {
		return time.Duration(tok.ExpiresIn) * time.Second
	}
	if !tok.Expiry.IsZero() {
		if d := tok.Expiry.Sub(issuedAt); d > 0 {
			return d
		}
	}
	slog.Warn("token response carries no usable lifetime, assuming fallback",
		"expiry", tok.Expiry, "fallback", FallbackLifetime)
	return FallbackLifetime
}

// tokenRequestTransport converts oauth2's form-encoded token requests to the JSON
// format required by the CRM's token endpoint, adding required fields oauth2 omits.
// The oauth2 package guarantees this transport only receives token endpoint requests.
type tokenRequestTransport struct {
	base  http.RoundTripper
	extra map[string]string
}

// Compile-time check that tokenRequestTransport implements http.RoundTripper.
var _ http.RoundTripper = (*tokenRequestTransport)(nil)

// RoundTrip rewrites the request body from form-encoded to JSON.
func (t *tokenRequestTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	// The form body is consumed here and replaced on the clone
	defer func() { _ = req.Body.Close() }()
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("reading request body: %w", err)
	}

	formData, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("parsing form data: %w", err)
	}

	jsonData := make(map[string]string, len(formData)+len(t.extra))
	for key, values := range formData {
		jsonData[key] = values[0] // OAuth2 token parameters are single-valued
	}
	for key, value := range t.extra {
		if _, ok := jsonData[key]; !ok {
			jsonData[key] = value
		}
	}

	jsonBody, err := json.Marshal(jsonData)
	if err != nil {
		return nil, fmt.Errorf("marshaling JSON request: %w", err)
	}

	newReq := req.Clone(req.Context())
	newReq.Body = io.NopCloser(bytes.NewReader(jsonBody))
	newReq.ContentLength = int64(len(jsonBody))
	newReq.Header.Set("Content-Type", "application/json")

	return t.base.RoundTrip(newReq)
}
