// Package tokenmanager owns the CRM access token of the running process.
//
// The Manager derives short-lived access tokens from the refresh token kept in a
// tokenstore.TokenStore and persists every rotated refresh token it receives.
// Token exchanges are serialized: at most one is in flight at any time, and
// concurrent callers waiting on it observe the same resulting token.
package tokenmanager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/florianilch/leadbridge/internal/tokensource"
	"github.com/florianilch/leadbridge/internal/tokenstore"
)

var (
	// ErrMissingRefreshToken means no refresh token is stored and none can be
	// obtained without a new authorization code.
	ErrMissingRefreshToken = errors.New("missing refresh token")

	// ErrRefreshTokenExpired means the stored refresh token is past
	// tokenstore.Lifetime and no authorization code is configured to replace it.
	ErrRefreshTokenExpired = errors.New("refresh token expired")

	// ErrNotReady is returned by Token before the first access token was minted.
	ErrNotReady = errors.New("no access token available")
)

// flightKey serializes every token exchange, whether forced or on demand.
const flightKey = "mint"

// DefaultTimeout bounds one token exchange including its token store reads and writes.
const DefaultTimeout = 30 * time.Second

// Exchanger performs the CRM's token requests.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error)
	Refresh(ctx context.Context, refreshToken string) (*oauth2.Token, error)
}

// AccessToken is the in-memory bearer credential. It is never persisted.
type AccessToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresIn time.Duration
}

// Expired reports whether the token's lifetime has elapsed at now.
func (t AccessToken) Expired(now time.Time) bool {
	return now.Sub(t.IssuedAt) >= t.ExpiresIn
}

// ExpiresAt returns the instant the token stops being valid.
func (t AccessToken) ExpiresAt() time.Time {
	return t.IssuedAt.Add(t.ExpiresIn)
}

// Option configures a Manager.
type Option func(*Manager)

// WithAuthorizationCode sets the one-time code used when no usable refresh token is stored.
func WithAuthorizationCode(code string) Option {
	return func(m *Manager) {
		m.authCode = code
	}
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(timeout time.Duration) Option {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager guarantees that authenticated CRM calls carry a valid bearer token.
type Manager struct {
	exchanger Exchanger
	store     tokenstore.TokenStore
	authCode  string
	timeout   time.Duration
	now       func() time.Time

	mu      sync.RWMutex
	current *AccessToken

	group singleflight.Group
}

// Compile-time check to ensure Manager implements oauth2.TokenSource
var _ oauth2.TokenSource = (*Manager)(nil)

// New creates a Manager. No I/O is performed until Bootstrap or EnsureValid.
func New(exchanger Exchanger, store tokenstore.TokenStore, opts ...Option) (*Manager, error) {
	if exchanger == nil {
		return nil, fmt.Errorf("missing token exchanger")
	}
	if store == nil {
		return nil, fmt.Errorf("missing token store")
	}

	m := &Manager{
		exchanger: exchanger,
		store:     store,
		timeout:   DefaultTimeout,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Bootstrap mints the first access token at startup. It is a no-op when a valid
// access token is already cached.
func (m *Manager) Bootstrap(ctx context.Context) error {
	if err := m.EnsureValid(ctx); err != nil {
		return fmt.Errorf("bootstrapping tokens: %w", err)
	}

	m.mu.RLock()
	expiresAt := m.current.ExpiresAt()
	m.mu.RUnlock()
	slog.InfoContext(ctx, "token manager ready", "access_token_expires_at", expiresAt)
	return nil
}

// EnsureValid mints a new access token when none is cached or the cached one
// has expired, and does nothing otherwise.
func (m *Manager) EnsureValid(ctx context.Context) error {
	if m.valid() {
		return nil
	}
	return m.do(ctx, m.mint)
}

// Refresh unconditionally exchanges the stored refresh token for a new access
// token. It does not retry.
func (m *Manager) Refresh(ctx context.Context) error {
	return m.do(ctx, m.refresh)
}

// Authorize exchanges code for a new token pair, replacing any stored refresh
// token regardless of its age.
func (m *Manager) Authorize(ctx context.Context, code string) error {
	if code == "" {
		return errors.New("authorization code cannot be empty")
	}
	for {
		var ran atomic.Bool
		err := m.do(ctx, func(ctx context.Context) error {
			ran.Store(true)
			return m.exchange(ctx, code)
		})
		if ran.Load() || ctx.Err() != nil {
			return err
		}
		// Joined a concurrent mint; the code itself has not been exchanged yet
	}
}

// Token implements oauth2.TokenSource for the CRM client's transport. It returns
// the cached token without refreshing it; callers run EnsureValid first.
func (m *Manager) Token() (*oauth2.Token, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.current == nil {
		return nil, ErrNotReady
	}
	return &oauth2.Token{
		AccessToken: m.current.Value,
		TokenType:   "Bearer",
		Expiry:      m.current.ExpiresAt(),
	}, nil
}

// Ready reports whether an access token has been minted.
func (m *Manager) Ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil
}

// Status is a point-in-time view of both tokens.
type Status struct {
	Ready                 bool      `json:"ready"`
	AccessTokenExpiresAt  time.Time `json:"access_token_expires_at,omitzero"`
	HasRefreshToken       bool      `json:"has_refresh_token"`
	RefreshTokenIssuedAt  time.Time `json:"refresh_token_issued_at,omitzero"`
	RefreshTokenExpiresAt time.Time `json:"refresh_token_expires_at,omitzero"`
	RefreshTokenExpired   bool      `json:"refresh_token_expired"`
}

// Status reports the cached access token and the stored refresh token. A
// missing refresh token is not an error.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	var st Status

	m.mu.RLock()
	if m.current != nil {
		st.Ready = true
		st.AccessTokenExpiresAt = m.current.ExpiresAt()
	}
	m.mu.RUnlock()

	stored, err := m.store.Read(ctx)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return st, nil
	}
	if err != nil {
		return st, fmt.Errorf("reading refresh token: %w", err)
	}

	st.HasRefreshToken = true
	st.RefreshTokenIssuedAt = stored.IssuedAt
	st.RefreshTokenExpiresAt = stored.ExpiresAt()
	st.RefreshTokenExpired = stored.Expired(m.now())
	return st, nil
}

// valid reports whether the cached token exists and has not expired.
func (m *Manager) valid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current != nil && !m.current.Expired(m.now())
}

// do runs fn as the single in-flight token exchange. Callers arriving while an
// exchange runs wait for its result instead of starting another one. The
// exchange itself is detached from the caller's cancellation and bounded by
// m.timeout; a waiter whose context ends stops waiting without affecting the others.
func (m *Manager) do(ctx context.Context, fn func(context.Context) error) error {
	detached := context.WithoutCancel(ctx)
	ch := m.group.DoChan(flightKey, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(detached, m.timeout)
		defer cancel()
		return nil, fn(flightCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// mint obtains a fresh access token, choosing between refresh and code exchange
// based on the stored refresh token.
func (m *Manager) mint(ctx context.Context) error {
	// A concurrent flight may have finished between the check and joining
	if m.valid() {
		return nil
	}

	stored, err := m.store.Read(ctx)
	switch {
	case errors.Is(err, tokenstore.ErrNotFound):
		return m.exchangeCode(ctx, ErrMissingRefreshToken)
	case err != nil:
		return fmt.Errorf("reading refresh token: %w", err)
	case stored.Expired(m.now()):
		slog.WarnContext(ctx, "stored refresh token is past its lifetime",
			"issued_at", stored.IssuedAt, "expired_at", stored.ExpiresAt())
		return m.exchangeCode(ctx, ErrRefreshTokenExpired)
	default:
		return m.refreshWith(ctx, stored)
	}
}

// refresh exchanges the stored refresh token regardless of its age.
func (m *Manager) refresh(ctx context.Context) error {
	stored, err := m.store.Read(ctx)
	if errors.Is(err, tokenstore.ErrNotFound) {
		return ErrMissingRefreshToken
	}
	if err != nil {
		return fmt.Errorf("reading refresh token: %w", err)
	}
	return m.refreshWith(ctx, stored)
}

func (m *Manager) refreshWith(ctx context.Context, stored tokenstore.RefreshToken) error {
	issuedAt := m.now()
	tok, err := m.exchanger.Refresh(ctx, stored.Value)
	if err != nil {
		slog.ErrorContext(ctx, "refresh token exchange failed", "error", err)
		return err
	}

	access := m.setAccessToken(tok, issuedAt)
	slog.DebugContext(ctx, "access token refreshed", "access_token_expires_at", access.ExpiresAt())

	// Only persist if the token rotated
	if tok.RefreshToken == "" || tok.RefreshToken == stored.Value {
		return nil
	}
	rotated := tokenstore.RefreshToken{Value: tok.RefreshToken, IssuedAt: issuedAt}
	if err := m.store.Write(ctx, rotated); err != nil {
		// The cached access token stays usable; the next refresh after a restart
		// will fail unless the write is retried.
		slog.ErrorContext(ctx, "failed to persist rotated refresh token", "error", err)
		return nil
	}
	slog.InfoContext(ctx, "refresh token rotated", "refresh_token_expires_at", rotated.ExpiresAt())
	return nil
}

// exchangeCode performs the authorization-code exchange. Without a configured
// code it fails with missing.
func (m *Manager) exchangeCode(ctx context.Context, missing error) error {
	if m.authCode == "" {
		return missing
	}
	return m.exchange(ctx, m.authCode)
}

func (m *Manager) exchange(ctx context.Context, code string) error {
	issuedAt := m.now()
	tok, err := m.exchanger.ExchangeCode(ctx, code)
	if err != nil {
		slog.ErrorContext(ctx, "authorization code exchange failed", "error", err)
		return err
	}
	if tok.RefreshToken == "" {
		return fmt.Errorf("authorization code exchange returned no refresh token: %w", ErrMissingRefreshToken)
	}

	access := m.setAccessToken(tok, issuedAt)
	if err := m.store.Write(ctx, tokenstore.RefreshToken{Value: tok.RefreshToken, IssuedAt: issuedAt}); err != nil {
		return fmt.Errorf("persisting refresh token: %w", err)
	}
	slog.InfoContext(ctx, "authorization code exchanged", "access_token_expires_at", access.ExpiresAt())
	return nil
}

func (m *Manager) setAccessToken(tok *oauth2.Token, issuedAt time.Time) AccessToken {
	access := AccessToken{
		Value:     tok.AccessToken,
		IssuedAt:  issuedAt,
		ExpiresIn: tokensource.Lifetime(tok, issuedAt),
	}
	m.mu.Lock()
	m.current = &access
	m.mu.Unlock()
	return access
}
