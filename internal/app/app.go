package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/leadbridge/internal/crm"
	"github.com/florianilch/leadbridge/internal/lambdaapi"
	"github.com/florianilch/leadbridge/internal/leads"
	"github.com/florianilch/leadbridge/internal/secret"
	"github.com/florianilch/leadbridge/internal/server"
	"github.com/florianilch/leadbridge/internal/tokenmanager"
	"github.com/florianilch/leadbridge/internal/tokensource"
	"github.com/florianilch/leadbridge/internal/tokenstore"
)

// App orchestrates the lifecycle of the lead server and related services.
type App struct {
	cfg     *Config
	tokens  *tokenmanager.Manager
	leads   *leads.Service
	server  *server.Server
	closers []closeFunc
}

// New creates a new App instance. Database-backed token stores connect here;
// the CRM is not contacted until Start or one of the token operations.
func New(ctx context.Context, cfg *Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	clients := newAWSClients(ctx)

	clientSecret, err := resolveClientSecret(ctx, cfg.CRM, clients)
	if err != nil {
		return nil, err
	}

	store, closeStore, err := newTokenStore(ctx, cfg.Storage, clients)
	if err != nil {
		return nil, fmt.Errorf("failed to create token store: %w", err)
	}
	a := &App{cfg: cfg, closers: []closeFunc{closeStore}}

	if err := a.wire(store, clientSecret); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) wire(store tokenstore.TokenStore, clientSecret string) error {
	cfg := a.cfg

	exchanger, err := tokensource.NewExchanger(tokensource.Config{
		BaseURL:      cfg.CRM.BaseURL,
		ClientID:     cfg.CRM.ClientID,
		ClientSecret: clientSecret,
		RedirectURI:  cfg.CRM.RedirectURI,
	}, tokensource.WithTimeout(cfg.CRM.Timeout))
	if err != nil {
		return fmt.Errorf("failed to create token exchanger: %w", err)
	}

	// One exchange covers the token request plus a store read and write
	a.tokens, err = tokenmanager.New(exchanger, store,
		tokenmanager.WithAuthorizationCode(cfg.CRM.AuthCode),
		tokenmanager.WithTimeout(3*cfg.CRM.Timeout),
	)
	if err != nil {
		return fmt.Errorf("failed to create token manager: %w", err)
	}

	client, err := crm.New(crm.Config{
		BaseURL:     cfg.CRM.BaseURL,
		Timeout:     cfg.CRM.Timeout,
		RateLimit:   cfg.CRM.RateLimit,
		RateBurst:   cfg.CRM.RateBurst,
		LeadName:    cfg.Lead.Name,
		CompanyName: cfg.Lead.CompanyName,
	}, a.tokens)
	if err != nil {
		return fmt.Errorf("failed to create CRM client: %w", err)
	}

	a.leads, err = leads.NewService(a.tokens, client)
	if err != nil {
		return fmt.Errorf("failed to create lead service: %w", err)
	}

	a.server, err = server.New(a.leads, a.tokens)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	return nil
}

// resolveClientSecret returns the configured client secret, fetching it from
// SSM Parameter Store when only a parameter name is given.
func resolveClientSecret(ctx context.Context, cfg CRMConfig, clients *awsClients) (string, error) {
	if cfg.ClientSecretParam == "" {
		return cfg.ClientSecret, nil
	}
	ssmClient, err := clients.ssm()
	if err != nil {
		return "", err
	}
	value, err := secret.NewSSMResolver(ssmClient).GetSecret(ctx, cfg.ClientSecretParam)
	if err != nil {
		return "", fmt.Errorf("resolving client secret: %w", err)
	}
	return value, nil
}

// Start mints the first access token, then starts all services and blocks until
// shutdown is triggered.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	// The server only starts once an access token is available
	if err := a.tokens.Bootstrap(ctx); err != nil {
		return err
	}

	g, gCtx := errgroup.WithContext(ctx)

	address := a.cfg.Server.Host + ":" + strconv.FormatUint(uint64(a.cfg.Server.Port), 10)
	var shutdownFuncs []func(context.Context) error

	// Startup phase: Start services
	slog.InfoContext(gCtx, "starting lead server", "address", address)
	serverErrCh, err := a.server.Start(gCtx, address)
	if err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.server.Shutdown)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-serverErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "server runtime error", "error", err)
				return fmt.Errorf("server: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	slog.InfoContext(gCtx, "application ready", "address", address)

	runtimeErr := g.Wait()

	slog.InfoContext(gCtx, "shutting down services")

	// Shutdown phase: Stop all services
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Shutdown.Timeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}
	if err := a.Close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}

// Authorize exchanges a freshly issued authorization code and stores the
// resulting refresh token.
func (a *App) Authorize(ctx context.Context, code string) error {
	return a.tokens.Authorize(ctx, code)
}

// Status reports the state of the access and refresh tokens.
func (a *App) Status(ctx context.Context) (tokenmanager.Status, error) {
	return a.tokens.Status(ctx)
}

// CreateLead runs the lead workflow once, outside of the HTTP server.
func (a *App) CreateLead(ctx context.Context, name, email, phone string) (crm.Lead, error) {
	if name == "" || email == "" || phone == "" {
		return crm.Lead{}, server.ErrMissingQuery
	}
	return a.leads.Run(ctx, name, email, phone)
}

// LambdaHandler mints the first access token and returns the API Gateway handler.
func (a *App) LambdaHandler(ctx context.Context) (*lambdaapi.Handler, error) {
	if err := a.tokens.Bootstrap(ctx); err != nil {
		return nil, err
	}
	return lambdaapi.NewHandler(a.leads, a.tokens), nil
}

// Close releases the token store. It is safe to call more than once.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, fmt.Errorf("closing token store: %w", err))
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
