// Package leads turns a name, email and phone triple into a CRM lead attached
// to a deduplicated contact.
package leads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/oauth2"

	"github.com/florianilch/leadbridge/internal/crm"
)

// maxAttempts bounds the workflow: one attempt plus one retry after a 401.
const maxAttempts = 2

// ErrContactResolution means the CRM answered successfully but the contact
// could not be identified from its response.
var ErrContactResolution = errors.New("contact resolution failed")

// Tokens keeps the CRM bearer token usable.
type Tokens interface {
	EnsureValid(ctx context.Context) error
	Refresh(ctx context.Context) error
	Token() (*oauth2.Token, error)
}

// CRM is the subset of the CRM API the workflow calls.
type CRM interface {
	SearchContacts(ctx context.Context, query string) ([]crm.Contact, error)
	CreateContact(ctx context.Context, name, email, phone string) (crm.Contact, error)
	UpdateContact(ctx context.Context, id int, name, email, phone string) (crm.Contact, error)
	GetContact(ctx context.Context, id int) (crm.Contact, error)
	CreateLead(ctx context.Context, contact crm.Contact) (crm.Lead, error)
}

// Service runs the lead workflow.
type Service struct {
	tokens Tokens
	crm    CRM
}

// NewService creates a Service.
func NewService(tokens Tokens, client CRM) (*Service, error) {
	if tokens == nil {
		return nil, fmt.Errorf("missing token manager")
	}
	if client == nil {
		return nil, fmt.Errorf("missing CRM client")
	}
	return &Service{tokens: tokens, crm: client}, nil
}

// Run resolves the contact and creates one lead for it. When an attempt is
// rejected with 401 the access token is refreshed, unless another caller already
// replaced it, and the whole attempt runs once more; a second 401 is returned as is.
func (s *Service) Run(ctx context.Context, name, email, phone string) (crm.Lead, error) {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		var (
			lead crm.Lead
			used string
		)
		lead, used, err = s.attempt(ctx, name, email, phone)
		if err == nil {
			return lead, nil
		}
		if !crm.IsUnauthorized(err) || attempt == maxAttempts {
			break
		}

		if s.replaced(used) {
			slog.InfoContext(ctx, "crm rejected a superseded access token, retrying", "attempt", attempt)
			continue
		}
		slog.WarnContext(ctx, "crm rejected access token, refreshing", "attempt", attempt)
		if err = s.tokens.Refresh(ctx); err != nil {
			err = fmt.Errorf("refreshing after 401: %w", err)
			break
		}
	}

	logValidationErrors(ctx, err)
	return crm.Lead{}, err
}

// attempt runs the workflow once and reports the access token it started with.
func (s *Service) attempt(ctx context.Context, name, email, phone string) (crm.Lead, string, error) {
	if err := s.tokens.EnsureValid(ctx); err != nil {
		return crm.Lead{}, "", fmt.Errorf("ensuring access token: %w", err)
	}
	used := s.currentToken()

	contact, err := s.ResolveContact(ctx, name, email, phone)
	if err != nil {
		return crm.Lead{}, used, err
	}

	lead, err := s.crm.CreateLead(ctx, contact)
	if err != nil {
		return crm.Lead{}, used, fmt.Errorf("creating lead: %w", err)
	}
	slog.InfoContext(ctx, "lead created", "lead_id", lead.ID, "contact_id", contact.ID)
	return lead, used, nil
}

func (s *Service) currentToken() string {
	tok, err := s.tokens.Token()
	if err != nil || tok == nil {
		return ""
	}
	return tok.AccessToken
}

// replaced reports whether the cached access token differs from used, meaning a
// concurrent request already refreshed it after the rejection.
func (s *Service) replaced(used string) bool {
	current := s.currentToken()
	return used != "" && current != "" && current != used
}

func logValidationErrors(ctx context.Context, err error) {
	var apiErr *crm.APIError
	if !errors.As(err, &apiErr) || len(apiErr.ValidationErrors) == 0 {
		return
	}
	for _, v := range apiErr.ValidationErrors {
		slog.ErrorContext(ctx, "crm validation error", "code", v.Code, "path", v.Path, "detail", v.Detail)
	}
}
