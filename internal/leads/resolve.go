package leads

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/florianilch/leadbridge/internal/crm"
)

// ResolveContact finds the contact by phone, then by email, and updates it with
// the given fields. Without a match a new contact is created and read back.
func (s *Service) ResolveContact(ctx context.Context, name, email, phone string) (crm.Contact, error) {
	for _, query := range []string{phone, email} {
		found, err := s.crm.SearchContacts(ctx, query)
		if errors.Is(err, crm.ErrNoContent) {
			continue
		}
		if err != nil {
			return crm.Contact{}, fmt.Errorf("searching contacts: %w", err)
		}
		if len(found) == 0 || found[0].ID == 0 {
			return crm.Contact{}, fmt.Errorf("%w: search returned no contact id", ErrContactResolution)
		}

		updated, err := s.crm.UpdateContact(ctx, found[0].ID, name, email, phone)
		if err != nil {
			return crm.Contact{}, fmt.Errorf("updating contact %d: %w", found[0].ID, err)
		}
		if updated.ID == 0 {
			return crm.Contact{}, fmt.Errorf("%w: update of contact %d returned no contact", ErrContactResolution, found[0].ID)
		}
		slog.DebugContext(ctx, "existing contact updated", "contact_id", updated.ID)
		return updated, nil
	}

	created, err := s.crm.CreateContact(ctx, name, email, phone)
	if err != nil {
		return crm.Contact{}, fmt.Errorf("creating contact: %w", err)
	}
	if created.ID == 0 {
		return crm.Contact{}, fmt.Errorf("%w: create returned no contact id", ErrContactResolution)
	}

	contact, err := s.crm.GetContact(ctx, created.ID)
	if err != nil {
		return crm.Contact{}, fmt.Errorf("fetching contact %d: %w", created.ID, err)
	}
	if contact.ID == 0 {
		return crm.Contact{}, fmt.Errorf("%w: contact %d not readable after create", ErrContactResolution, created.ID)
	}
	slog.DebugContext(ctx, "contact created", "contact_id", contact.ID)
	return contact, nil
}
