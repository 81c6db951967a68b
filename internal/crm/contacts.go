package crm

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
)

const contactsPath = "/api/v4/contacts"

// SearchContacts runs a free-text contact query. It returns ErrNoContent when
// nothing matches.
func (c *Client) SearchContacts(ctx context.Context, query string) ([]Contact, error) {
	var env contactsEnvelope
	status, err := c.do(ctx, http.MethodGet, contactsPath, url.Values{"query": {query}}, nil, &env)
	if err != nil {
		return nil, err
	}
	if status == http.StatusNoContent {
		return nil, ErrNoContent
	}

	contacts := make([]Contact, 0, len(env.Embedded.Contacts))
	for _, body := range env.Embedded.Contacts {
		contacts = append(contacts, body.contact())
	}
	return contacts, nil
}

// CreateContact adds a contact. The returned contact carries the new id, or a
// zero id when the CRM response did not include one.
func (c *Client) CreateContact(ctx context.Context, name, email, phone string) (Contact, error) {
	var env contactsEnvelope
	payload := []contactBody{newContactBody(0, name, email, phone)}
	if _, err := c.do(ctx, http.MethodPost, contactsPath, nil, payload, &env); err != nil {
		return Contact{}, err
	}

	created := Contact{Name: name, Phone: phone, Email: email}
	if len(env.Embedded.Contacts) > 0 {
		created.ID = env.Embedded.Contacts[0].ID
	}
	return created, nil
}

// UpdateContact overwrites name, phone and email of contact id. A zero id in
// the result means the CRM returned no updated contact.
func (c *Client) UpdateContact(ctx context.Context, id int, name, email, phone string) (Contact, error) {
	var env contactsEnvelope
	payload := []contactBody{newContactBody(id, name, email, phone)}
	if _, err := c.do(ctx, http.MethodPatch, contactsPath, nil, payload, &env); err != nil {
		return Contact{}, err
	}

	if len(env.Embedded.Contacts) == 0 {
		return Contact{}, nil
	}
	return Contact{ID: env.Embedded.Contacts[0].ID, Name: name, Phone: phone, Email: email}, nil
}

// GetContact fetches a contact by id.
func (c *Client) GetContact(ctx context.Context, id int) (Contact, error) {
	var body contactBody
	if _, err := c.do(ctx, http.MethodGet, contactsPath+"/"+strconv.Itoa(id), nil, nil, &body); err != nil {
		return Contact{}, err
	}
	return body.contact(), nil
}
