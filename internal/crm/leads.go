package crm

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
)

const complexLeadsPath = "/api/v4/leads/complex"

func newRequestID() string {
	return uuid.NewString()
}

// CreateLead creates a lead linked to contact, together with the configured
// placeholder company.
func (c *Client) CreateLead(ctx context.Context, contact Contact) (Lead, error) {
	requestID := c.newID()
	payload := []complexLeadBody{{
		Name:      c.leadName,
		RequestID: requestID,
		Embedded: leadEmbedded{
			Contacts:  []contactRef{{ID: contact.ID}},
			Companies: []Company{{Name: c.companyName}},
		},
	}}

	var results []complexLeadResult
	if _, err := c.do(ctx, http.MethodPost, complexLeadsPath, nil, payload, &results); err != nil {
		return Lead{}, err
	}
	if len(results) == 0 || results[0].ID == 0 {
		return Lead{}, errors.New("lead creation response contains no lead")
	}

	res := results[0]
	return Lead{
		ID:        res.ID,
		Name:      c.leadName,
		Contacts:  []Contact{contact},
		Companies: []Company{{ID: res.CompanyID, Name: c.companyName}},
		RequestID: requestID,
	}, nil
}
