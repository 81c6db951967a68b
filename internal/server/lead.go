package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-playground/validator/v10"
	"github.com/oapi-codegen/runtime"

	"github.com/florianilch/leadbridge/internal/crm"
)

// MissingQueryMessage is returned with 400 when a lead parameter is absent or empty.
const MissingQueryMessage = "All queries (name, email, phone) are required!"

// ErrMissingQuery marks a request lacking one of the lead parameters.
var ErrMissingQuery = errors.New(MissingQueryMessage)

// LeadCreator runs the lead workflow.
type LeadCreator interface {
	Run(ctx context.Context, name, email, phone string) (crm.Lead, error)
}

// LeadQuery holds the inbound lead parameters.
type LeadQuery struct {
	Name  string `validate:"required"`
	Email string `validate:"required"`
	Phone string `validate:"required"`
}

var validate = validator.New()

// ParseLeadQuery binds and validates the name, email and phone parameters.
func ParseLeadQuery(params url.Values) (LeadQuery, error) {
	var q LeadQuery
	bindings := []struct {
		name string
		dest *string
	}{
		{"name", &q.Name},
		{"email", &q.Email},
		{"phone", &q.Phone},
	}
	for _, b := range bindings {
		if err := runtime.BindQueryParameter("form", true, false, b.name, params, b.dest); err != nil {
			return LeadQuery{}, fmt.Errorf("%w: %w", ErrMissingQuery, err)
		}
	}

	if err := validate.Struct(q); err != nil {
		return LeadQuery{}, fmt.Errorf("%w: %w", ErrMissingQuery, err)
	}
	return q, nil
}

func leadHandler(leads LeadCreator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		q, err := ParseLeadQuery(r.URL.Query())
		if err != nil {
			slog.DebugContext(ctx, "rejected lead request", "error", err)
			writeJSONError(ctx, w, MissingQueryMessage, http.StatusBadRequest)
			return
		}

		lead, err := leads.Run(ctx, q.Name, q.Email, q.Phone)
		if err != nil {
			status, message := ErrorStatus(err)
			slog.ErrorContext(ctx, "lead workflow failed", "error", err, "status", status)
			writeJSONError(ctx, w, message, status)
			return
		}

		writeJSON(ctx, w, lead, http.StatusOK)
	})
}
