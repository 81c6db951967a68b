package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"

	"github.com/florianilch/leadbridge/internal/crm"
	"github.com/florianilch/leadbridge/internal/leads"
	"github.com/florianilch/leadbridge/internal/tokenmanager"
)

// ErrorResponse represents a JSON error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// ErrorStatus maps a workflow error onto the HTTP status and message returned
// to the caller. CRM API errors keep their status and message.
func ErrorStatus(err error) (int, string) {
	var apiErr *crm.APIError
	var retrieveErr *oauth2.RetrieveError

	switch {
	case errors.Is(err, ErrMissingQuery):
		return http.StatusBadRequest, MissingQueryMessage
	case errors.As(err, &apiErr):
		return apiErr.StatusCode, apiErr.Message()
	case errors.As(err, &retrieveErr):
		return http.StatusBadGateway, "CRM token exchange failed"
	case errors.Is(err, tokenmanager.ErrMissingRefreshToken),
		errors.Is(err, tokenmanager.ErrRefreshTokenExpired),
		errors.Is(err, tokenmanager.ErrNotReady):
		return http.StatusServiceUnavailable, "CRM authorization required"
	case errors.Is(err, leads.ErrContactResolution):
		return http.StatusBadGateway, "Contact could not be resolved"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, http.StatusText(http.StatusGatewayTimeout)
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response with the given status code.
// Logs encoding failures internally using the provided context.
func writeJSON(ctx context.Context, w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	// Headers and status go out first; an encoding failure leaves a partial body
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
	}
}

func writeJSONError(ctx context.Context, w http.ResponseWriter, message string, status int) {
	writeJSON(ctx, w, ErrorResponse{Error: message}, status)
}
