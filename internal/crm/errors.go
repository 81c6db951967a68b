package crm

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrNoContent is returned by SearchContacts when the CRM answers 204, meaning
// nothing matched the query.
var ErrNoContent = errors.New("no content")

// ValidationError is one entry of a CRM validation failure.
type ValidationError struct {
	Code   string `json:"code"`
	Path   string `json:"path"`
	Detail string `json:"detail"`
}

// APIError is a non-2xx response from the CRM API.
type APIError struct {
	StatusCode       int
	Title            string
	Detail           string
	ValidationErrors []ValidationError
}

func (e *APIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "crm api: %d", e.StatusCode)
	if e.Title != "" {
		b.WriteString(" " + e.Title)
	}
	if e.Detail != "" {
		b.WriteString(": " + e.Detail)
	}
	return b.String()
}

// IsUnauthorized reports whether the CRM rejected the bearer token.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// Message returns the text surfaced to API callers.
func (e *APIError) Message() string {
	switch {
	case e.Detail != "":
		return e.Detail
	case e.Title != "":
		return e.Title
	default:
		return http.StatusText(e.StatusCode)
	}
}

// IsUnauthorized reports whether err wraps a 401 APIError.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsUnauthorized()
}

// StatusCode returns the HTTP status of err when it wraps an APIError.
func StatusCode(err error) (int, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode, true
	}
	return 0, false
}

// problemBody is the CRM's problem+json error document.
type problemBody struct {
	Title            string `json:"title"`
	Detail           string `json:"detail"`
	Status           int    `json:"status"`
	ValidationErrors []struct {
		RequestID string            `json:"request_id"`
		Errors    []ValidationError `json:"errors"`
	} `json:"validation-errors"`
}

// newAPIError builds an APIError from a failed response body. Bodies that are
// not problem documents keep only the status code.
func newAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: statusCode}

	var problem problemBody
	if err := json.Unmarshal(body, &problem); err != nil {
		apiErr.Detail = strings.TrimSpace(string(body))
		return apiErr
	}

	apiErr.Title = problem.Title
	apiErr.Detail = problem.Detail
	if len(problem.ValidationErrors) > 0 {
		apiErr.ValidationErrors = problem.ValidationErrors[0].Errors
	}
	return apiErr
}
