// Package lambdaapi serves the lead workflow behind API Gateway proxy events.
package lambdaapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"

	"github.com/florianilch/leadbridge/internal/server"
)

// Handler routes API Gateway requests to the lead workflow.
type Handler struct {
	leads     server.LeadCreator
	readiness server.Readiness
}

// NewHandler creates a Handler.
func NewHandler(leads server.LeadCreator, readiness server.Readiness) *Handler {
	return &Handler{leads: leads, readiness: readiness}
}

// HandleRequest serves GET /user and GET /healthz. Paths may carry an /api
// prefix added by CloudFront.
func (h *Handler) HandleRequest(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	path := strings.TrimPrefix(req.Path, "/api")

	switch {
	case req.HTTPMethod == http.MethodGet && path == "/user":
		return h.createLead(ctx, req), nil
	case req.HTTPMethod == http.MethodGet && path == "/healthz":
		if !h.readiness.Ready() {
			return jsonResponse(ctx, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}), nil
		}
		return jsonResponse(ctx, http.StatusOK, map[string]string{"status": "ok"}), nil
	default:
		return jsonResponse(ctx, http.StatusNotFound, server.ErrorResponse{Error: http.StatusText(http.StatusNotFound)}), nil
	}
}

func (h *Handler) createLead(ctx context.Context, req events.APIGatewayProxyRequest) events.APIGatewayProxyResponse {
	q, err := server.ParseLeadQuery(queryValues(req))
	if err != nil {
		return jsonResponse(ctx, http.StatusBadRequest, server.ErrorResponse{Error: server.MissingQueryMessage})
	}

	lead, err := h.leads.Run(ctx, q.Name, q.Email, q.Phone)
	if err != nil {
		status, message := server.ErrorStatus(err)
		slog.ErrorContext(ctx, "lead workflow failed", "error", err, "status", status)
		return jsonResponse(ctx, status, server.ErrorResponse{Error: message})
	}
	return jsonResponse(ctx, http.StatusOK, lead)
}

// queryValues prefers the multi-value parameters, which API Gateway fills for
// both REST and HTTP APIs.
func queryValues(req events.APIGatewayProxyRequest) url.Values {
	values := url.Values{}
	if len(req.MultiValueQueryStringParameters) > 0 {
		for k, v := range req.MultiValueQueryStringParameters {
			values[k] = append([]string(nil), v...)
		}
		return values
	}
	for k, v := range req.QueryStringParameters {
		values.Set(k, v)
	}
	return values
}

func jsonResponse(ctx context.Context, status int, body any) events.APIGatewayProxyResponse {
	data, err := json.Marshal(body)
	if err != nil {
		slog.ErrorContext(ctx, "failed to encode JSON response", "error", err)
		status = http.StatusInternalServerError
		data = []byte(`{"error":"Internal Server Error"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       string(data),
	}
}
