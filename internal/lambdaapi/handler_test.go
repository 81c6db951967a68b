package lambdaapi_test

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"

	"github.com/florianilch/leadbridge/internal/crm"
	"github.com/florianilch/leadbridge/internal/lambdaapi"
	"github.com/florianilch/leadbridge/internal/server"
)

type stubCreator struct {
	calls int
	got   [3]string
	err   error
}

func (s *stubCreator) Run(ctx context.Context, name, email, phone string) (crm.Lead, error) {
	s.calls++
	s.got = [3]string{name, email, phone}
	if s.err != nil {
		return crm.Lead{}, s.err
	}
	return crm.Lead{ID: 42, Name: "Website lead", Contacts: []crm.Contact{{ID: 7, Name: name}}}, nil
}

type readiness bool

func (r readiness) Ready() bool { return bool(r) }

func TestHandleRequest_CreatesLead(t *testing.T) {
	creator := &stubCreator{}
	h := lambdaapi.NewHandler(creator, readiness(true))

	resp, err := h.HandleRequest(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodGet,
		Path:       "/api/user",
		QueryStringParameters: map[string]string{
			"name": "Jane Doe", "email": "jane@x.com", "phone": "+15551230000",
		},
	})
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("StatusCode = %d, body %s", resp.StatusCode, resp.Body)
	}

	var lead crm.Lead
	if err := json.Unmarshal([]byte(resp.Body), &lead); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if lead.ID != 42 {
		t.Errorf("lead id = %d, want 42", lead.ID)
	}
	if creator.got != [3]string{"Jane Doe", "jane@x.com", "+15551230000"} {
		t.Errorf("Run args = %v", creator.got)
	}
}

func TestHandleRequest_MissingQuery(t *testing.T) {
	creator := &stubCreator{}
	h := lambdaapi.NewHandler(creator, readiness(true))

	resp, err := h.HandleRequest(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodGet,
		Path:       "/user",
		MultiValueQueryStringParameters: map[string][]string{
			"name": {"Jane"}, "email": {""},
		},
	})
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("StatusCode = %d, want 400", resp.StatusCode)
	}

	var body server.ErrorResponse
	if err := json.Unmarshal([]byte(resp.Body), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.Error != server.MissingQueryMessage {
		t.Errorf("error = %q", body.Error)
	}
	if creator.calls != 0 {
		t.Errorf("Run called %d times", creator.calls)
	}
}

func TestHandleRequest_CRMError(t *testing.T) {
	creator := &stubCreator{err: &crm.APIError{StatusCode: http.StatusForbidden, Title: "Forbidden", Detail: "Account is blocked"}}
	h := lambdaapi.NewHandler(creator, readiness(true))

	resp, err := h.HandleRequest(context.Background(), events.APIGatewayProxyRequest{
		HTTPMethod:            http.MethodGet,
		Path:                  "/user",
		QueryStringParameters: map[string]string{"name": "a", "email": "b", "phone": "c"},
	})
	if err != nil {
		t.Fatalf("HandleRequest: %v", err)
	}
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("StatusCode = %d, want 403", resp.StatusCode)
	}
}

func TestHandleRequest_Routing(t *testing.T) {
	tests := []struct {
		name   string
		ready  bool
		method string
		path   string
		want   int
	}{
		{"healthz ready", true, http.MethodGet, "/healthz", http.StatusOK},
		{"healthz not ready", false, http.MethodGet, "/healthz", http.StatusServiceUnavailable},
		{"unknown path", true, http.MethodGet, "/leads", http.StatusNotFound},
		{"wrong method", true, http.MethodPost, "/user", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := lambdaapi.NewHandler(&stubCreator{}, readiness(tt.ready))
			resp, err := h.HandleRequest(context.Background(), events.APIGatewayProxyRequest{HTTPMethod: tt.method, Path: tt.path})
			if err != nil {
				t.Fatalf("HandleRequest: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("StatusCode = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
