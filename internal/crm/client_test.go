package crm_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"
	"golang.org/x/oauth2"

	"github.com/florianilch/leadbridge/internal/crm"
	"github.com/florianilch/leadbridge/internal/crm/crmtest"
)

func newClient(t *testing.T, baseURL string) *crm.Client {
	t.Helper()
	client, err := crm.New(crm.Config{
		BaseURL:     baseURL,
		RateLimit:   1000,
		LeadName:    "Website lead",
		CompanyName: "Placeholder LLC",
	}, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"}),
		crm.WithRequestIDs(func() string { return "req-1" }),
	)
	if err != nil {
		t.Fatalf("crm.New: %v", err)
	}
	return client
}

func TestNew_Validation(t *testing.T) {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "x"})

	tests := []struct {
		name    string
		baseURL string
		source  oauth2.TokenSource
	}{
		{name: "missing source", baseURL: "https://crm.example.com"},
		{name: "relative URL", baseURL: "/api", source: source},
		{name: "empty URL", baseURL: "", source: source},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := crm.New(crm.Config{BaseURL: tt.baseURL}, tt.source); err == nil {
				t.Error("crm.New() succeeded, want error")
			}
		})
	}
}

func TestSearchContacts(t *testing.T) {
	fake := crmtest.NewServer(t)
	jane := fake.AddContact("Jane Doe", "jane@x.com", "+15551230000")
	client := newClient(t, fake.URL)
	ctx := context.Background()

	got, err := client.SearchContacts(ctx, "+15551230000")
	if err != nil {
		t.Fatalf("SearchContacts: %v", err)
	}
	if diff := cmp.Diff([]crm.Contact{jane}, got); diff != "" {
		t.Errorf("SearchContacts() mismatch (-want +got):\n%s", diff)
	}

	_, err = client.SearchContacts(ctx, "nobody@x.com")
	if !errors.Is(err, crm.ErrNoContent) {
		t.Errorf("SearchContacts(miss) error = %v, want ErrNoContent", err)
	}
}

func TestCreateAndGetContact(t *testing.T) {
	fake := crmtest.NewServer(t)
	client := newClient(t, fake.URL)
	ctx := context.Background()

	created, err := client.CreateContact(ctx, "Jane Doe", "jane@x.com", "+15551230000")
	if err != nil {
		t.Fatalf("CreateContact: %v", err)
	}
	if created.ID == 0 {
		t.Fatal("CreateContact() returned zero id")
	}

	got, err := client.GetContact(ctx, created.ID)
	if err != nil {
		t.Fatalf("GetContact: %v", err)
	}
	if diff := cmp.Diff(created, got); diff != "" {
		t.Errorf("GetContact() mismatch (-want +got):\n%s", diff)
	}
}

func TestUpdateContact(t *testing.T) {
	fake := crmtest.NewServer(t)
	existing := fake.AddContact("J. Doe", "old@x.com", "+15551230000")
	client := newClient(t, fake.URL)

	got, err := client.UpdateContact(context.Background(), existing.ID, "Jane Doe", "jane@x.com", "+15551230000")
	if err != nil {
		t.Fatalf("UpdateContact: %v", err)
	}

	want := crm.Contact{ID: existing.ID, Name: "Jane Doe", Email: "jane@x.com", Phone: "+15551230000"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("UpdateContact() mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]crm.Contact{want}, fake.Contacts()); diff != "" {
		t.Errorf("stored contacts mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateLead(t *testing.T) {
	fake := crmtest.NewServer(t)
	jane := fake.AddContact("Jane Doe", "jane@x.com", "+15551230000")
	client := newClient(t, fake.URL)

	lead, err := client.CreateLead(context.Background(), jane)
	if err != nil {
		t.Fatalf("CreateLead: %v", err)
	}

	leads := fake.Leads()
	if len(leads) != 1 {
		t.Fatalf("leads created = %d, want 1", len(leads))
	}
	wantRecorded := crmtest.Lead{
		ID:          lead.ID,
		Name:        "Website lead",
		ContactID:   jane.ID,
		CompanyName: "Placeholder LLC",
		RequestID:   "req-1",
	}
	if diff := cmp.Diff(wantRecorded, leads[0]); diff != "" {
		t.Errorf("recorded lead mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]crm.Contact{jane}, lead.Contacts); diff != "" {
		t.Errorf("lead contacts mismatch (-want +got):\n%s", diff)
	}
	if len(lead.Companies) != 1 || lead.Companies[0].Name != "Placeholder LLC" {
		t.Errorf("lead companies = %+v", lead.Companies)
	}
}

func TestAPIError(t *testing.T) {
	fake := crmtest.NewServer(t)
	fake.RejectNext(1)
	client := newClient(t, fake.URL)

	_, err := client.SearchContacts(context.Background(), "+1")
	var apiErr *crm.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *crm.APIError", err)
	}
	if !apiErr.IsUnauthorized() || !crm.IsUnauthorized(err) {
		t.Errorf("IsUnauthorized() = false for %v", apiErr)
	}
	if apiErr.Title != "Unauthorized" || apiErr.Message() != "access token is invalid" {
		t.Errorf("APIError = %+v", apiErr)
	}
	if status, ok := crm.StatusCode(err); !ok || status != http.StatusUnauthorized {
		t.Errorf("StatusCode() = %d, %v", status, ok)
	}
}

func TestAPIError_ValidationErrors(t *testing.T) {
	fake := crmtest.NewServer(t)
	client := newClient(t, fake.URL)

	// The fake rejects leads without a contact id
	_, err := client.CreateLead(context.Background(), crm.Contact{})
	var apiErr *crm.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *crm.APIError", err)
	}

	want := []crm.ValidationError{{Code: "NotSupportedChoice", Path: "_embedded.contacts.0.id", Detail: "contact id is required"}}
	if diff := cmp.Diff(want, apiErr.ValidationErrors); diff != "" {
		t.Errorf("ValidationErrors mismatch (-want +got):\n%s", diff)
	}
	if apiErr.IsUnauthorized() {
		t.Error("IsUnauthorized() = true for 400")
	}
}

func TestAPIError_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exploded", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	client := newClient(t, srv.URL)

	_, err := client.GetContact(context.Background(), 1)
	var apiErr *crm.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %v, want *crm.APIError", err)
	}
	if apiErr.StatusCode != http.StatusBadGateway || apiErr.Message() != "upstream exploded" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestBearerToken(t *testing.T) {
	auth := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth <- r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	client := newClient(t, srv.URL)

	if _, err := client.SearchContacts(context.Background(), "x"); !errors.Is(err, crm.ErrNoContent) {
		t.Fatalf("SearchContacts() error = %v, want ErrNoContent", err)
	}
	if got := <-auth; got != "Bearer test-token" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer test-token")
	}
}

func TestTokenSourceError(t *testing.T) {
	errNoToken := errors.New("no token yet")
	client, err := crm.New(crm.Config{BaseURL: "http://127.0.0.1:1"}, failingSource{err: errNoToken})
	if err != nil {
		t.Fatalf("crm.New: %v", err)
	}

	_, err = client.SearchContacts(context.Background(), "x")
	if !errors.Is(err, errNoToken) {
		t.Errorf("error = %v, want wrapped token source error", err)
	}
}

type failingSource struct{ err error }

func (f failingSource) Token() (*oauth2.Token, error) { return nil, f.err }
