// Package crmtest provides an in-memory CRM API for tests.
package crmtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/florianilch/leadbridge/internal/crm"
)

// Operation names used by Count, Fail and Malform.
const (
	OpToken  = "token"
	OpSearch = "search"
	OpCreate = "create"
	OpUpdate = "update"
	OpGet    = "get"
	OpLead   = "lead"
)

// Lead is a lead as received by the fake.
type Lead struct {
	ID          int
	Name        string
	ContactID   int
	CompanyName string
	RequestID   string
}

// Server is a stateful fake of the CRM API, including its token endpoint.
//
// Until the token endpoint issued a token, any non-empty bearer is accepted.
// Afterwards only the most recently issued access token is.
type Server struct {
	*httptest.Server

	mu           sync.Mutex
	contacts     []crm.Contact
	leads        []Lead
	calls        map[string]int
	queries      []string
	nextID       int
	issued       int
	accessToken  string
	refreshToken string
	rejectNext   int
	failures     map[string]failure
	malformed    map[string]bool
}

type failure struct {
	status int
	body   string
}

// NewServer starts a fake CRM that is closed when the test ends.
func NewServer(t testing.TB) *Server {
	t.Helper()

	s := &Server{
		calls:     make(map[string]int),
		failures:  make(map[string]failure),
		malformed: make(map[string]bool),
		nextID:    1000,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /oauth2/access_token", s.handleToken)
	mux.HandleFunc("GET /api/v4/contacts", s.authenticated(OpSearch, s.handleSearch))
	mux.HandleFunc("POST /api/v4/contacts", s.authenticated(OpCreate, s.handleCreate))
	mux.HandleFunc("PATCH /api/v4/contacts", s.authenticated(OpUpdate, s.handleUpdate))
	mux.HandleFunc("GET /api/v4/contacts/{id}", s.authenticated(OpGet, s.handleGet))
	mux.HandleFunc("POST /api/v4/leads/complex", s.authenticated(OpLead, s.handleLead))

	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

// AddContact seeds a contact and returns it with its assigned id.
func (s *Server) AddContact(name, email, phone string) crm.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	c := crm.Contact{ID: s.nextID, Name: name, Email: email, Phone: phone}
	s.contacts = append(s.contacts, c)
	return c
}

// RejectNext answers the next n authenticated requests with 401.
func (s *Server) RejectNext(n int) {
	s.mu.Lock()
	s.rejectNext = n
	s.mu.Unlock()
}

// Fail makes every request of op fail with status. The body is returned verbatim.
func (s *Server) Fail(op string, status int, body string) {
	s.mu.Lock()
	s.failures[op] = failure{status: status, body: body}
	s.mu.Unlock()
}

// Malform makes op answer 200 with a payload lacking contact ids.
func (s *Server) Malform(op string) {
	s.mu.Lock()
	s.malformed[op] = true
	s.mu.Unlock()
}

// Count returns how many requests of op reached the fake, rejected ones included.
func (s *Server) Count(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// Queries returns the contact search queries in order.
func (s *Server) Queries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.queries...)
}

// Contacts returns the contact index.
func (s *Server) Contacts() []crm.Contact {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crm.Contact(nil), s.contacts...)
}

// Leads returns the created leads.
func (s *Server) Leads() []Lead {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Lead(nil), s.leads...)
}

// AccessToken returns the most recently issued access token.
func (s *Server) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var req map[string]string
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[OpToken]++

	if f, ok := s.failures[OpToken]; ok {
		writeRaw(w, f)
		return
	}

	switch req["grant_type"] {
	case "authorization_code":
		if req["code"] == "" {
			writeProblem(w, http.StatusBadRequest, "Bad Request", "code is required")
			return
		}
	case "refresh_token":
		if s.refreshToken != "" && req["refresh_token"] != s.refreshToken {
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "refresh token is revoked")
			return
		}
	default:
		writeProblem(w, http.StatusBadRequest, "Bad Request", "unsupported grant_type")
		return
	}

	s.issued++
	s.accessToken = fmt.Sprintf("access-%d", s.issued)
	s.refreshToken = fmt.Sprintf("refresh-%d", s.issued)
	writeJSON(w, http.StatusOK, map[string]any{
		"token_type":    "Bearer",
		"expires_in":    86400,
		"access_token":  s.accessToken,
		"refresh_token": s.refreshToken,
	})
}

// authenticated counts op and enforces the bearer token and injected failures.
func (s *Server) authenticated(op string, next func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.calls[op]++
		token, _ := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		unauthorized := token == "" || (s.accessToken != "" && token != s.accessToken)
		if s.rejectNext > 0 {
			s.rejectNext--
			unauthorized = true
		}
		f, failing := s.failures[op]
		s.mu.Unlock()

		if unauthorized {
			writeProblem(w, http.StatusUnauthorized, "Unauthorized", "access token is invalid")
			return
		}
		if failing {
			writeRaw(w, f)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries = append(s.queries, query)

	if s.malformed[OpSearch] {
		writeJSON(w, http.StatusOK, map[string]any{"_embedded": map[string]any{"contacts": []any{}}})
		return
	}

	var found []map[string]any
	for _, c := range s.contacts {
		if query != "" && (c.Phone == query || c.Email == query) {
			found = append(found, contactJSON(c))
		}
	}
	if len(found) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"_embedded": map[string]any{"contacts": found}})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var bodies []contactPayload
	if err := json.NewDecoder(r.Body).Decode(&bodies); err != nil || len(bodies) == 0 {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "invalid contact payload")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.malformed[OpCreate] {
		writeJSON(w, http.StatusOK, map[string]any{"_embedded": map[string]any{"contacts": []any{}}})
		return
	}

	s.nextID++
	c := bodies[0].contact()
	c.ID = s.nextID
	s.contacts = append(s.contacts, c)
	writeJSON(w, http.StatusOK, map[string]any{
		"_embedded": map[string]any{
			"contacts": []any{map[string]any{"id": c.ID, "request_id": "0"}},
		},
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var bodies []contactPayload
	if err := json.NewDecoder(r.Body).Decode(&bodies); err != nil || len(bodies) == 0 {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "invalid contact payload")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.malformed[OpUpdate] {
		writeJSON(w, http.StatusOK, map[string]any{"_embedded": map[string]any{"contacts": []any{}}})
		return
	}

	updated := bodies[0].contact()
	for i, c := range s.contacts {
		if c.ID == updated.ID {
			s.contacts[i] = updated
			writeJSON(w, http.StatusOK, map[string]any{
				"_embedded": map[string]any{
					"contacts": []any{map[string]any{"id": c.ID, "name": updated.Name}},
				},
			})
			return
		}
	}
	writeProblem(w, http.StatusNotFound, "Not Found", "contact not found")
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(r.PathValue("id"))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.contacts {
		if c.ID == id {
			writeJSON(w, http.StatusOK, contactJSON(c))
			return
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleLead(w http.ResponseWriter, r *http.Request) {
	var bodies []struct {
		Name      string `json:"name"`
		RequestID string `json:"request_id"`
		Embedded  struct {
			Contacts  []struct{ ID int } `json:"contacts"`
			Companies []struct{ Name string } `json:"companies"`
		} `json:"_embedded"`
	}
	if err := json.NewDecoder(r.Body).Decode(&bodies); err != nil || len(bodies) == 0 {
		writeProblem(w, http.StatusBadRequest, "Bad Request", "invalid lead payload")
		return
	}
	body := bodies[0]

	s.mu.Lock()
	defer s.mu.Unlock()

	lead := Lead{Name: body.Name, RequestID: body.RequestID}
	if len(body.Embedded.Contacts) > 0 {
		lead.ContactID = body.Embedded.Contacts[0].ID
	}
	if len(body.Embedded.Companies) > 0 {
		lead.CompanyName = body.Embedded.Companies[0].Name
	}
	if lead.ContactID == 0 {
		writeValidationError(w, "_embedded.contacts.0.id", "contact id is required")
		return
	}

	s.nextID++
	lead.ID = s.nextID
	s.leads = append(s.leads, lead)
	s.nextID++
	writeJSON(w, http.StatusOK, []map[string]any{{
		"id":         lead.ID,
		"contact_id": lead.ContactID,
		"company_id": s.nextID,
		"request_id": []string{lead.RequestID},
		"merged":     false,
	}})
}

type contactPayload struct {
	ID                 int    `json:"id"`
	Name               string `json:"name"`
	CustomFieldsValues []struct {
		FieldCode string `json:"field_code"`
		Values    []struct {
			Value string `json:"value"`
		} `json:"values"`
	} `json:"custom_fields_values"`
}

func (p contactPayload) contact() crm.Contact {
	c := crm.Contact{ID: p.ID, Name: p.Name}
	for _, f := range p.CustomFieldsValues {
		if len(f.Values) == 0 {
			continue
		}
		switch f.FieldCode {
		case "PHONE":
			c.Phone = f.Values[0].Value
		case "EMAIL":
			c.Email = f.Values[0].Value
		}
	}
	return c
}

func contactJSON(c crm.Contact) map[string]any {
	return map[string]any{
		"id":   c.ID,
		"name": c.Name,
		"custom_fields_values": []any{
			map[string]any{"field_code": "PHONE", "values": []any{map[string]any{"value": c.Phone}}},
			map[string]any{"field_code": "EMAIL", "values": []any{map[string]any{"value": c.Email}}},
		},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/hal+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeRaw(w http.ResponseWriter, f failure) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(f.status)
	_, _ = w.Write([]byte(f.body))
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"title":  title,
		"status": status,
		"detail": detail,
	})
}

func writeValidationError(w http.ResponseWriter, path, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(http.StatusBadRequest)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"title":  "Bad Request",
		"status": http.StatusBadRequest,
		"detail": "Request validation failed",
		"validation-errors": []any{map[string]any{
			"request_id": "0",
			"errors":     []any{map[string]any{"code": "NotSupportedChoice", "path": path, "detail": detail}},
		}},
	})
}
