// Package testutil provides shared test helpers: HTTP assertions, event log seeding
// and stub location providers.
package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/foodfinderyyc/smsbot/internal/geocode"
	"github.com/foodfinderyyc/smsbot/internal/models"
	"github.com/foodfinderyyc/smsbot/internal/store"
)

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t testing.TB, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes an APIResponse envelope and validates its status field.
func AssertJSONResponse(t testing.TB, rr *httptest.ResponseRecorder, expectedStatus models.APIStatus) models.APIResponse {
	t.Helper()
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json content type, got %q", ct)
	}
	var response models.APIResponse
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}
	if response.Status != string(expectedStatus) {
		t.Errorf("expected status '%s', got '%s' (message %q)", expectedStatus, response.Status, response.Message)
	}
	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t testing.TB, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody bytes.Buffer
	if body != nil {
		reqBody.Write(MustMarshalJSON(t, body))
	}
	req := httptest.NewRequest(method, url, &reqBody)
	req.Header.Set("Content-Type", "application/json")
	return req
}

// SeedEvents records events into log and fails the test on error.
func SeedEvents(t testing.TB, log store.EventLog, events ...models.ConvoEvent) {
	t.Helper()
	for _, e := range events {
		if err := log.Record(context.Background(), e); err != nil {
			t.Fatalf("failed to seed event %+v: %v", e, err)
		}
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t testing.TB, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// StubGeocoder resolves texts from a fixed table, ignoring case and surrounding space.
// Unknown texts fail with geocode.ErrNotFound.
type StubGeocoder struct {
	Known map[string]models.Coordinate

	mu      sync.Mutex
	queries []string
}

// NewStubGeocoder creates a StubGeocoder over known.
func NewStubGeocoder(known map[string]models.Coordinate) *StubGeocoder {
	normalized := make(map[string]models.Coordinate, len(known))
	for k, v := range known {
		normalized[strings.ToLower(strings.TrimSpace(k))] = v
	}
	return &StubGeocoder{Known: normalized}
}

func (g *StubGeocoder) GeocodeLocality(ctx context.Context, text, locality string) (models.Coordinate, error) {
	g.mu.Lock()
	g.queries = append(g.queries, text)
	g.mu.Unlock()
	if c, ok := g.Known[strings.ToLower(strings.TrimSpace(text))]; ok {
		return c, nil
	}
	return models.Coordinate{}, geocode.ErrNotFound
}

// Queries returns the texts looked up so far.
func (g *StubGeocoder) Queries() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.queries...)
}

// StubSearcher returns Locations for every query and records the queries.
type StubSearcher struct {
	Locations []models.Location
	Err       error

	mu      sync.Mutex
	queries []models.SearchQuery
}

func (s *StubSearcher) Search(ctx context.Context, q models.SearchQuery) ([]models.Location, error) {
	s.mu.Lock()
	s.queries = append(s.queries, q)
	s.mu.Unlock()
	if s.Err != nil {
		return nil, s.Err
	}
	return append([]models.Location(nil), s.Locations...), nil
}

// Queries returns the searches made so far.
func (s *StubSearcher) Queries() []models.SearchQuery {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.SearchQuery(nil), s.queries...)
}
