package search

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/foodfinderyyc/smsbot/internal/models"
)

// Friday 3 July 2026, 12:30.
var friday = time.Date(2026, 7, 3, 12, 30, 0, 0, time.UTC)

func testQuery(date time.Time) models.SearchQuery {
	return models.SearchQuery{
		Day:          models.DayToday,
		Date:         date,
		Now:          friday,
		Coordinate:   models.Coordinate{Lat: 51.0447, Lon: -114.0719},
		ServiceTypes: []string{"lunch", "hamper", "snacks", "dinner"},
		MaxDistance:  1000,
	}
}

func TestParseClient_Search(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/parse/functions/search" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("X-Parse-Application-Id") != "app" || r.Header.Get("X-Parse-REST-API-Key") != "rest" {
			t.Errorf("missing Parse headers: %v", r.Header)
		}
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode failed: %v", err)
		}
		if req.Distance != 1000 || len(req.Meals) != 4 || req.Geolocation.Latitude != 51.0447 || req.Geolocation.Type != "GeoPoint" {
			t.Errorf("unexpected search request %+v", req)
		}
		if req.Date != "2026-07-04T12:30:00Z" || req.DateTimeNow != "2026-07-03T12:30:00Z" {
			t.Errorf("unexpected dates %q %q", req.Date, req.DateTimeNow)
		}
		w.Write([]byte(`{"result":[{"object":{"name":"Drop-In Centre","address":"1 Dermot Baldwin Way SE"}},{"object":{"name":"Mustard Seed","address":"102 11 Ave SE"}}]}`))
	}))
	defer server.Close()

	p, err := NewParseClient(ParseConfig{ServerURL: server.URL + "/parse/", AppID: "app", RESTKey: "rest"})
	if err != nil {
		t.Fatalf("NewParseClient failed: %v", err)
	}
	locs, err := p.Search(context.Background(), testQuery(friday.AddDate(0, 0, 1)))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(locs) != 2 || locs[0].Name != "Drop-In Centre" || locs[1].Address != "102 11 Ave SE" {
		t.Errorf("unexpected locations %+v", locs)
	}
}

func TestParseClient_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":141,"error":"Invalid function"}`))
	}))
	defer server.Close()

	p, _ := NewParseClient(ParseConfig{ServerURL: server.URL, AppID: "app"})
	if _, err := p.Search(context.Background(), testQuery(friday)); err == nil {
		t.Error("expected error for failed cloud function")
	}
}

func TestParseClient_EmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":[]}`))
	}))
	defer server.Close()

	p, _ := NewParseClient(ParseConfig{ServerURL: server.URL, AppID: "app"})
	locs, err := p.Search(context.Background(), testQuery(friday))
	if err != nil || len(locs) != 0 {
		t.Errorf("expected empty result without error, got %v, %v", locs, err)
	}
}

func TestNewParseClient_RequiresConfig(t *testing.T) {
	if _, err := NewParseClient(ParseConfig{ServerURL: "http://x"}); err == nil {
		t.Error("expected error without app id")
	}
}

func testCatalog() *Catalog {
	return NewCatalog([]CatalogEntry{
		{Name: "Far Hamper", Address: "Edmonton", Lat: 53.5461, Lon: -113.4938,
			Services: []Service{{Day: "friday", Type: "hamper"}}},
		{Name: "Near Lunch", Address: "Downtown", Lat: 51.0450, Lon: -114.0700,
			Services: []Service{{Day: "friday", Type: "lunch", Start: "11:00", End: "12:00"}, {Day: "saturday", Type: "lunch", Start: "11:00", End: "13:00"}}},
		{Name: "Mid Dinner", Address: "Beltline", Lat: 51.0380, Lon: -114.0800,
			Services: []Service{{Day: "Friday", Type: "Dinner", Start: "17:00", End: "19:00"}}},
		{Name: "Breakfast Only", Address: "Kensington", Lat: 51.0520, Lon: -114.0870,
			Services: []Service{{Day: "friday", Type: "breakfast"}}},
	})
}

func TestCatalog_SearchToday(t *testing.T) {
	locs, err := testCatalog().Search(context.Background(), testQuery(friday))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	// Near Lunch ended at 12:00, breakfast is not a requested type.
	if len(locs) != 2 || locs[0].Name != "Mid Dinner" || locs[1].Name != "Far Hamper" {
		t.Errorf("unexpected results %+v", locs)
	}
}

func TestCatalog_SearchTomorrow(t *testing.T) {
	locs, err := testCatalog().Search(context.Background(), testQuery(friday.AddDate(0, 0, 1)))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(locs) != 1 || locs[0].Name != "Near Lunch" {
		t.Errorf("unexpected results %+v", locs)
	}
}

func TestCatalog_MaxDistance(t *testing.T) {
	q := testQuery(friday)
	q.MaxDistance = 50
	locs, _ := testCatalog().Search(context.Background(), q)
	for _, l := range locs {
		if l.Name == "Far Hamper" {
			t.Errorf("expected Edmonton to be outside 50 km")
		}
	}
}

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.json")
	data := `[{"name":"A","address":"1 St","lat":51,"lon":-114,"services":[{"day":"friday","type":"lunch"}]}]`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog failed: %v", err)
	}
	locs, _ := c.Search(context.Background(), testQuery(friday.AddDate(0, 0, 7)))
	if len(locs) != 1 || locs[0].Address != "1 St" {
		t.Errorf("unexpected results %+v", locs)
	}
	if _, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing catalog")
	}
}

func TestDistanceKm(t *testing.T) {
	calgary := models.Coordinate{Lat: 51.0447, Lon: -114.0719}
	edmonton := models.Coordinate{Lat: 53.5461, Lon: -113.4938}
	if d := DistanceKm(calgary, edmonton); math.Abs(d-281) > 5 {
		t.Errorf("expected ~281 km, got %.1f", d)
	}
	if d := DistanceKm(calgary, calgary); d != 0 {
		t.Errorf("expected 0, got %v", d)
	}
}
