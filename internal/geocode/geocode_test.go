package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/foodfinderyyc/smsbot/internal/models"
	"googlemaps.github.io/maps"
)

type fakeAPI struct {
	results []maps.GeocodingResult
	err     error
	last    *maps.GeocodingRequest
}

func (f *fakeAPI) Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error) {
	f.last = r
	return f.results, f.err
}

func result(locationType string, types ...string) maps.GeocodingResult {
	return maps.GeocodingResult{
		Geometry: maps.AddressGeometry{Location: maps.LatLng{Lat: 51.05, Lng: -114.07}, LocationType: locationType},
		Types:    types,
	}
}

func TestGeocodeLocality(t *testing.T) {
	tests := []struct {
		name    string
		results []maps.GeocodingResult
		err     error
		wantErr error
	}{
		{"rooftop", []maps.GeocodingResult{result("ROOFTOP", "street_address")}, nil, nil},
		{"intersection", []maps.GeocodingResult{result("APPROXIMATE", "intersection")}, nil, nil},
		{"interpolated", []maps.GeocodingResult{result("RANGE_INTERPOLATED", "street_address")}, nil, ErrInaccurate},
		{"only first result counts", []maps.GeocodingResult{result("APPROXIMATE", "locality"), result("ROOFTOP")}, nil, ErrInaccurate},
		{"empty", nil, nil, ErrNotFound},
		{"provider", nil, errors.New("OVER_QUERY_LIMIT"), ErrProvider},
	}
	for _, tt := range tests {
		api := &fakeAPI{results: tt.results, err: tt.err}
		coord, err := NewGoogleGeocoderFromAPI(api).GeocodeLocality(context.Background(), "123 Main St", "Calgary")
		if !errors.Is(err, tt.wantErr) {
			t.Errorf("%s: expected %v, got %v", tt.name, tt.wantErr, err)
			continue
		}
		if tt.wantErr == nil && coord != (models.Coordinate{Lat: 51.05, Lon: -114.07}) {
			t.Errorf("%s: unexpected coordinate %+v", tt.name, coord)
		}
		if api.last.Components[maps.ComponentLocality] != "Calgary" {
			t.Errorf("%s: locality not applied: %v", tt.name, api.last.Components)
		}
	}
}

func TestGeocodeLocality_NoLocality(t *testing.T) {
	api := &fakeAPI{results: []maps.GeocodingResult{result("ROOFTOP")}}
	if _, err := NewGoogleGeocoderFromAPI(api).GeocodeLocality(context.Background(), "1 St", ""); err != nil {
		t.Fatalf("GeocodeLocality failed: %v", err)
	}
	if api.last.Components != nil {
		t.Errorf("expected no component filter, got %v", api.last.Components)
	}
}

func TestGeocodeFreeform_AcceptsAnyAccuracy(t *testing.T) {
	api := &fakeAPI{results: []maps.GeocodingResult{result("APPROXIMATE", "locality")}}
	coord, err := NewGoogleGeocoderFromAPI(api).GeocodeFreeform(context.Background(), "Calgary, AB")
	if err != nil {
		t.Fatalf("GeocodeFreeform failed: %v", err)
	}
	if coord.Lat != 51.05 {
		t.Errorf("unexpected coordinate %+v", coord)
	}
}

func TestGoogleGeocoder_AgainstHTTPServer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("components") != "locality:Calgary" {
			t.Errorf("unexpected components %q", r.URL.Query().Get("components"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"OK","results":[{"types":["intersection"],"geometry":{"location":{"lat":51.0375,"lng":-114.0625},"location_type":"GEOMETRIC_CENTER"}}]}`))
	}))
	defer server.Close()

	g, err := NewGoogleGeocoder("test-key", maps.WithBaseURL(server.URL))
	if err != nil {
		t.Fatalf("NewGoogleGeocoder failed: %v", err)
	}
	coord, err := g.GeocodeLocality(context.Background(), "Centre St & 17 Ave", "Calgary")
	if err != nil {
		t.Fatalf("GeocodeLocality failed: %v", err)
	}
	if coord.Lat != 51.0375 || coord.Lon != -114.0625 {
		t.Errorf("unexpected coordinate %+v", coord)
	}
}

func TestNewGoogleGeocoder_RequiresKey(t *testing.T) {
	if _, err := NewGoogleGeocoder(""); err == nil {
		t.Error("expected error for empty key")
	}
}

type countingGeocoder struct {
	calls atomic.Int32
}

func (c *countingGeocoder) GeocodeFreeform(ctx context.Context, text string) (models.Coordinate, error) {
	c.calls.Add(1)
	if text == "bad" {
		return models.Coordinate{}, ErrNotFound
	}
	return models.Coordinate{Lat: float64(len(text))}, nil
}

func TestBatchGeocoder_GeocodeAll(t *testing.T) {
	g := &countingGeocoder{}
	res, err := NewBatchGeocoder(g, 1000).GeocodeAll(context.Background(), map[string]string{
		"a": "one",
		"b": "three",
		"c": "bad",
		"d": "",
	})
	if err != nil {
		t.Fatalf("GeocodeAll failed: %v", err)
	}
	if g.calls.Load() != 3 {
		t.Errorf("expected 3 provider calls, got %d", g.calls.Load())
	}
	if res.Coordinates["a"].Lat != 3 || res.Coordinates["b"].Lat != 5 {
		t.Errorf("unexpected coordinates %+v", res.Coordinates)
	}
	if !errors.Is(res.Failures["c"], ErrNotFound) || len(res.Failures) != 1 {
		t.Errorf("unexpected failures %+v", res.Failures)
	}
}

func TestBatchGeocoder_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewBatchGeocoder(&countingGeocoder{}, 1).GeocodeAll(ctx, map[string]string{"a": "x", "b": "y"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
