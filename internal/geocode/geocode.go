// Package geocode resolves descriptive location text to coordinates with the Google
// Maps Geocoding API.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/foodfinderyyc/smsbot/internal/models"
	"googlemaps.github.io/maps"
)

var (
	// ErrNotFound is returned when the provider has no result for the text.
	ErrNotFound = errors.New("no geocodings found")
	// ErrInaccurate is returned when the best result is neither an exact match nor
	// an intersection.
	ErrInaccurate = errors.New("could not accurately geocode address")
	// ErrProvider wraps failures of the geocoding provider itself.
	ErrProvider = errors.New("error geocoding address")
)

// API is the part of the Maps client used by GoogleGeocoder.
type API interface {
	Geocode(ctx context.Context, r *maps.GeocodingRequest) ([]maps.GeocodingResult, error)
}

// GoogleGeocoder geocodes through the Google Maps Geocoding API.
type GoogleGeocoder struct {
	api API
}

// NewGoogleGeocoder creates a geocoder authenticated with apiKey. Extra options are
// passed to the Maps client.
func NewGoogleGeocoder(apiKey string, opts ...maps.ClientOption) (*GoogleGeocoder, error) {
	if apiKey == "" {
		return nil, errors.New("google API key is required")
	}
	client, err := maps.NewClient(append([]maps.ClientOption{maps.WithAPIKey(apiKey)}, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleGeocoder{api: client}, nil
}

// NewGoogleGeocoderFromAPI wraps an existing client.
func NewGoogleGeocoderFromAPI(api API) *GoogleGeocoder {
	return &GoogleGeocoder{api: api}
}

// GeocodeLocality geocodes text restricted to locality. text should not carry the
// city, province or postal code. Only rooftop-accurate results and intersections are
// accepted. Every failure is one of ErrNotFound, ErrInaccurate or ErrProvider.
func (g *GoogleGeocoder) GeocodeLocality(ctx context.Context, text, locality string) (models.Coordinate, error) {
	req := &maps.GeocodingRequest{Address: text}
	if locality != "" {
		req.Components = map[maps.Component]string{maps.ComponentLocality: locality}
	}
	result, err := g.first(ctx, req)
	if err != nil {
		return models.Coordinate{}, err
	}
	if result.Geometry.LocationType != string(maps.GeocodeAccuracyRooftop) && !slices.Contains(result.Types, "intersection") {
		slog.Info("GoogleGeocoder.GeocodeLocality: result not accurate enough", "text", text, "location_type", result.Geometry.LocationType)
		return models.Coordinate{}, ErrInaccurate
	}
	return toCoordinate(result), nil
}

// GeocodeFreeform geocodes a full address with no accuracy restriction. It is used
// by offline data tooling.
func (g *GoogleGeocoder) GeocodeFreeform(ctx context.Context, text string) (models.Coordinate, error) {
	result, err := g.first(ctx, &maps.GeocodingRequest{Address: text})
	if err != nil {
		return models.Coordinate{}, err
	}
	return toCoordinate(result), nil
}

func (g *GoogleGeocoder) first(ctx context.Context, req *maps.GeocodingRequest) (maps.GeocodingResult, error) {
	results, err := g.api.Geocode(ctx, req)
	if err != nil {
		slog.Error("GoogleGeocoder: provider error", "error", err, "address", req.Address)
		return maps.GeocodingResult{}, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if len(results) == 0 {
		slog.Info("GoogleGeocoder: no geocodings found", "address", req.Address)
		return maps.GeocodingResult{}, ErrNotFound
	}
	return results[0], nil
}

func toCoordinate(r maps.GeocodingResult) models.Coordinate {
	return models.Coordinate{Lat: r.Geometry.Location.Lat, Lon: r.Geometry.Location.Lng}
}
