// Package search finds the food-assistance locations nearest a coordinate, either by
// calling the Parse Server "search" cloud function or from a local JSON catalog.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/foodfinderyyc/smsbot/internal/models"
)

// ParseConfig holds Parse Server connection settings.
type ParseConfig struct {
	ServerURL string
	AppID     string
	RESTKey   string
	Timeout   time.Duration
}

// ParseClient calls the "search" cloud function of a Parse Server.
type ParseClient struct {
	cfg        ParseConfig
	httpClient *http.Client
}

// ParseOption configures a ParseClient.
type ParseOption func(*ParseClient)

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(c *http.Client) ParseOption {
	return func(p *ParseClient) { p.httpClient = c }
}

// NewParseClient creates a client for the given server.
func NewParseClient(cfg ParseConfig, opts ...ParseOption) (*ParseClient, error) {
	if cfg.ServerURL == "" || cfg.AppID == "" {
		return nil, errors.New("parse server URL and application ID are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	p := &ParseClient{cfg: cfg, httpClient: &http.Client{Timeout: cfg.Timeout}}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

type geoPoint struct {
	Type      string  `json:"__type"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type searchRequest struct {
	Date        string   `json:"date"`
	DateTimeNow string   `json:"dateTimeNow"`
	Meals       []string `json:"meals"`
	Distance    float64  `json:"distance"`
	Geolocation geoPoint `json:"geolocation"`
}

type searchResponse struct {
	Result []struct {
		Object models.Location `json:"object"`
	} `json:"result"`
	Code  int    `json:"code"`
	Error string `json:"error"`
}

// Search runs the cloud function and returns the locations in the order the server
// ranked them.
func (p *ParseClient) Search(ctx context.Context, q models.SearchQuery) ([]models.Location, error) {
	body, err := json.Marshal(searchRequest{
		Date:        q.Date.Format(time.RFC3339),
		DateTimeNow: q.Now.Format(time.RFC3339),
		Meals:       q.ServiceTypes,
		Distance:    q.MaxDistance,
		Geolocation: geoPoint{Type: "GeoPoint", Latitude: q.Coordinate.Lat, Longitude: q.Coordinate.Lon},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	url := strings.TrimRight(p.cfg.ServerURL, "/") + "/functions/search"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create search request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Parse-Application-Id", p.cfg.AppID)
	if p.cfg.RESTKey != "" {
		req.Header.Set("X-Parse-REST-API-Key", p.cfg.RESTKey)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		slog.Error("ParseClient.Search: request failed", "error", err)
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read search response: %w", err)
	}
	var decoded searchResponse
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode search response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK || decoded.Error != "" {
		slog.Error("ParseClient.Search: server error", "status", resp.StatusCode, "code", decoded.Code, "error", decoded.Error)
		return nil, fmt.Errorf("search failed with status %d: %s", resp.StatusCode, decoded.Error)
	}

	locations := make([]models.Location, 0, len(decoded.Result))
	for _, r := range decoded.Result {
		locations = append(locations, r.Object)
	}
	slog.Debug("ParseClient.Search succeeded", "count", len(locations))
	return locations, nil
}
