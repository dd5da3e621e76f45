package search

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"

	"github.com/foodfinderyyc/smsbot/internal/models"
)

// Service is one recurring offering of a catalog location.
type Service struct {
	// Day is the lower-case English weekday, e.g. "monday".
	Day  string `json:"day"`
	Type string `json:"type"`
	// Start and End are "15:04" times of day.
	Start string `json:"start"`
	End   string `json:"end"`
}

// CatalogEntry is a location with its schedule.
type CatalogEntry struct {
	Name     string    `json:"name"`
	Address  string    `json:"address"`
	Lat      float64   `json:"lat"`
	Lon      float64   `json:"lon"`
	Services []Service `json:"services"`
}

// Catalog answers searches from an in-process list of locations.
type Catalog struct {
	entries []CatalogEntry
}

// NewCatalog creates a catalog over entries.
func NewCatalog(entries []CatalogEntry) *Catalog {
	return &Catalog{entries: entries}
}

// LoadCatalog reads a JSON array of CatalogEntry from path.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}
	var entries []CatalogEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse catalog %s: %w", path, err)
	}
	return NewCatalog(entries), nil
}

// Search returns the locations within q.MaxDistance kilometres that offer one of
// q.ServiceTypes on q.Date, nearest first. When q.Date falls on the same day as q.Now,
// services that have already ended are skipped.
func (c *Catalog) Search(ctx context.Context, q models.SearchQuery) ([]models.Location, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	type hit struct {
		loc  models.Location
		dist float64
	}
	weekday := strings.ToLower(q.Date.Weekday().String())
	sameDay := q.Date.YearDay() == q.Now.YearDay() && q.Date.Year() == q.Now.Year()
	nowClock := q.Now.Format("15:04")

	var hits []hit
	for _, e := range c.entries {
		dist := DistanceKm(q.Coordinate, models.Coordinate{Lat: e.Lat, Lon: e.Lon})
		if q.MaxDistance > 0 && dist > q.MaxDistance {
			continue
		}
		if !e.offers(weekday, q.ServiceTypes, sameDay, nowClock) {
			continue
		}
		hits = append(hits, hit{loc: models.Location{Name: e.Name, Address: e.Address}, dist: dist})
	}
	slices.SortStableFunc(hits, func(a, b hit) int {
		switch {
		case a.dist < b.dist:
			return -1
		case a.dist > b.dist:
			return 1
		}
		return 0
	})

	locations := make([]models.Location, len(hits))
	for i, h := range hits {
		locations[i] = h.loc
	}
	return locations, nil
}

func (e CatalogEntry) offers(weekday string, types []string, sameDay bool, nowClock string) bool {
	for _, s := range e.Services {
		if !strings.EqualFold(s.Day, weekday) {
			continue
		}
		if len(types) > 0 && !slices.Contains(types, strings.ToLower(s.Type)) {
			continue
		}
		// "15:04" strings order the same as the times they denote.
		if sameDay && s.End != "" && s.End <= nowClock {
			continue
		}
		return true
	}
	return false
}

const earthRadiusKm = 6371.0

// DistanceKm is the great-circle distance between a and b.
func DistanceKm(a, b models.Coordinate) float64 {
	lat1, lat2 := a.Lat*math.Pi/180, b.Lat*math.Pi/180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(h)))
}
