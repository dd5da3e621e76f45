package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/foodfinderyyc/smsbot/internal/models"
	"golang.org/x/sync/errgroup"
)

// StatsQuery tells the aggregator which event codes belong to which dialogue step and
// which user to leave out of every aggregate.
type StatsQuery struct {
	ExcludeUser      string
	GreetingCode     string
	LocationTypeCode string
	AddressCode      string
	IntersectionCode string // code of the step that geocodes the combined intersection
	PlaceCode        string
	ResultsCode      string
	ClassifyLocation func(response string) (models.LocationMode, bool)
}

// ComputeStats builds the analytics document from the event log. The independent
// aggregates are read concurrently.
func ComputeStats(ctx context.Context, log EventLog, q StatsQuery) (models.Stats, error) {
	var stats models.Stats
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		events, err := log.Events(ctx, EventFilter{ExcludeUser: q.ExcludeUser, ValidResponse: models.Bool(false)})
		if err != nil {
			return fmt.Errorf("invalid responses: %w", err)
		}
		stats.InvalidResponses = len(events)
		return nil
	})

	g.Go(func() error {
		events, err := log.Events(ctx, EventFilter{
			ExcludeUser:   q.ExcludeUser,
			EventCodes:    []string{q.LocationTypeCode},
			ValidResponse: models.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("location choices: %w", err)
		}
		for _, e := range events {
			if e.ResponseText == nil || q.ClassifyLocation == nil {
				continue
			}
			mode, ok := q.ClassifyLocation(*e.ResponseText)
			if !ok {
				continue
			}
			switch mode {
			case models.LocationModeAddress:
				stats.LocationChoices.Addresses++
			case models.LocationModeIntersection:
				stats.LocationChoices.Intersections++
			case models.LocationModePlace:
				stats.LocationChoices.Places++
			}
		}
		return nil
	})

	g.Go(func() error {
		events, err := log.Events(ctx, EventFilter{
			ExcludeUser:    q.ExcludeUser,
			EventCodes:     []string{q.AddressCode, q.IntersectionCode, q.PlaceCode},
			LocationsFound: models.Bool(false),
		})
		if err != nil {
			return fmt.Errorf("failed geocodes: %w", err)
		}
		for _, e := range events {
			switch e.EventCode {
			case q.AddressCode:
				stats.NoGeocodes.Addresses++
			case q.IntersectionCode:
				stats.NoGeocodes.Intersections++
			case q.PlaceCode:
				stats.NoGeocodes.Places++
			}
		}
		return nil
	})

	g.Go(func() error {
		events, err := log.Events(ctx, EventFilter{ExcludeUser: q.ExcludeUser, EventCodes: []string{q.ResultsCode}})
		if err != nil {
			return fmt.Errorf("session times: %w", err)
		}
		stats.NoLocations.SearchParams = []models.SearchQuery{}
		var times []float64
		for _, e := range events {
			if e.ElapsedSeconds != nil {
				times = append(times, *e.ElapsedSeconds)
			}
			if e.LocationsFound == nil || *e.LocationsFound {
				continue
			}
			stats.NoLocations.Count++
			if e.SearchParams == "" {
				continue
			}
			var params models.SearchQuery
			if err := json.Unmarshal([]byte(e.SearchParams), &params); err != nil {
				slog.Warn("ComputeStats: skipping undecodable search params", "error", err, "event", e.ID)
				continue
			}
			stats.NoLocations.SearchParams = append(stats.NoLocations.SearchParams, params)
		}
		stats.SessionTimes = models.NewSummary(times)
		return nil
	})

	g.Go(func() error {
		events, err := log.Events(ctx, EventFilter{ExcludeUser: q.ExcludeUser, EventCodes: []string{q.GreetingCode}})
		if err != nil {
			return fmt.Errorf("sessions: %w", err)
		}
		firstSessions := make(map[string]bool)
		latest := make(map[string]int)
		for _, e := range events {
			if e.SessionNumber == 1 {
				firstSessions[e.User] = true
			}
			if e.SessionNumber > latest[e.User] {
				latest[e.User] = e.SessionNumber
			}
		}
		stats.UserCount = len(firstSessions)
		counts := make([]float64, 0, len(latest))
		for _, n := range latest {
			counts = append(counts, float64(n))
		}
		stats.Sessions = models.SessionStats{Summary: models.NewSummary(counts), UserSessions: latest}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("ComputeStats failed", "error", err)
		return models.Stats{}, err
	}
	slog.Debug("ComputeStats succeeded", "users", stats.UserCount, "invalid", stats.InvalidResponses)
	return stats, nil
}
