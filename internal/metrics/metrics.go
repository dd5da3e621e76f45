// Package metrics exposes Prometheus collectors for dialogue outcomes, step events,
// provider calls and the periodically refreshed analytics aggregates.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/foodfinderyyc/smsbot/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Dialogue metrics
	sessionsStarted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "foodfinder_sessions_started_total",
			Help: "Total number of dialogue sessions started",
		},
	)

	sessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foodfinder_sessions_ended_total",
			Help: "Total number of dialogue sessions ended, by outcome",
		},
		[]string{"outcome"},
	)

	stepEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foodfinder_step_events_total",
			Help: "Total number of step events, by event code and result",
		},
		[]string{"code", "result"},
	)

	// Provider metrics
	providerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "foodfinder_provider_calls_total",
			Help: "Total number of geocode and search provider calls",
		},
		[]string{"provider", "status"},
	)

	providerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "foodfinder_provider_call_duration_seconds",
			Help:    "Geocode and search provider call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)

	// Analytics gauges, refreshed on a schedule
	statsUsers = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foodfinder_stats_users",
			Help: "Number of distinct users with at least one session",
		},
	)

	statsInvalidResponses = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foodfinder_stats_invalid_responses",
			Help: "Number of unrecognised menu responses",
		},
	)

	statsLocationChoices = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foodfinder_stats_location_choices",
			Help: "Number of times each location input mode was chosen",
		},
		[]string{"mode"},
	)

	statsNoGeocodes = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foodfinder_stats_failed_geocodes",
			Help: "Number of failed location resolutions, by mode",
		},
		[]string{"mode"},
	)

	statsNoLocations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "foodfinder_stats_empty_searches",
			Help: "Number of searches that returned no locations",
		},
	)

	statsSessionSeconds = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "foodfinder_stats_session_seconds",
			Help: "Min, max and mean completed session duration",
		},
		[]string{"stat"},
	)

	initOnce sync.Once
)

// Provider label values.
const (
	ProviderGeocode = "geocode"
	ProviderSearch  = "search"
)

// InitMetrics registers the collectors with the default registry.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			sessionsStarted,
			sessionsEnded,
			stepEvents,
			providerCalls,
			providerDuration,
			statsUsers,
			statsInvalidResponses,
			statsLocationChoices,
			statsNoGeocodes,
			statsNoLocations,
			statsSessionSeconds,
		)
	})
}

// Handler returns an HTTP handler for Prometheus metrics
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordSessionStarted counts a new dialogue session.
func RecordSessionStarted() {
	sessionsStarted.Inc()
}

// RecordSessionEnded counts a finished dialogue session.
func RecordSessionEnded(outcome string) {
	sessionsEnded.WithLabelValues(outcome).Inc()
}

// RecordStepEvent counts a step event. result is "valid", "invalid", "found",
// "not_found" or "recorded" for steps without a flag.
func RecordStepEvent(e models.ConvoEvent) {
	result := "recorded"
	switch {
	case e.ValidResponse != nil && *e.ValidResponse:
		result = "valid"
	case e.ValidResponse != nil:
		result = "invalid"
	case e.LocationsFound != nil && *e.LocationsFound:
		result = "found"
	case e.LocationsFound != nil:
		result = "not_found"
	}
	stepEvents.WithLabelValues(e.EventCode, result).Inc()
}

// RecordProviderCall records the outcome and latency of a geocode or search call.
func RecordProviderCall(provider string, err error, duration time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	providerCalls.WithLabelValues(provider, status).Inc()
	providerDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// SetStats publishes the analytics aggregates as gauges.
func SetStats(s models.Stats) {
	statsUsers.Set(float64(s.UserCount))
	statsInvalidResponses.Set(float64(s.InvalidResponses))
	statsLocationChoices.WithLabelValues("address").Set(float64(s.LocationChoices.Addresses))
	statsLocationChoices.WithLabelValues("intersection").Set(float64(s.LocationChoices.Intersections))
	statsLocationChoices.WithLabelValues("place").Set(float64(s.LocationChoices.Places))
	statsNoGeocodes.WithLabelValues("address").Set(float64(s.NoGeocodes.Addresses))
	statsNoGeocodes.WithLabelValues("intersection").Set(float64(s.NoGeocodes.Intersections))
	statsNoGeocodes.WithLabelValues("place").Set(float64(s.NoGeocodes.Places))
	statsNoLocations.Set(float64(s.NoLocations.Count))
	statsSessionSeconds.WithLabelValues("min").Set(s.SessionTimes.Min)
	statsSessionSeconds.WithLabelValues("max").Set(s.SessionTimes.Max)
	statsSessionSeconds.WithLabelValues("mean").Set(s.SessionTimes.Mean)
}
