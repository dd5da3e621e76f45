package models

// Stats is the JSON document served by the stats query surface.
type Stats struct {
	UserCount        int             `json:"userCount"`
	InvalidResponses int             `json:"invalidResponses"`
	LocationChoices  LocationChoices `json:"locationChoices"`
	NoGeocodes       NoGeocodes      `json:"noGeocodes"`
	NoLocations      NoLocations     `json:"noLocations"`
	Sessions         SessionStats    `json:"sessions"`
	SessionTimes     Summary         `json:"sessionTimes"`
}

// LocationChoices counts how often each location-input mode was chosen.
type LocationChoices struct {
	Addresses     int `json:"addresses"`
	Intersections int `json:"intersections"`
	Places        int `json:"places"`
}

// NoGeocodes counts failed location resolutions by step.
type NoGeocodes struct {
	Addresses     int `json:"addresses"`
	Intersections int `json:"intersections"`
	Places        int `json:"places"`
}

// NoLocations counts searches that returned nothing, with the parameters used.
type NoLocations struct {
	Count        int           `json:"count"`
	SearchParams []SearchQuery `json:"searchParams"`
}

// Summary is a min/max/mean triple. All fields are zero when there is no data.
type Summary struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
}

// SessionStats summarises the latest session number per user.
type SessionStats struct {
	Summary
	UserSessions map[string]int `json:"userSessions"`
}

// NewSummary computes min, max and mean of values.
func NewSummary(values []float64) Summary {
	if len(values) == 0 {
		return Summary{}
	}
	s := Summary{Min: values[0], Max: values[0]}
	var sum float64
	for _, v := range values {
		if v < s.Min {
			s.Min = v
		}
		if v > s.Max {
			s.Max = v
		}
		sum += v
	}
	s.Mean = sum / float64(len(values))
	return s
}
