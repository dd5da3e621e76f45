// Package models defines the append-only conversation event record.
package models

import (
	"fmt"
	"time"
)

// ConvoEvent is one step outcome of one session. Events are written once and never
// updated; analytics only read aggregates over them. Optional fields are nil when the
// step does not carry them.
type ConvoEvent struct {
	ID             string    `json:"id"`
	User           string    `json:"user"`
	SessionNumber  int       `json:"userSession"`
	EventCode      string    `json:"convoId"`
	StepID         string    `json:"stepId"`
	ElapsedSeconds *float64  `json:"time,omitempty"`
	ResponseText   *string   `json:"response,omitempty"`
	ValidResponse  *bool     `json:"validResponse,omitempty"`
	LocationsFound *bool     `json:"locationsFound,omitempty"`
	SearchParams   string    `json:"searchParams,omitempty"` // JSON-encoded SearchQuery for results events
	CreatedAt      time.Time `json:"createdAt"`
}

// Validate checks the identifying fields of an event.
func (e *ConvoEvent) Validate() error {
	if e.User == "" {
		return ErrEmptyUser
	}
	if e.EventCode == "" {
		return ErrEmptyEventCode
	}
	if e.SessionNumber < 1 {
		return fmt.Errorf("%w: %d", ErrInvalidSession, e.SessionNumber)
	}
	return nil
}

// SearchQuery is the input of a location search. It is also stored with results events
// so that empty searches can be investigated later.
type SearchQuery struct {
	Day          Day        `json:"day"`
	Date         time.Time  `json:"date"`
	Now          time.Time  `json:"dateTimeNow"`
	Coordinate   Coordinate `json:"geolocation"`
	ServiceTypes []string   `json:"meals"`
	MaxDistance  float64    `json:"distance"` // kilometres
}

// Bool returns a pointer to b.
func Bool(b bool) *bool { return &b }

// String returns a pointer to s.
func String(s string) *string { return &s }

// Float returns a pointer to f.
func Float(f float64) *float64 { return &f }
