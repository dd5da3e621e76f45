// Package models defines the core data structures for the Food Finder SMS bot.
//
// It includes types for inbound messages, coordinates, service locations, sessions and
// the API response envelope, which are shared across modules.
package models

import (
	"errors"
	"time"
)

// Error variables for better error handling and testability
var (
	ErrEmptyUser        = errors.New("user cannot be empty")
	ErrEmptyEventCode   = errors.New("event code cannot be empty")
	ErrInvalidSession   = errors.New("session number must be positive")
	ErrEmptyConvoScript = errors.New("convo must contain at least one utterance")
	ErrEmptyTestFile    = errors.New("testFile is required")
	ErrInvalidTestFile  = errors.New("testFile must be a plain file name")
)

// Coordinate is a latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Location is a food-assistance service location returned by a search.
type Location struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

// Day is the day the user wants to find food for.
type Day string

const (
	// DayToday searches for services open on the current calendar day.
	DayToday Day = "today"
	// DayTomorrow searches for services open on the next calendar day.
	DayTomorrow Day = "tomorrow"
)

// SearchDate returns the calendar date to search for relative to now. Only the date moves;
// the time of day is preserved.
func (d Day) SearchDate(now time.Time) time.Time {
	if d == DayTomorrow {
		return now.AddDate(0, 0, 1)
	}
	return now
}

// LocationMode is how the user chose to tell us where they are.
type LocationMode string

const (
	LocationModeAddress      LocationMode = "address"
	LocationModeIntersection LocationMode = "intersection"
	LocationModePlace        LocationMode = "place"
)

// Session identifies one dialogue attempt by one user.
type Session struct {
	User      string    `json:"user"`
	Number    int       `json:"session_number"`
	StartTime time.Time `json:"start_time"`
	// Anonymous sessions could not be numbered because the event history was unreadable;
	// their events are not persisted.
	Anonymous bool `json:"anonymous,omitempty"`
}

// Response represents an incoming SMS message from a user.
type Response struct {
	MessageID string `json:"message_id,omitempty"`
	From      string `json:"from"`
	Body      string `json:"body"`
	Time      int64  `json:"time"`
}

// TestConvoRequest is the body of a scripted test-run trigger.
type TestConvoRequest struct {
	Convo    []string `json:"convo"`
	TestFile string   `json:"testFile"`
}

// Validate checks the request has a script and a safe transcript name.
func (r *TestConvoRequest) Validate() error {
	if len(r.Convo) == 0 {
		return ErrEmptyConvoScript
	}
	if r.TestFile == "" {
		return ErrEmptyTestFile
	}
	for _, c := range r.TestFile {
		if c == '/' || c == '\\' {
			return ErrInvalidTestFile
		}
	}
	if r.TestFile == "." || r.TestFile == ".." {
		return ErrInvalidTestFile
	}
	return nil
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`            // status of the API response
	Message string      `json:"message,omitempty"` // optional message for error responses or additional info
	Result  interface{} `json:"result,omitempty"`  // optional result data for successful responses
}

// APIResponseBuilder provides a fluent interface for building API responses.
type APIResponseBuilder struct {
	response APIResponse
}

// NewAPIResponseBuilder creates a new APIResponseBuilder instance.
func NewAPIResponseBuilder() *APIResponseBuilder {
	return &APIResponseBuilder{
		response: APIResponse{},
	}
}

// WithStatus sets the status of the API response.
func (b *APIResponseBuilder) WithStatus(status APIStatus) *APIResponseBuilder {
	b.response.Status = string(status)
	return b
}

// WithMessage sets the message of the API response.
func (b *APIResponseBuilder) WithMessage(message string) *APIResponseBuilder {
	b.response.Message = message
	return b
}

// WithResult sets the result data of the API response.
func (b *APIResponseBuilder) WithResult(result interface{}) *APIResponseBuilder {
	b.response.Result = result
	return b
}

// Build constructs and returns the final APIResponse.
func (b *APIResponseBuilder) Build() APIResponse {
	return b.response
}

// Success creates a successful API response with result data.
func Success(result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithResult(result).
		Build()
}

// SuccessWithMessage creates a successful API response with a message and optional result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusOK).
		WithMessage(message).
		WithResult(result).
		Build()
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return NewAPIResponseBuilder().
		WithStatus(APIStatusError).
		WithMessage(message).
		Build()
}
