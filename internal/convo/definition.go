// Package convo implements the Food Finder dialogue: the conversation definition, the
// step state machine that drives one session, session numbering, and a scripted
// transport used for end-to-end test runs.
package convo

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/foodfinderyyc/smsbot/internal/models"
	"github.com/foodfinderyyc/smsbot/internal/store"
	"gopkg.in/yaml.v3"
)

//go:embed default_convo.yaml
var defaultDefinition []byte

// StepID names one point in the dialogue.
type StepID string

const (
	StepGreeting      StepID = "greeting"
	StepLocationType  StepID = "locationType"
	StepAddress       StepID = "address"
	StepIntersection1 StepID = "intersectionStreet1"
	StepIntersection2 StepID = "intersectionStreet2"
	StepPlace         StepID = "place"
	StepResults       StepID = "results"
)

var requiredSteps = []StepID{
	StepGreeting, StepLocationType, StepAddress, StepIntersection1,
	StepIntersection2, StepPlace, StepResults,
}

// Step is the script of one dialogue step.
type Step struct {
	ID        StepID `yaml:"id"`
	EventCode string `yaml:"eventCode"`
	Text      string `yaml:"text"`
	// Choices maps a choice value to the raw replies that select it.
	Choices map[string][]string `yaml:"choices,omitempty"`
	// ErrorText is a fmt template receiving the input that could not be resolved.
	ErrorText string `yaml:"errorText,omitempty"`
}

// Choice returns the choice value selected by reply. Matching ignores case and
// surrounding whitespace.
func (s *Step) Choice(reply string) (string, bool) {
	r := normalize(reply)
	for value, aliases := range s.Choices {
		for _, a := range aliases {
			if r == normalize(a) {
				return value, true
			}
		}
	}
	return "", false
}

// ErrorPrefix renders the step's error text for input.
func (s *Step) ErrorPrefix(input string) string {
	if s.ErrorText == "" {
		return ""
	}
	return fmt.Sprintf(s.ErrorText, input)
}

// Definition is the immutable dialogue script. It is loaded once and shared read-only
// by every engine run.
type Definition struct {
	HearsPatterns  []string      `yaml:"hears"`
	Greeting       string        `yaml:"greeting"`
	Goodbye        string        `yaml:"goodbye"`
	TimeoutText    string        `yaml:"timeout"`
	TimeoutAfter   time.Duration `yaml:"timeoutAfter"`
	ResultsHeader  string        `yaml:"resultsHeader"`
	NoResults      string        `yaml:"noResults"`
	Locality       string        `yaml:"locality"`
	ServiceTypes   []string      `yaml:"serviceTypes"`
	SearchRadiusKm float64       `yaml:"searchRadiusKm"`
	MaxResults     int           `yaml:"maxResults"`
	Steps          []Step        `yaml:"steps"`

	steps map[StepID]*Step
	hears []*regexp.Regexp
}

// DefaultDefinition returns the built-in Food Finder script.
func DefaultDefinition() (*Definition, error) {
	return ParseDefinition(defaultDefinition)
}

// LoadDefinition reads a definition from path, or returns the built-in one when path
// is empty.
func LoadDefinition(path string) (*Definition, error) {
	if path == "" {
		return DefaultDefinition()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation definition: %w", err)
	}
	return ParseDefinition(data)
}

// ParseDefinition decodes and validates a YAML definition.
func ParseDefinition(data []byte) (*Definition, error) {
	var d Definition
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse conversation definition: %w", err)
	}
	if err := d.init(); err != nil {
		return nil, err
	}
	return &d, nil
}

func (d *Definition) init() error {
	if d.TimeoutAfter <= 0 {
		return errors.New("timeoutAfter must be positive")
	}
	if d.MaxResults <= 0 {
		return errors.New("maxResults must be positive")
	}
	if len(d.HearsPatterns) == 0 {
		return errors.New("at least one hears pattern is required")
	}

	d.steps = make(map[StepID]*Step, len(d.Steps))
	codes := make(map[string]StepID, len(d.Steps))
	for i := range d.Steps {
		s := &d.Steps[i]
		if _, dup := d.steps[s.ID]; dup {
			return fmt.Errorf("duplicate step id %q", s.ID)
		}
		if s.EventCode == "" {
			return fmt.Errorf("step %q has no event code", s.ID)
		}
		if other, dup := codes[s.EventCode]; dup {
			return fmt.Errorf("event code %q used by both %q and %q", s.EventCode, other, s.ID)
		}
		if err := checkAliases(s); err != nil {
			return err
		}
		d.steps[s.ID] = s
		codes[s.EventCode] = s.ID
	}
	for _, id := range requiredSteps {
		if _, ok := d.steps[id]; !ok {
			return fmt.Errorf("missing required step %q", id)
		}
	}
	for value := range d.steps[StepGreeting].Choices {
		if value != string(models.DayToday) && value != string(models.DayTomorrow) {
			return fmt.Errorf("greeting choice %q is not a day", value)
		}
	}
	for value := range d.steps[StepLocationType].Choices {
		switch models.LocationMode(value) {
		case models.LocationModeAddress, models.LocationModeIntersection, models.LocationModePlace:
		default:
			return fmt.Errorf("locationType choice %q is not a location mode", value)
		}
	}

	for _, pattern := range d.HearsPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid hears pattern %q: %w", pattern, err)
		}
		d.hears = append(d.hears, re)
	}
	return nil
}

func checkAliases(s *Step) error {
	seen := make(map[string]string)
	for value, aliases := range s.Choices {
		for _, a := range aliases {
			n := normalize(a)
			if other, dup := seen[n]; dup && other != value {
				return fmt.Errorf("step %q: reply %q selects both %q and %q", s.ID, a, other, value)
			}
			seen[n] = value
		}
	}
	return nil
}

// Step returns the step with the given id. Every required step exists once the
// definition has been parsed.
func (d *Definition) Step(id StepID) *Step {
	return d.steps[id]
}

// Hears reports whether text should start a new conversation.
func (d *Definition) Hears(text string) bool {
	for _, re := range d.hears {
		if re.MatchString(strings.TrimSpace(text)) {
			return true
		}
	}
	return false
}

// ClassifyLocation maps a location-type reply to its mode.
func (d *Definition) ClassifyLocation(reply string) (models.LocationMode, bool) {
	value, ok := d.Step(StepLocationType).Choice(reply)
	return models.LocationMode(value), ok
}

// StatsQuery describes this definition's event codes to the stats aggregator.
func (d *Definition) StatsQuery(excludeUser string) store.StatsQuery {
	return store.StatsQuery{
		ExcludeUser:      excludeUser,
		GreetingCode:     d.Step(StepGreeting).EventCode,
		LocationTypeCode: d.Step(StepLocationType).EventCode,
		AddressCode:      d.Step(StepAddress).EventCode,
		IntersectionCode: d.Step(StepIntersection2).EventCode,
		PlaceCode:        d.Step(StepPlace).EventCode,
		ResultsCode:      d.Step(StepResults).EventCode,
		ClassifyLocation: d.ClassifyLocation,
	}
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
