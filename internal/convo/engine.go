package convo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/foodfinderyyc/smsbot/internal/metrics"
	"github.com/foodfinderyyc/smsbot/internal/models"
)

// Geocoder resolves free text within a locality to a coordinate.
type Geocoder interface {
	GeocodeLocality(ctx context.Context, text, locality string) (models.Coordinate, error)
}

// Searcher returns service locations ordered by distance from the query coordinate.
type Searcher interface {
	Search(ctx context.Context, q models.SearchQuery) ([]models.Location, error)
}

// PlaceLookup resolves a normalised place name to its coordinate.
type PlaceLookup interface {
	Lookup(name string) (models.Coordinate, bool)
}

// EventRecorder persists step events.
type EventRecorder interface {
	Record(ctx context.Context, e models.ConvoEvent) error
}

// Outcome is how a dialogue run ended.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeTimedOut  Outcome = "timed_out"
	OutcomeAbandoned Outcome = "abandoned"
)

// Engine drives dialogues for a Definition. One Engine serves any number of
// concurrent runs; all per-run state lives in the run.
type Engine struct {
	def      *Definition
	geocoder Geocoder
	searcher Searcher
	places   PlaceLookup
	recorder EventRecorder
	now      func() time.Time

	recordTimeout time.Duration
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithClock sets the engine's time source.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) { e.now = now }
}

// WithEventRecorder sets where step events are written. Without one, events are
// only counted in metrics.
func WithEventRecorder(r EventRecorder) EngineOption {
	return func(e *Engine) { e.recorder = r }
}

// WithRecordTimeout bounds each event write and the wait for queued writes when a
// dialogue ends.
func WithRecordTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.recordTimeout = d
		}
	}
}

// NewEngine creates an Engine.
func NewEngine(def *Definition, geocoder Geocoder, searcher Searcher, places PlaceLookup, opts ...EngineOption) *Engine {
	e := &Engine{
		def:      def,
		geocoder: geocoder,
		searcher: searcher,
		places:   places,
		now:      time.Now,

		recordTimeout: DefaultRecordTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Definition returns the script the engine runs.
func (e *Engine) Definition() *Definition {
	return e.def
}

// run is one dialogue in progress.
type run struct {
	engine  *Engine
	conv    Conversation
	session models.Session
	state   DialogueState
	events  chan models.ConvoEvent
	done    chan struct{}
}

// eventBuffer bounds how many events may wait for the recorder. Events beyond it are
// dropped.
const eventBuffer = 32

// DefaultRecordTimeout bounds one event write.
const DefaultRecordTimeout = 5 * time.Second

// Start runs one dialogue to completion over conv. A timeout or an exhausted script
// ends the dialogue without an error; transport failures and context cancellation
// are returned with OutcomeAbandoned.
func (e *Engine) Start(ctx context.Context, conv Conversation, session models.Session) (Outcome, error) {
	slog.Info("Engine.Start: dialogue started", "user", session.User, "session", session.Number, "anonymous", session.Anonymous)
	metrics.RecordSessionStarted()

	r := &run{
		engine:  e,
		conv:    conv,
		session: session,
		state:   newDialogueState(),
		events:  make(chan models.ConvoEvent, eventBuffer),
		done:    make(chan struct{}),
	}
	go r.writeEvents(context.WithoutCancel(ctx))

	conv.SetTimeout(e.def.TimeoutAfter)
	conv.OnTimeout(func(ctx context.Context) {
		slog.Info("Engine.Start: dialogue timed out", "user", session.User, "session", session.Number, "step", r.state.Step)
		if err := conv.Say(ctx, e.def.TimeoutText); err != nil {
			slog.Error("Engine.Start: failed to send timeout message", "error", err, "user", session.User)
		}
	})

	err := r.loop(ctx)
	close(r.events)
	r.drain()

	outcome := OutcomeAbandoned
	switch {
	case err == nil:
		outcome = OutcomeCompleted
	case errors.Is(err, ErrTimeout):
		outcome, err = OutcomeTimedOut, nil
	case errors.Is(err, ErrNoMoreInput):
		err = nil
	}
	metrics.RecordSessionEnded(string(outcome))
	if err != nil {
		slog.Error("Engine.Start: dialogue failed", "error", err, "user", session.User, "session", session.Number, "step", r.state.Step)
		return outcome, err
	}
	slog.Info("Engine.Start: dialogue ended", "user", session.User, "session", session.Number, "outcome", outcome)
	return outcome, nil
}

func (r *run) loop(ctx context.Context) error {
	for {
		var err error
		switch r.state.Step {
		case StepGreeting:
			err = r.greeting(ctx)
		case StepLocationType:
			err = r.locationType(ctx)
		case StepAddress:
			err = r.address(ctx)
		case StepIntersection1:
			err = r.intersection1(ctx)
		case StepIntersection2:
			err = r.intersection2(ctx)
		case StepPlace:
			err = r.place(ctx)
		case StepResults:
			return r.results(ctx)
		default:
			return fmt.Errorf("unknown step %q", r.state.Step)
		}
		if err != nil {
			return err
		}
	}
}

func (r *run) ask(ctx context.Context, step *Step, prompt string, awaitNext bool) (string, error) {
	slog.Debug("Engine ask", "user", r.session.User, "step", step.ID)
	return r.conv.Ask(ctx, prompt, AskOptions{Key: step.ID, AwaitNext: awaitNext})
}

// complete marks step done with reply and moves to next.
func (r *run) complete(step *Step, reply string, next StepID) {
	r.state.Responses[step.ID] = reply
	r.state.Step = next
	r.conv.Next()
}

func (r *run) greeting(ctx context.Context) error {
	step := r.engine.def.Step(StepGreeting)
	reply, err := r.ask(ctx, step, r.engine.def.Greeting+" "+step.Text, false)
	if err != nil {
		return err
	}
	value, ok := step.Choice(reply)
	r.record(step, models.ConvoEvent{ResponseText: models.String(reply), ValidResponse: models.Bool(ok)})
	if !ok {
		return nil
	}
	r.state.Day = models.Day(value)
	r.complete(step, reply, StepLocationType)
	return nil
}

func (r *run) locationType(ctx context.Context) error {
	step := r.engine.def.Step(StepLocationType)
	prompt := r.state.Prefix + step.Text
	r.state.Prefix = ""
	reply, err := r.ask(ctx, step, prompt, false)
	if err != nil {
		return err
	}
	value, ok := step.Choice(reply)
	r.record(step, models.ConvoEvent{ResponseText: models.String(reply), ValidResponse: models.Bool(ok)})
	if !ok {
		return nil
	}
	r.state.Mode = models.LocationMode(value)
	switch r.state.Mode {
	case models.LocationModeAddress:
		r.complete(step, reply, StepAddress)
	case models.LocationModeIntersection:
		r.complete(step, reply, StepIntersection1)
	case models.LocationModePlace:
		r.complete(step, reply, StepPlace)
	}
	return nil
}

func (r *run) address(ctx context.Context) error {
	step := r.engine.def.Step(StepAddress)
	reply, err := r.ask(ctx, step, step.Text, true)
	if err != nil {
		return err
	}
	r.resolve(ctx, step, reply, reply)
	return nil
}

func (r *run) intersection1(ctx context.Context) error {
	step := r.engine.def.Step(StepIntersection1)
	reply, err := r.ask(ctx, step, step.Text, false)
	if err != nil {
		return err
	}
	r.record(step, models.ConvoEvent{ResponseText: models.String(reply)})
	r.complete(step, reply, StepIntersection2)
	return nil
}

func (r *run) intersection2(ctx context.Context) error {
	step := r.engine.def.Step(StepIntersection2)
	reply, err := r.ask(ctx, step, step.Text, true)
	if err != nil {
		return err
	}
	combined := strings.TrimSpace(r.state.Responses[StepIntersection1]) + " & " + strings.TrimSpace(reply)
	r.resolve(ctx, step, reply, combined)
	return nil
}

// resolve geocodes query for an address or intersection step and routes to results
// or back to the location-type question.
func (r *run) resolve(ctx context.Context, step *Step, reply, query string) {
	start := time.Now()
	coord, err := r.engine.geocoder.GeocodeLocality(ctx, query, r.engine.def.Locality)
	metrics.RecordProviderCall(metrics.ProviderGeocode, err, time.Since(start))

	r.record(step, models.ConvoEvent{ResponseText: models.String(reply), LocationsFound: models.Bool(err == nil)})
	if err != nil {
		slog.Info("Engine resolve: location not resolved", "user", r.session.User, "step", step.ID, "query", query, "error", err)
		r.retryLocation(step, query)
		return
	}
	r.state.Coordinate = &coord
	r.complete(step, reply, StepResults)
}

func (r *run) place(ctx context.Context) error {
	step := r.engine.def.Step(StepPlace)
	reply, err := r.ask(ctx, step, step.Text, true)
	if err != nil {
		return err
	}
	var coord models.Coordinate
	found := false
	if r.engine.places != nil {
		coord, found = r.engine.places.Lookup(normalize(reply))
	}
	r.record(step, models.ConvoEvent{ResponseText: models.String(reply), LocationsFound: models.Bool(found)})
	if !found {
		slog.Info("Engine place: place not found", "user", r.session.User, "place", reply)
		r.retryLocation(step, strings.TrimSpace(reply))
		return nil
	}
	r.state.Coordinate = &coord
	r.complete(step, reply, StepResults)
	return nil
}

// retryLocation sends the user back to the location-type question with step's error.
func (r *run) retryLocation(step *Step, input string) {
	r.state.Prefix = step.ErrorPrefix(input)
	r.state.Coordinate = nil
	r.state.Step = StepLocationType
	r.conv.Next()
}

func (r *run) results(ctx context.Context) error {
	def := r.engine.def
	step := def.Step(StepResults)
	now := r.engine.now()

	q := models.SearchQuery{
		Day:          r.state.Day,
		Date:         r.state.Day.SearchDate(now),
		Now:          now,
		Coordinate:   *r.state.Coordinate,
		ServiceTypes: def.ServiceTypes,
		MaxDistance:  def.SearchRadiusKm,
	}
	start := time.Now()
	locations, err := r.engine.searcher.Search(ctx, q)
	metrics.RecordProviderCall(metrics.ProviderSearch, err, time.Since(start))
	if err != nil {
		// Provider failures read the same as an empty result to the user.
		slog.Error("Engine results: search failed", "error", err, "user", r.session.User)
		locations = nil
	}
	if len(locations) > def.MaxResults {
		locations = locations[:def.MaxResults]
	}

	params, err := json.Marshal(q)
	if err != nil {
		slog.Warn("Engine results: failed to encode search params", "error", err)
	}
	elapsed := now.Sub(r.session.StartTime).Seconds()
	r.record(step, models.ConvoEvent{
		ElapsedSeconds: models.Float(elapsed),
		LocationsFound: models.Bool(len(locations) > 0),
		SearchParams:   string(params),
	})

	if err := r.conv.Say(ctx, FormatResults(def, locations)); err != nil {
		return fmt.Errorf("failed to send results: %w", err)
	}
	r.state.Step = StepResults
	return nil
}

// FormatResults renders the closing message for locations.
func FormatResults(def *Definition, locations []models.Location) string {
	var b strings.Builder
	if len(locations) == 0 {
		b.WriteString(def.NoResults)
	} else {
		b.WriteString(def.ResultsHeader)
		b.WriteString("\n")
		for _, loc := range locations {
			b.WriteString(loc.Name)
			b.WriteString("\n")
			b.WriteString(loc.Address)
			b.WriteString("\n")
		}
	}
	b.WriteString("\n")
	b.WriteString(def.Goodbye)
	return b.String()
}

// record queues an event for step. Anonymous sessions are counted but not persisted.
func (r *run) record(step *Step, e models.ConvoEvent) {
	e.User = r.session.User
	e.SessionNumber = r.session.Number
	e.EventCode = step.EventCode
	e.StepID = string(step.ID)
	e.CreatedAt = r.engine.now().UTC()
	metrics.RecordStepEvent(e)

	if r.session.Anonymous || r.engine.recorder == nil {
		return
	}
	select {
	case r.events <- e:
	default:
		slog.Warn("Engine: event queue full, dropping event", "user", e.User, "session", e.SessionNumber, "code", e.EventCode)
	}
}

// drain waits for queued events to be written, giving up after the record timeout.
// Writes still pending carry on in the background under their own deadlines.
func (r *run) drain() {
	timer := time.NewTimer(r.engine.recordTimeout)
	defer timer.Stop()
	select {
	case <-r.done:
	case <-timer.C:
		slog.Warn("Engine: event writes still pending at dialogue end", "user", r.session.User, "session", r.session.Number, "queued", len(r.events))
	}
}

// writeEvents persists queued events in order. Failures are logged and dropped.
func (r *run) writeEvents(ctx context.Context) {
	defer close(r.done)
	for e := range r.events {
		if r.engine.recorder == nil {
			continue
		}
		recordCtx, cancel := context.WithTimeout(ctx, r.engine.recordTimeout)
		err := r.engine.recorder.Record(recordCtx, e)
		cancel()
		if err != nil {
			slog.Error("Engine: failed to record event", "error", err, "user", e.User, "session", e.SessionNumber, "code", e.EventCode)
		}
	}
}
