package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/foodfinderyyc/smsbot/internal/convo"
	"github.com/foodfinderyyc/smsbot/internal/messaging"
	"github.com/foodfinderyyc/smsbot/internal/metrics"
	"github.com/foodfinderyyc/smsbot/internal/models"
	"github.com/foodfinderyyc/smsbot/internal/store"
	"github.com/foodfinderyyc/smsbot/internal/testutil"
	"github.com/foodfinderyyc/smsbot/internal/twiliosms"
)

type fixedCount int

func (n fixedCount) ActiveCount() int { return int(n) }

type apiFixture struct {
	server *Server
	log    *store.InMemoryEventLog
	sms    *messaging.TwilioService
	dir    string
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	def, err := convo.DefaultDefinition()
	if err != nil {
		t.Fatalf("DefaultDefinition failed: %v", err)
	}
	log := store.NewInMemoryEventLog()
	geocoder := testutil.NewStubGeocoder(map[string]models.Coordinate{"123 Main St": {Lat: 51.04, Lon: -114.07}})
	searcher := &testutil.StubSearcher{Locations: []models.Location{
		{Name: "Drop-In Centre", Address: "1 Dermot Baldwin Way SE"},
		{Name: "Mustard Seed", Address: "102 11 Ave SE"},
	}}
	engine := convo.NewEngine(def, geocoder, searcher, nil, convo.WithEventRecorder(log))
	resolver := convo.NewSessionResolver(log, def.Step(convo.StepGreeting).EventCode)
	sms := messaging.NewTwilioService(twiliosms.NewMockClient())
	dir := t.TempDir()

	server := NewServer(sms.TwilioWebhookHandler, log, engine, resolver, fixedCount(2), WithTranscriptDir(filepath.Join(dir, "tests")))
	return &apiFixture{server: server, log: log, sms: sms, dir: dir}
}

func (f *apiFixture) do(req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rr, req)
	return rr
}

func TestStatsHandler(t *testing.T) {
	f := newAPIFixture(t)
	testutil.SeedEvents(t, f.log,
		models.ConvoEvent{User: "+15550001", SessionNumber: 1, EventCode: "D", ResponseText: models.String("1"), ValidResponse: models.Bool(true)},
		models.ConvoEvent{User: "+15550001", SessionNumber: 1, EventCode: "LT", ResponseText: models.String("9"), ValidResponse: models.Bool(false)},
		models.ConvoEvent{User: DefaultTestUser, SessionNumber: 1, EventCode: "D", ResponseText: models.String("x"), ValidResponse: models.Bool(false)},
	)

	rr := f.do(httptest.NewRequest(http.MethodGet, "/stats", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "stats")

	var stats models.Stats
	if err := json.NewDecoder(rr.Body).Decode(&stats); err != nil {
		t.Fatalf("failed to decode stats: %v", err)
	}
	if stats.UserCount != 1 {
		t.Errorf("expected 1 user, got %d", stats.UserCount)
	}
	if stats.InvalidResponses != 1 {
		t.Errorf("test user must be excluded, got %d invalid responses", stats.InvalidResponses)
	}
}

func TestStatsHandler_MethodNotAllowed(t *testing.T) {
	f := newAPIFixture(t)
	rr := f.do(httptest.NewRequest(http.MethodPost, "/stats", nil))
	testutil.AssertHTTPStatus(t, http.StatusMethodNotAllowed, rr.Code, "stats POST")
	if rr.Header().Get("Allow") != http.MethodGet {
		t.Errorf("expected Allow: GET, got %q", rr.Header().Get("Allow"))
	}
	testutil.AssertJSONResponse(t, rr, models.APIStatusError)
}

func TestStatsHandler_LogFailure(t *testing.T) {
	f := newAPIFixture(t)
	f.log.Close()
	rr := f.do(httptest.NewRequest(http.MethodGet, "/stats", nil))
	testutil.AssertHTTPStatus(t, http.StatusInternalServerError, rr.Code, "stats on closed log")
	testutil.AssertJSONResponse(t, rr, models.APIStatusError)
}

func TestTestConvoHandler(t *testing.T) {
	f := newAPIFixture(t)
	body := models.TestConvoRequest{Convo: []string{"1", "1", "123 Main St"}, TestFile: "address.txt"}
	rr := f.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/test_convo", body))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "test_convo")
	resp := testutil.AssertJSONResponse(t, rr, models.APIStatusOK)

	raw, _ := json.Marshal(resp.Result)
	var result TestConvoResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("failed to decode result: %v", err)
	}
	if result.Outcome != convo.OutcomeCompleted {
		t.Errorf("expected completed outcome, got %q", result.Outcome)
	}

	transcript, err := os.ReadFile(filepath.Join(f.dir, "tests", "address.txt"))
	if err != nil {
		t.Fatalf("transcript not written: %v", err)
	}
	for _, want := range []string{"USER: 123 Main St", "Drop-In Centre\n1 Dermot Baldwin Way SE", "Mustard Seed\n102 11 Ave SE"} {
		if !strings.Contains(string(transcript), want) {
			t.Errorf("transcript missing %q:\n%s", want, transcript)
		}
	}

	events, _ := f.log.Events(context.Background(), store.EventFilter{User: DefaultTestUser})
	if len(events) == 0 {
		t.Error("test run should record events under the test user")
	}
}

func TestTestConvoHandler_BadRequests(t *testing.T) {
	f := newAPIFixture(t)
	tests := []struct {
		name string
		body string
	}{
		{"invalid json", `{"convo":`},
		{"empty convo", `{"convo":[],"testFile":"a.txt"}`},
		{"missing file", `{"convo":["1"]}`},
		{"path traversal", `{"convo":["1"],"testFile":"../escape.txt"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/test_convo", strings.NewReader(tt.body))
			rr := f.do(req)
			testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, tt.name)
			testutil.AssertJSONResponse(t, rr, models.APIStatusError)
		})
	}
	if _, err := os.Stat(filepath.Join(f.dir, "escape.txt")); !os.IsNotExist(err) {
		t.Error("no file may be written outside the transcript directory")
	}
}

func TestHealthHandler(t *testing.T) {
	f := newAPIFixture(t)
	rr := f.do(httptest.NewRequest(http.MethodGet, "/health", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health")
	resp := testutil.AssertJSONResponse(t, rr, models.APIStatusOK)
	result, ok := resp.Result.(map[string]interface{})
	if !ok || result["activeConversations"] != float64(2) {
		t.Errorf("unexpected health result %#v", resp.Result)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.InitMetrics()
	f := newAPIFixture(t)
	f.do(testutil.CreateHTTPRequest(t, http.MethodPost, "/test_convo", models.TestConvoRequest{Convo: []string{"1"}, TestFile: "m.txt"}))

	rr := f.do(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "metrics")
	if !strings.Contains(rr.Body.String(), "foodfinder_sessions_started_total") {
		t.Error("metrics output missing session counter")
	}
}

func TestTwilioWebhookRoute(t *testing.T) {
	f := newAPIFixture(t)
	form := url.Values{"From": {"+14035550100"}, "Body": {"FOOD"}, "MessageSid": {"SM1"}}
	req := httptest.NewRequest(http.MethodPost, "/twilio/sms", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rr := f.do(req)
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "webhook")
	select {
	case r := <-f.sms.Responses():
		if r.Body != "FOOD" {
			t.Errorf("unexpected inbound %+v", r)
		}
	case <-time.After(time.Second):
		t.Fatal("webhook did not emit inbound message")
	}
}

func TestServerRun_StopsOnCancel(t *testing.T) {
	f := newAPIFixture(t)
	f.server.opts.Addr = "127.0.0.1:0"
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestWriteJSONResponse_Fallback(t *testing.T) {
	rr := httptest.NewRecorder()
	writeJSONResponse(rr, http.StatusOK, map[string]interface{}{"bad": make(chan int)})
	testutil.AssertHTTPStatus(t, http.StatusInternalServerError, rr.Code, "unencodable response")
	testutil.AssertJSONResponse(t, rr, models.APIStatusError)
}
