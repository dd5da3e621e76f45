package models

import (
	"errors"
	"testing"
	"time"
)

func TestTestConvoRequestValidate(t *testing.T) {
	tests := []struct {
		name    string
		req     TestConvoRequest
		wantErr error
	}{
		{"valid", TestConvoRequest{Convo: []string{"hi"}, TestFile: "run1.txt"}, nil},
		{"empty script", TestConvoRequest{TestFile: "run1.txt"}, ErrEmptyConvoScript},
		{"missing file", TestConvoRequest{Convo: []string{"hi"}}, ErrEmptyTestFile},
		{"path traversal", TestConvoRequest{Convo: []string{"hi"}, TestFile: "../etc/passwd"}, ErrInvalidTestFile},
		{"windows separator", TestConvoRequest{Convo: []string{"hi"}, TestFile: `a\b`}, ErrInvalidTestFile},
		{"dot dot", TestConvoRequest{Convo: []string{"hi"}, TestFile: ".."}, ErrInvalidTestFile},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDaySearchDate(t *testing.T) {
	now := time.Date(2024, time.December, 31, 22, 15, 0, 0, time.UTC)

	if got := DayToday.SearchDate(now); !got.Equal(now) {
		t.Errorf("today = %v, want %v", got, now)
	}
	want := time.Date(2025, time.January, 1, 22, 15, 0, 0, time.UTC)
	if got := DayTomorrow.SearchDate(now); !got.Equal(want) {
		t.Errorf("tomorrow = %v, want %v", got, want)
	}
}

func TestConvoEventValidate(t *testing.T) {
	valid := ConvoEvent{User: "+15550001", SessionNumber: 1, EventCode: "D"}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	e := valid
	e.User = ""
	if err := e.Validate(); !errors.Is(err, ErrEmptyUser) {
		t.Errorf("expected ErrEmptyUser, got %v", err)
	}
	e = valid
	e.EventCode = ""
	if err := e.Validate(); !errors.Is(err, ErrEmptyEventCode) {
		t.Errorf("expected ErrEmptyEventCode, got %v", err)
	}
	e = valid
	e.SessionNumber = 0
	if err := e.Validate(); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("expected ErrInvalidSession, got %v", err)
	}
}

func TestNewSummary(t *testing.T) {
	if s := NewSummary(nil); s != (Summary{}) {
		t.Errorf("empty summary = %+v", s)
	}
	s := NewSummary([]float64{3, 1, 2, 6})
	if s.Min != 1 || s.Max != 6 || s.Mean != 3 {
		t.Errorf("summary = %+v, want min 1 max 6 mean 3", s)
	}
}

func TestAPIResponseBuilders(t *testing.T) {
	ok := SuccessWithMessage("done", 42)
	if ok.Status != string(APIStatusOK) || ok.Message != "done" || ok.Result != 42 {
		t.Errorf("unexpected success response %+v", ok)
	}
	failed := Error("boom")
	if failed.Status != string(APIStatusError) || failed.Message != "boom" || failed.Result != nil {
		t.Errorf("unexpected error response %+v", failed)
	}
}
