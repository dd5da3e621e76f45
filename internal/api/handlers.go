package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/foodfinderyyc/smsbot/internal/convo"
	"github.com/foodfinderyyc/smsbot/internal/models"
	"github.com/foodfinderyyc/smsbot/internal/store"
)

// TestConvoResult is the result of a scripted test run.
type TestConvoResult struct {
	Outcome    convo.Outcome `json:"outcome"`
	File       string        `json:"file,omitempty"`
	Transcript []string      `json:"transcript"`
}

func methodNotAllowed(w http.ResponseWriter, allow string) {
	w.Header().Set("Allow", allow)
	writeJSONResponse(w, http.StatusMethodNotAllowed, models.Error("Method not allowed"))
}

// statsHandler serves the stats document itself rather than the response envelope.
func (s *Server) statsHandler(w http.ResponseWriter, r *http.Request) {
	slog.Debug("Server.statsHandler: processing stats request", "method", r.Method)
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	stats, err := store.ComputeStats(r.Context(), s.log, s.engine.Definition().StatsQuery(s.opts.TestUser))
	if err != nil {
		slog.Error("Server.statsHandler: failed to compute stats", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to compute stats"))
		return
	}
	writeJSONResponse(w, http.StatusOK, stats)
}

func (s *Server) testConvoHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.testConvoHandler: processing test run", "method", r.Method)
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	var req models.TestConvoRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		slog.Warn("Server.testConvoHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if err := req.Validate(); err != nil {
		slog.Warn("Server.testConvoHandler: validation failed", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	result, err := s.runTestConvo(r, req)
	if err != nil {
		slog.Error("Server.testConvoHandler: test run failed", "error", err, "test_file", req.TestFile)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Test run failed: "+err.Error()))
		return
	}
	slog.Info("Server.testConvoHandler: test run finished", "outcome", result.Outcome, "file", result.File)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Test run complete", result))
}

func (s *Server) runTestConvo(r *http.Request, req models.TestConvoRequest) (TestConvoResult, error) {
	var result TestConvoResult
	var out io.Writer
	if s.opts.TranscriptDir != "" {
		if err := os.MkdirAll(s.opts.TranscriptDir, 0755); err != nil {
			return result, err
		}
		result.File = filepath.Join(s.opts.TranscriptDir, req.TestFile)
		f, err := os.Create(result.File)
		if err != nil {
			return result, err
		}
		defer f.Close()
		out = f
	}

	var err error
	result.Outcome, result.Transcript, err = convo.RunScript(r.Context(), s.engine, s.resolver, s.opts.TestUser, req.Convo, out)
	return result, err
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	health := map[string]int{"activeConversations": 0}
	if s.active != nil {
		health["activeConversations"] = s.active.ActiveCount()
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", health))
}
