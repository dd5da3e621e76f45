// Package api provides the HTTP server for the Food Finder SMS bot.
//
// It exposes the Twilio inbound webhook, the read-only stats document, the scripted
// test-run trigger, a health check and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/foodfinderyyc/smsbot/internal/convo"
	"github.com/foodfinderyyc/smsbot/internal/metrics"
	"github.com/foodfinderyyc/smsbot/internal/store"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8090"
	// DefaultTestUser is the synthetic identifier scripted runs use.
	DefaultTestUser = "+10000000000"
	// shutdownTimeout bounds graceful shutdown.
	shutdownTimeout = 10 * time.Second
	// maxBodyBytes bounds JSON request bodies.
	maxBodyBytes = 1 << 20
)

// Opts holds configuration for the API server.
type Opts struct {
	Addr          string
	TranscriptDir string
	TestUser      string
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithTranscriptDir sets where scripted test runs write their transcripts.
func WithTranscriptDir(dir string) Option {
	return func(o *Opts) { o.TranscriptDir = dir }
}

// WithTestUser sets the identifier used by scripted runs and excluded from stats.
func WithTestUser(user string) Option {
	return func(o *Opts) { o.TestUser = user }
}

// ActiveCounter reports the number of live conversations.
type ActiveCounter interface {
	ActiveCount() int
}

// Server serves the bot's HTTP endpoints.
type Server struct {
	opts     Opts
	webhook  http.HandlerFunc
	log      store.EventLog
	engine   *convo.Engine
	resolver *convo.SessionResolver
	active   ActiveCounter
}

// NewServer creates a server. webhook handles inbound SMS; active may be nil.
func NewServer(webhook http.HandlerFunc, log store.EventLog, engine *convo.Engine, resolver *convo.SessionResolver, active ActiveCounter, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, TestUser: DefaultTestUser}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		opts:     cfg,
		webhook:  webhook,
		log:      log,
		engine:   engine,
		resolver: resolver,
		active:   active,
	}
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.webhook != nil {
		mux.HandleFunc("/twilio/sms", s.webhook)
	}
	mux.HandleFunc("/stats", s.statsHandler)
	mux.HandleFunc("/test_convo", s.testConvoHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: API listening", "addr", s.opts.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		slog.Error("Server.Run: listen failed", "error", err, "addr", s.opts.Addr)
		return err
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: shutdown failed", "error", err)
		return err
	}
	return nil
}
