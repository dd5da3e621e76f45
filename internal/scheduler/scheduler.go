// Package scheduler runs periodic background jobs for the bot.
//
// Jobs are scheduled with 5-field cron expressions. The main job recomputes the
// conversation statistics and publishes them as Prometheus gauges.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/foodfinderyyc/smsbot/internal/metrics"
	"github.com/foodfinderyyc/smsbot/internal/models"
	"github.com/foodfinderyyc/smsbot/internal/store"
	"github.com/robfig/cron/v3"
)

// DefaultStatsCron refreshes the stats gauges every fifteen minutes.
const DefaultStatsCron = "*/15 * * * *"

// statsTimeout bounds one stats refresh.
const statsTimeout = 2 * time.Minute

// Scheduler provides cron-based job scheduling.
type Scheduler struct {
	cron *cron.Cron
	// wg tracks jobs started outside the cron loop.
	wg sync.WaitGroup
}

// NewScheduler creates and starts a cron scheduler.
func NewScheduler() *Scheduler {
	// Use standard 5-field cron parser (min, hour, dom, month, dow) and enable recovery
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	logger := cron.PrintfLogger(slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn))
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)))
	c.Start()
	return &Scheduler{cron: c}
}

// AddJob schedules a task using the provided cron expression.
// It returns an error if the expression is invalid.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// ScheduleStatsRefresh refreshes the stats gauges on expr and once immediately.
func (s *Scheduler) ScheduleStatsRefresh(ctx context.Context, expr string, log store.EventLog, q store.StatsQuery) error {
	job := func() {
		jobCtx, cancel := context.WithTimeout(ctx, statsTimeout)
		defer cancel()
		if _, err := RefreshStats(jobCtx, log, q); err != nil {
			slog.Error("Scheduler stats refresh failed", "error", err)
		}
	}
	if err := s.AddJob(expr, job); err != nil {
		return err
	}
	s.wg.Go(job)
	return nil
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

// RefreshStats computes the stats aggregates and publishes them as gauges.
func RefreshStats(ctx context.Context, log store.EventLog, q store.StatsQuery) (models.Stats, error) {
	start := time.Now()
	stats, err := store.ComputeStats(ctx, log, q)
	if err != nil {
		return models.Stats{}, err
	}
	metrics.SetStats(stats)
	slog.Debug("Scheduler stats refreshed", "users", stats.UserCount, "duration", time.Since(start))
	return stats, nil
}
