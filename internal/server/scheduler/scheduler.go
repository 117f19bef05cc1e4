// Package scheduler runs session maintenance and health checks on a cron
// schedule.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/logging"
	"github.com/dmitrijs2005/folioguard/internal/server/services"
	"github.com/robfig/cron/v3"
)

// Maintainer is the part of the monitoring service the scheduler drives.
type Maintainer interface {
	RunMaintenance(ctx context.Context) (*services.MaintenanceReport, error)
	HealthCheck(ctx context.Context) services.HealthReport
}

type Scheduler struct {
	maintainer Maintainer
	schedule   string
	cron       *cron.Cron
	logger     logging.Logger

	mu      sync.Mutex
	running bool
	entryID cron.EntryID
}

// New builds a scheduler for a standard five-field cron expression or
// a descriptor such as "@every 15m". Overlapping runs are skipped.
func New(m Maintainer, schedule string, l logging.Logger) *Scheduler {
	log := l.With("module", "scheduler")
	cl := cronLogger{log: log}
	return &Scheduler{
		maintainer: m,
		schedule:   schedule,
		cron:       cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		logger:     log,
	}
}

// Start registers the maintenance job and starts the cron loop. ctx is the
// context every run executes under.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	id, err := s.cron.AddFunc(s.schedule, func() { s.tick(ctx) })
	if err != nil {
		s.logger.Error(ctx, "invalid maintenance schedule", "schedule", s.schedule, "error", err)
		return err
	}
	s.entryID = id
	s.cron.Start()
	s.running = true

	s.logger.Info(ctx, "Scheduler started", "schedule", s.schedule, "next_run", s.cron.Entry(id).Schedule.Next(time.Now()))
	return nil
}

// Stop stops the cron loop and waits for a running job until ctx expires.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.cron.Remove(s.entryID)
	s.mu.Unlock()

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info(ctx, "Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn(ctx, "Scheduler stop timed out with a job still running")
		return ctx.Err()
	}
}

// Run starts the scheduler and stops it once ctx is cancelled, giving a
// running job up to grace to finish.
func (s *Scheduler) Run(ctx context.Context, grace time.Duration) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return s.Stop(stopCtx)
}

func (s *Scheduler) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	rep, err := s.maintainer.RunMaintenance(ctx)
	if err != nil {
		s.logger.Warn(ctx, "scheduled maintenance had failures", "error", err)
	} else if rep != nil {
		s.logger.Info(ctx, "scheduled maintenance done",
			"deleted_sessions", rep.DeletedSessions,
			"suspicious", len(rep.Suspicious),
			"archived", rep.ArchivedKey,
		)
	}

	health := s.maintainer.HealthCheck(ctx)
	if !health.Healthy {
		s.logger.Warn(ctx, "session health check raised alerts", "alerts", health.Alerts)
	}
}

// cronLogger routes cron's own logging into logging.Logger.
type cronLogger struct {
	log logging.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.log.Debug(context.Background(), msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.log.Error(context.Background(), msg, append(keysAndValues, "error", err)...)
}
