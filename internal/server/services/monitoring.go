package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/logging"
	"github.com/dmitrijs2005/folioguard/internal/server/config"
	"github.com/dmitrijs2005/folioguard/internal/server/models"
	"github.com/dmitrijs2005/folioguard/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/folioguard/internal/server/security"
)

// HealthObserver receives every health check result.
type HealthObserver interface {
	ObserveHealth(stats models.SessionStats, healthy bool)
}

// MaintenanceObserver receives every maintenance run result.
type MaintenanceObserver interface {
	ObserveMaintenance(deleted int64, err error)
}

// EventArchiver ships a window of security events elsewhere and returns
// where they went.
type EventArchiver interface {
	Export(ctx context.Context, from, to time.Time, events []models.SecurityEvent) (string, error)
}

// SuspiciousActivity is one account whose active sessions look abnormal.
type SuspiciousActivity struct {
	UserID             int64
	ActiveSessions     int
	DistinctIPs        int
	DistinctUserAgents int
	Reasons            []string
}

type HealthReport struct {
	Healthy   bool
	Alerts    []string
	Stats     models.SessionStats
	CheckedAt time.Time
}

// MaintenanceReport collects what one maintenance run did. Errors holds
// the failures of individual steps; the other steps still ran.
type MaintenanceReport struct {
	StartedAt       time.Time
	DeletedSessions int64
	Suspicious      []SuspiciousActivity
	ArchivedKey     string
	Errors          []error
}

// MonitoringService computes session statistics, flags anomalous accounts
// and runs periodic maintenance. Findings are logged, never remediated.
type MonitoringService struct {
	db           *sql.DB
	repomanager  repomanager.RepositoryManager
	events       EventLogger
	log          logging.Logger
	sessions     *SessionService
	archiver     EventArchiver
	health       []HealthObserver
	maintenance  []MaintenanceObserver
	maxSessions  int
	maxIPs       int
	maxAgents    int
	exportWindow time.Duration
	now          func() time.Time
}

func NewMonitoringService(db *sql.DB, m repomanager.RepositoryManager, events EventLogger, log logging.Logger,
	sessions *SessionService, cfg *config.Config,
) *MonitoringService {
	return &MonitoringService{
		db:           db,
		repomanager:  m,
		events:       events,
		log:          log.With("component", "monitoring"),
		sessions:     sessions,
		maxSessions:  cfg.MaxConcurrentSessions,
		maxIPs:       cfg.MaxDistinctIPs,
		maxAgents:    cfg.MaxDistinctUserAgents,
		exportWindow: time.Hour,
		now:          time.Now,
	}
}

// WithArchiver enables export of the previous window of security events on
// every maintenance run.
func (s *MonitoringService) WithArchiver(a EventArchiver) *MonitoringService {
	s.archiver = a
	return s
}

func (s *MonitoringService) AddHealthObserver(o HealthObserver) {
	s.health = append(s.health, o)
}

func (s *MonitoringService) AddMaintenanceObserver(o MaintenanceObserver) {
	s.maintenance = append(s.maintenance, o)
}

// SessionStats aggregates the active sessions.
func (s *MonitoringService) SessionStats(ctx context.Context) (*models.SessionStats, error) {
	st, err := s.repomanager.Sessions(s.db).Stats(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("session stats: %w", err)
	}
	return st, nil
}

// DetectSuspiciousActivity flags accounts with too many concurrent
// sessions, IPs or user agents and logs each finding.
func (s *MonitoringService) DetectSuspiciousActivity(ctx context.Context) ([]SuspiciousActivity, error) {
	fps, err := s.repomanager.Sessions(s.db).Footprints(ctx, s.now(), s.maxSessions, s.maxIPs, s.maxAgents)
	if err != nil {
		return nil, fmt.Errorf("session footprints: %w", err)
	}

	out := make([]SuspiciousActivity, 0, len(fps))
	for _, fp := range fps {
		a := SuspiciousActivity{
			UserID:             fp.UserID,
			ActiveSessions:     fp.ActiveSessions,
			DistinctIPs:        fp.DistinctIPs,
			DistinctUserAgents: fp.DistinctUserAgents,
		}
		if fp.ActiveSessions > s.maxSessions {
			a.Reasons = append(a.Reasons, "too_many_sessions")
		}
		if fp.DistinctIPs > s.maxIPs {
			a.Reasons = append(a.Reasons, "too_many_ips")
		}
		if fp.DistinctUserAgents > s.maxAgents {
			a.Reasons = append(a.Reasons, "too_many_user_agents")
		}
		if len(a.Reasons) == 0 {
			continue
		}
		out = append(out, a)

		s.events.Log(ctx, security.Event{
			Type:   security.EventSuspiciousSessionActivity,
			UserID: a.UserID,
			Details: map[string]any{
				"reasons":              a.Reasons,
				"active_sessions":      a.ActiveSessions,
				"distinct_ips":         a.DistinctIPs,
				"distinct_user_agents": a.DistinctUserAgents,
			},
		})
	}
	return out, nil
}

// HealthCheck folds statistics and anomaly detection into a verdict. It is
// healthy when there are no alerts.
func (s *MonitoringService) HealthCheck(ctx context.Context) HealthReport {
	rep := HealthReport{CheckedAt: s.now()}

	if st, err := s.SessionStats(ctx); err != nil {
		s.log.Error(ctx, "health check: stats unavailable", "error", err)
		rep.Alerts = append(rep.Alerts, "session statistics unavailable")
	} else {
		rep.Stats = *st
	}

	if found, err := s.DetectSuspiciousActivity(ctx); err != nil {
		s.log.Error(ctx, "health check: detection failed", "error", err)
		rep.Alerts = append(rep.Alerts, "suspicious activity detection failed")
	} else if len(found) > 0 {
		rep.Alerts = append(rep.Alerts, fmt.Sprintf("%d account(s) with suspicious session activity", len(found)))
	}

	rep.Healthy = len(rep.Alerts) == 0

	s.events.Log(ctx, security.Event{
		Type: security.EventSessionHealthCheck,
		Details: map[string]any{
			"healthy":         rep.Healthy,
			"alerts":          rep.Alerts,
			"active_sessions": rep.Stats.TotalActiveSessions,
			"active_users":    rep.Stats.ActiveUsers,
		},
	})
	for _, o := range s.health {
		o.ObserveHealth(rep.Stats, rep.Healthy)
	}
	return rep
}

// exportRange is the last complete window before now.
func (s *MonitoringService) exportRange(now time.Time) (time.Time, time.Time) {
	to := now.UTC().Truncate(s.exportWindow)
	return to.Add(-s.exportWindow), to
}

// RunMaintenance deletes expired sessions, runs anomaly detection and, if
// configured, archives the previous window of security events. Every step
// runs; their errors are joined.
func (s *MonitoringService) RunMaintenance(ctx context.Context) (*MaintenanceReport, error) {
	rep := &MaintenanceReport{StartedAt: s.now()}

	n, err := s.sessions.CleanupExpiredSessions(ctx)
	if err != nil {
		rep.Errors = append(rep.Errors, err)
	}
	rep.DeletedSessions = n

	found, err := s.DetectSuspiciousActivity(ctx)
	if err != nil {
		rep.Errors = append(rep.Errors, err)
	}
	rep.Suspicious = found

	if s.archiver != nil {
		key, err := s.archive(ctx, rep.StartedAt)
		if err != nil {
			rep.Errors = append(rep.Errors, err)
		}
		rep.ArchivedKey = key
	}

	joined := errors.Join(rep.Errors...)
	if joined != nil {
		s.log.Error(ctx, "maintenance finished with errors", "error", joined)
	}

	s.events.Log(ctx, security.Event{
		Type: security.EventMaintenanceRun,
		Details: map[string]any{
			"deleted_sessions": rep.DeletedSessions,
			"suspicious":       len(rep.Suspicious),
			"archived":         rep.ArchivedKey,
			"errors":           len(rep.Errors),
		},
	})
	for _, o := range s.maintenance {
		o.ObserveMaintenance(rep.DeletedSessions, joined)
	}
	return rep, joined
}

func (s *MonitoringService) archive(ctx context.Context, now time.Time) (string, error) {
	from, to := s.exportRange(now)
	evs, err := s.repomanager.SecurityEvents(s.db).ListBetween(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("list security events: %w", err)
	}
	key, err := s.archiver.Export(ctx, from, to, evs)
	if err != nil {
		return "", fmt.Errorf("archive security events: %w", err)
	}
	return key, nil
}
