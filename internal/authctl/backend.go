package authctl

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/folioguard/internal/common"
	"github.com/dmitrijs2005/folioguard/internal/logging"
	"github.com/dmitrijs2005/folioguard/internal/server"
	"github.com/dmitrijs2005/folioguard/internal/server/config"
	"github.com/dmitrijs2005/folioguard/internal/server/models"
	"github.com/dmitrijs2005/folioguard/internal/server/services"
)

// Backend is what the commands operate on.
type Backend interface {
	Migrate(ctx context.Context) error
	RunMaintenance(ctx context.Context) (*services.MaintenanceReport, error)
	SessionStats(ctx context.Context) (*models.SessionStats, error)
	HealthCheck(ctx context.Context) services.HealthReport
	RevokeSessions(ctx context.Context, userID int64) (int64, error)
	Unlock(ctx context.Context, userID int64) error
	Deactivate(ctx context.Context, userID int64, reason string) error
	SetPassword(ctx context.Context, email, password string) error
	RecentEvents(ctx context.Context, eventType string, limit int) ([]models.SecurityEvent, error)
	Close() error
}

// Opener builds a Backend from the loaded configuration.
type Opener func(ctx context.Context, cfg *config.Config, log logging.Logger) (Backend, error)

// cliMeta tags events raised from the command line.
var cliMeta = services.RequestMeta{IPAddress: "127.0.0.1", UserAgent: "authctl"}

type coreBackend struct {
	core *server.Core
}

// OpenCore is the production Opener.
func OpenCore(ctx context.Context, cfg *config.Config, log logging.Logger) (Backend, error) {
	c, err := server.NewCore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	return &coreBackend{core: c}, nil
}

func (b *coreBackend) Migrate(ctx context.Context) error { return b.core.Migrate(ctx) }

func (b *coreBackend) RunMaintenance(ctx context.Context) (*services.MaintenanceReport, error) {
	return b.core.Monitoring.RunMaintenance(ctx)
}

func (b *coreBackend) SessionStats(ctx context.Context) (*models.SessionStats, error) {
	return b.core.Monitoring.SessionStats(ctx)
}

func (b *coreBackend) HealthCheck(ctx context.Context) services.HealthReport {
	return b.core.Monitoring.HealthCheck(ctx)
}

func (b *coreBackend) RevokeSessions(ctx context.Context, userID int64) (int64, error) {
	return b.core.Sessions.RevokeAllSessionsForUser(ctx, userID, "", "admin_forced_logout")
}

// Unlock refuses unknown ids; the lockout reset itself is a no-op for them.
func (b *coreBackend) Unlock(ctx context.Context, userID int64) error {
	if _, err := b.core.Repos.Users(b.core.DB).GetByID(ctx, userID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return err
	}
	return b.core.Lockout.UnlockAccount(ctx, userID, 0)
}

func (b *coreBackend) Deactivate(ctx context.Context, userID int64, reason string) error {
	return b.core.Auth.Deactivate(ctx, userID, reason, cliMeta)
}

func (b *coreBackend) SetPassword(ctx context.Context, email, password string) error {
	return b.core.Auth.SetPassword(ctx, email, password)
}

func (b *coreBackend) RecentEvents(ctx context.Context, eventType string, limit int) ([]models.SecurityEvent, error) {
	return b.core.Repos.SecurityEvents(b.core.DB).ListRecent(ctx, eventType, limit)
}

func (b *coreBackend) Close() error { return b.core.Close() }
