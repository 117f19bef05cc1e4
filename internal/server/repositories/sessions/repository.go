package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/server/models"
)

// Repository persists sessions keyed by the hash of the raw session id.
// Every statement touching revoked_at only acts on rows where it is NULL.
type Repository interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	UpdateExpiry(ctx context.Context, id string, expiresAt time.Time) (bool, error)
	Revoke(ctx context.Context, id string, at time.Time) (bool, error)
	RevokeForUser(ctx context.Context, userID int64, id string, at time.Time) (bool, error)
	RevokeAllForUser(ctx context.Context, userID int64, exceptID string, at time.Time) (int64, error)
	ListActive(ctx context.Context, userID int64, now time.Time) ([]models.Session, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)

	Stats(ctx context.Context, now time.Time) (*models.SessionStats, error)
	Footprints(ctx context.Context, now time.Time, maxSessions, maxIPs, maxUserAgents int) ([]models.SessionFootprint, error)
}
