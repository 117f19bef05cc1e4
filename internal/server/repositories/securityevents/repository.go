package securityevents

import (
	"context"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/server/models"
)

// Repository is the append-only store of security events. There is
// deliberately no update or delete.
type Repository interface {
	Insert(ctx context.Context, e *models.SecurityEvent) error
	ListBetween(ctx context.Context, from, to time.Time) ([]models.SecurityEvent, error)
	ListRecent(ctx context.Context, eventType string, limit int) ([]models.SecurityEvent, error)
}
