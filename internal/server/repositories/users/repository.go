package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/server/models"
)

// Repository is the persistence interface for user accounts. Token hashes
// are passed in already hashed. Lookups return common.ErrorNotFound when no
// row matches.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByEmailForUpdate(ctx context.Context, email string) (*models.User, error)
	GetByResetTokenForUpdate(ctx context.Context, tokenHash string) (*models.User, error)

	GetLockState(ctx context.Context, id int64) (*models.LockState, error)
	IncrementFailedAttempts(ctx context.Context, id int64, maxAttempts int, lockUntil time.Time) (*models.LockState, error)
	ClearExpiredLock(ctx context.Context, id int64, now time.Time) (bool, error)
	ResetLockout(ctx context.Context, id int64) error
	RecordLogin(ctx context.Context, id int64, at time.Time) error
	RecordPasswordChange(ctx context.Context, id int64, at time.Time) error

	SetVerificationToken(ctx context.Context, id int64, tokenHash string, expiry time.Time) error
	ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*models.User, error)
	SetResetToken(ctx context.Context, id int64, tokenHash string, expiry time.Time) error
	UpdatePassword(ctx context.Context, id int64, passwordHash string) error

	Deactivate(ctx context.Context, id int64, reason string, at time.Time) error
}
