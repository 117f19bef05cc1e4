package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/common"
	"github.com/dmitrijs2005/folioguard/internal/dbx"
	"github.com/dmitrijs2005/folioguard/internal/server/models"
)

const userColumns = `id, email, name, password_hash, is_admin,
		 failed_login_attempts, account_locked_until,
		 email_verified, email_verification_token, email_verification_expiry,
		 password_reset_token, password_reset_expiry,
		 last_login_at, password_changed_at, is_active, deactivated_at, deactivation_reason,
		 created_at, updated_at`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.IsAdmin,
		&u.FailedLoginAttempts, &u.AccountLockedUntil,
		&u.EmailVerified, &u.EmailVerificationToken, &u.EmailVerificationExpiry,
		&u.PasswordResetToken, &u.PasswordResetExpiry,
		&u.LastLoginAt, &u.PasswordChangedAt, &u.IsActive, &u.DeactivatedAt, &u.DeactivationReason,
		&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query :=
		`INSERT INTO users (email, name, password_hash, is_admin)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, is_active, created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query, user.Email, user.Name, user.PasswordHash, user.IsAdmin).
		Scan(&user.ID, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1)`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// GetByEmailForUpdate locks the row until the surrounding transaction ends.
func (r *PostgresRepository) GetByEmailForUpdate(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE lower(email) = lower($1) FOR UPDATE`
	return scanUser(r.db.QueryRowContext(ctx, query, email))
}

// GetByResetTokenForUpdate locks the row holding the given reset token hash.
func (r *PostgresRepository) GetByResetTokenForUpdate(ctx context.Context, tokenHash string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE password_reset_token = $1 FOR UPDATE`
	return scanUser(r.db.QueryRowContext(ctx, query, tokenHash))
}

func (r *PostgresRepository) GetLockState(ctx context.Context, id int64) (*models.LockState, error) {
	query :=
		`SELECT failed_login_attempts, account_locked_until FROM users
		 WHERE id = $1
		 `

	st := &models.LockState{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&st.FailedAttempts, &st.LockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return st, nil
}

// IncrementFailedAttempts bumps the counter in one statement and sets the
// lock when the new value reaches maxAttempts.
func (r *PostgresRepository) IncrementFailedAttempts(ctx context.Context, id int64, maxAttempts int, lockUntil time.Time) (*models.LockState, error) {
	query :=
		`UPDATE users SET
		   failed_login_attempts = failed_login_attempts + 1,
		   account_locked_until = CASE WHEN failed_login_attempts + 1 >= $2 THEN $3 ELSE account_locked_until END,
		   updated_at = now()
		 WHERE id = $1
		 RETURNING failed_login_attempts, account_locked_until
		 `

	st := &models.LockState{}
	err := r.db.QueryRowContext(ctx, query, id, maxAttempts, lockUntil).Scan(&st.FailedAttempts, &st.LockedUntil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return st, nil
}

// ClearExpiredLock resets the lockout only if the lock has already run out,
// so a concurrent fresh lock is never wiped.
func (r *PostgresRepository) ClearExpiredLock(ctx context.Context, id int64, now time.Time) (bool, error) {
	query :=
		`UPDATE users SET failed_login_attempts = 0, account_locked_until = NULL, updated_at = now()
		 WHERE id = $1 AND account_locked_until IS NOT NULL AND account_locked_until <= $2
		 `

	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) ResetLockout(ctx context.Context, id int64) error {
	query :=
		`UPDATE users SET failed_login_attempts = 0, account_locked_until = NULL, updated_at = now()
		 WHERE id = $1
		 `
	return r.exec(ctx, query, id)
}

func (r *PostgresRepository) RecordLogin(ctx context.Context, id int64, at time.Time) error {
	query :=
		`UPDATE users SET failed_login_attempts = 0, account_locked_until = NULL, last_login_at = $2, updated_at = now()
		 WHERE id = $1
		 `
	return r.exec(ctx, query, id, at)
}

func (r *PostgresRepository) RecordPasswordChange(ctx context.Context, id int64, at time.Time) error {
	query :=
		`UPDATE users SET failed_login_attempts = 0, account_locked_until = NULL, password_changed_at = $2, updated_at = now()
		 WHERE id = $1
		 `
	return r.exec(ctx, query, id, at)
}

// SetVerificationToken overwrites any outstanding verification token.
func (r *PostgresRepository) SetVerificationToken(ctx context.Context, id int64, tokenHash string, expiry time.Time) error {
	query :=
		`UPDATE users SET email_verification_token = $2, email_verification_expiry = $3, updated_at = now()
		 WHERE id = $1
		 `
	return r.exec(ctx, query, id, tokenHash, expiry)
}

// ConsumeVerificationToken marks the owner verified and clears the token in
// a single statement. Unknown, expired and already used tokens all yield
// common.ErrorNotFound.
func (r *PostgresRepository) ConsumeVerificationToken(ctx context.Context, tokenHash string, now time.Time) (*models.User, error) {
	query :=
		`UPDATE users SET email_verified = TRUE, email_verification_token = NULL,
		   email_verification_expiry = NULL, updated_at = now()
		 WHERE email_verification_token = $1 AND email_verification_expiry > $2
		 RETURNING id, email
		 `

	u := &models.User{EmailVerified: true}
	err := r.db.QueryRowContext(ctx, query, tokenHash, now).Scan(&u.ID, &u.Email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, nil
}

// SetResetToken overwrites any outstanding password reset token.
func (r *PostgresRepository) SetResetToken(ctx context.Context, id int64, tokenHash string, expiry time.Time) error {
	query :=
		`UPDATE users SET password_reset_token = $2, password_reset_expiry = $3, updated_at = now()
		 WHERE id = $1
		 `
	return r.exec(ctx, query, id, tokenHash, expiry)
}

// UpdatePassword stores a new hash and consumes any outstanding reset token.
// Callers stamp the change with RecordPasswordChange in the same transaction.
func (r *PostgresRepository) UpdatePassword(ctx context.Context, id int64, passwordHash string) error {
	query :=
		`UPDATE users SET password_hash = $2, password_reset_token = NULL, password_reset_expiry = NULL, updated_at = now()
		 WHERE id = $1
		 `
	return r.exec(ctx, query, id, passwordHash)
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id int64, reason string, at time.Time) error {
	query :=
		`UPDATE users SET is_active = FALSE, deactivated_at = $2, deactivation_reason = $3, updated_at = now()
		 WHERE id = $1
		 `
	return r.exec(ctx, query, id, at, reason)
}

// exec runs an update addressed to one user and maps "no such row" to
// common.ErrorNotFound.
func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
