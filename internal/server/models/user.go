// Package models defines server-side data models persisted in the database.
package models

import "time"

// User is an account as seen by the security core. Token columns hold the
// sha256 hex of the raw token, never the token itself.
type User struct {
	ID           int64
	Email        string
	Name         string
	PasswordHash string
	IsAdmin      bool

	FailedLoginAttempts int
	AccountLockedUntil  *time.Time

	EmailVerified           bool
	EmailVerificationToken  *string
	EmailVerificationExpiry *time.Time

	PasswordResetToken  *string
	PasswordResetExpiry *time.Time

	LastLoginAt        *time.Time
	PasswordChangedAt  *time.Time
	IsActive           bool
	DeactivatedAt      *time.Time
	DeactivationReason *string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// LockState is the lockout slice of a user row.
type LockState struct {
	FailedAttempts int
	LockedUntil    *time.Time
}

// IsLocked reports whether the lock timer is still running at now.
func (l LockState) IsLocked(now time.Time) bool {
	return l.LockedUntil != nil && now.Before(*l.LockedUntil)
}

// LockExpired reports whether a lock was set and has since run out.
func (l LockState) LockExpired(now time.Time) bool {
	return l.LockedUntil != nil && !now.Before(*l.LockedUntil)
}
