package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/dbx"
	"github.com/dmitrijs2005/folioguard/internal/logging"
	"github.com/dmitrijs2005/folioguard/internal/server/config"
	"github.com/dmitrijs2005/folioguard/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/folioguard/internal/server/security"
)

// LockStatus is the lockout view of one account. Its zero value with full
// attempts is what CheckAccountLockStatus returns when the store fails.
type LockStatus struct {
	IsLocked          bool
	AttemptsRemaining int
	LockoutExpiry     *time.Time
}

// LockoutService tracks failed logins per account and enforces a timed
// lock. It fails open: a storage error never locks anybody out.
type LockoutService struct {
	db              *sql.DB
	repomanager     repomanager.RepositoryManager
	events          EventLogger
	log             logging.Logger
	maxAttempts     int
	lockoutDuration time.Duration
	now             func() time.Time
}

func NewLockoutService(db *sql.DB, m repomanager.RepositoryManager, events EventLogger, log logging.Logger, cfg *config.Config) *LockoutService {
	return &LockoutService{
		db:              db,
		repomanager:     m,
		events:          events,
		log:             log.With("component", "lockout"),
		maxAttempts:     cfg.MaxFailedAttempts,
		lockoutDuration: cfg.LockoutDuration,
		now:             time.Now,
	}
}

func (s *LockoutService) unlocked(failed int) LockStatus {
	remaining := s.maxAttempts - failed
	if remaining < 0 {
		remaining = 0
	}
	return LockStatus{AttemptsRemaining: remaining}
}

// CheckAccountLockStatus reports whether userID is locked. An expired lock
// is cleared on the spot.
func (s *LockoutService) CheckAccountLockStatus(ctx context.Context, userID int64) LockStatus {
	repo := s.repomanager.Users(s.db)

	st, err := repo.GetLockState(ctx, userID)
	if err != nil {
		s.log.Error(ctx, "lock status unavailable, allowing attempt", "user_id", userID, "error", err)
		return s.unlocked(0)
	}

	now := s.now()
	if st.IsLocked(now) {
		return LockStatus{IsLocked: true, LockoutExpiry: st.LockedUntil}
	}
	if st.LockExpired(now) {
		if _, err := repo.ClearExpiredLock(ctx, userID, now); err != nil {
			s.log.Error(ctx, "failed to clear expired lock", "user_id", userID, "error", err)
		}
		return s.unlocked(0)
	}
	return s.unlocked(st.FailedAttempts)
}

// RecordFailedLoginAttempt counts a verified wrong password and locks the
// account once the counter reaches the maximum.
func (s *LockoutService) RecordFailedLoginAttempt(ctx context.Context, userID int64, email string) (LockStatus, error) {
	now := s.now()
	lockUntil := now.Add(s.lockoutDuration)

	st, err := s.repomanager.Users(s.db).IncrementFailedAttempts(ctx, userID, s.maxAttempts, lockUntil)
	if err != nil {
		s.log.Error(ctx, "failed to record failed login", "user_id", userID, "error", err)
		return s.unlocked(0), err
	}

	if st.FailedAttempts >= s.maxAttempts && st.IsLocked(now) {
		if st.FailedAttempts == s.maxAttempts {
			s.events.Log(ctx, security.Event{
				Type:    security.EventAccountLocked,
				UserID:  userID,
				Email:   email,
				Details: map[string]any{"failed_attempts": st.FailedAttempts, "locked_until": st.LockedUntil.UTC()},
			})
		}
		return LockStatus{IsLocked: true, LockoutExpiry: st.LockedUntil}, nil
	}
	return s.unlocked(st.FailedAttempts), nil
}

// ResetFailedAttempts zeroes the counter and clears any lock.
func (s *LockoutService) ResetFailedAttempts(ctx context.Context, userID int64) error {
	return s.repomanager.Users(s.db).ResetLockout(ctx, userID)
}

// RecordSuccessfulLogin clears lockout state and stamps last_login_at.
func (s *LockoutService) RecordSuccessfulLogin(ctx context.Context, userID int64) error {
	return s.repomanager.Users(s.db).RecordLogin(ctx, userID, s.now())
}

// RecordPasswordChange stamps password_changed_at and clears lockout state.
func (s *LockoutService) RecordPasswordChange(ctx context.Context, userID int64) error {
	return s.recordPasswordChange(ctx, s.db, userID)
}

func (s *LockoutService) recordPasswordChange(ctx context.Context, db dbx.DBTX, userID int64) error {
	return s.repomanager.Users(db).RecordPasswordChange(ctx, userID, s.now())
}

// UnlockAccount is the admin override of a running lock.
func (s *LockoutService) UnlockAccount(ctx context.Context, userID, actorID int64) error {
	if err := s.ResetFailedAttempts(ctx, userID); err != nil {
		return err
	}
	s.events.Log(ctx, security.Event{
		Type:    security.EventAccountUnlocked,
		UserID:  userID,
		Details: map[string]any{"actor_id": actorID},
	})
	return nil
}
