package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/common"
	"github.com/dmitrijs2005/folioguard/internal/dbx"
	"github.com/dmitrijs2005/folioguard/internal/logging"
	"github.com/dmitrijs2005/folioguard/internal/server/config"
	"github.com/dmitrijs2005/folioguard/internal/server/models"
	"github.com/dmitrijs2005/folioguard/internal/server/ratelimit"
	"github.com/dmitrijs2005/folioguard/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/folioguard/internal/server/security"
	"github.com/dmitrijs2005/folioguard/internal/server/tokens"
)

// AuthResult is what a successful register or login hands to the web layer.
type AuthResult struct {
	User    *models.User
	Session *CreatedSession
}

// AuthService composes lockout, password checks and sessions into the
// account flows. Every authentication failure surfaces as
// common.ErrInvalidCredentials whatever check failed.
type AuthService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	events      EventLogger
	log         logging.Logger
	limiter     ratelimit.Limiter
	lockout     *LockoutService
	sessions    *SessionService
	tokenflows  *TokenFlowService
	bcryptCost  int
	now         func() time.Time
}

func NewAuthService(db *sql.DB, m repomanager.RepositoryManager, events EventLogger, log logging.Logger,
	limiter ratelimit.Limiter, lockout *LockoutService, sessions *SessionService, tokenflows *TokenFlowService, cfg *config.Config,
) *AuthService {
	return &AuthService{
		db:          db,
		repomanager: m,
		events:      events,
		log:         log.With("component", "auth"),
		limiter:     limiter,
		lockout:     lockout,
		sessions:    sessions,
		tokenflows:  tokenflows,
		bcryptCost:  cfg.BcryptCost,
		now:         time.Now,
	}
}

// allow consults a per-IP bucket. Limiter failures let the request through.
func (s *AuthService) allow(ctx context.Context, bucket ratelimit.Bucket, meta RequestMeta) bool {
	if meta.IPAddress == "" {
		return true
	}
	ok, err := s.limiter.Allow(ctx, bucket, meta.IPAddress)
	if err != nil {
		s.log.Warn(ctx, "rate limiter unavailable, allowing request", "bucket", bucket, "error", err)
		return true
	}
	if !ok {
		s.events.Log(ctx, meta.event(security.EventRateLimitExceeded, 0, "", map[string]any{"bucket": string(bucket)}))
	}
	return ok
}

// Register creates an account, sends the verification email and opens a
// session.
func (s *AuthService) Register(ctx context.Context, email, name, password string, meta RequestMeta) (*AuthResult, error) {
	if !s.allow(ctx, ratelimit.BucketRegister, meta) {
		return nil, common.ErrRateLimited
	}

	email, err := common.NormalizeEmail(email)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid email address", common.ErrorValidation)
	}
	if err := tokens.ValidatePassword(password); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrorValidation, err)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = email[:strings.IndexByte(email, '@')]
	}

	hash, err := tokens.HashPassword(password, s.bcryptCost)
	if err != nil {
		return nil, common.ErrorInternal
	}

	u, err := s.repomanager.Users(s.db).Create(ctx, &models.User{
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		IsActive:     true,
	})
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		s.log.Error(ctx, "failed to create user", "error", err)
		return nil, common.ErrorInternal
	}
	s.events.Log(ctx, meta.event(security.EventRegister, u.ID, u.Email, nil))

	if err := s.tokenflows.SendVerificationEmail(ctx, u.ID); err != nil {
		s.log.Warn(ctx, "verification email not sent", "user_id", u.ID, "error", err)
	}

	sess, err := s.sessions.CreateSession(ctx, u.ID, CreateSessionOptions{IPAddress: meta.IPAddress, UserAgent: meta.UserAgent})
	if err != nil {
		return nil, err
	}
	return &AuthResult{User: u, Session: sess}, nil
}

func (s *AuthService) loginFailed(ctx context.Context, meta RequestMeta, userID int64, email, reason string, extra map[string]any) error {
	details := map[string]any{"reason": reason}
	for k, v := range extra {
		details[k] = v
	}
	s.events.Log(ctx, meta.event(security.EventLoginFail, userID, email, details))
	return common.ErrInvalidCredentials
}

// Login authenticates email and password and opens a session. The lock is
// checked before the password so a locked account rejects even the right
// password; only a verified wrong password counts towards the lock.
func (s *AuthService) Login(ctx context.Context, email, password string, rememberMe bool, meta RequestMeta) (*AuthResult, error) {
	if !s.allow(ctx, ratelimit.BucketLogin, meta) {
		return nil, common.ErrRateLimited
	}

	email, err := common.NormalizeEmail(email)
	if err != nil {
		tokens.DummyCheck(password)
		return nil, s.loginFailed(ctx, meta, 0, "", "malformed_email", nil)
	}

	u, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			tokens.DummyCheck(password)
			return nil, s.loginFailed(ctx, meta, 0, email, "unknown_account", nil)
		}
		s.log.Error(ctx, "failed to load user", "error", err)
		return nil, common.ErrorInternal
	}
	if !u.IsActive {
		tokens.DummyCheck(password)
		return nil, s.loginFailed(ctx, meta, u.ID, email, "inactive", nil)
	}

	status := s.lockout.CheckAccountLockStatus(ctx, u.ID)
	if status.IsLocked {
		tokens.DummyCheck(password)
		return nil, s.loginFailed(ctx, meta, u.ID, email, "locked", nil)
	}

	if !tokens.CheckPassword(u.PasswordHash, password) {
		st, err := s.lockout.RecordFailedLoginAttempt(ctx, u.ID, email)
		if err != nil {
			return nil, s.loginFailed(ctx, meta, u.ID, email, "bad_password", nil)
		}
		return nil, s.loginFailed(ctx, meta, u.ID, email, "bad_password",
			map[string]any{"attempts_remaining": st.AttemptsRemaining, "locked": st.IsLocked})
	}

	if err := s.lockout.RecordSuccessfulLogin(ctx, u.ID); err != nil {
		s.log.Error(ctx, "failed to record successful login", "user_id", u.ID, "error", err)
	}

	sess, err := s.sessions.CreateSession(ctx, u.ID, CreateSessionOptions{
		RememberMe: rememberMe,
		IPAddress:  meta.IPAddress,
		UserAgent:  meta.UserAgent,
	})
	if err != nil {
		return nil, err
	}

	s.events.Log(ctx, meta.event(security.EventLoginSuccess, u.ID, email, map[string]any{"remember_me": rememberMe}))
	return &AuthResult{User: u, Session: sess}, nil
}

// Logout revokes the session behind rawSessionID.
func (s *AuthService) Logout(ctx context.Context, userID int64, rawSessionID string, meta RequestMeta) error {
	if err := s.sessions.RevokeSession(ctx, rawSessionID); err != nil {
		return err
	}
	s.events.Log(ctx, meta.event(security.EventLogout, userID, "", nil))
	return nil
}

// GetUser loads an active account.
func (s *AuthService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	u, err := s.repomanager.Users(s.db).GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, common.ErrorInternal
	}
	if !u.IsActive {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

// ChangePassword replaces the password of a logged-in user after checking
// the current one and revokes every other session of the account. The
// current password check is guarded like a login: it shares the login
// bucket and a wrong password counts towards the account lock.
func (s *AuthService) ChangePassword(ctx context.Context, userID int64, currentRawSessionID, oldPassword, newPassword string, meta RequestMeta) error {
	if err := tokens.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %w", common.ErrorValidation, err)
	}
	if !s.allow(ctx, ratelimit.BucketLogin, meta) {
		return common.ErrRateLimited
	}

	u, err := s.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	flow := map[string]any{"flow": "change_password"}
	if s.lockout.CheckAccountLockStatus(ctx, u.ID).IsLocked {
		tokens.DummyCheck(oldPassword)
		return s.loginFailed(ctx, meta, u.ID, u.Email, "locked", flow)
	}
	if !tokens.CheckPassword(u.PasswordHash, oldPassword) {
		st, err := s.lockout.RecordFailedLoginAttempt(ctx, u.ID, u.Email)
		if err == nil {
			flow["attempts_remaining"], flow["locked"] = st.AttemptsRemaining, st.IsLocked
		}
		return s.loginFailed(ctx, meta, u.ID, u.Email, "bad_current_password", flow)
	}

	hash, err := tokens.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return common.ErrorInternal
	}

	var revoked int64
	err = dbx.WithRetryTx(ctx, s.db, nil, txAttempts, func(ctx context.Context, tx dbx.DBTX) error {
		revoked = 0
		if err := s.repomanager.Users(tx).UpdatePassword(ctx, u.ID, hash); err != nil {
			return err
		}
		if err := s.lockout.recordPasswordChange(ctx, tx, u.ID); err != nil {
			return err
		}
		n, err := s.repomanager.Sessions(tx).RevokeAllForUser(ctx, u.ID, handleOf(currentRawSessionID), s.now())
		revoked = n
		return err
	})
	if err != nil {
		s.log.Error(ctx, "password change failed", "user_id", u.ID, "error", err)
		return common.ErrorInternal
	}

	s.events.Log(ctx, meta.event(security.EventPasswordChanged, u.ID, u.Email, nil))
	s.sessions.logRevokedAll(ctx, u.ID, revoked, currentRawSessionID != "", "password_change")
	s.tokenflows.NotifyPasswordChanged(ctx, u)
	return nil
}

// SetPassword is the administrative password override: no current password
// is required and every session of the account is revoked.
func (s *AuthService) SetPassword(ctx context.Context, email, newPassword string) error {
	email, err := common.NormalizeEmail(email)
	if err != nil {
		return fmt.Errorf("%w: invalid email address", common.ErrorValidation)
	}
	if err := tokens.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %w", common.ErrorValidation, err)
	}
	hash, err := tokens.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return common.ErrorInternal
	}

	var (
		user    *models.User
		revoked int64
	)
	err = dbx.WithRetryTx(ctx, s.db, nil, txAttempts, func(ctx context.Context, tx dbx.DBTX) error {
		user, revoked = nil, 0
		u, err := s.repomanager.Users(tx).GetByEmailForUpdate(ctx, email)
		if err != nil {
			return err
		}
		if err := s.repomanager.Users(tx).UpdatePassword(ctx, u.ID, hash); err != nil {
			return err
		}
		if err := s.lockout.recordPasswordChange(ctx, tx, u.ID); err != nil {
			return err
		}
		revoked, err = s.repomanager.Sessions(tx).RevokeAllForUser(ctx, u.ID, "", s.now())
		user = u
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("set password: %w", err)
	}

	s.events.Log(ctx, security.Event{
		Type:    security.EventPasswordChanged,
		UserID:  user.ID,
		Email:   user.Email,
		Details: map[string]any{"flow": "admin"},
	})
	s.sessions.logRevokedAll(ctx, user.ID, revoked, false, "admin_set_password")
	return nil
}

// Deactivate soft-disables an account and revokes all its sessions.
func (s *AuthService) Deactivate(ctx context.Context, userID int64, reason string, meta RequestMeta) error {
	var revoked int64
	err := dbx.WithRetryTx(ctx, s.db, nil, txAttempts, func(ctx context.Context, tx dbx.DBTX) error {
		revoked = 0
		now := s.now()
		if err := s.repomanager.Users(tx).Deactivate(ctx, userID, reason, now); err != nil {
			return err
		}
		n, err := s.repomanager.Sessions(tx).RevokeAllForUser(ctx, userID, "", now)
		revoked = n
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		s.log.Error(ctx, "deactivation failed", "user_id", userID, "error", err)
		return common.ErrorInternal
	}

	s.events.Log(ctx, meta.event(security.EventAccountDeactivated, userID, "", map[string]any{"reason": reason}))
	s.sessions.logRevokedAll(ctx, userID, revoked, false, "deactivation")
	return nil
}
