package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/common"
	"github.com/dmitrijs2005/folioguard/internal/dbx"
	"github.com/dmitrijs2005/folioguard/internal/logging"
	"github.com/dmitrijs2005/folioguard/internal/server/config"
	"github.com/dmitrijs2005/folioguard/internal/server/mail"
	"github.com/dmitrijs2005/folioguard/internal/server/models"
	"github.com/dmitrijs2005/folioguard/internal/server/ratelimit"
	"github.com/dmitrijs2005/folioguard/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/folioguard/internal/server/security"
	"github.com/dmitrijs2005/folioguard/internal/server/tokens"
)

const (
	verifyEmailPath   = "/verify-email"
	resetPasswordPath = "/reset-password"
)

// TokenFlowService issues and consumes the single-use tokens behind email
// verification and password reset. Only token hashes are stored.
type TokenFlowService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	events      EventLogger
	log         logging.Logger
	limiter     ratelimit.Limiter
	mailer      mail.Sender
	renderer    *mail.Renderer
	lockout     *LockoutService

	baseURL  string
	siteName string

	verificationTTL time.Duration
	resetTTL        time.Duration
	resetCooldown   time.Duration
	bcryptCost      int
	now             func() time.Time
}

func NewTokenFlowService(db *sql.DB, m repomanager.RepositoryManager, events EventLogger, log logging.Logger,
	limiter ratelimit.Limiter, mailer mail.Sender, renderer *mail.Renderer, lockout *LockoutService, cfg *config.Config,
) *TokenFlowService {
	return &TokenFlowService{
		db:              db,
		repomanager:     m,
		events:          events,
		log:             log.With("component", "tokenflows"),
		limiter:         limiter,
		mailer:          mailer,
		renderer:        renderer,
		lockout:         lockout,
		baseURL:         strings.TrimRight(cfg.PublicBaseURL, "/"),
		siteName:        cfg.MailFromName,
		verificationTTL: cfg.VerificationTokenTTL,
		resetTTL:        cfg.PasswordResetTTL,
		resetCooldown:   cfg.PasswordResetCooldown,
		bcryptCost:      cfg.BcryptCost,
		now:             time.Now,
	}
}

// allowEmail consults the email bucket. Limiter failures let the request
// through.
func (s *TokenFlowService) allowEmail(ctx context.Context, email string, userID int64, flow string) bool {
	ok, err := s.limiter.Allow(ctx, ratelimit.BucketEmail, email)
	if err != nil {
		s.log.Warn(ctx, "rate limiter unavailable, allowing request", "bucket", ratelimit.BucketEmail, "error", err)
		return true
	}
	if !ok {
		s.events.Log(ctx, security.Event{
			Type:    security.EventRateLimitExceeded,
			UserID:  userID,
			Email:   email,
			Details: map[string]any{"bucket": string(ratelimit.BucketEmail), "flow": flow},
		})
	}
	return ok
}

func (s *TokenFlowService) link(path, raw string) string {
	return s.baseURL + path + "?" + url.Values{"token": {raw}}.Encode()
}

func (s *TokenFlowService) send(ctx context.Context, template string, u *models.User, link string, ttl time.Duration) error {
	msg, err := s.renderer.Render(template, u.Email, mail.TemplateData{
		SiteName:  s.siteName,
		Name:      u.Name,
		Link:      link,
		ExpiresIn: humanDuration(ttl),
	})
	if err != nil {
		return err
	}
	return s.mailer.Send(ctx, msg)
}

func (s *TokenFlowService) sendFailed(ctx context.Context, u *models.User, template string, err error) {
	s.log.Error(ctx, "failed to send security email", "user_id", u.ID, "template", template, "error", err)
	s.events.Log(ctx, security.Event{
		Type:    security.EventEmailSendFail,
		UserID:  u.ID,
		Email:   u.Email,
		Details: map[string]any{"template": template},
	})
}

// SendVerificationEmail issues a fresh verification token for userID,
// replacing any outstanding one, and mails the link. Already verified
// accounts and rate-limited requests are skipped silently. A delivery
// failure leaves the token valid.
func (s *TokenFlowService) SendVerificationEmail(ctx context.Context, userID int64) error {
	repo := s.repomanager.Users(s.db)

	u, err := repo.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		s.log.Error(ctx, "failed to load user", "user_id", userID, "error", err)
		return common.ErrorInternal
	}
	if u.EmailVerified || !u.IsActive {
		return nil
	}
	if !s.allowEmail(ctx, u.Email, u.ID, "verify_email") {
		return nil
	}

	raw, err := tokens.Generate(tokens.DefaultSize)
	if err != nil {
		return common.ErrorInternal
	}
	if err := repo.SetVerificationToken(ctx, u.ID, tokens.Hash(raw), s.now().Add(s.verificationTTL)); err != nil {
		s.log.Error(ctx, "failed to store verification token", "user_id", u.ID, "error", err)
		return common.ErrorInternal
	}

	if err := s.send(ctx, mail.TemplateVerifyEmail, u, s.link(verifyEmailPath, raw), s.verificationTTL); err != nil {
		s.sendFailed(ctx, u, mail.TemplateVerifyEmail, err)
		return nil
	}
	s.events.Log(ctx, security.Event{Type: security.EventEmailVerificationSent, UserID: u.ID, Email: u.Email})
	return nil
}

// VerifyEmail consumes a verification token and marks its owner verified
// in one statement. Unknown, expired and reused tokens all give
// common.ErrInvalidToken.
func (s *TokenFlowService) VerifyEmail(ctx context.Context, rawToken string, meta RequestMeta) (int64, error) {
	if rawToken == "" {
		s.events.Log(ctx, meta.event(security.EventEmailVerificationFail, 0, "", map[string]any{"reason": "empty"}))
		return 0, common.ErrInvalidToken
	}

	u, err := s.repomanager.Users(s.db).ConsumeVerificationToken(ctx, tokens.Hash(rawToken), s.now())
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			s.events.Log(ctx, meta.event(security.EventEmailVerificationFail, 0, "", map[string]any{"reason": "invalid_or_expired"}))
			return 0, common.ErrInvalidToken
		}
		s.log.Error(ctx, "failed to consume verification token", "error", err)
		return 0, common.ErrorInternal
	}

	s.events.Log(ctx, meta.event(security.EventEmailVerified, u.ID, u.Email, nil))
	return u.ID, nil
}

type resetOutcome int

const (
	resetUnknown resetOutcome = iota
	resetCooldown
	resetIssued
)

// SendPasswordReset mails a reset link to email if it belongs to an active
// account. The result never reveals whether it does: unknown addresses,
// rate-limited requests and requests inside the cooldown of a still valid
// token all return nil. Only storage failures surface, as
// common.ErrorInternal.
func (s *TokenFlowService) SendPasswordReset(ctx context.Context, email string, meta RequestMeta) error {
	email, err := common.NormalizeEmail(email)
	if err != nil {
		s.events.Log(ctx, meta.event(security.EventPasswordResetUnknownEmail, 0, "", map[string]any{"reason": "malformed"}))
		return nil
	}
	if !s.allowEmail(ctx, email, 0, "password_reset") {
		return nil
	}

	var (
		outcome resetOutcome
		user    *models.User
		raw     string
	)
	err = dbx.WithRetryTx(ctx, s.db, nil, txAttempts, func(ctx context.Context, tx dbx.DBTX) error {
		outcome, user, raw = resetUnknown, nil, ""
		repo := s.repomanager.Users(tx)

		u, err := repo.GetByEmailForUpdate(ctx, email)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return nil
			}
			return err
		}
		if !u.IsActive {
			return nil
		}
		user = u

		now := s.now()
		if u.PasswordResetExpiry != nil && u.PasswordResetExpiry.After(now) {
			issuedAt := u.PasswordResetExpiry.Add(-s.resetTTL)
			if now.Sub(issuedAt) < s.resetCooldown {
				outcome = resetCooldown
				return nil
			}
		}

		t, err := tokens.Generate(tokens.DefaultSize)
		if err != nil {
			return err
		}
		if err := repo.SetResetToken(ctx, u.ID, tokens.Hash(t), now.Add(s.resetTTL)); err != nil {
			return err
		}
		outcome, raw = resetIssued, t
		return nil
	})
	if err != nil {
		s.log.Error(ctx, "password reset issuance failed", "error", err)
		return common.ErrorInternal
	}

	switch outcome {
	case resetUnknown:
		s.events.Log(ctx, meta.event(security.EventPasswordResetUnknownEmail, 0, email, nil))
	case resetCooldown:
		s.events.Log(ctx, meta.event(security.EventPasswordResetCooldown, user.ID, email, nil))
	case resetIssued:
		if err := s.send(ctx, mail.TemplatePasswordReset, user, s.link(resetPasswordPath, raw), s.resetTTL); err != nil {
			s.sendFailed(ctx, user, mail.TemplatePasswordReset, err)
		}
		s.events.Log(ctx, meta.event(security.EventPasswordResetRequested, user.ID, email, nil))
	}
	return nil
}

// ResetPassword consumes a reset token and sets newPassword. The token is
// cleared, the password replaced, lockout cleared and every session revoked
// in one transaction, so a replayed token finds nothing.
func (s *TokenFlowService) ResetPassword(ctx context.Context, rawToken, newPassword string, meta RequestMeta) error {
	if err := tokens.ValidatePassword(newPassword); err != nil {
		return fmt.Errorf("%w: %w", common.ErrorValidation, err)
	}
	if rawToken == "" {
		s.events.Log(ctx, meta.event(security.EventPasswordResetFail, 0, "", map[string]any{"reason": "empty"}))
		return common.ErrInvalidToken
	}
	hash, err := tokens.HashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return common.ErrorInternal
	}

	tokenHash := tokens.Hash(rawToken)
	var (
		user    *models.User
		revoked int64
		reason  string
	)
	err = dbx.WithRetryTx(ctx, s.db, nil, txAttempts, func(ctx context.Context, tx dbx.DBTX) error {
		user, revoked, reason = nil, 0, ""
		users := s.repomanager.Users(tx)

		u, err := users.GetByResetTokenForUpdate(ctx, tokenHash)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				reason = "invalid"
				return common.ErrInvalidToken
			}
			return err
		}
		now := s.now()
		switch {
		case u.PasswordResetToken == nil || !tokens.Equal(*u.PasswordResetToken, tokenHash):
			reason = "invalid"
		case u.PasswordResetExpiry == nil || !u.PasswordResetExpiry.After(now):
			reason = "expired"
		case !u.IsActive:
			reason = "inactive"
		}
		if reason != "" {
			user = u
			return common.ErrInvalidToken
		}

		if err := users.UpdatePassword(ctx, u.ID, hash); err != nil {
			return err
		}
		if err := s.lockout.recordPasswordChange(ctx, tx, u.ID); err != nil {
			return err
		}
		n, err := s.repomanager.Sessions(tx).RevokeAllForUser(ctx, u.ID, "", now)
		if err != nil {
			return err
		}
		user, revoked = u, n
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidToken) {
			var uid int64
			if user != nil {
				uid = user.ID
			}
			s.events.Log(ctx, meta.event(security.EventPasswordResetFail, uid, "", map[string]any{"reason": reason}))
			return common.ErrInvalidToken
		}
		s.log.Error(ctx, "password reset failed", "error", err)
		return common.ErrorInternal
	}

	s.events.Log(ctx, meta.event(security.EventPasswordResetCompleted, user.ID, user.Email, nil))
	s.events.Log(ctx, security.Event{
		Type:    security.EventSessionsRevokedAll,
		UserID:  user.ID,
		Details: map[string]any{"count": revoked, "kept_current": false, "reason": "password_reset"},
	})
	s.NotifyPasswordChanged(ctx, user)
	return nil
}

// NotifyPasswordChanged tells the owner their password changed. Best
// effort.
func (s *TokenFlowService) NotifyPasswordChanged(ctx context.Context, u *models.User) {
	if err := s.send(ctx, mail.TemplatePasswordChanged, u, s.baseURL+resetPasswordPath, 0); err != nil {
		s.sendFailed(ctx, u, mail.TemplatePasswordChanged, err)
	}
}

// humanDuration renders a token lifetime for an email body.
func humanDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return ""
	case d%time.Hour == 0:
		h := int(d / time.Hour)
		if h == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", h)
	case d%time.Minute == 0:
		m := int(d / time.Minute)
		if m == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", m)
	default:
		return d.String()
	}
}
