package services

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/common"
	"github.com/dmitrijs2005/folioguard/internal/logging"
	"github.com/dmitrijs2005/folioguard/internal/server/config"
	"github.com/dmitrijs2005/folioguard/internal/server/models"
	"github.com/dmitrijs2005/folioguard/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/folioguard/internal/server/security"
	"github.com/dmitrijs2005/folioguard/internal/server/tokens"
)

// sessionIDBytes is the entropy of a raw session id.
const sessionIDBytes = 32

// CreateSessionOptions describes the session being opened.
type CreateSessionOptions struct {
	RememberMe bool
	IPAddress  string
	UserAgent  string
}

// CreatedSession is handed to the web layer. ID is the raw value for the
// cookie and is never stored; Handle identifies the session afterwards.
type CreatedSession struct {
	ID         string
	Handle     string
	ExpiresAt  time.Time
	RememberMe bool
}

// SessionValidation is the outcome of ValidateSession. Its zero value means
// not authenticated.
type SessionValidation struct {
	Valid     bool
	UserID    int64
	Session   *models.Session
	Refreshed bool
}

// ActiveSession is one entry of a user's device list.
type ActiveSession struct {
	models.Session
	Current bool
}

// SessionService is the authority on whether a request is authenticated.
// Unlike lockout it fails closed.
type SessionService struct {
	db            *sql.DB
	repomanager   repomanager.RepositoryManager
	events        EventLogger
	log           logging.Logger
	ttl           time.Duration
	rememberMeTTL time.Duration
	refreshRatio  float64
	now           func() time.Time
}

func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, events EventLogger, log logging.Logger, cfg *config.Config) *SessionService {
	return &SessionService{
		db:            db,
		repomanager:   m,
		events:        events,
		log:           log.With("component", "sessions"),
		ttl:           cfg.SessionTTL,
		rememberMeTTL: cfg.RememberMeTTL,
		refreshRatio:  cfg.SessionRefreshRatio,
		now:           time.Now,
	}
}

func (s *SessionService) lifetime(rememberMe bool) time.Duration {
	if rememberMe {
		return s.rememberMeTTL
	}
	return s.ttl
}

func newSessionID() string {
	return base64.RawURLEncoding.EncodeToString(common.GenerateRandByteArray(sessionIDBytes))
}

// handleOf maps a raw session id to its stored key.
func handleOf(rawID string) string {
	if rawID == "" {
		return ""
	}
	return tokens.Hash(rawID)
}

// shortHandle is the prefix of a handle safe to put in logs.
func shortHandle(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

// CreateSession opens a session for userID. A storage failure is returned:
// a session that was not recorded must not be handed out.
func (s *SessionService) CreateSession(ctx context.Context, userID int64, opts CreateSessionOptions) (*CreatedSession, error) {
	now := s.now()
	raw := newSessionID()
	sess := &models.Session{
		ID:           handleOf(raw),
		UserID:       userID,
		ExpiresAt:    now.Add(s.lifetime(opts.RememberMe)),
		CreatedAt:    now,
		IsRememberMe: opts.RememberMe,
		IPAddress:    opts.IPAddress,
		UserAgent:    security.TruncateUserAgent(opts.UserAgent),
	}

	if err := s.repomanager.Sessions(s.db).Create(ctx, sess); err != nil {
		s.log.Error(ctx, "failed to create session", "user_id", userID, "error", err)
		s.events.Log(ctx, security.Event{
			Type:      security.EventSessionCreateFail,
			UserID:    userID,
			IPAddress: opts.IPAddress,
			UserAgent: opts.UserAgent,
		})
		return nil, fmt.Errorf("create session: %w", common.ErrorInternal)
	}

	s.events.Log(ctx, security.Event{
		Type:      security.EventSessionCreated,
		UserID:    userID,
		IPAddress: opts.IPAddress,
		UserAgent: opts.UserAgent,
		Details:   map[string]any{"session": shortHandle(sess.ID), "remember_me": opts.RememberMe},
	})
	return &CreatedSession{ID: raw, Handle: sess.ID, ExpiresAt: sess.ExpiresAt, RememberMe: opts.RememberMe}, nil
}

// ValidateSession resolves a raw session id. Absent, revoked and expired
// sessions are invalid, and so is every lookup that fails. A session past
// the refresh threshold gets its expiry pushed out; a failed refresh is
// logged and does not invalidate it.
func (s *SessionService) ValidateSession(ctx context.Context, rawID string) SessionValidation {
	if rawID == "" {
		return SessionValidation{}
	}

	repo := s.repomanager.Sessions(s.db)
	sess, err := repo.Get(ctx, handleOf(rawID))
	if err != nil {
		if !errors.Is(err, common.ErrorNotFound) {
			s.log.Error(ctx, "session lookup failed, treating as unauthenticated", "error", err)
		}
		return SessionValidation{}
	}

	now := s.now()
	if !sess.IsActive(now) {
		return SessionValidation{}
	}

	res := SessionValidation{Valid: true, UserID: sess.UserID, Session: sess}

	lifetime := s.lifetime(sess.IsRememberMe)
	threshold := time.Duration(float64(lifetime) * s.refreshRatio)
	if sess.ExpiresAt.Sub(now) >= threshold {
		return res
	}

	newExpiry := now.Add(lifetime)
	ok, err := repo.UpdateExpiry(ctx, sess.ID, newExpiry)
	switch {
	case err != nil:
		s.log.Warn(ctx, "session refresh failed", "user_id", sess.UserID, "error", err)
		s.events.Log(ctx, security.Event{
			Type:    security.EventSessionRefreshFail,
			UserID:  sess.UserID,
			Details: map[string]any{"session": shortHandle(sess.ID)},
		})
	case !ok:
		// revoked between the lookup and the refresh
		return SessionValidation{}
	default:
		sess.ExpiresAt = newExpiry
		res.Refreshed = true
	}
	return res
}

// RevokeSession ends the session behind rawID. Revoking an unknown or
// already revoked session succeeds.
func (s *SessionService) RevokeSession(ctx context.Context, rawID string) error {
	if rawID == "" {
		return nil
	}
	if _, err := s.repomanager.Sessions(s.db).Revoke(ctx, handleOf(rawID), s.now()); err != nil {
		s.log.Error(ctx, "failed to revoke session", "error", err)
		return fmt.Errorf("revoke session: %w", common.ErrorInternal)
	}
	return nil
}

// RevokeSessionForUser revokes one of userID's own sessions by handle.
func (s *SessionService) RevokeSessionForUser(ctx context.Context, userID int64, handle string) error {
	ok, err := s.repomanager.Sessions(s.db).RevokeForUser(ctx, userID, handle, s.now())
	if err != nil {
		s.log.Error(ctx, "failed to revoke session", "user_id", userID, "error", err)
		return fmt.Errorf("revoke session: %w", common.ErrorInternal)
	}
	if !ok {
		return common.ErrorNotFound
	}
	s.events.Log(ctx, security.Event{
		Type:    security.EventSessionRevoked,
		UserID:  userID,
		Details: map[string]any{"session": shortHandle(handle)},
	})
	return nil
}

// RevokeAllSessionsForUser revokes every active session of userID except
// the one behind exceptRawID, if given, and returns how many were revoked.
func (s *SessionService) RevokeAllSessionsForUser(ctx context.Context, userID int64, exceptRawID, reason string) (int64, error) {
	n, err := s.repomanager.Sessions(s.db).RevokeAllForUser(ctx, userID, handleOf(exceptRawID), s.now())
	if err != nil {
		s.log.Error(ctx, "failed to revoke sessions", "user_id", userID, "error", err)
		return 0, fmt.Errorf("revoke sessions: %w", common.ErrorInternal)
	}
	s.logRevokedAll(ctx, userID, n, exceptRawID != "", reason)
	return n, nil
}

func (s *SessionService) logRevokedAll(ctx context.Context, userID, count int64, keptCurrent bool, reason string) {
	s.events.Log(ctx, security.Event{
		Type:    security.EventSessionsRevokedAll,
		UserID:  userID,
		Details: map[string]any{"count": count, "kept_current": keptCurrent, "reason": reason},
	})
}

// ListActiveSessions lists userID's active sessions, flagging the one
// behind currentRawID.
func (s *SessionService) ListActiveSessions(ctx context.Context, userID int64, currentRawID string) ([]ActiveSession, error) {
	list, err := s.repomanager.Sessions(s.db).ListActive(ctx, userID, s.now())
	if err != nil {
		s.log.Error(ctx, "failed to list sessions", "user_id", userID, "error", err)
		return nil, fmt.Errorf("list sessions: %w", common.ErrorInternal)
	}
	current := handleOf(currentRawID)
	out := make([]ActiveSession, 0, len(list))
	for _, sess := range list {
		out = append(out, ActiveSession{Session: sess, Current: current != "" && sess.ID == current})
	}
	return out, nil
}

// CleanupExpiredSessions deletes expired session rows.
func (s *SessionService) CleanupExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.repomanager.Sessions(s.db).DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("cleanup sessions: %w", err)
	}
	return n, nil
}
