package models

import "time"

// Session is one authenticated device or browser. ID is the sha256 hex of
// the raw cookie value and is what listing and revocation refer to.
type Session struct {
	ID           string
	UserID       int64
	ExpiresAt    time.Time
	CreatedAt    time.Time
	IsRememberMe bool
	RevokedAt    *time.Time
	IPAddress    string
	UserAgent    string
}

// IsActive reports whether the session is usable at now.
func (s *Session) IsActive(now time.Time) bool {
	return s.RevokedAt == nil && s.ExpiresAt.After(now)
}

// SessionStats aggregates the active sessions in the store.
type SessionStats struct {
	TotalActiveSessions    int64
	ActiveUsers            int64
	RememberMeSessions     int64
	ExpiringWithin24h      int64
	AverageDurationSeconds float64
}

// SessionFootprint summarises one user's active sessions for anomaly
// detection.
type SessionFootprint struct {
	UserID             int64
	ActiveSessions     int
	DistinctIPs        int
	DistinctUserAgents int
}
