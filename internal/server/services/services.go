// Package services contains the server-side security core: account lockout,
// sessions, single-use email tokens, session monitoring and the auth flows
// composed from them.
package services

import (
	"context"

	"github.com/dmitrijs2005/folioguard/internal/server/security"
)

// txAttempts bounds how often a transaction aborted by a serialization
// failure or deadlock is re-run.
const txAttempts = 3

// EventLogger records security events. Implementations must not fail the
// caller; *security.Logger is the production one.
type EventLogger interface {
	Log(ctx context.Context, e security.Event)
}

// RequestMeta describes the client behind a request.
type RequestMeta struct {
	IPAddress string
	UserAgent string
}

func (m RequestMeta) event(t security.EventType, userID int64, email string, details map[string]any) security.Event {
	return security.Event{
		Type:      t,
		UserID:    userID,
		Email:     email,
		IPAddress: m.IPAddress,
		UserAgent: m.UserAgent,
		Details:   details,
	}
}
