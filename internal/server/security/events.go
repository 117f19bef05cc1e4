// Package security records sanitized security events. Emails and IPs are
// masked, user agents truncated and secret-looking detail keys dropped
// before anything reaches the store or a downstream sink.
package security

// EventType is the closed set of security event kinds.
type EventType string

const (
	EventLoginSuccess EventType = "LOGIN_SUCCESS"
	EventLoginFail    EventType = "LOGIN_FAIL"
	EventRegister     EventType = "REGISTER"
	EventLogout       EventType = "LOGOUT"

	EventAccountLocked      EventType = "ACCOUNT_LOCKED"
	EventAccountUnlocked    EventType = "ACCOUNT_UNLOCKED"
	EventAccountDeactivated EventType = "ACCOUNT_DEACTIVATED"

	EventSessionCreated     EventType = "SESSION_CREATED"
	EventSessionCreateFail  EventType = "SESSION_CREATE_FAIL"
	EventSessionRefreshFail EventType = "SESSION_REFRESH_FAIL"
	EventSessionRevoked     EventType = "SESSION_REVOKED"
	EventSessionsRevokedAll EventType = "SESSIONS_REVOKED_ALL"

	EventEmailVerificationSent EventType = "EMAIL_VERIFICATION_SENT"
	EventEmailVerified         EventType = "EMAIL_VERIFIED"
	EventEmailVerificationFail EventType = "EMAIL_VERIFICATION_FAIL"
	EventEmailSendFail         EventType = "EMAIL_SEND_FAIL"

	EventPasswordResetRequested    EventType = "PASSWORD_RESET_REQUESTED"
	EventPasswordResetUnknownEmail EventType = "PASSWORD_RESET_UNKNOWN_EMAIL"
	EventPasswordResetCooldown     EventType = "PASSWORD_RESET_COOLDOWN"
	EventPasswordResetCompleted    EventType = "PASSWORD_RESET_COMPLETED"
	EventPasswordResetFail         EventType = "PASSWORD_RESET_FAIL"
	EventPasswordChanged           EventType = "PASSWORD_CHANGED"

	EventRateLimitExceeded  EventType = "RATE_LIMIT_EXCEEDED"
	EventCSRFValidationFail EventType = "CSRF_VALIDATION_FAIL"
	EventAuthorizationFail  EventType = "AUTHORIZATION_FAIL"
	EventAdminAccess        EventType = "ADMIN_ACCESS"

	EventSuspiciousSessionActivity EventType = "SUSPICIOUS_SESSION_ACTIVITY"
	EventSessionHealthCheck        EventType = "SESSION_HEALTH_CHECK"
	EventMaintenanceRun            EventType = "MAINTENANCE_RUN"
)

var allEventTypes = []EventType{
	EventLoginSuccess, EventLoginFail, EventRegister, EventLogout,
	EventAccountLocked, EventAccountUnlocked, EventAccountDeactivated,
	EventSessionCreated, EventSessionCreateFail, EventSessionRefreshFail, EventSessionRevoked, EventSessionsRevokedAll,
	EventEmailVerificationSent, EventEmailVerified, EventEmailVerificationFail, EventEmailSendFail,
	EventPasswordResetRequested, EventPasswordResetUnknownEmail, EventPasswordResetCooldown,
	EventPasswordResetCompleted, EventPasswordResetFail, EventPasswordChanged,
	EventRateLimitExceeded, EventCSRFValidationFail, EventAuthorizationFail, EventAdminAccess,
	EventSuspiciousSessionActivity, EventSessionHealthCheck, EventMaintenanceRun,
}

var knownEventTypes = func() map[EventType]struct{} {
	m := make(map[EventType]struct{}, len(allEventTypes))
	for _, t := range allEventTypes {
		m[t] = struct{}{}
	}
	return m
}()

// AllEventTypes returns every defined event type.
func AllEventTypes() []EventType {
	out := make([]EventType, len(allEventTypes))
	copy(out, allEventTypes)
	return out
}

func (t EventType) Valid() bool {
	_, ok := knownEventTypes[t]
	return ok
}

func (t EventType) String() string { return string(t) }

// Event is what callers hand to Logger.Log. Fields are raw; the logger
// masks them. UserID 0 means no user.
type Event struct {
	Type      EventType
	UserID    int64
	Email     string
	IPAddress string
	UserAgent string
	Details   map[string]any
}
