// Package httpapi is the HTTP adapter of the security core: the session
// cookie contract, the CSRF token endpoint, the account flows and the admin
// surface.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/logging"
	"github.com/dmitrijs2005/folioguard/internal/server/models"
	"github.com/dmitrijs2005/folioguard/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type AuthFlows interface {
	Register(ctx context.Context, email, name, password string, meta services.RequestMeta) (*services.AuthResult, error)
	Login(ctx context.Context, email, password string, rememberMe bool, meta services.RequestMeta) (*services.AuthResult, error)
	Logout(ctx context.Context, userID int64, rawSessionID string, meta services.RequestMeta) error
	GetUser(ctx context.Context, userID int64) (*models.User, error)
	ChangePassword(ctx context.Context, userID int64, currentRawSessionID, oldPassword, newPassword string, meta services.RequestMeta) error
	Deactivate(ctx context.Context, userID int64, reason string, meta services.RequestMeta) error
}

type SessionManager interface {
	ValidateSession(ctx context.Context, rawID string) services.SessionValidation
	RevokeSessionForUser(ctx context.Context, userID int64, handle string) error
	RevokeAllSessionsForUser(ctx context.Context, userID int64, exceptRawID, reason string) (int64, error)
	ListActiveSessions(ctx context.Context, userID int64, currentRawID string) ([]services.ActiveSession, error)
}

type TokenFlows interface {
	SendVerificationEmail(ctx context.Context, userID int64) error
	VerifyEmail(ctx context.Context, rawToken string, meta services.RequestMeta) (int64, error)
	SendPasswordReset(ctx context.Context, email string, meta services.RequestMeta) error
	ResetPassword(ctx context.Context, rawToken, newPassword string, meta services.RequestMeta) error
}

type Monitor interface {
	SessionStats(ctx context.Context) (*models.SessionStats, error)
	HealthCheck(ctx context.Context) services.HealthReport
	RunMaintenance(ctx context.Context) (*services.MaintenanceReport, error)
}

type AccountAdmin interface {
	UnlockAccount(ctx context.Context, userID, actorID int64) error
}

type CSRFTokens interface {
	Generate() (string, error)
	Verify(token string) bool
}

type Metrics interface {
	ObserveHTTP(method, route string, status int, d time.Duration)
	Handler() http.Handler
}

// Deps wires the handler to the services.
type Deps struct {
	Auth          AuthFlows
	Sessions      SessionManager
	Tokens        TokenFlows
	Monitor       Monitor
	Lockout       AccountAdmin
	CSRF          CSRFTokens
	Events        services.EventLogger
	Log           logging.Logger
	Metrics       Metrics
	SecureCookies bool
}

type Handler struct {
	auth          AuthFlows
	sessions      SessionManager
	tokens        TokenFlows
	monitor       Monitor
	lockout       AccountAdmin
	csrf          CSRFTokens
	events        services.EventLogger
	log           logging.Logger
	metrics       Metrics
	secureCookies bool
}

func NewHandler(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{
		auth:          d.Auth,
		sessions:      d.Sessions,
		tokens:        d.Tokens,
		monitor:       d.Monitor,
		lockout:       d.Lockout,
		csrf:          d.CSRF,
		events:        d.Events,
		log:           log.With("component", "http"),
		metrics:       d.Metrics,
		secureCookies: d.SecureCookies,
	}
}

// NewRouter registers the routes and the middleware stack. Every mutating
// route below /auth and /admin requires a CSRF token.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(h.recoverMiddleware)
	r.Use(h.loggingMiddleware)

	r.Get("/healthz", h.healthz)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/auth", func(r chi.Router) {
		r.Get("/csrf", h.csrfToken)

		r.Group(func(r chi.Router) {
			r.Use(h.csrfMiddleware)
			r.Post("/register", h.register)
			r.Post("/login", h.login)
			r.Post("/logout", h.logout)
			r.Post("/password/forgot", h.forgotPassword)
			r.Post("/password/reset", h.resetPassword)
			r.Post("/email/verify", h.verifyEmail)

			r.Group(func(r chi.Router) {
				r.Use(h.sessionMiddleware)
				r.Get("/me", h.me)
				r.Post("/email/resend", h.resendVerification)
				r.Post("/password/change", h.changePassword)
				r.Get("/sessions", h.listSessions)
				r.Delete("/sessions/{handle}", h.revokeSession)
				r.Post("/sessions/revoke-others", h.revokeOtherSessions)
			})
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.csrfMiddleware)
		r.Use(h.sessionMiddleware)
		r.Use(h.adminMiddleware)
		r.Get("/sessions/stats", h.adminStats)
		r.Get("/health", h.adminHealth)
		r.Post("/users/{id}/revoke-sessions", h.adminRevokeSessions)
		r.Post("/users/{id}/unlock", h.adminUnlock)
		r.Post("/users/{id}/deactivate", h.adminDeactivate)
		r.Post("/maintenance", h.adminMaintenance)
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
