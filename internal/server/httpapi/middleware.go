package httpapi

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/common"
	"github.com/dmitrijs2005/folioguard/internal/server/models"
	"github.com/dmitrijs2005/folioguard/internal/server/security"
	"github.com/dmitrijs2005/folioguard/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const (
	ctxKeySession ctxKey = "session"
	ctxKeyUser    ctxKey = "user"
)

// sessionInfo is what sessionMiddleware leaves in the request context.
type sessionInfo struct {
	UserID int64
	RawID  string
}

func sessionFrom(ctx context.Context) (sessionInfo, bool) {
	s, ok := ctx.Value(ctxKeySession).(sessionInfo)
	return s, ok
}

func userFrom(ctx context.Context) *models.User {
	u, _ := ctx.Value(ctxKeyUser).(*models.User)
	return u
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *Handler) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.log.Error(r.Context(), "panic recovered", "panic", rec, "path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func (h *Handler) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		elapsed := time.Since(start)
		if h.metrics != nil {
			h.metrics.ObserveHTTP(r.Method, route, rec.status, elapsed)
		}
		h.log.Info(r.Context(), "http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"route", route,
			"status", rec.status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// csrfTokenOf reads the token from the header only. The body is left for
// the handler to decode.
func csrfTokenOf(r *http.Request) string {
	return r.Header.Get(common.CSRFHeaderName)
}

func (h *Handler) csrfMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !isMutating(r.Method) || h.csrf.Verify(csrfTokenOf(r)) {
			next.ServeHTTP(w, r)
			return
		}
		meta := requestMeta(r)
		h.events.Log(r.Context(), security.Event{
			Type:      security.EventCSRFValidationFail,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			Details:   map[string]any{"method": r.Method, "path": r.URL.Path},
		})
		writeError(w, http.StatusForbidden, "CSRF_VALIDATION_FAIL", "invalid csrf token")
	})
}

// sessionMiddleware requires a valid session cookie. A refreshed session
// gets its cookie reissued with the new expiry.
func (h *Handler) sessionMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := sessionCookie(r)
		v := h.sessions.ValidateSession(r.Context(), raw)
		if !v.Valid {
			if raw != "" {
				h.clearSessionCookie(w)
			}
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "unauthorized")
			return
		}
		if v.Refreshed && v.Session != nil {
			h.setSessionCookie(w, raw, v.Session.ExpiresAt)
		}
		ctx := context.WithValue(r.Context(), ctxKeySession, sessionInfo{UserID: v.UserID, RawID: raw})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminMiddleware runs after sessionMiddleware and admits admins only.
func (h *Handler) adminMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, _ := sessionFrom(r.Context())
		meta := requestMeta(r)

		u, err := h.auth.GetUser(r.Context(), s.UserID)
		if err != nil || !u.IsAdmin {
			h.events.Log(r.Context(), security.Event{
				Type:      security.EventAuthorizationFail,
				UserID:    s.UserID,
				IPAddress: meta.IPAddress,
				UserAgent: meta.UserAgent,
				Details:   map[string]any{"method": r.Method, "path": r.URL.Path},
			})
			writeError(w, http.StatusForbidden, "FORBIDDEN", "forbidden")
			return
		}

		h.events.Log(r.Context(), security.Event{
			Type:      security.EventAdminAccess,
			UserID:    u.ID,
			Email:     u.Email,
			IPAddress: meta.IPAddress,
			UserAgent: meta.UserAgent,
			Details:   map[string]any{"method": r.Method, "path": r.URL.Path},
		})
		ctx := context.WithValue(r.Context(), ctxKeyUser, u)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP strips the port middleware.RealIP leaves on RemoteAddr when no
// proxy header was present.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

func requestMeta(r *http.Request) services.RequestMeta {
	return services.RequestMeta{IPAddress: clientIP(r), UserAgent: r.UserAgent()}
}
