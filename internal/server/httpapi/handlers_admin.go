package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/folioguard/internal/common"
	"github.com/dmitrijs2005/folioguard/internal/server/models"
	"github.com/dmitrijs2005/folioguard/internal/server/services"
	"github.com/go-chi/chi/v5"
)

type statsView struct {
	TotalActiveSessions    int64   `json:"total_active_sessions"`
	ActiveUsers            int64   `json:"active_users"`
	RememberMeSessions     int64   `json:"remember_me_sessions"`
	ExpiringWithin24h      int64   `json:"expiring_within_24h"`
	AverageDurationSeconds float64 `json:"average_duration_seconds"`
}

func statsOf(s models.SessionStats) statsView {
	return statsView(s)
}

type suspiciousView struct {
	UserID             int64    `json:"user_id"`
	ActiveSessions     int64    `json:"active_sessions"`
	DistinctIPs        int64    `json:"distinct_ips"`
	DistinctUserAgents int64    `json:"distinct_user_agents"`
	Reasons            []string `json:"reasons"`
}

func suspiciousOf(list []services.SuspiciousActivity) []suspiciousView {
	out := make([]suspiciousView, 0, len(list))
	for _, s := range list {
		out = append(out, suspiciousView{
			UserID:             s.UserID,
			ActiveSessions:     int64(s.ActiveSessions),
			DistinctIPs:        int64(s.DistinctIPs),
			DistinctUserAgents: int64(s.DistinctUserAgents),
			Reasons:            s.Reasons,
		})
	}
	return out
}

func userIDParam(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid user id")
	}
	return id, nil
}

func (h *Handler) adminStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.monitor.SessionStats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "session_stats", err)
		return
	}
	writeJSON(w, http.StatusOK, statsOf(*st))
}

// adminHealth answers 503 while the report carries alerts.
func (h *Handler) adminHealth(w http.ResponseWriter, r *http.Request) {
	rep := h.monitor.HealthCheck(r.Context())
	status := http.StatusOK
	if !rep.Healthy {
		status = http.StatusServiceUnavailable
	}
	alerts := rep.Alerts
	if alerts == nil {
		alerts = []string{}
	}
	writeJSON(w, status, map[string]any{
		"healthy":    rep.Healthy,
		"alerts":     alerts,
		"stats":      statsOf(rep.Stats),
		"checked_at": rep.CheckedAt,
	})
}

func (h *Handler) adminRevokeSessions(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		h.badRequest(w, err)
		return
	}
	n, err := h.sessions.RevokeAllSessionsForUser(r.Context(), id, "", "admin_forced_logout")
	if err != nil {
		h.writeServiceError(w, r, "admin_revoke_sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"revoked": n})
}

func (h *Handler) adminUnlock(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		h.badRequest(w, err)
		return
	}
	var actor int64
	if u := userFrom(r.Context()); u != nil {
		actor = u.ID
	}
	if err := h.lockout.UnlockAccount(r.Context(), id, actor); err != nil {
		h.writeServiceError(w, r, "admin_unlock", err)
		return
	}
	writeMessage(w, http.StatusOK, "account unlocked")
}

type deactivateRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) adminDeactivate(w http.ResponseWriter, r *http.Request) {
	id, err := userIDParam(r)
	if err != nil {
		h.badRequest(w, err)
		return
	}
	var req deactivateRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	if req.Reason == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", common.ErrorValidation.Error()+": reason is required")
		return
	}
	if err := h.auth.Deactivate(r.Context(), id, req.Reason, requestMeta(r)); err != nil {
		h.writeServiceError(w, r, "admin_deactivate", err)
		return
	}
	writeMessage(w, http.StatusOK, "account deactivated")
}

// adminMaintenance runs one maintenance pass inline. Step failures are
// counted in the report rather than failing the request; the details are in
// the server log.
func (h *Handler) adminMaintenance(w http.ResponseWriter, r *http.Request) {
	rep, err := h.monitor.RunMaintenance(r.Context())
	if rep == nil {
		h.writeServiceError(w, r, "maintenance", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"started_at":       rep.StartedAt.Format(time.RFC3339),
		"deleted_sessions": rep.DeletedSessions,
		"suspicious":       suspiciousOf(rep.Suspicious),
		"archived_key":     rep.ArchivedKey,
		"failed_steps":     len(rep.Errors),
	})
}
