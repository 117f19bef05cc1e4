package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

type sessionView struct {
	Handle     string    `json:"handle"`
	CreatedAt  time.Time `json:"created_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	RememberMe bool      `json:"remember_me"`
	IPAddress  string    `json:"ip_address,omitempty"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Current    bool      `json:"current"`
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	s, _ := sessionFrom(r.Context())
	list, err := h.sessions.ListActiveSessions(r.Context(), s.UserID, s.RawID)
	if err != nil {
		h.writeServiceError(w, r, "list_sessions", err)
		return
	}
	out := make([]sessionView, 0, len(list))
	for _, a := range list {
		out = append(out, sessionView{
			Handle:     a.ID,
			CreatedAt:  a.CreatedAt,
			ExpiresAt:  a.ExpiresAt,
			RememberMe: a.IsRememberMe,
			IPAddress:  a.IPAddress,
			UserAgent:  a.UserAgent,
			Current:    a.Current,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	s, _ := sessionFrom(r.Context())
	handle := chi.URLParam(r, "handle")
	if err := h.sessions.RevokeSessionForUser(r.Context(), s.UserID, handle); err != nil {
		h.writeServiceError(w, r, "revoke_session", err)
		return
	}
	writeMessage(w, http.StatusOK, "session revoked")
}

func (h *Handler) revokeOtherSessions(w http.ResponseWriter, r *http.Request) {
	s, _ := sessionFrom(r.Context())
	n, err := h.sessions.RevokeAllSessionsForUser(r.Context(), s.UserID, s.RawID, "user_request")
	if err != nil {
		h.writeServiceError(w, r, "revoke_other_sessions", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"revoked": n})
}
