package httpapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dmitrijs2005/folioguard/internal/common"
	"github.com/dmitrijs2005/folioguard/internal/server/models"
)

type userView struct {
	ID            int64  `json:"id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	EmailVerified bool   `json:"email_verified"`
	IsAdmin       bool   `json:"is_admin"`
}

func viewOf(u *models.User) userView {
	return userView{ID: u.ID, Email: u.Email, Name: u.Name, EmailVerified: u.EmailVerified, IsAdmin: u.IsAdmin}
}

func (h *Handler) badRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", fmt.Sprintf("invalid request body: %v", err))
}

func (h *Handler) csrfToken(w http.ResponseWriter, r *http.Request) {
	tok, err := h.csrf.Generate()
	if err != nil {
		h.writeServiceError(w, r, "csrf", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"csrf_token": tok})
}

type registerRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	res, err := h.auth.Register(r.Context(), req.Email, req.Name, req.Password, requestMeta(r))
	if err != nil {
		h.writeServiceError(w, r, "register", err)
		return
	}
	h.setSessionCookie(w, res.Session.ID, res.Session.ExpiresAt)
	writeJSON(w, http.StatusCreated, map[string]any{"user": viewOf(res.User)})
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	res, err := h.auth.Login(r.Context(), req.Email, req.Password, req.RememberMe, requestMeta(r))
	if err != nil {
		h.writeServiceError(w, r, "login", err)
		return
	}
	h.setSessionCookie(w, res.Session.ID, res.Session.ExpiresAt)
	writeJSON(w, http.StatusOK, map[string]any{"user": viewOf(res.User)})
}

// logout always clears the cookie; only a live session is revoked.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	raw := sessionCookie(r)
	if v := h.sessions.ValidateSession(r.Context(), raw); v.Valid {
		if err := h.auth.Logout(r.Context(), v.UserID, raw, requestMeta(r)); err != nil {
			h.writeServiceError(w, r, "logout", err)
			return
		}
	}
	h.clearSessionCookie(w)
	writeMessage(w, http.StatusOK, "logged out")
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	s, _ := sessionFrom(r.Context())
	u, err := h.auth.GetUser(r.Context(), s.UserID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			err = common.ErrorUnauthorized
		}
		h.writeServiceError(w, r, "me", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": viewOf(u)})
}

type emailRequest struct {
	Email string `json:"email"`
}

// forgotPassword answers the same way whether or not the address exists.
func (h *Handler) forgotPassword(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	if err := h.tokens.SendPasswordReset(r.Context(), req.Email, requestMeta(r)); err != nil {
		h.writeServiceError(w, r, "forgot_password", err)
		return
	}
	writeMessage(w, http.StatusAccepted, "if the address is registered, a reset link has been sent")
}

type resetRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *Handler) resetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	if err := h.tokens.ResetPassword(r.Context(), req.Token, req.Password, requestMeta(r)); err != nil {
		h.writeServiceError(w, r, "reset_password", err)
		return
	}
	writeMessage(w, http.StatusOK, "password updated")
}

type tokenRequest struct {
	Token string `json:"token"`
}

func (h *Handler) verifyEmail(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	if _, err := h.tokens.VerifyEmail(r.Context(), req.Token, requestMeta(r)); err != nil {
		h.writeServiceError(w, r, "verify_email", err)
		return
	}
	writeMessage(w, http.StatusOK, "email verified")
}

func (h *Handler) resendVerification(w http.ResponseWriter, r *http.Request) {
	s, _ := sessionFrom(r.Context())
	if err := h.tokens.SendVerificationEmail(r.Context(), s.UserID); err != nil {
		h.writeServiceError(w, r, "resend_verification", err)
		return
	}
	writeMessage(w, http.StatusAccepted, "verification email sent")
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (h *Handler) changePassword(w http.ResponseWriter, r *http.Request) {
	var req changePasswordRequest
	if err := decodeBody(r, &req); err != nil {
		h.badRequest(w, err)
		return
	}
	s, _ := sessionFrom(r.Context())
	err := h.auth.ChangePassword(r.Context(), s.UserID, s.RawID, req.CurrentPassword, req.NewPassword, requestMeta(r))
	if err != nil {
		h.writeServiceError(w, r, "change_password", err)
		return
	}
	writeMessage(w, http.StatusOK, "password changed")
}
