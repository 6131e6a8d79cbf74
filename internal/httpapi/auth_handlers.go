package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"wrdms.org/internal/audit"
	"wrdms.org/internal/auth"
	"wrdms.org/internal/mail"
	"wrdms.org/internal/obs"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionStatus struct {
	Message     string `json:"message"`
	AccessToken string `json:"access_token"`
}

type loginResponse struct {
	Status      sessionStatus `json:"status"`
	UserDetails *auth.Profile `json:"user_details"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	result, err := a.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		obs.LoginAttempt("failure")
		a.handleAuthError(w, r, err)
		return
	}
	obs.LoginAttempt("success")
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"email": auth.NormalizeEmail(req.Email),
	})
	a.setRefreshCookie(w, result.RefreshToken, result.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, loginResponse{
		Status: sessionStatus{
			Message:     "login successful",
			AccessToken: result.AccessToken,
		},
		UserDetails: result.Profile,
	})
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		obs.TokenRefresh("missing")
		writeError(w, r, http.StatusUnauthorized, "refresh token not provided")
		return
	}
	session, err := a.auth.Refresh(r.Context(), cookie.Value)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrRefreshTokenExpired):
			obs.TokenRefresh("expired")
			a.clearRefreshCookie(w)
			writeError(w, r, http.StatusForbidden, "refresh token expired")
		case errors.Is(err, auth.ErrInvalidRefreshToken):
			obs.TokenRefresh("invalid")
			writeError(w, r, http.StatusForbidden, "invalid refresh token")
		default:
			obs.TokenRefresh("failure")
			a.handleAuthError(w, r, err)
		}
		return
	}
	obs.TokenRefresh("success")
	_ = audit.LogEvent(r.Context(), "auth.refresh", map[string]any{
		"user_id": session.UserID,
	})
	a.setRefreshCookie(w, session.RefreshToken, session.RefreshExpiresAt)
	writeJSON(w, http.StatusOK, sessionStatus{
		Message:     "token refreshed",
		AccessToken: session.AccessToken,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]any{"message": "already logged out"})
		return
	}
	if err := a.auth.Logout(r.Context(), cookie.Value); err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	a.clearRefreshCookie(w)
	_ = audit.LogEvent(r.Context(), "auth.logout", nil)
	writeJSON(w, http.StatusOK, map[string]any{"message": "logged out"})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (a *API) handleForgotPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req forgotPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	reset, err := a.auth.ForgotPassword(r.Context(), req.Email)
	if err != nil {
		obs.PasswordReset("forgot", "failure")
		a.handleAuthError(w, r, err)
		return
	}
	obs.PasswordReset("forgot", "success")
	_ = audit.LogEvent(r.Context(), "auth.forgot_password", map[string]any{
		"email": reset.Email,
	})
	resp := map[string]any{"message": "password reset link sent"}
	if a.debugReset {
		resp["debug"] = map[string]any{
			"token":      reset.Token,
			"reset_link": mail.ResetLink(a.frontendBaseURL, reset.Token),
			"expires_at": reset.ExpiresAt.UTC().Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.ResetPassword(r.Context(), req.Token, req.NewPassword); err != nil {
		if errors.Is(err, auth.ErrResetTokenExpired) {
			obs.PasswordReset("reset", "expired")
			writeJSON(w, http.StatusGone, map[string]any{
				"message":            "reset token expired, request a new one",
				"expired":            true,
				"redirect_to_forgot": true,
			})
			return
		}
		obs.PasswordReset("reset", "failure")
		a.handleAuthError(w, r, err)
		return
	}
	obs.PasswordReset("reset", "success")
	_ = audit.LogEvent(r.Context(), "auth.reset_password", nil)
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "password updated, you can now log in",
		"redirect": "/login",
	})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	profile, err := a.auth.Profile(r.Context(), claims.Subject)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// handleResetState reports whether a pending reset token exists for an
// account. Operator diagnostics only; the token value is never returned.
func (a *API) handleResetState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	caller, err := a.auth.Profile(r.Context(), claims.Subject)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	if !caller.IsAdmin && !caller.HasPermission(auth.PermissionInspectAuth) {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return
	}
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeError(w, r, http.StatusBadRequest, "email query parameter is required")
		return
	}
	state, err := a.auth.ResetState(r.Context(), email)
	if err != nil {
		a.handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"user_id":           state.UserID,
		"email":             state.Email,
		"expires_at":        state.ExpiresAt.UTC().Format(time.RFC3339),
		"seconds_remaining": state.SecondsRemaining,
	})
}

// handleAuthError is the single mapping from auth error kinds to HTTP
// status codes. Handlers that need a richer body intercept before calling.
func (a *API) handleAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, auth.ErrInvalidRefreshToken):
		writeError(w, r, http.StatusForbidden, "invalid refresh token")
	case errors.Is(err, auth.ErrRefreshTokenExpired):
		writeError(w, r, http.StatusForbidden, "refresh token expired")
	case errors.Is(err, auth.ErrInvalidResetToken):
		writeError(w, r, http.StatusBadRequest, "invalid reset token")
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "user not found")
	default:
		obs.Log(map[string]any{
			"level":      "error",
			"msg":        "auth request failed",
			"error":      err.Error(),
			"path":       obs.CanonicalPath(r.URL.Path),
			"request_id": audit.RequestIDFromContext(r.Context()),
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
