package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"huntops.org/internal/authn"
	"huntops.org/internal/login"
	"huntops.org/internal/token"
)

type loginRequest struct {
	Subject  string `json:"username"`
	Password string `json:"password"`
}

type tokenPairResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	ExpiresAt    time.Time `json:"expires_at"`
}

func pairResponse(p token.Pair) tokenPairResponse {
	return tokenPairResponse{
		AccessToken:  p.AccessToken,
		RefreshToken: p.RefreshToken,
		TokenType:    "Bearer",
		ExpiresAt:    p.AccessExpiresAt,
	}
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := a.gateway.Login(r.Context(), req.Subject, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, authn.ErrAccountLocked):
			writeError(w, r, http.StatusLocked, "account temporarily locked")
		case errors.Is(err, authn.ErrInvalidCredentials):
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
		default:
			writeError(w, r, http.StatusInternalServerError, "login failed")
		}
		return
	}

	writeJSON(w, http.StatusOK, pairResponse(pair))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := a.gateway.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, token.ErrRevocationUnavailable) {
			writeError(w, r, http.StatusServiceUnavailable, "token validation temporarily unavailable")
			return
		}
		unauthorized(w, r)
		return
	}

	writeJSON(w, http.StatusOK, pairResponse(pair))
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	// withAuth has already validated the bearer token; revoke that same one.
	raw, err := extractBearerToken(r.Header.Get(authHeader))
	if err != nil {
		unauthorized(w, r)
		return
	}
	if err := a.gateway.Logout(r.Context(), raw); err != nil {
		writeError(w, r, http.StatusInternalServerError, "logout failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type registerRequest struct {
	Subject     string   `json:"username"`
	Password    string   `json:"password"`
	Authorities []string `json:"roles"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Subject) == "" {
		writeError(w, r, http.StatusBadRequest, "subject is required")
		return
	}

	err := a.gateway.Register(r.Context(), req.Subject, req.Password, req.Authorities)
	if err != nil {
		var weak *authn.WeakPasswordError
		switch {
		case errors.As(err, &weak):
			writePolicyViolations(w, r, weak)
		case errors.Is(err, login.ErrAlreadyExists):
			writeError(w, r, http.StatusConflict, "subject already registered")
		case errors.Is(err, authn.ErrInvalidCredentials):
			writeError(w, r, http.StatusBadRequest, "subject is required")
		default:
			writeError(w, r, http.StatusInternalServerError, "registration failed")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"username": strings.TrimSpace(req.Subject)})
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	subject, ok := authn.SubjectFromContext(r.Context())
	if !ok {
		unauthorized(w, r)
		return
	}

	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	err := a.gateway.ChangePassword(r.Context(), subject, req.OldPassword, req.NewPassword)
	if err != nil {
		var weak *authn.WeakPasswordError
		switch {
		case errors.As(err, &weak):
			writePolicyViolations(w, r, weak)
		case errors.Is(err, authn.ErrInvalidCredentials):
			writeError(w, r, http.StatusBadRequest, "invalid credentials")
		default:
			writeError(w, r, http.StatusInternalServerError, "password change failed")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

type resetRequestRequest struct {
	Subject string `json:"username"`
}

// handleResetRequest always answers 202: whether the subject exists is not
// observable from the response. The reset token travels out of band.
func (a *API) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req resetRequestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := a.gateway.RequestPasswordReset(r.Context(), req.Subject); err != nil &&
		!errors.Is(err, authn.ErrInvalidCredentials) {
		writeError(w, r, http.StatusInternalServerError, "reset request failed")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"status": "accepted"})
}

type resetCompleteRequest struct {
	Subject     string `json:"username"`
	ResetToken  string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (a *API) handleResetComplete(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req resetCompleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	err := a.gateway.CompletePasswordReset(r.Context(), req.Subject, req.ResetToken, req.NewPassword)
	if err != nil {
		var weak *authn.WeakPasswordError
		switch {
		case errors.As(err, &weak):
			writePolicyViolations(w, r, weak)
		case errors.Is(err, authn.ErrInvalidCredentials):
			writeError(w, r, http.StatusBadRequest, "invalid or expired reset token")
		default:
			writeError(w, r, http.StatusInternalServerError, "password reset failed")
		}
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	id, ok := authn.IdentityFromContext(r.Context())
	if !ok {
		unauthorized(w, r)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subject":     id.Subject,
		"authorities": id.Authorities,
	})
}

func writePolicyViolations(w http.ResponseWriter, r *http.Request, weak *authn.WeakPasswordError) {
	violations := make([]map[string]string, 0, len(weak.Violations))
	for _, v := range weak.Violations {
		violations = append(violations, map[string]string{
			"code":    v.Code,
			"message": v.Message,
		})
	}
	payload := map[string]any{
		"error":      "password rejected by policy",
		"violations": violations,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, http.StatusBadRequest, payload)
}
