package httptransport

import (
	gojson "encoding/json"
	"net/http"

	authmodels "eduid/internal/auth/models"
	authservice "eduid/internal/auth/service"
	"eduid/internal/transport/http/json"
	dErrors "eduid/pkg/domain-errors"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Language string `json:"language"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type codeRequest struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
	Code    string `json:"code"`
}

type passwordResetRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type profileUpdateRequest struct {
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Language string `json:"language"`
}

func decode(r *http.Request, dst any) error {
	if err := gojson.NewDecoder(r.Body).Decode(dst); err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid request body")
	}
	return nil
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	result, err := h.auth.Register(r.Context(), authservice.RegisterRequest{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
		Phone:    req.Phone,
		Language: req.Language,
	})
	if err != nil {
		WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusCreated, result)
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	result, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if req.AccessToken == "" {
		req.AccessToken = bearerToken(r)
	}
	h.auth.Logout(r.Context(), req.AccessToken, req.RefreshToken)
	json.WriteJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	pair, err := h.auth.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, pair)
}

func (h *Handler) handleSendVerificationCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	result, err := h.auth.SendVerificationCode(r.Context(), req.Email, authmodels.CodePurpose(req.Purpose))
	if err != nil {
		WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := h.auth.VerifyCode(r.Context(), req.Email, req.Code, authmodels.CodePurpose(req.Purpose)); err != nil {
		WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

func (h *Handler) handleRequestPasswordReset(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := h.auth.RequestPasswordReset(r.Context(), req.Email); err != nil {
		WriteError(w, err)
		return
	}
	// Same body whether or not the email is registered.
	json.WriteJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (h *Handler) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req passwordResetRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := h.auth.ResetPassword(r.Context(), req.Email, req.Code, req.NewPassword); err != nil {
		WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]string{"status": "password_reset"})
}

func (h *Handler) handleGetMe(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountFromContext(r.Context())
	if !ok {
		WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}
	json.WriteJSON(w, http.StatusOK, acct)
}

func (h *Handler) handleUpdateMe(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountFromContext(r.Context())
	if !ok {
		WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}
	var req profileUpdateRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	updated, err := h.auth.UpdateProfile(r.Context(), acct.ID, req.Name, req.Phone, req.Language)
	if err != nil {
		WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, updated)
}
