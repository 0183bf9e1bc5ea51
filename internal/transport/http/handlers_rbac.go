package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	authmodels "eduid/internal/auth/models"
	"eduid/internal/transport/http/json"
	dErrors "eduid/pkg/domain-errors"
)

type applyRequest struct {
	Role   string `json:"role"`
	Reason string `json:"reason"`
}

type reviewRequest struct {
	Approve bool   `json:"approve"`
	Comment string `json:"comment"`
}

func applicationID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "applicationID"))
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid application id")
	}
	return id, nil
}

func (h *Handler) handleApply(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountFromContext(r.Context())
	if !ok {
		WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}
	var req applyRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	app, err := h.roles.Apply(r.Context(), acct.ID, authmodels.Role(req.Role), req.Reason)
	if err != nil {
		WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusCreated, app)
}

func (h *Handler) handleListOwn(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountFromContext(r.Context())
	if !ok {
		WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}
	apps, err := h.roles.ListForUser(r.Context(), acct.ID)
	if err != nil {
		WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]any{"applications": apps})
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountFromContext(r.Context())
	if !ok {
		WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}
	apps, err := h.roles.ListPending(r.Context(), acct.ID)
	if err != nil {
		WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]any{"applications": apps})
}

func (h *Handler) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountFromContext(r.Context())
	if !ok {
		WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}
	id, err := applicationID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	app, err := h.roles.GetDetail(r.Context(), id, acct.ID)
	if err != nil {
		WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) handleCancelApplication(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountFromContext(r.Context())
	if !ok {
		WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}
	id, err := applicationID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	if err := h.roles.Cancel(r.Context(), id, acct.ID); err != nil {
		WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (h *Handler) handleReviewApplication(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountFromContext(r.Context())
	if !ok {
		WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}
	id, err := applicationID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	var req reviewRequest
	if err := decode(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	app, err := h.roles.Review(r.Context(), id, acct.ID, req.Approve, req.Comment)
	if err != nil {
		WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, app)
}

func (h *Handler) handleApplicationHistory(w http.ResponseWriter, r *http.Request) {
	acct, ok := accountFromContext(r.Context())
	if !ok {
		WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "missing bearer token"))
		return
	}
	id, err := applicationID(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	entries, err := h.roles.GetHistory(r.Context(), id, acct.ID)
	if err != nil {
		WriteError(w, err)
		return
	}
	json.WriteJSON(w, http.StatusOK, map[string]any{"history": entries})
}
