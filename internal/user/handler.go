package user

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	appErrors "github.com/frahmantamala/institution-management/internal"
	"github.com/frahmantamala/institution-management/internal/auth"
	"github.com/frahmantamala/institution-management/internal/tenant"
	"github.com/frahmantamala/institution-management/internal/transport"
	"github.com/go-chi/chi"
)

type ServiceAPI interface {
	GetByID(ctx context.Context, schema string, id int64) (*User, error)
	List(ctx context.Context, schema string, filter ListFilter) ([]*User, error)
	Deactivate(ctx context.Context, tc tenant.Context, id, actorID int64) (*User, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(service ServiceAPI, lg *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     service,
	}
}

func (h *Handler) requestScope(w http.ResponseWriter, r *http.Request) (tenant.Context, *auth.Principal, bool) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		h.WriteAppError(w, appErrors.NewValidationError("tenant not resolved", appErrors.ErrCodeInvalidSchema))
		return tenant.Context{}, nil, false
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, appErrors.NewUnauthorizedError("unauthorized", appErrors.ErrCodeInvalidToken))
		return tenant.Context{}, nil, false
	}
	return tc, principal, true
}

func (h *Handler) GetMe(w http.ResponseWriter, r *http.Request) {
	tc, principal, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	u, err := h.Service.GetByID(r.Context(), tc.SchemaName, principal.UserID)
	if err != nil {
		h.Logger.Error("GetMe: service error", "error", err, "user_id", principal.UserID)
		h.WriteErrorFrom(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	tc, _, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.WriteAppError(w, appErrors.NewValidationFieldError("id", "invalid user ID", appErrors.ErrCodeValidationFailed))
		return
	}

	u, err := h.Service.GetByID(r.Context(), tc.SchemaName, id)
	if err != nil {
		h.Logger.Error("GetUser: service error", "error", err, "user_id", id)
		h.WriteErrorFrom(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, u)
}

func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	tc, _, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	filter := ListFilter{Limit: DefaultListLimit, UserType: query.Get("type")}
	if limitStr := query.Get("limit"); limitStr != "" {
		l, err := strconv.Atoi(limitStr)
		if err != nil {
			h.WriteAppError(w, appErrors.NewValidationFieldError("limit", "limit must be an integer", appErrors.ErrCodeValidationFailed))
			return
		}
		filter.Limit = min(l, MaxListLimit)
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		o, err := strconv.Atoi(offsetStr)
		if err != nil {
			h.WriteAppError(w, appErrors.NewValidationFieldError("offset", "offset must be an integer", appErrors.ErrCodeValidationFailed))
			return
		}
		filter.Offset = o
	}
	if activeStr := query.Get("active"); activeStr != "" {
		a, err := strconv.ParseBool(activeStr)
		if err != nil {
			h.WriteAppError(w, appErrors.NewValidationFieldError("active", "active must be a boolean", appErrors.ErrCodeValidationFailed))
			return
		}
		filter.Active = &a
	}
	if appErr := filter.Validate(); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}

	users, err := h.Service.List(r.Context(), tc.SchemaName, filter)
	if err != nil {
		h.Logger.Error("ListUsers: service error", "error", err)
		h.WriteErrorFrom(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, ListResponse{Users: users, Limit: filter.Limit, Offset: filter.Offset})
}

func (h *Handler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	tc, principal, ok := h.requestScope(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		h.WriteAppError(w, appErrors.NewValidationFieldError("id", "invalid user ID", appErrors.ErrCodeValidationFailed))
		return
	}

	u, err := h.Service.Deactivate(r.Context(), tc, id, principal.UserID)
	if err != nil {
		h.Logger.Error("DeactivateUser: service error", "error", err, "user_id", id)
		h.WriteErrorFrom(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, DeactivateResponse{ID: u.ID, IsActive: u.IsActive})
}
