package provisioning

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	appErrors "github.com/frahmantamala/institution-management/internal"
	"github.com/frahmantamala/institution-management/internal/auth"
	roleDatamodel "github.com/frahmantamala/institution-management/internal/core/datamodel/role"
	coreUser "github.com/frahmantamala/institution-management/internal/core/user"
	"github.com/frahmantamala/institution-management/internal/tenant"
	"github.com/frahmantamala/institution-management/internal/transport"
	"github.com/go-chi/chi"
)

// MaxBulkItems caps a single bulk request.
const MaxBulkItems = 500

type BulkProvisioner interface {
	ProvisionMany(ctx context.Context, tc tenant.Context, adminUserID int64, userType coreUser.UserType, items []NewUserData) (*BulkResult, error)
}

type DefaultRoleChanger interface {
	ChangeDefaultRole(ctx context.Context, schema string, userType coreUser.UserType, roleID, changedBy int64) (*roleDatamodel.TenantRoleConfig, error)
}

type Handler struct {
	*transport.BaseHandler
	Provisioner Provisioner
	Bulk        BulkProvisioner
	Roles       DefaultRoleChanger
}

func NewHandler(provisioner Provisioner, bulk BulkProvisioner, roles DefaultRoleChanger, lg *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Provisioner: provisioner,
		Bulk:        bulk,
		Roles:       roles,
	}
}

func (h *Handler) scope(w http.ResponseWriter, r *http.Request) (tenant.Context, *auth.Principal, coreUser.UserType, bool) {
	tc, ok := tenant.FromContext(r.Context())
	if !ok {
		h.WriteAppError(w, appErrors.NewValidationError("tenant not resolved", appErrors.ErrCodeInvalidSchema))
		return tenant.Context{}, nil, "", false
	}
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, appErrors.NewUnauthorizedError("unauthorized", appErrors.ErrCodeInvalidToken))
		return tenant.Context{}, nil, "", false
	}
	raw := chi.URLParam(r, "userType")
	userType, ok := coreUser.ParseUserType(raw)
	if !ok {
		h.WriteAppError(w, appErrors.NewValidationFieldError("user_type", fmt.Sprintf("unknown user type %q", raw), appErrors.ErrCodeInvalidUserType))
		return tenant.Context{}, nil, "", false
	}
	return tc, principal, userType, true
}

func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	tc, principal, userType, ok := h.scope(w, r)
	if !ok {
		return
	}

	var data NewUserData
	if appErr := h.DecodeJSON(r, &data); appErr != nil {
		h.Logger.Error("CreateUser: invalid request body", "error", appErr)
		h.WriteAppError(w, appErr)
		return
	}

	created, err := h.Provisioner.Provision(r.Context(), tc, principal.UserID, userType, data)
	if err != nil {
		h.Logger.Error("CreateUser: provisioning failed",
			"error", err,
			"tenant_schema", tc.SchemaName,
			"user_type", string(userType))
		h.WriteErrorFrom(w, err)
		return
	}

	h.Logger.Info("CreateUser: user provisioned",
		"user_id", created.ID,
		"tenant_schema", tc.SchemaName,
		"user_type", created.UserType)

	h.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) CreateUsersBulk(w http.ResponseWriter, r *http.Request) {
	tc, principal, userType, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req BulkRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}
	if len(req.Users) == 0 {
		h.WriteAppError(w, appErrors.NewValidationFieldError("users", "users must not be empty", appErrors.ErrCodeValidationFailed))
		return
	}
	if len(req.Users) > MaxBulkItems {
		h.WriteAppError(w, appErrors.NewValidationFieldError("users", fmt.Sprintf("at most %d users per request", MaxBulkItems), appErrors.ErrCodeValidationFailed))
		return
	}

	result, err := h.Bulk.ProvisionMany(r.Context(), tc, principal.UserID, userType, req.Users)
	if err != nil {
		h.Logger.Error("CreateUsersBulk: bulk provisioning failed", "error", err, "tenant_schema", tc.SchemaName)
		h.WriteErrorFrom(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, result)
}

func (h *Handler) ChangeDefaultRole(w http.ResponseWriter, r *http.Request) {
	tc, principal, userType, ok := h.scope(w, r)
	if !ok {
		return
	}

	var req ChangeDefaultRoleRequest
	if appErr := h.DecodeJSON(r, &req); appErr != nil {
		h.WriteAppError(w, appErr)
		return
	}
	if req.RoleID <= 0 {
		h.WriteAppError(w, appErrors.NewValidationFieldError("role_id", "role_id is required", appErrors.ErrCodeValidationFailed))
		return
	}

	cfg, err := h.Roles.ChangeDefaultRole(r.Context(), tc.SchemaName, userType, req.RoleID, principal.UserID)
	if err != nil {
		h.Logger.Error("ChangeDefaultRole: service error", "error", err, "role_id", req.RoleID)
		h.WriteErrorFrom(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, DefaultRoleResponse{
		UserType:       cfg.UserType,
		DefaultRoleID:  cfg.DefaultRoleID,
		PreviousRoleID: cfg.PreviousRoleID,
		IsSystemRole:   cfg.IsSystemRole,
	})
}
