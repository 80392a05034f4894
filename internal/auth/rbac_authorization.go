package auth

import (
	"log/slog"
	"net/http"

	appErrors "github.com/frahmantamala/institution-management/internal"
	"github.com/frahmantamala/institution-management/internal/transport"
)

type RBACAuthorization struct {
	*transport.BaseHandler
	checker PermissionChecker
}

func NewRBACAuthorization(checker PermissionChecker, logger *slog.Logger) *RBACAuthorization {
	return &RBACAuthorization{
		BaseHandler: transport.NewBaseHandler(logger),
		checker:     checker,
	}
}

func (ra *RBACAuthorization) Check(next http.HandlerFunc, permission string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal, ok := PrincipalFromContext(r.Context())
		if !ok {
			ra.Logger.Warn("authorization check failed: principal not found in context")
			ra.WriteAppError(w, appErrors.NewUnauthorizedError("authentication required", appErrors.ErrCodeInvalidToken))
			return
		}

		hasAccess, err := ra.checker.HasPermission(r.Context(), principal.Permissions, permission)
		if err != nil {
			ra.Logger.ErrorContext(r.Context(), "authorization check failed", "error", err, "user_id", principal.UserID, "permission", permission)
			ra.WriteAppError(w, appErrors.NewInternalError("authorization check failed", err))
			return
		}

		if !hasAccess {
			ra.Logger.WarnContext(r.Context(), "access denied: insufficient permissions",
				"user_id", principal.UserID,
				"required_permission", permission,
				"user_permissions", principal.Permissions)
			ra.WriteAppError(w, appErrors.ErrUnauthorizedAccess)
			return
		}

		next.ServeHTTP(w, r)
	}
}

func (ra *RBACAuthorization) Middleware(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return ra.Check(next.ServeHTTP, permission)
	}
}
