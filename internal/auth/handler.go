package auth

import (
	"log/slog"
	"net/http"

	appErrors "github.com/frahmantamala/institution-management/internal"
	"github.com/frahmantamala/institution-management/internal/tenant"
	"github.com/frahmantamala/institution-management/internal/transport"
	"github.com/frahmantamala/institution-management/pkg/logger"
)

type Authenticator interface {
	Authenticate(tokenString string) (*Principal, error)
}

type Handler struct {
	*transport.BaseHandler
	Service Authenticator
}

func NewHandler(svc Authenticator, lg *slog.Logger) *Handler {
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

// AuthMiddleware requires a valid bearer token. Tokens bound to a tenant are only
// accepted for requests resolved to that same tenant.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.Logger.Warn("auth middleware: missing authorization token")
			h.WriteAppError(w, appErrors.NewUnauthorizedError("missing authorization token", appErrors.ErrCodeInvalidToken))
			return
		}

		principal, err := h.Service.Authenticate(token)
		if err != nil {
			h.Logger.Warn("token validation failed", "error", err)
			h.WriteErrorFrom(w, err)
			return
		}

		if tc, ok := tenant.FromContext(r.Context()); ok && principal.TenantSchema != "" && principal.TenantSchema != tc.SchemaName {
			h.Logger.Warn("auth middleware: token issued for another tenant",
				"user_id", principal.UserID,
				"token_tenant", principal.TenantSchema,
				"request_tenant", tc.SchemaName)
			h.WriteAppError(w, appErrors.ErrUnauthorizedAccess)
			return
		}

		ctx := WithPrincipal(r.Context(), principal)
		ctx = logger.With(ctx, "admin_user_id", principal.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
