package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	appErrors "github.com/frahmantamala/institution-management/internal"
	"github.com/frahmantamala/institution-management/internal/catalog"
	"github.com/frahmantamala/institution-management/internal/tenant"
	"github.com/frahmantamala/institution-management/internal/transport"
	"github.com/frahmantamala/institution-management/pkg/logger"
)

const TenantHeader = "X-Tenant-Schema"

// TenantResolver binds the request to the institution named by X-Tenant-Schema.
// The schema name is validated before it is used anywhere.
func TenantResolver(institutions catalog.InstitutionRepository, lg *slog.Logger) func(http.Handler) http.Handler {
	h := transport.NewBaseHandler(lg)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			schema := strings.TrimSpace(r.Header.Get(TenantHeader))
			if schema == "" {
				h.WriteAppError(w, appErrors.NewValidationFieldError("X-Tenant-Schema", "tenant header is required", appErrors.ErrCodeInvalidSchema))
				return
			}
			if err := tenant.ValidateSchemaName(schema); err != nil {
				h.WriteErrorFrom(w, err)
				return
			}

			inst, err := institutions.FindBySchema(r.Context(), schema)
			if err != nil {
				lg.Error("tenant lookup failed", "tenant_schema", schema, "error", err)
				h.WriteAppError(w, appErrors.NewInternalError("failed to resolve tenant", err))
				return
			}
			if inst == nil {
				h.WriteAppError(w, appErrors.ErrInstitutionNotFound)
				return
			}

			tc, err := tenant.New(inst.SchemaName, inst.ID, tenant.Status(inst.Status))
			if err != nil {
				h.WriteErrorFrom(w, err)
				return
			}

			ctx := tenant.WithContext(r.Context(), tc)
			ctx = logger.With(ctx, "tenant_schema", tc.SchemaName)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
