package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	appErrors "github.com/frahmantamala/institution-management/internal"
	"github.com/frahmantamala/institution-management/internal/transport"
)

// RecoveryMiddleware turns a panic into a 500 with the standard error envelope.
func RecoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	h := transport.NewBaseHandler(logger)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("panic recovered",
						"error", rec,
						"method", r.Method,
						"url", r.URL.String(),
						"stack", string(debug.Stack()))

					h.WriteAppError(w, appErrors.NewInternalError("internal server error", nil))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
