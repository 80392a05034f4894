package middleware

import (
	"net/http"

	"github.com/frahmantamala/institution-management/pkg/logger"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/google/uuid"
)

const TraceHeader = "X-Trace-ID"

// RequestID accepts a caller supplied trace id or mints one, and binds it to the
// request logger and chi's request id.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		traceID := r.Header.Get(TraceHeader)
		if traceID == "" {
			traceID = r.Header.Get(chiMiddleware.RequestIDHeader)
		}
		if traceID == "" {
			traceID = uuid.NewString()
		}

		r.Header.Set(chiMiddleware.RequestIDHeader, traceID)
		ctx := logger.With(r.Context(), "traceID", traceID)
		w.Header().Set(TraceHeader, traceID)

		chiMiddleware.RequestID(next).ServeHTTP(w, r.WithContext(ctx))
	})
}
