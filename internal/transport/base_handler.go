package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	appErrors "github.com/frahmantamala/institution-management/internal"
	"github.com/frahmantamala/institution-management/pkg/logger"
)

// BaseHandler provides common functionality for HTTP handlers
type BaseHandler struct {
	Logger *slog.Logger
}

// NewBaseHandler creates a base handler with logger
func NewBaseHandler(lg *slog.Logger) *BaseHandler {
	if lg == nil {
		lg = logger.LoggerWrapper()
	}
	return &BaseHandler{Logger: lg}
}

// WriteJSON writes a JSON response
func (h *BaseHandler) WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.Logger.Error("failed to encode JSON response", "error", err)
	}
}

// WriteAppError writes the AppError envelope with the error's own status code.
func (h *BaseHandler) WriteAppError(w http.ResponseWriter, appErr *appErrors.AppError) {
	status, body := appErr.ToHTTPResponse()
	if !appErr.IsClientError() {
		h.Logger.Error("http error", "status", status, "code", appErr.Code, "error", appErr.Error())
	}
	h.WriteJSON(w, status, body)
}

// WriteErrorFrom classifies any error; unknown errors become a 500 without leaking details.
func (h *BaseHandler) WriteErrorFrom(w http.ResponseWriter, err error) {
	if appErr, ok := appErrors.IsAppError(err); ok {
		h.WriteAppError(w, appErr)
		return
	}
	h.WriteAppError(w, appErrors.NewInternalError("internal server error", err))
}

// DecodeJSON decodes the request body, rejecting unknown fields.
func (h *BaseHandler) DecodeJSON(r *http.Request, dst interface{}) *appErrors.AppError {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return appErrors.NewValidationError("invalid request body: "+err.Error(), appErrors.ErrCodeValidationFailed)
	}
	return nil
}

// ExtractTokenFromHeader extracts Bearer token from Authorization header
func (h *BaseHandler) ExtractTokenFromHeader(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	if len(authHeader) < 7 || !strings.EqualFold(authHeader[:7], "Bearer ") {
		return ""
	}

	return strings.TrimSpace(authHeader[7:])
}
