package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/frahmantamala/institution-management/pkg/logger"
	"github.com/go-chi/chi/middleware"
)

// sensitiveFields are matched as substrings of lower-cased header and JSON keys.
var sensitiveFields = []string{
	"password",
	"credential",
	"temporary",
	"secret",
	"token",
	"authorization",
	"cookie",
	"session",
	"api_key",
}

// personalFields hold personal data of the users being provisioned; they are masked, not dropped.
var personalFields = map[string]bool{
	"email":            true,
	"first_name":       true,
	"last_name":        true,
	"admission_number": true,
}

// quietPaths are logged without bodies.
var quietPaths = []string{"/metrics", "/swagger/", "/openapi.yml"}

// maxLoggedBody bounds how much of a request or response body ends up in a log line.
const maxLoggedBody = 4096

// LoggingMiddleware logs each request and response with credentials removed and
// personal data masked. Bulk payloads over maxLoggedBody bytes are summarised.
// Fields bound to the request context (trace id) are kept.
func LoggingMiddleware(base *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lg := logger.FromOr(r.Context(), base).With(
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
			)
			if schema := r.Header.Get(TenantHeader); schema != "" {
				lg = lg.With("tenant_schema", schema)
			}
			withBodies := !isQuietPath(r.URL.Path)

			logRequest(lg, r, withBodies)

			ww := &responseWriter{ResponseWriter: w, body: &bytes.Buffer{}, capture: withBodies}
			next.ServeHTTP(ww, r)

			logResponse(r, lg, ww, time.Since(start))
		})
	}
}

// responseWriter records the status and, when asked to, the body.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	size       int
	capture    bool
	body       *bytes.Buffer
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if rw.capture && rw.body.Len() <= maxLoggedBody {
		rw.body.Write(b)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func isQuietPath(path string) bool {
	for _, p := range quietPaths {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

func logRequest(lg *slog.Logger, r *http.Request, withBody bool) {
	attrs := []any{
		"query", r.URL.RawQuery,
		"remote_addr", r.RemoteAddr,
		"user_agent", r.UserAgent(),
		"headers", filterSensitiveHeaders(r.Header),
	}
	if withBody && r.Body != nil && r.Body != http.NoBody {
		bodyBytes, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(bodyBytes))
		attrs = append(attrs, "body", filterSensitiveBody(bodyBytes))
	}
	lg.InfoContext(r.Context(), "incoming request", attrs...)
}

func logResponse(r *http.Request, lg *slog.Logger, rw *responseWriter, duration time.Duration) {
	statusCode := rw.statusCode
	if statusCode == 0 {
		statusCode = http.StatusOK
	}

	logLevel := slog.LevelInfo
	switch {
	case statusCode >= 500:
		logLevel = slog.LevelError
	case statusCode >= 400:
		logLevel = slog.LevelWarn
	}

	attrs := []any{
		"status_code", statusCode,
		"duration_ms", duration.Milliseconds(),
		"response_size", rw.size,
	}
	if rw.capture {
		attrs = append(attrs, "body", filterSensitiveBody(rw.body.Bytes()))
	}
	lg.Log(r.Context(), logLevel, "response", attrs...)
}

func isSensitive(name string) bool {
	lower := strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(lower, field) {
			return true
		}
	}
	return false
}

func filterSensitiveHeaders(headers http.Header) map[string]string {
	filtered := make(map[string]string, len(headers))
	for name, values := range headers {
		if isSensitive(name) {
			filtered[name] = "[FILTERED]"
			continue
		}
		filtered[name] = strings.Join(values, ", ")
	}
	return filtered
}

func filterSensitiveBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if len(body) > maxLoggedBody {
		return fmt.Sprintf("[TRUNCATED - %d bytes]", len(body))
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		if isSensitive(string(body)) {
			return "[FILTERED - Contains sensitive data]"
		}
		return string(body)
	}

	out, err := json.Marshal(filterSensitiveJSON(data))
	if err != nil {
		return "[ERROR - Failed to marshal filtered JSON]"
	}
	return string(out)
}

func filterSensitiveJSON(data any) any {
	switch v := data.(type) {
	case map[string]any:
		filtered := make(map[string]any, len(v))
		for key, value := range v {
			switch {
			case isSensitive(key):
				filtered[key] = "[FILTERED]"
			case personalFields[strings.ToLower(key)]:
				filtered[key] = maskPersonal(value)
			default:
				filtered[key] = filterSensitiveJSON(value)
			}
		}
		return filtered
	case []any:
		filtered := make([]any, len(v))
		for i, item := range v {
			filtered[i] = filterSensitiveJSON(item)
		}
		return filtered
	default:
		return v
	}
}

// maskPersonal keeps the first character and, for emails, the domain:
// "jane@greenwood.edu" becomes "j***@greenwood.edu".
func maskPersonal(value any) any {
	s, ok := value.(string)
	if !ok || s == "" {
		return value
	}
	if at := strings.LastIndex(s, "@"); at > 0 {
		return s[:1] + "***" + s[at:]
	}
	return s[:1] + "***"
}
