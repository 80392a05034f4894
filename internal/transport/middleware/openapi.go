package middleware

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	appErrors "github.com/frahmantamala/institution-management/internal"
	"github.com/frahmantamala/institution-management/internal/transport"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers"
	"github.com/getkin/kin-openapi/routers/legacy"
)

// OpenAPIValidator checks requests against the API document before they reach a handler.
type OpenAPIValidator struct {
	*transport.BaseHandler
	router   routers.Router
	basePath string
}

// LoadOpenAPIDocument loads and validates the document at path.
func LoadOpenAPIDocument(ctx context.Context, path string) (*openapi3.T, error) {
	loader := openapi3.NewLoader()
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load OpenAPI spec: %w", err)
	}
	if err := doc.Validate(ctx); err != nil {
		return nil, fmt.Errorf("invalid OpenAPI spec: %w", err)
	}
	return doc, nil
}

// NewOpenAPIValidator strips basePath (for example "/api/v1") from request paths
// before matching them against the document. The document's servers are ignored.
func NewOpenAPIValidator(doc *openapi3.T, basePath string, lg *slog.Logger) (*OpenAPIValidator, error) {
	doc.Servers = nil
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("build OpenAPI router: %w", err)
	}
	return &OpenAPIValidator{
		BaseHandler: transport.NewBaseHandler(lg),
		router:      router,
		basePath:    strings.TrimSuffix(basePath, "/"),
	}, nil
}

// Middleware rejects requests that violate the document with a 400. Requests the
// document does not describe pass through untouched.
func (v *OpenAPIValidator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, v.basePath+"/") {
			next.ServeHTTP(w, r)
			return
		}

		routed := r.Clone(r.Context())
		routed.URL.Path = strings.TrimPrefix(r.URL.Path, v.basePath)
		routed.URL.RawPath = ""

		route, pathParams, err := v.router.FindRoute(routed)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}

		var body []byte
		if r.Body != nil && r.Body != http.NoBody {
			body, err = io.ReadAll(r.Body)
			if err != nil {
				v.WriteAppError(w, appErrors.NewValidationError("unreadable request body", appErrors.ErrCodeValidationFailed).WithCause(err))
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
		}

		routed.Body = io.NopCloser(bytes.NewReader(body))

		input := &openapi3filter.RequestValidationInput{
			Request:    routed,
			PathParams: pathParams,
			Route:      route,
			Options: &openapi3filter.Options{
				AuthenticationFunc: openapi3filter.NoopAuthenticationFunc,
			},
		}
		if err := openapi3filter.ValidateRequest(r.Context(), input); err != nil {
			v.Logger.Warn("request rejected by OpenAPI validation",
				"method", r.Method,
				"path", r.URL.Path,
				"error", err)
			v.WriteAppError(w, appErrors.NewValidationError(validationMessage(err), appErrors.ErrCodeValidationFailed).WithCause(err))
			return
		}

		next.ServeHTTP(w, r)
	})
}

func validationMessage(err error) string {
	var reqErr *openapi3filter.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.Parameter != nil {
			return fmt.Sprintf("invalid parameter %q: %s", reqErr.Parameter.Name, reqErr.Reason)
		}
		if reqErr.Err != nil {
			return "invalid request body: " + reqErr.Err.Error()
		}
		return reqErr.Error()
	}
	return err.Error()
}
