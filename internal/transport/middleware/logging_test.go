package middleware_test

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/frahmantamala/institution-management/internal/transport/middleware"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LoggingMiddleware", func() {
	var (
		buf     *bytes.Buffer
		handler http.Handler
	)

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		lg := slog.New(slog.NewJSONHandler(buf, nil))
		handler = middleware.LoggingMiddleware(lg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":1,"email":"jane@greenwood.edu"}`))
		}))
	})

	It("masks personal data and drops credentials", func() {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/teacher",
			strings.NewReader(`{"email":"jane@greenwood.edu","first_name":"Jane","temporary_password":"Xy7!abc"}`))
		req.Header.Set("Authorization", "Bearer abc.def.ghi")
		req.Header.Set(middleware.TenantHeader, "tenant_abc")

		handler.ServeHTTP(httptest.NewRecorder(), req)

		out := buf.String()
		Expect(out).NotTo(ContainSubstring("jane@greenwood.edu"))
		Expect(out).To(ContainSubstring(`j***@greenwood.edu`))
		Expect(out).NotTo(ContainSubstring("Xy7!abc"))
		Expect(out).NotTo(ContainSubstring("abc.def.ghi"))
		Expect(out).To(ContainSubstring(`"tenant_schema":"tenant_abc"`))
		Expect(out).To(ContainSubstring(`"status_code":201`))
	})

	It("passes the request body through unchanged", func() {
		var seen string
		h := middleware.LoggingMiddleware(slog.New(slog.NewJSONHandler(buf, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b := new(bytes.Buffer)
			_, _ = b.ReadFrom(r.Body)
			seen = b.String()
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/v1/users/student", strings.NewReader(`{"email":"a@b.co"}`)))

		Expect(seen).To(Equal(`{"email":"a@b.co"}`))
	})

	It("does not log bodies for the metrics endpoint", func() {
		h := middleware.LoggingMiddleware(slog.New(slog.NewJSONHandler(buf, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("go_goroutines 12"))
		}))

		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

		Expect(buf.String()).NotTo(ContainSubstring("go_goroutines"))
	})
})
