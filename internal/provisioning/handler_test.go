package provisioning_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/frahmantamala/institution-management/internal/auth"
	coreUser "github.com/frahmantamala/institution-management/internal/core/user"
	"github.com/frahmantamala/institution-management/internal/provisioning"
	"github.com/frahmantamala/institution-management/internal/tenant"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Handler", func() {
	var (
		f      *fixture
		router chi.Router
	)

	BeforeEach(func() {
		f = newFixture(nil)
		bulk := provisioning.NewBulkCoordinator(f.orchestrator, f.roles, f.auditor, 10, f.metrics, f.logger)
		h := provisioning.NewHandler(f.orchestrator, bulk, f.roles, f.logger)

		tc := f.tenant(schemaBasic, 10)
		router = chi.NewRouter()
		router.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				ctx := tenant.WithContext(r.Context(), tc)
				ctx = auth.WithPrincipal(ctx, &auth.Principal{UserID: 1, Permissions: []string{auth.PermissionAll}})
				next.ServeHTTP(w, r.WithContext(ctx))
			})
		})
		router.Post("/users/{userType}", h.CreateUser)
		router.Post("/users/{userType}/bulk", h.CreateUsersBulk)
		router.Put("/roles/defaults/{userType}", h.ChangeDefaultRole)
	})

	do := func(method, path, body string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		router.ServeHTTP(rec, req)
		return rec
	}

	It("creates a teacher and never echoes the credential", func() {
		rec := do(http.MethodPost, "/users/teacher", `{"email":"jane@x.edu","first_name":"Jane","last_name":"Doe"}`)
		Expect(rec.Code).To(Equal(http.StatusCreated))

		var body map[string]any
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body).To(HaveKeyWithValue("email", "jane@x.edu"))
		Expect(body).To(HaveKeyWithValue("external_identity_id", "kc-1"))
		Expect(rec.Body.String()).NotTo(ContainSubstring(f.idp.Creates()[0].Credential))
	})

	It("returns 409 for a duplicate email", func() {
		Expect(do(http.MethodPost, "/users/teacher", `{"email":"jane@x.edu","first_name":"Jane","last_name":"Doe"}`).Code).To(Equal(http.StatusCreated))
		rec := do(http.MethodPost, "/users/teacher", `{"email":"Jane@x.edu","first_name":"Jane","last_name":"Doe"}`)
		Expect(rec.Code).To(Equal(http.StatusConflict))
		Expect(rec.Body.String()).To(ContainSubstring("DUPLICATE_EMAIL"))
	})

	It("rejects an unknown user type in the path", func() {
		rec := do(http.MethodPost, "/users/janitor", `{"email":"jane@x.edu","first_name":"Jane","last_name":"Doe"}`)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
		Expect(rec.Body.String()).To(ContainSubstring("INVALID_USER_TYPE"))
	})

	It("rejects unknown body fields", func() {
		rec := do(http.MethodPost, "/users/teacher", `{"email":"jane@x.edu","first_name":"Jane","last_name":"Doe","password":"x"}`)
		Expect(rec.Code).To(Equal(http.StatusBadRequest))
	})

	It("reports bulk results per item with a 200", func() {
		rec := do(http.MethodPost, "/users/student/bulk", `{"users":[
			{"email":"a@x.edu","first_name":"A","last_name":"One"},
			{"email":"nope","first_name":"B","last_name":"Two"}
		]}`)
		Expect(rec.Code).To(Equal(http.StatusOK))

		var result provisioning.BulkResult
		Expect(json.Unmarshal(rec.Body.Bytes(), &result)).To(Succeed())
		Expect(result.Succeeded).To(HaveLen(1))
		Expect(result.Failed).To(HaveLen(1))
		Expect(result.Failed[0].Email).To(Equal("nope"))
	})

	It("rejects an empty bulk request", func() {
		Expect(do(http.MethodPost, "/users/student/bulk", `{"users":[]}`).Code).To(Equal(http.StatusBadRequest))
	})

	It("changes the default role", func() {
		Expect(f.db.Exec("INSERT INTO "+schemaBasic+".roles (id, name, role_type, is_system) VALUES (7, 'Head Teacher', 'teacher', 1)").Error).To(Succeed())
		rec := do(http.MethodPut, "/roles/defaults/teacher", `{"role_id":7}`)
		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring(`"default_role_id":7`))

		roleID, err := f.roles.ResolveRole(f.ctx, nil, schemaBasic, coreUser.TypeTeacher)
		Expect(err).NotTo(HaveOccurred())
		Expect(roleID).To(Equal(int64(7)))
	})

	It("returns 404 for an unknown default role", func() {
		Expect(do(http.MethodPut, "/roles/defaults/teacher", `{"role_id":99}`).Code).To(Equal(http.StatusNotFound))
	})
})
