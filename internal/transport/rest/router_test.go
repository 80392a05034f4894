package rest_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	"github.com/frahmantamala/institution-management/internal/auth"
	catalogDatamodel "github.com/frahmantamala/institution-management/internal/core/datamodel/catalog"
	roleDatamodel "github.com/frahmantamala/institution-management/internal/core/datamodel/role"
	coreUser "github.com/frahmantamala/institution-management/internal/core/user"
	"github.com/frahmantamala/institution-management/internal/metrics"
	"github.com/frahmantamala/institution-management/internal/provisioning"
	"github.com/frahmantamala/institution-management/internal/tenant"
	"github.com/frahmantamala/institution-management/internal/transport/middleware"
	"github.com/frahmantamala/institution-management/internal/transport/rest"
	"github.com/frahmantamala/institution-management/internal/user"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
)

const jwtSecret = "router-test-secret-that-is-long-enough"

type stubInstitutions struct{}

func (stubInstitutions) FindBySchema(_ context.Context, schema string) (*catalogDatamodel.Institution, error) {
	if schema != "tenant_abc" {
		return nil, nil
	}
	return &catalogDatamodel.Institution{ID: 11, SchemaName: schema, Status: "active"}, nil
}

func (stubInstitutions) FindByID(context.Context, int64) (*catalogDatamodel.Institution, error) {
	return nil, nil
}

type stubProvisioner struct {
	calls []coreUser.UserType
}

func (s *stubProvisioner) Provision(_ context.Context, tc tenant.Context, _ int64, userType coreUser.UserType, data provisioning.NewUserData) (*provisioning.ProvisionedUser, error) {
	s.calls = append(s.calls, userType)
	return &provisioning.ProvisionedUser{ID: 1, Email: data.Email, UserType: string(userType)}, nil
}

type stubBulk struct{}

func (stubBulk) ProvisionMany(context.Context, tenant.Context, int64, coreUser.UserType, []provisioning.NewUserData) (*provisioning.BulkResult, error) {
	return &provisioning.BulkResult{}, nil
}

type stubRoles struct{}

func (stubRoles) ChangeDefaultRole(_ context.Context, _ string, userType coreUser.UserType, roleID, _ int64) (*roleDatamodel.TenantRoleConfig, error) {
	return &roleDatamodel.TenantRoleConfig{UserType: string(userType), DefaultRoleID: roleID}, nil
}

type stubUsers struct{}

func (stubUsers) GetByID(_ context.Context, _ string, id int64) (*user.User, error) {
	return &user.User{ID: id, Email: "jane@greenwood.edu"}, nil
}

func (stubUsers) List(context.Context, string, user.ListFilter) ([]*user.User, error) {
	return []*user.User{}, nil
}

func (stubUsers) Deactivate(context.Context, tenant.Context, int64, int64) (*user.User, error) {
	return &user.User{}, nil
}

var _ = Describe("RegisterAllRoutes", func() {
	var (
		router      *chi.Mux
		provisioner *stubProvisioner
		tokens      *auth.JWTTokenGenerator
		dbDown      bool
	)

	BeforeEach(func() {
		lg := slog.New(slog.NewTextHandler(io.Discard, nil))
		tokens = auth.NewJWTTokenGenerator(jwtSecret, "institution-management", time.Minute)
		provisioner = &stubProvisioner{}
		dbDown = false

		doc, err := middleware.LoadOpenAPIDocument(context.Background(), "../../../api/openapi.yml")
		Expect(err).NotTo(HaveOccurred())
		validator, err := middleware.NewOpenAPIValidator(doc, "/api/v1", lg)
		Expect(err).NotTo(HaveOccurred())

		registry := prometheus.NewRegistry()
		health := rest.NewHealthHandler(nil).WithCheck("postgres", func(context.Context) error {
			if dbDown {
				return errors.New("connection refused")
			}
			return nil
		})

		router = chi.NewRouter()
		rest.RegisterAllRoutes(router, rest.Handlers{
			Health:       health,
			Auth:         auth.NewHandler(auth.NewService(tokens), lg),
			RBAC:         auth.NewRBACAuthorization(auth.NewPermissionChecker(), lg),
			User:         user.NewHandler(stubUsers{}, lg),
			Provisioning: provisioning.NewHandler(provisioner, stubBulk{}, stubRoles{}, lg),
		}, rest.Options{
			Institutions: stubInstitutions{},
			Validator:    validator,
			Metrics:      metrics.NewMetrics(registry),
			Gatherer:     registry,
			Logger:       lg,
		})
	})

	token := func(permissions ...string) string {
		t, err := tokens.GenerateAccessToken(auth.Principal{
			UserID:       7,
			Email:        "admin@greenwood.edu",
			TenantSchema: "tenant_abc",
			Permissions:  permissions,
		})
		Expect(err).NotTo(HaveOccurred())
		return t
	}

	do := func(method, path, body, bearer string) *httptest.ResponseRecorder {
		var rdr io.Reader
		if body != "" {
			rdr = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, rdr)
		req.Header.Set(middleware.TenantHeader, "tenant_abc")
		req.Header.Set("Content-Type", "application/json")
		if bearer != "" {
			req.Header.Set("Authorization", "Bearer "+bearer)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		return rec
	}

	It("serves ping and health without a tenant or token", func() {
		Expect(do(http.MethodGet, "/api/v1/ping", "", "").Code).To(Equal(http.StatusOK))

		rec := do(http.MethodGet, "/api/v1/health", "", "")
		Expect(rec.Code).To(Equal(http.StatusOK))

		var body rest.HealthResponse
		Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
		Expect(body.Components).To(HaveKey("postgres"))
	})

	It("reports unhealthy dependencies with 503", func() {
		dbDown = true

		rec := do(http.MethodGet, "/api/v1/health", "", "")

		Expect(rec.Code).To(Equal(http.StatusServiceUnavailable))
	})

	It("requires a bearer token on tenant routes", func() {
		rec := do(http.MethodPost, "/api/v1/users/teacher", `{"email":"a@b.co"}`, "")

		Expect(rec.Code).To(Equal(http.StatusUnauthorized))
		Expect(provisioner.calls).To(BeEmpty())
	})

	It("requires users.create to provision", func() {
		rec := do(http.MethodPost, "/api/v1/users/teacher", `{"email":"a@b.co","first_name":"A","last_name":"B"}`, token(auth.PermissionUsersView))

		Expect(rec.Code).To(Equal(http.StatusForbidden))
		Expect(provisioner.calls).To(BeEmpty())
	})

	It("provisions with users.create", func() {
		rec := do(http.MethodPost, "/api/v1/users/teacher", `{"email":"a@b.co","first_name":"A","last_name":"B"}`, token(auth.PermissionUsersCreate))

		Expect(rec.Code).To(Equal(http.StatusCreated))
		Expect(provisioner.calls).To(Equal([]coreUser.UserType{coreUser.TypeTeacher}))
	})

	It("routes numeric ids to the user lookup", func() {
		rec := do(http.MethodGet, "/api/v1/users/42", "", token(auth.PermissionUsersView))

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("jane@greenwood.edu"))
	})

	It("rejects tokens minted for another tenant", func() {
		t, err := tokens.GenerateAccessToken(auth.Principal{UserID: 7, TenantSchema: "tenant_other", Permissions: []string{auth.PermissionAll}})
		Expect(err).NotTo(HaveOccurred())

		rec := do(http.MethodGet, "/api/v1/users", "", t)

		Expect(rec.Code).To(Equal(http.StatusForbidden))
	})

	It("exposes prometheus metrics", func() {
		do(http.MethodGet, "/api/v1/ping", "", "")

		req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		Expect(rec.Code).To(Equal(http.StatusOK))
		Expect(rec.Body.String()).To(ContainSubstring("http_requests_total"))
	})
})
