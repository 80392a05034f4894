package user_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"

	appErrors "github.com/frahmantamala/institution-management/internal"
	"github.com/frahmantamala/institution-management/internal/auth"
	catalogDatamodel "github.com/frahmantamala/institution-management/internal/core/datamodel/catalog"
	userDatamodel "github.com/frahmantamala/institution-management/internal/core/datamodel/user"
	"github.com/frahmantamala/institution-management/internal/tenant"
	"github.com/frahmantamala/institution-management/internal/testutil"
	"github.com/frahmantamala/institution-management/internal/user"
	userPostgres "github.com/frahmantamala/institution-management/internal/user/postgres"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"
)

const schema = "tenant_abc"

type MockInstitutionRepository struct {
	inst *catalogDatamodel.Institution
}

func (m *MockInstitutionRepository) FindBySchema(_ context.Context, _ string) (*catalogDatamodel.Institution, error) {
	return m.inst, nil
}

func (m *MockInstitutionRepository) FindByID(_ context.Context, _ int64) (*catalogDatamodel.Institution, error) {
	return m.inst, nil
}

type MockDisabler struct {
	calls []string
	err   error
}

func (m *MockDisabler) DisableAccount(_ context.Context, realm, externalID string) error {
	m.calls = append(m.calls, realm+"/"+externalID)
	return m.err
}

type MockAuditor struct {
	deactivated []int64
}

func (m *MockAuditor) LogUserDeactivated(_ context.Context, _ string, _, subjectID int64) {
	m.deactivated = append(m.deactivated, subjectID)
}

var _ = Describe("User", func() {
	var (
		ctx     context.Context
		db      *gorm.DB
		repo    user.Repository
		idp     *MockDisabler
		auditor *MockAuditor
		service *user.Service
		tc      tenant.Context
		jane    *userDatamodel.User
		logger  *slog.Logger
	)

	BeforeEach(func() {
		var err error
		ctx = context.Background()
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
		db, err = testutil.NewSQLiteDB()
		Expect(err).NotTo(HaveOccurred())
		Expect(testutil.AttachTenantSchema(db, schema)).To(Succeed())

		repo = userPostgres.NewUserRepository(db)
		idp = &MockDisabler{}
		auditor = &MockAuditor{}
		subdomain := "greenwood"
		institutions := &MockInstitutionRepository{inst: &catalogDatamodel.Institution{ID: 4, SchemaName: schema, Subdomain: &subdomain}}
		service = user.NewService(repo, institutions, idp, auditor, logger)

		tc, err = tenant.New(schema, 4, tenant.StatusActive)
		Expect(err).NotTo(HaveOccurred())

		jane = &userDatamodel.User{
			Email:              "Jane@X.edu",
			ExternalIdentityID: "kc-jane",
			InstitutionID:      4,
			UserType:           "teacher",
			FirstName:          "Jane",
			LastName:           "Doe",
			IsActive:           true,
		}
		Expect(repo.Create(ctx, nil, schema, jane)).To(Succeed())
	})

	Describe("Repository", func() {
		It("finds users by email regardless of case", func() {
			found, err := repo.FindByEmail(ctx, nil, schema, "jane@x.EDU")
			Expect(err).NotTo(HaveOccurred())
			Expect(found.ID).To(Equal(jane.ID))
		})

		It("rejects a second user whose email differs only by case", func() {
			dup := *jane
			dup.ID = 0
			dup.Email = "jane@x.edu"
			dup.ExternalIdentityID = "kc-other"
			Expect(repo.Create(ctx, nil, schema, &dup)).NotTo(Succeed())
		})

		It("reports missing users", func() {
			_, err := repo.FindByID(ctx, nil, schema, 999)
			Expect(errors.Is(err, user.ErrNotFound)).To(BeTrue())
		})

		It("unions role permissions with direct grants", func() {
			Expect(db.Exec("INSERT INTO "+schema+".roles (id, name, role_type) VALUES (1, 'teacher', 'teacher')").Error).To(Succeed())
			Expect(db.Exec("INSERT INTO "+schema+".role_permissions (role_id, permission_key) VALUES (1, 'academics.view'), (1, 'attendance.view')").Error).To(Succeed())
			Expect(repo.AssignRole(ctx, nil, schema, &userDatamodel.UserRole{UserID: jane.ID, RoleID: 1})).To(Succeed())
			Expect(repo.GrantPermissions(ctx, nil, schema, []userDatamodel.UserPermission{
				{UserID: jane.ID, PermissionID: 10, PermissionKey: "attendance.view"},
				{UserID: jane.ID, PermissionID: 11, PermissionKey: "timetable.view"},
			})).To(Succeed())

			perms, err := repo.GetEffectivePermissions(ctx, schema, jane.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(perms).To(Equal([]string{"academics.view", "attendance.view", "timetable.view"}))
		})

		It("lists users filtered by type", func() {
			Expect(repo.Create(ctx, nil, schema, &userDatamodel.User{
				Email: "sam@x.edu", ExternalIdentityID: "kc-sam", InstitutionID: 4,
				UserType: "student", FirstName: "Sam", LastName: "Lee", IsActive: true,
			})).To(Succeed())

			students, err := repo.List(ctx, schema, user.ListFilter{UserType: "student"})
			Expect(err).NotTo(HaveOccurred())
			Expect(students).To(HaveLen(1))
			Expect(students[0].Email).To(Equal("sam@x.edu"))
		})
	})

	Describe("Service.GetByID", func() {
		It("maps a missing user to USER_NOT_FOUND", func() {
			_, err := service.GetByID(ctx, schema, 999)
			Expect(appErrors.HasCode(err, appErrors.ErrCodeUserNotFound)).To(BeTrue())
		})

		It("returns an empty permission list for a user without grants", func() {
			u, err := service.GetByID(ctx, schema, jane.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.Email).To(Equal("Jane@X.edu"))
			Expect(u.Permissions).To(BeEmpty())
		})
	})

	Describe("Service.Deactivate", func() {
		It("disables the account in the institution realm and locally", func() {
			u, err := service.Deactivate(ctx, tc, jane.ID, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(u.IsActive).To(BeFalse())
			Expect(idp.calls).To(ConsistOf("greenwood/kc-jane"))
			Expect(auditor.deactivated).To(ConsistOf(jane.ID))

			row, err := repo.FindByID(ctx, nil, schema, jane.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(row.IsActive).To(BeFalse())
		})

		It("keeps the local row active when the identity provider fails", func() {
			idp.err = errors.New("keycloak down")
			_, err := service.Deactivate(ctx, tc, jane.ID, 1)
			appErr, ok := appErrors.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadGateway))

			row, err := repo.FindByID(ctx, nil, schema, jane.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(row.IsActive).To(BeTrue())
		})

		It("does not call the identity provider twice", func() {
			_, err := service.Deactivate(ctx, tc, jane.ID, 1)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.Deactivate(ctx, tc, jane.ID, 1)
			Expect(err).NotTo(HaveOccurred())
			Expect(idp.calls).To(HaveLen(1))
		})
	})

	Describe("Handler", func() {
		var router chi.Router

		BeforeEach(func() {
			h := user.NewHandler(service, logger)
			router = chi.NewRouter()
			router.Use(func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					ctx := tenant.WithContext(r.Context(), tc)
					ctx = auth.WithPrincipal(ctx, &auth.Principal{UserID: jane.ID, Email: jane.Email})
					next.ServeHTTP(w, r.WithContext(ctx))
				})
			})
			router.Get("/users", h.ListUsers)
			router.Get("/users/me", h.GetMe)
			router.Get("/users/{id}", h.GetUser)
			router.Post("/users/{id}/deactivate", h.DeactivateUser)
		})

		It("serves the caller's own record", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/me", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))

			var body map[string]any
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body).To(HaveKeyWithValue("email", "Jane@X.edu"))
		})

		It("rejects a non-numeric id", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/abc", nil))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
		})

		It("returns 404 for unknown users", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users/999", nil))
			Expect(rec.Code).To(Equal(http.StatusNotFound))
		})

		It("lists users of a known type", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users?type=teacher&limit=5", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))

			var body user.ListResponse
			Expect(json.Unmarshal(rec.Body.Bytes(), &body)).To(Succeed())
			Expect(body.Users).To(HaveLen(1))
			Expect(body.Limit).To(Equal(5))
		})

		It("rejects an unknown user type filter", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users?type=janitor", nil))
			Expect(rec.Code).To(Equal(http.StatusBadRequest))
			Expect(rec.Body.String()).To(ContainSubstring(`"code":"INVALID_USER_TYPE"`))
		})

		DescribeTable("rejects malformed paging",
			func(query string) {
				rec := httptest.NewRecorder()
				router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/users?"+query, nil))
				Expect(rec.Code).To(Equal(http.StatusBadRequest))
			},
			Entry("zero limit", "limit=0"),
			Entry("negative offset", "offset=-1"),
			Entry("non-numeric limit", "limit=ten"),
			Entry("non-boolean active", "active=maybe"),
		)

		It("deactivates users", func() {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/users/1/deactivate", nil))
			Expect(rec.Code).To(Equal(http.StatusOK))
			Expect(rec.Body.String()).To(ContainSubstring(`"is_active":false`))
		})
	})
})
