package provisioning_test

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/frahmantamala/institution-management/internal/cache/memory"
	catalogPostgres "github.com/frahmantamala/institution-management/internal/catalog/postgres"
	"github.com/frahmantamala/institution-management/internal/metrics"
	"github.com/frahmantamala/institution-management/internal/planscope"
	"github.com/frahmantamala/institution-management/internal/provisioning"
	"github.com/frahmantamala/institution-management/internal/role"
	rolePostgres "github.com/frahmantamala/institution-management/internal/role/postgres"
	"github.com/frahmantamala/institution-management/internal/tenant"
	"github.com/frahmantamala/institution-management/internal/testutil"
	"github.com/frahmantamala/institution-management/internal/user"
	userPostgres "github.com/frahmantamala/institution-management/internal/user/postgres"
	"github.com/jmoiron/sqlx"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	schemaBasic  = "tenant_abc"
	schemaFull   = "tenant_full"
	schemaEmpty  = "tenant_empty"
	schemaNoPlan = "tenant_noplan"
)

type fixture struct {
	ctx          context.Context
	db           *gorm.DB
	idp          *FakeIdentityProvider
	auditor      *FakeAuditor
	users        user.Repository
	roles        *role.Resolver
	metrics      *metrics.Metrics
	orchestrator *provisioning.Orchestrator
	logger       *slog.Logger
}

func newFixture(wrapUsers func(user.Repository) user.Repository) *fixture {
	f := &fixture{
		ctx:     context.Background(),
		idp:     &FakeIdentityProvider{},
		auditor: &FakeAuditor{},
		metrics: metrics.NewMetrics(prometheus.NewRegistry()),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	var err error
	f.db, err = testutil.NewSQLiteDB()
	Expect(err).NotTo(HaveOccurred())
	Expect(testutil.CreateCatalogTables(f.db)).To(Succeed())
	for _, s := range []string{schemaBasic, schemaFull, schemaEmpty, schemaNoPlan} {
		Expect(testutil.AttachTenantSchema(f.db, s)).To(Succeed())
	}

	sqlDB, err := f.db.DB()
	Expect(err).NotTo(HaveOccurred())
	catalogDB := sqlx.NewDb(sqlDB, "sqlite3")
	catalogDB.MustExec(`INSERT INTO plans (id, name) VALUES (1, 'basic'), (2, 'full'), (3, 'empty')`)
	catalogDB.MustExec(`INSERT INTO permissions (id, key, description) VALUES
		(1, 'academics.view', ''),
		(2, 'attendance.view', ''),
		(3, 'timetable.view', ''),
		(4, 'communication.view', ''),
		(5, 'users.create', '')`)
	catalogDB.MustExec(`INSERT INTO plan_permissions (plan_id, permission_id) VALUES
		(1, 1), (1, 2),
		(2, 1), (2, 2), (2, 3), (2, 4), (2, 5)`)
	catalogDB.MustExec(`INSERT INTO institutions (id, name, plan_id, subdomain, slug, schema_name, status) VALUES
		(10, 'Greenwood High', 1, 'greenwood', 'greenwood-high', 'tenant_abc', 'active'),
		(11, 'Full Academy', 2, NULL, 'full-academy', 'tenant_full', 'active'),
		(12, 'Empty School', 3, NULL, NULL, 'tenant_empty', 'active'),
		(13, 'Planless College', NULL, NULL, NULL, 'tenant_noplan', 'active')`)

	f.users = userPostgres.NewUserRepository(f.db)
	if wrapUsers != nil {
		f.users = wrapUsers(f.users)
	}
	f.roles = role.NewResolver(f.db, rolePostgres.NewRoleRepository(f.db), f.logger)

	f.orchestrator = provisioning.NewOrchestrator(provisioning.Dependencies{
		DB:           f.db,
		Institutions: catalogPostgres.NewInstitutionRepository(catalogDB),
		Permissions:  catalogPostgres.NewPermissionRepository(catalogDB),
		Scopes:       planscope.NewResolver(catalogPostgres.NewPlanRepository(catalogDB), memory.New(time.Minute), time.Minute, f.logger),
		Roles:        f.roles,
		Users:        f.users,
		Identity:     f.idp,
		Audit:        f.auditor,
		Metrics:      f.metrics,
		Logger:       f.logger,
	})
	return f
}

func (f *fixture) tenant(schema string, institutionID int64) tenant.Context {
	tc, err := tenant.New(schema, institutionID, tenant.StatusActive)
	Expect(err).NotTo(HaveOccurred())
	return tc
}

func (f *fixture) count(schema, table string) int64 {
	var n int64
	Expect(f.db.Table(tenant.Table(schema, table)).Count(&n).Error).To(Succeed())
	return n
}

func (f *fixture) grantedKeys(schema string, userID int64) []string {
	var keys []string
	Expect(f.db.Table(tenant.Table(schema, "user_permissions")).
		Where("user_id = ?", userID).
		Order("permission_key").
		Pluck("permission_key", &keys).Error).To(Succeed())
	return keys
}

func (f *fixture) emails(schema string) []string {
	var emails []string
	Expect(f.db.Table(tenant.Table(schema, "users")).Order("id").Pluck("email", &emails).Error).To(Succeed())
	return emails
}

func newFixtureLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
