package cmd

import (
	"fmt"
	"log"
	"os"

	catalogPostgres "github.com/frahmantamala/institution-management/internal/catalog/postgres"
	coreUser "github.com/frahmantamala/institution-management/internal/core/user"
	"github.com/frahmantamala/institution-management/internal/planscope"
	"github.com/frahmantamala/institution-management/internal/tenant"
	"github.com/frahmantamala/institution-management/pkg/logger"
	"github.com/jmoiron/sqlx"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const demoSchema = "tenant_greenwood"

var seedPermissions = []struct {
	Key  string
	Desc string
}{
	{"academics.view", "View grades and coursework"},
	{"academics.manage", "Manage grades and coursework"},
	{"attendance.view", "View attendance records"},
	{"attendance.manage", "Record attendance"},
	{"timetable.view", "View timetables"},
	{"communication.view", "Read announcements and messages"},
	{"finance.view", "View fees and invoices"},
}

var seedPlans = []struct {
	Name string
	Keys []string
}{
	{"basic", []string{"academics.view", "attendance.view", "communication.view"}},
	{"standard", []string{"academics.view", "attendance.view", "attendance.manage", "timetable.view", "communication.view"}},
	{"premium", []string{"academics.view", "academics.manage", "attendance.view", "attendance.manage", "timetable.view", "communication.view", "finance.view"}},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the catalog and a demo institution",
	Long: `Seed the permission catalog, subscription plans and the Greenwood Academy demo institution.
Run "migrate" and "migrate --tenant ` + demoSchema + `" first.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		defer sqlDB.Close()

		db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to open gorm session: %v", err)
		}

		// Servers sharing a redis cache keep serving a plan's old scope until it is dropped.
		lg := logger.Configure(os.Stderr, cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)
		scopeCache, redisCache := newCache(cfg.Cache, lg)
		if redisCache != nil {
			defer redisCache.Close()
		}
		scopes := planscope.NewResolver(catalogPostgres.NewPlanRepository(sqlx.NewDb(sqlDB, "pgx")), scopeCache, cfg.Cache.GetTTL(), lg)

		if clearData {
			clearDemoData(db)
		}

		for _, p := range seedPermissions {
			if err := db.Exec("INSERT INTO permissions (key, description, created_at) VALUES (?, ?, now()) ON CONFLICT (key) DO NOTHING", p.Key, p.Desc).Error; err != nil {
				log.Fatalf("failed to insert permission %s: %v", p.Key, err)
			}
		}
		fmt.Println("Seeded permission catalog")

		planIDs := map[string]int64{}
		for _, p := range seedPlans {
			if err := db.Exec("INSERT INTO plans (name, created_at) VALUES (?, now()) ON CONFLICT (name) DO NOTHING", p.Name).Error; err != nil {
				log.Fatalf("failed to insert plan %s: %v", p.Name, err)
			}
			var planID int64
			if err := db.Raw("SELECT id FROM plans WHERE name = ?", p.Name).Row().Scan(&planID); err != nil {
				log.Fatalf("failed to lookup plan %s: %v", p.Name, err)
			}
			planIDs[p.Name] = planID

			for _, key := range p.Keys {
				if err := db.Exec(`INSERT INTO plan_permissions (plan_id, permission_id)
					SELECT ?, id FROM permissions WHERE key = ?
					ON CONFLICT DO NOTHING`, planID, key).Error; err != nil {
					log.Fatalf("failed to link %s to plan %s: %v", key, p.Name, err)
				}
			}
			scopes.Invalidate(cmd.Context(), planID)
			fmt.Printf("Seeded plan: %s (%d permissions)\n", p.Name, len(p.Keys))
		}

		if err := db.Exec(`INSERT INTO institutions (name, plan_id, subdomain, slug, schema_name, status, created_at)
			VALUES (?, ?, ?, ?, ?, 'active', now())
			ON CONFLICT (schema_name) DO NOTHING`,
			"Greenwood Academy", planIDs["premium"], "greenwood", "greenwood-academy", demoSchema).Error; err != nil {
			log.Fatalf("failed to insert demo institution: %v", err)
		}
		fmt.Println("Seeded institution: Greenwood Academy")

		seedSystemRoles(db, seedPlans[2].Keys)
		fmt.Println("Seed complete")
	},
}

// seedSystemRoles installs one system role per user type, holding the type's
// minimal template bounded by the demo plan, and makes it the tenant default.
func seedSystemRoles(db *gorm.DB, planKeys []string) {
	for _, userType := range coreUser.Types {
		var roleID int64
		err := db.Raw(fmt.Sprintf("SELECT id FROM %s WHERE role_type = ? AND is_system = true", tenant.Table(demoSchema, "roles")), string(userType)).
			Row().Scan(&roleID)
		if err != nil {
			if err := db.Raw(fmt.Sprintf(`INSERT INTO %s (name, role_type, description, is_system, created_at)
				VALUES (?, ?, ?, true, now()) RETURNING id`, tenant.Table(demoSchema, "roles")),
				string(userType), string(userType), fmt.Sprintf("System %s role", userType)).Row().Scan(&roleID); err != nil {
				log.Fatalf("failed to insert %s role: %v", userType, err)
			}
		}

		for _, key := range planscope.FilterByScope(planscope.Template(userType), planKeys) {
			if err := db.Exec(fmt.Sprintf(`INSERT INTO %s (role_id, permission_key) VALUES (?, ?) ON CONFLICT DO NOTHING`,
				tenant.Table(demoSchema, "role_permissions")), roleID, key).Error; err != nil {
				log.Fatalf("failed to grant %s to %s role: %v", key, userType, err)
			}
		}

		if err := db.Exec(fmt.Sprintf(`INSERT INTO %s (user_type, default_role_id, is_system_role)
			VALUES (?, ?, true) ON CONFLICT (user_type) DO NOTHING`, tenant.Table(demoSchema, "tenant_role_configs")),
			string(userType), roleID).Error; err != nil {
			log.Fatalf("failed to configure default %s role: %v", userType, err)
		}
		fmt.Printf("Seeded system role: %s (id %d)\n", userType, roleID)
	}
}

func clearDemoData(db *gorm.DB) {
	for _, table := range []string{"tenant_role_configs", "role_permissions", "roles"} {
		if err := db.Exec(fmt.Sprintf("DELETE FROM %s", tenant.Table(demoSchema, table))).Error; err != nil {
			log.Fatalf("failed to clear %s: %v", table, err)
		}
	}
	if err := db.Exec("DELETE FROM institutions WHERE schema_name = ?", demoSchema).Error; err != nil {
		log.Fatalf("failed to clear demo institution: %v", err)
	}
	fmt.Println("Cleared demo data")
}
