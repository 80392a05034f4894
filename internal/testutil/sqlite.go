// Package testutil backs repository and provisioning specs with in-memory SQLite.
//
// Tenant schemas are emulated with ATTACHed databases so schema-qualified
// table names ("tenant_abc.users") resolve the same way they do on Postgres.
// SQLite resolves an unqualified name against main first and then every
// attached database in order, so main carries a column-less stand-in for each
// tenant table: a statement that drops its schema fails instead of landing in
// whichever tenant was attached first.
package testutil

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// NewSQLiteDB opens a private in-memory database pinned to a single connection,
// since every new connection to ":memory:" would see an empty database.
func NewSQLiteDB() (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// AttachTenantSchema creates an empty tenant schema with every tenant table.
func AttachTenantSchema(db *gorm.DB, schema string) error {
	if err := guardUnqualifiedTenantTables(db); err != nil {
		return err
	}
	if err := db.Exec(fmt.Sprintf("ATTACH DATABASE ':memory:' AS %s", schema)).Error; err != nil {
		return fmt.Errorf("attach %s: %w", schema, err)
	}
	for _, stmt := range tenantDDL {
		if err := db.Exec(fmt.Sprintf(stmt, schema)).Error; err != nil {
			return fmt.Errorf("create tenant table in %s: %w", schema, err)
		}
	}
	return nil
}

func guardUnqualifiedTenantTables(db *gorm.DB) error {
	for _, table := range TenantTables {
		stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS main.%s (unqualified_tenant_access INTEGER CHECK (0))", table)
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("guard %s: %w", table, err)
		}
	}
	return nil
}

// TenantTables lists every table a tenant schema carries.
var TenantTables = []string{
	"roles",
	"role_permissions",
	"tenant_role_configs",
	"users",
	"user_roles",
	"user_permissions",
	"teachers",
	"students",
	"audit_logs",
}

// CreateCatalogTables creates the public catalog tables in the main database.
func CreateCatalogTables(db *gorm.DB) error {
	for _, stmt := range catalogDDL {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("create catalog table: %w", err)
		}
	}
	return nil
}

var catalogDDL = []string{
	`CREATE TABLE plans (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE permissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		key TEXT NOT NULL UNIQUE,
		description TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE plan_permissions (
		plan_id INTEGER NOT NULL,
		permission_id INTEGER NOT NULL,
		PRIMARY KEY (plan_id, permission_id)
	)`,
	`CREATE TABLE institutions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		plan_id INTEGER,
		subdomain TEXT UNIQUE,
		slug TEXT UNIQUE,
		schema_name TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'active',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}

var tenantDDL = []string{
	`CREATE TABLE %[1]s.roles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		role_type TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_system BOOLEAN NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX %[1]s.idx_roles_custom_type_name ON roles (role_type, name) WHERE NOT is_system`,
	`CREATE TABLE %[1]s.role_permissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		role_id INTEGER NOT NULL,
		permission_key TEXT NOT NULL,
		UNIQUE (role_id, permission_key)
	)`,
	`CREATE TABLE %[1]s.tenant_role_configs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_type TEXT NOT NULL UNIQUE,
		default_role_id INTEGER NOT NULL,
		previous_role_id INTEGER,
		is_system_role BOOLEAN NOT NULL DEFAULT 0,
		last_changed_at DATETIME,
		changed_by INTEGER
	)`,
	`CREATE TABLE %[1]s.users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		email TEXT NOT NULL,
		external_identity_id TEXT NOT NULL UNIQUE,
		institution_id INTEGER NOT NULL,
		user_type TEXT NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT 1,
		created_by INTEGER,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE UNIQUE INDEX %[1]s.idx_users_email_lower ON users (lower(email))`,
	`CREATE TABLE %[1]s.user_roles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		role_id INTEGER NOT NULL,
		assigned_by INTEGER,
		expires_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (user_id, role_id)
	)`,
	`CREATE TABLE %[1]s.user_permissions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		permission_id INTEGER NOT NULL,
		permission_key TEXT NOT NULL,
		granted_by INTEGER,
		expires_at DATETIME,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (user_id, permission_key)
	)`,
	`CREATE TABLE %[1]s.teachers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE,
		employee_id TEXT NOT NULL DEFAULT '',
		department TEXT NOT NULL DEFAULT '',
		qualification TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE %[1]s.students (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL UNIQUE,
		admission_number TEXT NOT NULL DEFAULT '',
		grade_level TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
	`CREATE TABLE %[1]s.audit_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL,
		action TEXT NOT NULL,
		actor_id INTEGER,
		subject_id INTEGER,
		payload TEXT NOT NULL DEFAULT '{}',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`,
}
