package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"strings"

	"github.com/frahmantamala/institution-management/db"
	"github.com/frahmantamala/institution-management/internal/tenant"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
)

var (
	migrateCmd = &cobra.Command{
		RunE:  runMigration,
		Use:   "migrate",
		Short: "to run the embedded public and tenant schema migrations",
	}
	migrateRollback   bool
	migrateTenant     string
	migrateAllTenants bool
)

func init() {
	migrateCmd.Flags().BoolVarP(&migrateRollback, "rollback", "r", false, "to rollback the latest version of sql migration")
	migrateCmd.Flags().StringVarP(&migrateTenant, "tenant", "t", "", "tenant schema to migrate instead of the public catalog")
	migrateCmd.Flags().BoolVar(&migrateAllTenants, "all-tenants", false, "migrate every institution schema listed in the catalog")
}

func runMigration(_ *cobra.Command, _ []string) error {
	ctx := context.Background()
	cfg, err := loadConfig(configPath)
	if err != nil {
		log.Fatal(err)
	}

	goose.SetBaseFS(db.Migrations)
	goose.SetTableName("schema_migrations")
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	command := "up"
	if migrateRollback {
		command = "down"
	}

	source := cfg.Database.GetDSN()
	switch {
	case migrateTenant != "":
		return migrateTenantSchema(ctx, command, source, migrateTenant)
	case migrateAllTenants:
		schemas, err := listTenantSchemas(ctx, source)
		if err != nil {
			return err
		}
		for _, schema := range schemas {
			if err := migrateTenantSchema(ctx, command, source, schema); err != nil {
				return err
			}
		}
		return nil
	}

	conn, err := goose.OpenDBWithDriver("pgx", source)
	if err != nil {
		log.Fatalf("goose: failed to open DB: %v\n", err)
	}
	defer conn.Close()

	if err := goose.RunContext(ctx, command, conn, db.PublicMigrationsDir); err != nil {
		log.Fatalf("goose %s: %v", command, err)
	}
	return nil
}

// migrateTenantSchema creates the schema if needed and runs the tenant migrations
// with search_path pinned to it, so goose's version table lives inside the tenant.
func migrateTenantSchema(ctx context.Context, command, source, schema string) error {
	if err := tenant.ValidateSchemaName(schema); err != nil {
		return err
	}

	admin, err := goose.OpenDBWithDriver("pgx", source)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer admin.Close()
	if _, err := admin.ExecContext(ctx, fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %q`, schema)); err != nil {
		return fmt.Errorf("create schema %s: %w", schema, err)
	}

	dsn, err := withSearchPath(source, schema)
	if err != nil {
		return err
	}
	conn, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return fmt.Errorf("open tenant connection: %w", err)
	}
	defer conn.Close()

	log.Printf("migrating tenant schema %s (%s)", schema, command)
	if err := goose.RunContext(ctx, command, conn, db.TenantMigrationsDir); err != nil {
		return fmt.Errorf("goose %s on %s: %w", command, schema, err)
	}
	return nil
}

func listTenantSchemas(ctx context.Context, source string) ([]string, error) {
	conn, err := sql.Open("pgx", source)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	rows, err := conn.QueryContext(ctx, `SELECT schema_name FROM institutions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list institutions: %w", err)
	}
	defer rows.Close()

	var schemas []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		schemas = append(schemas, s)
	}
	return schemas, rows.Err()
}

// withSearchPath accepts both URL and keyword/value connection strings.
func withSearchPath(source, schema string) (string, error) {
	if strings.HasPrefix(source, "postgres://") || strings.HasPrefix(source, "postgresql://") {
		u, err := url.Parse(source)
		if err != nil {
			return "", fmt.Errorf("parse database source: %w", err)
		}
		q := u.Query()
		q.Set("search_path", schema)
		u.RawQuery = q.Encode()
		return u.String(), nil
	}
	return strings.TrimSpace(source) + " search_path=" + schema, nil
}
