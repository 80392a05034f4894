// Package db bundles the goose migrations so the binary can migrate without the source tree.
package db

import "embed"

//go:embed migrations/public/*.sql migrations/tenant/*.sql
var Migrations embed.FS

const (
	PublicMigrationsDir = "migrations/public"
	TenantMigrationsDir = "migrations/tenant"
)
