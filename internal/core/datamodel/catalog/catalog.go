package catalog

import "time"

type Institution struct {
	ID         int64     `db:"id"`
	Name       string    `db:"name"`
	PlanID     *int64    `db:"plan_id"`
	Subdomain  *string   `db:"subdomain"`
	Slug       *string   `db:"slug"`
	SchemaName string    `db:"schema_name"`
	Status     string    `db:"status"`
	CreatedAt  time.Time `db:"created_at"`
}

type Plan struct {
	ID        int64     `db:"id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

type Permission struct {
	ID          int64     `db:"id"`
	Key         string    `db:"key"`
	Description string    `db:"description"`
	CreatedAt   time.Time `db:"created_at"`
}

type PlanPermission struct {
	PlanID       int64 `db:"plan_id"`
	PermissionID int64 `db:"permission_id"`
}
