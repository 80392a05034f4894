package role

import "time"

type Role struct {
	ID          int64     `gorm:"primaryKey"`
	Name        string    `gorm:"column:name;not null"`
	RoleType    string    `gorm:"column:role_type;not null"`
	Description string    `gorm:"column:description"`
	IsSystem    bool      `gorm:"column:is_system;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
}

type RolePermission struct {
	ID            int64  `gorm:"primaryKey"`
	RoleID        int64  `gorm:"column:role_id;not null"`
	PermissionKey string `gorm:"column:permission_key;not null"`
}

// TenantRoleConfig selects the default role handed to new users of a type.
type TenantRoleConfig struct {
	ID             int64      `gorm:"primaryKey"`
	UserType       string     `gorm:"column:user_type;not null"`
	DefaultRoleID  int64      `gorm:"column:default_role_id;not null"`
	PreviousRoleID *int64     `gorm:"column:previous_role_id"`
	IsSystemRole   bool       `gorm:"column:is_system_role;not null"`
	LastChangedAt  *time.Time `gorm:"column:last_changed_at"`
	ChangedBy      *int64     `gorm:"column:changed_by"`
}
