package user

import "time"

type User struct {
	ID                 int64     `gorm:"primaryKey"`
	Email              string    `gorm:"column:email;not null"`
	ExternalIdentityID string    `gorm:"column:external_identity_id;not null"`
	InstitutionID      int64     `gorm:"column:institution_id;not null"`
	UserType           string    `gorm:"column:user_type;not null"`
	FirstName          string    `gorm:"column:first_name;not null"`
	LastName           string    `gorm:"column:last_name;not null"`
	IsActive           bool      `gorm:"column:is_active;not null"`
	CreatedBy          int64     `gorm:"column:created_by"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

type UserRole struct {
	ID         int64      `gorm:"primaryKey"`
	UserID     int64      `gorm:"column:user_id;not null"`
	RoleID     int64      `gorm:"column:role_id;not null"`
	AssignedBy int64      `gorm:"column:assigned_by"`
	ExpiresAt  *time.Time `gorm:"column:expires_at"`
	CreatedAt  time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// UserPermission is a grant layered on top of the user's role permissions.
type UserPermission struct {
	ID            int64      `gorm:"primaryKey"`
	UserID        int64      `gorm:"column:user_id;not null"`
	PermissionID  int64      `gorm:"column:permission_id;not null"`
	PermissionKey string     `gorm:"column:permission_key;not null"`
	GrantedBy     int64      `gorm:"column:granted_by"`
	ExpiresAt     *time.Time `gorm:"column:expires_at"`
	CreatedAt     time.Time  `gorm:"column:created_at;autoCreateTime"`
}

type Teacher struct {
	ID            int64     `gorm:"primaryKey"`
	UserID        int64     `gorm:"column:user_id;not null"`
	EmployeeID    string    `gorm:"column:employee_id"`
	Department    string    `gorm:"column:department"`
	Qualification string    `gorm:"column:qualification"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
}

type Student struct {
	ID              int64     `gorm:"primaryKey"`
	UserID          int64     `gorm:"column:user_id;not null"`
	AdmissionNumber string    `gorm:"column:admission_number"`
	GradeLevel      string    `gorm:"column:grade_level"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}
