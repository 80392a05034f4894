package provisioning

import (
	"strings"

	appErrors "github.com/frahmantamala/institution-management/internal"
	"github.com/frahmantamala/institution-management/internal/core/common/validation"
)

const (
	maxNameLength  = 100
	maxEmailLength = 254
)

type TeacherProfile struct {
	EmployeeID    string `json:"employee_id,omitempty"`
	Department    string `json:"department,omitempty"`
	Qualification string `json:"qualification,omitempty"`
}

type StudentProfile struct {
	AdmissionNumber string `json:"admission_number,omitempty"`
	GradeLevel      string `json:"grade_level,omitempty"`
}

// NewUserData is one user to provision. Permissions, when set, replaces the
// user type's minimal template; it is still bounded by the plan and by the
// permissions of the authenticated caller.
type NewUserData struct {
	Email       string          `json:"email"`
	FirstName   string          `json:"first_name"`
	LastName    string          `json:"last_name"`
	Permissions []string        `json:"permissions,omitempty"`
	Teacher     *TeacherProfile `json:"teacher,omitempty"`
	Student     *StudentProfile `json:"student,omitempty"`
}

func (d *NewUserData) Normalize() {
	d.Email = strings.TrimSpace(d.Email)
	d.FirstName = strings.TrimSpace(d.FirstName)
	d.LastName = strings.TrimSpace(d.LastName)
}

func (d *NewUserData) Validate() *appErrors.AppError {
	v := validation.NewValidator()
	v.Field("email", d.Email).Required().MaxLength(maxEmailLength).Email()
	v.Field("first_name", d.FirstName).Required().MaxLength(maxNameLength)
	v.Field("last_name", d.LastName).Required().MaxLength(maxNameLength)
	return v.Validate()
}

// ProvisionedUser is returned only after the local transaction committed.
type ProvisionedUser struct {
	ID                 int64  `json:"id"`
	Email              string `json:"email"`
	FirstName          string `json:"first_name"`
	LastName           string `json:"last_name"`
	UserType           string `json:"user_type"`
	ExternalIdentityID string `json:"external_identity_id"`
}

type BulkRequest struct {
	Users []NewUserData `json:"users"`
}

type BulkFailure struct {
	Email        string `json:"email"`
	ErrorMessage string `json:"error_message"`
}

type BulkResult struct {
	Succeeded []ProvisionedUser `json:"succeeded"`
	Failed    []BulkFailure     `json:"failed"`
}

type ChangeDefaultRoleRequest struct {
	RoleID int64 `json:"role_id"`
}

type DefaultRoleResponse struct {
	UserType       string `json:"user_type"`
	DefaultRoleID  int64  `json:"default_role_id"`
	PreviousRoleID *int64 `json:"previous_role_id,omitempty"`
	IsSystemRole   bool   `json:"is_system_role"`
}
